// Package collyfetcher implements menu.Fetcher using gocolly.
package collyfetcher

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/jane-menu-proxy/internal/menu"
	"github.com/JakeFAU/jane-menu-proxy/internal/metrics"
)

// DefaultMaxBodySize bounds a response body when Config.MaxBodySize is unset.
const DefaultMaxBodySize = 32 << 20

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	// MaxBodySize is the largest accepted body in bytes. Larger responses
	// fail as unavailable instead of being cut short.
	MaxBodySize int
}

// Fetcher implements menu.Fetcher using a fresh Colly collector per call.
type Fetcher struct {
	cfg       Config
	transport http.RoundTripper
}

type collectorHooks interface {
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher sharing one pooled transport across calls.
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = menu.DefaultTimeout
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = DefaultMaxBodySize
	}
	return &Fetcher{
		cfg:       cfg,
		transport: newHTTPTransport(),
	}
}

// Fetch executes a single GET or POST. Non-200 statuses are returned as a
// Response; only transport failures produce an error.
func (f *Fetcher) Fetch(ctx context.Context, request menu.Request) (menu.Response, error) {
	method := request.Method
	if method == "" {
		method = http.MethodGet
	}
	var (
		result   menu.Response
		fetchErr error
		received bool
	)
	collector := f.buildCollector(request)
	f.configureCollectorHooks(collector, &result, &received, &fetchErr)

	err := f.runCollector(ctx, collector, method, request, &fetchErr)
	switch {
	case err != nil:
		metrics.ObserveRemoteFetch(request.URL, "unavailable")
		return menu.Response{}, fmt.Errorf("%w: %s %s: %w", menu.ErrUnavailable, method, request.URL, err)
	case !received:
		metrics.ObserveRemoteFetch(request.URL, "unavailable")
		return menu.Response{}, fmt.Errorf("%w: %s %s: no response", menu.ErrUnavailable, method, request.URL)
	}
	if len(result.Body) > f.cfg.MaxBodySize {
		metrics.ObserveRemoteFetch(request.URL, "too_large")
		return menu.Response{}, fmt.Errorf("%w: %s %s: body exceeds %d bytes",
			menu.ErrUnavailable, method, request.URL, f.cfg.MaxBodySize)
	}
	metrics.ObserveRemoteFetch(request.URL, strconv.Itoa(result.StatusCode))
	return result, nil
}

func (f *Fetcher) buildCollector(request menu.Request) *colly.Collector {
	collector := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	collector.ParseHTTPErrorResponse = true
	collector.IgnoreRobotsTxt = true
	collector.WithTransport(f.transport)
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	timeout := request.Timeout
	if timeout <= 0 {
		timeout = f.cfg.Timeout
	}
	collector.SetRequestTimeout(timeout)
	// One byte over the limit tells an oversized body from one that fits.
	collector.MaxBodySize = f.cfg.MaxBodySize + 1
	return collector
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	result *menu.Response,
	received *bool,
	fetchErr *error,
) {
	hooks.OnResponse(func(r *colly.Response) {
		var headers http.Header
		if r.Headers != nil {
			headers = r.Headers.Clone()
		}
		*result = menu.Response{
			StatusCode: r.StatusCode,
			Headers:    headers,
			Body:       append([]byte(nil), r.Body...),
		}
		*received = true
	})

	hooks.OnError(func(_ *colly.Response, err error) {
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(
	ctx context.Context,
	collector *colly.Collector,
	method string,
	request menu.Request,
	fetchErr *error,
) error {
	done := make(chan error, 1)
	go func() {
		var body *bytes.Reader
		if len(request.Body) > 0 {
			body = bytes.NewReader(request.Body)
		}
		headers := request.Headers.Clone()
		if headers == nil {
			headers = http.Header{}
		}
		if body == nil {
			done <- collector.Request(method, request.URL, nil, nil, headers)
			return
		}
		done <- collector.Request(method, request.URL, body, nil, headers)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly request failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
