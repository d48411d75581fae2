package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/JakeFAU/jane-menu-proxy/internal/menu"
)

type recordingFetcher struct {
	calls []string
}

func (f *recordingFetcher) Fetch(_ context.Context, req menu.Request) (menu.Response, error) {
	f.calls = append(f.calls, req.URL)
	return menu.Response{StatusCode: 200}, nil
}

func TestLimiter_Wait(t *testing.T) {
	// 10 RPS = 1 token every 100ms, burst 1.
	l := New(Config{RPS: 10, Burst: 1})
	ctx := context.Background()

	if err := l.Wait(ctx, "https://partner.example"); err != nil {
		t.Fatal(err)
	}
	start := time.Now()
	if err := l.Wait(ctx, "https://partner.example/embed/a"); err != nil {
		t.Fatal(err)
	}
	if dur := time.Since(start); dur < 80*time.Millisecond {
		t.Errorf("expected wait ~100ms, got %v", dur)
	}
}

func TestLimiter_DifferentHosts(t *testing.T) {
	l := New(Config{RPS: 1, Burst: 1})
	ctx := context.Background()

	if err := l.Wait(ctx, "https://a.example/1"); err != nil {
		t.Fatal(err)
	}
	start := time.Now()
	if err := l.Wait(ctx, "https://b.example/1"); err != nil {
		t.Fatal(err)
	}
	if dur := time.Since(start); dur > 50*time.Millisecond {
		t.Errorf("expected no wait for a different host, got %v", dur)
	}
}

func TestLimiter_ContextCanceled(t *testing.T) {
	l := New(Config{RPS: 0.001, Burst: 1})
	if err := l.Wait(context.Background(), "https://a.example"); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := l.Wait(ctx, "https://a.example"); err == nil {
		t.Fatal("expected error once the context expires")
	}
}

func TestWrap(t *testing.T) {
	next := &recordingFetcher{}
	if got := Wrap(next, Config{}); got != menu.Fetcher(next) {
		t.Fatalf("disabled config should return next unchanged, got %T", got)
	}

	throttled := Wrap(next, Config{RPS: 100, Burst: 5})
	if _, ok := throttled.(*Fetcher); !ok {
		t.Fatalf("expected *Fetcher, got %T", throttled)
	}
	resp, err := throttled.Fetch(context.Background(), menu.Request{URL: "https://partner.example/embed/a"})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if resp.StatusCode != 200 || len(next.calls) != 1 {
		t.Fatalf("unexpected delegation: status=%d calls=%v", resp.StatusCode, next.calls)
	}
}
