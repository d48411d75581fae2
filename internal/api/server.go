package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/jane-menu-proxy/internal/admin"
	"github.com/JakeFAU/jane-menu-proxy/internal/config"
	"github.com/JakeFAU/jane-menu-proxy/internal/id/uuid"
	"github.com/JakeFAU/jane-menu-proxy/internal/menu"
	"github.com/JakeFAU/jane-menu-proxy/internal/metrics"
	"github.com/JakeFAU/jane-menu-proxy/internal/resolver"
	"github.com/JakeFAU/jane-menu-proxy/internal/routing"
	"github.com/JakeFAU/jane-menu-proxy/internal/sitemap"
)

// requestTimeout bounds a whole request. A storefront page may make three
// sequential remote calls of up to 30s each.
const requestTimeout = 100 * time.Second

// Dependencies groups the collaborators served over HTTP.
type Dependencies struct {
	Resolver *resolver.Resolver
	Routing  *routing.Adapter
	Admin    *admin.Service
	Configs  menu.ConfigRepository
	// Sitemaps lists every site advertised in robots.txt. The first entry is
	// the site this server renders.
	Sitemaps []*sitemap.Aggregator
	// Ready reports downstream readiness. Nil means always ready.
	Ready func(ctx context.Context) error
}

// Server wires HTTP handlers to the resolver, admin service and sitemap.
type Server struct {
	router chi.Router
	deps   Dependencies
	cfg    config.Config
	ids    *uuid.Generator
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(deps Dependencies, cfg config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		deps:   deps,
		cfg:    cfg,
		ids:    uuid.NewGenerator(),
		logger: logger.Named("api"),
	}
	r := chi.NewRouter()
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(requestTimeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Get("/robots.txt", s.robots)
	r.Get("/"+sitemap.ObjectPath, s.sitemapFile)
	r.Get("/sitemaps/jane.xml", s.sitemapEntries)

	r.Route("/admin", func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Route("/store-configs", func(r chi.Router) {
			r.Get("/", s.listStoreConfigs)
			r.Post("/", s.saveStoreConfig)
			r.Delete("/", s.deleteStoreConfigs)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.getStoreConfig)
				r.Put("/", s.saveStoreConfig)
			})
		})
		r.Get("/settings/sitemap", s.getSitemapSetting)
		r.Put("/settings/sitemap", s.putSitemapSetting)
		r.Route("/ajax", func(r chi.Router) {
			r.Post("/page-relative-path", s.ajaxPageRelativePath)
			r.Post("/page-path", s.ajaxPagePath)
			r.Post("/post-type-items", s.ajaxPostTypeItems)
			r.Post("/post-types", s.ajaxPostTypes)
			r.Post("/verify-store-path", s.ajaxVerifyStorePath)
		})
	})

	r.Get("/*", s.storefront)
	r.Head("/*", s.storefront)

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.Ready(ctx); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type requestIDKey struct{}

// RequestID returns the id assigned to the request carried by ctx.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if !uuid.Valid(reqID) {
			reqID = s.ids.MustID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("request_id", RequestID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered",
					zap.String("request_id", RequestID(r.Context())),
					zap.Any("error", rec),
				)
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload) //nolint:errcheck // client went away
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
