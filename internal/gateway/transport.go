package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"ledger/internal/config"
	"ledger/internal/log"
	"ledger/internal/middleware/ratelimit"
	"ledger/internal/middleware/security"
	"ledger/internal/middleware/trace"
)

const (
	MCPPath      = "/mcp"
	HealthPath   = "/healthz"
	ReadyPath    = "/readyz"
	readyTimeout = 5 * time.Second
)

// ReadinessCheck reports whether a dependency can serve requests.
type ReadinessCheck func(ctx context.Context) error

type HTTPConfig struct {
	Addr               string
	RateLimitPerMinute int
	Checks             map[string]ReadinessCheck
}

// HTTPServer serves the streamable MCP transport plus health endpoints.
type HTTPServer struct {
	http.Server

	limiter  *ratelimit.Limiter
	tracer   *trace.Middleware
	detector *security.Detector
	checks   map[string]ReadinessCheck
	started  time.Time
	logger   *log.Logger

	shutdownOnce sync.Once
}

// Run serves the gateway on the configured transport until ctx is done.
func (s *Server) Run(ctx context.Context, cfg *config.Config, checks map[string]ReadinessCheck) error {
	s.logger.Info("Starting tool gateway", log.FieldTransport, cfg.Transport)

	switch cfg.Transport {
	case config.TransportStdio:
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && ctx.Err() != nil {
			return nil
		}
		return err
	case config.TransportHTTP:
		srv := s.NewHTTPServer(HTTPConfig{
			Addr:               cfg.Addr(),
			RateLimitPerMinute: cfg.RateLimitPerMinute,
			Checks:             checks,
		})
		return srv.Serve(ctx, cfg.ShutdownTimeout)
	default:
		return fmt.Errorf("transport %q not supported", cfg.Transport)
	}
}

// NewHTTPServer builds the HTTP transport. Every request passes through the
// security headers, suspicious-request detection and tracing; MCP traffic is
// additionally rate limited per client.
func (s *Server) NewHTTPServer(cfg HTTPConfig) *HTTPServer {
	detector := security.NewDetector()
	hs := &HTTPServer{
		limiter:  ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: cfg.RateLimitPerMinute}),
		tracer:   trace.NewMiddleware(detector.ExtractClientIP),
		detector: detector,
		checks:   cfg.Checks,
		started:  time.Now(),
		logger:   s.logger.WithComponent(log.ComponentHTTP),
	}

	streamable := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.mcp
	}, nil)
	mcpHandler := hs.limiter.Middleware(detector.ExtractClientIP, nil)(streamable)

	mux := http.NewServeMux()
	mux.Handle(MCPPath, mcpHandler)
	mux.Handle(MCPPath+"/", mcpHandler)
	mux.HandleFunc(HealthPath, hs.handleHealth)
	mux.HandleFunc(ReadyPath, hs.handleReady)

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	hs.Server = http.Server{
		Addr:              cfg.Addr,
		Handler:           headers.Middleware(detector.Middleware(hs.tracer.Middleware(mux))),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return hs
}

// Serve listens until ctx is done, then shuts down within timeout.
func (hs *HTTPServer) Serve(ctx context.Context, timeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		hs.logger.Info("HTTP transport listening", "addr", hs.Addr, "path", MCPPath)
		errCh <- hs.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		hs.stop()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http transport: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		hs.logger.Info("Shutting down HTTP transport")
		return hs.Shutdown(shutdownCtx)
	}
}

// Shutdown gracefully shuts down the server and the limiter cleanup routine.
func (hs *HTTPServer) Shutdown(ctx context.Context) error {
	var shutdownErr error
	hs.shutdownOnce.Do(func() {
		hs.limiter.Stop()
		shutdownErr = hs.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func (hs *HTTPServer) stop() {
	hs.shutdownOnce.Do(func() {
		hs.limiter.Stop()
	})
}

func (hs *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	requests := hs.tracer.GetMetrics()
	limits := hs.limiter.GetMetrics()

	health := map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(hs.started).String(),
		"requests": map[string]int64{
			"total":  requests.TotalRequests,
			"failed": requests.FailedRequests,
		},
		"rate_limit": map[string]int64{
			"rejected": limits.Rejected,
			"clients":  limits.ClientCount,
		},
		"suspicious_requests": hs.detector.GetMetrics().SuspiciousRequests,
	}
	writeJSON(w, http.StatusOK, health)
}

// handleReady performs readiness check with dependency verification
func (hs *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]string, len(hs.checks))
	for name, check := range hs.checks {
		if err := check(ctx); err != nil {
			checks[name] = "failed: " + err.Error()
			status = "not_ready"
			httpStatus = http.StatusServiceUnavailable
			hs.logger.WarnContext(ctx, "Readiness check failed", "check", name, log.FieldError, err.Error())
			continue
		}
		checks[name] = "ok"
	}

	writeJSON(w, httpStatus, map[string]any{
		"status": status,
		"checks": checks,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
