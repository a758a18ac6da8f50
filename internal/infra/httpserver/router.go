package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	domain "github.com/bryanwahyu/scan-trigger/internal/domain/scans"
	"github.com/bryanwahyu/scan-trigger/internal/middleware"
)

// Response messages returned by POST /scan.
const (
	MessageSuccess = "Scan completed successfully"
	MessageFailed  = "Scan failed"
	MessageError   = "An error occurred"
)

// Scanner is the use case behind POST /scan.
type Scanner interface {
	Trigger(ctx context.Context) (domain.ScanResult, error)
}

// Options configures the surrounding middleware. Zero values are usable.
type Options struct {
	CORS        middleware.CORSOptions
	Metrics     *middleware.Metrics
	RateLimiter *middleware.RateLimiter
	Health      map[string]middleware.HealthChecker
}

type Router struct {
	scanner Scanner
}

type successResponse struct {
	Message string `json:"message"`
	Output  string `json:"output"`
}

type errorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

func NewRouter(scanner Scanner, opts Options) http.Handler {
	r := &Router{scanner: scanner}
	mux := chi.NewRouter()

	mux.Use(chimw.RequestID)
	mux.Use(middleware.LoggingMiddleware)
	mux.Use(chimw.Recoverer)
	if opts.Metrics != nil {
		mux.Use(opts.Metrics.Middleware)
	}
	mux.Use(middleware.CORS(opts.CORS))

	mux.Get("/livez", middleware.LivenessHandler)
	mux.Get("/health", middleware.HealthHandler(opts.Health))
	if opts.Metrics != nil {
		mux.Method(http.MethodGet, "/metrics", opts.Metrics.Handler())
	}

	mux.Group(func(rt chi.Router) {
		if opts.RateLimiter != nil {
			rt.Use(middleware.RateLimitMiddleware(opts.RateLimiter))
		}
		if opts.Metrics != nil {
			rt.Use(opts.Metrics.TrackScan)
		}
		rt.Post("/scan", r.wrap(r.handleScan))
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

// wrap maps errors returned by a handler to the JSON error body.
func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		err := h(w, req)
		if err == nil {
			return
		}

		var pf *domain.ProcessFailure
		if errors.As(err, &pf) {
			writeJSON(req.Context(), w, http.StatusInternalServerError, errorResponse{
				Message: MessageFailed,
				Error:   pf.Result.Stderr,
			})
			return
		}
		writeJSON(req.Context(), w, http.StatusInternalServerError, errorResponse{
			Message: MessageError,
			Error:   err.Error(),
		})
	}
}

// POST /scan
// Body is ignored. Blocks until the scan program exits.
func (r *Router) handleScan(w http.ResponseWriter, req *http.Request) error {
	res, err := r.scanner.Trigger(req.Context())
	if err != nil {
		return err
	}
	writeJSON(req.Context(), w, http.StatusOK, successResponse{
		Message: MessageSuccess,
		Output:  res.Stdout,
	})
	return nil
}

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.WarnContext(ctx, "write response", "error", err)
	}
}
