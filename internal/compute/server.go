package compute

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/extent-cli/internal/extent"
)

// maxRequestBytes bounds a request body.
const maxRequestBytes = 32 << 20

// ServerOptions configures the HTTP worker.
type ServerOptions struct {
	RatePerSec     float64
	Burst          int
	AllowedOrigins []string
}

// NewWorkerRouter returns the HTTP worker handler. POST ComputePath accepts a
// Request and always answers with a Response unless the body is unreadable.
func NewWorkerRouter(engine *extent.Engine, opts ServerOptions) http.Handler {
	if engine == nil {
		engine = extent.NewEngine()
	}
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	limited := r.With()
	if opts.RatePerSec > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		limited = r.With(rateLimit(rate.NewLimiter(rate.Limit(opts.RatePerSec), burst)))
	}
	limited.Post(ComputePath, computeHandler(engine))

	return r
}

func rateLimit(l *rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.Allow() {
				w.Header().Set("Retry-After", "1")
				writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func computeHandler(engine *extent.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req Request
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
		if err := dec.Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
		if req.ID == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "id is required"})
			return
		}

		start := time.Now()
		resp := Handle(engine, req)

		log := zap.L().With(
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("id", req.ID),
			zap.String("type", string(req.Type)),
			zap.Int("occurrences", len(req.Payload.Occurrences)),
			zap.Duration("elapsed", time.Since(start)),
		)
		if resp.OK {
			log.Debug("compute request served")
		} else {
			log.Warn("compute request failed", zap.String("error", resp.Error))
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
