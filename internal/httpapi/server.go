package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rickgao/shardgate/internal/cache"
	"github.com/rickgao/shardgate/internal/manager"
	"github.com/rickgao/shardgate/internal/scheduler"
	"github.com/rickgao/shardgate/internal/shard"
	"github.com/rickgao/shardgate/internal/version"
)

// Fleet is the view of the shard manager the API reads from.
type Fleet interface {
	Stats() manager.Stats
	ShardStats() []manager.ShardStat
	Scheduler() *scheduler.Scheduler
	Cache() *cache.Cache[string, shard.Object]
}

// Options configures the router.
type Options struct {
	MetricsPath string // default /metrics
	Gatherer    prometheus.Gatherer
	Logger      *slog.Logger
}

type handlers struct {
	fleet  Fleet
	logger *slog.Logger
}

// NewRouter builds the HTTP router.
func NewRouter(fleet Fleet, opts Options) http.Handler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.MetricsPath == "" {
		opts.MetricsPath = "/metrics"
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}

	h := &handlers{fleet: fleet, logger: opts.Logger}

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(requestLogger(opts.Logger))

	r.Get("/health", h.health)
	r.Get("/version", h.version)
	r.Route("/debug", func(r chi.Router) {
		r.Get("/shards", h.shards)
		r.Get("/shards/{id}", h.shard)
		r.Get("/scheduler", h.scheduler)
		r.Get("/cache", h.cache)
	})
	r.Handle(opts.MetricsPath, promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))

	return r
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

type healthResponse struct {
	Status string        `json:"status"`
	Uptime string        `json:"uptime,omitempty"`
	Stats  manager.Stats `json:"stats"`
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	st := h.fleet.Stats()
	resp := healthResponse{Status: "unavailable", Stats: st}
	code := http.StatusServiceUnavailable
	if st.GlobalReady {
		resp.Status = "ok"
		code = http.StatusOK
		if !st.StartTime.IsZero() {
			resp.Uptime = time.Since(st.StartTime).Round(time.Second).String()
		}
	}
	writeJSON(w, code, resp)
}

func (h *handlers) version(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, version.Get())
}

func (h *handlers) shards(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.fleet.ShardStats())
}

func (h *handlers) shard(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid shard id")
		return
	}
	for _, st := range h.fleet.ShardStats() {
		if st.ID == id {
			writeJSON(w, http.StatusOK, st)
			return
		}
	}
	writeError(w, http.StatusNotFound, "shard not found")
}

func (h *handlers) scheduler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.fleet.Scheduler().Snapshot())
}

type cacheResponse struct {
	Size     int      `json:"size"`
	Capacity int      `json:"capacity"`
	Policy   string   `json:"policy"`
	Pinned   []string `json:"pinned"`
	Keys     []string `json:"keys"`
}

func (h *handlers) cache(w http.ResponseWriter, r *http.Request) {
	c := h.fleet.Cache()
	writeJSON(w, http.StatusOK, cacheResponse{
		Size:     c.Len(),
		Capacity: c.Capacity(),
		Policy:   c.Policy().Name(),
		Pinned:   c.Pinned(),
		Keys:     c.Keys(),
	})
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
			)
		})
	}
}
