package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"railwatch/internal/api/dto"
	"railwatch/internal/jobs/runtime"
	"railwatch/internal/proxypool"
	"railwatch/internal/scraper"
	"railwatch/internal/support"
)

const shutdownTimeout = 10 * time.Second

// TrainService answers the train lookups behind the public endpoints.
type TrainService interface {
	LiveStatus(ctx context.Context, trainNumber string) (*scraper.LiveStatus, error)
	Schedule(ctx context.Context, trainNumber string) (*scraper.Schedule, error)
	PNRStatus(ctx context.Context, pnrNumber string) (*scraper.PNRStatus, error)
}

type Dependencies struct {
	Trains   TrainService
	Pool     *proxypool.HealthStore
	Geo      *support.GeoLocator
	Redis    *redis.Client
	Registry *prometheus.Registry
}

type api struct {
	trains TrainService
	pool   *proxypool.HealthStore
	geo    *support.GeoLocator
	redis  *redis.Client
}

func NewRouter(deps Dependencies) http.Handler {
	h := &api{
		trains: deps.Trains,
		pool:   deps.Pool,
		geo:    deps.Geo,
		redis:  deps.Redis,
	}

	router := http.NewServeMux()

	router.HandleFunc("GET /api/live-status", h.liveStatus)
	router.HandleFunc("POST /api/live-status", h.liveStatus)
	router.HandleFunc("GET /api/live-status/{train_number}", h.liveStatus)
	router.HandleFunc("POST /api/live-status/{train_number}", h.liveStatus)

	router.HandleFunc("GET /api/train-schedule", h.trainSchedule)
	router.HandleFunc("POST /api/train-schedule", h.trainSchedule)
	router.HandleFunc("GET /api/train-schedule/{train_number}", h.trainSchedule)
	router.HandleFunc("POST /api/train-schedule/{train_number}", h.trainSchedule)

	router.HandleFunc("GET /api/pnr-status", h.pnrStatus)
	router.HandleFunc("POST /api/pnr-status", h.pnrStatus)
	router.HandleFunc("GET /api/pnr-status/{pnr_number}", h.pnrStatus)
	router.HandleFunc("POST /api/pnr-status/{pnr_number}", h.pnrStatus)

	router.HandleFunc("GET /api/proxies", h.listProxies)
	router.HandleFunc("POST /api/proxies/{proxy}/reset", h.resetProxy)
	router.HandleFunc("GET /api/instances", h.listInstances)

	router.HandleFunc("GET /healthz", h.healthz)
	if deps.Registry != nil {
		router.Handle("GET /metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{Registry: deps.Registry}))
	}

	router.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, "Endpoint not found", http.StatusNotFound)
	})

	metrics := newHTTPMetrics(deps.Registry)
	return requestIDMiddleware(recoverMiddleware(accessLogMiddleware(metrics, router)))
}

// Serve runs the HTTP server until ctx is cancelled, then shuts it down
// gracefully.
func Serve(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Info("HTTP server stopped")
	return nil
}

func (h *api) healthz(w http.ResponseWriter, r *http.Request) {
	data := map[string]any{"instance_id": support.GetInstanceID()}
	if h.pool != nil {
		stats := h.pool.Stats()
		data["pool"] = dto.ProxyPoolSummary{Total: stats.Total, Fast: stats.Fast, Blacklisted: stats.Blacklisted}
	}
	if h.redis != nil {
		if count, err := runtime.CountActiveInstances(r.Context(), h.redis); err == nil {
			data["active_instances"] = count
		} else {
			log.Warn("healthz: could not count instances", "error", err)
		}
	}
	writeJSON(w, http.StatusOK, dto.Envelope{Status: dto.StatusSuccess, Message: "ok", Data: data})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, status, dto.Envelope{Status: dto.StatusError, Message: message})
}
