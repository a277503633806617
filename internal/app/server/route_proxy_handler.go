package server

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"railwatch/internal/api/dto"
	"railwatch/internal/jobs/runtime"
	"railwatch/internal/proxypool"
)

const instanceLookupTimeout = 3 * time.Second

func (h *api) listProxies(w http.ResponseWriter, _ *http.Request) {
	if h.pool == nil {
		writeError(w, "Proxy pool is not configured", http.StatusServiceUnavailable)
		return
	}

	snapshot := h.pool.Snapshot()
	proxies := make([]dto.ProxyHealth, 0, len(snapshot))
	for _, entry := range snapshot {
		proxies = append(proxies, proxyHealthDTO(entry, h.geo.CountryCode(entry.Proxy)))
	}

	stats := h.pool.Stats()
	writeJSON(w, http.StatusOK, dto.Envelope{
		Status: dto.StatusSuccess,
		Data: dto.ProxyPool{
			Summary: dto.ProxyPoolSummary{Total: stats.Total, Fast: stats.Fast, Blacklisted: stats.Blacklisted},
			Proxies: proxies,
		},
	})
}

func (h *api) resetProxy(w http.ResponseWriter, r *http.Request) {
	if h.pool == nil {
		writeError(w, "Proxy pool is not configured", http.StatusServiceUnavailable)
		return
	}

	proxy := strings.TrimSpace(r.PathValue("proxy"))
	if proxy == "" {
		writeError(w, "Missing proxy address", http.StatusBadRequest)
		return
	}
	if !h.pool.Reset(proxy) {
		writeError(w, "Proxy not found in pool", http.StatusNotFound)
		return
	}

	log.Info("Proxy reset via API", "proxy", proxy, "request_id", RequestIDFromContext(r.Context()))
	entry, _ := h.pool.Get(proxy)
	writeJSON(w, http.StatusOK, dto.Envelope{
		Status:  dto.StatusSuccess,
		Message: "Proxy reset",
		Data:    proxyHealthDTO(entry, h.geo.CountryCode(proxy)),
	})
}

func (h *api) listInstances(w http.ResponseWriter, r *http.Request) {
	instances, err := h.discoverActiveInstances(r.Context())
	if err != nil {
		log.Error("Failed to list active instances", "error", err)
		writeError(w, "Failed to load instances", http.StatusInternalServerError)
		return
	}

	currentID := runtime.CurrentInstance(nil).ID
	result := make([]dto.Instance, 0, len(instances))
	for _, instance := range instances {
		item := dto.Instance{
			ID:     instance.ID,
			Name:   instance.Name,
			Region: instance.Region,
			Pool: dto.InstancePool{
				Total:       instance.Pool.Total,
				Fast:        instance.Pool.Fast,
				Blacklisted: instance.Pool.Blacklisted,
			},
			Current: instance.ID == currentID,
		}
		if !instance.StartedAt.IsZero() {
			startedAt := instance.StartedAt
			item.StartedAt = &startedAt
		}
		result = append(result, item)
	}

	sort.Slice(result, func(i, j int) bool {
		left := strings.ToLower(result[i].Region + ":" + result[i].Name + ":" + result[i].ID)
		right := strings.ToLower(result[j].Region + ":" + result[j].Name + ":" + result[j].ID)
		return left < right
	})

	writeJSON(w, http.StatusOK, dto.Envelope{
		Status: dto.StatusSuccess,
		Data:   map[string]any{"instances": result},
	})
}

// discoverActiveInstances falls back to this instance alone when redis is not
// configured or nobody has sent a heartbeat yet.
func (h *api) discoverActiveInstances(ctx context.Context) ([]runtime.ActiveInstance, error) {
	current := runtime.CurrentInstance(h.statsSource())
	if h.redis == nil {
		return []runtime.ActiveInstance{current}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, instanceLookupTimeout)
	defer cancel()

	instances, err := runtime.ListActiveInstances(ctx, h.redis)
	if err != nil {
		return nil, err
	}
	if len(instances) == 0 {
		return []runtime.ActiveInstance{current}, nil
	}
	return instances, nil
}

func (h *api) statsSource() runtime.StatsSource {
	if h.pool == nil {
		return nil
	}
	return h.pool
}

func proxyHealthDTO(entry proxypool.Health, country string) dto.ProxyHealth {
	item := dto.ProxyHealth{
		Proxy:         entry.Proxy,
		Country:       country,
		SuccessCount:  entry.SuccessCount,
		FailureCount:  entry.FailureCount,
		TotalFailures: entry.TotalFailures,
		Fast:          entry.Fast,
		Blacklisted:   entry.Blacklisted,
		LastSuccessAt: optionalTime(entry.LastSuccessAt),
		LastFailureAt: optionalTime(entry.LastFailureAt),
		LastUsedAt:    optionalTime(entry.LastUsedAt),
	}
	if entry.Measured {
		ms := float64(entry.AverageResponse) / float64(time.Millisecond)
		item.AverageResponseMs = &ms
	}
	return item
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
