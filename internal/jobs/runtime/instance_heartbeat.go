package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"

	"railwatch/internal/proxypool"
	"railwatch/internal/support"
)

const (
	InstanceHeartbeatKeyPrefix = "railwatch:instance:"
	DefaultHeartbeatInterval   = 15 * time.Second
	DefaultHeartbeatTTL        = 30 * time.Second
)

type PoolStats struct {
	Total       int `json:"total"`
	Fast        int `json:"fast"`
	Blacklisted int `json:"blacklisted"`
}

type ActiveInstance struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Region    string    `json:"region"`
	StartedAt time.Time `json:"started_at"`
	Pool      PoolStats `json:"pool"`
}

// StatsSource reports the local pool counters published with each heartbeat.
type StatsSource interface {
	Stats() proxypool.PoolStats
}

var (
	instanceID        = generateInstanceID()
	instanceStartedAt = time.Now().UTC()
)

func generateInstanceID() string {
	if configured := strings.TrimSpace(support.GetInstanceID()); configured != "" {
		return configured
	}
	hostname, _ := os.Hostname()
	return fmt.Sprintf("%s-%d-%d", hostname, os.Getpid(), time.Now().UnixNano())
}

func currentInstancePayload(stats StatsSource) ActiveInstance {
	instance := ActiveInstance{
		ID:        instanceID,
		Name:      support.GetInstanceName(),
		Region:    support.GetInstanceRegion(),
		StartedAt: instanceStartedAt,
	}
	if stats != nil {
		s := stats.Stats()
		instance.Pool = PoolStats{Total: s.Total, Fast: s.Fast, Blacklisted: s.Blacklisted}
	}
	return instance
}

func CurrentInstance(stats StatsSource) ActiveInstance {
	return currentInstancePayload(stats)
}

// StartInstanceHeartbeat refreshes this instance's key until ctx is done. The
// payload is rebuilt on every beat so peers see current pool counters.
func StartInstanceHeartbeat(ctx context.Context, client *redis.Client, stats StatsSource, keyPrefix string, interval, ttl time.Duration) {
	if ctx == nil {
		ctx = context.Background()
	}
	heartbeatKey := keyPrefix + instanceID

	sendHeartbeat := func() {
		heartbeatValue, err := json.Marshal(currentInstancePayload(stats))
		if err != nil {
			log.Error("Failed to encode instance heartbeat", "error", err)
			return
		}
		if err := client.SetEx(ctx, heartbeatKey, heartbeatValue, ttl).Err(); err != nil && ctx.Err() == nil {
			log.Error("Failed to update instance heartbeat", "key", heartbeatKey, "error", err)
		}
	}

	sendHeartbeat()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sendHeartbeat()
		}
	}
}

func LaunchInstanceHeartbeat(parent context.Context, client *redis.Client, stats StatsSource) context.CancelFunc {
	ctx, cancel := context.WithCancel(parent)
	go StartInstanceHeartbeat(ctx, client, stats, InstanceHeartbeatKeyPrefix, DefaultHeartbeatInterval, DefaultHeartbeatTTL)
	return cancel
}

func CountActiveInstances(ctx context.Context, client *redis.Client) (int, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	keys, err := client.Keys(ctx, InstanceHeartbeatKeyPrefix+"*").Result()
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

// ListActiveInstances returns every instance with a live heartbeat key,
// ordered by id.
func ListActiveInstances(ctx context.Context, client *redis.Client) ([]ActiveInstance, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	keys, err := client.Keys(ctx, InstanceHeartbeatKeyPrefix+"*").Result()
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return []ActiveInstance{}, nil
	}
	sort.Strings(keys)

	values, err := client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	result := make([]ActiveInstance, 0, len(keys))
	for idx, key := range keys {
		instance := ActiveInstance{
			ID: strings.TrimPrefix(key, InstanceHeartbeatKeyPrefix),
		}
		if instance.ID == "" {
			continue
		}

		if idx < len(values) {
			if raw, ok := values[idx].(string); ok && strings.TrimSpace(raw) != "" {
				var payload ActiveInstance
				if err := json.Unmarshal([]byte(raw), &payload); err == nil {
					if strings.TrimSpace(payload.ID) != "" {
						instance.ID = strings.TrimSpace(payload.ID)
					}
					instance.Name = strings.TrimSpace(payload.Name)
					instance.Region = strings.TrimSpace(payload.Region)
					instance.StartedAt = payload.StartedAt
					instance.Pool = payload.Pool
				}
			}
		}

		if instance.Name == "" {
			instance.Name = instance.ID
		}
		if instance.Region == "" {
			instance.Region = "Unknown"
		}

		result = append(result, instance)
	}

	return result, nil
}
