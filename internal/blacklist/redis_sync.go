package blacklist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"
)

const (
	redisBlacklistChannel = "railwatch:blacklist:updates"
	redisBlacklistTimeout = 5 * time.Second
)

// Importer is the part of the proxy pool that accepts blacklist entries
// announced by other instances.
type Importer interface {
	MarkBlacklisted(proxy string, failedAt time.Time) bool
}

type redisSyncState struct {
	mu     sync.RWMutex
	client *redis.Client
	ctx    context.Context
	cancel context.CancelFunc
}

type blacklistSyncEvent struct {
	Origin   string `json:"origin"`
	Proxy    string `json:"proxy"`
	FailedAt string `json:"failed_at,omitempty"`
}

var (
	globalRedisSync     redisSyncState
	blacklistSyncNodeID = generateBlacklistSyncNodeID()
)

// EnableRedisSynchronization shares blacklist transitions between instances
// that load the same proxy list. Entries published by peers are imported into
// store; entries this instance publishes are ignored on receipt.
func EnableRedisSynchronization(ctx context.Context, client *redis.Client, store Importer) error {
	if client == nil {
		log.Warn("Blacklist sync disabled: redis client is nil")
		return nil
	}
	if store == nil {
		return errors.New("blacklist sync: nil store")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	globalRedisSync.mu.Lock()
	defer globalRedisSync.mu.Unlock()
	if globalRedisSync.client != nil {
		return nil
	}

	syncCtx, cancel := context.WithCancel(ctx)
	pubsub := client.Subscribe(syncCtx, redisBlacklistChannel)

	opCtx, opCancel := redisTimeoutCtx(syncCtx)
	_, err := pubsub.Receive(opCtx)
	opCancel()
	if err != nil {
		_ = pubsub.Close()
		cancel()
		return fmt.Errorf("blacklist sync: subscribe: %w", err)
	}

	globalRedisSync.client = client
	globalRedisSync.ctx = syncCtx
	globalRedisSync.cancel = cancel

	go receiveBlacklistUpdates(syncCtx, pubsub, store)
	return nil
}

// DisableRedisSynchronization stops the subscriber and turns publishing into
// a no-op.
func DisableRedisSynchronization() {
	globalRedisSync.mu.Lock()
	defer globalRedisSync.mu.Unlock()
	if globalRedisSync.cancel != nil {
		globalRedisSync.cancel()
	}
	globalRedisSync.client = nil
	globalRedisSync.ctx = nil
	globalRedisSync.cancel = nil
}

func receiveBlacklistUpdates(ctx context.Context, pubsub *redis.PubSub, store Importer) {
	defer pubsub.Close()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, redis.ErrClosed) || ctx.Err() != nil {
				return
			}
			log.Error("Blacklist sync: subscription error", "error", err)
			time.Sleep(time.Second)
			continue
		}

		var event blacklistSyncEvent
		if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
			log.Error("Blacklist sync: invalid payload", "error", err)
			continue
		}

		if event.Origin == blacklistSyncNodeID || strings.TrimSpace(event.Proxy) == "" {
			continue
		}

		failedAt, err := time.Parse(time.RFC3339Nano, event.FailedAt)
		if err != nil {
			failedAt = time.Now()
		}
		if store.MarkBlacklisted(event.Proxy, failedAt) {
			log.Debug("Blacklist sync: imported peer entry", "proxy", event.Proxy, "origin", event.Origin)
		}
	}
}

// PublishBlacklisted announces a local blacklist transition. It matches
// proxypool.BlacklistHook and returns immediately; publishing happens in the
// background.
func PublishBlacklisted(proxy string, failedAt time.Time) {
	client, baseCtx := blacklistRedisClient()
	if client == nil {
		return
	}
	go func() {
		if err := broadcastBlacklisted(baseCtx, client, proxy, failedAt); err != nil {
			log.Error("Blacklist sync: publish failed", "proxy", proxy, "error", err)
		}
	}()
}

func broadcastBlacklisted(ctx context.Context, client *redis.Client, proxy string, failedAt time.Time) error {
	event := blacklistSyncEvent{
		Origin:   blacklistSyncNodeID,
		Proxy:    proxy,
		FailedAt: failedAt.UTC().Format(time.RFC3339Nano),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	opCtx, cancel := redisTimeoutCtx(mergedContext(ctx, context.Background()))
	defer cancel()

	return client.Publish(opCtx, redisBlacklistChannel, payload).Err()
}

func blacklistRedisClient() (*redis.Client, context.Context) {
	globalRedisSync.mu.RLock()
	defer globalRedisSync.mu.RUnlock()
	return globalRedisSync.client, globalRedisSync.ctx
}

func generateBlacklistSyncNodeID() string {
	host, _ := os.Hostname()
	return fmt.Sprintf("%s-%d-%d", host, os.Getpid(), time.Now().UnixNano())
}

func mergedContext(ctx context.Context, fallback context.Context) context.Context {
	switch {
	case ctx != nil && ctx.Err() == nil:
		return ctx
	case fallback != nil && fallback.Err() == nil:
		return fallback
	default:
		return context.Background()
	}
}

func redisTimeoutCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if deadline, hasDeadline := ctx.Deadline(); hasDeadline && time.Until(deadline) <= redisBlacklistTimeout {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, redisBlacklistTimeout)
}
