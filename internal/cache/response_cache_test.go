package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type cachedSchedule struct {
	TrainNumber string   `json:"train_number"`
	Stations    []string `json:"stations"`
}

func newTestCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisCache(client, ""), mr
}

func TestRedisCache_RoundTripAndExpiry(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	value := cachedSchedule{TrainNumber: "12951", Stations: []string{"Mumbai Central", "New Delhi"}}
	if err := c.Set(ctx, "schedule:12951", value, time.Hour); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}
	if !mr.Exists(DefaultKeyPrefix + "schedule:12951") {
		t.Fatal("value not stored under the prefixed key")
	}

	var got cachedSchedule
	hit, err := c.Get(ctx, "schedule:12951", &got)
	if err != nil || !hit {
		t.Fatalf("Get = %t, %v; want hit", hit, err)
	}
	if got.TrainNumber != "12951" || len(got.Stations) != 2 {
		t.Fatalf("decoded value = %+v", got)
	}

	mr.FastForward(time.Hour + time.Second)
	hit, err = c.Get(ctx, "schedule:12951", &got)
	if err != nil || hit {
		t.Fatalf("Get after expiry = %t, %v; want miss", hit, err)
	}
}

func TestRedisCache_SkipsNonPositiveTTL(t *testing.T) {
	c, mr := newTestCache(t)

	if err := c.Set(context.Background(), "pnr:1234567890", cachedSchedule{}, 0); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}
	if keys := mr.Keys(); len(keys) != 0 {
		t.Fatalf("zero TTL stored keys %v", keys)
	}
}

func TestRedisCache_ReportsUnavailableServer(t *testing.T) {
	c, mr := newTestCache(t)
	mr.Close()

	var dst cachedSchedule
	if _, err := c.Get(context.Background(), "live:12951", &dst); err == nil {
		t.Fatal("Get should fail when redis is down")
	}
}

func TestNoop(t *testing.T) {
	var c Cache = Noop{}
	if err := c.Set(context.Background(), "k", 1, time.Minute); err != nil {
		t.Fatalf("Set returned %v", err)
	}
	var dst int
	if hit, err := c.Get(context.Background(), "k", &dst); hit || err != nil {
		t.Fatalf("Get = %t, %v; want miss", hit, err)
	}
}
