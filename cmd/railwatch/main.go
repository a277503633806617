package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"railwatch/internal/app/server"
	"railwatch/internal/blacklist"
	"railwatch/internal/cache"
	"railwatch/internal/config"
	"railwatch/internal/database"
	"railwatch/internal/dispatch"
	"railwatch/internal/jobs/runtime"
	"railwatch/internal/proxylist"
	"railwatch/internal/proxypool"
	"railwatch/internal/rotatingproxy"
	"railwatch/internal/scraper"
	"railwatch/internal/support"
)

func main() {
	envFile := flag.String("env", ".env", "Path to a .env file")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Fatal: %v\n", err)
		os.Exit(1)
	}
	log.SetLevel(cfg.Level())
	log.SetReportTimestamp(true)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal("railwatch stopped", "error", err)
	}
	log.Info("railwatch stopped")
}

func run(ctx context.Context, cfg config.Config) error {
	persistence := setupPersistence()
	if persistence {
		defer func() {
			if err := database.Close(); err != nil {
				log.Warn("Database close failed", "error", err)
			}
		}()
	}

	seeds, err := loadSeeds(ctx, cfg, persistence)
	if err != nil {
		return err
	}

	store := proxypool.NewHealthStore(seeds,
		proxypool.WithPolicy(cfg.Policy),
		proxypool.WithBlacklistHook(blacklist.PublishBlacklisted),
	)
	log.Info("Proxy pool ready", "proxies", store.Len(), "fast", len(store.FastProxies()))

	ctx, cancel := context.WithCancel(ctx)
	if persistence {
		restoreHealth(ctx, store)
		snapshotDone := make(chan struct{})
		go func() {
			defer close(snapshotDone)
			runtime.StartHealthSnapshotLoop(ctx, store, database.SaveProxyHealth, cfg.SnapshotInterval)
		}()
		// the final snapshot must land before the database closes
		defer func() { <-snapshotDone }()
	}
	defer cancel()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		proxypool.NewCollector(store),
	)

	transportOpts := support.TransportOptions{
		Timeout:            cfg.Dispatch.Timeout,
		InsecureSkipVerify: cfg.InsecureTLS,
	}
	dispatcher := dispatch.NewForPool(store, dispatch.NewHTTPTransport(transportOpts),
		dispatch.WithConfig(cfg.Dispatch),
		dispatch.WithMetrics(dispatch.NewMetrics(registry)),
	)

	scraperOpts := []scraper.Option{
		scraper.WithBaseURL(cfg.Scraper.BaseURL),
		scraper.WithRateLimit(cfg.Scraper.RateLimit, cfg.Scraper.RateBurst),
		scraper.WithRobots(cfg.Scraper.RespectRobots),
	}

	redisClient := connectRedis(ctx, store)
	if redisClient != nil {
		defer blacklist.DisableRedisSynchronization()
		scraperOpts = append(scraperOpts, scraper.WithCache(
			cache.NewRedisCache(redisClient, cache.DefaultKeyPrefix),
			cfg.Scraper.LiveTTL,
			cfg.Scraper.ScheduleTTL,
		))
		stopHeartbeat := runtime.LaunchInstanceHeartbeat(ctx, redisClient, store)
		defer stopHeartbeat()
	}

	if cfg.Gateway.Addr != "" {
		gateway := rotatingproxy.NewServer(rotatingproxy.Config{
			Addr:        cfg.Gateway.Addr,
			Credentials: rotatingproxy.Credentials{Username: cfg.Gateway.Username, Password: cfg.Gateway.Password},
			Attempts:    cfg.Dispatch.MaxAttempts,
			Transport:   transportOpts,
		}, store, dispatcher)
		if err := gateway.Run(ctx); err != nil {
			return fmt.Errorf("gateway: %w", err)
		}
	}

	geo := openGeoLocator(cfg.GeoIPPath)
	defer func() {
		if err := geo.Close(); err != nil {
			log.Warn("GeoIP close failed", "error", err)
		}
	}()

	handler := server.NewRouter(server.Dependencies{
		Trains:   scraper.New(dispatcher, scraperOpts...),
		Pool:     store,
		Geo:      geo,
		Redis:    redisClient,
		Registry: registry,
	})

	log.Info("Starting HTTP server", "addr", cfg.Addr())
	return server.Serve(ctx, cfg.Addr(), handler)
}

func setupPersistence() bool {
	_, err := database.SetupDB()
	switch {
	case err == nil:
		return true
	case errors.Is(err, database.ErrDriverDisabled):
		log.Info("Persistence disabled")
	default:
		log.Warn("Database unavailable, running without persistence", "error", err)
	}
	return false
}

// loadSeeds prefers the proxy files and falls back to the proxies the last
// tester run stored as alive.
func loadSeeds(ctx context.Context, cfg config.Config, persistence bool) ([]proxypool.Seed, error) {
	seeds, err := proxylist.Load(cfg.ProxyDetailedFile, cfg.ProxyFile)
	if err != nil {
		return nil, err
	}
	if len(seeds) > 0 || !persistence {
		if len(seeds) == 0 {
			log.Warn("No proxies loaded, upstream requests will fail", "file", cfg.ProxyFile)
		}
		return seeds, nil
	}

	seeds, err = database.LoadAliveProxySeeds(ctx)
	if err != nil {
		log.Warn("Could not load proxies from the database", "error", err)
		return nil, nil
	}
	log.Info("Proxy list loaded from database", "proxies", len(seeds))
	return seeds, nil
}

func restoreHealth(ctx context.Context, store *proxypool.HealthStore) {
	entries, err := database.LoadProxyHealth(ctx)
	if err != nil {
		log.Warn("Could not restore proxy health", "error", err)
		return
	}
	if restored := store.Restore(entries); restored > 0 {
		log.Info("Proxy health restored", "proxies", restored)
	}
}

func connectRedis(ctx context.Context, store *proxypool.HealthStore) *redis.Client {
	client, err := support.GetRedisClient()
	if err != nil {
		if !errors.Is(err, support.ErrRedisNotConfigured) {
			log.Warn("Redis unavailable, caching and blacklist sync disabled", "error", err)
		}
		return nil
	}
	if err := blacklist.EnableRedisSynchronization(ctx, client, store); err != nil {
		log.Warn("Blacklist sync disabled", "error", err)
	}
	return client
}

func openGeoLocator(path string) *support.GeoLocator {
	if path == "" {
		return nil
	}
	geo, err := support.OpenGeoLocator(path)
	if err != nil {
		log.Warn("GeoIP lookups disabled", "error", err)
		return nil
	}
	return geo
}
