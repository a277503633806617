package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"gopkg.in/ini.v1"

	"railwatch/internal/dispatch"
	"railwatch/internal/proxypool"
	"railwatch/internal/scraper"
	"railwatch/internal/support"
)

const configFileEnv = "RAILWATCH_CONFIG"

type Scraper struct {
	BaseURL       string
	RateLimit     float64
	RateBurst     int
	RespectRobots bool
	LiveTTL       time.Duration
	ScheduleTTL   time.Duration
}

type Gateway struct {
	Addr     string
	Username string
	Password string
}

type Config struct {
	Port              int
	LogLevel          string
	ProxyFile         string
	ProxyDetailedFile string
	Policy            proxypool.Policy
	Dispatch          dispatch.Config
	InsecureTLS       bool
	Scraper           Scraper
	RedisURL          string
	GeoIPPath         string
	SnapshotInterval  time.Duration
	Gateway           Gateway
}

// Load reads .env files and the optional INI file named by RAILWATCH_CONFIG
// into the environment without overriding variables that are already set,
// then builds the configuration from the environment.
func Load(envFiles ...string) (Config, error) {
	if err := loadDotEnv(envFiles...); err != nil {
		return Config{}, err
	}
	if path := support.GetEnv(configFileEnv, ""); path != "" {
		if err := applyINI(path); err != nil {
			return Config{}, err
		}
	}
	return FromEnv(), nil
}

func FromEnv() Config {
	dispatchCfg := dispatch.DefaultConfig()
	dispatchCfg.MaxAttempts = support.GetEnvInt("DISPATCH_MAX_ATTEMPTS", dispatch.DefaultMaxAttempts)
	dispatchCfg.Timeout = support.GetEnvDuration("DISPATCH_TIMEOUT", dispatch.DefaultTimeout)
	dispatchCfg.Backoff = support.GetEnvDuration("DISPATCH_BACKOFF", dispatch.DefaultBackoff)

	return Config{
		Port:              support.GetEnvInt("PORT", 5001),
		LogLevel:          strings.ToLower(support.GetEnv("LOG_LEVEL", "info")),
		ProxyFile:         support.GetEnv("PROXY_FILE", "working_proxies.txt"),
		ProxyDetailedFile: support.GetEnv("PROXY_DETAILED_FILE", "working_proxies_detailed.json"),
		Policy: proxypool.Policy{
			MaxFailures:     support.GetEnvInt("PROXY_MAX_FAILURES", proxypool.DefaultMaxFailures),
			FailureTimeout:  support.GetEnvDuration("PROXY_FAILURE_TIMEOUT", proxypool.DefaultFailureTimeout),
			FastThreshold:   support.GetEnvDuration("PROXY_FAST_THRESHOLD", proxypool.DefaultFastThreshold),
			Cooldown:        support.GetEnvDuration("PROXY_COOLDOWN", proxypool.DefaultCooldown),
			SmoothingWeight: support.GetEnvFloat("PROXY_SMOOTHING_WEIGHT", proxypool.DefaultSmoothingWeight),
		},
		Dispatch:    dispatchCfg,
		InsecureTLS: support.GetEnvBool("UPSTREAM_INSECURE_TLS", false),
		Scraper: Scraper{
			BaseURL:       support.GetEnv("SCRAPER_BASE_URL", scraper.DefaultBaseURL),
			RateLimit:     support.GetEnvFloat("SCRAPER_RATE_LIMIT", scraper.DefaultRateLimit),
			RateBurst:     support.GetEnvInt("SCRAPER_RATE_BURST", scraper.DefaultRateBurst),
			RespectRobots: support.GetEnvBool("SCRAPER_RESPECT_ROBOTS", false),
			LiveTTL:       support.GetEnvDuration("CACHE_LIVE_TTL", scraper.DefaultLiveTTL),
			ScheduleTTL:   support.GetEnvDuration("CACHE_SCHEDULE_TTL", scraper.DefaultScheduleTTL),
		},
		RedisURL:         support.GetEnv("REDIS_URL", ""),
		GeoIPPath:        support.GetEnv("GEOIP_DB_PATH", ""),
		SnapshotInterval: support.GetEnvDuration("PROXY_SNAPSHOT_INTERVAL", time.Minute),
		Gateway: Gateway{
			Addr:     support.GetEnv("GATEWAY_ADDR", ""),
			Username: support.GetEnv("GATEWAY_USERNAME", ""),
			Password: support.GetEnv("GATEWAY_PASSWORD", ""),
		},
	}
}

// Level maps LOG_LEVEL onto the logger; unknown values fall back to info.
func (c Config) Level() log.Level {
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return log.InfoLevel
	}
	return level
}

func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func loadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, file := range files {
		if err := godotenv.Load(file); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("config: load %s: %w", file, err)
		}
	}
	return nil
}

// applyINI exports every key of the INI file as an environment variable.
// Keys in a named section are prefixed with the section name, so
// [proxy] fast_threshold becomes PROXY_FAST_THRESHOLD.
func applyINI(path string) error {
	file, err := ini.Load(path)
	if err != nil {
		return fmt.Errorf("config: load %s: %w", path, err)
	}

	for _, section := range file.Sections() {
		prefix := ""
		if name := section.Name(); name != ini.DefaultSection {
			prefix = strings.ToUpper(name) + "_"
		}
		for _, key := range section.Keys() {
			envKey := prefix + strings.ToUpper(key.Name())
			if _, exists := os.LookupEnv(envKey); exists {
				continue
			}
			if err := os.Setenv(envKey, key.String()); err != nil {
				return fmt.Errorf("config: export %s: %w", envKey, err)
			}
		}
	}
	return nil
}
