package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"railwatch/internal/dispatch"
	"railwatch/internal/proxypool"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

// unsetEnv clears key for the test and restores it afterwards.
func unsetEnv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	if err := os.Unsetenv(key); err != nil {
		t.Fatalf("unset %s: %v", key, err)
	}
}

func TestFromEnv_Defaults(t *testing.T) {
	for _, key := range []string{"PORT", "PROXY_MAX_FAILURES", "PROXY_FAST_THRESHOLD", "DISPATCH_MAX_ATTEMPTS", "DISPATCH_BACKOFF", "UPSTREAM_INSECURE_TLS", "SCRAPER_RATE_LIMIT"} {
		unsetEnv(t, key)
	}

	cfg := FromEnv()
	if cfg.Port != 5001 || cfg.Addr() != ":5001" {
		t.Fatalf("port = %d addr = %q", cfg.Port, cfg.Addr())
	}
	if cfg.Policy != proxypool.DefaultPolicy() {
		t.Fatalf("policy = %+v, want defaults", cfg.Policy)
	}
	if cfg.Dispatch.MaxAttempts != dispatch.DefaultMaxAttempts || cfg.Dispatch.Backoff != dispatch.DefaultBackoff {
		t.Fatalf("dispatch = %+v", cfg.Dispatch)
	}
	if cfg.InsecureTLS {
		t.Fatal("insecure TLS must be opt-in")
	}
	if cfg.Scraper.RateLimit != 5 {
		t.Fatalf("rate limit = %v", cfg.Scraper.RateLimit)
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("PROXY_MAX_FAILURES", "5")
	t.Setenv("PROXY_FAST_THRESHOLD", "1500ms")
	t.Setenv("PROXY_FAILURE_TIMEOUT", "60")
	t.Setenv("DISPATCH_MAX_ATTEMPTS", "4")
	t.Setenv("UPSTREAM_INSECURE_TLS", "true")
	t.Setenv("GATEWAY_ADDR", ":8089")

	cfg := FromEnv()
	if cfg.Port != 8080 {
		t.Fatalf("port = %d", cfg.Port)
	}
	if cfg.Policy.MaxFailures != 5 || cfg.Policy.FastThreshold != 1500*time.Millisecond || cfg.Policy.FailureTimeout != time.Minute {
		t.Fatalf("policy = %+v", cfg.Policy)
	}
	if cfg.Dispatch.MaxAttempts != 4 || !cfg.InsecureTLS {
		t.Fatalf("dispatch = %+v insecure = %v", cfg.Dispatch, cfg.InsecureTLS)
	}
	if cfg.Gateway.Addr != ":8089" {
		t.Fatalf("gateway = %+v", cfg.Gateway)
	}
}

func TestLoad_INIFileFillsUnsetKeys(t *testing.T) {
	path := writeFile(t, "railwatch.ini", `
port = 6000
log_level = debug

[proxy]
max_failures = 7
file = proxies.txt

[dispatch]
timeout = 3s
`)
	t.Setenv(configFileEnv, path)
	t.Setenv("PROXY_FILE", "from-env.txt")
	for _, key := range []string{"PORT", "LOG_LEVEL", "PROXY_MAX_FAILURES", "DISPATCH_TIMEOUT"} {
		unsetEnv(t, key)
	}

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 6000 || cfg.Level() != log.DebugLevel {
		t.Fatalf("port = %d level = %v", cfg.Port, cfg.Level())
	}
	if cfg.Policy.MaxFailures != 7 || cfg.Dispatch.Timeout != 3*time.Second {
		t.Fatalf("policy = %+v dispatch = %+v", cfg.Policy, cfg.Dispatch)
	}
	if cfg.ProxyFile != "from-env.txt" {
		t.Fatalf("environment should win over the INI file, got %q", cfg.ProxyFile)
	}
}

func TestLoad_DotEnv(t *testing.T) {
	path := writeFile(t, ".env", "SCRAPER_RATE_BURST=9\n")
	unsetEnv(t, "SCRAPER_RATE_BURST")
	unsetEnv(t, configFileEnv)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Scraper.RateBurst != 9 {
		t.Fatalf("burst = %d", cfg.Scraper.RateBurst)
	}
}

func TestLoad_BrokenINI(t *testing.T) {
	path := writeFile(t, "broken.ini", "[proxy\nfile = x\n")
	t.Setenv(configFileEnv, path)

	if _, err := Load(filepath.Join(t.TempDir(), "missing.env")); err == nil {
		t.Fatal("expected an error for a malformed INI file")
	}
}

func TestLevel_FallsBackToInfo(t *testing.T) {
	if got := (Config{LogLevel: "chatty"}).Level(); got != log.InfoLevel {
		t.Fatalf("level = %v", got)
	}
}
