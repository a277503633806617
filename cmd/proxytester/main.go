package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/log"

	"railwatch/internal/config"
	"railwatch/internal/database"
	"railwatch/internal/jobs/checker"
	"railwatch/internal/proxylist"
	"railwatch/internal/support"
)

type listFlag []string

func (l *listFlag) String() string { return strings.Join(*l, ",") }

func (l *listFlag) Set(value string) error {
	*l = append(*l, value)
	return nil
}

func main() {
	var (
		inputs   listFlag
		reports  listFlag
		testURLs listFlag
	)
	defaults := checker.DefaultConfig()

	envFile := flag.String("env", ".env", "Path to a .env file")
	flag.Var(&inputs, "input", "Plain proxy list to test (repeatable)")
	flag.Var(&reports, "report", "Detailed report whose proxies are retested (repeatable)")
	flag.Var(&testURLs, "url", "Test URL (repeatable)")
	workers := flag.Int("workers", defaults.Workers, "Concurrent probes")
	timeout := flag.Duration("timeout", defaults.Timeout, "Per-probe timeout")
	retries := flag.Int("retries", 0, "Extra attempts for a failing proxy")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Fatal: %v\n", err)
		os.Exit(1)
	}
	log.SetLevel(cfg.Level())

	if len(inputs) == 0 {
		inputs = listFlag{support.GetEnv("PROXY_INPUT_FILE", "proxies.txt")}
	}
	if len(reports) == 0 {
		reports = listFlag{cfg.ProxyDetailedFile}
	}

	checkCfg := defaults
	checkCfg.Workers = *workers
	checkCfg.Timeout = *timeout
	checkCfg.Retries = *retries
	checkCfg.InsecureSkipVerify = cfg.InsecureTLS
	if len(testURLs) > 0 {
		checkCfg.TestURLs = testURLs
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, inputs, reports, checkCfg); err != nil {
		log.Fatal("Proxy test failed", "error", err)
	}
}

func run(ctx context.Context, cfg config.Config, inputs, reports []string, checkCfg checker.Config) error {
	proxies, err := proxylist.CollectAddresses(inputs, reports)
	if err != nil {
		return err
	}
	if len(proxies) == 0 {
		return fmt.Errorf("no proxies found in %s", strings.Join(slices.Concat(inputs, reports), ", "))
	}
	log.Info("Testing proxies", "proxies", len(proxies), "workers", checkCfg.Workers, "timeout", checkCfg.Timeout)

	step := max(len(proxies)/20, 1)
	working, failed, err := checker.Run(ctx, proxies, checkCfg, func(done, total, alive int) {
		if done%step == 0 || done == total {
			log.Info("Progress", "done", done, "total", total, "working", alive)
		}
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	checkedAt := time.Now()
	report := proxylist.NewReport(len(working)+len(failed), working, failed, checkedAt)
	if err := proxylist.WriteDetailed(cfg.ProxyDetailedFile, report); err != nil {
		return err
	}
	if err := proxylist.WritePlain(cfg.ProxyFile, report.WorkingProxies); err != nil {
		return err
	}
	log.Info("Proxy test finished",
		"tested", report.TotalTested,
		"working", len(working),
		"plain", cfg.ProxyFile,
		"detailed", cfg.ProxyDetailedFile,
	)

	saveChecks(ctx, slices.Concat(working, failed), checkedAt)
	return nil
}

func saveChecks(ctx context.Context, results []proxylist.Result, checkedAt time.Time) {
	if _, err := database.SetupDB(); err != nil {
		if !errors.Is(err, database.ErrDriverDisabled) {
			log.Warn("Skipping database update", "error", err)
		}
		return
	}
	defer database.Close()

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := database.SaveProxyChecks(saveCtx, results, checkedAt); err != nil {
		log.Warn("Could not store proxy checks", "error", err)
		return
	}
	log.Info("Proxy checks stored", "results", len(results))
}
