package checker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"railwatch/internal/proxylist"
	"railwatch/internal/support"
)

type Config struct {
	TestURLs           []string
	Timeout            time.Duration
	Workers            int
	Retries            int
	UserAgent          string
	InsecureSkipVerify bool
}

func DefaultConfig() Config {
	return Config{
		TestURLs: []string{
			"https://www.confirmtkt.com/train-running-status/15665",
			"https://httpbin.org/ip",
			"https://www.google.com",
			"https://www.example.com",
		},
		Timeout:   10 * time.Second,
		Workers:   50,
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
	}
}

// Progress is called after every probed proxy.
type Progress func(done, total, working int)

var pickTestURL = func(urls []string) string {
	return urls[rand.IntN(len(urls))]
}

// Run probes every proxy concurrently, bounded by cfg.Workers, and splits the
// results into working and failed. Working results are sorted fastest first.
func Run(ctx context.Context, proxies []string, cfg Config, progress Progress) ([]proxylist.Result, []proxylist.Result, error) {
	if len(cfg.TestURLs) == 0 {
		return nil, nil, fmt.Errorf("checker: no test urls configured")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}

	var (
		mu      sync.Mutex
		working []proxylist.Result
		failed  []proxylist.Result
		done    int
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(cfg.Workers)

	for _, proxy := range proxies {
		group.Go(func() error {
			if groupCtx.Err() != nil {
				return groupCtx.Err()
			}
			result, _ := CheckProxyWithRetries(groupCtx, proxy, pickTestURL(cfg.TestURLs), cfg, cfg.Retries)

			mu.Lock()
			if result.Status == proxylist.StatusWorking {
				working = append(working, result)
			} else {
				failed = append(failed, result)
			}
			done++
			d, w := done, len(working)
			mu.Unlock()

			if progress != nil {
				progress(d, len(proxies), w)
			}
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return working, failed, err
	}

	proxylist.SortByLatency(working)
	return working, failed, nil
}

// CheckProxyWithRetries probes proxy once plus up to retries more times and
// returns the first working result, or the last failure, with the index of the
// attempt that produced it.
func CheckProxyWithRetries(ctx context.Context, proxy, testURL string, cfg Config, retries int) (proxylist.Result, int) {
	if retries < 0 {
		retries = 0
	}

	var result proxylist.Result
	for attempt := 0; attempt <= retries; attempt++ {
		result = CheckProxy(ctx, proxy, testURL, cfg)
		if result.Status == proxylist.StatusWorking || ctx.Err() != nil {
			return result, attempt
		}
	}
	return result, retries
}

func CheckProxy(ctx context.Context, proxy, testURL string, cfg Config) proxylist.Result {
	result := proxylist.Result{
		Proxy:   proxy,
		Status:  proxylist.StatusFailed,
		TestURL: testURL,
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = support.DefaultUpstreamTimeout
	}

	transport, err := support.CreateTransport(proxy, support.TransportOptions{
		Timeout:            timeout,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	})
	if err != nil {
		result.Error = truncate(err.Error())
		return result
	}
	defer transport.CloseIdleConnections()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, testURL, nil)
	if err != nil {
		result.Error = truncate(err.Error())
		return result
	}
	if cfg.UserAgent != "" {
		req.Header.Set("User-Agent", cfg.UserAgent)
	}

	client := &http.Client{Transport: transport, Timeout: timeout}
	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		result.Error = classifyProbeError(err)
		return result
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	elapsed := roundSeconds(time.Since(start))
	result.Timings = proxylist.Timings{Connect: elapsed, Total: elapsed}
	result.StatusCode = resp.StatusCode
	if resp.StatusCode != http.StatusOK {
		result.Error = fmt.Sprintf("HTTP %d", resp.StatusCode)
		return result
	}

	result.Status = proxylist.StatusWorking
	result.ContentLength = len(body)
	log.Debug("Proxy check passed", "proxy", proxy, "total", elapsed)
	return result
}

func classifyProbeError(err error) string {
	if isTimeout(err) {
		return "Timeout"
	}
	return "Connection Error"
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func roundSeconds(d time.Duration) float64 {
	return float64(d.Round(time.Millisecond).Milliseconds()) / 1000
}

func truncate(msg string) string {
	if len(msg) > 100 {
		return msg[:100]
	}
	return msg
}
