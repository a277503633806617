package proxylist

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"railwatch/internal/proxypool"
)

const (
	StatusWorking = "working"
	StatusFailed  = "failed"
)

var ErrInvalidProxyFile = errors.New("invalid proxy file")

type Timings struct {
	Connect float64 `json:"connect"`
	Total   float64 `json:"total"`
}

// Result is one probed proxy as written by the checker.
type Result struct {
	Proxy         string  `json:"proxy"`
	Status        string  `json:"status"`
	TestURL       string  `json:"test_url,omitempty"`
	Error         string  `json:"error,omitempty"`
	StatusCode    int     `json:"status_code,omitempty"`
	ContentLength int     `json:"content_length,omitempty"`
	Timings       Timings `json:"timings"`
}

type Report struct {
	Timestamp      string   `json:"timestamp"`
	TotalTested    int      `json:"total_tested"`
	WorkingCount   int      `json:"working_count"`
	SuccessRate    float64  `json:"success_rate"`
	WorkingProxies []Result `json:"working_proxies"`
	FailedProxies  []Result `json:"failed_proxies"`
}

func NewReport(tested int, working, failed []Result, at time.Time) Report {
	working = slices.Clone(working)
	SortByLatency(working)

	rate := 0.0
	if tested > 0 {
		rate = float64(len(working)) / float64(tested) * 100
	}
	if working == nil {
		working = []Result{}
	}
	if failed == nil {
		failed = []Result{}
	}
	return Report{
		Timestamp:      at.Format("20060102_150405"),
		TotalTested:    tested,
		WorkingCount:   len(working),
		SuccessRate:    math.Round(rate*100) / 100,
		WorkingProxies: working,
		FailedProxies:  failed,
	}
}

func SortByLatency(results []Result) {
	slices.SortStableFunc(results, func(a, b Result) int {
		switch {
		case a.Timings.Total < b.Timings.Total:
			return -1
		case a.Timings.Total > b.Timings.Total:
			return 1
		default:
			return 0
		}
	})
}

// Load reads the detailed report first and falls back to the plain list when
// the report is missing, unreadable or has no working proxies. Missing files
// are not an error: the pool simply starts empty.
func Load(detailedPath, plainPath string) ([]proxypool.Seed, error) {
	if detailedPath != "" {
		seeds, err := LoadDetailed(detailedPath)
		switch {
		case err != nil:
			log.Warn("Proxy list: detailed report unusable, falling back to plain list", "path", detailedPath, "error", err)
		case len(seeds) > 0:
			return seeds, nil
		}
	}

	if plainPath == "" {
		return nil, nil
	}
	addresses, err := LoadPlain(plainPath)
	if err != nil {
		return nil, err
	}
	seeds := make([]proxypool.Seed, 0, len(addresses))
	for _, address := range addresses {
		seeds = append(seeds, proxypool.Seed{Address: address})
	}
	return seeds, nil
}

// LoadDetailed returns the working proxies of a report, fastest first.
func LoadDetailed(path string) ([]proxypool.Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("proxylist: read %s: %w", path, err)
	}

	var report Report
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidProxyFile, path, err)
	}

	working := make([]Result, 0, len(report.WorkingProxies))
	for _, result := range report.WorkingProxies {
		if strings.TrimSpace(result.Proxy) == "" {
			continue
		}
		working = append(working, result)
	}
	SortByLatency(working)

	seeds := make([]proxypool.Seed, 0, len(working))
	for _, result := range working {
		seeds = append(seeds, proxypool.Seed{
			Address: strings.TrimSpace(result.Proxy),
			Latency: time.Duration(result.Timings.Total * float64(time.Second)),
		})
	}
	return seeds, nil
}

// LoadPlain reads one proxy per line. Blank lines and lines starting with '#'
// are skipped; duplicates keep their first position.
func LoadPlain(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("proxylist: read %s: %w", path, err)
	}

	seen := make(map[string]struct{})
	var out []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if _, dup := seen[line]; dup {
			continue
		}
		seen[line] = struct{}{}
		out = append(out, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("proxylist: scan %s: %w", path, err)
	}
	return out, nil
}

// CollectAddresses merges every proxy named in the given plain lists and
// detailed reports, working or failed, without duplicates.
func CollectAddresses(plainPaths, detailedPaths []string) ([]string, error) {
	seen := make(map[string]struct{})
	var out []string
	add := func(address string) {
		address = strings.TrimSpace(address)
		if address == "" {
			return
		}
		if _, dup := seen[address]; dup {
			return
		}
		seen[address] = struct{}{}
		out = append(out, address)
	}

	for _, path := range plainPaths {
		addresses, err := LoadPlain(path)
		if err != nil {
			return nil, err
		}
		for _, address := range addresses {
			add(address)
		}
	}

	for _, path := range detailedPaths {
		data, err := os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("proxylist: read %s: %w", path, err)
		}
		var report Report
		if err := json.Unmarshal(data, &report); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidProxyFile, path, err)
		}
		for _, result := range report.WorkingProxies {
			add(result.Proxy)
		}
		for _, result := range report.FailedProxies {
			add(result.Proxy)
		}
	}

	return out, nil
}

func WritePlain(path string, results []Result) error {
	var buf bytes.Buffer
	for _, result := range results {
		buf.WriteString(result.Proxy)
		buf.WriteByte('\n')
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("proxylist: write %s: %w", path, err)
	}
	return nil
}

func WriteDetailed(path string, report Report) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("proxylist: write %s: %w", path, err)
	}
	return nil
}
