package proxylist

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoad_PrefersDetailedReportSortedByLatency(t *testing.T) {
	dir := t.TempDir()
	detailed := writeFile(t, dir, "detailed.json", `{
		"working_proxies": [
			{"proxy": "10.0.0.1:80", "timings": {"total": 2.5}},
			{"proxy": "10.0.0.2:80", "timings": {"total": 0.4}},
			{"proxy": "", "timings": {"total": 0.1}}
		]
	}`)
	plain := writeFile(t, dir, "plain.txt", "10.9.9.9:80\n")

	seeds, err := Load(detailed, plain)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if len(seeds) != 2 {
		t.Fatalf("loaded %d seeds, want 2: %+v", len(seeds), seeds)
	}
	if seeds[0].Address != "10.0.0.2:80" || seeds[0].Latency != 400*time.Millisecond {
		t.Fatalf("first seed = %+v, want 10.0.0.2:80 at 400ms", seeds[0])
	}
	if seeds[1].Latency != 2500*time.Millisecond {
		t.Fatalf("second seed latency = %v, want 2.5s", seeds[1].Latency)
	}
}

func TestLoad_FallsBackToPlainList(t *testing.T) {
	dir := t.TempDir()
	broken := writeFile(t, dir, "detailed.json", `{not json`)
	plain := writeFile(t, dir, "plain.txt", "# comment\n10.0.0.1:80\n\n10.0.0.2:80\n10.0.0.1:80\n")

	seeds, err := Load(broken, plain)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	var addresses []string
	for _, seed := range seeds {
		if seed.Latency != 0 {
			t.Fatalf("plain seed %s carries latency %v", seed.Address, seed.Latency)
		}
		addresses = append(addresses, seed.Address)
	}
	if want := []string{"10.0.0.1:80", "10.0.0.2:80"}; !slices.Equal(addresses, want) {
		t.Fatalf("addresses = %v, want %v", addresses, want)
	}
}

func TestLoad_MissingFilesYieldEmptyPool(t *testing.T) {
	dir := t.TempDir()
	seeds, err := Load(filepath.Join(dir, "nope.json"), filepath.Join(dir, "nope.txt"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if len(seeds) != 0 {
		t.Fatalf("expected empty pool, got %+v", seeds)
	}
}

func TestLoadDetailed_RejectsMalformedJSON(t *testing.T) {
	path := writeFile(t, t.TempDir(), "detailed.json", `[1,2`)
	if _, err := LoadDetailed(path); !errors.Is(err, ErrInvalidProxyFile) {
		t.Fatalf("error = %v, want ErrInvalidProxyFile", err)
	}
}

func TestWriteDetailed_RoundTripsThroughLoader(t *testing.T) {
	dir := t.TempDir()
	working := []Result{
		{Proxy: "10.0.0.3:80", Status: StatusWorking, Timings: Timings{Connect: 1.2, Total: 1.2}},
		{Proxy: "10.0.0.4:80", Status: StatusWorking, Timings: Timings{Connect: 0.3, Total: 0.3}},
	}
	failed := []Result{{Proxy: "10.0.0.5:80", Status: StatusFailed, Error: "Timeout"}}
	report := NewReport(3, working, failed, time.Date(2026, time.March, 1, 9, 30, 0, 0, time.UTC))

	if report.WorkingCount != 2 || report.SuccessRate != 66.67 || report.Timestamp != "20260301_093000" {
		t.Fatalf("unexpected report header: %+v", report)
	}

	detailed := filepath.Join(dir, "detailed.json")
	plain := filepath.Join(dir, "plain.txt")
	if err := WriteDetailed(detailed, report); err != nil {
		t.Fatalf("WriteDetailed: %v", err)
	}
	if err := WritePlain(plain, report.WorkingProxies); err != nil {
		t.Fatalf("WritePlain: %v", err)
	}

	seeds, err := LoadDetailed(detailed)
	if err != nil || len(seeds) != 2 || seeds[0].Address != "10.0.0.4:80" {
		t.Fatalf("LoadDetailed = %+v, %v", seeds, err)
	}
	addresses, err := LoadPlain(plain)
	if err != nil || !slices.Equal(addresses, []string{"10.0.0.4:80", "10.0.0.3:80"}) {
		t.Fatalf("LoadPlain = %v, %v", addresses, err)
	}

	all, err := CollectAddresses([]string{plain}, []string{detailed, filepath.Join(dir, "missing.json")})
	if err != nil {
		t.Fatalf("CollectAddresses: %v", err)
	}
	if want := []string{"10.0.0.4:80", "10.0.0.3:80", "10.0.0.5:80"}; !slices.Equal(all, want) {
		t.Fatalf("CollectAddresses = %v, want %v", all, want)
	}
}
