package dispatch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"railwatch/internal/proxypool"
	"railwatch/internal/support"
)

type fakeTransport struct {
	mu       sync.Mutex
	handlers map[string]func(ctx context.Context, req *Request) (*Response, error)
	calls    []string
	headers  []http.Header
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{handlers: make(map[string]func(context.Context, *Request) (*Response, error))}
}

func (f *fakeTransport) on(proxy string, handler func(ctx context.Context, req *Request) (*Response, error)) {
	f.handlers[proxy] = handler
}

func (f *fakeTransport) RoundTrip(ctx context.Context, req *Request, proxy string) (*Response, error) {
	f.mu.Lock()
	f.calls = append(f.calls, proxy)
	f.headers = append(f.headers, req.Header.Clone())
	handler := f.handlers[proxy]
	f.mu.Unlock()
	if handler == nil {
		return nil, fmt.Errorf("dial %s: connection refused", proxy)
	}
	return handler(ctx, req)
}

func (f *fakeTransport) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func respond(status int, body string) func(context.Context, *Request) (*Response, error) {
	return func(context.Context, *Request) (*Response, error) {
		return &Response{StatusCode: status, Body: []byte(body), Elapsed: 300 * time.Millisecond}, nil
	}
}

func refuse(context.Context, *Request) (*Response, error) {
	return nil, &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
}

type harness struct {
	store     *proxypool.HealthStore
	clock     *proxypool.ManualClock
	transport *fakeTransport
	sleeps    []time.Duration
	dispatch  *Dispatcher
}

func newHarness(t *testing.T, proxies []string, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		clock:     proxypool.NewManualClock(time.Date(2026, time.March, 1, 8, 0, 0, 0, time.UTC)),
		transport: newFakeTransport(),
	}
	seeds := make([]proxypool.Seed, 0, len(proxies))
	for _, p := range proxies {
		seeds = append(seeds, proxypool.Seed{Address: p})
	}
	h.store = proxypool.NewHealthStore(seeds, proxypool.WithClock(h.clock), proxypool.WithShuffle(proxypool.NoShuffle))

	sleep := func(_ context.Context, d time.Duration) error {
		h.sleeps = append(h.sleeps, d)
		h.clock.Advance(d)
		return nil
	}
	base := []Option{WithClock(h.clock), WithSleep(sleep)}
	h.dispatch = NewForPool(h.store, h.transport, append(base, opts...)...)
	return h
}

func permutations(items []string) [][]string {
	if len(items) <= 1 {
		return [][]string{append([]string(nil), items...)}
	}
	var out [][]string
	for i := range items {
		rest := make([]string, 0, len(items)-1)
		rest = append(rest, items[:i]...)
		rest = append(rest, items[i+1:]...)
		for _, perm := range permutations(rest) {
			out = append(out, append([]string{items[i]}, perm...))
		}
	}
	return out
}

func TestFetch_FindsWorkingProxyInAnyRotationOrder(t *testing.T) {
	for _, order := range permutations([]string{"A:1", "B:2", "C:3"}) {
		h := newHarness(t, order)
		h.transport.on("A:1", respond(http.StatusOK, "ok"))
		h.transport.on("B:2", refuse)
		h.transport.on("C:3", refuse)

		resp, err := h.dispatch.Fetch(context.Background(), &Request{URL: "https://example.test/", MaxAttempts: 3})
		if err != nil {
			t.Fatalf("order %v: Fetch returned error: %v", order, err)
		}
		if string(resp.Body) != "ok" {
			t.Fatalf("order %v: body = %q, want ok", order, resp.Body)
		}
	}
}

func TestFetch_TwoAttemptBudgetReachesWorkingProxyAcrossCalls(t *testing.T) {
	for _, order := range permutations([]string{"A:1", "B:2", "C:3"}) {
		h := newHarness(t, order)
		h.transport.on("A:1", respond(http.StatusOK, "ok"))

		resp, err := h.dispatch.Fetch(context.Background(), &Request{URL: "https://example.test/"})
		aFirstOrSecond := order[0] == "A:1" || order[1] == "A:1"
		if aFirstOrSecond {
			if err != nil || string(resp.Body) != "ok" {
				t.Fatalf("order %v: first fetch = %v, %v; want ok", order, resp, err)
			}
			continue
		}

		var failure *Failure
		if !errors.As(err, &failure) || failure.Attempts != 2 || !errors.Is(err, ErrUpstreamConnection) {
			t.Fatalf("order %v: first fetch error = %v, want connection failure after 2 attempts", order, err)
		}
		resp, err = h.dispatch.Fetch(context.Background(), &Request{URL: "https://example.test/"})
		if err != nil || string(resp.Body) != "ok" {
			t.Fatalf("order %v: second fetch = %v, %v; want ok", order, resp, err)
		}
	}
}

func TestFetch_SingleFailingProxyExhaustsAttempts(t *testing.T) {
	h := newHarness(t, []string{"A:1"})
	h.transport.on("A:1", respond(http.StatusInternalServerError, "boom"))

	resp, err := h.dispatch.Fetch(context.Background(), &Request{URL: "https://example.test/"})
	if resp != nil {
		t.Fatalf("expected no response, got %+v", resp)
	}

	failure, ok := AsFailure(err)
	if !ok {
		t.Fatalf("error %v is not a *Failure", err)
	}
	if failure.Attempts != 2 || failure.Reason != ReasonStatus || failure.LastStatus != http.StatusInternalServerError {
		t.Fatalf("unexpected failure: %+v", failure)
	}
	if !errors.Is(err, ErrUpstreamStatus) {
		t.Fatal("failure should match ErrUpstreamStatus")
	}
	if got := h.transport.callCount(); got != 2 {
		t.Fatalf("transport called %d times, want 2", got)
	}
	if len(h.sleeps) != 1 || h.sleeps[0] != DefaultBackoff {
		t.Fatalf("sleeps = %v, want one pause of %v", h.sleeps, DefaultBackoff)
	}

	health, _ := h.store.Get("A:1")
	if health.FailureCount != 2 {
		t.Fatalf("failure count = %d, want 2", health.FailureCount)
	}
}

func TestFetch_EmptyPoolFailsImmediately(t *testing.T) {
	h := newHarness(t, nil)

	_, err := h.dispatch.Fetch(context.Background(), &Request{URL: "https://example.test/"})
	if !errors.Is(err, ErrNoProxyAvailable) {
		t.Fatalf("error = %v, want ErrNoProxyAvailable", err)
	}
	if got := h.transport.callCount(); got != 0 {
		t.Fatalf("transport called %d times, want 0", got)
	}
	if len(h.sleeps) != 0 {
		t.Fatalf("dispatcher slept %v with an empty pool", h.sleeps)
	}
}

func TestFetch_NotFoundCountsAsSuccess(t *testing.T) {
	h := newHarness(t, []string{"A:1", "B:2"})
	h.transport.on("A:1", respond(http.StatusNotFound, "missing"))

	resp, err := h.dispatch.Fetch(context.Background(), &Request{URL: "https://example.test/train/00000"})
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	if got := h.transport.callCount(); got != 1 {
		t.Fatalf("transport called %d times, want 1", got)
	}

	health, _ := h.store.Get("A:1")
	if health.SuccessCount != 1 || health.FailureCount != 0 {
		t.Fatalf("unexpected health after 404: %+v", health)
	}
}

func TestFetch_RecordsMeasuredLatency(t *testing.T) {
	h := newHarness(t, []string{"A:1"})
	h.transport.on("A:1", respond(http.StatusOK, "ok"))

	if _, err := h.dispatch.Fetch(context.Background(), &Request{URL: "https://example.test/"}); err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}

	health, _ := h.store.Get("A:1")
	if health.AverageResponse != 300*time.Millisecond || !health.Fast {
		t.Fatalf("latency not recorded: %+v", health)
	}
}

func TestFetch_ClassifiesTimeouts(t *testing.T) {
	h := newHarness(t, []string{"A:1"}, WithConfig(Config{MaxAttempts: 1, Timeout: 20 * time.Millisecond}))
	h.transport.on("A:1", func(ctx context.Context, _ *Request) (*Response, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	_, err := h.dispatch.Fetch(context.Background(), &Request{URL: "https://example.test/"})
	if !errors.Is(err, ErrUpstreamTimeout) {
		t.Fatalf("error = %v, want ErrUpstreamTimeout", err)
	}
	health, _ := h.store.Get("A:1")
	if health.FailureCount != 1 {
		t.Fatalf("timeout not recorded as failure: %+v", health)
	}
}

func TestFetch_CallerCancellationDoesNotPenaliseProxy(t *testing.T) {
	h := newHarness(t, []string{"A:1"})
	ctx, cancel := context.WithCancel(context.Background())
	h.transport.on("A:1", func(ctx context.Context, _ *Request) (*Response, error) {
		cancel()
		<-ctx.Done()
		return nil, ctx.Err()
	})

	_, err := h.dispatch.Fetch(ctx, &Request{URL: "https://example.test/"})
	if !errors.Is(err, ErrCanceled) || !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want cancellation", err)
	}
	health, _ := h.store.Get("A:1")
	if health.FailureCount != 0 || health.TotalFailures != 0 {
		t.Fatalf("proxy penalised for caller cancellation: %+v", health)
	}
}

func TestFetch_RejectsInvalidRequests(t *testing.T) {
	h := newHarness(t, []string{"A:1"})

	for _, req := range []*Request{nil, {URL: ""}, {URL: "not a url"}, {URL: "ftp://example.test/file"}} {
		if _, err := h.dispatch.Fetch(context.Background(), req); !errors.Is(err, ErrInvalidRequest) {
			t.Fatalf("Fetch(%+v) error = %v, want ErrInvalidRequest", req, err)
		}
	}
	if got := h.transport.callCount(); got != 0 {
		t.Fatalf("transport called %d times for invalid requests", got)
	}
}

func TestFetch_MergesHeaders(t *testing.T) {
	h := newHarness(t, []string{"A:1"})
	h.transport.on("A:1", respond(http.StatusOK, "ok"))

	_, err := h.dispatch.Fetch(context.Background(), &Request{
		URL:    "https://example.test/",
		Header: http.Header{"user-agent": {"railwatch-test"}, "X-Trace": {"abc"}},
	})
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}

	sent := h.transport.headers[0]
	if got := sent.Get("User-Agent"); got != "railwatch-test" {
		t.Fatalf("User-Agent = %q, want caller override", got)
	}
	if sent.Get("Accept") == "" || sent.Get("X-Trace") != "abc" {
		t.Fatalf("headers not merged: %v", sent)
	}
	if sent.Get("Cache-Control") != "no-cache" || sent.Get("Pragma") != "no-cache" {
		t.Fatalf("cache headers missing: %v", sent)
	}
}

func TestFetch_ConcurrentCallersShareThePool(t *testing.T) {
	proxies := []string{"A:1", "B:2", "C:3", "D:4", "E:5"}
	h := newHarness(t, proxies)
	for _, p := range proxies {
		h.transport.on(p, respond(http.StatusOK, "ok"))
	}

	const callers = 25
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := h.dispatch.Fetch(context.Background(), &Request{URL: "https://example.test/"}); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent fetch failed: %v", err)
	}

	total := 0
	for _, health := range h.store.Snapshot() {
		total += health.SuccessCount
	}
	if total != callers {
		t.Fatalf("recorded %d successes, want %d", total, callers)
	}
}

func TestFetch_ThroughHTTPProxy(t *testing.T) {
	proxyServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Pragma") != "no-cache" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = io.WriteString(w, "proxied "+r.URL.Path)
	}))
	defer proxyServer.Close()

	closed, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	deadAddr := closed.Addr().String()
	_ = closed.Close()

	store := proxypool.NewHealthStore([]proxypool.Seed{
		{Address: deadAddr},
		{Address: proxyServer.Listener.Addr().String()},
	}, proxypool.WithShuffle(proxypool.NoShuffle))
	transport := NewHTTPTransport(support.TransportOptions{Timeout: 2 * time.Second})
	dispatcher := NewForPool(store, transport, WithSleep(func(context.Context, time.Duration) error { return nil }))

	resp, err := dispatcher.Fetch(context.Background(), &Request{URL: "http://upstream.invalid/train-schedule/12951"})
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if got := string(resp.Body); got != "proxied /train-schedule/12951" {
		t.Fatalf("body = %q", got)
	}

	dead, _ := store.Get(deadAddr)
	if dead.FailureCount != 1 {
		t.Fatalf("dead proxy failure count = %d, want 1", dead.FailureCount)
	}
}

func TestFetch_RejectsOversizedBodies(t *testing.T) {
	const limit = 1024
	var size atomic.Int64
	size.Store(limit)
	proxyServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(bytes.Repeat([]byte("x"), int(size.Load())))
	}))
	defer proxyServer.Close()

	proxy := proxyServer.Listener.Addr().String()
	store := proxypool.NewHealthStore([]proxypool.Seed{{Address: proxy}}, proxypool.WithShuffle(proxypool.NoShuffle))
	transport := NewHTTPTransport(support.TransportOptions{Timeout: 2 * time.Second})
	transport.maxBodyBytes = limit
	dispatcher := NewForPool(store, transport, WithSleep(func(context.Context, time.Duration) error { return nil }))

	resp, err := dispatcher.Fetch(context.Background(), &Request{URL: "http://upstream.invalid/page", MaxAttempts: 1})
	if err != nil || len(resp.Body) != limit {
		t.Fatalf("body at the limit: err = %v", err)
	}

	size.Store(limit + 512)
	_, err = dispatcher.Fetch(context.Background(), &Request{URL: "http://upstream.invalid/page", MaxAttempts: 1})
	if !errors.Is(err, ErrResponseTooLarge) {
		t.Fatalf("err = %v, want ErrResponseTooLarge", err)
	}
	failure, ok := AsFailure(err)
	if !ok || failure.Reason != ReasonConnection {
		t.Fatalf("failure = %+v", failure)
	}
	if health, _ := store.Get(proxy); health.FailureCount != 1 || health.SuccessCount != 1 {
		t.Fatalf("health = %+v, want one success and one failure", health)
	}
}

func TestFetch_NilResponseIsConnectionFailure(t *testing.T) {
	h := newHarness(t, []string{"A:1", "B:2"})
	h.transport.on("A:1", func(context.Context, *Request) (*Response, error) { return nil, nil })
	h.transport.on("B:2", respond(http.StatusOK, "ok"))

	resp, err := h.dispatch.Fetch(context.Background(), &Request{URL: "https://www.confirmtkt.com/x"})
	if err != nil || string(resp.Body) != "ok" {
		t.Fatalf("Fetch = %v, %v", resp, err)
	}
	if health, _ := h.store.Get("A:1"); health.FailureCount != 1 {
		t.Fatalf("A health = %+v, want one failure", health)
	}
}

func TestFetch_MalformedRequestDoesNotPenaliseProxy(t *testing.T) {
	proxy := "127.0.0.1:1"
	store := proxypool.NewHealthStore([]proxypool.Seed{{Address: proxy}, {Address: "127.0.0.1:2"}}, proxypool.WithShuffle(proxypool.NoShuffle))
	transport := NewHTTPTransport(support.TransportOptions{Timeout: time.Second})
	dispatcher := NewForPool(store, transport, WithSleep(func(context.Context, time.Duration) error { return nil }))

	_, err := dispatcher.Fetch(context.Background(), &Request{Method: "BAD METHOD", URL: "http://upstream.invalid/"})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("err = %v, want ErrInvalidRequest", err)
	}
	failure, ok := AsFailure(err)
	if !ok || failure.Reason != ReasonInvalid || failure.Attempts != 1 {
		t.Fatalf("failure = %+v", failure)
	}
	for _, health := range store.Snapshot() {
		if health.FailureCount != 0 {
			t.Fatalf("%s penalised for a malformed request: %+v", health.Proxy, health)
		}
	}
}
