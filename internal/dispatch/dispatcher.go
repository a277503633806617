package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"railwatch/internal/proxypool"
)

const (
	DefaultMaxAttempts = 2
	DefaultTimeout     = 10 * time.Second
	DefaultBackoff     = time.Second
)

type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
	// MaxAttempts overrides the dispatcher default when positive.
	MaxAttempts int
}

type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Elapsed    time.Duration
}

type Selector interface {
	Select(now time.Time) (string, bool)
}

type OutcomeRecorder interface {
	RecordOutcome(proxy string, success bool, latency time.Duration)
}

// Transport performs exactly one request through proxy. It must never fall
// back to a direct connection.
type Transport interface {
	RoundTrip(ctx context.Context, req *Request, proxy string) (*Response, error)
}

type SleepFunc func(ctx context.Context, d time.Duration) error

type Config struct {
	MaxAttempts int
	Timeout     time.Duration
	Backoff     time.Duration
	Header      http.Header
}

func DefaultConfig() Config {
	return Config{
		MaxAttempts: DefaultMaxAttempts,
		Timeout:     DefaultTimeout,
		Backoff:     DefaultBackoff,
		Header:      DefaultHeader(),
	}
}

// DefaultHeader mimics a desktop browser. Accept-Encoding is left to the
// transport so gzip bodies are decoded transparently.
func DefaultHeader() http.Header {
	return http.Header{
		"User-Agent":                {"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36"},
		"Accept":                    {"text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8"},
		"Accept-Language":           {"en-US,en;q=0.5"},
		"Upgrade-Insecure-Requests": {"1"},
	}
}

type Option func(*Dispatcher)

func WithConfig(cfg Config) Option {
	return func(d *Dispatcher) {
		if cfg.MaxAttempts > 0 {
			d.config.MaxAttempts = cfg.MaxAttempts
		}
		if cfg.Timeout > 0 {
			d.config.Timeout = cfg.Timeout
		}
		if cfg.Backoff >= 0 {
			d.config.Backoff = cfg.Backoff
		}
		if cfg.Header != nil {
			d.config.Header = cfg.Header.Clone()
		}
	}
}

func WithClock(clock proxypool.Clock) Option {
	return func(d *Dispatcher) {
		if clock != nil {
			d.clock = clock
		}
	}
}

func WithSleep(sleep SleepFunc) Option {
	return func(d *Dispatcher) {
		if sleep != nil {
			d.sleep = sleep
		}
	}
}

func WithMetrics(metrics *Metrics) Option {
	return func(d *Dispatcher) {
		d.metrics = metrics
	}
}

// Dispatcher fetches URLs through the proxy pool, swapping proxies between
// attempts. It is safe for concurrent use; only the pool state is shared.
type Dispatcher struct {
	selector  Selector
	recorder  OutcomeRecorder
	transport Transport
	clock     proxypool.Clock
	sleep     SleepFunc
	metrics   *Metrics
	config    Config
}

func New(selector Selector, recorder OutcomeRecorder, transport Transport, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		selector:  selector,
		recorder:  recorder,
		transport: transport,
		clock:     proxypool.SystemClock,
		sleep:     sleepContext,
		config:    DefaultConfig(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// NewForPool wires a rotator over store as the selector and store itself as
// the outcome recorder.
func NewForPool(store *proxypool.HealthStore, transport Transport, opts ...Option) *Dispatcher {
	return New(proxypool.NewRotator(store), store, transport, opts...)
}

// Fetch returns the first 200 or 404 response any proxy produces within the
// attempt budget. Every other outcome is reported as a *Failure.
func (d *Dispatcher) Fetch(ctx context.Context, req *Request) (*Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	maxAttempts := req.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = d.config.MaxAttempts
	}
	prepared := d.prepare(req)

	var (
		last       *Failure
		lastStatus int
	)
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, d.fail(prepared, &Failure{Reason: ReasonCanceled, Attempts: attempt - 1, LastStatus: lastStatus, Err: err})
		}

		proxy, ok := d.selector.Select(d.clock.Now())
		if !ok {
			return nil, d.fail(prepared, &Failure{Reason: ReasonNoProxy, Attempts: attempt - 1, LastStatus: lastStatus})
		}

		resp, failure := d.attempt(ctx, prepared, proxy, attempt)
		if failure == nil {
			d.metrics.observeFetch("success")
			return resp, nil
		}
		if failure.LastStatus != 0 {
			lastStatus = failure.LastStatus
		}
		failure.LastStatus = lastStatus
		if failure.Reason == ReasonCanceled || failure.Reason == ReasonInvalid {
			return nil, d.fail(prepared, failure)
		}
		last = failure

		if attempt < maxAttempts {
			if err := d.sleep(ctx, d.config.Backoff); err != nil {
				return nil, d.fail(prepared, &Failure{Reason: ReasonCanceled, Attempts: attempt, LastStatus: lastStatus, Err: err})
			}
		}
	}

	return nil, d.fail(prepared, last)
}

func (d *Dispatcher) attempt(ctx context.Context, req *Request, proxy string, attempt int) (*Response, *Failure) {
	attemptCtx, cancel := context.WithTimeout(ctx, d.config.Timeout)
	defer cancel()

	start := d.clock.Now()
	resp, err := d.transport.RoundTrip(attemptCtx, req, proxy)
	if err == nil && resp == nil {
		err = fmt.Errorf("%w: transport returned no response", ErrUpstreamConnection)
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, &Failure{Reason: ReasonCanceled, Attempts: attempt, Err: ctx.Err()}
		}
		// the request itself is malformed; no proxy is to blame
		if errors.Is(err, ErrInvalidRequest) {
			return nil, &Failure{Reason: ReasonInvalid, Attempts: attempt, Err: err}
		}
		reason := classifyError(err)
		d.recorder.RecordOutcome(proxy, false, 0)
		d.metrics.observeAttempt(string(reason), 0)
		log.Debug("Upstream attempt failed", "url", req.URL, "attempt", attempt, "reason", reason, "error", err)
		return nil, &Failure{Reason: reason, Attempts: attempt, Err: err}
	}

	if resp.Elapsed <= 0 {
		resp.Elapsed = d.clock.Now().Sub(start)
	}

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNotFound:
		d.recorder.RecordOutcome(proxy, true, resp.Elapsed)
		d.metrics.observeAttempt("success", resp.Elapsed)
		return resp, nil
	default:
		d.recorder.RecordOutcome(proxy, false, 0)
		d.metrics.observeAttempt(string(ReasonStatus), 0)
		log.Debug("Upstream attempt rejected", "url", req.URL, "attempt", attempt, "status", resp.StatusCode)
		return nil, &Failure{Reason: ReasonStatus, Attempts: attempt, LastStatus: resp.StatusCode}
	}
}

func (d *Dispatcher) prepare(req *Request) *Request {
	out := *req
	if out.Method == "" {
		out.Method = http.MethodGet
	}

	header := http.Header{}
	if d.config.Header != nil {
		header = d.config.Header.Clone()
	}
	for key, values := range req.Header {
		header[http.CanonicalHeaderKey(key)] = slices.Clone(values)
	}
	header.Set("Cache-Control", "no-cache")
	header.Set("Pragma", "no-cache")
	out.Header = header
	return &out
}

func (d *Dispatcher) fail(req *Request, failure *Failure) error {
	d.metrics.observeFetch(string(failure.Reason))
	log.Warn("Upstream fetch failed", "url", req.URL, "reason", failure.Reason, "attempts", failure.Attempts, "last_status", failure.LastStatus)
	return failure
}

func validateRequest(req *Request) error {
	if req == nil || strings.TrimSpace(req.URL) == "" {
		return ErrInvalidRequest
	}
	target, err := url.ParseRequestURI(req.URL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if target.Scheme != "http" && target.Scheme != "https" {
		return fmt.Errorf("%w: unsupported scheme %q", ErrInvalidRequest, target.Scheme)
	}
	return nil
}

func classifyError(err error) Reason {
	if errors.Is(err, ErrUpstreamTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return ReasonTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ReasonTimeout
	}
	return ReasonConnection
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
