package scraper

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"railwatch/internal/cache"
	"railwatch/internal/dispatch"
)

const (
	DefaultBaseURL     = "https://www.confirmtkt.com"
	DefaultLiveTTL     = 60 * time.Second
	DefaultScheduleTTL = time.Hour
	DefaultRateLimit   = 5.0
	DefaultRateBurst   = 5
)

// Fetcher performs one upstream page request through the proxy pool.
type Fetcher interface {
	Fetch(ctx context.Context, req *dispatch.Request) (*dispatch.Response, error)
}

type Client struct {
	fetcher     Fetcher
	baseURL     string
	limiter     *rate.Limiter
	robots      *robotsGate
	cache       cache.Cache
	liveTTL     time.Duration
	scheduleTTL time.Duration
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/"); trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// WithRateLimit caps outbound page requests per second. A non-positive rate
// disables limiting.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), max(burst, 1))
	}
}

func WithRobots(enabled bool) Option {
	return func(c *Client) {
		if enabled {
			c.robots = newRobotsGate()
		} else {
			c.robots = nil
		}
	}
}

func WithCache(store cache.Cache, liveTTL, scheduleTTL time.Duration) Option {
	return func(c *Client) {
		if store != nil {
			c.cache = store
		}
		c.liveTTL = liveTTL
		c.scheduleTTL = scheduleTTL
	}
}

func New(fetcher Fetcher, opts ...Option) *Client {
	c := &Client{
		fetcher:     fetcher,
		baseURL:     DefaultBaseURL,
		limiter:     rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateBurst),
		cache:       cache.Noop{},
		liveTTL:     DefaultLiveTTL,
		scheduleTTL: DefaultScheduleTTL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) LiveStatus(ctx context.Context, trainNumber string) (*LiveStatus, error) {
	train, err := validTrainNumber(trainNumber)
	if err != nil {
		return nil, err
	}

	var cached LiveStatus
	if c.cacheGet(ctx, "live:"+train, &cached) {
		return &cached, nil
	}

	doc, err := c.fetchPage(ctx, "/train-running-status/"+train)
	if err != nil {
		return nil, err
	}
	status := parseLiveStatus(doc, train)
	if status.HasData {
		c.cacheSet(ctx, "live:"+train, status, c.liveTTL)
	}
	return &status, nil
}

func (c *Client) Schedule(ctx context.Context, trainNumber string) (*Schedule, error) {
	train, err := validTrainNumber(trainNumber)
	if err != nil {
		return nil, err
	}

	var cached Schedule
	if c.cacheGet(ctx, "schedule:"+train, &cached) {
		return &cached, nil
	}

	doc, err := c.fetchPage(ctx, "/train-schedule/"+train)
	if err != nil {
		return nil, err
	}
	schedule := parseSchedule(doc, train)
	if len(schedule.Stations) > 0 {
		c.cacheSet(ctx, "schedule:"+train, schedule, c.scheduleTTL)
	}
	return &schedule, nil
}

// PNRStatus is never cached; booking state changes between requests.
func (c *Client) PNRStatus(ctx context.Context, pnrNumber string) (*PNRStatus, error) {
	pnr, err := validPNR(pnrNumber)
	if err != nil {
		return nil, err
	}

	doc, err := c.fetchPage(ctx, "/pnr-status/"+pnr)
	if err != nil {
		return nil, err
	}
	status := parsePNRStatus(doc, pnr)
	return &status, nil
}

func (c *Client) fetchPage(ctx context.Context, path string) (*goquery.Document, error) {
	if c.robots != nil {
		if !c.robots.allowed(ctx, c, path) {
			return nil, fmt.Errorf("%w: %s", ErrDisallowedByRobots, path)
		}
	}

	resp, err := c.get(ctx, path)
	if err != nil {
		return nil, err
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	default:
		return nil, fmt.Errorf("%w: status %d for %s", ErrUpstreamUnavailable, resp.StatusCode, path)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, fmt.Errorf("%w: parse %s: %w", ErrUpstreamUnavailable, path, err)
	}
	return doc, nil
}

func (c *Client) get(ctx context.Context, path string) (*dispatch.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
		}
	}

	resp, err := c.fetcher.Fetch(ctx, &dispatch.Request{
		Method: http.MethodGet,
		URL:    c.baseURL + path,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
	}
	return resp, nil
}

func (c *Client) cacheGet(ctx context.Context, key string, dst any) bool {
	hit, err := c.cache.Get(ctx, key, dst)
	if err != nil {
		log.Warn("Response cache read failed", "key", key, "error", err)
		return false
	}
	return hit
}

func (c *Client) cacheSet(ctx context.Context, key string, value any, ttl time.Duration) {
	if err := c.cache.Set(ctx, key, value, ttl); err != nil {
		log.Warn("Response cache write failed", "key", key, "error", err)
	}
}
