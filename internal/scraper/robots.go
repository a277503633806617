package scraper

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/temoto/robotstxt"
	"golang.org/x/sync/singleflight"
)

const (
	robotsUserAgent  = "railwatch"
	robotsRefreshTTL = time.Hour
	// robotsRetryTTL throttles refetches after robots.txt could not be read.
	robotsRetryTTL = 5 * time.Minute
)

// robotsGate caches the upstream robots.txt. While no copy is available every
// path is allowed.
type robotsGate struct {
	mu        sync.Mutex
	data      *robotstxt.RobotsData
	expiresAt time.Time
	now       func() time.Time
	fetches   singleflight.Group
}

func newRobotsGate() *robotsGate {
	return &robotsGate{now: time.Now}
}

func (g *robotsGate) allowed(ctx context.Context, c *Client, path string) bool {
	data := g.current(ctx, c)
	if data == nil {
		return true
	}
	return data.TestAgent(path, robotsUserAgent)
}

// current returns the cached copy, refreshing it once it expired. Concurrent
// callers share one fetch and the lock is not held while it runs.
func (g *robotsGate) current(ctx context.Context, c *Client) *robotstxt.RobotsData {
	if data, fresh := g.cached(); fresh {
		return data
	}

	result, _, _ := g.fetches.Do("robots.txt", func() (any, error) {
		// another caller may have refreshed the copy since the check above
		if data, fresh := g.cached(); fresh {
			return data, nil
		}
		data, err := fetchRobots(ctx, c)

		g.mu.Lock()
		defer g.mu.Unlock()
		if err != nil {
			log.Warn("robots.txt unavailable, allowing requests", "retry_in", robotsRetryTTL, "error", err)
			g.expiresAt = g.now().Add(robotsRetryTTL)
			return g.data, nil
		}
		g.data = data
		g.expiresAt = g.now().Add(robotsRefreshTTL)
		return data, nil
	})

	data, _ := result.(*robotstxt.RobotsData)
	return data
}

func (g *robotsGate) cached() (*robotstxt.RobotsData, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.expiresAt.IsZero() || !g.now().Before(g.expiresAt) {
		return nil, false
	}
	return g.data, true
}

func fetchRobots(ctx context.Context, c *Client) (*robotstxt.RobotsData, error) {
	resp, err := c.get(ctx, "/robots.txt")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNotFound {
		return nil, fmt.Errorf("robots.txt returned status %d", resp.StatusCode)
	}
	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse robots.txt: %w", err)
	}
	return data, nil
}
