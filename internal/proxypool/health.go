package proxypool

import (
	"slices"
	"strings"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
)

// Seed is one entry of the startup proxy list. Latency is zero when the list
// carried no measurement for the proxy.
type Seed struct {
	Address string
	Latency time.Duration
}

// Health is a point-in-time copy of one proxy's record.
type Health struct {
	Proxy           string
	SuccessCount    int
	FailureCount    int
	TotalFailures   int
	LastSuccessAt   time.Time
	LastFailureAt   time.Time
	LastUsedAt      time.Time
	AverageResponse time.Duration
	Measured        bool
	Fast            bool
	Blacklisted     bool
}

type PoolStats struct {
	Total       int
	Fast        int
	Blacklisted int
}

type record struct {
	successCount  int
	failureCount  int
	totalFailures int
	lastSuccessAt time.Time
	lastFailureAt time.Time
	lastUsedAt    time.Time
	average       time.Duration
	measured      bool
}

// HealthStore owns the statistics of a fixed proxy pool. All reads and writes
// go through mu; the rotator cursor lives under the same lock.
type HealthStore struct {
	mu          sync.Mutex
	policy      Policy
	clock       Clock
	shuffle     ShuffleFunc
	onBlacklist BlacklistHook

	order     []string
	records   map[string]*record
	fast      []string
	blacklist mapset.Set[string]
}

func NewHealthStore(seeds []Seed, opts ...Option) *HealthStore {
	s := &HealthStore{
		policy:    DefaultPolicy(),
		clock:     SystemClock,
		shuffle:   defaultShuffle,
		records:   make(map[string]*record, len(seeds)),
		blacklist: mapset.NewThreadUnsafeSet[string](),
	}
	for _, opt := range opts {
		opt(s)
	}

	fastSeeds := make([]Seed, 0, len(seeds))
	for _, seed := range seeds {
		address := strings.TrimSpace(seed.Address)
		if address == "" {
			continue
		}
		if _, exists := s.records[address]; exists {
			continue
		}

		rec := &record{}
		if seed.Latency > 0 {
			rec.average = seed.Latency
			rec.measured = true
			if seed.Latency < s.policy.FastThreshold {
				fastSeeds = append(fastSeeds, Seed{Address: address, Latency: seed.Latency})
			}
		}
		s.records[address] = rec
		s.order = append(s.order, address)
	}

	slices.SortStableFunc(fastSeeds, func(a, b Seed) int {
		return compareDurations(a.Latency, b.Latency)
	})
	for _, seed := range fastSeeds {
		s.fast = append(s.fast, seed.Address)
	}

	s.shuffle(len(s.order), func(i, j int) {
		s.order[i], s.order[j] = s.order[j], s.order[i]
	})

	return s
}

func (s *HealthStore) Policy() Policy {
	return s.policy
}

func (s *HealthStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

// RecordOutcome applies the result of one request made through proxy. A
// latency of zero or less means no measurement is available. Proxies that are
// not part of the pool are ignored.
func (s *HealthStore) RecordOutcome(proxy string, success bool, latency time.Duration) {
	s.mu.Lock()
	now := s.clock.Now()
	rec, ok := s.records[proxy]
	if !ok {
		s.mu.Unlock()
		return
	}

	newlyBlacklisted := false
	if success {
		rec.successCount++
		rec.lastSuccessAt = now
		rec.failureCount = 0
		if latency > 0 {
			s.observeLatencyLocked(proxy, rec, latency)
		}
		s.blacklist.Remove(proxy)
	} else {
		rec.failureCount++
		rec.totalFailures++
		rec.lastFailureAt = now
		if rec.failureCount >= s.policy.MaxFailures && !s.blacklist.Contains(proxy) {
			s.blacklist.Add(proxy)
			s.removeFastLocked(proxy)
			newlyBlacklisted = true
		}
	}
	rec.lastUsedAt = now
	hook := s.onBlacklist
	s.mu.Unlock()

	if newlyBlacklisted && hook != nil {
		hook(proxy, now)
	}
}

func (s *HealthStore) observeLatencyLocked(proxy string, rec *record, latency time.Duration) {
	if rec.measured {
		weight := s.policy.SmoothingWeight
		rec.average = time.Duration(weight*float64(rec.average) + (1-weight)*float64(latency))
	} else {
		rec.average = latency
		rec.measured = true
	}

	if rec.average < s.policy.FastThreshold {
		if !slices.Contains(s.fast, proxy) {
			s.fast = append(s.fast, proxy)
		}
		return
	}
	s.removeFastLocked(proxy)
}

func (s *HealthStore) removeFastLocked(proxy string) {
	if idx := slices.Index(s.fast, proxy); idx >= 0 {
		s.fast = slices.Delete(s.fast, idx, idx+1)
	}
}

// ExpireStaleBlacklist lifts every blacklist entry whose last failure is older
// than the failure timeout and returns how many were lifted.
func (s *HealthStore) ExpireStaleBlacklist(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expireLocked(now)
}

func (s *HealthStore) expireLocked(now time.Time) int {
	if s.blacklist.Cardinality() == 0 {
		return 0
	}

	expired := 0
	for _, proxy := range s.blacklist.ToSlice() {
		rec := s.records[proxy]
		if rec == nil {
			s.blacklist.Remove(proxy)
			continue
		}
		if now.Sub(rec.lastFailureAt) > s.policy.FailureTimeout {
			s.blacklist.Remove(proxy)
			rec.failureCount = 0
			expired++
		}
	}
	return expired
}

// MarkBlacklisted puts proxy on the blacklist as if it had just reached the
// failure threshold at failedAt. The blacklist hook is not fired. It reports
// whether proxy belongs to the pool.
func (s *HealthStore) MarkBlacklisted(proxy string, failedAt time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[proxy]
	if !ok {
		return false
	}
	if rec.failureCount < s.policy.MaxFailures {
		rec.failureCount = s.policy.MaxFailures
	}
	if failedAt.After(rec.lastFailureAt) {
		rec.lastFailureAt = failedAt
	}
	s.blacklist.Add(proxy)
	s.removeFastLocked(proxy)
	return true
}

// Reset clears the counters of proxy and lifts it off the blacklist. The
// latency average is kept.
func (s *HealthStore) Reset(proxy string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[proxy]
	if !ok {
		return false
	}
	rec.successCount = 0
	rec.failureCount = 0
	rec.totalFailures = 0
	rec.lastSuccessAt = time.Time{}
	rec.lastFailureAt = time.Time{}
	s.blacklist.Remove(proxy)
	if rec.measured && rec.average < s.policy.FastThreshold && !slices.Contains(s.fast, proxy) {
		s.fast = append(s.fast, proxy)
	}
	return true
}

// Restore overwrites the records of known proxies with previously persisted
// values. Unknown proxies are skipped. Fast and blacklist membership are
// rebuilt from the restored values.
func (s *HealthStore) Restore(entries []Health) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	restored := 0
	for _, entry := range entries {
		rec, ok := s.records[entry.Proxy]
		if !ok {
			continue
		}
		rec.successCount = max(entry.SuccessCount, 0)
		rec.failureCount = max(entry.FailureCount, 0)
		rec.totalFailures = max(entry.TotalFailures, rec.failureCount)
		rec.lastSuccessAt = entry.LastSuccessAt
		rec.lastFailureAt = entry.LastFailureAt
		rec.lastUsedAt = entry.LastUsedAt
		if entry.Measured && entry.AverageResponse > 0 {
			rec.average = entry.AverageResponse
			rec.measured = true
		}
		restored++
	}
	if restored == 0 {
		return 0
	}

	s.blacklist.Clear()
	fast := make([]string, 0, len(s.order))
	for _, proxy := range s.order {
		rec := s.records[proxy]
		if rec.failureCount >= s.policy.MaxFailures {
			s.blacklist.Add(proxy)
			continue
		}
		if rec.measured && rec.average < s.policy.FastThreshold {
			fast = append(fast, proxy)
		}
	}
	slices.SortStableFunc(fast, func(a, b string) int {
		return compareDurations(s.records[a].average, s.records[b].average)
	})
	s.fast = fast
	return restored
}

// Snapshot returns a copy of every record in rotation order.
func (s *HealthStore) Snapshot() []Health {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Health, 0, len(s.order))
	for _, proxy := range s.order {
		out = append(out, s.healthLocked(proxy))
	}
	return out
}

func (s *HealthStore) Get(proxy string) (Health, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[proxy]; !ok {
		return Health{}, false
	}
	return s.healthLocked(proxy), true
}

func (s *HealthStore) Stats() PoolStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return PoolStats{
		Total:       len(s.order),
		Fast:        len(s.fast),
		Blacklisted: s.blacklist.Cardinality(),
	}
}

// FastProxies returns the fast subset in selection order.
func (s *HealthStore) FastProxies() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.fast)
}

func (s *HealthStore) healthLocked(proxy string) Health {
	rec := s.records[proxy]
	return Health{
		Proxy:           proxy,
		SuccessCount:    rec.successCount,
		FailureCount:    rec.failureCount,
		TotalFailures:   rec.totalFailures,
		LastSuccessAt:   rec.lastSuccessAt,
		LastFailureAt:   rec.lastFailureAt,
		LastUsedAt:      rec.lastUsedAt,
		AverageResponse: rec.average,
		Measured:        rec.measured,
		Fast:            slices.Contains(s.fast, proxy),
		Blacklisted:     s.blacklist.Contains(proxy),
	}
}

func (s *HealthStore) eligibleLocked(proxy string, now time.Time) bool {
	if s.blacklist.Contains(proxy) {
		return false
	}
	return now.Sub(s.records[proxy].lastUsedAt) > s.policy.Cooldown
}

func compareDurations(a, b time.Duration) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
