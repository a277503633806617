package proxypool

import "time"

// Rotator picks proxies out of a HealthStore. The round-robin cursor is
// guarded by the store's mutex, so one store may back several rotators.
type Rotator struct {
	store  *HealthStore
	cursor int
}

func NewRotator(store *HealthStore) *Rotator {
	return &Rotator{store: store}
}

// Select returns the proxy to use next, or false when the pool is empty.
// Preference order: fast proxies, round-robin over the whole pool, the
// blacklisted proxy that failed longest ago, and finally the first proxy.
// The chosen proxy counts as used at now.
func (r *Rotator) Select(now time.Time) (string, bool) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	s.expireLocked(now)

	if len(s.order) == 0 {
		return "", false
	}

	for _, proxy := range s.fast {
		if s.eligibleLocked(proxy, now) {
			return r.take(proxy, now), true
		}
	}

	for range len(s.order) {
		if r.cursor >= len(s.order) {
			r.cursor = 0
		}
		proxy := s.order[r.cursor]
		r.cursor = (r.cursor + 1) % len(s.order)
		if s.eligibleLocked(proxy, now) {
			return r.take(proxy, now), true
		}
	}

	if s.blacklist.Cardinality() > 0 {
		var (
			oldest   string
			oldestAt time.Time
			found    bool
		)
		for _, proxy := range s.order {
			if !s.blacklist.Contains(proxy) {
				continue
			}
			failedAt := s.records[proxy].lastFailureAt
			if !found || failedAt.Before(oldestAt) {
				oldest, oldestAt, found = proxy, failedAt, true
			}
		}
		if found {
			return r.take(oldest, now), true
		}
	}

	return r.take(s.order[0], now), true
}

func (r *Rotator) take(proxy string, now time.Time) string {
	r.store.records[proxy].lastUsedAt = now
	return proxy
}
