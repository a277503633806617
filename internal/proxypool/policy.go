package proxypool

import (
	"math/rand/v2"
	"time"
)

const (
	DefaultMaxFailures     = 3
	DefaultFailureTimeout  = 300 * time.Second
	DefaultFastThreshold   = 2 * time.Second
	DefaultCooldown        = time.Second
	DefaultSmoothingWeight = 0.7
)

// Policy holds the thresholds the store and rotator apply.
type Policy struct {
	MaxFailures    int
	FailureTimeout time.Duration
	FastThreshold  time.Duration
	Cooldown       time.Duration
	// SmoothingWeight is the share the previous average keeps on each update.
	SmoothingWeight float64
}

func DefaultPolicy() Policy {
	return Policy{
		MaxFailures:     DefaultMaxFailures,
		FailureTimeout:  DefaultFailureTimeout,
		FastThreshold:   DefaultFastThreshold,
		Cooldown:        DefaultCooldown,
		SmoothingWeight: DefaultSmoothingWeight,
	}
}

func (p Policy) normalized() Policy {
	def := DefaultPolicy()
	if p.MaxFailures <= 0 {
		p.MaxFailures = def.MaxFailures
	}
	if p.FailureTimeout <= 0 {
		p.FailureTimeout = def.FailureTimeout
	}
	if p.FastThreshold <= 0 {
		p.FastThreshold = def.FastThreshold
	}
	if p.Cooldown < 0 {
		p.Cooldown = def.Cooldown
	}
	if p.SmoothingWeight <= 0 || p.SmoothingWeight >= 1 {
		p.SmoothingWeight = def.SmoothingWeight
	}
	return p
}

type ShuffleFunc func(n int, swap func(i, j int))

type BlacklistHook func(proxy string, failedAt time.Time)

type Option func(*HealthStore)

func WithClock(clock Clock) Option {
	return func(s *HealthStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func WithPolicy(policy Policy) Option {
	return func(s *HealthStore) {
		s.policy = policy.normalized()
	}
}

// WithShuffle replaces the function used to randomise the initial rotation
// order. Pass a no-op to keep list order.
func WithShuffle(shuffle ShuffleFunc) Option {
	return func(s *HealthStore) {
		if shuffle != nil {
			s.shuffle = shuffle
		}
	}
}

// WithBlacklistHook registers a callback fired once each time a proxy enters
// the blacklist through RecordOutcome. It runs outside the store lock.
func WithBlacklistHook(hook BlacklistHook) Option {
	return func(s *HealthStore) {
		s.onBlacklist = hook
	}
}

func NoShuffle(int, func(i, j int)) {}

func defaultShuffle(n int, swap func(i, j int)) {
	rand.Shuffle(n, swap)
}
