package routing

import (
	"math"
	"time"

	"github.com/vietddude/triage/internal/core/domain"
)

// ExponentialBackoff describes the retry schedule handed to automated executors.
type ExponentialBackoff struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	MaxAttempts  int
}

// DefaultBackoff returns the schedule for a severity.
// 30s, 1m, 2m, 4m, 8m (max 10m); urgent errors get fewer attempts so they
// reach a human sooner.
func DefaultBackoff(sev domain.Severity) *ExponentialBackoff {
	b := &ExponentialBackoff{
		InitialDelay: 30 * time.Second,
		MaxDelay:     10 * time.Minute,
		MaxAttempts:  5,
	}
	switch sev {
	case domain.SeverityEmergency:
		b.MaxAttempts = 1
	case domain.SeverityCritical:
		b.MaxAttempts = 2
	case domain.SeverityHigh:
		b.MaxAttempts = 3
	case domain.SeverityMedium, domain.SeverityLow:
	}
	return b
}

// GetDelay calculates delay: InitialDelay * 2^attempt
func (s *ExponentialBackoff) GetDelay(attempt int) time.Duration {
	delay := float64(s.InitialDelay) * math.Pow(2, float64(attempt))
	if delay > float64(s.MaxDelay) {
		return s.MaxDelay
	}
	return time.Duration(delay)
}

// ShouldRetry reports whether another attempt is allowed.
func (s *ExponentialBackoff) ShouldRetry(attempt int) bool {
	return attempt < s.MaxAttempts
}

// Policy renders the backoff as a RetryPolicy.
func (s *ExponentialBackoff) Policy() *domain.RetryPolicy {
	schedule := make([]time.Duration, 0, s.MaxAttempts)
	for attempt := 0; s.ShouldRetry(attempt); attempt++ {
		schedule = append(schedule, s.GetDelay(attempt))
	}
	return &domain.RetryPolicy{
		MaxAttempts:  s.MaxAttempts,
		InitialDelay: s.InitialDelay,
		MaxDelay:     s.MaxDelay,
		Schedule:     schedule,
	}
}
