package blobstore

import (
	"context"
	"math"
	"time"

	"github.com/sony/gobreaker"

	"github.com/coursedeck/backend/internal/models"
)

const (
	defaultMaxAttempts = 3
	defaultBaseBackoff = 100 * time.Millisecond
	defaultMaxBackoff  = 2 * time.Second
)

// ResilientStore decorates a Store with bounded retry and a circuit breaker.
// Calls stay serial within a request; the breaker opens on sustained failure
// so a degraded blob store fails fast instead of stalling every handler.
type ResilientStore struct {
	inner       Store
	breaker     *gobreaker.CircuitBreaker
	maxAttempts int
	baseBackoff time.Duration
	maxBackoff  time.Duration
}

// NewResilientStore wraps inner with retry and breaker policies.
func NewResilientStore(inner Store) *ResilientStore {
	if inner == nil {
		panic("blobstore: inner store must not be nil")
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "blobstore",
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
	})

	return &ResilientStore{
		inner:       inner,
		breaker:     cb,
		maxAttempts: defaultMaxAttempts,
		baseBackoff: defaultBaseBackoff,
		maxBackoff:  defaultMaxBackoff,
	}
}

// WithRetryPolicy overrides the retry knobs. Useful for tests.
func (s *ResilientStore) WithRetryPolicy(maxAttempts int, baseBackoff, maxBackoff time.Duration) *ResilientStore {
	if maxAttempts > 0 {
		s.maxAttempts = maxAttempts
	}
	if baseBackoff > 0 {
		s.baseBackoff = baseBackoff
	}
	if maxBackoff > 0 {
		s.maxBackoff = maxBackoff
	}
	return s
}

// Upload delegates to the inner store under the retry and breaker policies.
func (s *ResilientStore) Upload(ctx context.Context, localPath string, kind Kind) (models.Blob, error) {
	var blob models.Blob
	err := s.execute(ctx, func() error {
		var err error
		blob, err = s.inner.Upload(ctx, localPath, kind)
		return err
	})
	if err != nil {
		return models.Blob{}, err
	}
	return blob, nil
}

// Delete delegates to the inner store under the retry and breaker policies.
func (s *ResilientStore) Delete(ctx context.Context, publicID string, kind Kind) error {
	return s.execute(ctx, func() error {
		return s.inner.Delete(ctx, publicID, kind)
	})
}

func (s *ResilientStore) execute(ctx context.Context, op func() error) error {
	var lastErr error
	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * s.baseBackoff
			if backoff > s.maxBackoff {
				backoff = s.maxBackoff
			}
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
			timer.Stop()
		}

		_, err := s.breaker.Execute(func() (any, error) {
			return nil, op()
		})
		if err == nil {
			return nil
		}
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return ErrUnavailable
		}

		lastErr = err
	}

	return lastErr
}

var _ Store = (*ResilientStore)(nil)
