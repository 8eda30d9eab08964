package violationsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/tsgsafety/osha_tracker/config"
)

// BreakerClient wraps a PageFetcher with a circuit breaker. Once the API has
// failed maxFailures times in a row, further pages are rejected locally with
// ErrCircuitOpen until the open timeout elapses. Rejected calls never reach
// the network.
type BreakerClient struct {
	next PageFetcher
	cb   *gobreaker.CircuitBreaker[[]RawViolation]
}

func NewBreakerClient(next PageFetcher, maxFailures int, openTimeout time.Duration) *BreakerClient {
	if maxFailures <= 0 {
		maxFailures = 3
	}
	if openTimeout <= 0 {
		openTimeout = 2 * time.Minute
	}
	logger := config.GetLogger()

	cb := gobreaker.NewCircuitBreaker[[]RawViolation](gobreaker.Settings{
		Name:        "dol-violation-api",
		MaxRequests: 1,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(maxFailures)
		},
		IsSuccessful: func(err error) bool {
			// Only API failures count against the breaker.
			return err == nil || !IsTransportError(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"field": "circuit_breaker",
				"name":  name,
				"from":  from.String(),
				"to":    to.String(),
			}).Warn("dol api circuit breaker state change")
		},
	})
	return &BreakerClient{next: next, cb: cb}
}

func (b *BreakerClient) FetchPage(ctx context.Context, filter Filter, limit, offset int) ([]RawViolation, error) {
	rows, err := b.cb.Execute(func() ([]RawViolation, error) {
		return b.next.FetchPage(ctx, filter, limit, offset)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %v", ErrCircuitOpen, err)
	}
	return rows, err
}

// State exposes the breaker state for status endpoints and tests.
func (b *BreakerClient) State() gobreaker.State {
	return b.cb.State()
}
