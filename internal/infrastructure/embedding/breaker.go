package embedding

import (
	"errors"
	"log/slog"

	"github.com/sony/gobreaker"

	"MindMapService/internal/config"
)

// ErrBackendUnavailable is returned while the breaker is open.
var ErrBackendUnavailable = errors.New("embedding backend temporarily unavailable")

// Breaker stops hammering a remote backend that keeps failing. It never retries.
// A nil *Breaker runs calls directly.
type Breaker struct {
	cb *gobreaker.CircuitBreaker
}

// NewBreaker builds a breaker named after the backend it guards.
func NewBreaker(name string, cfg config.BreakerConfig, log *slog.Logger) *Breaker {
	minRequests := cfg.MinRequests
	threshold := cfg.FailureThreshold
	return &Breaker{cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < minRequests || threshold <= 0 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if log != nil {
				log.Warn("embedding breaker state changed", "backend", name, "from", from.String(), "to", to.String())
			}
		},
	})}
}

// Execute runs fn through the breaker.
func (b *Breaker) Execute(fn func() ([][]float64, error)) ([][]float64, error) {
	if b == nil || b.cb == nil {
		return fn()
	}
	out, err := b.cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, errors.Join(ErrBackendUnavailable, err)
	}
	if err != nil {
		return nil, err
	}
	vectors, _ := out.([][]float64)
	return vectors, nil
}
