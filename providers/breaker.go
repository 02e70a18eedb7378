package providers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"card-token-bridge/bridge"

	"github.com/sony/gobreaker"
)

// BreakerSettings configures the circuit breaker around a provider.
type BreakerSettings struct {
	// MaxFailures is the number of consecutive transport or provider-side failures that
	// opens the breaker.
	MaxFailures uint32
	// OpenTimeout is how long the breaker stays open before letting a probe through.
	OpenTimeout time.Duration
}

// Breaker short-circuits calls to a provider that keeps failing on its side.
// Card rejections never count as failures.
type Breaker struct {
	next TokenProvider
	cb   *gobreaker.CircuitBreaker
}

func NewBreaker(next TokenProvider, settings BreakerSettings, logger *slog.Logger) *Breaker {
	if settings.MaxFailures == 0 {
		settings.MaxFailures = 5
	}
	if logger == nil {
		logger = slog.Default()
	}
	maxFailures := settings.MaxFailures

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        next.Name(),
		MaxRequests: 1,
		Timeout:     settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				slog.String("provider", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	})
	return &Breaker{next: next, cb: cb}
}

func (b *Breaker) Name() string {
	return b.next.Name()
}

// State reports the breaker state: "closed", "half-open" or "open".
func (b *Breaker) State() string {
	return b.cb.State().String()
}

func (b *Breaker) CreateToken(ctx context.Context, publishableKey string, req bridge.TokenRequest) bridge.Result {
	out, err := b.cb.Execute(func() (interface{}, error) {
		res := b.next.CreateToken(ctx, publishableKey, req)
		if f, ok := res.(bridge.Failure); ok && f.ProviderSide() {
			return res, f
		}
		return res, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return bridge.Failure{
			Kind:   bridge.ProviderUnavailable,
			Detail: bridge.ErrorDetail{Message: "tokenization provider temporarily unavailable"},
			Err:    fmt.Errorf("%s: %w", b.Name(), err),
		}
	}
	if res, ok := out.(bridge.Result); ok && res != nil {
		return res
	}
	return bridge.Failure{Kind: bridge.NetworkFailure, Err: err}
}
