package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrMissingPublishableKey is returned by New when Config has no key.
var ErrMissingPublishableKey = errors.New("bridge: publishable key is required")

const defaultDeliveryTimeout = 10 * time.Second

// Tokenizer turns card fields into a provider token. Implementations make exactly one
// attempt per call.
type Tokenizer interface {
	Name() string
	CreateToken(ctx context.Context, publishableKey string, req TokenRequest) Result
}

// Config is fixed at construction and shared by every request.
type Config struct {
	PublishableKey string
	// DeliveryTimeout bounds a single call into the Receiver.
	DeliveryTimeout time.Duration
}

// Bridge forwards outbound card submissions to a Tokenizer and the outcome to a Receiver.
type Bridge struct {
	cfg      Config
	provider Tokenizer
	receiver Receiver
	logger   *slog.Logger

	inflight sync.WaitGroup
}

// New returns a Bridge bound to cfg.PublishableKey for its whole lifetime. It fails with
// ErrMissingPublishableKey when the key is empty. A zero DeliveryTimeout defaults to 10s
// and a nil logger to slog.Default().
func New(cfg Config, provider Tokenizer, receiver Receiver, logger *slog.Logger) (*Bridge, error) {
	if cfg.PublishableKey == "" {
		return nil, ErrMissingPublishableKey
	}
	if provider == nil {
		return nil, errors.New("bridge: provider is required")
	}
	if receiver == nil {
		return nil, errors.New("bridge: receiver is required")
	}
	if cfg.DeliveryTimeout <= 0 {
		cfg.DeliveryTimeout = defaultDeliveryTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		cfg:      cfg,
		provider: provider,
		receiver: receiver,
		logger:   logger.With(slog.String("provider", provider.Name())),
	}, nil
}

// Run handles every submission from the emitter until it is closed or ctx is done.
// It does not wait for in-flight requests; call Wait for that once Run has returned.
func (b *Bridge) Run(ctx context.Context, emitter Emitter) error {
	subs := emitter.Submissions()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sub, ok := <-subs:
			if !ok {
				return nil
			}
			b.HandleTokenRequest(ctx, sub)
		}
	}
}

// HandleTokenRequest starts one tokenization for the submission and returns immediately.
// Cancelling ctx does not abort a request that has been started.
func (b *Bridge) HandleTokenRequest(ctx context.Context, sub Submission) {
	ctx = context.WithoutCancel(ctx)
	b.inflight.Add(1)
	go func() {
		defer b.inflight.Done()
		res := b.Tokenize(ctx, sub.Card)
		b.HandleResponse(ctx, sub.ID, res)
	}()
}

// Tokenize performs a single synchronous attempt with the configured key.
func (b *Bridge) Tokenize(ctx context.Context, card CardModel) Result {
	start := time.Now()
	res := b.provider.CreateToken(ctx, b.cfg.PublishableKey, card.TokenRequest())
	if res == nil {
		res = Failure{Kind: NetworkFailure, Err: errors.New("provider returned no result")}
	}

	attrs := []any{
		slog.String("card", card.Masked()),
		slog.Duration("elapsed", time.Since(start)),
	}
	switch r := res.(type) {
	case Success:
		b.logger.Debug("provider response", append(attrs, slog.String("token_id", r.TokenID))...)
	case Failure:
		b.logger.Debug("provider response", append(attrs,
			slog.String("kind", string(r.Kind)),
			slog.Int("status", r.StatusCode),
			slog.String("raw", string(r.Detail.Raw)),
		)...)
	}
	return res
}

// HandleResponse forwards a result to the receiver. Only a non-empty token is ever
// forwarded as a token; failures go to ReceiveFailure when the receiver supports it.
func (b *Bridge) HandleResponse(ctx context.Context, submissionID string, res Result) {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.DeliveryTimeout)
	defer cancel()

	logger := b.logger.With(slog.String("submission_id", submissionID))

	if s, ok := res.(Success); ok && s.TokenID == "" {
		res = Failure{
			Kind:   ProviderRejection,
			Detail: ErrorDetail{Message: "provider response carried no token id"},
		}
	}

	switch r := res.(type) {
	case Success:
		if err := b.receiver.ReceiveToken(ctx, submissionID, r.TokenID); err != nil {
			logger.Error("failed to deliver token", slog.Any("err", err))
			return
		}
		logger.Info("token delivered")
	case Failure:
		logger = logger.With(
			slog.String("kind", string(r.Kind)),
			slog.Int("status", r.StatusCode),
			slog.String("code", r.Detail.Code),
		)
		fr, ok := b.receiver.(FailureReceiver)
		if !ok {
			logger.Warn("tokenization failed, receiver has no failure port", slog.Any("err", r))
			return
		}
		if err := fr.ReceiveFailure(ctx, submissionID, r); err != nil {
			logger.Error("failed to deliver failure", slog.Any("err", err))
			return
		}
		logger.Info("tokenization failure delivered")
	default:
		logger.Error("unknown result type", slog.String("type", fmt.Sprintf("%T", res)))
	}
}

// Wait blocks until every started request has been handed to the receiver.
// It must not overlap with calls to HandleTokenRequest: call it after Run has returned
// and after every other caller (such as an HTTP server) has stopped dispatching.
func (b *Bridge) Wait() {
	b.inflight.Wait()
}

// WaitContext is Wait bounded by ctx. The same ordering rule applies.
func (b *Bridge) WaitContext(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		b.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
