package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"card-token-bridge/bridge"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/token"
)

const (
	DefaultStripeURL      = stripe.APIURL
	DefaultRequestTimeout = 30 * time.Second
)

// StripeProvider creates card tokens through Stripe's REST API using a publishable key.
type StripeProvider struct {
	baseURL string
	timeout time.Duration
	client  *http.Client
	backend stripe.Backend
}

type StripeOption func(*StripeProvider)

// WithBaseURL points the provider at another API host (tests, proxies).
func WithBaseURL(u string) StripeOption {
	return func(p *StripeProvider) {
		p.baseURL = strings.TrimRight(u, "/")
	}
}

// WithTimeout sets the per-attempt network timeout.
func WithTimeout(d time.Duration) StripeOption {
	return func(p *StripeProvider) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithHTTPClient replaces the default client. Its Timeout is left untouched.
func WithHTTPClient(c *http.Client) StripeOption {
	return func(p *StripeProvider) {
		p.client = c
	}
}

func NewStripeProvider(opts ...StripeOption) *StripeProvider {
	p := &StripeProvider{
		baseURL: DefaultStripeURL,
		timeout: DefaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.client == nil {
		transport := &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 20,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		}
		p.client = &http.Client{
			Timeout:   p.timeout,
			Transport: transport,
		}
	}

	// Exactly one attempt per submission: the SDK's own retries stay off.
	p.backend = stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(p.baseURL),
		HTTPClient:        p.client,
		MaxNetworkRetries: stripe.Int64(0),
		EnableTelemetry:   stripe.Bool(false),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
	})
	return p
}

func (p *StripeProvider) Name() string {
	return "STRIPE"
}

// CreateToken issues exactly one POST /v1/tokens. Card fields are sent as given; the
// provider is responsible for validating them.
func (p *StripeProvider) CreateToken(ctx context.Context, publishableKey string, req bridge.TokenRequest) bridge.Result {
	month, year := SplitExpiration(req.Exp)

	card := &stripe.CardParams{
		Number:   stripe.String(req.Number),
		CVC:      stripe.String(req.CVC),
		ExpMonth: stripe.String(month),
	}
	if year != "" {
		card.ExpYear = stripe.String(year)
	}
	params := &stripe.TokenParams{Card: card}
	params.Context = ctx

	client := token.Client{B: p.backend, Key: publishableKey}
	tok, err := client.New(params)
	if err != nil {
		return classifyStripeError(err)
	}

	if tok == nil || tok.ID == "" {
		status := http.StatusOK
		if tok != nil && tok.LastResponse != nil {
			status = tok.LastResponse.StatusCode
		}
		return bridge.Failure{
			Kind:       bridge.ProviderRejection,
			StatusCode: status,
			Detail:     bridge.ErrorDetail{Message: "response carried no token id"},
		}
	}
	return bridge.Success{TokenID: tok.ID}
}

// classifyStripeError maps an SDK error onto the failure taxonomy. Errors without a
// provider envelope never reached a readable response.
func classifyStripeError(err error) bridge.Result {
	var serr *stripe.Error
	if !errors.As(err, &serr) {
		return bridge.Failure{Kind: bridge.NetworkFailure, Err: fmt.Errorf("making request: %w", err)}
	}

	raw, _ := json.Marshal(serr)
	detail := bridge.ErrorDetail{
		Type:    string(serr.Type),
		Code:    string(serr.Code),
		Message: serr.Msg,
		Param:   serr.Param,
		Raw:     raw,
	}

	kind := bridge.ProviderRejection
	if serr.HTTPStatusCode >= http.StatusInternalServerError || serr.HTTPStatusCode == http.StatusTooManyRequests {
		kind = bridge.ProviderUnavailable
	}
	return bridge.Failure{Kind: kind, StatusCode: serr.HTTPStatusCode, Detail: detail, Err: err}
}

// SplitExpiration splits a card-face expiry such as "12/25", "12 / 2025" or "1225" into
// month and year. Values it cannot split come back whole as the month.
func SplitExpiration(exp string) (month, year string) {
	s := strings.TrimSpace(exp)
	if i := strings.IndexAny(s, "/-"); i >= 0 {
		return strings.TrimSpace(s[:i]), strings.TrimSpace(s[i+1:])
	}
	compact := strings.ReplaceAll(s, " ", "")
	if len(compact) == 4 || len(compact) == 6 {
		return compact[:2], compact[2:]
	}
	return s, ""
}
