package providers

import (
	"context"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"

	"card-token-bridge/bridge"

	"github.com/google/uuid"
)

// Test card numbers recognised by the sandbox. Any other Luhn-valid number succeeds.
const (
	SandboxCardSuccess         = "4242424242424242"
	SandboxCardDeclined        = "4000000000000002"
	SandboxCardProcessingError = "4000000000000119"
)

// SandboxProvider simulates a tokenization API offline for local development.
type SandboxProvider struct {
	minLatency time.Duration
	maxLatency time.Duration
}

// NewSandboxProvider simulates network latency between min and max. Zero disables it.
func NewSandboxProvider(minLatency, maxLatency time.Duration) *SandboxProvider {
	if maxLatency < minLatency {
		maxLatency = minLatency
	}
	return &SandboxProvider{minLatency: minLatency, maxLatency: maxLatency}
}

func (p *SandboxProvider) Name() string {
	return "SANDBOX"
}

// CreateToken simulates interaction with the provider's token endpoint.
func (p *SandboxProvider) CreateToken(ctx context.Context, publishableKey string, req bridge.TokenRequest) bridge.Result {
	if delay := p.latency(); delay > 0 {
		select {
		case <-ctx.Done():
			return bridge.Failure{Kind: bridge.NetworkFailure, Err: ctx.Err()}
		case <-time.After(delay):
		}
	}

	if !strings.HasPrefix(publishableKey, "pk_") {
		return rejection(http.StatusUnauthorized, "invalid_request_error", "", "", "Invalid API Key provided.")
	}

	number := strings.ReplaceAll(req.Number, " ", "")
	switch {
	case number == "":
		return rejection(http.StatusBadRequest, "invalid_request_error", "incorrect_number", "number", "Your card number is incorrect.")
	case number == SandboxCardDeclined:
		return rejection(http.StatusPaymentRequired, "card_error", "card_declined", "", "Your card was declined.")
	case number == SandboxCardProcessingError:
		return bridge.Failure{
			Kind:       bridge.ProviderUnavailable,
			StatusCode: http.StatusInternalServerError,
			Detail: bridge.ErrorDetail{
				Type:    "api_error",
				Code:    "processing_error",
				Message: "An error occurred while processing your card.",
			},
		}
	case !luhnValid(number):
		return rejection(http.StatusPaymentRequired, "card_error", "incorrect_number", "number", "Your card number is incorrect.")
	}

	month, year := SplitExpiration(req.Exp)
	if m, err := strconv.Atoi(month); err != nil || m < 1 || m > 12 {
		return rejection(http.StatusPaymentRequired, "card_error", "invalid_expiry_month", "exp_month", "Your card's expiration month is invalid.")
	}
	if _, err := strconv.Atoi(year); err != nil || (len(year) != 2 && len(year) != 4) {
		return rejection(http.StatusPaymentRequired, "card_error", "invalid_expiry_year", "exp_year", "Your card's expiration year is invalid.")
	}
	if _, err := strconv.Atoi(req.CVC); err != nil || len(req.CVC) < 3 || len(req.CVC) > 4 {
		return rejection(http.StatusPaymentRequired, "card_error", "invalid_cvc", "cvc", "Your card's security code is invalid.")
	}

	return bridge.Success{TokenID: "tok_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:24]}
}

func (p *SandboxProvider) latency() time.Duration {
	if p.maxLatency <= 0 {
		return 0
	}
	spread := p.maxLatency - p.minLatency
	if spread <= 0 {
		return p.minLatency
	}
	return p.minLatency + time.Duration(rand.Int63n(int64(spread)))
}

func rejection(status int, typ, code, param, msg string) bridge.Failure {
	return bridge.Failure{
		Kind:       bridge.ProviderRejection,
		StatusCode: status,
		Detail: bridge.ErrorDetail{
			Type:    typ,
			Code:    code,
			Message: msg,
			Param:   param,
		},
	}
}

func luhnValid(number string) bool {
	if len(number) < 12 || len(number) > 19 {
		return false
	}
	sum := 0
	double := false
	for i := len(number) - 1; i >= 0; i-- {
		c := number[i]
		if c < '0' || c > '9' {
			return false
		}
		d := int(c - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}
