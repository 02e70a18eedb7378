package bridge

import (
	"encoding/json"
	"fmt"
	"strings"
)

// CardModel is the card entry produced by the embedded application on submit.
type CardModel struct {
	Number     string `json:"number"`
	CVC        string `json:"cvc"`
	Expiration string `json:"expiration"`
}

// UnmarshalJSON also accepts the embedded application's legacy "ccNumber" field.
func (c *CardModel) UnmarshalJSON(data []byte) error {
	var raw struct {
		Number     string `json:"number"`
		CCNumber   string `json:"ccNumber"`
		CVC        string `json:"cvc"`
		Expiration string `json:"expiration"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	c.Number = raw.Number
	if c.Number == "" {
		c.Number = raw.CCNumber
	}
	c.CVC = raw.CVC
	c.Expiration = raw.Expiration
	return nil
}

// TokenRequest maps the card onto the provider's field names.
func (c CardModel) TokenRequest() TokenRequest {
	return TokenRequest{
		Number: c.Number,
		CVC:    c.CVC,
		Exp:    c.Expiration,
	}
}

// Masked returns the card number with everything but the last four digits hidden.
func (c CardModel) Masked() string {
	n := []rune(strings.TrimSpace(c.Number))
	if len(n) <= 4 {
		return strings.Repeat("*", len(n))
	}
	return strings.Repeat("*", len(n)-4) + string(n[len(n)-4:])
}

// TokenRequest is the payload sent to a tokenization provider.
type TokenRequest struct {
	Number string
	CVC    string
	Exp    string
}

// Submission is one outbound "askForToken" message.
type Submission struct {
	ID   string    `json:"submission_id"`
	Card CardModel `json:"card"`
}

// Result is the outcome of a single tokenization attempt. It is either Success or Failure.
type Result interface {
	isResult()
}

// Success carries the token issued by the provider.
type Success struct {
	TokenID string `json:"token_id"`
}

func (Success) isResult() {}

// FailureKind classifies a failed tokenization.
type FailureKind string

const (
	// ProviderRejection means the provider answered and refused the card or request.
	ProviderRejection FailureKind = "provider_rejection"
	// NetworkFailure means the request never produced a readable response.
	NetworkFailure FailureKind = "network_failure"
	// ProviderUnavailable means the provider failed on its side or the breaker is open.
	ProviderUnavailable FailureKind = "provider_unavailable"
)

// ErrorDetail is the provider's error payload. Only Message is meant for display.
type ErrorDetail struct {
	Type    string          `json:"type,omitempty"`
	Code    string          `json:"code,omitempty"`
	Message string          `json:"message,omitempty"`
	Param   string          `json:"param,omitempty"`
	Raw     json.RawMessage `json:"-"`
}

// Failure is a tokenization that did not produce a token.
type Failure struct {
	Kind       FailureKind `json:"kind"`
	StatusCode int         `json:"status_code,omitempty"`
	Detail     ErrorDetail `json:"detail"`
	Err        error       `json:"-"`
}

func (Failure) isResult() {}

func (f Failure) Error() string {
	msg := f.Detail.Message
	if msg == "" && f.Err != nil {
		msg = f.Err.Error()
	}
	if f.StatusCode != 0 {
		return fmt.Sprintf("%s (status %d): %s", f.Kind, f.StatusCode, msg)
	}
	return fmt.Sprintf("%s: %s", f.Kind, msg)
}

func (f Failure) Unwrap() error {
	return f.Err
}

// ProviderSide reports whether the failure came from the transport or the provider
// rather than from the card itself.
func (f Failure) ProviderSide() bool {
	return f.Kind == NetworkFailure || f.Kind == ProviderUnavailable
}
