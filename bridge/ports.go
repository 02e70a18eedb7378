package bridge

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Emitter is the outbound "askForToken" port of the embedded application.
type Emitter interface {
	Submissions() <-chan Submission
}

// Receiver is the inbound "receiveStripeToken" port of the embedded application.
type Receiver interface {
	ReceiveToken(ctx context.Context, submissionID, tokenID string) error
}

// FailureReceiver is implemented by receivers that can render a failed tokenization.
// Receivers without it get no message on failure.
type FailureReceiver interface {
	ReceiveFailure(ctx context.Context, submissionID string, failure Failure) error
}

// DeliveryStatus is the state of a submission as seen by the embedded application.
type DeliveryStatus string

const (
	StatusPending   DeliveryStatus = "pending"
	StatusSucceeded DeliveryStatus = "succeeded"
	StatusFailed    DeliveryStatus = "failed"
)

// Delivery is what the inbound port hands back for a submission.
type Delivery struct {
	SubmissionID string         `json:"submission_id"`
	Status       DeliveryStatus `json:"status"`
	TokenID      string         `json:"token_id,omitempty"`
	Error        *Failure       `json:"error,omitempty"`
}

// NewSubmissionID returns a fresh correlation id for an outbound message.
func NewSubmissionID() string {
	return uuid.NewString()
}

// Ports is an in-process pair of the two named message channels.
type Ports struct {
	ask    chan Submission
	tokens chan Delivery

	closeOnce sync.Once
}

// NewPorts creates both channels with the given buffer size.
func NewPorts(buffer int) *Ports {
	return &Ports{
		ask:    make(chan Submission, buffer),
		tokens: make(chan Delivery, buffer),
	}
}

// AskForToken emits a card on the outbound port and returns its submission id.
func (p *Ports) AskForToken(ctx context.Context, card CardModel) (string, error) {
	sub := Submission{ID: NewSubmissionID(), Card: card}
	select {
	case p.ask <- sub:
		return sub.ID, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Submissions implements Emitter.
func (p *Ports) Submissions() <-chan Submission {
	return p.ask
}

// Close closes the outbound port. Bridge.Run returns once it drains.
func (p *Ports) Close() {
	p.closeOnce.Do(func() { close(p.ask) })
}

// Tokens is the inbound port as seen by the embedded application.
func (p *Ports) Tokens() <-chan Delivery {
	return p.tokens
}

// ReceiveToken implements Receiver.
func (p *Ports) ReceiveToken(ctx context.Context, submissionID, tokenID string) error {
	return p.deliver(ctx, Delivery{
		SubmissionID: submissionID,
		Status:       StatusSucceeded,
		TokenID:      tokenID,
	})
}

// ReceiveFailure implements FailureReceiver.
func (p *Ports) ReceiveFailure(ctx context.Context, submissionID string, failure Failure) error {
	return p.deliver(ctx, Delivery{
		SubmissionID: submissionID,
		Status:       StatusFailed,
		Error:        &failure,
	})
}

func (p *Ports) deliver(ctx context.Context, d Delivery) error {
	select {
	case p.tokens <- d:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
