// Package notify hands request lifecycle events to the broker. Delivery is
// best-effort: callers log failures and carry on.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"eventhub/internal/model"
)

type Kind string

const (
	RequestSubmitted Kind = "request.submitted"
	RequestApproved  Kind = "request.approved"
	RequestRejected  Kind = "request.rejected"
)

func (k Kind) Valid() bool {
	switch k {
	case RequestSubmitted, RequestApproved, RequestRejected:
		return true
	}
	return false
}

type Event struct {
	Kind            Kind               `json:"kind"`
	OccurredAt      time.Time          `json:"occurredAt"`
	Request         model.EventRequest `json:"request"`
	ReviewNotes     string             `json:"reviewNotes,omitempty"`
	RejectionReason string             `json:"rejectionReason,omitempty"`
	Listing         *model.Listing     `json:"listing,omitempty"`
}

type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

type publisher interface {
	Publish(ctx context.Context, routingKey string, message []byte) error
}

// Publisher sends events to a topic exchange using the kind as routing key.
type Publisher struct {
	pub publisher
}

func NewPublisher(pub publisher) *Publisher {
	return &Publisher{pub: pub}
}

func (p *Publisher) Notify(ctx context.Context, ev Event) error {
	if !ev.Kind.Valid() {
		return fmt.Errorf("notify: unknown kind %q", ev.Kind)
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("notify: encode %s: %w", ev.Kind, err)
	}
	if err := p.pub.Publish(ctx, string(ev.Kind), body); err != nil {
		return fmt.Errorf("notify: publish %s: %w", ev.Kind, err)
	}
	return nil
}

type Nop struct{}

func (Nop) Notify(context.Context, Event) error { return nil }

// Decode parses a delivery body and checks it carries a known kind.
func Decode(body []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return Event{}, fmt.Errorf("notify: decode: %w", err)
	}
	if !ev.Kind.Valid() {
		return Event{}, fmt.Errorf("notify: unknown kind %q", ev.Kind)
	}
	return ev, nil
}
