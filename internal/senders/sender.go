package senders

import (
	"context"
	"errors"

	"billing-reminder-backend/internal/models"
)

var (
	ErrNoRecipient       = errors.New("sender: recipient is required")
	ErrUnsupportedDriver = errors.New("sender: unsupported driver")
)

// Outgoing is one rendered notice addressed to a single destination.
// Subject is only used by e-mail senders.
type Outgoing struct {
	To        string
	Subject   string
	Body      string
	Reference string
}

// Result is what the channel reported. A returned error means the call
// itself broke down; a Result with Success false is a normal rejection.
type Result struct {
	Success   bool
	Status    models.DeliveryStatus
	MessageID string
	Error     string
	Meta      map[string]string
}

type Sender interface {
	Send(ctx context.Context, msg Outgoing) (Result, error)
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, msg Outgoing) (Result, error)

func (f SenderFunc) Send(ctx context.Context, msg Outgoing) (Result, error) {
	return f(ctx, msg)
}

// Set holds one sender per channel.
type Set struct {
	WhatsApp Sender
	Email    Sender
}

// For picks the sender for a contact.
func (s Set) For(c models.Contact) (Sender, error) {
	var sender Sender
	switch c.(type) {
	case models.WhatsApp:
		sender = s.WhatsApp
	case models.Email:
		sender = s.Email
	default:
		return nil, ErrUnsupportedDriver
	}
	if sender == nil {
		return nil, ErrUnsupportedDriver
	}
	return sender, nil
}
