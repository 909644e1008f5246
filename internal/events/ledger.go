package events

import (
	"context"
	"time"

	"billing-reminder-backend/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	TypeMessageRecorded = "message.recorded"
	TypeRunFinished     = "dispatch_run.finished"
)

type MessageRecorded struct {
	Type           string                `json:"type"`
	MessageID      uuid.UUID             `json:"message_id"`
	InvoiceID      uuid.UUID             `json:"invoice_id"`
	RunID          *uuid.UUID            `json:"run_id,omitempty"`
	Channel        models.Channel        `json:"channel"`
	Kind           models.MessageKind    `json:"kind"`
	DeliveryStatus models.DeliveryStatus `json:"delivery_status"`
	Error          string                `json:"error,omitempty"`
	SentAt         time.Time             `json:"sent_at"`
}

type RunFinished struct {
	Type string             `json:"type"`
	Run  models.DispatchRun `json:"run"`
}

// Appender is the ledger being decorated.
type Appender interface {
	Append(ctx context.Context, msg *models.Message) error
}

// PublishingLedger appends to the wrapped ledger and then announces the
// entry. A publish failure is logged and never fails the append.
type PublishingLedger struct {
	next   Appender
	pub    Publisher
	logger zerolog.Logger
}

func NewPublishingLedger(next Appender, pub Publisher, logger zerolog.Logger) *PublishingLedger {
	return &PublishingLedger{next: next, pub: pub, logger: logger}
}

func (l *PublishingLedger) Append(ctx context.Context, msg *models.Message) error {
	if err := l.next.Append(ctx, msg); err != nil {
		return err
	}
	ev := MessageRecorded{
		Type:           TypeMessageRecorded,
		MessageID:      msg.ID,
		InvoiceID:      msg.InvoiceID,
		RunID:          msg.DispatchRunID,
		Channel:        msg.Channel,
		Kind:           msg.MessageType,
		DeliveryStatus: msg.DeliveryStatus,
		Error:          msg.Error,
		SentAt:         msg.SentAt,
	}
	if err := l.pub.Publish(ctx, msg.InvoiceID.String(), ev); err != nil {
		l.logger.Warn().Err(err).Str("message_id", msg.ID.String()).Msg("message event not published")
	}
	return nil
}

// RunHook publishes a RunFinished event for every completed run.
type RunHook struct {
	pub Publisher
}

func NewRunHook(pub Publisher) *RunHook {
	return &RunHook{pub: pub}
}

func (h *RunHook) RunFinished(ctx context.Context, run models.DispatchRun) error {
	return h.pub.Publish(ctx, run.ID.String(), RunFinished{Type: TypeRunFinished, Run: run})
}
