package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"billing-reminder-backend/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	skafka "github.com/segmentio/kafka-go"
)

// fakeWriter is a test writer that records messages written.
type fakeWriter struct {
	msgs []skafka.Message
	err  error
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...skafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

type sliceLedger struct {
	entries []models.Message
	err     error
}

func (s *sliceLedger) Append(_ context.Context, msg *models.Message) error {
	if s.err != nil {
		return s.err
	}
	s.entries = append(s.entries, *msg)
	return nil
}

func TestPublish(t *testing.T) {
	fw := &fakeWriter{}
	p := NewKafkaProducerWithWriter(fw, zerolog.Nop())
	if err := p.Publish(context.Background(), "key1", map[string]string{"a": "b"}); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	if len(fw.msgs) != 1 || string(fw.msgs[0].Key) != "key1" || string(fw.msgs[0].Value) != `{"a":"b"}` {
		t.Fatalf("unexpected messages %+v", fw.msgs)
	}
}

func TestPublishingLedger(t *testing.T) {
	fw := &fakeWriter{}
	inner := &sliceLedger{}
	l := NewPublishingLedger(inner, NewKafkaProducerWithWriter(fw, zerolog.Nop()), zerolog.Nop())

	msg := &models.Message{
		ID:             uuid.New(),
		InvoiceID:      uuid.New(),
		Channel:        models.ChannelWhatsApp,
		MessageType:    models.KindOverdue,
		DeliveryStatus: models.DeliveryFailed,
		Error:          "offline",
	}
	if err := l.Append(context.Background(), msg); err != nil {
		t.Fatalf("append: %v", err)
	}
	if len(inner.entries) != 1 || len(fw.msgs) != 1 {
		t.Fatalf("expected entry and event, got %d/%d", len(inner.entries), len(fw.msgs))
	}
	var ev MessageRecorded
	if err := json.Unmarshal(fw.msgs[0].Value, &ev); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if ev.Type != TypeMessageRecorded || ev.MessageID != msg.ID || ev.DeliveryStatus != models.DeliveryFailed || string(fw.msgs[0].Key) != msg.InvoiceID.String() {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestPublishingLedgerKeepsAppendResult(t *testing.T) {
	fw := &fakeWriter{err: errors.New("broker down")}
	inner := &sliceLedger{}
	l := NewPublishingLedger(inner, NewKafkaProducerWithWriter(fw, zerolog.Nop()), zerolog.Nop())
	if err := l.Append(context.Background(), &models.Message{ID: uuid.New()}); err != nil {
		t.Fatalf("publish failure must not fail the append: %v", err)
	}

	inner.err = errors.New("db down")
	fw.err = nil
	if err := l.Append(context.Background(), &models.Message{ID: uuid.New()}); err == nil {
		t.Fatalf("expected append error")
	}
	if len(fw.msgs) != 0 {
		t.Fatalf("nothing must be published for a failed append")
	}
}

func TestRunHook(t *testing.T) {
	fw := &fakeWriter{}
	run := models.DispatchRun{ID: uuid.New(), Status: models.RunCompleted, Total: 2}
	if err := NewRunHook(NewKafkaProducerWithWriter(fw, zerolog.Nop())).RunFinished(context.Background(), run); err != nil {
		t.Fatalf("run hook: %v", err)
	}
	var ev RunFinished
	_ = json.Unmarshal(fw.msgs[0].Value, &ev)
	if ev.Type != TypeRunFinished || ev.Run.ID != run.ID || ev.Run.Total != 2 {
		t.Fatalf("unexpected event %+v", ev)
	}
}
