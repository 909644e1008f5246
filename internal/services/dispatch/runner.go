package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"billing-reminder-backend/internal/calendar"
	"billing-reminder-backend/internal/models"
	"billing-reminder-backend/internal/senders"
	"billing-reminder-backend/internal/services/classification"
	"billing-reminder-backend/internal/templates"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
)

// DefaultDelay is the pause between two consecutive sends of a batch.
const DefaultDelay = 300 * time.Millisecond

var (
	ErrBatchInProgress = errors.New("dispatch: a batch is already running")
	ErrNoContact       = errors.New("dispatch: invoice has no usable contact")
)

// Ledger receives one entry per dispatch attempt. It is append only.
type Ledger interface {
	Append(ctx context.Context, msg *models.Message) error
}

// LedgerFunc adapts a function to Ledger.
type LedgerFunc func(ctx context.Context, msg *models.Message) error

func (f LedgerFunc) Append(ctx context.Context, msg *models.Message) error { return f(ctx, msg) }

type Progress struct {
	RunID     uuid.UUID `json:"run_id"`
	Processed int       `json:"processed"`
	Total     int       `json:"total"`
	Recorded  int       `json:"recorded"`
	Failed    int       `json:"failed"`
}

type Options struct {
	RunID              uuid.UUID
	IncludePreviousDay bool
	// Progress is called after every attempt, from the runner's goroutine.
	Progress func(Progress)
}

type Skipped struct {
	InvoiceID uuid.UUID `json:"invoice_id"`
	Reason    string    `json:"reason"`
}

type Outcome struct {
	RunID       uuid.UUID        `json:"run_id"`
	Today       calendar.Date    `json:"today"`
	NothingToDo bool             `json:"nothing_to_do"`
	Total       int              `json:"total"`
	Processed   int              `json:"processed"`
	Failed      int              `json:"failed"`
	Messages    []models.Message `json:"messages"`
	Skipped     []Skipped        `json:"skipped,omitempty"`
	Rejected    int              `json:"rejected"`
}

type Option func(*Runner)

func WithDelay(d time.Duration) Option {
	return func(r *Runner) {
		if d >= 0 {
			r.delay = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		if now != nil {
			r.now = now
		}
	}
}

func WithIDGenerator(gen func() uuid.UUID) Option {
	return func(r *Runner) {
		if gen != nil {
			r.newID = gen
		}
	}
}

// WithWait replaces the pause used between sends.
func WithWait(wait func(time.Duration)) Option {
	return func(r *Runner) {
		if wait != nil {
			r.wait = wait
		}
	}
}

// Runner sends the automated notices of one classification, one invoice at a time.
type Runner struct {
	senders senders.Set
	logger  zerolog.Logger
	delay   time.Duration
	now     func() time.Time
	newID   func() uuid.UUID
	wait    func(time.Duration)

	running atomic.Bool
}

func NewRunner(set senders.Set, logger zerolog.Logger, opts ...Option) *Runner {
	r := &Runner{
		senders: set,
		logger:  logger,
		delay:   DefaultDelay,
		now:     time.Now,
		newID:   uuid.New,
		wait:    time.Sleep,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Running reports whether a batch is in flight.
func (r *Runner) Running() bool {
	return r.running.Load()
}

// Run classifies invoices for today and dispatches the resulting queue.
// Only one Run may be active per Runner; a concurrent call gets
// ErrBatchInProgress. Once started the queue is processed to the end even if
// ctx is cancelled; entries already appended to the ledger stay there.
func (r *Runner) Run(ctx context.Context, invoices []models.Invoice, tmpl templates.Pair, today calendar.Date, ledger Ledger, opts Options) (*Outcome, error) {
	if !r.running.CompareAndSwap(false, true) {
		return nil, ErrBatchInProgress
	}
	defer r.running.Store(false)

	buckets, err := classification.Classify(invoices, today)
	if err != nil {
		return nil, err
	}
	runID := opts.RunID
	if runID == uuid.Nil {
		runID = r.newID()
	}
	log := r.logger.With().Str("run_id", runID.String()).Str("today", today.String()).Logger()
	for _, rej := range buckets.Rejected {
		log.Warn().Str("invoice_id", rej.Invoice.ID.String()).Err(rej.Err).Msg("invoice rejected from classification")
	}

	queue := buckets.Queue(opts.IncludePreviousDay)
	out := &Outcome{RunID: runID, Today: today, Total: len(queue), Rejected: len(buckets.Rejected)}
	if len(queue) == 0 {
		out.NothingToDo = true
		log.Info().Msg("nothing to send")
		return out, nil
	}

	ctx = context.WithoutCancel(ctx)
	log.Info().Int("total", len(queue)).Bool("include_previous_day", opts.IncludePreviousDay).Msg("batch started")

	for i, item := range queue {
		res := r.attempt(ctx, item.Invoice, item.Kind(), item.Kind(), tmpl, today, &runID)
		if res.err == nil {
			res.err = ledger.Append(ctx, res.msg)
		}

		out.Processed++
		if res.err != nil {
			log.Error().Err(res.err).Str("invoice_id", item.Invoice.ID.String()).Msg("dispatch attempt dropped")
			out.Skipped = append(out.Skipped, Skipped{InvoiceID: item.Invoice.ID, Reason: res.err.Error()})
		} else {
			out.Messages = append(out.Messages, *res.msg)
			if res.msg.DeliveryStatus == models.DeliveryFailed {
				out.Failed++
			}
			log.Debug().
				Str("invoice_id", item.Invoice.ID.String()).
				Str("kind", string(res.msg.MessageType)).
				Str("status", string(res.msg.DeliveryStatus)).
				Msg("dispatch attempt recorded")
		}

		if opts.Progress != nil {
			opts.Progress(Progress{
				RunID:     runID,
				Processed: out.Processed,
				Total:     out.Total,
				Recorded:  len(out.Messages),
				Failed:    out.Failed,
			})
		}

		if i < len(queue)-1 && r.delay > 0 {
			r.wait(r.delay)
		}
	}

	log.Info().
		Int("processed", out.Processed).
		Int("recorded", len(out.Messages)).
		Int("failed", out.Failed).
		Int("skipped", len(out.Skipped)).
		Msg("batch completed")
	return out, nil
}

// SendOne sends a single notice outside any batch. The ledger entry is
// recorded with kind manual; the template is chosen by templateKind.
func (r *Runner) SendOne(ctx context.Context, inv models.Invoice, templateKind models.MessageKind, tmpl templates.Pair, today calendar.Date, ledger Ledger) (*models.Message, error) {
	if _, ok := inv.Contact(); !ok {
		return nil, ErrNoContact
	}
	res := r.attempt(ctx, inv, templateKind, models.KindManual, tmpl, today, nil)
	if res.err != nil {
		return nil, res.err
	}
	if err := ledger.Append(ctx, res.msg); err != nil {
		return nil, fmt.Errorf("dispatch: record message: %w", err)
	}
	return res.msg, nil
}

// attempt is the outcome of one invoice: a ledger entry ready to append, or
// the reason none could be built.
type attempt struct {
	msg *models.Message
	err error
}

func (r *Runner) attempt(ctx context.Context, inv models.Invoice, templateKind, recordKind models.MessageKind, tmpl templates.Pair, today calendar.Date, runID *uuid.UUID) attempt {
	contact, ok := inv.Contact()
	if !ok {
		return attempt{err: ErrNoContact}
	}

	var days *int
	if templateKind == models.KindOverdue {
		d := calendar.DaysOverdue(inv.DueDate, today)
		days = &d
	}
	content := templates.Render(tmpl.For(templateKind), templates.Variables(inv, days))

	msg := &models.Message{
		ID:            r.newID(),
		InvoiceID:     inv.ID,
		DispatchRunID: runID,
		CustomerName:  inv.CustomerName,
		Destination:   contact.Destination(),
		Channel:       contact.Channel(),
		Content:       content,
		MessageType:   recordKind,
	}

	sender, err := r.senders.For(contact)
	var res senders.Result
	if err == nil {
		res, err = safeSend(ctx, sender, senders.Outgoing{
			To:        contact.Destination(),
			Subject:   templates.Subject(templateKind, inv.CustomerName),
			Body:      content,
			Reference: inv.ID.String(),
		})
	}
	msg.SentAt = r.now()

	switch {
	case err != nil:
		msg.DeliveryStatus = models.DeliveryFailed
		msg.Error = err.Error()
	case res.Success:
		msg.DeliveryStatus = successStatus(res.Status)
		msg.ProviderMessageID = res.MessageID
	default:
		msg.DeliveryStatus = models.DeliveryFailed
		msg.Error = res.Error
		msg.ProviderMessageID = res.MessageID
	}
	if len(res.Meta) > 0 {
		if b, mErr := json.Marshal(res.Meta); mErr == nil {
			msg.ProviderMeta = datatypes.JSON(b)
		}
	}
	return attempt{msg: msg}
}

// safeSend turns a panicking provider into an ordinary send error.
func safeSend(ctx context.Context, sender senders.Sender, out senders.Outgoing) (res senders.Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			res, err = senders.Result{}, fmt.Errorf("sender panic: %v", p)
		}
	}()
	return sender.Send(ctx, out)
}

func successStatus(s models.DeliveryStatus) models.DeliveryStatus {
	switch s {
	case models.DeliveryDelivered, models.DeliveryRead:
		return s
	default:
		return models.DeliverySent
	}
}
