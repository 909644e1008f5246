package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"billing-reminder-backend/internal/calendar"
	"billing-reminder-backend/internal/models"
	"billing-reminder-backend/internal/repository"
	"billing-reminder-backend/internal/services/classification"
	"billing-reminder-backend/internal/services/dispatch"
	"billing-reminder-backend/internal/templates"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidInvoice  = errors.New("invalid invoice")
	ErrInvalidKind     = errors.New("kind must be reminder or overdue")
	ErrInvoicePaid     = errors.New("invoice is already paid")
	ErrInvalidTemplate = errors.New("templates must not be empty")
)

// RunNotifier is told about every finished automated run.
type RunNotifier interface {
	RunFinished(ctx context.Context, run models.DispatchRun) error
}

type Option func(*BillingService)

// WithLedger replaces the ledger the runner appends to. The message
// repository is used otherwise.
func WithLedger(l dispatch.Ledger) Option {
	return func(s *BillingService) { s.ledger = l }
}

func WithProgressStore(p dispatch.ProgressStore) Option {
	return func(s *BillingService) { s.progress = p }
}

// WithNotifier adds a hook called after every automated run.
func WithNotifier(n RunNotifier) Option {
	return func(s *BillingService) { s.notifiers = append(s.notifiers, n) }
}

func WithClock(now func() time.Time) Option {
	return func(s *BillingService) { s.now = now }
}

func WithLocation(loc *time.Location) Option {
	return func(s *BillingService) { s.loc = loc }
}

type BillingService struct {
	invoiceRepo  *repository.InvoiceRepository
	messageRepo  *repository.MessageRepository
	templateRepo *repository.TemplateRepository
	runRepo      *repository.DispatchRunRepository

	runner    *dispatch.Runner
	ledger    dispatch.Ledger
	progress  dispatch.ProgressStore
	notifiers []RunNotifier
	logger    zerolog.Logger
	now       func() time.Time
	loc       *time.Location

	active atomic.Bool
	wg     sync.WaitGroup
}

func NewBillingService(
	invoiceRepo *repository.InvoiceRepository,
	messageRepo *repository.MessageRepository,
	templateRepo *repository.TemplateRepository,
	runRepo *repository.DispatchRunRepository,
	runner *dispatch.Runner,
	logger zerolog.Logger,
	opts ...Option,
) *BillingService {
	s := &BillingService{
		invoiceRepo:  invoiceRepo,
		messageRepo:  messageRepo,
		templateRepo: templateRepo,
		runRepo:      runRepo,
		runner:       runner,
		ledger:       messageRepo,
		progress:     dispatch.NewMemoryProgress(),
		logger:       logger,
		now:          time.Now,
		loc:          time.UTC,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Today is the current calendar day in the configured timezone.
func (s *BillingService) Today() calendar.Date {
	return calendar.Today(s.now(), s.loc)
}

func (s *BillingService) todayOr(d calendar.Date) calendar.Date {
	if d.IsZero() {
		return s.Today()
	}
	return d
}

type InvoiceInput struct {
	CustomerName   string          `json:"customer_name"`
	CustomerCode   string          `json:"customer_code"`
	Amount         decimal.Decimal `json:"amount"`
	DueDate        string          `json:"due_date"`
	PaymentLink    string          `json:"payment_link"`
	OrderNumber    string          `json:"order_number"`
	ContactChannel string          `json:"contact_channel"`
	WhatsAppNumber string          `json:"whatsapp_number"`
	Email          string          `json:"email"`
}

// CreateInvoice validates the input and stores a new unpaid invoice.
func (s *BillingService) CreateInvoice(in InvoiceInput) (*models.Invoice, error) {
	name := strings.TrimSpace(in.CustomerName)
	if name == "" {
		return nil, fmt.Errorf("%w: customer name is required", ErrInvalidInvoice)
	}
	if !in.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidInvoice)
	}
	due, err := parseDueDate(in.DueDate)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInvoice, err)
	}

	inv := &models.Invoice{
		ID:           uuid.New(),
		CustomerName: name,
		CustomerCode: strings.TrimSpace(in.CustomerCode),
		Amount:       in.Amount.Round(2),
		DueDate:      due,
		PaymentLink:  strings.TrimSpace(in.PaymentLink),
		OrderNumber:  strings.TrimSpace(in.OrderNumber),
		Email:        strings.TrimSpace(in.Email),
		CreatedAt:    s.now(),
	}
	if raw := strings.TrimSpace(in.WhatsAppNumber); raw != "" {
		number, ok := normalizePhone(raw)
		if !ok {
			return nil, fmt.Errorf("%w: invalid whatsapp number %q", ErrInvalidInvoice, raw)
		}
		inv.WhatsAppNumber = number
	}

	switch ch := models.Channel(strings.ToLower(strings.TrimSpace(in.ContactChannel))); {
	case ch == "":
		inv.ContactChannel = models.ChannelWhatsApp
		if inv.WhatsAppNumber == "" && inv.Email != "" {
			inv.ContactChannel = models.ChannelEmail
		}
	case ch.Valid():
		inv.ContactChannel = ch
	default:
		return nil, fmt.Errorf("%w: unknown contact channel %q", ErrInvalidInvoice, in.ContactChannel)
	}
	if _, ok := inv.Contact(); !ok {
		return nil, fmt.Errorf("%w: no %s contact given", ErrInvalidInvoice, inv.ContactChannel)
	}

	if err := s.invoiceRepo.Create(inv); err != nil {
		return nil, err
	}
	s.logger.Info().Str("invoice_id", inv.ID.String()).Str("customer", inv.CustomerName).Msg("invoice created")
	return inv, nil
}

func (s *BillingService) GetInvoice(id uuid.UUID) (*models.Invoice, error) {
	return s.invoiceRepo.GetByID(id)
}

func (s *BillingService) ListInvoices(filter repository.InvoiceFilter) ([]models.Invoice, error) {
	filter.Today = s.todayOr(filter.Today)
	return s.invoiceRepo.List(filter)
}

// MarkPaid is idempotent; only the first call leaves an audit entry.
func (s *BillingService) MarkPaid(id uuid.UUID, performedBy string) (*models.Invoice, error) {
	if strings.TrimSpace(performedBy) == "" {
		performedBy = "dashboard"
	}
	inv, changed, err := s.invoiceRepo.MarkPaid(id, s.now(), performedBy, models.AuditReasonManual)
	if err != nil {
		return nil, err
	}
	if changed {
		s.logger.Info().Str("invoice_id", id.String()).Str("by", performedBy).Msg("invoice marked paid")
	}
	return inv, nil
}

// SendManual sends one notice now using the template of kind, recorded as manual.
func (s *BillingService) SendManual(ctx context.Context, id uuid.UUID, kind models.MessageKind) (*models.Message, error) {
	if kind != models.KindReminder && kind != models.KindOverdue {
		return nil, ErrInvalidKind
	}
	inv, err := s.invoiceRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if inv.IsPaid {
		return nil, ErrInvoicePaid
	}
	pair, err := s.templateRepo.GetPair()
	if err != nil {
		return nil, err
	}
	msg, err := s.runner.SendOne(ctx, *inv, kind, pair, s.Today(), s.ledger)
	if err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("invoice_id", id.String()).
		Str("template", string(kind)).
		Str("status", string(msg.DeliveryStatus)).
		Msg("manual message sent")
	return msg, nil
}

func (s *BillingService) ListMessages(filter repository.MessageFilter) ([]models.Message, error) {
	return s.messageRepo.List(filter)
}

func (s *BillingService) Templates() (templates.Pair, error) {
	return s.templateRepo.GetPair()
}

func (s *BillingService) SaveTemplates(pair templates.Pair) error {
	if strings.TrimSpace(pair.Reminder) == "" || strings.TrimSpace(pair.Overdue) == "" {
		return ErrInvalidTemplate
	}
	return s.templateRepo.SavePair(pair)
}

type Preview struct {
	Today              calendar.Date         `json:"today"`
	IncludePreviousDay bool                  `json:"include_previous_day"`
	Counts             classification.Counts `json:"counts"`
	DueSoon            []models.Invoice      `json:"due_soon"`
	RecentlyOverdue    []models.Invoice      `json:"recently_overdue"`
	DuePreviousDay     []models.Invoice      `json:"due_previous_day"`
	OverduePreviousDay []models.Invoice      `json:"overdue_previous_day"`
	Rejected           []PreviewRejection    `json:"rejected,omitempty"`
}

type PreviewRejection struct {
	InvoiceID uuid.UUID `json:"invoice_id"`
	Reason    string    `json:"reason"`
}

// Preview shows what an automated run for today would send.
func (s *BillingService) Preview(today calendar.Date, includePrevious bool) (*Preview, error) {
	today = s.todayOr(today)
	invoices, err := s.invoiceRepo.ListUnpaid()
	if err != nil {
		return nil, err
	}
	b, err := classification.Classify(invoices, today)
	if err != nil {
		return nil, err
	}
	p := &Preview{
		Today:              today,
		IncludePreviousDay: includePrevious,
		Counts:             b.Counts(includePrevious),
		DueSoon:            nonNil(b.DueSoon),
		RecentlyOverdue:    nonNil(b.RecentlyOverdue),
		DuePreviousDay:     nonNil(b.DuePreviousDay),
		OverduePreviousDay: nonNil(b.OverduePreviousDay),
	}
	for _, r := range b.Rejected {
		p.Rejected = append(p.Rejected, PreviewRejection{InvoiceID: r.Invoice.ID, Reason: r.Err.Error()})
	}
	return p, nil
}

type Dashboard struct {
	Today      calendar.Date           `json:"today"`
	Invoices   repository.InvoiceStats `json:"invoices"`
	Messages   repository.MessageStats `json:"messages"`
	Automation classification.Counts   `json:"automation"`
	LastRun    *models.DispatchRun     `json:"last_run,omitempty"`
	Running    bool                    `json:"running"`
}

func (s *BillingService) DashboardStats(today calendar.Date) (*Dashboard, error) {
	today = s.todayOr(today)
	inv, err := s.invoiceRepo.Stats(today)
	if err != nil {
		return nil, err
	}
	msgs, err := s.messageRepo.Stats()
	if err != nil {
		return nil, err
	}
	preview, err := s.Preview(today, false)
	if err != nil {
		return nil, err
	}
	last, err := s.runRepo.Latest()
	if err != nil {
		return nil, err
	}
	return &Dashboard{
		Today:      today,
		Invoices:   inv,
		Messages:   msgs,
		Automation: preview.Counts,
		LastRun:    last,
		Running:    s.active.Load(),
	}, nil
}

func nonNil(invoices []models.Invoice) []models.Invoice {
	if invoices == nil {
		return []models.Invoice{}
	}
	return invoices
}
