package billing

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"billing-reminder-backend/internal/calendar"
	"billing-reminder-backend/internal/models"
	"billing-reminder-backend/internal/repository"
	"billing-reminder-backend/internal/senders"
	"billing-reminder-backend/internal/services/dispatch"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	fixedNow = time.Date(2026, time.October, 14, 12, 0, 0, 0, time.UTC)
	today    = calendar.MustNew(2026, time.October, 14)
)

type recordingNotifier struct {
	mu   sync.Mutex
	runs []models.DispatchRun
}

func (n *recordingNotifier) RunFinished(_ context.Context, run models.DispatchRun) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.runs = append(n.runs, run)
	return nil
}

type fixture struct {
	svc      *BillingService
	invoices *repository.InvoiceRepository
	messages *repository.MessageRepository
	notifier *recordingNotifier
}

func newFixture(t *testing.T, whatsapp senders.Sender) *fixture {
	t.Helper()
	return newFixtureWith(t, whatsapp, zerolog.Nop())
}

func newFixtureWith(t *testing.T, whatsapp senders.Sender, log zerolog.Logger, opts ...Option) *fixture {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&models.Invoice{}, &models.Message{}, &models.MessageTemplate{}, &models.DispatchRun{}, &models.InvoiceAuditLog{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	if whatsapp == nil {
		whatsapp = senders.SenderFunc(func(context.Context, senders.Outgoing) (senders.Result, error) {
			return senders.Result{Success: true, MessageID: "wa"}, nil
		})
	}

	clock := func() time.Time { return fixedNow }
	runner := dispatch.NewRunner(senders.Set{WhatsApp: whatsapp}, zerolog.Nop(), dispatch.WithDelay(0), dispatch.WithClock(clock))
	f := &fixture{
		invoices: repository.NewInvoiceRepository(db),
		messages: repository.NewMessageRepository(db),
		notifier: &recordingNotifier{},
	}
	f.svc = NewBillingService(
		f.invoices,
		f.messages,
		repository.NewTemplateRepository(db),
		repository.NewDispatchRunRepository(db),
		runner,
		log,
		append([]Option{WithClock(clock), WithNotifier(f.notifier)}, opts...)...,
	)
	return f
}

func (f *fixture) seed(t *testing.T, name string, offset int) *models.Invoice {
	t.Helper()
	inv, err := f.svc.CreateInvoice(InvoiceInput{
		CustomerName:   name,
		Amount:         decimal.NewFromInt(150),
		DueDate:        today.AddDays(offset).String(),
		WhatsAppNumber: "(11) 99999-0000",
		OrderNumber:    "PED-" + name,
	})
	if err != nil {
		t.Fatalf("create invoice: %v", err)
	}
	return inv
}

func TestCreateInvoice(t *testing.T) {
	f := newFixture(t, nil)
	inv := f.seed(t, "Ana", 3)
	if inv.WhatsAppNumber != "5511999990000" || inv.ContactChannel != models.ChannelWhatsApp {
		t.Fatalf("unexpected contact %+v", inv)
	}

	byEmail, err := f.svc.CreateInvoice(InvoiceInput{
		CustomerName: "Bia",
		Amount:       decimal.RequireFromString("10.555"),
		DueDate:      "17/10/2026",
		Email:        "bia@example.com",
	})
	if err != nil {
		t.Fatalf("create email invoice: %v", err)
	}
	if byEmail.ContactChannel != models.ChannelEmail || byEmail.DueDate != today.AddDays(3) || byEmail.Amount.String() != "10.56" {
		t.Fatalf("unexpected invoice %+v", byEmail)
	}

	bad := []InvoiceInput{
		{Amount: decimal.NewFromInt(1), DueDate: "2026-10-17", WhatsAppNumber: "11999990000"},
		{CustomerName: "X", Amount: decimal.Zero, DueDate: "2026-10-17", WhatsAppNumber: "11999990000"},
		{CustomerName: "X", Amount: decimal.NewFromInt(1), DueDate: "amanhã", WhatsAppNumber: "11999990000"},
		{CustomerName: "X", Amount: decimal.NewFromInt(1), DueDate: "2026-10-17", WhatsAppNumber: "123"},
		{CustomerName: "X", Amount: decimal.NewFromInt(1), DueDate: "2026-10-17"},
		{CustomerName: "X", Amount: decimal.NewFromInt(1), DueDate: "2026-10-17", ContactChannel: "email", WhatsAppNumber: "11999990000"},
		{CustomerName: "X", Amount: decimal.NewFromInt(1), DueDate: "2026-10-17", ContactChannel: "sms", WhatsAppNumber: "11999990000"},
	}
	for i, in := range bad {
		if _, err := f.svc.CreateInvoice(in); !errors.Is(err, ErrInvalidInvoice) {
			t.Fatalf("case %d: expected ErrInvalidInvoice, got %v", i, err)
		}
	}
}

func TestMarkPaidIsIdempotent(t *testing.T) {
	f := newFixture(t, nil)
	inv := f.seed(t, "Ana", 3)
	for i := 0; i < 2; i++ {
		got, err := f.svc.MarkPaid(inv.ID, "")
		if err != nil || !got.IsPaid {
			t.Fatalf("mark paid %d: %v", i, err)
		}
	}
	logs, _ := f.invoices.AuditLog(inv.ID)
	if len(logs) != 1 || logs[0].PerformedBy != "dashboard" {
		t.Fatalf("expected a single audit entry, got %+v", logs)
	}
}

func TestSendManual(t *testing.T) {
	f := newFixture(t, nil)
	inv := f.seed(t, "Ana", 10)

	msg, err := f.svc.SendManual(context.Background(), inv.ID, models.KindReminder)
	if err != nil {
		t.Fatalf("send manual: %v", err)
	}
	if msg.MessageType != models.KindManual || msg.DeliveryStatus != models.DeliverySent {
		t.Fatalf("unexpected message %+v", msg)
	}
	if !strings.Contains(msg.Content, "Ana") || !strings.Contains(msg.Content, "R$ 150,00") {
		t.Fatalf("default template not rendered: %q", msg.Content)
	}
	stored, _ := f.messages.List(repository.MessageFilter{InvoiceID: &inv.ID})
	if len(stored) != 1 {
		t.Fatalf("expected one ledger entry, got %d", len(stored))
	}

	if _, err := f.svc.SendManual(context.Background(), inv.ID, models.KindManual); !errors.Is(err, ErrInvalidKind) {
		t.Fatalf("expected ErrInvalidKind, got %v", err)
	}
	_, _ = f.svc.MarkPaid(inv.ID, "admin")
	if _, err := f.svc.SendManual(context.Background(), inv.ID, models.KindOverdue); !errors.Is(err, ErrInvoicePaid) {
		t.Fatalf("expected ErrInvoicePaid, got %v", err)
	}
}

func TestAutomatedRunNothingToDo(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, "Longe", 20)

	run, err := f.svc.StartAutomatedRun(context.Background(), RunRequest{})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if run.Status != models.RunNothingToDo || run.CompletedAt == nil || run.RunDate != today {
		t.Fatalf("unexpected run %+v", run)
	}
	if f.svc.Running() {
		t.Fatalf("guard must be released")
	}
}

func TestAutomatedRunCompletes(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, "Ana", 3)
	f.seed(t, "Caio", -1)
	f.seed(t, "Ontem", 4)

	run, err := f.svc.StartAutomatedRun(context.Background(), RunRequest{IncludePreviousDay: true, TriggeredBy: "test"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if run.Status != models.RunProcessing || run.Total != 3 {
		t.Fatalf("unexpected started run %+v", run)
	}
	if err := f.svc.Wait(5 * time.Second); err != nil {
		t.Fatalf("wait: %v", err)
	}

	got, err := f.svc.RunStatus(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if got.Status != models.RunCompleted || got.ProcessedCount != 3 || got.RecordedCount != 3 || got.FailedCount != 0 {
		t.Fatalf("unexpected completed run %+v", got)
	}
	msgs, _ := f.messages.List(repository.MessageFilter{RunID: &run.ID})
	if len(msgs) != 3 {
		t.Fatalf("expected 3 ledger entries, got %d", len(msgs))
	}
	if len(f.notifier.runs) != 1 || f.notifier.runs[0].ID != run.ID {
		t.Fatalf("notifier not called")
	}
}

type brokenProgress struct{}

func (brokenProgress) Save(context.Context, dispatch.Snapshot) error {
	return errors.New("progress backend down")
}

func (brokenProgress) Load(context.Context, uuid.UUID) (dispatch.Snapshot, bool, error) {
	return dispatch.Snapshot{}, false, nil
}

func TestAutomatedRunLogsProgressSaveFailures(t *testing.T) {
	var buf bytes.Buffer
	f := newFixtureWith(t, nil, zerolog.New(&buf), WithProgressStore(brokenProgress{}))
	f.seed(t, "Ana", 3)

	if _, err := f.svc.StartAutomatedRun(context.Background(), RunRequest{TriggeredBy: "test"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := f.svc.Wait(5 * time.Second); err != nil {
		t.Fatalf("wait: %v", err)
	}
	out := buf.String()
	for _, msg := range []string{"initial progress snapshot not saved", "progress snapshot not saved", "final progress snapshot not saved"} {
		if !strings.Contains(out, msg) {
			t.Fatalf("expected %q in log output:\n%s", msg, out)
		}
	}
	if strings.Count(out, "progress backend down") != 3 {
		t.Fatalf("expected three logged save failures:\n%s", out)
	}
}

func TestAutomatedRunRejectsSecondStart(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	var once sync.Once
	f := newFixture(t, senders.SenderFunc(func(context.Context, senders.Outgoing) (senders.Result, error) {
		once.Do(func() { close(entered) })
		<-release
		return senders.Result{Success: true}, nil
	}))
	f.seed(t, "Ana", 3)

	if _, err := f.svc.StartAutomatedRun(context.Background(), RunRequest{}); err != nil {
		t.Fatalf("start: %v", err)
	}
	<-entered
	if _, err := f.svc.StartAutomatedRun(context.Background(), RunRequest{}); !errors.Is(err, ErrBatchInProgress) {
		t.Fatalf("expected ErrBatchInProgress, got %v", err)
	}
	close(release)
	if err := f.svc.Wait(5 * time.Second); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if _, err := f.svc.StartAutomatedRun(context.Background(), RunRequest{}); err != nil {
		t.Fatalf("a new run must be accepted after completion: %v", err)
	}
	_ = f.svc.Wait(5 * time.Second)
}

func TestPreviewAndDashboard(t *testing.T) {
	f := newFixture(t, senders.SenderFunc(func(context.Context, senders.Outgoing) (senders.Result, error) {
		return senders.Result{Success: false, Error: "offline"}, nil
	}))
	f.seed(t, "Ana", 3)
	f.seed(t, "Caio", -1)
	f.seed(t, "Ontem", 4)
	paid := f.seed(t, "Paga", 3)
	_, _ = f.svc.MarkPaid(paid.ID, "admin")

	p, err := f.svc.Preview(calendar.Date{}, false)
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if p.Today != today || p.Counts.Total != 2 || p.Counts.PreviousDay != 1 || len(p.DueSoon) != 1 || len(p.DuePreviousDay) != 1 {
		t.Fatalf("unexpected preview %+v", p)
	}

	if _, err := f.svc.SendManual(context.Background(), p.DueSoon[0].ID, models.KindReminder); err != nil {
		t.Fatalf("send: %v", err)
	}
	d, err := f.svc.DashboardStats(today)
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if d.Invoices.Total != 4 || d.Invoices.PaidCount != 1 || d.Invoices.OverdueCount != 1 {
		t.Fatalf("unexpected invoice stats %+v", d.Invoices)
	}
	if d.Messages.Failed != 1 || d.Automation.Total != 2 || d.LastRun != nil {
		t.Fatalf("unexpected dashboard %+v", d)
	}
}
