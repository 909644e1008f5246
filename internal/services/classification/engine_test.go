package classification

import (
	"errors"
	"testing"
	"time"

	"billing-reminder-backend/internal/calendar"
	"billing-reminder-backend/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var today = calendar.MustNew(2026, time.October, 14)

func invoiceDue(offset int) models.Invoice {
	return models.Invoice{
		ID:             uuid.New(),
		CustomerName:   "Cliente",
		Amount:         decimal.NewFromInt(100),
		DueDate:        today.AddDays(offset),
		ContactChannel: models.ChannelWhatsApp,
		WhatsAppNumber: "5511999990000",
	}
}

func ids(invoices []models.Invoice) []uuid.UUID {
	out := make([]uuid.UUID, len(invoices))
	for i, inv := range invoices {
		out[i] = inv.ID
	}
	return out
}

func TestClassifyBuckets(t *testing.T) {
	soon := invoiceDue(3)
	overdue := invoiceDue(-1)
	prevSoon := invoiceDue(4)
	prevOverdue := invoiceDue(-2)
	dueToday := invoiceDue(0)
	farAway := invoiceDue(10)

	b, err := Classify([]models.Invoice{soon, overdue, prevSoon, prevOverdue, dueToday, farAway}, today)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	check := func(name string, got []models.Invoice, want models.Invoice) {
		t.Helper()
		if len(got) != 1 || got[0].ID != want.ID {
			t.Fatalf("%s: expected [%s], got %v", name, want.ID, ids(got))
		}
	}
	check("DueSoon", b.DueSoon, soon)
	check("RecentlyOverdue", b.RecentlyOverdue, overdue)
	check("DuePreviousDay", b.DuePreviousDay, prevSoon)
	check("OverduePreviousDay", b.OverduePreviousDay, prevOverdue)
	if len(b.Rejected) != 0 {
		t.Fatalf("unexpected rejections: %v", b.Rejected)
	}
}

func TestClassifyFiltersPaidAndUncontactable(t *testing.T) {
	paid := invoiceDue(3)
	paid.IsPaid = true
	noNumber := invoiceDue(3)
	noNumber.WhatsAppNumber = " "
	wrongField := invoiceDue(3)
	wrongField.ContactChannel = models.ChannelEmail
	emailOK := invoiceDue(3)
	emailOK.ContactChannel = models.ChannelEmail
	emailOK.Email = "cliente@example.com"

	b, err := Classify([]models.Invoice{paid, noNumber, wrongField, emailOK}, today)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if len(b.DueSoon) != 1 || b.DueSoon[0].ID != emailOK.ID {
		t.Fatalf("expected only the email invoice, got %v", ids(b.DueSoon))
	}
}

func TestClassifyIsDisjointForAnyOffset(t *testing.T) {
	var invoices []models.Invoice
	for offset := -30; offset <= 30; offset++ {
		invoices = append(invoices, invoiceDue(offset))
	}
	for shift := -5; shift <= 5; shift++ {
		b, err := Classify(invoices, today.AddDays(shift))
		if err != nil {
			t.Fatalf("classify: %v", err)
		}
		seen := map[uuid.UUID]string{}
		for name, bucket := range map[string][]models.Invoice{
			"due_soon": b.DueSoon, "recently_overdue": b.RecentlyOverdue,
			"due_previous": b.DuePreviousDay, "overdue_previous": b.OverduePreviousDay,
		} {
			for _, inv := range bucket {
				if prev, ok := seen[inv.ID]; ok {
					t.Fatalf("invoice %s in both %s and %s", inv.ID, prev, name)
				}
				seen[inv.ID] = name
			}
		}
		if len(seen) != 4 {
			t.Fatalf("expected one invoice per bucket, got %d", len(seen))
		}
	}
}

func TestClassifyKeepsInputOrder(t *testing.T) {
	a, b2, c := invoiceDue(3), invoiceDue(3), invoiceDue(3)
	b, _ := Classify([]models.Invoice{c, a, b2}, today)
	got := ids(b.DueSoon)
	want := []uuid.UUID{c.ID, a.ID, b2.ID}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order changed: %v", got)
		}
	}
}

func TestClassifyRejectsBadDueDate(t *testing.T) {
	bad := invoiceDue(3)
	bad.DueDate = calendar.Date{}
	impossible := invoiceDue(3)
	impossible.DueDate = calendar.Date{Year: 2026, Month: time.February, Day: 31}

	b, err := Classify([]models.Invoice{bad, impossible}, today)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if len(b.Rejected) != 2 {
		t.Fatalf("expected 2 rejections, got %d", len(b.Rejected))
	}
	for _, r := range b.Rejected {
		if !errors.Is(r.Err, ErrInvalidDueDate) {
			t.Fatalf("unexpected rejection error %v", r.Err)
		}
	}
	if len(b.DueSoon)+len(b.RecentlyOverdue) != 0 {
		t.Fatalf("rejected invoices must not be classified")
	}
}

func TestClassifyInvalidToday(t *testing.T) {
	if _, err := Classify(nil, calendar.Date{}); !errors.Is(err, ErrInvalidToday) {
		t.Fatalf("expected ErrInvalidToday, got %v", err)
	}
	if _, err := Classify(nil, calendar.Date{Year: 2026, Month: time.April, Day: 31}); !errors.Is(err, ErrInvalidToday) {
		t.Fatalf("expected ErrInvalidToday for impossible day, got %v", err)
	}
}

func TestQueueOrderAndPreviousDay(t *testing.T) {
	i1, i2 := invoiceDue(3), invoiceDue(3)
	i3 := invoiceDue(-1)
	i4 := invoiceDue(4)
	i5 := invoiceDue(-2)
	b, _ := Classify([]models.Invoice{i5, i1, i4, i3, i2}, today)

	q := b.Queue(false)
	want := []uuid.UUID{i1.ID, i2.ID, i3.ID}
	if len(q) != len(want) {
		t.Fatalf("expected %d items, got %d", len(want), len(q))
	}
	for i, item := range q {
		if item.Invoice.ID != want[i] {
			t.Fatalf("position %d: got %s want %s", i, item.Invoice.ID, want[i])
		}
	}
	if q[0].Kind() != models.KindReminder || q[2].Kind() != models.KindOverdue {
		t.Fatalf("unexpected kinds %s %s", q[0].Kind(), q[2].Kind())
	}

	full := b.Queue(true)
	if len(full) != 5 || full[3].Invoice.ID != i4.ID || full[4].Invoice.ID != i5.ID {
		t.Fatalf("unexpected full queue %+v", full)
	}
	if full[3].Kind() != models.KindReminder || full[4].Kind() != models.KindOverdue {
		t.Fatalf("previous-day kinds wrong")
	}
}

func TestCounts(t *testing.T) {
	b, _ := Classify([]models.Invoice{invoiceDue(3), invoiceDue(-1), invoiceDue(4), invoiceDue(-2), invoiceDue(-2)}, today)
	c := b.Counts(false)
	if c.Reminders != 1 || c.Collections != 1 || c.PreviousDay != 3 || c.Total != 2 {
		t.Fatalf("unexpected counts %+v", c)
	}
	c = b.Counts(true)
	if c.Reminders != 2 || c.Collections != 3 || c.Total != 5 {
		t.Fatalf("unexpected counts with previous day %+v", c)
	}
}
