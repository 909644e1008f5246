package classification

import (
	"errors"
	"fmt"

	"billing-reminder-backend/internal/calendar"
	"billing-reminder-backend/internal/models"
)

var (
	ErrInvalidToday   = errors.New("classification: invalid today")
	ErrInvalidDueDate = errors.New("classification: invalid due date")
)

// Bucket names the window an invoice fell into.
type Bucket string

const (
	BucketDueSoon            Bucket = "due_soon"
	BucketRecentlyOverdue    Bucket = "recently_overdue"
	BucketDuePreviousDay     Bucket = "due_previous_day"
	BucketOverduePreviousDay Bucket = "overdue_previous_day"
)

// Kind is the notice sent for invoices in the bucket.
func (b Bucket) Kind() models.MessageKind {
	switch b {
	case BucketDueSoon, BucketDuePreviousDay:
		return models.KindReminder
	default:
		return models.KindOverdue
	}
}

type Rejection struct {
	Invoice models.Invoice
	Err     error
}

// Buckets is the result of one classification. Each slice keeps input order.
type Buckets struct {
	Today              calendar.Date
	DueSoon            []models.Invoice
	RecentlyOverdue    []models.Invoice
	DuePreviousDay     []models.Invoice
	OverduePreviousDay []models.Invoice
	Rejected           []Rejection
}

// QueueItem is one invoice scheduled for dispatch.
type QueueItem struct {
	Invoice models.Invoice
	Bucket  Bucket
}

func (q QueueItem) Kind() models.MessageKind { return q.Bucket.Kind() }

// Queue is DueSoon ++ RecentlyOverdue, followed by the previous-day buckets
// when includePreviousDay is set.
func (b Buckets) Queue(includePreviousDay bool) []QueueItem {
	n := len(b.DueSoon) + len(b.RecentlyOverdue)
	if includePreviousDay {
		n += len(b.DuePreviousDay) + len(b.OverduePreviousDay)
	}
	queue := make([]QueueItem, 0, n)
	queue = appendItems(queue, b.DueSoon, BucketDueSoon)
	queue = appendItems(queue, b.RecentlyOverdue, BucketRecentlyOverdue)
	if includePreviousDay {
		queue = appendItems(queue, b.DuePreviousDay, BucketDuePreviousDay)
		queue = appendItems(queue, b.OverduePreviousDay, BucketOverduePreviousDay)
	}
	return queue
}

func appendItems(queue []QueueItem, invoices []models.Invoice, bucket Bucket) []QueueItem {
	for _, inv := range invoices {
		queue = append(queue, QueueItem{Invoice: inv, Bucket: bucket})
	}
	return queue
}

type Counts struct {
	Reminders   int `json:"reminders"`
	Collections int `json:"collections"`
	PreviousDay int `json:"previous_day"`
	Total       int `json:"total"`
}

// Counts mirrors what a run with includePreviousDay would send. PreviousDay
// is always reported so callers can show what the toggle would add.
func (b Buckets) Counts(includePreviousDay bool) Counts {
	c := Counts{
		Reminders:   len(b.DueSoon),
		Collections: len(b.RecentlyOverdue),
		PreviousDay: len(b.DuePreviousDay) + len(b.OverduePreviousDay),
	}
	if includePreviousDay {
		c.Reminders += len(b.DuePreviousDay)
		c.Collections += len(b.OverduePreviousDay)
	}
	c.Total = c.Reminders + c.Collections
	return c
}

// Eligible is the filter shared by every bucket: unpaid with a usable contact
// on the invoice's selected channel.
func Eligible(inv models.Invoice) bool {
	if inv.IsPaid {
		return false
	}
	_, ok := inv.Contact()
	return ok
}

// Classify partitions invoices into the four notification windows for today.
// Invoices without a valid due date are rejected, never defaulted to today.
func Classify(invoices []models.Invoice, today calendar.Date) (Buckets, error) {
	if today.IsZero() {
		return Buckets{}, ErrInvalidToday
	}
	if _, err := calendar.New(today.Year, today.Month, today.Day); err != nil {
		return Buckets{}, fmt.Errorf("%w: %v", ErrInvalidToday, err)
	}

	b := Buckets{Today: today}
	for _, inv := range invoices {
		if !Eligible(inv) {
			continue
		}
		due := inv.DueDate
		if due.IsZero() {
			b.Rejected = append(b.Rejected, Rejection{Invoice: inv, Err: ErrInvalidDueDate})
			continue
		}
		if _, err := calendar.New(due.Year, due.Month, due.Day); err != nil {
			b.Rejected = append(b.Rejected, Rejection{Invoice: inv, Err: fmt.Errorf("%w: %v", ErrInvalidDueDate, err)})
			continue
		}

		overdue := calendar.IsOverdue(due, today)
		switch {
		case !overdue && calendar.ShouldSendReminder(due, today):
			b.DueSoon = append(b.DueSoon, inv)
		case overdue && calendar.ShouldSendOverdue(due, today):
			b.RecentlyOverdue = append(b.RecentlyOverdue, inv)
		case !overdue && calendar.ShouldSendReminderPrevious(due, today):
			b.DuePreviousDay = append(b.DuePreviousDay, inv)
		case overdue && calendar.ShouldSendOverduePrevious(due, today):
			b.OverduePreviousDay = append(b.OverduePreviousDay, inv)
		}
	}
	return b, nil
}
