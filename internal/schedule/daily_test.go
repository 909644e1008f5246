package schedule

import (
	"context"
	"testing"
	"time"

	"billing-reminder-backend/internal/models"
	"billing-reminder-backend/internal/services/billing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type stubStarter struct {
	reqs []billing.RunRequest
	err  error
}

func (s *stubStarter) StartAutomatedRun(_ context.Context, req billing.RunRequest) (*models.DispatchRun, error) {
	s.reqs = append(s.reqs, req)
	if s.err != nil {
		return nil, s.err
	}
	return &models.DispatchRun{ID: uuid.New(), Status: models.RunProcessing}, nil
}

func TestNewDailyRejectsBadSchedule(t *testing.T) {
	if _, err := NewDaily("every morning", time.UTC, &stubStarter{}, true, zerolog.Nop()); err == nil {
		t.Fatalf("expected invalid schedule error")
	}
}

func TestFireStartsRun(t *testing.T) {
	starter := &stubStarter{}
	d, err := NewDaily("0 0 8 * * *", time.UTC, starter, true, zerolog.Nop())
	if err != nil {
		t.Fatalf("new daily: %v", err)
	}
	d.Fire()
	if len(starter.reqs) != 1 || !starter.reqs[0].IncludePreviousDay || starter.reqs[0].TriggeredBy != "schedule" {
		t.Fatalf("unexpected requests %+v", starter.reqs)
	}

	starter.err = billing.ErrBatchInProgress
	d.Fire()
	if len(starter.reqs) != 2 {
		t.Fatalf("expected a second attempt")
	}
}

func TestNextFiresAtConfiguredHour(t *testing.T) {
	loc := time.FixedZone("BRT", -3*3600)
	d, err := NewDaily("0 0 8 * * *", loc, &stubStarter{}, false, zerolog.Nop())
	if err != nil {
		t.Fatalf("new daily: %v", err)
	}
	d.Start()
	defer d.Stop()

	deadline := time.Now().Add(time.Second)
	var next time.Time
	for time.Now().Before(deadline) {
		if next = d.Next(); !next.IsZero() {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if next.IsZero() {
		t.Fatalf("entry never scheduled")
	}
	if h := next.In(loc).Hour(); h != 8 {
		t.Fatalf("expected next run at 08:00 local, got %v", next.In(loc))
	}
}
