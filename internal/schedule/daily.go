package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"billing-reminder-backend/internal/models"
	"billing-reminder-backend/internal/services/billing"

	"github.com/robfig/cron"
	"github.com/rs/zerolog"
)

// Starter launches an automated run; *billing.BillingService implements it.
type Starter interface {
	StartAutomatedRun(ctx context.Context, req billing.RunRequest) (*models.DispatchRun, error)
}

// Daily triggers the automated run on a cron schedule. Nothing about fired
// runs is kept between restarts.
type Daily struct {
	cron            *cron.Cron
	starter         Starter
	includePrevious bool
	logger          zerolog.Logger
}

// NewDaily validates the cron expression (six fields with seconds, or a
// descriptor such as "@daily") and registers the job. Call Start to begin firing.
func NewDaily(expr string, loc *time.Location, starter Starter, includePrevious bool, logger zerolog.Logger) (*Daily, error) {
	if loc == nil {
		loc = time.UTC
	}
	if _, err := cron.Parse(expr); err != nil {
		return nil, fmt.Errorf("invalid DISPATCH_CRON %q: %w", expr, err)
	}
	d := &Daily{
		cron:            cron.NewWithLocation(loc),
		starter:         starter,
		includePrevious: includePrevious,
		logger:          logger,
	}
	if err := d.cron.AddFunc(expr, d.Fire); err != nil {
		return nil, err
	}
	return d, nil
}

// Fire starts one run now. A run still in flight is logged and left alone.
func (d *Daily) Fire() {
	run, err := d.starter.StartAutomatedRun(context.Background(), billing.RunRequest{
		IncludePreviousDay: d.includePrevious,
		TriggeredBy:        "schedule",
	})
	switch {
	case errors.Is(err, billing.ErrBatchInProgress):
		d.logger.Warn().Msg("scheduled run skipped, a batch is still running")
	case err != nil:
		d.logger.Error().Err(err).Msg("scheduled run failed to start")
	default:
		d.logger.Info().Str("run_id", run.ID.String()).Str("status", run.Status).Msg("scheduled run started")
	}
}

func (d *Daily) Start() {
	d.cron.Start()
}

func (d *Daily) Stop() {
	d.cron.Stop()
}

// Next reports when the job fires next.
func (d *Daily) Next() time.Time {
	for _, e := range d.cron.Entries() {
		return e.Next
	}
	return time.Time{}
}
