package billing

import (
	"context"
	"errors"
	"time"

	"billing-reminder-backend/internal/calendar"
	"billing-reminder-backend/internal/models"
	"billing-reminder-backend/internal/services/classification"
	"billing-reminder-backend/internal/services/dispatch"
	"billing-reminder-backend/internal/templates"

	"github.com/google/uuid"
)

// ErrBatchInProgress is returned while an automated run is still sending.
var ErrBatchInProgress = dispatch.ErrBatchInProgress

type RunRequest struct {
	Today              calendar.Date
	IncludePreviousDay bool
	TriggeredBy        string
}

// StartAutomatedRun records a dispatch run and processes it in the
// background. A run with an empty queue is stored as nothing_to_do and
// returned already complete.
func (s *BillingService) StartAutomatedRun(ctx context.Context, req RunRequest) (*models.DispatchRun, error) {
	if !s.active.CompareAndSwap(false, true) {
		return nil, ErrBatchInProgress
	}
	launched := false
	defer func() {
		if !launched {
			s.active.Store(false)
		}
	}()

	today := s.todayOr(req.Today)
	if req.TriggeredBy == "" {
		req.TriggeredBy = "dashboard"
	}

	invoices, err := s.invoiceRepo.ListUnpaid()
	if err != nil {
		return nil, err
	}
	pair, err := s.templateRepo.GetPair()
	if err != nil {
		return nil, err
	}
	buckets, err := classification.Classify(invoices, today)
	if err != nil {
		return nil, err
	}
	counts := buckets.Counts(req.IncludePreviousDay)

	started := s.now()
	run := &models.DispatchRun{
		ID:                 uuid.New(),
		RunDate:            today,
		IncludePreviousDay: req.IncludePreviousDay,
		Total:              counts.Total,
		Status:             models.RunProcessing,
		TriggeredBy:        req.TriggeredBy,
		StartedAt:          started,
		CreatedAt:          started,
	}
	if counts.Total == 0 {
		run.Status = models.RunNothingToDo
		run.CompletedAt = &started
	}
	if err := s.runRepo.Create(run); err != nil {
		return nil, err
	}
	if run.Status == models.RunNothingToDo {
		s.logger.Info().Str("run_id", run.ID.String()).Str("today", today.String()).Msg("automated run has nothing to send")
		return run, nil
	}

	if err := s.progress.Save(ctx, dispatch.Snapshot{
		Progress: dispatch.Progress{RunID: run.ID, Total: run.Total},
		Status:   models.RunProcessing,
	}); err != nil {
		s.logger.Warn().Err(err).Str("run_id", run.ID.String()).Msg("initial progress snapshot not saved")
	}

	launched = true
	s.wg.Add(1)
	go s.processRun(*run, invoices, pair, today)

	return run, nil
}

func (s *BillingService) processRun(run models.DispatchRun, invoices []models.Invoice, pair templates.Pair, today calendar.Date) {
	defer s.wg.Done()
	defer s.active.Store(false)

	ctx := context.Background()
	log := s.logger.With().Str("run_id", run.ID.String()).Logger()

	out, err := s.runner.Run(ctx, invoices, pair, today, s.ledger, dispatch.Options{
		RunID:              run.ID,
		IncludePreviousDay: run.IncludePreviousDay,
		Progress: func(p dispatch.Progress) {
			if err := s.progress.Save(ctx, dispatch.Snapshot{Progress: p, Status: models.RunProcessing}); err != nil {
				log.Warn().Err(err).Msg("progress snapshot not saved")
			}
			if err := s.runRepo.UpdateProgress(run.ID, p.Processed, p.Recorded, p.Failed); err != nil {
				log.Warn().Err(err).Msg("progress not persisted")
			}
		},
	})

	done := s.now()
	run.CompletedAt = &done
	if err != nil {
		run.Status = models.RunFailed
		run.Error = err.Error()
		log.Error().Err(err).Msg("automated run failed")
	} else {
		run.Status = models.RunCompleted
		run.ProcessedCount = out.Processed
		run.RecordedCount = len(out.Messages)
		run.FailedCount = out.Failed
		run.SkippedCount = len(out.Skipped)
	}

	if err := s.runRepo.Complete(&run); err != nil {
		log.Error().Err(err).Msg("failed to persist run completion")
	}
	if err := s.progress.Save(ctx, dispatch.Snapshot{
		Progress: dispatch.Progress{
			RunID:     run.ID,
			Processed: run.ProcessedCount,
			Total:     run.Total,
			Recorded:  run.RecordedCount,
			Failed:    run.FailedCount,
		},
		Status: run.Status,
	}); err != nil {
		log.Warn().Err(err).Msg("final progress snapshot not saved")
	}

	for _, n := range s.notifiers {
		if err := n.RunFinished(ctx, run); err != nil {
			log.Warn().Err(err).Msg("run summary not delivered")
		}
	}
}

// RunStatus returns the stored run, overlaid with the live snapshot while
// it is still processing.
func (s *BillingService) RunStatus(ctx context.Context, id uuid.UUID) (*models.DispatchRun, error) {
	run, err := s.runRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if run.Status != models.RunProcessing {
		return run, nil
	}
	snap, ok, err := s.progress.Load(ctx, id)
	if err != nil {
		s.logger.Warn().Err(err).Str("run_id", id.String()).Msg("progress snapshot unavailable")
		return run, nil
	}
	if ok && snap.Processed >= run.ProcessedCount {
		run.ProcessedCount = snap.Processed
		run.RecordedCount = snap.Recorded
		run.FailedCount = snap.Failed
	}
	return run, nil
}

// Running reports whether an automated run is in flight.
func (s *BillingService) Running() bool {
	return s.active.Load()
}

// Wait blocks until background runs have finished or timeout passes.
func (s *BillingService) Wait(timeout time.Duration) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return errors.New("timed out waiting for dispatch runs")
	}
}
