package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/PoliceEvents/PE-Backend/internal/logger"
	"github.com/PoliceEvents/PE-Backend/internal/store"
	"github.com/robfig/cron/v3"
)

// MetadataReader is the slice of the store the scheduler consults for the
// startup strategy decision.
type MetadataReader interface {
	Count(ctx context.Context) (int64, error)
	GetSyncMetadata(ctx context.Context) (*store.SyncMetadata, error)
	GetFailedForces(ctx context.Context) ([]string, error)
}

// runRequest is one queued sync trigger.
type runRequest struct {
	recovery bool
	forceIDs []string
}

// Scheduler owns the single long-lived sync worker. Timer callbacks and HTTP
// triggers only ever enqueue onto a buffered channel; the worker goroutine is
// the only place a run executes, so two runs can never race on the store.
type Scheduler struct {
	orch     *Orchestrator
	reader   MetadataReader
	tracker  *Tracker
	interval time.Duration
	trigger  chan runRequest
	cron     *cron.Cron
	entryID  cron.EntryID
}

func NewScheduler(orch *Orchestrator, reader MetadataReader, tracker *Tracker, interval time.Duration) *Scheduler {
	return &Scheduler{
		orch:     orch,
		reader:   reader,
		tracker:  tracker,
		interval: interval,
		trigger:  make(chan runRequest, 1),
		cron:     cron.New(),
	}
}

// Start launches the worker, registers the recurring sync and, once per
// process start, applies the startup strategy after its delay.
func (s *Scheduler) Start(ctx context.Context) error {
	log := logger.L()

	go s.worker(ctx)

	id, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.interval), func() {
		if !s.TriggerFull() {
			log.Warn().Msg("scheduled sync skipped: a run is already queued or in progress")
		}
	})
	if err != nil {
		return fmt.Errorf("schedule recurring sync: %w", err)
	}
	s.entryID = id
	s.cron.Start()
	s.publishNextRun()

	strategy, err := s.startupStrategy(ctx)
	if err != nil {
		return err
	}
	log.Info().Str("type", strategy.Type).Dur("delay", strategy.Delay).
		Str("reason", strategy.Reason).Msg("startup sync strategy")

	switch strategy.Type {
	case StrategySkip:
		// Nothing to do until the recurring schedule fires.
	case StrategyFull:
		time.AfterFunc(strategy.Delay, func() {
			if !s.TriggerFull() {
				log.Warn().Msg("startup full sync skipped: worker busy")
			}
		})
	case StrategyRecovery:
		forceIDs := strategy.ForceIDs
		time.AfterFunc(strategy.Delay, func() {
			if !s.TriggerRecovery(forceIDs) {
				log.Warn().Msg("startup recovery sync skipped: worker busy")
			}
		})
	}
	return nil
}

// Stop halts the recurring schedule. An in-flight run is not cancelled; the
// stale-lock check covers a process that dies mid-run.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}

// TriggerFull enqueues a full sync. Returns false when a run is already
// queued or executing - the caller gets an immediate rejection, never a
// concurrent run.
func (s *Scheduler) TriggerFull() bool {
	select {
	case s.trigger <- runRequest{}:
		return true
	default:
		return false
	}
}

// TriggerRecovery enqueues a recovery sync for the given forces.
func (s *Scheduler) TriggerRecovery(forceIDs []string) bool {
	select {
	case s.trigger <- runRequest{recovery: true, forceIDs: forceIDs}:
		return true
	default:
		return false
	}
}

// startupStrategy gathers the persisted facts and delegates to the pure
// decision function.
func (s *Scheduler) startupStrategy(ctx context.Context) (Strategy, error) {
	count, err := s.reader.Count(ctx)
	if err != nil {
		return Strategy{}, fmt.Errorf("read neighbourhood count: %w", err)
	}
	meta, err := s.reader.GetSyncMetadata(ctx)
	if err != nil {
		return Strategy{}, fmt.Errorf("read sync metadata: %w", err)
	}
	failed, err := s.reader.GetFailedForces(ctx)
	if err != nil {
		return Strategy{}, fmt.Errorf("read failed forces: %w", err)
	}
	return DetermineStrategy(count, meta, failed, time.Now()), nil
}

// worker executes queued runs one at a time for the lifetime of the process.
func (s *Scheduler) worker(ctx context.Context) {
	log := logger.L()
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-s.trigger:
			var err error
			if req.recovery {
				err = s.orch.RunRecovery(ctx, req.forceIDs)
			} else {
				err = s.orch.RunFull(ctx)
			}
			if err != nil {
				log.Error().Err(err).Msg("sync run failed")
			}
			s.publishNextRun()
		}
	}
}

// publishNextRun mirrors the cron schedule into the tracker so the status
// endpoint can always show a prospective next sync time.
func (s *Scheduler) publishNextRun() {
	if entry := s.cron.Entry(s.entryID); !entry.Next.IsZero() {
		s.tracker.SetNextRunTime(entry.Next)
	}
}
