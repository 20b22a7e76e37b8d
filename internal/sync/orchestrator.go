// Package sync drives the bulk crawl of neighbourhood boundaries from the
// Police UK API into the geometry store, tracks per-force outcomes, and
// decides at startup whether a full, recovery or no sync is needed.
package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/PoliceEvents/PE-Backend/internal/logger"
	"github.com/PoliceEvents/PE-Backend/internal/policeuk"
	"github.com/PoliceEvents/PE-Backend/internal/slug"
	"github.com/PoliceEvents/PE-Backend/internal/store"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// CrawlClient is the slice of the Police UK client the orchestrator needs.
type CrawlClient interface {
	ListForces(ctx context.Context) ([]policeuk.Force, error)
	ListNeighbourhoods(ctx context.Context, forceID string) ([]policeuk.NeighbourhoodRef, error)
	GetBoundary(ctx context.Context, forceID, neighbourhoodID string) ([]policeuk.BoundaryPoint, error)
	Close()
}

// BoundaryStore is the slice of the geometry store the orchestrator writes to.
type BoundaryStore interface {
	UpsertNeighbourhood(ctx context.Context, up store.NeighbourhoodUpsert) (stored, repaired bool, err error)
	SaveSyncMetadata(ctx context.Context, meta store.SyncMetadata) error
	UpdateForceStatus(ctx context.Context, fs store.ForceSyncStatus) error
}

// requestInterval bounds the crawl rate against the upstream API: one
// boundary request per interval within a force.
const requestInterval = 100 * time.Millisecond

// Orchestrator runs full and recovery syncs. It is the sole writer to the
// neighbourhoods table; callers must never run two orchestrations at once
// (the scheduler's single worker enforces that).
type Orchestrator struct {
	client  CrawlClient
	store   BoundaryStore
	tracker *Tracker
	limiter *rate.Limiter
}

func NewOrchestrator(client CrawlClient, st BoundaryStore, tracker *Tracker) *Orchestrator {
	return &Orchestrator{
		client:  client,
		store:   st,
		tracker: tracker,
		limiter: rate.NewLimiter(rate.Every(requestInterval), 1),
	}
}

// RunFull crawls every force. Existing rows are replaced incrementally per
// neighbourhood; nothing is wholesale-cleared.
func (o *Orchestrator) RunFull(ctx context.Context) error {
	forces, err := o.client.ListForces(ctx)
	if err != nil {
		return o.abortBeforeRun(ctx, fmt.Errorf("list forces: %w", err))
	}
	lg := logger.L()
	lg.Info().Int("forces", len(forces)).Msg("starting full sync")
	return o.run(ctx, forces)
}

// RunRecovery crawls only the given forces. IDs that the live forces list no
// longer knows are still attempted, with the ID standing in for the name.
func (o *Orchestrator) RunRecovery(ctx context.Context, forceIDs []string) error {
	names := map[string]string{}
	if all, err := o.client.ListForces(ctx); err == nil {
		for _, f := range all {
			names[f.ID] = f.Name
		}
	}
	forces := make([]policeuk.Force, 0, len(forceIDs))
	for _, id := range forceIDs {
		name := names[id]
		if name == "" {
			name = id
		}
		forces = append(forces, policeuk.Force{ID: id, Name: name})
	}
	lg := logger.L()
	lg.Info().Int("forces", len(forces)).Msg("starting recovery sync")
	return o.run(ctx, forces)
}

// runTotals accumulates counts across one run.
type runTotals struct {
	forcesProcessed          int
	forcesFailed             int
	totalNeighbourhoods      int
	neighbourhoodsSynced     int
	neighbourhoodsFailed     int
	neighbourhoodsNoBoundary int
}

// run is the shared body of full and recovery syncs. Per-neighbourhood and
// per-force failures are absorbed into the counters; an error escaping this
// function means a bookkeeping or infrastructure fault, which is persisted
// as a failed run and returned to the caller after client cleanup.
func (o *Orchestrator) run(ctx context.Context, forces []policeuk.Force) (err error) {
	defer o.client.Close()

	log := logger.L()
	started := time.Now()
	meta := store.SyncMetadata{
		RunID:       uuid.NewString(),
		Status:      store.StatusRunning,
		StartedAt:   started,
		TotalForces: len(forces),
	}

	o.tracker.StartRun(len(forces))
	if err := o.store.SaveSyncMetadata(ctx, meta); err != nil {
		return o.failRun(ctx, meta, err)
	}

	var totals runTotals
	for _, force := range forces {
		o.tracker.UpdateProgress(ProgressUpdate{
			CurrentForce:     &force.ID,
			CurrentForceName: &force.Name,
		})

		if err := o.processForce(ctx, force, &totals); err != nil {
			// Only bookkeeping writes propagate out of processForce.
			return o.failRun(ctx, meta, err)
		}

		totals.forcesProcessed++
		o.tracker.UpdateProgress(ProgressUpdate{ForcesProcessed: &totals.forcesProcessed})
	}

	completed := time.Now()
	meta.Status = store.StatusCompleted
	meta.CompletedAt = &completed
	meta.DurationSeconds = int(completed.Sub(started).Seconds())
	meta.SyncedForces = totals.forcesProcessed - totals.forcesFailed
	meta.FailedForces = totals.forcesFailed
	meta.TotalNeighbourhoods = totals.totalNeighbourhoods
	meta.SyncedNeighbourhoods = totals.neighbourhoodsSynced
	meta.FailedNeighbourhoods = totals.neighbourhoodsFailed
	meta.NoBoundaryNeighbourhoods = totals.neighbourhoodsNoBoundary
	if totals.totalNeighbourhoods > 0 {
		meta.SuccessRate = float64(totals.neighbourhoodsSynced) / float64(totals.totalNeighbourhoods) * 100
	}
	if err := o.store.SaveSyncMetadata(ctx, meta); err != nil {
		return o.failRun(ctx, meta, err)
	}

	o.tracker.CompleteRun(RunTotals{
		NeighbourhoodsSynced:     totals.neighbourhoodsSynced,
		NeighbourhoodsFailed:     totals.neighbourhoodsFailed,
		NeighbourhoodsNoBoundary: totals.neighbourhoodsNoBoundary,
		TotalNeighbourhoods:      totals.totalNeighbourhoods,
		ForcesProcessed:          totals.forcesProcessed,
		ForcesFailed:             totals.forcesFailed,
	})

	log.Info().
		Int("forces", totals.forcesProcessed).
		Int("forces_failed", totals.forcesFailed).
		Int("synced", totals.neighbourhoodsSynced).
		Int("failed", totals.neighbourhoodsFailed).
		Int("no_boundary", totals.neighbourhoodsNoBoundary).
		Dur("duration", completed.Sub(started)).
		Msg("sync complete")
	return nil
}

// processForce crawls one force. Upstream and per-record store failures are
// absorbed into the force's own status row; only failures to write the
// status row itself are returned.
func (o *Orchestrator) processForce(ctx context.Context, force policeuk.Force, totals *runTotals) error {
	log := logger.L()
	forceStarted := time.Now()

	if err := o.store.UpdateForceStatus(ctx, store.ForceSyncStatus{
		ForceID:   force.ID,
		Status:    store.StatusRunning,
		StartedAt: forceStarted,
	}); err != nil {
		return err
	}

	markForce := func(status string, expected, synced int, errMsg string) error {
		now := time.Now()
		return o.store.UpdateForceStatus(ctx, store.ForceSyncStatus{
			ForceID:                force.ID,
			Status:                 status,
			StartedAt:              forceStarted,
			CompletedAt:            &now,
			ExpectedNeighbourhoods: expected,
			SyncedNeighbourhoods:   synced,
			ErrorMessage:           errMsg,
		})
	}

	neighbourhoods, err := o.client.ListNeighbourhoods(ctx, force.ID)
	if err != nil {
		log.Error().Str("force", force.ID).Err(err).Msg("failed to list neighbourhoods")
		totals.forcesFailed++
		return markForce(store.StatusFailed, 0, 0, err.Error())
	}
	if len(neighbourhoods) == 0 {
		log.Warn().Str("force", force.ID).Msg("no neighbourhoods returned")
		totals.forcesFailed++
		return markForce(store.StatusFailed, 0, 0, "no neighbourhoods returned")
	}

	log.Info().Str("force", force.ID).Int("neighbourhoods", len(neighbourhoods)).
		Msg("processing force")

	totals.totalNeighbourhoods += len(neighbourhoods)
	o.tracker.UpdateProgress(ProgressUpdate{TotalNeighbourhoods: &totals.totalNeighbourhoods})

	forceSlug := slug.Make(force.Name)
	synced, failed := 0, 0
	var lastErr string

	for _, nb := range neighbourhoods {
		// Pace boundary requests against the upstream service.
		if err := o.limiter.Wait(ctx); err != nil {
			totals.forcesFailed++
			return markForce(store.StatusFailed, len(neighbourhoods), synced, err.Error())
		}

		boundary, err := o.client.GetBoundary(ctx, force.ID, nb.ID)
		switch {
		case err != nil:
			log.Error().Str("force", force.ID).Str("neighbourhood", nb.ID).Err(err).
				Msg("boundary fetch failed")
			failed++
			totals.neighbourhoodsFailed++
			lastErr = err.Error()

		case len(boundary) == 0:
			// Legitimately no boundary data; not an error.
			totals.neighbourhoodsNoBoundary++

		default:
			points := make([]store.BoundaryPoint, len(boundary))
			for i, p := range boundary {
				points[i] = store.BoundaryPoint{Latitude: p.Latitude, Longitude: p.Longitude}
			}
			stored, _, err := o.store.UpsertNeighbourhood(ctx, store.NeighbourhoodUpsert{
				ForceID:           force.ID,
				NeighbourhoodID:   nb.ID,
				Name:              nb.Name,
				ForceSlug:         forceSlug,
				NeighbourhoodSlug: slug.Make(nb.Name),
				Boundary:          points,
			})
			if err != nil {
				// Per-record write failure: count and carry on.
				log.Error().Str("force", force.ID).Str("neighbourhood", nb.ID).Err(err).
					Msg("neighbourhood write failed")
				failed++
				totals.neighbourhoodsFailed++
				lastErr = err.Error()
			} else if !stored {
				failed++
				totals.neighbourhoodsFailed++
				lastErr = "invalid boundary geometry"
			} else {
				synced++
				totals.neighbourhoodsSynced++
			}
		}

		processed := totals.neighbourhoodsSynced + totals.neighbourhoodsFailed + totals.neighbourhoodsNoBoundary
		o.tracker.UpdateProgress(ProgressUpdate{
			NeighbourhoodsProcessed:  &processed,
			NeighbourhoodsSynced:     &totals.neighbourhoodsSynced,
			NeighbourhoodsFailed:     &totals.neighbourhoodsFailed,
			NeighbourhoodsNoBoundary: &totals.neighbourhoodsNoBoundary,
		})
	}

	status := store.StatusSuccess
	switch {
	case failed > 0 && synced == 0:
		status = store.StatusFailed
		totals.forcesFailed++
	case failed > 0:
		status = store.StatusPartial
	}
	return markForce(status, len(neighbourhoods), synced, lastErr)
}

// abortBeforeRun records a run that could not even start (the forces list was
// unavailable) and hands the error back to the scheduler.
func (o *Orchestrator) abortBeforeRun(ctx context.Context, cause error) error {
	o.client.Close()
	now := time.Now()
	meta := store.SyncMetadata{
		RunID:        uuid.NewString(),
		Status:       store.StatusFailed,
		StartedAt:    now,
		CompletedAt:  &now,
		ErrorMessage: cause.Error(),
	}
	if err := o.store.SaveSyncMetadata(ctx, meta); err != nil {
		lg := logger.L()
		lg.Error().Err(err).Msg("could not persist aborted run metadata")
	}
	o.tracker.FailRun(cause.Error())
	return cause
}

// failRun persists the failed-run metadata and returns the original error so
// the scheduler can log and alert.
func (o *Orchestrator) failRun(ctx context.Context, meta store.SyncMetadata, cause error) error {
	now := time.Now()
	meta.Status = store.StatusFailed
	meta.CompletedAt = &now
	meta.DurationSeconds = int(now.Sub(meta.StartedAt).Seconds())
	meta.ErrorMessage = cause.Error()
	if err := o.store.SaveSyncMetadata(ctx, meta); err != nil {
		lg := logger.L()
		lg.Error().Err(err).Msg("could not persist failed run metadata")
	}
	o.tracker.FailRun(cause.Error())
	return cause
}
