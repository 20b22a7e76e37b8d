package sync

import (
	stdsync "sync"
	"time"
)

// Tracker status values. Distinct from the persisted metadata: the tracker is
// an ephemeral, process-local view and starts over on restart.
const (
	TrackerIdle      = "idle"
	TrackerRunning   = "running"
	TrackerCompleted = "completed"
	TrackerFailed    = "failed"
)

// Progress is the live view of a running sync.
type Progress struct {
	CurrentForce             string `json:"current_force"`
	CurrentForceName         string `json:"current_force_name"`
	ForcesProcessed          int    `json:"forces_processed"`
	TotalForces              int    `json:"total_forces"`
	NeighbourhoodsProcessed  int    `json:"neighbourhoods_processed"`
	TotalNeighbourhoods      int    `json:"total_neighbourhoods"`
	NeighbourhoodsSynced     int    `json:"neighbourhoods_synced"`
	NeighbourhoodsFailed     int    `json:"neighbourhoods_failed"`
	NeighbourhoodsNoBoundary int    `json:"neighbourhoods_no_boundary"`
}

// Percentage is overall completion, against the neighbourhoods seen so far.
func (p Progress) Percentage() float64 {
	if p.TotalNeighbourhoods == 0 {
		return 0
	}
	return float64(p.NeighbourhoodsProcessed) / float64(p.TotalNeighbourhoods) * 100
}

// ProgressUpdate carries a partial update; nil fields leave the current value
// untouched. The orchestrator sends these per neighbourhood, so it must not
// need the whole struct every time.
type ProgressUpdate struct {
	CurrentForce             *string
	CurrentForceName         *string
	ForcesProcessed          *int
	NeighbourhoodsProcessed  *int
	TotalNeighbourhoods      *int
	NeighbourhoodsSynced     *int
	NeighbourhoodsFailed     *int
	NeighbourhoodsNoBoundary *int
}

// RunTotals are the final counts of one run.
type RunTotals struct {
	NeighbourhoodsSynced     int
	NeighbourhoodsFailed     int
	NeighbourhoodsNoBoundary int
	TotalNeighbourhoods      int
	ForcesProcessed          int
	ForcesFailed             int
}

// lastResult is the preserved summary of the most recent completed run.
type lastResult struct {
	completedAt time.Time
	duration    time.Duration
	totals      RunTotals
	nextRunAt   *time.Time
}

// Tracker is the concurrency-safe in-memory observer of sync progress.
// It never touches the database; durable facts live in the store's
// sync metadata and force status rows.
type Tracker struct {
	mu         stdsync.Mutex
	status     string
	progress   Progress
	startedAt  time.Time
	finishedAt time.Time
	errMsg     string
	last       *lastResult
}

func NewTracker() *Tracker {
	return &Tracker{status: TrackerIdle}
}

// StartRun resets progress and timing and marks the tracker running. The
// previous run's summary is kept until the next CompleteRun.
func (t *Tracker) StartRun(totalForces int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = TrackerRunning
	t.progress = Progress{TotalForces: totalForces}
	t.startedAt = time.Now()
	t.finishedAt = time.Time{}
	t.errMsg = ""
}

// UpdateProgress merges the supplied fields into the live progress.
func (t *Tracker) UpdateProgress(u ProgressUpdate) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if u.CurrentForce != nil {
		t.progress.CurrentForce = *u.CurrentForce
	}
	if u.CurrentForceName != nil {
		t.progress.CurrentForceName = *u.CurrentForceName
	}
	if u.ForcesProcessed != nil {
		t.progress.ForcesProcessed = *u.ForcesProcessed
	}
	if u.NeighbourhoodsProcessed != nil {
		t.progress.NeighbourhoodsProcessed = *u.NeighbourhoodsProcessed
	}
	if u.TotalNeighbourhoods != nil {
		t.progress.TotalNeighbourhoods = *u.TotalNeighbourhoods
	}
	if u.NeighbourhoodsSynced != nil {
		t.progress.NeighbourhoodsSynced = *u.NeighbourhoodsSynced
	}
	if u.NeighbourhoodsFailed != nil {
		t.progress.NeighbourhoodsFailed = *u.NeighbourhoodsFailed
	}
	if u.NeighbourhoodsNoBoundary != nil {
		t.progress.NeighbourhoodsNoBoundary = *u.NeighbourhoodsNoBoundary
	}
}

// CompleteRun records the run's summary, marks the tracker completed and
// resets the live progress. The next-run time survives from the prior result.
func (t *Tracker) CompleteRun(totals RunTotals) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = TrackerCompleted
	t.finishedAt = time.Now()

	var nextRun *time.Time
	if t.last != nil {
		nextRun = t.last.nextRunAt
	}
	t.last = &lastResult{
		completedAt: t.finishedAt,
		duration:    t.finishedAt.Sub(t.startedAt),
		totals:      totals,
		nextRunAt:   nextRun,
	}
	t.progress = Progress{}
}

// FailRun marks the tracker failed with the given message.
func (t *Tracker) FailRun(message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = TrackerFailed
	t.finishedAt = time.Now()
	t.errMsg = message
}

// SetNextRunTime records when the scheduler will fire next, independent of
// whether a run ever completed.
func (t *Tracker) SetNextRunTime(at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.last == nil {
		t.last = &lastResult{}
	}
	t.last.nextRunAt = &at
}

// NextRunTime returns the scheduled next run, if one is known.
func (t *Tracker) NextRunTime() *time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.last == nil {
		return nil
	}
	return t.last.nextRunAt
}

// Snapshot view types, shaped for the status endpoint.
type SnapshotProgress struct {
	Progress
	Percentage float64 `json:"percentage"`
}

type SnapshotTiming struct {
	StartedAt      time.Time `json:"started_at"`
	ElapsedSeconds int       `json:"elapsed_seconds"`
}

type SnapshotLastSync struct {
	CompletedAt              time.Time  `json:"completed_at"`
	DurationSeconds          int        `json:"duration_seconds"`
	NeighbourhoodsSynced     int        `json:"neighbourhoods_synced"`
	NeighbourhoodsFailed     int        `json:"neighbourhoods_failed"`
	NeighbourhoodsNoBoundary int        `json:"neighbourhoods_no_boundary"`
	TotalNeighbourhoods      int        `json:"total_neighbourhoods"`
	ForcesProcessed          int        `json:"forces_processed"`
	ForcesFailed             int        `json:"forces_failed"`
	SuccessRate              float64    `json:"success_rate"`
	NextSyncAt               *time.Time `json:"next_sync_at"`
}

type Snapshot struct {
	Status   string            `json:"status"`
	Error    string            `json:"error,omitempty"`
	Progress *SnapshotProgress `json:"progress,omitempty"`
	Timing   *SnapshotTiming   `json:"timing,omitempty"`
	LastSync *SnapshotLastSync `json:"last_sync,omitempty"`
}

// Snapshot returns a point-in-time copy of the tracker state. Live progress
// and timing appear only while a run is in flight; the last completed run's
// summary is always included once one exists. Elapsed time is derived from
// the fixed start timestamp, never accumulated.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	snap := Snapshot{Status: t.status, Error: t.errMsg}

	if t.status == TrackerRunning {
		snap.Progress = &SnapshotProgress{
			Progress:   t.progress,
			Percentage: t.progress.Percentage(),
		}
		snap.Timing = &SnapshotTiming{
			StartedAt:      t.startedAt,
			ElapsedSeconds: int(time.Since(t.startedAt).Seconds()),
		}
	}

	if t.last != nil && !t.last.completedAt.IsZero() {
		tot := t.last.totals
		rate := 0.0
		if tot.TotalNeighbourhoods > 0 {
			rate = float64(tot.NeighbourhoodsSynced) / float64(tot.TotalNeighbourhoods) * 100
		}
		snap.LastSync = &SnapshotLastSync{
			CompletedAt:              t.last.completedAt,
			DurationSeconds:          int(t.last.duration.Seconds()),
			NeighbourhoodsSynced:     tot.NeighbourhoodsSynced,
			NeighbourhoodsFailed:     tot.NeighbourhoodsFailed,
			NeighbourhoodsNoBoundary: tot.NeighbourhoodsNoBoundary,
			TotalNeighbourhoods:      tot.TotalNeighbourhoods,
			ForcesProcessed:          tot.ForcesProcessed,
			ForcesFailed:             tot.ForcesFailed,
			SuccessRate:              rate,
			NextSyncAt:               t.last.nextRunAt,
		}
	} else if t.last != nil && t.last.nextRunAt != nil {
		snap.LastSync = &SnapshotLastSync{NextSyncAt: t.last.nextRunAt}
	}

	return snap
}
