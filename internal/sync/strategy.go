package sync

import (
	"fmt"
	"time"

	"github.com/PoliceEvents/PE-Backend/internal/store"
)

// Strategy types for the startup decision.
const (
	StrategyFull     = "full"
	StrategyRecovery = "recovery"
	StrategySkip     = "skip"
)

// Strategy is the startup sync decision: what kind of run to schedule, after
// what delay, and (for recovery) which forces to reprocess.
type Strategy struct {
	Type     string
	Delay    time.Duration
	ForceIDs []string
	Reason   string
}

func (s Strategy) String() string {
	return fmt.Sprintf("Strategy(type=%s, delay=%s, reason=%q)", s.Type, s.Delay, s.Reason)
}

// DetermineStrategy maps persisted store state to a startup action. Pure
// decision function: reads nothing, mutates nothing. Cases are evaluated in
// order and the first match wins.
func DetermineStrategy(neighbourhoodCount int64, meta *store.SyncMetadata, failedForces []string, now time.Time) Strategy {
	// Empty database: nothing to serve until a full sync lands.
	if neighbourhoodCount == 0 {
		return Strategy{
			Type:   StrategyFull,
			Delay:  2 * time.Minute,
			Reason: "database is empty",
		}
	}

	// Rows but no metadata: a pre-bookkeeping database, assume it is valid.
	if meta == nil {
		return Strategy{
			Type:   StrategySkip,
			Reason: "no metadata (legacy database)",
		}
	}

	// Sync started but never completed: crash mid-run.
	if meta.CompletedAt == nil {
		if len(failedForces) > 0 {
			return Strategy{
				Type:     StrategyRecovery,
				Delay:    5 * time.Minute,
				ForceIDs: failedForces,
				Reason:   "incomplete sync detected (crash during sync)",
			}
		}
		return Strategy{
			Type:   StrategyFull,
			Delay:  5 * time.Minute,
			Reason: "incomplete sync detected (no force tracking, full sync fallback)",
		}
	}

	// Completion before start is impossible; the bookkeeping is corrupt and
	// only a remedial full sync restores trust in it.
	if meta.CompletedAt.Before(meta.StartedAt) {
		return Strategy{
			Type:   StrategyFull,
			Delay:  5 * time.Minute,
			Reason: "corrupted sync state",
		}
	}

	// A run still marked running long past the staleness threshold is a lock
	// left behind by a crashed process.
	if meta.Status == store.StatusRunning {
		age := now.Sub(meta.StartedAt)
		if age > store.StaleLockThreshold {
			return Strategy{
				Type:     StrategyRecovery,
				Delay:    5 * time.Minute,
				ForceIDs: failedForces,
				Reason:   fmt.Sprintf("stale lock detected (%.1fh old)", age.Hours()),
			}
		}
	}

	if meta.Status == store.StatusFailed {
		if len(failedForces) > 0 {
			return Strategy{
				Type:     StrategyRecovery,
				Delay:    5 * time.Minute,
				ForceIDs: failedForces,
				Reason:   "recovering from failed sync",
			}
		}
		return Strategy{
			Type:   StrategyFull,
			Delay:  5 * time.Minute,
			Reason: "last sync failed (no force tracking)",
		}
	}

	daysOld := now.Sub(*meta.CompletedAt).Hours() / 24
	if daysOld > 8 {
		return Strategy{
			Type:   StrategyFull,
			Delay:  2 * time.Minute,
			Reason: fmt.Sprintf("data is %.1f days old (stale)", daysOld),
		}
	}
	if daysOld > 6 {
		return Strategy{
			Type:   StrategySkip,
			Reason: fmt.Sprintf("data is %.1f days old (weekly sync scheduled)", daysOld),
		}
	}

	return Strategy{
		Type:   StrategySkip,
		Reason: "data is fresh",
	}
}
