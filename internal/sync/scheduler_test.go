package sync

import (
	"context"
	"testing"
	"time"

	"github.com/PoliceEvents/PE-Backend/internal/policeuk"
	"github.com/PoliceEvents/PE-Backend/internal/store"
)

// fakeReader serves the startup strategy decision from canned values.
type fakeReader struct {
	count  int64
	meta   *store.SyncMetadata
	failed []string
}

func (f *fakeReader) Count(ctx context.Context) (int64, error) { return f.count, nil }
func (f *fakeReader) GetSyncMetadata(ctx context.Context) (*store.SyncMetadata, error) {
	return f.meta, nil
}
func (f *fakeReader) GetFailedForces(ctx context.Context) ([]string, error) {
	return f.failed, nil
}

func TestScheduler_SecondTriggerRejectedWhileQueued(t *testing.T) {
	// No worker started, so the first request stays queued.
	s := NewScheduler(nil, &fakeReader{}, NewTracker(), time.Hour)

	if !s.TriggerFull() {
		t.Fatal("first trigger should be accepted")
	}
	if s.TriggerFull() {
		t.Error("second trigger should be rejected while one is queued")
	}
	if s.TriggerRecovery([]string{"kent"}) {
		t.Error("recovery trigger should also be rejected while one is queued")
	}
}

func TestScheduler_WorkerExecutesQueuedRun(t *testing.T) {
	client := &fakeClient{
		forces: []policeuk.Force{{ID: "kent", Name: "Kent Police"}},
		neighbourhoods: map[string][]policeuk.NeighbourhoodRef{
			"kent": {{ID: "A", Name: "Ashford"}},
		},
		boundaries: map[string][]policeuk.BoundaryPoint{
			"kent/A": squareBoundary(),
		},
	}
	st := newFakeStore()
	tracker := NewTracker()
	orch := NewOrchestrator(client, st, tracker)

	// 4000 rows and no metadata: the startup strategy is skip, so the only
	// run is the one we trigger by hand.
	s := NewScheduler(orch, &fakeReader{count: 4000}, tracker, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	if !s.TriggerFull() {
		t.Fatal("trigger rejected")
	}

	deadline := time.After(10 * time.Second)
	for tracker.Snapshot().Status != TrackerCompleted {
		select {
		case <-deadline:
			t.Fatalf("run did not complete; status %q", tracker.Snapshot().Status)
		case <-time.After(20 * time.Millisecond):
		}
	}

	snap := tracker.Snapshot()
	if snap.LastSync.NeighbourhoodsSynced != 1 {
		t.Errorf("expected 1 synced, got %d", snap.LastSync.NeighbourhoodsSynced)
	}
	if tracker.NextRunTime() == nil {
		t.Error("expected a next run time after the recurring schedule started")
	}
}
