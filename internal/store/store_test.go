package store

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/PoliceEvents/PE-Backend/internal/db"
)

// testStore connects to the database named by DATABASE_URL and resets the
// tables this suite touches. Tests that need PostGIS skip when the variable
// is unset.
func testStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set; skipping database-backed test")
	}
	gdb, err := db.Connect(dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	s := New(gdb)
	if err := s.InitSchema(); err != nil {
		t.Fatalf("init schema: %v", err)
	}
	if err := s.ClearAll(context.Background()); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if err := gdb.Exec("DELETE FROM force_sync_status").Error; err != nil {
		t.Fatalf("clear force status: %v", err)
	}
	if err := gdb.Exec("DELETE FROM sync_metadata").Error; err != nil {
		t.Fatalf("clear sync metadata: %v", err)
	}
	return s
}

func leicesterSquare() []BoundaryPoint {
	return []BoundaryPoint{
		{Latitude: 52.62, Longitude: -1.15},
		{Latitude: 52.62, Longitude: -1.11},
		{Latitude: 52.66, Longitude: -1.11},
		{Latitude: 52.66, Longitude: -1.15},
	}
}

func TestBuildPolygonWKT_ClosesOpenRing(t *testing.T) {
	wkt, distinct := buildPolygonWKT(leicesterSquare())
	want := "POLYGON((-1.15 52.62, -1.11 52.62, -1.11 52.66, -1.15 52.66, -1.15 52.62))"
	if wkt != want {
		t.Errorf("unexpected WKT:\n got %s\nwant %s", wkt, want)
	}
	if distinct != 4 {
		t.Errorf("expected 4 distinct vertices, got %d", distinct)
	}
}

func TestBuildPolygonWKT_AlreadyClosedRing(t *testing.T) {
	points := append(leicesterSquare(), BoundaryPoint{Latitude: 52.62, Longitude: -1.15})
	wkt, distinct := buildPolygonWKT(points)
	want := "POLYGON((-1.15 52.62, -1.11 52.62, -1.11 52.66, -1.15 52.66, -1.15 52.62))"
	if wkt != want {
		t.Errorf("unexpected WKT: %s", wkt)
	}
	if distinct != 4 {
		t.Errorf("closing vertex should not count as distinct, got %d", distinct)
	}
}

func TestUpsertNeighbourhood_SkipsDegenerateInput(t *testing.T) {
	// These paths reject before touching the database.
	s := New(nil)

	stored, _, err := s.UpsertNeighbourhood(context.Background(), NeighbourhoodUpsert{
		ForceID: "kent", NeighbourhoodID: "A", Name: "Ashford",
	})
	if err != nil || stored {
		t.Errorf("empty boundary: expected skip, got stored=%v err=%v", stored, err)
	}

	stored, _, err = s.UpsertNeighbourhood(context.Background(), NeighbourhoodUpsert{
		ForceID: "kent", NeighbourhoodID: "A", Name: "Ashford",
		Boundary: []BoundaryPoint{
			{Latitude: 52.0, Longitude: -1.0},
			{Latitude: 52.0, Longitude: -1.0},
			{Latitude: 52.1, Longitude: -1.1},
		},
	})
	if err != nil || stored {
		t.Errorf("2 distinct points: expected skip, got stored=%v err=%v", stored, err)
	}
}

func TestFindByCoordinates_InsideAndOutside(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	stored, repaired, err := s.UpsertNeighbourhood(ctx, NeighbourhoodUpsert{
		ForceID:           "leicestershire",
		NeighbourhoodID:   "NC04",
		Name:              "City Centre",
		ForceSlug:         "leicestershire-police",
		NeighbourhoodSlug: "city-centre",
		Boundary:          leicesterSquare(),
	})
	if err != nil || !stored || repaired {
		t.Fatalf("upsert: stored=%v repaired=%v err=%v", stored, repaired, err)
	}

	n, err := s.FindByCoordinates(ctx, -1.13, 52.64)
	if err != nil {
		t.Fatalf("inside point: %v", err)
	}
	if n.ForceID != "leicestershire" || n.NeighbourhoodID != "NC04" {
		t.Errorf("unexpected match: %+v", n)
	}
	if n.NeighbourhoodSlug != "city-centre" {
		t.Errorf("slug not stored: %+v", n)
	}

	_, err = s.FindByCoordinates(ctx, -2.5, 53.5)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("outside point: expected ErrNotFound, got %v", err)
	}
}

func TestUpsertNeighbourhood_ReplacesExistingRow(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	up := NeighbourhoodUpsert{
		ForceID:         "kent",
		NeighbourhoodID: "A",
		Name:            "Ashford",
		Boundary:        leicesterSquare(),
	}
	if _, _, err := s.UpsertNeighbourhood(ctx, up); err != nil {
		t.Fatal(err)
	}

	up.Name = "Ashford Town"
	if _, _, err := s.UpsertNeighbourhood(ctx, up); err != nil {
		t.Fatal(err)
	}

	count, err := s.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("expected 1 row after re-upsert, got %d", count)
	}
	n, err := s.FindByCoordinates(ctx, -1.13, 52.64)
	if err != nil {
		t.Fatal(err)
	}
	if n.Name != "Ashford Town" {
		t.Errorf("expected updated name, got %q", n.Name)
	}
}

func TestUpsertNeighbourhood_RepairsSelfIntersectingRing(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	// A bowtie: the ring crosses itself between the second and fourth edges.
	bowtie := []BoundaryPoint{
		{Latitude: 52.0, Longitude: -1.0},
		{Latitude: 52.1, Longitude: -0.9},
		{Latitude: 52.0, Longitude: -0.9},
		{Latitude: 52.1, Longitude: -1.0},
	}
	stored, repaired, err := s.UpsertNeighbourhood(ctx, NeighbourhoodUpsert{
		ForceID:         "kent",
		NeighbourhoodID: "B",
		Name:            "Bowtie",
		Boundary:        bowtie,
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if !stored || !repaired {
		t.Errorf("expected stored and repaired, got stored=%v repaired=%v", stored, repaired)
	}

	// A point inside one of the bowtie's lobes still resolves.
	n, err := s.FindByCoordinates(ctx, -0.93, 52.03)
	if err != nil {
		t.Fatalf("lookup in repaired polygon: %v", err)
	}
	if !n.Repaired {
		t.Error("repaired flag not persisted")
	}
}

func TestTransformGridToWGS84_ReferencePoint(t *testing.T) {
	s := testStore(t)

	// Easting/northing near Leicester. The first return value must be the
	// longitude (negative, around -1.1), the second the latitude.
	lng, lat, err := s.TransformGridToWGS84(context.Background(), 458700, 305800)
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	if lng < -2 || lng > -1 {
		t.Errorf("longitude out of range: %v", lng)
	}
	if lat < 52 || lat > 53 {
		t.Errorf("latitude out of range: %v", lat)
	}
}

func TestSyncMetadata_SingletonOverwrite(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	meta, err := s.GetSyncMetadata(ctx)
	if err != nil || meta != nil {
		t.Fatalf("fresh database: expected (nil, nil), got %+v %v", meta, err)
	}

	first := SyncMetadata{RunID: "run-1", Status: StatusRunning, StartedAt: time.Now().UTC()}
	if err := s.SaveSyncMetadata(ctx, first); err != nil {
		t.Fatal(err)
	}
	done := time.Now().UTC()
	second := SyncMetadata{
		RunID: "run-2", Status: StatusCompleted,
		StartedAt: done.Add(-time.Hour), CompletedAt: &done,
		SyncedNeighbourhoods: 4000,
	}
	if err := s.SaveSyncMetadata(ctx, second); err != nil {
		t.Fatal(err)
	}

	meta, err = s.GetSyncMetadata(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if meta.RunID != "run-2" || meta.Status != StatusCompleted {
		t.Errorf("expected the latest run only, got %+v", meta)
	}
}

func TestGetFailedForces(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	done := now.Add(-time.Minute)

	rows := []ForceSyncStatus{
		{ForceID: "surrey", Status: StatusSuccess, StartedAt: now, CompletedAt: &done},
		{ForceID: "kent", Status: StatusFailed, StartedAt: now, CompletedAt: &done},
		{ForceID: "gwent", Status: StatusPartial, StartedAt: now, CompletedAt: &done},
		// Stale lock: running for 3 hours with no completion.
		{ForceID: "cleveland", Status: StatusRunning, StartedAt: now.Add(-3 * time.Hour)},
		// Fresh running row is someone else's live work, not a failure.
		{ForceID: "dyfed-powys", Status: StatusRunning, StartedAt: now.Add(-10 * time.Minute)},
	}
	for _, fs := range rows {
		if err := s.UpdateForceStatus(ctx, fs); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.GetFailedForces(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"cleveland", "gwent", "kent"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}
