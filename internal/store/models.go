package store

import "time"

// Run and per-force status values. A run is running/completed/failed; a
// force within a run ends up success/partial/failed.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusSuccess   = "success"
	StatusPartial   = "partial"
)

// StaleLockThreshold is how long a force (or run) may sit in "running" with
// no completion before it is treated as a crash artifact.
const StaleLockThreshold = 2 * time.Hour

// BoundaryPoint is one vertex of a neighbourhood boundary as returned by the
// Police UK API: latitude/longitude pairs in WGS84. Internal code converts to
// (longitude, latitude) order at the storage boundary.
type BoundaryPoint struct {
	Latitude  float64
	Longitude float64
}

// Neighbourhood is a stored policing sub-area. The boundary itself stays in
// the database; reads only ever need the identifiers and names.
type Neighbourhood struct {
	ForceID           string
	NeighbourhoodID   string
	Name              string
	ForceSlug         string
	NeighbourhoodSlug string
	Repaired          bool
	UpdatedAt         time.Time
}

// NeighbourhoodUpsert is the write-side payload for one neighbourhood.
// Slugs are optional; Boundary is the raw point list from the upstream API.
type NeighbourhoodUpsert struct {
	ForceID           string
	NeighbourhoodID   string
	Name              string
	ForceSlug         string
	NeighbourhoodSlug string
	Boundary          []BoundaryPoint
}

// SyncMetadata is the singleton bookkeeping row for the most recent sync run.
// It is overwritten by every run; no history is kept.
type SyncMetadata struct {
	ID                       int        `gorm:"primaryKey" json:"-"`
	RunID                    string     `json:"run_id"`
	Status                   string     `json:"status"`
	StartedAt                time.Time  `json:"started_at"`
	CompletedAt              *time.Time `json:"completed_at"`
	TotalForces              int        `json:"total_forces"`
	SyncedForces             int        `json:"synced_forces"`
	FailedForces             int        `json:"failed_forces"`
	TotalNeighbourhoods      int        `json:"total_neighbourhoods"`
	SyncedNeighbourhoods     int        `json:"synced_neighbourhoods"`
	FailedNeighbourhoods     int        `json:"failed_neighbourhoods"`
	NoBoundaryNeighbourhoods int        `json:"no_boundary_neighbourhoods"`
	SuccessRate              float64    `json:"success_rate"`
	ErrorMessage             string     `json:"error_message,omitempty"`
	DurationSeconds          int        `json:"duration_seconds"`
}

// TableName keeps the singleton table singular.
func (SyncMetadata) TableName() string { return "sync_metadata" }

// ForceSyncStatus records the outcome of the most recent attempt to sync one
// force. Rows are upserted, never deleted.
type ForceSyncStatus struct {
	ForceID                string     `gorm:"primaryKey" json:"force_id"`
	Status                 string     `json:"status"`
	StartedAt              time.Time  `json:"started_at"`
	CompletedAt            *time.Time `json:"completed_at"`
	ExpectedNeighbourhoods int        `json:"expected_neighbourhoods"`
	SyncedNeighbourhoods   int        `json:"synced_neighbourhoods"`
	ErrorMessage           string     `json:"error_message,omitempty"`
}

func (ForceSyncStatus) TableName() string { return "force_sync_status" }

// Stats summarises the boundary table for the status endpoint.
type Stats struct {
	Neighbourhoods int64      `json:"neighbourhoods"`
	Forces         int64      `json:"forces"`
	StorageBytes   int64      `json:"storage_bytes"`
	LastUpdated    *time.Time `json:"last_updated"`
}
