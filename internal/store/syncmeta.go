package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SaveSyncMetadata upserts the singleton run-metadata row. The ID is forced
// to 1 so every run overwrites the last.
func (s *Store) SaveSyncMetadata(ctx context.Context, meta SyncMetadata) error {
	meta.ID = 1
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(&meta).Error
	if err != nil {
		return fmt.Errorf("save sync metadata: %w", err)
	}
	return nil
}

// GetSyncMetadata reads the singleton row, or returns (nil, nil) when no run
// has ever recorded metadata (a legacy database).
func (s *Store) GetSyncMetadata(ctx context.Context) (*SyncMetadata, error) {
	var meta SyncMetadata
	err := s.db.WithContext(ctx).First(&meta, "id = 1").Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get sync metadata: %w", err)
	}
	return &meta, nil
}

// UpdateForceStatus upserts the per-force status row.
func (s *Store) UpdateForceStatus(ctx context.Context, fs ForceSyncStatus) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "force_id"}},
			UpdateAll: true,
		}).
		Create(&fs).Error
	if err != nil {
		return fmt.Errorf("update force status %s: %w", fs.ForceID, err)
	}
	return nil
}

// GetForceStatus reads one force's status row, or (nil, nil) if the force has
// never been synced.
func (s *Store) GetForceStatus(ctx context.Context, forceID string) (*ForceSyncStatus, error) {
	var fs ForceSyncStatus
	err := s.db.WithContext(ctx).First(&fs, "force_id = ?", forceID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get force status %s: %w", forceID, err)
	}
	return &fs, nil
}

// GetFailedForces returns the sorted, deduplicated set of forces that need
// reprocessing: last status failed or partial, plus forces stuck in
// "running" past the stale-lock threshold with no valid completion.
func (s *Store) GetFailedForces(ctx context.Context) ([]string, error) {
	var forceIDs []string
	err := s.db.WithContext(ctx).Raw(`
		SELECT DISTINCT force_id FROM force_sync_status
		WHERE status = ANY(?)
		   OR (status = ?
		       AND started_at < now() - make_interval(secs => ?)
		       AND (completed_at IS NULL OR completed_at < started_at))
		ORDER BY force_id`,
		pq.Array([]string{StatusFailed, StatusPartial}),
		StatusRunning,
		StaleLockThreshold.Seconds()).
		Scan(&forceIDs).Error
	if err != nil {
		return nil, fmt.Errorf("failed forces query: %w", err)
	}
	return forceIDs, nil
}
