// Package store is the durable home of neighbourhood boundary polygons and
// sync bookkeeping. All spatial work (containment, validity repair, the
// national-grid transform) is delegated to PostGIS.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/PoliceEvents/PE-Backend/internal/logger"
	"gorm.io/gorm"
)

// ErrNotFound is returned by FindByCoordinates when no stored polygon
// contains the point.
var ErrNotFound = errors.New("no neighbourhood contains the given point")

// Store wraps the gorm handle with the neighbourhood-specific operations.
type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store { return &Store{db: db} }

// InitSchema creates the tables and the spatial index. The boundary column is
// created with raw SQL because gorm has no native geometry type; the
// bookkeeping tables are plain rows and AutoMigrate handles them.
func (s *Store) InitSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS neighbourhoods (
			force_id TEXT NOT NULL,
			neighbourhood_id TEXT NOT NULL,
			name TEXT NOT NULL,
			force_slug TEXT NOT NULL DEFAULT '',
			neighbourhood_slug TEXT NOT NULL DEFAULT '',
			boundary geometry(Geometry, 4326) NOT NULL,
			repaired BOOLEAN NOT NULL DEFAULT FALSE,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (force_id, neighbourhood_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_neighbourhoods_boundary
			ON neighbourhoods USING GIST (boundary)`,
	}
	for _, stmt := range stmts {
		if err := s.db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	if err := s.db.AutoMigrate(&SyncMetadata{}, &ForceSyncStatus{}); err != nil {
		return fmt.Errorf("migrate bookkeeping tables: %w", err)
	}
	return nil
}

// buildPolygonWKT converts the upstream (latitude, longitude) point list into
// a closed WKT polygon in (longitude, latitude) axis order. It reports how
// many distinct vertices the ring has so callers can reject degenerate input.
func buildPolygonWKT(points []BoundaryPoint) (wkt string, distinct int) {
	var b strings.Builder
	b.WriteString("POLYGON((")
	seen := make(map[BoundaryPoint]struct{}, len(points))
	for i, p := range points {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%g %g", p.Longitude, p.Latitude)
		seen[p] = struct{}{}
	}
	// Close the ring if the upstream left it open.
	if points[0] != points[len(points)-1] {
		fmt.Fprintf(&b, ", %g %g", points[0].Longitude, points[0].Latitude)
	} else if len(points) > 1 {
		// The closing vertex is not a distinct corner.
		delete(seen, points[len(points)-1])
		seen[points[0]] = struct{}{}
	}
	b.WriteString("))")
	return b.String(), len(seen)
}

// UpsertNeighbourhood stores one neighbourhood polygon, replacing any prior
// row for the same (force, neighbourhood) key. Degenerate or unrepairable
// geometry is logged and skipped rather than failing the batch: a bad polygon
// from the upstream crawl must never abort a multi-hour sync. The returned
// flags say whether the row was stored and whether PostGIS had to repair it.
func (s *Store) UpsertNeighbourhood(ctx context.Context, up NeighbourhoodUpsert) (stored, repaired bool, err error) {
	log := logger.L()
	if len(up.Boundary) == 0 {
		log.Warn().Str("force", up.ForceID).Str("neighbourhood", up.NeighbourhoodID).
			Msg("no boundary coordinates, skipping")
		return false, false, nil
	}

	wkt, distinct := buildPolygonWKT(up.Boundary)
	if distinct < 3 {
		log.Warn().Str("force", up.ForceID).Str("neighbourhood", up.NeighbourhoodID).
			Int("distinct_points", distinct).
			Msg("fewer than 3 distinct boundary points, skipping")
		return false, false, nil
	}

	var valid bool
	if err := s.db.WithContext(ctx).
		Raw("SELECT ST_IsValid(ST_GeomFromText(?, 4326))", wkt).
		Scan(&valid).Error; err != nil {
		// Unparseable WKT means the point data itself is garbage; skip it.
		log.Warn().Str("force", up.ForceID).Str("neighbourhood", up.NeighbourhoodID).
			Err(err).Msg("boundary not parseable as polygon, skipping")
		return false, false, nil
	}

	geomExpr := "ST_GeomFromText(?, 4326)"
	if !valid {
		// ST_MakeValid can split a self-intersecting ring into a collection;
		// keep only the polygonal parts and reject anything non-areal.
		repaired = true
		geomExpr = "ST_CollectionExtract(ST_MakeValid(ST_GeomFromText(?, 4326)), 3)"

		var geomType string
		checkSQL := fmt.Sprintf("SELECT ST_GeometryType(%s)", geomExpr)
		if err := s.db.WithContext(ctx).Raw(checkSQL, wkt).Scan(&geomType).Error; err != nil {
			return false, true, fmt.Errorf("repair check for %s/%s: %w", up.ForceID, up.NeighbourhoodID, err)
		}
		if geomType != "ST_Polygon" && geomType != "ST_MultiPolygon" {
			log.Warn().Str("force", up.ForceID).Str("neighbourhood", up.NeighbourhoodID).
				Str("geometry_type", geomType).
				Msg("polygon repair failed, skipping record")
			return false, true, nil
		}
		log.Info().Str("force", up.ForceID).Str("neighbourhood", up.NeighbourhoodID).
			Msg("invalid polygon repaired before storage")
	}

	insertSQL := fmt.Sprintf(`
		INSERT INTO neighbourhoods
			(force_id, neighbourhood_id, name, force_slug, neighbourhood_slug, boundary, repaired, updated_at)
		VALUES (?, ?, ?, ?, ?, %s, ?, now())
		ON CONFLICT (force_id, neighbourhood_id) DO UPDATE SET
			name = EXCLUDED.name,
			force_slug = EXCLUDED.force_slug,
			neighbourhood_slug = EXCLUDED.neighbourhood_slug,
			boundary = EXCLUDED.boundary,
			repaired = EXCLUDED.repaired,
			updated_at = now()`, geomExpr)

	if err := s.db.WithContext(ctx).Exec(insertSQL,
		up.ForceID, up.NeighbourhoodID, up.Name, up.ForceSlug, up.NeighbourhoodSlug,
		wkt, repaired).Error; err != nil {
		return false, repaired, fmt.Errorf("upsert neighbourhood %s/%s: %w", up.ForceID, up.NeighbourhoodID, err)
	}
	return true, repaired, nil
}

// FindByCoordinates returns the neighbourhood whose polygon contains the
// WGS84 point, in (longitude, latitude) order. Overlapping polygons should
// not occur, but the ORDER BY makes the answer deterministic if they do.
func (s *Store) FindByCoordinates(ctx context.Context, longitude, latitude float64) (*Neighbourhood, error) {
	var n Neighbourhood
	err := s.db.WithContext(ctx).Raw(`
		SELECT force_id, neighbourhood_id, name, force_slug, neighbourhood_slug, repaired, updated_at
		FROM neighbourhoods
		WHERE ST_Contains(boundary, ST_SetSRID(ST_MakePoint(?, ?), 4326))
		ORDER BY force_id, neighbourhood_id
		LIMIT 1`, longitude, latitude).Scan(&n).Error
	if err != nil {
		return nil, fmt.Errorf("containment query: %w", err)
	}
	if n.ForceID == "" {
		return nil, ErrNotFound
	}
	return &n, nil
}

// TransformGridToWGS84 converts a British National Grid easting/northing
// (EPSG:27700) into WGS84 and returns (longitude, latitude) — in that order.
// An earlier generation of this service returned them swapped; the reference
// test in store_test.go pins the ordering.
func (s *Store) TransformGridToWGS84(ctx context.Context, easting, northing float64) (longitude, latitude float64, err error) {
	var out struct {
		Lng float64
		Lat float64
	}
	err = s.db.WithContext(ctx).Raw(`
		SELECT ST_X(p) AS lng, ST_Y(p) AS lat
		FROM (SELECT ST_Transform(ST_SetSRID(ST_MakePoint(?, ?), 27700), 4326) AS p) t`,
		easting, northing).Scan(&out).Error
	if err != nil {
		return 0, 0, fmt.Errorf("grid transform: %w", err)
	}
	return out.Lng, out.Lat, nil
}

// Count returns the number of stored neighbourhoods.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var c int64
	if err := s.db.WithContext(ctx).Raw("SELECT COUNT(*) FROM neighbourhoods").Scan(&c).Error; err != nil {
		return 0, fmt.Errorf("count neighbourhoods: %w", err)
	}
	return c, nil
}

// GetStats returns read-only aggregates over the boundary table.
func (s *Store) GetStats(ctx context.Context) (*Stats, error) {
	var st Stats
	err := s.db.WithContext(ctx).Raw(`
		SELECT COUNT(*) AS neighbourhoods,
		       COUNT(DISTINCT force_id) AS forces,
		       pg_total_relation_size('neighbourhoods') AS storage_bytes,
		       MAX(updated_at) AS last_updated
		FROM neighbourhoods`).Scan(&st).Error
	if err != nil {
		return nil, fmt.Errorf("stats query: %w", err)
	}
	return &st, nil
}

// ClearAll deletes every neighbourhood row. Only used when a caller
// explicitly wants a from-scratch full sync.
func (s *Store) ClearAll(ctx context.Context) error {
	if err := s.db.WithContext(ctx).Exec("DELETE FROM neighbourhoods").Error; err != nil {
		return fmt.Errorf("clear neighbourhoods: %w", err)
	}
	lg := logger.L()
	lg.Info().Msg("cleared all neighbourhoods")
	return nil
}
