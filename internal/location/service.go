// Package location resolves a postcode or coordinate pair to the police
// neighbourhood that covers it.
package location

import (
	"context"
	"errors"
	"fmt"

	"github.com/PoliceEvents/PE-Backend/internal/logger"
	"github.com/PoliceEvents/PE-Backend/internal/oslocate"
	"github.com/PoliceEvents/PE-Backend/internal/store"
)

// Common errors surfaced to the HTTP layer.
var (
	ErrPostcodeNotFound = errors.New("postcode not found")
	ErrNoLookupKey      = errors.New("postcode lookup is not configured")
)

// GeometryStore is the slice of the store the location service reads.
type GeometryStore interface {
	TransformGridToWGS84(ctx context.Context, easting, northing float64) (longitude, latitude float64, err error)
	FindByCoordinates(ctx context.Context, longitude, latitude float64) (*store.Neighbourhood, error)
}

// Service converts postcodes to neighbourhoods: OS Names gives a grid
// reference, the store reprojects it and answers the containment query.
type Service struct {
	osClient *oslocate.Client
	store    GeometryStore
}

// NewService builds the service. osClient may be nil (no API key), in which
// case only coordinate lookups work.
func NewService(osClient *oslocate.Client, st GeometryStore) *Service {
	return &Service{osClient: osClient, store: st}
}

// FindByPostcode resolves a postcode to its neighbourhood. Returns
// store.ErrNotFound when the point falls outside every stored boundary and
// ErrPostcodeNotFound when the gazetteer does not know the postcode.
func (s *Service) FindByPostcode(ctx context.Context, postcode string) (*store.Neighbourhood, error) {
	if s.osClient == nil {
		return nil, ErrNoLookupKey
	}

	log := logger.L()
	res, err := s.osClient.FindPostcode(ctx, postcode)
	if err != nil {
		return nil, fmt.Errorf("postcode lookup %q: %w", postcode, err)
	}
	if res == nil || res.Easting == 0 && res.Northing == 0 {
		return nil, ErrPostcodeNotFound
	}

	lng, lat, err := s.store.TransformGridToWGS84(ctx, res.Easting, res.Northing)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("postcode", postcode).
		Float64("easting", res.Easting).Float64("northing", res.Northing).
		Float64("lng", lng).Float64("lat", lat).
		Msg("postcode resolved to coordinates")

	return s.store.FindByCoordinates(ctx, lng, lat)
}

// FindByCoordinates resolves a WGS84 (longitude, latitude) pair directly.
func (s *Service) FindByCoordinates(ctx context.Context, longitude, latitude float64) (*store.Neighbourhood, error) {
	return s.store.FindByCoordinates(ctx, longitude, latitude)
}
