// Package calendar renders a neighbourhood's public events as an iCalendar
// feed. Feeds are cached: calendar clients poll aggressively and the
// upstream events rarely change.
package calendar

import (
	"context"
	"fmt"
	"time"

	ics "github.com/arran4/golang-ical"
	gocache "github.com/patrickmn/go-cache"

	"github.com/PoliceEvents/PE-Backend/internal/logger"
	"github.com/PoliceEvents/PE-Backend/internal/policeuk"
)

// EventsClient is the slice of the Police UK client the feed needs.
type EventsClient interface {
	GetEvents(ctx context.Context, forceID, neighbourhoodID string) ([]policeuk.Event, error)
}

// Service generates .ics feeds.
type Service struct {
	client EventsClient
	cache  *gocache.Cache
}

// NewService builds the feed service with the given cache TTL.
func NewService(client EventsClient, ttl time.Duration) *Service {
	return &Service{
		client: client,
		cache:  gocache.New(ttl, 10*time.Minute),
	}
}

// GenerateFeed returns the iCalendar document for one neighbourhood, serving
// from cache when fresh.
func (s *Service) GenerateFeed(ctx context.Context, forceID, neighbourhoodID string) ([]byte, error) {
	key := forceID + ":" + neighbourhoodID
	if cached, ok := s.cache.Get(key); ok {
		lg := logger.L()
		lg.Debug().Str("feed", key).Msg("serving cached calendar")
		return cached.([]byte), nil
	}

	events, err := s.client.GetEvents(ctx, forceID, neighbourhoodID)
	if err != nil {
		return nil, fmt.Errorf("fetch events for %s: %w", key, err)
	}

	data := []byte(buildCalendar(forceID, neighbourhoodID, events))
	s.cache.Set(key, data, gocache.DefaultExpiration)

	lg := logger.L()
	lg.Info().Str("feed", key).Int("events", len(events)).Msg("generated calendar")
	return data, nil
}

// buildCalendar assembles the VCALENDAR document.
func buildCalendar(forceID, neighbourhoodID string, events []policeuk.Event) string {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId("-//Local Police Events//EN")
	cal.SetVersion("2.0")
	cal.SetCalscale("GREGORIAN")
	cal.SetXWRCalName(fmt.Sprintf("Police Events - %s/%s", forceID, neighbourhoodID))
	cal.SetXWRTimezone("Europe/London")
	cal.SetXWRCalDesc(fmt.Sprintf("Neighbourhood police events for %s/%s", forceID, neighbourhoodID))

	for _, e := range events {
		title := e.Title
		if title == "" {
			title = "Police Event"
		}
		uid := fmt.Sprintf("%s-%s-%s-%s", forceID, neighbourhoodID, title, e.StartDate)

		ev := cal.AddEvent(uid)
		ev.SetSummary(title)
		ev.SetDtStampTime(time.Now().UTC())

		if e.Description != "" {
			ev.SetDescription(e.Description)
		}
		if e.Address != "" {
			ev.SetLocation(e.Address)
		}
		if t, ok := parseEventTime(e.StartDate); ok {
			ev.SetStartAt(t)
		}
		if t, ok := parseEventTime(e.EndDate); ok {
			ev.SetEndAt(t)
		}
		if contact := formatContact(e.ContactDetails); contact != "" {
			ev.AddProperty(ics.ComponentProperty(ics.PropertyContact), contact)
		}

		category := e.Type
		if category == "" {
			category = "other"
		}
		ev.AddProperty(ics.ComponentPropertyCategories, category)
	}

	return cal.Serialize()
}

// parseEventTime handles the API's local timestamps with or without an
// offset suffix.
func parseEventTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	lg := logger.L()
	lg.Warn().Str("value", s).Msg("unparseable event date")
	return time.Time{}, false
}

func formatContact(c policeuk.ContactDetails) string {
	var parts []string
	if c.Email != "" {
		parts = append(parts, "Email: "+c.Email)
	}
	if c.Telephone != "" {
		parts = append(parts, "Tel: "+c.Telephone)
	}
	if c.Web != "" {
		parts = append(parts, "Web: "+c.Web)
	}
	if len(parts) == 0 {
		return ""
	}
	out := parts[0]
	for _, p := range parts[1:] {
		out += ", " + p
	}
	return out
}
