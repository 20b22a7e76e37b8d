package policeuk

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestListForces_RetriesServerErrorThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`[{"id":"kent","name":"Kent Police"}]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 3, 5*time.Second)
	forces, err := c.ListForces(context.Background())
	if err != nil {
		t.Fatalf("ListForces: %v", err)
	}
	if len(forces) != 1 || forces[0].ID != "kent" {
		t.Errorf("unexpected forces: %+v", forces)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("expected 2 attempts, got %d", got)
	}
}

func TestListForces_ClientErrorIsNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 3, 5*time.Second)
	_, err := c.ListForces(context.Background())
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("expected a single attempt for a 404, got %d", got)
	}
}

func TestListForces_ExhaustedRetriesReturnErrUnavailable(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 2, 5*time.Second)
	_, err := c.ListForces(context.Background())
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable after exhaustion, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("expected exactly 2 attempts, got %d", got)
	}
}

func TestGetBoundary_ParsesStringCoordinates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/leicestershire/NC04/boundary" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.Write([]byte(`[
			{"latitude":"52.6389","longitude":"-1.13619"},
			{"latitude":"not-a-number","longitude":"-1.13"},
			{"latitude":"52.6341","longitude":"-1.13843"}
		]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 1, 5*time.Second)
	points, err := c.GetBoundary(context.Background(), "leicestershire", "NC04")
	if err != nil {
		t.Fatalf("GetBoundary: %v", err)
	}
	// The malformed vertex is dropped, not fatal.
	if len(points) != 2 {
		t.Fatalf("expected 2 parsed points, got %d", len(points))
	}
	if points[0].Latitude != 52.6389 || points[0].Longitude != -1.13619 {
		t.Errorf("unexpected first point: %+v", points[0])
	}
}

func TestGetBoundary_EmptyPayloadIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 1, 5*time.Second)
	points, err := c.GetBoundary(context.Background(), "kent", "A")
	if err != nil {
		t.Fatalf("expected no error for empty boundary, got %v", err)
	}
	if len(points) != 0 {
		t.Errorf("expected no points, got %d", len(points))
	}
}

func TestGetEvents_DecodesContactDetails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{
			"title":"Beat surgery",
			"type":"meeting",
			"description":"Drop in session",
			"address":"Town Hall",
			"start_date":"2025-07-01T18:00:00",
			"end_date":"2025-07-01T19:00:00",
			"contact_details":{"email":"snt@example.police.uk","telephone":"101"}
		}]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 1, 5*time.Second)
	events, err := c.GetEvents(context.Background(), "kent", "A")
	if err != nil {
		t.Fatalf("GetEvents: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Title != "Beat surgery" || events[0].ContactDetails.Email != "snt@example.police.uk" {
		t.Errorf("unexpected event: %+v", events[0])
	}
}

func TestGetJSON_ContextCancellationStopsRetrying(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	c := NewClient(srv.URL, 10, 5*time.Second)
	start := time.Now()
	_, err := c.ListForces(ctx)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("cancelled call took too long: %s", elapsed)
	}
}
