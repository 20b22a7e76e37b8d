package policeuk

import "strconv"

// Force is one UK policing jurisdiction as listed by /forces.
type Force struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// NeighbourhoodRef identifies one neighbourhood within a force.
type NeighbourhoodRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// NeighbourhoodDetails is the richer per-neighbourhood payload.
type NeighbourhoodDetails struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	URLForce    string `json:"url_force"`
	Population  string `json:"population"`
	Centre      struct {
		Latitude  string `json:"latitude"`
		Longitude string `json:"longitude"`
	} `json:"centre"`
}

// BoundaryPoint is one boundary vertex. The API serialises coordinates as
// strings; unparseable vertices are dropped during decoding.
type BoundaryPoint struct {
	Latitude  float64
	Longitude float64
}

// boundaryPointWire matches the upstream JSON shape.
type boundaryPointWire struct {
	Latitude  string `json:"latitude"`
	Longitude string `json:"longitude"`
}

func (w boundaryPointWire) parse() (BoundaryPoint, bool) {
	lat, err := strconv.ParseFloat(w.Latitude, 64)
	if err != nil {
		return BoundaryPoint{}, false
	}
	lng, err := strconv.ParseFloat(w.Longitude, 64)
	if err != nil {
		return BoundaryPoint{}, false
	}
	return BoundaryPoint{Latitude: lat, Longitude: lng}, true
}

// ContactDetails carries the optional contact block on events.
type ContactDetails struct {
	Email     string `json:"email"`
	Telephone string `json:"telephone"`
	Web       string `json:"web"`
}

// Event is one public neighbourhood event.
type Event struct {
	Title          string         `json:"title"`
	Type           string         `json:"type"`
	Description    string         `json:"description"`
	Address        string         `json:"address"`
	StartDate      string         `json:"start_date"`
	EndDate        string         `json:"end_date"`
	ContactDetails ContactDetails `json:"contact_details"`
}
