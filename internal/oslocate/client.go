// Package oslocate wraps the Ordnance Survey Names API for postcode lookups.
// Results carry British National Grid coordinates (easting/northing), which
// the geometry store transforms into WGS84.
package oslocate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// BaseURL is the OS Names API endpoint.
const BaseURL = "https://api.os.uk/search/names/v1"

// Result holds the fields we keep from a postcode hit.
type Result struct {
	Name            string  `json:"name"`
	Easting         float64 `json:"easting"`
	Northing        float64 `json:"northing"`
	District        string  `json:"postcode_district"`
	PopulatedPlace  string  `json:"populated_place"`
	County          string  `json:"county"`
	Country         string  `json:"country"`
}

// Client wraps the OS Names API.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewClient creates an OS Names client. Returns nil if the key is empty -
// the service degrades to coordinate-only lookups rather than failing to
// start.
func NewClient(apiKey string) *Client {
	if apiKey == "" {
		return nil
	}
	return &Client{
		apiKey:  apiKey,
		baseURL: BaseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type findResponse struct {
	Results []struct {
		Entry struct {
			Name             string  `json:"NAME1"`
			GeometryX        float64 `json:"GEOMETRY_X"`
			GeometryY        float64 `json:"GEOMETRY_Y"`
			PostcodeDistrict string  `json:"POSTCODE_DISTRICT"`
			PopulatedPlace   string  `json:"POPULATED_PLACE"`
			County           string  `json:"COUNTY_UNITARY"`
			Country          string  `json:"COUNTRY"`
		} `json:"GAZETTEER_ENTRY"`
	} `json:"results"`
}

// FindPostcode resolves a UK postcode to its grid reference. Returns
// (nil, nil) when the postcode is unknown.
func (c *Client) FindPostcode(ctx context.Context, postcode string) (*Result, error) {
	clean := strings.ToUpper(strings.ReplaceAll(postcode, " ", ""))

	q := url.Values{}
	q.Set("query", clean)
	q.Set("key", c.apiKey)
	q.Set("fq", "LOCAL_TYPE:Postcode")
	q.Set("maxresults", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/find?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("os names request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("os names API returned HTTP %d", resp.StatusCode)
	}

	var fr findResponse
	if err := json.NewDecoder(resp.Body).Decode(&fr); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	if len(fr.Results) == 0 {
		return nil, nil
	}

	entry := fr.Results[0].Entry
	return &Result{
		Name:           entry.Name,
		Easting:        entry.GeometryX,
		Northing:       entry.GeometryY,
		District:       entry.PostcodeDistrict,
		PopulatedPlace: entry.PopulatedPlace,
		County:         entry.County,
		Country:        entry.Country,
	}, nil
}
