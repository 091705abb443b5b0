package domain

import (
	"encoding/json"
	"fmt"
	"net/url"
)

// EarthquakeRecord is the persisted form of a feature, one row per event id.
type EarthquakeRecord struct {
	ID          string          `json:"id"`
	EventTime   int64           `json:"event_time"`
	Latitude    float64         `json:"latitude"`
	Longitude   float64         `json:"longitude"`
	Depth       float64         `json:"depth"`
	Magnitude   float64         `json:"magnitude"`
	Place       string          `json:"place"`
	DetailURL   string          `json:"detail_url"`
	RawFeature  json.RawMessage `json:"raw_feature"`
	RetrievedAt int64           `json:"retrieved_at"`
}

// UpsertCount aggregates the outcome of an upsert call.
type UpsertCount struct {
	SuccessCount int `json:"successCount"`
	ErrorCount   int `json:"errorCount"`
}

// Add accumulates another count into c.
func (c *UpsertCount) Add(o UpsertCount) {
	c.SuccessCount += o.SuccessCount
	c.ErrorCount += o.ErrorCount
}

// DetailURL synthesizes the single-event query URL for an id.
func DetailURL(id string) string {
	return "https://earthquake.usgs.gov/fdsnws/event/1/query?eventid=" + url.QueryEscape(id) + "&format=geojson"
}

// ToRecord validates a feature and converts it into a record stamped with retrievedAt.
// Required: id, properties, at least three coordinates, and non-null time,
// latitude, longitude, depth, magnitude and place. A magnitude of 0 is valid.
func ToRecord(f Feature, retrievedAt int64) (EarthquakeRecord, error) {
	if f.ID == "" {
		return EarthquakeRecord{}, validationError("missing id")
	}
	if f.Properties == nil {
		return EarthquakeRecord{}, validationError(fmt.Sprintf("feature %s: missing properties", f.ID))
	}
	if f.Geometry == nil || len(f.Geometry.Coordinates) < 3 {
		return EarthquakeRecord{}, validationError(fmt.Sprintf("feature %s: geometry needs [lon, lat, depth]", f.ID))
	}

	p := f.Properties
	lon, lat, depth := f.Geometry.Coordinates[0], f.Geometry.Coordinates[1], f.Geometry.Coordinates[2]
	missing := ""
	switch {
	case p.Time == nil:
		missing = "time"
	case lat == nil:
		missing = "latitude"
	case lon == nil:
		missing = "longitude"
	case depth == nil:
		missing = "depth"
	case p.Mag == nil:
		missing = "magnitude"
	case p.Place == nil:
		missing = "place"
	}
	if missing != "" {
		return EarthquakeRecord{}, validationError(fmt.Sprintf("feature %s: missing %s", f.ID, missing))
	}

	raw := f.Raw
	if len(raw) == 0 {
		b, err := json.Marshal(f)
		if err != nil {
			return EarthquakeRecord{}, &Error{Kind: KindParse, Message: "encode raw feature", Err: err}
		}
		raw = b
	}

	detail := p.Detail
	if detail == "" {
		detail = DetailURL(f.ID)
	}

	return EarthquakeRecord{
		ID:          f.ID,
		EventTime:   *p.Time,
		Latitude:    *lat,
		Longitude:   *lon,
		Depth:       *depth,
		Magnitude:   *p.Mag,
		Place:       *p.Place,
		DetailURL:   detail,
		RawFeature:  raw,
		RetrievedAt: retrievedAt,
	}, nil
}

func validationError(msg string) error {
	return &Error{Kind: KindValidation, Message: msg}
}
