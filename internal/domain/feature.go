package domain

import (
	"encoding/json"
)

// Feature is a single GeoJSON earthquake event from the upstream feed.
// Raw holds the verbatim JSON the feature was decoded from.
type Feature struct {
	Type       string      `json:"type,omitempty"`
	ID         string      `json:"id"`
	Properties *Properties `json:"properties"`
	Geometry   *Geometry   `json:"geometry"`

	Raw json.RawMessage `json:"-"`
}

// Properties are the event attributes of a feature. Pointer fields are
// nullable upstream.
type Properties struct {
	Mag      *float64                   `json:"mag"`
	Place    *string                    `json:"place"`
	Time     *int64                     `json:"time"`
	Updated  *int64                     `json:"updated,omitempty"`
	Tsunami  int                        `json:"tsunami"`
	Alert    *string                    `json:"alert"`
	Detail   string                     `json:"detail,omitempty"`
	URL      string                     `json:"url,omitempty"`
	Title    string                     `json:"title,omitempty"`
	Type     string                     `json:"type,omitempty"`
	Sig      int                        `json:"sig,omitempty"`
	Products map[string]json.RawMessage `json:"products,omitempty"`
}

// Geometry is a GeoJSON point: [longitude, latitude, depth_km].
type Geometry struct {
	Type        string     `json:"type,omitempty"`
	Coordinates []*float64 `json:"coordinates"`
}

// Metadata describes a feed response.
type Metadata struct {
	Generated int64  `json:"generated"`
	URL       string `json:"url,omitempty"`
	Title     string `json:"title,omitempty"`
	Status    int    `json:"status,omitempty"`
	Count     int    `json:"count"`
}

// FeatureCollection is a GeoJSON feed response.
type FeatureCollection struct {
	Type     string    `json:"type,omitempty"`
	Metadata Metadata  `json:"metadata"`
	Features []Feature `json:"features"`
}

type featureAlias Feature

// UnmarshalJSON decodes the feature and retains a copy of the input as Raw.
func (f *Feature) UnmarshalJSON(data []byte) error {
	var a featureAlias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*f = Feature(a)
	f.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// MarshalJSON re-emits the verbatim upstream JSON when available.
func (f Feature) MarshalJSON() ([]byte, error) {
	if len(f.Raw) > 0 {
		return f.Raw, nil
	}
	return json.Marshal(featureAlias(f))
}

// EventTime returns the origin time in epoch milliseconds and whether it is present.
func (f Feature) EventTime() (int64, bool) {
	if f.Properties == nil || f.Properties.Time == nil {
		return 0, false
	}
	return *f.Properties.Time, true
}

// Magnitude returns the magnitude and whether it is present.
func (f Feature) Magnitude() (float64, bool) {
	if f.Properties == nil || f.Properties.Mag == nil {
		return 0, false
	}
	return *f.Properties.Mag, true
}

// AlertLevel returns the PAGER alert level, or "" when absent.
func (f Feature) AlertLevel() string {
	if f.Properties == nil || f.Properties.Alert == nil {
		return ""
	}
	return *f.Properties.Alert
}

// HasTsunamiFlag reports whether the feed flagged the event for tsunami monitoring.
func (f Feature) HasTsunamiFlag() bool {
	return f.Properties != nil && f.Properties.Tsunami == 1
}
