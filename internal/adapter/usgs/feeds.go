package usgs

import (
	"net/url"
	"strings"
	"time"
)

// Summary feed names.
const (
	FeedHour  = "all_hour"
	FeedDay   = "all_day"
	FeedWeek  = "all_week"
	FeedMonth = "all_month"
)

// DateLayout is the YYYY-MM-DD form the FDSN query accepts.
const DateLayout = "2006-01-02"

// FeedURL joins a summary feed base URL and feed name.
func FeedURL(baseURL, feed string) string {
	return strings.TrimRight(baseURL, "/") + "/" + feed + ".geojson"
}

// QueryURL builds an FDSN event query for [start, end) in GeoJSON, oldest first.
func QueryURL(queryBase string, start, end time.Time) string {
	params := url.Values{
		"format":    {"geojson"},
		"starttime": {start.UTC().Format(DateLayout)},
		"endtime":   {end.UTC().Format(DateLayout)},
		"orderby":   {"time-asc"},
	}
	return queryBase + "?" + params.Encode()
}
