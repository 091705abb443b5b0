// Package domain models USGS earthquake feed data and the records persisted from it.
//
// # Data Source
//
// Events originate from the USGS Earthquake Hazards Program GeoJSON feeds:
//
//	summary feeds   https://earthquake.usgs.gov/earthquakes/feed/v1.0/summary/all_{hour,day,week,month}.geojson
//	event query     https://earthquake.usgs.gov/fdsnws/event/1/query?format=geojson&starttime=...&endtime=...
//
// Summary feeds are regenerated upstream roughly every minute. The event query
// serves arbitrary historical ranges but caps a single response at 20,000 events.
//
// # GeoJSON Conventions
//
// Each feature carries:
//
//	id                       network code + event code, e.g. "us7000abcd"; stable across revisions
//	properties.mag           magnitude, may be null for freshly detected events
//	properties.place         human-readable location ("10 km SW of Ridgecrest, CA"), may be null
//	properties.time          origin time, epoch milliseconds
//	properties.updated       last revision time, epoch milliseconds
//	properties.tsunami       1 when the event is in a tsunami-monitored region, else 0
//	properties.alert         PAGER alert level: green, yellow, orange, red, or null
//	properties.detail        URL of the single-event GeoJSON, absent in query responses
//	properties.products      only in detail responses; keyed by product type
//	geometry.coordinates     [longitude, latitude, depth_km]
//
// Coordinate order is longitude first. Depth is positive downward in kilometers
// and can be slightly negative for events above the reference ellipsoid.
//
// # Alert Levels
//
// PAGER levels rank red > orange > yellow. Green and null are not alerts.
//
// # Significance
//
// A record is significant when its magnitude is at least 4.5, or when its raw
// feature carries a moment-tensor or focal-mechanism product. See [IsSignificant].
package domain
