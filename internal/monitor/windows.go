package monitor

import (
	"cmp"
	"fmt"
	"slices"
	"time"

	"github.com/watkajtys/earthquake-sub007/internal/domain"
)

const (
	hourMs = int64(time.Hour / time.Millisecond)
	dayMs  = 24 * hourMs
)

// alertRank orders alert levels; green and absent are not alerts.
var alertRank = map[string]int{"yellow": 1, "orange": 2, "red": 3}

type dayViews struct {
	LastHour    []domain.Feature
	PriorHour   []domain.Feature
	Last24Hours []domain.Feature
	Tsunami     bool
	TopAlert    string
	Alerts      []domain.Feature
}

type weekViews struct {
	Last72Hours  []domain.Feature
	Last7Days    []domain.Feature
	Prior24Hours []domain.Feature
}

type monthViews struct {
	Last14Days  []domain.Feature
	Last30Days  []domain.Feature
	Prior7Days  []domain.Feature
	Prior14Days []domain.Feature
	All         []domain.Feature
}

// timed is a feature with its event time already extracted.
type timed struct {
	f domain.Feature
	t int64
}

// prepare returns features newest first. A feature without an event time
// fails the window; features without an id are dropped and counted.
func prepare(fc domain.FeatureCollection) ([]timed, int, error) {
	out := make([]timed, 0, len(fc.Features))
	skipped := 0
	for i, f := range fc.Features {
		t, ok := f.EventTime()
		if !ok {
			return nil, 0, fmt.Errorf("feature %d (%q) has no event time", i, f.ID)
		}
		if f.ID == "" {
			skipped++
			continue
		}
		out = append(out, timed{f: f, t: t})
	}
	slices.SortStableFunc(out, func(a, b timed) int { return cmp.Compare(b.t, a.t) })
	return out, skipped, nil
}

// between returns features with from <= time < to. to <= 0 means unbounded.
func between(events []timed, from, to int64) []domain.Feature {
	out := []domain.Feature{}
	for _, e := range events {
		if e.t >= from && (to <= 0 || e.t < to) {
			out = append(out, e.f)
		}
	}
	return out
}

func deriveDay(events []timed, now int64) dayViews {
	v := dayViews{
		LastHour:    between(events, now-hourMs, 0),
		PriorHour:   between(events, now-2*hourMs, now-hourMs),
		Last24Hours: between(events, now-dayMs, 0),
		Alerts:      []domain.Feature{},
	}
	for _, f := range v.Last24Hours {
		if f.HasTsunamiFlag() {
			v.Tsunami = true
		}
		level := f.AlertLevel()
		rank := alertRank[level]
		switch {
		case rank == 0:
		case rank > alertRank[v.TopAlert]:
			v.TopAlert = level
			v.Alerts = []domain.Feature{f}
		case rank == alertRank[v.TopAlert]:
			v.Alerts = append(v.Alerts, f)
		}
	}
	return v
}

func deriveWeek(events []timed, now int64) weekViews {
	return weekViews{
		Last72Hours:  between(events, now-3*dayMs, 0),
		Last7Days:    between(events, now-7*dayMs, 0),
		Prior24Hours: between(events, now-2*dayMs, now-dayMs),
	}
}

func deriveMonth(events []timed, now int64) monthViews {
	return monthViews{
		Last14Days:  between(events, now-14*dayMs, 0),
		Last30Days:  between(events, now-30*dayMs, 0),
		Prior7Days:  between(events, now-14*dayMs, now-7*dayMs),
		Prior14Days: between(events, now-28*dayMs, now-14*dayMs),
		All:         between(events, 0, 0),
	}
}

// majors returns every event at or above threshold.
func majors(events []timed, threshold float64) []timed {
	var out []timed
	for _, e := range events {
		if mag, ok := e.f.Magnitude(); ok && mag >= threshold {
			out = append(out, e)
		}
	}
	return out
}

// pickMajorPair merges candidates with the retained last major, dedupes by id
// and returns the two newest. The retained event is only added when no fresh
// candidate shares its id.
func pickMajorPair(candidates []timed, retained *domain.Feature) (last, prev *domain.Feature) {
	seen := make(map[string]bool, len(candidates)+1)
	pool := make([]timed, 0, len(candidates)+1)
	for _, c := range candidates {
		if seen[c.f.ID] {
			continue
		}
		seen[c.f.ID] = true
		pool = append(pool, c)
	}
	if retained != nil && !seen[retained.ID] {
		if t, ok := retained.EventTime(); ok {
			pool = append(pool, timed{f: *retained, t: t})
		}
	}
	slices.SortStableFunc(pool, func(a, b timed) int { return cmp.Compare(b.t, a.t) })

	if len(pool) > 0 {
		f := pool[0].f
		last = &f
	}
	if len(pool) > 1 {
		f := pool[1].f
		prev = &f
	}
	return last, prev
}

// timeBetween is last.time - prev.time, or nil when either is missing.
func timeBetween(last, prev *domain.Feature) *int64 {
	if last == nil || prev == nil {
		return nil
	}
	lt, ok1 := last.EventTime()
	pt, ok2 := prev.EventTime()
	if !ok1 || !ok2 {
		return nil
	}
	d := lt - pt
	return &d
}
