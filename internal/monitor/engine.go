// Package monitor merges the day, week and on-demand month USGS feeds into a
// single published snapshot of time windows, alert signals and the two most
// recent major earthquakes.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/watkajtys/earthquake-sub007/internal/domain"
	"github.com/watkajtys/earthquake-sub007/internal/observability"
)

// CombinedFailureMessage replaces the per-window messages when both the
// day and week feeds fail in the same cycle.
const CombinedFailureMessage = "Failed to fetch critical earthquake data."

// FeedFetcher fetches a decoded feed.
type FeedFetcher interface {
	FetchFeed(ctx context.Context, url string) (domain.FeatureCollection, error)
}

// Options configures an Engine.
type Options struct {
	DayURL   string
	WeekURL  string
	MonthURL string

	Interval       time.Duration
	MajorThreshold float64
	Clock          clockwork.Clock
}

// Snapshot is the published merge state. Slices are shared between readers
// and must not be modified.
type Snapshot struct {
	LastHour    []domain.Feature `json:"earthquakesLastHour"`
	PriorHour   []domain.Feature `json:"earthquakesPriorHour"`
	Last24Hours []domain.Feature `json:"earthquakesLast24Hours"`

	Last72Hours  []domain.Feature `json:"earthquakesLast72Hours"`
	Last7Days    []domain.Feature `json:"earthquakesLast7Days"`
	Prior24Hours []domain.Feature `json:"prev24HourData"`

	Last14Days  []domain.Feature `json:"earthquakesLast14Days"`
	Last30Days  []domain.Feature `json:"earthquakesLast30Days"`
	Prior7Days  []domain.Feature `json:"prev7DayData"`
	Prior14Days []domain.Feature `json:"prev14DayData"`
	AllMonth    []domain.Feature `json:"allEarthquakesMonth"`

	HasRecentTsunamiWarning     bool             `json:"hasRecentTsunamiWarning"`
	HighestRecentAlert          string           `json:"highestRecentAlert,omitempty"`
	ActiveAlertTriggeringQuakes []domain.Feature `json:"activeAlertTriggeringQuakes"`

	LastMajorQuake     *domain.Feature `json:"lastMajorQuake"`
	PreviousMajorQuake *domain.Feature `json:"previousMajorQuake"`
	TimeBetweenMajors  *int64          `json:"timeBetweenPreviousMajorQuakes"`

	Error        string `json:"error,omitempty"`
	MonthlyError string `json:"monthlyError,omitempty"`

	MonthlyLoaded       bool  `json:"hasAttemptedMonthlyLoad"`
	InitialLoadComplete bool  `json:"initialLoadComplete"`
	LastUpdated         int64 `json:"lastUpdated"`
}

// Engine owns the merge state and its refresh lifecycle.
type Engine struct {
	fetcher FeedFetcher
	opts    Options
	logger  *slog.Logger
	metrics *observability.Metrics

	cycleMu sync.Mutex // serializes cycles; guards the major-quake read-modify-write

	mu         sync.RWMutex
	snap       Snapshot
	monthAsked bool

	lifeMu sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates an Engine. A zero MajorThreshold uses domain.SignificantMagnitude.
func New(fetcher FeedFetcher, opts Options, logger *slog.Logger, metrics *observability.Metrics) *Engine {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.MajorThreshold <= 0 {
		opts.MajorThreshold = domain.SignificantMagnitude
	}
	return &Engine{
		fetcher: fetcher,
		opts:    opts,
		logger:  logger,
		metrics: metrics,
		snap:    emptySnapshot(),
	}
}

// Init runs the first cycle and then refreshes every Interval until ctx is
// cancelled or Teardown is called.
func (e *Engine) Init(ctx context.Context) error {
	e.lifeMu.Lock()
	defer e.lifeMu.Unlock()
	if e.cancel != nil {
		return errors.New("monitor already started")
	}

	e.Refresh(ctx)

	loopCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.done = make(chan struct{})
	go e.loop(loopCtx, e.done)
	return nil
}

// Teardown stops the refresh loop and waits for an in-flight cycle to finish.
func (e *Engine) Teardown() {
	e.lifeMu.Lock()
	cancel, done := e.cancel, e.done
	e.cancel, e.done = nil, nil
	e.lifeMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (e *Engine) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	if e.opts.Interval <= 0 {
		<-ctx.Done()
		return
	}
	ticker := e.opts.Clock.NewTicker(e.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			e.Refresh(ctx)
		}
	}
}

// Snapshot returns the current published state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.snap
}

// CheckReadiness reports an error until the first successful cycle completes.
func (e *Engine) CheckReadiness(_ context.Context) error {
	if !e.Snapshot().InitialLoadComplete {
		return errors.New("earthquake data not loaded yet")
	}
	return nil
}

// windowResult is the outcome of fetching and processing one feed.
type windowResult struct {
	events []timed
	err    error
}

// Refresh runs one merge cycle over the day and week feeds, plus the month
// feed once it has been requested.
func (e *Engine) Refresh(ctx context.Context) {
	e.cycleMu.Lock()
	defer e.cycleMu.Unlock()

	e.mu.RLock()
	withMonth := e.monthAsked
	e.mu.RUnlock()

	now := e.opts.Clock.Now().UnixMilli()

	var (
		wg               sync.WaitGroup
		day, week, month windowResult
	)
	wg.Add(2)
	go func() { defer wg.Done(); day = e.fetchWindow(ctx, "day", e.opts.DayURL) }()
	go func() { defer wg.Done(); week = e.fetchWindow(ctx, "week", e.opts.WeekURL) }()
	if withMonth {
		wg.Add(1)
		go func() { defer wg.Done(); month = e.fetchWindow(ctx, "month", e.opts.MonthURL) }()
	}
	wg.Wait()

	e.mu.Lock()
	defer e.mu.Unlock()
	next := e.snap
	next.Error = ""

	var candidates []timed
	fresh := false
	if day.err == nil {
		applyDay(&next, deriveDay(day.events, now))
		candidates = append(candidates, majors(day.events, e.opts.MajorThreshold)...)
		fresh = true
	}
	if week.err == nil {
		applyWeek(&next, deriveWeek(week.events, now))
		candidates = append(candidates, majors(week.events, e.opts.MajorThreshold)...)
		fresh = true
	}
	if withMonth {
		next.MonthlyError = ""
		if month.err == nil {
			applyMonth(&next, deriveMonth(month.events, now))
			candidates = append(candidates, majors(month.events, e.opts.MajorThreshold)...)
			fresh = true
		} else {
			next.MonthlyError = windowMessage("Monthly", month.err)
		}
	}

	switch {
	case day.err != nil && week.err != nil:
		next.Error = CombinedFailureMessage
	case day.err != nil:
		next.Error = windowMessage("Daily", day.err)
	case week.err != nil:
		next.Error = windowMessage("Weekly", week.err)
	}

	if fresh {
		e.applyMajors(&next, candidates)
		next.LastUpdated = now
		if !next.InitialLoadComplete {
			next.InitialLoadComplete = true
			e.metrics.MonitorReady.Set(1)
		}
	}
	e.snap = next

	e.logger.Info("merge cycle complete",
		"day_ok", day.err == nil,
		"week_ok", week.err == nil,
		"month", withMonth,
		"error", next.Error,
	)
}

// LoadMonthly fetches the month feed on demand. Later refreshes keep it current.
func (e *Engine) LoadMonthly(ctx context.Context) {
	e.cycleMu.Lock()
	defer e.cycleMu.Unlock()

	now := e.opts.Clock.Now().UnixMilli()
	month := e.fetchWindow(ctx, "month", e.opts.MonthURL)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.monthAsked = true
	next := e.snap
	next.MonthlyLoaded = true
	next.MonthlyError = ""
	if month.err != nil {
		next.MonthlyError = windowMessage("Monthly", month.err)
		e.snap = next
		return
	}
	applyMonth(&next, deriveMonth(month.events, now))
	e.applyMajors(&next, majors(month.events, e.opts.MajorThreshold))
	e.snap = next
}

func (e *Engine) applyMajors(s *Snapshot, candidates []timed) {
	s.LastMajorQuake, s.PreviousMajorQuake = pickMajorPair(candidates, s.LastMajorQuake)
	s.TimeBetweenMajors = timeBetween(s.LastMajorQuake, s.PreviousMajorQuake)
}

// fetchWindow fetches and validates one feed. Processing failures, including
// panics, are reported like fetch failures.
func (e *Engine) fetchWindow(ctx context.Context, name, url string) (res windowResult) {
	defer func() {
		if r := recover(); r != nil {
			res = windowResult{err: fmt.Errorf("processing %s feed: %v", name, r)}
		}
		outcome := "success"
		if res.err != nil {
			outcome = "error"
			e.logger.Warn("feed window failed", "window", name, "url", url, "error", res.err)
		}
		e.metrics.MonitorWindows.WithLabelValues(name, outcome).Inc()
	}()

	fc, err := e.fetcher.FetchFeed(ctx, url)
	if err != nil {
		return windowResult{err: err}
	}
	events, skipped, err := prepare(fc)
	if err != nil {
		return windowResult{err: err}
	}
	if skipped > 0 {
		e.logger.Warn("dropped features without id", "window", name, "count", skipped)
	}
	return windowResult{events: events}
}

func windowMessage(source string, err error) string {
	return fmt.Sprintf("%s data error: %s.", source, domain.MessageOf(err))
}

func applyDay(s *Snapshot, v dayViews) {
	s.LastHour = v.LastHour
	s.PriorHour = v.PriorHour
	s.Last24Hours = v.Last24Hours
	s.HasRecentTsunamiWarning = v.Tsunami
	s.HighestRecentAlert = v.TopAlert
	s.ActiveAlertTriggeringQuakes = v.Alerts
}

func applyWeek(s *Snapshot, v weekViews) {
	s.Last72Hours = v.Last72Hours
	s.Last7Days = v.Last7Days
	s.Prior24Hours = v.Prior24Hours
}

func applyMonth(s *Snapshot, v monthViews) {
	s.Last14Days = v.Last14Days
	s.Last30Days = v.Last30Days
	s.Prior7Days = v.Prior7Days
	s.Prior14Days = v.Prior14Days
	s.AllMonth = v.All
}

func emptySnapshot() Snapshot {
	empty := []domain.Feature{}
	return Snapshot{
		LastHour: empty, PriorHour: empty, Last24Hours: empty,
		Last72Hours: empty, Last7Days: empty, Prior24Hours: empty,
		Last14Days: empty, Last30Days: empty, Prior7Days: empty, Prior14Days: empty, AllMonth: empty,
		ActiveAlertTriggeringQuakes: empty,
	}
}
