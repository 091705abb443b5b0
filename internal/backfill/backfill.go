// Package backfill loads historical events from the FDSN event query into the
// record store.
package backfill

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/watkajtys/earthquake-sub007/internal/adapter/usgs"
	"github.com/watkajtys/earthquake-sub007/internal/domain"
)

// FeedFetcher fetches a decoded feed.
type FeedFetcher interface {
	FetchFeed(ctx context.Context, url string) (domain.FeatureCollection, error)
}

// Upserter persists features.
type Upserter interface {
	Upsert(ctx context.Context, features []domain.Feature) domain.UpsertCount
}

// MaxDays bounds a single backfill; each day is one upstream request.
const MaxDays = 366

// Range is an inclusive span of UTC calendar days.
type Range struct {
	Start time.Time
	End   time.Time
}

// Result summarizes a backfill run.
type Result struct {
	Message   string `json:"message"`
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
	Fetched   int    `json:"fetched"`
	Upserted  int    `json:"upserted"`
	Errors    int    `json:"errors"`
}

// ParseRange validates YYYY-MM-DD start and end dates. Both are required and
// start must not be after end. Ranges longer than MaxDays are rejected.
func ParseRange(startDate, endDate string) (Range, error) {
	if startDate == "" || endDate == "" {
		return Range{}, &domain.Error{Kind: domain.KindValidation, Message: "startDate and endDate query parameters are required (YYYY-MM-DD)"}
	}
	start, err := time.ParseInLocation(usgs.DateLayout, startDate, time.UTC)
	if err != nil {
		return Range{}, &domain.Error{Kind: domain.KindValidation, Message: fmt.Sprintf("invalid startDate %q, expected YYYY-MM-DD", startDate)}
	}
	end, err := time.ParseInLocation(usgs.DateLayout, endDate, time.UTC)
	if err != nil {
		return Range{}, &domain.Error{Kind: domain.KindValidation, Message: fmt.Sprintf("invalid endDate %q, expected YYYY-MM-DD", endDate)}
	}
	if start.After(end) {
		return Range{}, &domain.Error{Kind: domain.KindValidation, Message: "startDate must not be after endDate"}
	}
	r := Range{Start: start, End: end}
	if r.Days() > MaxDays {
		return Range{}, &domain.Error{Kind: domain.KindValidation, Message: fmt.Sprintf("date range spans %d days, at most %d allowed", r.Days(), MaxDays)}
	}
	return r, nil
}

// Days returns the number of calendar days in r.
func (r Range) Days() int {
	return int(r.End.Sub(r.Start).Hours()/24) + 1
}

// Service runs backfills.
type Service struct {
	fetcher  FeedFetcher
	upserter Upserter
	queryURL string
	logger   *slog.Logger
}

// NewService creates a backfill service that queries queryURL.
func NewService(fetcher FeedFetcher, upserter Upserter, queryURL string, logger *slog.Logger) *Service {
	return &Service{fetcher: fetcher, upserter: upserter, queryURL: queryURL, logger: logger}
}

// Run fetches r one UTC day at a time, keeping each query under the upstream
// per-query event cap, and upserts every day before moving on. A failed day is
// logged and skipped; the error is returned only when every day failed.
func (s *Service) Run(ctx context.Context, r Range) (Result, error) {
	res := Result{
		StartDate: r.Start.Format(usgs.DateLayout),
		EndDate:   r.End.Format(usgs.DateLayout),
	}

	var (
		lastErr    error
		failedDays int
	)
	days := r.Days()
	for day := r.Start; !day.After(r.End); day = day.AddDate(0, 0, 1) {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		url := usgs.QueryURL(s.queryURL, day, day.AddDate(0, 0, 1))
		fc, err := s.fetcher.FetchFeed(ctx, url)
		if err != nil {
			s.logger.Warn("backfill day failed", "day", day.Format(usgs.DateLayout), "error", err)
			lastErr = err
			failedDays++
			continue
		}
		res.Fetched += len(fc.Features)
		count := s.upserter.Upsert(ctx, fc.Features)
		res.Upserted += count.SuccessCount
		res.Errors += count.ErrorCount
		s.logger.Info("backfill day complete",
			"day", day.Format(usgs.DateLayout),
			"fetched", len(fc.Features),
			"upserted", count.SuccessCount,
			"errors", count.ErrorCount,
		)
	}

	if failedDays == days {
		return res, lastErr
	}
	res.Message = fmt.Sprintf("Backfill complete: fetched %d, upserted %d, %d errors", res.Fetched, res.Upserted, res.Errors)
	if failedDays > 0 {
		res.Message += fmt.Sprintf(" (%d of %d days failed to fetch)", failedDays, days)
	}
	return res, nil
}
