package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/watkajtys/earthquake-sub007/internal/backfill"
	"github.com/watkajtys/earthquake-sub007/internal/domain"
	"github.com/watkajtys/earthquake-sub007/internal/proxy"
)

const (
	defaultRecordLimit = 100
	maxRecordLimit     = 1000
)

func (s *Server) handleProxy(p ProxyService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		apiURL := r.URL.Query().Get("apiUrl")
		resp, err := p.Serve(r.Context(), proxy.CacheKey(apiURL), apiURL)
		if err != nil {
			status, body := proxy.ErrorResponse(err)
			if status >= http.StatusInternalServerError {
				s.logger.Error("usgs proxy failed", "url", apiURL, "error", err)
			}
			writeJSON(w, status, body)
			return
		}

		h := w.Header()
		h.Set("Content-Type", resp.ContentType)
		h.Set("Cache-Control", resp.CacheControl)
		if resp.Cached {
			h.Set("X-Cache", "HIT")
		} else {
			h.Set("X-Cache", "MISS")
		}
		w.WriteHeader(resp.Status)
		w.Write(resp.Body) //nolint:errcheck // client may have gone away
	}
}

func (s *Server) handleBackfill(b BackfillRunner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		rng, err := backfill.ParseRange(q.Get("startDate"), q.Get("endDate"))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, messageBody{Message: domain.MessageOf(err)})
			return
		}

		res, err := b.Run(r.Context(), rng)
		if err != nil {
			s.logger.Error("backfill failed", "start", q.Get("startDate"), "end", q.Get("endDate"), "error", err)
			writeJSON(w, domain.HTTPStatus(err), messageBody{Message: "Backfill failed: " + domain.MessageOf(err)})
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// handleNoDatabase answers storage-backed routes when no record store is configured.
func (s *Server) handleNoDatabase(w http.ResponseWriter, r *http.Request) {
	s.logger.Error("request needs a record store but none is configured", "path", r.URL.Path)
	writeJSON(w, http.StatusInternalServerError, messageBody{Message: "Database not configured"})
}

func handleOverview(o OverviewService) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, o.Snapshot())
	}
}

func handleLoadMonthly(o OverviewService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		o.LoadMonthly(r.Context())
		writeJSON(w, http.StatusOK, o.Snapshot())
	}
}

// recordView is a persisted record with its computed significance.
type recordView struct {
	domain.EarthquakeRecord
	Significant bool `json:"significant"`
}

func (s *Server) newRecordView(rec domain.EarthquakeRecord) recordView {
	sig := domain.IsSignificant(rec, s.logger)
	if len(rec.RawFeature) > 0 && !json.Valid(rec.RawFeature) {
		rec.RawFeature = nil
	}
	return recordView{EarthquakeRecord: rec, Significant: sig}
}

type recordList struct {
	Earthquakes []recordView `json:"earthquakes"`
	Count       int          `json:"count"`
}

func (s *Server) handleListRecords(rr RecordReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		since, err := parseInt64(q.Get("since"), 0)
		if err != nil || since < 0 {
			writeJSON(w, http.StatusBadRequest, messageBody{Message: "since must be epoch milliseconds"})
			return
		}
		limit, err := parseInt64(q.Get("limit"), defaultRecordLimit)
		if err != nil || limit <= 0 {
			writeJSON(w, http.StatusBadRequest, messageBody{Message: "limit must be a positive integer"})
			return
		}
		limit = min(limit, maxRecordLimit)
		onlySignificant := q.Get("significant") == "true"

		records, err := rr.Recent(r.Context(), since, int(limit))
		if err != nil {
			s.logger.Error("list records failed", "error", err)
			writeJSON(w, http.StatusInternalServerError, messageBody{Message: "failed to query earthquakes"})
			return
		}

		out := recordList{Earthquakes: make([]recordView, 0, len(records))}
		for _, rec := range records {
			view := s.newRecordView(rec)
			if onlySignificant && !view.Significant {
				continue
			}
			out.Earthquakes = append(out.Earthquakes, view)
		}
		out.Count = len(out.Earthquakes)
		writeJSON(w, http.StatusOK, out)
	}
}

func (s *Server) handleGetRecord(rr RecordReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		rec, err := rr.Get(r.Context(), id)
		if errors.Is(err, domain.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, messageBody{Message: "earthquake " + id + " not found"})
			return
		}
		if err != nil {
			s.logger.Error("get record failed", "id", id, "error", err)
			writeJSON(w, http.StatusInternalServerError, messageBody{Message: "failed to query earthquake"})
			return
		}
		writeJSON(w, http.StatusOK, s.newRecordView(rec))
	}
}

func parseInt64(s string, def int64) (int64, error) {
	if s == "" {
		return def, nil
	}
	return strconv.ParseInt(s, 10, 64)
}
