package ingest

import (
	"context"
	"log/slog"

	"github.com/watkajtys/earthquake-sub007/internal/domain"
	"github.com/watkajtys/earthquake-sub007/internal/observability"
)

// BatchWriter persists records as one atomic unit: either every record in the
// call is written or none is.
type BatchWriter interface {
	UpsertBatch(ctx context.Context, records []domain.EarthquakeRecord) error
}

// RecordPublisher announces records that were persisted.
type RecordPublisher interface {
	Publish(ctx context.Context, records []domain.EarthquakeRecord) error
}

// Engine validates features and upserts them into a BatchWriter.
//
// A failed batch is counted as failed in full: the writer cannot attribute the
// failure to individual statements. Callers that need per-record attribution
// must use a batch size of 1 at a throughput cost.
type Engine struct {
	writer    BatchWriter
	publisher RecordPublisher
	batchSize int
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// NewEngine creates an upsert engine. A nil writer is a configuration error
// reported on every call. batchSize <= 0 sends all valid records as one batch.
// publisher may be nil.
func NewEngine(writer BatchWriter, publisher RecordPublisher, batchSize int, logger *slog.Logger, metrics *observability.Metrics) *Engine {
	return &Engine{
		writer:    writer,
		publisher: publisher,
		batchSize: batchSize,
		logger:    logger,
		metrics:   metrics,
	}
}

// Upsert writes features and returns per-record accounting. It never returns
// an error; every failure is reflected in ErrorCount.
func (e *Engine) Upsert(ctx context.Context, features []domain.Feature) domain.UpsertCount {
	if e.writer == nil {
		e.logger.Error("upsert skipped: no record store configured", "features", len(features))
		e.metrics.RecordsRejected.Add(float64(len(features)))
		return domain.UpsertCount{ErrorCount: len(features)}
	}
	if len(features) == 0 {
		return domain.UpsertCount{}
	}

	var count domain.UpsertCount
	retrievedAt := domain.NowMillis()
	records := make([]domain.EarthquakeRecord, 0, len(features))
	for i := range features {
		rec, err := domain.ToRecord(features[i], retrievedAt)
		if err != nil {
			e.logger.Warn("invalid feature, skipping", "index", i, "id", features[i].ID, "error", err)
			e.metrics.RecordsRejected.Inc()
			count.ErrorCount++
			continue
		}
		records = append(records, rec)
	}

	for _, batch := range chunk(records, e.batchSize) {
		count.Add(e.writeBatch(ctx, batch))
	}

	e.logger.Info("upsert complete",
		"features", len(features),
		"success", count.SuccessCount,
		"errors", count.ErrorCount,
	)
	return count
}

func (e *Engine) writeBatch(ctx context.Context, batch []domain.EarthquakeRecord) domain.UpsertCount {
	e.metrics.UpsertBatchSize.Observe(float64(len(batch)))

	if err := e.writer.UpsertBatch(ctx, batch); err != nil {
		e.logger.Error("upsert batch failed", "error", err, "batch_size", len(batch))
		e.metrics.BatchFailures.Inc()
		e.metrics.RecordsRejected.Add(float64(len(batch)))
		return domain.UpsertCount{ErrorCount: len(batch)}
	}
	e.metrics.RecordsUpserted.Add(float64(len(batch)))

	if e.publisher != nil {
		if err := e.publisher.Publish(ctx, batch); err != nil {
			e.logger.Warn("publish persisted records failed", "error", err, "batch_size", len(batch))
		}
	}
	return domain.UpsertCount{SuccessCount: len(batch)}
}

func chunk(records []domain.EarthquakeRecord, size int) [][]domain.EarthquakeRecord {
	if len(records) == 0 {
		return nil
	}
	if size <= 0 || size >= len(records) {
		return [][]domain.EarthquakeRecord{records}
	}
	out := make([][]domain.EarthquakeRecord, 0, (len(records)+size-1)/size)
	for start := 0; start < len(records); start += size {
		end := min(start+size, len(records))
		out = append(out, records[start:end])
	}
	return out
}
