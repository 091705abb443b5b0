// Package recordstore selects the configured record store backend.
package recordstore

import (
	"context"
	"fmt"

	"github.com/watkajtys/earthquake-sub007/internal/adapter/postgres"
	"github.com/watkajtys/earthquake-sub007/internal/adapter/sqlite"
	"github.com/watkajtys/earthquake-sub007/internal/domain"
)

// Store is the full record store surface used by the service.
type Store interface {
	UpsertBatch(ctx context.Context, records []domain.EarthquakeRecord) error
	Get(ctx context.Context, id string) (domain.EarthquakeRecord, error)
	Recent(ctx context.Context, sinceMillis int64, limit int) ([]domain.EarthquakeRecord, error)
	Ping(ctx context.Context) error
	Close() error
}

var (
	_ Store = (*sqlite.Store)(nil)
	_ Store = (*postgres.Store)(nil)
)

// Open connects to the store for driver. Driver "none" returns a nil Store
// and no error.
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch driver {
	case "none":
		return nil, nil
	case "sqlite":
		s, err := sqlite.Open(ctx, dsn)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "postgres":
		s, err := postgres.Connect(ctx, dsn)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}
