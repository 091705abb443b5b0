package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/watkajtys/earthquake-sub007/internal/adapter/usgs"
	"github.com/watkajtys/earthquake-sub007/internal/backfill"
	"github.com/watkajtys/earthquake-sub007/internal/config"
	"github.com/watkajtys/earthquake-sub007/internal/ingest"
	"github.com/watkajtys/earthquake-sub007/internal/observability"
	"github.com/watkajtys/earthquake-sub007/internal/recordstore"
)

type options struct {
	startDate string
	endDate   string
	days      int
}

func newRootCommand() *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:          "backfill",
		Short:        "Load historical USGS events into the record store",
		Long:         "Fetches the FDSN event query one UTC day at a time and upserts every event into the configured DATABASE_DRIVER.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.startDate, "start", "", "first day to load (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.endDate, "end", "", "last day to load, inclusive (YYYY-MM-DD)")
	cmd.Flags().IntVar(&opts.days, "days", 0, "load the last N days ending today (UTC) instead of --start/--end")
	cmd.MarkFlagsMutuallyExclusive("days", "start")
	cmd.MarkFlagsMutuallyExclusive("days", "end")
	return cmd
}

// resolveDates turns --days into an explicit range ending on today.
func resolveDates(opts options, now time.Time) (string, string) {
	if opts.days <= 0 {
		return opts.startDate, opts.endDate
	}
	end := now.UTC()
	start := end.AddDate(0, 0, -(opts.days - 1))
	return start.Format(usgs.DateLayout), end.Format(usgs.DateLayout)
}

func run(cmd *cobra.Command, opts options) error {
	ctx := cmd.Context()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	start, end := resolveDates(opts, time.Now())
	rng, err := backfill.ParseRange(start, end)
	if err != nil {
		return err
	}

	store, err := recordstore.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("open record store: %w", err)
	}
	if store == nil {
		return errors.New("backfill needs a record store; DATABASE_DRIVER is none")
	}
	defer store.Close()

	client := usgs.NewClient(cfg.USGSTimeout, cfg.USGSUserAgent, logger, metrics)
	engine := ingest.NewEngine(store, nil, cfg.UpsertBatchSize, logger, metrics)
	svc := backfill.NewService(client, engine, cfg.USGSQueryURL, logger)

	res, err := svc.Run(ctx, rng)
	if err != nil {
		logger.Error("backfill failed", "start", start, "end", end, "error", err)
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
