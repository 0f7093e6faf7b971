package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	appimagesync "github.com/nest-haus/backend/internal/application/imagesync"
	"github.com/nest-haus/backend/internal/bootstrap"
	"github.com/nest-haus/backend/internal/domain/imagesync"
	"github.com/nest-haus/backend/internal/infrastructure/cache"
	"github.com/nest-haus/backend/internal/infrastructure/config"
)

// syncService is what the run, status and catalog commands need.
type syncService interface {
	Run(ctx context.Context, opts imagesync.Options) (*imagesync.Result, error)
	Status(ctx context.Context, limit int) (*appimagesync.Status, error)
	UpdateCatalog(ctx context.Context) (imagesync.MergeResult, error)
}

// loader builds the service on first use. It returns a cleanup func.
type loader func(ctx context.Context) (syncService, func(), error)

func newRootCmd(load loader) *cobra.Command {
	if load == nil {
		load = loadService
	}
	root := &cobra.Command{
		Use:           "imagesync",
		Short:         "Mirror the Google Drive image folders into blob storage",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newRunCmd(load),
		newStatusCmd(load),
		newParseCmd(),
		newCatalogCmd(load),
	)
	return root
}

func newRunCmd(load loader) *cobra.Command {
	var opts imagesync.Options
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one sync",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.Days < 0 || opts.Days > 365 {
				return fmt.Errorf("--days must be between 0 and 365, got %d", opts.Days)
			}
			svc, done, err := load(cmd.Context())
			if err != nil {
				return err
			}
			defer done()

			opts.Trigger = imagesync.TriggerCLI
			res, err := svc.Run(cmd.Context(), opts)
			if res != nil {
				if werr := writeJSON(cmd.OutOrStdout(), res); werr != nil {
					return werr
				}
			}
			return err
		},
	}
	cmd.Flags().IntVar(&opts.Days, "days", 0, "widen the recent-change window to N days")
	cmd.Flags().BoolVar(&opts.FullSync, "full", false, "ignore the recent-change window")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "plan and preview without touching storage")
	return cmd
}

func newStatusCmd(load loader) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show configuration and recent runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, done, err := load(cmd.Context())
			if err != nil {
				return err
			}
			defer done()

			status, err := svc.Status(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), status)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "number of recent runs to show")
	return cmd
}

// parseOutput is one line of the parse command.
type parseOutput struct {
	Name   string                `json:"name"`
	Valid  bool                  `json:"valid"`
	Parsed *imagesync.ParsedName `json:"parsed,omitempty"`
	Key    string                `json:"key,omitempty"`
	Clean  string                `json:"cleanPath,omitempty"`
}

func newParseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "parse <name>...",
		Short: "Show how file names are parsed",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := make([]parseOutput, 0, len(args))
			for _, name := range args {
				line := parseOutput{Name: name}
				if p, ok := imagesync.ParseFilename(name); ok {
					line.Valid = true
					line.Parsed = &p
					line.Key = p.Key().String()
					line.Clean = imagesync.CleanPath(name)
				}
				out = append(out, line)
			}
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}
}

func newCatalogCmd(load loader) *cobra.Command {
	catalog := &cobra.Command{
		Use:   "catalog",
		Short: "Maintain the image constants catalog",
	}
	catalog.AddCommand(&cobra.Command{
		Use:   "update",
		Short: "Merge the current blob listing into the catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, done, err := load(cmd.Context())
			if err != nil {
				return err
			}
			defer done()

			merged, err := svc.UpdateCatalog(cmd.Context())
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), map[string]any{
				"changed":    merged.Changed(),
				"added":      merged.Added,
				"updated":    merged.Updated,
				"keysBefore": merged.KeysBefore,
				"keysAfter":  merged.KeysAfter,
			})
		},
	})
	return catalog
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// loadService connects to postgres and redis the way the server does.
func loadService(ctx context.Context) (syncService, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	log, err := bootstrap.NewLogger(cfg.Log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	db, err := bootstrap.OpenDatabase(cfg, log)
	if err != nil {
		return nil, nil, err
	}
	redisClient, err := cache.NewRedisClient(cfg.Redis)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	done := func() {
		if err := errors.Join(redisClient.Close(), db.Close()); err != nil {
			log.Warn("Error closing connections", zap.Error(err))
		}
		_ = log.Sync()
	}

	svc, _, err := bootstrap.NewImageSync(ctx, cfg, bootstrap.ImageSyncDeps{
		DB:     db,
		Redis:  redisClient,
		Logger: log,
	})
	if err != nil {
		done()
		return nil, nil, err
	}
	return svc, done, nil
}
