package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/conorfennell/revisit/internal/clock"
	"github.com/conorfennell/revisit/internal/config"
	"github.com/conorfennell/revisit/internal/registry"
	"github.com/conorfennell/revisit/internal/service"
	"github.com/conorfennell/revisit/internal/storage"
)

// app holds what every subcommand works with. It is filled in by the root
// command's PersistentPreRunE.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	clock   clock.Clock
	db      *storage.DB
	tracker *service.Tracker
	syncer  *registry.Syncer
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "revisit",
		Short: "Spaced review of solved coding-interview problems",
		Long: `revisit tracks how confidently you can re-solve interview problems and
schedules each one for review with the SM-2 algorithm.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.open(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.close()
		},
	}
	config.RegisterFlags(root.PersistentFlags())

	root.AddCommand(
		newAddCmd(a),
		newReviewCmd(a),
		newRemoveCmd(a),
		newHistoryCmd(a),
		newDueCmd(a),
		newStatsCmd(a),
		newWeakCmd(a),
		newRecommendCmd(a),
		newImportCmd(a),
		newSourceCmd(a),
		newSyncCmd(a),
	)
	return root
}

func (a *app) open(cmd *cobra.Command) error {
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return err
	}
	cfg, err := config.Load(configPath, cmd.Flags())
	if err != nil {
		return err
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	if err := cfg.EnsureDirs(); err != nil {
		return err
	}

	a.cfg = cfg
	a.logger = cfg.Logger(os.Stderr)
	a.clock = clock.System{Location: loc}

	db, err := storage.Open(cmd.Context(), cfg.DB.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	a.db = db
	a.logger.Debug("Database opened", "path", cfg.DB.Path)

	a.tracker = service.New(db, db, a.clock, a.logger, service.Options{
		SeedConfidence: cfg.Import.SeedConfidence,
		DueLimit:       cfg.Review.DefaultLimit,
		WeakTopics:     cfg.Review.WeakTopics,
		CacheSize:      cfg.Cache.Size,
		CacheTTL:       cfg.Cache.TTL,
	})
	a.syncer = registry.NewSyncer(db, a.clock, a.logger, cfg.Registry.ReposDir,
		registry.WithProgress(cmd.ErrOrStderr()))
	return nil
}

func (a *app) close() error {
	if a.db == nil {
		return nil
	}
	err := a.db.Close()
	a.db = nil
	return err
}
