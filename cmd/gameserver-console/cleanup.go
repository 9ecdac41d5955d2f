package main

import (
	"context"
	"fmt"
	"time"

	"github.com/fgeck/gameserver-console/internal/artifact"
	"github.com/fgeck/gameserver-console/internal/models"
	"github.com/fgeck/gameserver-console/internal/services/backup"
	"github.com/fgeck/gameserver-console/internal/services/retention"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

var (
	cleanupDir      string
	cleanupStrategy string
	cleanupPrefix   string
	cleanupDryRun   bool
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete expired backups",
	Long: `Delete backups that are older than their retention window.

With --dir the command works on any backup directory without a config file,
classifying each backup by its name marker (--strategy marker) or by the
timestamp in its name (--strategy timestamp). Age is always taken from the
directory's modification time. Directories that do not look like backups
are left alone.`,
	Args: cobra.NoArgs,
	RunE: runCleanup,
}

func init() {
	cleanupCmd.Flags().StringVar(&cleanupDir, "dir", "", "backup directory (default: backup.path from config)")
	cleanupCmd.Flags().StringVar(&cleanupStrategy, "strategy", retention.StrategyMarker, "classification with --dir: marker or timestamp")
	cleanupCmd.Flags().StringVar(&cleanupPrefix, "prefix", artifact.DefaultPrefix, "backup name prefix with --dir")
	cleanupCmd.Flags().BoolVar(&cleanupDryRun, "dry-run", false, "only report what would be deleted")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	settings, strategy, err := cleanupSettings()
	if err != nil {
		return err
	}

	svc := backup.NewWithFs(log.Logger, afero.NewOsFs(), settings, strategy, time.Now)

	if cleanupDryRun {
		return dryRunCleanup(svc, strategy)
	}

	result, err := svc.Cleanup(context.Background())
	if err != nil {
		log.Error().Err(err).Msg("cleanup failed")
		return err
	}

	log.Info().
		Int("deleted", len(result.Deleted)).
		Int("kept", len(result.Kept)).
		Int("failed", len(result.Failed)).
		Msg("cleanup completed")
	if len(result.Failed) > 0 {
		return fmt.Errorf("failed to delete %d backup(s)", len(result.Failed))
	}
	return nil
}

func cleanupSettings() (models.BackupSettings, retention.Strategy, error) {
	if cleanupDir == "" {
		_, cfg, err := loadConfig()
		if err != nil {
			return models.BackupSettings{}, nil, err
		}
		strategy, err := retention.New(cfg.Backup.Retention, time.Duration(cfg.Backup.MaxAge)*24*time.Hour)
		if err != nil {
			return models.BackupSettings{}, nil, err
		}
		return cfg.Backup, strategy, nil
	}

	if cleanupStrategy != retention.StrategyMarker && cleanupStrategy != retention.StrategyTimestamp {
		return models.BackupSettings{}, nil, fmt.Errorf("--strategy must be %q or %q", retention.StrategyMarker, retention.StrategyTimestamp)
	}
	if !artifact.ValidPrefix(cleanupPrefix) {
		return models.BackupSettings{}, nil, fmt.Errorf("invalid --prefix %q", cleanupPrefix)
	}
	strategy, err := retention.New(cleanupStrategy, 0)
	if err != nil {
		return models.BackupSettings{}, nil, err
	}
	return models.BackupSettings{Path: cleanupDir, Prefix: cleanupPrefix}, strategy, nil
}

func dryRunCleanup(svc backup.Service, strategy retention.Strategy) error {
	artifacts, err := svc.List(context.Background())
	if err != nil {
		log.Error().Err(err).Msg("failed to list backups")
		return err
	}

	now := time.Now()
	for _, a := range artifacts {
		rule := strategy.Classify(a.Name, a.CreatedAt)
		event := log.Info().
			Str("artifact", a.Name).
			Str("category", string(rule.Category)).
			Int64("age_minutes", retention.AgeMinutes(now, a.CreatedAt)).
			Int64("max_age_minutes", rule.MaxAgeMinutes)
		if retention.ShouldDelete(rule, now, a.CreatedAt) {
			event.Msg("would delete")
		} else {
			event.Msg("would keep")
		}
	}
	return nil
}
