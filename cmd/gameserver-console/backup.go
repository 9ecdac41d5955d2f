package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fgeck/gameserver-console/internal/services/backup"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var errRestoreFailed = errors.New("restore failed")

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Create, list and restore mission backups",
}

var backupCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Snapshot the mission directory now",
	Args:  cobra.NoArgs,
	RunE:  runBackupCreate,
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List backups, oldest first",
	Args:  cobra.NoArgs,
	RunE:  runBackupList,
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore <name>",
	Short: "Replace the mission directory with a backup",
	Long: `Replace the live mission directory with the named backup.
The current mission directory is saved as a "-pre-restore" backup first.
Stop the game server before restoring.`,
	Args: cobra.ExactArgs(1),
	RunE: runBackupRestore,
}

func init() {
	backupCmd.AddCommand(backupCreateCmd)
	backupCmd.AddCommand(backupListCmd)
	backupCmd.AddCommand(backupRestoreCmd)
}

func newBackupService() (*backup.Impl, error) {
	_, cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	svc, err := backup.New(log.Logger, cfg.Backup)
	if err != nil {
		log.Error().Err(err).Msg("failed to set up backups")
		return nil, err
	}
	return svc, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func runBackupCreate(cmd *cobra.Command, args []string) error {
	svc, err := newBackupService()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	result, err := svc.Create(ctx)
	svc.Wait()
	if err != nil {
		log.Error().Err(err).Msg("backup failed")
		return err
	}
	if result.Skipped {
		log.Warn().Msg("mission directory not found, nothing to back up")
		return nil
	}

	log.Info().Str("artifact", result.Name).Dur("duration", result.Duration).Msg("backup completed successfully")
	return nil
}

func runBackupList(cmd *cobra.Command, args []string) error {
	svc, err := newBackupService()
	if err != nil {
		return err
	}

	artifacts, err := svc.List(context.Background())
	if err != nil {
		log.Error().Err(err).Msg("failed to list backups")
		return err
	}

	if len(artifacts) == 0 {
		fmt.Println("No backups found.")
		return nil
	}
	for _, a := range artifacts {
		fmt.Fprintf(os.Stdout, "%-45s %s %10s\n", a.Name, a.CreatedAt.Format("2006-01-02 15:04:05"), formatBytes(a.SizeBytes))
	}
	return nil
}

func runBackupRestore(cmd *cobra.Command, args []string) error {
	svc, err := newBackupService()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	if !svc.Restore(ctx, args[0]) {
		return fmt.Errorf("%w: %s", errRestoreFailed, args[0])
	}

	log.Info().Str("artifact", args[0]).Msg("backup restored")
	return nil
}

// formatBytes formats bytes into human-readable format.
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
