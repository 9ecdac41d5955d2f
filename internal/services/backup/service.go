// Package backup creates, lists, restores and expires snapshots of the
// server's mission data.
package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fgeck/gameserver-console/internal/artifact"
	"github.com/fgeck/gameserver-console/internal/metrics"
	"github.com/fgeck/gameserver-console/internal/models"
	"github.com/fgeck/gameserver-console/internal/services/retention"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

// Service defines the interface for backup operations.
type Service interface {
	Create(ctx context.Context) (*models.BackupResult, error)
	Restore(ctx context.Context, name string) bool
	List(ctx context.Context) ([]models.BackupArtifact, error)
	Cleanup(ctx context.Context) (*models.CleanupResult, error)
}

// Impl implements the backup Service interface.
type Impl struct {
	fs       afero.Fs
	settings models.BackupSettings
	strategy retention.Strategy
	logger   zerolog.Logger
	now      func() time.Time

	// mu serializes every mutation of the backup root and the live directory.
	mu sync.Mutex
	wg sync.WaitGroup
}

// New creates a backup service on the host filesystem.
func New(logger zerolog.Logger, settings models.BackupSettings) (*Impl, error) {
	strategy, err := retention.New(settings.Retention, time.Duration(settings.MaxAge)*24*time.Hour)
	if err != nil {
		return nil, err
	}
	return NewWithFs(logger, afero.NewOsFs(), settings, strategy, time.Now), nil
}

// NewWithFs creates a backup service with a custom filesystem, strategy and clock (for testing).
func NewWithFs(
	logger zerolog.Logger,
	fs afero.Fs,
	settings models.BackupSettings,
	strategy retention.Strategy,
	now func() time.Time,
) *Impl {
	if settings.Prefix == "" {
		settings.Prefix = artifact.DefaultPrefix
	}
	return &Impl{
		fs:       fs,
		settings: settings,
		strategy: strategy,
		logger:   logger,
		now:      now,
	}
}

// Create snapshots the live mission directory. A missing source directory is
// not an error: the result is marked Skipped and nothing is written.
// Concurrent callers are serialized.
func (s *Impl) Create(ctx context.Context) (*models.BackupResult, error) {
	s.mu.Lock()
	result, err := s.createLocked(ctx, "")
	s.mu.Unlock()

	if err != nil {
		metrics.RecordBackup("failed")
		return nil, err
	}
	if result.Skipped {
		metrics.RecordBackup("skipped")
		return result, nil
	}
	metrics.RecordBackup("created")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error().Interface("panic", r).Msg("backup cleanup panicked")
			}
		}()
		if _, err := s.Cleanup(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn().Err(err).Msg("cleanup after backup failed")
		}
	}()

	return result, nil
}

func (s *Impl) createLocked(ctx context.Context, marker string) (*models.BackupResult, error) {
	start := s.now()

	if err := s.fs.MkdirAll(s.settings.Path, 0o755); err != nil {
		return nil, fmt.Errorf("creating backup root %s: %w", s.settings.Path, err)
	}

	exists, err := afero.DirExists(s.fs, s.settings.Source)
	if err != nil {
		return nil, fmt.Errorf("checking mission directory %s: %w", s.settings.Source, err)
	}
	if !exists {
		s.logger.Warn().Str("source", s.settings.Source).Msg("mission directory does not exist, skipping backup")
		return &models.BackupResult{Skipped: true}, nil
	}

	name := artifact.FormatName(s.settings.Prefix, start, marker)
	target := filepath.Join(s.settings.Path, name)

	s.logger.Info().Str("artifact", name).Str("source", s.settings.Source).Msg("creating backup")

	if err := s.fs.RemoveAll(target); err != nil {
		return nil, fmt.Errorf("replacing existing artifact %s: %w", target, err)
	}
	if err := copyTree(ctx, s.fs, s.settings.Source, target); err != nil {
		if rmErr := s.fs.RemoveAll(target); rmErr != nil {
			s.logger.Error().Err(rmErr).Str("path", target).Msg("failed to remove partial artifact")
		}
		return nil, fmt.Errorf("copying %s to %s: %w", s.settings.Source, target, err)
	}

	result := &models.BackupResult{
		Name:     name,
		Path:     target,
		Duration: s.now().Sub(start),
	}

	s.logger.Info().
		Str("artifact", name).
		Dur("duration", result.Duration).
		Msg("backup created")

	return result, nil
}

// Restore replaces the live mission directory with the named artifact after
// taking a safety backup of the current state. The artifact is first staged
// next to the live directory, so the live data is only touched once a full
// copy exists; from then on cancellation of ctx is ignored. Every failure is
// logged and reported as false.
func (s *Impl) Restore(ctx context.Context, name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	logger := s.logger.With().Str("artifact", name).Logger()

	if !artifact.Matches(name, s.settings.Prefix) {
		logger.Warn().Msg("restore requested for an invalid artifact name")
		return false
	}
	source := filepath.Join(s.settings.Path, name)
	exists, err := afero.DirExists(s.fs, source)
	if err != nil {
		logger.Error().Err(err).Msg("failed to stat artifact")
		return false
	}
	if !exists {
		logger.Warn().Msg("artifact to restore does not exist")
		return false
	}

	staging := s.stagingPath()
	defer func() {
		if err := s.fs.RemoveAll(staging); err != nil {
			logger.Warn().Err(err).Str("path", staging).Msg("failed to remove restore staging directory")
		}
	}()
	if err := s.fs.RemoveAll(staging); err != nil {
		logger.Error().Err(err).Str("path", staging).Msg("failed to clear restore staging directory")
		return false
	}
	if err := copyTree(ctx, s.fs, source, staging); err != nil {
		logger.Error().Err(err).Str("path", staging).Msg("failed to stage artifact, live data untouched")
		return false
	}

	safety, err := s.createLocked(ctx, safetyMarker(name))
	if err != nil {
		logger.Error().Err(err).Msg("safety backup before restore failed, aborting restore")
		metrics.RecordBackup("failed")
		return false
	}
	if !safety.Skipped {
		metrics.RecordBackup("created")
	}

	if err := s.replaceLive(context.WithoutCancel(ctx), staging); err != nil {
		logger.Error().Err(err).Str("path", s.settings.Source).Str("safety_backup", safety.Name).Msg("failed to replace mission directory")
		return false
	}

	logger.Info().
		Str("safety_backup", safety.Name).
		Msg("backup restored")
	return true
}

// stagingPath is a hidden sibling of the live directory, outside the backup root.
func (s *Impl) stagingPath() string {
	source := filepath.Clean(s.settings.Source)
	return filepath.Join(filepath.Dir(source), "."+filepath.Base(source)+"-restore")
}

// safetyMarker returns a pre-restore marker that differs from the marker of
// the artifact being restored, so the safety backup can never overwrite it.
func safetyMarker(restoring string) string {
	parsed, _ := artifact.Parse(restoring)
	marker := artifact.MarkerPreRestore
	for n := 2; marker == parsed.Marker; n++ {
		marker = fmt.Sprintf("%d-%s", n, artifact.MarkerPreRestore)
	}
	return marker
}

func (s *Impl) replaceLive(ctx context.Context, staging string) error {
	if err := s.fs.RemoveAll(s.settings.Source); err != nil {
		return fmt.Errorf("removing %s: %w", s.settings.Source, err)
	}
	if err := copyTree(ctx, s.fs, staging, s.settings.Source); err != nil {
		return fmt.Errorf("copying %s to %s: %w", staging, s.settings.Source, err)
	}
	return nil
}

// List returns the artifacts under the backup root, oldest first.
func (s *Impl) List(_ context.Context) ([]models.BackupArtifact, error) {
	exists, err := afero.DirExists(s.fs, s.settings.Path)
	if err != nil {
		return nil, fmt.Errorf("checking backup root %s: %w", s.settings.Path, err)
	}
	if !exists {
		return []models.BackupArtifact{}, nil
	}

	entries, err := afero.ReadDir(s.fs, s.settings.Path)
	if err != nil {
		return nil, fmt.Errorf("reading backup root %s: %w", s.settings.Path, err)
	}

	artifacts := make([]models.BackupArtifact, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() || !artifact.Matches(entry.Name(), s.settings.Prefix) {
			continue
		}
		path := filepath.Join(s.settings.Path, entry.Name())
		size, err := treeSize(s.fs, path)
		if err != nil {
			s.logger.Debug().Err(err).Str("path", path).Msg("could not compute artifact size")
		}
		artifacts = append(artifacts, models.BackupArtifact{
			Name:      entry.Name(),
			Path:      path,
			CreatedAt: entry.ModTime(),
			SizeBytes: size,
		})
	}

	sort.Slice(artifacts, func(i, j int) bool {
		return artifacts[i].CreatedAt.Before(artifacts[j].CreatedAt)
	})

	return artifacts, nil
}

// Cleanup deletes every artifact the retention strategy considers expired.
// Failures on individual artifacts are logged and do not stop the pass.
func (s *Impl) Cleanup(ctx context.Context) (*models.CleanupResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := s.now()
	artifacts, err := s.List(ctx)
	if err != nil {
		return nil, err
	}

	result := &models.CleanupResult{}
	for _, a := range artifacts {
		rule := s.strategy.Classify(a.Name, a.CreatedAt)
		age := retention.AgeMinutes(start, a.CreatedAt)
		event := s.logger.With().
			Str("artifact", a.Name).
			Str("category", string(rule.Category)).
			Int64("age_minutes", age).
			Int64("max_age_minutes", rule.MaxAgeMinutes).
			Logger()

		if !retention.ShouldDelete(rule, start, a.CreatedAt) {
			event.Info().Msg("keeping backup")
			result.Kept = append(result.Kept, a.Name)
			continue
		}

		if err := s.fs.RemoveAll(a.Path); err != nil {
			event.Error().Err(err).Msg("failed to delete expired backup")
			result.Failed = append(result.Failed, a.Name)
			continue
		}
		event.Info().Msg("deleted expired backup")
		result.Deleted = append(result.Deleted, a.Name)
	}

	metrics.RecordCleanup(len(result.Deleted), len(result.Failed))
	result.Duration = s.now().Sub(start)
	return result, nil
}

// Wait blocks until background cleanups started by Create have finished.
func (s *Impl) Wait() {
	s.wg.Wait()
}

func treeSize(fs afero.Fs, root string) (int64, error) {
	var size int64
	err := afero.Walk(fs, root, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.Mode().IsRegular() {
			size += info.Size()
		}
		return nil
	})
	return size, err
}
