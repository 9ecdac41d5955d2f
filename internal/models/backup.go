package models

import "time"

// BackupArtifact is one snapshot directory of the mission data.
type BackupArtifact struct {
	Name      string    `json:"name"`
	Path      string    `json:"-"`
	CreatedAt time.Time `json:"mtime"`
	SizeBytes int64     `json:"size"`
}

// BackupResult holds the result of a backup operation.
type BackupResult struct {
	Name     string
	Path     string
	Skipped  bool // source directory missing, nothing was written
	Duration time.Duration
}

// CleanupResult holds the result of a retention pass.
type CleanupResult struct {
	Deleted  []string
	Kept     []string
	Failed   []string
	Duration time.Duration
}
