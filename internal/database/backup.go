package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"courtbook/internal/config"
)

const backupPrefix = "courtbook_"

// Snapshot writes a consistent copy of the database into dir using VACUUM INTO.
func (db *DB) Snapshot(ctx context.Context, dir string, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create backup directory: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("%s%s.db", backupPrefix, now.UTC().Format("20060102_150405")))
	if _, err := db.ExecContext(ctx, `VACUUM INTO ?`, path); err != nil {
		return "", fmt.Errorf("vacuum into %s: %w", path, err)
	}
	return path, nil
}

type BackupService struct {
	db       *DB
	config   config.BackupConfig
	interval time.Duration
	logger   zerolog.Logger
}

func NewBackupService(db *DB, cfg config.BackupConfig, interval time.Duration, logger zerolog.Logger) *BackupService {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &BackupService{
		db:       db,
		config:   cfg,
		interval: interval,
		logger:   logger.With().Str("component", "backup").Logger(),
	}
}

// Start snapshots immediately and then on every interval until ctx is done.
func (s *BackupService) Start(ctx context.Context) {
	if !s.config.Enabled {
		s.logger.Info().Msg("Backup service is disabled")
		return
	}

	s.logger.Info().Dur("interval", s.interval).Str("dir", s.config.StoragePath).Msg("Backup service started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.run(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.run(ctx)
		}
	}
}

func (s *BackupService) run(ctx context.Context) {
	path, err := s.db.Snapshot(ctx, s.config.StoragePath, time.Now())
	if err != nil {
		s.logger.Error().Err(err).Msg("Backup failed")
		return
	}
	s.logger.Info().Str("path", path).Msg("Backup completed")

	removed, err := s.CleanupOldBackups(time.Now())
	if err != nil {
		s.logger.Error().Err(err).Msg("Backup cleanup failed")
		return
	}
	if removed > 0 {
		s.logger.Info().Int("removed", removed).Msg("Old backups deleted")
	}
}

// CleanupOldBackups deletes snapshots older than the retention period and returns how many it removed.
func (s *BackupService) CleanupOldBackups(now time.Time) (int, error) {
	if s.config.RetentionDays <= 0 {
		return 0, nil
	}

	files, err := os.ReadDir(s.config.StoragePath)
	if err != nil {
		return 0, fmt.Errorf("read backup directory: %w", err)
	}

	cutoff := now.AddDate(0, 0, -s.config.RetentionDays)
	removed := 0
	for _, file := range files {
		if file.IsDir() || !strings.HasPrefix(file.Name(), backupPrefix) {
			continue
		}
		info, err := file.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(s.config.StoragePath, file.Name())); err != nil {
				s.logger.Warn().Err(err).Str("file", file.Name()).Msg("Could not delete old backup")
				continue
			}
			removed++
		}
	}
	return removed, nil
}
