package audit

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config holds configuration for the audit service.
type Config struct {
	// OutputDir receives the generated workbooks.
	OutputDir string

	// ExportOnStart if true, exports the previous month when the service starts.
	ExportOnStart bool

	// ReportName identifies the deployment in captions.
	ReportName string
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		OutputDir:  "data/exports",
		ReportName: "courtbook",
	}
}

// Service exports monthly booking workbooks and hands them to a notifier.
type Service struct {
	config   *Config
	exporter TableExporter
	writer   func() ExcelWriter // factory for creating new Excel writers
	notifier Notifier
	now      func() time.Time
	logger   zerolog.Logger
	stopCh   chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
	running  bool
}

// NewService creates a new audit service. notifier may be nil.
func NewService(
	config *Config,
	exporter TableExporter,
	writerFactory func() ExcelWriter,
	notifier Notifier,
	logger zerolog.Logger,
) *Service {
	def := DefaultConfig()
	if config == nil {
		config = def
	}
	if config.OutputDir == "" {
		config.OutputDir = def.OutputDir
	}
	if config.ReportName == "" {
		config.ReportName = def.ReportName
	}
	if writerFactory == nil {
		writerFactory = NewExcelizeWriter
	}

	return &Service{
		config:   config,
		exporter: exporter,
		writer:   writerFactory,
		notifier: notifier,
		now:      time.Now,
		logger:   logger.With().Str("component", "audit").Logger(),
		stopCh:   make(chan struct{}),
	}
}

// Start begins the monthly scheduler.
func (s *Service) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	if s.config.ExportOnStart {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.runScheduled()
		}()
	}

	s.wg.Add(1)
	go s.loop()

	s.logger.Info().Str("output_dir", s.config.OutputDir).Msg("Audit service started")
}

// Stop gracefully stops the audit service.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()
	s.logger.Info().Msg("Audit service stopped")
}

func (s *Service) loop() {
	defer s.wg.Done()

	nextRun := nextFirstOfMonth(s.now())
	timer := time.NewTimer(time.Until(nextRun))
	defer timer.Stop()
	s.logger.Info().Time("time", nextRun).Msg("Next audit scheduled")

	for {
		select {
		case <-s.stopCh:
			return
		case <-timer.C:
			s.runScheduled()

			nextRun = nextFirstOfMonth(s.now())
			timer.Reset(time.Until(nextRun))
			s.logger.Info().Time("time", nextRun).Msg("Next audit scheduled")
		}
	}
}

// nextFirstOfMonth returns 00:05 UTC on the first day of the month after now.
func nextFirstOfMonth(now time.Time) time.Time {
	now = now.UTC()
	return time.Date(now.Year(), now.Month()+1, 1, 0, 5, 0, 0, time.UTC)
}

func (s *Service) runScheduled() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	if _, err := s.Export(ctx, PreviousMonth(s.now())); err != nil {
		s.logger.Error().Err(err).Msg("Failed to export audit data")
	}
}

// Export writes the workbook for the month containing month and returns its path.
// The file is also sent to the notifier when one is configured; a delivery failure is logged.
func (s *Service) Export(ctx context.Context, month time.Time) (string, error) {
	if s.exporter == nil {
		return "", fmt.Errorf("exporter not configured")
	}
	from, to := MonthRange(month)

	tables, err := s.exporter.GetTableNames(ctx)
	if err != nil {
		return "", fmt.Errorf("get table names: %w", err)
	}

	excel := s.writer()
	if excel == nil {
		return "", fmt.Errorf("failed to create excel writer")
	}
	if closer, ok := excel.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	for _, tableName := range tables {
		columns, rows, err := s.exporter.GetTableData(ctx, tableName, from, to)
		if err != nil {
			return "", fmt.Errorf("get %s data: %w", tableName, err)
		}
		if err := excel.AddSheet(tableName); err != nil {
			return "", err
		}
		if err := excel.WriteHeader(columns); err != nil {
			return "", fmt.Errorf("write %s header: %w", tableName, err)
		}
		for _, row := range rows {
			if err := excel.WriteRow(row); err != nil {
				return "", fmt.Errorf("write %s row: %w", tableName, err)
			}
		}
		s.logger.Debug().Str("table", tableName).Int("rows", len(rows)).Msg("Exported table")
	}

	var buf bytes.Buffer
	if err := excel.Save(&buf); err != nil {
		return "", fmt.Errorf("save excel: %w", err)
	}

	filename := GenerateFilename(from)
	if err := os.MkdirAll(s.config.OutputDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	path := filepath.Join(s.config.OutputDir, filename)
	if err := os.WriteFile(path, buf.Bytes(), 0o640); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	s.logger.Info().Str("path", path).Msg("Audit report written")

	if s.notifier != nil {
		caption := fmt.Sprintf("📊 Informe mensual %s: %s %d", s.config.ReportName, MonthNames[from.Month()], from.Year())
		if err := s.notifier.SendDocument(ctx, filename, bytes.NewReader(buf.Bytes()), caption); err != nil {
			s.logger.Error().Err(err).Str("filename", filename).Msg("Audit report delivery failed")
		} else {
			s.logger.Info().Str("filename", filename).Msg("Audit report sent")
		}
	}

	return path, nil
}
