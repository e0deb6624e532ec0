package sender

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"

	"fgaction/internal/config"
	"fgaction/internal/logger"
)

// FileSender appends status records to a rotating file and optionally echoes them to stdout.
type FileSender struct {
	writer      io.WriteCloser
	console     io.Writer
	prettyPrint bool
	format      string
	mu          sync.Mutex
	closed      bool
}

// NewFileSender creates a new FileSender with the given configuration.
func NewFileSender(cfg config.FileConfig) (*FileSender, error) {
	log := logger.WithComponent("file-sender")

	format := cfg.Format
	if format == "" {
		format = "json"
	}
	if format != "json" && format != "text" {
		return nil, fmt.Errorf("unsupported file format %q: must be \"json\" or \"text\"", format)
	}
	if cfg.FilePath == "" {
		return nil, fmt.Errorf("file sender requires File.FilePath")
	}

	dir := filepath.Dir(cfg.FilePath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create status directory: %w", err)
		}
	}

	writer := &lumberjack.Logger{
		Filename:   cfg.FilePath,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		Compress:   true,
	}

	log.Info().
		Str("file_path", cfg.FilePath).
		Str("format", format).
		Bool("console", cfg.Console).
		Msg("FileSender initialized")

	s := &FileSender{
		writer:      writer,
		prettyPrint: cfg.Pretty,
		format:      format,
	}
	if cfg.Console {
		s.console = os.Stdout
	}
	return s, nil
}

// Send writes a single record.
func (s *FileSender) Send(_ context.Context, rec *StatusRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("sender is closed")
	}

	var line []byte
	if s.format == "text" {
		line = []byte(rec.TextLine())
	} else {
		var err error
		if s.prettyPrint {
			line, err = json.MarshalIndent(rec, "", "  ")
		} else {
			line, err = json.Marshal(rec)
		}
		if err != nil {
			return fmt.Errorf("failed to marshal status record: %w", err)
		}
	}
	line = append(line, '\n')

	if _, err := s.writer.Write(line); err != nil {
		return fmt.Errorf("failed to write to file: %w", err)
	}
	if s.console != nil {
		_, _ = s.console.Write(line)
	}
	return nil
}

// Close releases resources held by the FileSender.
func (s *FileSender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.writer.Close()
}

// SetConsole toggles echoing records to stdout.
func (s *FileSender) SetConsole(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if enabled {
		s.console = os.Stdout
	} else {
		s.console = nil
	}
}
