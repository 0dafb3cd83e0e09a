package ingest

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// RunLog accumulates the human-readable log of one catalog run. Every line
// goes to stdout and to a per-run file; the file is read back at the end of
// the run to build the report mail.
type RunLog struct {
	ID     string
	Path   string
	logger *logrus.Logger
	file   *os.File
}

func NewRunLog(dir string) (*RunLog, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("make log dir: %w", err)
	}

	id := uuid.NewString()
	name := time.Now().Format("2006-01-02_150405") + "_" + id + ".txt"
	path := filepath.Join(dir, name)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	logger := logrus.New()
	logger.SetOutput(io.MultiWriter(os.Stdout, f))
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
		DisableColors:   true,
	})

	return &RunLog{ID: id, Path: path, logger: logger, file: f}, nil
}

func (l *RunLog) Logf(format string, args ...any) {
	l.logger.Infof(format, args...)
}

func (l *RunLog) Errorf(format string, args ...any) {
	l.logger.Errorf(format, args...)
}

// Text returns everything logged so far.
func (l *RunLog) Text() string {
	b, err := os.ReadFile(l.Path)
	if err != nil {
		return ""
	}
	return string(b)
}

func (l *RunLog) Close() error {
	return l.file.Close()
}
