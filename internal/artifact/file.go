// Package artifact delivers export artifacts to the user.
package artifact

import (
	"fmt"
	"os"
	"path/filepath"

	"portfolio_exporter/internal/core"
)

// FileSink writes artifacts into a directory, one file per export. It is
// the delivery path for headless runs; interactive exports go out as HTTP
// downloads instead.
type FileSink struct {
	dir    string
	logger core.ILogger
}

func NewFileSink(dir string, logger core.ILogger) *FileSink {
	return &FileSink{
		dir:    dir,
		logger: logger.WithField("component", "artifact_sink"),
	}
}

// Deliver writes the artifact under its suggested name. The write goes
// through a temp file and rename so readers never observe a partial
// artifact.
func (s *FileSink) Deliver(content string, suggestedName string, mimeType string) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create artifact directory: %w", err)
	}

	target := filepath.Join(s.dir, filepath.Base(suggestedName))
	tmp, err := os.CreateTemp(s.dir, ".artifact-*")
	if err != nil {
		return fmt.Errorf("failed to create artifact file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to flush artifact: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to place artifact: %w", err)
	}

	s.logger.Info("Artifact written", "path", target, "mime_type", mimeType, "bytes", len(content))
	return nil
}
