package storage

import (
	"log/slog"
	"os"
	"sync"
)

// FileDumpSink writes the most recent undecodable response body to a file.
// Each capture overwrites the previous one. Write failures are logged and
// otherwise ignored.
type FileDumpSink struct {
	path string
	log  *slog.Logger
	mu   sync.Mutex
}

// NewFileDumpSink creates a sink writing to path.
func NewFileDumpSink(path string, log *slog.Logger) *FileDumpSink {
	if log == nil {
		log = slog.Default()
	}
	return &FileDumpSink{path: path, log: log}
}

// Capture implements interfaces.DiagnosticSink.
func (s *FileDumpSink) Capture(label string, body []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.WriteFile(s.path, body, 0o600); err != nil {
		s.log.Warn("Failed to dump response body",
			slog.String("path", s.path),
			slog.String("label", label),
			"err", err)
		return
	}

	s.log.Info("Dumped undecodable response body",
		slog.String("path", s.path),
		slog.String("label", label),
		slog.Int("size", len(body)))
}
