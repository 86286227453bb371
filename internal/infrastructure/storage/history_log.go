package storage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/errors"

	"TenderWatch/internal/domain"
	"TenderWatch/internal/ports"
)

// HistoryLog appends execution entries as JSON lines.
type HistoryLog struct {
	path string
	mu   sync.Mutex
}

var _ ports.HistoryLog = (*HistoryLog)(nil)

// NewHistoryLog appends to path.
func NewHistoryLog(path string) *HistoryLog {
	return &HistoryLog{path: path}
}

// Append writes one line per entry.
func (h *HistoryLog) Append(_ context.Context, entry domain.HistoryEntry) error {
	line, err := json.Marshal(entry)
	if err != nil {
		return errors.Wrap(err, "encode history entry")
	}
	line = append(line, '\n')

	h.mu.Lock()
	defer h.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(h.path), 0o755); err != nil {
		return errors.Wrap(err, "create history directory")
	}
	f, err := os.OpenFile(h.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrap(err, "open history log")
	}
	if _, err := f.Write(line); err != nil {
		_ = f.Close()
		return errors.Wrap(err, "append history entry")
	}
	return errors.Wrap(f.Close(), "close history log")
}
