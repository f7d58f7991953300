package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/holte-dev/safetyflash/internal/model"
)

// FileSink appends one JSON object per line to a log file. It is the durable
// fallback when the database sink is unavailable and the mirror target for
// critical actions.
type FileSink struct {
	mu   sync.Mutex
	path string
	f    *os.File
}

// NewFileSink creates a sink writing to path. The file is opened lazily on
// first write so a missing directory fails the write, not construction.
func NewFileSink(path string) *FileSink {
	return &FileSink{path: path}
}

type fileRecord struct {
	ID         string         `json:"id"`
	Action     string         `json:"action"`
	Actor      string         `json:"actor,omitempty"`
	TargetType string         `json:"target_type,omitempty"`
	TargetID   string         `json:"target_id,omitempty"`
	Detail     map[string]any `json:"detail,omitempty"`
	IP         string         `json:"ip,omitempty"`
	Severity   string         `json:"severity"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Write appends the entry as a single line. The caller redacts before calling.
func (s *FileSink) Write(e *model.AuditEntry) error {
	rec := fileRecord{
		ID:         e.ID,
		Action:     e.Action,
		TargetType: e.TargetType,
		TargetID:   e.TargetID,
		Detail:     e.Detail,
		IP:         e.IP,
		Severity:   string(e.Severity),
		OccurredAt: e.OccurredAt,
	}
	if e.Actor != nil {
		rec.Actor = e.Actor.String()
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal audit record: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
		if err != nil {
			return fmt.Errorf("open audit log: %w", err)
		}
		s.f = f
	}
	if _, err := s.f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append audit log: %w", err)
	}
	return nil
}

// Close releases the underlying file handle.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}
