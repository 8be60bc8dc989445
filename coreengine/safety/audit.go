package safety

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// maxPreviewRunes bounds the content preview stored in audit records.
const maxPreviewRunes = 100

// SafetyEvent is one audit record: a check that found violations. The
// content preview is capped so raw queries and responses never land in the
// audit trail wholesale.
type SafetyEvent struct {
	EventID        string      `json:"event_id"`
	Timestamp      time.Time   `json:"timestamp"`
	Direction      Direction   `json:"type"`
	Safe           bool        `json:"safe"`
	Violations     []Violation `json:"violations"`
	ContentPreview string      `json:"content_preview"`
}

// NewSafetyEvent builds an audit record for a completed check.
func NewSafetyEvent(direction Direction, content string, violations []Violation, safe bool) *SafetyEvent {
	return &SafetyEvent{
		EventID:        "evt_" + uuid.New().String()[:16],
		Timestamp:      time.Now().UTC(),
		Direction:      direction,
		Safe:           safe,
		Violations:     violations,
		ContentPreview: previewContent(content, maxPreviewRunes),
	}
}

// previewContent truncates content for audit records. Truncated previews
// carry a trailing ellipsis marker.
func previewContent(content string, limit int) string {
	runes := []rune(content)
	if len(runes) <= limit {
		return content
	}
	return string(runes[:limit]) + "..."
}

// AuditSink receives safety events append-only. Implementations must
// serialize concurrent appends. Sink failures are reported to the caller
// but must never invalidate the safety check that produced the event.
type AuditSink interface {
	Append(ctx context.Context, event *SafetyEvent) error
}

// =============================================================================
// JSONL SINK
// =============================================================================

// JSONLSink appends events to a newline-delimited JSON file. A single
// mutex serializes writers so records never interleave.
type JSONLSink struct {
	path string

	mu   sync.Mutex
	file *os.File
}

// NewJSONLSink opens (or creates) the audit log at path in append mode,
// creating parent directories as needed.
func NewJSONLSink(path string) (*JSONLSink, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create audit log directory: %w", err)
		}
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	return &JSONLSink{path: path, file: file}, nil
}

// Path returns the audit log location.
func (s *JSONLSink) Path() string { return s.path }

// Append writes one event as a single JSON line.
func (s *JSONLSink) Append(ctx context.Context, event *SafetyEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal safety event: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append safety event: %w", err)
	}
	return nil
}

// Close closes the underlying file.
func (s *JSONLSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}

// =============================================================================
// MEMORY SINK
// =============================================================================

// MemorySink retains events in memory. Intended for tests and for serving
// statistics without a file sink.
type MemorySink struct {
	mu     sync.RWMutex
	events []*SafetyEvent
}

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Append retains the event.
func (s *MemorySink) Append(ctx context.Context, event *SafetyEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

// Events returns a copy of the retained events in append order.
func (s *MemorySink) Events() []*SafetyEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*SafetyEvent(nil), s.events...)
}

// Len returns the number of retained events.
func (s *MemorySink) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// Clear drops all retained events.
func (s *MemorySink) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}

// =============================================================================
// NOP SINK
// =============================================================================

// NopSink discards every event. Used when audit logging is disabled.
type NopSink struct{}

// Append discards the event.
func (s *NopSink) Append(ctx context.Context, event *SafetyEvent) error {
	return nil
}

// Interface assertions.
var (
	_ AuditSink = (*JSONLSink)(nil)
	_ AuditSink = (*MemorySink)(nil)
	_ AuditSink = (*NopSink)(nil)
)
