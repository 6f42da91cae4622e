// Package audit emits one tagged, single-line record per decision point.
// Records are fire-and-forget: sink failures are logged and never surface to
// the user or influence the session's fate.
package audit

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/mfagate/mfagate/internal/sessionctx"
)

// Tag identifies the decision point that produced a record. Tags are stable
// for downstream filtering.
type Tag string

const (
	TagDecisionExempt    Tag = "decision_exempt"
	TagDecisionEnrolled  Tag = "decision_enrolled"
	TagDecisionDeny      Tag = "decision_deny"
	TagEnrollToolMissing Tag = "enroll_tool_missing"
	TagEnrollStart       Tag = "enroll_start"
	TagEnrollSuccess     Tag = "enroll_success"
	TagEnrollTimeout     Tag = "enroll_timeout"
	TagEnrollAborted     Tag = "enroll_aborted"
	TagEnrollFailed      Tag = "enroll_failed"
	TagSessionTerminate  Tag = "session_terminate"
)

// Record is one audit event. Every record is self-contained.
type Record struct {
	EventID    string   `json:"event_id"`
	Timestamp  string   `json:"timestamp"`
	Hostname   string   `json:"hostname,omitempty"`
	Tag        Tag      `json:"tag"`
	Username   string   `json:"username"`
	UID        int      `json:"uid"`
	PID        int      `json:"pid"`
	Decision   string   `json:"decision,omitempty"`
	Rule       string   `json:"rule,omitempty"`
	SSHMarkers []string `json:"ssh_markers,omitempty"`
	Outcome    string   `json:"outcome,omitempty"`
	ExitCode   int      `json:"exit_code,omitempty"`
	Message    string   `json:"message,omitempty"`
}

// Sink persists records.
type Sink interface {
	Append(ctx context.Context, rec Record) error
	Close() error
}

// Emitter fans records out to its sinks and mirrors them on the operational
// log.
type Emitter struct {
	logger *slog.Logger
	sinks  []Sink
}

func NewEmitter(logger *slog.Logger, sinks ...Sink) *Emitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Emitter{logger: logger, sinks: sinks}
}

// New builds a record pre-filled from the session context.
func New(tag Tag, sctx sessionctx.Context) Record {
	return Record{
		Tag:        tag,
		Username:   sctx.Username,
		UID:        sctx.UID,
		PID:        sctx.PID,
		SSHMarkers: sctx.SSHMarkers,
	}
}

// Emit stamps identity fields and delivers the record to every sink.
func (e *Emitter) Emit(ctx context.Context, rec Record) {
	if rec.EventID == "" {
		rec.EventID = uuid.NewString()
	}
	if rec.Timestamp == "" {
		rec.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	if rec.Hostname == "" {
		rec.Hostname, _ = os.Hostname()
	}

	e.logger.LogAttrs(ctx, slog.LevelInfo, "audit",
		slog.String("tag", string(rec.Tag)),
		slog.String("user", rec.Username),
		slog.Int("pid", rec.PID),
		slog.String("rule", rec.Rule),
		slog.String("outcome", rec.Outcome),
		slog.String("msg", rec.Message),
	)

	for _, s := range e.sinks {
		if err := s.Append(ctx, rec); err != nil {
			e.logger.Warn("audit sink append failed", "tag", rec.Tag, "error", err)
		}
	}
}

// Close closes all sinks.
func (e *Emitter) Close() error {
	var firstErr error
	for _, s := range e.sinks {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
