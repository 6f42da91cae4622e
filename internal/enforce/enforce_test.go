package enforce

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mfagate/mfagate/internal/audit"
	"github.com/mfagate/mfagate/internal/policy"
	"github.com/mfagate/mfagate/internal/sessionctx"
)

type captureSink struct {
	mu   sync.Mutex
	recs []audit.Record
}

func (s *captureSink) Append(_ context.Context, rec audit.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs = append(s.recs, rec)
	return nil
}

func (s *captureSink) Close() error { return nil }

func (s *captureSink) tags() []audit.Tag {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]audit.Tag, len(s.recs))
	for i, r := range s.recs {
		out[i] = r.Tag
	}
	return out
}

type fakeTerminator struct {
	calls int
	err   error
}

func (f *fakeTerminator) HangupSession() error {
	f.calls++
	return f.err
}

type fakeDriver struct {
	calls int
	err   error
}

func (f *fakeDriver) Run(context.Context, sessionctx.Context) error {
	f.calls++
	return f.err
}

func newTestEnforcer(t *testing.T) (*Enforcer, *captureSink, *fakeTerminator, *fakeDriver) {
	t.Helper()
	sink := &captureSink{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	term := &fakeTerminator{}
	driver := &fakeDriver{}
	e := New(audit.NewEmitter(logger, sink), term, driver, "mfa-enroll", logger)
	return e, sink, term, driver
}

func testSession() sessionctx.Context {
	return sessionctx.Context{
		Username: "alice", UID: 1001, PID: 4242,
		LoginUID: 1001, LoginUIDKnown: true,
		Interactive: true,
	}
}

func TestApplyExemptPassesThrough(t *testing.T) {
	e, sink, term, driver := newTestEnforcer(t)

	err := e.Apply(context.Background(), testSession(), policy.Result{
		Decision: policy.DecisionExempt, Rule: "group-exemption",
	})

	require.NoError(t, err)
	assert.Equal(t, []audit.Tag{audit.TagDecisionExempt}, sink.tags())
	assert.Zero(t, term.calls)
	assert.Zero(t, driver.calls)
}

func TestApplyEnrolledPassesThrough(t *testing.T) {
	e, sink, term, driver := newTestEnforcer(t)

	err := e.Apply(context.Background(), testSession(), policy.Result{
		Decision: policy.DecisionEnrolled, Rule: "enrolled",
	})

	require.NoError(t, err)
	assert.Equal(t, []audit.Tag{audit.TagDecisionEnrolled}, sink.tags())
	assert.Zero(t, term.calls)
	assert.Zero(t, driver.calls)
}

func TestApplyDenyHangsUpAndReturnsError(t *testing.T) {
	e, sink, term, driver := newTestEnforcer(t)

	sctx := testSession()
	sctx.Interactive = false
	sctx.SSHMarkers = []string{"SSH_CONNECTION"}

	err := e.Apply(context.Background(), sctx, policy.Result{
		Decision: policy.DecisionDeny, Rule: "noninteractive-ssh",
	})

	assert.ErrorIs(t, err, ErrSessionDenied)
	assert.Equal(t, 1, term.calls)
	assert.Zero(t, driver.calls)

	require.Len(t, sink.recs, 1)
	rec := sink.recs[0]
	assert.Equal(t, audit.TagDecisionDeny, rec.Tag)
	assert.Equal(t, "alice", rec.Username)
	assert.Equal(t, 4242, rec.PID)
	assert.Equal(t, []string{"SSH_CONNECTION"}, rec.SSHMarkers)
}

func TestApplyDenyHangupFailureStillDenies(t *testing.T) {
	e, _, term, _ := newTestEnforcer(t)
	term.err = errors.New("kill: operation not permitted")

	err := e.Apply(context.Background(), testSession(), policy.Result{
		Decision: policy.DecisionDeny, Rule: "noninteractive-ssh",
	})

	assert.ErrorIs(t, err, ErrSessionDenied)
}

func TestApplyEnrollRunsDriver(t *testing.T) {
	e, _, _, driver := newTestEnforcer(t)
	e.lookPath = func(string) (string, error) { return "/usr/bin/mfa-enroll", nil }

	err := e.Apply(context.Background(), testSession(), policy.Result{
		Decision: policy.DecisionEnroll, Rule: "unenrolled-interactive",
	})

	require.NoError(t, err)
	assert.Equal(t, 1, driver.calls)
}

func TestApplyEnrollToolMissingDegrades(t *testing.T) {
	e, sink, term, driver := newTestEnforcer(t)
	e.lookPath = func(string) (string, error) { return "", errors.New("not found") }

	err := e.Apply(context.Background(), testSession(), policy.Result{
		Decision: policy.DecisionEnroll, Rule: "unenrolled-interactive",
	})

	// A local packaging defect must never lock users out.
	require.NoError(t, err)
	assert.Equal(t, []audit.Tag{audit.TagEnrollToolMissing}, sink.tags())
	assert.Zero(t, term.calls)
	assert.Zero(t, driver.calls)
}

func TestApplyUnknownDecision(t *testing.T) {
	e, _, _, _ := newTestEnforcer(t)

	err := e.Apply(context.Background(), testSession(), policy.Result{Decision: "bogus"})
	assert.Error(t, err)
}
