package enroll

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mfagate/mfagate/internal/audit"
	"github.com/mfagate/mfagate/internal/config"
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

func (s *captureSink) byTag(tag audit.Tag) []audit.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []audit.Record
	for _, r := range s.recs {
		if r.Tag == tag {
			out = append(out, r)
		}
	}
	return out
}

type fakeTerminator struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeTerminator) HangupSession() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return nil
}

func (f *fakeTerminator) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type testDriver struct {
	d     *Driver
	sink  *captureSink
	term  *fakeTerminator
	out   *bytes.Buffer
	exits []int
}

func newTestDriver(t *testing.T, cfg config.EnrollConfig) *testDriver {
	t.Helper()
	if cfg.TimeoutExitCode == 0 {
		cfg.TimeoutExitCode = 124
	}
	if cfg.Deadline == "" {
		cfg.Deadline = "0s"
	}

	td := &testDriver{
		sink: &captureSink{},
		term: &fakeTerminator{},
		out:  &bytes.Buffer{},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	td.d = NewDriver(cfg, audit.NewEmitter(logger, td.sink), td.term)
	td.d.exit = func(code int) { td.exits = append(td.exits, code) }
	td.d.stdin = strings.NewReader("")
	td.d.stdout = td.out
	td.d.stderr = td.out
	return td
}

func enrollSession() sessionctx.Context {
	return sessionctx.Context{
		Username: "alice", UID: 1001, PID: 4242,
		LoginUID: 1001, LoginUIDKnown: true,
		Interactive: false, // skip the keypress acknowledgement in tests
	}
}

func shCmd(script string) config.EnrollConfig {
	return config.EnrollConfig{Command: "sh", Args: []string{"-c", script}}
}

func TestRunSuccess(t *testing.T) {
	td := newTestDriver(t, shCmd("exit 0"))

	require.NoError(t, td.d.Run(context.Background(), enrollSession()))

	assert.Equal(t, []audit.Tag{
		audit.TagEnrollStart,
		audit.TagEnrollSuccess,
		audit.TagSessionTerminate,
	}, td.sink.tags())
	assert.Equal(t, PhasePost, td.d.Phase())
	assert.Equal(t, 1, td.term.count(), "success still terminates the session for re-authentication")
	assert.Equal(t, []int{0}, td.exits)
	assert.Contains(t, td.out.String(), "MFA enrollment complete.")

	succ := td.sink.byTag(audit.TagEnrollSuccess)
	require.Len(t, succ, 1)
	assert.Equal(t, string(OutcomeSuccess), succ[0].Outcome)
	assert.Equal(t, 0, succ[0].ExitCode)
}

func TestRunFailure(t *testing.T) {
	td := newTestDriver(t, shCmd("exit 3"))

	require.NoError(t, td.d.Run(context.Background(), enrollSession()))

	failed := td.sink.byTag(audit.TagEnrollFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, 3, failed[0].ExitCode)
	assert.Equal(t, 1, td.term.count())
	assert.Contains(t, td.out.String(), "MFA enrollment failed.")
}

func TestRunDeadlineExpiry(t *testing.T) {
	cfg := shCmd("sleep 5")
	cfg.Deadline = "100ms"
	td := newTestDriver(t, cfg)

	require.NoError(t, td.d.Run(context.Background(), enrollSession()))

	timeouts := td.sink.byTag(audit.TagEnrollTimeout)
	require.Len(t, timeouts, 1)
	assert.Equal(t, 124, timeouts[0].ExitCode)
	assert.Equal(t, 1, td.term.count())
	assert.Contains(t, td.out.String(), "MFA enrollment timed out.")
}

func TestRunSupervisorTimeoutCode(t *testing.T) {
	// An external deadline supervisor reports expiry via its reserved exit
	// code; the driver must classify that as a timeout, not a failure.
	td := newTestDriver(t, shCmd("exit 124"))

	require.NoError(t, td.d.Run(context.Background(), enrollSession()))

	assert.Len(t, td.sink.byTag(audit.TagEnrollTimeout), 1)
	assert.Empty(t, td.sink.byTag(audit.TagEnrollFailed))
}

func TestRunCommandMissing(t *testing.T) {
	td := newTestDriver(t, config.EnrollConfig{Command: "/nonexistent/mfa-enroll-test"})

	require.NoError(t, td.d.Run(context.Background(), enrollSession()))

	failed := td.sink.byTag(audit.TagEnrollFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, 127, failed[0].ExitCode)
	assert.Equal(t, 1, td.term.count())
}

func TestSignalDuringEnrollmentAborts(t *testing.T) {
	td := newTestDriver(t, shCmd("exit 0"))
	sctx := enrollSession()

	td.d.phase.Store(int32(PhaseEnrolling))
	td.d.handleSignal(sctx)

	aborted := td.sink.byTag(audit.TagEnrollAborted)
	require.Len(t, aborted, 1)
	assert.Equal(t, string(OutcomeAborted), aborted[0].Outcome)
	assert.Equal(t, 1, td.term.count())
	assert.Contains(t, td.out.String(), "MFA enrollment was interrupted.")
}

func TestRepeatedSignalIsIdempotent(t *testing.T) {
	td := newTestDriver(t, shCmd("exit 0"))
	sctx := enrollSession()

	td.d.phase.Store(int32(PhaseEnrolling))
	td.d.handleSignal(sctx)

	// Attempt concluded; a second identical signal must not re-report.
	td.d.phase.Store(int32(PhasePost))
	td.d.handleSignal(sctx)
	td.d.handleSignal(sctx)

	assert.Len(t, td.sink.byTag(audit.TagEnrollAborted), 1)
	assert.Len(t, td.sink.byTag(audit.TagSessionTerminate), 1)
	assert.Equal(t, 1, td.term.count(), "hangup delivered once")
	assert.Equal(t, 3, len(td.exits), "every signal still ends the process")
}

func TestSignalAfterCompletionIsSilent(t *testing.T) {
	td := newTestDriver(t, shCmd("exit 0"))
	sctx := enrollSession()

	td.d.phase.Store(int32(PhasePost))
	td.d.handleSignal(sctx)

	// No outcome record of any kind, only the termination.
	assert.Equal(t, []audit.Tag{audit.TagSessionTerminate}, td.sink.tags())
	assert.Empty(t, td.out.String())
}

func TestPhaseAdvancesMonotonically(t *testing.T) {
	td := newTestDriver(t, shCmd("exit 0"))

	assert.Equal(t, PhasePre, td.d.Phase())
	require.NoError(t, td.d.Run(context.Background(), enrollSession()))
	assert.Equal(t, PhasePost, td.d.Phase())
}

func TestClassifyExit(t *testing.T) {
	tests := []struct {
		name     string
		code     int
		timedOut bool
		want     Outcome
	}{
		{name: "clean exit", code: 0, want: OutcomeSuccess},
		{name: "driver deadline", code: 124, timedOut: true, want: OutcomeTimeout},
		{name: "supervisor code", code: 124, want: OutcomeTimeout},
		{name: "sigint convention", code: 130, want: OutcomeAborted},
		{name: "sigterm convention", code: 143, want: OutcomeAborted},
		{name: "sigquit convention", code: 131, want: OutcomeAborted},
		{name: "sighup convention", code: 129, want: OutcomeAborted},
		{name: "plain failure", code: 3, want: OutcomeFailed},
		{name: "not found", code: 127, want: OutcomeFailed},
		{name: "sigkill is a failure", code: 137, want: OutcomeFailed},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got := classifyExit(tt.code, tt.timedOut, 124)
			assert.Equal(t, tt.want, got)
		})
	}
}
