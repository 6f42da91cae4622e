// Package enroll drives the external enrollment command to completion and
// owns the signal-safe abort/finish handling around it. Whatever the outcome,
// the session is terminated afterward: the new MFA state only takes effect on
// the next authentication.
package enroll

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/term"

	"github.com/mfagate/mfagate/internal/audit"
	"github.com/mfagate/mfagate/internal/config"
	"github.com/mfagate/mfagate/internal/sessionctx"
)

// Phase tracks where the driver is relative to the enrollment command.
// It only ever advances: pre -> enrolling -> post.
type Phase int32

const (
	PhasePre Phase = iota
	PhaseEnrolling
	PhasePost
)

// SessionTerminator ends the surrounding login session.
type SessionTerminator interface {
	HangupSession() error
}

// Driver runs one enrollment attempt. Not reusable across sessions.
type Driver struct {
	cfg     config.EnrollConfig
	emitter *audit.Emitter
	term    SessionTerminator

	// Injection seams for tests; production values set by NewDriver.
	exit   func(int)
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	phase         atomic.Int32
	reportOnce    sync.Once
	terminateOnce sync.Once
}

func NewDriver(cfg config.EnrollConfig, emitter *audit.Emitter, term SessionTerminator) *Driver {
	return &Driver{
		cfg:     cfg,
		emitter: emitter,
		term:    term,
		exit:    os.Exit,
		stdin:   os.Stdin,
		stdout:  os.Stdout,
		stderr:  os.Stderr,
	}
}

// Phase returns the current phase.
func (d *Driver) Phase() Phase {
	return Phase(d.phase.Load())
}

// Run executes the enrollment command under the configured deadline, reports
// the outcome, and terminates the session. It only returns in tests, where
// the exit seam is a no-op.
func (d *Driver) Run(ctx context.Context, sctx sessionctx.Context) error {
	sigCh := make(chan os.Signal, 4)
	signal.Notify(sigCh, interruptSignals...)
	defer signal.Stop(sigCh)

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		for {
			select {
			case <-stop:
				return
			case <-sigCh:
				d.handleSignal(sctx)
			}
		}
	}()

	rec := audit.New(audit.TagEnrollStart, sctx)
	rec.Message = fmt.Sprintf("starting enrollment command %q", d.cfg.Command)
	d.emitter.Emit(ctx, rec)

	d.phase.Store(int32(PhaseEnrolling))
	code, timedOut := d.runEnrollCommand(ctx)

	// Committed before classification so the signal handler never treats a
	// finished attempt as abortable.
	d.phase.Store(int32(PhasePost))

	d.reportOutcome(ctx, sctx, classifyExit(code, timedOut, d.cfg.TimeoutExitCode), code)
	d.acknowledge(sctx)
	d.terminate(ctx, sctx)
	return nil
}

// handleSignal implements the interruption contract: before the attempt has
// concluded a signal is a user abort and is reported as such; afterwards the
// outcome already stands and the handler only terminates. Repeated signals
// are idempotent.
func (d *Driver) handleSignal(sctx sessionctx.Context) {
	ctx := context.Background()
	if d.Phase() < PhasePost {
		d.reportOutcome(ctx, sctx, OutcomeAborted, -1)
	}
	d.terminate(ctx, sctx)
}

func (d *Driver) runEnrollCommand(ctx context.Context) (code int, timedOut bool) {
	runCtx := ctx
	if dl := d.cfg.DeadlineDuration(); dl > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, dl)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, d.cfg.Command, d.cfg.Args...)
	cmd.Stdin = d.stdin
	cmd.Stdout = d.stdout
	cmd.Stderr = d.stderr
	cmd.WaitDelay = 5 * time.Second

	err := cmd.Run()
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return d.cfg.TimeoutExitCode, true
	}
	if err == nil {
		return 0, false
	}
	return exitCodeFromError(err), false
}

// reportOutcome emits the one audit record and user message pair for the
// attempt. The once guards against the signal path and the main path both
// reporting.
func (d *Driver) reportOutcome(ctx context.Context, sctx sessionctx.Context, out Outcome, code int) {
	d.reportOnce.Do(func() {
		rec := audit.New(out.Tag(), sctx)
		rec.Outcome = string(out)
		rec.ExitCode = code
		rec.Message = out.auditMessage(code)
		d.emitter.Emit(ctx, rec)

		status, next := out.userMessage()
		fmt.Fprintln(d.stdout)
		fmt.Fprintln(d.stdout, status)
		fmt.Fprintln(d.stdout, next)
	})
}

// acknowledge waits for a keypress so the user sees the outcome before the
// session closes under them.
func (d *Driver) acknowledge(sctx sessionctx.Context) {
	if !sctx.Interactive {
		return
	}
	fmt.Fprint(d.stdout, "Press any key to close this session...")
	f, ok := d.stdin.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return
	}
	if prev, err := term.MakeRaw(int(f.Fd())); err == nil {
		buf := make([]byte, 1)
		_, _ = f.Read(buf)
		_ = term.Restore(int(f.Fd()), prev)
	}
	fmt.Fprintln(d.stdout)
}

func (d *Driver) terminate(ctx context.Context, sctx sessionctx.Context) {
	d.terminateOnce.Do(func() {
		rec := audit.New(audit.TagSessionTerminate, sctx)
		rec.Message = "session terminated for re-authentication"
		d.emitter.Emit(ctx, rec)
		if err := d.term.HangupSession(); err != nil {
			fmt.Fprintf(d.stderr, "mfagate: hangup session: %v\n", err)
		}
	})
	d.exit(0)
}
