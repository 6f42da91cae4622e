// Package enforce applies a classification to the live session: pass it
// through, kill it, or hand it to the enrollment driver.
package enforce

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"

	"github.com/mfagate/mfagate/internal/audit"
	"github.com/mfagate/mfagate/internal/policy"
	"github.com/mfagate/mfagate/internal/sessionctx"
)

// ErrSessionDenied is returned after a deny has been enforced so the caller
// can exit non-zero.
var ErrSessionDenied = errors.New("session denied pending MFA enrollment")

// SessionTerminator ends the surrounding login session.
type SessionTerminator interface {
	HangupSession() error
}

// EnrollRunner is the enrollment driver seam.
type EnrollRunner interface {
	Run(ctx context.Context, sctx sessionctx.Context) error
}

type Enforcer struct {
	emitter       *audit.Emitter
	term          SessionTerminator
	driver        EnrollRunner
	enrollCommand string

	logger   *slog.Logger
	lookPath func(string) (string, error)
}

func New(emitter *audit.Emitter, term SessionTerminator, driver EnrollRunner, enrollCommand string, logger *slog.Logger) *Enforcer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Enforcer{
		emitter:       emitter,
		term:          term,
		driver:        driver,
		enrollCommand: enrollCommand,
		logger:        logger,
		lookPath:      exec.LookPath,
	}
}

// Apply executes the consequence of a classification. Exempt and enrolled
// sessions proceed; denied sessions are hung up; enroll hands off to the
// driver, degrading to pass-through when the enrollment tool is absent so a
// local packaging defect never locks users out.
func (e *Enforcer) Apply(ctx context.Context, sctx sessionctx.Context, res policy.Result) error {
	switch res.Decision {
	case policy.DecisionExempt:
		e.emitDecision(ctx, audit.TagDecisionExempt, sctx, res)
		return nil

	case policy.DecisionEnrolled:
		e.emitDecision(ctx, audit.TagDecisionEnrolled, sctx, res)
		return nil

	case policy.DecisionDeny:
		e.emitDecision(ctx, audit.TagDecisionDeny, sctx, res)
		if err := e.term.HangupSession(); err != nil {
			e.logger.Warn("hangup session failed", "pid", sctx.PID, "error", err)
		}
		return ErrSessionDenied

	case policy.DecisionEnroll:
		if _, err := e.lookPath(e.enrollCommand); err != nil {
			rec := audit.New(audit.TagEnrollToolMissing, sctx)
			rec.Decision = string(res.Decision)
			rec.Rule = res.Rule
			rec.Message = fmt.Sprintf("enrollment command %q not found; passing session through", e.enrollCommand)
			e.emitter.Emit(ctx, rec)
			return nil
		}
		return e.driver.Run(ctx, sctx)
	}

	return fmt.Errorf("unknown decision %q", res.Decision)
}

func (e *Enforcer) emitDecision(ctx context.Context, tag audit.Tag, sctx sessionctx.Context, res policy.Result) {
	rec := audit.New(tag, sctx)
	rec.Decision = string(res.Decision)
	rec.Rule = res.Rule
	rec.Message = res.Message
	e.emitter.Emit(ctx, rec)
}
