package enroll

import (
	"fmt"

	"github.com/mfagate/mfagate/internal/audit"
)

// Outcome classifies how an enrollment attempt ended.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeTimeout Outcome = "timeout"
	OutcomeAborted Outcome = "aborted"
	OutcomeFailed  Outcome = "failed"
)

// classifyExit maps the enrollment command's exit to an Outcome. The reserved
// supervisor code counts as a timeout whether it came from the driver's own
// deadline or an external wrapper.
func classifyExit(code int, timedOut bool, supervisorCode int) Outcome {
	switch {
	case !timedOut && code == 0:
		return OutcomeSuccess
	case timedOut || code == supervisorCode:
		return OutcomeTimeout
	case isAbortExit(code):
		return OutcomeAborted
	default:
		return OutcomeFailed
	}
}

// Tag returns the audit tag for the outcome.
func (o Outcome) Tag() audit.Tag {
	switch o {
	case OutcomeSuccess:
		return audit.TagEnrollSuccess
	case OutcomeTimeout:
		return audit.TagEnrollTimeout
	case OutcomeAborted:
		return audit.TagEnrollAborted
	default:
		return audit.TagEnrollFailed
	}
}

func (o Outcome) auditMessage(code int) string {
	switch o {
	case OutcomeSuccess:
		return "enrollment completed"
	case OutcomeTimeout:
		return "enrollment exceeded deadline"
	case OutcomeAborted:
		return "enrollment aborted by user"
	default:
		return fmt.Sprintf("enrollment failed (exit %d)", code)
	}
}

// userMessage returns the status line and next-step instruction shown on the
// terminal. Presentation only; the outcome taxonomy is the contract.
func (o Outcome) userMessage() (status, next string) {
	switch o {
	case OutcomeSuccess:
		return "MFA enrollment complete.",
			"Log in again to continue; your next login will ask for an MFA code."
	case OutcomeTimeout:
		return "MFA enrollment timed out.",
			"Log in again to retry enrollment."
	case OutcomeAborted:
		return "MFA enrollment was interrupted.",
			"Log in again to retry enrollment."
	default:
		return "MFA enrollment failed.",
			"Log in again to retry; contact your administrator if this keeps happening."
	}
}
