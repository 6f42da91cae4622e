// Package policy implements the per-session enrollment decision.
package policy

import (
	"fmt"
	"os"
	"strings"

	"github.com/gobwas/glob"

	"github.com/mfagate/mfagate/internal/config"
	"github.com/mfagate/mfagate/internal/sessionctx"
)

// Decision is the classifier's verdict for a session.
type Decision string

const (
	// DecisionExempt lets the session through without any MFA concern.
	DecisionExempt Decision = "exempt"
	// DecisionEnrolled lets the session through because the identity has
	// already completed enrollment.
	DecisionEnrolled Decision = "enrolled"
	// DecisionDeny terminates the session outright.
	DecisionDeny Decision = "deny"
	// DecisionEnroll hands the session to the enrollment driver.
	DecisionEnroll Decision = "enroll"
)

// Result is a Decision plus the rule that produced it.
type Result struct {
	Decision Decision `json:"decision"`
	Rule     string   `json:"rule"`
	Message  string   `json:"message"`
}

// Classifier evaluates the enrollment policy against a session context.
// Evaluation is a pure function of the context plus the marker file and is
// idempotent for an unchanged context.
type Classifier struct {
	markerPath   string
	exemptGlobs  []glob.Glob
	exemptSource []string
}

func NewClassifier(cfg config.PolicyConfig) (*Classifier, error) {
	c := &Classifier{markerPath: cfg.MarkerPath}
	for _, pat := range cfg.ExemptionGroups() {
		g, err := glob.Compile(pat)
		if err != nil {
			return nil, fmt.Errorf("compile exemption group %q: %w", pat, err)
		}
		c.exemptGlobs = append(c.exemptGlobs, g)
		c.exemptSource = append(c.exemptSource, pat)
	}
	return c, nil
}

// Classify applies the policy rules in order; the first matching rule wins.
func (c *Classifier) Classify(sctx sessionctx.Context) Result {
	if sctx.UID == 0 {
		return Result{
			Decision: DecisionExempt,
			Rule:     "superuser",
			Message:  "superuser sessions are exempt",
		}
	}

	if sctx.IsPrivilegeSwitch() {
		return Result{
			Decision: DecisionExempt,
			Rule:     "privilege-switch",
			Message:  fmt.Sprintf("session reached via identity switch (login uid %d)", sctx.LoginUID),
		}
	}

	if group, pat, ok := c.matchExemptGroup(sctx.Groups); ok {
		return Result{
			Decision: DecisionExempt,
			Rule:     "group-exemption",
			Message:  fmt.Sprintf("group %q matches exemption %q", group, pat),
		}
	}

	if c.markerPresent(sctx.Username) {
		return Result{
			Decision: DecisionEnrolled,
			Rule:     "enrolled",
			Message:  "enrollment marker present",
		}
	}

	if !sctx.Interactive {
		if sctx.HasSSHMarker() {
			return Result{
				Decision: DecisionDeny,
				Rule:     "noninteractive-ssh",
				Message:  "non-interactive SSH session for unenrolled user",
			}
		}
		return Result{
			Decision: DecisionExempt,
			Rule:     "noninteractive-local",
			Message:  "non-interactive local session; not a remote shell concern",
		}
	}

	return Result{
		Decision: DecisionEnroll,
		Rule:     "unenrolled-interactive",
		Message:  "interactive session for unenrolled user",
	}
}

// MarkerPath returns the marker location for a username.
func (c *Classifier) MarkerPath(username string) string {
	return strings.ReplaceAll(c.markerPath, "%u", username)
}

// markerPresent treats only an existing, non-empty file as "enrolled";
// a zero-byte marker is an aborted write by the enrollment tool.
func (c *Classifier) markerPresent(username string) bool {
	st, err := os.Stat(c.MarkerPath(username))
	if err != nil {
		return false
	}
	return st.Mode().IsRegular() && st.Size() > 0
}

func (c *Classifier) matchExemptGroup(groups []string) (group, pattern string, ok bool) {
	for _, name := range groups {
		for i, g := range c.exemptGlobs {
			if g.Match(name) {
				return name, c.exemptSource[i], true
			}
		}
	}
	return "", "", false
}
