//go:build !windows

package enforce

import (
	"os"
	"os/signal"

	"golang.org/x/sys/unix"
)

type sessionTerminator struct{}

// NewSessionTerminator returns the real terminator: SIGHUP to the session
// leader's process group, which closes the whole login session rather than
// just this hook process.
func NewSessionTerminator() SessionTerminator {
	return sessionTerminator{}
}

func (sessionTerminator) HangupSession() error {
	// The hook runs inside the session it is hanging up, so the group signal
	// below also lands on this process. Ignore SIGHUP first so the hook
	// survives to report its own exit status (a denial must exit 1, not die
	// of its own signal).
	signal.Ignore(unix.SIGHUP)

	sid, err := unix.Getsid(0)
	if err != nil || sid <= 0 {
		// No session id available; the parent shell is the best target left.
		sid = os.Getppid()
	}
	// Negative pid addresses the process group led by the session leader.
	return unix.Kill(-sid, unix.SIGHUP)
}
