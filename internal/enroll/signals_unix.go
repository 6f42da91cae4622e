//go:build !windows

package enroll

import (
	"errors"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// interruptSignals are the interruptions treated as a user abort while
// enrollment is in flight.
var interruptSignals = []os.Signal{
	unix.SIGINT,
	unix.SIGTERM,
	unix.SIGQUIT,
	unix.SIGTSTP,
}

// exitCodeFromError recovers the shell-convention exit code from a command
// error. A signal-terminated command maps to 128+signal; a command that never
// started maps to 127.
func exitCodeFromError(err error) int {
	var ee *exec.ExitError
	if !errors.As(err, &ee) {
		return 127
	}
	if ws, ok := ee.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal())
	}
	return ee.ExitCode()
}

// isAbortExit reports whether an exit code carries the interrupted-by-signal
// convention for the interactive abort signals (or hangup).
func isAbortExit(code int) bool {
	switch code {
	case 128 + int(unix.SIGHUP), 128 + int(unix.SIGINT), 128 + int(unix.SIGQUIT), 128 + int(unix.SIGTERM):
		return true
	}
	return false
}
