//go:build windows

package enroll

import (
	"errors"
	"os"
	"os/exec"
)

var interruptSignals = []os.Signal{os.Interrupt}

func exitCodeFromError(err error) int {
	var ee *exec.ExitError
	if !errors.As(err, &ee) {
		return 127
	}
	return ee.ExitCode()
}

func isAbortExit(code int) bool { return false }
