package cli

import "strconv"

// ExitError carries the hook's process exit status for outcomes that are
// decisions rather than failures — a forced denial exits 1 without printing
// a stack of error context into the user's login. main unwraps it and exits
// with Code.
type ExitError struct {
	code    int
	message string
}

func NewExitError(code int, message string) *ExitError {
	return &ExitError{code: code, message: message}
}

func (e *ExitError) Error() string {
	if e == nil {
		return ""
	}
	if e.message != "" {
		return e.message
	}
	return "exit status " + strconv.Itoa(e.code)
}

// Code is the exit status to use; a nil receiver defaults to 1.
func (e *ExitError) Code() int {
	if e == nil {
		return 1
	}
	return e.code
}

// Message is the optional text to print before exiting; empty means exit
// silently.
func (e *ExitError) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}
