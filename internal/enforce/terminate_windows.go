//go:build windows

package enforce

import "errors"

type sessionTerminator struct{}

func NewSessionTerminator() SessionTerminator {
	return sessionTerminator{}
}

func (sessionTerminator) HangupSession() error {
	return errors.New("session hangup not supported on windows")
}
