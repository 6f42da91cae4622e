// Package sessionctx captures the ambient state of a login session as an
// immutable value, so that policy evaluation never has to reach back into the
// process environment.
package sessionctx

import (
	"os"
	"os/user"
	"strconv"
	"strings"

	"golang.org/x/term"
)

// LoginUIDUnset is the kernel's sentinel for "no original login recorded"
// (the audit loginuid before any login process has set it).
const LoginUIDUnset = ^uint32(0)

// sshEnvMarkers are the environment variables whose presence indicates the
// session arrived over an SSH transport. Presence-only; values are ignored.
var sshEnvMarkers = []string{"SSH_CONNECTION", "SSH_CLIENT", "SSH_TTY"}

// Context is a point-in-time snapshot of the session. It is built once at
// entry and never mutated; everything downstream treats it as read-only data.
type Context struct {
	Username      string   `json:"username"`
	UID           int      `json:"uid"`
	LoginUID      uint32   `json:"login_uid"`
	LoginUIDKnown bool     `json:"login_uid_known"`
	Groups        []string `json:"groups,omitempty"`
	Interactive   bool     `json:"interactive"`
	SSHMarkers    []string `json:"ssh_markers,omitempty"`
	PID           int      `json:"pid"`
}

// Capture builds a Context from the current process. Lookup failures are not
// errors: identity information that cannot be determined is simply absent,
// and the classifier's rules default toward permissiveness without it.
func Capture() Context {
	uid := os.Geteuid()
	ctx := Context{
		UID:         uid,
		Username:    strconv.Itoa(uid),
		Interactive: term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd())),
		SSHMarkers:  presentMarkers(os.Getenv),
		PID:         os.Getpid(),
	}

	if u, err := user.LookupId(strconv.Itoa(uid)); err == nil {
		ctx.Username = u.Username
		ctx.Groups = groupNames(u)
	}

	if luid, ok := readLoginUID(); ok {
		ctx.LoginUID = luid
		ctx.LoginUIDKnown = true
	}

	return ctx
}

// HasSSHMarker reports whether any SSH transport marker was present.
func (c Context) HasSSHMarker() bool {
	return len(c.SSHMarkers) > 0
}

// IsPrivilegeSwitch reports whether this session was reached via an
// in-session identity change rather than a fresh authentication. Unknown
// login origin means "not a switch": on platforms without an audit loginuid
// the check is skipped rather than guessed.
func (c Context) IsPrivilegeSwitch() bool {
	if !c.LoginUIDKnown || c.LoginUID == LoginUIDUnset {
		return false
	}
	return c.LoginUID != uint32(c.UID)
}

func presentMarkers(getenv func(string) string) []string {
	var present []string
	for _, name := range sshEnvMarkers {
		if getenv(name) != "" {
			present = append(present, name)
		}
	}
	return present
}

func parseLoginUID(b []byte) (uint32, bool) {
	v, err := strconv.ParseUint(strings.TrimSpace(string(b)), 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(v), true
}

func groupNames(u *user.User) []string {
	gids, err := u.GroupIds()
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(gids))
	for _, gid := range gids {
		g, err := user.LookupGroupId(gid)
		if err != nil {
			// Unresolvable gid: skip rather than fail the whole capture.
			continue
		}
		names = append(names, g.Name)
	}
	return names
}
