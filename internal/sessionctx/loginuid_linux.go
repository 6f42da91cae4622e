//go:build linux

package sessionctx

import "os"

const loginUIDPath = "/proc/self/loginuid"

// readLoginUID reads the audit loginuid set by the login process. The value
// persists across setuid/su, which is what distinguishes a privilege-switch
// session from a fresh login.
func readLoginUID() (uint32, bool) {
	b, err := os.ReadFile(loginUIDPath)
	if err != nil {
		return 0, false
	}
	return parseLoginUID(b)
}
