package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/mfagate/mfagate/internal/cli"
)

// Set at release build time via -ldflags.
var (
	version = "dev"
	commit  = ""
)

func buildVersion() string {
	if commit == "" {
		return version
	}
	return fmt.Sprintf("%s (%s)", version, commit)
}

func main() {
	err := cli.NewRoot(buildVersion()).ExecuteContext(context.Background())
	if err == nil {
		return
	}

	var ee *cli.ExitError
	if errors.As(err, &ee) {
		if msg := ee.Message(); msg != "" {
			fmt.Fprintln(os.Stderr, msg)
		}
		os.Exit(ee.Code())
	}
	fmt.Fprintln(os.Stderr, "mfagate:", err)
	os.Exit(1)
}
