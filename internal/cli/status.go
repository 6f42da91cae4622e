package cli

import (
	"github.com/spf13/cobra"

	"github.com/mfagate/mfagate/internal/policy"
	"github.com/mfagate/mfagate/internal/sessionctx"
)

// statusReport is the dry-run output: what check would decide, and why.
type statusReport struct {
	Session    sessionctx.Context `json:"session"`
	Result     policy.Result      `json:"result"`
	MarkerPath string             `json:"marker_path"`
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the decision the gate would make for this session, without enforcing it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			classifier, err := policy.NewClassifier(cfg.Policy)
			if err != nil {
				return err
			}

			sctx := sessionctx.Capture()
			return printJSON(cmd, statusReport{
				Session:    sctx,
				Result:     classifier.Classify(sctx),
				MarkerPath: classifier.MarkerPath(sctx.Username),
			})
		},
	}
}
