package cli

import (
	"errors"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/mfagate/mfagate/internal/audit"
	"github.com/mfagate/mfagate/internal/config"
	"github.com/mfagate/mfagate/internal/enforce"
	"github.com/mfagate/mfagate/internal/enroll"
	"github.com/mfagate/mfagate/internal/policy"
	"github.com/mfagate/mfagate/internal/sessionctx"
	"github.com/mfagate/mfagate/internal/store/jsonl"
	"github.com/mfagate/mfagate/internal/store/sqlite"
)

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Classify and enforce MFA enrollment for the current session (hook entrypoint)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runCheck(cmd, cfg)
		},
	}
}

func runCheck(cmd *cobra.Command, cfg *config.Config) error {
	logger := newLogger(cfg)

	emitter, err := buildEmitter(cfg, logger)
	if err != nil {
		// Auditing must never block a login; fall back to log-only.
		logger.Warn("audit sink setup failed; continuing log-only", "error", err)
		emitter = audit.NewEmitter(logger)
	}
	defer func() { _ = emitter.Close() }()

	classifier, err := policy.NewClassifier(cfg.Policy)
	if err != nil {
		return err
	}

	sctx := sessionctx.Capture()
	res := classifier.Classify(sctx)

	term := enforce.NewSessionTerminator()
	driver := enroll.NewDriver(cfg.Enroll, emitter, term)
	enforcer := enforce.New(emitter, term, driver, cfg.Enroll.Command, logger)

	if err := enforcer.Apply(cmd.Context(), sctx, res); err != nil {
		if errors.Is(err, enforce.ErrSessionDenied) {
			return NewExitError(1, "")
		}
		return err
	}
	return nil
}

func buildEmitter(cfg *config.Config, logger *slog.Logger) (*audit.Emitter, error) {
	var sinks []audit.Sink
	if cfg.Audit.Output != "" {
		s, err := jsonl.New(cfg.Audit.Output, cfg.Audit.Rotation.MaxSizeMB, cfg.Audit.Rotation.MaxBackups)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s)
	}
	if cfg.Audit.Storage.SQLitePath != "" {
		s, err := sqlite.Open(cfg.Audit.Storage.SQLitePath)
		if err != nil {
			for _, open := range sinks {
				_ = open.Close()
			}
			return nil, err
		}
		sinks = append(sinks, s)
	}
	return audit.NewEmitter(logger, sinks...), nil
}
