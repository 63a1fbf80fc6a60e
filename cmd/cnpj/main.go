// Command cnpj loads the Receita Federal CNPJ bulk files into Postgres,
// repairing and quarantining rows on the way, then applies keys, indexes and
// foreign keys once the data is in place.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/danalec/CNPJ-Receita-Federal/internal/config"
	"github.com/danalec/CNPJ-Receita-Federal/internal/lock"
)

type rootFlags struct {
	configFile string
	envFile    string
	verbose    bool
	force      bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		if errors.Is(err, lock.ErrLocked) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	var flags rootFlags

	root := &cobra.Command{
		Use:           "cnpj",
		Short:         "Load and constrain the Receita Federal CNPJ dataset",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&flags.configFile, "config", "", "YAML or JSON config file")
	pf.StringVar(&flags.envFile, "env-file", ".env", "dotenv file loaded before the environment is read")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "debug logging")
	pf.BoolVar(&flags.force, "force", false, "rerun stages the run ledger reports as completed")

	root.AddCommand(
		newLoadCmd(&flags),
		newConstraintsCmd(&flags),
		newRunCmd(&flags),
		newCheckConfigCmd(&flags, stdout),
		newFetchCmd(&flags, stdout),
	)
	return root
}

func newLoadCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "load",
		Short: "Recreate the schema and load every table",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), flags, func(ctx context.Context, a *app) error {
				_, err := a.trackedLoad(ctx)
				return err
			})
		},
	}
}

func newConstraintsCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "constraints",
		Short: "Run backfill, keys, orphan cleanup, indexes and foreign keys",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), flags, func(ctx context.Context, a *app) error {
				_, err := a.trackedConstraints(ctx)
				return err
			})
		},
	}
}

func newRunCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Load, then apply constraints unless load.skip_constraints is set",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), flags, func(ctx context.Context, a *app) error {
				return a.run(ctx, flags.force)
			})
		},
	}
}

func newFetchCmd(flags *rootFlags, stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "fetch",
		Short: "Download and extract the latest release into source.dir",
		RunE: func(cmd *cobra.Command, _ []string) error {
			log, err := newLogger(flags.verbose)
			if err != nil {
				return fmt.Errorf("logger: %w", err)
			}
			defer func() { _ = log.Sync() }()

			cfg, issues, err := resolveConfig(flags)
			if err != nil {
				return err
			}
			issues = config.WithoutDatabase(issues)
			logWarnings(log, issues)
			if err := config.Check(issues); err != nil {
				return err
			}
			release, fetched, err := fetch(cmd.Context(), cfg, log, flags.force)
			if err != nil {
				return err
			}
			if fetched {
				fmt.Fprintf(stdout, "release %s extracted into %s\n", release, cfg.Source.Dir)
			} else {
				fmt.Fprintf(stdout, "release %s already fetched\n", release)
			}
			return nil
		},
	}
}

func newCheckConfigCmd(flags *rootFlags, stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Validate the resolved configuration and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, issues, err := resolveConfig(flags)
			if err != nil {
				return err
			}
			for _, iss := range issues {
				fmt.Fprintf(stdout, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
			}
			if err := config.Check(issues); err != nil {
				return err
			}
			fmt.Fprintf(stdout, "configuration is valid (schema=%s profile=%s)\n", cfg.Database.Schema, cfg.Repair.Profile)
			return nil
		},
	}
}

// resolveConfig loads the configuration and lints it.
func resolveConfig(flags *rootFlags) (config.Config, []config.Issue, error) {
	cfg, err := config.Load(config.LoadOptions{File: flags.configFile, EnvFile: flags.envFile})
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, config.Validate(cfg), nil
}

func newLogger(verbose bool) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if verbose {
		zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	zc.EncoderConfig.TimeKey = "ts"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return zc.Build()
}

func logWarnings(log *zap.Logger, issues []config.Issue) {
	for _, iss := range issues {
		if iss.Severity == config.SeverityWarning {
			log.Warn("configuration warning", zap.String("path", iss.Path), zap.String("message", iss.Message))
		}
	}
}

// withApp resolves and validates the configuration, opens the app and hands
// it to fn. Warnings are logged; errors abort before anything is opened.
func withApp(ctx context.Context, flags *rootFlags, fn func(context.Context, *app) error) error {
	log, err := newLogger(flags.verbose)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	cfg, issues, err := resolveConfig(flags)
	if err != nil {
		return err
	}
	logWarnings(log, issues)
	if err := config.Check(issues); err != nil {
		return err
	}

	a, err := openApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}
