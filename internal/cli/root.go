// Package cli implements the querybroker command tree.
package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/malbeclabs/querybroker/config"
	"github.com/malbeclabs/querybroker/pkg/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type ExitCode int

const (
	exitCodeSuccess = 0
	exitCodeError   = 1
)

type BuildInfo struct {
	Version string
	Commit  string
	Date    string
}

func (b BuildInfo) String() string {
	return fmt.Sprintf("version: %s, commit: %s, date: %s", b.Version, b.Commit, b.Date)
}

// globalFlags are the persistent flags shared by every subcommand.
type globalFlags struct {
	verbose     bool
	envFile     string
	targetsFile string
}

func (g *globalFlags) register(fs *pflag.FlagSet) {
	fs.BoolVarP(&g.verbose, "verbose", "v", false, "set debug logging level")
	fs.StringVar(&g.envFile, "env-file", "", "env file to load before reading the environment (default .env if present)")
	fs.StringVar(&g.targetsFile, "targets-file", "", "YAML file listing the query targets (overrides "+config.VarTargetsFile+")")
}

func (g *globalFlags) load() (*config.Config, *slog.Logger, error) {
	log := logger.New(g.verbose)
	cfg, err := config.Load(config.LoadOptions{EnvFile: g.envFile, TargetsFile: g.targetsFile})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, log, nil
}

func Run(info BuildInfo) ExitCode {
	if err := NewRootCmd(info).ExecuteContext(context.Background()); err != nil {
		return exitCodeError
	}
	return exitCodeSuccess
}

func NewRootCmd(info BuildInfo) *cobra.Command {
	var flags globalFlags

	rootCmd := &cobra.Command{
		Use:           "querybroker",
		Short:         "Answer natural-language questions with read-only queries across household data stores.",
		Version:       info.String(),
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cmd.Help(); err != nil {
				return fmt.Errorf("failed to show help: %w", err)
			}
			return nil
		},
	}
	rootCmd.SetVersionTemplate("{{.Version}}\n")
	flags.register(rootCmd.PersistentFlags())

	rootCmd.AddCommand(
		newServeCmd(&flags, info),
		newAskCmd(&flags),
		newTargetsCmd(&flags),
	)
	return rootCmd
}
