package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/ajitpratap0/stratopt/internal/config"
)

// globalOptions are shared by every subcommand
type globalOptions struct {
	configPath       string
	logLevel         string
	skipConnectivity bool
	format           string
	output           string
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:           "stratopt",
		Short:         "Strategy parameter optimizer",
		Long:          "Searches trading strategy parameters with grid, genetic or bayesian search and scores each candidate with a historical simulation.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "Config file (default ./configs/stratopt.yaml)")
	flags.StringVar(&opts.logLevel, "log-level", "", "Override app.log_level")
	flags.BoolVar(&opts.skipConnectivity, "skip-connectivity", false, "Skip database/Redis connectivity checks at startup")
	flags.StringVarP(&opts.format, "format", "f", formatJSON, "Output format (json, yaml)")
	flags.StringVarP(&opts.output, "output", "o", "", "Write results to file instead of stdout")

	root.AddCommand(newRunCmd(opts))
	root.AddCommand(newCompareCmd(opts))
	root.AddCommand(newBacktestCmd(opts))

	return root
}

// loadConfig reads, overrides and validates one configuration file, then
// initializes the global logger from it
func (o *globalOptions) loadConfig(ctx context.Context, path string, override func(*config.Config)) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if o.logLevel != "" {
		cfg.App.LogLevel = o.logLevel
	}
	if override != nil {
		override(cfg)
	}

	config.InitLogger(cfg.App.LogLevel, cfg.App.LogFormat)

	options := config.DefaultValidatorOptions()
	options.VerifyConnectivity = !o.skipConnectivity
	if err := config.NewValidator(cfg, options).ValidateStartup(ctx); err != nil {
		return nil, err
	}
	return cfg, nil
}
