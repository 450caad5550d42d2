package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/ajitpratap0/stratopt/pkg/backtest"
)

func newBacktestCmd(global *globalOptions) *cobra.Command {
	var rawParams []string

	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Simulate one parameter set and print a performance report",
		Example: `  stratopt backtest --param short_period=10 --param long_period=40
  stratopt backtest -c configs/rsi.yaml --param rsi_period=14 -o report.txt`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			params, err := parseParams(rawParams)
			if err != nil {
				return err
			}

			cfg, err := global.loadConfig(ctx, global.configPath, nil)
			if err != nil {
				return err
			}

			stack, err := openDataStack(ctx, cfg, nil)
			if err != nil {
				return err
			}
			defer stack.Close()

			objectiveConfig, err := cfg.ObjectiveConfig()
			if err != nil {
				return err
			}

			log.Info().
				Str("strategy", string(objectiveConfig.Family)).
				Str("symbol", objectiveConfig.Query.Symbol).
				Str("params", params.Merge(objectiveConfig.Fixed).String()).
				Msg("Starting backtest")

			result, err := backtest.RunBacktest(ctx, stack.provider, objectiveConfig, params)
			if err != nil {
				return err
			}

			score, err := backtest.MetricValue(result.Metrics, objectiveConfig.Metric)
			if err != nil {
				return err
			}
			log.Info().
				Str("metric", string(objectiveConfig.Metric)).
				Float64("score", score).
				Int("trades", result.Metrics.TotalTrades).
				Msg("Backtest completed")

			report := backtest.GenerateReport(result.Metrics)
			fmt.Println(report)

			if global.output != "" {
				if err := os.WriteFile(global.output, []byte(report), 0o600); err != nil {
					log.Warn().Err(err).Str("file", global.output).Msg("Failed to write output file")
				} else {
					log.Info().Str("file", global.output).Msg("Report written to file")
				}
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&rawParams, "param", "p", nil, "Strategy parameter as name=value (repeatable); overrides target.fixed")

	return cmd
}

// parseParams turns name=value pairs into a parameter set. Values parse as
// integer, then float, then stay strings.
func parseParams(raw []string) (backtest.ParameterSet, error) {
	params := make(backtest.ParameterSet, len(raw))
	for _, pair := range raw {
		name, value, ok := strings.Cut(pair, "=")
		name = strings.ToLower(strings.TrimSpace(name))
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid parameter %q (want name=value)", pair)
		}
		params[name] = parseValue(strings.TrimSpace(value))
	}
	return params, nil
}

func parseValue(value string) interface{} {
	if i, err := strconv.Atoi(value); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}
	return value
}
