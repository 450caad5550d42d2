package main

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/ajitpratap0/stratopt/internal/config"
	"github.com/ajitpratap0/stratopt/internal/metrics"
	"github.com/ajitpratap0/stratopt/pkg/optimize"
)

type runOptions struct {
	method  string
	workers int
	seed    int64
}

func newRunCmd(global *globalOptions) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one parameter search",
		Example: `  stratopt run --config configs/stratopt.yaml
  stratopt run --method genetic --seed 42 --format yaml -o result.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			cfg, err := global.loadConfig(ctx, global.configPath, opts.apply(cmd))
			if err != nil {
				return err
			}

			observer := metrics.NewOptimizerMetrics()
			stack, err := openDataStack(ctx, cfg, observer)
			if err != nil {
				return err
			}
			defer stack.Close()

			stopMetrics := startMetrics(cfg, stack)
			defer stopMetrics()

			objective, err := stack.objective(cfg)
			if err != nil {
				return err
			}
			search, err := cfg.OptimizerConfig()
			if err != nil {
				return err
			}

			result, err := optimize.NewOptimizer(observer).Run(ctx, objective, search)
			if err != nil {
				return err
			}

			log.Info().
				Str("run_id", result.RunID).
				Str("method", string(result.Method)).
				Float64("best_score", result.BestScore).
				Str("best_params", result.BestParams.String()).
				Int("failed", result.FailedEvaluations).
				Msg("Search completed")

			return writeResult(global.output, global.format, result)
		},
	}

	cmd.Flags().StringVarP(&opts.method, "method", "m", "", "Override optimization.method (grid, genetic, bayesian)")
	cmd.Flags().IntVarP(&opts.workers, "workers", "w", 0, "Override optimization.workers")
	cmd.Flags().Int64Var(&opts.seed, "seed", 0, "Override optimization.seed")

	return cmd
}

// apply returns the overrides for flags the user actually set
func (o *runOptions) apply(cmd *cobra.Command) func(*config.Config) {
	return func(cfg *config.Config) {
		if cmd.Flags().Changed("method") {
			cfg.Optimization.Method = o.method
		}
		if cmd.Flags().Changed("workers") {
			cfg.Optimization.Workers = o.workers
		}
		if cmd.Flags().Changed("seed") {
			cfg.Optimization.Seed = o.seed
		}
	}
}
