package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/ajitpratap0/stratopt/internal/config"
	"github.com/ajitpratap0/stratopt/internal/metrics"
	"github.com/ajitpratap0/stratopt/pkg/optimize"
)

func newCompareCmd(global *globalOptions) *cobra.Command {
	var methods []string

	cmd := &cobra.Command{
		Use:   "compare [config...]",
		Short: "Run several searches concurrently and rank them by best score",
		Long: `Without arguments every --methods entry searches the --config target.
With config file arguments each file is one search.`,
		Example: `  stratopt compare --methods grid,genetic,bayesian
  stratopt compare configs/ma_cross.yaml configs/rsi.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			observer := metrics.NewOptimizerMetrics()

			var (
				jobs   []optimize.Job
				stacks []*dataStack
				first  *config.Config
			)
			defer func() {
				for _, stack := range stacks {
					stack.Close()
				}
			}()

			addJob := func(name string, cfg *config.Config, stack *dataStack) error {
				objective, err := stack.objective(cfg)
				if err != nil {
					return fmt.Errorf("%s: %w", name, err)
				}
				search, err := cfg.OptimizerConfig()
				if err != nil {
					return fmt.Errorf("%s: %w", name, err)
				}
				jobs = append(jobs, optimize.Job{Name: name, Objective: objective, Config: search})
				return nil
			}

			if len(args) == 0 {
				cfg, err := global.loadConfig(ctx, global.configPath, nil)
				if err != nil {
					return err
				}
				first = cfg

				// One data stack serves every method
				stack, err := openDataStack(ctx, cfg, observer)
				if err != nil {
					return err
				}
				stacks = append(stacks, stack)

				for _, raw := range methods {
					method, err := optimize.ParseMethod(raw)
					if err != nil {
						return err
					}
					variant := *cfg
					variant.Optimization.Method = string(method)
					if err := variant.Validate(); err != nil {
						return fmt.Errorf("%s: %w", method, err)
					}
					if err := addJob(string(method), &variant, stack); err != nil {
						return err
					}
				}
			} else {
				for _, path := range args {
					cfg, err := global.loadConfig(ctx, path, nil)
					if err != nil {
						return fmt.Errorf("%s: %w", path, err)
					}
					if first == nil {
						first = cfg
					}

					stack, err := openDataStack(ctx, cfg, observer)
					if err != nil {
						return fmt.Errorf("%s: %w", path, err)
					}
					stacks = append(stacks, stack)

					name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
					if err := addJob(name, cfg, stack); err != nil {
						return err
					}
				}
			}
			if len(jobs) == 0 {
				return fmt.Errorf("nothing to compare")
			}

			stopMetrics := startMetrics(first, stacks...)
			defer stopMetrics()

			comparisons, err := optimize.NewOptimizer(observer).Compare(ctx, jobs)
			if err != nil {
				return err
			}

			for _, c := range comparisons {
				log.Info().
					Int("rank", c.Rank).
					Str("name", c.Name).
					Float64("best_score", c.Result.BestScore).
					Str("best_params", c.Result.BestParams.String()).
					Msg("Comparison result")
			}

			return writeResult(global.output, global.format, comparisons)
		},
	}

	cmd.Flags().StringSliceVar(&methods, "methods",
		[]string{string(optimize.MethodGrid), string(optimize.MethodGenetic), string(optimize.MethodSurrogate)},
		"Methods to compare when no config files are given")

	return cmd
}
