package main

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/stitts-dev/fpl-squad-optimizer/internal/optimizer"
	"github.com/stitts-dev/fpl-squad-optimizer/internal/services"
)

func newOptimizeCmd(opts *globalOptions) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "optimize",
		Short: "Select the best squad with the exact optimizer",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rc, err := opts.load()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			res, err := rc.service.Optimize(ctx, rc.pool, rc.run)
			if err != nil {
				return fmt.Errorf("optimization failed: %w", err)
			}
			return opts.writeJSON(cmd, res)
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", time.Minute, "Abort the solver after this long")
	return cmd
}

func newSampleCmd(opts *globalOptions) *cobra.Command {
	var draws, topPerGroup int
	cmd := &cobra.Command{
		Use:   "sample",
		Short: "Sample squads group by group and combine the best draws",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rc, err := opts.load()
			if err != nil {
				return err
			}
			if draws > 0 {
				rc.run.DrawsPerGroup = draws
			}
			if topPerGroup > 0 {
				rc.run.TopPerGroup = topPerGroup
			}
			if opts.topN > 0 {
				rc.run.TopN = opts.topN
			}

			progress := func(e optimizer.ProgressEvent) {
				rc.log.WithFields(logrus.Fields{
					"group":      e.Group,
					"index":      e.Index + 1,
					"groups":     e.Groups,
					"successful": e.Successful,
				}).Info("Group sampled")
			}
			res, err := rc.service.Sample(cmd.Context(), rc.pool, rc.run, rc.seed, progress)
			if err != nil {
				return fmt.Errorf("sampling failed: %w", err)
			}
			return opts.writeJSON(cmd, map[string]interface{}{
				"seed":   rc.seed,
				"result": res,
			})
		},
	}
	cmd.Flags().IntVar(&draws, "draws", 0, "Draws per pick group; 0 uses the config")
	cmd.Flags().IntVar(&topPerGroup, "top-per-group", 0, "Draws per group kept for combination; 0 uses the config")
	return cmd
}

func newSwapsCmd(opts *globalOptions) *cobra.Command {
	var q services.SwapQuery
	var limit int
	cmd := &cobra.Command{
		Use:   "swaps",
		Short: "Rank every single-player transfer of a squad",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rc, err := opts.load()
			if err != nil {
				return err
			}
			q.TopN = opts.topN

			candidates, err := rc.service.Swaps(rc.pool, rc.run, q)
			if err != nil {
				return err
			}
			if limit > 0 && len(candidates) > limit {
				candidates = candidates[:limit]
			}
			return opts.writeJSON(cmd, candidates)
		},
	}
	cmd.Flags().IntSliceVar(&q.Squad, "squad", nil, "Comma-separated player ids of the current squad (required)")
	cmd.Flags().IntVar(&q.Bank, "bank", 0, "Money in the bank")
	cmd.Flags().StringSliceVar(&q.RankKeys, "rank-keys", nil, "Evaluation keys to rank by, highest first")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum candidates to print; 0 prints all")
	if err := cmd.MarkFlagRequired("squad"); err != nil {
		panic(fmt.Sprintf("failed to mark squad flag as required: %v", err))
	}
	return cmd
}

func newReoptimizeCmd(opts *globalOptions) *cobra.Command {
	var q services.ReoptimizeQuery
	var perTransfer float64
	cmd := &cobra.Command{
		Use:   "reoptimize",
		Short: "Re-solve the squad keeping all but --transfers players",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rc, err := opts.load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("points-per-transfer") {
				q.PointsPerTransfer = &perTransfer
			}

			plan, err := rc.service.Reoptimize(cmd.Context(), rc.pool, rc.run, q)
			if err != nil {
				return fmt.Errorf("re-optimization failed: %w", err)
			}
			return opts.writeJSON(cmd, plan)
		},
	}
	cmd.Flags().IntSliceVar(&q.Squad, "squad", nil, "Comma-separated player ids of the current squad (required)")
	cmd.Flags().IntVar(&q.Transfers, "transfers", 1, "Number of players to replace")
	cmd.Flags().IntVar(&q.FreeTransfers, "free-transfers", 1, "Transfers without a points hit")
	cmd.Flags().Float64Var(&perTransfer, "points-per-transfer", 4, "Points hit per extra transfer")
	if err := cmd.MarkFlagRequired("squad"); err != nil {
		panic(fmt.Sprintf("failed to mark squad flag as required: %v", err))
	}
	return cmd
}

func newScoreCmd(opts *globalOptions) *cobra.Command {
	var sorted bool
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Print the normalized weight of every pool player",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rc, err := opts.load()
			if err != nil {
				return err
			}
			rows, err := rc.service.Score(rc.pool, rc.run.Weights)
			if err != nil {
				return err
			}
			if sorted {
				sort.SliceStable(rows, func(i, j int) bool { return rows[i].Weight > rows[j].Weight })
			}
			if opts.topN > 0 && len(rows) > opts.topN {
				rows = rows[:opts.topN]
			}
			return opts.writeJSON(cmd, rows)
		},
	}
	cmd.Flags().BoolVar(&sorted, "sorted", false, "Order by weight instead of pool order")
	return cmd
}
