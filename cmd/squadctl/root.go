package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/stitts-dev/fpl-squad-optimizer/internal/config"
	"github.com/stitts-dev/fpl-squad-optimizer/internal/models"
	"github.com/stitts-dev/fpl-squad-optimizer/internal/services"
	"github.com/stitts-dev/fpl-squad-optimizer/pkg/logger"
)

// globalOptions are the flags shared by every command
type globalOptions struct {
	poolPath   string
	configPath string
	seed       int64
	topN       int
	outPath    string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:           "squadctl",
		Short:         "FPL squad optimizer",
		Long:          "squadctl selects, samples and transfers FPL squads from a JSON player pool ({\"players\": [...], \"teams\": [...]}).",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&opts.poolPath, "pool", "p", "", "Path to the player pool JSON file (required)")
	flags.StringVarP(&opts.configPath, "config", "c", "", "Path to a run config JSON file; FPL defaults when empty")
	flags.Int64Var(&opts.seed, "seed", 0, "Random seed for sampling; 0 seeds from the clock")
	flags.IntVarP(&opts.topN, "top-n", "n", 0, "Number of results to keep; 0 uses the run config")
	flags.StringVarP(&opts.outPath, "out", "o", "", "Write the JSON result to this file instead of stdout")
	flags.StringVar(&opts.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	if err := root.MarkPersistentFlagRequired("pool"); err != nil {
		panic(fmt.Sprintf("failed to mark pool flag as required: %v", err))
	}

	root.AddCommand(
		newOptimizeCmd(opts),
		newSampleCmd(opts),
		newSwapsCmd(opts),
		newReoptimizeCmd(opts),
		newScoreCmd(opts),
	)
	return root
}

// runContext is everything a command needs after flag parsing
type runContext struct {
	pool    models.Pool
	run     config.RunConfig
	service *services.SquadService
	seed    int64
	log     *logrus.Logger
}

func (o *globalOptions) load() (*runContext, error) {
	log := logger.InitLogger(o.logLevel, false)

	data, err := os.ReadFile(o.poolPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read pool file %s: %w", o.poolPath, err)
	}
	var pool models.Pool
	if err := json.Unmarshal(data, &pool); err != nil {
		return nil, fmt.Errorf("failed to unmarshal pool JSON: %w", err)
	}

	rc, err := config.LoadRunConfig(o.configPath)
	if err != nil {
		return nil, err
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"players": len(pool.Players),
		"teams":   len(pool.Teams),
		"config":  o.configPath,
	}).Debug("Inputs loaded")

	return &runContext{
		pool:    pool,
		run:     rc,
		service: services.NewSquadService(services.OptionsFromConfig(cfg), log),
		seed:    o.seedOr(cfg.Seed()),
		log:     log,
	}, nil
}

func (o *globalOptions) seedOr(cfg int64) int64 {
	if o.seed != 0 {
		return o.seed
	}
	return cfg
}

// writeJSON prints v indented to --out or the command output
func (o *globalOptions) writeJSON(cmd *cobra.Command, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	data = append(data, '\n')

	var w io.Writer = cmd.OutOrStdout()
	if o.outPath != "" {
		f, err := os.Create(o.outPath)
		if err != nil {
			return fmt.Errorf("failed to create output file %s: %w", o.outPath, err)
		}
		defer f.Close()
		w = f
	}
	_, err = w.Write(data)
	return err
}
