package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"gradforge/internal/config"
	"gradforge/internal/dataset"
	"gradforge/internal/model"
	"gradforge/internal/trainer"
)

var (
	cfgPath    string
	trainRoots []string
	steps      int
	batchSize  int
	numWorkers int
	seed       int64
	logEvery   int
	evalEvery  int
	lr         float64
)

var rootCmd = &cobra.Command{
	Use:   "gradforge",
	Short: "train a masked-target regression model on sharded vector data",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return run()
	},
}

func init() {
	rootCmd.Flags().StringVarP(&cfgPath, "config", "c", "configs/demo.yaml", "path to YAML config")
	rootCmd.Flags().StringSliceVar(&trainRoots, "train-root", nil, "override training roots")
	rootCmd.Flags().IntVar(&steps, "steps", 0, "number of training steps")
	rootCmd.Flags().IntVar(&batchSize, "batch-size", 0, "batch size")
	rootCmd.Flags().IntVar(&numWorkers, "num-workers", 0, "number of data loader workers")
	rootCmd.Flags().Int64Var(&seed, "seed", 0, "PRNG seed")
	rootCmd.Flags().IntVar(&logEvery, "log-every", 0, "log every N steps")
	rootCmd.Flags().IntVar(&evalEvery, "eval-every", 0, "evaluate every N steps")
	rootCmd.Flags().Float64Var(&lr, "learning-rate", 0, "SGD learning rate")
}

func run() error {
	logger, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer logger.Sync()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	cfg.ApplyOverrides(config.Overrides{
		TrainRoots:   trainRoots,
		Steps:        steps,
		BatchSize:    batchSize,
		NumWorkers:   numWorkers,
		Seed:         seed,
		LogEvery:     logEvery,
		EvalEvery:    evalEvery,
		LearningRate: lr,
	})

	if err := cfg.Validate(); err != nil {
		return err
	}

	roots, err := dataset.DiscoverByRoot(cfg.TrainRoots)
	if err != nil {
		return err
	}
	for root, shards := range roots {
		if len(shards) == 0 {
			logger.Fatal("no shards discovered", zap.String("root", root))
		}
		logger.Info("discovered shards", zap.String("root", root), zap.Int("count", len(shards)))
	}

	var dropout *model.DropoutConfig
	if cfg.DropoutIncludeProb > 0 {
		dropout = &model.DropoutConfig{DefaultIncludeProb: cfg.DropoutIncludeProb}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runCfg := trainer.RunConfig{
		Roots:        roots,
		Steps:        cfg.Steps,
		BatchSize:    cfg.BatchSize,
		NumWorkers:   cfg.NumWorkers,
		LogEvery:     cfg.LogEvery,
		EvalEvery:    cfg.EvalEvery,
		Seed:         cfg.Seed,
		InputDim:     cfg.InputDim,
		HiddenDim:    cfg.HiddenDim,
		OutputDim:    cfg.OutputDim,
		LearningRate: cfg.LearningRate,
		Dropout:      dropout,
		Logger:       logger,
	}

	return trainer.Run(ctx, runCfg)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
