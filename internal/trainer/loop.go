package trainer

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"gradforge/internal/cost"
	"gradforge/internal/dataset"
	"gradforge/internal/metrics"
	"gradforge/internal/model"
)

// RunConfig captures the knobs required by the training loop.
type RunConfig struct {
	Roots      map[string][]string
	Steps      int
	BatchSize  int
	NumWorkers int
	LogEvery   int
	EvalEvery  int
	Seed       int64

	InputDim     int
	HiddenDim    int
	OutputDim    int
	LearningRate float64

	// Dropout, when non-nil, makes every training step stochastic.
	// Evaluation always runs the deterministic forward pass.
	Dropout *model.DropoutConfig

	Logger *zap.Logger
}

// Run executes the training workload.
func Run(ctx context.Context, cfg RunConfig) error {
	if cfg.Steps <= 0 {
		return errors.New("trainer: steps must be > 0")
	}
	if cfg.BatchSize <= 0 {
		return errors.New("trainer: batch size must be > 0")
	}
	if cfg.LogEvery <= 0 {
		cfg.LogEvery = 50
	}
	if cfg.EvalEvery <= 0 {
		cfg.EvalEvery = 200
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	samplerCh, samplerErr, err := dataset.StartSampler(ctx, dataset.SamplerOptions{
		Roots:      cfg.Roots,
		Seed:       cfg.Seed,
		NumWorkers: cfg.NumWorkers,
	})
	if err != nil {
		return err
	}

	mdl := model.NewSimpleMLP(cfg.InputDim, cfg.HiddenDim, cfg.OutputDim, cfg.LearningRate, cfg.Seed)
	evalCost := cost.NewMissingTarget(nil)
	var window metrics.Window
	var evalBatch model.Batch

	for step := 1; step <= cfg.Steps; step++ {
		startData := time.Now()
		batch, err := nextBatch(ctx, samplerCh, samplerErr, cfg)
		if err != nil {
			return err
		}
		dataTime := time.Since(startData)

		if evalBatch.Inputs == nil {
			evalBatch = batch
		}

		startCompute := time.Now()
		loss, err := mdl.TrainStep(batch, cfg.Dropout)
		if err != nil {
			return errors.Wrapf(err, "trainer: step %d", step)
		}
		computeTime := time.Since(startCompute)

		window.Record(cfg.BatchSize, dataTime, computeTime, loss)

		if step%cfg.LogEvery == 0 {
			snap := window.Snapshot()
			logger.Info("train window",
				zap.Int("step", step),
				zap.Float64("examples_per_sec", snap.ExamplesPerSec),
				zap.Float64("data_ms", snap.AvgDataMS),
				zap.Float64("compute_ms", snap.AvgComputeMS),
				zap.Float64("loss", snap.LastLoss),
			)
		}

		if step%cfg.EvalEvery == 0 {
			evalLoss, err := evalCost.Loss(mdl, evalBatch)
			if err != nil {
				return errors.Wrapf(err, "trainer: eval at step %d", step)
			}
			logger.Info("eval",
				zap.Int("step", step),
				zap.Float64("masked_loss", evalLoss),
			)
		}
	}

	return nil
}

// nextBatch assembles a model batch from the sample stream. Samples whose
// feature or target width does not match the configured dimensions are
// skipped.
func nextBatch(ctx context.Context, samples <-chan dataset.Sample, errs <-chan error, cfg RunConfig) (model.Batch, error) {
	inputs := make([]float64, 0, cfg.BatchSize*cfg.InputDim)
	targets := make([]float64, 0, cfg.BatchSize*cfg.OutputDim)
	collected := 0
	for collected < cfg.BatchSize {
		select {
		case <-ctx.Done():
			return model.Batch{}, ctx.Err()
		case err, ok := <-errs:
			if ok && err != nil {
				return model.Batch{}, err
			}
		case sample, ok := <-samples:
			if !ok {
				return model.Batch{}, errors.New("trainer: sampler closed")
			}
			if len(sample.Features) != cfg.InputDim || len(sample.Targets) != cfg.OutputDim {
				continue
			}
			inputs = append(inputs, sample.Features...)
			targets = append(targets, sample.Targets...)
			collected++
		}
	}
	return model.Batch{
		Inputs:  mat.NewDense(cfg.BatchSize, cfg.InputDim, inputs),
		Targets: mat.NewDense(cfg.BatchSize, cfg.OutputDim, targets),
	}, nil
}
