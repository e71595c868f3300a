package config

import (
	"os"

	"github.com/pkg/errors"
	yaml "gopkg.in/yaml.v2"
)

// Config captures the runtime knobs for a training run.
type Config struct {
	TrainRoots []string `yaml:"train_roots"`
	Steps      int      `yaml:"steps"`
	BatchSize  int      `yaml:"batch_size"`
	NumWorkers int      `yaml:"num_workers"`
	Seed       int64    `yaml:"seed"`
	LogEvery   int      `yaml:"log_every"`
	EvalEvery  int      `yaml:"eval_every"`

	InputDim     int     `yaml:"input_dim"`
	HiddenDim    int     `yaml:"hidden_dim"`
	OutputDim    int     `yaml:"output_dim"`
	LearningRate float64 `yaml:"learning_rate"`

	// DropoutIncludeProb is the probability a unit is kept during the
	// dropout forward pass; zero disables dropout entirely.
	DropoutIncludeProb float64 `yaml:"dropout_include_prob"`
}

// Overrides captures CLI supplied values.
type Overrides struct {
	TrainRoots   []string
	Steps        int
	BatchSize    int
	NumWorkers   int
	Seed         int64
	LogEvery     int
	EvalEvery    int
	LearningRate float64
}

// Load reads and validates a Config from YAML.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "open config")
	}

	cfg := &Config{}
	if err := yaml.UnmarshalStrict(raw, cfg); err != nil {
		return nil, errors.Wrap(err, "parse config")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyOverrides updates cfg using any non-zero override.
func (c *Config) ApplyOverrides(o Overrides) {
	if len(o.TrainRoots) > 0 {
		c.TrainRoots = o.TrainRoots
	}
	if o.Steps > 0 {
		c.Steps = o.Steps
	}
	if o.BatchSize > 0 {
		c.BatchSize = o.BatchSize
	}
	if o.NumWorkers > 0 {
		c.NumWorkers = o.NumWorkers
	}
	if o.Seed != 0 {
		c.Seed = o.Seed
	}
	if o.LogEvery > 0 {
		c.LogEvery = o.LogEvery
	}
	if o.EvalEvery > 0 {
		c.EvalEvery = o.EvalEvery
	}
	if o.LearningRate > 0 {
		c.LearningRate = o.LearningRate
	}
}

// Validate verifies the config is runnable.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if len(c.TrainRoots) == 0 {
		return errors.New("at least one training root must be set")
	}
	for _, root := range c.TrainRoots {
		if root == "" {
			return errors.New("training roots must be non-empty paths")
		}
	}
	if c.Steps <= 0 {
		return errors.Errorf("steps must be > 0 (got %d)", c.Steps)
	}
	if c.BatchSize <= 0 {
		return errors.Errorf("batch_size must be > 0 (got %d)", c.BatchSize)
	}
	if c.NumWorkers <= 0 {
		return errors.Errorf("num_workers must be > 0 (got %d)", c.NumWorkers)
	}
	if c.InputDim <= 0 {
		return errors.Errorf("input_dim must be > 0 (got %d)", c.InputDim)
	}
	if c.HiddenDim <= 0 {
		return errors.Errorf("hidden_dim must be > 0 (got %d)", c.HiddenDim)
	}
	if c.OutputDim <= 0 {
		return errors.Errorf("output_dim must be > 0 (got %d)", c.OutputDim)
	}
	if c.LearningRate <= 0 {
		return errors.Errorf("learning_rate must be > 0 (got %g)", c.LearningRate)
	}
	if c.DropoutIncludeProb < 0 || c.DropoutIncludeProb >= 1 {
		return errors.Errorf("dropout_include_prob must be in [0, 1) (got %g)", c.DropoutIncludeProb)
	}
	if c.LogEvery <= 0 {
		c.LogEvery = 50
	}
	if c.EvalEvery <= 0 {
		c.EvalEvery = 200
	}
	return nil
}
