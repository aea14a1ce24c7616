// Package config defines the settings of training and
// evaluation runs.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/anyvec/anyvec32"
	"github.com/unixpickle/anyvec/anyvec64"
	"github.com/unixpickle/essentials"
	"github.com/wty-yy/gridrl/ckpt"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("invalid configuration")

// Supported Device values.
const (
	Float32 = "float32"
	Float64 = "float64"
)

// Config stores the settings of a training run.
//
// A Config is not modified once training starts.
type Config struct {
	Seed           int64   `yaml:"seed"`
	TotalSteps     int     `yaml:"total_steps"`
	LearningRate   float64 `yaml:"learning_rate"`
	GameSize       int     `yaml:"game_size"`
	NumEnvs        int     `yaml:"num_envs"`
	NumSteps       int     `yaml:"num_steps"`
	Gamma          float64 `yaml:"gamma"`
	GAELambda      float64 `yaml:"gae_lambda"`
	MinibatchSize  int     `yaml:"minibatch_size"`
	UpdateEpochs   int     `yaml:"update_epochs"`
	NormAdv        bool    `yaml:"norm_adv"`
	ClipCoef       float64 `yaml:"clip_coef"`
	EntCoef        float64 `yaml:"ent_coef"`
	VFCoef         float64 `yaml:"vf_coef"`
	MaxGradNorm    float64 `yaml:"max_grad_norm"`
	SaveFreq       int     `yaml:"save_freq"`
	Hidden         int     `yaml:"hidden"`
	MaxEpisodeStep int     `yaml:"max_episode_steps"`

	// Device selects the numeric backend.
	Device string `yaml:"device"`

	CkptDir string `yaml:"ckpt_dir"`
	LogDir  string `yaml:"log_dir"`
}

// Default returns the default training settings.
func Default() Config {
	return Config{
		Seed:          1,
		TotalSteps:    20000000,
		LearningRate:  2.5e-4,
		GameSize:      8,
		NumEnvs:       64,
		NumSteps:      128,
		Gamma:         0.99,
		GAELambda:     0.95,
		MinibatchSize: 512,
		UpdateEpochs:  4,
		ClipCoef:      0.2,
		EntCoef:       0.01,
		VFCoef:        0.5,
		MaxGradNorm:   0.5,
		SaveFreq:      200000,
		Hidden:        128,
		Device:        Float32,
		CkptDir:       "ckpt",
		LogDir:        "logs",
	}
}

// Load reads a YAML file of settings.
// Settings missing from the file keep their defaults.
func Load(path string) (cfg Config, err error) {
	defer essentials.AddCtxTo("load config", &err)
	f, err := os.Open(path)
	if err != nil {
		return cfg, err
	}
	defer f.Close()
	cfg = Default()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return cfg, err
	}
	return cfg, nil
}

// Save writes the settings to a YAML file.
func (c *Config) Save(path string) (err error) {
	defer essentials.AddCtxTo("save config", &err)
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks that the settings describe a runnable
// training job.
func (c *Config) Validate() error {
	positive := []struct {
		name  string
		value int
	}{
		{"total-steps", c.TotalSteps},
		{"game-size", c.GameSize},
		{"num-envs", c.NumEnvs},
		{"num-steps", c.NumSteps},
		{"minibatch-size", c.MinibatchSize},
		{"update-epochs", c.UpdateEpochs},
		{"save-freq", c.SaveFreq},
		{"hidden", c.Hidden},
	}
	for _, p := range positive {
		if p.value <= 0 {
			return invalid("%s must be positive (got %d)", p.name, p.value)
		}
	}
	if c.GameSize < 2 {
		return invalid("game-size must be at least 2 (got %d)", c.GameSize)
	}
	if c.MaxEpisodeStep < 0 {
		return invalid("max-episode-steps must not be negative")
	}
	if c.MinibatchSize > c.BatchSize() || c.BatchSize()%c.MinibatchSize != 0 {
		return invalid("minibatch-size %d must divide the batch size %d",
			c.MinibatchSize, c.BatchSize())
	}
	if c.NormAdv && c.MinibatchSize < 2 {
		return invalid("norm-adv requires minibatch-size of at least 2")
	}
	if c.TotalSteps < c.BatchSize() {
		return invalid("total-steps %d is less than one batch (%d)",
			c.TotalSteps, c.BatchSize())
	}
	if c.LearningRate <= 0 {
		return invalid("learning-rate must be positive")
	}
	if c.Gamma < 0 || c.Gamma > 1 || c.GAELambda < 0 || c.GAELambda > 1 {
		return invalid("gamma and gae-lambda must be in [0, 1]")
	}
	if c.ClipCoef <= 0 {
		return invalid("clip-coef must be positive")
	}
	if c.EntCoef < 0 || c.VFCoef < 0 || c.MaxGradNorm < 0 {
		return invalid("coefficients must not be negative")
	}
	if _, err := Creator(c.Device); err != nil {
		return err
	}
	return nil
}

// BatchSize is the number of samples per iteration.
func (c *Config) BatchSize() int {
	return c.NumEnvs * c.NumSteps
}

// NumMinibatches is the number of gradient steps per
// update epoch.
func (c *Config) NumMinibatches() int {
	return c.BatchSize() / c.MinibatchSize
}

// NumIterations is the number of rollout/update cycles.
func (c *Config) NumIterations() int {
	return c.TotalSteps / c.BatchSize()
}

// RunName names a run started at time t.
func (c *Config) RunName(t time.Time) string {
	return ckpt.RunName(c.Seed, c.Hidden, c.GameSize, t)
}

// MetricsPath is the metrics database of a run.
func (c *Config) MetricsPath(run string) string {
	return filepath.Join(c.LogDir, run+".db")
}

// SavePath is where the settings of a run are recorded.
func (c *Config) SavePath(run string) string {
	return filepath.Join(c.LogDir, run+".yaml")
}

// EvalConfig stores the settings of an evaluation run.
//
// The numeric backend of an evaluation is that of the
// loaded checkpoint.
type EvalConfig struct {
	GameSize int

	// CkptDir is either a run directory or, if FindNewest
	// is set, a directory of runs.
	CkptDir    string
	FindNewest bool

	// Deterministic selects the most likely action rather
	// than sampling.
	Deterministic bool

	Seed      int64
	Interval  time.Duration
	StepDelay time.Duration
	Render    bool
}

// DefaultEval returns the default evaluation settings.
func DefaultEval() EvalConfig {
	return EvalConfig{
		GameSize:   8,
		CkptDir:    "ckpt",
		FindNewest: true,
		Seed:       time.Now().UnixNano(),
		Interval:   10 * time.Second,
		StepDelay:  50 * time.Millisecond,
		Render:     true,
	}
}

// Validate checks the evaluation settings.
func (e *EvalConfig) Validate() error {
	if e.GameSize < 2 {
		return invalid("game-size must be at least 2 (got %d)", e.GameSize)
	}
	if e.CkptDir == "" {
		return invalid("ckpt-dir must be set")
	}
	if e.Interval <= 0 {
		return invalid("interval must be positive")
	}
	if e.StepDelay < 0 {
		return invalid("step-delay must not be negative")
	}
	return nil
}

// Creator returns the numeric backend for a device name.
func Creator(device string) (anyvec.Creator, error) {
	switch device {
	case Float32:
		return anyvec32.DefaultCreator{}, nil
	case Float64:
		return anyvec64.DefaultCreator{}, nil
	default:
		return nil, invalid("unknown device %q", device)
	}
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}
