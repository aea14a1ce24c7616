package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/unixpickle/anyvec/anyvec64"
)

func TestDefaultDerived(t *testing.T) {
	c := Default()
	if err := c.Validate(); err != nil {
		t.Fatal(err)
	}
	if c.BatchSize() != 8192 {
		t.Errorf("batch size %d", c.BatchSize())
	}
	if c.NumMinibatches() != 16 {
		t.Errorf("minibatches %d", c.NumMinibatches())
	}
	if c.NumIterations() != 2441 {
		t.Errorf("iterations %d", c.NumIterations())
	}
	name := c.RunName(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC))
	if name != "seed1_hidden128_size8_20240102-030405" {
		t.Errorf("run name %s", name)
	}
	if c.MetricsPath("run") != "logs/run.db" {
		t.Errorf("metrics path %s", c.MetricsPath("run"))
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		modify func(c *Config)
	}{
		{"zero envs", func(c *Config) { c.NumEnvs = 0 }},
		{"indivisible", func(c *Config) { c.MinibatchSize = 500 }},
		{"minibatch too big", func(c *Config) { c.MinibatchSize = 16384 }},
		{"too few steps", func(c *Config) { c.TotalSteps = 100 }},
		{"tiny board", func(c *Config) { c.GameSize = 1 }},
		{"norm single", func(c *Config) {
			c.NumEnvs, c.NumSteps, c.MinibatchSize, c.NormAdv = 1, 4, 1, true
			c.TotalSteps = 4
		}},
		{"gamma", func(c *Config) { c.Gamma = 1.5 }},
		{"device", func(c *Config) { c.Device = "cuda" }},
		{"zero clip", func(c *Config) { c.ClipCoef = 0 }},
	}
	for _, tc := range cases {
		c := Default()
		tc.modify(&c)
		err := c.Validate()
		if err == nil {
			t.Errorf("%s: expected error", tc.name)
		} else if !errors.Is(err, ErrInvalid) {
			t.Errorf("%s: error %v does not wrap ErrInvalid", tc.name, err)
		}
	}
}

func TestEvalValidate(t *testing.T) {
	e := DefaultEval()
	if err := e.Validate(); err != nil {
		t.Fatal(err)
	}
	e.Interval = 0
	if err := e.Validate(); !errors.Is(err, ErrInvalid) {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestCreator(t *testing.T) {
	c, err := Creator(Float64)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := c.(anyvec64.DefaultCreator); !ok {
		t.Errorf("unexpected creator %T", c)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	data := "seed: 7\nnum_envs: 16\nnorm_adv: true\ndevice: float64\n"
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	expected := Default()
	expected.Seed = 7
	expected.NumEnvs = 16
	expected.NormAdv = true
	expected.Device = Float64
	if cfg != expected {
		t.Errorf("expected %+v but got %+v", expected, cfg)
	}

	saved := filepath.Join(t.TempDir(), "saved.yaml")
	if err := cfg.Save(saved); err != nil {
		t.Fatal(err)
	}
	reloaded, err := Load(saved)
	if err != nil {
		t.Fatal(err)
	}
	if reloaded != cfg {
		t.Errorf("saved settings changed: %+v", reloaded)
	}

	if err := os.WriteFile(path, []byte("sed: 7\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for unknown setting")
	}
}
