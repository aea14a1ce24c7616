package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/wty-yy/gridrl/config"
)

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	if err := os.WriteFile(path, []byte("seed: 5\nnum_envs: 16\ngamma: 0.9\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg := config.Default()
	flags := pflag.NewFlagSet("train", pflag.ContinueOnError)
	bindTrainFlags(flags, &cfg)
	if err := flags.Parse([]string{"--num-envs", "8", "--norm-adv"}); err != nil {
		t.Fatal(err)
	}

	loaded, err := loadConfig(path, flags)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Seed != 5 || loaded.Gamma != 0.9 {
		t.Errorf("file settings not applied: %+v", loaded)
	}
	if loaded.NumEnvs != 8 || !loaded.NormAdv {
		t.Errorf("flags not applied: %+v", loaded)
	}
	if loaded.NumSteps != config.Default().NumSteps {
		t.Errorf("default lost: %+v", loaded)
	}
}
