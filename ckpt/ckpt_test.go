package ckpt

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/anyvec/anyvec64"
	"github.com/wty-yy/gridrl"
)

func TestName(t *testing.T) {
	if name := Name(12345, "ckpt"); name != "0000012345.ckpt" {
		t.Errorf("unexpected name %q", name)
	}
	ts := time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)
	if name := RunName(1, 128, 8, ts); name != "seed1_hidden128_size8_20240309-140507" {
		t.Errorf("unexpected run name %q", name)
	}
}

func TestLatestOrdering(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"0000000100", "0000000020", "0000001000", ".tmp-123"} {
		touch(t, filepath.Join(dir, name))
	}
	os.Mkdir(filepath.Join(dir, "9999999999"), 0755)

	latest, err := Latest(zerolog.Nop(), dir)
	if err != nil {
		t.Fatal(err)
	}
	if latest != filepath.Join(dir, "0000001000") {
		t.Errorf("unexpected latest checkpoint %q", latest)
	}
}

func TestLatestEmpty(t *testing.T) {
	var buf bytes.Buffer
	latest, err := Latest(zerolog.New(&buf), t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if latest != "" {
		t.Errorf("expected no checkpoint but got %q", latest)
	}
	if !strings.Contains(buf.String(), `"level":"warn"`) {
		t.Errorf("expected a warning, got %q", buf.String())
	}

	if _, err := Latest(zerolog.Nop(), filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("expected error for missing directory")
	}
}

func TestLatestRun(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{
		"seed1_hidden128_size8_20240101-000000",
		"seed1_hidden128_size8_20240301-000000",
		"seed1_hidden128_size10_20240401-000000",
		"seed1_hidden128_size80_20240501-000000",
	} {
		os.Mkdir(filepath.Join(root, name), 0755)
	}
	touch(t, filepath.Join(root, "seed1_hidden128_size8_20250101-000000"))

	latest, err := LatestRun(zerolog.Nop(), root, SizeTag(8))
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(latest) != "seed1_hidden128_size8_20240301-000000" {
		t.Errorf("unexpected run %q", latest)
	}

	latest, err = LatestRun(zerolog.Nop(), root, "")
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(latest) != "seed1_hidden128_size80_20240501-000000" {
		t.Errorf("unexpected unfiltered run %q", latest)
	}

	latest, err = LatestRun(zerolog.Nop(), root, SizeTag(12))
	if err != nil || latest != "" {
		t.Errorf("expected no run, got %q (%v)", latest, err)
	}
}

func TestStoreSaveLoad(t *testing.T) {
	c := anyvec64.DefaultCreator{}
	model := gridrl.NewMLP(c, 4, 6, 3)
	for _, p := range model.Parameters() {
		anyvec.Rand(p.Vector, anyvec.Normal, nil)
	}
	store := &Store{Root: t.TempDir(), Run: "run", Logger: zerolog.Nop()}

	path, err := store.Save(model, 64)
	if err != nil {
		t.Fatal(err)
	}
	if path != filepath.Join(store.Dir(), "0000000064.ckpt") {
		t.Errorf("unexpected path %q", path)
	}
	if _, err := store.Save(model, 128); err != nil {
		t.Fatal(err)
	}
	entries, err := os.ReadDir(store.Dir())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Errorf("expected exactly 2 files, got %d", len(entries))
	}

	latest, err := store.Latest()
	if err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(latest)
	if err != nil {
		t.Fatal(err)
	}
	obs := anydiff.NewConst(c.MakeVectorData([]float64{1, -1, 0.5, 2}))
	expected, _ := model.Apply(obs, 1)
	actual, _ := loaded.Apply(obs, 1)
	diff := actual.Output().Copy()
	diff.Sub(expected.Output())
	if anyvec.AbsMax(diff).(float64) > 1e-12 {
		t.Errorf("loaded model differs: %v vs %v", actual.Output().Data(),
			expected.Output().Data())
	}
}

func TestShouldSave(t *testing.T) {
	const batch = 32
	tests := []struct {
		iteration, globalStep int
		expected              bool
	}{
		{1, 32, true},
		{2, 64, false},
		{3, 96, false},
		{4, 128, true},
		{5, 160, false},
		{10, 320, true},
	}
	for _, test := range tests {
		actual := ShouldSave(test.iteration, 10, test.globalStep, 100, batch)
		if actual != test.expected {
			t.Errorf("iteration %d: expected %v but got %v", test.iteration,
				test.expected, actual)
		}
	}
}

func touch(t *testing.T, path string) {
	if err := os.WriteFile(path, nil, 0644); err != nil {
		t.Fatal(err)
	}
}
