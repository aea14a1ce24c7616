// Package ckpt stores and discovers model checkpoints.
//
// Checkpoints are named after the global step at which
// they were taken, zero-padded to a fixed width, so that
// lexicographic order is chronological order.
// Runs are stored in sibling directories whose names end
// in a sortable timestamp.
package ckpt

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
	"github.com/wty-yy/gridrl"
)

const (
	// DefaultExt is the file extension of checkpoints.
	DefaultExt = "ckpt"

	// NameWidth is the number of digits in a checkpoint
	// name.
	NameWidth = 10

	// TimestampFormat is used at the end of run names.
	TimestampFormat = "20060102-150405"
)

// Name returns the file name of the checkpoint for a
// global step.
func Name(step int, ext string) string {
	return fmt.Sprintf("%0*d.%s", NameWidth, step, ext)
}

// RunName creates the directory name of a training run.
func RunName(seed int64, hidden, gameSize int, t time.Time) string {
	return fmt.Sprintf("seed%d_hidden%d_size%d_%s", seed, hidden, gameSize,
		t.Format(TimestampFormat))
}

// SizeTag is the part of a run name which identifies the
// game size, for use with LatestRun.
func SizeTag(gameSize int) string {
	return fmt.Sprintf("_size%d_", gameSize)
}

// ShouldSave decides whether a training iteration should
// end with a checkpoint.
//
// The first and last iterations are always saved.
// Otherwise a checkpoint is taken whenever the last batch
// of batchSize steps crossed a multiple of saveFreq.
func ShouldSave(iteration, numIterations, globalStep, saveFreq, batchSize int) bool {
	if iteration == 1 || iteration == numIterations {
		return true
	}
	return saveFreq > 0 && globalStep%saveFreq < batchSize
}

// A Store saves checkpoints for a single run.
//
// Only one training process may use a run directory.
type Store struct {
	Root string
	Run  string

	// Ext is the checkpoint file extension.
	// If empty, DefaultExt is used.
	Ext string

	Logger zerolog.Logger
}

// Dir returns the run directory.
func (s *Store) Dir() string {
	return filepath.Join(s.Root, s.Run)
}

// Save writes a checkpoint for the given step and returns
// its path.
//
// The checkpoint is written to a hidden temporary file
// and renamed into place, so readers never observe a
// partial checkpoint.
func (s *Store) Save(obj serializer.Serializer, step int) (path string, err error) {
	defer essentials.AddCtxTo("save checkpoint", &err)

	data, err := serializer.SerializeAny(obj)
	if err != nil {
		return "", err
	}
	dir := s.Dir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	path = filepath.Join(dir, Name(step, s.ext()))

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", err
	}

	s.Logger.Info().Int("step", step).Str("path", path).Msg("saved checkpoint")
	return path, nil
}

// Latest returns the newest checkpoint of the run.
func (s *Store) Latest() (string, error) {
	return Latest(s.Logger, s.Dir())
}

func (s *Store) ext() string {
	if s.Ext == "" {
		return DefaultExt
	}
	return s.Ext
}

// Latest returns the path of the lexicographically
// greatest file in a directory.
//
// Hidden files, such as checkpoints still being written,
// are ignored.
// If there are no files, a warning is logged and the
// empty string is returned.
func Latest(logger zerolog.Logger, dir string) (string, error) {
	name, err := greatestEntry(dir, false, "")
	if err != nil {
		return "", essentials.AddCtx("find latest checkpoint", err)
	}
	if name == "" {
		logger.Warn().Str("dir", dir).Msg("no checkpoints found")
		return "", nil
	}
	return filepath.Join(dir, name), nil
}

// LatestRun returns the path of the lexicographically
// greatest run directory under root whose name contains
// filter.
//
// An empty filter matches every directory.
// If no directory matches, a warning is logged and the
// empty string is returned.
func LatestRun(logger zerolog.Logger, root, filter string) (string, error) {
	name, err := greatestEntry(root, true, filter)
	if err != nil {
		return "", essentials.AddCtx("find latest run", err)
	}
	if name == "" {
		logger.Warn().Str("dir", root).Str("filter", filter).Msg("no runs found")
		return "", nil
	}
	return filepath.Join(root, name), nil
}

// Load reads a Model from a checkpoint file.
func Load(path string) (model gridrl.Model, err error) {
	defer essentials.AddCtxTo("load checkpoint "+path, &err)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := serializer.DeserializeAny(data, &model); err != nil {
		return nil, err
	}
	return model, nil
}

func greatestEntry(dir string, dirs bool, filter string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	var greatest string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") || entry.IsDir() != dirs {
			continue
		}
		if !strings.Contains(name, filter) {
			continue
		}
		if name > greatest {
			greatest = name
		}
	}
	return greatest, nil
}
