// Package metrics records scalar training statistics.
package metrics

import (
	"database/sql"
	"time"

	"github.com/rs/zerolog"
	"github.com/unixpickle/essentials"

	// Registers the "sqlite" driver.
	_ "modernc.org/sqlite"
)

// A Sink receives named scalars keyed by global step.
type Sink interface {
	AddScalar(tag string, step int, value float64) error
}

// Multi is a Sink which forwards every scalar to each of
// its Sinks in order.
type Multi []Sink

// AddScalar forwards to every sink, stopping at the first
// error.
func (m Multi) AddScalar(tag string, step int, value float64) error {
	for _, s := range m {
		if err := s.AddScalar(tag, step, value); err != nil {
			return err
		}
	}
	return nil
}

// LogSink writes scalars as debug log events.
type LogSink struct {
	Logger zerolog.Logger
}

// AddScalar logs the scalar.
func (l *LogSink) AddScalar(tag string, step int, value float64) error {
	l.Logger.Debug().Str("tag", tag).Int("step", step).Float64("value", value).Msg("scalar")
	return nil
}

// A Point is one recorded scalar.
type Point struct {
	Tag   string
	Step  int
	Value float64
}

// DB is a Sink backed by a SQLite database.
type DB struct {
	db  *sql.DB
	now func() time.Time
}

// OpenDB opens (or creates) a SQLite metrics database.
func OpenDB(path string) (d *DB, err error) {
	defer essentials.AddCtxTo("open metrics", &err)
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS scalars(
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts REAL NOT NULL,
			tag TEXT NOT NULL,
			step INTEGER NOT NULL,
			value REAL NOT NULL
		)`)
	if err != nil {
		db.Close()
		return nil, err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS scalars_tag ON scalars(tag, step)`)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &DB{db: db, now: time.Now}, nil
}

// AddScalar inserts a row.
func (d *DB) AddScalar(tag string, step int, value float64) error {
	ts := float64(d.now().UnixNano()) / 1e9
	_, err := d.db.Exec(`INSERT INTO scalars(ts, tag, step, value) VALUES(?, ?, ?, ?)`,
		ts, tag, step, value)
	if err != nil {
		return essentials.AddCtx("add scalar "+tag, err)
	}
	return nil
}

// Scalars returns the points recorded for a tag, in step
// order.
func (d *DB) Scalars(tag string) (points []Point, err error) {
	defer essentials.AddCtxTo("read scalars "+tag, &err)
	rows, err := d.db.Query(`SELECT tag, step, value FROM scalars WHERE tag = ? ORDER BY step, id`, tag)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var p Point
		if err := rows.Scan(&p.Tag, &p.Step, &p.Value); err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// Close closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}
