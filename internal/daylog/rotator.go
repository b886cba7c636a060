package daylog

import (
	"errors"
	"fmt"
	"os"
	"time"

	"ScanSentry/internal/engine/aggregator"
	"ScanSentry/internal/metrics"
	"ScanSentry/internal/model"
	"ScanSentry/internal/whitelist"

	"go.uber.org/zap"
)

// Whitelister supplies the exclusion set for one flush.
type Whitelister interface {
	Resolve() whitelist.Set
}

// Options configures a Rotator.
type Options struct {
	Directory   string
	WritePeriod time.Duration
	Whitelist   Whitelister
	Exporters   []model.Exporter
	Metrics     *metrics.Metrics
	Logger      *zap.Logger
}

// Rotator decides when the aggregation is written to the day log and starts
// a fresh aggregation window whenever the UTC date changes.
type Rotator struct {
	agg       *aggregator.Aggregator
	dir       string
	period    time.Duration
	whitelist Whitelister
	exporters []model.Exporter
	metrics   *metrics.Metrics
	logger    *zap.Logger

	lastFilename string
	lastFlush    time.Time
}

// NewRotator creates a rotator flushing agg into opts.Directory.
func NewRotator(agg *aggregator.Aggregator, opts Options) *Rotator {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Rotator{
		agg:       agg,
		dir:       opts.Directory,
		period:    opts.WritePeriod,
		whitelist: opts.Whitelist,
		exporters: opts.Exporters,
		metrics:   opts.Metrics,
		logger:    logger,
	}
}

// Recover seeds the aggregation from the day log of now's date, if one
// exists. A log that cannot be parsed is moved aside so that the next flush
// does not overwrite it, and the error is returned.
func (r *Rotator) Recover(now time.Time) (int, error) {
	path := Filename(r.dir, now)
	rows, err := Read(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err == nil {
		err = r.agg.Seed(rows)
	}
	if err != nil {
		r.agg.Reset()
		aside := path + ".corrupt"
		if renameErr := os.Rename(path, aside); renameErr != nil {
			return 0, fmt.Errorf("failed to recover %s: %w (and could not move it aside: %v)", path, err, renameErr)
		}
		return 0, fmt.Errorf("failed to recover %s, moved to %s: %w", path, aside, err)
	}

	r.lastFilename = path
	r.logger.Info("Recovered same-day history", zap.String("file", path), zap.Int("rows", len(rows)))
	return len(rows), nil
}

// Advance starts a new aggregation window when now falls on a different
// UTC date than the day log being written. The previous day's log receives
// its final state first. The sensor calls it before aggregating a frame so
// that a frame of the new day is never counted into the old one.
//
// A failed final flush is retried once. If the retry fails too the error is
// reported and the new day still starts empty.
func (r *Rotator) Advance(now time.Time) error {
	filename := Filename(r.dir, now)
	if r.lastFlush.IsZero() {
		r.lastFlush = now
	}
	if r.lastFilename == "" {
		r.lastFilename = filename
	}
	if filename == r.lastFilename {
		return nil
	}

	var err error
	if err = r.flush(r.lastFilename); err != nil {
		r.logger.Warn("Final flush of previous day failed, retrying",
			zap.String("file", r.lastFilename), zap.Error(err))
		err = r.flush(r.lastFilename)
	}
	if err != nil {
		err = fmt.Errorf("failed to finalize %s: %w", r.lastFilename, err)
	}
	r.agg.Reset()
	r.metrics.Rollover()
	r.publishSizes()
	r.logger.Info("Day rollover", zap.String("previous", r.lastFilename), zap.String("current", filename))
	r.lastFilename = filename
	r.lastFlush = now
	return err
}

// Tick is called after every frame and once at shutdown with force set.
// It applies Advance, then flushes the current day when forced or when the
// write period has elapsed since the last flush.
//
// A failed flush keeps the in-memory state and is retried no earlier than
// one write period later.
func (r *Rotator) Tick(now time.Time, force bool) error {
	rolloverErr := r.Advance(now)
	if !force && now.Sub(r.lastFlush) <= r.period {
		return rolloverErr
	}
	err := r.flush(Filename(r.dir, now))
	r.lastFlush = now
	return errors.Join(rolloverErr, err)
}

// Filename returns the day log the rotator is currently writing to.
func (r *Rotator) Filename() string {
	return r.lastFilename
}

func (r *Rotator) flush(path string) error {
	start := time.Now()

	var exclude func(model.Addr) bool
	if r.whitelist != nil {
		exclude = r.whitelist.Resolve().Has
	}
	rows := r.agg.Rows(exclude)

	if err := Write(path, rows); err != nil {
		r.metrics.FlushFailed()
		return err
	}
	r.metrics.Flushed(len(rows), time.Since(start))
	r.publishSizes()
	r.logger.Debug("Flushed day log", zap.String("file", path), zap.Int("rows", len(rows)))

	day := DayOf(path)
	for _, exp := range r.exporters {
		if err := exp.Export(day, rows); err != nil {
			r.metrics.ExportFailed(exp.Name())
			r.logger.Warn("Exporter failed", zap.String("exporter", exp.Name()), zap.Error(err))
		}
	}
	return nil
}

func (r *Rotator) publishSizes() {
	r.metrics.TableSizes(r.agg.Sizes())
}
