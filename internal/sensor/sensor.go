// Package sensor drives the per-frame pipeline: decode, aggregate and let
// the rotator decide whether the day log is due.
package sensor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"ScanSentry/internal/daylog"
	"ScanSentry/internal/engine/aggregator"
	"ScanSentry/internal/engine/protocol"
	"ScanSentry/internal/metrics"
	"ScanSentry/internal/model"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"go.uber.org/zap"
)

// Source delivers captured frames. ReadPacketData returns
// model.ErrCaptureTimeout when no frame arrived in time and io.EOF when the
// source is exhausted.
type Source interface {
	gopacket.PacketDataSource
	LinkType() layers.LinkType
}

// Options configures a Sensor.
type Options struct {
	// Debug surfaces every skipped frame as a debug log entry.
	Debug bool
	// CaptureClock drives flushing and rollover from frame timestamps
	// instead of the wall clock, for replaying capture files.
	CaptureClock bool
	Metrics      *metrics.Metrics
	Logger       *zap.Logger
	// Now overrides the wall clock.
	Now func() time.Time
}

// Sensor owns one aggregation pipeline. Run must not be called concurrently.
type Sensor struct {
	decoder *protocol.Decoder
	agg     *aggregator.Aggregator
	rotator *daylog.Rotator

	debug        bool
	captureClock bool
	metrics      *metrics.Metrics
	logger       *zap.Logger
	now          func() time.Time

	lastFrame time.Time
}

// New wires a sensor from its pipeline stages.
func New(decoder *protocol.Decoder, agg *aggregator.Aggregator, rotator *daylog.Rotator, opts Options) *Sensor {
	s := &Sensor{
		decoder:      decoder,
		agg:          agg,
		rotator:      rotator,
		debug:        opts.Debug,
		captureClock: opts.CaptureClock,
		metrics:      opts.Metrics,
		logger:       opts.Logger,
		now:          opts.Now,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Run reads frames from src until ctx is cancelled or src is exhausted, then
// performs a final forced flush. Read errors other than timeouts end the run
// and are returned.
func (s *Sensor) Run(ctx context.Context, src Source) error {
	linkType := src.LinkType()
	if !protocol.SupportedLinkType(linkType) {
		return fmt.Errorf("datalink type '%s' not supported", linkType)
	}

	var runErr error
	for ctx.Err() == nil {
		data, ci, err := src.ReadPacketData()
		if err != nil {
			if errors.Is(err, model.ErrCaptureTimeout) {
				s.tick(false)
				continue
			}
			if !errors.Is(err, io.EOF) {
				runErr = fmt.Errorf("failed to read from capture source: %w", err)
			}
			break
		}
		s.HandleFrame(model.Frame{Data: data, Timestamp: ci.Timestamp, LinkType: linkType})
	}

	s.tick(true)
	return runErr
}

// HandleFrame runs one frame through the pipeline.
func (s *Sensor) HandleFrame(frame model.Frame) {
	s.metrics.Frame()
	if frame.Timestamp.After(s.lastFrame) {
		s.lastFrame = frame.Timestamp
	}
	// A frame of a new day must land in the new day's tables.
	if err := s.rotator.Advance(s.clock()); err != nil {
		s.logger.Warn("Failed to finalize previous day log", zap.Error(err))
	}

	obs, err := s.decoder.Decode(frame)
	if err != nil {
		var skipErr *protocol.SkipError
		if errors.As(err, &skipErr) {
			s.metrics.Skip(skipErr.Reason.String())
		}
		if s.debug {
			s.logger.Debug("Frame skipped", zap.Error(err), zap.Int("len", len(frame.Data)))
		}
	} else {
		outcome := s.agg.Process(obs)
		s.metrics.Observation(obs.Protocol, outcome.String())
	}

	s.tick(false)
}

func (s *Sensor) clock() time.Time {
	if s.captureClock && !s.lastFrame.IsZero() {
		return s.lastFrame
	}
	return s.now()
}

func (s *Sensor) tick(force bool) {
	if err := s.rotator.Tick(s.clock(), force); err != nil {
		s.logger.Warn("Failed to write day log, keeping state for the next attempt",
			zap.String("file", s.rotator.Filename()), zap.Error(err))
	}
}
