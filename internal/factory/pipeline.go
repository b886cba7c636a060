// Package factory assembles the capture pipeline from configuration.
package factory

import (
	"context"
	"fmt"

	"ScanSentry/internal/config"
	"ScanSentry/internal/daylog"
	"ScanSentry/internal/engine/aggregator"
	"ScanSentry/internal/engine/protocol"
	"ScanSentry/internal/hostinfo"
	"ScanSentry/internal/metrics"
	"ScanSentry/internal/model"
	"ScanSentry/internal/sensor"
	"ScanSentry/internal/whitelist"
	"ScanSentry/pkg/pcap"

	"go.uber.org/zap"
)

// Pipeline is one fully wired sensor.
type Pipeline struct {
	Sensor     *sensor.Sensor
	Rotator    *daylog.Rotator
	Aggregator *aggregator.Aggregator

	logger *zap.Logger
}

// Options carries the collaborators that are created outside the pipeline.
type Options struct {
	// CaptureClock makes frame timestamps drive flushing, for replays.
	CaptureClock bool
	Exporters    []model.Exporter
	Metrics      *metrics.Metrics
	Logger       *zap.Logger
}

// New builds the decoder, aggregator, rotator and sensor loop. It creates
// the log directory; failing to do so is fatal for the caller.
func New(cfg *config.Config, info *hostinfo.Info, opts Options) (*Pipeline, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	decoderOpts, err := decoderOptions(cfg.Sensor, info)
	if err != nil {
		return nil, err
	}

	resolver, err := whitelist.NewResolver(cfg.Whitelist, logger.Named("whitelist"))
	if err != nil {
		return nil, err
	}

	period, err := cfg.WritePeriod()
	if err != nil {
		return nil, err
	}

	if err := daylog.Prepare(cfg.Storage.LogDirectory); err != nil {
		return nil, err
	}

	agg := aggregator.New(info.Networks)
	rotator := daylog.NewRotator(agg, daylog.Options{
		Directory:   cfg.Storage.LogDirectory,
		WritePeriod: period,
		Whitelist:   resolver,
		Exporters:   opts.Exporters,
		Metrics:     opts.Metrics,
		Logger:      logger.Named("daylog"),
	})
	s := sensor.New(protocol.NewDecoder(decoderOpts), agg, rotator, sensor.Options{
		Debug:        cfg.Sensor.Debug,
		CaptureClock: opts.CaptureClock,
		Metrics:      opts.Metrics,
		Logger:       logger.Named("sensor"),
	})

	return &Pipeline{Sensor: s, Rotator: rotator, Aggregator: agg, logger: logger}, nil
}

func decoderOptions(cfg config.SensorConfig, info *hostinfo.Info) (protocol.Options, error) {
	opts := protocol.Options{Hosts: info.Hosts}
	for _, s := range cfg.IgnoreAddresses {
		addr, err := model.ParseAddr(s)
		if err != nil {
			return protocol.Options{}, fmt.Errorf("invalid ignore address: %w", err)
		}
		opts.IgnoreAddresses = append(opts.IgnoreAddresses, addr)
	}
	for _, p := range cfg.IgnorePorts {
		opts.IgnorePorts = append(opts.IgnorePorts, model.Port(p))
	}
	return opts, nil
}

// Replay feeds a capture file through the pipeline. An existing log for the
// capture's first day is recovered first, so replaying into a directory
// extends that log instead of overwriting it.
func (p *Pipeline) Replay(ctx context.Context, path string) error {
	if first, err := pcap.FirstTimestamp(path); err == nil {
		n, err := p.Rotator.Recover(first)
		if err != nil {
			p.logger.Warn("Could not recover existing day log, starting empty", zap.Error(err))
		} else if n > 0 {
			p.logger.Info("Extending existing day log", zap.String("file", p.Rotator.Filename()), zap.Int("rows", n))
		}
	}

	reader, err := pcap.NewReader(path)
	if err != nil {
		return err
	}
	defer reader.Close()
	p.logger.Info("Reading packets", zap.String("file", path), zap.Stringer("link_type", reader.LinkType()))

	return p.Sensor.Run(ctx, reader)
}
