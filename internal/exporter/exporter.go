package exporter

import (
	"ScanSentry/internal/config"
	"ScanSentry/internal/model"

	"go.uber.org/zap"
)

// FromConfig opens every enabled exporter. On error, the exporters opened so
// far are closed.
func FromConfig(cfg config.ExportersConfig, logger *zap.Logger) ([]model.Exporter, error) {
	var exporters []model.Exporter
	fail := func(err error) ([]model.Exporter, error) {
		for _, e := range exporters {
			e.Close()
		}
		return nil, err
	}

	if cfg.NATS.Enabled {
		p, err := NewNATSPublisher(cfg.NATS, logger)
		if err != nil {
			return fail(err)
		}
		exporters = append(exporters, p)
	}
	if cfg.ClickHouse.Enabled {
		w, err := NewClickHouseWriter(cfg.ClickHouse, logger)
		if err != nil {
			return fail(err)
		}
		exporters = append(exporters, w)
	}
	return exporters, nil
}
