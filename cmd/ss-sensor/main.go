package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ScanSentry/internal/config"
	"ScanSentry/internal/engine/protocol"
	"ScanSentry/internal/exporter"
	"ScanSentry/internal/factory"
	"ScanSentry/internal/hostinfo"
	"ScanSentry/internal/logger"
	"ScanSentry/internal/metrics"
	"ScanSentry/pkg/capture"

	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("c", "configs/config.yaml", "Path to the configuration file.")
	iface := flag.String("iface", "", "Interface to capture from (overrides sensor.interface).")
	debug := flag.Bool("debug", false, "Log every skipped frame.")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		zap.NewExample().Fatal("Failed to load configuration", zap.Error(err))
	}
	if *iface != "" {
		cfg.Sensor.Interface = *iface
	}
	if *debug {
		cfg.Sensor.Debug = true
	}

	log := logger.Must(cfg.Logging, cfg.Sensor.Debug)
	defer log.Sync()

	if err := hostinfo.CheckPrivileges(); err != nil {
		log.Fatal("Insufficient privileges", zap.Error(err))
	}

	info, err := hostinfo.Detect(cfg.Network, hostinfo.WithLogger(log.Named("hostinfo")))
	if err != nil {
		log.Fatal("Invalid network configuration", zap.Error(err))
	}
	log.Info("Local networks detected",
		zap.Stringers("networks", info.Networks),
		zap.Strings("host_addresses", info.Hosts.Strings()))

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		srv := &http.Server{Addr: cfg.Metrics.ListenAddr, Handler: m.Handler()}
		go func() {
			log.Info("Metrics server starting", zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("Metrics server failed", zap.Error(err))
			}
		}()
		defer srv.Close()
	}

	exporters, err := exporter.FromConfig(cfg.Exporters, log.Named("exporter"))
	if err != nil {
		log.Fatal("Failed to start exporters", zap.Error(err))
	}
	defer func() {
		for _, e := range exporters {
			e.Close()
		}
	}()

	pipeline, err := factory.New(cfg, info, factory.Options{
		Exporters: exporters,
		Metrics:   m,
		Logger:    log,
	})
	if err != nil {
		log.Fatal("Failed to initialize sensor", zap.Error(err))
	}
	log.Info("Using log storage", zap.String("directory", cfg.Storage.LogDirectory))

	if _, err := pipeline.Rotator.Recover(time.Now()); err != nil {
		log.Warn("Starting without same-day history", zap.Error(err))
	}

	readTimeout, _ := cfg.ReadTimeout()
	log.Info("Opening interface", zap.String("interface", cfg.Sensor.Interface), zap.String("filter", cfg.Sensor.CaptureFilter))
	live, err := capture.OpenLive(capture.Options{
		Interface:   cfg.Sensor.Interface,
		SnapLen:     cfg.Sensor.SnapLen,
		Promiscuous: cfg.Sensor.Promiscuous,
		ReadTimeout: readTimeout,
		Filter:      cfg.Sensor.CaptureFilter,
	})
	if err != nil {
		log.Fatal("Failed to open capture device", zap.Error(err))
	}
	defer live.Close()

	if !protocol.SupportedLinkType(live.LinkType()) {
		log.Fatal("Datalink type not supported", zap.Stringer("link_type", live.LinkType()))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("Sensor started")
	runErr := pipeline.Sensor.Run(ctx, live)

	if stats, err := live.Stats(); err == nil {
		log.Info("Capture statistics",
			zap.Int("received", stats.PacketsReceived),
			zap.Int("dropped", stats.PacketsDropped),
			zap.Int("if_dropped", stats.PacketsIfDropped))
	}
	if runErr != nil {
		log.Error("Sensor stopped", zap.Error(runErr))
		return
	}
	log.Info("Sensor stopped")
}
