package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"ScanSentry/internal/config"
	"ScanSentry/internal/exporter"
	"ScanSentry/internal/factory"
	"ScanSentry/internal/hostinfo"
	"ScanSentry/internal/logger"

	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("c", "configs/config.yaml", "Path to the configuration file.")
	outDir := flag.String("o", "", "Directory to write day logs to (overrides storage.log_directory). An existing log for the capture's first day is extended, not replaced.")
	autodetect := flag.Bool("autodetect", false, "Use this machine's interfaces as the local networks.")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] <path_to_pcap_file>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(1)
	}
	pcapFilePath := flag.Arg(0)

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		zap.NewExample().Fatal("Failed to load configuration", zap.Error(err))
	}
	if *outDir != "" {
		cfg.Storage.LogDirectory = *outDir
	}
	// A capture taken elsewhere says nothing about this host's interfaces.
	cfg.Network.Autodetect = *autodetect

	log := logger.Must(cfg.Logging, cfg.Sensor.Debug)
	defer log.Sync()

	info, err := hostinfo.Detect(cfg.Network, hostinfo.WithLogger(log.Named("hostinfo")))
	if err != nil {
		log.Fatal("Invalid network configuration", zap.Error(err))
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
		CaptureClock: true,
		Exporters:    exporters,
		Logger:       log,
	})
	if err != nil {
		log.Fatal("Failed to initialize pipeline", zap.Error(err))
	}

	if err := pipeline.Replay(context.Background(), pcapFilePath); err != nil {
		log.Error("Replay stopped early", zap.Error(err))
		return
	}

	destinations, stats, _ := pipeline.Aggregator.Sizes()
	log.Info("Finished reading all packets",
		zap.String("last_log", pipeline.Rotator.Filename()),
		zap.Int("destinations", destinations),
		zap.Int("contacts", stats))
}
