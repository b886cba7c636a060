package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"ScanSentry/internal/config"
	"ScanSentry/internal/exporter"
	"ScanSentry/internal/logger"
	"ScanSentry/internal/model"

	"go.uber.org/zap"
)

// Prints the contacts that sensors publish to NATS, one line per row in day
// log format prefixed by the day.
func main() {
	configPath := flag.String("c", "configs/config.yaml", "Path to the configuration file.")
	subject := flag.String("subject", "", "Subject to follow (overrides exporters.nats.subject).")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		zap.NewExample().Fatal("Failed to load configuration", zap.Error(err))
	}
	if *subject != "" {
		cfg.Exporters.NATS.Subject = *subject
	}

	log := logger.Must(config.LoggingConfig{Level: cfg.Logging.Level, Format: cfg.Logging.Format, Output: "stderr"}, false)
	defer log.Sync()

	sub, err := exporter.NewSubscriber(cfg.Exporters.NATS, log)
	if err != nil {
		log.Fatal("Failed to create subscriber", zap.Error(err))
	}
	defer sub.Close()

	err = sub.Start(func(day string, r model.Row) {
		fmt.Printf("%s %s %s %s %s %d %d %d\n", day, r.Proto, r.SrcIP, r.DstIP, r.DstPort, r.FirstSeen, r.LastSeen, r.Count)
	})
	if err != nil {
		log.Fatal("Subscriber failed to start", zap.Error(err))
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
}
