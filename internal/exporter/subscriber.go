package exporter

import (
	"fmt"

	"ScanSentry/internal/config"
	"ScanSentry/internal/model"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// RowHandler processes one row received from a sensor.
type RowHandler func(day string, row model.Row)

// Subscriber consumes the rows published by NATSPublisher.
type Subscriber struct {
	nc      *nats.Conn
	sub     *nats.Subscription
	subject string
	logger  *zap.Logger
}

// NewSubscriber connects to the configured NATS server.
func NewSubscriber(cfg config.NATSConfig, logger *zap.Logger) (*Subscriber, error) {
	nc, err := nats.Connect(cfg.URL, nats.Name("scansentry-tail"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	logger.Info("Connected to NATS server", zap.String("url", cfg.URL))
	return &Subscriber{nc: nc, subject: cfg.Subject, logger: logger}, nil
}

// Start subscribes and hands every decodable message to handler.
func (s *Subscriber) Start(handler RowHandler) error {
	sub, err := s.nc.Subscribe(s.subject, func(msg *nats.Msg) {
		day, row, err := DecodeRow(msg.Data)
		if err != nil {
			s.logger.Warn("Dropping undecodable message", zap.String("subject", msg.Subject), zap.Error(err))
			return
		}
		handler(day, row)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to '%s': %w", s.subject, err)
	}
	s.sub = sub
	s.logger.Info("Subscribed, waiting for messages", zap.String("subject", s.subject))
	return nil
}

// Close unsubscribes and closes the NATS connection.
func (s *Subscriber) Close() {
	if s.sub != nil {
		s.sub.Unsubscribe()
	}
	if s.nc != nil {
		s.nc.Close()
	}
}
