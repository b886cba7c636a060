package exporter

import (
	"fmt"

	"ScanSentry/internal/config"
	"ScanSentry/internal/model"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// NATSPublisher publishes every flushed row as a protobuf Struct message.
type NATSPublisher struct {
	nc      *nats.Conn
	subject string
	logger  *zap.Logger
}

// NewNATSPublisher connects to the configured NATS server.
func NewNATSPublisher(cfg config.NATSConfig, logger *zap.Logger) (*NATSPublisher, error) {
	nc, err := nats.Connect(cfg.URL, nats.Name("scansentry-sensor"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	logger.Info("Connected to NATS server", zap.String("url", cfg.URL), zap.String("subject", cfg.Subject))
	return &NATSPublisher{nc: nc, subject: cfg.Subject, logger: logger}, nil
}

func (p *NATSPublisher) Name() string { return "nats" }

// Export publishes the rows of one flush. Publishing is buffered by the
// client, so this does not wait for the server.
func (p *NATSPublisher) Export(day string, rows []model.Row) error {
	for _, row := range rows {
		data, err := EncodeRow(day, row)
		if err != nil {
			return err
		}
		if err := p.nc.Publish(p.subject, data); err != nil {
			return fmt.Errorf("failed to publish row: %w", err)
		}
	}
	return nil
}

// Close drains and closes the NATS connection.
func (p *NATSPublisher) Close() {
	if p.nc != nil {
		p.nc.Drain()
		p.logger.Info("NATS connection drained and closed")
	}
}

// EncodeRow serializes one day log row. Port-less rows carry a null dst_port.
func EncodeRow(day string, row model.Row) ([]byte, error) {
	var port any
	if row.DstPort != model.NoPort {
		port = int64(row.DstPort)
	}
	msg, err := structpb.NewStruct(map[string]any{
		"day":        day,
		"proto":      row.Proto,
		"src_ip":     row.SrcIP,
		"dst_ip":     row.DstIP,
		"dst_port":   port,
		"first_seen": row.FirstSeen,
		"last_seen":  row.LastSeen,
		"count":      row.Count,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build row message: %w", err)
	}
	return proto.Marshal(msg)
}

// DecodeRow is the inverse of EncodeRow.
func DecodeRow(data []byte) (string, model.Row, error) {
	var msg structpb.Struct
	if err := proto.Unmarshal(data, &msg); err != nil {
		return "", model.Row{}, fmt.Errorf("failed to unmarshal row message: %w", err)
	}
	f := msg.GetFields()
	row := model.Row{
		Proto:     f["proto"].GetStringValue(),
		SrcIP:     f["src_ip"].GetStringValue(),
		DstIP:     f["dst_ip"].GetStringValue(),
		DstPort:   model.NoPort,
		FirstSeen: int64(f["first_seen"].GetNumberValue()),
		LastSeen:  int64(f["last_seen"].GetNumberValue()),
		Count:     uint64(f["count"].GetNumberValue()),
	}
	if v, ok := f["dst_port"].GetKind().(*structpb.Value_NumberValue); ok {
		row.DstPort = model.Port(v.NumberValue)
	}
	return f["day"].GetStringValue(), row, nil
}
