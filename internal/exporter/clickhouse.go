// Package exporter forwards flushed day log rows to external sinks.
package exporter

import (
	"context"
	"fmt"
	"time"

	"ScanSentry/internal/config"
	"ScanSentry/internal/model"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"
)

// Every flush resends the whole day, so rows are versioned by flush time and
// collapsed per contact.
const createTableStatement = `
CREATE TABLE IF NOT EXISTS sensor_contacts (
    Day         Date,
    FlushedAt   DateTime,
    Proto       LowCardinality(String),
    SrcIP       String,
    DstIP       String,
    DstPort     Int32,
    FirstSeen   DateTime,
    LastSeen    DateTime,
    Count       UInt64
) ENGINE = ReplacingMergeTree(FlushedAt)
PARTITION BY toYYYYMM(Day)
ORDER BY (Day, Proto, DstIP, DstPort, SrcIP);
`

const insertStatement = "INSERT INTO sensor_contacts"

const dayFormat = "2006-01-02"

// ClickHouseWriter inserts flushed rows into the sensor_contacts table.
type ClickHouseWriter struct {
	conn    driver.Conn
	timeout time.Duration
	logger  *zap.Logger
	now     func() time.Time
}

// NewClickHouseWriter connects to ClickHouse and ensures the table exists.
func NewClickHouseWriter(cfg config.ClickHouseConfig, logger *zap.Logger) (*ClickHouseWriter, error) {
	conn, err := connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}

	if err := conn.Exec(context.Background(), createTableStatement); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}
	logger.Info("Connected to ClickHouse and ensured table exists",
		zap.String("host", cfg.Host), zap.Int("port", cfg.Port), zap.String("database", cfg.Database))

	return &ClickHouseWriter{conn: conn, timeout: 10 * time.Second, logger: logger, now: time.Now}, nil
}

func connect(cfg config.ClickHouseConfig) (driver.Conn, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}
	return conn, nil
}

func (w *ClickHouseWriter) Name() string { return "clickhouse" }

// Export inserts the rows of one flush as a single batch.
func (w *ClickHouseWriter) Export(day string, rows []model.Row) error {
	if len(rows) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	batch, err := w.conn.PrepareBatch(ctx, insertStatement)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	flushedAt := w.now().UTC()
	for _, row := range rows {
		values, err := contactValues(day, flushedAt, row)
		if err != nil {
			batch.Abort()
			return err
		}
		if err := batch.Append(values...); err != nil {
			batch.Abort()
			return fmt.Errorf("failed to append row to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}
	w.logger.Debug("Wrote rows to ClickHouse", zap.String("day", day), zap.Int("rows", len(rows)))
	return nil
}

// contactValues returns the column values of one sensor_contacts row.
func contactValues(day string, flushedAt time.Time, row model.Row) ([]any, error) {
	d, err := time.Parse(dayFormat, day)
	if err != nil {
		return nil, fmt.Errorf("invalid day '%s': %w", day, err)
	}
	return []any{
		d,
		flushedAt,
		row.Proto,
		row.SrcIP,
		row.DstIP,
		int32(row.DstPort),
		time.Unix(row.FirstSeen, 0).UTC(),
		time.Unix(row.LastSeen, 0).UTC(),
		row.Count,
	}, nil
}

func (w *ClickHouseWriter) Close() {
	if err := w.conn.Close(); err != nil {
		w.logger.Warn("Failed to close ClickHouse connection", zap.Error(err))
	}
}
