package exporter

import (
	"testing"
	"time"

	"ScanSentry/internal/config"
	"ScanSentry/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestEncodeDecodeRow(t *testing.T) {
	rows := []model.Row{
		{Proto: "tcp", SrcIP: "203.0.113.5", DstIP: "10.0.0.2", DstPort: 22, FirstSeen: 1700000000, LastSeen: 1700000005, Count: 2},
		{Proto: "icmp", SrcIP: "198.51.100.9", DstIP: "10.0.0.2", DstPort: model.NoPort, FirstSeen: 1700000000, LastSeen: 1700000000, Count: 1},
	}
	for _, row := range rows {
		data, err := EncodeRow("2026-10-17", row)
		require.NoError(t, err)

		day, got, err := DecodeRow(data)
		require.NoError(t, err)
		assert.Equal(t, "2026-10-17", day)
		assert.Equal(t, row, got)
	}

	_, _, err := DecodeRow([]byte{0xff, 0xff, 0xff})
	assert.Error(t, err)
}

func TestContactValues(t *testing.T) {
	flushed := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	row := model.Row{Proto: "icmp", SrcIP: "198.51.100.9", DstIP: "10.0.0.2", DstPort: model.NoPort, FirstSeen: 1700000000, LastSeen: 1700000060, Count: 4}

	values, err := contactValues("2026-10-17", flushed, row)
	require.NoError(t, err)
	require.Len(t, values, 9)
	assert.Equal(t, time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC), values[0])
	assert.Equal(t, flushed, values[1])
	assert.Equal(t, int32(-1), values[5])
	assert.Equal(t, time.Unix(1700000060, 0).UTC(), values[7])
	assert.Equal(t, uint64(4), values[8])

	_, err = contactValues("17/10/2026", flushed, row)
	assert.Error(t, err)
}

func TestFromConfig_NothingEnabled(t *testing.T) {
	exporters, err := FromConfig(config.ExportersConfig{}, zap.NewNop())
	require.NoError(t, err)
	assert.Empty(t, exporters)
}

func TestFromConfig_UnreachableNATS(t *testing.T) {
	_, err := FromConfig(config.ExportersConfig{
		NATS: config.NATSConfig{Enabled: true, URL: "nats://127.0.0.1:1", Subject: "x"},
	}, zap.NewNop())
	assert.Error(t, err)
}
