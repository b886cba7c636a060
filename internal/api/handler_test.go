package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"ScanSentry/internal/daylog"
	"ScanSentry/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var fixture = []model.Row{
	{Proto: "icmp", SrcIP: "198.51.100.9", DstIP: "10.0.0.2", DstPort: model.NoPort, FirstSeen: 10, LastSeen: 10, Count: 1},
	{Proto: "tcp", SrcIP: "192.0.2.1", DstIP: "10.0.0.2", DstPort: 22, FirstSeen: 10, LastSeen: 20, Count: 3},
	{Proto: "tcp", SrcIP: "203.0.113.5", DstIP: "10.0.0.2", DstPort: 443, FirstSeen: 11, LastSeen: 11, Count: 1},
	{Proto: "udp", SrcIP: "203.0.113.5", DstIP: "10.0.0.3", DstPort: 161, FirstSeen: 12, LastSeen: 12, Count: 1},
}

func setup(t *testing.T) *httptest.Server {
	t.Helper()
	dir := t.TempDir()
	path, err := daylog.DayPath(dir, "2026-10-17")
	require.NoError(t, err)
	require.NoError(t, daylog.Write(path, fixture))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "2026-10-16.csv"), []byte("junk\n"), 0600))

	srv := httptest.NewServer(NewRouter(dir, zap.NewNop()))
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestListDays(t *testing.T) {
	srv := setup(t)

	var resp DaysResponse
	assert.Equal(t, http.StatusOK, get(t, srv.URL+"/api/v1/days", &resp))
	assert.Equal(t, []string{"2026-10-16", "2026-10-17"}, resp.Days)
}

func TestListDays_Empty(t *testing.T) {
	srv := httptest.NewServer(NewRouter(t.TempDir(), zap.NewNop()))
	defer srv.Close()

	var resp map[string]any
	assert.Equal(t, http.StatusOK, get(t, srv.URL+"/api/v1/days", &resp))
	assert.Equal(t, []any{}, resp["days"])
}

func TestDay(t *testing.T) {
	srv := setup(t)

	cases := []struct {
		query string
		want  []model.Row
	}{
		{"", fixture},
		{"?proto=tcp", fixture[1:3]},
		{"?proto=tcp&dst_port=22", fixture[1:2]},
		{"?src_ip=203.0.113.5", fixture[2:4]},
		{"?dst_ip=10.0.0.3", fixture[3:4]},
		{"?dst_port=-", fixture[0:1]},
		{"?proto=sctp", []model.Row{}},
	}
	for _, tc := range cases {
		t.Run(tc.query, func(t *testing.T) {
			var resp DayResponse
			assert.Equal(t, http.StatusOK, get(t, srv.URL+"/api/v1/days/2026-10-17"+tc.query, &resp))
			assert.Equal(t, "2026-10-17", resp.Day)
			assert.Equal(t, tc.want, resp.Rows)
		})
	}
}

func TestDay_PortlessRowsEncodeNull(t *testing.T) {
	srv := setup(t)

	var resp struct {
		Rows []map[string]any `json:"rows"`
	}
	require.Equal(t, http.StatusOK, get(t, srv.URL+"/api/v1/days/2026-10-17?proto=icmp", &resp))
	require.Len(t, resp.Rows, 1)
	assert.Nil(t, resp.Rows[0]["dst_port"])
}

func TestDay_Errors(t *testing.T) {
	srv := setup(t)

	cases := map[string]int{
		"/api/v1/days/2026-10-18":                 http.StatusNotFound,
		"/api/v1/days/yesterday":                  http.StatusBadRequest,
		"/api/v1/days/2026-10-17?dst_port=http":   http.StatusBadRequest,
		"/api/v1/days/2026-10-17?src_ip=10.0.0.x": http.StatusBadRequest,
		"/api/v1/days/2026-10-16":                 http.StatusInternalServerError,
	}
	for path, status := range cases {
		t.Run(path, func(t *testing.T) {
			var resp errorResponse
			assert.Equal(t, status, get(t, srv.URL+path, &resp))
			assert.NotEmpty(t, resp.Error)
		})
	}
}
