// Package api serves the day logs of a log directory over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"

	"ScanSentry/internal/daylog"
	"ScanSentry/internal/model"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Handler holds the dependencies for API handlers.
type Handler struct {
	logDir string
	logger *zap.Logger
}

// DaysResponse lists the available day logs.
type DaysResponse struct {
	Days []string `json:"days"`
}

// DayResponse holds the rows of one day log.
type DayResponse struct {
	Day  string      `json:"day"`
	Rows []model.Row `json:"rows"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewRouter returns the API routes over logDir.
func NewRouter(logDir string, logger *zap.Logger) *mux.Router {
	h := &Handler{logDir: logDir, logger: logger}
	r := mux.NewRouter()
	r.HandleFunc("/api/v1/days", h.listDaysHandler).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/days/{date}", h.dayHandler).Methods(http.MethodGet)
	return r
}

func (h *Handler) listDaysHandler(w http.ResponseWriter, r *http.Request) {
	days, err := daylog.ListDays(h.logDir)
	if err != nil {
		h.fail(w, http.StatusInternalServerError, err)
		return
	}
	if days == nil {
		days = []string{}
	}
	h.respond(w, http.StatusOK, DaysResponse{Days: days})
}

// dayHandler returns one day's rows, optionally narrowed by the proto,
// src_ip, dst_ip and dst_port query parameters.
func (h *Handler) dayHandler(w http.ResponseWriter, r *http.Request) {
	day := mux.Vars(r)["date"]
	path, err := daylog.DayPath(h.logDir, day)
	if err != nil {
		h.fail(w, http.StatusBadRequest, err)
		return
	}

	match, err := parseFilter(r)
	if err != nil {
		h.fail(w, http.StatusBadRequest, err)
		return
	}

	rows, err := daylog.Read(path)
	if errors.Is(err, os.ErrNotExist) {
		h.fail(w, http.StatusNotFound, fmt.Errorf("no log for %s", day))
		return
	}
	if err != nil {
		h.fail(w, http.StatusInternalServerError, err)
		return
	}

	out := make([]model.Row, 0, len(rows))
	for _, row := range rows {
		if match(row) {
			out = append(out, row)
		}
	}
	h.respond(w, http.StatusOK, DayResponse{Day: day, Rows: out})
}

func parseFilter(r *http.Request) (func(model.Row) bool, error) {
	q := r.URL.Query()
	proto, srcIP, dstIP := q.Get("proto"), q.Get("src_ip"), q.Get("dst_ip")
	for _, ip := range []string{srcIP, dstIP} {
		if ip == "" {
			continue
		}
		if _, err := model.ParseAddr(ip); err != nil {
			return nil, err
		}
	}

	var port *model.Port
	if s := q.Get("dst_port"); s != "" {
		p, err := model.ParsePort(s)
		if err != nil {
			return nil, err
		}
		port = &p
	}

	return func(row model.Row) bool {
		return (proto == "" || row.Proto == proto) &&
			(srcIP == "" || row.SrcIP == srcIP) &&
			(dstIP == "" || row.DstIP == dstIP) &&
			(port == nil || row.DstPort == *port)
	}, nil
}

func (h *Handler) respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Warn("Failed to write response", zap.Error(err))
	}
}

func (h *Handler) fail(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed", zap.Error(err))
	}
	h.respond(w, status, errorResponse{Error: err.Error()})
}
