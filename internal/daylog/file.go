// Package daylog reads and writes the per-day contact logs and decides when
// the in-memory aggregation is flushed to them.
package daylog

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"ScanSentry/internal/model"
)

// Header is the first line of every day log.
const Header = "proto src_ip dst_ip dst_port first_seen last_seen count"

const (
	dateFormat = "2006-01-02"
	extension  = ".csv"
)

// ErrInvalidDay is returned for day names that are not YYYY-MM-DD dates.
var ErrInvalidDay = errors.New("invalid day")

// Day returns the UTC date of t as used in day log names.
func Day(t time.Time) string {
	return t.UTC().Format(dateFormat)
}

// Filename returns the day log path for the UTC date of t.
func Filename(dir string, t time.Time) string {
	return filepath.Join(dir, Day(t)+extension)
}

// DayPath returns the day log path for a YYYY-MM-DD day name.
func DayPath(dir, day string) (string, error) {
	if _, err := time.Parse(dateFormat, day); err != nil {
		return "", fmt.Errorf("%w '%s'", ErrInvalidDay, day)
	}
	return filepath.Join(dir, day+extension), nil
}

// DayOf returns the day name of a day log path.
func DayOf(path string) string {
	return strings.TrimSuffix(filepath.Base(path), extension)
}

// Prepare creates the log directory if it does not exist yet.
func Prepare(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory '%s': %w", dir, err)
	}
	return nil
}

// Write replaces the file at path with the header followed by rows.
// The content goes to a private temporary file first and is renamed into
// place, so readers never see a partially written log.
func Write(path string, rows []model.Row) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary log: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if err = tmp.Chmod(0600); err != nil {
		return fmt.Errorf("failed to set log permissions: %w", err)
	}

	w := bufio.NewWriter(tmp)
	w.WriteString(Header)
	w.WriteByte('\n')
	for _, r := range rows {
		fmt.Fprintf(w, "%s %s %s %s %d %d %d\n", r.Proto, r.SrcIP, r.DstIP, r.DstPort, r.FirstSeen, r.LastSeen, r.Count)
	}
	if err = w.Flush(); err != nil {
		return fmt.Errorf("failed to write log: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync log: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to close log: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move log into place: %w", err)
	}
	return nil
}

// Read parses a day log. Blank lines are ignored; any other line that does
// not hold exactly seven valid fields is an error.
func Read(path string) ([]model.Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var rows []model.Row
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if lineNo == 1 {
			if line != Header {
				return nil, fmt.Errorf("%s: unexpected header '%s'", path, line)
			}
			continue
		}
		row, err := parseRow(line)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, lineNo, err)
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return rows, nil
}

func parseRow(line string) (model.Row, error) {
	fields := strings.Fields(line)
	if len(fields) != 7 {
		return model.Row{}, fmt.Errorf("expected 7 fields, got %d", len(fields))
	}
	for _, ip := range fields[1:3] {
		if _, err := model.ParseAddr(ip); err != nil {
			return model.Row{}, err
		}
	}
	port, err := model.ParsePort(fields[3])
	if err != nil {
		return model.Row{}, err
	}
	first, err := strconv.ParseInt(fields[4], 10, 64)
	if err != nil {
		return model.Row{}, fmt.Errorf("invalid first_seen: %w", err)
	}
	last, err := strconv.ParseInt(fields[5], 10, 64)
	if err != nil {
		return model.Row{}, fmt.Errorf("invalid last_seen: %w", err)
	}
	count, err := strconv.ParseUint(fields[6], 10, 64)
	if err != nil {
		return model.Row{}, fmt.Errorf("invalid count: %w", err)
	}
	return model.Row{
		Proto:     fields[0],
		SrcIP:     fields[1],
		DstIP:     fields[2],
		DstPort:   port,
		FirstSeen: first,
		LastSeen:  last,
		Count:     count,
	}, nil
}

// ListDays returns the day names of all logs in dir, oldest first.
func ListDays(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list log directory: %w", err)
	}
	var days []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), extension) {
			continue
		}
		day := DayOf(e.Name())
		if _, err := time.Parse(dateFormat, day); err != nil {
			continue
		}
		days = append(days, day)
	}
	sort.Strings(days)
	return days, nil
}
