// Package whitelist derives the set of trusted sources that are left out of
// every day log flush: hosts with an accepted login in the system
// authentication logs, the configured DNS resolvers and static entries.
package whitelist

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"ScanSentry/internal/config"
	"ScanSentry/internal/model"

	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"
)

const acceptedMarker = "]: Accepted"

var (
	acceptedFrom = regexp.MustCompile(`from ([\d.]+) port`)
	nameserver   = regexp.MustCompile(`nameserver\s+([\d.]+)`)
)

// Set is the exclusion set applied to one flush.
type Set map[model.Addr]struct{}

// Has reports whether addr is whitelisted. A nil Set has no members.
func (s Set) Has(addr model.Addr) bool {
	_, ok := s[addr]
	return ok
}

// Resolver recomputes the whitelist from its sources on every call to Resolve.
type Resolver struct {
	authLogs   string
	resolvConf string
	static     []model.Addr
	logger     *zap.Logger
}

// NewResolver creates a resolver for the given configuration.
func NewResolver(cfg config.WhitelistConfig, logger *zap.Logger) (*Resolver, error) {
	r := &Resolver{
		resolvConf: cfg.ResolvConf,
		logger:     logger,
	}
	if cfg.SystemLogDirectory != "" && cfg.AuthLogPattern != "" {
		r.authLogs = filepath.Join(cfg.SystemLogDirectory, cfg.AuthLogPattern)
	}
	for _, s := range cfg.Addresses {
		addr, err := model.ParseAddr(s)
		if err != nil {
			return nil, fmt.Errorf("invalid whitelist address: %w", err)
		}
		r.static = append(r.static, addr)
	}
	return r, nil
}

// Resolve builds a fresh whitelist. Unreadable sources are logged and skipped
// so that a flush is never blocked by them.
func (r *Resolver) Resolve() Set {
	set := make(Set)
	for _, addr := range r.static {
		set[addr] = struct{}{}
	}

	if r.authLogs != "" {
		files, err := filepath.Glob(r.authLogs)
		if err != nil {
			r.logger.Warn("Invalid authentication log pattern", zap.String("pattern", r.authLogs), zap.Error(err))
		}
		for _, file := range files {
			if err := scanFile(file, set, acceptedLogin); err != nil {
				r.logger.Warn("Failed to read authentication log", zap.String("file", file), zap.Error(err))
			}
		}
	}

	if r.resolvConf != "" {
		err := scanFile(r.resolvConf, set, resolverAddress)
		if err != nil && !os.IsNotExist(err) {
			r.logger.Warn("Failed to read resolver configuration", zap.String("file", r.resolvConf), zap.Error(err))
		}
	}
	return set
}

func acceptedLogin(line string) string {
	if !strings.Contains(line, acceptedMarker) {
		return ""
	}
	if m := acceptedFrom.FindStringSubmatch(line); m != nil {
		return m[1]
	}
	return ""
}

func resolverAddress(line string) string {
	if m := nameserver.FindStringSubmatch(line); m != nil {
		return m[1]
	}
	return ""
}

// scanFile adds every address extracted by match to set. Rotated logs
// compressed with gzip are read transparently.
func scanFile(path string, set Set, match func(string) string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var src io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return fmt.Errorf("failed to open gzip stream: %w", err)
		}
		defer gz.Close()
		src = gz
	}

	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		s := match(scanner.Text())
		if s == "" {
			continue
		}
		if addr, err := model.ParseAddr(s); err == nil {
			set[addr] = struct{}{}
		}
	}
	return scanner.Err()
}
