// File: internal/auth/allowlist.go
// Package auth authorizes TCP peers against an IP allow-list file.
// Author: momentics <momentics@gmail.com>
//
// The file holds one CIDR prefix per line ("10.0.0.0/8"). Blank lines, lines
// starting with '#' and malformed lines are skipped. The list is swapped
// atomically on reload; Allowed never blocks on the file.

package auth

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// AllowList is safe for concurrent use. A disabled list allows every peer.
type AllowList struct {
	path     string
	enabled  bool
	prefixes atomic.Pointer[[]netip.Prefix]
	modTime  atomic.Int64
	logger   *zap.Logger
}

// Disabled returns a list that authorizes everyone.
func Disabled() *AllowList {
	return &AllowList{logger: zap.NewNop()}
}

// Load creates path if missing and reads it.
func Load(path string, logger *zap.Logger) (*AllowList, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create allow-list dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open allow-list: %w", err)
	}
	_ = f.Close()

	a := &AllowList{path: path, enabled: true, logger: logger}
	if _, err := a.Reload(); err != nil {
		return nil, err
	}
	return a, nil
}

// Parse reads prefixes from r, skipping lines it cannot parse. It returns the
// number of skipped lines alongside the prefixes.
func Parse(r io.Reader) ([]netip.Prefix, int, error) {
	var (
		out     []netip.Prefix
		skipped int
	)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		p, err := netip.ParsePrefix(line)
		if err != nil {
			skipped++
			continue
		}
		out = append(out, p.Masked())
	}
	return out, skipped, sc.Err()
}

// Reload re-reads the file when its modification time changed. It reports
// whether the list was replaced.
func (a *AllowList) Reload() (bool, error) {
	if !a.enabled {
		return false, nil
	}
	fi, err := os.Stat(a.path)
	if err != nil {
		return false, fmt.Errorf("stat allow-list: %w", err)
	}
	mod := fi.ModTime().UnixNano()
	if a.prefixes.Load() != nil && a.modTime.Load() == mod {
		return false, nil
	}

	f, err := os.Open(a.path)
	if err != nil {
		return false, fmt.Errorf("open allow-list: %w", err)
	}
	defer f.Close()
	prefixes, skipped, err := Parse(f)
	if err != nil {
		return false, fmt.Errorf("read allow-list: %w", err)
	}
	a.prefixes.Store(&prefixes)
	a.modTime.Store(mod)
	a.logger.Info("allow-list loaded", zap.String("path", a.path),
		zap.Int("prefixes", len(prefixes)), zap.Int("skipped", skipped))
	return true, nil
}

// Allowed reports whether addr may connect.
func (a *AllowList) Allowed(addr netip.Addr) bool {
	if !a.enabled {
		return true
	}
	p := a.prefixes.Load()
	if p == nil {
		return false
	}
	addr = addr.Unmap()
	for _, prefix := range *p {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// Len returns the number of loaded prefixes.
func (a *AllowList) Len() int {
	if p := a.prefixes.Load(); p != nil {
		return len(*p)
	}
	return 0
}

// Watch polls the file every interval until ctx is done.
func (a *AllowList) Watch(ctx context.Context, interval time.Duration) error {
	if !a.enabled || interval <= 0 {
		<-ctx.Done()
		return nil
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if _, err := a.Reload(); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Warn("allow-list reload failed", zap.Error(err))
			}
		}
	}
}
