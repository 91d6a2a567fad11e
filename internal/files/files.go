// File: internal/files/files.go
// Package files manages the working directory: per-host map files and named
// uploads.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Layout under the working directory:
//
//	maps/map_<hostId>
//	files/<name>
//
// Each upload is written to its own "<target>.<random>.part" file and renamed
// over the target on Commit, so readers never observe a partial file and
// concurrent uploads of one target never share bytes. The last Commit wins. Every blocking call should
// go through Strand(); the reactor never touches the disk.

package files

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/momentics/fleetlink/api"
	"github.com/momentics/fleetlink/internal/concurrency"
	"github.com/momentics/fleetlink/internal/wire"
)

const (
	mapsDir    = "maps"
	filesDir   = "files"
	partSuffix = ".part"
)

var ErrInvalidName = errors.New("invalid file name")

// Manager owns the working directory.
type Manager struct {
	root   string
	strand *concurrency.Strand
	logger *zap.Logger
}

// New prepares root, creating the maps and files directories.
func New(root string, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	for _, dir := range []string{mapsDir, filesDir} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			return nil, api.StorageError("files", "init", err)
		}
	}
	return &Manager{
		root:   root,
		strand: concurrency.NewStrand(nil, logger),
		logger: logger,
	}, nil
}

// Strand is the serialization point for file I/O.
func (m *Manager) Strand() *concurrency.Strand { return m.strand }

// Root returns the working directory.
func (m *Manager) Root() string { return m.root }

// MapPath returns the path of the map owned by host.
func (m *Manager) MapPath(host api.ID) string {
	return filepath.Join(m.root, mapsDir, "map_"+strconv.FormatUint(uint64(host), 10))
}

// FilePath validates name and returns its path under files/.
func (m *Manager) FilePath(name string) (string, error) {
	if !ValidFileName(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return filepath.Join(m.root, filesDir, name), nil
}

// ValidFileName accepts a single printable path element that fits the wire
// field and cannot collide with an in-progress upload.
func ValidFileName(name string) bool {
	if name == "" || name == "." || name == ".." || len(name) >= wire.FileNameLength {
		return false
	}
	if strings.ContainsAny(name, `/\`) || strings.HasSuffix(name, partSuffix) {
		return false
	}
	for _, r := range name {
		if !unicode.IsPrint(r) {
			return false
		}
	}
	return true
}

// Source is an open file being sent.
type Source struct {
	*os.File
	size uint64
}

// Size returns the file length at open time.
func (s *Source) Size() uint64 { return s.size }

// Open opens the regular file at path for a transfer.
func Open(path string) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, api.ErrNotFound
		}
		return nil, api.StorageError("files", "open", err)
	}
	fi, err := f.Stat()
	if err != nil || !fi.Mode().IsRegular() {
		_ = f.Close()
		return nil, api.ErrNotFound
	}
	return &Source{File: f, size: uint64(fi.Size())}, nil
}

// OpenMap opens a host's map for sending.
func (m *Manager) OpenMap(host api.ID) (*Source, error) { return Open(m.MapPath(host)) }

// OpenFile opens a named file for sending.
func (m *Manager) OpenFile(name string) (*Source, error) {
	path, err := m.FilePath(name)
	if err != nil {
		return nil, err
	}
	return Open(path)
}

// Upload is a file being received. It is an io.Writer for the transfer
// receiver; Commit publishes it, Abort discards it.
type Upload struct {
	f      *os.File
	target string
	logger *zap.Logger
	closed bool
}

func (m *Manager) create(target string) (*Upload, error) {
	f, err := os.CreateTemp(filepath.Dir(target), filepath.Base(target)+".*"+partSuffix)
	if err != nil {
		return nil, api.StorageError("files", "create", err)
	}
	if err := f.Chmod(0o644); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return nil, api.StorageError("files", "create", err)
	}
	return &Upload{f: f, target: target, logger: m.logger}, nil
}

// CreateMap starts receiving a host's map. The previous map stays readable
// until Commit.
func (m *Manager) CreateMap(host api.ID) (*Upload, error) { return m.create(m.MapPath(host)) }

// CreateFile starts receiving a named file.
func (m *Manager) CreateFile(name string) (*Upload, error) {
	path, err := m.FilePath(name)
	if err != nil {
		return nil, err
	}
	return m.create(path)
}

// Write appends p.
func (u *Upload) Write(p []byte) (int, error) {
	n, err := u.f.Write(p)
	if err != nil {
		return n, api.StorageError("files", "write", err)
	}
	return n, nil
}

// Commit syncs the data and atomically replaces the target.
func (u *Upload) Commit() error {
	if u.closed {
		return api.StorageError("files", "commit", os.ErrClosed)
	}
	u.closed = true
	if err := u.f.Sync(); err != nil {
		_ = u.f.Close()
		_ = os.Remove(u.f.Name())
		return api.StorageError("files", "commit", err)
	}
	if err := u.f.Close(); err != nil {
		_ = os.Remove(u.f.Name())
		return api.StorageError("files", "commit", err)
	}
	if err := os.Rename(u.f.Name(), u.target); err != nil {
		_ = os.Remove(u.f.Name())
		return api.StorageError("files", "commit", err)
	}
	return nil
}

// Abort discards the partial file. It is a no-op after Commit.
func (u *Upload) Abort() {
	if u.closed {
		return
	}
	u.closed = true
	_ = u.f.Close()
	if err := os.Remove(u.f.Name()); err != nil && !errors.Is(err, os.ErrNotExist) {
		u.logger.Warn("failed to remove partial upload", zap.String("path", u.f.Name()), zap.Error(err))
	}
}
