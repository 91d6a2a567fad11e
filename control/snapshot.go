// control/snapshot.go
// Author: momentics <momentics@gmail.com>
//
// Periodic tab-separated counter snapshots appended to the error and counter files.

package control

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/momentics/fleetlink/internal/logging"
)

var counterColumns = []string{"TcpActiveConnections", "TcpTotalConnections"}

// SnapshotWriter appends one line per interval to each stream:
//
//	<unix seconds>\t<v1>\t<v2>...
//
// Each stream starts with a session header and a "#Timestamp" column line.
type SnapshotWriter struct {
	metrics  *Metrics
	errors   io.Writer
	counters io.Writer
	now      func() time.Time
	logger   *zap.Logger
}

// NewSnapshotWriter writes to the given streams; either may be nil.
func NewSnapshotWriter(m *Metrics, errors, counters io.Writer, logger *zap.Logger) *SnapshotWriter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SnapshotWriter{metrics: m, errors: errors, counters: counters, now: time.Now, logger: logger}
}

// OpenSnapshotFiles opens both streams in append mode.
func OpenSnapshotFiles(errorPath, counterPath string) (errs, counters *os.File, release func(), err error) {
	errs, err = logging.OpenAppend(errorPath)
	if err != nil {
		return nil, nil, nil, err
	}
	counters, err = logging.OpenAppend(counterPath)
	if err != nil {
		_ = errs.Close()
		return nil, nil, nil, err
	}
	return errs, counters, func() {
		_ = errs.Close()
		_ = counters.Close()
	}, nil
}

// WriteHeaders writes the column lines.
func (w *SnapshotWriter) WriteHeaders() error {
	names := make([]string, 0, errorKinds)
	for _, k := range ErrorKinds() {
		names = append(names, k.String())
	}
	if err := writeLine(w.errors, "#Timestamp", names); err != nil {
		return err
	}
	return writeLine(w.counters, "#Timestamp", counterColumns)
}

// WriteOnce appends the current values.
func (w *SnapshotWriter) WriteOnce() error {
	s, err := w.metrics.Snapshot()
	if err != nil {
		return err
	}
	ts := strconv.FormatInt(w.now().Unix(), 10)

	values := make([]string, 0, errorKinds)
	for _, v := range s.Errors {
		values = append(values, strconv.FormatUint(v, 10))
	}
	if err := writeLine(w.errors, ts, values); err != nil {
		return err
	}
	return writeLine(w.counters, ts, []string{
		strconv.FormatUint(s.ActiveConnections, 10),
		strconv.FormatUint(s.TotalConnections, 10),
	})
}

// Run writes headers, then one snapshot per interval until ctx is done, and a
// final snapshot on the way out. A zero interval only writes the final one.
func (w *SnapshotWriter) Run(ctx context.Context, interval time.Duration) error {
	if err := w.WriteHeaders(); err != nil {
		return err
	}
	var tick <-chan time.Time
	if interval > 0 {
		t := time.NewTicker(interval)
		defer t.Stop()
		tick = t.C
	}
	for {
		select {
		case <-ctx.Done():
			return w.WriteOnce()
		case <-tick:
			if err := w.WriteOnce(); err != nil {
				w.logger.Warn("snapshot write failed", zap.Error(err))
			}
		}
	}
}

func writeLine(out io.Writer, first string, rest []string) error {
	if out == nil {
		return nil
	}
	if _, err := fmt.Fprintf(out, "%s\t%s\n", first, strings.Join(rest, "\t")); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}
