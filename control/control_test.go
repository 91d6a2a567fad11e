package control_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/fleetlink/control"
)

func TestNilMetricsDiscardUpdates(t *testing.T) {
	var m *control.Metrics
	m.Error(control.TCPTimeout)
	m.ConnOpened()
	m.ConnClosed()
	m.Datagram("echo")
	m.Transfer("send", 10, nil)
	s, err := m.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, control.Snapshot{}, s)
}

func TestSnapshotReadsCounters(t *testing.T) {
	m, err := control.NewMetrics()
	require.NoError(t, err)

	m.Error(control.TCPTimeout)
	m.Error(control.TCPTimeout)
	m.Error(control.UDPUnknownCode)
	m.ConnOpened()
	m.ConnOpened()
	m.ConnClosed()

	s, err := m.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), s.Errors[control.TCPTimeout])
	assert.Equal(t, uint64(1), s.Errors[control.UDPUnknownCode])
	assert.Equal(t, uint64(0), s.Errors[control.FileSystemError])
	assert.Equal(t, uint64(1), s.ActiveConnections)
	assert.Equal(t, uint64(2), s.TotalConnections)
}

func TestSnapshotWriterFormat(t *testing.T) {
	m, err := control.NewMetrics()
	require.NoError(t, err)
	m.Error(control.UnknownError)
	m.ConnOpened()

	var errs, counters bytes.Buffer
	w := control.NewSnapshotWriter(m, &errs, &counters, nil)
	require.NoError(t, w.WriteHeaders())
	require.NoError(t, w.WriteOnce())

	errLines := strings.Split(strings.TrimSpace(errs.String()), "\n")
	require.Len(t, errLines, 2)
	assert.True(t, strings.HasPrefix(errLines[0], "#Timestamp\tUnknownError\tTcpTimeout\t"))
	fields := strings.Split(errLines[1], "\t")
	require.Len(t, fields, 1+len(control.ErrorKinds()))
	assert.Equal(t, "1", fields[1])

	counterLines := strings.Split(strings.TrimSpace(counters.String()), "\n")
	require.Len(t, counterLines, 2)
	assert.Equal(t, "#Timestamp\tTcpActiveConnections\tTcpTotalConnections", counterLines[0])
	assert.True(t, strings.HasSuffix(counterLines[1], "\t1\t1"))
}

func TestSnapshotWriterRunFlushesOnCancel(t *testing.T) {
	m, err := control.NewMetrics()
	require.NoError(t, err)
	var counters bytes.Buffer
	w := control.NewSnapshotWriter(m, nil, &counters, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, w.Run(ctx, 0))
	assert.Equal(t, 2, strings.Count(counters.String(), "\n"))
}

func TestReloaderJoinsHookErrors(t *testing.T) {
	var r control.Reloader
	var calls []string
	boom := errors.New("boom")
	r.Register("a", func() error { calls = append(calls, "a"); return nil })
	r.Register("b", func() error { calls = append(calls, "b"); return boom })

	err := r.Trigger()
	assert.Equal(t, []string{"a", "b"}, calls)
	assert.ErrorIs(t, err, boom)
	var he *control.HookError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, "b", he.Name)
}

func TestHandlerServesMetricsAndProbes(t *testing.T) {
	m, err := control.NewMetrics()
	require.NoError(t, err)
	m.ConnOpened()
	probes := control.NewDebugProbes()
	probes.RegisterProbe("answer", func() any { return 42 })
	control.RegisterPlatformProbes(probes)
	assert.Contains(t, probes.Names(), "platform.cpus")

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- control.Serve(ctx, ln, control.Handler(m, probes), nil) }()

	get := func(path string) string {
		resp, err := http.Get("http://" + ln.Addr().String() + path)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return string(body)
	}
	assert.Contains(t, get("/metrics"), "fleetlink_tcp_connections_total 1")
	assert.Contains(t, get("/debug/state"), `"answer":42`)

	cancel()
	assert.NoError(t, <-done)
}
