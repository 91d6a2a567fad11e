package wire_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/fleetlink/api"
	"github.com/momentics/fleetlink/internal/wire"
)

func TestLayoutIsPackedLittleEndian(t *testing.T) {
	b := wire.Marshal(&wire.UploadMapRequest{HostID: 0x01020304, TotalSize: 0x0a})
	require.Len(t, b, 12)
	assert.Equal(t, []byte{0x04, 0x03, 0x02, 0x01, 0x0a, 0, 0, 0, 0, 0, 0, 0}, b)

	b = wire.Marshal(&wire.DownloadFileResponse{FileSize: 1, Code: wire.FileDownloadAccept})
	assert.Equal(t, []byte{1, 0, 0, 0, 0, 0, 0, 0, 2}, b)
}

func TestFixedStringTruncatesAndTerminates(t *testing.T) {
	long := make([]byte, 40)
	for i := range long {
		long[i] = 'a'
	}
	b := wire.Marshal(&wire.RegisterHostRequest{ID: 7, Name: string(long)})
	require.Len(t, b, 4+wire.NameLength)
	assert.Equal(t, byte(0), b[len(b)-1])

	var got wire.RegisterHostRequest
	require.NoError(t, wire.Unmarshal(b, &got))
	assert.Equal(t, api.ID(7), got.ID)
	assert.Len(t, got.Name, wire.NameLength-1)
}

func TestShortBufferIsReported(t *testing.T) {
	var hdr wire.SegmentHeader
	err := wire.Unmarshal([]byte{1, 2, 3}, &hdr)
	assert.ErrorIs(t, err, wire.ErrShortBuffer)
}

func TestRequestFraming(t *testing.T) {
	b := wire.Request(wire.StartWorld, &wire.StartWorldRequest{Port: 0x1f90})
	assert.Equal(t, []byte{0x04, 0x90, 0x1f}, b)

	d := wire.Datagram(wire.UDPFetchStateResponse, nil)
	assert.Equal(t, []byte{0x82}, d)
}

func TestRequestCodeNames(t *testing.T) {
	assert.Equal(t, "upload-map", wire.UploadMap.String())
	assert.Equal(t, "stop-world", wire.StopWorld.String())
	assert.Equal(t, "unknown(0x7f)", wire.RequestCode(0x7f).String())
}
