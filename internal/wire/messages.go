// File: internal/wire/messages.go
// Author: momentics <momentics@gmail.com>

package wire

import "github.com/momentics/fleetlink/api"

// SegmentHeader announces the byte length of the next transfer chunk.
type SegmentHeader struct {
	Length uint64
}

// SegmentAck answers one transfer segment.
type SegmentAck struct {
	Code AckCode
}

// Status is a response carrying only a result code.
type Status struct {
	Code ResultCode
}

type RegisterHostRequest struct {
	ID   api.ID
	Name string
}

type RegisterHostResponse struct {
	Code ResultCode
	ID   api.ID
}

type UploadMapRequest struct {
	HostID    api.ID
	TotalSize uint64
}

type DownloadMapRequest struct {
	HostID api.ID
}

type DownloadMapResponse struct {
	Code      ResultCode
	TotalSize uint64
}

type StartWorldRequest struct {
	Port uint16
}

type StartWorldResponse struct {
	Code    ResultCode
	WorldID api.ID
}

type StopWorldRequest struct {
	WorldID api.ID
}

type UploadFileRequest struct {
	Name     string
	FileSize uint64
}

type DownloadFileRequest struct {
	Name string
}

type DownloadFileResponse struct {
	FileSize uint64
	Code     ResultCode
}

type RegisterControllerRequest struct {
	Name string
}

type RegisterControllerResponse struct {
	Code ResultCode
	ID   api.ID
}

type AttachControllerRequest struct {
	ControllerID api.ID
}

// FetchStateRequest follows the UDP code byte.
type FetchStateRequest struct {
	ID api.ID
}

// UpdateStateRequest follows the UDP code byte.
type UpdateStateRequest struct {
	ID       api.ID
	Rotation api.Rotation
}

func (*SegmentHeader) Size() int           { return 8 }
func (m *SegmentHeader) Encode(e *Encoder) { e.PutU64(m.Length) }
func (m *SegmentHeader) Decode(d *Decoder) { m.Length = d.U64() }

func (*SegmentAck) Size() int           { return 1 }
func (m *SegmentAck) Encode(e *Encoder) { e.PutU8(uint8(m.Code)) }
func (m *SegmentAck) Decode(d *Decoder) { m.Code = AckCode(d.U8()) }

func (*Status) Size() int           { return 1 }
func (m *Status) Encode(e *Encoder) { e.PutU8(uint8(m.Code)) }
func (m *Status) Decode(d *Decoder) { m.Code = ResultCode(d.U8()) }

func (*RegisterHostRequest) Size() int { return 4 + NameLength }
func (m *RegisterHostRequest) Encode(e *Encoder) {
	e.PutU32(uint32(m.ID))
	e.PutFixedString(m.Name, NameLength)
}
func (m *RegisterHostRequest) Decode(d *Decoder) {
	m.ID = api.ID(d.U32())
	m.Name = d.FixedString(NameLength)
}

func (*RegisterHostResponse) Size() int { return 5 }
func (m *RegisterHostResponse) Encode(e *Encoder) {
	e.PutU8(uint8(m.Code))
	e.PutU32(uint32(m.ID))
}
func (m *RegisterHostResponse) Decode(d *Decoder) {
	m.Code = ResultCode(d.U8())
	m.ID = api.ID(d.U32())
}

func (*UploadMapRequest) Size() int { return 12 }
func (m *UploadMapRequest) Encode(e *Encoder) {
	e.PutU32(uint32(m.HostID))
	e.PutU64(m.TotalSize)
}
func (m *UploadMapRequest) Decode(d *Decoder) {
	m.HostID = api.ID(d.U32())
	m.TotalSize = d.U64()
}

func (*DownloadMapRequest) Size() int           { return 4 }
func (m *DownloadMapRequest) Encode(e *Encoder) { e.PutU32(uint32(m.HostID)) }
func (m *DownloadMapRequest) Decode(d *Decoder) { m.HostID = api.ID(d.U32()) }

func (*DownloadMapResponse) Size() int { return 9 }
func (m *DownloadMapResponse) Encode(e *Encoder) {
	e.PutU8(uint8(m.Code))
	e.PutU64(m.TotalSize)
}
func (m *DownloadMapResponse) Decode(d *Decoder) {
	m.Code = ResultCode(d.U8())
	m.TotalSize = d.U64()
}

func (*StartWorldRequest) Size() int           { return 2 }
func (m *StartWorldRequest) Encode(e *Encoder) { e.PutU16(m.Port) }
func (m *StartWorldRequest) Decode(d *Decoder) { m.Port = d.U16() }

func (*StartWorldResponse) Size() int { return 5 }
func (m *StartWorldResponse) Encode(e *Encoder) {
	e.PutU8(uint8(m.Code))
	e.PutU32(uint32(m.WorldID))
}
func (m *StartWorldResponse) Decode(d *Decoder) {
	m.Code = ResultCode(d.U8())
	m.WorldID = api.ID(d.U32())
}

func (*StopWorldRequest) Size() int           { return 4 }
func (m *StopWorldRequest) Encode(e *Encoder) { e.PutU32(uint32(m.WorldID)) }
func (m *StopWorldRequest) Decode(d *Decoder) { m.WorldID = api.ID(d.U32()) }

func (*UploadFileRequest) Size() int { return FileNameLength + 8 }
func (m *UploadFileRequest) Encode(e *Encoder) {
	e.PutFixedString(m.Name, FileNameLength)
	e.PutU64(m.FileSize)
}
func (m *UploadFileRequest) Decode(d *Decoder) {
	m.Name = d.FixedString(FileNameLength)
	m.FileSize = d.U64()
}

func (*DownloadFileRequest) Size() int           { return FileNameLength }
func (m *DownloadFileRequest) Encode(e *Encoder) { e.PutFixedString(m.Name, FileNameLength) }
func (m *DownloadFileRequest) Decode(d *Decoder) { m.Name = d.FixedString(FileNameLength) }

func (*DownloadFileResponse) Size() int { return 9 }
func (m *DownloadFileResponse) Encode(e *Encoder) {
	e.PutU64(m.FileSize)
	e.PutU8(uint8(m.Code))
}
func (m *DownloadFileResponse) Decode(d *Decoder) {
	m.FileSize = d.U64()
	m.Code = ResultCode(d.U8())
}

func (*RegisterControllerRequest) Size() int           { return NameLength }
func (m *RegisterControllerRequest) Encode(e *Encoder) { e.PutFixedString(m.Name, NameLength) }
func (m *RegisterControllerRequest) Decode(d *Decoder) { m.Name = d.FixedString(NameLength) }

func (*RegisterControllerResponse) Size() int { return 5 }
func (m *RegisterControllerResponse) Encode(e *Encoder) {
	e.PutU8(uint8(m.Code))
	e.PutU32(uint32(m.ID))
}
func (m *RegisterControllerResponse) Decode(d *Decoder) {
	m.Code = ResultCode(d.U8())
	m.ID = api.ID(d.U32())
}

func (*AttachControllerRequest) Size() int           { return 4 }
func (m *AttachControllerRequest) Encode(e *Encoder) { e.PutU32(uint32(m.ControllerID)) }
func (m *AttachControllerRequest) Decode(d *Decoder) { m.ControllerID = api.ID(d.U32()) }

func (*FetchStateRequest) Size() int           { return 4 }
func (m *FetchStateRequest) Encode(e *Encoder) { e.PutU32(uint32(m.ID)) }
func (m *FetchStateRequest) Decode(d *Decoder) { m.ID = api.ID(d.U32()) }

func (*UpdateStateRequest) Size() int { return 7 }
func (m *UpdateStateRequest) Encode(e *Encoder) {
	e.PutU32(uint32(m.ID))
	e.PutBytes(m.Rotation[:])
}
func (m *UpdateStateRequest) Decode(d *Decoder) {
	m.ID = api.ID(d.U32())
	d.Bytes(m.Rotation[:])
}

// Request prefixes the encoded m with a TCP request code.
func Request(code RequestCode, m Message) []byte {
	buf := make([]byte, 1, 1+m.Size())
	buf[0] = byte(code)
	return AppendMarshal(buf, m)
}

// Datagram prefixes the encoded m with a UDP code. m may be nil.
func Datagram(code DatagramCode, m Message) []byte {
	if m == nil {
		return []byte{byte(code)}
	}
	buf := make([]byte, 1, 1+m.Size())
	buf[0] = byte(code)
	return AppendMarshal(buf, m)
}
