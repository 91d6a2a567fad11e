// File: internal/wire/codes.go
// Author: momentics <momentics@gmail.com>

package wire

import "fmt"

// RequestCode is the leading byte of every TCP request.
type RequestCode uint8

const (
	Heartbeat          RequestCode = 0x00
	RegisterHost       RequestCode = 0x01
	UploadMap          RequestCode = 0x02
	DownloadMap        RequestCode = 0x03
	StartWorld         RequestCode = 0x04
	UploadFile         RequestCode = 0x05
	DownloadFile       RequestCode = 0x06
	Echo               RequestCode = 0x07
	RegisterController RequestCode = 0x08
	AttachController   RequestCode = 0x09
	StopWorld          RequestCode = 0x0A
)

var requestNames = map[RequestCode]string{
	Heartbeat:          "heartbeat",
	RegisterHost:       "register-host",
	UploadMap:          "upload-map",
	DownloadMap:        "download-map",
	StartWorld:         "start-world",
	UploadFile:         "upload-file",
	DownloadFile:       "download-file",
	Echo:               "echo",
	RegisterController: "register-controller",
	AttachController:   "attach-controller",
	StopWorld:          "stop-world",
}

func (c RequestCode) String() string {
	if n, ok := requestNames[c]; ok {
		return n
	}
	return fmt.Sprintf("unknown(0x%02x)", uint8(c))
}

// DatagramCode is the leading byte of every UDP datagram.
type DatagramCode uint8

const (
	UDPEcho        DatagramCode = 0x01
	UDPFetchState  DatagramCode = 0x02
	UDPUpdateState DatagramCode = 0x03

	UDPEchoResponse       DatagramCode = 0x81
	UDPFetchStateResponse DatagramCode = 0x82
)

func (c DatagramCode) String() string {
	switch c {
	case UDPEcho:
		return "echo"
	case UDPFetchState:
		return "fetch-state"
	case UDPUpdateState:
		return "update-state"
	case UDPEchoResponse:
		return "echo-response"
	case UDPFetchStateResponse:
		return "fetch-state-response"
	default:
		return fmt.Sprintf("unknown(0x%02x)", uint8(c))
	}
}

// ResultCode is the status byte of a TCP response.
type ResultCode uint8

// Shared Failure/Success pair used by RegisterHost, StartWorld, StopWorld and AttachController.
const (
	Failure ResultCode = 0
	Success ResultCode = 1
)

// UploadMap / DownloadMap.
const (
	MapDenyAccess  ResultCode = 0
	MapInvalidSize ResultCode = 1
	MapAccept      ResultCode = 2
)

// UploadFile.
const (
	FileInvalidSize ResultCode = 1
	FileInvalidName ResultCode = 2
	FileAccept      ResultCode = 3
)

// DownloadFile.
const (
	FileNotFound       ResultCode = 1
	FileDownloadAccept ResultCode = 2
)

// RegisterController.
const (
	ControllerAccepted ResultCode = 0
	ControllerInUse    ResultCode = 1
	ControllerInvalid  ResultCode = 2
)

// AckCode closes every transfer segment.
type AckCode uint8

const (
	AckError    AckCode = 0
	AckContinue AckCode = 1
	AckFinished AckCode = 2
)

func (a AckCode) String() string {
	switch a {
	case AckError:
		return "error"
	case AckContinue:
		return "continue"
	case AckFinished:
		return "finished"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(a))
	}
}

// Field widths.
const (
	NameLength     = 32
	FileNameLength = 128
	// MaxEchoLength bounds a TCP echo message, terminator excluded.
	MaxEchoLength = 1024
)
