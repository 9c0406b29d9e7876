package smp

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// HeaderLen is the fixed wire header size in bytes.
const HeaderLen = 9

// Version identifies an SMP protocol revision.
type Version uint8

const (
	V1 Version = 0
	V2 Version = 1

	// VersionNewest is the default for a manager that has not yet
	// observed a response.
	VersionNewest = V2
)

// Operation is the SMP operation code.
type Operation uint8

const (
	OpRead          Operation = 0
	OpReadResponse  Operation = 1
	OpWrite         Operation = 2
	OpWriteResponse Operation = 3
)

var (
	ErrShortHeader      = errors.New("smp: short fixed header")
	ErrInvalidOperation = errors.New("smp: invalid operation code")
	ErrPayloadTooLarge  = errors.New("smp: payload too large")
)

// Header is the fixed SMP wire header.
//
// Layout (big-endian): version, operation, flags, payload length (2),
// command group (2), sequence number, command id.
type Header struct {
	Version    Version
	Op         Operation
	Flags      uint8
	PayloadLen uint16
	Group      Group
	Seq        uint8
	ID         uint8
}

// Response returns the response operation matching a request operation.
func (op Operation) Response() Operation {
	switch op {
	case OpRead:
		return OpReadResponse
	case OpWrite:
		return OpWriteResponse
	default:
		return op
	}
}

// IsResponse reports whether op is a response operation code.
func (op Operation) IsResponse() bool {
	return op == OpReadResponse || op == OpWriteResponse
}

func (op Operation) String() string {
	switch op {
	case OpRead:
		return "read"
	case OpReadResponse:
		return "read-rsp"
	case OpWrite:
		return "write"
	case OpWriteResponse:
		return "write-rsp"
	default:
		return fmt.Sprintf("op(%d)", uint8(op))
	}
}

func EncodeHeader(h Header) []byte {
	buf := make([]byte, HeaderLen)
	buf[0] = uint8(h.Version)
	buf[1] = uint8(h.Op)
	buf[2] = h.Flags
	binary.BigEndian.PutUint16(buf[3:5], h.PayloadLen)
	binary.BigEndian.PutUint16(buf[5:7], uint16(h.Group))
	buf[7] = h.Seq
	buf[8] = h.ID
	return buf
}

func DecodeHeader(b []byte) (Header, error) {
	if len(b) < HeaderLen {
		return Header{}, ErrShortHeader
	}
	op := Operation(b[1])
	if op > OpWriteResponse {
		return Header{}, ErrInvalidOperation
	}
	return Header{
		Version:    Version(b[0]),
		Op:         op,
		Flags:      b[2],
		PayloadLen: binary.BigEndian.Uint16(b[3:5]),
		Group:      Group(binary.BigEndian.Uint16(b[5:7])),
		Seq:        b[7],
		ID:         b[8],
	}, nil
}
