package smp

import (
	"fmt"

	"github.com/danmuck/smpctl/internal/codec"
)

// ReservedHeaderKey is the payload map key that carries the wire header
// in resource-oriented framing. Callers never supply it; a caller map
// that contains it has the key stripped before encoding.
const ReservedHeaderKey = "_h"

// Framing selects how header and payload bytes are arranged on the wire.
type Framing int

const (
	// FramingDatagram concatenates the raw header bytes and the encoded
	// payload back-to-back.
	FramingDatagram Framing = iota
	// FramingResource embeds the header bytes as an opaque byte string
	// under ReservedHeaderKey inside the payload map, encoded once.
	FramingResource
)

func (f Framing) String() string {
	switch f {
	case FramingDatagram:
		return "datagram"
	case FramingResource:
		return "resource"
	default:
		return fmt.Sprintf("framing(%d)", int(f))
	}
}

// BuildPacket encodes a header and payload map into wire bytes for the
// given framing mode. The header's PayloadLen field is overwritten with
// the encoded payload length, which always excludes ReservedHeaderKey.
//
// The builder is stateless and the payload encoding deterministic, so
// identical inputs always produce identical bytes.
func BuildPacket(f Framing, h Header, payload map[string]any) ([]byte, error) {
	body := make(map[string]any, len(payload))
	for k, v := range payload {
		if k == ReservedHeaderKey {
			continue
		}
		body[k] = v
	}

	enc, err := codec.Encode(body)
	if err != nil {
		return nil, fmt.Errorf("smp: encode payload: %w", err)
	}
	if len(enc) > int(^uint16(0)) {
		return nil, ErrPayloadTooLarge
	}
	h.PayloadLen = uint16(len(enc))
	hdr := EncodeHeader(h)

	switch f {
	case FramingDatagram:
		return append(hdr, enc...), nil
	case FramingResource:
		body[ReservedHeaderKey] = hdr
		out, err := codec.Encode(body)
		if err != nil {
			return nil, fmt.Errorf("smp: encode packet: %w", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("smp: unknown framing mode %d", int(f))
	}
}

// Response is one decoded SMP response.
type Response struct {
	Header  Header
	Payload map[string]any
}

// Rc extracts the response's return code. A payload without an "rc"
// field means success.
func (r *Response) Rc() ReturnCode {
	if r == nil || r.Payload == nil {
		return RcOK
	}
	v, ok := r.Payload["rc"]
	if !ok {
		return RcOK
	}
	n, ok := codec.Uint(v)
	if !ok {
		return RcOK
	}
	return ReturnCode(n)
}

// ParseResponse decodes wire bytes into a Response for the given
// framing mode. The reserved header key is removed from the payload map
// in resource-oriented framing.
func ParseResponse(f Framing, data []byte) (*Response, error) {
	switch f {
	case FramingDatagram:
		h, err := DecodeHeader(data)
		if err != nil {
			return nil, err
		}
		payload, err := codec.Decode(data[HeaderLen:])
		if err != nil {
			return nil, err
		}
		return &Response{Header: h, Payload: payload}, nil
	case FramingResource:
		payload, err := codec.Decode(data)
		if err != nil {
			return nil, err
		}
		raw, ok := codec.Bytes(payload[ReservedHeaderKey])
		if !ok {
			return nil, ErrShortHeader
		}
		h, err := DecodeHeader(raw)
		if err != nil {
			return nil, err
		}
		delete(payload, ReservedHeaderKey)
		return &Response{Header: h, Payload: payload}, nil
	default:
		return nil, fmt.Errorf("smp: unknown framing mode %d", int(f))
	}
}
