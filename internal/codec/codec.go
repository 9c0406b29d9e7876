// Package codec owns CBOR payload encode/decode for SMP messages.
//
// Ownership boundary:
// - deterministic map encoding (stable bytes for identical input)
// - decode into string-keyed maps with normalized value types
package codec

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

var (
	ErrNotMap = errors.New("codec: payload is not a map")
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	// Core deterministic encoding: sorted keys, shortest-form integers.
	// Identical input maps must always produce identical bytes so that a
	// retransmitted packet is byte-identical to the original.
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("codec: enc mode: %v", err))
	}
	decMode, err = cbor.DecOptions{
		IntDec: cbor.IntDecConvertNone,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("codec: dec mode: %v", err))
	}
}

// Encode serializes a string-keyed payload map to canonical CBOR bytes.
func Encode(payload map[string]any) ([]byte, error) {
	if payload == nil {
		payload = map[string]any{}
	}
	return encMode.Marshal(payload)
}

// Decode parses CBOR bytes into a string-keyed payload map.
func Decode(data []byte) (map[string]any, error) {
	var raw any
	if err := decMode.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("codec: decode: %w", err)
	}
	out, err := normalizeMap(raw)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func normalizeMap(raw any) (map[string]any, error) {
	switch m := raw.(type) {
	case map[string]any:
		for k, v := range m {
			nv, err := normalizeValue(v)
			if err != nil {
				return nil, err
			}
			m[k] = nv
		}
		return m, nil
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, v := range m {
			ks, ok := k.(string)
			if !ok {
				return nil, fmt.Errorf("codec: non-string map key %v", k)
			}
			nv, err := normalizeValue(v)
			if err != nil {
				return nil, err
			}
			out[ks] = nv
		}
		return out, nil
	default:
		return nil, ErrNotMap
	}
}

func normalizeValue(v any) (any, error) {
	switch vv := v.(type) {
	case map[string]any, map[any]any:
		return normalizeMap(vv)
	case []any:
		for i, e := range vv {
			ne, err := normalizeValue(e)
			if err != nil {
				return nil, err
			}
			vv[i] = ne
		}
		return vv, nil
	default:
		return v, nil
	}
}

// Uint reads a CBOR-decoded numeric value as uint64.
func Uint(v any) (uint64, bool) {
	switch n := v.(type) {
	case uint64:
		return n, true
	case int64:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	default:
		return 0, false
	}
}

// Str reads a CBOR-decoded value as a string.
func Str(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

// Bytes reads a CBOR-decoded value as a byte string.
func Bytes(v any) ([]byte, bool) {
	b, ok := v.([]byte)
	return b, ok
}

// Map reads a CBOR-decoded value as a nested string-keyed map.
func Map(v any) (map[string]any, bool) {
	m, err := normalizeMap(v)
	if err != nil {
		return nil, false
	}
	return m, true
}
