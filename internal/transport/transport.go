// Package transport owns the byte-transport contract the SMP core
// sends through.
//
// Ownership boundary:
// - scheme -> framing mode / default MTU selection
// - MTU guard shared by concrete transports
// - asynchronous send contract (exactly-once completion)
package transport

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/danmuck/smpctl/internal/smp"
)

const (
	MTUMin = 73
	MTUMax = 1024
)

var (
	ErrMTURange     = errors.New("transport: mtu out of range")
	ErrMTUUnchanged = errors.New("transport: mtu unchanged")
	ErrTimeout      = errors.New("transport: request timed out")
	ErrClosed       = errors.New("transport: closed")
)

// Scheme identifies a transport family. The scheme selects the framing
// mode and the default MTU.
type Scheme string

const (
	SchemeUDP  Scheme = "udp"
	SchemeBLE  Scheme = "ble"
	SchemeCoAP Scheme = "coap"
	SchemeLoop Scheme = "loop"
)

func (s Scheme) Framing() smp.Framing {
	if s == SchemeCoAP {
		return smp.FramingResource
	}
	return smp.FramingDatagram
}

func (s Scheme) DefaultMTU() int {
	switch s {
	case SchemeBLE:
		// Short-range radio links discount 3 bytes of link overhead
		// from the 127-byte link MTU.
		return 124
	case SchemeCoAP:
		return 512
	default:
		return 1024
	}
}

// Transport carries SMP frames to one device. Send must invoke
// complete exactly once, on any goroutine, with either a decoded
// response or an error.
type Transport interface {
	Scheme() Scheme
	Framing() smp.Framing
	MTU() int
	SetMTU(n int) error
	Send(frame []byte, timeout time.Duration, complete func(rsp *smp.Response, err error))
	Close() error
}

// MTU is the guarded maximum-transmission-unit state embedded by
// concrete transports. Out-of-range values and writes of the current
// value are both rejected, the latter so callers can tell a redundant
// reconfiguration from an effective one.
type MTU struct {
	mu sync.RWMutex
	n  int
}

func NewMTU(initial int) *MTU {
	return &MTU{n: initial}
}

func (m *MTU) Get() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.n
}

func (m *MTU) Set(n int) error {
	if n < MTUMin || n > MTUMax {
		return fmt.Errorf("%w: %d (valid %d-%d)", ErrMTURange, n, MTUMin, MTUMax)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if n == m.n {
		return fmt.Errorf("%w: %d", ErrMTUUnchanged, n)
	}
	m.n = n
	return nil
}
