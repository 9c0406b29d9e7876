// Package loopback implements an in-process SMP transport backed by a
// caller-supplied handler. It stands in for a real device during
// integration tests and CLI dry runs; the Delay hook makes transport
// reordering reproducible.
package loopback

import (
	"sync"
	"time"

	"github.com/danmuck/smpctl/internal/smp"
	"github.com/danmuck/smpctl/internal/transport"
)

// Handler computes a device reply for one decoded request. Returning
// an error fails the request as a transport failure.
type Handler func(h smp.Header, payload map[string]any) (map[string]any, error)

// Conn is an in-process transport. Each Send is served on its own
// goroutine, so tests can force arbitrary completion permutations via
// Delay.
type Conn struct {
	scheme  transport.Scheme
	mtu     *transport.MTU
	handler Handler

	mu    sync.Mutex
	sends int

	// Delay returns how long to hold a reply back, given the zero-based
	// arrival index of the send and its sequence number. Evaluated
	// synchronously inside Send. Nil means no added latency.
	Delay func(index int, seq uint8) time.Duration
}

func New(scheme transport.Scheme, handler Handler) *Conn {
	return &Conn{
		scheme:  scheme,
		mtu:     transport.NewMTU(scheme.DefaultMTU()),
		handler: handler,
	}
}

func (c *Conn) Scheme() transport.Scheme { return c.scheme }
func (c *Conn) Framing() smp.Framing     { return c.scheme.Framing() }
func (c *Conn) MTU() int                 { return c.mtu.Get() }
func (c *Conn) SetMTU(n int) error       { return c.mtu.Set(n) }
func (c *Conn) Close() error             { return nil }

func (c *Conn) Send(frame []byte, timeout time.Duration, complete func(rsp *smp.Response, err error)) {
	// Requests and responses share the header layout, so the request
	// parses with the response parser.
	req, err := smp.ParseResponse(c.Framing(), frame)
	if err != nil {
		go complete(nil, err)
		return
	}

	c.mu.Lock()
	index := c.sends
	c.sends++
	c.mu.Unlock()

	var delay time.Duration
	if c.Delay != nil {
		delay = c.Delay(index, req.Header.Seq)
	}

	go func() {
		if delay > 0 {
			time.Sleep(delay)
		}
		reply, err := c.handler(req.Header, req.Payload)
		if err != nil {
			complete(nil, err)
			return
		}
		h := req.Header
		h.Op = h.Op.Response()
		rsp, err := smp.BuildPacket(c.Framing(), h, reply)
		if err != nil {
			complete(nil, err)
			return
		}
		decoded, err := smp.ParseResponse(c.Framing(), rsp)
		if err != nil {
			complete(nil, err)
			return
		}
		complete(decoded, nil)
	}()
}
