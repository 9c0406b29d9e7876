// Package udp implements the SMP transport over a datagram socket.
package udp

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/danmuck/smpctl/internal/observability"
	"github.com/danmuck/smpctl/internal/smp"
	"github.com/danmuck/smpctl/internal/transport"
)

type waiter struct {
	complete func(rsp *smp.Response, err error)
	timer    *time.Timer
}

// Conn is one SMP-over-UDP connection. Responses are matched to sends
// by the sequence number in the wire header; ordering across requests
// is the transaction manager's job, not the transport's.
type Conn struct {
	conn *net.UDPConn
	mtu  *transport.MTU
	log  zerolog.Logger

	mu      sync.Mutex
	waiters map[uint8]waiter
	closed  bool
}

func Dial(addr string, log zerolog.Logger) (*Conn, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("udp: resolve %s: %w", addr, err)
	}
	conn, err := net.DialUDP("udp", nil, udpAddr)
	if err != nil {
		return nil, fmt.Errorf("udp: dial %s: %w", addr, err)
	}
	c := &Conn{
		conn:    conn,
		mtu:     transport.NewMTU(transport.SchemeUDP.DefaultMTU()),
		log:     log,
		waiters: make(map[uint8]waiter),
	}
	go c.readLoop()
	return c, nil
}

func (c *Conn) Scheme() transport.Scheme { return transport.SchemeUDP }
func (c *Conn) Framing() smp.Framing     { return transport.SchemeUDP.Framing() }
func (c *Conn) MTU() int                 { return c.mtu.Get() }
func (c *Conn) SetMTU(n int) error       { return c.mtu.Set(n) }

// Send writes one frame and arms a timeout for its response. complete
// fires exactly once: with the decoded response, with ErrTimeout, or
// with the write error.
func (c *Conn) Send(frame []byte, timeout time.Duration, complete func(rsp *smp.Response, err error)) {
	if len(frame) < smp.HeaderLen {
		complete(nil, smp.ErrShortHeader)
		return
	}
	seq := frame[7]

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		complete(nil, transport.ErrClosed)
		return
	}
	timer := time.AfterFunc(timeout, func() { c.expire(seq) })
	c.waiters[seq] = waiter{complete: complete, timer: timer}
	c.mu.Unlock()

	if _, err := c.conn.Write(frame); err != nil {
		observability.RecordTransportError("write")
		if w, ok := c.take(seq); ok {
			w.complete(nil, fmt.Errorf("udp: write: %w", err))
		}
	}
}

func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	pending := c.waiters
	c.waiters = make(map[uint8]waiter)
	c.mu.Unlock()

	for _, w := range pending {
		w.timer.Stop()
		w.complete(nil, transport.ErrClosed)
	}
	return c.conn.Close()
}

func (c *Conn) readLoop() {
	buf := make([]byte, transport.MTUMax)
	for {
		n, err := c.conn.Read(buf)
		if err != nil {
			c.mu.Lock()
			closed := c.closed
			c.mu.Unlock()
			if closed {
				return
			}
			observability.RecordTransportError("read")
			c.log.Warn().Err(err).Msg("read failed")
			return
		}
		data := make([]byte, n)
		copy(data, buf[:n])

		rsp, err := smp.ParseResponse(c.Framing(), data)
		if err != nil {
			observability.RecordTransportError("decode")
			c.log.Warn().Err(err).Msg("dropping undecodable datagram")
			continue
		}
		w, ok := c.take(rsp.Header.Seq)
		if !ok {
			c.log.Warn().Uint8("seq", rsp.Header.Seq).Msg("dropping unsolicited response")
			continue
		}
		w.complete(rsp, nil)
	}
}

func (c *Conn) expire(seq uint8) {
	observability.RecordTransportError("timeout")
	if w, ok := c.take(seq); ok {
		w.complete(nil, transport.ErrTimeout)
	}
}

// take removes and returns the waiter for seq, stopping its timer.
func (c *Conn) take(seq uint8) (waiter, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	w, ok := c.waiters[seq]
	if !ok {
		return waiter{}, false
	}
	delete(c.waiters, seq)
	w.timer.Stop()
	return w, true
}
