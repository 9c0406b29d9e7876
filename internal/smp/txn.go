package smp

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/danmuck/smpctl/internal/observability"
)

// CompleteFunc receives the final outcome of one request. Exactly one
// of rsp and err is non-nil.
type CompleteFunc func(rsp *Response, err error)

// Sender is the transport surface the transaction manager needs.
// complete may be invoked from any goroutine, exactly once per Send.
type Sender interface {
	Framing() Framing
	Send(frame []byte, timeout time.Duration, complete func(rsp *Response, err error))
}

// TxnManager orchestrates allocate -> build -> send -> correlate ->
// deliver for one device connection.
//
// Caller completions fire exactly once per request and strictly in the
// order requests were issued, regardless of the order the transport
// reports them in. The sequence counter, reorder buffer, pending
// callback table and protocol version state form a single critical
// section guarded by mu; completions run outside the lock.
type TxnManager struct {
	tr  Sender
	log zerolog.Logger

	mu          sync.Mutex
	seq         *SeqAllocator
	rob         *ReorderBuffer
	pending     map[uint8]CompleteFunc
	version     Version
	dispatchQ   []delivery
	dispatching bool
}

func NewTxnManager(tr Sender, log zerolog.Logger) *TxnManager {
	return &TxnManager{
		tr:      tr,
		log:     log,
		seq:     NewSeqAllocator(),
		rob:     NewReorderBuffer(),
		pending: make(map[uint8]CompleteFunc),
		version: VersionNewest,
	}
}

// Version reports the protocol version the next request will carry.
func (m *TxnManager) Version() Version {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.version
}

// Send issues one SMP request. onComplete fires exactly once, after
// every earlier request's completion has fired. Build and enqueue
// failures are reported synchronously and never reach the transport.
func (m *TxnManager) Send(group Group, op Operation, flags uint8, id uint8, payload map[string]any, timeout time.Duration, onComplete CompleteFunc) error {
	m.mu.Lock()
	seq := m.seq.Next()
	h := Header{
		Version: m.version,
		Op:      op,
		Flags:   flags,
		Group:   group,
		Seq:     seq,
		ID:      id,
	}
	frame, err := BuildPacket(m.tr.Framing(), h, payload)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	if err := m.rob.Enqueue(seq); err != nil {
		m.mu.Unlock()
		return err
	}
	m.pending[seq] = onComplete
	depth := m.rob.Pending()
	m.mu.Unlock()

	observability.RecordRequest(group.String(), op.String())
	observability.SetInFlight(depth)
	m.log.Debug().
		Uint8("seq", seq).
		Stringer("group", group).
		Stringer("op", op).
		Uint8("id", id).
		Msg("request sent")

	m.tr.Send(frame, timeout, func(rsp *Response, err error) {
		m.complete(seq, rsp, err)
	})
	return nil
}

type delivery struct {
	seq uint8
	out Outcome
	cb  CompleteFunc
}

// complete records one transport completion and drains every now
// contiguous outcome from the head of the reorder buffer. Later
// completions stay buffered until all earlier ones have arrived.
func (m *TxnManager) complete(seq uint8, rsp *Response, err error) {
	m.mu.Lock()
	headReady, rerr := m.rob.Received(seq, Outcome{Response: rsp, Err: err})
	if rerr != nil {
		// Correlation failure: the reorder buffer does not know this
		// sequence number. The original caller must still hear back, so
		// this one completion bypasses the ordering guarantee.
		cb := m.pending[seq]
		delete(m.pending, seq)
		m.mu.Unlock()
		m.log.Error().Uint8("seq", seq).Err(rerr).Msg("correlation failed, completing out of order")
		if cb != nil {
			observability.RecordCompletion(true)
			cb(nil, rerr)
		}
		return
	}

	if headReady {
		m.rob.Deliver(func(s uint8, out Outcome) {
			if out.Err == nil && out.Response != nil {
				// Opportunistic version auto-detection: last writer
				// wins, updated only inside the ordered deliver path.
				m.version = out.Response.Header.Version
			}
			m.dispatchQ = append(m.dispatchQ, delivery{seq: s, out: out, cb: m.pending[s]})
			delete(m.pending, s)
		})
	}
	depth := m.rob.Pending()
	observability.SetInFlight(depth)

	// Pump the dispatch queue with the lock dropped around each
	// callback. A single goroutine drains at a time, so callers see
	// completions strictly in issue order even when transport
	// completions race on different goroutines, and a callback may
	// issue new requests without deadlocking.
	if m.dispatching {
		m.mu.Unlock()
		return
	}
	m.dispatching = true
	for len(m.dispatchQ) > 0 {
		d := m.dispatchQ[0]
		m.dispatchQ = m.dispatchQ[1:]
		m.mu.Unlock()
		m.invoke(d)
		m.mu.Lock()
	}
	m.dispatching = false
	m.mu.Unlock()
}

func (m *TxnManager) invoke(d delivery) {
	failed := d.out.Err != nil
	observability.RecordCompletion(failed)
	if failed {
		m.log.Debug().Uint8("seq", d.seq).Err(d.out.Err).Msg("request failed")
	} else {
		m.log.Debug().Uint8("seq", d.seq).Msg("request completed")
	}
	if d.cb == nil {
		return
	}
	if failed {
		d.cb(nil, d.out.Err)
	} else {
		d.cb(d.out.Response, nil)
	}
}
