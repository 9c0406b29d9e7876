package smp

import "errors"

var (
	ErrSeqPending = errors.New("smp: sequence number already pending")
	ErrUnknownSeq = errors.New("smp: no pending request for sequence number")
	ErrSeqDone    = errors.New("smp: outcome already recorded for sequence number")
)

// Outcome is the terminal result of one request: a decoded response or
// a failure. Exactly one of Response and Err is set.
type Outcome struct {
	Response *Response
	Err      error
}

type robSlot struct {
	filled  bool
	outcome Outcome
}

// ReorderBuffer enforces exactly-once, in-issue-order delivery of
// asynchronous request outcomes.
//
// Outcomes may be recorded in any order; Deliver drains them strictly
// in the order the sequence numbers were enqueued, stopping at the
// first request whose outcome has not arrived yet. Ordering is by
// queue position only, so sequence-number wraparound is irrelevant.
//
// Not safe for concurrent use; the transaction manager serializes all
// access under its own lock.
type ReorderBuffer struct {
	order []uint8
	slots map[uint8]*robSlot
}

func NewReorderBuffer() *ReorderBuffer {
	return &ReorderBuffer{slots: make(map[uint8]*robSlot)}
}

// Enqueue appends seq to the tail of the pending queue with an empty
// outcome slot. A seq that is already pending indicates allocator
// reuse while outstanding and is rejected with ErrSeqPending.
func (b *ReorderBuffer) Enqueue(seq uint8) error {
	if _, ok := b.slots[seq]; ok {
		return ErrSeqPending
	}
	b.slots[seq] = &robSlot{}
	b.order = append(b.order, seq)
	return nil
}

// Received fills the outcome slot for seq. It reports whether the head
// of the queue is now deliverable; it never delivers anything itself.
// Unsolicited sequence numbers fail with ErrUnknownSeq, duplicate
// outcomes with ErrSeqDone.
func (b *ReorderBuffer) Received(seq uint8, out Outcome) (bool, error) {
	slot, ok := b.slots[seq]
	if !ok {
		return false, ErrUnknownSeq
	}
	if slot.filled {
		return false, ErrSeqDone
	}
	slot.filled = true
	slot.outcome = out
	return b.slots[b.order[0]].filled, nil
}

// Deliver pops filled entries from the head of the queue, invoking fn
// for each in issuance order, and stops at the first entry still
// awaiting its outcome. Calling Deliver when the head is unfilled is a
// no-op.
func (b *ReorderBuffer) Deliver(fn func(seq uint8, out Outcome)) {
	for len(b.order) > 0 {
		seq := b.order[0]
		slot := b.slots[seq]
		if !slot.filled {
			return
		}
		b.order = b.order[1:]
		delete(b.slots, seq)
		fn(seq, slot.outcome)
	}
}

// Pending reports the number of requests awaiting delivery.
func (b *ReorderBuffer) Pending() int {
	return len(b.order)
}
