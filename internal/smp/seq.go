package smp

import "math/rand"

// SeqAllocator issues wrapping 8-bit sequence numbers.
//
// The initial value is randomized so that a restarted client does not
// collide with sequence numbers a device may still remember from the
// previous process. Not safe for concurrent use; the transaction
// manager serializes calls under its own lock.
type SeqAllocator struct {
	next uint8
}

func NewSeqAllocator() *SeqAllocator {
	return &SeqAllocator{next: uint8(rand.Intn(256))}
}

// Next returns the current counter value and advances it, wrapping
// 255 -> 0.
func (a *SeqAllocator) Next() uint8 {
	seq := a.next
	a.next++
	return seq
}
