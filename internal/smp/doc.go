// Package smp owns the SMP wire contract and request/response core.
//
// Ownership boundary:
// - fixed header encode/decode primitives
// - sequence-number allocation
// - packet construction for both framing modes
// - reorder buffer and transaction manager
// - return-code taxonomy
package smp
