// Package groups owns the per-command-group error registry and the
// typed managers built on top of the SMP core.
//
// Each group package registers its own error table from init, so the
// resolver needs no compile-time knowledge of any group's error set.
package groups

import (
	"fmt"
	"sync"

	"github.com/danmuck/smpctl/internal/smp"
)

// Resolver maps a group-scoped return code to a group-specific error.
// Returning nil means the group has no meaning for that code and the
// generic fallback applies.
type Resolver func(code smp.ReturnCode) error

var (
	mu       sync.RWMutex
	registry = map[smp.Group]Resolver{}
)

func Register(g smp.Group, r Resolver) {
	mu.Lock()
	defer mu.Unlock()
	registry[g] = r
}

// Resolve maps a group/return-code pair to nil (code 0) or an error.
// Unknown groups and codes fall back to the generic numeric-code error.
func Resolve(g smp.Group, code smp.ReturnCode) error {
	if code == smp.RcOK {
		return nil
	}
	mu.RLock()
	r, ok := registry[g]
	mu.RUnlock()
	if ok {
		if err := r(code); err != nil {
			return err
		}
	}
	return &smp.CodeError{Code: code}
}

// Error is a return code with a group-scoped meaning.
type Error struct {
	Group smp.Group
	Code  smp.ReturnCode
	Desc  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s (code %d)", e.Group, e.Desc, uint16(e.Code))
}

// TableResolver builds a Resolver from a fixed code table.
func TableResolver(g smp.Group, table map[smp.ReturnCode]string) Resolver {
	return func(code smp.ReturnCode) error {
		desc, ok := table[code]
		if !ok {
			return nil
		}
		return &Error{Group: g, Code: code, Desc: desc}
	}
}
