package smp

import "fmt"

// ReturnCode is the numeric outcome code carried in every SMP response.
type ReturnCode uint16

const (
	RcOK            ReturnCode = 0
	RcUnknown       ReturnCode = 1
	RcNoMemory      ReturnCode = 2
	RcInvalidValue  ReturnCode = 3
	RcTimeout       ReturnCode = 4
	RcNoEntry       ReturnCode = 5
	RcBadState      ReturnCode = 6
	RcTooLong       ReturnCode = 7
	RcNotSupported  ReturnCode = 8
	RcCorrupt       ReturnCode = 9
	RcBusy          ReturnCode = 10
	RcAccessDenied  ReturnCode = 11
	RcVersionTooOld ReturnCode = 12
	RcVersionTooNew ReturnCode = 13

	// RcUserBase is the first application-defined return code.
	RcUserBase ReturnCode = 256
)

func (rc ReturnCode) String() string {
	switch rc {
	case RcOK:
		return "ok"
	case RcUnknown:
		return "unknown error"
	case RcNoMemory:
		return "no memory"
	case RcInvalidValue:
		return "invalid value"
	case RcTimeout:
		return "timeout"
	case RcNoEntry:
		return "no such entry"
	case RcBadState:
		return "bad state"
	case RcTooLong:
		return "response too long"
	case RcNotSupported:
		return "not supported"
	case RcCorrupt:
		return "corrupt payload"
	case RcBusy:
		return "busy"
	case RcAccessDenied:
		return "access denied"
	case RcVersionTooOld:
		return "protocol version too old"
	case RcVersionTooNew:
		return "protocol version too new"
	}
	if rc >= RcUserBase {
		return fmt.Sprintf("user-defined error (code %d)", uint16(rc))
	}
	return fmt.Sprintf("unrecognized (code %d)", uint16(rc))
}

// CodeError is a non-zero return code decoded from an otherwise
// successful wire exchange.
type CodeError struct {
	Code ReturnCode
}

func (e *CodeError) Error() string {
	return "smp: " + e.Code.String()
}

// CheckCode maps a return code to nil (code 0) or a *CodeError.
func CheckCode(rc ReturnCode) error {
	if rc == RcOK {
		return nil
	}
	return &CodeError{Code: rc}
}
