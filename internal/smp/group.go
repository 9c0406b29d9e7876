package smp

import "fmt"

// Group is the numeric command-group namespace of the SMP command id space.
//
// Conversion from and to the raw 16-bit wire value is total and lossless:
// every uint16 is a valid Group, values at or above GroupUserBase are
// application-defined.
type Group uint16

const (
	GroupOS       Group = 0
	GroupImage    Group = 1
	GroupStat     Group = 2
	GroupSettings Group = 3
	GroupLog      Group = 4
	GroupCrash    Group = 5
	GroupSplit    Group = 6
	GroupRun      Group = 7
	GroupFS       Group = 8
	GroupShell    Group = 9

	// GroupUserBase is the first application-defined group id.
	GroupUserBase Group = 64
)

func (g Group) String() string {
	switch g {
	case GroupOS:
		return "os"
	case GroupImage:
		return "image"
	case GroupStat:
		return "stat"
	case GroupSettings:
		return "settings"
	case GroupLog:
		return "log"
	case GroupCrash:
		return "crash"
	case GroupSplit:
		return "split"
	case GroupRun:
		return "run"
	case GroupFS:
		return "fs"
	case GroupShell:
		return "shell"
	}
	if g >= GroupUserBase {
		return fmt.Sprintf("user(%d)", uint16(g))
	}
	return fmt.Sprintf("group(%d)", uint16(g))
}
