// Package osmgmt implements the default (os) command group: echo,
// task statistics and reset.
package osmgmt

import (
	"errors"
	"time"

	"github.com/danmuck/smpctl/internal/codec"
	"github.com/danmuck/smpctl/internal/groups"
	"github.com/danmuck/smpctl/internal/smp"
)

// Command ids within the os group.
const (
	IDEcho      uint8 = 0
	IDTaskStats uint8 = 2
	IDReset     uint8 = 5
)

var ErrBadResponse = errors.New("osmgmt: malformed response payload")

func init() {
	groups.Register(smp.GroupOS, groups.TableResolver(smp.GroupOS, map[smp.ReturnCode]string{
		smp.RcInvalidValue: "invalid command argument",
		smp.RcNoEntry:      "no such task",
		smp.RcBadState:     "reset rejected in current state",
	}))
}

// Client issues os-group commands through one transaction manager.
type Client struct {
	txn     *smp.TxnManager
	timeout time.Duration
}

func NewClient(txn *smp.TxnManager, timeout time.Duration) *Client {
	return &Client{txn: txn, timeout: timeout}
}

// Echo asks the device to echo msg back. complete receives the echoed
// text.
func (c *Client) Echo(msg string, complete func(string, error)) error {
	payload := map[string]any{"d": msg}
	return c.txn.Send(smp.GroupOS, smp.OpWrite, 0, IDEcho, payload, c.timeout, func(rsp *smp.Response, err error) {
		if err != nil {
			complete("", err)
			return
		}
		if err := groups.Resolve(smp.GroupOS, rsp.Rc()); err != nil {
			complete("", err)
			return
		}
		r, ok := codec.Str(rsp.Payload["r"])
		if !ok {
			complete("", ErrBadResponse)
			return
		}
		complete(r, nil)
	})
}

// TaskStat is one running task's statistics.
type TaskStat struct {
	Priority  uint64
	State     uint64
	Runtime   uint64
	StackSize uint64
	StackUsed uint64
}

// TaskStats reads per-task statistics, keyed by task name.
func (c *Client) TaskStats(complete func(map[string]TaskStat, error)) error {
	return c.txn.Send(smp.GroupOS, smp.OpRead, 0, IDTaskStats, nil, c.timeout, func(rsp *smp.Response, err error) {
		if err != nil {
			complete(nil, err)
			return
		}
		if err := groups.Resolve(smp.GroupOS, rsp.Rc()); err != nil {
			complete(nil, err)
			return
		}
		tasks, ok := codec.Map(rsp.Payload["tasks"])
		if !ok {
			complete(nil, ErrBadResponse)
			return
		}
		out := make(map[string]TaskStat, len(tasks))
		for name, raw := range tasks {
			fields, ok := codec.Map(raw)
			if !ok {
				complete(nil, ErrBadResponse)
				return
			}
			var ts TaskStat
			ts.Priority, _ = codec.Uint(fields["prio"])
			ts.State, _ = codec.Uint(fields["state"])
			ts.Runtime, _ = codec.Uint(fields["runtime"])
			ts.StackSize, _ = codec.Uint(fields["stksiz"])
			ts.StackUsed, _ = codec.Uint(fields["stkuse"])
			out[name] = ts
		}
		complete(out, nil)
	})
}

// Reset requests a device reboot. The device acknowledges before
// resetting.
func (c *Client) Reset(complete func(error)) error {
	return c.txn.Send(smp.GroupOS, smp.OpWrite, 0, IDReset, nil, c.timeout, func(rsp *smp.Response, err error) {
		if err != nil {
			complete(err)
			return
		}
		complete(groups.Resolve(smp.GroupOS, rsp.Rc()))
	})
}
