// Package statmgmt implements the stat command group: reading named
// counter groups off a device.
package statmgmt

import (
	"errors"
	"time"

	"github.com/danmuck/smpctl/internal/codec"
	"github.com/danmuck/smpctl/internal/groups"
	"github.com/danmuck/smpctl/internal/smp"
)

// Command ids within the stat group.
const (
	IDRead uint8 = 0
	IDList uint8 = 1
)

var ErrBadResponse = errors.New("statmgmt: malformed response payload")

func init() {
	groups.Register(smp.GroupStat, groups.TableResolver(smp.GroupStat, map[smp.ReturnCode]string{
		smp.RcNoEntry: "no such stat group",
		smp.RcTooLong: "stat group too large for one response",
	}))
}

// Client issues stat-group commands through one transaction manager.
type Client struct {
	txn     *smp.TxnManager
	timeout time.Duration
}

func NewClient(txn *smp.TxnManager, timeout time.Duration) *Client {
	return &Client{txn: txn, timeout: timeout}
}

// Read fetches the counters of one stat group by name.
func (c *Client) Read(name string, complete func(map[string]uint64, error)) error {
	payload := map[string]any{"name": name}
	return c.txn.Send(smp.GroupStat, smp.OpRead, 0, IDRead, payload, c.timeout, func(rsp *smp.Response, err error) {
		if err != nil {
			complete(nil, err)
			return
		}
		if err := groups.Resolve(smp.GroupStat, rsp.Rc()); err != nil {
			complete(nil, err)
			return
		}
		fields, ok := codec.Map(rsp.Payload["fields"])
		if !ok {
			complete(nil, ErrBadResponse)
			return
		}
		out := make(map[string]uint64, len(fields))
		for k, v := range fields {
			n, ok := codec.Uint(v)
			if !ok {
				complete(nil, ErrBadResponse)
				return
			}
			out[k] = n
		}
		complete(out, nil)
	})
}

// List fetches the names of all stat groups on the device.
func (c *Client) List(complete func([]string, error)) error {
	return c.txn.Send(smp.GroupStat, smp.OpRead, 0, IDList, nil, c.timeout, func(rsp *smp.Response, err error) {
		if err != nil {
			complete(nil, err)
			return
		}
		if err := groups.Resolve(smp.GroupStat, rsp.Rc()); err != nil {
			complete(nil, err)
			return
		}
		raw, ok := rsp.Payload["stat_list"].([]any)
		if !ok {
			complete(nil, ErrBadResponse)
			return
		}
		out := make([]string, 0, len(raw))
		for _, v := range raw {
			s, ok := codec.Str(v)
			if !ok {
				complete(nil, ErrBadResponse)
				return
			}
			out = append(out, s)
		}
		complete(out, nil)
	})
}
