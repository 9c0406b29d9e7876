// Package imgmgmt implements the image command group: slot listing and
// slot state changes.
package imgmgmt

import (
	"encoding/hex"
	"errors"
	"time"

	"github.com/danmuck/smpctl/internal/codec"
	"github.com/danmuck/smpctl/internal/groups"
	"github.com/danmuck/smpctl/internal/smp"
)

// Command ids within the image group.
const (
	IDState uint8 = 0
	IDErase uint8 = 5
)

var ErrBadResponse = errors.New("imgmgmt: malformed response payload")

func init() {
	groups.Register(smp.GroupImage, groups.TableResolver(smp.GroupImage, map[smp.ReturnCode]string{
		smp.RcNoMemory:     "flash area full",
		smp.RcInvalidValue: "invalid image header",
		smp.RcNoEntry:      "no image in slot",
		smp.RcBadState:     "image not in a confirmable state",
		smp.RcCorrupt:      "image hash mismatch",
		smp.RcBusy:         "flash operation in progress",
	}))
}

// ImageState describes one firmware slot.
type ImageState struct {
	Slot      uint64
	Version   string
	Hash      string
	Bootable  bool
	Pending   bool
	Confirmed bool
	Active    bool
}

// Client issues image-group commands through one transaction manager.
type Client struct {
	txn     *smp.TxnManager
	timeout time.Duration
}

func NewClient(txn *smp.TxnManager, timeout time.Duration) *Client {
	return &Client{txn: txn, timeout: timeout}
}

// List reads the state of all firmware slots.
func (c *Client) List(complete func([]ImageState, error)) error {
	return c.txn.Send(smp.GroupImage, smp.OpRead, 0, IDState, nil, c.timeout, func(rsp *smp.Response, err error) {
		if err != nil {
			complete(nil, err)
			return
		}
		if err := groups.Resolve(smp.GroupImage, rsp.Rc()); err != nil {
			complete(nil, err)
			return
		}
		raw, ok := rsp.Payload["images"].([]any)
		if !ok {
			complete(nil, ErrBadResponse)
			return
		}
		out := make([]ImageState, 0, len(raw))
		for _, entry := range raw {
			fields, ok := codec.Map(entry)
			if !ok {
				complete(nil, ErrBadResponse)
				return
			}
			var st ImageState
			st.Slot, _ = codec.Uint(fields["slot"])
			st.Version, _ = codec.Str(fields["version"])
			if hash, ok := codec.Bytes(fields["hash"]); ok {
				st.Hash = hex.EncodeToString(hash)
			}
			st.Bootable, _ = fields["bootable"].(bool)
			st.Pending, _ = fields["pending"].(bool)
			st.Confirmed, _ = fields["confirmed"].(bool)
			st.Active, _ = fields["active"].(bool)
			out = append(out, st)
		}
		complete(out, nil)
	})
}

// Confirm marks the image with the given hash (hex) as permanent.
func (c *Client) Confirm(hash string, complete func(error)) error {
	return c.setState(hash, true, complete)
}

// Test marks the image with the given hash (hex) for a one-shot boot.
func (c *Client) Test(hash string, complete func(error)) error {
	return c.setState(hash, false, complete)
}

func (c *Client) setState(hash string, confirm bool, complete func(error)) error {
	raw, err := hex.DecodeString(hash)
	if err != nil {
		return errors.New("imgmgmt: invalid image hash")
	}
	payload := map[string]any{"hash": raw, "confirm": confirm}
	return c.txn.Send(smp.GroupImage, smp.OpWrite, 0, IDState, payload, c.timeout, func(rsp *smp.Response, err error) {
		if err != nil {
			complete(err)
			return
		}
		complete(groups.Resolve(smp.GroupImage, rsp.Rc()))
	})
}

// Erase wipes the inactive firmware slot.
func (c *Client) Erase(complete func(error)) error {
	return c.txn.Send(smp.GroupImage, smp.OpWrite, 0, IDErase, nil, c.timeout, func(rsp *smp.Response, err error) {
		if err != nil {
			complete(err)
			return
		}
		complete(groups.Resolve(smp.GroupImage, rsp.Rc()))
	})
}
