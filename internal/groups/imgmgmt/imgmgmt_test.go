package imgmgmt

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/danmuck/smpctl/internal/groups"
	"github.com/danmuck/smpctl/internal/smp"
	"github.com/danmuck/smpctl/internal/testutil/testlog"
	"github.com/danmuck/smpctl/internal/transport"
	"github.com/danmuck/smpctl/internal/transport/loopback"
)

func newClient(t *testing.T, handler loopback.Handler) *Client {
	t.Helper()
	tr := loopback.New(transport.SchemeLoop, handler)
	txn := smp.NewTxnManager(tr, zerolog.Nop())
	return NewClient(txn, 2*time.Second)
}

func TestListDecodesSlots(t *testing.T) {
	testlog.Start(t)
	c := newClient(t, func(h smp.Header, _ map[string]any) (map[string]any, error) {
		if h.Group != smp.GroupImage || h.ID != IDState || h.Op != smp.OpRead {
			t.Errorf("unexpected request header: %+v", h)
		}
		return map[string]any{
			"images": []any{
				map[string]any{
					"slot": uint64(0), "version": "1.2.0",
					"hash": []byte{0xab, 0xcd}, "bootable": true,
					"confirmed": true, "active": true,
				},
				map[string]any{
					"slot": uint64(1), "version": "1.3.0-rc1",
					"hash": []byte{0x01, 0x02}, "bootable": true,
					"pending": true,
				},
			},
		}, nil
	})

	done := make(chan []ImageState, 1)
	fail := make(chan error, 1)
	if err := c.List(func(images []ImageState, err error) {
		if err != nil {
			fail <- err
			return
		}
		done <- images
	}); err != nil {
		t.Fatalf("list: %v", err)
	}

	select {
	case images := <-done:
		if len(images) != 2 {
			t.Fatalf("got %d slots, want 2", len(images))
		}
		if images[0].Version != "1.2.0" || !images[0].Confirmed || !images[0].Active {
			t.Fatalf("slot 0 mismatch: %+v", images[0])
		}
		if images[0].Hash != "abcd" {
			t.Fatalf("hash hex mismatch: %q", images[0].Hash)
		}
		if images[1].Slot != 1 || !images[1].Pending {
			t.Fatalf("slot 1 mismatch: %+v", images[1])
		}
	case err := <-fail:
		t.Fatalf("list failed: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatalf("no completion")
	}
}

func TestConfirmSendsHashAndFlag(t *testing.T) {
	testlog.Start(t)
	c := newClient(t, func(h smp.Header, payload map[string]any) (map[string]any, error) {
		if h.Op != smp.OpWrite || h.ID != IDState {
			t.Errorf("unexpected request header: %+v", h)
		}
		hash, _ := payload["hash"].([]byte)
		if len(hash) != 2 || hash[0] != 0xab || hash[1] != 0xcd {
			t.Errorf("hash payload mismatch: %v", payload["hash"])
		}
		if confirm, _ := payload["confirm"].(bool); !confirm {
			t.Errorf("confirm flag not set")
		}
		return map[string]any{}, nil
	})

	got := make(chan error, 1)
	if err := c.Confirm("abcd", func(err error) { got <- err }); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	select {
	case err := <-got:
		if err != nil {
			t.Fatalf("confirm failed: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("no completion")
	}
}

func TestConfirmRejectsBadHashSynchronously(t *testing.T) {
	testlog.Start(t)
	c := newClient(t, func(smp.Header, map[string]any) (map[string]any, error) {
		t.Error("request must not reach the transport")
		return nil, nil
	})
	if err := c.Confirm("not-hex", func(error) {}); err == nil {
		t.Fatalf("invalid hash must be rejected before sending")
	}
}

func TestEraseSurfacesGroupError(t *testing.T) {
	testlog.Start(t)
	c := newClient(t, func(smp.Header, map[string]any) (map[string]any, error) {
		return map[string]any{"rc": uint64(smp.RcBusy)}, nil
	})

	got := make(chan error, 1)
	if err := c.Erase(func(err error) { got <- err }); err != nil {
		t.Fatalf("erase: %v", err)
	}
	select {
	case err := <-got:
		var ge *groups.Error
		if !errors.As(err, &ge) || ge.Group != smp.GroupImage || ge.Code != smp.RcBusy {
			t.Fatalf("expected image-group busy error, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("no completion")
	}
}
