package osmgmt

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

func TestEchoRoundTrip(t *testing.T) {
	testlog.Start(t)
	c := newClient(t, func(h smp.Header, payload map[string]any) (map[string]any, error) {
		if h.Group != smp.GroupOS || h.ID != IDEcho || h.Op != smp.OpWrite {
			t.Errorf("unexpected request header: %+v", h)
		}
		return map[string]any{"r": payload["d"]}, nil
	})

	done := make(chan string, 1)
	fail := make(chan error, 1)
	if err := c.Echo("hello device", func(r string, err error) {
		if err != nil {
			fail <- err
			return
		}
		done <- r
	}); err != nil {
		t.Fatalf("echo: %v", err)
	}

	select {
	case r := <-done:
		if r != "hello device" {
			t.Fatalf("echo reply %q", r)
		}
	case err := <-fail:
		t.Fatalf("echo failed: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatalf("no completion")
	}
}

func TestEchoSurfacesGroupError(t *testing.T) {
	testlog.Start(t)
	c := newClient(t, func(smp.Header, map[string]any) (map[string]any, error) {
		return map[string]any{"rc": uint64(smp.RcInvalidValue)}, nil
	})

	got := make(chan error, 1)
	if err := c.Echo("x", func(_ string, err error) { got <- err }); err != nil {
		t.Fatalf("echo: %v", err)
	}

	select {
	case err := <-got:
		var ge *groups.Error
		if !errors.As(err, &ge) || ge.Group != smp.GroupOS {
			t.Fatalf("expected os-group error, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("no completion")
	}
}

func TestTaskStatsDecoding(t *testing.T) {
	testlog.Start(t)
	c := newClient(t, func(h smp.Header, _ map[string]any) (map[string]any, error) {
		if h.ID != IDTaskStats || h.Op != smp.OpRead {
			t.Errorf("unexpected request header: %+v", h)
		}
		return map[string]any{
			"tasks": map[string]any{
				"main": map[string]any{
					"prio": uint64(10), "state": uint64(2),
					"runtime": uint64(999), "stksiz": uint64(2048), "stkuse": uint64(512),
				},
			},
		}, nil
	})

	done := make(chan map[string]TaskStat, 1)
	fail := make(chan error, 1)
	if err := c.TaskStats(func(tasks map[string]TaskStat, err error) {
		if err != nil {
			fail <- err
			return
		}
		done <- tasks
	}); err != nil {
		t.Fatalf("taskstats: %v", err)
	}

	select {
	case tasks := <-done:
		ts, ok := tasks["main"]
		if !ok {
			t.Fatalf("missing task: %v", tasks)
		}
		if ts.Priority != 10 || ts.Runtime != 999 || ts.StackSize != 2048 || ts.StackUsed != 512 {
			t.Fatalf("task fields mismatch: %+v", ts)
		}
	case err := <-fail:
		t.Fatalf("taskstats failed: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatalf("no completion")
	}
}

func TestResetAcknowledged(t *testing.T) {
	testlog.Start(t)
	c := newClient(t, func(h smp.Header, _ map[string]any) (map[string]any, error) {
		if h.ID != IDReset {
			t.Errorf("unexpected command id %d", h.ID)
		}
		return map[string]any{}, nil
	})

	got := make(chan error, 1)
	if err := c.Reset(func(err error) { got <- err }); err != nil {
		t.Fatalf("reset: %v", err)
	}
	select {
	case err := <-got:
		if err != nil {
			t.Fatalf("reset failed: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("no completion")
	}
}
