package smp

import (
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/danmuck/smpctl/internal/testutil/testlog"
)

// fakeSender records sends and hands completion control to the test.
type fakeSender struct {
	mu    sync.Mutex
	sends []fakeSend
}

type fakeSend struct {
	header   Header
	complete func(rsp *Response, err error)
}

func (s *fakeSender) Framing() Framing { return FramingDatagram }

func (s *fakeSender) Send(frame []byte, timeout time.Duration, complete func(rsp *Response, err error)) {
	h, err := DecodeHeader(frame)
	if err != nil {
		panic(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sends = append(s.sends, fakeSend{header: h, complete: complete})
}

func (s *fakeSender) send(i int) fakeSend {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sends[i]
}

// respond completes send i with a decoded success response echoing the
// request header.
func (s *fakeSender) respond(i int, version Version) {
	fs := s.send(i)
	h := fs.header
	h.Version = version
	h.Op = h.Op.Response()
	fs.complete(&Response{Header: h, Payload: map[string]any{}}, nil)
}

func newTestManager(t *testing.T) (*TxnManager, *fakeSender) {
	t.Helper()
	tr := &fakeSender{}
	return NewTxnManager(tr, zerolog.Nop()), tr
}

type completionLog struct {
	mu    sync.Mutex
	order []int
}

func (l *completionLog) record(i int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.order = append(l.order, i)
}

func (l *completionLog) snapshot() []int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]int(nil), l.order...)
}

func TestTxnCompletionsFollowIssueOrder(t *testing.T) {
	testlog.Start(t)
	m, tr := newTestManager(t)

	const n = 4
	var log completionLog
	for i := 0; i < n; i++ {
		i := i
		err := m.Send(GroupOS, OpRead, 0, 0, nil, time.Second, func(rsp *Response, err error) {
			if err != nil {
				t.Errorf("request %d failed: %v", i, err)
			}
			log.record(i)
		})
		if err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}

	// Transport reports completions out of order.
	for _, i := range []int{2, 0, 3, 1} {
		tr.respond(i, VersionNewest)
	}

	got := log.snapshot()
	if len(got) != n {
		t.Fatalf("delivered %d completions, want %d", len(got), n)
	}
	for i, idx := range got {
		if idx != i {
			t.Fatalf("completion order %v, want [0 1 2 3]", got)
		}
	}
}

func TestTxnHeadBlocksBufferedCompletions(t *testing.T) {
	testlog.Start(t)
	m, tr := newTestManager(t)

	var log completionLog
	for i := 0; i < 3; i++ {
		i := i
		if err := m.Send(GroupOS, OpRead, 0, 0, nil, time.Second, func(*Response, error) {
			log.record(i)
		}); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}

	tr.respond(1, VersionNewest)
	tr.respond(2, VersionNewest)
	if got := log.snapshot(); len(got) != 0 {
		t.Fatalf("completions fired before the oldest request finished: %v", got)
	}

	tr.respond(0, VersionNewest)
	if got := log.snapshot(); len(got) != 3 {
		t.Fatalf("head completion must flush the buffer, got %v", got)
	}
}

func TestTxnFailedRequestStillDrainsInOrder(t *testing.T) {
	testlog.Start(t)
	m, tr := newTestManager(t)

	var log completionLog
	var failedErr error
	var mu sync.Mutex

	m.Send(GroupOS, OpRead, 0, 0, nil, time.Second, func(rsp *Response, err error) {
		mu.Lock()
		failedErr = err
		mu.Unlock()
		log.record(0)
	})
	m.Send(GroupOS, OpRead, 0, 0, nil, time.Second, func(*Response, error) {
		log.record(1)
	})

	tr.respond(1, VersionNewest)
	tr.send(0).complete(nil, errors.New("transport timeout"))

	got := log.snapshot()
	if len(got) != 2 || got[0] != 0 || got[1] != 1 {
		t.Fatalf("completion order %v, want [0 1]", got)
	}
	mu.Lock()
	defer mu.Unlock()
	if failedErr == nil {
		t.Fatalf("timed-out request must surface its error")
	}
}

func TestTxnExactlyOnceUnderConcurrentCompletions(t *testing.T) {
	testlog.Start(t)
	m, tr := newTestManager(t)

	const n = 64
	counts := make([]int, n)
	var mu sync.Mutex
	var log completionLog
	done := make(chan struct{})

	for i := 0; i < n; i++ {
		i := i
		if err := m.Send(GroupOS, OpRead, 0, 0, nil, time.Second, func(*Response, error) {
			mu.Lock()
			counts[i]++
			total := 0
			for _, c := range counts {
				total += c
			}
			mu.Unlock()
			log.record(i)
			if total == n {
				close(done)
			}
		}); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}

	perm := rand.Perm(n)
	var wg sync.WaitGroup
	for _, i := range perm {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tr.respond(i, VersionNewest)
		}(i)
	}
	wg.Wait()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("completions did not all arrive")
	}

	mu.Lock()
	for i, c := range counts {
		if c != 1 {
			t.Fatalf("request %d completed %d times", i, c)
		}
	}
	mu.Unlock()

	got := log.snapshot()
	for i, idx := range got {
		if idx != i {
			t.Fatalf("completion order broken at %d: %v", i, got)
		}
	}
}

func TestTxnVersionAutoDetection(t *testing.T) {
	testlog.Start(t)
	m, tr := newTestManager(t)

	if m.Version() != VersionNewest {
		t.Fatalf("fresh manager must default to the newest version")
	}

	done := make(chan struct{})
	m.Send(GroupOS, OpRead, 0, 0, nil, time.Second, func(*Response, error) {
		close(done)
	})
	tr.respond(0, V1)
	<-done

	if m.Version() != V1 {
		t.Fatalf("manager version=%d, want observed V1", m.Version())
	}

	m.Send(GroupOS, OpRead, 0, 0, nil, time.Second, func(*Response, error) {})
	if v := tr.send(1).header.Version; v != V1 {
		t.Fatalf("next request carried version %d, want V1", v)
	}
}

func TestTxnVersionNotUpdatedFromBufferedOutcome(t *testing.T) {
	testlog.Start(t)
	m, tr := newTestManager(t)

	m.Send(GroupOS, OpRead, 0, 0, nil, time.Second, func(*Response, error) {})
	m.Send(GroupOS, OpRead, 0, 0, nil, time.Second, func(*Response, error) {})

	// The second response arrives first but stays buffered; the version
	// it reports must not be visible yet.
	tr.respond(1, V1)
	if m.Version() != VersionNewest {
		t.Fatalf("buffered outcome leaked its version")
	}
	tr.respond(0, VersionNewest)
	if m.Version() != V1 {
		t.Fatalf("ordered drain must apply versions last-writer-wins, got %d", m.Version())
	}
}

func TestTxnDuplicateCompletionDoesNotDoubleInvoke(t *testing.T) {
	testlog.Start(t)
	m, tr := newTestManager(t)

	var mu sync.Mutex
	count := 0
	m.Send(GroupOS, OpRead, 0, 0, nil, time.Second, func(*Response, error) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	tr.respond(0, VersionNewest)
	// A retrying transport reports the same completion again.
	tr.respond(0, VersionNewest)

	mu.Lock()
	defer mu.Unlock()
	if count != 1 {
		t.Fatalf("onComplete ran %d times, want exactly once", count)
	}
}

func TestTxnCorrelationFailureCompletesOutOfOrder(t *testing.T) {
	testlog.Start(t)
	m, tr := newTestManager(t)

	var mu sync.Mutex
	headCount, tailCount := 0, 0
	var tailErr error

	m.Send(GroupOS, OpRead, 0, 0, nil, time.Second, func(*Response, error) {
		mu.Lock()
		headCount++
		mu.Unlock()
	})
	m.Send(GroupOS, OpRead, 0, 0, nil, time.Second, func(rsp *Response, err error) {
		mu.Lock()
		tailCount++
		tailErr = err
		mu.Unlock()
	})

	// The second request's completion arrives twice while the head is
	// still open. The duplicate is a correlation failure and must reach
	// that request's caller immediately, bypassing the ordering
	// guarantee, without touching the head request.
	tr.respond(1, VersionNewest)
	fs := tr.send(1)
	fs.complete(&Response{Header: fs.header}, nil)

	mu.Lock()
	if headCount != 0 {
		mu.Unlock()
		t.Fatalf("head request completed prematurely")
	}
	if tailCount != 1 {
		mu.Unlock()
		t.Fatalf("tail caller heard back %d times, want once", tailCount)
	}
	if !errors.Is(tailErr, ErrSeqDone) {
		mu.Unlock()
		t.Fatalf("tail caller must see the correlation error, got %v", tailErr)
	}
	mu.Unlock()

	// The head still drains normally, and the tail's buffered success
	// is discarded rather than delivered a second time.
	tr.respond(0, VersionNewest)
	mu.Lock()
	defer mu.Unlock()
	if headCount != 1 || tailCount != 1 {
		t.Fatalf("final counts head=%d tail=%d, want 1/1", headCount, tailCount)
	}
}
