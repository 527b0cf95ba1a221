package push

import (
	"log/slog"
	"sync"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.Default()
}

func drainConnected(t *testing.T, s *Stream) {
	t.Helper()
	select {
	case evt := <-s.Events():
		if evt.Name != EventConnected {
			t.Fatalf("expected %q first, got %q", EventConnected, evt.Name)
		}
	default:
		t.Fatal("expected queued connectivity confirmation")
	}
}

func TestConnectSendsConfirmation(t *testing.T) {
	r := NewRegistry(testLogger())
	s := r.Connect("u-1")
	drainConnected(t, s)
	if !r.Connected("u-1") {
		t.Fatal("expected u-1 to be registered")
	}
}

func TestSendWithoutStreamIsNoOp(t *testing.T) {
	r := NewRegistry(testLogger())
	// Must not panic, queue, or block.
	r.Send("nobody", "notification.created", map[string]string{"id": "n-1"})
}

func TestSendDeliversToStream(t *testing.T) {
	r := NewRegistry(testLogger())
	s := r.Connect("u-1")
	drainConnected(t, s)

	r.Send("u-1", "notification.created", map[string]string{"id": "n-1"})
	select {
	case evt := <-s.Events():
		if evt.Name != "notification.created" {
			t.Fatalf("unexpected event %q", evt.Name)
		}
	default:
		t.Fatal("expected queued event")
	}
}

func TestSecondConnectionReplacesFirst(t *testing.T) {
	r := NewRegistry(testLogger())
	first := r.Connect("u-1")
	second := r.Connect("u-1")

	select {
	case <-first.Done():
	default:
		t.Fatal("expected first stream to be closed on replacement")
	}

	drainConnected(t, second)
	r.Send("u-1", "notification.created", nil)
	select {
	case evt := <-second.Events():
		if evt.Name != "notification.created" {
			t.Fatalf("unexpected event %q", evt.Name)
		}
	default:
		t.Fatal("expected delivery to the latest stream")
	}
}

func TestDisconnectStopsDelivery(t *testing.T) {
	r := NewRegistry(testLogger())
	s := r.Connect("u-1")
	r.Disconnect(s)

	if r.Connected("u-1") {
		t.Fatal("expected u-1 to be deregistered")
	}
	r.Send("u-1", "notification.created", nil)
	select {
	case <-s.Done():
	default:
		t.Fatal("expected stream to be closed")
	}
}

func TestDisconnectOfReplacedStreamKeepsNewer(t *testing.T) {
	r := NewRegistry(testLogger())
	first := r.Connect("u-1")
	_ = r.Connect("u-1")

	r.Disconnect(first)
	if !r.Connected("u-1") {
		t.Fatal("disconnect of stale stream must not evict the newer one")
	}
}

func TestBackedUpStreamIsTornDown(t *testing.T) {
	r := NewRegistry(testLogger())
	other := r.Connect("u-2")
	s := r.Connect("u-1")

	// Fill the buffer without draining; the next send drops the connection.
	for i := 0; i < streamBuffer; i++ {
		r.Send("u-1", "notification.created", i)
	}
	r.Send("u-1", "notification.created", "overflow")

	if r.Connected("u-1") {
		t.Fatal("expected backed-up stream to be deregistered")
	}
	select {
	case <-s.Done():
	default:
		t.Fatal("expected backed-up stream to be closed")
	}
	if !r.Connected("u-2") {
		t.Fatal("other users must be unaffected")
	}
	_ = other
}

func TestConcurrentAccess(t *testing.T) {
	r := NewRegistry(testLogger())
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(3)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s := r.Connect("u-1")
				r.Disconnect(s)
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r.Send("u-1", "notification.created", j)
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r.Connected("u-1")
			}
		}()
	}
	wg.Wait()
}
