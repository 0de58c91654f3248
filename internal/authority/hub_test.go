package authority

import (
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"croupier/internal/transport"
)

func TestNewHub(t *testing.T) {
	hub := NewHub(zap.NewNop())

	if hub == nil {
		t.Fatal("NewHub() returned nil")
	}
	if hub.clients == nil {
		t.Error("Hub clients map is nil")
	}
	if hub.broadcast == nil {
		t.Error("Hub broadcast channel is nil")
	}
	if hub.register == nil {
		t.Error("Hub register channel is nil")
	}
	if hub.unregister == nil {
		t.Error("Hub unregister channel is nil")
	}
}

func TestHub_ClientCount(t *testing.T) {
	hub := NewHub(zap.NewNop())

	if count := hub.ClientCount(); count != 0 {
		t.Errorf("ClientCount() = %v, want 0", count)
	}
}

func TestHub_BroadcastChannelFull(t *testing.T) {
	hub := NewHub(zap.NewNop())

	// The hub is not running, so the buffer fills up.
	for i := 0; i < 100; i++ {
		hub.Broadcast(transport.Event{Type: transport.EventMultiplierUpdate})
	}

	// The next broadcast must drop, never block the round loop.
	done := make(chan bool, 1)
	go func() {
		hub.Broadcast(transport.Event{Type: transport.EventGameCrashed})
		done <- true
	}()

	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
		t.Error("Broadcast() blocked when channel was full")
	}
}

func TestHub_ConcurrentBroadcasts(t *testing.T) {
	hub := NewHub(zap.NewNop())
	go hub.Run()

	time.Sleep(10 * time.Millisecond)

	var wg sync.WaitGroup
	broadcasts := 100

	for i := 0; i < broadcasts; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			hub.Broadcast(transport.Event{
				Type:           transport.EventMultiplierUpdate,
				MultiplierX100: int64(n),
			})
		}(i)
	}

	done := make(chan bool)
	go func() {
		wg.Wait()
		done <- true
	}()

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Error("Concurrent broadcasts timed out")
	}
}
