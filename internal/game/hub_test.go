package game

import (
	"strings"
	"sync"
	"testing"
	"time"
)

func TestNewHub(t *testing.T) {
	hub := NewHub()

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

func TestHub_GetClientCount(t *testing.T) {
	hub := NewHub()

	// Initial count should be 0
	if count := hub.GetClientCount(); count != 0 {
		t.Errorf("GetClientCount() = %v, want 0", count)
	}
}

func TestHub_BroadcastDoesNotBlock(t *testing.T) {
	hub := NewHub()

	// Don't start the hub, so the broadcast channel fills up.
	for i := 0; i < 100; i++ {
		hub.Broadcast(map[string]string{"msg": "test"})
	}

	// Next broadcast should drop the message instead of blocking.
	done := make(chan bool, 1)
	go func() {
		hub.Broadcast(map[string]string{"msg": "overflow"})
		done <- true
	}()

	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
		t.Error("Broadcast() blocked when channel was full")
	}
}

func TestHub_ConcurrentBroadcasts(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	var wg sync.WaitGroup
	broadcasts := 100

	for i := 0; i < broadcasts; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			hub.Broadcast(map[string]interface{}{
				"type":  "test",
				"value": n,
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
	case <-time.After(time.Second):
		t.Error("Concurrent broadcasts did not complete")
	}
}

func TestClient_EnqueuePreservesOrder(t *testing.T) {
	client := &Client{
		externalID: "test",
		send:       make(chan []byte, clientSendBuffer),
	}

	messages := []string{"first", "second", "third"}
	for _, m := range messages {
		if !client.enqueue([]byte(m)) {
			t.Fatalf("enqueue(%q) = false, want true", m)
		}
	}

	for _, want := range messages {
		got := string(<-client.send)
		if got != want {
			t.Errorf("dequeued %q, want %q", got, want)
		}
	}
}

func TestClient_EnqueueDropsWhenFull(t *testing.T) {
	client := &Client{
		externalID: "test",
		send:       make(chan []byte, 1),
	}

	if !client.enqueue([]byte("a")) {
		t.Fatal("first enqueue failed on empty buffer")
	}
	if client.enqueue([]byte("b")) {
		t.Error("enqueue succeeded on full buffer, want drop")
	}
}

func TestClient_CloseIsIdempotent(t *testing.T) {
	client := &Client{
		externalID: "test",
		send:       make(chan []byte, 1),
	}

	client.close()
	client.close() // must not panic or double-close the channel

	if client.enqueue([]byte("late")) {
		t.Error("enqueue succeeded on closed client")
	}
}

func TestHub_JoinSnapshotNotOvertakenByQueuedEvents(t *testing.T) {
	for i := 0; i < 20; i++ {
		hub := NewHub()
		hub.OnJoin(func() any {
			return map[string]string{"type": "snapshot"}
		})

		// Ticks queued before the session registers must never reach it;
		// its first message is the join snapshot.
		hub.Broadcast(map[string]string{"type": "tick", "seq": "1"})
		hub.Broadcast(map[string]string{"type": "tick", "seq": "2"})

		go hub.Run()
		client := hub.RegisterClient(nil, "late-joiner")

		select {
		case data := <-client.send:
			if !strings.Contains(string(data), "snapshot") {
				t.Fatalf("first message to a fresh session = %s, want the join snapshot", data)
			}
		case <-time.After(time.Second):
			t.Fatal("fresh session never received the join snapshot")
		}

		select {
		case data := <-client.send:
			t.Fatalf("fresh session received a pre-join event: %s", data)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestHub_RemoveEvictsClient(t *testing.T) {
	hub := NewHub()
	client := &Client{
		externalID: "test",
		send:       make(chan []byte, 1),
	}

	hub.mu.Lock()
	hub.clients[client] = true
	hub.mu.Unlock()

	hub.remove(client)
	if count := hub.GetClientCount(); count != 0 {
		t.Errorf("GetClientCount() after remove = %v, want 0", count)
	}

	// Removing again is a no-op.
	hub.remove(client)
}
