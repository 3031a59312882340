package hub

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeConn records writes and blocks reads until closed.
type fakeConn struct {
	writes chan []byte
	closed chan struct{}
	once   sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{writes: make(chan []byte, 16), closed: make(chan struct{})}
}

func (c *fakeConn) SetReadLimit(int64)                        {}
func (c *fakeConn) SetReadDeadline(time.Time) error           { return nil }
func (c *fakeConn) SetWriteDeadline(time.Time) error          { return nil }
func (c *fakeConn) SetPongHandler(func(appData string) error) {}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	<-c.closed
	return 0, nil, errors.New("closed")
}

func (c *fakeConn) WriteMessage(typ int, data []byte) error {
	select {
	case <-c.closed:
		return errors.New("closed")
	default:
	}
	if typ == textMessage {
		c.writes <- data
	}
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestHub_BroadcastReachesClients(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := New("test")
	go h.Run(ctx)
	waitFor(t, h.IsRunning)

	conns := []*fakeConn{newFakeConn(), newFakeConn()}
	for _, conn := range conns {
		go NewClient(h, conn).Run()
	}
	waitFor(t, func() bool { return h.ClientCount() == 2 })

	if err := h.BroadcastMessage("state", map[string]int{"seq": 7}); err != nil {
		t.Fatalf("BroadcastMessage: %v", err)
	}

	for i, conn := range conns {
		select {
		case data := <-conn.writes:
			var msg Message
			if err := json.Unmarshal(data, &msg); err != nil {
				t.Fatalf("client %d: %v", i, err)
			}
			if msg.Type != "state" || string(msg.Data) != `{"seq":7}` {
				t.Errorf("client %d got %s", i, data)
			}
		case <-time.After(time.Second):
			t.Fatalf("client %d got nothing", i)
		}
	}
}

func TestHub_ClientDisconnect(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := New("test")
	go h.Run(ctx)
	waitFor(t, h.IsRunning)

	conn := newFakeConn()
	go NewClient(h, conn).Run()
	waitFor(t, func() bool { return h.ClientCount() == 1 })

	conn.Close()
	waitFor(t, func() bool { return h.ClientCount() == 0 })
}

func TestHub_RunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := New("test")
	go h.Run(ctx)
	waitFor(t, h.IsRunning)

	conn := newFakeConn()
	go NewClient(h, conn).Run()
	waitFor(t, func() bool { return h.ClientCount() == 1 })

	cancel()
	select {
	case <-h.Done():
	case <-time.After(time.Second):
		t.Fatal("hub did not stop")
	}
	if h.IsRunning() || h.ClientCount() != 0 {
		t.Errorf("running=%v clients=%d after cancel", h.IsRunning(), h.ClientCount())
	}

	// Closing the send channel makes the write pump close the connection.
	select {
	case <-conn.closed:
	case <-time.After(time.Second):
		t.Error("connection not closed")
	}

	// Registering after shutdown does not block.
	c := NewClient(h, newFakeConn())
	if _, ok := <-c.send; ok {
		t.Error("late client send channel open")
	}
}

func TestHub_BroadcastWithoutRunDoesNotBlock(t *testing.T) {
	h := New("idle")
	for i := 0; i < 1000; i++ {
		h.Broadcast([]byte("x"))
	}
}
