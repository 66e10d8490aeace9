package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	mu       sync.Mutex
	messages [][]byte
	fail     bool
	closed   bool
}

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("broken pipe")
	}
	c.messages = append(c.messages, append([]byte(nil), data...))
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) received() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.messages...)
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func startHub(t *testing.T, buffer int) (*Hub, context.CancelFunc) {
	t.Helper()
	hub := NewHub(buffer)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)
	return hub, cancel
}

func TestPublishReachesEveryClient(t *testing.T) {
	hub, _ := startHub(t, 8)
	a, b := &fakeConn{}, &fakeConn{}
	require.NotNil(t, hub.Register(a, 1))
	require.NotNil(t, hub.Register(b, 2))
	require.Eventually(t, func() bool { return hub.ClientCount() == 2 }, time.Second, 5*time.Millisecond)

	hub.Publish(TaskEvent{Type: EventTaskCreated, TaskID: 42})

	for _, conn := range []*fakeConn{a, b} {
		require.Eventually(t, func() bool { return len(conn.received()) == 1 }, time.Second, 5*time.Millisecond)
		var evt TaskEvent
		require.NoError(t, json.Unmarshal(conn.received()[0], &evt))
		assert.Equal(t, EventTaskCreated, evt.Type)
		assert.Equal(t, int64(42), evt.TaskID)
		assert.False(t, evt.At.IsZero())
	}
}

func TestFailingClientIsDropped(t *testing.T) {
	hub, _ := startHub(t, 8)
	good, bad := &fakeConn{}, &fakeConn{fail: true}
	hub.Register(good, 1)
	hub.Register(bad, 2)

	hub.Publish(TaskEvent{Type: EventTaskUpdated, TaskID: 1})

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)
	assert.True(t, bad.isClosed())
	assert.False(t, good.isClosed())
}

func TestUnregisterClosesConnection(t *testing.T) {
	hub, _ := startHub(t, 8)
	conn := &fakeConn{}
	client := hub.Register(conn, 1)

	hub.Unregister(client)
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, time.Second, 5*time.Millisecond)
	assert.True(t, conn.isClosed())

	hub.Unregister(nil)
}

func TestPublishNeverBlocks(t *testing.T) {
	hub := NewHub(2)
	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			hub.Publish(TaskEvent{Type: EventTaskDeleted, TaskID: int64(i)})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full queue")
	}
}

func TestStopClosesClientsAndRejectsNew(t *testing.T) {
	hub, cancel := startHub(t, 8)
	conn := &fakeConn{}
	hub.Register(conn, 1)

	cancel()
	require.Eventually(t, conn.isClosed, time.Second, 5*time.Millisecond)

	late := &fakeConn{}
	require.Eventually(t, func() bool {
		select {
		case <-hub.done:
			return true
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
	assert.Nil(t, hub.Register(late, 2))
	assert.True(t, late.isClosed())
}
