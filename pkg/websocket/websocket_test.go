package websocket

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConn(id, userID string) *Connection {
	return &Connection{
		ID:       id,
		UserID:   userID,
		Send:     make(chan []byte, 16),
		LastPing: time.Now(),
		IsAlive:  true,
	}
}

func TestHubRegisterAndLookup(t *testing.T) {
	hub := NewHub(nil)
	defer hub.Close()

	conn := testConn("handle_1", "user_1")
	hub.register <- conn
	time.Sleep(100 * time.Millisecond)

	assert.Equal(t, int64(1), hub.GetConnectionCount())
	handle, ok := hub.Directory().Lookup("user_1")
	require.True(t, ok)
	assert.Equal(t, "handle_1", handle)

	hub.unregister <- conn
	time.Sleep(100 * time.Millisecond)

	assert.Equal(t, int64(0), hub.GetConnectionCount())
	assert.False(t, hub.Directory().Online("user_1"))
}

func TestHubNewConnectionSupersedesOld(t *testing.T) {
	hub := NewHub(nil)
	defer hub.Close()

	first := testConn("handle_1", "user_1")
	second := testConn("handle_2", "user_1")

	hub.register <- first
	hub.register <- second
	time.Sleep(100 * time.Millisecond)

	handle, ok := hub.Directory().Lookup("user_1")
	require.True(t, ok)
	assert.Equal(t, "handle_2", handle)
	assert.False(t, first.IsAlive)

	// the superseded connection unregistering late must not evict the new one
	hub.unregister <- first
	time.Sleep(100 * time.Millisecond)

	handle, ok = hub.Directory().Lookup("user_1")
	require.True(t, ok)
	assert.Equal(t, "handle_2", handle)
}

func TestDirectoryRemoveHandleIdempotent(t *testing.T) {
	dir := NewDirectory()
	dir.Register("user_1", "handle_1")

	dir.RemoveHandle("handle_1")
	dir.RemoveHandle("handle_1")
	dir.RemoveHandle("never_existed")

	assert.False(t, dir.Online("user_1"))
	assert.Equal(t, 0, dir.Count())
}

func TestSendToUser(t *testing.T) {
	hub := NewHub(nil)
	defer hub.Close()

	conn := testConn("handle_1", "user_1")
	hub.register <- conn
	time.Sleep(100 * time.Millisecond)

	ok := hub.SendToUser("user_1", EventSOSAlert, map[string]string{"id": "sos_1"})
	require.True(t, ok)

	select {
	case raw := <-conn.Send:
		var evt Event
		require.NoError(t, json.Unmarshal(raw, &evt))
		assert.Equal(t, EventSOSAlert, evt.Event)
	case <-time.After(time.Second):
		t.Fatal("no event queued")
	}

	// offline recipient: best-effort push reports false
	assert.False(t, hub.SendToUser("user_2", EventSOSAlert, nil))
}

func TestSendToUserDropsWhenBufferFull(t *testing.T) {
	hub := NewHub(nil)
	defer hub.Close()

	conn := testConn("handle_1", "user_1")
	conn.Send = make(chan []byte) // unbuffered, nobody reading
	hub.register <- conn
	time.Sleep(100 * time.Millisecond)

	assert.False(t, hub.SendToUser("user_1", EventReminder, nil))
}

func TestLocationHandlerRouting(t *testing.T) {
	hub := NewHub(nil)
	defer hub.Close()

	var gotUser string
	var gotPayload []byte
	hub.SetLocationHandler(func(userID string, payload []byte) {
		gotUser = userID
		gotPayload = payload
	})

	conn := testConn("handle_1", "responder_1")
	conn.Hub = hub
	msg := []byte(`{"event":"volunteerLocationUpdate","data":{"sosId":"sos_1","latitude":12.97,"longitude":77.59}}`)
	conn.handleMessage(msg)

	assert.Equal(t, "responder_1", gotUser)
	assert.JSONEq(t, `{"sosId":"sos_1","latitude":12.97,"longitude":77.59}`, string(gotPayload))
}

func TestBroadcast(t *testing.T) {
	hub := NewHub(nil)
	defer hub.Close()

	conn1 := testConn("handle_1", "user_1")
	conn2 := testConn("handle_2", "user_2")
	hub.register <- conn1
	hub.register <- conn2
	time.Sleep(100 * time.Millisecond)

	hub.Broadcast(EventNewSOS, map[string]string{"id": "sos_1"})

	for _, conn := range []*Connection{conn1, conn2} {
		select {
		case raw := <-conn.Send:
			var evt Event
			require.NoError(t, json.Unmarshal(raw, &evt))
			assert.Equal(t, EventNewSOS, evt.Event)
		case <-time.After(time.Second):
			t.Fatal("no event queued")
		}
	}
}
