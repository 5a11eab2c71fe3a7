package server

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skidoodle/watchparty/internal/store"
	"skidoodle/watchparty/internal/watch"
)

type received struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func readMessage(t *testing.T, conn *websocket.Conn) received {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var m received
	require.NoError(t, conn.ReadJSON(&m))
	return m
}

func TestWatcherRecordsActivity(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub()
	go hub.Run(ctx)
	activity := NewActivityLog()
	w := NewWatcher(store.NewMemory(), hub, activity, time.Minute)

	ts := time.Date(2024, 5, 1, 20, 0, 0, 0, time.UTC)
	np := watch.Promote(watch.QueueItem{VideoID: "aaaaaaaaaaa", Title: "A"},
		watch.PlaybackStatus{Action: watch.ActionPlay, User: "ana", Timestamp: ts, Details: "A"})

	w.updateNowPlaying(np)
	assert.Empty(t, activity.Entries())

	w.updateNowPlaying(np)
	assert.Empty(t, activity.Entries())

	np.Status = watch.PlaybackStatus{Action: watch.ActionPause, User: "bo", Position: 12, Timestamp: ts.Add(12 * time.Second), Details: "A"}
	w.updateNowPlaying(np)
	require.Len(t, activity.Entries(), 1)
	assert.Equal(t, watch.ActivityEntry{
		Timestamp: ts.Add(12 * time.Second), User: "bo", Action: watch.ActionPause, Details: "A",
	}, activity.Entries()[0])
}

func TestActivityLogKeepsNewest(t *testing.T) {
	l := NewActivityLog()
	for i := 0; i < activityLimit+10; i++ {
		l.Append(watch.ActivityEntry{User: "ana", Action: watch.ActionPlay, Details: string(rune('a' + i%26))})
	}
	entries := l.Entries()
	assert.Len(t, entries, activityLimit)
	assert.Equal(t, string(rune('a'+(activityLimit+9)%26)), entries[0].Details)
}

func TestWebsocketReceivesChanges(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mem := store.NewMemory()
	s := NewServer(mem, Options{WatchInterval: time.Minute})
	wg := s.StartWorkers(ctx)
	defer wg.Wait()
	defer cancel()

	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	require.Eventually(t, func() bool { return !s.watcher.LastModified().IsZero() }, 2*time.Second, 10*time.Millisecond)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, MessageNowPlaying, readMessage(t, conn).Type)
	assert.Equal(t, MessageQueue, readMessage(t, conn).Type)

	require.NoError(t, mem.WriteQueue(context.Background(), []watch.QueueItem{{VideoID: "aaaaaaaaaaa"}}))
	s.watcher.Trigger()

	m := readMessage(t, conn)
	assert.Equal(t, MessageQueue, m.Type)
	var queue []watch.QueueItem
	require.NoError(t, json.Unmarshal(m.Payload, &queue))
	require.Len(t, queue, 1)
	assert.Equal(t, "aaaaaaaaaaa", queue[0].VideoID)
}
