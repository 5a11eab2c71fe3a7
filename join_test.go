package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skidoodle/watchparty/internal/player"
	"skidoodle/watchparty/internal/store"
	"skidoodle/watchparty/internal/watch"
)

func newParticipant(t *testing.T) (*watch.Client, *store.Memory, *console, *bytes.Buffer) {
	t.Helper()
	st := store.NewMemory()
	var buf bytes.Buffer
	out := &console{out: &buf}
	sim := player.NewSimulated(0, nil)
	t.Cleanup(sim.Stop)
	c := watch.NewClient(st, sim, watch.Options{User: "alice", Listener: out})
	return c, st, out, &buf
}

func TestExecuteAddAndQueue(t *testing.T) {
	ctx := context.Background()
	c, st, out, buf := newParticipant(t)

	quit, err := execute(ctx, c, st, "add dQw4w9WgXcQ Never Gonna", out)
	require.NoError(t, err)
	assert.False(t, quit)

	np, err := st.ReadNowPlaying(ctx)
	require.NoError(t, err)
	assert.Equal(t, "dQw4w9WgXcQ", np.VideoID)
	assert.Equal(t, "Never Gonna", np.Title)

	_, err = execute(ctx, c, st, "add https://youtu.be/9bZkp7q19f0", out)
	require.NoError(t, err)
	queue, err := st.ReadQueue(ctx)
	require.NoError(t, err)
	require.Len(t, queue, 1)
	assert.Equal(t, "9bZkp7q19f0", queue[0].VideoID)

	buf.Reset()
	_, err = execute(ctx, c, st, "queue", out)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "queue: 1 pending")
	assert.Contains(t, buf.String(), "(alice)")

	buf.Reset()
	_, err = execute(ctx, c, st, "add dQw4w9WgXcQ", out)
	assert.ErrorIs(t, err, watch.ErrAlreadyPlaying)
	assert.True(t, isNotice(err))
	assert.Contains(t, buf.String(), "already playing")
}

func TestExecuteUnknownAndQuit(t *testing.T) {
	ctx := context.Background()
	c, st, out, buf := newParticipant(t)

	quit, err := execute(ctx, c, st, "rewind", out)
	require.NoError(t, err)
	assert.False(t, quit)
	assert.Contains(t, buf.String(), `unknown command "rewind"`)

	quit, err = execute(ctx, c, st, "   ", out)
	require.NoError(t, err)
	assert.False(t, quit)

	quit, err = execute(ctx, c, st, "quit", out)
	require.NoError(t, err)
	assert.True(t, quit)
}

func TestSkipAdvancesWithoutOtherParticipants(t *testing.T) {
	ctx := context.Background()
	c, st, out, _ := newParticipant(t)

	_, err := execute(ctx, c, st, "add dQw4w9WgXcQ", out)
	require.NoError(t, err)
	_, err = execute(ctx, c, st, "add 9bZkp7q19f0", out)
	require.NoError(t, err)

	require.NoError(t, skip(ctx, c))

	np, err := st.ReadNowPlaying(ctx)
	require.NoError(t, err)
	assert.Equal(t, "9bZkp7q19f0", np.VideoID)
	queue, err := st.ReadQueue(ctx)
	require.NoError(t, err)
	assert.Empty(t, watch.Pending(queue))
}

func TestSkipWithEmptyQueueIsNoop(t *testing.T) {
	ctx := context.Background()
	c, st, out, buf := newParticipant(t)

	_, err := execute(ctx, c, st, "add dQw4w9WgXcQ", out)
	require.NoError(t, err)

	require.NoError(t, skip(ctx, c))
	np, err := st.ReadNowPlaying(ctx)
	require.NoError(t, err)
	assert.Equal(t, "dQw4w9WgXcQ", np.VideoID)
	assert.Contains(t, buf.String(), "The queue is empty.")
}

func TestReplStopsAtQuit(t *testing.T) {
	ctx := context.Background()
	c, st, out, buf := newParticipant(t)

	in := strings.NewReader("now\nquit\nadd dQw4w9WgXcQ\n")
	require.NoError(t, repl(ctx, c, st, in, out))

	assert.Contains(t, buf.String(), "now playing: nothing")
	np, err := st.ReadNowPlaying(ctx)
	require.NoError(t, err)
	assert.True(t, np.Idle())
}
