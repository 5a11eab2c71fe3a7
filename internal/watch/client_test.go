package watch_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skidoodle/watchparty/internal/store"
	"skidoodle/watchparty/internal/watch"
)

type participant struct {
	client   *watch.Client
	player   *fakePlayer
	listener *recordingListener
}

func join(t *testing.T, s watch.Store, clk *clock, user string) participant {
	t.Helper()
	p := participant{player: &fakePlayer{}, listener: &recordingListener{}}
	p.client = watch.NewClient(s, p.player, watch.Options{User: user, Now: clk.Now, Listener: p.listener})
	require.NoError(t, p.client.Join(context.Background()))
	return p
}

func TestWatchSession(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	mem := store.NewMemory()

	ana := join(t, mem, clk, "ana")
	assert.Empty(t, ana.player.Calls())

	// Nothing is current, so the first video starts right away.
	require.NoError(t, ana.client.AddVideo(ctx, "https://youtu.be/aaaaaaaaaaa", "A"))
	assert.Equal(t, []string{"load aaaaaaaaaaa 0"}, ana.player.Calls())
	require.NoError(t, ana.client.AddVideo(ctx, "bbbbbbbbbbb", "B"))

	queue, err := mem.ReadQueue(ctx)
	require.NoError(t, err)
	require.Len(t, queue, 1)
	assert.Equal(t, watch.WatchURL("bbbbbbbbbbb"), queue[0].URL)
	assert.Equal(t, watch.ThumbnailURL("bbbbbbbbbbb"), queue[0].Thumbnail)
	assert.Equal(t, "ana", queue[0].AddedBy)

	// A late viewer lands at the reconciled position.
	clk.Advance(10 * time.Second)
	bo := join(t, mem, clk, "bo")
	assert.Equal(t, []string{"load aaaaaaaaaaa 10"}, bo.player.Calls())

	// Pause propagates on the next poll.
	ana.player.Seek(10)
	require.NoError(t, ana.client.Pause(ctx))
	bo.player.Reset()
	bo.client.Poll(ctx)
	assert.Equal(t, []string{"pause"}, bo.player.Calls())

	// Pausing again writes nothing new.
	before, err := mem.ReadNowPlaying(ctx)
	require.NoError(t, err)
	clk.Advance(time.Second)
	require.NoError(t, bo.client.Pause(ctx))
	after, err := mem.ReadNowPlaying(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	// The video ends for ana; ana advances immediately and bo follows.
	require.NoError(t, ana.client.Play(ctx))
	require.NoError(t, ana.client.OnEnded(ctx))
	np, err := mem.ReadNowPlaying(ctx)
	require.NoError(t, err)
	assert.Equal(t, "bbbbbbbbbbb", np.VideoID)
	assert.Equal(t, watch.ActionPlay, np.Status.Action)

	bo.player.Reset()
	bo.client.Poll(ctx)
	assert.Equal(t, []string{"load bbbbbbbbbbb 0"}, bo.player.Calls())

	queue, err = mem.ReadQueue(ctx)
	require.NoError(t, err)
	assert.Empty(t, queue)
}

func TestJoinAfterPauseLandsOnPausedPosition(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	mem := store.NewMemory()

	// Advancing an empty session does nothing.
	ok, err := watch.NewAdvancer(mem, "ana", clk.Now).Advance(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	np, err := mem.ReadNowPlaying(ctx)
	require.NoError(t, err)
	assert.True(t, np.Idle())

	ana := join(t, mem, clk, "ana")
	bo := join(t, mem, clk, "bo")
	require.NoError(t, ana.client.AddVideo(ctx, "xxxxxxxxxxx", "X"))

	// bo goes from idle to playing X from the start on the next poll.
	bo.client.Poll(ctx)
	assert.Equal(t, []string{"load xxxxxxxxxxx 0"}, bo.player.Calls())
	assert.Equal(t, "xxxxxxxxxxx", bo.client.Current().VideoID)
	assert.Equal(t, watch.ActionPlay, bo.client.Current().Status.Action)
	assert.Zero(t, bo.client.Current().Status.Position)

	clk.Advance(17 * time.Second)
	ana.player.Seek(17)
	require.NoError(t, ana.client.Pause(ctx))
	np, err = mem.ReadNowPlaying(ctx)
	require.NoError(t, err)
	assert.Equal(t, watch.ActionPause, np.Status.Action)
	assert.Equal(t, 17.0, np.Status.Position)

	// A paused record is not extrapolated, however late the viewer joins.
	clk.Advance(45 * time.Second)
	cy := join(t, mem, clk, "cy")
	assert.Equal(t, []string{"cue xxxxxxxxxxx 17"}, cy.player.Calls())
	assert.Equal(t, 17.0, cy.player.Position())

	bo.player.Reset()
	bo.client.Poll(ctx)
	assert.Equal(t, []string{"pause", "seek 17"}, bo.player.Calls())
}

func TestAddVideoRejectsDuplicates(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	mem := store.NewMemory()
	ana := join(t, mem, clk, "ana")

	require.NoError(t, ana.client.AddVideo(ctx, "aaaaaaaaaaa", "A"))
	require.NoError(t, ana.client.AddVideo(ctx, "bbbbbbbbbbb", "B"))

	assert.ErrorIs(t, ana.client.AddVideo(ctx, "https://www.youtube.com/watch?v=aaaaaaaaaaa", ""), watch.ErrAlreadyPlaying)
	assert.ErrorIs(t, ana.client.AddVideo(ctx, "https://youtu.be/bbbbbbbbbbb", ""), watch.ErrAlreadyQueued)
	assert.ErrorIs(t, ana.client.AddVideo(ctx, "https://example.com", ""), watch.ErrInvalidVideoID)
	assert.Len(t, ana.listener.Notices(), 3)

	queue, err := mem.ReadQueue(ctx)
	require.NoError(t, err)
	assert.Len(t, queue, 1)
}

func TestAddVideoWhileWaitingForNext(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	mem := store.NewMemory()
	seed(t, mem, watch.Transition(watch.PlaybackStatus{Timestamp: clk.Now(), Details: "Old"}))

	ana := join(t, mem, clk, "ana")
	require.NoError(t, ana.client.AddVideo(ctx, "aaaaaaaaaaa", "A"))

	np, err := mem.ReadNowPlaying(ctx)
	require.NoError(t, err)
	assert.Equal(t, "aaaaaaaaaaa", np.VideoID)
	assert.Equal(t, []string{"load aaaaaaaaaaa 0"}, ana.player.Calls())
}

func TestSkip(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	mem := store.NewMemory()
	seed(t, mem, playing("aaaaaaaaaaa", watch.ActionPlay, 0, clk.Now()))
	ana := join(t, mem, clk, "ana")

	// Nothing pending: the current video keeps playing.
	require.NoError(t, ana.client.Skip(ctx))
	np, err := mem.ReadNowPlaying(ctx)
	require.NoError(t, err)
	assert.Equal(t, "aaaaaaaaaaa", np.VideoID)
	assert.Equal(t, []string{"The queue is empty."}, ana.listener.Notices())

	require.NoError(t, mem.WriteQueue(ctx, []watch.QueueItem{queued("bbbbbbbbbbb", "B")}))
	require.NoError(t, ana.client.Skip(ctx))
	np, err = mem.ReadNowPlaying(ctx)
	require.NoError(t, err)
	assert.Equal(t, "bbbbbbbbbbb", np.VideoID)
}

func TestOnPlayingRecordsFirstPlay(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	mem := store.NewMemory()
	np := playing("aaaaaaaaaaa", watch.ActionPause, 0, clk.Now())
	seed(t, mem, np)

	ana := join(t, mem, clk, "ana")
	require.NoError(t, ana.client.OnPlaying(ctx, 0))

	got, err := mem.ReadNowPlaying(ctx)
	require.NoError(t, err)
	assert.Equal(t, watch.ActionPlay, got.Status.Action)
	assert.Equal(t, "ana", got.Status.User)
}

func TestOnPlayerError(t *testing.T) {
	clk := newClock()
	mem := store.NewMemory()
	seed(t, mem, playing("aaaaaaaaaaa", watch.ActionPlay, 0, clk.Now()))
	ana := join(t, mem, clk, "ana")
	ana.player.Reset()

	ana.client.OnPlayerError(100)
	assert.Empty(t, ana.player.Calls())

	ana.client.OnPlayerError(5)
	assert.Equal(t, []string{"cue aaaaaaaaaaa 0"}, ana.player.Calls())
	assert.Equal(t, []string{
		"Error playing video. Video not found or removed.",
		"Error playing video. HTML5 player error.",
	}, ana.listener.Notices())
}

func TestUnjoinedClientOnlyCues(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	mem := store.NewMemory()
	seed(t, mem, playing("aaaaaaaaaaa", watch.ActionPlay, 5, clk.Now()))

	player := &fakePlayer{}
	c := watch.NewClient(mem, player, watch.Options{User: "cy", Now: clk.Now})
	c.Poll(ctx)
	assert.False(t, c.Joined())
	assert.Equal(t, []string{"cue aaaaaaaaaaa 5"}, player.Calls())

	require.NoError(t, c.Join(ctx))
	assert.Equal(t, []string{"cue aaaaaaaaaaa 5", "seek 5", "play"}, player.Calls())
}
