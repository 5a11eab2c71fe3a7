package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"skidoodle/watchparty/internal/player"
	"skidoodle/watchparty/internal/remote"
	"skidoodle/watchparty/internal/store"
	"skidoodle/watchparty/internal/watch"
)

var (
	flagDirect   bool
	flagUser     string
	flagAutoJoin bool
	flagDuration time.Duration
	flagTitle    string
)

var joinCmd = &cobra.Command{
	Use:   "join",
	Short: "Run a headless participant with a simulated player",
	Args:  cobra.NoArgs,
	RunE:  runJoin,
}

var addCmd = &cobra.Command{
	Use:   "add <url>",
	Short: "Add a video to the shared queue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return oneShot(cmd, func(ctx context.Context, c *watch.Client) error {
			return c.AddVideo(ctx, args[0], flagTitle)
		})
	},
}

var skipCmd = &cobra.Command{
	Use:   "skip",
	Short: "Skip the current video",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return oneShot(cmd, skip)
	},
}

func init() {
	for _, c := range []*cobra.Command{joinCmd, addCmd, skipCmd} {
		c.Flags().BoolVar(&flagDirect, "direct", false, "use the configured STORE instead of the server at SERVER_URL")
		c.Flags().StringVar(&flagUser, "user", "", "display name recorded on writes (default WATCH_USER)")
	}
	joinCmd.Flags().BoolVar(&flagAutoJoin, "auto-join", false, "sync with the session immediately")
	joinCmd.Flags().DurationVar(&flagDuration, "duration", 3*time.Minute, "length of every simulated video")
	addCmd.Flags().StringVar(&flagTitle, "title", "", "title shown in the queue")
}

// session is the store a participant talks to.
type session struct {
	store  watch.Store
	remote *remote.Client
	close  func()
}

func openSession(ctx context.Context) (*session, error) {
	if !flagDirect {
		rc := remote.New(cfg.ServerURL, nil)
		return &session{store: rc, remote: rc, close: func() {}}, nil
	}
	backend, err := store.Open(ctx, storeOptions())
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return &session{
		store: backend,
		close: func() {
			if err := backend.Close(); err != nil {
				log.WithError(err).Warn("failed to close store")
			}
		},
	}, nil
}

func user() string {
	if flagUser != "" {
		return flagUser
	}
	return cfg.User
}

func oneShot(cmd *cobra.Command, fn func(context.Context, *watch.Client) error) error {
	ctx, stop := signalContext()
	defer stop()

	sess, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer sess.close()

	out := &console{out: cmd.OutOrStdout()}
	c := watch.NewClient(sess.store, player.NewSimulated(0, nil), watch.Options{
		User:     user(),
		Listener: out,
	})
	return fn(ctx, c)
}

// skip publishes Next and performs the advance itself, since a one-shot
// participant may be the only one around.
func skip(ctx context.Context, c *watch.Client) error {
	if err := c.Skip(ctx); err != nil {
		return err
	}
	if cur := c.Current(); cur.Transitioning() {
		if _, err := c.AdvanceFrom(ctx, cur); err != nil {
			return fmt.Errorf("advance queue: %w", err)
		}
	}
	return nil
}

func runJoin(cmd *cobra.Command, _ []string) error {
	ctx, stop := signalContext()
	defer stop()

	sess, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer sess.close()

	out := &console{out: cmd.OutOrStdout()}
	sim := player.NewSimulated(flagDuration, nil)
	defer sim.Stop()

	c := watch.NewClient(sess.store, sim, watch.Options{
		User:         user(),
		PollInterval: cfg.PollInterval,
		Listener:     out,
	})
	sim.SetEvents(player.Events{
		OnPlaying: func(position float64) {
			if err := c.OnPlaying(ctx, position); err != nil {
				log.WithError(err).Warn("failed to publish play")
			}
		},
		OnEnded: func() {
			if err := c.OnEnded(ctx); err != nil {
				log.WithError(err).Warn("failed to publish video end")
			}
		},
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.Run(ctx)
	}()
	if sess.remote != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sess.remote.Subscribe(ctx, func(remote.Update) { c.Nudge() })
		}()
	}

	if flagAutoJoin {
		if err := c.Join(ctx); err != nil {
			log.WithError(err).Warn("failed to join session")
		}
	}

	out.printf("joined as %s; commands: play, pause, next, skip, add <url> [title], sync, queue, now, quit\n", user())
	err = repl(ctx, c, sess.store, cmd.InOrStdin(), out)
	stop()
	wg.Wait()
	return err
}

// repl executes one command per input line until EOF, quit or ctx ends.
func repl(ctx context.Context, c *watch.Client, st watch.Store, in io.Reader, out *console) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			quit, err := execute(ctx, c, st, line, out)
			if err != nil && !isNotice(err) {
				out.printf("error: %v\n", err)
			}
			if quit {
				return nil
			}
		}
	}
}

func execute(ctx context.Context, c *watch.Client, st watch.Store, line string, out *console) (quit bool, err error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}
	switch fields[0] {
	case "play":
		return false, c.Play(ctx)
	case "pause":
		return false, c.Pause(ctx)
	case "next":
		_, err := c.Publish(ctx, watch.ActionNext, nil, "")
		return false, err
	case "skip":
		return false, c.Skip(ctx)
	case "add":
		if len(fields) < 2 {
			out.printf("usage: add <url> [title]\n")
			return false, nil
		}
		return false, c.AddVideo(ctx, fields[1], strings.Join(fields[2:], " "))
	case "sync":
		return false, c.Join(ctx)
	case "queue":
		queue, err := st.ReadQueue(ctx)
		if err != nil {
			return false, err
		}
		out.queue(queue)
	case "now":
		out.nowPlaying(c.Current())
	case "quit", "exit":
		return true, nil
	default:
		out.printf("unknown command %q\n", fields[0])
	}
	return false, nil
}

// isNotice reports errors the listener already showed to the user.
func isNotice(err error) bool {
	return errors.Is(err, watch.ErrInvalidVideoID) ||
		errors.Is(err, watch.ErrAlreadyPlaying) ||
		errors.Is(err, watch.ErrAlreadyQueued)
}

// console prints what a participant sees.
type console struct {
	mu  sync.Mutex
	out io.Writer
}

var _ watch.Listener = (*console)(nil)

func (c *console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintf(c.out, format, args...)
}

func (c *console) OnQueueChanged(queue []watch.QueueItem) { c.queue(queue) }

func (c *console) OnNowPlayingChanged(np watch.NowPlaying) { c.nowPlaying(np) }

func (c *console) OnNotice(msg string) { c.printf("! %s\n", msg) }

func (c *console) queue(queue []watch.QueueItem) {
	pending := watch.Pending(queue)
	if len(pending) == 0 {
		c.printf("queue: empty\n")
		return
	}
	var b strings.Builder
	fmt.Fprintf(&b, "queue: %d pending\n", len(pending))
	for i, it := range pending {
		fmt.Fprintf(&b, "  %d. %s (%s)\n", i+1, it.Label(), it.AddedBy)
	}
	c.printf("%s", b.String())
}

func (c *console) nowPlaying(np watch.NowPlaying) {
	switch {
	case np.Idle():
		c.printf("now playing: nothing\n")
	case np.Transitioning():
		c.printf("now playing: waiting for the next video\n")
	default:
		c.printf("now playing: %s [%s by %s at %.0fs]\n",
			np.Label(), np.Status.Action, np.Status.User, watch.Reconcile(np.Status, time.Now()))
	}
}
