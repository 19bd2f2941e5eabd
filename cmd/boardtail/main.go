// boardtail follows a board from the terminal. It keeps a live replica with
// the same client store a browser would use and redraws the board whenever
// an event lands.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/gosuda/ideaboard/internal/boardclient"
	"github.com/gosuda/ideaboard/internal/event"
)

type options struct {
	server    string
	token     string
	transport string
	room      string
	query     string
	column    string
	creators  []string
	hidden    []string
	width     int
	interval  time.Duration
	once      bool
	logLevel  string
}

func main() {
	if err := run(); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var opts options
	flagSet := pflag.NewFlagSet("boardtail", pflag.ContinueOnError)
	flagSet.StringVar(&opts.server, "server", envOr("IDEABOARD_SERVER", "http://localhost:8080"), "server base URL")
	flagSet.StringVar(&opts.token, "token", os.Getenv("IDEABOARD_TOKEN"), "bearer access token; without one the event stream is used read-only")
	flagSet.StringVar(&opts.transport, "transport", "auto", "auto (websocket, falling back to sse) or sse")
	flagSet.StringVar(&opts.room, "room", "", "room to follow instead of the default")
	flagSet.StringVarP(&opts.query, "query", "q", "", "show only cards matching this text")
	flagSet.StringVar(&opts.column, "column", "", "show only the column with this name")
	flagSet.StringArrayVar(&opts.creators, "creator", nil, "show only cards by this creator name (repeatable)")
	flagSet.StringArrayVar(&opts.hidden, "hide", nil, "hide the column with this name (repeatable)")
	flagSet.IntVar(&opts.width, "width", 28, "column width in cells")
	flagSet.DurationVar(&opts.interval, "interval", 200*time.Millisecond, "minimum time between redraws")
	flagSet.BoolVar(&opts.once, "once", false, "print the board once and exit")
	flagSet.StringVar(&opts.logLevel, "log-level", "warn", "log level")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		return err
	}
	if args := flagSet.Args(); len(args) > 0 {
		return fmt.Errorf("unexpected argument: %s", args[0])
	}

	level, err := zerolog.ParseLevel(opts.logLevel)
	if err != nil {
		return fmt.Errorf("invalid --log-level: %w", err)
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).With().Timestamp().Logger()

	sseOnly, err := boardclient.ParseTransport(opts.transport)
	if err != nil {
		return err
	}

	client, err := boardclient.NewClient(boardclient.ClientConfig{BaseURL: opts.server, Token: opts.token})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.once {
		snap, err := client.Board(ctx)
		if err != nil {
			return err
		}
		store := boardclient.NewStore()
		store.Load(snap, event.Cursor{})
		fmt.Println(newView(opts).render(store, statusLine{}))
		return nil
	}

	return follow(ctx, client, opts, sseOnly)
}

func follow(ctx context.Context, client *boardclient.Client, opts options, sseOnly bool) error {
	dirty := make(chan struct{}, 1)
	mark := func() {
		select {
		case dirty <- struct{}{}:
		default:
		}
	}

	var (
		mu     sync.Mutex
		status statusLine
	)
	store := boardclient.NewStore(boardclient.WithHooks(boardclient.Hooks{
		OnChange: func(typ event.Type) {
			mu.Lock()
			if typ != "" {
				status.lastEvent = string(typ)
			}
			mu.Unlock()
			mark()
		},
	}))

	follower := boardclient.NewFollower(client, store, boardclient.FollowOptions{
		Room:    opts.room,
		SSEOnly: sseOnly,
		OnStatus: func(s boardclient.Status) {
			mu.Lock()
			status.connected = s.Connected
			if s.Connected {
				status.transport = string(s.Transport)
				status.err = ""
			} else if s.Err != nil {
				status.err = s.Err.Error()
			}
			mu.Unlock()
			mark()
		},
	})

	done := make(chan error, 1)
	go func() { done <- follower.Run(ctx) }()

	v := newView(opts)
	var last string
	for {
		select {
		case err := <-done:
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		case <-dirty:
		}

		mu.Lock()
		st := status
		mu.Unlock()

		frame := v.render(store, st)
		if frame != last {
			// Clear the screen and home the cursor.
			fmt.Print("\x1b[H\x1b[2J" + frame + "\n")
			last = frame
		}

		select {
		case <-ctx.Done():
		case <-time.After(opts.interval):
		}
	}
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
