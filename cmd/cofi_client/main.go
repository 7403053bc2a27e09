package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/rx3lixir/cofi_rooms/internal/client"
	"github.com/rx3lixir/cofi_rooms/internal/sound"
	"github.com/rx3lixir/cofi_rooms/pkg/logger"
)

// loopLength is the length of every ambient loop in the catalogs
const loopLength = 2 * time.Minute

const helpText = `commands:
  create <rainy|midnight|forest>  make a new room and enter it
  join <CODE>                     enter an existing room
  toggle                          switch your object on or off
  view                            show the room
  leave                           leave the room
  quit                            exit, keeping the room for next time`

func main() {
	defaultIdentity := filepath.Join(os.TempDir(), "cofi_client")
	if home, err := os.UserHomeDir(); err == nil {
		defaultIdentity = filepath.Join(home, ".cofi", "identity.yaml")
	}

	var (
		server    = pflag.StringP("server", "s", "http://localhost:8080", "server base url")
		identity  = pflag.StringP("identity", "i", defaultIdentity, "file remembering room, user and session")
		create    = pflag.String("create", "", "create a room with this theme on start")
		join      = pflag.String("join", "", "join the room with this code on start")
		poll      = pflag.Duration("poll", client.DefaultPollInterval, "room state poll interval")
		heartbeat = pflag.Duration("heartbeat", client.DefaultHeartbeatInterval, "room heartbeat interval")
		env       = pflag.String("env", "dev", "log format: dev/prod/test")
		logLevel  = pflag.String("log-level", "warn", "log level")
	)
	pflag.Parse()

	log := logger.Must(logger.New(logger.Config{Env: *env, Level: *logLevel, Output: os.Stderr}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	api := client.NewAPI(*server, nil)
	ids := client.NewFileIdentity(*identity)

	ui := &prompt{api: api, catalogs: map[string]*sound.ThemeView{}}

	sess := client.NewSession(api, ids, client.Options{
		PollInterval:      *poll,
		HeartbeatInterval: *heartbeat,
		Log:               log.Component("client"),
		OnUpdate:          ui.onUpdate,
	})
	defer sess.Close()
	ui.sess = sess

	if err := sess.Start(ctx); err != nil {
		fmt.Printf("Error starting session: %v\n", err)
		os.Exit(1)
	}

	switch {
	case *create != "":
		ui.run(ctx, "create "+*create)
	case *join != "":
		ui.run(ctx, "join "+*join)
	default:
		_ = sess.Resume(ctx)
		if sess.State() == client.Active {
			fmt.Printf("Welcome back to room %s\n", sess.View().Room.ID)
		}
	}

	fmt.Println(helpText)

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		fmt.Print("> ")
		select {
		case <-ctx.Done():
			fmt.Println()
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if !ui.run(ctx, line) {
				return
			}
		}
	}
}

type prompt struct {
	api      *client.API
	sess     *client.Session
	catalogs map[string]*sound.ThemeView
	lastGen  atomic.Uint64

	// local playback clock, realigned to the room when it drifts
	playRoom  string
	playStart time.Time
}

// run executes one command line and reports whether to keep going
func (p *prompt) run(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return true
	}

	reqCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	switch strings.ToLower(fields[0]) {
	case "create":
		if len(fields) < 2 {
			fmt.Println("usage: create <theme>")
			return true
		}
		if err := p.sess.Create(reqCtx, fields[1]); err != nil {
			fmt.Printf("Could not create room: %v\n", err)
			return true
		}
		fmt.Printf("Room created! Share the code: %s\n", p.sess.View().Room.ID)
		p.print(reqCtx, p.sess.View())

	case "join":
		if len(fields) < 2 {
			fmt.Println("usage: join <CODE>")
			return true
		}
		if err := p.sess.Join(reqCtx, fields[1]); err != nil {
			if client.IsNotFound(err) {
				fmt.Println("Room not found")
			} else {
				fmt.Printf("Could not join room: %v\n", err)
			}
			return true
		}
		p.print(reqCtx, p.sess.View())

	case "toggle", "t":
		if err := p.sess.Toggle(reqCtx); err != nil {
			fmt.Printf("Toggle failed: %v\n", err)
		}

	case "view", "v":
		if p.sess.State() != client.Active {
			fmt.Println("Not in a room")
			return true
		}
		p.print(reqCtx, p.sess.View())

	case "leave":
		p.sess.Leave()
		fmt.Println("Left the room")

	case "users":
		n, err := p.api.ActiveUsers(reqCtx)
		if err != nil {
			fmt.Printf("Could not count users: %v\n", err)
			return true
		}
		fmt.Printf("%d listening right now\n", n)

	case "quit", "exit", "q":
		return false

	default:
		fmt.Println(helpText)
	}

	return true
}

// onUpdate prints a one-line notice when another user changes something
func (p *prompt) onUpdate(v client.View) {
	if p.lastGen.Swap(v.Generation) == v.Generation {
		return
	}
	if mine, ok := v.Mine(); ok {
		fmt.Printf("\r[%s] %s is %s, %d online\n> ", v.Room.ID, mine.Name, onOff(mine.IsActive), v.Online)
	}
}

func (p *prompt) print(ctx context.Context, v client.View) {
	fmt.Printf("Room %s (%s), %d online\n", v.Room.ID, v.Room.Theme, v.Online)
	for _, o := range v.Objects {
		marker := " "
		if o.IsMe {
			marker = "*"
		}
		fmt.Printf(" %s %-16s %s\n", marker, o.Name, onOff(o.IsActive))
	}

	catalog, err := p.catalog(ctx, string(v.Room.Theme))
	if err != nil {
		return
	}
	offset := p.position(v, time.Now())
	for _, track := range client.Playlist(v, catalog) {
		fmt.Printf("   playing %s from %s (%s)\n", track.Name, offset.Truncate(time.Second), track.URL)
	}
}

// position returns where local playback is, seeking it back to the room's
// phase when it drifted past the tolerance
func (p *prompt) position(v client.View, now time.Time) time.Duration {
	target := client.PlaybackOffset(v.Room.CreatedAt, now, loopLength)
	if p.playRoom != v.Room.ID || p.playStart.IsZero() {
		p.playRoom = v.Room.ID
		p.playStart = now.Add(-target)
		return target
	}

	current := now.Sub(p.playStart) % loopLength
	if client.NeedsResync(current, target) {
		fmt.Printf("   resyncing playback by %s\n", (target - current).Truncate(time.Millisecond))
		p.playStart = now.Add(-target)
		return target
	}
	return current
}

func (p *prompt) catalog(ctx context.Context, th string) (*sound.ThemeView, error) {
	if c, ok := p.catalogs[th]; ok {
		return c, nil
	}
	c, err := p.api.Theme(ctx, th)
	if err != nil {
		return nil, err
	}
	p.catalogs[th] = c
	return c, nil
}

func onOff(active bool) string {
	if active {
		return "on"
	}
	return "off"
}
