// Command compass is an interactive terminal client for the CodeCompass
// platform: log in, pick a chat session, and talk to the AI mentor with
// streamed replies.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"runtime/debug"
	"strings"
	"sync"

	"github.com/common-nighthawk/go-figure"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/codecompass/compass-go/api"
	"github.com/codecompass/compass-go/chat"
	"github.com/codecompass/compass-go/credentials/filerepo"
	"github.com/codecompass/compass-go/internal/config"
	"github.com/codecompass/compass-go/session"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "Recovered from panic: %v\n", r)
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	_ = godotenv.Load() // silently ignore if .env doesn't exist

	c := config.New()
	displayAppName(c.GetAppName())

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	if c.GetEnv() != "DEV" {
		logger = logger.Level(zerolog.InfoLevel)
	}

	creds, err := filerepo.New(c.GetDataFolder())
	if err != nil {
		return errors.Wrap(err, "opening credential store")
	}

	apiClient := api.New(c.GetAPIBaseURL(), creds,
		api.WithLogger(logger),
		api.WithSessionExpiredHook(func() {
			fmt.Println("\nYour session has expired. Please log in again.")
		}),
	)

	store, err := session.NewStore(
		session.Deps{Credentials: creds, API: apiClient},
		session.WithLogger(logger),
	)
	if err != nil {
		return errors.Wrap(err, "creating session store")
	}

	ctx := context.Background()
	stdin := bufio.NewScanner(os.Stdin)

	if err := store.Hydrate(); err != nil {
		return errors.Wrap(err, "restoring session")
	}
	if !store.LoggedIn() {
		if err := login(ctx, store, stdin); err != nil {
			return err
		}
	}

	identity := store.Identity()
	fmt.Printf("Welcome back, %s! (%s)\n\n", identity.FullName, identity.Role)

	renderer := newStreamRenderer()
	manager := chat.NewManager(apiClient, c.GetWSBaseURL(),
		chat.WithLogger(logger),
		chat.WithHandler(renderer.handler()),
	)
	defer manager.Disconnect()

	if err := openSession(ctx, manager); err != nil {
		return err
	}

	return repl(ctx, store, manager, renderer, stdin)
}

func login(ctx context.Context, store *session.Store, stdin *bufio.Scanner) error {
	email := prompt(stdin, "Email: ")
	password := prompt(stdin, "Password: ")
	if err := store.Login(ctx, email, password); err != nil {
		var apiErr *api.APIError
		if errors.As(err, &apiErr) {
			return errors.Errorf("login failed: %s", apiErr.Detail)
		}
		return errors.Wrap(err, "login failed")
	}
	return nil
}

// openSession resumes the most recent chat session, or starts a fresh one.
func openSession(ctx context.Context, manager *chat.Manager) error {
	sessions, err := manager.FetchSessions(ctx)
	if err != nil {
		return errors.Wrap(err, "listing chat sessions")
	}

	var sessionID string
	if len(sessions) > 0 {
		sessionID = sessions[0].SessionID
	} else {
		created, err := manager.CreateSession(ctx, "general")
		if err != nil {
			return errors.Wrap(err, "creating chat session")
		}
		sessionID = created.SessionID
	}

	if err := manager.SelectSession(ctx, sessionID); err != nil {
		return errors.Wrap(err, "opening chat session")
	}

	for _, msg := range manager.Snapshot().Messages {
		fmt.Printf("[%s] %s\n", msg.Role, msg.Content)
	}
	return nil
}

func repl(ctx context.Context, store *session.Store, manager *chat.Manager, renderer *streamRenderer, stdin *bufio.Scanner) error {
	fmt.Println(`Type a message, "/logout", or "/quit".`)
	for {
		line, ok := promptLine(stdin, "> ")
		if !ok {
			return nil
		}
		switch strings.TrimSpace(line) {
		case "":
			continue
		case "/quit":
			return nil
		case "/logout":
			store.Logout(ctx)
			fmt.Println("Logged out.")
			return nil
		}

		renderer.beginTurn()
		if err := manager.Send(line); err != nil {
			fmt.Printf("cannot send: %s\n", err)
			continue
		}
		renderer.waitTurn()
	}
}

func prompt(stdin *bufio.Scanner, label string) string {
	line, _ := promptLine(stdin, label)
	return line
}

func promptLine(stdin *bufio.Scanner, label string) (string, bool) {
	fmt.Print(label)
	if !stdin.Scan() {
		return "", false
	}
	return stdin.Text(), true
}

// streamRenderer prints assistant output incrementally as chunks arrive
// and releases the prompt when the stream settles.
type streamRenderer struct {
	mu      sync.Mutex
	printed int
	active  bool
	done    chan struct{}
}

func newStreamRenderer() *streamRenderer {
	return &streamRenderer{done: make(chan struct{}, 1)}
}

func (r *streamRenderer) handler() chat.Handler {
	return chat.Handler{
		OnUpdate: r.onUpdate,
		OnError: func(err error) {
			fmt.Printf("\nstream error: %s\n", err)
		},
	}
}

func (r *streamRenderer) beginTurn() {
	r.mu.Lock()
	r.printed = 0
	r.active = true
	r.mu.Unlock()

	// Drop any stale settle signal from a turn that was never awaited.
	select {
	case <-r.done:
	default:
	}
}

func (r *streamRenderer) waitTurn() {
	<-r.done
	fmt.Println()
}

func (r *streamRenderer) onUpdate(snapshot chat.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.active {
		return
	}
	if snapshot.State == chat.StateStreaming {
		fmt.Print(snapshot.StreamingContent[r.printed:])
		r.printed = len(snapshot.StreamingContent)
		return
	}
	// Stream settled: finalised, errored, or connection lost.
	r.active = false
	select {
	case r.done <- struct{}{}:
	default:
	}
}

func displayAppName(appName string) {
	banner := figure.NewFigure(appName, "", true)
	banner.Print()
	fmt.Println()
}
