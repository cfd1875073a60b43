// agencychat is a terminal client for project conversations. It logs in to
// the chat server, keeps read markers in a local SQLite file and drives the
// same messaging core a graphical client would.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/pflag"

	"agency-chat/internal/clock"
	"agency-chat/internal/gateway"
	"agency-chat/internal/markers"
	"agency-chat/internal/messaging"
	"agency-chat/internal/model"
)

type options struct {
	server   string
	username string
	password string
	markers  string
	verbose  bool
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(argv []string) error {
	var opts options
	flagSet := pflag.NewFlagSet("agencychat", pflag.ContinueOnError)
	flagSet.StringVarP(&opts.server, "server", "s", envOr("AGENCYCHAT_SERVER", "http://localhost:8080"), "chat server base URL")
	flagSet.StringVarP(&opts.username, "user", "u", os.Getenv("AGENCYCHAT_USER"), "username")
	flagSet.StringVar(&opts.password, "password", os.Getenv("AGENCYCHAT_PASSWORD"), "password (prefer AGENCYCHAT_PASSWORD)")
	flagSet.StringVar(&opts.markers, "markers", defaultMarkersPath(), "read-marker database")
	flagSet.BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")
	flagSet.SetInterspersed(false)
	flagSet.Usage = func() { printHelp(flagSet) }

	if err := flagSet.Parse(argv); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	args := flagSet.Args()
	if len(args) == 0 {
		printHelp(flagSet)
		return errors.New("missing command")
	}
	cmd, ok := commands[args[0]]
	if !ok {
		return fmt.Errorf("unknown command %q", args[0])
	}

	level := slog.LevelWarn
	if opts.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gw, err := gateway.NewClient(opts.server, nil)
	if err != nil {
		return err
	}
	if args[0] == "register" {
		return cmd(ctx, &session{gw: gw, opts: opts, log: logger}, args[1:])
	}

	s, err := openSession(ctx, gw, opts, logger)
	if err != nil {
		return err
	}
	defer s.Close()
	return cmd(ctx, s, args[1:])
}

// session bundles the messaging core for one logged-in actor.
type session struct {
	gw      *gateway.Client
	opts    options
	log     *slog.Logger
	actor   model.Actor
	marks   *markers.SQLiteStore
	store   *messaging.Store
	tracker *messaging.Tracker
	sel     *messaging.Selector
}

func openSession(ctx context.Context, gw *gateway.Client, opts options, logger *slog.Logger) (*session, error) {
	if opts.username == "" || opts.password == "" {
		return nil, errors.New("--user and --password (or AGENCYCHAT_PASSWORD) are required")
	}
	actor, err := gw.Login(ctx, opts.username, opts.password)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	marks, err := markers.OpenSQLite(opts.markers)
	if err != nil {
		return nil, err
	}
	s := &session{gw: gw, opts: opts, log: logger, actor: actor, marks: marks}
	s.store = messaging.NewStore(gw, actor, logger.With("component", "store"))
	s.tracker = messaging.NewTracker(gw, marks, actor, clock.Real(), logger.With("component", "unread"))
	s.sel = messaging.NewSelector(gw, s.store, s.tracker, actor, logger.With("component", "selector"))
	return s, nil
}

func (s *session) Close() {
	if err := s.store.Close(); err != nil {
		s.log.Debug("closing store", "error", err)
	}
	if err := s.tracker.Close(); err != nil {
		s.log.Debug("closing tracker", "error", err)
	}
	if err := s.marks.Close(); err != nil {
		s.log.Debug("closing markers", "error", err)
	}
}

// open loads the visible projects and selects one by id.
func (s *session) open(ctx context.Context, projectID string) error {
	if err := s.sel.Load(ctx); err != nil {
		return err
	}
	if p, ok := s.sel.Selected(); ok && p.ID == projectID {
		return nil
	}
	return s.sel.Select(ctx, projectID)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func defaultMarkersPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "agencychat", "markers.db")
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `agencychat: chat with your agency from the terminal.

Usage: agencychat [flags] <command> [args]

Commands:
  register                      create the account named by --user
  projects [query]              list conversations with unread badges
  onboard <type> <budget> [description]
                                start a project (saas, ecommerce, mobile, landing)
  advance <project> <status>    move a project forward (admin)
  tail <project>                print the conversation and follow it
  send <project> <text...>      send a text message
  image <project> <file>        upload and send an image
  voice <project> <file>        send a recorded voice note
  edit <project> <id> <text...> edit one of your text messages
  delete <project> <id>         delete one of your messages
  unread [--check]              show the notification counter
  online                        mark yourself online and list who else is

Flags:
`)
	flagSet.PrintDefaults()
}
