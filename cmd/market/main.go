// Command market is the terminal client for the market API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/damoang/angple-market/internal/config"
	"github.com/damoang/angple-market/pkg/client"
	pkglogger "github.com/damoang/angple-market/pkg/logger"
)

const usage = `usage: market [flags] <command> [args]

commands:
  register <email> [firstName] [lastName]   create an account and sign in
  login <email>                             sign in
  logout                                    forget the stored session
  me                                        show the signed in user
  conversations                             list conversations, most recent first
  contact <userId>                          open (or reuse) a conversation with a user
  chat <conversationId>                     interactive chat

flags:
`

var errUsage = errors.New("invalid usage")

// cli shared state of one invocation
type cli struct {
	cfg     *config.Config
	session *client.Session
	api     *client.Client
	out     io.Writer
	in      io.Reader
	plain   bool
}

func main() {
	configPath := flag.String("config", "configs/config.local.yaml", "config file path")
	apiURL := flag.String("api", "", "API base URL (overrides client.base_url)")
	sessionPath := flag.String("session", "", "session file (default ~/.angple-market/session.json)")
	plain := flag.Bool("plain", false, "line based chat instead of the full screen UI")
	verbose := flag.Bool("v", false, "log client diagnostics to stderr")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	pkglogger.SetOutput(io.Discard)
	if *verbose {
		pkglogger.SetOutput(os.Stderr)
	}

	config.LoadDotEnv(".")
	cfg, err := config.Load(*configPath)
	if err != nil {
		fail(err)
	}
	if *apiURL != "" {
		cfg.Client.BaseURL = *apiURL
	}

	app, err := newCLI(cfg, *sessionPath)
	if err != nil {
		fail(err)
	}
	app.plain = *plain

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.run(ctx, flag.Args()); err != nil {
		if errors.Is(err, errUsage) {
			flag.Usage()
			os.Exit(2)
		}
		fail(err)
	}
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "market:", err)
	os.Exit(1)
}

func newCLI(cfg *config.Config, sessionPath string) (*cli, error) {
	if sessionPath == "" {
		var err error
		if sessionPath, err = client.DefaultSessionPath(); err != nil {
			return nil, err
		}
	}
	session := client.NewSession(sessionPath)
	if err := session.Hydrate(); err != nil {
		return nil, err
	}

	api, err := client.New(client.Options{
		BaseURL: cfg.Client.BaseURL,
		Timeout: time.Duration(cfg.Client.Timeout) * time.Millisecond,
		Tokens:  session,
	})
	if err != nil {
		return nil, err
	}
	return &cli{cfg: cfg, session: session, api: api, out: os.Stdout, in: os.Stdin}, nil
}

func (c *cli) run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	cmd, rest := args[0], args[1:]

	switch cmd {
	case "register":
		return c.register(ctx, rest)
	case "login":
		return c.login(ctx, rest)
	case "logout":
		return c.logout()
	}

	// everything else needs a session
	if !c.session.Authenticated() {
		return errors.New("not signed in, run `market login <email>` first")
	}
	switch cmd {
	case "me":
		return c.me(ctx)
	case "conversations":
		return c.conversations(ctx)
	case "contact":
		return c.contact(ctx, rest)
	case "chat":
		return c.chat(ctx, rest)
	default:
		return errUsage
	}
}
