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

	"github.com/aussiebroadwan/portal/internal/portal/app"
	"github.com/aussiebroadwan/portal/pkg/notify"
	"github.com/aussiebroadwan/portal/pkg/slogx"
)

const usage = `usage: portal [flags] <command> [args]

commands:
  login [-remember] [-redirect path] <username>   log in, password read from stdin
  logout                                          end the session
  whoami                                          reload and print the current user
  status                                          print session state, refreshing if needed
  refresh                                         exchange the refresh token
  passwd                                          change password, old and new read from stdin
  plex                                            log in with Plex in the browser
  mfa register <name>                             register an authenticator
  mfa login [-autofill] <username>                log in with an authenticator
  mfa available <username>                        check whether a user has MFA
  mfa remove                                      remove MFA from the current user
  config base-url [url]                           show or override the backend URL
  profiles                                        list stored sessions (sqlite store)

flags:
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	cfg, err := app.LoadConfig()
	if err != nil {
		fmt.Fprintf(stderr, "portal: %v\n", err)
		return 2
	}

	fs := flag.NewFlagSet("portal", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}
	fs.StringVar(&cfg.BaseURL, "base-url", cfg.BaseURL, "backend URL")
	fs.StringVar(&cfg.Profile, "profile", cfg.Profile, "session profile")
	fs.StringVar(&cfg.Store, "store", cfg.Store, "session backend (memory, file, sqlite, redis)")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	in := newPrompter(stdin, stdout)
	application, err := app.New(ctx, cfg,
		app.WithNotifier(notify.NewWriter(stdout)),
		app.WithLauncher(terminalLauncher{out: stdout, in: in}),
		app.WithLogOutput(stderr),
	)
	if err != nil {
		fmt.Fprintf(stderr, "portal: failed to initialize: %v\n", err)
		return 1
	}
	defer application.Close()

	ctx = slogx.WithContext(ctx, application.Logger().With("command", fs.Arg(0)))
	c := &cli{app: application, in: in, out: stdout}
	if err := c.dispatch(ctx, fs.Arg(0), fs.Args()[1:]); err != nil {
		if errors.Is(err, errUsage) {
			fs.Usage()
			return 2
		}
		application.Logger().Debug("command failed", "command", fs.Arg(0), "error", err)
		return 1
	}
	return 0
}
