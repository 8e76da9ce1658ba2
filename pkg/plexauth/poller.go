// Package plexauth brokers a delegated Plex login: it opens the hosted login
// page in a popup (desktop) or a new tab (mobile) and polls the pin until a
// token appears, the user closes the window or the budget runs out.
package plexauth

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

const (
	DefaultInterval    = time.Second
	DefaultMaxAttempts = 30
	DefaultTimeout     = 30 * time.Second
	DefaultCloseDelay  = time.Second
)

type Status int

const (
	// StatusExpired means the attempt or time budget ran out.
	StatusExpired Status = iota
	// StatusAuthorized means a token was obtained.
	StatusAuthorized
	// StatusClosed means the user closed the login window.
	StatusClosed
)

func (s Status) String() string {
	switch s {
	case StatusAuthorized:
		return "authorized"
	case StatusClosed:
		return "closed"
	case StatusExpired:
		return "expired"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Result is the outcome of one login. Token is set only for
// StatusAuthorized.
type Result struct {
	Token    string
	Status   Status
	Attempts int
}

// Poller runs the delegated login. Zero durations and counts fall back to
// the package defaults.
type Poller struct {
	Provider Provider
	Launcher Launcher

	// UserAgent decides between a popup and a tab.
	UserAgent string

	Interval    time.Duration
	MaxAttempts int
	Timeout     time.Duration

	// CloseDelay is how long the window stays open after success so the
	// user sees the login complete.
	CloseDelay time.Duration

	Logger *slog.Logger
}

func (p *Poller) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

func orDefault[T int | time.Duration](v, def T) T {
	if v <= 0 {
		return def
	}
	return v
}

// Login runs one delegated login. Closed and expired outcomes are reported
// through Result.Status, not as errors; only setup failures and ctx
// cancellation return an error.
func (p *Poller) Login(ctx context.Context) (Result, error) {
	if p.Provider == nil || p.Launcher == nil {
		return Result{}, errors.New("plexauth: poller needs a provider and a launcher")
	}
	log := p.logger()

	loginURL, pinID, err := p.Provider.RequestHostedLoginURL(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("plexauth: request login url: %w", err)
	}

	var win Window
	if IsMobile(p.UserAgent) {
		win, err = p.Launcher.OpenTab(ctx, loginURL)
	} else {
		win, err = p.Launcher.OpenPopup(ctx, loginURL, PopupSize)
	}
	if err != nil {
		return Result{}, fmt.Errorf("plexauth: open login window: %w", err)
	}

	var (
		interval = orDefault(p.Interval, DefaultInterval)
		attempts = orDefault(p.MaxAttempts, DefaultMaxAttempts)
		deadline = time.Now().Add(orDefault(p.Timeout, DefaultTimeout))
		res      = Result{Status: StatusExpired}
	)

	for n := range Attempts(ctx, interval, attempts, deadline, win.Closed) {
		res.Attempts = n
		if win.Closed() {
			break
		}

		token, err := p.Provider.CheckForAuthToken(ctx, pinID)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			log.WarnContext(ctx, "plex pin check failed", "pin_id", pinID, "attempt", n, "error", err)
			continue
		}
		if token != "" {
			res.Token = token
			res.Status = StatusAuthorized
			p.closeLater(win)
			return res, nil
		}
	}

	if err := ctx.Err(); err != nil {
		_ = win.Close()
		return res, err
	}
	if win.Closed() {
		res.Status = StatusClosed
		log.InfoContext(ctx, "plex login window closed by user", "attempts", res.Attempts)
		return res, nil
	}

	_ = win.Close()
	log.InfoContext(ctx, "plex login expired", "attempts", res.Attempts)
	return res, nil
}

func (p *Poller) closeLater(win Window) {
	time.AfterFunc(orDefault(p.CloseDelay, DefaultCloseDelay), func() {
		if err := win.Close(); err != nil {
			p.logger().Debug("close plex login window", "error", err)
		}
	})
}

// Attempts yields attempt numbers 1..limit paced one interval apart, the first
// without waiting. It stops early once ctx is done, once the next wait would
// end past deadline, or when stop reports true. stop is checked before every
// wait.
func Attempts(ctx context.Context, interval time.Duration, limit int, deadline time.Time, stop func() bool) iter.Seq[int] {
	return func(yield func(int) bool) {
		ctx, cancel := context.WithDeadline(ctx, deadline)
		defer cancel()

		lim := rate.NewLimiter(rate.Every(interval), 1)
		for n := 1; n <= limit; n++ {
			if stop != nil && stop() {
				return
			}
			if err := lim.Wait(ctx); err != nil {
				return
			}
			if !yield(n) {
				return
			}
		}
	}
}
