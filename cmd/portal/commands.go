package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/aussiebroadwan/portal/internal/portal/app"
	"github.com/aussiebroadwan/portal/pkg/authsdk"
	"github.com/aussiebroadwan/portal/pkg/jwtx"
)

var errUsage = errors.New("usage")

type cli struct {
	app *app.Application
	in  *prompter
	out io.Writer
}

func (c *cli) dispatch(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "login":
		return c.login(ctx, args)
	case "logout":
		return c.app.Auth.Logout(ctx)
	case "whoami":
		return c.whoami(ctx)
	case "status":
		return c.status(ctx)
	case "refresh":
		return c.refresh(ctx)
	case "passwd":
		return c.passwd(ctx)
	case "plex":
		return c.plex(ctx)
	case "mfa":
		return c.mfa(ctx, args)
	case "config":
		return c.config(ctx, args)
	case "profiles":
		return c.profiles(ctx)
	default:
		return errUsage
	}
}

func (c *cli) login(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	remember := fs.Bool("remember", false, "")
	redirect := fs.String("redirect", "", "")
	if err := fs.Parse(args); err != nil || fs.NArg() != 1 {
		return errUsage
	}

	password, err := c.in.Secret("Password: ")
	if err != nil {
		return err
	}
	return c.app.Auth.Login(ctx, authsdk.LoginRequest{
		Username:   fs.Arg(0),
		Password:   password,
		RememberMe: *remember,
		Redirect:   *redirect,
	})
}

func (c *cli) whoami(ctx context.Context) error {
	u, err := c.app.Auth.Me(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%s (%s, id %d)\n", u.Name(), u.Username, u.ID)
	return nil
}

func (c *cli) status(ctx context.Context) error {
	if !c.app.Auth.IsAuthenticated(ctx) {
		fmt.Fprintln(c.out, "not logged in")
		return errors.New("not logged in")
	}

	st := c.app.Store.Snapshot()
	if st.User != nil {
		fmt.Fprintf(c.out, "logged in as %s\n", st.User.Name())
	} else {
		fmt.Fprintln(c.out, "logged in")
	}
	if claims, err := jwtx.ParseUnverified(st.AccessToken); err == nil && !claims.ExpiresAt.IsZero() {
		fmt.Fprintf(c.out, "access token expires in %s\n", time.Until(claims.ExpiresAt).Round(time.Second))
	}
	fmt.Fprintf(c.out, "profile %s on %s\n", c.app.Config().Profile, c.baseURL())
	return nil
}

func (c *cli) refresh(ctx context.Context) error {
	ok, err := c.app.Auth.RefreshToken(ctx)
	if err != nil {
		fmt.Fprintf(c.out, "refresh failed: %v\n", err)
		return err
	}
	if !ok {
		fmt.Fprintln(c.out, "nothing to refresh")
		return errors.New("no session")
	}
	fmt.Fprintln(c.out, "access token refreshed")
	return nil
}

func (c *cli) passwd(ctx context.Context) error {
	oldPassword, err := c.in.Secret("Current password: ")
	if err != nil {
		return err
	}
	newPassword, err := c.in.Secret("New password: ")
	if err != nil {
		return err
	}
	if err := c.app.Auth.ChangePassword(ctx, authsdk.ChangePasswordRequest{
		OldPassword: oldPassword,
		NewPassword: newPassword,
	}); err != nil {
		return err
	}

	// The facade logs out after a delay; a CLI would exit first.
	return c.app.Auth.Logout(ctx)
}

func (c *cli) plex(ctx context.Context) error {
	token, err := c.app.Auth.PlexLogin(ctx)
	if err != nil {
		return err
	}
	if token == "" {
		return errors.New("no plex token")
	}
	fmt.Fprintln(c.out, token)
	return nil
}

func (c *cli) mfa(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}

	switch sub, rest := args[0], args[1:]; sub {
	case "register":
		if len(rest) != 1 {
			return errUsage
		}
		cred, err := c.app.Auth.MFARegistration(ctx, rest[0])
		if err != nil {
			return err
		}
		if cred == nil {
			return errors.New("registration cancelled")
		}
		if cred.ID == "" {
			fmt.Fprintf(c.out, "registered %q\n", cred.Name)
			return nil
		}
		fmt.Fprintf(c.out, "registered %q (id %s)\n", cred.Name, cred.ID)
		return nil

	case "login":
		fs := flag.NewFlagSet("mfa login", flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		autofill := fs.Bool("autofill", false, "")
		redirect := fs.String("redirect", "", "")
		if err := fs.Parse(rest); err != nil || fs.NArg() > 1 {
			return errUsage
		}
		ok, err := c.app.Auth.MFAAuthentication(ctx, authsdk.MFALoginRequest{
			Username: fs.Arg(0),
			Autofill: *autofill,
			Redirect: *redirect,
		})
		if err != nil {
			return err
		}
		if !ok {
			return errors.New("authentication cancelled")
		}
		return nil

	case "available":
		if len(rest) != 1 {
			return errUsage
		}
		ok, err := c.app.Auth.MFAAvailable(ctx, rest[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(c.out, ok)
		return nil

	case "remove":
		return c.app.Auth.MFADeregister(ctx)

	default:
		return errUsage
	}
}

func (c *cli) config(ctx context.Context, args []string) error {
	if len(args) == 0 || args[0] != "base-url" || len(args) > 2 {
		return errUsage
	}
	if len(args) == 1 {
		fmt.Fprintln(c.out, c.baseURL())
		return nil
	}
	return c.app.Store.SetBaseURL(ctx, args[1])
}

func (c *cli) baseURL() string {
	if u := c.app.Store.BaseURL(); u != "" {
		return u
	}
	return c.app.Config().BaseURL
}

func (c *cli) profiles(ctx context.Context) error {
	names, err := c.app.Profiles(ctx)
	if err != nil {
		fmt.Fprintf(c.out, "%v\n", err)
		return err
	}
	for _, name := range names {
		fmt.Fprintln(c.out, name)
	}
	return nil
}
