package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/aussiebroadwan/portal/pkg/plexauth"
)

// prompter reads answers line by line from stdin. Input is echoed: the CLI
// is meant to be fed from a pipe or a password manager.
type prompter struct {
	mu  sync.Mutex
	in  *bufio.Reader
	out io.Writer
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	return &prompter{in: bufio.NewReader(in), out: out}
}

func (p *prompter) Secret(prompt string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprint(p.out, prompt)
	line, err := p.in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" && errors.Is(err, io.EOF) {
		return "", io.ErrUnexpectedEOF
	}
	return line, nil
}

// waitLine blocks until a line or EOF arrives.
func (p *prompter) waitLine() {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, _ = p.in.ReadString('\n')
}

// terminalLauncher opens the Plex login in the system browser. The browser
// gives no handle back, so the user closes the "window" by pressing Enter.
type terminalLauncher struct {
	out io.Writer
	in  *prompter
}

func (l terminalLauncher) OpenPopup(ctx context.Context, url string, _ plexauth.Size) (plexauth.Window, error) {
	return l.OpenTab(ctx, url)
}

func (l terminalLauncher) OpenTab(ctx context.Context, url string) (plexauth.Window, error) {
	if _, err := (plexauth.BrowserLauncher{}).OpenTab(ctx, url); err != nil {
		fmt.Fprintf(l.out, "Open this URL to log in with Plex:\n  %s\n", url)
	} else {
		fmt.Fprintln(l.out, "Log in with Plex in your browser.")
	}
	fmt.Fprintln(l.out, "Press Enter to cancel.")

	w := &promptWindow{}
	go func() {
		l.in.waitLine()
		w.closed.Store(true)
	}()
	return w, nil
}

type promptWindow struct{ closed atomic.Bool }

func (w *promptWindow) Closed() bool { return w.closed.Load() }

func (w *promptWindow) Close() error {
	w.closed.Store(true)
	return nil
}
