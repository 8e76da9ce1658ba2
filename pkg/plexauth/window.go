package plexauth

import (
	"context"
	"io"
	"sync/atomic"

	"github.com/mssola/useragent"
	"github.com/pkg/browser"
)

// Size is a popup window size in CSS pixels.
type Size struct {
	Width  int
	Height int
}

// PopupSize is used for the desktop login popup.
var PopupSize = Size{Width: 600, Height: 700}

// Window is a handle on the page presenting the hosted login. Closed
// reporting true is the user's way of cancelling.
type Window interface {
	Closed() bool
	Close() error
}

// Launcher presents a URL to the user.
type Launcher interface {
	OpenPopup(ctx context.Context, url string, size Size) (Window, error)
	OpenTab(ctx context.Context, url string) (Window, error)
}

// IsMobile reports whether userAgent belongs to a mobile platform, where a
// popup would be blocked or unusable. The viewport size plays no part: a
// narrow desktop window still gets a popup.
func IsMobile(userAgent string) bool {
	if userAgent == "" {
		return false
	}
	return useragent.New(userAgent).Mobile()
}

// BrowserLauncher opens URLs in the system browser. The browser gives no
// handle back, so its windows only report closed once Close was called.
type BrowserLauncher struct{}

func (BrowserLauncher) OpenPopup(ctx context.Context, url string, _ Size) (Window, error) {
	return BrowserLauncher{}.OpenTab(ctx, url)
}

func (BrowserLauncher) OpenTab(_ context.Context, url string) (Window, error) {
	browser.Stdout = io.Discard
	browser.Stderr = io.Discard
	if err := browser.OpenURL(url); err != nil {
		return nil, err
	}
	return &detachedWindow{}, nil
}

type detachedWindow struct{ closed atomic.Bool }

func (w *detachedWindow) Closed() bool { return w.closed.Load() }

func (w *detachedWindow) Close() error {
	w.closed.Store(true)
	return nil
}
