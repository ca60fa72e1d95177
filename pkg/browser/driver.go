package browser

import (
	"context"
	"time"
)

// DriverHandle is the opaque resource wrapping one live browser-automation
// driver. A handle is exclusively owned by one Session and released only
// through Quit. Every method is a blocking call against an external process;
// callers check ctx between calls for cooperative cancellation.
type DriverHandle interface {
	// Navigate loads url and waits for the navigation to settle.
	Navigate(ctx context.Context, url string) error

	// Reload re-fetches the current page.
	Reload(ctx context.Context) error

	// CurrentURL returns the location after the last navigation.
	CurrentURL() string

	// Fill types value into the first element matching selector.
	Fill(ctx context.Context, selector, value string) error

	// Click clicks the first element matching selector.
	Click(ctx context.Context, selector string) error

	// WaitForText waits up to timeout for selector to appear and returns its
	// text content. Expiry yields a *TimeoutError.
	WaitForText(ctx context.Context, selector string, timeout time.Duration) (string, error)

	// Exists reports whether selector currently matches an element.
	Exists(selector string) bool

	// Cookies returns the driver's full cookie set.
	Cookies(ctx context.Context) (CookieJar, error)

	// AddCookie injects a single cookie.
	AddCookie(ctx context.Context, c Cookie) error

	// Screenshot captures the viewport as PNG bytes.
	Screenshot(ctx context.Context) ([]byte, error)

	// Quit releases the driver. The close is graceful up to the ctx
	// deadline; on expiry the handle is abandoned and a *TeardownError
	// returned.
	Quit(ctx context.Context) error
}

// DriverConfig carries the launch parameters for one driver.
type DriverConfig struct {
	Headless       bool
	Proxy          *ProxyDescriptor
	UserAgent      string
	ViewportWidth  int
	ViewportHeight int
	NavTimeout     time.Duration
}

func (c DriverConfig) withDefaults() DriverConfig {
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.ViewportWidth == 0 {
		c.ViewportWidth = DefaultViewportWidth
	}
	if c.ViewportHeight == 0 {
		c.ViewportHeight = DefaultViewportHeight
	}
	if c.NavTimeout == 0 {
		c.NavTimeout = DefaultNavTimeout
	}
	return c
}

// DriverFactory constructs a fresh DriverHandle. The registry and the
// visibility toggler go through a factory so the lifecycle invariants hold
// for any driver implementation.
type DriverFactory func(ctx context.Context, cfg DriverConfig) (DriverHandle, error)
