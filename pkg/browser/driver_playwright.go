package browser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
)

// Runtime owns the shared Playwright installation. One Runtime serves every
// session; each session still gets its own browser process so proxies and
// cookie stores never alias across keys.
type Runtime struct {
	mu          sync.Mutex
	pw          *playwright.Playwright
	initialized bool
}

// NewRuntime returns an uninitialized runtime. Initialize must be called
// before the factory produces drivers.
func NewRuntime() *Runtime {
	return &Runtime{}
}

// Initialize installs (if needed) and starts the Playwright driver process.
// Output is discarded so it cannot interleave with our own logs.
func (r *Runtime) Initialize() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.initialized {
		return nil
	}

	opts := &playwright.RunOptions{
		Verbose: false,
		Stdout:  io.Discard,
		Stderr:  io.Discard,
	}

	if err := playwright.Install(opts); err != nil {
		return fmt.Errorf("failed to install playwright: %w", err)
	}

	pw, err := playwright.Run(opts)
	if err != nil {
		return fmt.Errorf("failed to start playwright: %w", err)
	}

	r.pw = pw
	r.initialized = true
	return nil
}

// Stop shuts down the Playwright driver process. Any sessions still holding
// browsers must be closed first.
func (r *Runtime) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.initialized || r.pw == nil {
		return nil
	}
	if err := r.pw.Stop(); err != nil {
		return fmt.Errorf("failed to stop playwright: %w", err)
	}
	r.initialized = false
	r.pw = nil
	return nil
}

// Factory returns a DriverFactory that launches Chromium instances from this
// runtime.
func (r *Runtime) Factory() DriverFactory {
	return func(ctx context.Context, cfg DriverConfig) (DriverHandle, error) {
		return r.launch(ctx, cfg)
	}
}

func (r *Runtime) launch(ctx context.Context, cfg DriverConfig) (DriverHandle, error) {
	r.mu.Lock()
	pw := r.pw
	initialized := r.initialized
	r.mu.Unlock()

	if !initialized || pw == nil {
		return nil, fmt.Errorf("browser runtime not initialized")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cfg = cfg.withDefaults()

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(cfg.Headless),
		Args: []string{
			"--no-sandbox",
			"--disable-dev-shm-usage",
			"--disable-blink-features=AutomationControlled",
		},
	}
	if cfg.Proxy != nil && cfg.Proxy.Host != "" {
		proxyOpt := &playwright.Proxy{Server: cfg.Proxy.ServerURL()}
		if cfg.Proxy.HasAuth() {
			proxyOpt.Username = playwright.String(cfg.Proxy.Username)
			proxyOpt.Password = playwright.String(cfg.Proxy.Password)
		}
		launchOpts.Proxy = proxyOpt
	}

	b, err := pw.Chromium.Launch(launchOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	contextOpts := playwright.BrowserNewContextOptions{
		UserAgent: playwright.String(cfg.UserAgent),
		Viewport: &playwright.Size{
			Width:  cfg.ViewportWidth,
			Height: cfg.ViewportHeight,
		},
	}
	bctx, err := b.NewContext(contextOpts)
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}

	page, err := bctx.NewPage()
	if err != nil {
		bctx.Close()
		b.Close()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	page.SetDefaultTimeout(float64(cfg.NavTimeout.Milliseconds()))

	return &playwrightDriver{
		browser:    b,
		context:    bctx,
		page:       page,
		navTimeout: cfg.NavTimeout,
		proxy:      cfg.Proxy,
	}, nil
}

// playwrightDriver adapts one Chromium browser/context/page triple to the
// DriverHandle contract.
type playwrightDriver struct {
	browser    playwright.Browser
	context    playwright.BrowserContext
	page       playwright.Page
	navTimeout time.Duration
	proxy      *ProxyDescriptor
}

func (d *playwrightDriver) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	waitUntil := playwright.WaitUntilState("domcontentloaded")
	_, err := d.page.Goto(url, playwright.PageGotoOptions{
		Timeout:   playwright.Float(float64(d.navTimeout.Milliseconds())),
		WaitUntil: &waitUntil,
	})
	if err != nil {
		return d.classifyNavError(url, err)
	}
	return nil
}

// classifyNavError surfaces proxy failures as their own type so callers can
// distinguish a dead proxy from a dead account.
func (d *playwrightDriver) classifyNavError(url string, err error) error {
	msg := err.Error()
	if d.proxy != nil {
		for _, marker := range []string{"ERR_PROXY", "ERR_TUNNEL", "ERR_SOCKS"} {
			if strings.Contains(msg, marker) {
				return &ProxyError{Server: d.proxy.ServerURL(), Err: err}
			}
		}
	}
	return fmt.Errorf("navigation to %s failed: %w", url, err)
}

func (d *playwrightDriver) Reload(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := d.page.Reload(); err != nil {
		return fmt.Errorf("reload failed: %w", err)
	}
	return nil
}

func (d *playwrightDriver) CurrentURL() string {
	return d.page.URL()
}

func (d *playwrightDriver) Fill(ctx context.Context, selector, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := d.page.Fill(selector, value); err != nil {
		return fmt.Errorf("fill %s failed: %w", selector, err)
	}
	return nil
}

func (d *playwrightDriver) Click(ctx context.Context, selector string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := d.page.Click(selector); err != nil {
		return fmt.Errorf("click %s failed: %w", selector, err)
	}
	return nil
}

func (d *playwrightDriver) WaitForText(ctx context.Context, selector string, timeout time.Duration) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	elem, err := d.page.WaitForSelector(selector, playwright.PageWaitForSelectorOptions{
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	})
	if err != nil {
		return "", &TimeoutError{Op: "wait for " + selector, Bound: timeout, Err: err}
	}
	text, err := elem.TextContent()
	if err != nil {
		return "", fmt.Errorf("text content of %s failed: %w", selector, err)
	}
	return strings.TrimSpace(text), nil
}

func (d *playwrightDriver) Exists(selector string) bool {
	elem, err := d.page.QuerySelector(selector)
	return err == nil && elem != nil
}

func (d *playwrightDriver) Cookies(ctx context.Context) (CookieJar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := d.context.Cookies()
	if err != nil {
		return nil, fmt.Errorf("failed to read cookies: %w", err)
	}
	jar := make(CookieJar, 0, len(raw))
	for _, c := range raw {
		jar = append(jar, Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HttpOnly: c.HttpOnly,
		})
	}
	return jar, nil
}

func (d *playwrightDriver) AddCookie(ctx context.Context, c Cookie) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	opt := playwright.OptionalCookie{
		Name:     c.Name,
		Value:    c.Value,
		Secure:   playwright.Bool(c.Secure),
		HttpOnly: playwright.Bool(c.HttpOnly),
	}
	if c.Domain != "" {
		opt.Domain = playwright.String(c.Domain)
		path := c.Path
		if path == "" {
			path = "/"
		}
		opt.Path = playwright.String(path)
	} else {
		// Cookies without a stored domain are scoped to wherever the page is.
		opt.URL = playwright.String(d.page.URL())
	}
	if err := d.context.AddCookies([]playwright.OptionalCookie{opt}); err != nil {
		return fmt.Errorf("failed to add cookie %q: %w", c.Name, err)
	}
	return nil
}

func (d *playwrightDriver) Screenshot(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := d.page.Screenshot()
	if err != nil {
		return nil, fmt.Errorf("screenshot failed: %w", err)
	}
	return data, nil
}

// Quit closes page, context and browser in order. The whole close is bounded
// by ctx; on expiry the handle is abandoned and a TeardownError returned so
// the caller never blocks on a wedged driver process.
func (d *playwrightDriver) Quit(ctx context.Context) error {
	done := make(chan error, 1)
	go func() {
		var errs []error
		if err := d.page.Close(); err != nil {
			errs = append(errs, err)
		}
		if err := d.context.Close(); err != nil {
			errs = append(errs, err)
		}
		if err := d.browser.Close(); err != nil {
			errs = append(errs, err)
		}
		done <- errors.Join(errs...)
	}()

	select {
	case err := <-done:
		if err != nil {
			return &TeardownError{Err: err}
		}
		return nil
	case <-ctx.Done():
		return &TeardownError{Err: fmt.Errorf("graceful quit expired: %w", ctx.Err())}
	}
}
