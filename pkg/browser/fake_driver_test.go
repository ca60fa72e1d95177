package browser

import (
	"context"
	"sync"
	"time"
)

// fakeDriver is a scriptable in-memory DriverHandle. Elements maps selector
// to text content; a present selector exists, WaitForText on an absent one
// expires with a *TimeoutError.
type fakeDriver struct {
	mu       sync.Mutex
	url      string
	jar      CookieJar
	elements map[string]string
	fills    map[string]string
	clicks   []string

	// redirects maps a navigation target to the URL the page lands on,
	// simulating server-side redirects to login or checkpoint pages.
	redirects map[string]string

	navErr       error
	cookiesErr   error
	addCookieErr func(Cookie) error
	shotErr      error
	shot         []byte
	quitErr      error
	quitDelay    time.Duration
	quitCount    int

	// onClick mutates page state in response to a click, e.g. revealing the
	// logged-in chrome after a successful submit.
	onClick func(d *fakeDriver, selector string)
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		elements:  make(map[string]string),
		fills:     make(map[string]string),
		redirects: make(map[string]string),
		shot:      []byte("png-bytes"),
	}
}

func (d *fakeDriver) setElement(selector, text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.elements[selector] = text
}

func (d *fakeDriver) removeElement(selector string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.elements, selector)
}

func (d *fakeDriver) Navigate(_ context.Context, url string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.navErr != nil {
		return d.navErr
	}
	if landed, ok := d.redirects[url]; ok {
		d.url = landed
	} else {
		d.url = url
	}
	return nil
}

func (d *fakeDriver) Reload(_ context.Context) error { return nil }

func (d *fakeDriver) CurrentURL() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.url
}

func (d *fakeDriver) Fill(_ context.Context, selector, value string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fills[selector] = value
	return nil
}

func (d *fakeDriver) Click(_ context.Context, selector string) error {
	d.mu.Lock()
	d.clicks = append(d.clicks, selector)
	hook := d.onClick
	d.mu.Unlock()
	if hook != nil {
		hook(d, selector)
	}
	return nil
}

func (d *fakeDriver) WaitForText(_ context.Context, selector string, timeout time.Duration) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if text, ok := d.elements[selector]; ok {
		return text, nil
	}
	return "", &TimeoutError{Op: "wait for " + selector, Bound: timeout}
}

func (d *fakeDriver) Exists(selector string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.elements[selector]
	return ok
}

func (d *fakeDriver) Cookies(_ context.Context) (CookieJar, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cookiesErr != nil {
		return nil, d.cookiesErr
	}
	jar := make(CookieJar, len(d.jar))
	copy(jar, d.jar)
	return jar, nil
}

func (d *fakeDriver) AddCookie(_ context.Context, c Cookie) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.addCookieErr != nil {
		if err := d.addCookieErr(c); err != nil {
			return err
		}
	}
	d.jar = append(d.jar, c)
	return nil
}

func (d *fakeDriver) Screenshot(_ context.Context) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.shotErr != nil {
		return nil, d.shotErr
	}
	return d.shot, nil
}

func (d *fakeDriver) Quit(ctx context.Context) error {
	d.mu.Lock()
	d.quitCount++
	delay := d.quitDelay
	err := d.quitErr
	d.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (d *fakeDriver) quits() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.quitCount
}

func (d *fakeDriver) filled(selector string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fills[selector]
}

func (d *fakeDriver) cookieNames() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	names := make([]string, 0, len(d.jar))
	for _, c := range d.jar {
		names = append(names, c.Name)
	}
	return names
}

// fakeFactory builds fakeDrivers and records every launch.
type fakeFactory struct {
	mu      sync.Mutex
	configs []DriverConfig
	drivers []*fakeDriver

	// prepare customizes each driver before it is handed out.
	prepare func(d *fakeDriver)

	// delay simulates launch latency.
	delay time.Duration

	// failAfter makes launches beyond the first n fail; negative disables.
	failAfter int
	err       error
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{failAfter: -1}
}

func (f *fakeFactory) factory() DriverFactory {
	return func(ctx context.Context, cfg DriverConfig) (DriverHandle, error) {
		if f.delay > 0 {
			timer := time.NewTimer(f.delay)
			defer timer.Stop()
			select {
			case <-timer.C:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		f.mu.Lock()
		defer f.mu.Unlock()
		if f.failAfter >= 0 && len(f.configs) >= f.failAfter {
			f.configs = append(f.configs, cfg)
			return nil, f.err
		}
		d := newFakeDriver()
		// A fresh page shows the logged-in chrome by default so the login
		// verify step succeeds unless a test scripts otherwise.
		d.elements[navigationSelector] = "chrome"
		if f.prepare != nil {
			f.prepare(d)
		}
		f.configs = append(f.configs, cfg)
		f.drivers = append(f.drivers, d)
		return d, nil
	}
}

func (f *fakeFactory) launches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.configs)
}

func (f *fakeFactory) driver(i int) *fakeDriver {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.drivers[i]
}

func (f *fakeFactory) config(i int) DriverConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.configs[i]
}

// testLoginFlow returns a flow with waits short enough for unit tests.
func testLoginFlow() *LoginFlow {
	return NewLoginFlow(LoginFlowConfig{
		SettleWait: time.Millisecond,
		SubmitWait: time.Millisecond,
		VerifyWait: 5 * time.Millisecond,
	})
}

// testRegistry wires a registry around fac with short waits.
func testRegistry(fac *fakeFactory) *Registry {
	return NewRegistry(RegistryConfig{
		Factory:       fac.factory(),
		Login:         testLoginFlow(),
		TeardownGrace: 50 * time.Millisecond,
	})
}

var testJar = CookieJar{
	{Name: "c_user", Value: "100001", Domain: ".facebook.com", Path: "/"},
	{Name: "xs", Value: "token", Domain: ".facebook.com", Path: "/", Secure: true, HttpOnly: true},
}
