package browser

import (
	"context"
	"fmt"
)

// ToggleVisibility atomically switches the session for key between headless
// and visible rendering without losing authentication. The sequence is:
// snapshot location and cookies, tear down the old driver, launch a new one
// with the flag flipped and the same proxy, replay the cookies, return to
// the snapshotted location. A single cookie failing to replay is a warning;
// a hard failure in any other step parks the session in the Error state and
// leaves the key registered so the caller can explicitly close it.
func (r *Registry) ToggleVisibility(ctx context.Context, key SessionKey) (*Session, error) {
	session, err := r.Get(key)
	if err != nil {
		return nil, err
	}

	err = session.Do(ctx, "toggle", func(ctx context.Context, drv DriverHandle) error {
		return r.toggle(ctx, session, drv)
	})
	if err != nil {
		metricToggleFailures.Inc()
		return nil, err
	}
	metricToggles.Inc()
	return session, nil
}

func (r *Registry) toggle(ctx context.Context, session *Session, oldDrv DriverHandle) error {
	location := oldDrv.CurrentURL()
	jar, err := oldDrv.Cookies(ctx)
	if err != nil {
		session.markError()
		return fmt.Errorf("cookie snapshot for %s failed: %w", session.Key, err)
	}

	// The old driver goes away before the new one launches so headless and
	// visible instances never coexist for one key. A dirty quit is logged;
	// the handle is already abandoned either way.
	quitCtx, cancel := context.WithTimeout(ctx, r.cfg.TeardownGrace)
	if err := oldDrv.Quit(quitCtx); err != nil {
		r.warnf("old driver for %s did not quit cleanly: %v", session.Key, err)
	}
	cancel()

	cfg := r.cfg.Driver
	cfg.Headless = !session.Headless()
	cfg.Proxy = session.Proxy

	newDrv, err := r.cfg.Factory(ctx, cfg)
	if err != nil {
		session.markError()
		return fmt.Errorf("relaunch for %s failed: %w", session.Key, err)
	}

	if err := r.restore(ctx, newDrv, jar, location); err != nil {
		r.teardown(session.Key, newDrv)
		session.markError()
		return err
	}

	if !session.replaceDriver(newDrv, cfg.Headless) {
		r.teardown(session.Key, newDrv)
		return fmt.Errorf("toggle for %s: %w", session.Key, ErrSessionClosed)
	}
	r.logf("session %s toggled to headless=%t", session.Key, cfg.Headless)
	return nil
}

// restore replays the snapshotted state into a fresh driver.
func (r *Registry) restore(ctx context.Context, drv DriverHandle, jar CookieJar, location string) error {
	if err := drv.Navigate(ctx, r.siteURL()); err != nil {
		return fmt.Errorf("root navigation failed: %w", err)
	}
	for _, c := range jar {
		if err := drv.AddCookie(ctx, c); err != nil {
			r.warnf("cookie %q not replayed: %v", c.Name, err)
		}
	}
	if err := drv.Navigate(ctx, location); err != nil {
		return fmt.Errorf("return navigation to %s failed: %w", location, err)
	}
	return nil
}

func (r *Registry) siteURL() string {
	if r.cfg.Login != nil {
		return r.cfg.Login.cfg.SiteURL
	}
	return DefaultSiteURL
}
