package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/accfleet/accfleet/pkg/logging"
	"github.com/accfleet/accfleet/pkg/totp"
)

// selectorStrategy is one named way of locating a page element. Strategies
// for a step are tried in declaration order; the first one that matches wins,
// which keeps element location deterministic and testable.
type selectorStrategy struct {
	name     string
	selector string
}

var (
	identifierStrategies = []selectorStrategy{
		{"email field id", "#email"},
		{"email field name", "input[name='email']"},
		{"text input fallback", "input[type='text']"},
	}
	secretStrategies = []selectorStrategy{
		{"password field id", "#pass"},
		{"password field name", "input[name='pass']"},
		{"password input fallback", "input[type='password']"},
	}
	submitStrategies = []selectorStrategy{
		{"login button name", "button[name='login']"},
		{"login button testid", "button[data-testid='royal-login-button']"},
		{"submit fallback", "button[type='submit']"},
	}
	twoFactorPromptStrategies = []selectorStrategy{
		{"approvals code id", "#approvals_code"},
		{"approvals code name", "input[name='approvals_code']"},
		{"one-time-code input", "input[autocomplete='one-time-code']"},
	}
	twoFactorSubmitStrategies = []selectorStrategy{
		{"checkpoint submit id", "#checkpointSubmitButton"},
		{"submit fallback", "button[type='submit']"},
	}
)

// firstMatching returns the first strategy whose selector currently matches.
func firstMatching(drv DriverHandle, strategies []selectorStrategy) (selectorStrategy, bool) {
	for _, s := range strategies {
		if drv.Exists(s.selector) {
			return s, true
		}
	}
	return selectorStrategy{}, false
}

// Signals the post-login classifier keys on.
const (
	checkpointURLMarker = "checkpoint"
	loginURLMarker      = "login"
	navigationSelector  = `[role="navigation"]`
)

// LoginFlowConfig tunes the authentication flow.
type LoginFlowConfig struct {
	// SiteURL is the landing page the flow starts from.
	SiteURL string

	// SettleWait bounds the pause after a cookie reload.
	SettleWait time.Duration

	// SubmitWait bounds the pause after submitting credentials or a code.
	SubmitWait time.Duration

	// VerifyWait bounds the wait for the logged-in navigation chrome.
	VerifyWait time.Duration

	// Now supplies the clock for TOTP codes; defaults to time.Now.
	Now func() time.Time

	Logger *logging.Logger
}

// LoginFlow drives a fresh driver through cookie or credential
// authentication and classifies the terminal state. It never retries:
// checkpoint and dead classifications are final here, retry policy belongs
// to the caller.
type LoginFlow struct {
	cfg LoginFlowConfig
	log *logging.Logger
}

// NewLoginFlow builds a flow with defaults filled in.
func NewLoginFlow(cfg LoginFlowConfig) *LoginFlow {
	if cfg.SiteURL == "" {
		cfg.SiteURL = DefaultSiteURL
	}
	if cfg.SettleWait == 0 {
		cfg.SettleWait = DefaultSettleWait
	}
	if cfg.SubmitWait == 0 {
		cfg.SubmitWait = DefaultSubmitWait
	}
	if cfg.VerifyWait == 0 {
		cfg.VerifyWait = DefaultSelectorWait
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &LoginFlow{cfg: cfg, log: cfg.Logger}
}

// Login authenticates drv with the supplied material. Cookies are preferred;
// credentials (with optional TOTP second factor) are the fallback. The
// returned outcome is terminal; err is non-nil only for mechanical failures
// (navigation, missing seed, wait expiry on required elements).
func (f *LoginFlow) Login(ctx context.Context, drv DriverHandle, material AuthMaterial) (LoginOutcome, error) {
	if err := drv.Navigate(ctx, f.cfg.SiteURL); err != nil {
		return LoginOutcome{}, err
	}

	if material.HasCookies() {
		outcome, err := f.loginWithCookies(ctx, drv, material.Cookies)
		if err == nil && outcome.State == LoginAuthenticated {
			return outcome, nil
		}
		// Cookie restore failed; fall through to credentials when present.
		if !material.HasCredentials() {
			return outcome, err
		}
		f.warnf("cookie login failed (%s), falling back to credentials", outcome.State)
	}

	if material.HasCredentials() {
		return f.loginWithCredentials(ctx, drv, *material.Credentials)
	}

	return LoginOutcome{}, ErrNoAuthMaterial
}

// loginWithCookies injects the jar, reloads and classifies the result.
// Individual cookies that fail to apply are logged and skipped; a partial
// jar can still authenticate.
func (f *LoginFlow) loginWithCookies(ctx context.Context, drv DriverHandle, jar CookieJar) (LoginOutcome, error) {
	for _, c := range jar {
		if err := drv.AddCookie(ctx, c); err != nil {
			f.warnf("cookie %q not applied: %v", c.Name, err)
		}
	}
	if err := drv.Reload(ctx); err != nil {
		return LoginOutcome{}, err
	}
	if err := sleepCtx(ctx, f.cfg.SettleWait); err != nil {
		return LoginOutcome{}, err
	}
	return f.verify(ctx, drv, "cookies restored but session not authenticated")
}

// loginWithCredentials fills the identifier/secret fields, submits and walks
// the optional two-factor prompt.
func (f *LoginFlow) loginWithCredentials(ctx context.Context, drv DriverHandle, creds Credentials) (LoginOutcome, error) {
	idField, ok := firstMatching(drv, identifierStrategies)
	if !ok {
		return f.failure(ctx, drv, LoginDead, "identifier field not found on landing page")
	}
	if err := drv.Fill(ctx, idField.selector, creds.Identifier); err != nil {
		return LoginOutcome{}, err
	}

	secretField, ok := firstMatching(drv, secretStrategies)
	if !ok {
		return f.failure(ctx, drv, LoginDead, "password field not found on landing page")
	}
	if err := drv.Fill(ctx, secretField.selector, creds.Secret); err != nil {
		return LoginOutcome{}, err
	}

	submit, ok := firstMatching(drv, submitStrategies)
	if !ok {
		return f.failure(ctx, drv, LoginDead, "login button not found on landing page")
	}
	if err := drv.Click(ctx, submit.selector); err != nil {
		return LoginOutcome{}, err
	}
	if err := sleepCtx(ctx, f.cfg.SubmitWait); err != nil {
		return LoginOutcome{}, err
	}

	if prompt, prompted := firstMatching(drv, twoFactorPromptStrategies); prompted {
		if err := f.submitTwoFactor(ctx, drv, creds, prompt); err != nil {
			return LoginOutcome{}, err
		}
	}

	return f.verify(ctx, drv, "credentials rejected")
}

func (f *LoginFlow) submitTwoFactor(ctx context.Context, drv DriverHandle, creds Credentials, prompt selectorStrategy) error {
	if creds.TOTPSeed == "" {
		return fmt.Errorf("2fa prompt (%s) present: %w", prompt.name, ErrTwoFactorRequired)
	}
	code, err := totp.Generate(creds.TOTPSeed, f.cfg.Now())
	if err != nil {
		return fmt.Errorf("totp generation failed: %w", err)
	}
	f.logf("2fa prompt detected via %s, submitting code", prompt.name)
	if err := drv.Fill(ctx, prompt.selector, code); err != nil {
		return err
	}
	submit, ok := firstMatching(drv, twoFactorSubmitStrategies)
	if !ok {
		return fmt.Errorf("2fa submit button not found")
	}
	if err := drv.Click(ctx, submit.selector); err != nil {
		return err
	}
	return sleepCtx(ctx, f.cfg.SubmitWait)
}

// verify classifies the page after an authentication attempt. URL signals
// are checked before content signals, first match wins.
func (f *LoginFlow) verify(ctx context.Context, drv DriverHandle, deadMessage string) (LoginOutcome, error) {
	url := drv.CurrentURL()
	if strings.Contains(url, checkpointURLMarker) {
		return f.failure(ctx, drv, LoginCheckpoint, "account flagged for checkpoint verification")
	}
	if strings.Contains(url, loginURLMarker) {
		return f.failure(ctx, drv, LoginDead, deadMessage)
	}
	if _, err := drv.WaitForText(ctx, navigationSelector, f.cfg.VerifyWait); err != nil {
		if IsTimeout(err) {
			return f.failure(ctx, drv, LoginDead, deadMessage)
		}
		return LoginOutcome{}, err
	}
	return LoginOutcome{State: LoginAuthenticated, Message: "authenticated"}, nil
}

// failure builds a terminal non-authenticated outcome with a diagnostic
// screenshot attached on a best-effort basis.
func (f *LoginFlow) failure(ctx context.Context, drv DriverHandle, state LoginState, message string) (LoginOutcome, error) {
	outcome := LoginOutcome{State: state, Message: message}
	shot, err := drv.Screenshot(ctx)
	if err != nil {
		f.warnf("diagnostic screenshot failed: %v", err)
	} else {
		outcome.Screenshot = shot
	}
	return outcome, nil
}

func (f *LoginFlow) logf(format string, v ...interface{}) {
	if f.log != nil {
		f.log.Infof(format, v...)
	}
}

func (f *LoginFlow) warnf(format string, v ...interface{}) {
	if f.log != nil {
		f.log.Warnf(format, v...)
	}
}

// sleepCtx pauses for d or until ctx is cancelled, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
