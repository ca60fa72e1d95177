package browser

import (
	"fmt"
	"time"
)

// SessionKey is the external account identifier used to key the registry.
type SessionKey string

// ProxyProtocol enumerates the proxy schemes the driver accepts.
type ProxyProtocol string

const (
	ProxyHTTP   ProxyProtocol = "http"
	ProxyHTTPS  ProxyProtocol = "https"
	ProxySOCKS4 ProxyProtocol = "socks4"
	ProxySOCKS5 ProxyProtocol = "socks5"
)

// ProxyDescriptor describes one upstream proxy endpoint. The zero value
// (empty Host) means a direct connection.
type ProxyDescriptor struct {
	Host     string        `json:"host"`
	Port     int           `json:"port"`
	Protocol ProxyProtocol `json:"protocol"`
	Username string        `json:"username,omitempty"`
	Password string        `json:"password,omitempty"`
}

// ServerURL renders the proxy in the form the browser launcher expects,
// without credentials (those are passed separately).
func (p ProxyDescriptor) ServerURL() string {
	proto := p.Protocol
	if proto == "" {
		proto = ProxyHTTP
	}
	return fmt.Sprintf("%s://%s:%d", proto, p.Host, p.Port)
}

// HasAuth reports whether the proxy requires credentials.
func (p ProxyDescriptor) HasAuth() bool {
	return p.Username != "" && p.Password != ""
}

// Cookie is one browser cookie as stored for an account.
type Cookie struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	Domain   string `json:"domain"`
	Path     string `json:"path"`
	Secure   bool   `json:"secure"`
	HttpOnly bool   `json:"httpOnly"`
}

// CookieJar is an ordered list of cookies; injection preserves order.
type CookieJar []Cookie

// Credentials hold an identifier/secret pair and, optionally, a base32
// TOTP seed for accounts protected by a second factor.
type Credentials struct {
	Identifier string `json:"identifier"`
	Secret     string `json:"secret"`
	TOTPSeed   string `json:"totpSeed,omitempty"`
}

// AuthMaterial is everything needed to authenticate one account. Cookies
// are the preferred path; credentials are the fallback.
type AuthMaterial struct {
	Cookies     CookieJar    `json:"cookies,omitempty"`
	Credentials *Credentials `json:"credentials,omitempty"`
}

// HasCookies reports whether a cookie-based login can be attempted.
func (m AuthMaterial) HasCookies() bool { return len(m.Cookies) > 0 }

// HasCredentials reports whether a credential-based login can be attempted.
func (m AuthMaterial) HasCredentials() bool {
	return m.Credentials != nil && m.Credentials.Identifier != "" && m.Credentials.Secret != ""
}

// SessionStatus tracks the session state machine. Transitions are monotonic
// except Ready<->Busy, which cycles during normal use.
type SessionStatus string

const (
	StatusInitializing SessionStatus = "initializing"
	StatusReady        SessionStatus = "ready"
	StatusBusy         SessionStatus = "busy"
	StatusError        SessionStatus = "error"
	StatusClosed       SessionStatus = "closed"
)

// AccountState is the probe's classification of account health.
type AccountState string

const (
	StateLive       AccountState = "live"
	StateCheckpoint AccountState = "checkpoint"
	StateDead       AccountState = "dead"
	StateUnknown    AccountState = "unknown"
	StateProbeError AccountState = "probe_error"
)

// LoginState is the terminal state of one authentication run.
type LoginState string

const (
	LoginAuthenticated LoginState = "authenticated"
	LoginCheckpoint    LoginState = "checkpoint"
	LoginDead          LoginState = "dead"
)

// LoginOutcome is the tagged result of an authentication flow. Screenshot
// is raw PNG bytes, attached only on non-authenticated outcomes.
type LoginOutcome struct {
	State      LoginState `json:"state"`
	Message    string     `json:"message"`
	Screenshot []byte     `json:"screenshot,omitempty"`
}

// StatusReport is the probe's output for one session. Screenshot is raw
// PNG bytes, attached only on non-live outcomes.
type StatusReport struct {
	State       AccountState `json:"state"`
	Message     string       `json:"message"`
	AccountName string       `json:"accountName,omitempty"`
	Screenshot  []byte       `json:"screenshot,omitempty"`
}

// SessionSummary is the read-only view of a session handed across the API
// boundary.
type SessionSummary struct {
	Key            SessionKey    `json:"key"`
	CurrentURL     string        `json:"currentUrl"`
	Headless       bool          `json:"headless"`
	Status         SessionStatus `json:"status"`
	HasProxy       bool          `json:"hasProxy"`
	ProxyHost      string        `json:"proxyHost,omitempty"`
	CreatedAt      time.Time     `json:"createdAt"`
	LastActivityAt time.Time     `json:"lastActivityAt"`
}

// Defaults shared by the driver and the flows.
const (
	DefaultSiteURL     = "https://www.facebook.com"
	DefaultProfilePath = "/me"

	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	DefaultViewportWidth  = 1920
	DefaultViewportHeight = 1080

	DefaultNavTimeout     = 30 * time.Second
	DefaultSelectorWait   = 10 * time.Second
	DefaultSettleWait     = 2 * time.Second
	DefaultSubmitWait     = 3 * time.Second
	DefaultTeardownGrace  = 10 * time.Second
	DefaultProbeNameWait  = 10 * time.Second
)
