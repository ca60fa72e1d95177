// Package proxycheck verifies proxy endpoints out of band, without spending
// a browser launch on a dead upstream. HTTP and HTTPS proxies are exercised
// through the standard transport; SOCKS5 through the x/net dialer.
package proxycheck

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	xproxy "golang.org/x/net/proxy"

	"github.com/accfleet/accfleet/pkg/browser"
	"github.com/accfleet/accfleet/pkg/logging"
)

// Result reports one liveness check.
type Result struct {
	OK      bool          `json:"ok"`
	Latency time.Duration `json:"latency"`
	Message string        `json:"message"`
}

// Config tunes the checker.
type Config struct {
	// ProbeURL is fetched through the proxy under test. It should be a
	// cheap, always-up endpoint.
	ProbeURL string

	// Timeout bounds one full check.
	Timeout time.Duration

	Logger *logging.Logger
}

// Checker performs proxy liveness checks.
type Checker struct {
	cfg Config
	log *logging.Logger
}

// New builds a Checker with defaults filled in.
func New(cfg Config) *Checker {
	if cfg.ProbeURL == "" {
		cfg.ProbeURL = "https://www.google.com/generate_204"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Checker{cfg: cfg, log: cfg.Logger}
}

// Check fetches the probe URL through desc and reports reachability and
// latency. socks4 endpoints are accepted by the browser driver but cannot
// be dialed here and are reported as unsupported.
func (c *Checker) Check(ctx context.Context, desc browser.ProxyDescriptor) Result {
	if desc.Host == "" || desc.Port == 0 {
		return Result{Message: "proxy host and port are required"}
	}

	transport, err := c.transportFor(desc)
	if err != nil {
		return Result{Message: err.Error()}
	}

	client := &http.Client{Transport: transport, Timeout: c.cfg.Timeout}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.ProbeURL, nil)
	if err != nil {
		return Result{Message: fmt.Sprintf("building probe request: %v", err)}
	}

	start := time.Now()
	resp, err := client.Do(req)
	latency := time.Since(start)
	if err != nil {
		c.debugf("proxy %s failed: %v", desc.ServerURL(), err)
		return Result{Latency: latency, Message: fmt.Sprintf("probe through %s failed: %v", desc.ServerURL(), err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return Result{Latency: latency, Message: fmt.Sprintf("probe returned %s", resp.Status)}
	}
	return Result{OK: true, Latency: latency, Message: "proxy reachable"}
}

func (c *Checker) transportFor(desc browser.ProxyDescriptor) (*http.Transport, error) {
	addr := net.JoinHostPort(desc.Host, fmt.Sprintf("%d", desc.Port))

	switch desc.Protocol {
	case browser.ProxyHTTP, browser.ProxyHTTPS, "":
		proxyURL := &url.URL{
			Scheme: string(browser.ProxyHTTP),
			Host:   addr,
		}
		if desc.Protocol == browser.ProxyHTTPS {
			proxyURL.Scheme = string(browser.ProxyHTTPS)
		}
		if desc.HasAuth() {
			proxyURL.User = url.UserPassword(desc.Username, desc.Password)
		}
		return &http.Transport{Proxy: http.ProxyURL(proxyURL)}, nil

	case browser.ProxySOCKS5:
		var auth *xproxy.Auth
		if desc.HasAuth() {
			auth = &xproxy.Auth{User: desc.Username, Password: desc.Password}
		}
		dialer, err := xproxy.SOCKS5("tcp", addr, auth, xproxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("socks5 dialer for %s: %w", addr, err)
		}
		transport := &http.Transport{}
		if cd, ok := dialer.(xproxy.ContextDialer); ok {
			transport.DialContext = cd.DialContext
		} else {
			transport.DialContext = func(ctx context.Context, network, address string) (net.Conn, error) {
				return dialer.Dial(network, address)
			}
		}
		return transport, nil

	case browser.ProxySOCKS4:
		return nil, fmt.Errorf("socks4 liveness checks are not supported")

	default:
		return nil, fmt.Errorf("unsupported proxy protocol %q", desc.Protocol)
	}
}

func (c *Checker) debugf(format string, v ...interface{}) {
	if c.log != nil {
		c.log.Debugf(format, v...)
	}
}
