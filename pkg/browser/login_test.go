package browser

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogin_WithCookies(t *testing.T) {
	drv := newFakeDriver()
	drv.setElement(navigationSelector, "chrome")
	flow := testLoginFlow()

	outcome, err := flow.Login(context.Background(), drv, AuthMaterial{Cookies: testJar})
	require.NoError(t, err)
	assert.Equal(t, LoginAuthenticated, outcome.State)
	assert.Equal(t, []string{"c_user", "xs"}, drv.cookieNames())
	assert.Empty(t, drv.fills, "cookie login must not touch form fields")
}

func TestLogin_WithCredentials(t *testing.T) {
	drv := newFakeDriver()
	drv.setElement("#email", "")
	drv.setElement("#pass", "")
	drv.setElement("button[name='login']", "")
	drv.onClick = func(d *fakeDriver, selector string) {
		if selector == "button[name='login']" {
			d.setElement(navigationSelector, "chrome")
		}
	}
	flow := testLoginFlow()

	outcome, err := flow.Login(context.Background(), drv, AuthMaterial{
		Credentials: &Credentials{Identifier: "user@example.com", Secret: "hunter2"},
	})
	require.NoError(t, err)
	assert.Equal(t, LoginAuthenticated, outcome.State)
	assert.Equal(t, "user@example.com", drv.filled("#email"))
	assert.Equal(t, "hunter2", drv.filled("#pass"))
}

func TestLogin_WithCredentialsAndTwoFactor(t *testing.T) {
	drv := newFakeDriver()
	drv.setElement("#email", "")
	drv.setElement("#pass", "")
	drv.setElement("button[name='login']", "")
	drv.onClick = func(d *fakeDriver, selector string) {
		switch selector {
		case "button[name='login']":
			d.setElement("#approvals_code", "")
			d.setElement("#checkpointSubmitButton", "")
		case "#checkpointSubmitButton":
			d.setElement(navigationSelector, "chrome")
		}
	}
	flow := NewLoginFlow(LoginFlowConfig{
		SettleWait: time.Millisecond,
		SubmitWait: time.Millisecond,
		VerifyWait: 5 * time.Millisecond,
		Now:        func() time.Time { return time.Unix(59, 0) },
	})

	outcome, err := flow.Login(context.Background(), drv, AuthMaterial{
		Credentials: &Credentials{
			Identifier: "user@example.com",
			Secret:     "hunter2",
			TOTPSeed:   "JBSWY3DPEHPK3PXP",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, LoginAuthenticated, outcome.State)
	assert.Equal(t, "996554", drv.filled("#approvals_code"), "the submitted code is derived from the seed and the clock")
}

func TestLogin_TwoFactorPromptWithoutSeed(t *testing.T) {
	drv := newFakeDriver()
	drv.setElement("#email", "")
	drv.setElement("#pass", "")
	drv.setElement("button[name='login']", "")
	drv.onClick = func(d *fakeDriver, selector string) {
		if selector == "button[name='login']" {
			d.setElement("#approvals_code", "")
		}
	}
	flow := testLoginFlow()

	_, err := flow.Login(context.Background(), drv, AuthMaterial{
		Credentials: &Credentials{Identifier: "user@example.com", Secret: "hunter2"},
	})
	assert.ErrorIs(t, err, ErrTwoFactorRequired)
}

func TestLogin_CheckpointDetected(t *testing.T) {
	drv := newFakeDriver()
	drv.redirects[DefaultSiteURL] = DefaultSiteURL + "/checkpoint/block"
	flow := testLoginFlow()

	outcome, err := flow.Login(context.Background(), drv, AuthMaterial{Cookies: testJar})
	require.NoError(t, err)
	assert.Equal(t, LoginCheckpoint, outcome.State)
	assert.NotEmpty(t, outcome.Screenshot)
}

func TestLogin_CookieFallbackToCredentials(t *testing.T) {
	drv := newFakeDriver()
	// No navigation chrome after the cookie reload: cookies are stale. The
	// form is present, so the flow falls back to credentials.
	drv.setElement("#email", "")
	drv.setElement("#pass", "")
	drv.setElement("button[name='login']", "")
	drv.onClick = func(d *fakeDriver, selector string) {
		if selector == "button[name='login']" {
			d.setElement(navigationSelector, "chrome")
		}
	}
	flow := testLoginFlow()

	outcome, err := flow.Login(context.Background(), drv, AuthMaterial{
		Cookies:     testJar,
		Credentials: &Credentials{Identifier: "user@example.com", Secret: "hunter2"},
	})
	require.NoError(t, err)
	assert.Equal(t, LoginAuthenticated, outcome.State)
	assert.Equal(t, "user@example.com", drv.filled("#email"))
}

func TestLogin_NoMaterial(t *testing.T) {
	flow := testLoginFlow()
	_, err := flow.Login(context.Background(), newFakeDriver(), AuthMaterial{})
	assert.ErrorIs(t, err, ErrNoAuthMaterial)
}

func TestLogin_MissingLoginForm(t *testing.T) {
	drv := newFakeDriver()
	flow := testLoginFlow()

	outcome, err := flow.Login(context.Background(), drv, AuthMaterial{
		Credentials: &Credentials{Identifier: "user@example.com", Secret: "hunter2"},
	})
	require.NoError(t, err)
	assert.Equal(t, LoginDead, outcome.State)
	assert.Contains(t, outcome.Message, "identifier field not found")
	assert.NotEmpty(t, outcome.Screenshot)
}

func TestFirstMatching_StrategyOrder(t *testing.T) {
	tests := []struct {
		name     string
		present  []string
		expected string
	}{
		{
			name:     "id beats name attribute",
			present:  []string{"#email", "input[name='email']"},
			expected: "#email",
		},
		{
			name:     "name attribute beats generic fallback",
			present:  []string{"input[name='email']", "input[type='text']"},
			expected: "input[name='email']",
		},
		{
			name:     "fallback alone still matches",
			present:  []string{"input[type='text']"},
			expected: "input[type='text']",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			drv := newFakeDriver()
			for _, sel := range tt.present {
				drv.setElement(sel, "")
			}
			s, ok := firstMatching(drv, identifierStrategies)
			require.True(t, ok)
			assert.Equal(t, tt.expected, s.selector)
		})
	}

	_, ok := firstMatching(newFakeDriver(), identifierStrategies)
	assert.False(t, ok)
}
