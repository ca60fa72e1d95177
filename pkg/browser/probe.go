package browser

import (
	"context"
	"strings"
	"time"

	"github.com/accfleet/accfleet/pkg/logging"
)

// ProbeConfig tunes the status probe.
type ProbeConfig struct {
	// ProfileURL is the canonical "my profile" location.
	ProfileURL string

	// NameWait bounds the wait for the profile-name element.
	NameWait time.Duration

	Logger *logging.Logger
}

// StatusProbe classifies account health from observable page signals. The
// precedence is fixed: checkpoint URL, then login URL, then profile name
// within the wait bound, then Unknown; transport failures are ProbeError.
type StatusProbe struct {
	cfg ProbeConfig
	log *logging.Logger
}

// NewStatusProbe builds a probe with defaults filled in.
func NewStatusProbe(cfg ProbeConfig) *StatusProbe {
	if cfg.ProfileURL == "" {
		cfg.ProfileURL = DefaultSiteURL + DefaultProfilePath
	}
	if cfg.NameWait == 0 {
		cfg.NameWait = DefaultProbeNameWait
	}
	return &StatusProbe{cfg: cfg, log: cfg.Logger}
}

const profileNameSelector = "h1"

// Classify probes the session's account. It holds the session's operation
// slot for the duration; a busy session is rejected rather than queued.
func (p *StatusProbe) Classify(ctx context.Context, session *Session) (StatusReport, error) {
	var report StatusReport
	err := session.Do(ctx, "classify", func(ctx context.Context, drv DriverHandle) error {
		report = p.classify(ctx, drv)
		return nil
	})
	if err != nil {
		return StatusReport{}, err
	}

	metricProbeResults.WithLabelValues(string(report.State)).Inc()
	p.logf("probe for %s: %s (%s)", session.Key, report.State, report.Message)
	return report, nil
}

func (p *StatusProbe) classify(ctx context.Context, drv DriverHandle) StatusReport {
	if err := drv.Navigate(ctx, p.cfg.ProfileURL); err != nil {
		return p.withScreenshot(ctx, drv, StatusReport{
			State:   StateProbeError,
			Message: err.Error(),
		})
	}

	url := drv.CurrentURL()
	if strings.Contains(url, checkpointURLMarker) {
		return p.withScreenshot(ctx, drv, StatusReport{
			State:   StateCheckpoint,
			Message: "account in checkpoint",
		})
	}
	if strings.Contains(url, loginURLMarker) {
		return p.withScreenshot(ctx, drv, StatusReport{
			State:   StateDead,
			Message: "account cookies expired or invalid",
		})
	}

	name, err := drv.WaitForText(ctx, profileNameSelector, p.cfg.NameWait)
	if err != nil {
		if IsTimeout(err) {
			return p.withScreenshot(ctx, drv, StatusReport{
				State:   StateUnknown,
				Message: "could not determine account status",
			})
		}
		return p.withScreenshot(ctx, drv, StatusReport{
			State:   StateProbeError,
			Message: err.Error(),
		})
	}

	return StatusReport{
		State:       StateLive,
		Message:     "account is active: " + name,
		AccountName: name,
	}
}

// withScreenshot attaches a diagnostic capture to a non-live report.
// Screenshot failures degrade to a report without one.
func (p *StatusProbe) withScreenshot(ctx context.Context, drv DriverHandle, report StatusReport) StatusReport {
	shot, err := drv.Screenshot(ctx)
	if err != nil {
		p.warnf("diagnostic screenshot failed: %v", err)
		return report
	}
	report.Screenshot = shot
	return report
}

func (p *StatusProbe) logf(format string, v ...interface{}) {
	if p.log != nil {
		p.log.Infof(format, v...)
	}
}

func (p *StatusProbe) warnf(format string, v ...interface{}) {
	if p.log != nil {
		p.log.Warnf(format, v...)
	}
}
