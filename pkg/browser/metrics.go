package browser

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricSessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "accfleet",
		Name:      "sessions_active",
		Help:      "Number of live browser sessions in the registry.",
	})
	metricSessionsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "accfleet",
		Name:      "sessions_created_total",
		Help:      "Total sessions successfully created and authenticated.",
	})
	metricSessionsClosed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "accfleet",
		Name:      "sessions_closed_total",
		Help:      "Total sessions closed and removed from the registry.",
	})
	metricToggles = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "accfleet",
		Name:      "visibility_toggles_total",
		Help:      "Total successful headless/visible toggles.",
	})
	metricToggleFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "accfleet",
		Name:      "visibility_toggle_failures_total",
		Help:      "Total toggles that failed and parked the session in error.",
	})
	metricProbeResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "accfleet",
		Name:      "probe_results_total",
		Help:      "Account status probe outcomes by classified state.",
	}, []string{"state"})
)
