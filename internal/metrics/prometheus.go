package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector implements the Collector interface using Prometheus metrics.
type PrometheusCollector struct {
	connectionsTotal  prometheus.Counter
	connectionsActive prometheus.Gauge

	loginAttemptsTotal *prometheus.CounterVec

	commandsTotal *prometheus.CounterVec

	matchesStartedTotal  prometheus.Counter
	matchesFinishedTotal *prometheus.CounterVec

	translatorRequestsTotal *prometheus.CounterVec
	translatorLatencySecs   prometheus.Histogram
}

// NewPrometheusCollector creates a new PrometheusCollector with all metrics registered.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	c := &PrometheusCollector{
		connectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wqserver_connections_total",
			Help: "Total number of TCP connections opened.",
		}),
		connectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "wqserver_connections_active",
			Help: "Number of currently active TCP connections.",
		}),

		loginAttemptsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wqserver_login_attempts_total",
			Help: "Total number of login attempts.",
		}, []string{"result"}),

		commandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wqserver_commands_total",
			Help: "Total number of control-protocol commands processed.",
		}, []string{"command"}),

		matchesStartedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wqserver_matches_started_total",
			Help: "Total number of matches that entered Play.",
		}),
		matchesFinishedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wqserver_matches_finished_total",
			Help: "Total number of matches finished, by outcome.",
		}, []string{"outcome"}),

		translatorRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wqserver_translator_requests_total",
			Help: "Total number of translator fetch attempts.",
		}, []string{"result"}),
		translatorLatencySecs: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "wqserver_translator_latency_seconds",
			Help:    "Latency of translator fetch requests.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.connectionsTotal,
		c.connectionsActive,
		c.loginAttemptsTotal,
		c.commandsTotal,
		c.matchesStartedTotal,
		c.matchesFinishedTotal,
		c.translatorRequestsTotal,
		c.translatorLatencySecs,
	)

	return c
}

// ConnectionOpened increments the connection counter and active gauge.
func (c *PrometheusCollector) ConnectionOpened() {
	c.connectionsTotal.Inc()
	c.connectionsActive.Inc()
}

// ConnectionClosed decrements the active connections gauge.
func (c *PrometheusCollector) ConnectionClosed() {
	c.connectionsActive.Dec()
}

// LoginAttempt increments the login attempts counter.
func (c *PrometheusCollector) LoginAttempt(success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	c.loginAttemptsTotal.WithLabelValues(result).Inc()
}

// CommandProcessed increments the command counter.
func (c *PrometheusCollector) CommandProcessed(command string) {
	c.commandsTotal.WithLabelValues(command).Inc()
}

// MatchStarted increments the matches-started counter.
func (c *PrometheusCollector) MatchStarted() {
	c.matchesStartedTotal.Inc()
}

// MatchFinished increments the matches-finished counter for outcome.
func (c *PrometheusCollector) MatchFinished(outcome string) {
	c.matchesFinishedTotal.WithLabelValues(outcome).Inc()
}

// TranslatorRequest records a translator fetch attempt and its latency.
func (c *PrometheusCollector) TranslatorRequest(success bool, durationSeconds float64) {
	result := "failure"
	if success {
		result = "success"
	}
	c.translatorRequestsTotal.WithLabelValues(result).Inc()
	c.translatorLatencySecs.Observe(durationSeconds)
}
