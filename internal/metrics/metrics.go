package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Oracle call outcomes
const (
	OutcomeOK          = "ok"
	OutcomeNotFound    = "not_found"
	OutcomeRateLimited = "rate_limited"
	OutcomeError       = "error"
)

type ScoutMetrics struct {
	NotificationsReceived prometheus.Counter
	NotificationsErrored  prometheus.Counter
	NotificationsSkipped  prometheus.Counter
	ParseFailures         prometheus.Counter
	TokensDetected        prometheus.Counter
	StoreAppendFailures   prometheus.Counter
	MonitoringActive      prometheus.Gauge
	OracleRequests        *prometheus.CounterVec
	OracleLatency         prometheus.Histogram
	AnalysesCompleted     *prometheus.CounterVec
	SnipePlans            *prometheus.CounterVec
	NotificationsSent     *prometheus.CounterVec
}

func NewScoutMetrics() *ScoutMetrics {
	return &ScoutMetrics{
		NotificationsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rayscout_log_notifications_total",
			Help: "Total number of fee account log notifications received",
		}),
		NotificationsErrored: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rayscout_log_notifications_errored_total",
			Help: "Total number of log notifications dropped because the transaction failed",
		}),
		NotificationsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rayscout_log_notifications_duplicate_total",
			Help: "Total number of log notifications skipped as already processed",
		}),
		ParseFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rayscout_parse_failures_total",
			Help: "Total number of transactions that could not be fetched from the ledger",
		}),
		TokensDetected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rayscout_tokens_detected_total",
			Help: "Total number of pool creations recorded",
		}),
		StoreAppendFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rayscout_store_append_failures_total",
			Help: "Total number of records that could not be persisted",
		}),
		MonitoringActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rayscout_monitoring_active",
			Help: "1 while the log subscription is active",
		}),
		OracleRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rayscout_oracle_requests_total",
			Help: "Risk oracle requests by outcome",
		}, []string{"outcome"}),
		OracleLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "rayscout_oracle_request_duration_seconds",
			Help:    "Risk oracle request latency, excluding the pacing delay",
			Buckets: prometheus.DefBuckets,
		}),
		AnalysesCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rayscout_analyses_total",
			Help: "Completed token analyses by risk level",
		}, []string{"level"}),
		SnipePlans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rayscout_snipe_plans_total",
			Help: "Snipe plans built for gate-passing tokens, by safety",
		}, []string{"safe"}),
		NotificationsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rayscout_chat_messages_total",
			Help: "Chat messages sent by result",
		}, []string{"result"}),
	}
}

// Register adds every collector to reg. Pass prometheus.DefaultRegisterer in production
// and a fresh registry in tests.
func (m *ScoutMetrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		m.NotificationsReceived,
		m.NotificationsErrored,
		m.NotificationsSkipped,
		m.ParseFailures,
		m.TokensDetected,
		m.StoreAppendFailures,
		m.MonitoringActive,
		m.OracleRequests,
		m.OracleLatency,
		m.AnalysesCompleted,
		m.SnipePlans,
		m.NotificationsSent,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
