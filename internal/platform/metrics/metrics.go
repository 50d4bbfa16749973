package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	UsersRegistered prometheus.Counter
	Logins          *prometheus.CounterVec
	RecordsUploaded prometheus.Counter

	ConsentTransitions *prometheus.CounterVec
	ConsentsSwept      prometheus.Counter
	SweepRuns          *prometheus.CounterVec
	AccountsPurged     prometheus.Counter

	Notifications *prometheus.CounterVec
	AuditDropped  prometheus.Counter

	RequestDuration *prometheus.HistogramVec
}

// New creates and registers all Prometheus metrics on the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers the metrics on a caller-supplied registry. Tests use a
// fresh registry per fixture so repeated registration does not panic.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		UsersRegistered: factory.NewCounter(prometheus.CounterOpts{
			Name: "datashare_users_registered_total",
			Help: "Total number of users registered.",
		}),
		Logins: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "datashare_logins_total",
			Help: "Login attempts by outcome.",
		}, []string{"outcome"}),
		RecordsUploaded: factory.NewCounter(prometheus.CounterOpts{
			Name: "datashare_records_uploaded_total",
			Help: "Total number of data records uploaded.",
		}),
		ConsentTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "datashare_consent_transitions_total",
			Help: "Consent state transitions by kind (requested, approved, rejected, revoked, swept).",
		}, []string{"transition"}),
		ConsentsSwept: factory.NewCounter(prometheus.CounterOpts{
			Name: "datashare_consents_swept_total",
			Help: "Approved consents transitioned to revoked by the expiry sweep.",
		}),
		SweepRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "datashare_sweep_runs_total",
			Help: "Background sweep ticks by sweep name and outcome.",
		}, []string{"sweep", "outcome"}),
		AccountsPurged: factory.NewCounter(prometheus.CounterOpts{
			Name: "datashare_accounts_purged_total",
			Help: "User accounts permanently removed by the purge sweep.",
		}),
		Notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "datashare_notifications_total",
			Help: "Notification deliveries by template and outcome.",
		}, []string{"template", "outcome"}),
		AuditDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "datashare_audit_events_dropped_total",
			Help: "Audit events dropped because the async buffer was full.",
		}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "datashare_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern and status class.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "status"}),
	}
}
