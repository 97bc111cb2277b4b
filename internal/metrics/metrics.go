// Package metrics exposes Prometheus counters for the job pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels.
const (
	OutcomeOK      = "ok"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

// Recorder owns a private registry so tests and multiple binaries do not
// collide on the global one.
type Recorder struct {
	registry *prometheus.Registry

	notifications *prometheus.CounterVec
	submissions   *prometheus.CounterVec
	transitions   *prometheus.CounterVec
	deadLetters   *prometheus.CounterVec
	cookies       *prometheus.CounterVec
	httpRequests  *prometheus.CounterVec
}

func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vod",
			Name:      "notifications_total",
			Help:      "Inbound triggers by kind.",
		}, []string{"kind"}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vod",
			Name:      "job_submissions_total",
			Help:      "Transcoding job submissions by outcome.",
		}, []string{"outcome"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vod",
			Name:      "job_transitions_total",
			Help:      "Job status transitions by target status and outcome.",
		}, []string{"status", "outcome"}),
		deadLetters: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vod",
			Name:      "dead_letters_total",
			Help:      "Notifications dropped after a failure, by failure type.",
		}, []string{"failure_type"}),
		cookies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vod",
			Name:      "signed_cookies_total",
			Help:      "Signed cookie requests by outcome.",
		}, []string{"outcome"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vod",
			Name:      "api_requests_total",
			Help:      "Read API requests by route and status code.",
		}, []string{"route", "code"}),
	}
	r.registry.MustRegister(
		r.notifications,
		r.submissions,
		r.transitions,
		r.deadLetters,
		r.cookies,
		r.httpRequests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// The methods below accept a nil receiver so callers may run without metrics.

func (r *Recorder) Notification(kind string) {
	if r == nil {
		return
	}
	r.notifications.WithLabelValues(kind).Inc()
}

func (r *Recorder) Submission(outcome string) {
	if r == nil {
		return
	}
	r.submissions.WithLabelValues(outcome).Inc()
}

func (r *Recorder) Transition(status, outcome string) {
	if r == nil {
		return
	}
	r.transitions.WithLabelValues(status, outcome).Inc()
}

func (r *Recorder) DeadLetter(failureType string) {
	if r == nil {
		return
	}
	r.deadLetters.WithLabelValues(failureType).Inc()
}

func (r *Recorder) SignedCookies(outcome string) {
	if r == nil {
		return
	}
	r.cookies.WithLabelValues(outcome).Inc()
}

func (r *Recorder) APIRequest(route, code string) {
	if r == nil {
		return
	}
	r.httpRequests.WithLabelValues(route, code).Inc()
}
