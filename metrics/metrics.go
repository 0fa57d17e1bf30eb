// Package metrics provides Prometheus counters for the survey bot.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder holds every metric the bot exports. A nil *Recorder is valid and
// records nothing.
type Recorder struct {
	registry *prometheus.Registry

	eventsTotal         *prometheus.CounterVec
	eventDuration       *prometheus.HistogramVec
	surveysStarted      prometheus.Counter
	surveysCompleted    prometheus.Counter
	answersTotal        prometheus.Counter
	repliesTotal        *prometheus.CounterVec
	persistenceFailures prometheus.Counter
	deliveryFailures    *prometheus.CounterVec
	activeSessions      prometheus.Gauge
}

// NewRecorder registers the metrics on a fresh registry.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		eventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "surveybot_events_total",
				Help: "Inbound events by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		eventDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "surveybot_event_duration_seconds",
				Help:    "Time spent handling one inbound event",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind"},
		),
		surveysStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "surveybot_surveys_started_total",
			Help: "Survey sessions started",
		}),
		surveysCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "surveybot_surveys_completed_total",
			Help: "Survey sessions finished",
		}),
		answersTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "surveybot_answers_total",
			Help: "Answers captured",
		}),
		repliesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "surveybot_reviewer_replies_total",
				Help: "Reviewer replies by delivery status",
			},
			[]string{"status"},
		),
		persistenceFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "surveybot_persistence_failures_total",
			Help: "Conversation log writes that failed",
		}),
		deliveryFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "surveybot_delivery_failures_total",
				Help: "Outbound sends that failed, by recipient role",
			},
			[]string{"recipient"},
		),
		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "surveybot_active_sessions",
			Help: "Survey sessions currently in memory",
		}),
	}
}

func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

func (r *Recorder) ObserveEvent(kind, outcome string, duration time.Duration) {
	if r == nil {
		return
	}
	r.eventsTotal.WithLabelValues(kind, outcome).Inc()
	r.eventDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

func (r *Recorder) SurveyStarted() {
	if r == nil {
		return
	}
	r.surveysStarted.Inc()
}

func (r *Recorder) SurveyCompleted() {
	if r == nil {
		return
	}
	r.surveysCompleted.Inc()
}

func (r *Recorder) AnswerCaptured() {
	if r == nil {
		return
	}
	r.answersTotal.Inc()
}

func (r *Recorder) Reply(delivered bool) {
	if r == nil {
		return
	}
	status := "delivered"
	if !delivered {
		status = "failed"
	}
	r.repliesTotal.WithLabelValues(status).Inc()
}

func (r *Recorder) PersistenceFailure() {
	if r == nil {
		return
	}
	r.persistenceFailures.Inc()
}

// DeliveryFailure counts a failed send; recipient is "user" or "reviewer".
func (r *Recorder) DeliveryFailure(recipient string) {
	if r == nil {
		return
	}
	r.deliveryFailures.WithLabelValues(recipient).Inc()
}

func (r *Recorder) SetActiveSessions(n int) {
	if r == nil {
		return
	}
	r.activeSessions.Set(float64(n))
}
