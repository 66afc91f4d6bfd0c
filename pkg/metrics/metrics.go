// Package metrics exposes Prometheus collectors for the task lifecycle and automation engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Action outcomes.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeRetried   = "retried"
)

// Metrics groups the engine collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	transitionsTotal   *prometheus.CounterVec
	ruleMatchesTotal   *prometheus.CounterVec
	actionsTotal       *prometheus.CounterVec
	cyclesTotal        prometheus.Counter
	duplicateEvents    prometheus.Counter
	timerSessionsTotal *prometheus.CounterVec
	timerMinutesTotal  prometheus.Counter
	activeTaskQueues   prometheus.Gauge
	ruleRunDuration    *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		transitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskflow_task_transitions_total",
				Help: "Committed task status transitions",
			},
			[]string{"from", "to"},
		),
		ruleMatchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskflow_rule_matches_total",
				Help: "Automation rules matched per trigger event type",
			},
			[]string{"trigger_event"},
		),
		actionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskflow_actions_total",
				Help: "Automation action executions by type and outcome",
			},
			[]string{"action_type", "outcome"},
		),
		cyclesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "taskflow_rule_cycles_detected_total",
				Help: "Trigger events dropped because automation depth reached the cap",
			},
		),
		duplicateEvents: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "taskflow_duplicate_events_total",
				Help: "Redelivered trigger events ignored by the dispatcher",
			},
		),
		timerSessionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskflow_timer_sessions_total",
				Help: "Timer sessions started and stopped",
			},
			[]string{"event"},
		),
		timerMinutesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "taskflow_timer_minutes_total",
				Help: "Minutes folded into time_spent_minutes by closed sessions",
			},
		),
		activeTaskQueues: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "taskflow_dispatcher_active_task_queues",
				Help: "Tasks with automation work queued or running",
			},
		),
		ruleRunDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "taskflow_rule_run_duration_seconds",
				Help:    "Time to run one rule's action chain",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"trigger_event"},
		),
	}

	for _, c := range []prometheus.Collector{
		m.transitionsTotal, m.ruleMatchesTotal, m.actionsTotal, m.cyclesTotal, m.duplicateEvents,
		m.timerSessionsTotal, m.timerMinutesTotal, m.activeTaskQueues, m.ruleRunDuration,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// Handler serves the collectors registered with gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) Transition(from, to string) {
	if m == nil {
		return
	}

	m.transitionsTotal.WithLabelValues(from, to).Inc()
}

func (m *Metrics) RuleMatches(trigger string, n int) {
	if m == nil || n == 0 {
		return
	}

	m.ruleMatchesTotal.WithLabelValues(trigger).Add(float64(n))
}

func (m *Metrics) Action(actionType, outcome string) {
	if m == nil {
		return
	}

	m.actionsTotal.WithLabelValues(actionType, outcome).Inc()
}

func (m *Metrics) CycleDetected() {
	if m == nil {
		return
	}

	m.cyclesTotal.Inc()
}

func (m *Metrics) DuplicateEvent() {
	if m == nil {
		return
	}

	m.duplicateEvents.Inc()
}

func (m *Metrics) TimerStarted() {
	if m == nil {
		return
	}

	m.timerSessionsTotal.WithLabelValues("started").Inc()
}

func (m *Metrics) TimerStopped(minutes int) {
	if m == nil {
		return
	}

	m.timerSessionsTotal.WithLabelValues("stopped").Inc()
	m.timerMinutesTotal.Add(float64(minutes))
}

func (m *Metrics) ActiveTaskQueues(n int) {
	if m == nil {
		return
	}

	m.activeTaskQueues.Set(float64(n))
}

func (m *Metrics) RuleRun(trigger string, seconds float64) {
	if m == nil {
		return
	}

	m.ruleRunDuration.WithLabelValues(trigger).Observe(seconds)
}
