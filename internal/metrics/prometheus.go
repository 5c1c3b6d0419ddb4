package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const promNamespace = "bot_panel"

type promCounter struct {
	counter prometheus.Counter
}

func (p promCounter) Inc() {
	p.counter.Inc()
}

type Prometheus struct {
	Metrics *Metrics

	registry *prometheus.Registry
	counters map[string]prometheus.Counter
}

func NewPrometheus() *Prometheus {
	p := &Prometheus{
		registry: prometheus.NewRegistry(),
		counters: make(map[string]prometheus.Counter),
	}
	p.Metrics = &Metrics{
		TransitionsRequested: p.counter("transitions_requested_total", "Start/stop transitions requested by the operator."),
		TransitionsResolved:  p.counter("transitions_resolved_total", "Transitions confirmed by a status event."),
		TransitionsTimedOut:  p.counter("transitions_timed_out_total", "Transitions cleared by the safety timeout."),
		TransitionsFailed:    p.counter("transitions_failed_total", "Transitions cleared by a backend error."),
		StaleEchoes:          p.counter("stale_echoes_total", "Status echoes discarded while a transition was pending."),
		Resyncs:              p.counter("resyncs_total", "Full status resyncs performed."),
		ResyncFailures:       p.counter("resync_failures_total", "Status resyncs that failed."),
		Reconnects:           p.counter("push_reconnects_total", "Push channel connections established."),
		ConfigRollbacks:      p.counter("config_rollbacks_total", "Optimistic config edits rolled back."),
		CommandSendFailures:  p.counter("command_send_failures_total", "Outbound commands that could not be sent."),
	}
	return p
}

func (p *Prometheus) counter(name, help string) Counter {
	c := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      name,
		Help:      help,
	})
	p.registry.MustRegister(c)
	p.counters[name] = c
	return promCounter{c}
}

func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
