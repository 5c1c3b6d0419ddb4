package metrics

type Counter interface {
	Inc()
}

type Metrics struct {
	TransitionsRequested Counter
	TransitionsResolved  Counter
	TransitionsTimedOut  Counter
	TransitionsFailed    Counter
	StaleEchoes          Counter
	Resyncs              Counter
	ResyncFailures       Counter
	Reconnects           Counter
	ConfigRollbacks      Counter
	CommandSendFailures  Counter
}

type noopCounter struct{}

func (noopCounter) Inc() {}

func NewNoop() *Metrics {
	n := noopCounter{}
	return &Metrics{
		TransitionsRequested: n,
		TransitionsResolved:  n,
		TransitionsTimedOut:  n,
		TransitionsFailed:    n,
		StaleEchoes:          n,
		Resyncs:              n,
		ResyncFailures:       n,
		Reconnects:           n,
		ConfigRollbacks:      n,
		CommandSendFailures:  n,
	}
}

// OrNoop lets callers accept a nil *Metrics.
func OrNoop(m *Metrics) *Metrics {
	if m == nil {
		return NewNoop()
	}
	return m
}
