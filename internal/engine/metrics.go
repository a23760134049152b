package engine

import (
	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// metrics are the engine's Prometheus collectors. Every collector carries
// the program name as a constant label.
type metrics struct {
	transactions prometheus.Counter
	rounds       prometheus.Counter
	rebuilds     prometheus.Counter
	deltaSize    prometheus.Histogram
}

func newMetrics(reg prometheus.Registerer, programName string) (*metrics, error) {
	labels := prometheus.Labels{"program": programName}
	m := &metrics{
		transactions: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "ddflow_transactions_total",
			Help:        "Committed transactions.",
			ConstLabels: labels,
		}),
		rounds: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "ddflow_rounds_total",
			Help:        "Evaluation rounds across all strata.",
			ConstLabels: labels,
		}),
		rebuilds: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "ddflow_stratum_rebuilds_total",
			Help:        "Recursive strata re-derived after an upstream retraction.",
			ConstLabels: labels,
		}),
		deltaSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "ddflow_transaction_delta_size",
			Help:        "Entries in the DeltaMap returned per transaction.",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(1, 4, 8),
		}),
	}

	var err error
	if m.transactions, err = registerCounter(reg, m.transactions); err != nil {
		return nil, err
	}
	if m.rounds, err = registerCounter(reg, m.rounds); err != nil {
		return nil, err
	}
	if m.rebuilds, err = registerCounter(reg, m.rebuilds); err != nil {
		return nil, err
	}
	if err := reg.Register(m.deltaSize); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return nil, errors.Wrap(err, "register delta size histogram")
		}
		m.deltaSize = are.ExistingCollector.(prometheus.Histogram)
	}
	return m, nil
}

// registerCounter registers c, reusing an identical collector registered by
// another engine running the same program.
func registerCounter(reg prometheus.Registerer, c prometheus.Counter) (prometheus.Counter, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			return are.ExistingCollector.(prometheus.Counter), nil
		}
		return nil, errors.Wrap(err, "register counter")
	}
	return c, nil
}
