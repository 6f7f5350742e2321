// Package metrics exposes a run's events as Prometheus metrics.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Iron-Ham/fanout/internal/errors"
	"github.com/Iron-Ham/fanout/internal/event"
	"github.com/Iron-Ham/fanout/internal/logging"
)

const namespace = "fanout"

// Metrics holds the collectors of one run, registered on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	MessagesReceived *prometheus.CounterVec
	Anomalies        *prometheus.CounterVec
	DrainFailures    *prometheus.CounterVec
	AgentExits       *prometheus.CounterVec
	Count            *prometheus.GaugeVec
	Dropped          *prometheus.GaugeVec
	AgentsRunning    prometheus.Gauge
	RunState         *prometheus.GaugeVec
}

// New creates the collectors. Go runtime and process collectors are
// included.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		MessagesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Envelopes drained from each agent's channel.",
		}, []string{"agent"}),
		Anomalies: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sequence_anomalies_total",
			Help:      "Sequence mismatches observed per agent.",
		}, []string{"agent"}),
		DrainFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "drain_failures_total",
			Help:      "Drains that failed with a transport error.",
		}, []string{"agent"}),
		AgentExits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_exits_total",
			Help:      "Agents reaped, by exit status.",
		}, []string{"agent", "status"}),
		Count: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "agent_count",
			Help:      "Last observed sequence plus one, per agent.",
		}, []string{"agent"}),
		Dropped: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "agent_dropped",
			Help:      "Samples evicted before the orchestrator drained them.",
		}, []string{"agent"}),
		AgentsRunning: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "agents_running",
			Help:      "Agents launched and not yet reaped.",
		}),
		RunState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_state",
			Help:      "1 for the current run state, 0 otherwise.",
		}, []string{"state"}),
	}
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Attach subscribes m to every event on bus and returns the subscription id.
func (m *Metrics) Attach(bus *event.Bus) string {
	return bus.SubscribeAll(m.Record)
}

// Record updates the collectors from one event.
func (m *Metrics) Record(e event.Event) {
	switch e := e.(type) {
	case event.AgentLaunchedEvent:
		m.AgentsRunning.Inc()
	case event.AgentExitedEvent:
		m.AgentsRunning.Dec()
		status := "ok"
		if e.Err != nil {
			status = "error"
		}
		m.AgentExits.WithLabelValues(e.Agent, status).Inc()
	case event.MessagesDrainedEvent:
		m.MessagesReceived.WithLabelValues(e.Agent).Add(float64(e.Count))
		m.Count.WithLabelValues(e.Agent).Set(float64(e.LastSequence + 1))
	case event.SequenceAnomalyEvent:
		m.Anomalies.WithLabelValues(e.Agent).Inc()
	case event.DrainFailedEvent:
		m.DrainFailures.WithLabelValues(e.Agent).Inc()
	case event.SnapshotEvent:
		for _, a := range e.Agents {
			m.Dropped.WithLabelValues(a.Agent).Set(float64(a.Dropped))
		}
	case event.StateChangedEvent:
		m.RunState.WithLabelValues(e.From).Set(0)
		m.RunState.WithLabelValues(e.To).Set(1)
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string, logger *logging.Logger) error {
	if logger == nil {
		logger = logging.NopLogger()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	logger.Info("serving metrics", "addr", addr)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
