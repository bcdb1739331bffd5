package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/signalsfoundry/amoebot-simulator/core"
)

// EngineCollector exposes per-round simulation metrics. It implements
// core.MetricsRecorder.
type EngineCollector struct {
	gatherer prometheus.Gatherer

	RoundsTotal    prometheus.Counter
	RoundDuration  prometheus.Histogram
	Circuits       prometheus.Gauge
	Population     prometheus.Gauge
	OccupiedNodes  prometheus.Gauge
	BeepsSent      prometheus.Counter
	BeepsDelivered prometheus.Counter
	BeepsDropped   prometheus.Counter
	Movements      *prometheus.CounterVec
}

var _ core.MetricsRecorder = (*EngineCollector)(nil)

// NewEngineCollector registers engine metrics against the provided registerer.
func NewEngineCollector(reg prometheus.Registerer) (*EngineCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	rounds, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "amoebot_rounds_total",
		Help: "Number of committed simulation rounds.",
	}), "amoebot_rounds_total")
	if err != nil {
		return nil, err
	}
	duration, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "amoebot_round_duration_seconds",
		Help:    "Wall-clock duration of a simulated round.",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}), "amoebot_round_duration_seconds")
	if err != nil {
		return nil, err
	}
	circuits, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "amoebot_circuits",
		Help: "Number of circuits in the last committed round.",
	}), "amoebot_circuits")
	if err != nil {
		return nil, err
	}
	population, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "amoebot_population",
		Help: "Number of amoebots in the last committed round.",
	}), "amoebot_population")
	if err != nil {
		return nil, err
	}
	occupied, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "amoebot_occupied_nodes",
		Help: "Number of grid nodes held by amoebots in the last committed round.",
	}), "amoebot_occupied_nodes")
	if err != nil {
		return nil, err
	}
	sent, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "amoebot_beeps_sent_total",
		Help: "Partition sets that sent a beep.",
	}), "amoebot_beeps_sent_total")
	if err != nil {
		return nil, err
	}
	delivered, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "amoebot_beeps_delivered_total",
		Help: "Partition sets that received a beep.",
	}), "amoebot_beeps_delivered_total")
	if err != nil {
		return nil, err
	}
	dropped, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "amoebot_beeps_dropped_total",
		Help: "Beep deliveries dropped by fault injection.",
	}), "amoebot_beeps_dropped_total")
	if err != nil {
		return nil, err
	}
	movements, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "amoebot_movements_total",
		Help: "Movement requests by outcome.",
	}, []string{"outcome"}), "amoebot_movements_total")
	if err != nil {
		return nil, err
	}

	return &EngineCollector{
		gatherer:       gatherer,
		RoundsTotal:    rounds,
		RoundDuration:  duration,
		Circuits:       circuits,
		Population:     population,
		OccupiedNodes:  occupied,
		BeepsSent:      sent,
		BeepsDelivered: delivered,
		BeepsDropped:   dropped,
		Movements:      movements,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *EngineCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// Handler exposes a ready-to-use /metrics handler.
func (c *EngineCollector) Handler() http.Handler {
	return handlerFor(c.Gatherer())
}

// ObserveRound records the statistics of a committed round.
func (c *EngineCollector) ObserveRound(s core.RoundStats) {
	if c == nil {
		return
	}
	c.RoundsTotal.Inc()
	c.RoundDuration.Observe(s.Duration.Seconds())
	c.Circuits.Set(float64(s.Circuits))
	c.Population.Set(float64(s.Amoebots))
	c.OccupiedNodes.Set(float64(s.OccupiedNodes))
	c.BeepsSent.Add(float64(s.BeepsSent))
	c.BeepsDelivered.Add(float64(s.BeepsDelivered))
	c.BeepsDropped.Add(float64(s.BeepsDropped))
	c.Movements.WithLabelValues("applied").Add(float64(s.MovesApplied))
	c.Movements.WithLabelValues("rejected").Add(float64(s.MovesRejected))
}

// SetPopulation updates the population gauges outside of round commits, for
// example after stepping backward through history.
func (c *EngineCollector) SetPopulation(amoebots, occupiedNodes int) {
	if c == nil {
		return
	}
	c.Population.Set(float64(amoebots))
	c.OccupiedNodes.Set(float64(occupiedNodes))
}
