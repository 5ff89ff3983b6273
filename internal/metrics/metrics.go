package metrics

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/drand/ssc/common/log"
)

var (
	// PrivateMetrics is the registry served on the metrics endpoint.
	PrivateMetrics = prometheus.NewRegistry()

	// SlotsProcessed counts slots handed to the worker, by outcome.
	SlotsProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ssc_slots_processed",
		Help: "Number of slots processed by the SSC worker",
	}, []string{"outcome"})

	// PhaseActions counts what every protocol phase did.
	PhaseActions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ssc_phase_actions",
		Help: "Actions taken by each SSC phase",
	}, []string{"phase", "outcome"})

	// Broadcasts counts inventory announcements, by tag and result.
	Broadcasts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ssc_broadcasts",
		Help: "Inventory announcements sent to peers",
	}, []string{"tag", "result"})

	// BroadcastDelay observes the randomized wait before an announcement.
	BroadcastDelay = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ssc_broadcast_delay_seconds",
		Help:    "Randomized delay applied before sending an announcement",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	}, []string{"tag"})

	// CurrentEpoch is the epoch of the last observed slot.
	CurrentEpoch = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ssc_current_epoch",
		Help: "Epoch of the last slot observed by the node",
	})

	// ParticipationEnabled is 1 when the node takes part in the protocol.
	ParticipationEnabled = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ssc_participation_enabled",
		Help: "Whether participation in the SSC protocol is enabled",
	})

	// InventoriesReceived counts announcements received from peers.
	InventoriesReceived = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ssc_inventories_received",
		Help: "Inventory announcements received from peers",
	}, []string{"tag"})

	metricsBound sync.Once
)

func bindMetrics(l log.Logger) {
	if err := PrivateMetrics.Register(collectors.NewGoCollector()); err != nil {
		l.Errorw("error in bindMetrics", "metrics", "goCollector", "err", err)
		return
	}
	if err := PrivateMetrics.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		l.Errorw("error in bindMetrics", "metrics", "processCollector", "err", err)
		return
	}

	ssc := []prometheus.Collector{
		SlotsProcessed,
		PhaseActions,
		Broadcasts,
		BroadcastDelay,
		CurrentEpoch,
		ParticipationEnabled,
		InventoriesReceived,
	}
	for _, c := range ssc {
		if err := PrivateMetrics.Register(c); err != nil {
			l.Errorw("error in bindMetrics", "metrics", "bindMetrics", "err", err)
			return
		}
	}
}

// Start starts a prometheus metrics server. Extra handlers are mounted on the
// same mux under their pattern.
func Start(logger log.Logger, metricsBind string, extra map[string]http.Handler) net.Listener {
	logger.Infow("metrics starting", "desired_port", metricsBind)

	metricsBound.Do(func() {
		bindMetrics(logger)
	})

	// handle metricsBind being just a port value
	if !strings.Contains(metricsBind, ":") {
		metricsBind = "127.0.0.1:" + metricsBind
	}
	//nolint:noctx
	l, err := net.Listen("tcp", metricsBind)
	if err != nil {
		logger.Warnw("metrics listen failed", "err", err)
		return nil
	}
	logger.Infow("metric listener started", "addr", l.Addr())

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(PrivateMetrics, promhttp.HandlerOpts{Registry: PrivateMetrics}))
	for pattern, h := range extra {
		mux.Handle(pattern, h)
	}

	s := http.Server{Addr: l.Addr().String(), ReadHeaderTimeout: 3 * time.Second, Handler: mux}
	go func() {
		logger.Warnw("metrics listen finished", "err", s.Serve(l))
	}()
	return l
}

// PhaseAction records what a phase did during a slot.
func PhaseAction(phase, outcome string) {
	PhaseActions.WithLabelValues(phase, outcome).Inc()
}

// Broadcast records the result of an announcement.
func Broadcast(tag, result string) {
	Broadcasts.WithLabelValues(tag, result).Inc()
}

// SetParticipation exports the participation flag.
func SetParticipation(enabled bool) {
	v := 0.0
	if enabled {
		v = 1.0
	}
	ParticipationEnabled.Set(v)
}
