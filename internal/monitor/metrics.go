// Package monitor exposes prometheus metrics for the dispatch pipeline.
package monitor

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TicksRouted = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "tradlet_ticks_routed_total", Help: "Ticks routed to group engines"},
		[]string{"group"},
	)
	EventsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "tradlet_events_processed_total", Help: "Events processed by group engines"},
		[]string{"group", "type"},
	)
	QueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "tradlet_queue_depth", Help: "Pending events per group queue"},
		[]string{"group"},
	)
	StrokeSplits = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "tradlet_stroke_splits_total", Help: "Stroke bars closed by a reversal split"},
		[]string{"instrument"},
	)
	PlaybooksTerminal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "tradlet_playbooks_terminal_total", Help: "Playbooks reaching a terminal state"},
		[]string{"group", "state"},
	)
)

func init() {
	prometheus.MustRegister(TicksRouted, EventsProcessed, QueueDepth, StrokeSplits, PlaybooksTerminal)
}

// Serve exposes /metrics on its own listener.
func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
