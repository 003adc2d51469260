// Package metrics exposes live-mode Prometheus instruments.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Set holds the watch-session instruments. Construct one per session with
// its own registerer so tests can run isolated sets.
type Set struct {
	SlotsObserved     prometheus.Counter
	VotesObserved     prometheus.Counter
	VotesApplied      prometheus.Counter
	VotesDeferred     prometheus.Counter
	VotesLost         prometheus.Counter
	AncestryEvictions prometheus.Counter
	AncestrySize      prometheus.Gauge
	TowerCount        prometheus.Gauge
	LockoutViolations prometheus.Counter
}

// NewSet registers the instruments on reg.
func NewSet(reg prometheus.Registerer) *Set {
	factory := promauto.With(reg)
	return &Set{
		SlotsObserved: factory.NewCounter(prometheus.CounterOpts{
			Name: "voteview_slots_observed_total",
			Help: "Slot notifications received",
		}),
		VotesObserved: factory.NewCounter(prometheus.CounterOpts{
			Name: "voteview_votes_observed_total",
			Help: "Vote notifications received",
		}),
		VotesApplied: factory.NewCounter(prometheus.CounterOpts{
			Name: "voteview_votes_applied_total",
			Help: "Votes applied to a tower after passing lockout checks",
		}),
		VotesDeferred: factory.NewCounter(prometheus.CounterOpts{
			Name: "voteview_votes_deferred_total",
			Help: "Vote evaluations deferred because ancestry was too shallow",
		}),
		VotesLost: factory.NewCounter(prometheus.CounterOpts{
			Name: "voteview_votes_lost_total",
			Help: "Buffered votes dropped because their slot was evicted",
		}),
		AncestryEvictions: factory.NewCounter(prometheus.CounterOpts{
			Name: "voteview_ancestry_evictions_total",
			Help: "Slot entries evicted from the ancestry map",
		}),
		AncestrySize: factory.NewGauge(prometheus.GaugeOpts{
			Name: "voteview_ancestry_size",
			Help: "Live entries in the ancestry map",
		}),
		TowerCount: factory.NewGauge(prometheus.GaugeOpts{
			Name: "voteview_tower_count",
			Help: "Validator towers tracked this session",
		}),
		LockoutViolations: factory.NewCounter(prometheus.CounterOpts{
			Name: "voteview_lockout_violations_total",
			Help: "Fork-switch lockout violations detected",
		}),
	}
}

// Serve exposes /metrics on addr in the background. Best-effort: a serve
// failure is logged, not fatal to the session.
func Serve(addr string, reg *prometheus.Registry, log *logrus.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warnf("metrics server on %s: %v", addr, err)
		}
	}()
}
