// Package metrics exports search progress to Prometheus.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/bosgo/planner/internal/core/event"
)

const (
	namespace = "bosgo"
	subsystem = "search"
)

// SearchCollector turns search events into counters, gauges and a duration
// histogram, labelled by strategy.
type SearchCollector struct {
	runsTotal         *prometheus.CounterVec
	nodesTotal        *prometheus.CounterVec
	improvementsTotal *prometheus.CounterVec
	duration          *prometheus.HistogramVec
	bestFinishFrame   *prometheus.GaugeVec
	bestValue         *prometheus.GaugeVec
}

// NewSearchCollector creates the collectors. Nothing is exported until
// Register.
func NewSearchCollector() *SearchCollector {
	return &SearchCollector{
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "runs_total",
				Help:      "Finished search calls by strategy and outcome",
			},
			[]string{"strategy", "outcome"},
		),
		nodesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "nodes_expanded_total",
				Help:      "Search tree nodes expanded",
			},
			[]string{"strategy"},
		),
		improvementsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "improvements_total",
				Help:      "Improved solutions found",
			},
			[]string{"strategy"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "duration_seconds",
				Help:      "Wall time of a search call",
				Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"strategy"},
		),
		bestFinishFrame: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "best_finish_frame",
				Help:      "Finish frame of the latest improved goal plan",
			},
			[]string{"strategy"},
		),
		bestValue: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "best_value",
				Help:      "Value of the latest improved value search result",
			},
			[]string{"strategy"},
		),
	}
}

// Register adds every collector to reg.
func (c *SearchCollector) Register(reg prometheus.Registerer) error {
	for _, m := range []prometheus.Collector{
		c.runsTotal,
		c.nodesTotal,
		c.improvementsTotal,
		c.duration,
		c.bestFinishFrame,
		c.bestValue,
	} {
		if err := reg.Register(m); err != nil {
			return fmt.Errorf("register search metrics: %w", err)
		}
	}
	return nil
}

// Subscribe feeds the collector from bus.
func (c *SearchCollector) Subscribe(bus *event.Bus) {
	event.Subscribe(bus, c.RecordImproved)
	event.Subscribe(bus, c.RecordFinished)
}

func (c *SearchCollector) RecordImproved(e event.SolutionImproved) {
	c.improvementsTotal.WithLabelValues(e.Strategy).Inc()
	if e.FinishFrame > 0 {
		c.bestFinishFrame.WithLabelValues(e.Strategy).Set(float64(e.FinishFrame))
	} else {
		c.bestValue.WithLabelValues(e.Strategy).Set(e.Value)
	}
}

func (c *SearchCollector) RecordFinished(e event.SearchFinished) {
	c.runsTotal.WithLabelValues(e.Strategy, string(e.Outcome)).Inc()
	c.nodesTotal.WithLabelValues(e.Strategy).Add(float64(e.Nodes))
	c.duration.WithLabelValues(e.Strategy).Observe(e.Elapsed.Seconds())
}

// Serve exposes reg on addr under /metrics until ctx is done.
func Serve(ctx context.Context, addr string, reg *prometheus.Registry, log *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("metrics listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve metrics: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
