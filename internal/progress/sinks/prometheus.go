package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/steam-catalog-crawler/internal/progress"
)

// PrometheusSink exports crawl progress via Prometheus collectors.
type PrometheusSink struct {
	runsStarted   prometheus.Counter
	runsCompleted prometheus.Counter
	runDuration   prometheus.Histogram

	items        *prometheus.CounterVec
	itemDuration *prometheus.HistogramVec
	cooldowns    prometheus.Counter
	failures     prometheus.Gauge
	catalog      *prometheus.GaugeVec
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "catalog_runs_started_total",
			Help: "Crawl passes started.",
		}),
		runsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "catalog_runs_completed_total",
			Help: "Crawl passes that finished or stopped cleanly.",
		}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "catalog_run_duration_seconds",
			Help:    "Wall time per crawl pass.",
			Buckets: []float64{60, 600, 3600, 4 * 3600, 12 * 3600, 24 * 3600, 72 * 3600},
		}),
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "catalog_items_processed_total",
			Help: "Items processed partitioned by fetch outcome and resulting status.",
		}, []string{"outcome", "status"}),
		itemDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "catalog_item_duration_seconds",
			Help:    "Per-item processing time partitioned by fetch outcome.",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 2, 5, 10, 30},
		}, []string{"outcome"}),
		cooldowns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "catalog_cooldowns_total",
			Help: "Rate-limit cooldowns entered.",
		}),
		failures: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "catalog_consecutive_failures",
			Help: "Current consecutive failure count driving cooldowns.",
		}),
		catalog: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "catalog_items",
			Help: "Item counts from the last stats snapshot partitioned by status.",
		}, []string{"status"}),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.runDuration,
		s.items,
		s.itemDuration,
		s.cooldowns,
		s.failures,
		s.catalog,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from the batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageRunStart:
		s.runsStarted.Inc()
	case progress.StageItemDone:
		s.items.WithLabelValues(evt.Outcome, evt.Status.String()).Inc()
		if evt.Dur > 0 {
			s.itemDuration.WithLabelValues(evt.Outcome).Observe(evt.Dur.Seconds())
		}
		s.failures.Set(float64(evt.Failures))
	case progress.StageCooldown:
		s.cooldowns.Inc()
		s.failures.Set(0)
	case progress.StageStats:
		s.observeStats(evt)
	case progress.StageRunDone:
		s.runsCompleted.Inc()
		if evt.Dur > 0 {
			s.runDuration.Observe(evt.Dur.Seconds())
		}
		s.observeStats(evt)
	}
}

func (s *PrometheusSink) observeStats(evt progress.Event) {
	if evt.Stats == nil {
		return
	}
	s.catalog.WithLabelValues("total").Set(float64(evt.Stats.Total))
	s.catalog.WithLabelValues("pending").Set(float64(evt.Stats.Pending))
	s.catalog.WithLabelValues("game").Set(float64(evt.Stats.Games))
	s.catalog.WithLabelValues("not_game").Set(float64(evt.Stats.NotGames))
	s.catalog.WithLabelValues("failed").Set(float64(evt.Stats.Failed))
	s.catalog.WithLabelValues("filtered").Set(float64(evt.Stats.Filtered))
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
