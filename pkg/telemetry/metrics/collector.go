package metrics

import (
	"time"

	"spai-hq/gatekeeper/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector owns the daemon's Prometheus metrics.
//
// All metric families are pre-registered on a private registry at
// construction time. Recording methods are safe for concurrent use and
// become no-ops when metrics are disabled.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	// Pipeline metrics
	decisionsTotal    *prometheus.CounterVec
	pipelineAborts    *prometheus.CounterVec
	classifyDuration  prometheus.Histogram
	classifierErrors  prometheus.Counter
	enforcementsTotal *prometheus.CounterVec

	// Classifier cache metrics
	cacheHitsTotal      prometheus.Counter
	cacheMissesTotal    prometheus.Counter
	cacheEvictionsTotal prometheus.Counter
	cacheEntries        prometheus.Gauge

	// State metrics
	activeAllows   prometheus.Gauge
	activeSessions prometheus.Gauge
	grantsTotal    prometheus.Counter

	// Settings metrics
	tamperTotal prometheus.Counter
}

// NewCollector creates a collector with its own registry. If registry is
// nil a fresh one is created.
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	if cfg.Namespace == "" {
		cfg.Namespace = "gatekeeper"
	}
	if len(cfg.ClassifyDurationBuckets) == 0 {
		// LLM classification latencies run hundreds of milliseconds to
		// several seconds.
		cfg.ClassifyDurationBuckets = []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0}
	}

	c := &Collector{
		config:   cfg,
		registry: registry,

		decisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "decisions_total",
				Help:      "Policy decisions by action and reason",
			},
			[]string{"action", "reason"},
		),
		pipelineAborts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "pipeline_aborts_total",
				Help:      "Pipeline runs aborted before a decision, by stage",
			},
			[]string{"stage"},
		),
		classifyDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Name:      "classify_duration_seconds",
				Help:      "Latency of external classifier calls",
				Buckets:   cfg.ClassifyDurationBuckets,
			},
		),
		classifierErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "classifier_errors_total",
				Help:      "Failed or unparseable classifier calls",
			},
		),
		enforcementsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "enforcements_total",
				Help:      "Enforcement outcomes by result",
			},
			[]string{"result"},
		),

		cacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "classifier_cache_hits_total",
				Help:      "Classifier cache hits",
			},
		),
		cacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "classifier_cache_misses_total",
				Help:      "Classifier cache misses",
			},
		),
		cacheEvictionsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "classifier_cache_evictions_total",
				Help:      "Classifier cache evictions on overflow",
			},
		),
		cacheEntries: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Name:      "classifier_cache_entries",
				Help:      "Current classifier cache size",
			},
		),

		activeAllows: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Name:      "temporary_allows_active",
				Help:      "Currently active temporary allow grants",
			},
		),
		activeSessions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Name:      "appeal_sessions_active",
				Help:      "Currently open appeal sessions",
			},
		),
		grantsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "temporary_allows_granted_total",
				Help:      "Temporary allow grants issued via appeal",
			},
		),

		tamperTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "settings_tamper_total",
				Help:      "Settings envelope tamper detections",
			},
		),
	}

	registry.MustRegister(
		c.decisionsTotal,
		c.pipelineAborts,
		c.classifyDuration,
		c.classifierErrors,
		c.enforcementsTotal,
		c.cacheHitsTotal,
		c.cacheMissesTotal,
		c.cacheEvictionsTotal,
		c.cacheEntries,
		c.activeAllows,
		c.activeSessions,
		c.grantsTotal,
		c.tamperTotal,
	)

	return c
}

// RecordDecision records one policy decision.
func (c *Collector) RecordDecision(action, reason string) {
	if !c.config.Enabled {
		return
	}
	c.decisionsTotal.WithLabelValues(action, reason).Inc()
}

// RecordPipelineAbort records a pipeline run that ended before deciding.
func (c *Collector) RecordPipelineAbort(stage string) {
	if !c.config.Enabled {
		return
	}
	c.pipelineAborts.WithLabelValues(stage).Inc()
}

// RecordClassify records the latency of one classifier call.
func (c *Collector) RecordClassify(duration time.Duration) {
	if !c.config.Enabled {
		return
	}
	c.classifyDuration.Observe(duration.Seconds())
}

// RecordClassifierError records a failed classifier call.
func (c *Collector) RecordClassifierError() {
	if !c.config.Enabled {
		return
	}
	c.classifierErrors.Inc()
}

// RecordEnforcement records one enforcement outcome ("signaled", "noop",
// "no_tab").
func (c *Collector) RecordEnforcement(result string) {
	if !c.config.Enabled {
		return
	}
	c.enforcementsTotal.WithLabelValues(result).Inc()
}

// RecordCacheHit records a classifier cache hit.
func (c *Collector) RecordCacheHit() {
	if !c.config.Enabled {
		return
	}
	c.cacheHitsTotal.Inc()
}

// RecordCacheMiss records a classifier cache miss.
func (c *Collector) RecordCacheMiss() {
	if !c.config.Enabled {
		return
	}
	c.cacheMissesTotal.Inc()
}

// RecordCacheEviction records a FIFO eviction.
func (c *Collector) RecordCacheEviction() {
	if !c.config.Enabled {
		return
	}
	c.cacheEvictionsTotal.Inc()
}

// UpdateCacheSize updates the classifier cache size gauge.
func (c *Collector) UpdateCacheSize(size int) {
	if !c.config.Enabled {
		return
	}
	c.cacheEntries.Set(float64(size))
}

// UpdateActiveAllows updates the active temporary allow gauge.
func (c *Collector) UpdateActiveAllows(n int) {
	if !c.config.Enabled {
		return
	}
	c.activeAllows.Set(float64(n))
}

// UpdateActiveSessions updates the open appeal session gauge.
func (c *Collector) UpdateActiveSessions(n int) {
	if !c.config.Enabled {
		return
	}
	c.activeSessions.Set(float64(n))
}

// RecordGrant records a temporary allow grant.
func (c *Collector) RecordGrant() {
	if !c.config.Enabled {
		return
	}
	c.grantsTotal.Inc()
}

// RecordTamper records a settings tamper detection.
func (c *Collector) RecordTamper() {
	if !c.config.Enabled {
		return
	}
	c.tamperTotal.Inc()
}

// Registry returns the collector's registry, for tests and the handler.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
