// Package metrics provides Prometheus metrics for the rally reputation engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector exported by the engine.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Recorder
	interactionsRecorded  *prometheus.CounterVec
	interactionErrors     prometheus.Counter
	interactionWeight     prometheus.Histogram
	interactionDuplicates prometheus.Counter

	// Standing / leaderboard
	standingPublished  prometheus.Counter
	standingDropped    prometheus.Counter
	standingApplied    prometheus.Counter
	standingErrors     prometheus.Counter
	leaderboardEntries prometheus.Gauge
	repositoryLatency  *prometheus.HistogramVec

	// Profiler
	profileCacheHits   prometheus.Counter
	profileCacheMisses prometheus.Counter
	profileRecomputes  prometheus.Counter
	profileFallbacks   prometheus.Counter

	// Evaluators
	evaluations     *prometheus.CounterVec
	evaluationScore *prometheus.HistogramVec

	// Scheduled jobs
	consolidationArchived      prometheus.Counter
	consolidationDeleted       prometheus.Counter
	consolidationArchiveErrors prometheus.Counter
	consolidationPruned        prometheus.Counter
	jobDuration                *prometheus.HistogramVec
	profilesRefreshed          prometheus.Counter
	profileRefreshErrors       prometheus.Counter

	// Fragment cache
	cacheUsers     prometheus.Gauge
	cacheFragments prometheus.Gauge

	// Standing queue and workers
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueUtilization   prometheus.Gauge
	queueEnqueue       prometheus.Counter
	queueDequeue       prometheus.Counter
	queueEnqueueErrors prometheus.Counter
	workerActive       prometheus.Gauge
	workerLatency      prometheus.Histogram
	workerErrors       prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorsByComponent *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // dedicated registry without default Go collectors

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "rally",
		subsystem:        "reputation",
		histogramBuckets: prometheus.DefBuckets,
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) name(n string) string {
	if m.metricPrefix == "" {
		return n
	}
	return m.metricPrefix + "_" + n
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: m.customLabels,
	})
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: m.customLabels,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, Buckets: buckets, ConstLabels: m.customLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: m.customLabels,
	}, labels)
}

func (m *Manager) histogramVec(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, Buckets: buckets, ConstLabels: m.customLabels,
	}, labels)
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	weightBuckets := []float64{-0.5, 0, 0.25, 0.5, 1, 1.5, 2, 3, 5, 8, 13}
	scoreBuckets := []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1}

	m.interactionsRecorded = m.counterVec("interactions_recorded_total", "Interactions durably recorded, by type", "type")
	m.interactionErrors = m.counter("interaction_record_errors_total", "Interactions rejected or lost to a durable write failure")
	m.interactionWeight = m.histogram("interaction_weight", "Distribution of computed interaction weights", weightBuckets)
	m.interactionDuplicates = m.counter("interaction_duplicates_total", "Interactions dropped as duplicate submissions")

	m.standingPublished = m.counter("standing_published_total", "Standing deltas handed to the standing queue")
	m.standingDropped = m.counter("standing_dropped_total", "Standing deltas dropped because the queue refused them")
	m.standingApplied = m.counter("standing_applied_total", "Standing deltas applied to the leaderboard")
	m.standingErrors = m.counter("standing_errors_total", "Standing deltas that failed to apply")
	m.leaderboardEntries = m.gauge("leaderboard_entries", "Users present on the leaderboard")
	m.repositoryLatency = m.histogramVec("repository_latency_milliseconds", "Durable store call latency", m.histogramBuckets, "operation")

	m.profileCacheHits = m.counter("profile_cache_hits_total", "Profile reads served from a fresh cached copy")
	m.profileCacheMisses = m.counter("profile_cache_misses_total", "Profile reads that needed a recompute")
	m.profileRecomputes = m.counter("profile_recomputes_total", "Profiles derived from interaction history")
	m.profileFallbacks = m.counter("profile_fallbacks_total", "Profile reads answered with the default profile after a failure")

	m.evaluations = m.counterVec("evaluations_total", "Evaluator runs by kind and verdict", "kind", "verdict")
	m.evaluationScore = m.histogramVec("evaluation_score", "Evaluator score distribution", scoreBuckets, "kind")

	m.consolidationArchived = m.counter("consolidation_archived_total", "Interactions archived by consolidation")
	m.consolidationDeleted = m.counter("consolidation_deleted_total", "Archived interactions removed from the live table")
	m.consolidationArchiveErrors = m.counter("consolidation_archive_errors_total", "Archive inserts that failed (originals kept)")
	m.consolidationPruned = m.counter("consolidation_pruned_fragments_total", "Cached fragments pruned for age")
	m.jobDuration = m.histogramVec("job_duration_milliseconds", "Scheduled job run duration", []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 30000, 120000}, "job")
	m.profilesRefreshed = m.counter("profiles_refreshed_total", "Profiles recomputed by the refresh job")
	m.profileRefreshErrors = m.counter("profile_refresh_errors_total", "Profile refreshes that failed and were skipped")

	m.cacheUsers = m.gauge("cache_users", "Users holding a fragment bucket")
	m.cacheFragments = m.gauge("cache_fragments", "Fragments held across all buckets")

	m.queueSize = m.gauge("queue_size", "Standing deltas waiting in the queue")
	m.queueCapacity = m.gauge("queue_capacity", "Standing queue capacity")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "Standing queue utilization (0-1)")
	m.queueEnqueue = m.counter("queue_enqueue_total", "Standing deltas enqueued")
	m.queueDequeue = m.counter("queue_dequeue_total", "Standing deltas dequeued")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Standing deltas refused by the queue")
	m.workerActive = m.gauge("worker_active_count", "Standing workers running")
	m.workerLatency = m.histogram("worker_processing_latency_milliseconds", "Standing worker processing latency", m.histogramBuckets)
	m.workerErrors = m.counter("worker_errors_total", "Standing worker failures")

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests by endpoint, method and status", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration", m.histogramBuckets, "endpoint", "method", "status_code")

	m.errorsByComponent = m.counterVec("errors_by_component_total", "Errors by component and type", "component", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "Heap bytes allocated")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
}

// RecordInteraction counts a durably recorded interaction and its weight.
func RecordInteraction(interactionType string, weight float64) {
	globalManager.interactionsRecorded.WithLabelValues(interactionType).Inc()
	globalManager.interactionWeight.Observe(weight)
}

// RecordInteractionError counts a rejected or failed interaction write.
func RecordInteractionError() { globalManager.interactionErrors.Inc() }

// RecordInteractionDuplicate counts a duplicate submission.
func RecordInteractionDuplicate() { globalManager.interactionDuplicates.Inc() }

// RecordStandingPublished counts a delta handed to the standing queue.
func RecordStandingPublished() { globalManager.standingPublished.Inc() }

// RecordStandingDropped counts a delta the queue refused.
func RecordStandingDropped() { globalManager.standingDropped.Inc() }

// RecordStandingApplied counts a delta applied to the leaderboard.
func RecordStandingApplied() { globalManager.standingApplied.Inc() }

// RecordStandingError counts a delta that failed to apply.
func RecordStandingError() { globalManager.standingErrors.Inc() }

// UpdateLeaderboardEntries sets the number of ranked users.
func UpdateLeaderboardEntries(count int) { globalManager.leaderboardEntries.Set(float64(count)) }

// RecordRepositoryLatency observes one durable store call.
func RecordRepositoryLatency(operation string, latencyMs float64) {
	globalManager.repositoryLatency.WithLabelValues(operation).Observe(latencyMs)
}

// RecordProfileCacheHit counts a fresh cached profile read.
func RecordProfileCacheHit() { globalManager.profileCacheHits.Inc() }

// RecordProfileCacheMiss counts a profile read that needed a recompute.
func RecordProfileCacheMiss() { globalManager.profileCacheMisses.Inc() }

// RecordProfileRecompute counts a profile derivation.
func RecordProfileRecompute() { globalManager.profileRecomputes.Inc() }

// RecordProfileFallback counts a default profile served after a failure.
func RecordProfileFallback() { globalManager.profileFallbacks.Inc() }

// RecordEvaluation counts an evaluator run.
func RecordEvaluation(kind, verdict string, score float64) {
	globalManager.evaluations.WithLabelValues(kind, verdict).Inc()
	globalManager.evaluationScore.WithLabelValues(kind).Observe(score)
}

// RecordConsolidation adds the outcome of one consolidation run.
func RecordConsolidation(archived, deleted, archiveErrors, pruned int) {
	globalManager.consolidationArchived.Add(float64(archived))
	globalManager.consolidationDeleted.Add(float64(deleted))
	globalManager.consolidationArchiveErrors.Add(float64(archiveErrors))
	globalManager.consolidationPruned.Add(float64(pruned))
}

// RecordJobDuration observes a scheduled job run.
func RecordJobDuration(job string, durationMs float64) {
	globalManager.jobDuration.WithLabelValues(job).Observe(durationMs)
}

// RecordProfileRefresh adds the outcome of one refresh run.
func RecordProfileRefresh(refreshed, failed int) {
	globalManager.profilesRefreshed.Add(float64(refreshed))
	globalManager.profileRefreshErrors.Add(float64(failed))
}

// UpdateCacheStats sets the fragment cache gauges.
func UpdateCacheStats(users, fragments int) {
	globalManager.cacheUsers.Set(float64(users))
	globalManager.cacheFragments.Set(float64(fragments))
}

// UpdateQueueSize sets the current queue depth.
func UpdateQueueSize(size int) { globalManager.queueSize.Set(float64(size)) }

// UpdateQueueCapacity sets the queue capacity.
func UpdateQueueCapacity(capacity int) { globalManager.queueCapacity.Set(float64(capacity)) }

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) { globalManager.queueUtilization.Set(utilization) }

// RecordQueueEnqueue counts an accepted enqueue.
func RecordQueueEnqueue() { globalManager.queueEnqueue.Inc() }

// RecordQueueDequeue counts a dequeue.
func RecordQueueDequeue() { globalManager.queueDequeue.Inc() }

// RecordQueueEnqueueError counts a refused enqueue.
func RecordQueueEnqueueError() { globalManager.queueEnqueueErrors.Inc() }

// UpdateWorkerActiveCount sets the number of running workers.
func UpdateWorkerActiveCount(count int) { globalManager.workerActive.Set(float64(count)) }

// RecordWorkerProcessingLatency observes one worker iteration.
func RecordWorkerProcessingLatency(latencyMs float64) { globalManager.workerLatency.Observe(latencyMs) }

// RecordWorkerError counts a worker failure.
func RecordWorkerError() { globalManager.workerErrors.Inc() }

// RecordHTTPRequest counts one HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration observes one HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, durationMs float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

// RecordErrorByComponent counts an error attributed to a component.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// UpdateSystemMemoryUsage sets the heap allocation gauge.
func UpdateSystemMemoryUsage(bytes uint64) { globalManager.systemMemoryUsage.Set(float64(bytes)) }

// UpdateSystemGoroutineCount sets the goroutine gauge.
func UpdateSystemGoroutineCount(count int) { globalManager.systemGoroutineCount.Set(float64(count)) }

// GetRegistry returns the registry every collector is registered on.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
