package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	defaultRefreshInterval = 10 * time.Second
)

// Latency buckets in milliseconds. Remote image generation routinely takes
// tens of seconds, so the default prometheus buckets are far too small.
var defaultLatencyBuckets = []float64{5, 25, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000, 120000}

// Manager owns every Prometheus collector of the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	refreshInterval  time.Duration
	constLabels      map[string]string
	registry         prometheus.Registerer

	// Pipeline
	generations       *prometheus.CounterVec
	generationsActive prometheus.Gauge
	stageDuration     *prometheus.HistogramVec
	labelsAssigned    *prometheus.CounterVec
	tempoObserved     prometheus.Histogram
	audioSeconds      prometheus.Histogram

	// Uploads
	uploads     *prometheus.CounterVec
	uploadBytes prometheus.Histogram

	// Dependencies
	storageOps      *prometheus.CounterVec
	storageLatency  *prometheus.HistogramVec
	imagegenCalls   *prometheus.CounterVec
	imagegenLatency prometheus.Histogram

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorsByComponent *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "levitate",
		subsystem:        "api",
		histogramBuckets: defaultLatencyBuckets,
		refreshInterval:  defaultRefreshInterval,
		constLabels:      map[string]string{},
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

// RefreshInterval reports how often system gauges should be sampled.
func (m *Manager) RefreshInterval() time.Duration { return m.refreshInterval }

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) histogramVec(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     buckets,
		ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     buckets,
		ConstLabels: m.constLabels,
	})
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	})
}

func (m *Manager) initializeMetrics() {
	m.generations = m.counterVec("generations_total",
		"Generation requests by terminal stage", "outcome")
	m.generationsActive = m.gauge("generations_in_flight",
		"Generation requests currently being processed")
	m.stageDuration = m.histogramVec("stage_duration_milliseconds",
		"Time spent in each generation stage", m.histogramBuckets, "stage")
	m.labelsAssigned = m.counterVec("labels_total",
		"Energy and mood labels assigned to analyzed tracks", "energy", "mood")
	m.tempoObserved = m.histogram("tempo_bpm",
		"Estimated tempo of analyzed tracks", []float64{60, 80, 100, 120, 140, 160, 180, 200})
	m.audioSeconds = m.histogram("audio_duration_seconds",
		"Duration of analyzed audio", []float64{5, 15, 30, 60, 120, 240, 480, 900})

	m.uploads = m.counterVec("uploads_total", "Track uploads by outcome", "outcome")
	m.uploadBytes = m.histogram("upload_bytes",
		"Size of accepted uploads", prometheus.ExponentialBuckets(64*1024, 2, 10))

	m.storageOps = m.counterVec("storage_operations_total",
		"Object store operations by operation and outcome", "operation", "outcome")
	m.storageLatency = m.histogramVec("storage_latency_milliseconds",
		"Object store operation latency", m.histogramBuckets, "operation")
	m.imagegenCalls = m.counterVec("imagegen_requests_total",
		"Remote image generation calls by outcome", "outcome")
	m.imagegenLatency = m.histogram("imagegen_latency_milliseconds",
		"Remote image generation latency", m.histogramBuckets)

	m.httpRequests = m.counterVec("http_requests_total",
		"Total number of HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds",
		"HTTP request duration in milliseconds", m.histogramBuckets, "endpoint", "method", "status_code")

	m.errorsByComponent = m.counterVec("errors_total",
		"Errors by component and kind", "component", "kind")

	m.systemMemoryUsage = m.gauge("system_memory_bytes", "Heap bytes allocated")
	m.systemGoroutineCount = m.gauge("system_goroutines", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_milliseconds",
		"Average GC pause time", prometheus.DefBuckets)
}

// Pipeline metrics.

// RecordGeneration counts a finished generation by its terminal stage.
func RecordGeneration(outcome string) {
	globalManager.generations.WithLabelValues(outcome).Inc()
}

// IncGenerationsInFlight marks a generation as started.
func IncGenerationsInFlight() { globalManager.generationsActive.Inc() }

// DecGenerationsInFlight marks a generation as finished.
func DecGenerationsInFlight() { globalManager.generationsActive.Dec() }

// RecordStageDuration records how long a pipeline stage took.
func RecordStageDuration(stage string, d time.Duration) {
	globalManager.stageDuration.WithLabelValues(stage).Observe(ms(d))
}

// RecordLabels counts the labels assigned to a track.
func RecordLabels(energy, mood string) {
	globalManager.labelsAssigned.WithLabelValues(energy, mood).Inc()
}

// RecordTempo records an estimated tempo.
func RecordTempo(bpm float64) { globalManager.tempoObserved.Observe(bpm) }

// RecordAudioDuration records the analyzed length of a track.
func RecordAudioDuration(d time.Duration) { globalManager.audioSeconds.Observe(d.Seconds()) }

// Upload metrics.

// RecordUpload counts an upload attempt by outcome.
func RecordUpload(outcome string) { globalManager.uploads.WithLabelValues(outcome).Inc() }

// RecordUploadBytes records the size of an accepted upload.
func RecordUploadBytes(n int64) { globalManager.uploadBytes.Observe(float64(n)) }

// Dependency metrics.

// RecordStorageOperation counts an object store call and its latency.
func RecordStorageOperation(operation, outcome string, d time.Duration) {
	globalManager.storageOps.WithLabelValues(operation, outcome).Inc()
	globalManager.storageLatency.WithLabelValues(operation).Observe(ms(d))
}

// RecordImageGeneration counts a remote generation call and its latency.
func RecordImageGeneration(outcome string, d time.Duration) {
	globalManager.imagegenCalls.WithLabelValues(outcome).Inc()
	globalManager.imagegenLatency.Observe(ms(d))
}

// HTTP metrics.

// RecordHTTPRequest increments the HTTP request counter.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// Error metrics.

// RecordError counts an error raised by component with the given kind.
func RecordError(component, kind string) {
	globalManager.errorsByComponent.WithLabelValues(component, kind).Inc()
}

// System metrics.

// UpdateSystemMemoryUsage sets the heap usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// RefreshInterval reports the sampling interval of the global manager.
func RefreshInterval() time.Duration { return globalManager.refreshInterval }

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

func ms(d time.Duration) float64 { return float64(d) / float64(time.Millisecond) }
