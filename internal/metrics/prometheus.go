package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the transcription pipeline
type Metrics struct {
	// Frame classification metrics
	FramesClassified prometheus.Counter
	SpeechFrames     prometheus.Counter
	EnergyFallbacks  prometheus.Counter

	// Segment metrics
	SegmentsFinalized prometheus.Counter
	SegmentsDiscarded prometheus.Counter
	SegmentDuration   prometheus.Histogram
	SegmentSize       prometheus.Histogram
	QueueDepth        prometheus.Gauge

	// Session metrics
	ActiveSessions  prometheus.Gauge
	SessionsStarted prometheus.Counter
	SessionsStopped prometheus.Counter
	SessionDuration prometheus.Histogram

	// Transcription metrics
	TranscriptionRequests  prometheus.Counter
	TranscriptionSuccesses prometheus.Counter
	TranscriptionFailures  prometheus.Counter
	TranscriptionDuration  prometheus.Histogram
	TranscriptionRetries   prometheus.Counter

	// Sentence metrics
	SentencesEmitted    prometheus.Counter
	SentencesDuplicates prometheus.Counter

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		// Frame classification metrics
		FramesClassified: promauto.NewCounter(prometheus.CounterOpts{
			Name: "streamscribe_frames_classified_total",
			Help: "Total number of audio frames classified",
		}),
		SpeechFrames: promauto.NewCounter(prometheus.CounterOpts{
			Name: "streamscribe_speech_frames_total",
			Help: "Total number of frames classified as speech",
		}),
		EnergyFallbacks: promauto.NewCounter(prometheus.CounterOpts{
			Name: "streamscribe_energy_fallbacks_total",
			Help: "Total number of classifications that fell back to the energy heuristic",
		}),

		// Segment metrics
		SegmentsFinalized: promauto.NewCounter(prometheus.CounterOpts{
			Name: "streamscribe_segments_finalized_total",
			Help: "Total number of speech segments finalized",
		}),
		SegmentsDiscarded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "streamscribe_segments_discarded_total",
			Help: "Total number of segments discarded as noise or too short",
		}),
		SegmentDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "streamscribe_segment_duration_seconds",
			Help:    "Duration of finalized speech segments",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 8), // 0.5s to ~2 minutes
		}),
		SegmentSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "streamscribe_segment_size_bytes",
			Help:    "Size of finalized speech segments in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 2, 12), // 1KB to ~4MB
		}),
		QueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "streamscribe_segment_queue_depth",
			Help: "Current number of segments waiting for transcription",
		}),

		// Session metrics
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "streamscribe_active_sessions",
			Help: "Current number of active stream sessions",
		}),
		SessionsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "streamscribe_sessions_started_total",
			Help: "Total number of sessions started",
		}),
		SessionsStopped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "streamscribe_sessions_stopped_total",
			Help: "Total number of sessions stopped",
		}),
		SessionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "streamscribe_session_duration_seconds",
			Help:    "Duration of stream sessions in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 14), // 1s to ~4.5 hours
		}),

		// Transcription metrics
		TranscriptionRequests: promauto.NewCounter(prometheus.CounterOpts{
			Name: "streamscribe_transcription_requests_total",
			Help: "Total number of transcription requests sent",
		}),
		TranscriptionSuccesses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "streamscribe_transcription_successes_total",
			Help: "Total number of successful transcription requests",
		}),
		TranscriptionFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "streamscribe_transcription_failures_total",
			Help: "Total number of failed transcription requests",
		}),
		TranscriptionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "streamscribe_transcription_duration_seconds",
			Help:    "Duration of transcription requests",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~2 minutes
		}),
		TranscriptionRetries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "streamscribe_transcription_retries_total",
			Help: "Total number of transcription request retries",
		}),

		// Sentence metrics
		SentencesEmitted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "streamscribe_sentences_emitted_total",
			Help: "Total number of sentences emitted to the output sink",
		}),
		SentencesDuplicates: promauto.NewCounter(prometheus.CounterOpts{
			Name: "streamscribe_sentences_duplicates_total",
			Help: "Total number of sentences suppressed as duplicates",
		}),

		// HTTP API metrics
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "streamscribe_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "streamscribe_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "streamscribe_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordFrameClassified increments frame counters
func (m *Metrics) RecordFrameClassified(speech bool, energyFallback bool) {
	m.FramesClassified.Inc()
	if speech {
		m.SpeechFrames.Inc()
	}
	if energyFallback {
		m.EnergyFallbacks.Inc()
	}
}

// RecordSegmentFinalized records a finalized speech segment
func (m *Metrics) RecordSegmentFinalized(durationSeconds float64, sizeBytes int) {
	m.SegmentsFinalized.Inc()
	m.SegmentDuration.Observe(durationSeconds)
	m.SegmentSize.Observe(float64(sizeBytes))
}

// RecordSegmentDiscarded increments the discarded segments counter
func (m *Metrics) RecordSegmentDiscarded() {
	m.SegmentsDiscarded.Inc()
}

// SetQueueDepth sets the current segment queue depth
func (m *Metrics) SetQueueDepth(depth int) {
	m.QueueDepth.Set(float64(depth))
}

// SetActiveSessions sets the current number of active sessions
func (m *Metrics) SetActiveSessions(count int) {
	m.ActiveSessions.Set(float64(count))
}

// RecordSessionStarted increments the sessions started counter
func (m *Metrics) RecordSessionStarted() {
	m.SessionsStarted.Inc()
}

// RecordSessionStopped increments the sessions stopped counter and records duration
func (m *Metrics) RecordSessionStopped(durationSeconds float64) {
	m.SessionsStopped.Inc()
	m.SessionDuration.Observe(durationSeconds)
}

// RecordTranscriptionRequest increments transcription requests counter
func (m *Metrics) RecordTranscriptionRequest() {
	m.TranscriptionRequests.Inc()
}

// RecordTranscriptionSuccess records a successful transcription
func (m *Metrics) RecordTranscriptionSuccess(durationSeconds float64) {
	m.TranscriptionSuccesses.Inc()
	m.TranscriptionDuration.Observe(durationSeconds)
}

// RecordTranscriptionFailure records a failed transcription
func (m *Metrics) RecordTranscriptionFailure(durationSeconds float64) {
	m.TranscriptionFailures.Inc()
	m.TranscriptionDuration.Observe(durationSeconds)
}

// RecordTranscriptionRetry increments the retry counter
func (m *Metrics) RecordTranscriptionRetry() {
	m.TranscriptionRetries.Inc()
}

// RecordSentenceEmitted increments the sentences emitted counter
func (m *Metrics) RecordSentenceEmitted() {
	m.SentencesEmitted.Inc()
}

// RecordSentenceDuplicate increments the duplicate sentences counter
func (m *Metrics) RecordSentenceDuplicate() {
	m.SentencesDuplicates.Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
