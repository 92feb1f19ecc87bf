// Package observe provides application-wide observability primitives for
// auricle: OpenTelemetry metrics, tracing helpers, structured logging, and
// HTTP middleware that ties them together.
//
// All instruments go through the OpenTelemetry Metrics API; [InitProvider]
// bridges them into a Prometheus registry scraped at /metrics
// ([MetricsHandler]). Components record against the shared [DefaultMetrics]
// instance, while tests build their own via [NewMetrics] so runs stay
// isolated from each other.
package observe

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all auricle metrics.
const meterName = "github.com/MrWong99/auricle"

// Metrics bundles every instrument the application records. The fields may
// be used from any goroutine; synchronisation lives inside the OTel SDK.
type Metrics struct {
	// --- Stage latencies ---

	// TranscribeDuration tracks command transcription latency.
	TranscribeDuration metric.Float64Histogram

	// AskDuration tracks language-model response latency.
	AskDuration metric.Float64Histogram

	// SpeakDuration tracks synthesis-plus-playback latency.
	SpeakDuration metric.Float64Histogram

	// --- Event counters ---

	// ChunksCaptured counts audio chunks delivered by the capture device.
	ChunksCaptured metric.Int64Counter

	// ChunksDropped counts audio chunks evicted from the full capture queue.
	ChunksDropped metric.Int64Counter

	// WakeDetections counts wake-phrase detections.
	WakeDetections metric.Int64Counter

	// PipelineReinits counts pipeline reinitialisations after an exhausted
	// error budget or a completed command turn.
	PipelineReinits metric.Int64Counter

	// --- Error-budget gauge ---

	// ConsecutiveErrors tracks the current consecutive-failure count of the
	// voice loop. Rises with each handled error, drops back when the budget
	// resets.
	ConsecutiveErrors metric.Int64UpDownCounter

	// --- Admin server ---

	// HTTPRequestDuration tracks request handling time, recorded with
	// "method" and "path" string attributes.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets spaces the stage-histogram boundaries (seconds) across
// 10 ms to 10 s, the range pipeline stages land in.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics registers every instrument on a meter from mp. The first
// instrument that fails to register aborts construction.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	b := builder{meter: mp.Meter(meterName)}

	met := &Metrics{
		TranscribeDuration: b.stageHistogram("auricle.transcribe.duration", "Latency of command transcription."),
		AskDuration:        b.stageHistogram("auricle.ask.duration", "Latency of language-model responses."),
		SpeakDuration:      b.stageHistogram("auricle.speak.duration", "Latency of speech synthesis and playback."),

		ChunksCaptured:  b.counter("auricle.capture.captured_chunks", "Total audio chunks delivered by the capture device."),
		ChunksDropped:   b.counter("auricle.capture.dropped_chunks", "Total audio chunks evicted from the full capture queue."),
		WakeDetections:  b.counter("auricle.wake.detections", "Total wake-phrase detections."),
		PipelineReinits: b.counter("auricle.pipeline.reinits", "Total pipeline reinitialisations."),

		ConsecutiveErrors: b.upDownCounter("auricle.pipeline.consecutive_errors", "Current consecutive handled-error count of the voice loop."),

		HTTPRequestDuration: b.httpHistogram("auricle.http.request.duration", "HTTP request latency by method and path."),
	}
	if b.err != nil {
		return nil, b.err
	}
	return met, nil
}

// builder creates instruments and remembers the first failure, letting
// NewMetrics assemble the whole struct in one literal.
type builder struct {
	meter metric.Meter
	err   error
}

func (b *builder) keep(err error) {
	if b.err == nil {
		b.err = err
	}
}

// stageHistogram is a seconds histogram with the voice-pipeline buckets.
func (b *builder) stageHistogram(name, desc string) metric.Float64Histogram {
	h, err := b.meter.Float64Histogram(name,
		metric.WithDescription(desc),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	)
	b.keep(err)
	return h
}

// httpHistogram is a seconds histogram with the SDK's default buckets.
func (b *builder) httpHistogram(name, desc string) metric.Float64Histogram {
	h, err := b.meter.Float64Histogram(name,
		metric.WithDescription(desc),
		metric.WithUnit("s"),
	)
	b.keep(err)
	return h
}

func (b *builder) counter(name, desc string) metric.Int64Counter {
	c, err := b.meter.Int64Counter(name, metric.WithDescription(desc))
	b.keep(err)
	return c
}

func (b *builder) upDownCounter(name, desc string) metric.Int64UpDownCounter {
	c, err := b.meter.Int64UpDownCounter(name, metric.WithDescription(desc))
	b.keep(err)
	return c
}

// The shared instance behind [DefaultMetrics].
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the process-wide [Metrics] instance, built against
// [otel.GetMeterProvider] on first use. A registration failure panics; the
// global provider never produces one.
//
// Until [InitProvider] installs a real meter provider the instruments are
// no-ops, so components may record against DefaultMetrics unconditionally.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}
