package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/muurk/ubxrelay/internal/protocol"
)

const namespace = "ubxrelay"

// Solution outcomes used as the "result" label
const (
	ResultBuilt            = "built"
	ResultInsufficientData = "insufficient_data"
	ResultEpochMismatch    = "epoch_mismatch"
	ResultOther            = "other"
)

// Collector holds the relay's Prometheus metrics on a private registry.
// It implements relay.Observer.
type Collector struct {
	registry *prometheus.Registry

	BytesReadTotal      prometheus.Counter
	BytesDiscardedTotal prometheus.Counter
	ChecksumMismatches  prometheus.Counter
	FramesExtracted     *prometheus.CounterVec
	FramesForwarded     *prometheus.CounterVec
	BytesForwarded      prometheus.Counter
	DecodeErrors        *prometheus.CounterVec
	Solutions           *prometheus.CounterVec

	WebSocketClients prometheus.Gauge
	WebSocketDropped prometheus.Counter
	MQTTPublished    prometheus.Counter
	MQTTErrors       prometheus.Counter
	NMEASentences    *prometheus.CounterVec
}

// NewCollector creates and registers every relay metric. Process and Go
// runtime collectors are registered too.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),

		BytesReadTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_read_total",
			Help:      "Total number of bytes read from the receiver",
		}),
		BytesDiscardedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_discarded_total",
			Help:      "Total number of bytes dropped while resynchronizing",
		}),
		ChecksumMismatches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checksum_mismatches_total",
			Help:      "Total number of candidate frames rejected by checksum",
		}),
		FramesExtracted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_extracted_total",
			Help:      "Total number of checksum-valid frames by message",
		}, []string{"message"}),
		FramesForwarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_forwarded_total",
			Help:      "Total number of frames written to the output by message",
		}, []string{"message"}),
		BytesForwarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_forwarded_total",
			Help:      "Total number of bytes written to the output",
		}),
		DecodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_errors_total",
			Help:      "Total number of known messages with a truncated payload",
		}, []string{"message"}),
		Solutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "solutions_total",
			Help:      "NAV-SOL synthesis attempts by result",
		}, []string{"result"}),

		WebSocketClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_clients",
			Help:      "Number of connected stream clients",
		}),
		WebSocketDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "websocket_dropped_frames_total",
			Help:      "Frames not delivered to slow stream clients",
		}),
		MQTTPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mqtt_published_total",
			Help:      "Records published to the MQTT broker",
		}),
		MQTTErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mqtt_publish_errors_total",
			Help:      "Records the MQTT broker did not accept",
		}),
		NMEASentences: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "nmea_sentences_total",
			Help:      "NMEA sentences found between UBX frames by type",
		}, []string{"type"}),
	}

	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.BytesReadTotal,
		c.BytesDiscardedTotal,
		c.ChecksumMismatches,
		c.FramesExtracted,
		c.FramesForwarded,
		c.BytesForwarded,
		c.DecodeErrors,
		c.Solutions,
		c.WebSocketClients,
		c.WebSocketDropped,
		c.MQTTPublished,
		c.MQTTErrors,
		c.NMEASentences,
	)

	return c
}

// Registry returns the registry holding the relay metrics
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler returns an HTTP handler that exposes the registered metrics
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		Registry: c.registry,
	})
}

// BytesRead implements relay.Observer
func (c *Collector) BytesRead(n int) {
	c.BytesReadTotal.Add(float64(n))
}

// FrameExtracted implements relay.Observer
func (c *Collector) FrameExtracted(class, id byte, _ int) {
	c.FramesExtracted.WithLabelValues(protocol.MessageName(class, id)).Inc()
}

// BytesDiscarded implements relay.Observer
func (c *Collector) BytesDiscarded(n int, checksumMismatch bool) {
	c.BytesDiscardedTotal.Add(float64(n))
	if checksumMismatch {
		c.ChecksumMismatches.Inc()
	}
}

// DecodeFailed implements relay.Observer
func (c *Collector) DecodeFailed(class, id byte) {
	c.DecodeErrors.WithLabelValues(protocol.MessageName(class, id)).Inc()
}

// FrameForwarded implements relay.Observer
func (c *Collector) FrameForwarded(class, id byte, size int) {
	c.FramesForwarded.WithLabelValues(protocol.MessageName(class, id)).Inc()
	c.BytesForwarded.Add(float64(size))
}

// SolutionBuilt implements relay.Observer
func (c *Collector) SolutionBuilt() {
	c.Solutions.WithLabelValues(ResultBuilt).Inc()
}

// SolutionSkipped implements relay.Observer
func (c *Collector) SolutionSkipped(reason error) {
	c.Solutions.WithLabelValues(SolutionResult(reason)).Inc()
}

// SolutionResult maps a synthesis error onto a result label
func SolutionResult(err error) string {
	switch {
	case err == nil:
		return ResultBuilt
	case errors.Is(err, protocol.ErrInsufficientData):
		return ResultInsufficientData
	case errors.Is(err, protocol.ErrEpochMismatch):
		return ResultEpochMismatch
	default:
		return ResultOther
	}
}

// ClientConnected records a new stream client
func (c *Collector) ClientConnected() {
	c.WebSocketClients.Inc()
}

// ClientDisconnected records a stream client leaving
func (c *Collector) ClientDisconnected() {
	c.WebSocketClients.Dec()
}

// FrameDropped records a frame a slow stream client did not receive
func (c *Collector) FrameDropped() {
	c.WebSocketDropped.Inc()
}

// Published records the outcome of one MQTT publish
func (c *Collector) Published(err error) {
	if err != nil {
		c.MQTTErrors.Inc()
		return
	}
	c.MQTTPublished.Inc()
}

// Sentence records an NMEA sentence of the given type
func (c *Collector) Sentence(sentenceType string) {
	c.NMEASentences.WithLabelValues(sentenceType).Inc()
}
