package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type PrometheusCollector struct {
	connectionsActive prometheus.Gauge
	actorsOnline      prometheus.Gauge

	connectionsTotal   prometheus.Counter
	evictionsTotal     prometheus.Counter
	messagesTotal      *prometheus.CounterVec
	publishRejections  *prometheus.CounterVec
	credentialsIssued  prometheus.Counter
	presenceWriteFails prometheus.Counter

	publishDuration    prometheus.Histogram
	moderationDuration prometheus.Histogram
}

func NewPrometheusCollector() *PrometheusCollector {
	return &PrometheusCollector{
		connectionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "relaygate_connections_active",
			Help: "Number of live websocket connections",
		}),

		actorsOnline: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "relaygate_actors_online",
			Help: "Number of actors with at least one live connection",
		}),

		connectionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "relaygate_connections_total",
			Help: "Total number of admitted connections",
		}),

		evictionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "relaygate_connections_evicted_total",
			Help: "Total number of connections evicted by the per-actor cap",
		}),

		messagesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "relaygate_messages_total",
			Help: "Messages processed by the publish pipeline",
		}, []string{"verdict"}),

		publishRejections: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "relaygate_publish_rejected_total",
			Help: "Publish attempts rejected before moderation",
		}, []string{"reason"}),

		credentialsIssued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "relaygate_media_credentials_issued_total",
			Help: "Media session credentials issued",
		}),

		presenceWriteFails: promauto.NewCounter(prometheus.CounterOpts{
			Name: "relaygate_presence_write_failures_total",
			Help: "Best-effort presence writes that failed",
		}),

		publishDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "relaygate_publish_duration_seconds",
			Help:    "End-to-end duration of publish attempts",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2},
		}),

		moderationDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "relaygate_moderation_duration_seconds",
			Help:    "Duration of content moderation calls",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
	}
}

func (p *PrometheusCollector) RecordConnection() {
	p.connectionsTotal.Inc()
	p.connectionsActive.Inc()
}

func (p *PrometheusCollector) RecordDisconnect() { p.connectionsActive.Dec() }
func (p *PrometheusCollector) RecordEviction()   { p.evictionsTotal.Inc() }

func (p *PrometheusCollector) SetActorsOnline(n int) {
	p.actorsOnline.Set(float64(n))
}

func (p *PrometheusCollector) RecordMessage(verdict string) {
	p.messagesTotal.WithLabelValues(verdict).Inc()
}

func (p *PrometheusCollector) RecordPublishRejected(reason string) {
	p.publishRejections.WithLabelValues(reason).Inc()
}

func (p *PrometheusCollector) RecordCredentialIssued() {
	p.credentialsIssued.Inc()
}

func (p *PrometheusCollector) RecordPresenceWriteFailure() {
	p.presenceWriteFails.Inc()
}

func (p *PrometheusCollector) ObservePublishDuration(d time.Duration) {
	p.publishDuration.Observe(d.Seconds())
}

func (p *PrometheusCollector) ObserveModerationDuration(d time.Duration) {
	p.moderationDuration.Observe(d.Seconds())
}
