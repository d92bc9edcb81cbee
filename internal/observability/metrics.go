package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	controlSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rtcp",
			Subsystem: "control",
			Name:      "messages_sent_total",
			Help:      "RTCP control messages sent.",
		},
		[]string{"kind"},
	)
	controlReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rtcp",
			Subsystem: "control",
			Name:      "messages_received_total",
			Help:      "RTCP control messages received.",
		},
		[]string{"kind"},
	)
	badFrames = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "rtcp",
			Subsystem: "control",
			Name:      "bad_frames_total",
			Help:      "Inbound frames rejected before dispatch.",
		},
	)
	openChannels = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "rtcp",
			Subsystem: "transport",
			Name:      "open_channels",
			Help:      "Channels currently tracked by the transport.",
		},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(controlSent, controlReceived, badFrames, openChannels)
	})
}

func RecordControlSent(kind string) {
	RegisterMetrics()
	controlSent.WithLabelValues(kind).Inc()
}

func RecordControlReceived(kind string) {
	RegisterMetrics()
	controlReceived.WithLabelValues(kind).Inc()
}

func RecordBadFrame() {
	RegisterMetrics()
	badFrames.Inc()
}

func SetOpenChannels(n int) {
	RegisterMetrics()
	openChannels.Set(float64(n))
}
