// Package metrics holds the Prometheus collectors of the bridge.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nfc_juke_events_total",
		Help: "Inbound bus messages by route",
	}, []string{"route"}) // route=tag|button|ignored|decode_error

	dispatchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nfc_juke_dispatch_total",
		Help: "Dispatched actions by kind and result",
	}, []string{"kind", "result"}) // result=played|skipped|rejected|failed

	dispatchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "nfc_juke_dispatch_duration_seconds",
		Help:    "Time from lookup to completed status refresh",
		Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
	}, []string{"kind"})

	playerRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nfc_juke_player_requests_total",
		Help: "Requests sent to the media server",
	}, []string{"transport", "op", "outcome"}) // outcome=success|error

	playerRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "nfc_juke_player_request_duration_seconds",
		Help:    "Round trip time of media server requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"transport"})

	tagsLoaded = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "nfc_juke_tags_loaded",
		Help: "Entries in the tag table",
	})

	tagReloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nfc_juke_tag_reloads_total",
		Help: "Tag table reloads by outcome",
	}, []string{"outcome"})

	busConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "nfc_juke_bus_connected",
		Help: "Whether the MQTT connection is up (1) or down (0)",
	})

	readerScansTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nfc_juke_reader_reports_total",
		Help: "Tag changes reported by the local reader",
	})
)

// IncEvent counts an inbound message by the route it took.
func IncEvent(route string) {
	eventsTotal.WithLabelValues(route).Inc()
}

// ObserveDispatch records one dispatch.
func ObserveDispatch(kind, result string, d time.Duration) {
	dispatchTotal.WithLabelValues(kind, result).Inc()
	dispatchDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// ObservePlayerRequest records one media server request.
func ObservePlayerRequest(transport, op string, d time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	playerRequestsTotal.WithLabelValues(transport, op, outcome).Inc()
	playerRequestDuration.WithLabelValues(transport).Observe(d.Seconds())
}

// SetTagsLoaded sets the tag table size.
func SetTagsLoaded(n int) {
	tagsLoaded.Set(float64(n))
}

// IncTagReload counts a reload attempt.
func IncTagReload(success bool) {
	if success {
		tagReloadsTotal.WithLabelValues("success").Inc()
		return
	}
	tagReloadsTotal.WithLabelValues("failure").Inc()
}

// SetBusConnected records the broker connection state.
func SetBusConnected(up bool) {
	if up {
		busConnected.Set(1)
		return
	}
	busConnected.Set(0)
}

// IncReaderReport counts a tag change reported by the local reader.
func IncReaderReport() {
	readerScansTotal.Inc()
}
