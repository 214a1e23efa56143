package server

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/minios-linux/lokedit/editor"
)

type metrics struct {
	requests    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	imports     *prometheus.CounterVec
	exportBytes prometheus.Counter
	changes     *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer, m *editor.Manager) *metrics {
	mt := &metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lokedit",
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "lokedit",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		imports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lokedit",
			Name:      "imported_files_total",
			Help:      "Imported files by result.",
		}, []string{"result"}),
		exportBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lokedit",
			Name:      "export_bytes_total",
			Help:      "Bytes of zip archives served.",
		}),
		changes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lokedit",
			Name:      "state_changes_total",
			Help:      "Editor state changes by collection.",
		}, []string{"collection"}),
	}

	reg.MustRegister(
		mt.requests,
		mt.duration,
		mt.imports,
		mt.exportBytes,
		mt.changes,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "lokedit",
			Name:      "keys",
			Help:      "Number of keys in the key list.",
		}, func() float64 { return float64(len(m.Keys())) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "lokedit",
			Name:      "translations",
			Help:      "Number of translations.",
		}, func() float64 { return float64(len(m.Translations())) }),
	)
	return mt
}

func (mt *metrics) observeRequest(method, route string, status int, elapsed time.Duration) {
	mt.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	mt.duration.WithLabelValues(route).Observe(elapsed.Seconds())
}

func (mt *metrics) observeImport(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	mt.imports.WithLabelValues(result).Inc()
}

var changeLabels = []struct {
	bit   editor.Change
	label string
}{
	{editor.ChangeKeys, "keys"},
	{editor.ChangeTranslations, "translations"},
	{editor.ChangeSelection, "selection"},
	{editor.ChangeLanguage, "language"},
}

func (mt *metrics) observeChange(c editor.Change) {
	for _, l := range changeLabels {
		if c.Has(l.bit) {
			mt.changes.WithLabelValues(l.label).Inc()
		}
	}
}
