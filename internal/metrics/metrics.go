package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Registry *prometheus.Registry

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
	HTTPInFlight prometheus.Gauge

	Clicks *prometheus.CounterVec

	Reports        *prometheus.CounterVec
	ReportAttempts *prometheus.HistogramVec
	ReportClicks   *prometheus.GaugeVec
	ReportLastRun  *prometheus.GaugeVec
}

// New registers every collector on a fresh registry together with the
// process and Go runtime collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		HTTPRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests processed",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latencies in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route", "status"},
		),
		HTTPInFlight: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_inflight_requests",
				Help: "Number of HTTP requests currently being served",
			},
		),

		// mode is direct or queued
		Clicks: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "linktracker_clicks_total",
				Help: "Clicks recorded by the redirect endpoint",
			},
			[]string{"mode"},
		),

		Reports: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "linktracker_reports_total",
				Help: "Report dispatch outcomes",
			},
			[]string{"kind", "status"},
		),
		ReportAttempts: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "linktracker_report_attempts",
				Help:    "Transport attempts used per report",
				Buckets: []float64{1, 2, 3, 5, 8},
			},
			[]string{"kind"},
		),
		ReportClicks: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "linktracker_report_window_clicks",
				Help: "Clicks in the current window of the last report",
			},
			[]string{"kind"},
		),
		ReportLastRun: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "linktracker_report_last_run_timestamp_seconds",
				Help: "Unix time of the last report dispatch per status",
			},
			[]string{"kind", "status"},
		),
	}
}

func (m *Metrics) ClickRecorded(mode string) {
	m.Clicks.WithLabelValues(mode).Inc()
}
