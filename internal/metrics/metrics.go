// Package metrics exposes the latest estimation and refresh activity as
// Prometheus metrics on a private registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rewired-gh/pppwatch/internal/models"
)

// Refresh outcomes recorded by RecordRefresh.
const (
	ResultComputed = "computed"
	ResultCached   = "cached"
	ResultFailed   = "failed"
)

// Registry holds all pppwatch metrics.
type Registry struct {
	registry *prometheus.Registry

	// Latest row values, labelled by series name
	Latest *prometheus.GaugeVec

	LatestIndex prometheus.Gauge
	InBand      prometheus.Gauge
	Rows        prometheus.Gauge

	Refreshes         *prometheus.CounterVec
	RecomputeDuration prometheus.Histogram
	LastSuccess       prometheus.Gauge
}

// New creates a registry with all metrics registered. pair labels every series.
func New(pair string) *Registry {
	constLabels := prometheus.Labels{"pair": pair}
	r := &Registry{
		registry: prometheus.NewRegistry(),

		Latest: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name:        "pppwatch_latest_value",
				Help:        "Value of each series in the latest estimation row",
				ConstLabels: constLabels,
			},
			[]string{"series"},
		),

		LatestIndex: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "pppwatch_latest_index",
			Help:        "Index (year) of the latest estimation row",
			ConstLabels: constLabels,
		}),

		InBand: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "pppwatch_rate_in_band",
			Help:        "1 if the latest rate is inside the estimation band, 0 otherwise",
			ConstLabels: constLabels,
		}),

		Rows: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "pppwatch_frame_rows",
			Help:        "Number of rows in the latest frame",
			ConstLabels: constLabels,
		}),

		Refreshes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "pppwatch_refreshes_total",
				Help:        "Total number of refresh attempts by result",
				ConstLabels: constLabels,
			},
			[]string{"result"},
		),

		RecomputeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "pppwatch_recompute_duration_seconds",
			Help:        "Duration of fetch and estimation runs in seconds",
			ConstLabels: constLabels,
			Buckets:     []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),

		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "pppwatch_last_success_timestamp_seconds",
			Help:        "Unix time of the last successful refresh",
			ConstLabels: constLabels,
		}),
	}

	r.registry.MustRegister(
		r.Latest,
		r.LatestIndex,
		r.InBand,
		r.Rows,
		r.Refreshes,
		r.RecomputeDuration,
		r.LastSuccess,
	)
	for _, res := range []string{ResultComputed, ResultCached, ResultFailed} {
		r.Refreshes.WithLabelValues(res)
	}
	return r
}

var latestSeries = []string{
	models.ColRate,
	models.ColEstimate,
	models.ColEstimateLow,
	models.ColEstimateHigh,
	models.ColRelativeError,
	models.ColErrorMean,
	models.ColErrorStd,
}

// ObserveFrame publishes the latest row of frame. Missing values remove the
// corresponding series rather than exporting NaN.
func (r *Registry) ObserveFrame(frame *models.Frame) {
	last, ok := frame.Last()
	if !ok {
		return
	}
	for _, name := range latestSeries {
		v, _ := last.Value(name)
		if models.IsMissing(v) {
			r.Latest.DeleteLabelValues(name)
			continue
		}
		r.Latest.WithLabelValues(name).Set(v)
	}
	r.LatestIndex.Set(float64(last.Index))
	r.Rows.Set(float64(frame.Len()))
	if last.InBand() {
		r.InBand.Set(1)
	} else {
		r.InBand.Set(0)
	}
}

// RecordRefresh counts one refresh attempt.
func (r *Registry) RecordRefresh(result string, at time.Time) {
	r.Refreshes.WithLabelValues(result).Inc()
	if result != ResultFailed {
		r.LastSuccess.Set(float64(at.Unix()))
	}
}

// ObserveDuration records how long a recompute took.
func (r *Registry) ObserveDuration(d time.Duration) {
	r.RecomputeDuration.Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
