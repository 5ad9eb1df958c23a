package gallery

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are build counters. A nil *Metrics records nothing.
type Metrics struct {
	Thumbnails       *prometheus.CounterVec
	MetadataFailures *prometheus.CounterVec
	Galleries        *prometheus.GaugeVec
	BuildDuration    prometheus.Histogram
}

// NewMetrics registers build metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Thumbnails: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gallerygen_thumbnails_total",
				Help: "Thumbnails considered, by outcome",
			},
			[]string{"result"},
		),
		MetadataFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gallerygen_metadata_failures_total",
				Help: "Images whose capture metadata could not be read",
			},
			[]string{"reason"},
		),
		Galleries: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "gallerygen_galleries",
				Help: "Galleries in the last build",
			},
			[]string{"visibility"},
		),
		BuildDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "gallerygen_build_duration_seconds",
				Help:    "Duration of index builds",
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
			},
		),
	}
}

func (m *Metrics) thumbnail(result string) {
	if m == nil {
		return
	}
	m.Thumbnails.WithLabelValues(result).Inc()
}

func (m *Metrics) metadataFailure(reason string) {
	if m == nil {
		return
	}
	m.MetadataFailures.WithLabelValues(reason).Inc()
}

func (m *Metrics) built(x *Index, start time.Time) {
	if m == nil {
		return
	}
	m.BuildDuration.Observe(time.Since(start).Seconds())
	m.Galleries.WithLabelValues("visible").Set(float64(len(x.Galleries)))
	m.Galleries.WithLabelValues("hidden").Set(float64(len(x.All) - len(x.Galleries)))
}
