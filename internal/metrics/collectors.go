package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"gapsentry/internal/domain/classifier"
)

// ClassifierCollector exports the live classifier state at scrape time
type ClassifierCollector struct {
	snapshot func() classifier.State

	samples *prometheus.Desc
	bias    *prometheus.Desc
	weight  *prometheus.Desc
	age     *prometheus.Desc
}

// NewClassifierCollector creates a collector reading state through snapshot
func NewClassifierCollector(snapshot func() classifier.State) *ClassifierCollector {
	return &ClassifierCollector{
		snapshot: snapshot,
		samples: prometheus.NewDesc(
			"gapsentry_classifier_samples",
			"Number of labels the classifier has learned from",
			nil, nil,
		),
		bias: prometheus.NewDesc(
			"gapsentry_classifier_bias",
			"Current classifier bias",
			nil, nil,
		),
		weight: prometheus.NewDesc(
			"gapsentry_classifier_weight",
			"Current classifier weight per feature index",
			[]string{"feature"}, nil,
		),
		age: prometheus.NewDesc(
			"gapsentry_classifier_updated_timestamp",
			"Unix timestamp of the last classifier update",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector
func (c *ClassifierCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.samples
	ch <- c.bias
	ch <- c.weight
	ch <- c.age
}

// Collect implements prometheus.Collector
func (c *ClassifierCollector) Collect(ch chan<- prometheus.Metric) {
	st := c.snapshot()

	ch <- prometheus.MustNewConstMetric(c.samples, prometheus.GaugeValue, float64(st.SampleCount))
	ch <- prometheus.MustNewConstMetric(c.bias, prometheus.GaugeValue, st.Bias)
	for i, w := range st.Weights {
		ch <- prometheus.MustNewConstMetric(c.weight, prometheus.GaugeValue, w, strconv.Itoa(i))
	}
	if !st.UpdatedAt.IsZero() {
		ch <- prometheus.MustNewConstMetric(c.age, prometheus.GaugeValue, float64(st.UpdatedAt.Unix()))
	}
}

// RegisterClassifierCollector registers the classifier collector
func RegisterClassifierCollector(collector *ClassifierCollector) {
	prometheus.MustRegister(collector)
}
