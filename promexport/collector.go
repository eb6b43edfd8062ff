// Package promexport bridges the engine's internal counters into a
// Prometheus registry. The collector reads a snapshot on every scrape;
// the hot path stays on plain atomics.
package promexport

import (
	"github.com/prometheus/client_golang/prometheus"

	authcore "github.com/mindhaven/authcore"
	"github.com/mindhaven/authcore/internal/metrics"
)

// Collector exposes engine counters as prometheus counters plus the
// access-verification latency histogram.
type Collector struct {
	engine    *authcore.Engine
	namespace string

	descs   map[authcore.MetricID]*prometheus.Desc
	latency *prometheus.Desc
}

// NewCollector builds a collector for the engine. Register it with
// prometheus.MustRegister.
func NewCollector(engine *authcore.Engine, namespace string) *Collector {
	if namespace == "" {
		namespace = "authcore"
	}

	descs := make(map[authcore.MetricID]*prometheus.Desc, int(metrics.MetricIDCount))
	for id := authcore.MetricID(0); id < metrics.MetricIDCount; id++ {
		if id == metrics.MetricVerifyLatency {
			continue
		}
		descs[id] = prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", id.Name()+"_total"),
			"Engine counter "+id.Name(),
			nil, nil,
		)
	}

	return &Collector{
		engine:    engine,
		namespace: namespace,
		descs:     descs,
		latency: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "verify_latency_milliseconds"),
			"Access token verification latency",
			nil, nil,
		),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, desc := range c.descs {
		ch <- desc
	}
	ch <- c.latency
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snap := c.engine.MetricsSnapshot()

	for id, desc := range c.descs {
		ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, float64(snap.Counters[id]))
	}

	if len(snap.Latency) == 0 {
		return
	}

	buckets := make(map[float64]uint64, len(snap.Latency))
	var count uint64
	for i, observed := range snap.Latency {
		count += observed
		bound := float64(metrics.BucketBoundsMillis[i])
		if i == len(snap.Latency)-1 {
			continue // +Inf bucket is implied by the total count
		}
		buckets[bound] = count
	}

	// Sum is not tracked internally; export zero and rely on buckets.
	ch <- prometheus.MustNewConstHistogram(c.latency, count, 0, buckets)
}
