package prometheus

import (
	"net/http"

	"github.com/MrEthical07/phoneauth"
	"github.com/MrEthical07/phoneauth/metrics/export/internaldefs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metricsSource interface {
	MetricsSnapshot() phoneauth.MetricsSnapshot
	AuditDropped() uint64
	AuditFailed() uint64
}

type histogramDesc struct {
	id   phoneauth.MetricID
	desc *prometheus.Desc
}

type counterDesc struct {
	id   phoneauth.MetricID
	desc *prometheus.Desc
}

// Collector is a prometheus.Collector that reads an engine snapshot on each
// scrape.
type Collector struct {
	source       metricsSource
	counters     []counterDesc
	histograms   []histogramDesc
	auditDropped *prometheus.Desc
	auditFailed  *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector returns a Collector for engine.
func NewCollector(engine *phoneauth.Engine) *Collector {
	return NewCollectorFromSource(engine)
}

// NewCollectorFromSource returns a Collector reading from source.
func NewCollectorFromSource(source metricsSource) *Collector {
	c := &Collector{
		source:   source,
		counters: make([]counterDesc, 0, len(internaldefs.CounterDefs)),
		auditDropped: prometheus.NewDesc(internaldefs.AuditDroppedName,
			"Audit events dropped because the dispatcher buffer was full.", nil, nil),
		auditFailed: prometheus.NewDesc(internaldefs.AuditFailedName,
			"Audit events lost to a panicking sink.", nil, nil),
	}
	for _, def := range internaldefs.CounterDefs {
		c.counters = append(c.counters, counterDesc{
			id:   def.ID,
			desc: prometheus.NewDesc(def.Name, def.Help, nil, nil),
		})
	}
	for _, def := range internaldefs.HistogramDefs {
		c.histograms = append(c.histograms, histogramDesc{
			id:   def.ID,
			desc: prometheus.NewDesc(def.Name, def.Help, nil, nil),
		})
	}
	return c
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range c.counters {
		ch <- d.desc
	}
	for _, h := range c.histograms {
		ch <- h.desc
	}
	ch <- c.auditDropped
	ch <- c.auditFailed
}

// Collect emits nothing while engine metrics are disabled.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c == nil || c.source == nil {
		return
	}
	snapshot := c.source.MetricsSnapshot()
	if len(snapshot.Counters) == 0 && len(snapshot.Histograms) == 0 {
		return
	}

	for _, d := range c.counters {
		ch <- prometheus.MustNewConstMetric(d.desc, prometheus.CounterValue, float64(snapshot.Counters[d.id]))
	}

	for _, h := range c.histograms {
		raw, ok := snapshot.Histograms[h.id]
		if !ok {
			continue
		}
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(raw))
		buckets := make(map[float64]uint64, len(internaldefs.HistogramUpperBounds))
		for i, le := range internaldefs.HistogramUpperBounds {
			buckets[le] = cumulative[i]
		}
		// The engine does not track a latency sum.
		ch <- prometheus.MustNewConstHistogram(h.desc, cumulative[len(cumulative)-1], 0, buckets)
	}

	ch <- prometheus.MustNewConstMetric(c.auditDropped, prometheus.CounterValue, float64(c.source.AuditDropped()))
	ch <- prometheus.MustNewConstMetric(c.auditFailed, prometheus.CounterValue, float64(c.source.AuditFailed()))
}

// Handler serves c, plus the Go runtime and process collectors, from a
// private registry.
func Handler(c *Collector) http.Handler {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		c,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
