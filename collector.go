package emskit

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector exposes the latest snapshot as Prometheus metrics. It never
// fetches anything itself: a scrape reads whatever the last poll cycle
// produced, absent readings are simply not emitted.
type Collector struct {
	kit *EmsKit

	reading       *prometheus.Desc
	dataAvailable *prometheus.Desc
	scheduleCount *prometheus.Desc
}

func NewCollector(kit *EmsKit) *Collector {
	return &Collector{
		kit: kit,
		reading: prometheus.NewDesc(
			"emskit_reading",
			"Value resolved from the snapshot readings catalog",
			[]string{"key"},
			nil,
		),
		dataAvailable: prometheus.NewDesc(
			"emskit_data_available",
			"Whether a snapshot from a successful poll cycle is present (1=yes, 0=no)",
			nil,
			nil,
		),
		scheduleCount: prometheus.NewDesc(
			"emskit_schedule_count",
			"Number of schedules reported by the sched_list header",
			nil,
			nil,
		),
	}
}

func (co *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- co.reading
	ch <- co.dataAvailable
	ch <- co.scheduleCount
}

func (co *Collector) Collect(ch chan<- prometheus.Metric) {
	data := co.kit.Latest()
	if data == nil {
		ch <- prometheus.MustNewConstMetric(co.dataAvailable, prometheus.GaugeValue, 0)
		return
	}

	ch <- prometheus.MustNewConstMetric(co.dataAvailable, prometheus.GaugeValue, 1)
	ch <- prometheus.MustNewConstMetric(co.scheduleCount, prometheus.GaugeValue,
		float64(data.Schedule.Count))

	for _, spec := range Readings(len(data.Ems)) {
		value, found := spec.Resolve(data)
		if !found {
			continue
		}
		ch <- prometheus.MustNewConstMetric(co.reading, prometheus.GaugeValue, value, spec.Key)
	}
}
