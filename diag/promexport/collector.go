// File: diag/promexport/collector.go
// Package promexport bridges the engine counters to Prometheus.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// A pull-style collector over the always-on histogram pair plus pool
// pressure metrics (in-use and peak gauges, failed-acquire counter); no
// queue high-water gauge is exported. Hosts register it with their registry; embedded
// builds simply do not import this package.

package promexport

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/momentics/hioload-modbus/api"
	"github.com/momentics/hioload-modbus/diag"
	"github.com/momentics/hioload-modbus/pool"
)

// PoolStatsFunc supplies a live pool snapshot.
type PoolStatsFunc func() pool.Stats

// Collector exposes one engine's diagnostics.
type Collector struct {
	engine   string
	counters *diag.Counters
	poolFn   PoolStatsFunc

	fcDesc     *prometheus.Desc
	statusDesc *prometheus.Desc
	inUseDesc  *prometheus.Desc
	peakDesc   *prometheus.Desc
	failDesc   *prometheus.Desc
}

// New builds a collector. poolFn may be nil when no pool is exported.
func New(engine string, counters *diag.Counters, poolFn PoolStatsFunc) *Collector {
	labels := prometheus.Labels{"engine": engine}
	return &Collector{
		engine:   engine,
		counters: counters,
		poolFn:   poolFn,
		fcDesc: prometheus.NewDesc(
			"modbus_function_requests_total",
			"Requests observed per Modbus function code.",
			[]string{"function"}, labels),
		statusDesc: prometheus.NewDesc(
			"modbus_results_total",
			"Terminal statuses observed, by taxonomy slot name.",
			[]string{"status"}, labels),
		inUseDesc: prometheus.NewDesc(
			"modbus_pool_in_use",
			"Pool slots currently acquired.",
			nil, labels),
		peakDesc: prometheus.NewDesc(
			"modbus_pool_peak_in_use",
			"Peak pool occupancy since start.",
			nil, labels),
		failDesc: prometheus.NewDesc(
			"modbus_pool_failed_acquires_total",
			"Pool acquire attempts that found no free slot.",
			nil, labels),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.fcDesc
	ch <- c.statusDesc
	ch <- c.inUseDesc
	ch <- c.peakDesc
	ch <- c.failDesc
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for fc := 0; fc < 256; fc++ {
		n := c.counters.FC(uint8(fc))
		if n == 0 {
			continue
		}
		ch <- prometheus.MustNewConstMetric(
			c.fcDesc, prometheus.CounterValue, float64(n),
			"0x"+strconv.FormatUint(uint64(fc), 16))
	}
	for slot := 0; slot < api.NumStatusSlots; slot++ {
		n := c.counters.Status(slot)
		if n == 0 {
			continue
		}
		ch <- prometheus.MustNewConstMetric(
			c.statusDesc, prometheus.CounterValue, float64(n),
			slotName(slot))
	}
	if c.poolFn != nil {
		st := c.poolFn()
		ch <- prometheus.MustNewConstMetric(c.inUseDesc, prometheus.GaugeValue, float64(st.InUse))
		ch <- prometheus.MustNewConstMetric(c.peakDesc, prometheus.GaugeValue, float64(st.PeakInUse))
		ch <- prometheus.MustNewConstMetric(c.failDesc, prometheus.CounterValue, float64(st.FailedAcquires))
	}
}

// slotName reverses the dense slot mapping for labelling.
func slotName(slot int) string {
	for kind := api.KindOK; kind < api.KindException; kind++ {
		if api.NewStatus(kind).Slot() == slot {
			return api.NewStatus(kind).Name()
		}
	}
	for code := uint8(1); code <= 0x0B; code++ {
		st := api.NewException(code)
		if st.Slot() == slot {
			return st.Name()
		}
	}
	return "unknown"
}

var _ prometheus.Collector = (*Collector)(nil)
