package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
)

// SessionStats is implemented by session.Manager.
type SessionStats interface {
	Count() int
	LoadingWidgets() int
}

// collector reports session gauges and host resources on every scrape.
type collector struct {
	stats          SessionStats
	activeSessions *prometheus.Desc
	loadingWidgets *prometheus.Desc
	memory         *prometheus.Desc
	cpuUsage       *prometheus.Desc
}

func newCollector(stats SessionStats) *collector {
	return &collector{
		stats: stats,
		activeSessions: prometheus.NewDesc(
			"vizboard_active_sessions",
			"Number of open dashboard sessions",
			nil,
			nil,
		),
		loadingWidgets: prometheus.NewDesc(
			"vizboard_loading_widgets",
			"Number of widgets with a query job in flight",
			nil,
			nil,
		),
		memory: prometheus.NewDesc(
			"system_memory_bytes",
			"System memory usage in bytes",
			[]string{"type"},
			nil,
		),
		cpuUsage: prometheus.NewDesc(
			"system_cpu_usage_percent",
			"Current CPU usage percentage",
			nil,
			nil,
		),
	}
}

func (c *collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.activeSessions
	ch <- c.loadingWidgets
	ch <- c.memory
	ch <- c.cpuUsage
}

func (c *collector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(c.activeSessions, prometheus.GaugeValue, float64(c.stats.Count()))
	ch <- prometheus.MustNewConstMetric(c.loadingWidgets, prometheus.GaugeValue, float64(c.stats.LoadingWidgets()))

	if vmstat, err := mem.VirtualMemory(); err == nil {
		for label, value := range map[string]uint64{
			"total":     vmstat.Total,
			"available": vmstat.Available,
			"used":      vmstat.Used,
		} {
			ch <- prometheus.MustNewConstMetric(c.memory, prometheus.GaugeValue, float64(value), label)
		}
	}

	if percent, err := cpu.Percent(0, false); err == nil && len(percent) > 0 {
		ch <- prometheus.MustNewConstMetric(c.cpuUsage, prometheus.GaugeValue, percent[0])
	}
}

// Register adds the collector to registerer, the default registry if nil.
func Register(stats SessionStats, registerer prometheus.Registerer) error {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	return registerer.Register(newCollector(stats))
}
