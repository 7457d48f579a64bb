package offload

import (
	"github.com/prometheus/client_golang/prometheus"
)

// collector implements prometheus.Collector, snapshotting the offloader
// on each scrape.
type collector struct {
	o *Offloader

	// Gauges over current bookkeeping
	ports         *prometheus.Desc
	hardwareFlows *prometheus.Desc
	outerIDs      *prometheus.Desc
	tableIDs      *prometheus.Desc
	missContexts  *prometheus.Desc

	// Lifetime counters
	driverErrorsTotal *prometheus.Desc
	missLookupsTotal  *prometheus.Desc
	missHitsTotal     *prometheus.Desc
	logsDroppedTotal  *prometheus.Desc
}

// NewCollector returns a prometheus collector exporting the offloader's
// bookkeeping and counters.
func NewCollector(o *Offloader) prometheus.Collector {
	return &collector{
		o: o,

		ports: prometheus.NewDesc(
			"hwoffload_ports",
			"Registered datapath ports by kind.",
			[]string{"kind"}, nil,
		),
		hardwareFlows: prometheus.NewDesc(
			"hwoffload_hardware_flows",
			"Hardware flows currently installed.",
			nil, nil,
		),
		outerIDs: prometheus.NewDesc(
			"hwoffload_outer_ids",
			"Tunnel outer ids currently allocated.",
			nil, nil,
		),
		tableIDs: prometheus.NewDesc(
			"hwoffload_table_ids",
			"Hardware flow-table ids currently allocated.",
			nil, nil,
		),
		missContexts: prometheus.NewDesc(
			"hwoffload_miss_contexts",
			"Miss contexts registered for mark recovery.",
			nil, nil,
		),
		driverErrorsTotal: prometheus.NewDesc(
			"hwoffload_driver_errors_total",
			"Total offload driver call failures.",
			nil, nil,
		),
		missLookupsTotal: prometheus.NewDesc(
			"hwoffload_miss_lookups_total",
			"Total mark lookups on the packet miss path.",
			nil, nil,
		),
		missHitsTotal: prometheus.NewDesc(
			"hwoffload_miss_hits_total",
			"Total mark lookups that resolved to a context.",
			nil, nil,
		),
		logsDroppedTotal: prometheus.NewDesc(
			"hwoffload_logs_dropped_total",
			"Total diagnostics suppressed by the rate limiter.",
			nil, nil,
		),
	}
}

func (c *collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.ports
	ch <- c.hardwareFlows
	ch <- c.outerIDs
	ch <- c.tableIDs
	ch <- c.missContexts
	ch <- c.driverErrorsTotal
	ch <- c.missLookupsTotal
	ch <- c.missHitsTotal
	ch <- c.logsDroppedTotal
}

func (c *collector) Collect(ch chan<- prometheus.Metric) {
	s := c.o.StatsSnapshot()

	ch <- prometheus.MustNewConstMetric(c.ports, prometheus.GaugeValue,
		float64(s.PhysicalPorts), PortPhysical.String())
	ch <- prometheus.MustNewConstMetric(c.ports, prometheus.GaugeValue,
		float64(s.TunnelPorts), PortTunnel.String())
	ch <- prometheus.MustNewConstMetric(c.hardwareFlows, prometheus.GaugeValue,
		float64(s.HardwareFlows))
	ch <- prometheus.MustNewConstMetric(c.outerIDs, prometheus.GaugeValue,
		float64(s.OuterIDs))
	ch <- prometheus.MustNewConstMetric(c.tableIDs, prometheus.GaugeValue,
		float64(s.TableIDs))
	ch <- prometheus.MustNewConstMetric(c.missContexts, prometheus.GaugeValue,
		float64(s.MissContexts))

	ch <- prometheus.MustNewConstMetric(c.driverErrorsTotal, prometheus.CounterValue,
		float64(s.DriverErrors))
	ch <- prometheus.MustNewConstMetric(c.missLookupsTotal, prometheus.CounterValue,
		float64(s.MissLookups))
	ch <- prometheus.MustNewConstMetric(c.missHitsTotal, prometheus.CounterValue,
		float64(s.MissHits))
	ch <- prometheus.MustNewConstMetric(c.logsDroppedTotal, prometheus.CounterValue,
		float64(s.LogsDropped))
}
