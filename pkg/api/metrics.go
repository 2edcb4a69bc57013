package api

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/psaab/slotstrike/pkg/rules"
)

// slotstrikeCollector implements prometheus.Collector, reading counters and
// latency windows on each scrape.
type slotstrikeCollector struct {
	srv *Server

	// Ingress counters
	ingressFramesTotal       *prometheus.Desc
	ingressFilteredTotal     *prometheus.Desc
	ingressDecodeErrorsTotal *prometheus.Desc
	ingressPublishedTotal    *prometheus.Desc
	ingressReconnectsTotal   *prometheus.Desc

	// Engine counters
	engineEventsTotal     *prometheus.Desc
	engineClassifiedTotal *prometheus.Desc

	// Latency telemetry
	hopLatency       *prometheus.Desc
	hopSamples       *prometheus.Desc
	telemetryDropped *prometheus.Desc

	// Rules
	rulesActive *prometheus.Desc
}

func newCollector(srv *Server) *slotstrikeCollector {
	return &slotstrikeCollector{
		srv: srv,

		ingressFramesTotal: prometheus.NewDesc(
			"slotstrike_ingress_frames_total",
			"Raw frames or messages read by the ingress backend.",
			[]string{"backend"}, nil,
		),
		ingressFilteredTotal: prometheus.NewDesc(
			"slotstrike_ingress_filtered_total",
			"Frames dropped by the byte prefilter.",
			[]string{"backend"}, nil,
		),
		ingressDecodeErrorsTotal: prometheus.NewDesc(
			"slotstrike_ingress_decode_errors_total",
			"Frames dropped as malformed.",
			[]string{"backend"}, nil,
		),
		ingressPublishedTotal: prometheus.NewDesc(
			"slotstrike_ingress_published_total",
			"Events handed to the sniper engine.",
			[]string{"backend"}, nil,
		),
		ingressReconnectsTotal: prometheus.NewDesc(
			"slotstrike_ingress_reconnects_total",
			"Connect failures and peer disconnects.",
			[]string{"backend"}, nil,
		),
		engineEventsTotal: prometheus.NewDesc(
			"slotstrike_engine_events_total",
			"Events dequeued by the sniper engine.",
			nil, nil,
		),
		engineClassifiedTotal: prometheus.NewDesc(
			"slotstrike_engine_classified_total",
			"Events by classification outcome.",
			[]string{"outcome"}, nil,
		),
		hopLatency: prometheus.NewDesc(
			"slotstrike_hop_latency_ns",
			"Latency per hop over the recent sample window.",
			[]string{"hop", "stat"}, nil,
		),
		hopSamples: prometheus.NewDesc(
			"slotstrike_hop_samples",
			"Samples currently held per hop.",
			[]string{"hop"}, nil,
		),
		telemetryDropped: prometheus.NewDesc(
			"slotstrike_telemetry_dropped_samples_total",
			"Samples recorded against unknown hops.",
			nil, nil,
		),
		rulesActive: prometheus.NewDesc(
			"slotstrike_rules_active",
			"Rules in the active snapshot.",
			[]string{"kind"}, nil,
		),
	}
}

func (c *slotstrikeCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.ingressFramesTotal
	ch <- c.ingressFilteredTotal
	ch <- c.ingressDecodeErrorsTotal
	ch <- c.ingressPublishedTotal
	ch <- c.ingressReconnectsTotal
	ch <- c.engineEventsTotal
	ch <- c.engineClassifiedTotal
	ch <- c.hopLatency
	ch <- c.hopSamples
	ch <- c.telemetryDropped
	ch <- c.rulesActive
}

func (c *slotstrikeCollector) Collect(ch chan<- prometheus.Metric) {
	c.collectIngress(ch)
	c.collectEngine(ch)
	c.collectTelemetry(ch)
	c.collectRules(ch)
}

func (c *slotstrikeCollector) collectIngress(ch chan<- prometheus.Metric) {
	port := c.srv.port
	if port == nil {
		return
	}
	name := port.Name()
	s := port.Counters().Snapshot()
	ch <- prometheus.MustNewConstMetric(c.ingressFramesTotal, prometheus.CounterValue, float64(s.Frames), name)
	ch <- prometheus.MustNewConstMetric(c.ingressFilteredTotal, prometheus.CounterValue, float64(s.Filtered), name)
	ch <- prometheus.MustNewConstMetric(c.ingressDecodeErrorsTotal, prometheus.CounterValue, float64(s.DecodeErrors), name)
	ch <- prometheus.MustNewConstMetric(c.ingressPublishedTotal, prometheus.CounterValue, float64(s.Published), name)
	ch <- prometheus.MustNewConstMetric(c.ingressReconnectsTotal, prometheus.CounterValue, float64(s.Reconnects), name)
}

func (c *slotstrikeCollector) collectEngine(ch chan<- prometheus.Metric) {
	if c.srv.engine == nil {
		return
	}
	s := c.srv.engine.Snapshot()
	ch <- prometheus.MustNewConstMetric(c.engineEventsTotal, prometheus.CounterValue, float64(s.Received))
	for outcome, v := range map[string]uint64{
		"failed_tx":         s.FailedTx,
		"invalid_signature": s.InvalidSignature,
		"cpmm":              s.CPMM,
		"openbook":          s.OpenBook,
		"ignored":           s.Ignored,
	} {
		ch <- prometheus.MustNewConstMetric(c.engineClassifiedTotal, prometheus.CounterValue, float64(v), outcome)
	}
}

func (c *slotstrikeCollector) collectTelemetry(ch chan<- prometheus.Metric) {
	t := c.srv.telemetry
	if t == nil || !t.Enabled() {
		return
	}
	ch <- prometheus.MustNewConstMetric(c.telemetryDropped, prometheus.CounterValue, float64(t.Dropped()))
	for _, h := range t.SnapshotAll() {
		ch <- prometheus.MustNewConstMetric(c.hopSamples, prometheus.GaugeValue, float64(h.SampleCount), h.Hop)
		ch <- prometheus.MustNewConstMetric(c.hopLatency, prometheus.GaugeValue, float64(h.P50Ns), h.Hop, "p50")
		ch <- prometheus.MustNewConstMetric(c.hopLatency, prometheus.GaugeValue, float64(h.P99Ns), h.Hop, "p99")
		ch <- prometheus.MustNewConstMetric(c.hopLatency, prometheus.GaugeValue, float64(h.MaxNs), h.Hop, "max")
	}
}

func (c *slotstrikeCollector) collectRules(ch chan<- prometheus.Metric) {
	rb := c.srv.ruleBook()
	if rb == nil {
		return
	}
	ch <- prometheus.MustNewConstMetric(c.rulesActive, prometheus.GaugeValue, float64(rb.Len(rules.KindMint)), "mint")
	ch <- prometheus.MustNewConstMetric(c.rulesActive, prometheus.GaugeValue, float64(rb.Len(rules.KindDeployer)), "deployer")
}
