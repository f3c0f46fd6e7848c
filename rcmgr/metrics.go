package rcmgr

import "github.com/prometheus/client_golang/prometheus"

// metricsSet holds the gauges optionally exported by WithMetrics.
type metricsSet struct {
	inboundConns    prometheus.Gauge
	outboundConns   prometheus.Gauge
	inboundStreams  prometheus.Gauge
	outboundStreams prometheus.Gauge
	memoryBytes     prometheus.Gauge
	peerCount       prometheus.Gauge
}

// WithMetrics registers system-scope gauges on reg and wires them to be
// refreshed after every admission/release. Call once, before the manager
// is shared across goroutines.
func (m *Manager) WithMetrics(reg prometheus.Registerer) error {
	set := &metricsSet{
		inboundConns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "libp2p", Subsystem: "rcmgr", Name: "system_inbound_conns",
		}),
		outboundConns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "libp2p", Subsystem: "rcmgr", Name: "system_outbound_conns",
		}),
		inboundStreams: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "libp2p", Subsystem: "rcmgr", Name: "system_inbound_streams",
		}),
		outboundStreams: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "libp2p", Subsystem: "rcmgr", Name: "system_outbound_streams",
		}),
		memoryBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "libp2p", Subsystem: "rcmgr", Name: "system_memory_bytes",
		}),
		peerCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "libp2p", Subsystem: "rcmgr", Name: "tracked_peers",
		}),
	}

	for _, c := range []prometheus.Collector{
		set.inboundConns, set.outboundConns, set.inboundStreams,
		set.outboundStreams, set.memoryBytes, set.peerCount,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}

	m.mu.Lock()
	m.metrics = set
	m.recordMetrics()
	m.mu.Unlock()
	return nil
}

// recordMetrics refreshes gauges from current state. Caller holds m.mu.
func (m *Manager) recordMetrics() {
	if m.metrics == nil {
		return
	}
	m.metrics.inboundConns.Set(float64(m.system.InboundConns))
	m.metrics.outboundConns.Set(float64(m.system.OutboundConns))
	m.metrics.inboundStreams.Set(float64(m.system.InboundStreams))
	m.metrics.outboundStreams.Set(float64(m.system.OutboundStreams))
	m.metrics.memoryBytes.Set(float64(m.system.MemoryBytes))
	m.metrics.peerCount.Set(float64(len(m.peers)))
}
