package mempool

import "github.com/ethereum/go-ethereum/metrics"

// MetricsListener counts lifecycle events in go-ethereum meters. Meters are
// only live if metrics.Enabled was set before the listener is created.
type MetricsListener struct {
	added    metrics.Meter
	replaced metrics.Meter
	rejected metrics.Meter
	dropped  metrics.Meter
	invalid  metrics.Meter
	canceled metrics.Meter
	culled   metrics.Meter
	mined    metrics.Meter
}

// NewMetricsListener registers the txpool meters in r. A nil r means the
// default registry.
func NewMetricsListener(r metrics.Registry) *MetricsListener {
	return &MetricsListener{
		added:    metrics.NewRegisteredMeter("txpool/added", r),
		replaced: metrics.NewRegisteredMeter("txpool/replaced", r),
		rejected: metrics.NewRegisteredMeter("txpool/rejected", r),
		dropped:  metrics.NewRegisteredMeter("txpool/dropped", r),
		invalid:  metrics.NewRegisteredMeter("txpool/invalid", r),
		canceled: metrics.NewRegisteredMeter("txpool/canceled", r),
		culled:   metrics.NewRegisteredMeter("txpool/culled", r),
		mined:    metrics.NewRegisteredMeter("txpool/mined", r),
	}
}

func (m *MetricsListener) Added(_, old *Transaction) {
	if old != nil {
		m.replaced.Mark(1)
		return
	}
	m.added.Mark(1)
}

func (m *MetricsListener) Rejected(_ *Transaction, _ error) { m.rejected.Mark(1) }
func (m *MetricsListener) Dropped(_, _ *Transaction)       { m.dropped.Mark(1) }
func (m *MetricsListener) Invalid(_ *Transaction)          { m.invalid.Mark(1) }
func (m *MetricsListener) Canceled(_ *Transaction)         { m.canceled.Mark(1) }
func (m *MetricsListener) Culled(_ *Transaction)           { m.culled.Mark(1) }
func (m *MetricsListener) Mined(_ *Transaction)            { m.mined.Mark(1) }

// StatusGauges mirrors LightStatus into gauges.
type StatusGauges struct {
	count   metrics.Gauge
	senders metrics.Gauge
	mem     metrics.Gauge
}

// NewStatusGauges registers the txpool gauges in r.
func NewStatusGauges(r metrics.Registry) *StatusGauges {
	return &StatusGauges{
		count:   metrics.NewRegisteredGauge("txpool/count", r),
		senders: metrics.NewRegisteredGauge("txpool/senders", r),
		mem:     metrics.NewRegisteredGauge("txpool/memusage", r),
	}
}

// Update records s.
func (g *StatusGauges) Update(s LightStatus) {
	g.count.Update(int64(s.TransactionCount))
	g.senders.Update(int64(s.Senders))
	g.mem.Update(int64(s.MemUsage))
}
