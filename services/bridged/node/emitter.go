package node

import (
	"stakebridge/core/events"
	"stakebridge/observability"
)

// metricsEmitter turns gateway events into Prometheus samples.
type metricsEmitter struct {
	gateway *observability.GatewayMetrics
}

func newMetricsEmitter(m *observability.GatewayMetrics) metricsEmitter {
	return metricsEmitter{gateway: m}
}

func (m metricsEmitter) Emit(evt events.Event) {
	if evt == nil {
		return
	}
	observability.Events().RecordEvent(evt.EventType())
	switch e := evt.(type) {
	case events.StakeProgressed:
		m.gateway.RecordVolume("stake", e.Amount)
	case events.StakeReverted:
		m.gateway.RecordVolume("revert", e.Amount)
	case events.UnstakeProgressed:
		m.gateway.RecordVolume("unstake", e.UnstakeAmount)
		m.gateway.RecordVolume("reward", e.Reward)
	case events.GatewayProven:
		m.gateway.RecordProvenHeight(e.BlockHeight)
	}
}
