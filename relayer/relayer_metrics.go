// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package relayer

import (
	"github.com/prometheus/client_golang/prometheus"
)

type relayerMetrics struct {
	successfulRelayMessageCount *prometheus.CounterVec
	deliverMessageLatencyMS     *prometheus.GaugeVec
	failedRelayMessageCount     *prometheus.CounterVec
	deferredRevealCount         *prometheus.CounterVec
}

func newRelayerMetrics(registerer prometheus.Registerer) *relayerMetrics {
	m := relayerMetrics{
		successfulRelayMessageCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "successful_relay_message_count",
				Help: "Number of envelopes that relayed successfully",
			},
			[]string{"destination_chain", "source_chain"},
		),
		deliverMessageLatencyMS: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "deliver_message_latency_ms",
				Help: "Latency of delivering an envelope in milliseconds",
			},
			[]string{"destination_chain", "source_chain"},
		),
		failedRelayMessageCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "failed_relay_message_count",
				Help: "Number of envelopes that failed to relay",
			},
			[]string{"destination_chain", "source_chain", "failure_reason"},
		),
		deferredRevealCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deferred_reveal_count",
				Help: "Number of relay passes held back by a reveal delay",
			},
			[]string{"destination_chain", "source_chain"},
		),
	}

	registerer.MustRegister(m.successfulRelayMessageCount)
	registerer.MustRegister(m.deliverMessageLatencyMS)
	registerer.MustRegister(m.failedRelayMessageCount)
	registerer.MustRegister(m.deferredRevealCount)

	return &m
}
