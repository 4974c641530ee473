// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package bridge

import (
	"math/big"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/luxfi/locker"
)

type lockerMetrics struct {
	transfersOut    *prometheus.CounterVec
	transfersIn     *prometheus.CounterVec
	amountOut       *prometheus.CounterVec
	amountIn        *prometheus.CounterVec
	rejectedCount   *prometheus.CounterVec
	refundCount     prometheus.Counter
	pendingCount    prometheus.Counter
	processedMarker *prometheus.CounterVec
}

func newLockerMetrics(chain string, registerer prometheus.Registerer) *lockerMetrics {
	constLabels := prometheus.Labels{"chain": chain}
	m := lockerMetrics{
		transfersOut: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "locker_transfer_out_count",
				Help:        "Number of transfers burned or locked and handed to the messenger",
				ConstLabels: constLabels,
			},
			[]string{"destination_chain"},
		),
		transfersIn: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "locker_transfer_in_count",
				Help:        "Number of inbound transfers minted or released",
				ConstLabels: constLabels,
			},
			[]string{"source_chain"},
		),
		amountOut: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "locker_transfer_out_amount",
				Help:        "Token units sent to other chains",
				ConstLabels: constLabels,
			},
			[]string{"destination_chain"},
		),
		amountIn: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "locker_transfer_in_amount",
				Help:        "Token units received from other chains",
				ConstLabels: constLabels,
			},
			[]string{"source_chain"},
		),
		rejectedCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "locker_rejected_count",
				Help:        "Number of rejected transfers",
				ConstLabels: constLabels,
			},
			[]string{"direction", "reason"},
		),
		refundCount: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name:        "locker_refund_count",
				Help:        "Number of burns refunded after their transfer could not be sent",
				ConstLabels: constLabels,
			},
		),
		pendingCount: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name:        "locker_pending_ledger_call_count",
				Help:        "Number of ledger calls sent without an observed outcome",
				ConstLabels: constLabels,
			},
		),
		processedMarker: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "locker_processed_marker_count",
				Help:        "Changes to the processed-message set",
				ConstLabels: constLabels,
			},
			[]string{"op"},
		),
	}

	registerer.MustRegister(m.transfersOut)
	registerer.MustRegister(m.transfersIn)
	registerer.MustRegister(m.amountOut)
	registerer.MustRegister(m.amountIn)
	registerer.MustRegister(m.rejectedCount)
	registerer.MustRegister(m.refundCount)
	registerer.MustRegister(m.pendingCount)
	registerer.MustRegister(m.processedMarker)

	return &m
}

func (m *lockerMetrics) transferredOut(chain string, amount *uint256.Int) {
	m.transfersOut.WithLabelValues(chain).Inc()
	m.amountOut.WithLabelValues(chain).Add(toFloat(amount))
}

func (m *lockerMetrics) transferredIn(chain string, amount *uint256.Int) {
	m.transfersIn.WithLabelValues(chain).Inc()
	m.amountIn.WithLabelValues(chain).Add(toFloat(amount))
}

func (m *lockerMetrics) rejected(direction string, err error) {
	m.rejectedCount.WithLabelValues(direction, locker.CodeOf(err).String()).Inc()
}

func toFloat(amount *uint256.Int) float64 {
	f, _ := new(big.Float).SetInt(amount.ToBig()).Float64()
	return f
}
