// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ToolCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assistant_tool_calls_total",
		Help: "Tool invocations requested by the assistant, by tool and outcome.",
	}, []string{"tool", "outcome"})

	ToolRounds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "assistant_tool_rounds",
		Help:    "Tool rounds needed before the assistant produced a final answer.",
		Buckets: []float64{0, 1, 2, 3, 4, 6, 8},
	})

	TurnFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assistant_turn_failures_total",
		Help: "User messages that could not be answered, by reason.",
	}, []string{"reason"})

	RetrievedChunks = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "manual_search_chunks",
		Help:    "Chunks returned by a manual search, by customer product family.",
		Buckets: []float64{0, 1, 3, 5, 10, 15},
	}, []string{"family"})

	Registrations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "product_registrations_total",
		Help: "Product registrations written, by entry point.",
	}, []string{"source"})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chat_sessions_active",
		Help: "Chat sessions currently held in memory.",
	})
)
