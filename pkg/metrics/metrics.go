package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Define global variables for metrics.
// We use 'promauto' which automatically registers metrics without complex initialization.

var (
	// 1. Inference Runs Total (Counter)
	// Counts how many schedules complete, labeled by mode and outcome.
	InferenceRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ml2lab_inference_runs_total",
			Help: "Total number of inference runs executed",
		},
		[]string{"mode", "outcome"}, // Labels
	)

	// 2. Inference Run Duration (Histogram)
	// Measures how long a full two-sweep schedule takes.
	// Message passing on small trees lands in the microsecond buckets;
	// the upper buckets catch large networks and parallel overhead.
	InferenceRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "ml2lab_inference_run_duration_seconds",
			Help: "Duration of inference runs in seconds",
			// Custom buckets covering from microseconds (tiny trees) to seconds (wide fan-outs)
			Buckets: []float64{0.00001, 0.0001, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
		},
		[]string{"mode"},
	)

	// 3. Messages Passed (Counter)
	// Tracks the total number of messages delivered across all runs.
	// A completed run contributes exactly two messages per edge.
	MessagesPassedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ml2lab_messages_passed_total",
			Help: "Total number of messages passed between nodes",
		},
		[]string{"mode"},
	)

	// 4. Graph Size (Gauge)
	// Tracks the number of nodes in each loaded network.
	GraphNodes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ml2lab_graph_nodes",
			Help: "Number of nodes in a loaded factor graph",
		},
		[]string{"network"},
	)
)
