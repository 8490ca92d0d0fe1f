// Package infer provides the high-level, embedded interface for running
// exact inference over tree-structured factor graphs.
//
// It wraps the message-passing machinery of pkg/factorgraph with run
// bookkeeping: structured logging, Prometheus metrics, and result reports
// keyed by variable name, so applications can ask questions of a network
// without touching nodes or messages directly.
//
// Basic usage:
//
//	opts := infer.DefaultOptions()
//	opts.Schedule = order
//	eng, err := infer.New(g, opts)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	report, err := eng.Marginals()
package infer

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chielk/ml2-lab/pkg/factorgraph"
	"github.com/chielk/ml2-lab/pkg/metrics"
)

// Options configures the behavior of the Engine, including scheduling and
// observability.
type Options struct {
	// Network is the label used for logs and metrics (default: "unnamed").
	Network string

	// Logger receives structured per-run logs. Defaults to slog.Default().
	Logger *slog.Logger

	// Parallel fans a node's outgoing messages out across goroutines.
	// Results are identical either way; the sweeps themselves stay ordered.
	Parallel bool

	// Workers bounds the fan-out goroutines when Parallel is set.
	// Zero means one worker per CPU.
	Workers int

	// Schedule is the node order the two-sweep runs follow. Required: a
	// valid linearization of the tree, leaves toward the root, such as the
	// one a network definition carries in its 'order' list.
	Schedule []factorgraph.NodeID
}

// DefaultOptions returns a standard configuration suitable for most use cases.
// The caller still has to fill in Schedule before calling New.
//
// Defaults:
//   - Network: "unnamed"
//   - Logger: slog.Default()
//   - Sequential message fan-out
func DefaultOptions() Options {
	return Options{
		Network: "unnamed",
	}
}

// Engine is the main entry point for inference.
// It coordinates a built factor graph and a message-passing schedule.
//
// Runs are serialized: concurrent calls to Marginals or MAPState block
// each other, so a single Engine is safe to share between goroutines.
type Engine struct {
	// Graph is the underlying factor graph.
	// While exported, it is recommended to set evidence through Engine
	// methods (Observe, Forget) so that name lookups are checked.
	Graph *factorgraph.Graph

	opts     Options
	log      *slog.Logger
	schedule []factorgraph.NodeID

	// Mutex serializing runs. A run rewrites every message in the graph,
	// so two interleaved runs would mix modes.
	runMu sync.Mutex
}

// New initializes an Engine for the given graph.
//
// It performs the following actions:
// 1. Validates that the graph has at least one variable and that
// Options.Schedule names an order to run.
// 2. Registers the graph size with the metrics registry.
//
// The graph's topology must not change after this call; evidence may.
func New(g *factorgraph.Graph, opts Options) (*Engine, error) {
	if g == nil {
		return nil, fmt.Errorf("graph is nil")
	}
	if len(g.Variables()) == 0 {
		return nil, fmt.Errorf("graph has no variables")
	}
	if len(opts.Schedule) == 0 {
		return nil, fmt.Errorf("no schedule provided; a node order is required")
	}
	if opts.Network == "" {
		opts.Network = "unnamed"
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	// Record the graph size for this network.
	metrics.GraphNodes.WithLabelValues(opts.Network).Set(float64(g.Len()))

	log := logger.With("network", opts.Network)
	log.Debug("Engine ready", "nodes", g.Len(), "edges", g.Edges(), "schedule", len(opts.Schedule))

	return &Engine{
		Graph:    g,
		opts:     opts,
		log:      log,
		schedule: opts.Schedule,
	}, nil
}

// Observe pins the named variable to the given state. The evidence stays in
// effect across runs until Forget or Reset.
func (e *Engine) Observe(name string, state int) error {
	v, ok := e.Graph.VariableByName(name)
	if !ok {
		return fmt.Errorf("unknown variable '%s'", name)
	}
	return v.SetObserved(state)
}

// Forget returns the named variable to latent.
func (e *Engine) Forget(name string) error {
	v, ok := e.Graph.VariableByName(name)
	if !ok {
		return fmt.Errorf("unknown variable '%s'", name)
	}
	v.SetLatent()
	return nil
}

// Reset clears all messages and all evidence, returning the graph to its
// freshly built state.
func (e *Engine) Reset() {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	e.Graph.Reset()
}

// MarginalReport holds the outcome of a sum-product run.
type MarginalReport struct {
	// RunID identifies the run in logs.
	RunID string

	// Z is the total mass shared by every marginal: one for a latent
	// network of proper conditionals, the evidence weight otherwise.
	Z float64

	// Marginals maps each variable name to its normalized distribution.
	Marginals map[string][]float64

	// Stats counts the messages passed during the run.
	Stats factorgraph.RunStats

	// Elapsed is the wall-clock duration of the run.
	Elapsed time.Duration
}

// Marginals runs sum-product message passing and reports the posterior
// distribution of every variable, all normalized by the same Z.
func (e *Engine) Marginals() (*MarginalReport, error) {
	runID, stats, elapsed, err := e.run(factorgraph.SumProduct)
	if err != nil {
		return nil, err
	}

	report := &MarginalReport{
		RunID:     runID,
		Marginals: make(map[string][]float64),
		Stats:     stats,
		Elapsed:   elapsed,
	}

	// The first variable fixes Z; the rest reuse it so that one shared
	// mass normalizes the whole report.
	for i, v := range e.Graph.Variables() {
		var dist factorgraph.Message
		if i == 0 {
			dist, report.Z, err = v.Marginal()
		} else {
			dist, err = v.MarginalWithZ(report.Z)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read marginal of '%s': %w", v.Name(), err)
		}
		report.Marginals[v.Name()] = dist
	}
	return report, nil
}

// MAPReport holds the outcome of a max-sum run.
type MAPReport struct {
	// RunID identifies the run in logs.
	RunID string

	// States maps each variable name to its most probable state index.
	States map[string]int

	// Stats counts the messages passed during the run.
	Stats factorgraph.RunStats

	// Elapsed is the wall-clock duration of the run.
	Elapsed time.Duration
}

// MAPState runs max-sum message passing and reports the jointly most
// probable state of every variable.
func (e *Engine) MAPState() (*MAPReport, error) {
	runID, stats, elapsed, err := e.run(factorgraph.MaxSum)
	if err != nil {
		return nil, err
	}

	report := &MAPReport{
		RunID:   runID,
		States:  make(map[string]int),
		Stats:   stats,
		Elapsed: elapsed,
	}
	for _, v := range e.Graph.Variables() {
		best, err := v.BestValue()
		if err != nil {
			return nil, fmt.Errorf("failed to read best value of '%s': %w", v.Name(), err)
		}
		report.States[v.Name()] = best
	}
	return report, nil
}

// run executes one full two-sweep schedule in the given mode and records
// the outcome. A completed run overwrites every message in the graph, so
// back-to-back runs never mix modes.
func (e *Engine) run(mode factorgraph.Mode) (string, factorgraph.RunStats, time.Duration, error) {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	runID := uuid.NewString()
	start := time.Now()

	var stats factorgraph.RunStats
	var err error
	if e.opts.Parallel {
		stats, err = e.Graph.RunScheduleParallel(mode, e.schedule, e.opts.Workers)
	} else {
		stats, err = e.Graph.RunSchedule(mode, e.schedule)
	}
	elapsed := time.Since(start)

	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.InferenceRunsTotal.WithLabelValues(string(mode), outcome).Inc()
	metrics.InferenceRunDuration.WithLabelValues(string(mode)).Observe(elapsed.Seconds())
	metrics.MessagesPassedTotal.WithLabelValues(string(mode)).Add(float64(stats.Messages))

	if err != nil {
		e.log.Error("Inference run failed", "run_id", runID, "mode", mode, "error", err)
		return "", stats, elapsed, fmt.Errorf("failed to run %s: %w", mode, err)
	}
	e.log.Info("Inference run complete",
		"run_id", runID, "mode", mode,
		"messages", stats.Messages, "elapsed", elapsed)
	return runID, stats, elapsed, nil
}
