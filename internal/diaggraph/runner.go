package diaggraph

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/moolen/causeway/internal/agents"
	"github.com/moolen/causeway/internal/causal"
	"github.com/moolen/causeway/internal/correlation"
	"github.com/moolen/causeway/internal/logging"
	"github.com/moolen/causeway/internal/metrics"
	"github.com/moolen/causeway/internal/models"
	"github.com/moolen/causeway/internal/synthesis"
	"github.com/moolen/causeway/internal/topology"
)

// ErrGuardScopeNotCluster rejects guard scans over partial scopes.
var ErrGuardScopeNotCluster = errors.New("guard mode requires a cluster-level scope")

// Runner executes the diagnostic graph.
type Runner struct {
	resolver    *topology.Resolver
	correlator  *correlation.Correlator
	firewall    *causal.Firewall
	agents      map[models.Domain]*agents.Agent
	synthesizer *synthesis.Synthesizer
	deadline    time.Duration
	logger      *logging.Logger
}

// NewRunner wires the graph's node implementations together.
func NewRunner(resolver *topology.Resolver, correlator *correlation.Correlator,
	firewall *causal.Firewall, agentSet map[models.Domain]*agents.Agent,
	synthesizer *synthesis.Synthesizer, deadline time.Duration) *Runner {
	if deadline <= 0 {
		deadline = 180 * time.Second
	}
	return &Runner{
		resolver:    resolver,
		correlator:  correlator,
		firewall:    firewall,
		agents:      agentSet,
		synthesizer: synthesizer,
		deadline:    deadline,
		logger:      logging.GetLogger("diaggraph"),
	}
}

// Run executes the graph for one session. prevGuard carries the
// previous guard scan for delta computation and may be nil.
func (r *Runner) Run(ctx context.Context, sessionID string, scope models.DiagnosticScope,
	mode Mode, prevGuard *models.GuardScanResult) (*State, error) {
	if mode == models.ScanModeGuard && scope.Level != models.ScopeCluster {
		return nil, ErrGuardScopeNotCluster
	}

	ctx, cancel := context.WithTimeout(ctx, r.deadline)
	defer cancel()

	state := newState(sessionID, scope, mode)

	if err := r.traced(ctx, state, "topology_resolver", TimeoutTopology, func(ctx context.Context) error {
		snap, err := r.resolver.Snapshot(ctx, sessionID)
		if err != nil {
			return err
		}
		state.Snapshot = snap
		state.Pruned = topology.Prune(snap, scope)
		return nil
	}); err != nil {
		return state, err
	}

	if err := r.traced(ctx, state, "alert_correlator", TimeoutCorrelator, func(ctx context.Context) error {
		state.Alerts = r.correlator.ExtractAlerts(state.Pruned)
		state.Coverage = topology.Coverage(state.Pruned, r.correlator.ExtractAlerts(state.Snapshot))
		state.Clusters = r.correlator.Correlate(state.Pruned, state.Alerts)
		return nil
	}); err != nil {
		return state, err
	}

	if err := r.traced(ctx, state, "causal_firewall", TimeoutFirewall, func(ctx context.Context) error {
		state.SearchSpace = r.firewall.BuildSearchSpace(state.Clusters, r.topologyContext(state))
		return nil
	}); err != nil {
		return state, err
	}

	r.fanOut(ctx, state)

	if err := r.traced(ctx, state, "synthesize", TimeoutSynthesize, func(ctx context.Context) error {
		state.Synthesis = r.synthesizer.Run(ctx, synthesis.Input{
			Reports:     state.ReportList(),
			Clusters:    state.Clusters,
			SearchSpace: state.SearchSpace,
		})
		return nil
	}); err != nil {
		return state, err
	}

	if state.Synthesis.ReDispatchNeeded && state.ReDispatchCount < MaxReDispatches {
		state.ReDispatchCount++
		r.logger.Info("re-dispatching domain agents (round %d)", state.ReDispatchCount)
		r.fanOut(ctx, state)
		_ = r.traced(ctx, state, "synthesize", TimeoutSynthesize, func(ctx context.Context) error {
			state.Synthesis = r.synthesizer.Run(ctx, synthesis.Input{
				Reports:     state.ReportList(),
				Clusters:    state.Clusters,
				SearchSpace: state.SearchSpace,
			})
			return nil
		})
	}

	if mode == models.ScanModeGuard {
		if err := r.traced(ctx, state, "guard_formatter", TimeoutGuardFormat, func(ctx context.Context) error {
			guard := FormatGuardScan(state, prevGuard)
			state.Guard = &guard
			return nil
		}); err != nil {
			return state, err
		}
	}

	return state, nil
}

// fanOut runs the four domain agents in parallel. Domains excluded by
// the scope filter stay SKIPPED; agent failures are captured in their
// reports, never as graph errors.
func (r *Runner) fanOut(ctx context.Context, state *State) {
	wanted := make(map[models.Domain]bool, len(state.Scope.Domains))
	for _, d := range state.Scope.Domains {
		wanted[d] = true
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, domain := range GraphDomains {
		if len(state.Scope.Domains) > 0 && !wanted[domain] {
			state.setReport(models.DomainReport{Domain: domain, Status: models.StatusSkipped})
			continue
		}
		agent, ok := r.agents[domain]
		if !ok {
			state.setReport(models.DomainReport{Domain: domain, Status: models.StatusSkipped})
			continue
		}

		domain := domain
		g.Go(func() error {
			nodeCtx, cancel := context.WithTimeout(gctx, agentTimeout(domain))
			defer cancel()

			started := time.Now()
			report := agent.Run(nodeCtx, state.Scope, state.Pruned)
			state.setReport(report)
			state.addTrace(models.NodeTrace{
				Node:       string(domain) + "_agent",
				Status:     report.Status,
				Reason:     report.FailureReason,
				DurationMs: time.Since(started).Milliseconds(),
				StartedAt:  started,
			})
			metrics.GraphNodeDuration.WithLabelValues(string(domain)+"_agent", string(report.Status)).
				Observe(time.Since(started).Seconds())
			return nil
		})
	}
	_ = g.Wait()
}

// traced wraps one node execution: per-node timeout, trace record,
// sanitized failure detail.
func (r *Runner) traced(ctx context.Context, state *State, name string, timeout time.Duration, fn func(context.Context) error) error {
	nodeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	started := time.Now()
	r.logger.Debug("node %s: RUNNING", name)

	err := fn(nodeCtx)
	trace := models.NodeTrace{
		Node:       name,
		StartedAt:  started,
		DurationMs: time.Since(started).Milliseconds(),
	}

	switch {
	case err == nil:
		trace.Status = models.StatusSuccess
	case errors.Is(err, context.DeadlineExceeded) || nodeCtx.Err() != nil:
		trace.Status = models.StatusFailed
		trace.Reason = models.FailureTimeout
		err = fmt.Errorf("node %s timed out", name)
	default:
		trace.Status = models.StatusFailed
		trace.Reason = models.FailureException
		trace.Detail = name + " execution failed"
		r.logger.Error("node %s failed: %v", name, err)
		err = fmt.Errorf("node %s failed", name)
	}

	state.addTrace(trace)
	metrics.GraphNodeDuration.WithLabelValues(name, string(trace.Status)).
		Observe(time.Since(started).Seconds())
	return err
}

// topologyContext derives the soft-rule inputs from the pruned graph:
// a node has cascading effects when it hosts an alerting workload, and
// a storage backend counts as healthy when no storage-kind resource in
// the graph is alerting besides the PVC itself.
func (r *Runner) topologyContext(state *State) causal.TopologyContext {
	alerting := make(map[string]bool, len(state.Alerts))
	for _, alert := range state.Alerts {
		alerting[alert.ResourceKey] = true
	}

	cascading := make(map[string]bool)
	for _, edge := range state.Pruned.Edges {
		if edge.Relation == models.RelationHosts && alerting[edge.From] && alerting[edge.To] {
			cascading[edge.From] = true
		}
	}

	storageAlerting := false
	for _, alert := range state.Alerts {
		kind := models.KindFromKey(alert.ResourceKey)
		if kind == "pv" || kind == "sc" {
			storageAlerting = true
			break
		}
	}
	backendHealthy := make(map[string]bool)
	if !storageAlerting {
		for _, alert := range state.Alerts {
			if models.KindFromKey(alert.ResourceKey) == "pvc" {
				backendHealthy[alert.ResourceKey] = true
			}
		}
	}

	return causal.TopologyContext{
		NodeHasCascadingEffects: cascading,
		StorageBackendHealthy:   backendHealthy,
	}
}
