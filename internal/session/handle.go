package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/moolen/causeway/internal/audit"
	"github.com/moolen/causeway/internal/critic"
	"github.com/moolen/causeway/internal/diaggraph"
	"github.com/moolen/causeway/internal/evidence"
	"github.com/moolen/causeway/internal/logging"
	"github.com/moolen/causeway/internal/models"
	"github.com/moolen/causeway/internal/router"
	"github.com/moolen/causeway/internal/supervisor"
	"github.com/moolen/causeway/internal/tools"
)

var (
	ErrNotSupervised = errors.New("session does not run the application-diagnosis workflow")
	ErrNotGraph      = errors.New("session does not run the cluster diagnostic graph")
)

// Session is the persisted identity of one diagnosis session.
type Session struct {
	ID        string                 `json:"id"`
	Incident  models.IncidentPointer `json:"incident"`
	CreatedAt time.Time              `json:"created_at"`
}

// Handle is the manager's view of one live session. All state behind
// it is owned by this session and guarded by its lock.
type Handle struct {
	mu      sync.Mutex
	session Session

	// Exactly one of supervisor or runner drives this session.
	supervisor *supervisor.Supervisor
	runner     *diaggraph.Runner

	executor *tools.Executor
	router   *router.Router
	events   *EventEmitter
	critic   *critic.Critic
	auditLog *audit.Store
	logger   *logging.Logger

	// Evidence state for graph-driven sessions; supervised sessions
	// keep theirs inside the supervisor.
	deduper *evidence.Deduper
	ledger  *evidence.Ledger
	graph   *evidence.Graph

	lastState *diaggraph.State
	guardPrev *models.GuardScanResult

	// ctx is cancelled when the session expires; all in-flight work
	// derives from it.
	ctx    context.Context
	cancel context.CancelFunc
	tasks  sync.WaitGroup
}

// Session returns the session identity.
func (h *Handle) Session() Session {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.session
}

// ID returns the session id.
func (h *Handle) ID() string { return h.session.ID }

// Events returns the session event emitter.
func (h *Handle) Events() *EventEmitter { return h.events }

// Executor returns the session tool executor.
func (h *Handle) Executor() *tools.Executor { return h.executor }

// Supervisor returns the workflow supervisor, or nil for graph-driven
// sessions.
func (h *Handle) Supervisor() *supervisor.Supervisor { return h.supervisor }

// Ledger returns the session confidence ledger.
func (h *Handle) Ledger() *evidence.Ledger {
	if h.supervisor != nil {
		return h.supervisor.Ledger()
	}
	return h.ledger
}

// Graph returns the session evidence graph.
func (h *Handle) Graph() *evidence.Graph {
	if h.supervisor != nil {
		return h.supervisor.Graph()
	}
	return h.graph
}

// Pins returns all persisted pins for the session.
func (h *Handle) Pins() []models.EvidencePin {
	if h.supervisor != nil {
		return h.supervisor.Pins()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pins()
}

// pins returns the graph-session pin list. Caller holds mu.
func (h *Handle) pins() []models.EvidencePin {
	snap := h.graph.Snapshot()
	out := make([]models.EvidencePin, 0, len(snap.Nodes))
	for _, node := range snap.Nodes {
		out = append(out, node.Pin)
	}
	return out
}

// LastState returns the most recent diagnostic graph state, or nil.
func (h *Handle) LastState() *diaggraph.State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastState
}

// taskContext derives a context that is cancelled by the caller, the
// session's expiry, whichever comes first.
func (h *Handle) taskContext(ctx context.Context) (context.Context, context.CancelFunc) {
	tctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(h.ctx, cancel)
	return tctx, func() {
		stop()
		cancel()
	}
}

// Persist implements router.Sink: admitted pins land in the session's
// evidence state and the tool execution is audited.
func (h *Handle) Persist(pin models.EvidencePin) (string, bool) {
	var (
		nodeID   string
		admitted bool
	)
	if h.supervisor != nil {
		nodeID, admitted = h.supervisor.Ingest(pin)
	} else {
		h.mu.Lock()
		if h.deduper.Admit(pin) {
			h.ledger.AddPins([]models.EvidencePin{pin})
			nodeID = h.graph.AddEvidence(pin, supervisor.NodeTypeFor(pin))
			admitted = true
		}
		h.mu.Unlock()
	}

	if admitted && h.auditLog != nil {
		err := h.auditLog.Record(context.Background(), audit.EntityTool, h.session.ID,
			audit.ActionExecuted, pin.SourceAgent, map[string]string{"intent": pin.SourceTool})
		if err != nil {
			h.logger.Warn("audit record failed: %v", err)
		}
	}
	return nodeID, admitted
}

// Investigate runs one router request for this session.
func (h *Handle) Investigate(ctx context.Context, req router.Request) (router.Response, error) {
	ctx, cancel := h.taskContext(ctx)
	defer cancel()
	return h.router.Investigate(ctx, req)
}

// RunDiagnosis drives the supervisor workflow until it completes or a
// pending attestation gate blocks it.
func (h *Handle) RunDiagnosis(ctx context.Context) error {
	if h.supervisor == nil {
		return ErrNotSupervised
	}
	ctx, cancel := h.taskContext(ctx)
	defer cancel()
	return h.supervisor.Run(ctx)
}

// RunGraph executes one cluster diagnostic graph pass in the session's
// scan mode. Guard runs carry the previous scan forward for deltas.
func (h *Handle) RunGraph(ctx context.Context) (*diaggraph.State, error) {
	if h.runner == nil {
		return nil, ErrNotGraph
	}
	ctx, cancel := h.taskContext(ctx)
	defer cancel()

	h.mu.Lock()
	incident := h.session.Incident
	prev := h.guardPrev
	h.mu.Unlock()

	state, err := h.runner.Run(ctx, h.session.ID, graphScope(incident), incident.ScanMode, prev)

	// A failed run may still carry partial state from the nodes that
	// completed; keep it so the report degrades instead of vanishing.
	if state != nil {
		h.mu.Lock()
		h.lastState = state
		if state.Guard != nil {
			h.guardPrev = state.Guard
		}
		h.mu.Unlock()
	}
	if err != nil {
		return state, err
	}

	h.events.Emit("diaggraph", "scan_complete",
		fmt.Sprintf("%s scan finished with %d issue clusters", incident.ScanMode, len(state.Clusters)))
	return state, nil
}

// graphScope derives the diagnostic scope from the incident pointer.
// Guard scans are always cluster-wide.
func graphScope(incident models.IncidentPointer) models.DiagnosticScope {
	if incident.ScanMode == models.ScanModeGuard || incident.Namespace == "" {
		return models.DiagnosticScope{Level: models.ScopeCluster, IncludeControlPlane: true}
	}
	return models.DiagnosticScope{
		Level:      models.ScopeNamespace,
		Namespaces: []string{incident.Namespace},
	}
}

// ReviewEvidence runs one critic pass over all pins still pending
// review, applies the verdicts, and refreshes the ledger's critic
// adjustment. It returns the number of pins reviewed.
func (h *Handle) ReviewEvidence(ctx context.Context) int {
	if h.supervisor == nil || h.critic == nil {
		return 0
	}
	ctx, cancel := h.taskContext(ctx)
	defer cancel()

	pins := h.supervisor.Pins()
	reviewed := 0
	for _, pin := range pins {
		if pin.ValidationStatus != models.ValidationPendingCritic {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		verdict := h.critic.ValidateDelta(ctx, pin, pins, nil)
		h.supervisor.MutatePin(pin.ID, func(p *models.EvidencePin) {
			critic.Apply(p, verdict)
		})
		reviewed++
	}

	h.supervisor.Ledger().SetCriticAdjustment(critic.LedgerAdjustment(h.supervisor.Pins()))
	if reviewed > 0 {
		h.events.Emit("critic", "review_complete", fmt.Sprintf("%d pins reviewed", reviewed))
	}
	return reviewed
}

// SpawnReview runs ReviewEvidence in the background. The task is
// tracked and cancelled when the session expires.
func (h *Handle) SpawnReview() {
	h.tasks.Add(1)
	go func() {
		defer h.tasks.Done()
		h.ReviewEvidence(h.ctx)
	}()
}

// Attest records a human decision on a pending attestation gate.
func (h *Handle) Attest(gateType models.GateType, decision models.GateDecision, decidedBy, notes string) error {
	if h.supervisor == nil {
		return ErrNotSupervised
	}
	if err := h.supervisor.AcknowledgeAttestation(gateType, decision, decidedBy, notes); err != nil {
		return err
	}
	if h.auditLog != nil {
		err := h.auditLog.Record(context.Background(), audit.EntityAttestation, h.session.ID,
			audit.ActionDecided, decidedBy, map[string]string{
				"gate_type": string(gateType),
				"decision":  string(decision),
			})
		if err != nil {
			h.logger.Warn("audit record failed: %v", err)
		}
	}
	h.events.Emit("supervisor", "attestation_decided", string(gateType))
	return nil
}

// Router returns the session investigation router.
func (h *Handle) Router() *router.Router { return h.router }
