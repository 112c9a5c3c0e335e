// Package supervisor drives the application-diagnosis workflow: a
// deterministic phase machine that dispatches the log, metrics, k8s,
// tracing, and code agents against one incident, folds their tool
// results into evidence pins, and gates low-confidence progress behind
// human attestation.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/moolen/causeway/internal/evidence"
	"github.com/moolen/causeway/internal/logging"
	"github.com/moolen/causeway/internal/models"
	"github.com/moolen/causeway/internal/tools"
)

// ConfidenceGate is the overall-confidence threshold (0-100) below
// which a phase transition requires human attestation.
const ConfidenceGate = 50

// EventSink receives workflow events; the session event emitter
// implements it. A nil sink is valid.
type EventSink interface {
	Emit(agentName, eventType, message string)
}

var (
	ErrNoPendingGate    = errors.New("no pending attestation gate of that type")
	ErrGateNotApproved  = errors.New("remediation requires an approved pre_remediation gate")
	ErrNotDiagnosisDone = errors.New("remediation can only be proposed after diagnosis completes")
)

// Supervisor owns one session's application-diagnosis workflow.
type Supervisor struct {
	mu        sync.Mutex
	sessionID string
	incident  models.IncidentPointer
	phase     models.Phase

	executor *tools.Executor
	ledger   *evidence.Ledger
	deduper  *evidence.Deduper
	graph    *evidence.Graph
	sink     EventSink
	logger   *logging.Logger

	pins      []models.EvidencePin
	pinNodes  map[string]string
	manifest  models.ReasoningManifest
	gates     []models.AttestationGate
	completed []AgentName
}

// New creates a supervisor in the INITIAL phase with its own evidence
// state.
func New(sessionID string, incident models.IncidentPointer, executor *tools.Executor, sink EventSink) *Supervisor {
	return &Supervisor{
		sessionID: sessionID,
		incident:  incident,
		phase:     models.PhaseInitial,
		executor:  executor,
		ledger:    evidence.NewLedger(),
		deduper:   evidence.NewDeduper(),
		graph:     evidence.NewGraph(),
		sink:      sink,
		logger:    logging.GetLogger("supervisor"),
		pinNodes:  make(map[string]string),
		manifest:  models.ReasoningManifest{SessionID: sessionID},
	}
}

// Phase returns the current workflow phase.
func (s *Supervisor) Phase() models.Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Ledger exposes the session confidence ledger.
func (s *Supervisor) Ledger() *evidence.Ledger { return s.ledger }

// Graph exposes the session evidence graph.
func (s *Supervisor) Graph() *evidence.Graph { return s.graph }

// Pins returns a copy of all persisted pins in arrival order.
func (s *Supervisor) Pins() []models.EvidencePin {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.EvidencePin(nil), s.pins...)
}

// Manifest returns a copy of the reasoning manifest.
func (s *Supervisor) Manifest() models.ReasoningManifest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := models.ReasoningManifest{SessionID: s.manifest.SessionID}
	out.Steps = append(out.Steps, s.manifest.Steps...)
	return out
}

// Gates returns a copy of all attestation gates, decided or pending.
func (s *Supervisor) Gates() []models.AttestationGate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.AttestationGate(nil), s.gates...)
}

// Status summarizes the workflow for the transport.
type Status struct {
	Phase           models.Phase `json:"phase"`
	Confidence      float64      `json:"confidence"`
	AgentsCompleted []AgentName  `json:"agents_completed,omitempty"`
	PinCount        int          `json:"pin_count"`
	StepCount       int          `json:"step_count"`
	PendingGate     bool         `json:"pending_gate"`
}

// Status returns the current workflow summary.
func (s *Supervisor) Status() Status {
	snapshot := s.ledger.Snapshot()
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		Phase:           s.phase,
		Confidence:      snapshot.WeightedFinal * 100,
		AgentsCompleted: append([]AgentName(nil), s.completed...),
		PinCount:        len(s.pins),
		StepCount:       len(s.manifest.Steps),
		PendingGate:     s.pendingGateLocked() != nil,
	}
}

// Run advances the workflow until diagnosis completes, a gate blocks
// it, or the context is cancelled. It is safe to call again after an
// attestation decision to resume.
func (s *Supervisor) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		done, blocked, err := s.Step(ctx)
		if err != nil {
			return err
		}
		if done || blocked {
			return nil
		}
	}
}

// Step executes one dispatch round. It reports done=true once the
// workflow reached DIAGNOSIS_COMPLETE (or later), and blocked=true
// when a pending attestation gate must be decided first.
func (s *Supervisor) Step(ctx context.Context) (done, blocked bool, err error) {
	s.mu.Lock()
	if s.pendingGateLocked() != nil {
		s.mu.Unlock()
		return false, true, nil
	}
	phase := s.phase
	s.mu.Unlock()

	switch phase {
	case models.PhaseDiagnosisComplete, models.PhaseFixInProgress, models.PhaseComplete:
		return true, false, nil
	}

	batch := Dispatch(phase, s.incident)
	if len(batch) == 0 {
		s.finishDiagnosis()
		return true, false, nil
	}

	s.mu.Lock()
	if s.phase == models.PhaseInitial {
		s.phase = models.PhaseCollectingContext
	}
	s.mu.Unlock()

	batchPins := s.runBatch(ctx, batch)
	confidence := s.ledger.Snapshot().WeightedFinal * 100

	decision := "proceed"
	reasoning := fmt.Sprintf("dispatched %d agents, confidence %.0f", len(batch), confidence)
	if confidence < ConfidenceGate {
		decision = "ask_user"
		reasoning = fmt.Sprintf("confidence %.0f below threshold %d, pausing for attestation", confidence, ConfidenceGate)
		s.openGate(models.GateDiscoveryComplete, batchPins)
	}

	s.mu.Lock()
	refs := make([]string, 0, len(batchPins))
	for _, pin := range batchPins {
		refs = append(refs, pin.ID)
	}
	s.manifest.Steps = append(s.manifest.Steps, models.ReasoningStep{
		Number:               len(s.manifest.Steps) + 1,
		Timestamp:            time.Now().UTC(),
		Decision:             decision,
		Reasoning:            reasoning,
		EvidenceConsidered:   refs,
		ConfidenceAtStep:     confidence,
		AlternativesRejected: alternativesTo(batch),
	})
	s.phase = phaseAfter(batch)
	s.completed = append(s.completed, batch...)
	blocked = s.pendingGateLocked() != nil
	s.mu.Unlock()

	return false, blocked, ctx.Err()
}

// runBatch executes one agent batch in parallel and returns the pins
// that survived dedup, in arrival order.
func (s *Supervisor) runBatch(ctx context.Context, batch []AgentName) []models.EvidencePin {
	var batchMu sync.Mutex
	var batchPins []models.EvidencePin

	g, gctx := errgroup.WithContext(ctx)
	for _, agent := range batch {
		agent := agent
		g.Go(func() error {
			for _, call := range planFor(agent, s.incident) {
				result := s.executor.Execute(gctx, call.intent, call.params)
				pin := evidence.NewPin(result, models.TriggeredByPipeline, evidence.RouterContext{
					Namespace: s.incident.Namespace,
					Service:   s.incident.Service,
				})
				pin.SourceAgent = string(agent)
				if !s.deduper.Admit(pin) {
					continue
				}
				s.persistPin(pin)
				batchMu.Lock()
				batchPins = append(batchPins, pin)
				batchMu.Unlock()
			}
			if s.sink != nil {
				s.sink.Emit(string(agent), "analysis_complete",
					fmt.Sprintf("%s finished for service %s", agent, s.incident.Service))
			}
			return nil
		})
	}
	_ = g.Wait()
	return batchPins
}

func (s *Supervisor) persistPin(pin models.EvidencePin) string {
	s.ledger.AddPins([]models.EvidencePin{pin})
	nodeID := s.graph.AddEvidence(pin, NodeTypeFor(pin))
	s.mu.Lock()
	s.pins = append(s.pins, pin)
	s.pinNodes[pin.ID] = nodeID
	s.mu.Unlock()
	return nodeID
}

// MutatePin applies fn to the stored pin with the given id and mirrors
// the update onto its evidence graph node. Critic verdicts land
// through here.
func (s *Supervisor) MutatePin(id string, fn func(*models.EvidencePin)) bool {
	s.mu.Lock()
	var updated *models.EvidencePin
	for i := range s.pins {
		if s.pins[i].ID == id {
			fn(&s.pins[i])
			updated = &s.pins[i]
			break
		}
	}
	if updated == nil {
		s.mu.Unlock()
		return false
	}
	pin := *updated
	nodeID := s.pinNodes[id]
	s.mu.Unlock()

	if nodeID != "" {
		s.graph.UpdatePin(nodeID, pin)
	}
	return true
}

// Ingest admits an externally produced pin (router investigations)
// into the session's evidence state. It returns the graph node id and
// whether the pin survived dedup.
func (s *Supervisor) Ingest(pin models.EvidencePin) (string, bool) {
	if !s.deduper.Admit(pin) {
		return "", false
	}
	return s.persistPin(pin), true
}

// NodeTypeFor places a pin in the evidence graph: failed results are
// plain context, strong error evidence is a symptom, the rest are
// contributing factors.
func NodeTypeFor(pin models.EvidencePin) evidence.NodeType {
	if pin.Confidence == 0 {
		return evidence.NodeTypeContext
	}
	if pin.Severity == models.SeverityCritical || pin.Severity == models.SeverityHigh {
		return evidence.NodeTypeSymptom
	}
	return evidence.NodeTypeContributingFactor
}

func (s *Supervisor) finishDiagnosis() {
	s.mu.Lock()
	s.phase = models.PhaseValidating
	s.mu.Unlock()

	s.graph.IdentifyRootCauses()

	s.mu.Lock()
	s.phase = models.PhaseDiagnosisComplete
	s.mu.Unlock()
	if s.sink != nil {
		s.sink.Emit("supervisor", "diagnosis_complete", "all agents dispatched, diagnosis complete")
	}
}

func alternativesTo(batch []AgentName) []string {
	dispatched := make(map[AgentName]bool, len(batch))
	for _, a := range batch {
		dispatched[a] = true
	}
	var out []string
	for _, a := range []AgentName{AgentLog, AgentMetrics, AgentK8s, AgentTracing, AgentCode} {
		if !dispatched[a] {
			out = append(out, string(a))
		}
	}
	return out
}

func (s *Supervisor) openGate(gateType models.GateType, pins []models.EvidencePin) {
	summary := fmt.Sprintf("%d evidence pins collected", len(pins))
	if len(pins) > 0 {
		summary = fmt.Sprintf("%s; latest: %s", summary, pins[len(pins)-1].Claim)
	}
	s.mu.Lock()
	s.gates = append(s.gates, models.AttestationGate{
		GateType:        gateType,
		EvidenceSummary: summary,
		Timestamp:       time.Now().UTC(),
	})
	s.mu.Unlock()
	if s.sink != nil {
		s.sink.Emit("supervisor", "attestation_required", string(gateType))
	}
}

// pendingGateLocked returns the first undecided gate. Caller holds mu.
func (s *Supervisor) pendingGateLocked() *models.AttestationGate {
	for i := range s.gates {
		if s.gates[i].Decision == "" {
			return &s.gates[i]
		}
	}
	return nil
}

// ProposeRemediation opens a pre_remediation gate for the given
// action. The workflow must have completed diagnosis.
func (s *Supervisor) ProposeRemediation(action string) error {
	s.mu.Lock()
	if s.phase != models.PhaseDiagnosisComplete {
		s.mu.Unlock()
		return ErrNotDiagnosisDone
	}
	s.gates = append(s.gates, models.AttestationGate{
		GateType:        models.GatePreRemediation,
		EvidenceSummary: fmt.Sprintf("%d evidence pins collected", len(s.pins)),
		ProposedAction:  action,
		Timestamp:       time.Now().UTC(),
	})
	s.mu.Unlock()
	if s.sink != nil {
		s.sink.Emit("supervisor", "attestation_required", string(models.GatePreRemediation))
	}
	return nil
}

// AcknowledgeAttestation records a human decision on the pending gate
// of the given type. Approving a pre_remediation gate moves the
// workflow to FIX_IN_PROGRESS; any other transition leaves the phase
// unchanged.
func (s *Supervisor) AcknowledgeAttestation(gateType models.GateType, decision models.GateDecision, decidedBy, notes string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var gate *models.AttestationGate
	for i := range s.gates {
		if s.gates[i].GateType == gateType && s.gates[i].Decision == "" {
			gate = &s.gates[i]
			break
		}
	}
	if gate == nil {
		return ErrNoPendingGate
	}

	gate.Decision = decision
	gate.DecidedBy = decidedBy
	gate.Notes = notes
	gate.Timestamp = time.Now().UTC()

	if gateType == models.GatePreRemediation && decision == models.GateApprove {
		s.phase = models.PhaseFixInProgress
	}
	return nil
}

// CompleteRemediation closes the workflow after a fix. It requires an
// approved pre_remediation gate and the FIX_IN_PROGRESS phase.
func (s *Supervisor) CompleteRemediation() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != models.PhaseFixInProgress {
		return ErrGateNotApproved
	}
	s.phase = models.PhaseComplete
	return nil
}
