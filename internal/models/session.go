package models

import "time"

// ScanMode selects between a one-shot diagnosis and a recurring guard scan.
type ScanMode string

const (
	ScanModeDiagnostic ScanMode = "diagnostic"
	ScanModeGuard      ScanMode = "guard"
)

// Platform distinguishes vanilla Kubernetes from OpenShift clusters.
// Domain agent prompts and the topology resolver branch on this.
type Platform string

const (
	PlatformKubernetes Platform = "kubernetes"
	PlatformOpenShift  Platform = "openshift"
)

// Phase is the supervisor's position in the application-diagnosis workflow.
type Phase string

const (
	PhaseInitial           Phase = "INITIAL"
	PhaseCollectingContext Phase = "COLLECTING_CONTEXT"
	PhaseLogsAnalyzed      Phase = "LOGS_ANALYZED"
	PhaseMetricsAnalyzed   Phase = "METRICS_ANALYZED"
	PhaseK8sAnalyzed       Phase = "K8S_ANALYZED"
	PhaseTracingAnalyzed   Phase = "TRACING_ANALYZED"
	PhaseCodeAnalyzed      Phase = "CODE_ANALYZED"
	PhaseValidating        Phase = "VALIDATING"
	PhaseReInvestigating   Phase = "RE_INVESTIGATING"
	PhaseDiagnosisComplete Phase = "DIAGNOSIS_COMPLETE"
	PhaseFixInProgress     Phase = "FIX_IN_PROGRESS"
	PhaseComplete          Phase = "COMPLETE"
)

// IncidentPointer identifies what a session investigates.
type IncidentPointer struct {
	Service   string      `json:"service"`
	Namespace string      `json:"namespace,omitempty"`
	TraceID   string      `json:"trace_id,omitempty"`
	RepoURL   string      `json:"repo_url,omitempty"`
	Window    *TimeWindow `json:"time_window,omitempty"`
	ScanMode  ScanMode    `json:"scan_mode"`
	Platform  Platform    `json:"platform,omitempty"`
}

// TaskEvent is one entry in a session's ordered event log.
type TaskEvent struct {
	Timestamp time.Time      `json:"timestamp"`
	AgentName string         `json:"agent_name"`
	EventType string         `json:"event_type"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
}

// GateType identifies which workflow checkpoint a gate protects.
type GateType string

const (
	GateDiscoveryComplete GateType = "discovery_complete"
	GatePreRemediation    GateType = "pre_remediation"
	GatePostRemediation   GateType = "post_remediation"
)

// GateDecision is the human verdict on an attestation gate.
type GateDecision string

const (
	GateApprove        GateDecision = "approve"
	GateReject         GateDecision = "reject"
	GateRequestChanges GateDecision = "request_changes"
)

// AttestationGate is a checkpoint requiring a human approve/reject
// before the workflow may proceed.
type AttestationGate struct {
	GateType        GateType     `json:"gate_type"`
	EvidenceSummary string       `json:"evidence_summary"`
	ProposedAction  string       `json:"proposed_action,omitempty"`
	Decision        GateDecision `json:"decision,omitempty"`
	DecidedBy       string       `json:"decided_by,omitempty"`
	Notes           string       `json:"notes,omitempty"`
	Timestamp       time.Time    `json:"timestamp"`
}

// ReasoningStep records one supervisor dispatch decision.
type ReasoningStep struct {
	Number               int       `json:"number"`
	Timestamp            time.Time `json:"timestamp"`
	Decision             string    `json:"decision"`
	Reasoning            string    `json:"reasoning"`
	EvidenceConsidered   []string  `json:"evidence_considered,omitempty"`
	ConfidenceAtStep     float64   `json:"confidence_at_step"`
	AlternativesRejected []string  `json:"alternatives_rejected,omitempty"`
}

// ReasoningManifest is the per-session ordered list of reasoning steps.
type ReasoningManifest struct {
	SessionID string          `json:"session_id"`
	Steps     []ReasoningStep `json:"steps"`
}

// ScopeLevel selects how much of the cluster topology agents see.
type ScopeLevel string

const (
	ScopeCluster   ScopeLevel = "cluster"
	ScopeNamespace ScopeLevel = "namespace"
	ScopeWorkload  ScopeLevel = "workload"
	ScopeComponent ScopeLevel = "component"
)

// DiagnosticScope restricts which topology nodes the domain agents see.
type DiagnosticScope struct {
	Level               ScopeLevel `json:"level"`
	Namespaces          []string   `json:"namespaces,omitempty"`
	WorkloadKey         string     `json:"workload_key,omitempty"`
	ComponentKey        string     `json:"component_key,omitempty"`
	Domains             []Domain   `json:"domains,omitempty"`
	IncludeControlPlane bool       `json:"include_control_plane"`
}
