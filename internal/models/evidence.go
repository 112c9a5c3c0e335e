// Package models contains the shared data model for the diagnosis
// engine: evidence pins, tool results, topology snapshots, domain
// reports, and session-scoped records. Types here are plain data;
// behavior lives in the packages that produce them.
package models

import "time"

// EvidenceType classifies where an observation came from.
type EvidenceType string

const (
	EvidenceTypeLog         EvidenceType = "log"
	EvidenceTypeMetric      EvidenceType = "metric"
	EvidenceTypeTrace       EvidenceType = "trace"
	EvidenceTypeK8sEvent    EvidenceType = "k8s_event"
	EvidenceTypeK8sResource EvidenceType = "k8s_resource"
	EvidenceTypeCode        EvidenceType = "code"
	EvidenceTypeChange      EvidenceType = "change"
)

// EvidenceSource distinguishes pipeline-produced pins from user-requested ones.
type EvidenceSource string

const (
	EvidenceSourceAuto   EvidenceSource = "auto"
	EvidenceSourceManual EvidenceSource = "manual"
)

// TriggeredBy records which entry point produced a pin.
type TriggeredBy string

const (
	TriggeredByPipeline    TriggeredBy = "automated_pipeline"
	TriggeredByUserChat    TriggeredBy = "user_chat"
	TriggeredByQuickAction TriggeredBy = "quick_action"
)

// Domain is the infrastructure domain an observation belongs to.
type Domain string

const (
	DomainCompute      Domain = "compute"
	DomainNetwork      Domain = "network"
	DomainStorage      Domain = "storage"
	DomainControlPlane Domain = "control_plane"
	DomainUnknown      Domain = "unknown"
)

// ValidationStatus tracks the critic's verdict on a pin.
type ValidationStatus string

const (
	ValidationPendingCritic ValidationStatus = "pending_critic"
	ValidationValidated     ValidationStatus = "validated"
	ValidationRejected      ValidationStatus = "rejected"
)

// CausalRole is the critic's classification of a pin's role in the incident.
type CausalRole string

const (
	CausalRoleRootCause        CausalRole = "root_cause"
	CausalRoleCascadingSymptom CausalRole = "cascading_symptom"
	CausalRoleCorrelated       CausalRole = "correlated"
	CausalRoleInformational    CausalRole = "informational"
)

// Severity levels for classified evidence.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityInfo     Severity = "info"
)

// MaxRawOutputRunes is the truncation limit for raw outputs embedded in
// pins, measured in code points rather than bytes.
const MaxRawOutputRunes = 50000

// TimeWindow bounds an observation in wall-clock time.
type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// EvidencePin is one atomic observation with provenance and confidence.
type EvidencePin struct {
	ID                 string           `json:"id"`
	Claim              string           `json:"claim"`
	SourceAgent        string           `json:"source_agent,omitempty"`
	SourceTool         string           `json:"source_tool"`
	Confidence         float64          `json:"confidence"`
	Timestamp          time.Time        `json:"timestamp"`
	EvidenceType       EvidenceType     `json:"evidence_type"`
	Source             EvidenceSource   `json:"source"`
	TriggeredBy        TriggeredBy      `json:"triggered_by"`
	Domain             Domain           `json:"domain"`
	ValidationStatus   ValidationStatus `json:"validation_status"`
	CausalRole         CausalRole       `json:"causal_role,omitempty"`
	Severity           Severity         `json:"severity,omitempty"`
	Namespace          string           `json:"namespace,omitempty"`
	Service            string           `json:"service,omitempty"`
	ResourceName       string           `json:"resource_name,omitempty"`
	RawOutput          string           `json:"raw_output,omitempty"`
	TimeWindow         *TimeWindow      `json:"time_window,omitempty"`
	SupportingEvidence []string         `json:"supporting_evidence,omitempty"`
}

// ToolResult is the normalized outcome of one tool-executor call.
type ToolResult struct {
	Success          bool           `json:"success"`
	Intent           string         `json:"intent"`
	RawOutput        string         `json:"raw_output,omitempty"`
	Summary          string         `json:"summary,omitempty"`
	EvidenceSnippets []string       `json:"evidence_snippets,omitempty"`
	EvidenceType     EvidenceType   `json:"evidence_type"`
	Domain           Domain         `json:"domain"`
	Severity         Severity       `json:"severity,omitempty"`
	Error            string         `json:"error,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

// TruncateRunes caps s at n code points. Raw outputs embedded in pins
// must pass through this before persisting.
func TruncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
