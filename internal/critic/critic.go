// Package critic revalidates evidence pins against the rest of the
// session's evidence. Both operations are LLM-backed with a hard
// timeout; on timeout or unparsable output they degrade to neutral
// verdicts instead of failing the caller.
package critic

import (
	"context"
	"encoding/json"
	"time"

	"github.com/moolen/causeway/internal/logging"
	"github.com/moolen/causeway/internal/metrics"
	"github.com/moolen/causeway/internal/models"
	"github.com/moolen/causeway/internal/provider"
)

// Timeout bounds every critic model call.
const Timeout = 30 * time.Second

// Verdict outcomes for Validate.
const (
	VerdictValidated        = "validated"
	VerdictChallenged       = "challenged"
	VerdictInsufficientData = "insufficient_data"
)

// Critic validates findings with a second model pass.
type Critic struct {
	llm    provider.Provider
	logger *logging.Logger
}

// New creates a critic on the given provider.
func New(llm provider.Provider) *Critic {
	return &Critic{llm: llm, logger: logging.GetLogger("critic")}
}

// Verdict is the outcome of validating one finding.
type Verdict struct {
	Verdict             string `json:"verdict"`
	ConfidenceInVerdict int    `json:"confidence_in_verdict"`
	Reasoning           string `json:"reasoning"`
}

// DeltaVerdict is the outcome of validating a newly arrived pin.
type DeltaVerdict struct {
	ValidationStatus models.ValidationStatus `json:"validation_status"`
	CausalRole       models.CausalRole       `json:"causal_role"`
	Confidence       float64                 `json:"confidence"`
	Reasoning        string                  `json:"reasoning"`
	Contradictions   []string                `json:"contradictions,omitempty"`
}

type validateInput struct {
	Finding    models.EvidencePin   `json:"finding"`
	Supporting []models.EvidencePin `json:"supporting_evidence"`
}

// Validate reviews one finding against its corroborating evidence.
// Timeouts and parse failures yield insufficient_data with confidence
// zero.
func (c *Critic) Validate(ctx context.Context, finding models.EvidencePin, supporting []models.EvidencePin) Verdict {
	ctx, cancel := context.WithTimeout(ctx, Timeout)
	defer cancel()

	body, err := json.Marshal(validateInput{Finding: finding, Supporting: supporting})
	if err != nil {
		return Verdict{Verdict: VerdictInsufficientData, Reasoning: "parse error"}
	}

	started := time.Now()
	var verdict Verdict
	_, err = provider.ChatJSON(ctx, c.llm, validatePrompt, string(body), &verdict)
	metrics.LLMRequestDuration.WithLabelValues("critic").Observe(time.Since(started).Seconds())

	if err != nil {
		reason := "parse error"
		outcome := "parse_error"
		if ctx.Err() != nil {
			reason = "validation timed out"
			outcome = "timeout"
		}
		metrics.LLMRequests.WithLabelValues("critic", outcome).Inc()
		c.logger.Warn("validate degraded: %v", err)
		return Verdict{Verdict: VerdictInsufficientData, Reasoning: reason}
	}
	metrics.LLMRequests.WithLabelValues("critic", "success").Inc()

	switch verdict.Verdict {
	case VerdictValidated, VerdictChallenged, VerdictInsufficientData:
	default:
		return Verdict{Verdict: VerdictInsufficientData, Reasoning: "parse error"}
	}
	if verdict.ConfidenceInVerdict < 0 {
		verdict.ConfidenceInVerdict = 0
	}
	if verdict.ConfidenceInVerdict > 100 {
		verdict.ConfidenceInVerdict = 100
	}
	return verdict
}

type deltaInput struct {
	NewPin       models.EvidencePin   `json:"new_pin"`
	ExistingPins []models.EvidencePin `json:"existing_pins"`
	CausalChains []models.CausalChain `json:"causal_chains"`
}

// ValidateDelta classifies a newly arrived pin against the existing
// evidence and causal chains. Timeouts leave the pin pending with an
// informational role.
func (c *Critic) ValidateDelta(ctx context.Context, newPin models.EvidencePin, existing []models.EvidencePin, chains []models.CausalChain) DeltaVerdict {
	ctx, cancel := context.WithTimeout(ctx, Timeout)
	defer cancel()

	neutral := DeltaVerdict{
		ValidationStatus: models.ValidationPendingCritic,
		CausalRole:       models.CausalRoleInformational,
	}

	body, err := json.Marshal(deltaInput{NewPin: newPin, ExistingPins: existing, CausalChains: chains})
	if err != nil {
		neutral.Reasoning = "parse error"
		return neutral
	}

	started := time.Now()
	var verdict DeltaVerdict
	_, err = provider.ChatJSON(ctx, c.llm, deltaPrompt, string(body), &verdict)
	metrics.LLMRequestDuration.WithLabelValues("critic").Observe(time.Since(started).Seconds())

	if err != nil {
		outcome := "parse_error"
		neutral.Reasoning = "parse error"
		if ctx.Err() != nil {
			outcome = "timeout"
			neutral.Reasoning = "validation timed out"
		}
		metrics.LLMRequests.WithLabelValues("critic", outcome).Inc()
		c.logger.Warn("validate_delta degraded: %v", err)
		return neutral
	}
	metrics.LLMRequests.WithLabelValues("critic", "success").Inc()

	switch verdict.ValidationStatus {
	case models.ValidationValidated, models.ValidationRejected, models.ValidationPendingCritic:
	default:
		verdict.ValidationStatus = models.ValidationPendingCritic
	}
	verdict.CausalRole = resolveCausalRole(verdict.CausalRole, newPin, existing)
	if verdict.Confidence < 0 {
		verdict.Confidence = 0
	}
	if verdict.Confidence > 1 {
		verdict.Confidence = 1
	}
	return verdict
}

// resolveCausalRole keeps the model's role when it is one of the four
// allowed values. A cascading_symptom claim without an established
// temporal order is downgraded to correlated; anything outside the
// vocabulary becomes informational.
func resolveCausalRole(role models.CausalRole, pin models.EvidencePin, existing []models.EvidencePin) models.CausalRole {
	switch role {
	case models.CausalRoleRootCause, models.CausalRoleCorrelated, models.CausalRoleInformational:
		return role
	case models.CausalRoleCascadingSymptom:
		if temporalOrderEstablished(pin, existing) {
			return models.CausalRoleCascadingSymptom
		}
		return models.CausalRoleCorrelated
	default:
		return models.CausalRoleInformational
	}
}

// temporalOrderEstablished reports whether some earlier pin touches
// the same service or resource, i.e. there is something this pin can
// cascade from.
func temporalOrderEstablished(pin models.EvidencePin, existing []models.EvidencePin) bool {
	for _, other := range existing {
		if !other.Timestamp.Before(pin.Timestamp) {
			continue
		}
		if other.Service != "" && other.Service == pin.Service {
			return true
		}
		if other.ResourceName != "" && other.ResourceName == pin.ResourceName {
			return true
		}
		if other.Namespace != "" && other.Namespace == pin.Namespace {
			return true
		}
	}
	return false
}

// Apply writes a delta verdict back onto the pin.
func Apply(pin *models.EvidencePin, verdict DeltaVerdict) {
	pin.ValidationStatus = verdict.ValidationStatus
	pin.CausalRole = verdict.CausalRole
	if verdict.ValidationStatus == models.ValidationRejected {
		pin.Confidence = 0
	}
	for _, contradiction := range verdict.Contradictions {
		pin.SupportingEvidence = append(pin.SupportingEvidence, "contradicted_by:"+contradiction)
	}
}

// LedgerAdjustment derives the ledger's critic adjustment from the
// reviewed pins: validated evidence earns a small bonus, rejected
// evidence a larger penalty. The result stays within [-0.3, 0.1].
func LedgerAdjustment(pins []models.EvidencePin) float64 {
	reviewed, validated, rejected := 0, 0, 0
	for _, pin := range pins {
		switch pin.ValidationStatus {
		case models.ValidationValidated:
			reviewed++
			validated++
		case models.ValidationRejected:
			reviewed++
			rejected++
		}
	}
	if reviewed == 0 {
		return 0
	}
	adj := 0.1*float64(validated)/float64(reviewed) - 0.3*float64(rejected)/float64(reviewed)
	if adj < -0.3 {
		adj = -0.3
	}
	if adj > 0.1 {
		adj = 0.1
	}
	return adj
}
