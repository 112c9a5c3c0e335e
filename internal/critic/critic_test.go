package critic

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moolen/causeway/internal/models"
	"github.com/moolen/causeway/internal/provider"
)

func pin(id, service string, ts time.Time) models.EvidencePin {
	return models.EvidencePin{
		ID:         id,
		Claim:      "claim " + id,
		SourceTool: "search_logs",
		Service:    service,
		Timestamp:  ts,
		Confidence: 1.0,
	}
}

func TestValidateParsesVerdict(t *testing.T) {
	mock := provider.NewMockProvider(provider.MockResponse{
		Content: `{"verdict": "challenged", "confidence_in_verdict": 85,
			"reasoning": "metrics show no 5xx spike in that window"}`,
	})
	c := New(mock)

	verdict := c.Validate(context.Background(), pin("p1", "checkout", time.Now()), nil)
	assert.Equal(t, VerdictChallenged, verdict.Verdict)
	assert.Equal(t, 85, verdict.ConfidenceInVerdict)
	assert.NotEmpty(t, verdict.Reasoning)
}

func TestValidateParseFailure(t *testing.T) {
	c := New(provider.NewMockProvider(provider.MockResponse{Content: "I cannot decide."}))
	verdict := c.Validate(context.Background(), pin("p1", "checkout", time.Now()), nil)
	assert.Equal(t, VerdictInsufficientData, verdict.Verdict)
	assert.Equal(t, 0, verdict.ConfidenceInVerdict)
	assert.Equal(t, "parse error", verdict.Reasoning)
}

func TestValidateTimeout(t *testing.T) {
	mock := provider.NewMockProvider()
	mock.Hang = true
	c := New(mock)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	verdict := c.Validate(ctx, pin("p1", "checkout", time.Now()), nil)
	assert.Equal(t, VerdictInsufficientData, verdict.Verdict)
	assert.Equal(t, "validation timed out", verdict.Reasoning)
}

func TestValidateRejectsUnknownVerdict(t *testing.T) {
	c := New(provider.NewMockProvider(provider.MockResponse{
		Content: `{"verdict": "plausible", "confidence_in_verdict": 70}`,
	}))
	verdict := c.Validate(context.Background(), pin("p1", "checkout", time.Now()), nil)
	assert.Equal(t, VerdictInsufficientData, verdict.Verdict)
}

func TestValidateDeltaTimeout(t *testing.T) {
	mock := provider.NewMockProvider()
	mock.Hang = true
	c := New(mock)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	verdict := c.ValidateDelta(ctx, pin("p1", "checkout", time.Now()), nil, nil)
	assert.Equal(t, models.ValidationPendingCritic, verdict.ValidationStatus)
	assert.Equal(t, models.CausalRoleInformational, verdict.CausalRole)
	assert.Equal(t, "validation timed out", verdict.Reasoning)
}

func TestValidateDeltaInvalidRoleFallsBack(t *testing.T) {
	c := New(provider.NewMockProvider(provider.MockResponse{
		Content: `{"validation_status": "validated", "causal_role": "the_culprit",
			"confidence": 0.9, "reasoning": "x"}`,
	}))
	verdict := c.ValidateDelta(context.Background(), pin("p1", "checkout", time.Now()), nil, nil)
	assert.Equal(t, models.ValidationValidated, verdict.ValidationStatus)
	assert.Equal(t, models.CausalRoleInformational, verdict.CausalRole)
}

func TestValidateDeltaCascadingNeedsTemporalOrder(t *testing.T) {
	reply := provider.MockResponse{
		Content: `{"validation_status": "validated", "causal_role": "cascading_symptom",
			"confidence": 0.8, "reasoning": "follows the node failure"}`,
	}
	now := time.Now()
	newPin := pin("p2", "checkout", now)

	// An earlier pin on the same service establishes temporal order.
	c := New(provider.NewMockProvider(reply))
	verdict := c.ValidateDelta(context.Background(), newPin,
		[]models.EvidencePin{pin("p1", "checkout", now.Add(-2*time.Minute))}, nil)
	assert.Equal(t, models.CausalRoleCascadingSymptom, verdict.CausalRole)

	// Without earlier related evidence the claim degrades to correlated.
	c = New(provider.NewMockProvider(reply))
	verdict = c.ValidateDelta(context.Background(), newPin,
		[]models.EvidencePin{pin("p1", "payments", now.Add(2*time.Minute))}, nil)
	assert.Equal(t, models.CausalRoleCorrelated, verdict.CausalRole)
}

func TestApplyWritesVerdictOntoPin(t *testing.T) {
	p := pin("p1", "checkout", time.Now())
	Apply(&p, DeltaVerdict{
		ValidationStatus: models.ValidationRejected,
		CausalRole:       models.CausalRoleInformational,
		Contradictions:   []string{"p9"},
	})
	assert.Equal(t, models.ValidationRejected, p.ValidationStatus)
	assert.Equal(t, models.CausalRoleInformational, p.CausalRole)
	assert.Zero(t, p.Confidence)
	require.Len(t, p.SupportingEvidence, 1)
	assert.Equal(t, "contradicted_by:p9", p.SupportingEvidence[0])
}

func TestLedgerAdjustment(t *testing.T) {
	assert.Zero(t, LedgerAdjustment(nil))

	validated := models.EvidencePin{ValidationStatus: models.ValidationValidated}
	rejected := models.EvidencePin{ValidationStatus: models.ValidationRejected}
	pending := models.EvidencePin{ValidationStatus: models.ValidationPendingCritic}

	assert.InDelta(t, 0.1, LedgerAdjustment([]models.EvidencePin{validated, pending}), 1e-9)
	assert.InDelta(t, -0.3, LedgerAdjustment([]models.EvidencePin{rejected}), 1e-9)
	assert.InDelta(t, -0.1, LedgerAdjustment([]models.EvidencePin{validated, rejected}), 1e-9)
}
