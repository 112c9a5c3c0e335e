package evidence

import (
	"sync"

	"github.com/moolen/causeway/internal/models"
)

// Category is one weighted evidence source in the ledger. Pins of
// type k8s_event and k8s_resource share the k8s category.
type Category string

const (
	CategoryLog     Category = "log"
	CategoryMetrics Category = "metrics"
	CategoryTracing Category = "tracing"
	CategoryK8s     Category = "k8s"
	CategoryCode    Category = "code"
	CategoryChange  Category = "change"
)

// Fixed category weights for the aggregate confidence score.
var categoryWeights = map[Category]float64{
	CategoryLog:     0.25,
	CategoryMetrics: 0.30,
	CategoryTracing: 0.20,
	CategoryK8s:     0.15,
	CategoryCode:    0.05,
	CategoryChange:  0.05,
}

func categoryFor(t models.EvidenceType) Category {
	switch t {
	case models.EvidenceTypeLog:
		return CategoryLog
	case models.EvidenceTypeMetric:
		return CategoryMetrics
	case models.EvidenceTypeTrace:
		return CategoryTracing
	case models.EvidenceTypeK8sEvent, models.EvidenceTypeK8sResource:
		return CategoryK8s
	case models.EvidenceTypeCode:
		return CategoryCode
	case models.EvidenceTypeChange:
		return CategoryChange
	default:
		return ""
	}
}

// Critic adjustment bounds.
const (
	MinCriticAdjustment = -0.3
	MaxCriticAdjustment = 0.1
)

// Ledger aggregates per-type pin confidences into one weighted score.
// Each type's confidence is the running mean over all pins of that
// type; the weighted sum plus the critic adjustment is clamped to
// [0, 1].
type Ledger struct {
	mu               sync.Mutex
	sums             map[Category]float64
	counts           map[Category]int
	criticAdjustment float64
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		sums:   make(map[Category]float64),
		counts: make(map[Category]int),
	}
}

// AddPins folds a batch of pins into the per-category running means.
func (l *Ledger) AddPins(pins []models.EvidencePin) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, pin := range pins {
		cat := categoryFor(pin.EvidenceType)
		if cat == "" {
			continue
		}
		l.sums[cat] += pin.Confidence
		l.counts[cat]++
	}
}

// SetCriticAdjustment stores the critic's adjustment clamped to
// [-0.3, 0.1].
func (l *Ledger) SetCriticAdjustment(adj float64) {
	if adj < MinCriticAdjustment {
		adj = MinCriticAdjustment
	}
	if adj > MaxCriticAdjustment {
		adj = MaxCriticAdjustment
	}
	l.mu.Lock()
	l.criticAdjustment = adj
	l.mu.Unlock()
}

// Snapshot is the ledger's externally visible state.
type Snapshot struct {
	PerCategory      map[Category]float64 `json:"per_category"`
	CriticAdjustment float64              `json:"critic_adjustment"`
	WeightedFinal    float64              `json:"weighted_final"`
}

// Snapshot computes the weighted final score. Recomputing with
// unchanged inputs is a fixed point.
func (l *Ledger) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	perCategory := make(map[Category]float64, len(l.counts))
	sum := 0.0
	for cat, count := range l.counts {
		if count == 0 {
			continue
		}
		mean := l.sums[cat] / float64(count)
		perCategory[cat] = mean
		sum += categoryWeights[cat] * mean
	}
	final := sum + l.criticAdjustment
	if final < 0 {
		final = 0
	}
	if final > 1 {
		final = 1
	}
	return Snapshot{
		PerCategory:      perCategory,
		CriticAdjustment: l.criticAdjustment,
		WeightedFinal:    final,
	}
}
