// Package evidence turns tool results into pins, deduplicates them,
// and maintains the per-session confidence ledger and evidence graph.
package evidence

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/moolen/causeway/internal/models"
)

// RouterContext carries the request scope a pin inherits.
type RouterContext struct {
	Namespace    string
	Service      string
	ResourceName string
}

// NewPin builds an evidence pin from a tool result. Pure except for
// the id and timestamp.
func NewPin(result models.ToolResult, triggeredBy models.TriggeredBy, rctx RouterContext) models.EvidencePin {
	source := models.EvidenceSourceAuto
	if triggeredBy == models.TriggeredByUserChat || triggeredBy == models.TriggeredByQuickAction {
		source = models.EvidenceSourceManual
	}

	confidence := 0.0
	if result.Success {
		if len(result.EvidenceSnippets) > 0 {
			confidence = 1.0
		} else {
			confidence = 0.5
		}
	}

	claim := result.Summary
	if claim == "" {
		claim = result.Error
	}

	return models.EvidencePin{
		ID:               uuid.NewString(),
		Claim:            claim,
		SourceTool:       result.Intent,
		Confidence:       confidence,
		Timestamp:        time.Now().UTC(),
		EvidenceType:     result.EvidenceType,
		Source:           source,
		TriggeredBy:      triggeredBy,
		Domain:           result.Domain,
		ValidationStatus: models.ValidationPendingCritic,
		Severity:         result.Severity,
		Namespace:        rctx.Namespace,
		Service:          rctx.Service,
		ResourceName:     rctx.ResourceName,
		RawOutput:        models.TruncateRunes(result.RawOutput, models.MaxRawOutputRunes),
	}
}

// DedupWindow is how long a (source_tool, claim) pair suppresses
// duplicate pins.
const DedupWindow = 60 * time.Second

// Deduper suppresses repeated pins per session.
type Deduper struct {
	mu   sync.Mutex
	seen map[dedupKey]time.Time
	now  func() time.Time
}

type dedupKey struct {
	tool  string
	claim string
}

// NewDeduper creates an empty deduper.
func NewDeduper() *Deduper {
	return &Deduper{seen: make(map[dedupKey]time.Time), now: time.Now}
}

// Admit reports whether a pin with this (source_tool, claim) pair may
// persist, and records it if so. A duplicate within DedupWindow is
// rejected; an older entry is refreshed.
func (d *Deduper) Admit(pin models.EvidencePin) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	key := dedupKey{tool: pin.SourceTool, claim: pin.Claim}
	now := d.now()
	if last, ok := d.seen[key]; ok && now.Sub(last) < DedupWindow {
		return false
	}
	d.seen[key] = now
	return true
}
