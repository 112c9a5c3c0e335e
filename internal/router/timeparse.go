package router

import (
	"fmt"
	"strings"
	"time"

	dps "github.com/markusmobius/go-dateparser"

	"github.com/moolen/causeway/internal/tools"
)

// SinceMinutes resolves a natural-language time expression ("20
// minutes ago", "yesterday", "2h ago") into a lookback window in
// minutes relative to now, clamped to the executor's bounds.
func SinceMinutes(expr string, now time.Time) (int, error) {
	expr = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(expr), "since"))
	if expr == "" {
		return 0, fmt.Errorf("empty time expression")
	}

	parser := dps.Parser{}
	cfg := &dps.Configuration{
		CurrentTime:         now,
		PreferredDateSource: dps.CurrentPeriod,
	}

	parsed, err := parser.Parse(cfg, expr)
	if err != nil {
		return 0, fmt.Errorf("parse time expression: %w", err)
	}
	if parsed.IsZero() {
		return 0, fmt.Errorf("time expression %q did not resolve", expr)
	}
	if !parsed.Time.Before(now) {
		return 0, fmt.Errorf("time expression %q is not in the past", expr)
	}
	return tools.ClampMinutes(int(now.Sub(parsed.Time).Minutes())), nil
}
