package tools

import (
	"strings"

	"github.com/moolen/causeway/internal/models"
)

var (
	criticalKeywords = []string{"fatal", "panic"}
	highKeywords     = []string{"oom", "killed", "segfault"}
	errorKeywords    = []string{"error", "exception", "fail", "refused", "timeout", "denied"}
)

// ClassifySeverity scans log text line by line and returns the highest
// severity implied by its error keywords.
func ClassifySeverity(text string) models.Severity {
	severity := models.SeverityInfo
	for _, line := range strings.Split(text, "\n") {
		lower := strings.ToLower(line)
		if containsAny(lower, criticalKeywords) {
			return models.SeverityCritical
		}
		if containsAny(lower, highKeywords) {
			severity = models.SeverityHigh
			continue
		}
		if severity == models.SeverityInfo && containsAny(lower, errorKeywords) {
			severity = models.SeverityMedium
		}
	}
	return severity
}

// ClassifyDomain maps intent payload keywords to an infrastructure
// domain. Matching is substring-based over the lowercased payload.
func ClassifyDomain(payload string) models.Domain {
	lower := strings.ToLower(payload)
	switch {
	case strings.Contains(lower, "coredns"), strings.Contains(lower, "dns"):
		return models.DomainNetwork
	case strings.Contains(lower, "apiserver"), strings.Contains(lower, "etcd"):
		return models.DomainControlPlane
	case strings.Contains(lower, "pvc"), strings.Contains(lower, "storageclass"),
		strings.Contains(lower, "persistentvolume"):
		return models.DomainStorage
	case strings.Contains(lower, "pod"), strings.Contains(lower, "node"),
		strings.Contains(lower, "deployment"):
		return models.DomainCompute
	default:
		return models.DomainUnknown
	}
}

// ExtractErrorSnippets returns the lines of text that match the error
// keyword sets, capped at limit. These become evidence snippets and
// drive the pin confidence rule.
func ExtractErrorSnippets(text string, limit int) []string {
	if limit <= 0 {
		limit = 20
	}
	var snippets []string
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		lower := strings.ToLower(trimmed)
		if containsAny(lower, criticalKeywords) || containsAny(lower, highKeywords) ||
			containsAny(lower, errorKeywords) {
			snippets = append(snippets, trimmed)
			if len(snippets) >= limit {
				break
			}
		}
	}
	return snippets
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
