// Package correlation extracts problem alerts from a scoped topology
// and groups them into topologically connected issue clusters with
// root-cause hypotheses.
package correlation

import (
	"fmt"
	"sort"

	"github.com/moolen/causeway/internal/logging"
	"github.com/moolen/causeway/internal/models"
)

// problemStatuses is the closed set of node statuses treated as alerts.
var problemStatuses = map[string]models.Severity{
	"NotReady":         models.SeverityCritical,
	"CrashLoopBackOff": models.SeverityHigh,
	"Evicted":          models.SeverityHigh,
	"OOMKilled":        models.SeverityHigh,
	"Pending":          models.SeverityMedium,
	"Degraded":         models.SeverityMedium,
	"Unavailable":      models.SeverityHigh,
	"ImagePullBackOff": models.SeverityMedium,
	"Error":            models.SeverityMedium,
	"Failed":           models.SeverityHigh,
	"DiskPressure":     models.SeverityHigh,
	"MemoryPressure":   models.SeverityHigh,
	"PIDPressure":      models.SeverityHigh,
}

// Correlator groups alerts into issue clusters.
type Correlator struct {
	logger *logging.Logger
}

// NewCorrelator creates a correlator.
func NewCorrelator() *Correlator {
	return &Correlator{logger: logging.GetLogger("correlation")}
}

// ExtractAlerts returns one ClusterAlert per topology node whose
// status is a known problem, sorted by resource key for deterministic
// downstream grouping.
func (c *Correlator) ExtractAlerts(snap *models.TopologySnapshot) []models.ClusterAlert {
	var alerts []models.ClusterAlert
	for key, node := range snap.Nodes {
		severity, ok := problemStatuses[node.Status]
		if !ok {
			continue
		}
		alerts = append(alerts, models.ClusterAlert{
			ResourceKey: key,
			AlertType:   node.Status,
			Severity:    severity,
			Timestamp:   snap.BuiltAt,
		})
	}
	sort.Slice(alerts, func(i, j int) bool {
		return alerts[i].ResourceKey < alerts[j].ResourceKey
	})
	return alerts
}

// Correlate groups alerts into issue clusters by BFS over the
// undirected projection of topology edges. Isolated alerts form
// singleton clusters. Zero alerts yields an empty list.
func (c *Correlator) Correlate(snap *models.TopologySnapshot, alerts []models.ClusterAlert) []models.IssueCluster {
	if len(alerts) == 0 {
		return nil
	}

	adjacency := make(map[string][]string)
	for _, edge := range snap.Edges {
		adjacency[edge.From] = append(adjacency[edge.From], edge.To)
		adjacency[edge.To] = append(adjacency[edge.To], edge.From)
	}

	alertIdx := make(map[string]models.ClusterAlert, len(alerts))
	for _, alert := range alerts {
		alertIdx[alert.ResourceKey] = alert
	}

	assigned := make(map[string]bool)
	var clusters []models.IssueCluster
	for _, alert := range alerts {
		if assigned[alert.ResourceKey] {
			continue
		}

		// BFS over all topology nodes; alerts reachable through any
		// chain of edges join the same cluster.
		var member []models.ClusterAlert
		visited := map[string]bool{alert.ResourceKey: true}
		frontier := []string{alert.ResourceKey}
		for len(frontier) > 0 {
			var next []string
			for _, key := range frontier {
				if a, isAlert := alertIdx[key]; isAlert && !assigned[key] {
					member = append(member, a)
					assigned[key] = true
				}
				for _, neighbor := range adjacency[key] {
					if !visited[neighbor] {
						visited[neighbor] = true
						next = append(next, neighbor)
					}
				}
			}
			frontier = next
		}

		sort.Slice(member, func(i, j int) bool {
			return member[i].ResourceKey < member[j].ResourceKey
		})
		cluster := models.IssueCluster{
			ID:               fmt.Sprintf("issue-%d", len(clusters)+1),
			Alerts:           member,
			CorrelationBasis: c.basis(snap, member),
		}
		cluster.RootCandidates = c.rootCandidates(member)
		if len(cluster.RootCandidates) > 0 {
			cluster.Confidence = cluster.RootCandidates[0].Confidence
		}
		for _, a := range member {
			cluster.AffectedResources = append(cluster.AffectedResources, a.ResourceKey)
		}
		clusters = append(clusters, cluster)
	}

	c.logger.Debug("correlated %d alerts into %d clusters", len(alerts), len(clusters))
	return clusters
}

// basis labels why the cluster's alerts are believed related. Every
// matching rule is recorded; temporal co-occurrence is the fallback.
func (c *Correlator) basis(snap *models.TopologySnapshot, alerts []models.ClusterAlert) []string {
	var out []string
	if len(alerts) > 1 {
		namespaces := make(map[string]bool)
		for _, alert := range alerts {
			if node, ok := snap.Nodes[alert.ResourceKey]; ok {
				namespaces[node.Namespace] = true
			}
		}
		if len(namespaces) > 1 {
			out = append(out, "topology")
		}
		if len(namespaces) == 1 && !namespaces[""] {
			out = append(out, "namespace")
		}
	}
	for _, alert := range alerts {
		if models.KindFromKey(alert.ResourceKey) == "node" {
			out = append(out, "node_affinity")
			break
		}
	}
	for _, alert := range alerts {
		if models.KindFromKey(alert.ResourceKey) == "operator" {
			out = append(out, "control_plane_fan_out")
			break
		}
	}
	if len(out) == 0 {
		out = append(out, "temporal")
	}
	return out
}

// rootCandidates scores each alert as a hypothesized root and keeps
// the top two: confidence = min(1.0, 0.4 + 0.15 * connected alerts +
// kind weight).
func (c *Correlator) rootCandidates(alerts []models.ClusterAlert) []models.RootCandidate {
	candidates := make([]models.RootCandidate, 0, len(alerts))
	for _, alert := range alerts {
		connected := len(alerts) - 1
		confidence := 0.4 + 0.15*float64(connected) + kindWeight(models.KindFromKey(alert.ResourceKey))
		if confidence > 1.0 {
			confidence = 1.0
		}

		var signals []string
		for _, other := range alerts {
			if other.ResourceKey != alert.ResourceKey {
				signals = append(signals, other.AlertType)
			}
		}

		candidates = append(candidates, models.RootCandidate{
			ResourceKey:       alert.ResourceKey,
			Hypothesis:        fmt.Sprintf("%s on %s is the origin of this cluster", alert.AlertType, alert.ResourceKey),
			SupportingSignals: signals,
			Confidence:        confidence,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Confidence > candidates[j].Confidence
	})
	if len(candidates) > 2 {
		candidates = candidates[:2]
	}
	return candidates
}

func kindWeight(kind string) float64 {
	switch kind {
	case "node":
		return 0.3
	case "operator":
		return 0.25
	case "deploy", "deployment", "svc", "service":
		return 0.1
	default:
		return 0
	}
}
