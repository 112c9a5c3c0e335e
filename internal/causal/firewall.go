package causal

import (
	"strings"

	"github.com/moolen/causeway/internal/logging"
	"github.com/moolen/causeway/internal/models"
)

// ReasonTopologyDirection is the reason code attached to hard-blocked links.
const ReasonTopologyDirection = "violates_topology_direction"

// CandidateLink is one ordered pair of alerts within an issue cluster.
type CandidateLink struct {
	From models.ClusterAlert `json:"from"`
	To   models.ClusterAlert `json:"to"`
}

// BlockedLink is a candidate rejected by the hard-block table.
type BlockedLink struct {
	CandidateLink
	ReasonCode  string `json:"reason_code"`
	InvariantID string `json:"invariant_id"`
	Description string `json:"description"`
}

// AnnotatedLink is a candidate a soft rule matched; it still reaches
// the model, carrying a confidence hint.
type AnnotatedLink struct {
	CandidateLink
	ConfidenceHint float64 `json:"confidence_hint"`
	Reason         string  `json:"reason"`
}

// SearchSpace is the firewall's output: every candidate link sorted
// into exactly one bucket.
type SearchSpace struct {
	ValidLinks     []CandidateLink `json:"valid_links"`
	AnnotatedLinks []AnnotatedLink `json:"annotated_links"`
	BlockedLinks   []BlockedLink   `json:"blocked_links"`
	TotalLinks     int             `json:"total_links"`
}

// TopologyContext is what the soft rules see: per-resource health
// beyond the alert list itself.
type TopologyContext struct {
	// NodeHasCascadingEffects reports whether a node alert has observed
	// downstream symptoms (evictions, rescheduled pods).
	NodeHasCascadingEffects map[string]bool
	// StorageBackendHealthy reports whether the backing provisioner of a
	// pending PVC is serving requests.
	StorageBackendHealthy map[string]bool
}

// Firewall buckets candidate causal links before model reasoning.
type Firewall struct {
	logger *logging.Logger
}

// NewFirewall creates a firewall.
func NewFirewall() *Firewall {
	return &Firewall{logger: logging.GetLogger("causal")}
}

// BuildSearchSpace enumerates ordered alert pairs within each cluster
// (both directions) and buckets them. TotalLinks always equals the sum
// of the three bucket sizes.
func (f *Firewall) BuildSearchSpace(clusters []models.IssueCluster, topo TopologyContext) SearchSpace {
	var space SearchSpace
	for _, cluster := range clusters {
		for i, from := range cluster.Alerts {
			for j, to := range cluster.Alerts {
				if i == j {
					continue
				}
				f.bucket(CandidateLink{From: from, To: to}, topo, &space)
			}
		}
	}
	space.TotalLinks = len(space.ValidLinks) + len(space.AnnotatedLinks) + len(space.BlockedLinks)
	f.logger.Debug("causal search space: %d valid, %d annotated, %d blocked",
		len(space.ValidLinks), len(space.AnnotatedLinks), len(space.BlockedLinks))
	return space
}

func (f *Firewall) bucket(link CandidateLink, topo TopologyContext, space *SearchSpace) {
	fromKind := models.KindFromKey(link.From.ResourceKey)
	toKind := models.KindFromKey(link.To.ResourceKey)

	if inv, blocked := LookupBlock(fromKind, toKind); blocked {
		space.BlockedLinks = append(space.BlockedLinks, BlockedLink{
			CandidateLink: link,
			ReasonCode:    ReasonTopologyDirection,
			InvariantID:   inv.ID,
			Description:   inv.Description,
		})
		return
	}

	if annotated, ok := f.softAnnotate(link, fromKind, topo); ok {
		space.AnnotatedLinks = append(space.AnnotatedLinks, annotated)
		return
	}

	space.ValidLinks = append(space.ValidLinks, link)
}

// softAnnotate applies the contextual rules. A match demotes the link's
// prior without removing it from consideration.
func (f *Firewall) softAnnotate(link CandidateLink, fromKind string, topo TopologyContext) (AnnotatedLink, bool) {
	if fromKind == "node" && !topo.NodeHasCascadingEffects[link.From.ResourceKey] {
		return AnnotatedLink{
			CandidateLink:  link,
			ConfidenceHint: 0.2,
			Reason:         "node issue appears transient with no observed cascading effects",
		}, true
	}

	if fromKind == "pvc" && strings.EqualFold(link.From.AlertType, "Pending") &&
		topo.StorageBackendHealthy[link.From.ResourceKey] {
		return AnnotatedLink{
			CandidateLink:  link,
			ConfidenceHint: 0.25,
			Reason:         "PVC pending but storage backend is healthy",
		}, true
	}

	return AnnotatedLink{}, false
}
