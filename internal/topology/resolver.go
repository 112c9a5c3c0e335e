// Package topology builds and prunes the cluster resource graph the
// diagnosis pipeline reasons over. Snapshots are cached per session;
// scope pruning always works on a copy.
package topology

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	corev1 "k8s.io/api/core/v1"

	"github.com/moolen/causeway/internal/collectors"
	"github.com/moolen/causeway/internal/logging"
	"github.com/moolen/causeway/internal/models"
)

const cacheSize = 128

// Resolver builds topology snapshots from the cluster API and caches
// them keyed by session id.
type Resolver struct {
	cluster  *collectors.ClusterClient
	platform models.Platform
	cache    *expirable.LRU[string, *models.TopologySnapshot]
	logger   *logging.Logger
}

// NewResolver creates a resolver with a TTL-bounded snapshot cache.
func NewResolver(cluster *collectors.ClusterClient, platform models.Platform, cacheTTL time.Duration) *Resolver {
	return &Resolver{
		cluster:  cluster,
		platform: platform,
		cache:    expirable.NewLRU[string, *models.TopologySnapshot](cacheSize, nil, cacheTTL),
		logger:   logging.GetLogger("topology"),
	}
}

// Snapshot returns the cached snapshot for a session or builds a fresh
// one. Callers must not mutate the result; prune with Clone-backed
// scope functions instead.
func (r *Resolver) Snapshot(ctx context.Context, sessionID string) (*models.TopologySnapshot, error) {
	if snap, ok := r.cache.Get(sessionID); ok {
		return snap, nil
	}
	snap, err := r.build(ctx)
	if err != nil {
		return nil, err
	}
	r.cache.Add(sessionID, snap)
	return snap, nil
}

// Invalidate drops a session's cached snapshot. Wired to session expiry.
func (r *Resolver) Invalidate(sessionID string) {
	r.cache.Remove(sessionID)
}

func (r *Resolver) build(ctx context.Context) (*models.TopologySnapshot, error) {
	if r.cluster == nil {
		return nil, fmt.Errorf("resolve topology: no cluster access configured")
	}
	snap := &models.TopologySnapshot{
		Nodes:   make(map[string]models.TopologyNode),
		BuiltAt: time.Now().UTC(),
	}

	nodes, _, err := r.cluster.ListNodes(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve nodes: %w", err)
	}
	for _, n := range nodes {
		tn := models.TopologyNode{
			Kind:   "node",
			Name:   n.Name,
			Status: nodeStatus(n),
			Labels: n.Labels,
		}
		snap.Nodes[tn.Key()] = tn
	}

	pods, _, err := r.cluster.ListPods(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("resolve pods: %w", err)
	}
	for _, p := range pods {
		tn := models.TopologyNode{
			Kind:      "pod",
			Name:      p.Name,
			Namespace: p.Namespace,
			Status:    podStatus(p),
			Labels:    p.Labels,
			HostNode:  p.Spec.NodeName,
		}
		key := tn.Key()
		snap.Nodes[key] = tn

		if p.Spec.NodeName != "" {
			snap.Edges = append(snap.Edges, models.TopologyEdge{
				From:     "node/" + p.Spec.NodeName,
				To:       key,
				Relation: models.RelationHosts,
			})
		}
		for _, vol := range p.Spec.Volumes {
			if vol.PersistentVolumeClaim != nil {
				snap.Edges = append(snap.Edges, models.TopologyEdge{
					From:     "pvc/" + p.Namespace + "/" + vol.PersistentVolumeClaim.ClaimName,
					To:       key,
					Relation: models.RelationMountedBy,
				})
			}
		}
	}

	deployments, err := r.cluster.ListDeployments(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("resolve deployments: %w", err)
	}
	for _, d := range deployments {
		tn := models.TopologyNode{
			Kind:      "deploy",
			Name:      d.Name,
			Namespace: d.Namespace,
			Status:    deploymentStatus(d.Status.ReadyReplicas, d.Status.Replicas),
			Labels:    d.Labels,
		}
		key := tn.Key()
		snap.Nodes[key] = tn

		selector := d.Spec.Selector
		for _, p := range pods {
			if p.Namespace == d.Namespace && selector != nil && labelsMatch(selector.MatchLabels, p.Labels) {
				snap.Edges = append(snap.Edges, models.TopologyEdge{
					From:     key,
					To:       "pod/" + p.Namespace + "/" + p.Name,
					Relation: models.RelationOwns,
				})
			}
		}
	}

	services, err := r.cluster.ListServices(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("resolve services: %w", err)
	}
	for _, s := range services {
		tn := models.TopologyNode{
			Kind:      "svc",
			Name:      s.Name,
			Namespace: s.Namespace,
			Status:    "Active",
			Labels:    s.Labels,
		}
		key := tn.Key()
		snap.Nodes[key] = tn

		if len(s.Spec.Selector) > 0 {
			for _, p := range pods {
				if p.Namespace == s.Namespace && labelsMatch(s.Spec.Selector, p.Labels) {
					snap.Edges = append(snap.Edges, models.TopologyEdge{
						From:     key,
						To:       "pod/" + p.Namespace + "/" + p.Name,
						Relation: models.RelationRoutesTo,
					})
				}
			}
		}
	}

	pvcs, _, err := r.cluster.ListPVCs(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("resolve pvcs: %w", err)
	}
	for _, pvc := range pvcs {
		tn := models.TopologyNode{
			Kind:      "pvc",
			Name:      pvc.Name,
			Namespace: pvc.Namespace,
			Status:    string(pvc.Status.Phase),
			Labels:    pvc.Labels,
		}
		key := tn.Key()
		snap.Nodes[key] = tn

		// The bound PV and its storage class join the graph through the
		// claim, both cluster-scoped.
		if pvc.Spec.VolumeName != "" {
			pvKey := "pv/" + pvc.Spec.VolumeName
			if _, ok := snap.Nodes[pvKey]; !ok {
				snap.Nodes[pvKey] = models.TopologyNode{Kind: "pv", Name: pvc.Spec.VolumeName, Status: "Bound"}
			}
			snap.Edges = append(snap.Edges, models.TopologyEdge{
				From: pvKey, To: key, Relation: models.RelationMountedBy,
			})
			if pvc.Spec.StorageClassName != nil && *pvc.Spec.StorageClassName != "" {
				scKey := "sc/" + *pvc.Spec.StorageClassName
				if _, ok := snap.Nodes[scKey]; !ok {
					snap.Nodes[scKey] = models.TopologyNode{Kind: "sc", Name: *pvc.Spec.StorageClassName, Status: "Active"}
				}
				snap.Edges = append(snap.Edges, models.TopologyEdge{
					From: scKey, To: pvKey, Relation: models.RelationMountedBy,
				})
			}
		}
	}

	if r.platform == models.PlatformOpenShift {
		r.addOperators(ctx, snap)
	}

	r.logger.Debug("built topology snapshot: %d nodes, %d edges", len(snap.Nodes), len(snap.Edges))
	return snap, nil
}

// addOperators records operator deployments from the well-known
// operator namespaces so control-plane fan-out correlation can see them.
func (r *Resolver) addOperators(ctx context.Context, snap *models.TopologySnapshot) {
	for _, ns := range collectors.OperatorNamespaces {
		deployments, err := r.cluster.ListDeployments(ctx, ns)
		if err != nil {
			r.logger.Warn("operator discovery in %s failed: %v", ns, err)
			continue
		}
		for _, d := range deployments {
			tn := models.TopologyNode{
				Kind:      "operator",
				Name:      d.Name,
				Namespace: d.Namespace,
				Status:    deploymentStatus(d.Status.ReadyReplicas, d.Status.Replicas),
				Labels:    d.Labels,
			}
			snap.Nodes[tn.Key()] = tn
		}
	}
}

func nodeStatus(n corev1.Node) string {
	for _, cond := range n.Status.Conditions {
		switch cond.Type {
		case corev1.NodeReady:
			if cond.Status != corev1.ConditionTrue {
				return "NotReady"
			}
		case corev1.NodeDiskPressure, corev1.NodeMemoryPressure, corev1.NodePIDPressure:
			if cond.Status == corev1.ConditionTrue {
				return string(cond.Type)
			}
		}
	}
	return "Ready"
}

func podStatus(p corev1.Pod) string {
	for _, cs := range p.Status.ContainerStatuses {
		if cs.State.Waiting != nil && cs.State.Waiting.Reason != "" {
			return cs.State.Waiting.Reason
		}
		if cs.State.Terminated != nil && cs.State.Terminated.Reason != "" &&
			cs.State.Terminated.Reason != "Completed" {
			return cs.State.Terminated.Reason
		}
	}
	if p.Status.Reason != "" {
		return p.Status.Reason
	}
	return string(p.Status.Phase)
}

func deploymentStatus(ready, desired int32) string {
	if desired == 0 || ready == desired {
		return "Available"
	}
	if ready == 0 {
		return "Unavailable"
	}
	return "Degraded"
}

func labelsMatch(selector, labels map[string]string) bool {
	if len(selector) == 0 {
		return false
	}
	for k, v := range selector {
		if labels[k] != v {
			return false
		}
	}
	return true
}
