// Package causal encodes the physical constraints of cluster causality
// and filters candidate causal links before any model reasons about
// them. Workloads cannot cause infrastructure failures; the hard-block
// table makes that direction unexpressable.
package causal

import "strings"

// Invariant is one hard-blocked (from_kind, to_kind) causal direction.
type Invariant struct {
	ID          string `json:"id"`
	FromKind    string `json:"from_kind"`
	ToKind      string `json:"to_kind"`
	Description string `json:"description"`
}

// The hard-block table is closed: only these pairs are ever blocked.
var hardBlocked = []Invariant{
	{ID: "INV-CP-001", FromKind: "pod", ToKind: "etcd",
		Description: "a pod cannot cause etcd failures"},
	{ID: "INV-CP-002", FromKind: "service", ToKind: "node",
		Description: "a service cannot cause node failures"},
	{ID: "INV-CP-003", FromKind: "namespace", ToKind: "control_plane",
		Description: "a namespace cannot cause control plane failures"},
	{ID: "INV-CP-004", FromKind: "pvc", ToKind: "api_server",
		Description: "a PVC cannot cause API server failures"},
	{ID: "INV-CP-005", FromKind: "ingress", ToKind: "etcd",
		Description: "an ingress cannot cause etcd failures"},
	{ID: "INV-CP-006", FromKind: "pod", ToKind: "node",
		Description: "a pod cannot cause node-level failures"},
	{ID: "INV-CP-007", FromKind: "configmap", ToKind: "node",
		Description: "a configmap cannot cause node failures"},
	{ID: "INV-CP-008", FromKind: "pod", ToKind: "network_plugin",
		Description: "a pod cannot cause network plugin failures"},
	{ID: "INV-CP-009", FromKind: "pod", ToKind: "storage_class",
		Description: "a pod cannot cause storage class failures"},
	{ID: "INV-CP-010", FromKind: "deployment", ToKind: "pv",
		Description: "a deployment cannot cause persistent volume failures"},
}

var blockIndex = func() map[string]Invariant {
	idx := make(map[string]Invariant, len(hardBlocked))
	for _, inv := range hardBlocked {
		idx[inv.FromKind+"->"+inv.ToKind] = inv
	}
	return idx
}()

// LookupBlock returns the invariant blocking from_kind→to_kind, if any.
func LookupBlock(fromKind, toKind string) (Invariant, bool) {
	inv, ok := blockIndex[strings.ToLower(fromKind)+"->"+strings.ToLower(toKind)]
	return inv, ok
}

// Invariants returns the full hard-block table for display.
func Invariants() []Invariant {
	out := make([]Invariant, len(hardBlocked))
	copy(out, hardBlocked)
	return out
}
