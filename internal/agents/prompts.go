// Package agents implements the four domain analysis agents. Each
// agent collects a bounded, fixed-shape data payload for its domain,
// asks the model for strict-JSON anomaly findings, and returns a
// DomainReport regardless of how badly the model misbehaves.
package agents

import (
	"fmt"

	"github.com/moolen/causeway/internal/models"
)

const outputContract = `## Output Format

Respond with STRICT JSON only, no prose, matching exactly:

{
  "anomalies": [
    {
      "domain": "<your domain>",
      "anomaly_id": "<short stable identifier>",
      "description": "<one-sentence factual description>",
      "evidence_ref": "<which payload section supports this>",
      "severity": "critical|high|medium|info"
    }
  ],
  "ruled_out": ["<hypotheses you checked and excluded>"],
  "confidence": 0
}

confidence is an integer 0-100 reflecting how complete your input data
was and how certain the findings are.

## Important

- Report only what the payload supports. Do NOT speculate.
- An empty anomalies list with high confidence is a valid, useful answer.
- Never invent resource names that do not appear in the payload.`

var domainFocus = map[models.Domain]string{
	models.DomainControlPlane: `Focus on the control plane: API server availability and
latency, etcd health, scheduler and controller-manager behavior, and
webhook failures. Pod-level application errors are NOT your concern
unless they run in a control-plane namespace.`,
	models.DomainCompute: `Focus on nodes and workloads: node conditions (Ready,
DiskPressure, MemoryPressure, PIDPressure), kubelet behavior, pod
scheduling failures, evictions, OOM kills, and crash loops.`,
	models.DomainNetwork: `Focus on networking: DNS resolution (CoreDNS), service
endpoints, ingress routing, network policy drops, and CNI plugin
health. A pod crash is only yours if the crash is network-caused.`,
	models.DomainStorage: `Focus on storage: PVC binding, volume attachment and mount
failures, storage class provisioning, and disk capacity. Treat a pod
failure as yours only when a volume is implicated.`,
}

// systemPrompt builds the domain agent instruction, parametrized by
// platform so OpenShift-specific components get named correctly.
func systemPrompt(domain models.Domain, platform models.Platform) string {
	platformNote := "The cluster is vanilla Kubernetes."
	if platform == models.PlatformOpenShift {
		platformNote = `The cluster is OpenShift. Consider ClusterOperators, the
openshift-apiserver, and machine-config behavior where relevant.`
	}

	return fmt.Sprintf(`You are the %s domain analysis agent in a cluster
diagnosis pipeline. You receive a scoped data payload and report
anomalies in your domain ONLY.

## Your Role

%s

%s

## Input

The user message contains a JSON payload with the scoped topology for
your domain, recent events, and resource statuses. Sections may carry
a truncation flag; factor truncation into your confidence.

%s`, domain, domainFocus[domain], platformNote, outputContract)
}
