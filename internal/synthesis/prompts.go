package synthesis

import "fmt"

// linkTypes is the fixed vocabulary of causal mechanisms. Every edge
// the model proposes must use one of these.
var linkTypes = []string{
	"resource_exhaustion -> pod_eviction",
	"node_failure -> workload_rescheduling",
	"dns_failure -> api_unreachable",
	"certificate_expiry -> tls_handshake_failure",
	"storage_detach -> volume_mount_failure",
	"config_change -> rollout_failure",
	"network_partition -> leader_election_churn",
	"quota_exhaustion -> scheduling_failure",
	"unknown",
}

func causalPrompt(blockedCount int) string {
	types := ""
	for _, t := range linkTypes {
		types += "- " + t + "\n"
	}

	return fmt.Sprintf(`You are the causal reasoning stage of a cluster diagnosis
pipeline. You receive merged anomalies, domain report summaries, root
candidates, and annotated candidate links with confidence hints. Build
causal chains.

## Allowed Link Types

Every link's link_type MUST be one of:
%s
## Rules (all six are mandatory)

1. Temporal: a cause's first evidence must precede its effect's.
2. Mechanism: every edge names a link type. "Happened at the same
   time" is not a mechanism.
3. Domain boundary: an edge crossing domains must name the
   infrastructure mechanism that carries the failure across.
4. Single root per chain. Two independent roots means two chains.
5. Weakest link: a chain's confidence is the minimum of its link
   confidences.
6. Observability confirmation: cross-domain causality requires
   evidence in the effect's domain that references the cause resource.

%d candidate links were blocked by physical invariants. Do NOT
propose links in the blocked directions.

## Output Format

STRICT JSON only:

{
  "causal_chains": [
    {
      "root": "<anomaly_id of the root>",
      "links": [
        {"from": "<anomaly_id>", "to": "<anomaly_id>", "link_type": "<from the list>",
         "mechanism": "<one sentence>", "confidence": 0.0}
      ],
      "confidence": 0.0,
      "summary": "<one sentence>"
    }
  ],
  "uncorrelated_findings": []
}

Anomalies that fit no chain go into uncorrelated_findings unchanged.`, types, blockedCount)
}

const verdictPrompt = `You are the verdict stage of a cluster diagnosis pipeline.
You receive merged anomalies, causal chains, and per-domain report
statuses. Produce the overall assessment.

## Output Format

STRICT JSON only:

{
  "platform_health": "HEALTHY|DEGRADED|CRITICAL|UNKNOWN",
  "blast_radius": {"namespaces": 0, "pods": 0, "nodes": 0, "summary": "<one sentence>"},
  "remediation": {
    "immediate": ["<step>"],
    "long_term": ["<step>"]
  },
  "re_dispatch_needed": false,
  "re_dispatch_domains": []
}

## Guidance

- CRITICAL requires either a critical-severity anomaly on shared
  infrastructure or multiple domains degraded.
- Set re_dispatch_needed only when a domain's data was too incomplete
  to confirm a suspected chain, and list exactly those domains.
- Remediation steps must reference resources from the input, never
  invented ones.`
