package tools

import (
	"context"
	"fmt"
	"strings"

	"sigs.k8s.io/yaml"

	"github.com/moolen/causeway/internal/collectors"
	"github.com/moolen/causeway/internal/models"
)

func (e *Executor) describeResource(ctx context.Context, params Params) models.ToolResult {
	if e.cluster == nil {
		return models.ToolResult{Success: false, Error: ErrCategoryUnconfig,
			Domain: models.DomainUnknown, EvidenceType: models.EvidenceTypeK8sResource}
	}

	kind := params.str("kind")
	namespace := params.str("namespace")
	name := params.str("name")

	obj, err := e.cluster.GetResourceObject(ctx, kind, namespace, name)
	if err != nil {
		e.logger.Debug("describe_resource failed: %v", err)
		return clusterFailure(err, ClassifyDomain(kind), models.EvidenceTypeK8sResource, namespace, strings.ToLower(kind))
	}

	rendered, err := yaml.Marshal(obj)
	if err != nil {
		return failure(ErrCategoryClusterAPI, err, ClassifyDomain(kind), models.EvidenceTypeK8sResource)
	}
	text := string(rendered)

	// Status conditions that are not True become the evidence snippets.
	var snippets []string
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "reason:") || strings.Contains(trimmed, "status: \"False\"") {
			snippets = append(snippets, trimmed)
			if len(snippets) >= 20 {
				break
			}
		}
	}

	return models.ToolResult{
		Success:          true,
		RawOutput:        text,
		Summary:          fmt.Sprintf("described %s %s", strings.ToLower(kind), resourceRef(namespace, name)),
		EvidenceSnippets: snippets,
		EvidenceType:     models.EvidenceTypeK8sResource,
		Domain:           ClassifyDomain(kind),
		Severity:         models.SeverityInfo,
		Metadata: map[string]any{
			"kind":      kind,
			"namespace": namespace,
			"name":      name,
		},
	}
}

// ResourceAccess is the bounded accessor surface the API layer exposes
// directly, outside the intent registry.
type ResourceAccess struct {
	YAML   string   `json:"yaml,omitempty"`
	Logs   string   `json:"logs,omitempty"`
	Events []string `json:"events,omitempty"`
	Error  string   `json:"error,omitempty"`
}

// GetResourceYAML renders one resource as YAML with the standard
// sanitization rule applied to errors.
func (e *Executor) GetResourceYAML(ctx context.Context, kind, namespace, name string) ResourceAccess {
	if e.cluster == nil {
		return ResourceAccess{Error: ErrCategoryUnconfig}
	}
	obj, err := e.cluster.GetResourceObject(ctx, kind, namespace, name)
	if err != nil {
		e.logger.Debug("get_resource_yaml failed: %v", err)
		return ResourceAccess{Error: sanitizeClusterError(err, namespace, strings.ToLower(kind))}
	}
	rendered, err := yaml.Marshal(obj)
	if err != nil {
		return ResourceAccess{Error: ErrCategoryClusterAPI}
	}
	return ResourceAccess{YAML: string(rendered)}
}

// GetResourceEvents lists the events referencing one resource.
func (e *Executor) GetResourceEvents(ctx context.Context, kind, namespace, name string) ResourceAccess {
	if e.cluster == nil {
		return ResourceAccess{Error: ErrCategoryUnconfig}
	}
	events, err := e.cluster.EventsForObject(ctx, namespace, kind, name)
	if err != nil {
		e.logger.Debug("get_resource_events failed: %v", err)
		return ResourceAccess{Error: sanitizeClusterError(err, "", "")}
	}
	lines := make([]string, 0, len(events))
	for _, ev := range events {
		lines = append(lines, formatEvent(ev.Type, ev.Reason, ev.InvolvedObject.Kind, ev.InvolvedObject.Name, ev.Message))
	}
	return ResourceAccess{Events: lines}
}

// GetPodLogs tails one container's logs with tail_lines clamping.
func (e *Executor) GetPodLogs(ctx context.Context, namespace, pod, container string, tailLines int64) ResourceAccess {
	if e.cluster == nil {
		return ResourceAccess{Error: ErrCategoryUnconfig}
	}
	logs, _, err := e.cluster.GetPodLogs(ctx, namespace, pod, container,
		collectors.ClampTailLines(tailLines), false)
	if err != nil {
		e.logger.Debug("get_pod_logs failed: %v", err)
		return ResourceAccess{Error: sanitizeClusterError(err, namespace, "pod")}
	}
	return ResourceAccess{Logs: logs}
}

func resourceRef(namespace, name string) string {
	if namespace == "" {
		return name
	}
	return namespace + "/" + name
}
