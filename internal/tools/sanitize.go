// Package tools translates named intents with parameter maps into
// normalized tool results. Each intent calls exactly one collector,
// classifies the outcome, and strips anything that could leak endpoint
// detail before the result crosses into pins or event payloads.
package tools

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	apierrors "k8s.io/apimachinery/pkg/api/errors"

	"github.com/moolen/causeway/internal/collectors"
)

// Fixed error category phrases. Raw errors from collectors carry
// hostnames, ports, and sometimes tokens in URLs; only these phrases
// are permitted in ToolResult.Error, Summary, and RawOutput.
const (
	ErrCategoryPrometheus  = "Prometheus query failed"
	ErrCategoryLogSearch   = "log search failed"
	ErrCategoryClusterAPI  = "cluster API call failed"
	ErrCategoryTracing     = "trace query failed"
	ErrCategorySourceHost  = "source host request failed"
	ErrCategoryUnavailable = "collector endpoint unavailable"
	ErrCategoryUnconfig    = "collector not configured"
)

// sanitizeError maps a collector error to its category phrase. The
// original error never leaves this package except through debug logs.
func sanitizeError(category string, err error) string {
	if errors.Is(err, collectors.ErrEndpointOpen) {
		return ErrCategoryUnavailable
	}
	return category
}

// sanitizeClusterError maps a cluster API failure onto a closed
// category variant. HTTP codes and machine reasons come from
// apimachinery's fixed vocabulary; the resource word and namespace come
// from the caller's own request. Nothing else from the raw error is
// disclosed.
func sanitizeClusterError(err error, namespace, resource string) string {
	if errors.Is(err, collectors.ErrEndpointOpen) {
		return ErrCategoryUnavailable
	}
	if apierrors.IsNotFound(err) {
		switch {
		case resource != "" && namespace != "":
			return fmt.Sprintf("%s not found in namespace %s", resource, namespace)
		case resource != "":
			return resource + " not found"
		default:
			return "resource not found"
		}
	}
	var status apierrors.APIStatus
	if errors.As(err, &status) && status.Status().Code != 0 {
		return fmt.Sprintf("cluster API error (%d): %s", status.Status().Code, status.Status().Reason)
	}
	return ErrCategoryClusterAPI
}

// missingParamsError formats the required-parameter validation failure.
// Parameter names are sorted so the message is deterministic.
func missingParamsError(missing []string) string {
	sort.Strings(missing)
	return fmt.Sprintf("missing: %s", strings.Join(missing, ", "))
}
