package tools

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/moolen/causeway/internal/models"
)

func TestClassifySeverity(t *testing.T) {
	tests := []struct {
		name string
		text string
		want models.Severity
	}{
		{"panic wins", "some line\npanic: runtime error\nerror: x", models.SeverityCritical},
		{"fatal wins", "FATAL: cannot connect", models.SeverityCritical},
		{"oom is high", "container was OOMKilled", models.SeverityHigh},
		{"segfault is high", "segfault at 0x0", models.SeverityHigh},
		{"plain error is medium", "error: connection refused", models.SeverityMedium},
		{"timeout is medium", "request timeout after 30s", models.SeverityMedium},
		{"clean logs are info", "started server\nready to accept connections", models.SeverityInfo},
		{"high beats medium", "error: retry\nprocess killed", models.SeverityHigh},
		{"empty", "", models.SeverityInfo},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifySeverity(tt.text))
		})
	}
}

func TestClassifyDomain(t *testing.T) {
	tests := []struct {
		payload string
		want    models.Domain
	}{
		{"coredns pod restarting", models.DomainNetwork},
		{"DNS resolution failures", models.DomainNetwork},
		{"apiserver latency", models.DomainControlPlane},
		{"etcd leader changes", models.DomainControlPlane},
		{"pvc stuck pending", models.DomainStorage},
		{"storageclass missing", models.DomainStorage},
		{"pod crashloop", models.DomainCompute},
		{"node pressure", models.DomainCompute},
		{"deployment rollout", models.DomainCompute},
		{"something else entirely", models.DomainUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.payload, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyDomain(tt.payload))
		})
	}
}

func TestExtractErrorSnippets(t *testing.T) {
	text := "starting up\nerror: connection refused\nall good\npanic: oh no\n\n  ERROR trailing  "
	snippets := ExtractErrorSnippets(text, 10)
	assert.Equal(t, []string{
		"error: connection refused",
		"panic: oh no",
		"ERROR trailing",
	}, snippets)
}

func TestExtractErrorSnippetsCapped(t *testing.T) {
	text := ""
	for i := 0; i < 50; i++ {
		text += "error: line\n"
	}
	assert.Len(t, ExtractErrorSnippets(text, 20), 20)
}

func TestExtractErrorSnippetsCleanText(t *testing.T) {
	assert.Empty(t, ExtractErrorSnippets("all healthy\nnothing to see", 10))
}
