package agents

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/moolen/causeway/internal/collectors"
	"github.com/moolen/causeway/internal/config"
	"github.com/moolen/causeway/internal/models"
	"github.com/moolen/causeway/internal/provider"
)

type recordingSink struct {
	events []string
}

func (r *recordingSink) Emit(agentName, eventType, message string) {
	r.events = append(r.events, agentName+":"+eventType)
}

func testSnapshot() *models.TopologySnapshot {
	snap := &models.TopologySnapshot{
		Nodes:   make(map[string]models.TopologyNode),
		BuiltAt: time.Now(),
	}
	for _, n := range []models.TopologyNode{
		{Kind: "node", Name: "worker-1", Status: "NotReady"},
		{Kind: "pod", Name: "api-0", Namespace: "prod", Status: "CrashLoopBackOff"},
		{Kind: "svc", Name: "api", Namespace: "prod", Status: "Active"},
		{Kind: "pvc", Name: "data", Namespace: "prod", Status: "Pending"},
	} {
		snap.Nodes[n.Key()] = n
	}
	return snap
}

func TestRunParsesStrictJSON(t *testing.T) {
	mock := provider.NewMockProvider(provider.MockResponse{Content: `{
		"anomalies": [
			{"domain": "compute", "anomaly_id": "crashloop-api", "description": "api-0 is crash looping",
			 "evidence_ref": "resources", "severity": "high"}
		],
		"ruled_out": ["node disk pressure"],
		"confidence": 80
	}`})

	agent := New(models.DomainCompute, models.PlatformKubernetes, mock, nil, nil, nil)
	report := agent.Run(context.Background(), models.DiagnosticScope{Level: models.ScopeCluster}, testSnapshot())

	assert.Equal(t, models.StatusSuccess, report.Status)
	assert.Equal(t, 80, report.Confidence)
	require.Len(t, report.Anomalies, 1)
	assert.Equal(t, "crashloop-api", report.Anomalies[0].AnomalyID)
	assert.Equal(t, []string{"node disk pressure"}, report.RuledOut)
	assert.Equal(t, []string{"resources"}, report.EvidenceRefs)
	assert.GreaterOrEqual(t, report.DurationMs, int64(0))
}

func TestRunUnparsableOutputDegradesGracefully(t *testing.T) {
	mock := provider.NewMockProvider(provider.MockResponse{Content: "Not JSON"})
	sink := &recordingSink{}

	agent := New(models.DomainControlPlane, models.PlatformKubernetes, mock, nil, nil, sink)
	report := agent.Run(context.Background(), models.DiagnosticScope{Level: models.ScopeCluster}, testSnapshot())

	assert.Equal(t, models.StatusSuccess, report.Status)
	assert.Equal(t, 0, report.Confidence)
	assert.Empty(t, report.Anomalies)
	assert.Equal(t, []string{"control_plane_agent:llm_parse_error"}, sink.events)
}

func TestRunTimeoutIsFailure(t *testing.T) {
	mock := provider.NewMockProvider()
	mock.Hang = true

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	agent := New(models.DomainStorage, models.PlatformKubernetes, mock, nil, nil, nil)
	report := agent.Run(ctx, models.DiagnosticScope{Level: models.ScopeCluster}, testSnapshot())

	assert.Equal(t, models.StatusFailed, report.Status)
	assert.Equal(t, models.FailureTimeout, report.FailureReason)
}

func TestRunFiltersForeignDomainAnomalies(t *testing.T) {
	mock := provider.NewMockProvider(provider.MockResponse{Content: `{
		"anomalies": [
			{"domain": "network", "anomaly_id": "dns-1", "description": "coredns failing", "severity": "high"},
			{"domain": "storage", "anomaly_id": "leak-1", "description": "not my domain", "severity": "low"},
			{"anomaly_id": "blank-domain", "description": "implicitly mine"}
		],
		"confidence": 70
	}`})

	agent := New(models.DomainNetwork, models.PlatformKubernetes, mock, nil, nil, nil)
	report := agent.Run(context.Background(), models.DiagnosticScope{Level: models.ScopeCluster}, testSnapshot())

	require.Len(t, report.Anomalies, 2)
	assert.Equal(t, "dns-1", report.Anomalies[0].AnomalyID)
	assert.Equal(t, "blank-domain", report.Anomalies[1].AnomalyID)
	assert.Equal(t, models.DomainNetwork, report.Anomalies[1].Domain)
	assert.Equal(t, models.SeverityInfo, report.Anomalies[1].Severity)
}

func TestCollectComputeTailsUnhealthyPodLogs(t *testing.T) {
	clientset := fake.NewSimpleClientset(&corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: "api-0", Namespace: "prod"},
	})
	agent := New(models.DomainCompute, models.PlatformKubernetes,
		provider.NewMockProvider(), collectors.NewClusterClient(clientset), nil, nil)

	data := agent.collect(context.Background(),
		models.DiagnosticScope{Level: models.ScopeNamespace, Namespaces: []string{"prod"}},
		testSnapshot())

	// The fake clientset serves a fixed log body for any pod.
	require.NotEmpty(t, data.LogLines)
	assert.Contains(t, data.LogLines[0], "prod/api-0:")
	assert.Contains(t, data.LogLines[0], "fake logs")
	assert.False(t, data.Truncation.LogLines)
}

func TestCollectStorageListsClaims(t *testing.T) {
	clientset := fake.NewSimpleClientset(&corev1.PersistentVolumeClaim{
		ObjectMeta: metav1.ObjectMeta{Name: "data", Namespace: "prod"},
		Status:     corev1.PersistentVolumeClaimStatus{Phase: corev1.ClaimPending},
	})
	agent := New(models.DomainStorage, models.PlatformKubernetes,
		provider.NewMockProvider(), collectors.NewClusterClient(clientset), nil, nil)

	data := agent.collect(context.Background(),
		models.DiagnosticScope{Level: models.ScopeNamespace, Namespaces: []string{"prod"}},
		testSnapshot())

	require.Len(t, data.PVCs, 1)
	assert.Equal(t, "pvc prod/data phase=Pending", data.PVCs[0])
	assert.False(t, data.Truncation.PVCs)
}

func TestCollectMetricsCappedAtMaxPoints(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"success","data":{"result":[{"metric":{"namespace":"prod"},"values":[`))
		for i := 0; i < collectors.MaxMetricPoints+100; i++ {
			if i > 0 {
				_, _ = w.Write([]byte(","))
			}
			_, _ = w.Write([]byte(`[` + strconv.Itoa(1700000000+i*60) + `,"2.0"]`))
		}
		_, _ = w.Write([]byte(`]}]}}`))
	}))
	defer server.Close()

	prom := collectors.NewPrometheusClient(config.ResolveProfile(config.CollectorProfile{
		Name: "prom", Type: config.CollectorPrometheus, Enabled: true, Endpoint: server.URL,
	}), 5*time.Second)
	agent := New(models.DomainCompute, models.PlatformKubernetes,
		provider.NewMockProvider(), nil, prom, nil)

	data := agent.collect(context.Background(),
		models.DiagnosticScope{Level: models.ScopeCluster}, testSnapshot())

	require.Len(t, data.Metrics, 1)
	assert.Contains(t, data.Metrics[0], "namespace=prod")
	assert.Contains(t, data.Metrics[0], "500 samples")
	assert.True(t, data.Truncation.MetricPoints)
}

func TestSystemPromptParametrizedByPlatform(t *testing.T) {
	k8s := systemPrompt(models.DomainControlPlane, models.PlatformKubernetes)
	assert.Contains(t, k8s, "vanilla Kubernetes")
	assert.Contains(t, k8s, "STRICT JSON")

	openshift := systemPrompt(models.DomainControlPlane, models.PlatformOpenShift)
	assert.Contains(t, openshift, "ClusterOperators")
}
