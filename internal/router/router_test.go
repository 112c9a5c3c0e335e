package router

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/moolen/causeway/internal/collectors"
	"github.com/moolen/causeway/internal/evidence"
	"github.com/moolen/causeway/internal/models"
	"github.com/moolen/causeway/internal/provider"
	"github.com/moolen/causeway/internal/tools"
)

type memorySink struct {
	deduper *evidence.Deduper
	pins    []models.EvidencePin
}

func newMemorySink() *memorySink {
	return &memorySink{deduper: evidence.NewDeduper()}
}

func (m *memorySink) Persist(pin models.EvidencePin) (string, bool) {
	if !m.deduper.Admit(pin) {
		return "", false
	}
	m.pins = append(m.pins, pin)
	return pin.ID, true
}

func clusterRouter(t *testing.T, llm provider.Provider) (*Router, *memorySink) {
	t.Helper()
	clientset := fake.NewSimpleClientset(&corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: "checkout-0", Namespace: "prod"},
		Status:     corev1.PodStatus{Phase: corev1.PodRunning},
	})
	executor := tools.NewExecutor(tools.Options{Cluster: collectors.NewClusterClient(clientset)})
	sink := newMemorySink()
	r := New(executor, llm, sink, evidence.RouterContext{
		Namespace: "prod", Service: "checkout", ResourceName: "checkout-0",
	})
	return r, sink
}

func TestQuickActionCreatesPin(t *testing.T) {
	r, sink := clusterRouter(t, provider.NewMockProvider())

	resp, err := r.Investigate(context.Background(), Request{
		QuickAction: "pod_status",
		Params:      tools.Params{"pod": "checkout-0"},
	})
	require.NoError(t, err)
	assert.True(t, resp.Result.Success, resp.Result.Error)
	assert.NotEmpty(t, resp.PinID)

	require.Len(t, sink.pins, 1)
	pin := sink.pins[0]
	assert.Equal(t, models.TriggeredByQuickAction, pin.TriggeredBy)
	assert.Equal(t, models.EvidenceSourceManual, pin.Source)
	assert.Equal(t, "router", pin.SourceAgent)
	assert.Equal(t, "prod", pin.Namespace)
}

func TestQuickActionFillsContextDefaults(t *testing.T) {
	r, sink := clusterRouter(t, provider.NewMockProvider())

	// Neither namespace nor pod are passed; both come from the session.
	resp, err := r.Investigate(context.Background(), Request{QuickAction: "pod_status"})
	require.NoError(t, err)
	assert.True(t, resp.Result.Success, resp.Result.Error)
	require.Len(t, sink.pins, 1)
}

func TestUnknownQuickAction(t *testing.T) {
	r, _ := clusterRouter(t, provider.NewMockProvider())
	_, err := r.Investigate(context.Background(), Request{QuickAction: "reboot_cluster"})
	assert.ErrorContains(t, err, "unknown quick action")
}

func TestDuplicateSuppressed(t *testing.T) {
	r, sink := clusterRouter(t, provider.NewMockProvider())

	req := Request{QuickAction: "pod_status", Params: tools.Params{"pod": "checkout-0"}}
	first, err := r.Investigate(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, first.Duplicate)

	second, err := r.Investigate(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Len(t, sink.pins, 1)
}

func TestSmartPathSelectsIntent(t *testing.T) {
	mock := provider.NewMockProvider(provider.MockResponse{
		Content: `{"intent": "check_pod_status", "params": {"namespace": "prod", "pod": "checkout-0"}}`,
	})
	r, sink := clusterRouter(t, mock)

	resp, err := r.Investigate(context.Background(), Request{
		Query: "is the checkout pod healthy?",
	})
	require.NoError(t, err)
	assert.True(t, resp.Result.Success, resp.Result.Error)
	require.Len(t, sink.pins, 1)
	assert.Equal(t, models.TriggeredByUserChat, sink.pins[0].TriggeredBy)
	assert.Equal(t, "check_pod_status", sink.pins[0].SourceTool)

	// The model saw the query and the intent registry.
	require.NotEmpty(t, mock.Calls)
	assert.Contains(t, mock.Calls[0].Messages[0].Content, "checkout pod healthy")
	assert.Contains(t, mock.Calls[0].Messages[0].Content, "fetch_pod_logs")
}

func TestSmartPathRejectsUnknownIntent(t *testing.T) {
	mock := provider.NewMockProvider(provider.MockResponse{
		Content: `{"intent": "delete_namespace", "params": {}}`,
	})
	r, _ := clusterRouter(t, mock)

	_, err := r.Investigate(context.Background(), Request{Query: "clean up prod"})
	assert.ErrorContains(t, err, "unknown intent")
}

func TestSmartPathTimeout(t *testing.T) {
	mock := provider.NewMockProvider()
	mock.Hang = true
	r, _ := clusterRouter(t, mock)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := r.Investigate(ctx, Request{Query: "anything"})
	assert.ErrorContains(t, err, "intent selection failed")
}

func TestEmptyRequestRejected(t *testing.T) {
	r, _ := clusterRouter(t, provider.NewMockProvider())
	_, err := r.Investigate(context.Background(), Request{})
	assert.Error(t, err)
}

func TestSinceMinutes(t *testing.T) {
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

	minutes, err := SinceMinutes("20 minutes ago", now)
	require.NoError(t, err)
	assert.Equal(t, 20, minutes)

	minutes, err = SinceMinutes("since 2 hours ago", now)
	require.NoError(t, err)
	assert.Equal(t, 120, minutes)

	// Windows beyond the executor bound are clamped.
	minutes, err = SinceMinutes("3 days ago", now)
	require.NoError(t, err)
	assert.Equal(t, 1440, minutes)

	_, err = SinceMinutes("", now)
	assert.Error(t, err)

	_, err = SinceMinutes("gibberish zzz", now)
	assert.Error(t, err)
}
