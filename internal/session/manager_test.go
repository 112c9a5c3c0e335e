package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/moolen/causeway/internal/causal"
	"github.com/moolen/causeway/internal/collectors"
	"github.com/moolen/causeway/internal/correlation"
	"github.com/moolen/causeway/internal/critic"
	"github.com/moolen/causeway/internal/diaggraph"
	"github.com/moolen/causeway/internal/models"
	"github.com/moolen/causeway/internal/provider"
	"github.com/moolen/causeway/internal/router"
	"github.com/moolen/causeway/internal/synthesis"
	"github.com/moolen/causeway/internal/tools"
	"github.com/moolen/causeway/internal/topology"
)

type recordingInvalidator struct {
	invalidated []string
}

func (r *recordingInvalidator) Invalidate(sessionID string) {
	r.invalidated = append(r.invalidated, sessionID)
}

func testManager(t *testing.T, llm provider.Provider) (*Manager, *recordingInvalidator) {
	t.Helper()
	clientset := fake.NewSimpleClientset(&corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: "checkout-0", Namespace: "prod"},
		Status:     corev1.PodStatus{Phase: corev1.PodRunning},
	})
	inv := &recordingInvalidator{}
	m := NewManager(Deps{
		LLM:        llm,
		Collectors: tools.Options{Cluster: collectors.NewClusterClient(clientset)},
		Critic:     critic.New(llm),
		Topology:   inv,
		TTL:        time.Hour,
	})
	return m, inv
}

func TestCreateSupervisedSession(t *testing.T) {
	m, _ := testManager(t, provider.NewMockProvider())

	h, err := m.Create(context.Background(), models.IncidentPointer{
		Service: "checkout", Namespace: "prod",
	})
	require.NoError(t, err)
	require.NotNil(t, h.Supervisor())
	assert.Equal(t, models.PhaseInitial, h.Supervisor().Phase())
	assert.Equal(t, 1, m.Count())

	got, err := m.Get(h.ID())
	require.NoError(t, err)
	assert.Same(t, h, got)

	events := h.Events().Events()
	require.NotEmpty(t, events)
	assert.Equal(t, "session_created", events[0].EventType)
}

func TestCreateWithoutServiceNeedsRunner(t *testing.T) {
	m, _ := testManager(t, provider.NewMockProvider())
	_, err := m.Create(context.Background(), models.IncidentPointer{})
	assert.Error(t, err)
}

func TestRunGraphKeepsStateOnNodeFailure(t *testing.T) {
	// A resolver without cluster access fails the first graph node. The
	// partial state still lands on the handle so reports can degrade
	// instead of vanishing.
	runner := diaggraph.NewRunner(
		topology.NewResolver(nil, models.PlatformKubernetes, time.Minute),
		correlation.NewCorrelator(), causal.NewFirewall(),
		nil, synthesis.New(provider.NewMockProvider()), time.Minute)

	m := NewManager(Deps{
		LLM:        provider.NewMockProvider(),
		Collectors: tools.Options{},
		Runner:     runner,
		TTL:        time.Hour,
	})

	h, err := m.Create(context.Background(), models.IncidentPointer{Namespace: "prod"})
	require.NoError(t, err)
	require.Nil(t, h.Supervisor())

	state, err := h.RunGraph(context.Background())
	require.Error(t, err)
	require.NotNil(t, state)
	assert.Same(t, state, h.LastState())
	require.NotEmpty(t, state.Traces)
	assert.Equal(t, models.StatusFailed, state.Traces[0].Status)
}

func TestGetUnknownSession(t *testing.T) {
	m, _ := testManager(t, provider.NewMockProvider())
	_, err := m.Get("nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestInvestigateThroughSession(t *testing.T) {
	m, _ := testManager(t, provider.NewMockProvider())
	h, err := m.Create(context.Background(), models.IncidentPointer{
		Service: "checkout", Namespace: "prod",
	})
	require.NoError(t, err)

	resp, err := h.Investigate(context.Background(), router.Request{
		QuickAction: "pod_status",
		Params:      tools.Params{"pod": "checkout-0"},
	})
	require.NoError(t, err)
	assert.True(t, resp.Result.Success, resp.Result.Error)
	assert.False(t, resp.Duplicate)

	pins := h.Pins()
	require.Len(t, pins, 1)
	assert.Equal(t, "check_pod_status", pins[0].SourceTool)

	// The identical request within the dedup window collapses.
	again, err := h.Investigate(context.Background(), router.Request{
		QuickAction: "pod_status",
		Params:      tools.Params{"pod": "checkout-0"},
	})
	require.NoError(t, err)
	assert.True(t, again.Duplicate)
	assert.Len(t, h.Pins(), 1)
}

func TestReviewEvidenceAppliesVerdicts(t *testing.T) {
	llm := provider.NewMockProvider(provider.MockResponse{
		Content: `{"validation_status": "validated", "causal_role": "root_cause", "confidence": 0.9, "reasoning": "corroborated"}`,
	})
	m, _ := testManager(t, llm)
	h, err := m.Create(context.Background(), models.IncidentPointer{
		Service: "checkout", Namespace: "prod",
	})
	require.NoError(t, err)

	_, err = h.Investigate(context.Background(), router.Request{
		QuickAction: "pod_status",
		Params:      tools.Params{"pod": "checkout-0"},
	})
	require.NoError(t, err)

	reviewed := h.ReviewEvidence(context.Background())
	assert.Equal(t, 1, reviewed)

	pins := h.Pins()
	require.Len(t, pins, 1)
	assert.Equal(t, models.ValidationValidated, pins[0].ValidationStatus)
	assert.Equal(t, models.CausalRoleRootCause, pins[0].CausalRole)

	// All reviewed pins validated pushes the adjustment to its cap.
	assert.InDelta(t, 0.1, h.Ledger().Snapshot().CriticAdjustment, 1e-9)
}

func TestSweepExpiresOldSessions(t *testing.T) {
	m, inv := testManager(t, provider.NewMockProvider())

	h, err := m.Create(context.Background(), models.IncidentPointer{
		Service: "checkout", Namespace: "prod",
	})
	require.NoError(t, err)

	ch, unsubscribe := h.Events().Subscribe()
	defer unsubscribe()

	// Nothing is old enough yet.
	assert.Equal(t, 0, m.Sweep())

	m.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	assert.Equal(t, 1, m.Sweep())
	assert.Equal(t, 0, m.Count())

	_, err = m.Get(h.ID())
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.Equal(t, []string{h.ID()}, inv.invalidated)

	// Expiry cancels the session context and closes subscriptions.
	<-h.ctx.Done()
	for open := true; open; {
		_, open = <-ch
	}
}

func TestStopExpiresEverything(t *testing.T) {
	m, inv := testManager(t, provider.NewMockProvider())
	require.NoError(t, m.Start(context.Background()))

	_, err := m.Create(context.Background(), models.IncidentPointer{
		Service: "checkout", Namespace: "prod",
	})
	require.NoError(t, err)

	require.NoError(t, m.Stop(context.Background()))
	assert.Equal(t, 0, m.Count())
	assert.Len(t, inv.invalidated, 1)
}

func TestExpiryCancelsInFlightTasks(t *testing.T) {
	llm := provider.NewMockProvider()
	llm.Hang = true
	m, _ := testManager(t, llm)

	h, err := m.Create(context.Background(), models.IncidentPointer{
		Service: "checkout", Namespace: "prod",
	})
	require.NoError(t, err)

	// Seed one pending pin so the review has work to hang on.
	_, err = h.Investigate(context.Background(), router.Request{
		QuickAction: "pod_status",
		Params:      tools.Params{"pod": "checkout-0"},
	})
	require.NoError(t, err)

	h.SpawnReview()

	m.now = func() time.Time { return time.Now().Add(25 * time.Hour) }
	done := make(chan struct{})
	go func() {
		m.Sweep()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("sweep did not drain the in-flight review")
	}
}
