package collectors

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes/fake"
)

func TestListPods(t *testing.T) {
	clientset := fake.NewSimpleClientset(
		&corev1.Pod{ObjectMeta: metav1.ObjectMeta{Name: "api-0", Namespace: "prod"}},
		&corev1.Pod{ObjectMeta: metav1.ObjectMeta{Name: "api-1", Namespace: "prod"}},
		&corev1.Pod{ObjectMeta: metav1.ObjectMeta{Name: "db-0", Namespace: "staging"}},
	)
	client := NewClusterClient(clientset)

	pods, truncated, err := client.ListPods(context.Background(), "prod")
	require.NoError(t, err)
	assert.False(t, truncated)
	assert.Len(t, pods, 2)

	all, _, err := client.ListPods(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestListEventsSortedNewestFirst(t *testing.T) {
	now := time.Now()
	var objs []runtime.Object
	for i := 0; i < 3; i++ {
		objs = append(objs, &corev1.Event{
			ObjectMeta:    metav1.ObjectMeta{Name: fmt.Sprintf("evt-%d", i), Namespace: "prod"},
			Reason:        "BackOff",
			LastTimestamp: metav1.NewTime(now.Add(time.Duration(i) * time.Minute)),
		})
	}
	client := NewClusterClient(fake.NewSimpleClientset(objs...))

	events, truncated, err := client.ListEvents(context.Background(), "prod")
	require.NoError(t, err)
	assert.False(t, truncated)
	require.Len(t, events, 3)
	assert.Equal(t, "evt-2", events[0].Name)
	assert.Equal(t, "evt-0", events[2].Name)
}

func TestGetPod(t *testing.T) {
	client := NewClusterClient(fake.NewSimpleClientset(
		&corev1.Pod{ObjectMeta: metav1.ObjectMeta{Name: "api-0", Namespace: "prod"}},
	))

	pod, err := client.GetPod(context.Background(), "prod", "api-0")
	require.NoError(t, err)
	assert.Equal(t, "api-0", pod.Name)

	_, err = client.GetPod(context.Background(), "prod", "missing")
	assert.Error(t, err)
}

func TestGetPodLogs(t *testing.T) {
	client := NewClusterClient(fake.NewSimpleClientset(
		&corev1.Pod{ObjectMeta: metav1.ObjectMeta{Name: "api-0", Namespace: "prod"}},
	))

	// The fake clientset returns a fixed body for log streams; the call
	// path and clamping are what we exercise here.
	logs, _, err := client.GetPodLogs(context.Background(), "prod", "api-0", "", 100, false)
	require.NoError(t, err)
	assert.NotEmpty(t, logs)
}

func TestDetectPlatform(t *testing.T) {
	vanilla := NewClusterClient(fake.NewSimpleClientset())
	assert.Equal(t, "kubernetes", string(vanilla.DetectPlatform(context.Background())))

	openshift := NewClusterClient(fake.NewSimpleClientset(
		&corev1.Namespace{ObjectMeta: metav1.ObjectMeta{Name: "openshift-apiserver"}},
	))
	assert.Equal(t, "openshift", string(openshift.DetectPlatform(context.Background())))
}
