package collectors

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/utils/ptr"

	appsv1 "k8s.io/api/apps/v1"
	networkingv1 "k8s.io/api/networking/v1"

	"github.com/moolen/causeway/internal/logging"
	"github.com/moolen/causeway/internal/models"
)

// Per-fetch result caps. Hitting a cap sets the matching truncation
// flag on the caller's report rather than failing the fetch.
const (
	MaxEvents       = 500
	MaxPods         = 1000
	MaxLogLines     = 2000
	MaxMetricPoints = 500
	MaxNodes        = 500
	MaxPVCs         = 500

	MinTailLines = 1
	MaxTailLines = 5000
)

// ClampTailLines bounds a requested log tail to [1, 5000].
func ClampTailLines(n int64) int64 {
	if n < MinTailLines {
		return MinTailLines
	}
	if n > MaxTailLines {
		return MaxTailLines
	}
	return n
}

// ClusterClient wraps a Kubernetes clientset with capped, truncation-aware
// list operations. It accepts kubernetes.Interface so tests can inject
// the fake clientset.
type ClusterClient struct {
	clientset kubernetes.Interface
	logger    *logging.Logger
}

// NewClusterClient wraps an existing clientset.
func NewClusterClient(clientset kubernetes.Interface) *ClusterClient {
	return &ClusterClient{
		clientset: clientset,
		logger:    logging.GetLogger("collectors.cluster"),
	}
}

// NewClusterClientFromKubeconfig builds a clientset from a kubeconfig
// path, falling back to in-cluster config when the path is empty.
func NewClusterClientFromKubeconfig(kubeconfigPath string) (*ClusterClient, error) {
	var cfg *rest.Config
	var err error
	if kubeconfigPath != "" {
		cfg, err = clientcmd.BuildConfigFromFlags("", kubeconfigPath)
	} else {
		cfg, err = rest.InClusterConfig()
	}
	if err != nil {
		return nil, fmt.Errorf("load kubernetes config: %w", err)
	}
	clientset, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("create kubernetes client: %w", err)
	}
	return NewClusterClient(clientset), nil
}

// ListPods returns pods in the namespace (all namespaces when empty),
// capped at MaxPods. The bool reports whether the cap was hit.
func (c *ClusterClient) ListPods(ctx context.Context, namespace string) ([]corev1.Pod, bool, error) {
	list, err := c.clientset.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{Limit: MaxPods})
	if err != nil {
		return nil, false, fmt.Errorf("list pods: %w", err)
	}
	truncated := list.Continue != "" || len(list.Items) > MaxPods
	items := list.Items
	if len(items) > MaxPods {
		items = items[:MaxPods]
	}
	return items, truncated, nil
}

// ListNodes returns cluster nodes capped at MaxNodes.
func (c *ClusterClient) ListNodes(ctx context.Context) ([]corev1.Node, bool, error) {
	list, err := c.clientset.CoreV1().Nodes().List(ctx, metav1.ListOptions{Limit: MaxNodes})
	if err != nil {
		return nil, false, fmt.Errorf("list nodes: %w", err)
	}
	truncated := list.Continue != "" || len(list.Items) > MaxNodes
	items := list.Items
	if len(items) > MaxNodes {
		items = items[:MaxNodes]
	}
	return items, truncated, nil
}

// ListDeployments returns deployments in the namespace.
func (c *ClusterClient) ListDeployments(ctx context.Context, namespace string) ([]appsv1.Deployment, error) {
	list, err := c.clientset.AppsV1().Deployments(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("list deployments: %w", err)
	}
	return list.Items, nil
}

// ListStatefulSets returns statefulsets in the namespace.
func (c *ClusterClient) ListStatefulSets(ctx context.Context, namespace string) ([]appsv1.StatefulSet, error) {
	list, err := c.clientset.AppsV1().StatefulSets(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("list statefulsets: %w", err)
	}
	return list.Items, nil
}

// ListServices returns services in the namespace.
func (c *ClusterClient) ListServices(ctx context.Context, namespace string) ([]corev1.Service, error) {
	list, err := c.clientset.CoreV1().Services(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	return list.Items, nil
}

// ListPVCs returns persistent volume claims capped at MaxPVCs.
func (c *ClusterClient) ListPVCs(ctx context.Context, namespace string) ([]corev1.PersistentVolumeClaim, bool, error) {
	list, err := c.clientset.CoreV1().PersistentVolumeClaims(namespace).List(ctx, metav1.ListOptions{Limit: MaxPVCs})
	if err != nil {
		return nil, false, fmt.Errorf("list pvcs: %w", err)
	}
	truncated := list.Continue != "" || len(list.Items) > MaxPVCs
	items := list.Items
	if len(items) > MaxPVCs {
		items = items[:MaxPVCs]
	}
	return items, truncated, nil
}

// ListIngresses returns ingresses in the namespace.
func (c *ClusterClient) ListIngresses(ctx context.Context, namespace string) ([]networkingv1.Ingress, error) {
	list, err := c.clientset.NetworkingV1().Ingresses(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("list ingresses: %w", err)
	}
	return list.Items, nil
}

// ListEvents returns events in the namespace sorted newest first,
// capped at MaxEvents.
func (c *ClusterClient) ListEvents(ctx context.Context, namespace string) ([]corev1.Event, bool, error) {
	list, err := c.clientset.CoreV1().Events(namespace).List(ctx, metav1.ListOptions{Limit: MaxEvents})
	if err != nil {
		return nil, false, fmt.Errorf("list events: %w", err)
	}
	truncated := list.Continue != "" || len(list.Items) > MaxEvents
	items := list.Items
	if len(items) > MaxEvents {
		items = items[:MaxEvents]
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].LastTimestamp.After(items[j].LastTimestamp.Time)
	})
	return items, truncated, nil
}

// EventsForObject returns events referencing a specific object.
func (c *ClusterClient) EventsForObject(ctx context.Context, namespace, kind, name string) ([]corev1.Event, error) {
	selector := fmt.Sprintf("involvedObject.kind=%s,involvedObject.name=%s", kind, name)
	list, err := c.clientset.CoreV1().Events(namespace).List(ctx, metav1.ListOptions{
		FieldSelector: selector,
		Limit:         MaxEvents,
	})
	if err != nil {
		return nil, fmt.Errorf("list events for %s/%s: %w", kind, name, err)
	}
	return list.Items, nil
}

// GetPod returns one pod by name.
func (c *ClusterClient) GetPod(ctx context.Context, namespace, name string) (*corev1.Pod, error) {
	pod, err := c.clientset.CoreV1().Pods(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return nil, fmt.Errorf("get pod %s/%s: %w", namespace, name, err)
	}
	return pod, nil
}

// GetPodLogs fetches up to tailLines of one container's logs. An empty
// container name selects the pod's default container. The bool reports
// whether the line cap clipped the output.
func (c *ClusterClient) GetPodLogs(ctx context.Context, namespace, name, container string, tailLines int64, previous bool) (string, bool, error) {
	tail := ClampTailLines(tailLines)
	if tail > MaxLogLines {
		tail = MaxLogLines
	}
	opts := &corev1.PodLogOptions{
		TailLines: ptr.To(tail),
		Previous:  previous,
	}
	if container != "" {
		opts.Container = container
	}

	stream, err := c.clientset.CoreV1().Pods(namespace).GetLogs(name, opts).Stream(ctx)
	if err != nil {
		return "", false, fmt.Errorf("stream logs for pod %s/%s: %w", namespace, name, err)
	}
	defer stream.Close()

	data, err := io.ReadAll(stream)
	if err != nil {
		return "", false, fmt.Errorf("read logs for pod %s/%s: %w", namespace, name, err)
	}
	text := string(data)
	lines := strings.Count(text, "\n")
	return text, int64(lines) >= tail, nil
}

// GetResourceObject fetches one typed resource by kind. Kind matching
// is case-insensitive and accepts the common short names.
func (c *ClusterClient) GetResourceObject(ctx context.Context, kind, namespace, name string) (any, error) {
	switch strings.ToLower(kind) {
	case "pod", "pods", "po":
		return c.clientset.CoreV1().Pods(namespace).Get(ctx, name, metav1.GetOptions{})
	case "node", "nodes", "no":
		return c.clientset.CoreV1().Nodes().Get(ctx, name, metav1.GetOptions{})
	case "deployment", "deployments", "deploy":
		return c.clientset.AppsV1().Deployments(namespace).Get(ctx, name, metav1.GetOptions{})
	case "statefulset", "statefulsets", "sts":
		return c.clientset.AppsV1().StatefulSets(namespace).Get(ctx, name, metav1.GetOptions{})
	case "service", "services", "svc":
		return c.clientset.CoreV1().Services(namespace).Get(ctx, name, metav1.GetOptions{})
	case "persistentvolumeclaim", "persistentvolumeclaims", "pvc":
		return c.clientset.CoreV1().PersistentVolumeClaims(namespace).Get(ctx, name, metav1.GetOptions{})
	case "configmap", "configmaps", "cm":
		return c.clientset.CoreV1().ConfigMaps(namespace).Get(ctx, name, metav1.GetOptions{})
	case "ingress", "ingresses", "ing":
		return c.clientset.NetworkingV1().Ingresses(namespace).Get(ctx, name, metav1.GetOptions{})
	case "namespace", "namespaces", "ns":
		return c.clientset.CoreV1().Namespaces().Get(ctx, name, metav1.GetOptions{})
	default:
		return nil, fmt.Errorf("unsupported resource kind %q", kind)
	}
}

// OperatorNamespaces lists the namespaces whose presence indicates
// platform operators; used to decide whether operator-focused checks run.
var OperatorNamespaces = []string{
	"openshift-operators",
	"operators",
	"olm",
}

// DetectPlatform inspects well-known namespaces to distinguish
// OpenShift from vanilla Kubernetes.
func (c *ClusterClient) DetectPlatform(ctx context.Context) models.Platform {
	_, err := c.clientset.CoreV1().Namespaces().Get(ctx, "openshift-apiserver", metav1.GetOptions{})
	if err == nil {
		return models.PlatformOpenShift
	}
	return models.PlatformKubernetes
}
