package kubernetes

import (
	"context"
	"fmt"
	"sort"
	"strings"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	clientcmdapi "k8s.io/client-go/tools/clientcmd/api"
	"k8s.io/klog/v2"

	"github.com/kiali/kiali-health/pkg/health"
)

// HeaderKey is the type of the context keys carrying request headers.
type HeaderKey string

// OAuthAuthorizationHeader is the context key holding the Authorization header
// forwarded to the Kiali server.
const OAuthAuthorizationHeader = HeaderKey("Authorization")

// CustomUserAgent identifies requests made by this server.
const CustomUserAgent = "kiali-health/1.0.0"

// AppLabel is the label grouping workloads into an app.
const AppLabel = "app"

// Kubernetes reads health related metadata from the cluster.
type Kubernetes struct {
	clientset kubernetes.Interface
}

// New wraps an existing clientset.
func New(clientset kubernetes.Interface) *Kubernetes {
	return &Kubernetes{clientset: clientset}
}

// NewFromKubeConfig builds a client from the given kubeconfig, or from the default
// loading rules (KUBECONFIG, ~/.kube/config, in-cluster) when it is empty.
func NewFromKubeConfig(kubeconfig string) (*Kubernetes, error) {
	cfg, err := resolveRestConfig(kubeconfig)
	if err != nil {
		return nil, err
	}
	clientset, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, err
	}
	return New(clientset), nil
}

func resolveRestConfig(kubeconfig string) (*rest.Config, error) {
	pathOptions := clientcmd.NewDefaultPathOptions()
	if kubeconfig != "" {
		pathOptions.LoadingRules.ExplicitPath = kubeconfig
	}
	clientCmdConfig := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(
		pathOptions.LoadingRules,
		&clientcmd.ConfigOverrides{ClusterInfo: clientcmdapi.Cluster{Server: ""}})
	cfg, err := clientCmdConfig.ClientConfig()
	if err != nil {
		return nil, err
	}
	cfg.UserAgent = CustomUserAgent
	return cfg, nil
}

// HealthAnnotations returns the health.kiali.io/ annotations of obj.
func HealthAnnotations(obj metav1.Object) map[string]string {
	annotations := map[string]string{}
	for k, v := range obj.GetAnnotations() {
		if strings.HasPrefix(k, health.AnnotationPrefix) {
			annotations[k] = v
		}
	}
	return annotations
}

// HealthAnnotations looks up the health annotations of a service, a workload
// (Deployment) or an app. Apps take the annotations of the first of their
// Deployments, by name, that carries any.
func (k *Kubernetes) HealthAnnotations(ctx context.Context, namespace, kind, name string) (map[string]string, error) {
	klog.V(5).Infof("reading health annotations of %s %s/%s", kind, namespace, name)
	switch kind {
	case health.KindService:
		svc, err := k.clientset.CoreV1().Services(namespace).Get(ctx, name, metav1.GetOptions{})
		if err != nil {
			return nil, err
		}
		return HealthAnnotations(svc), nil
	case health.KindWorkload:
		d, err := k.clientset.AppsV1().Deployments(namespace).Get(ctx, name, metav1.GetOptions{})
		if err != nil {
			return nil, err
		}
		return HealthAnnotations(d), nil
	case health.KindApp:
		list, err := k.clientset.AppsV1().Deployments(namespace).List(ctx, metav1.ListOptions{
			LabelSelector: labels.SelectorFromSet(labels.Set{AppLabel: name}).String(),
		})
		if err != nil {
			return nil, err
		}
		sort.Slice(list.Items, func(i, j int) bool { return list.Items[i].Name < list.Items[j].Name })
		for i := range list.Items {
			if annotations := HealthAnnotations(&list.Items[i]); len(annotations) > 0 {
				return annotations, nil
			}
		}
		return map[string]string{}, nil
	default:
		return nil, fmt.Errorf("unsupported kind %q: must be one of 'app', 'service', or 'workload'", kind)
	}
}

// WorkloadStatus reads the replica status of a Deployment.
func (k *Kubernetes) WorkloadStatus(ctx context.Context, namespace, name string) (*health.WorkloadStatus, error) {
	d, err := k.clientset.AppsV1().Deployments(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return nil, err
	}
	ws := health.WorkloadStatusFromDeployment(d)
	return &ws, nil
}
