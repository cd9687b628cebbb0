package health

import (
	"testing"

	"github.com/stretchr/testify/assert"
	appsv1 "k8s.io/api/apps/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/utils/ptr"
)

func TestWorkloadStatus(t *testing.T) {
	tests := []struct {
		name   string
		ws     WorkloadStatus
		status Status
		issue  string
	}{
		{"all available", WorkloadStatus{DesiredReplicas: 2, CurrentReplicas: 2, AvailableReplicas: 2, SyncedProxies: 2}, Healthy, ""},
		{"scaled to zero", WorkloadStatus{DesiredReplicas: 0, SyncedProxies: -1}, NotReady, "scaled to 0 replicas"},
		{"none available", WorkloadStatus{DesiredReplicas: 2, AvailableReplicas: 0, SyncedProxies: -1}, Failure, "0/2 replicas available"},
		{"some available", WorkloadStatus{DesiredReplicas: 3, AvailableReplicas: 1, SyncedProxies: 1}, Degraded, "1/3 replicas available"},
		{"proxies out of sync", WorkloadStatus{DesiredReplicas: 2, AvailableReplicas: 2, SyncedProxies: 1}, Degraded, "1/2 proxies synced"},
		{"unknown proxy sync", WorkloadStatus{DesiredReplicas: 2, AvailableReplicas: 2, SyncedProxies: -1}, Healthy, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			status, issue := tc.ws.Status()
			assert.Equal(t, tc.status, status)
			assert.Equal(t, tc.issue, issue)
		})
	}
}

func TestWorkloadStatusFromDeployment(t *testing.T) {
	d := &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{Name: "reviews-v1", Namespace: "bookinfo"},
		Spec:       appsv1.DeploymentSpec{Replicas: ptr.To(int32(3))},
		Status:     appsv1.DeploymentStatus{Replicas: 3, AvailableReplicas: 2},
	}
	ws := WorkloadStatusFromDeployment(d)
	assert.Equal(t, WorkloadStatus{Name: "reviews-v1", DesiredReplicas: 3, CurrentReplicas: 3, AvailableReplicas: 2, SyncedProxies: -1}, ws)

	status, _ := ws.Status()
	assert.Equal(t, Degraded, status)

	t.Run("unset replicas default to one", func(t *testing.T) {
		ws := WorkloadStatusFromDeployment(&appsv1.Deployment{})
		assert.Equal(t, int32(1), ws.DesiredReplicas)
	})
}

func TestEntityStatus(t *testing.T) {
	calc := NewCalculator(NewResolver(DefaultPolicy()))
	healthyWorkload := WorkloadStatus{Name: "reviews-v1", DesiredReplicas: 1, AvailableReplicas: 1, SyncedProxies: 1}

	t.Run("app without workloads", func(t *testing.T) {
		got := calc.AppStatus("bookinfo", "reviews", AppHealth{})
		assert.Equal(t, NotApplicable, got.Status)
		assert.Equal(t, "no workloads found", got.Issue)
	})

	t.Run("app failing requests dominate healthy workloads", func(t *testing.T) {
		got := calc.AppStatus("bookinfo", "reviews", AppHealth{
			WorkloadStatuses: []WorkloadStatus{healthyWorkload},
			Requests:         RequestHealth{Inbound: RequestType{"http": {"503": 1, "200": 1}}},
		})
		assert.Equal(t, Failure, got.Status)
		assert.Equal(t, "http error rate 50.00%>=10%", got.Issue)
		assert.Equal(t, 50.0, got.ErrorRate())
	})

	t.Run("app replica issue with healthy traffic", func(t *testing.T) {
		got := calc.AppStatus("bookinfo", "reviews", AppHealth{
			WorkloadStatuses: []WorkloadStatus{healthyWorkload, {Name: "reviews-v2", DesiredReplicas: 2, AvailableReplicas: 1, SyncedProxies: 1}},
			Requests:         RequestHealth{Inbound: RequestType{"http": {"200": 1}}},
		})
		assert.Equal(t, Degraded, got.Status)
		assert.Equal(t, "1/2 replicas available", got.Issue)
	})

	t.Run("service without traffic", func(t *testing.T) {
		got := calc.ServiceStatus("bookinfo", "reviews", ServiceHealth{})
		assert.Equal(t, NotApplicable, got.Status)
		assert.Equal(t, 0.0, got.ErrorRate())
	})

	t.Run("service degraded", func(t *testing.T) {
		got := calc.ServiceStatus("bookinfo", "reviews", ServiceHealth{
			Requests: RequestHealth{Outbound: RequestType{"http": {"404": 15, "200": 85}}},
		})
		assert.Equal(t, Degraded, got.Status)
	})

	t.Run("workload scaled down without traffic", func(t *testing.T) {
		got := calc.WorkloadStatus("bookinfo", "reviews-v1", WorkloadHealth{
			WorkloadStatus: &WorkloadStatus{Name: "reviews-v1", SyncedProxies: -1},
		})
		assert.Equal(t, NotReady, got.Status)
	})

	t.Run("workload without status or traffic", func(t *testing.T) {
		got := calc.WorkloadStatus("bookinfo", "reviews-v1", WorkloadHealth{})
		assert.Equal(t, NotApplicable, got.Status)
	})
}
