package health

import (
	"fmt"

	appsv1 "k8s.io/api/apps/v1"
)

// Entity kinds, as used by the rate health policy and the Kiali health API.
const (
	KindApp      = "app"
	KindService  = "service"
	KindWorkload = "workload"
)

// WorkloadStatus represents workload replica status.
type WorkloadStatus struct {
	Name              string `json:"name"`
	DesiredReplicas   int32  `json:"desiredReplicas"`
	CurrentReplicas   int32  `json:"currentReplicas"`
	AvailableReplicas int32  `json:"availableReplicas"`
	// SyncedProxies is -1 when proxy status is unknown.
	SyncedProxies int32 `json:"syncedProxies"`
}

// Status classifies the replica state of the workload and describes the issue, if any.
func (ws WorkloadStatus) Status() (Status, string) {
	// Scaled down on purpose, not an error condition
	if ws.DesiredReplicas == 0 {
		return NotReady, "scaled to 0 replicas"
	}
	status, issue := Healthy, ""
	if ws.AvailableReplicas < ws.DesiredReplicas {
		issue = fmt.Sprintf("%d/%d replicas available", ws.AvailableReplicas, ws.DesiredReplicas)
		if ws.AvailableReplicas == 0 {
			status = Failure
		} else {
			status = Degraded
		}
	}
	if ws.SyncedProxies >= 0 && ws.SyncedProxies < ws.AvailableReplicas {
		if issue == "" {
			issue = fmt.Sprintf("%d/%d proxies synced", ws.SyncedProxies, ws.AvailableReplicas)
		}
		status = Worst(status, Degraded)
	}
	return status, issue
}

// WorkloadStatusFromDeployment reads the replica counts of a Deployment.
// Proxy sync state is not part of the Deployment, so it is reported as unknown.
func WorkloadStatusFromDeployment(d *appsv1.Deployment) WorkloadStatus {
	desired := int32(1)
	if d.Spec.Replicas != nil {
		desired = *d.Spec.Replicas
	}
	return WorkloadStatus{
		Name:              d.Name,
		DesiredReplicas:   desired,
		CurrentReplicas:   d.Status.Replicas,
		AvailableReplicas: d.Status.AvailableReplicas,
		SyncedProxies:     -1,
	}
}

// AppHealth contains health information for an app
type AppHealth struct {
	WorkloadStatuses []WorkloadStatus `json:"workloadStatuses"`
	Requests         RequestHealth    `json:"requests"`
}

// ServiceHealth contains health information for a service
type ServiceHealth struct {
	Requests RequestHealth `json:"requests"`
}

// WorkloadHealth contains health information for a workload
type WorkloadHealth struct {
	WorkloadStatus *WorkloadStatus `json:"workloadStatus"`
	Requests       RequestHealth   `json:"requests"`
}

// EntityStatus is the merged health of an entity.
type EntityStatus struct {
	Status     Status     `json:"status"`
	Issue      string     `json:"issue,omitempty"`
	ErrorRatio ErrorRatio `json:"errorRatio"`
}

// ErrorRate returns the global error percentage, or 0 when there is no traffic.
func (e EntityStatus) ErrorRate() float64 {
	if e.ErrorRatio.Global.Value < 0 {
		return 0
	}
	return e.ErrorRatio.Global.Value
}

// AppStatus merges the replica status of every workload of the app with its request health.
func (c *Calculator) AppStatus(namespace, name string, app AppHealth) EntityStatus {
	if len(app.WorkloadStatuses) == 0 {
		return EntityStatus{Status: NotApplicable, Issue: "no workloads found"}
	}
	status, issue := Healthy, ""
	for _, ws := range app.WorkloadStatuses {
		wsStatus, wsIssue := ws.Status()
		if wsStatus > status {
			status = wsStatus
			issue = wsIssue
		}
	}
	return c.withRequests(namespace, name, KindApp, app.Requests, status, issue)
}

// ServiceStatus is the request health of the service.
func (c *Calculator) ServiceStatus(namespace, name string, svc ServiceHealth) EntityStatus {
	return c.withRequests(namespace, name, KindService, svc.Requests, NotApplicable, "")
}

// WorkloadStatus merges the replica status of the workload with its request health.
func (c *Calculator) WorkloadStatus(namespace, name string, wl WorkloadHealth) EntityStatus {
	status, issue := NotApplicable, ""
	if wl.WorkloadStatus != nil {
		status, issue = wl.WorkloadStatus.Status()
	}
	return c.withRequests(namespace, name, KindWorkload, wl.Requests, status, issue)
}

func (c *Calculator) withRequests(namespace, name, kind string, requests RequestHealth, status Status, issue string) EntityStatus {
	rate := c.CalculateErrorRate(namespace, name, kind, requests)
	global := rate.ErrorRatio.Global
	merged := EntityStatus{Status: status, Issue: issue, ErrorRatio: rate.ErrorRatio}
	if global.Status > status {
		merged.Status = global.Status
		if global.Violation != "" {
			merged.Issue = fmt.Sprintf("%s error rate %s", global.Protocol, global.Violation)
		}
	}
	return merged
}
