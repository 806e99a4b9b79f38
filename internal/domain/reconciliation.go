package domain

import "time"

// ReconciliationState is the lifecycle state of a ReconciliationTask.
type ReconciliationState string

// Reconciliation task states.
const (
	ReconciliationScheduled ReconciliationState = "scheduled"
	ReconciliationPolling   ReconciliationState = "polling"
	ReconciliationCompleted ReconciliationState = "completed"
)

// Completion reasons recorded when a task finishes.
const (
	CompletionTerminalPrefix = "terminal:"
	CompletionStatusError    = "status-error"
	CompletionExpired        = "expired"
)

// ReconciliationTask ties a temp bucket to the downstream resource that
// consumes it. The bucket is deleted once the resource leaves its transient
// status.
type ReconciliationTask struct {
	ID             string              `json:"id"`
	ResourceID     string              `json:"resourceId"`
	TempBucketName string              `json:"tempBucketName"`
	ActingIdentity Identity            `json:"actingIdentity"`
	State          ReconciliationState `json:"state"`
	Polls          int                 `json:"polls"`
	LastStatus     string              `json:"lastStatus,omitempty"`
	CreatedAt      time.Time           `json:"createdAt"`
	CompletedAt    *time.Time          `json:"completedAt,omitempty"`
	Reason         string              `json:"reason,omitempty"`
}

// ReconciliationView is the listing form of a task. It omits the acting
// identity.
type ReconciliationView struct {
	ID             string              `json:"id"`
	ResourceID     string              `json:"resourceId"`
	TempBucketName string              `json:"tempBucketName"`
	State          ReconciliationState `json:"state"`
	Polls          int                 `json:"polls"`
	LastStatus     string              `json:"lastStatus,omitempty"`
	CreatedAt      time.Time           `json:"createdAt"`
}

// View returns the listing form of t.
func (t ReconciliationTask) View() ReconciliationView {
	return ReconciliationView{
		ID:             t.ID,
		ResourceID:     t.ResourceID,
		TempBucketName: t.TempBucketName,
		State:          t.State,
		Polls:          t.Polls,
		LastStatus:     t.LastStatus,
		CreatedAt:      t.CreatedAt,
	}
}

// CreatedResource is what the catalog returns for a create call.
type CreatedResource struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// FileRef points at one object a datasource should ingest.
type FileRef struct {
	Bucket   string `json:"bucket"`
	Key      string `json:"key"`
	FileName string `json:"fileName"`
}

// DatasourceSpec is the payload for creating a datasource.
type DatasourceSpec struct {
	Name        string    `json:"name"`
	Type        string    `json:"type"`
	Description string    `json:"description,omitempty"`
	ProjectID   string    `json:"projectId"`
	Bucket      string    `json:"bucket,omitempty"`
	Files       []FileRef `json:"files"`
	CreatedBy   string    `json:"createdBy"`
	UpdatedBy   string    `json:"updatedBy"`
}

// DatasetSpec is the payload for creating a dataset over a datasource.
type DatasetSpec struct {
	Name            string         `json:"name"`
	Type            string         `json:"type"`
	Description     string         `json:"description,omitempty"`
	Tags            []string       `json:"tags,omitempty"`
	DatasourceID    string         `json:"datasourceId"`
	ProcessorParams map[string]any `json:"processorParams,omitempty"`
	ProjectID       string         `json:"projectId"`
	CreatedBy       string         `json:"createdBy"`
	UpdatedBy       string         `json:"updatedBy"`
}
