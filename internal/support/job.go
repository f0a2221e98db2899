package support

import (
	"time"

	"github.com/hyunwoo-p/counseldesk/internal/ai"
)

type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// AnalysisJob tracks one queued internal-only analysis request
// (summary/emotion/intent) processed by the worker.
type AnalysisJob struct {
	ID string `gorm:"primaryKey;size:26" json:"id"`

	ConversationID string  `gorm:"size:26;index;not null" json:"conversation_id"`
	Kind           ai.Kind `gorm:"type:varchar(16);not null" json:"kind"`
	RequestedBy    string  `gorm:"type:varchar(36);not null;index:uniq_agent_idempo,unique,priority:1" json:"requested_by"`

	IdempotencyKey *string `gorm:"type:varchar(128);index:uniq_agent_idempo,unique,priority:2" json:"idempotency_key,omitempty"`

	Status JobStatus `gorm:"type:varchar(16);index;not null" json:"status"`

	// Filled when succeeded
	ResultResponseID *string `gorm:"size:26" json:"result_response_id,omitempty"`

	// Filled when failed
	Error *string `gorm:"type:text" json:"error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (AnalysisJob) TableName() string { return "analysis_jobs" }
