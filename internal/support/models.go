package support

import (
	"time"

	"github.com/hyunwoo-p/counseldesk/internal/ai"
)

type ConversationStatus string

const (
	StatusActive          ConversationStatus = "active"
	StatusWaitingCustomer ConversationStatus = "waiting_on_customer"
	StatusAwaitingAgent   ConversationStatus = "awaiting_agent"
	StatusResolved        ConversationStatus = "resolved"
	StatusClosed          ConversationStatus = "closed"
)

type Priority string

const (
	PriorityStandard Priority = "standard"
	PriorityHigh     Priority = "high"
	PriorityVIP      Priority = "vip"
)

// Conversation owns its messages and drafts. NextSeq is the sequence
// number the next message will claim; PendingApprovalResponseID is the
// single-slot marker naming the one gated draft awaiting review, if any.
type Conversation struct {
	ID                        string             `gorm:"primaryKey;size:26" json:"id"`
	OrganizationID            string             `gorm:"type:varchar(36);index;not null" json:"organization_id"`
	CustomerID                string             `gorm:"type:varchar(36);index;not null" json:"customer_id"`
	Status                    ConversationStatus `gorm:"type:varchar(32);index;not null" json:"status"`
	Priority                  Priority           `gorm:"type:varchar(16);not null" json:"priority"`
	NextSeq                   int64              `gorm:"not null" json:"-"`
	PendingApprovalResponseID *string            `gorm:"type:varchar(26);index" json:"pending_approval_response_id"`
	StartedAt                 time.Time          `json:"started_at"`
	LastActivityAt            time.Time          `json:"last_activity_at"`
}

func (Conversation) TableName() string { return "conversations" }

type SenderType string

const (
	SenderCustomer SenderType = "customer"
	SenderAgent    SenderType = "agent"
	SenderAI       SenderType = "ai"
)

// Message sequence numbers strictly increase within a conversation and
// are never reused; deletes leave gaps rather than renumbering.
type Message struct {
	ID             string     `gorm:"primaryKey;size:26" json:"id"`
	ConversationID string     `gorm:"size:26;not null;index:uniq_conv_seq,unique,priority:1" json:"conversation_id"`
	SenderType     SenderType `gorm:"type:varchar(16);not null" json:"sender_type"`
	SenderID       *string    `gorm:"type:varchar(36)" json:"sender_id,omitempty"`
	Body           string     `gorm:"type:text;not null" json:"body"`
	Seq            int64      `gorm:"not null;index:uniq_conv_seq,unique,priority:2" json:"seq"`
	AIResponseID   *string    `gorm:"size:26;index" json:"ai_response_id,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

func (Message) TableName() string { return "messages" }

type ResponseStatus string

const (
	ResponsePending  ResponseStatus = "pending"
	ResponseApproved ResponseStatus = "approved"
	ResponseModified ResponseStatus = "modified"
	ResponseRejected ResponseStatus = "rejected"
)

// AIResponse is a draft. Rows are immutable except for the single
// pending -> terminal status transition; they are never deleted.
// Only redacted output is ever stored.
type AIResponse struct {
	ID              string         `gorm:"primaryKey;size:26" json:"id"`
	ConversationID  string         `gorm:"size:26;index;not null" json:"conversation_id"`
	SourceMessageID string         `gorm:"size:26;not null" json:"source_message_id"`
	Kind            ai.Kind        `gorm:"type:varchar(16);index;not null" json:"kind"`
	RedactedOutput  string         `gorm:"type:text;not null" json:"redacted_output"`
	Confidence      *float64       `json:"confidence"`
	Status          ResponseStatus `gorm:"type:varchar(16);index;not null" json:"status"`
	ModelID         string         `gorm:"type:varchar(128);not null" json:"model_id"`
	LatencyMs       int64          `gorm:"not null" json:"latency_ms"`
	CreatedAt       time.Time      `json:"created_at"`
}

func (AIResponse) TableName() string { return "ai_responses" }

type DecisionAction string

const (
	ActionApproved DecisionAction = "approved"
	ActionModified DecisionAction = "modified"
	ActionRejected DecisionAction = "rejected"
)

// ApprovalDecision is write-once; the unique index enforces at most one
// decision per draft.
type ApprovalDecision struct {
	ID            string         `gorm:"primaryKey;size:26" json:"id"`
	AIResponseID  string         `gorm:"size:26;uniqueIndex;not null" json:"ai_response_id"`
	AgentID       string         `gorm:"type:varchar(36);not null" json:"agent_id"`
	Action        DecisionAction `gorm:"type:varchar(16);not null" json:"action"`
	SubmittedText *string        `gorm:"type:text" json:"submitted_text,omitempty"`
	Notes         *string        `gorm:"type:text" json:"notes,omitempty"`
	TurnaroundMs  int64          `gorm:"not null" json:"turnaround_ms"`
	CreatedAt     time.Time      `json:"created_at"`
}

func (ApprovalDecision) TableName() string { return "approval_decisions" }
