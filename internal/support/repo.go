package support

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

const seqClaimAttempts = 5

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

// Tx runs fn against a transactional copy of the repo.
func (r *Repo) Tx(fn func(txr *Repo) error) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		return fn(&Repo{db: tx})
	})
}

func (r *Repo) CreateConversation(ctx context.Context, c *Conversation) error {
	return r.db.WithContext(ctx).Create(c).Error
}

func (r *Repo) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	var c Conversation
	if err := r.db.WithContext(ctx).First(&c, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// ClaimNextSeq hands out the next per-conversation sequence number via a
// compare-and-swap on the conversation row. Concurrent writers that lose
// the swap re-read and retry; exhausting the attempts surfaces
// ErrConflict so the caller can restart from fresh state.
func (r *Repo) ClaimNextSeq(ctx context.Context, conversationID string) (int64, error) {
	for attempt := 0; attempt < seqClaimAttempts; attempt++ {
		var c Conversation
		if err := r.db.WithContext(ctx).
			Select("id", "next_seq").
			First(&c, "id = ?", conversationID).Error; err != nil {
			return 0, err
		}

		res := r.db.WithContext(ctx).Model(&Conversation{}).
			Where("id = ? AND next_seq = ?", conversationID, c.NextSeq).
			Updates(map[string]any{
				"next_seq":         c.NextSeq + 1,
				"last_activity_at": time.Now(),
			})
		if res.Error != nil {
			return 0, res.Error
		}
		if res.RowsAffected == 1 {
			return c.NextSeq, nil
		}
	}
	return 0, ErrConflict
}

func (r *Repo) InsertMessage(ctx context.Context, m *Message) error {
	return r.db.WithContext(ctx).Create(m).Error
}

func (r *Repo) GetMessage(ctx context.Context, id string) (*Message, error) {
	var m Message
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// ListMessages returns messages in ASC seq order, optionally only those
// below beforeSeq (for backwards pagination).
func (r *Repo) ListMessages(ctx context.Context, conversationID string, limit int, beforeSeq int64) ([]Message, error) {
	q := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("seq ASC").
		Limit(limit)
	if beforeSeq > 0 {
		q = q.Where("seq < ?", beforeSeq)
	}

	var msgs []Message
	if err := q.Find(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}

// ListRecentMessagesDesc returns the most recent messages newest-first.
func (r *Repo) ListRecentMessagesDesc(ctx context.Context, conversationID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 10
	}
	var msgs []Message
	if err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("seq DESC").
		Limit(limit).
		Find(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}

func (r *Repo) CreateAIResponse(ctx context.Context, resp *AIResponse) error {
	return r.db.WithContext(ctx).Create(resp).Error
}

func (r *Repo) GetAIResponse(ctx context.Context, id string) (*AIResponse, error) {
	var resp AIResponse
	if err := r.db.WithContext(ctx).First(&resp, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &resp, nil
}

// LatestResponse returns the newest draft for (conversation, kind), or
// gorm.ErrRecordNotFound.
func (r *Repo) LatestResponse(ctx context.Context, conversationID string, kind string) (*AIResponse, error) {
	var resp AIResponse
	if err := r.db.WithContext(ctx).
		Where("conversation_id = ? AND kind = ?", conversationID, kind).
		Order("created_at DESC, id DESC").
		First(&resp).Error; err != nil {
		return nil, err
	}
	return &resp, nil
}

// LatestResponsesByKind returns the newest draft per kind for a
// conversation.
func (r *Repo) LatestResponsesByKind(ctx context.Context, conversationID string) (map[string]*AIResponse, error) {
	var responses []AIResponse
	if err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC, id ASC").
		Find(&responses).Error; err != nil {
		return nil, err
	}

	latest := make(map[string]*AIResponse)
	for i := range responses {
		resp := responses[i]
		latest[string(resp.Kind)] = &resp
	}
	return latest, nil
}

// SetPendingMarker claims the conversation's single pending-approval
// slot. ErrConflict when another draft already holds it.
func (r *Repo) SetPendingMarker(ctx context.Context, conversationID, responseID string) error {
	res := r.db.WithContext(ctx).Model(&Conversation{}).
		Where("id = ? AND pending_approval_response_id IS NULL", conversationID).
		Update("pending_approval_response_id", responseID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

// ClearPendingMarker releases the slot and moves the conversation to
// newStatus. Guarded on the marker still naming responseID, so a marker
// claimed by a newer draft is left alone.
func (r *Repo) ClearPendingMarker(ctx context.Context, conversationID, responseID string, newStatus ConversationStatus) error {
	return r.db.WithContext(ctx).Model(&Conversation{}).
		Where("id = ? AND pending_approval_response_id = ?", conversationID, responseID).
		Updates(map[string]any{
			"pending_approval_response_id": nil,
			"status":                       newStatus,
		}).Error
}

func (r *Repo) SetConversationStatus(ctx context.Context, conversationID string, status ConversationStatus) error {
	return r.db.WithContext(ctx).Model(&Conversation{}).
		Where("id = ?", conversationID).
		Update("status", status).Error
}

// ResolveStatus performs the pending -> terminal compare-and-swap. The
// first resolver to commit wins; everyone else gets ErrAlreadyResolved.
func (r *Repo) ResolveStatus(ctx context.Context, responseID string, terminal ResponseStatus) error {
	res := r.db.WithContext(ctx).Model(&AIResponse{}).
		Where("id = ? AND status = ?", responseID, ResponsePending).
		Update("status", terminal)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrAlreadyResolved
	}
	return nil
}

func (r *Repo) CreateDecision(ctx context.Context, d *ApprovalDecision) error {
	return r.db.WithContext(ctx).Create(d).Error
}

// ListPendingByOrg returns every pending draft in the organization,
// oldest-first by creation time, using the single-slot markers on the
// conversations as the index.
func (r *Repo) ListPendingByOrg(ctx context.Context, organizationID string) ([]AIResponse, map[string]*Conversation, error) {
	var convs []Conversation
	if err := r.db.WithContext(ctx).
		Where("organization_id = ? AND pending_approval_response_id IS NOT NULL", organizationID).
		Find(&convs).Error; err != nil {
		return nil, nil, err
	}
	if len(convs) == 0 {
		return nil, nil, nil
	}

	ids := make([]string, 0, len(convs))
	byConv := make(map[string]*Conversation, len(convs))
	for i := range convs {
		ids = append(ids, *convs[i].PendingApprovalResponseID)
		byConv[convs[i].ID] = &convs[i]
	}

	var responses []AIResponse
	if err := r.db.WithContext(ctx).
		Where("id IN ? AND status = ?", ids, ResponsePending).
		Order("created_at ASC, id ASC").
		Find(&responses).Error; err != nil {
		return nil, nil, err
	}
	return responses, byConv, nil
}

// Job CRUD

func (r *Repo) GetJobByID(ctx context.Context, id string) (*AnalysisJob, error) {
	var j AnalysisJob
	if err := r.db.WithContext(ctx).First(&j, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &j, nil
}

func (r *Repo) UpdateJobStatusRunning(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Model(&AnalysisJob{}).
		Where("id = ? AND status = ?", id, JobQueued).
		Update("status", JobRunning).Error
}

func (r *Repo) MarkJobSucceeded(ctx context.Context, id string, responseID string) error {
	return r.db.WithContext(ctx).Model(&AnalysisJob{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":             JobSucceeded,
			"result_response_id": responseID,
			"error":              nil,
		}).Error
}

func (r *Repo) MarkJobFailed(ctx context.Context, id string, errMsg string) error {
	return r.db.WithContext(ctx).Model(&AnalysisJob{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":             JobFailed,
			"error":              errMsg,
			"result_response_id": nil,
		}).Error
}

func (r *Repo) getJobByAgentAndKey(ctx context.Context, agentID, key string) (*AnalysisJob, error) {
	var job AnalysisJob
	if err := r.db.WithContext(ctx).
		Where("requested_by = ? AND idempotency_key = ?", agentID, key).
		First(&job).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

// CreateJobOrGetExisting creates the job, or returns the existing one
// when (requested_by, idempotency_key) already exists.
func (r *Repo) CreateJobOrGetExisting(ctx context.Context, job *AnalysisJob) (*AnalysisJob, bool, error) {
	if job.IdempotencyKey == nil || *job.IdempotencyKey == "" {
		job.IdempotencyKey = nil
		if err := r.db.WithContext(ctx).Create(job).Error; err != nil {
			return nil, false, err
		}
		return job, true, nil
	}

	err := r.db.WithContext(ctx).Create(job).Error
	if err == nil {
		return job, true, nil
	}

	existing, getErr := r.getJobByAgentAndKey(ctx, job.RequestedBy, *job.IdempotencyKey)
	if getErr == nil {
		return existing, false, nil
	}
	if errors.Is(getErr, gorm.ErrRecordNotFound) {
		return nil, false, err
	}
	return nil, false, getErr
}
