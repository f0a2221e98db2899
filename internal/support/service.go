package support

import (
	"context"
	"strings"
	"time"

	"github.com/hyunwoo-p/counseldesk/internal/ai"
	"github.com/hyunwoo-p/counseldesk/internal/audit"
	"github.com/hyunwoo-p/counseldesk/internal/common"
	"github.com/hyunwoo-p/counseldesk/internal/dlp"
)

// SuggestionSink receives every persisted draft so presentation caches
// can serve the latest per (conversation, kind). Best-effort.
type SuggestionSink interface {
	Put(ctx context.Context, resp *AIResponse)
}

// Notifier publishes row-change events for presentation layers. It is
// an eventually-consistent notification, never a synchronization
// mechanism; implementations must swallow their own failures.
type Notifier interface {
	RowChanged(ctx context.Context, conversationID, table, action, rowID string)
}

// Service is the conversation orchestrator: it accepts customer
// messages, requests drafts from the completion gateway, routes reply
// drafts through the approval gate, and emits finalized messages.
type Service struct {
	repo          *Repo
	gateway       *ai.Gateway
	gate          *Gate
	auditor       *audit.Logger
	suggestions   SuggestionSink
	notifier      Notifier
	contextWindow int
}

func NewService(repo *Repo, gateway *ai.Gateway, gate *Gate, auditor *audit.Logger, suggestions SuggestionSink, notifier Notifier, contextWindow int) *Service {
	if contextWindow <= 0 || contextWindow > 100 {
		contextWindow = 10
	}
	return &Service{
		repo:          repo,
		gateway:       gateway,
		gate:          gate,
		auditor:       auditor,
		suggestions:   suggestions,
		notifier:      notifier,
		contextWindow: contextWindow,
	}
}

// MessageResult is the outcome of one inbound customer message. Message
// is always persisted first; Draft and AutoSent describe what the reply
// pipeline produced. When the gateway fails, HandleCustomerMessage
// returns the result with Message set alongside the error: the inbound
// message stays, no partial draft exists.
type MessageResult struct {
	Message  *Message    `json:"message"`
	Draft    *AIResponse `json:"draft,omitempty"`
	AutoSent *Message    `json:"auto_sent,omitempty"`
}

type StartConversationInput struct {
	OrganizationID string
	CustomerID     string
	Priority       Priority
	Body           string
}

// StartConversation creates the conversation, seeds it with the first
// customer message and runs the reply pipeline.
func (s *Service) StartConversation(ctx context.Context, in StartConversationInput) (*Conversation, *MessageResult, error) {
	if strings.TrimSpace(in.OrganizationID) == "" {
		return nil, nil, validationf("organization id required")
	}
	if strings.TrimSpace(in.CustomerID) == "" {
		return nil, nil, validationf("customer id required")
	}
	if strings.TrimSpace(in.Body) == "" {
		return nil, nil, validationf("message body required")
	}
	if in.Priority == "" {
		in.Priority = PriorityStandard
	}

	id, err := common.NewULID()
	if err != nil {
		return nil, nil, err
	}
	now := time.Now()
	conv := &Conversation{
		ID:             id,
		OrganizationID: in.OrganizationID,
		CustomerID:     in.CustomerID,
		Status:         StatusActive,
		Priority:       in.Priority,
		NextSeq:        1,
		StartedAt:      now,
		LastActivityAt: now,
	}
	if err := s.repo.CreateConversation(ctx, conv); err != nil {
		return nil, nil, err
	}

	res, err := s.HandleCustomerMessage(ctx, conv.ID, in.Body)
	return conv, res, err
}

// HandleCustomerMessage persists the inbound message with the next
// sequence number, then requests a reply draft unless the conversation's
// pending slot is occupied.
func (s *Service) HandleCustomerMessage(ctx context.Context, conversationID, body string) (*MessageResult, error) {
	if strings.TrimSpace(body) == "" {
		return nil, validationf("message body required")
	}

	conv, err := s.repo.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	msg, err := s.appendMessage(ctx, conv.ID, SenderCustomer, nil, body, nil)
	if err != nil {
		return nil, err
	}
	if conv.Status == StatusWaitingCustomer {
		_ = s.repo.SetConversationStatus(ctx, conv.ID, StatusActive)
	}

	res := &MessageResult{Message: msg}

	// single-slot rule: no new customer-facing draft while one is pending
	if conv.PendingApprovalResponseID != nil {
		return res, nil
	}

	draft, autoSent, err := s.generateReplyDraft(ctx, conv, msg)
	if err != nil {
		return res, err
	}
	res.Draft = draft
	res.AutoSent = autoSent
	return res, nil
}

// AppendAgentMessage records a direct agent reply (no AI involvement).
func (s *Service) AppendAgentMessage(ctx context.Context, conversationID, agentID, body string) (*Message, error) {
	if strings.TrimSpace(body) == "" {
		return nil, validationf("message body required")
	}
	if strings.TrimSpace(agentID) == "" {
		return nil, validationf("agent id required")
	}
	if _, err := s.repo.GetConversation(ctx, conversationID); err != nil {
		return nil, err
	}

	msg, err := s.appendMessage(ctx, conversationID, SenderAgent, &agentID, body, nil)
	if err != nil {
		return nil, err
	}
	_ = s.repo.SetConversationStatus(ctx, conversationID, StatusWaitingCustomer)
	return msg, nil
}

func (s *Service) ListMessages(ctx context.Context, conversationID string, limit int, beforeSeq int64) ([]Message, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.repo.ListMessages(ctx, conversationID, limit, beforeSeq)
}

func (s *Service) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	return s.repo.GetConversation(ctx, id)
}

// RequestAnalysis runs one internal-only analysis (summary, emotion,
// intent) synchronously: draft, redact, audit, persist. Internal drafts
// never gate anything and create no customer-facing message.
func (s *Service) RequestAnalysis(ctx context.Context, conversationID string, kind ai.Kind) (*AIResponse, error) {
	if !ai.KnownKind(kind) || kind == ai.KindReply {
		return nil, validationf("unsupported analysis kind %q", kind)
	}
	conv, err := s.repo.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	transcript, sourceID, err := s.transcriptWindow(ctx, conv.ID)
	if err != nil {
		return nil, err
	}

	draft, err := s.gateway.Complete(ctx, kind, transcript)
	if err != nil {
		return nil, err
	}

	resp, err := s.persistDraft(ctx, conv, kind, sourceID, draft, ResponseApproved)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (s *Service) generateReplyDraft(ctx context.Context, conv *Conversation, source *Message) (*AIResponse, *Message, error) {
	transcript, _, err := s.transcriptWindow(ctx, conv.ID)
	if err != nil {
		return nil, nil, err
	}

	draft, err := s.gateway.Complete(ctx, ai.KindReply, transcript)
	if err != nil {
		return nil, nil, err
	}

	if s.gate.RequiresApproval(ai.KindReply, draft.Confidence) {
		resp, err := s.persistPendingDraft(ctx, conv, source.ID, draft)
		return resp, nil, err
	}

	resp, sent, err := s.persistApprovedReply(ctx, conv, source.ID, draft)
	return resp, sent, err
}

// persistDraft stores a redacted draft in a terminal state (internal
// kinds and auto-approved replies that carry no outbound message).
func (s *Service) persistDraft(ctx context.Context, conv *Conversation, kind ai.Kind, sourceID string, draft *ai.Draft, status ResponseStatus) (*AIResponse, error) {
	resp, err := s.newResponse(conv.ID, kind, sourceID, draft, status)
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, kind, draft)

	if err := s.repo.CreateAIResponse(ctx, resp); err != nil {
		return nil, err
	}
	s.afterResponseWrite(ctx, resp, "INSERT")
	return resp, nil
}

// persistPendingDraft atomically stores the draft and claims the
// conversation's pending slot; losing the slot race rolls everything
// back so no partial AIResponse survives.
func (s *Service) persistPendingDraft(ctx context.Context, conv *Conversation, sourceID string, draft *ai.Draft) (*AIResponse, error) {
	resp, err := s.newResponse(conv.ID, ai.KindReply, sourceID, draft, ResponsePending)
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, ai.KindReply, draft)

	err = s.repo.Tx(func(txr *Repo) error {
		if err := txr.CreateAIResponse(ctx, resp); err != nil {
			return err
		}
		return txr.SetPendingMarker(ctx, conv.ID, resp.ID)
	})
	if err != nil {
		return nil, err
	}
	s.afterResponseWrite(ctx, resp, "INSERT")
	return resp, nil
}

// persistApprovedReply stores the draft as approved and emits the
// customer-facing message in the same transaction.
func (s *Service) persistApprovedReply(ctx context.Context, conv *Conversation, sourceID string, draft *ai.Draft) (*AIResponse, *Message, error) {
	resp, err := s.newResponse(conv.ID, ai.KindReply, sourceID, draft, ResponseApproved)
	if err != nil {
		return nil, nil, err
	}
	s.recordAudit(ctx, ai.KindReply, draft)

	msgID, err := common.NewULID()
	if err != nil {
		return nil, nil, err
	}

	var outMsg *Message
	err = s.repo.Tx(func(txr *Repo) error {
		if err := txr.CreateAIResponse(ctx, resp); err != nil {
			return err
		}
		seq, err := txr.ClaimNextSeq(ctx, conv.ID)
		if err != nil {
			return err
		}
		outMsg = &Message{
			ID:             msgID,
			ConversationID: conv.ID,
			SenderType:     SenderAI,
			Body:           resp.RedactedOutput,
			Seq:            seq,
			AIResponseID:   &resp.ID,
		}
		return txr.InsertMessage(ctx, outMsg)
	})
	if err != nil {
		return nil, nil, err
	}

	s.afterResponseWrite(ctx, resp, "INSERT")
	s.notifyRow(ctx, conv.ID, "messages", "INSERT", outMsg.ID)
	return resp, outMsg, nil
}

// ListPending returns all drafts awaiting review across the
// organization, oldest-waiting first.
func (s *Service) ListPending(ctx context.Context, organizationID string) ([]PendingApproval, error) {
	if strings.TrimSpace(organizationID) == "" {
		return nil, validationf("organization id required")
	}

	responses, byConv, err := s.repo.ListPendingByOrg(ctx, organizationID)
	if err != nil {
		return nil, err
	}

	out := make([]PendingApproval, 0, len(responses))
	for i := range responses {
		resp := responses[i]
		item := PendingApproval{
			Response:       resp,
			ConversationID: resp.ConversationID,
			WaitingSince:   resp.CreatedAt,
		}
		if conv, ok := byConv[resp.ConversationID]; ok {
			item.Priority = conv.Priority
		}
		if src, err := s.repo.GetMessage(ctx, resp.SourceMessageID); err == nil {
			item.CustomerMessage = src.Body
		}
		out = append(out, item)
	}
	return out, nil
}

type PendingApproval struct {
	Response        AIResponse `json:"response"`
	ConversationID  string     `json:"conversation_id"`
	Priority        Priority   `json:"priority"`
	CustomerMessage string     `json:"customer_message"`
	WaitingSince    time.Time  `json:"waiting_since"`
}

// Resolve applies an agent decision to a pending draft exactly once.
// The pending -> terminal transition is a compare-and-swap: the first
// resolver to commit wins, later attempts get ErrAlreadyResolved and
// persisted state is untouched.
func (s *Service) Resolve(ctx context.Context, responseID string, action DecisionAction, agentID string, submittedText, notes *string) (*Message, error) {
	if !ValidAction(action) {
		return nil, validationf("invalid action %q", action)
	}
	if strings.TrimSpace(agentID) == "" {
		return nil, validationf("agent id required")
	}
	if action == ActionModified && (submittedText == nil || strings.TrimSpace(*submittedText) == "") {
		return nil, validationf("submitted_text required for modified")
	}

	resp, err := s.repo.GetAIResponse(ctx, responseID)
	if err != nil {
		return nil, err
	}
	if resp.Status != ResponsePending {
		return nil, ErrAlreadyResolved
	}

	decisionID, err := common.NewULID()
	if err != nil {
		return nil, err
	}
	msgID, err := common.NewULID()
	if err != nil {
		return nil, err
	}

	var outMsg *Message
	err = s.repo.Tx(func(txr *Repo) error {
		if err := txr.ResolveStatus(ctx, responseID, terminalStatus(action)); err != nil {
			return err
		}

		decision := &ApprovalDecision{
			ID:           decisionID,
			AIResponseID: responseID,
			AgentID:      agentID,
			Action:       action,
			Notes:        notes,
			TurnaroundMs: time.Since(resp.CreatedAt).Milliseconds(),
		}
		if action == ActionModified {
			decision.SubmittedText = submittedText
		}
		if err := txr.CreateDecision(ctx, decision); err != nil {
			return err
		}

		newStatus := StatusWaitingCustomer
		switch action {
		case ActionApproved, ActionModified:
			body := resp.RedactedOutput
			sender := SenderAI
			var senderID *string
			if action == ActionModified {
				body = *submittedText
				sender = SenderAgent
				senderID = &agentID
			}

			seq, err := txr.ClaimNextSeq(ctx, resp.ConversationID)
			if err != nil {
				return err
			}
			outMsg = &Message{
				ID:             msgID,
				ConversationID: resp.ConversationID,
				SenderType:     sender,
				SenderID:       senderID,
				Body:           body,
				Seq:            seq,
				AIResponseID:   &resp.ID,
			}
			if err := txr.InsertMessage(ctx, outMsg); err != nil {
				return err
			}

		case ActionRejected:
			// no outbound message; the conversation waits for an agent
			newStatus = StatusAwaitingAgent
		}

		return txr.ClearPendingMarker(ctx, resp.ConversationID, resp.ID, newStatus)
	})
	if err != nil {
		outMsg = nil
		return nil, err
	}

	resolved := *resp
	resolved.Status = terminalStatus(action)
	s.afterResponseWrite(ctx, &resolved, "UPDATE")
	if outMsg != nil {
		s.notifyRow(ctx, resp.ConversationID, "messages", "INSERT", outMsg.ID)
	}
	return outMsg, nil
}

// Analysis jobs (async path for internal kinds)

func (s *Service) CreateAnalysisJob(ctx context.Context, conversationID string, kind ai.Kind, agentID string, idempotencyKey *string) (*AnalysisJob, bool, error) {
	if !ai.KnownKind(kind) || kind == ai.KindReply {
		return nil, false, validationf("unsupported analysis kind %q", kind)
	}
	if strings.TrimSpace(agentID) == "" {
		return nil, false, validationf("agent id required")
	}
	if _, err := s.repo.GetConversation(ctx, conversationID); err != nil {
		return nil, false, err
	}

	id, err := common.NewULID()
	if err != nil {
		return nil, false, err
	}
	job := &AnalysisJob{
		ID:             id,
		ConversationID: conversationID,
		Kind:           kind,
		RequestedBy:    agentID,
		IdempotencyKey: idempotencyKey,
		Status:         JobQueued,
	}
	return s.repo.CreateJobOrGetExisting(ctx, job)
}

func (s *Service) GetJob(ctx context.Context, jobID string) (*AnalysisJob, error) {
	return s.repo.GetJobByID(ctx, jobID)
}

// RunAnalysisJob executes one queued job; the worker calls this.
func (s *Service) RunAnalysisJob(ctx context.Context, jobID string) error {
	_ = s.repo.UpdateJobStatusRunning(ctx, jobID)

	job, err := s.repo.GetJobByID(ctx, jobID)
	if err != nil {
		return err
	}

	resp, err := s.RequestAnalysis(ctx, job.ConversationID, job.Kind)
	if err != nil {
		_ = s.repo.MarkJobFailed(ctx, jobID, err.Error())
		return err
	}
	return s.repo.MarkJobSucceeded(ctx, jobID, resp.ID)
}

// helpers

func (s *Service) newResponse(conversationID string, kind ai.Kind, sourceID string, draft *ai.Draft, status ResponseStatus) (*AIResponse, error) {
	id, err := common.NewULID()
	if err != nil {
		return nil, err
	}
	return &AIResponse{
		ID:              id,
		ConversationID:  conversationID,
		SourceMessageID: sourceID,
		Kind:            kind,
		RedactedOutput:  dlp.Redact(draft.Text),
		Confidence:      draft.Confidence,
		Status:          status,
		ModelID:         draft.ModelID,
		LatencyMs:       draft.LatencyMs,
	}, nil
}

func (s *Service) recordAudit(ctx context.Context, kind ai.Kind, draft *ai.Draft) {
	if s.auditor == nil {
		return
	}
	s.auditor.Record(ctx, "ai_"+string(kind), draft.ModelID, draft.LatencyMs, dlp.WasRedacted(draft.Text))
}

func (s *Service) appendMessage(ctx context.Context, conversationID string, sender SenderType, senderID *string, body string, aiResponseID *string) (*Message, error) {
	id, err := common.NewULID()
	if err != nil {
		return nil, err
	}
	seq, err := s.repo.ClaimNextSeq(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	msg := &Message{
		ID:             id,
		ConversationID: conversationID,
		SenderType:     sender,
		SenderID:       senderID,
		Body:           body,
		Seq:            seq,
		AIResponseID:   aiResponseID,
	}
	if err := s.repo.InsertMessage(ctx, msg); err != nil {
		return nil, err
	}
	s.notifyRow(ctx, conversationID, "messages", "INSERT", msg.ID)
	return msg, nil
}

// transcriptWindow renders the bounded recent-message window oldest
// first and returns the id of the newest customer message as the draft
// source.
func (s *Service) transcriptWindow(ctx context.Context, conversationID string) ([]ai.TranscriptMessage, string, error) {
	recentDesc, err := s.repo.ListRecentMessagesDesc(ctx, conversationID, s.contextWindow)
	if err != nil {
		return nil, "", err
	}

	// newest customer message is the draft source
	sourceID := ""
	for _, m := range recentDesc {
		if m.SenderType == SenderCustomer {
			sourceID = m.ID
			break
		}
	}

	transcript := make([]ai.TranscriptMessage, 0, len(recentDesc))
	for i := len(recentDesc) - 1; i >= 0; i-- {
		m := recentDesc[i]
		transcript = append(transcript, ai.TranscriptMessage{
			Speaker: string(m.SenderType),
			Text:    m.Body,
		})
	}
	if len(transcript) == 0 {
		return nil, "", validationf("conversation has no messages")
	}
	return transcript, sourceID, nil
}

func (s *Service) afterResponseWrite(ctx context.Context, resp *AIResponse, action string) {
	if s.suggestions != nil {
		s.suggestions.Put(ctx, resp)
	}
	s.notifyRow(ctx, resp.ConversationID, "ai_responses", action, resp.ID)
}

func (s *Service) notifyRow(ctx context.Context, conversationID, table, action, rowID string) {
	if s.notifier != nil {
		s.notifier.RowChanged(ctx, conversationID, table, action, rowID)
	}
}
