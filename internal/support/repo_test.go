package support

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"github.com/hyunwoo-p/counseldesk/internal/ai"
	"github.com/hyunwoo-p/counseldesk/internal/audit"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	// one shared in-memory DB per test, single connection to keep
	// sqlite writes serialized
	dsn := "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared"
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(
		&Conversation{},
		&Message{},
		&AIResponse{},
		&ApprovalDecision{},
		&AnalysisJob{},
		&audit.Entry{},
	); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func seedConversation(t *testing.T, repo *Repo, id, orgID string) *Conversation {
	t.Helper()
	now := time.Now()
	conv := &Conversation{
		ID:             id,
		OrganizationID: orgID,
		CustomerID:     "cust-1",
		Status:         StatusActive,
		Priority:       PriorityStandard,
		NextSeq:        1,
		StartedAt:      now,
		LastActivityAt: now,
	}
	if err := repo.CreateConversation(context.Background(), conv); err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	return conv
}

func TestClaimNextSeq_Sequential(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	seedConversation(t, repo, "01CONVSEQSEQ00000000000000", "org-1")

	for want := int64(1); want <= 3; want++ {
		got, err := repo.ClaimNextSeq(context.Background(), "01CONVSEQSEQ00000000000000")
		if err != nil {
			t.Fatalf("claim %d: %v", want, err)
		}
		if got != want {
			t.Fatalf("expected seq %d, got %d", want, got)
		}
	}
}

func TestClaimNextSeq_ConcurrentUnique(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	seedConversation(t, repo, "01CONVSEQCONC0000000000000", "org-1")

	const n = 20
	seqs := make(chan int64, n)

	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			for {
				seq, err := repo.ClaimNextSeq(context.Background(), "01CONVSEQCONC0000000000000")
				if err == nil {
					seqs <- seq
					return
				}
				if !errors.Is(err, ErrConflict) {
					t.Errorf("claim: %v", err)
					seqs <- -1
					return
				}
			}
		}()
	}
	wg.Wait()
	close(seqs)

	seen := make(map[int64]bool, n)
	for seq := range seqs {
		if seq <= 0 {
			t.Fatalf("invalid seq %d", seq)
		}
		if seen[seq] {
			t.Fatalf("sequence %d handed out twice", seq)
		}
		seen[seq] = true
	}
	if len(seen) != n {
		t.Fatalf("expected %d unique sequences, got %d", n, len(seen))
	}
}

func TestPendingMarker_SingleSlot(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	conv := seedConversation(t, repo, "01CONVMARKER00000000000000", "org-1")

	if err := repo.SetPendingMarker(context.Background(), conv.ID, "01RESPA0000000000000000000"); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if err := repo.SetPendingMarker(context.Background(), conv.ID, "01RESPB0000000000000000000"); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict on occupied slot, got %v", err)
	}

	// clearing with the wrong holder leaves the marker alone
	if err := repo.ClearPendingMarker(context.Background(), conv.ID, "01RESPB0000000000000000000", StatusWaitingCustomer); err != nil {
		t.Fatalf("guarded clear: %v", err)
	}
	got, err := repo.GetConversation(context.Background(), conv.ID)
	if err != nil {
		t.Fatalf("get conversation: %v", err)
	}
	if got.PendingApprovalResponseID == nil || *got.PendingApprovalResponseID != "01RESPA0000000000000000000" {
		t.Fatalf("marker changed by non-holder: %v", got.PendingApprovalResponseID)
	}

	if err := repo.ClearPendingMarker(context.Background(), conv.ID, "01RESPA0000000000000000000", StatusWaitingCustomer); err != nil {
		t.Fatalf("clear: %v", err)
	}
	got, err = repo.GetConversation(context.Background(), conv.ID)
	if err != nil {
		t.Fatalf("get conversation: %v", err)
	}
	if got.PendingApprovalResponseID != nil {
		t.Fatalf("marker not cleared: %v", *got.PendingApprovalResponseID)
	}
	if got.Status != StatusWaitingCustomer {
		t.Fatalf("expected waiting_on_customer, got %s", got.Status)
	}
}

func TestResolveStatus_FirstWriterWins(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)
	seedConversation(t, repo, "01CONVCAS000000000000000000", "org-1")

	resp := &AIResponse{
		ID:              "01RESPCAS00000000000000000",
		ConversationID:  "01CONVCAS000000000000000000",
		SourceMessageID: "01MSGCAS000000000000000000",
		Kind:            ai.KindReply,
		RedactedOutput:  "안내드립니다.",
		Status:          ResponsePending,
		ModelID:         "test-model",
	}
	if err := repo.CreateAIResponse(context.Background(), resp); err != nil {
		t.Fatalf("create response: %v", err)
	}

	if err := repo.ResolveStatus(context.Background(), resp.ID, ResponseApproved); err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	if err := repo.ResolveStatus(context.Background(), resp.ID, ResponseRejected); !errors.Is(err, ErrAlreadyResolved) {
		t.Fatalf("expected ErrAlreadyResolved, got %v", err)
	}

	got, err := repo.GetAIResponse(context.Background(), resp.ID)
	if err != nil {
		t.Fatalf("get response: %v", err)
	}
	if got.Status != ResponseApproved {
		t.Fatalf("loser overwrote winner: %s", got.Status)
	}
}

func TestCreateJobOrGetExisting_Idempotent(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	seedConversation(t, repo, "01CONVJOB000000000000000000", "org-1")

	key := "req-42"
	first := &AnalysisJob{
		ID:             "01JOBA00000000000000000000",
		ConversationID: "01CONVJOB000000000000000000",
		Kind:           ai.KindSummary,
		RequestedBy:    "agent-1",
		IdempotencyKey: &key,
		Status:         JobQueued,
	}
	got, created, err := repo.CreateJobOrGetExisting(context.Background(), first)
	if err != nil {
		t.Fatalf("first create: %v", err)
	}
	if !created || got.ID != first.ID {
		t.Fatalf("expected fresh job, created=%v id=%s", created, got.ID)
	}

	dup := &AnalysisJob{
		ID:             "01JOBB00000000000000000000",
		ConversationID: "01CONVJOB000000000000000000",
		Kind:           ai.KindSummary,
		RequestedBy:    "agent-1",
		IdempotencyKey: &key,
		Status:         JobQueued,
	}
	got, created, err = repo.CreateJobOrGetExisting(context.Background(), dup)
	if err != nil {
		t.Fatalf("duplicate create: %v", err)
	}
	if created {
		t.Fatal("duplicate key should return the existing job")
	}
	if got.ID != first.ID {
		t.Fatalf("expected existing job %s, got %s", first.ID, got.ID)
	}

	// a different agent with the same key gets its own job
	other := &AnalysisJob{
		ID:             "01JOBC00000000000000000000",
		ConversationID: "01CONVJOB000000000000000000",
		Kind:           ai.KindSummary,
		RequestedBy:    "agent-2",
		IdempotencyKey: &key,
		Status:         JobQueued,
	}
	_, created, err = repo.CreateJobOrGetExisting(context.Background(), other)
	if err != nil {
		t.Fatalf("other agent create: %v", err)
	}
	if !created {
		t.Fatal("key scope should be per agent")
	}
}
