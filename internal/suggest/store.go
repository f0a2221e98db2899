package suggest

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/hyunwoo-p/counseldesk/internal/ai"
	"github.com/hyunwoo-p/counseldesk/internal/store/redisstore"
	"github.com/hyunwoo-p/counseldesk/internal/support"
	"gorm.io/gorm"
)

const cacheTTL = 10 * time.Minute

// Store serves the latest draft per (conversation, kind). The immutable
// ledger in the database is the source of truth; redis is a read cache
// in front of it and every cache failure degrades to a DB read.
type Store struct {
	repo  *support.Repo
	cache *redisstore.Store
}

// NewStore builds the suggestion store. cache may be nil.
func NewStore(repo *support.Repo, cache *redisstore.Store) *Store {
	return &Store{repo: repo, cache: cache}
}

// Put records resp as the current draft for its (conversation, kind).
// Implements support.SuggestionSink; best-effort, never fails the caller.
func (s *Store) Put(ctx context.Context, resp *support.AIResponse) {
	if s.cache == nil {
		return
	}
	payload, err := json.Marshal(resp)
	if err != nil {
		log.Printf("[suggest] marshal failed response=%s err=%v", resp.ID, err)
		return
	}
	if err := s.cache.SetSuggestion(ctx, resp.ConversationID, string(resp.Kind), payload, cacheTTL); err != nil {
		log.Printf("[suggest] cache write failed response=%s err=%v", resp.ID, err)
	}
}

// Get returns the latest draft for (conversation, kind), or nil when
// none exists. Last-write-wins by creation timestamp.
func (s *Store) Get(ctx context.Context, conversationID string, kind ai.Kind) (*support.AIResponse, error) {
	if s.cache != nil {
		if payload, err := s.cache.GetSuggestion(ctx, conversationID, string(kind)); err == nil {
			var resp support.AIResponse
			if err := json.Unmarshal(payload, &resp); err == nil {
				return &resp, nil
			}
		}
	}

	resp, err := s.repo.LatestResponse(ctx, conversationID, string(kind))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	s.Put(ctx, resp)
	return resp, nil
}

// ListRecent returns the latest draft for every kind the conversation
// has drafts for.
func (s *Store) ListRecent(ctx context.Context, conversationID string) (map[string]*support.AIResponse, error) {
	return s.repo.LatestResponsesByKind(ctx, conversationID)
}
