package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/hyunwoo-p/counseldesk/internal/store/redisstore"
)

// Event mirrors a row insert/update so presentation layers can react
// without polling. Delivery is at-least-once with no ordering guarantee;
// consumers must treat it as a hint, never as a synchronization point.
type Event struct {
	ConversationID string    `json:"conversation_id"`
	Table          string    `json:"table"`
	Action         string    `json:"action"`
	RowID          string    `json:"row_id"`
	At             time.Time `json:"at"`
}

// Publisher implements support.Notifier over redis pub/sub.
type Publisher struct {
	store *redisstore.Store
}

func NewPublisher(store *redisstore.Store) *Publisher {
	return &Publisher{store: store}
}

// Channel returns the per-conversation event channel name.
func Channel(conversationID string) string {
	return fmt.Sprintf("conv:%s:events", conversationID)
}

// RowChanged publishes best-effort: failures are logged and dropped,
// never propagated into the pipeline.
func (p *Publisher) RowChanged(ctx context.Context, conversationID, table, action, rowID string) {
	if p.store == nil {
		return
	}
	payload, err := json.Marshal(Event{
		ConversationID: conversationID,
		Table:          table,
		Action:         action,
		RowID:          rowID,
		At:             time.Now(),
	})
	if err != nil {
		log.Printf("[notify] marshal failed table=%s row=%s err=%v", table, rowID, err)
		return
	}
	if err := p.store.Publish(ctx, Channel(conversationID), payload); err != nil {
		log.Printf("[notify] publish failed table=%s row=%s err=%v", table, rowID, err)
	}
}
