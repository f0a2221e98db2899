package audit

import (
	"context"
	"log"
	"time"

	"gorm.io/gorm"
)

// Entry is an append-only record of one AI invocation. It references
// other rows by event label and model id only and never carries content.
type Entry struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Event     string    `gorm:"type:varchar(64);index;not null" json:"event"`
	ModelID   string    `gorm:"type:varchar(128);not null" json:"model_id"`
	LatencyMs int64     `gorm:"not null" json:"latency_ms"`
	DLPFlag   bool      `gorm:"not null" json:"dlp_flag"`
	CreatedAt time.Time `json:"created_at"`
}

func (Entry) TableName() string { return "audit_log" }

type Logger struct {
	db *gorm.DB
}

func NewLogger(db *gorm.DB) *Logger {
	return &Logger{db: db}
}

// Record appends one audit entry. Best-effort: a failed write is logged
// locally and never surfaces to the caller, and there is no retry.
// Losing an audit row is tolerated; blocking the pipeline is not.
func (l *Logger) Record(ctx context.Context, event, modelID string, latencyMs int64, wasRedacted bool) {
	e := Entry{
		Event:     event,
		ModelID:   modelID,
		LatencyMs: latencyMs,
		DLPFlag:   wasRedacted,
	}
	if err := l.db.WithContext(ctx).Create(&e).Error; err != nil {
		log.Printf("[audit] record failed event=%s model=%s err=%v", event, modelID, err)
	}
}
