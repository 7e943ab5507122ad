package models

import (
	"context"
	"encoding/json"
	"time"

	"bitbucket.org/mmdatafocus/inventory_backend/config"
	"bitbucket.org/mmdatafocus/inventory_backend/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// StockEventRecord is a transactional outbox row. It is written with the
// document change and published by workflow.StockEventDispatcher after commit.
type StockEventRecord struct {
	ID               int             `gorm:"primary_key;index:idx_stock_event_dispatch,priority:3" json:"id"`
	BusinessId       string          `gorm:"size:64;not null;index" json:"business_id"`
	EventType        StockEventType  `gorm:"size:30;not null" json:"event_type"`
	ReferenceId      int             `gorm:"index" json:"reference_id"`
	ReferenceNumber  string          `gorm:"size:255" json:"reference_number"`
	Payload          json.RawMessage `gorm:"type:blob" json:"payload"`
	PublishStatus    string          `gorm:"size:20;not null;default:'PENDING';index:idx_stock_event_dispatch,priority:1" json:"publish_status"`
	PublishAttempts  int             `gorm:"not null;default:0" json:"publish_attempts"`
	NextAttemptAt    *time.Time      `gorm:"index:idx_stock_event_dispatch,priority:2" json:"next_attempt_at"`
	LockedAt         *time.Time      `json:"locked_at"`
	LockedBy         *string         `gorm:"size:100" json:"locked_by"`
	PublishedAt      *time.Time      `json:"published_at"`
	PubSubMessageId  *string         `gorm:"size:255" json:"pubsub_message_id"`
	LastPublishError *string         `gorm:"type:text" json:"last_publish_error"`
	CorrelationId    string          `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt        time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type documentCreatedPayload struct {
	DocumentType   DocumentType   `json:"document_type"`
	DocumentNumber string         `json:"document_number"`
	SequenceNo     int64          `json:"sequence_no"`
	Status         DocumentStatus `json:"status"`
	LineCount      int            `json:"line_count"`
}

// recordStockEvent writes an outbox row inside tx. It is a no-op unless STOCK_EVENT_OUTBOX is on.
func recordStockEvent(ctx context.Context, tx *gorm.DB, businessId string, eventType StockEventType, doc *Document, payload interface{}) error {
	if !config.StockEventOutboxEnabled() {
		return nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	record := StockEventRecord{
		BusinessId:      businessId,
		EventType:       eventType,
		ReferenceId:     doc.ID,
		ReferenceNumber: doc.DocumentNumber,
		Payload:         data,
		PublishStatus:   OutboxPublishStatusPending,
		CorrelationId:   correlationIdFromContextOrNew(ctx),
	}
	return tx.Create(&record).Error
}

func correlationIdFromContextOrNew(ctx context.Context) string {
	if ctx != nil {
		if v, ok := utils.GetCorrelationIdFromContext(ctx); ok && v != "" {
			return v
		}
	}
	return uuid.NewString()
}

// ConvertToStockEventMessage builds the Pub/Sub payload of a record.
func ConvertToStockEventMessage(rec StockEventRecord) config.StockEventMessage {
	return config.StockEventMessage{
		ID:              rec.ID,
		BusinessId:      rec.BusinessId,
		EventType:       string(rec.EventType),
		ReferenceId:     rec.ReferenceId,
		ReferenceNumber: rec.ReferenceNumber,
		Payload:         rec.Payload,
		CorrelationId:   rec.CorrelationId,
		OccurredAt:      rec.CreatedAt,
	}
}
