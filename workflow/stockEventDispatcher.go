package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/inventory_backend/config"
	"bitbucket.org/mmdatafocus/inventory_backend/models"
	"bitbucket.org/mmdatafocus/inventory_backend/utils"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const maxPublishBackoff = 10 * time.Minute

// PublishFunc sends one message and returns the broker message id.
type PublishFunc func(ctx context.Context, msg config.StockEventMessage) (string, error)

// StockEventDispatcher publishes stock_event_records rows written by document
// creation and pick-up slip completion. Rows are claimed with SKIP LOCKED so
// several instances can run side by side.
type StockEventDispatcher struct {
	DB           *gorm.DB
	Logger       *logrus.Logger
	Publish      PublishFunc
	DispatcherID string

	BatchSize      int
	PollInterval   time.Duration
	LockTimeout    time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
}

func NewStockEventDispatcher(db *gorm.DB, logger *logrus.Logger) *StockEventDispatcher {
	return &StockEventDispatcher{
		DB:             db,
		Logger:         logger,
		Publish:        config.PublishStockEventWithResult,
		DispatcherID:   uuid.NewString(),
		BatchSize:      50,
		PollInterval:   500 * time.Millisecond,
		LockTimeout:    30 * time.Second,
		MaxAttempts:    20,
		InitialBackoff: 5 * time.Second,
	}
}

func (d *StockEventDispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if _, err := d.DispatchOnce(ctx); err != nil && d.Logger != nil && ctx.Err() == nil {
			config.LogErrorCtx(ctx, d.Logger, "stockEventDispatcher.go", "Run", d.DispatcherID, err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(d.PollInterval):
		}
	}
}

// DispatchOnce claims one batch and publishes it. It returns the number of rows sent.
func (d *StockEventDispatcher) DispatchOnce(ctx context.Context) (int, error) {
	if d.DB == nil || d.Publish == nil {
		return 0, nil
	}

	// only one instance polls at a time when redis is available
	lock, err := utils.ObtainLock(ctx, "stock-event-dispatcher", "poll", d.LockTimeout, "stockEventDispatcher.go", "DispatchOnce")
	if errors.Is(err, utils.ErrorLockNotObtained) {
		return 0, nil
	} else if err != nil {
		return 0, err
	}
	defer utils.ReleaseLock(ctx, lock)

	now := time.Now().UTC()
	claimed, err := d.claim(ctx, now)
	if err != nil || len(claimed) == 0 {
		return 0, err
	}

	sent := 0
	for _, rec := range claimed {
		if rec.PublishStatus == models.OutboxPublishStatusDead {
			continue
		}
		msgId, pubErr := d.Publish(ctx, models.ConvertToStockEventMessage(rec))
		if pubErr != nil {
			d.markFailed(ctx, rec, pubErr)
			continue
		}
		d.markSent(ctx, rec, msgId, now)
		sent++
	}
	return sent, nil
}

// claim moves ready PENDING/FAILED rows, and PROCESSING rows whose lock went
// stale, to PROCESSING under this dispatcher. Rows over MaxAttempts go DEAD.
func (d *StockEventDispatcher) claim(ctx context.Context, now time.Time) ([]models.StockEventRecord, error) {
	staleBefore := now.Add(-d.LockTimeout)
	var claimed []models.StockEventRecord
	err := d.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.
			Where(`(publish_status IN ? AND (next_attempt_at IS NULL OR next_attempt_at <= ?))
				OR (publish_status = ? AND locked_at IS NOT NULL AND locked_at <= ?)`,
				[]string{models.OutboxPublishStatusPending, models.OutboxPublishStatusFailed}, now,
				models.OutboxPublishStatusProcessing, staleBefore).
			Order("id ASC").
			Limit(d.BatchSize).
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Find(&claimed).Error
		if err != nil {
			return err
		}
		for i := range claimed {
			if d.MaxAttempts > 0 && claimed[i].PublishAttempts >= d.MaxAttempts {
				msg := fmt.Sprintf("max publish attempts exceeded (%d)", d.MaxAttempts)
				claimed[i].PublishStatus = models.OutboxPublishStatusDead
				if err := tx.Model(&models.StockEventRecord{}).Where("id = ?", claimed[i].ID).Updates(map[string]interface{}{
					"publish_status":     models.OutboxPublishStatusDead,
					"last_publish_error": &msg,
					"next_attempt_at":    nil,
					"locked_at":          nil,
					"locked_by":          nil,
				}).Error; err != nil {
					return err
				}
				continue
			}

			claimed[i].PublishStatus = models.OutboxPublishStatusProcessing
			claimed[i].PublishAttempts++
			if err := tx.Model(&models.StockEventRecord{}).Where("id = ?", claimed[i].ID).Updates(map[string]interface{}{
				"publish_status":     models.OutboxPublishStatusProcessing,
				"locked_at":          &now,
				"locked_by":          &d.DispatcherID,
				"publish_attempts":   gorm.Expr("publish_attempts + 1"),
				"last_publish_error": nil,
				"next_attempt_at":    nil,
			}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	return claimed, err
}

func (d *StockEventDispatcher) markSent(ctx context.Context, rec models.StockEventRecord, msgId string, now time.Time) {
	err := d.DB.WithContext(ctx).Model(&models.StockEventRecord{}).
		Where("id = ?", rec.ID).
		Updates(map[string]interface{}{
			"publish_status":     models.OutboxPublishStatusSent,
			"published_at":       &now,
			"pub_sub_message_id": &msgId,
			"locked_at":          nil,
			"locked_by":          nil,
			"next_attempt_at":    nil,
		}).Error
	if err != nil && d.Logger != nil {
		config.LogErrorCtx(ctx, d.Logger, "stockEventDispatcher.go", "markSent", rec.ID, err)
	}
}

func (d *StockEventDispatcher) markFailed(ctx context.Context, rec models.StockEventRecord, pubErr error) {
	msg := pubErr.Error()
	fields := logrus.Fields{
		"field":          "StockEventDispatcher",
		"business_id":    rec.BusinessId,
		"record_id":      rec.ID,
		"attempt":        rec.PublishAttempts,
		"correlation_id": rec.CorrelationId,
	}

	updates := map[string]interface{}{
		"last_publish_error": &msg,
		"locked_at":          nil,
		"locked_by":          nil,
	}
	dead := d.MaxAttempts > 0 && rec.PublishAttempts >= d.MaxAttempts
	var next time.Time
	if dead {
		updates["publish_status"] = models.OutboxPublishStatusDead
		updates["next_attempt_at"] = nil
	} else {
		next = time.Now().UTC().Add(nextBackoff(d.InitialBackoff, rec.PublishAttempts))
		updates["publish_status"] = models.OutboxPublishStatusFailed
		updates["next_attempt_at"] = &next
	}

	if err := d.DB.WithContext(ctx).Model(&models.StockEventRecord{}).Where("id = ?", rec.ID).Updates(updates).Error; err != nil && d.Logger != nil {
		config.LogErrorCtx(ctx, d.Logger, "stockEventDispatcher.go", "markFailed", rec.ID, err)
	}
	if d.Logger == nil {
		return
	}
	if dead {
		d.Logger.WithFields(fields).Error("stock event moved to DEAD after max attempts: " + msg)
		return
	}
	fields["next_attempt_at"] = next.Format(time.RFC3339Nano)
	d.Logger.WithFields(fields).Error("stock event publish failed: " + msg)
}

// nextBackoff doubles initial for every attempt after the first, capped at ten minutes.
func nextBackoff(initial time.Duration, attempt int) time.Duration {
	backoff := initial
	for i := 1; i < attempt; i++ {
		backoff *= 2
		if backoff >= maxPublishBackoff {
			return maxPublishBackoff
		}
	}
	return min(backoff, maxPublishBackoff)
}
