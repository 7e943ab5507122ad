package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/inventory_backend/config"
	"bitbucket.org/mmdatafocus/inventory_backend/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SequenceCounter is the persisted counter behind one document type.
// Number is the value the next document receives.
type SequenceCounter struct {
	ID         int       `gorm:"primary_key" json:"id"`
	BusinessId string    `gorm:"size:64;not null;uniqueIndex:idx_sequence_counter_name,priority:1" json:"business_id"`
	Name       string    `gorm:"size:100;not null;uniqueIndex:idx_sequence_counter_name,priority:2" json:"name"`
	Prefix     string    `gorm:"size:20" json:"prefix"`
	Number     int64     `gorm:"not null;default:0" json:"number"`
	Postfix    string    `gorm:"size:20" json:"postfix"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewSequenceCounter struct {
	Name    string `json:"name" binding:"required,max=100"`
	Prefix  string `json:"prefix" binding:"max=20"`
	Number  int64  `json:"number" binding:"gte=0"`
	Postfix string `json:"postfix" binding:"max=20"`
}

type UpdateSequenceCounterInput struct {
	Prefix  string `json:"prefix" binding:"max=20"`
	Postfix string `json:"postfix" binding:"max=20"`
}

// FormatDocumentNumber pads number to four digits; longer numbers keep their natural width.
func FormatDocumentNumber(prefix string, number int64, postfix string) string {
	return fmt.Sprintf("%s%04d%s", prefix, number, postfix)
}

func (c SequenceCounter) Formatted() string {
	return FormatDocumentNumber(c.Prefix, c.Number, c.Postfix)
}

// SequenceReservation holds the counter row locked for the rest of tx.
type SequenceReservation struct {
	tx       *gorm.DB
	counter  SequenceCounter
	advanced bool
}

// Expected is the number the document being created must carry.
func (r *SequenceReservation) Expected() string {
	return r.counter.Formatted()
}

func (r *SequenceReservation) Number() int64 {
	return r.counter.Number
}

func (r *SequenceReservation) Name() string {
	return r.counter.Name
}

// Advance moves the counter past the reserved number. Call it once, after the
// document header and lines are written in the same transaction.
func (r *SequenceReservation) Advance() error {
	if r.advanced {
		return fmt.Errorf("%w: %s", utils.ErrorSequenceAlreadyAdvanced, r.counter.Name)
	}
	result := r.tx.Model(&SequenceCounter{}).
		Where("id = ? AND number = ?", r.counter.ID, r.counter.Number).
		Update("number", gorm.Expr("number + 1"))
	if result.Error != nil {
		return result.Error
	}
	// the row is locked by this tx, so anything else means the lock was lost
	if result.RowsAffected != 1 {
		return fmt.Errorf("sequence %s moved while locked", r.counter.Name)
	}
	r.advanced = true
	return nil
}

// ReserveSequence locks the counter row for name until tx commits or rolls back.
// Concurrent callers block here and re-read the advanced number afterwards.
func ReserveSequence(tx *gorm.DB, businessId string, name string) (*SequenceReservation, error) {
	var counter SequenceCounter
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("business_id = ? AND name = ?", businessId, name).
		Take(&counter).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: sequence counter %q", utils.ErrorRecordNotFound, name)
		}
		return nil, err
	}
	return &SequenceReservation{tx: tx, counter: counter}, nil
}

// VerifyDocumentNumber rejects a client-supplied number that is not the one the server issues next.
func VerifyDocumentNumber(expected string, supplied string) error {
	if expected != supplied {
		return fmt.Errorf("%w: expected %s, got %s", utils.ErrorNumberMismatch, expected, supplied)
	}
	return nil
}

// GetNextDocumentNumber is an unlocked read for clients preparing a document.
// The value is only a hint; creation re-reads it under lock.
func GetNextDocumentNumber(ctx context.Context, name string) (string, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return "", errors.New("business id is required")
	}
	var counter SequenceCounter
	db := config.GetDB()
	err := db.WithContext(ctx).
		Where("business_id = ? AND name = ?", businessId, name).
		Take(&counter).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", fmt.Errorf("%w: sequence counter %q", utils.ErrorRecordNotFound, name)
		}
		return "", err
	}
	return counter.Formatted(), nil
}

func CreateSequenceCounter(ctx context.Context, input *NewSequenceCounter) (*SequenceCounter, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if err := utils.ValidateInput(input); err != nil {
		return nil, err
	}
	if err := utils.ValidateUnique[SequenceCounter](ctx, businessId, "name", input.Name, 0); err != nil {
		return nil, err
	}

	counter := SequenceCounter{
		BusinessId: businessId,
		Name:       input.Name,
		Prefix:     input.Prefix,
		Number:     input.Number,
		Postfix:    input.Postfix,
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&counter).Error; err != nil {
		return nil, err
	}
	return &counter, nil
}

// UpdateSequenceCounter edits the formatting only. Number belongs to the generator.
func UpdateSequenceCounter(ctx context.Context, id int, input *UpdateSequenceCounterInput) (*SequenceCounter, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if err := utils.ValidateInput(input); err != nil {
		return nil, err
	}

	db := config.GetDB()
	var counter SequenceCounter
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("business_id = ? AND id = ?", businessId, id).
			Take(&counter).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.ErrorRecordNotFound
			}
			return err
		}
		counter.Prefix = input.Prefix
		counter.Postfix = input.Postfix
		return tx.Model(&counter).Updates(map[string]interface{}{
			"prefix":  input.Prefix,
			"postfix": input.Postfix,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return &counter, nil
}

func GetSequenceCounters(ctx context.Context) ([]*SequenceCounter, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchAllModels[SequenceCounter](ctx, businessId, "name")
}

// defaultSequencePrefixes are provisioned for every new business.
var defaultSequencePrefixes = map[DocumentType]string{
	DocumentTypeQuotation:    "QT-",
	DocumentTypeSalesOrder:   "SO-",
	DocumentTypeProforma:     "PF-",
	DocumentTypeSalesInvoice: "INV-",
	DocumentTypePickUpSlip:   "PS-",
}

// CreateDefaultSequenceCounters provisions the missing counters of a business, starting at 1.
func CreateDefaultSequenceCounters(tx *gorm.DB, businessId string) ([]SequenceCounter, error) {
	created := make([]SequenceCounter, 0, len(AllDocumentTypes))
	for _, docType := range AllDocumentTypes {
		counter := SequenceCounter{
			BusinessId: businessId,
			Name:       string(docType),
			Prefix:     defaultSequencePrefixes[docType],
			Number:     1,
		}
		result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&counter)
		if result.Error != nil {
			return nil, result.Error
		}
		if result.RowsAffected == 1 {
			created = append(created, counter)
		}
	}
	return created, nil
}
