package models

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"bitbucket.org/mmdatafocus/inventory_backend/config"
	"bitbucket.org/mmdatafocus/inventory_backend/utils"
	"github.com/go-sql-driver/mysql"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var tracer = otel.Tracer("inventory-backend/models")

const mysqlErrDuplicateEntry = 1062

// CreateDocument issues a document under the next number of its sequence.
//
// The counter row stays locked from the number check until commit, and is
// advanced only after header and lines are written. Any failure rolls back the
// document, the counter and, for a pick-up slip created as completed, the stock.
func CreateDocument(ctx context.Context, input *NewDocument) (*Document, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	userId, _ := utils.GetUserIdFromContext(ctx)

	if err := input.validate(); err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "CreateDocument", trace.WithAttributes(
		attribute.String("business.id", businessId),
		attribute.String("document.type", string(input.DocumentType)),
	))
	defer span.End()

	// A slip requested as completed is created pending and then completed in the
	// same transaction, so allocation only ever runs through the guarded transition.
	requestedStatus := input.CurrentStatus
	initialStatus := DocumentStatusIssued
	if input.DocumentType == DocumentTypePickUpSlip {
		initialStatus = DocumentStatusPending
	}

	doc := Document{
		BusinessId:      businessId,
		DocumentType:    input.DocumentType,
		ClientId:        input.ClientId,
		WarehouseId:     input.WarehouseId,
		ReferenceNumber: input.ReferenceNumber,
		DocumentDate:    input.DocumentDate,
		Notes:           input.Notes,
		CurrentStatus:   initialStatus,
		CreatedBy:       userId,
		UpdatedBy:       userId,
		Lines:           mapDocumentLines(input.Lines),
	}

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, failSpan(ctx, span, "CreateDocument", input, tx.Error)
	}

	if err := ValidateSkusExist(ctx, tx, businessId, lineSkus(doc.Lines)); err != nil {
		tx.Rollback()
		return nil, failSpan(ctx, span, "CreateDocument", input, err)
	}

	reservation, err := ReserveSequence(tx, businessId, string(input.DocumentType))
	if err != nil {
		tx.Rollback()
		return nil, failSpan(ctx, span, "CreateDocument", input, err)
	}
	if err := VerifyDocumentNumber(reservation.Expected(), input.DocumentNumber); err != nil {
		tx.Rollback()
		return nil, failSpan(ctx, span, "CreateDocument", input, err)
	}
	doc.DocumentNumber = reservation.Expected()
	doc.SequenceNo = reservation.Number()
	span.SetAttributes(attribute.String("document.number", doc.DocumentNumber))

	if err := tx.Create(&doc).Error; err != nil {
		tx.Rollback()
		return nil, failSpan(ctx, span, "CreateDocument", input, mapDuplicateDocumentNumber(err))
	}

	if doc.DocumentType == DocumentTypePickUpSlip && requestedStatus == DocumentStatusCompleted {
		if _, err := applyPickUpSlipTransition(ctx, tx, &doc, DocumentStatusCompleted, userId); err != nil {
			tx.Rollback()
			return nil, failSpan(ctx, span, "CreateDocument", input, err)
		}
	}

	if err := reservation.Advance(); err != nil {
		tx.Rollback()
		return nil, failSpan(ctx, span, "CreateDocument", input, err)
	}

	if err := recordStockEvent(ctx, tx, businessId, StockEventDocumentCreated, &doc, documentCreatedPayload{
		DocumentType:   doc.DocumentType,
		DocumentNumber: doc.DocumentNumber,
		SequenceNo:     doc.SequenceNo,
		Status:         doc.CurrentStatus,
		LineCount:      len(doc.Lines),
	}); err != nil {
		tx.Rollback()
		return nil, failSpan(ctx, span, "CreateDocument", input, err)
	}

	if err := tx.Commit().Error; err != nil {
		return nil, failSpan(ctx, span, "CreateDocument", input, err)
	}
	return &doc, nil
}

// UpdatePickUpSlipStatus saves a pick-up slip and, on pending -> completed only,
// dispatches every line with a positive quantity from its stock batch.
//
// The slip row is locked before its status is read, so two concurrent completions
// serialize and the second one is a completed -> completed no-op.
func UpdatePickUpSlipStatus(ctx context.Context, id int, input *NewPickUpSlipStatus) (*Document, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	userId, _ := utils.GetUserIdFromContext(ctx)

	if err := utils.ValidateInput(input); err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "UpdatePickUpSlipStatus", trace.WithAttributes(
		attribute.String("business.id", businessId),
		attribute.Int("document.id", id),
		attribute.String("document.status", string(input.CurrentStatus)),
	))
	defer span.End()

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, failSpan(ctx, span, "UpdatePickUpSlipStatus", id, tx.Error)
	}

	doc, err := lockPickUpSlip(tx, businessId, id)
	if err != nil {
		tx.Rollback()
		return nil, failSpan(ctx, span, "UpdatePickUpSlipStatus", id, err)
	}
	if _, err := PickUpSlipTransition(doc.CurrentStatus, input.CurrentStatus); err != nil {
		tx.Rollback()
		return nil, failSpan(ctx, span, "UpdatePickUpSlipStatus", id, err)
	}

	if len(input.Lines) > 0 {
		if err := replacePickUpSlipLines(ctx, tx, doc, input.Lines); err != nil {
			tx.Rollback()
			return nil, failSpan(ctx, span, "UpdatePickUpSlipStatus", id, err)
		}
	}

	results, err := applyPickUpSlipTransition(ctx, tx, doc, input.CurrentStatus, userId)
	if err != nil {
		tx.Rollback()
		return nil, failSpan(ctx, span, "UpdatePickUpSlipStatus", id, err)
	}
	span.SetAttributes(attribute.Int("allocation.count", len(results)))

	if err := tx.Commit().Error; err != nil {
		return nil, failSpan(ctx, span, "UpdatePickUpSlipStatus", id, err)
	}
	return doc, nil
}

func lockPickUpSlip(tx *gorm.DB, businessId string, id int) (*Document, error) {
	var doc Document
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("business_id = ? AND id = ?", businessId, id).
		Take(&doc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: document %d", utils.ErrorRecordNotFound, id)
		}
		return nil, err
	}
	if doc.DocumentType != DocumentTypePickUpSlip {
		return nil, fmt.Errorf("%w: document %d is a %s", utils.ErrorInvalidDocumentType, id, doc.DocumentType)
	}
	if err := tx.Where("document_id = ?", doc.ID).Order("id").Find(&doc.Lines).Error; err != nil {
		return nil, err
	}
	return &doc, nil
}

// replacePickUpSlipLines swaps the stored lines of a pending slip. Lines of a
// completed slip were already dispatched and are kept.
func replacePickUpSlipLines(ctx context.Context, tx *gorm.DB, doc *Document, input []NewDocumentLine) error {
	if doc.CurrentStatus == DocumentStatusCompleted {
		if config.StrictPickUpSlipLines() {
			return fmt.Errorf("%w: lines of completed pick-up slip %s cannot change", utils.ErrorInvalidStatusTransition, doc.DocumentNumber)
		}
		config.GetLogger().WithField("document_number", doc.DocumentNumber).
			Warn("ignoring line changes on completed pick-up slip")
		return nil
	}
	if err := validatePickUpSlipLines(input); err != nil {
		return err
	}
	lines := mapDocumentLines(input)
	if err := ValidateSkusExist(ctx, tx, doc.BusinessId, lineSkus(lines)); err != nil {
		return err
	}
	if err := tx.Where("document_id = ?", doc.ID).Delete(&DocumentLine{}).Error; err != nil {
		return err
	}
	for i := range lines {
		lines[i].DocumentId = doc.ID
	}
	if err := tx.Create(&lines).Error; err != nil {
		return err
	}
	doc.Lines = lines
	return nil
}

// applyPickUpSlipTransition persists the new status and allocates when the
// transition is pending -> completed. Lines are dispatched in batch id order so
// concurrent slips lock shared batches in the same order.
func applyPickUpSlipTransition(ctx context.Context, tx *gorm.DB, doc *Document, newStatus DocumentStatus, userId int) ([]AllocationResult, error) {
	allocate, err := PickUpSlipTransition(doc.CurrentStatus, newStatus)
	if err != nil {
		return nil, err
	}

	if err := tx.Model(&Document{}).Where("id = ?", doc.ID).Updates(map[string]interface{}{
		"current_status": newStatus,
		"updated_by":     userId,
	}).Error; err != nil {
		return nil, err
	}
	doc.CurrentStatus = newStatus
	doc.UpdatedBy = userId
	if !allocate {
		return nil, nil
	}

	lines := make([]DocumentLine, 0, len(doc.Lines))
	for _, line := range doc.Lines {
		if line.Quantity > 0 {
			lines = append(lines, line)
		}
	}
	sort.SliceStable(lines, func(i, j int) bool {
		return utils.DereferencePtr(lines[i].StockBatchId) < utils.DereferencePtr(lines[j].StockBatchId)
	})

	results := make([]AllocationResult, 0, len(lines))
	for _, line := range lines {
		if line.StockBatchId == nil {
			return nil, fmt.Errorf("%w: line %s has no stock batch", utils.ErrorValidation, line.Sku)
		}
		result, err := AllocateCartons(tx, doc.BusinessId, AllocationRequest{
			StockBatchId:   *line.StockBatchId,
			UnitsRequested: line.Quantity,
			Sku:            line.Sku,
		})
		if err != nil {
			return nil, fmt.Errorf("line %s: %w", line.Sku, err)
		}
		if err := recordStockEvent(ctx, tx, doc.BusinessId, StockEventStockAllocated, doc, result); err != nil {
			return nil, err
		}
		results = append(results, *result)
	}
	return results, nil
}

// mapDuplicateDocumentNumber reports a unique index hit on the document number as a mismatch;
// it means another transaction issued the same number.
func mapDuplicateDocumentNumber(err error) error {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlErrDuplicateEntry {
		return fmt.Errorf("%w: %s", utils.ErrorNumberMismatch, mysqlErr.Message)
	}
	return err
}

// IsDomainError is true for the expected business failures of this package.
func IsDomainError(err error) bool {
	for _, target := range []error{
		utils.ErrorRecordNotFound,
		utils.ErrorNumberMismatch,
		utils.ErrorInsufficientStock,
		utils.ErrorInvalidQuantity,
		utils.ErrorBatchSkuMismatch,
		utils.ErrorInvalidStatusTransition,
		utils.ErrorInvalidDocumentType,
		utils.ErrorValidation,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// failSpan marks the span failed and logs anything that is not an expected business failure.
func failSpan(ctx context.Context, span trace.Span, funcName string, data any, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	if name, ok := utils.GetUserNameFromContext(ctx); ok {
		span.SetAttributes(attribute.String("user.name", name))
	}
	if !IsDomainError(err) {
		config.LogErrorCtx(ctx, config.GetLogger(), "documentTransaction.go", funcName, data, err)
	}
	return err
}
