package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/inventory_backend/utils"
	"github.com/shopspring/decimal"
)

// Document is the header shared by quotations, sales orders, proformas,
// sales invoices and pick-up slips.
type Document struct {
	ID              int            `gorm:"primary_key" json:"id"`
	BusinessId      string         `gorm:"size:64;not null;uniqueIndex:idx_document_number,priority:1" json:"business_id"`
	DocumentType    DocumentType   `gorm:"size:20;not null;uniqueIndex:idx_document_number,priority:2" json:"document_type"`
	DocumentNumber  string         `gorm:"size:255;not null;uniqueIndex:idx_document_number,priority:3" json:"document_number"`
	SequenceNo      int64          `gorm:"not null" json:"sequence_no"`
	ClientId        int            `gorm:"index;not null" json:"client_id"`
	WarehouseId     int            `gorm:"index" json:"warehouse_id"`
	ReferenceNumber string         `gorm:"size:255" json:"reference_number"`
	DocumentDate    time.Time      `gorm:"not null" json:"document_date"`
	Notes           string         `gorm:"type:text" json:"notes"`
	CurrentStatus   DocumentStatus `gorm:"size:20;not null" json:"current_status"`
	CreatedBy       int            `json:"created_by"`
	UpdatedBy       int            `json:"updated_by"`
	CreatedAt       time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	Lines           []DocumentLine `gorm:"foreignKey:DocumentId;constraint:OnDelete:CASCADE" json:"lines"`
}

// DocumentLine is one sku on a document. Pick-up slip lines name the batch they ship from.
type DocumentLine struct {
	ID           int             `gorm:"primary_key" json:"id"`
	DocumentId   int             `gorm:"index;not null" json:"document_id"`
	Sku          string          `gorm:"size:100;not null" json:"sku"`
	Description  string          `gorm:"size:255" json:"description"`
	Quantity     int             `gorm:"not null" json:"quantity"`
	UnitRate     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unit_rate"`
	StockBatchId *int            `gorm:"index" json:"stock_batch_id"`
}

type NewDocument struct {
	DocumentType    DocumentType      `json:"document_type" binding:"required"`
	DocumentNumber  string            `json:"document_number" binding:"required,max=255"`
	ClientId        int               `json:"client_id" binding:"required,gt=0"`
	WarehouseId     int               `json:"warehouse_id" binding:"gte=0"`
	ReferenceNumber string            `json:"reference_number" binding:"max=255"`
	DocumentDate    time.Time         `json:"document_date" binding:"required"`
	Notes           string            `json:"notes"`
	CurrentStatus   DocumentStatus    `json:"current_status"`
	Lines           []NewDocumentLine `json:"lines" binding:"required,min=1,dive"`
}

type NewDocumentLine struct {
	Sku          string          `json:"sku" binding:"required,max=100"`
	Description  string          `json:"description" binding:"max=255"`
	Quantity     int             `json:"quantity" binding:"gte=0"`
	UnitRate     decimal.Decimal `json:"unit_rate"`
	StockBatchId *int            `json:"stock_batch_id" binding:"omitempty,gt=0"`
}

// NewPickUpSlipStatus is the body of a pick-up slip save. Lines replace the
// stored lines while the slip is pending; an empty list keeps them.
type NewPickUpSlipStatus struct {
	CurrentStatus DocumentStatus    `json:"current_status" binding:"required"`
	Lines         []NewDocumentLine `json:"lines" binding:"omitempty,dive"`
}

func (input *NewDocument) validate() error {
	if err := utils.ValidateInput(input); err != nil {
		return err
	}
	if !input.DocumentType.IsValid() {
		return fmt.Errorf("%w: %q", utils.ErrorInvalidDocumentType, input.DocumentType)
	}
	if input.DocumentType == DocumentTypePickUpSlip {
		if input.CurrentStatus != "" && !isPickUpSlipStatus(input.CurrentStatus) {
			return fmt.Errorf("%w: pick-up slip cannot start as %q", utils.ErrorInvalidStatusTransition, input.CurrentStatus)
		}
		return validatePickUpSlipLines(input.Lines)
	}
	if input.CurrentStatus != "" && input.CurrentStatus != DocumentStatusIssued {
		return fmt.Errorf("%w: %s cannot be %q", utils.ErrorInvalidStatusTransition, input.DocumentType, input.CurrentStatus)
	}
	return nil
}

func validatePickUpSlipLines(lines []NewDocumentLine) error {
	for i, line := range lines {
		if line.StockBatchId == nil {
			return fmt.Errorf("%w: lines[%d].stock_batch_id is required on pick-up slips", utils.ErrorValidation, i)
		}
	}
	return nil
}

func mapDocumentLines(input []NewDocumentLine) []DocumentLine {
	lines := make([]DocumentLine, 0, len(input))
	for _, l := range input {
		lines = append(lines, DocumentLine{
			Sku:          l.Sku,
			Description:  l.Description,
			Quantity:     l.Quantity,
			UnitRate:     l.UnitRate,
			StockBatchId: l.StockBatchId,
		})
	}
	return lines
}

func lineSkus(lines []DocumentLine) []string {
	skus := make([]string, 0, len(lines))
	for _, l := range lines {
		skus = append(skus, l.Sku)
	}
	return skus
}

func GetDocument(ctx context.Context, id int) (*Document, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchModel[Document](ctx, businessId, id, "Lines")
}
