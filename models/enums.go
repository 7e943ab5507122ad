package models

import (
	"encoding/json"
	"errors"
	"fmt"

	"bitbucket.org/mmdatafocus/inventory_backend/utils"
)

type DocumentType string

const (
	DocumentTypeQuotation    DocumentType = "quotation"
	DocumentTypeSalesOrder   DocumentType = "sales_order"
	DocumentTypeProforma     DocumentType = "proforma"
	DocumentTypeSalesInvoice DocumentType = "sales_invoice"
	DocumentTypePickUpSlip   DocumentType = "pick_up_slip"
)

// AllDocumentTypes doubles as the list of sequence counters a business needs.
var AllDocumentTypes = []DocumentType{
	DocumentTypeQuotation,
	DocumentTypeSalesOrder,
	DocumentTypeProforma,
	DocumentTypeSalesInvoice,
	DocumentTypePickUpSlip,
}

func (t DocumentType) IsValid() bool {
	for _, v := range AllDocumentTypes {
		if v == t {
			return true
		}
	}
	return false
}

func (t *DocumentType) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return errors.New("document type must be string")
	}
	v := DocumentType(s)
	if !v.IsValid() {
		return fmt.Errorf("%w: %q", utils.ErrorInvalidDocumentType, s)
	}
	*t = v
	return nil
}

type DocumentStatus string

const (
	// DocumentStatusIssued is the only status of quotations, orders, proformas and invoices.
	DocumentStatusIssued    DocumentStatus = "issued"
	DocumentStatusPending   DocumentStatus = "pending"
	DocumentStatusCompleted DocumentStatus = "completed"
)

// PickUpSlipTransition reports whether moving a pick-up slip from oldStatus to
// newStatus must allocate stock.
//
//	pending   -> completed : allocate
//	pending   -> pending   : no-op
//	completed -> completed : no-op
//	completed -> pending   : rejected
func PickUpSlipTransition(oldStatus, newStatus DocumentStatus) (bool, error) {
	if !isPickUpSlipStatus(oldStatus) || !isPickUpSlipStatus(newStatus) {
		return false, fmt.Errorf("%w: %q -> %q", utils.ErrorInvalidStatusTransition, oldStatus, newStatus)
	}
	if oldStatus == newStatus {
		return false, nil
	}
	if oldStatus == DocumentStatusCompleted {
		return false, fmt.Errorf("%w: completed pick-up slip cannot be reopened", utils.ErrorInvalidStatusTransition)
	}
	return newStatus == DocumentStatusCompleted, nil
}

func isPickUpSlipStatus(s DocumentStatus) bool {
	return s == DocumentStatusPending || s == DocumentStatusCompleted
}

type StockEventType string

const (
	StockEventDocumentCreated StockEventType = "document_created"
	StockEventStockAllocated  StockEventType = "stock_allocated"
)

const (
	OutboxPublishStatusPending    = "PENDING"
	OutboxPublishStatusProcessing = "PROCESSING"
	OutboxPublishStatusSent       = "SENT"
	OutboxPublishStatusFailed     = "FAILED"
	OutboxPublishStatusDead       = "DEAD"
)
