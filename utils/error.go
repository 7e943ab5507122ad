package utils

import "errors"

var ErrorRecordNotFound = errors.New("record not found")

// Sequencing and allocation failures. Callers match them with errors.Is;
// call sites wrap them with detail.
var (
	ErrorNumberMismatch          = errors.New("document number mismatch")
	ErrorInsufficientStock       = errors.New("insufficient stock")
	ErrorInvalidBatch            = errors.New("invalid stock batch")
	ErrorInvalidQuantity         = errors.New("quantity must be greater than zero")
	ErrorBatchSkuMismatch        = errors.New("stock batch does not hold the requested sku")
	ErrorInvalidStatusTransition = errors.New("invalid status transition")
	ErrorInvalidDocumentType     = errors.New("invalid document type")
	ErrorSequenceAlreadyAdvanced = errors.New("sequence already advanced")
	ErrorValidation              = errors.New("validation failed")
)
