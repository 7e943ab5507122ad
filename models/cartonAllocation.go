package models

import (
	"fmt"

	"bitbucket.org/mmdatafocus/inventory_backend/utils"
	"gorm.io/gorm"
)

// AllocationRequest asks for units out of one stock batch.
// Sku is optional; when set the batch must hold it.
type AllocationRequest struct {
	StockBatchId   int
	UnitsRequested int
	Sku            string
}

type AllocationResult struct {
	StockBatchId        int  `json:"stock_batch_id"`
	UnitsAllocated      int  `json:"units_allocated"`
	CartonsRemoved      int  `json:"cartons_removed"`
	PartialBatchCreated bool `json:"partial_batch_created"`
	PartialBatchId      int  `json:"partial_batch_id,omitempty"`
}

// cartonPlan is how a request maps onto whole cartons.
type cartonPlan struct {
	CartonsToRemove int
	// Remainder units are taken from one opened carton that stays in the ledger as a partial batch.
	Remainder int
}

// planCartonAllocation checks the batch and request and decides the cartons to remove.
// It does not touch the batch.
func planCartonAllocation(batch StockBatch, unitsRequested int) (cartonPlan, error) {
	if unitsRequested <= 0 {
		return cartonPlan{}, fmt.Errorf("%w: %d", utils.ErrorInvalidQuantity, unitsRequested)
	}
	per := batch.UnitsPerCarton
	if per <= 0 || batch.Cartons <= 0 {
		return cartonPlan{}, fmt.Errorf("%w: batch %d has %d cartons of %d units",
			utils.ErrorInvalidBatch, batch.ID, batch.Cartons, per)
	}
	available := batch.UnitsAvailable()
	if unitsRequested > available {
		return cartonPlan{}, fmt.Errorf("%w: batch %d has %d units available, %d requested",
			utils.ErrorInsufficientStock, batch.ID, available, unitsRequested)
	}

	plan := cartonPlan{
		CartonsToRemove: unitsRequested / per,
		Remainder:       unitsRequested % per,
	}
	if plan.Remainder > 0 {
		plan.CartonsToRemove++
	}
	// dispatched units and carton count disagree
	if plan.CartonsToRemove > batch.Cartons {
		return cartonPlan{}, fmt.Errorf("%w: batch %d has %d cartons, %d needed",
			utils.ErrorInsufficientStock, batch.ID, batch.Cartons, plan.CartonsToRemove)
	}
	return plan, nil
}

// partialBatchFrom copies the descriptive fields of the source batch into a one-carton batch
// whose first remainder units are already dispatched.
func partialBatchFrom(source StockBatch, remainder int) StockBatch {
	parentId := source.ID
	return StockBatch{
		BusinessId:      source.BusinessId,
		Sku:             source.Sku,
		WarehouseId:     source.WarehouseId,
		Cartons:         1,
		UnitsPerCarton:  source.UnitsPerCarton,
		UnitsDispatched: remainder,
		BatchNumber:     source.BatchNumber,
		InvoiceNumber:   source.InvoiceNumber,
		RackNumber:      source.RackNumber,
		ReceivedDate:    source.ReceivedDate,
		ParentBatchId:   &parentId,
	}
}

// AllocateCartons dispatches units from one batch inside the caller's transaction.
//
// The batch loses every carton the request touches; units_dispatched on it is left as is.
// When the request ends inside a carton, that carton comes back as a new partial batch.
// The batch row stays locked until tx ends, so allocations on it are serialized.
func AllocateCartons(tx *gorm.DB, businessId string, req AllocationRequest) (*AllocationResult, error) {
	if req.UnitsRequested <= 0 {
		return nil, fmt.Errorf("%w: %d", utils.ErrorInvalidQuantity, req.UnitsRequested)
	}

	batch, err := lockStockBatch(tx, businessId, req.StockBatchId)
	if err != nil {
		return nil, err
	}
	if req.Sku != "" && req.Sku != batch.Sku {
		return nil, fmt.Errorf("%w: batch %d holds %s, requested %s",
			utils.ErrorBatchSkuMismatch, batch.ID, batch.Sku, req.Sku)
	}

	plan, err := planCartonAllocation(*batch, req.UnitsRequested)
	if err != nil {
		return nil, err
	}

	if err := tx.Model(&StockBatch{}).
		Where("id = ?", batch.ID).
		Update("cartons", gorm.Expr("cartons - ?", plan.CartonsToRemove)).Error; err != nil {
		return nil, err
	}

	result := &AllocationResult{
		StockBatchId:   batch.ID,
		UnitsAllocated: req.UnitsRequested,
		CartonsRemoved: plan.CartonsToRemove,
	}
	if plan.Remainder > 0 {
		partial := partialBatchFrom(*batch, plan.Remainder)
		if err := tx.Create(&partial).Error; err != nil {
			return nil, err
		}
		result.PartialBatchCreated = true
		result.PartialBatchId = partial.ID
	}
	return result, nil
}
