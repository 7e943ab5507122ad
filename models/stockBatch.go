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

// StockBatch is one receipt of a sku at a warehouse, counted in cartons.
//
// Invariant: UnitsDispatched <= Cartons * UnitsPerCarton (see DESIGN.md for the
// drift that allocation against an opened carton can introduce).
type StockBatch struct {
	ID              int        `gorm:"primary_key" json:"id"`
	BusinessId      string     `gorm:"size:64;index:idx_stock_batch_sku,priority:1;not null" json:"business_id"`
	Sku             string     `gorm:"size:100;index:idx_stock_batch_sku,priority:2;not null" json:"sku"`
	WarehouseId     int        `gorm:"index;not null" json:"warehouse_id"`
	Cartons         int        `gorm:"not null;default:0" json:"cartons"`
	UnitsPerCarton  int        `gorm:"not null" json:"units_per_carton"`
	UnitsDispatched int        `gorm:"not null;default:0" json:"units_dispatched"`
	BatchNumber     string     `gorm:"size:100" json:"batch_number"`
	InvoiceNumber   string     `gorm:"size:100" json:"invoice_number"`
	RackNumber      string     `gorm:"size:50" json:"rack_number"`
	ReceivedDate    *time.Time `json:"received_date"`
	// ParentBatchId is set on partial batches split from an opened carton.
	ParentBatchId *int      `gorm:"index" json:"parent_batch_id"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewStockBatch struct {
	Sku            string     `json:"sku" binding:"required,max=100"`
	WarehouseId    int        `json:"warehouse_id" binding:"required,gt=0"`
	Cartons        int        `json:"cartons" binding:"gt=0"`
	UnitsPerCarton int        `json:"units_per_carton" binding:"gt=0"`
	BatchNumber    string     `json:"batch_number" binding:"max=100"`
	InvoiceNumber  string     `json:"invoice_number" binding:"max=100"`
	RackNumber     string     `json:"rack_number" binding:"max=50"`
	ReceivedDate   *time.Time `json:"received_date"`
}

func (b StockBatch) TotalUnits() int {
	return b.Cartons * b.UnitsPerCarton
}

func (b StockBatch) UnitsAvailable() int {
	return b.TotalUnits() - b.UnitsDispatched
}

// lockStockBatch reads the batch under an exclusive row lock held until tx ends.
func lockStockBatch(tx *gorm.DB, businessId string, id int) (*StockBatch, error) {
	var batch StockBatch
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("business_id = ? AND id = ?", businessId, id).
		Take(&batch).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: stock batch %d", utils.ErrorRecordNotFound, id)
		}
		return nil, err
	}
	return &batch, nil
}

// ReceiveStockBatch records a goods receipt.
func ReceiveStockBatch(ctx context.Context, input *NewStockBatch) (*StockBatch, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if err := utils.ValidateInput(input); err != nil {
		return nil, err
	}

	db := config.GetDB()
	if err := ValidateSkusExist(ctx, db.WithContext(ctx), businessId, []string{input.Sku}); err != nil {
		return nil, err
	}

	batch := StockBatch{
		BusinessId:     businessId,
		Sku:            input.Sku,
		WarehouseId:    input.WarehouseId,
		Cartons:        input.Cartons,
		UnitsPerCarton: input.UnitsPerCarton,
		BatchNumber:    input.BatchNumber,
		InvoiceNumber:  input.InvoiceNumber,
		RackNumber:     input.RackNumber,
		ReceivedDate:   input.ReceivedDate,
	}
	if err := db.WithContext(ctx).Create(&batch).Error; err != nil {
		return nil, err
	}
	return &batch, nil
}

func GetStockBatch(ctx context.Context, id int) (*StockBatch, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchModel[StockBatch](ctx, businessId, id)
}

// GetStockBatchesBySku lists batches oldest first, including emptied ones.
func GetStockBatchesBySku(ctx context.Context, sku string) ([]*StockBatch, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	var results []*StockBatch
	db := config.GetDB()
	err := db.WithContext(ctx).
		Where("business_id = ? AND sku = ?", businessId, sku).
		Order("id").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

// GetAvailableUnitsBySku sums cartons*units_per_carton-units_dispatched over every batch of sku.
func GetAvailableUnitsBySku(ctx context.Context, sku string) (int, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return 0, errors.New("business id is required")
	}
	var total *int64
	db := config.GetDB()
	err := db.WithContext(ctx).Model(&StockBatch{}).
		Select("SUM(cartons * units_per_carton - units_dispatched)").
		Where("business_id = ? AND sku = ?", businessId, sku).
		Scan(&total).Error
	if err != nil {
		return 0, err
	}
	if total == nil {
		return 0, nil
	}
	return int(*total), nil
}
