package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/inventory_backend/config"
	"bitbucket.org/mmdatafocus/inventory_backend/utils"
	"gorm.io/gorm"
)

// Product is the SKU catalogue entry the ledger and documents reference.
type Product struct {
	ID             int       `gorm:"primary_key" json:"id"`
	BusinessId     string    `gorm:"size:64;not null;uniqueIndex:idx_product_sku,priority:1" json:"business_id"`
	Sku            string    `gorm:"size:100;not null;uniqueIndex:idx_product_sku,priority:2" json:"sku"`
	Name           string    `gorm:"size:255;not null" json:"name"`
	UnitsPerCarton int       `gorm:"not null;default:1" json:"units_per_carton"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewProduct struct {
	Sku            string `json:"sku" binding:"required,max=100"`
	Name           string `json:"name" binding:"required,max=255"`
	UnitsPerCarton int    `json:"units_per_carton" binding:"gt=0"`
}

func CreateProduct(ctx context.Context, input *NewProduct) (*Product, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if err := utils.ValidateInput(input); err != nil {
		return nil, err
	}
	if err := utils.ValidateUnique[Product](ctx, businessId, "sku", input.Sku, 0); err != nil {
		return nil, err
	}

	product := Product{
		BusinessId:     businessId,
		Sku:            input.Sku,
		Name:           input.Name,
		UnitsPerCarton: input.UnitsPerCarton,
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&product).Error; err != nil {
		return nil, err
	}
	// the cached set is rebuilt on the next lookup
	if err := config.RemoveRedisKey(ctx, utils.ProductSkuSetKey(businessId)); err != nil {
		config.LogError(config.GetLogger(), "product.go", "CreateProduct", "RemoveRedisKey", businessId, err)
	}
	return &product, nil
}

// ValidateSkusExist fails with ErrorRecordNotFound naming the first unknown sku.
// The sku set is served from redis when cached, otherwise from MySQL.
func ValidateSkusExist(ctx context.Context, tx *gorm.DB, businessId string, skus []string) error {
	skus = utils.UniqueSlice(skus)
	if len(skus) == 0 {
		return nil
	}

	setKey := utils.ProductSkuSetKey(businessId)
	missing := make([]string, 0)
	for _, sku := range skus {
		isMember, cached, err := config.IsRedisSetMember(ctx, setKey, sku)
		if err != nil || !cached {
			missing = skus
			break
		}
		if !isMember {
			missing = append(missing, sku)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	var known []string
	if err := tx.Model(&Product{}).
		Where("business_id = ?", businessId).
		Pluck("sku", &known).Error; err != nil {
		return err
	}
	if err := config.AddRedisSet(ctx, setKey, utils.GetCacheLifespan(), known...); err != nil {
		config.LogError(config.GetLogger(), "product.go", "ValidateSkusExist", "AddRedisSet", businessId, err)
	}

	knownSet := make(map[string]bool, len(known))
	for _, sku := range known {
		knownSet[sku] = true
	}
	for _, sku := range missing {
		if !knownSet[sku] {
			return fmt.Errorf("%w: product sku %q", utils.ErrorRecordNotFound, sku)
		}
	}
	return nil
}
