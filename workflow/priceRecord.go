package workflow

import (
	"context"
	"errors"

	"bitbucket.org/mmdatafocus/recipes_backend/config"
	"bitbucket.org/mmdatafocus/recipes_backend/models"
	"bitbucket.org/mmdatafocus/recipes_backend/utils"
	"gorm.io/gorm"
)

type PriceRecordResult struct {
	Entry   *models.PriceHistoryEntry `json:"entry"`
	Cascade *CascadeResult            `json:"cascade"`
}

// RecordPrice appends a price ledger entry and recomputes every recipe whose
// cost derives from the item, all in one transaction: either the entry and
// every touched recipe commit together, or none do.
func RecordPrice(ctx context.Context, input *models.NewPriceHistoryEntry) (*PriceRecordResult, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := utils.BusinessLock(ctx, businessId, "costing", "workflow", "RecordPrice"); err != nil {
		return nil, err
	}

	var result PriceRecordResult
	db := config.GetDB()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := AcquireCostingLock(tx, businessId); err != nil {
			return err
		}
		defer ReleaseCostingLock(tx, businessId)

		entry, err := models.InsertPriceEntry(ctx, tx, businessId, input)
		if err != nil {
			return err
		}
		result.Entry = entry

		result.Cascade, err = cascadeInTx(ctx, tx, businessId, input.ItemId)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}
