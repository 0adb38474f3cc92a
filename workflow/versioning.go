package workflow

import (
	"context"
	"errors"
	"fmt"

	"bitbucket.org/mmdatafocus/recipes_backend/config"
	"bitbucket.org/mmdatafocus/recipes_backend/models"
	"bitbucket.org/mmdatafocus/recipes_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var maxScaleFactor = decimal.NewFromInt(1000)

// CreateRecipeVersion freezes the current version of a lineage and inserts
// the next one: same settings, ingredients copied by value, version + 1,
// recalculated against current prices. The frozen row keeps its costs
// untouched forever.
func CreateRecipeVersion(ctx context.Context, recipeId int) (*models.Recipe, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := utils.BusinessLock(ctx, businessId, "costing", "workflow", "CreateRecipeVersion"); err != nil {
		return nil, err
	}

	var next *models.Recipe
	db := config.GetDB()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := AcquireCostingLock(tx, businessId); err != nil {
			return err
		}
		defer ReleaseCostingLock(tx, businessId)

		current, err := models.FetchRecipeForUpdate(ctx, tx, businessId, recipeId)
		if err != nil {
			return err
		}
		if !utils.DereferencePtr(current.IsCurrent) {
			return errors.New("only the current version can be versioned")
		}

		rootId := current.LineageRootId
		if rootId == 0 {
			rootId = current.ID
		}

		if err := tx.Model(current).Updates(map[string]interface{}{
			"IsCurrent": false,
		}).Error; err != nil {
			return err
		}

		row := models.Recipe{
			BusinessId:    businessId,
			Name:          current.Name,
			Type:          current.Type,
			Version:       current.Version + 1,
			LineageRootId: rootId,
			IsCurrent:     utils.NewTrue(),
			YieldLossPct:  current.YieldLossPct,
			SellingPrice:  current.SellingPrice,
			VatPct:        current.VatPct,
			DiscountPct:   current.DiscountPct,
			Notes:         current.Notes,
			IsDeleted:     utils.NewFalse(),
		}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		if err := copyIngredients(tx, businessId, current.Ingredients, row.ID); err != nil {
			return err
		}
		if err := models.CreateHistory(tx, "*CREATE*", row.ID, "recipes", current, &row, fmt.Sprintf("Recipe %s versioned to v%d.", row.Name, row.Version)); err != nil {
			return err
		}
		if err := models.PublishToAudit(ctx, tx, businessId, row.ID, models.AuditReferenceTypeRecipe, &row, current, models.AuditActionCreate); err != nil {
			return err
		}
		if err := utils.RemoveRedisItem[models.Recipe](current.ID); err != nil {
			return err
		}

		next, err = RecalculateRecipeCost(ctx, tx, businessId, row.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return next, nil
}

// ScaleRecipe multiplies every ingredient amount by factor and recalculates.
// A pre-scale snapshot recording the factor is captured first, so the state
// being destroyed stays recoverable. Unit costs come from current prices, not
// the scaled stale ones.
func ScaleRecipe(ctx context.Context, recipeId int, factor decimal.Decimal) (*models.Recipe, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if !factor.IsPositive() || factor.GreaterThan(maxScaleFactor) {
		return nil, errors.New("scale factor must be positive and at most 1000")
	}

	if err := utils.BusinessLock(ctx, businessId, "costing", "workflow", "ScaleRecipe"); err != nil {
		return nil, err
	}

	var recipe *models.Recipe
	db := config.GetDB()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := AcquireCostingLock(tx, businessId); err != nil {
			return err
		}
		defer ReleaseCostingLock(tx, businessId)

		current, err := models.FetchRecipeForUpdate(ctx, tx, businessId, recipeId)
		if err != nil {
			return err
		}

		note := fmt.Sprintf("Auto archive before scaling by factor %s", factor.String())
		if _, err := models.CreateRecipeSnapshot(ctx, tx, businessId, recipeId, note); err != nil {
			return err
		}

		for _, line := range current.Ingredients {
			err := tx.Model(line).Updates(map[string]interface{}{
				"Amount":       line.Amount.Mul(factor).Round(4),
				"ExtendedCost": line.ExtendedCost.Mul(factor).Round(4),
			}).Error
			if err != nil {
				return err
			}
		}
		if err := models.CreateHistory(tx, "*UPDATE*", current.ID, "recipes", current, nil, "Recipe "+current.Name+" scaled by "+factor.String()+"."); err != nil {
			return err
		}
		if err := models.PublishToAudit(ctx, tx, businessId, current.ID, models.AuditReferenceTypeRecipe, nil, current, models.AuditActionUpdate); err != nil {
			return err
		}

		recipe, err = RecalculateRecipeCost(ctx, tx, businessId, recipeId)
		return err
	})
	if err != nil {
		return nil, err
	}
	return recipe, nil
}

// DuplicateRecipe copies a recipe's settings and lines into a brand-new
// lineage at version 1 under a new name, then recalculates the copy.
func DuplicateRecipe(ctx context.Context, recipeId int, newName string) (*models.Recipe, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if newName == "" {
		return nil, errors.New("name is required")
	}

	if err := utils.BusinessLock(ctx, businessId, "costing", "workflow", "DuplicateRecipe"); err != nil {
		return nil, err
	}

	var duplicate *models.Recipe
	db := config.GetDB()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := AcquireCostingLock(tx, businessId); err != nil {
			return err
		}
		defer ReleaseCostingLock(tx, businessId)

		source, err := models.FetchRecipeForUpdate(ctx, tx, businessId, recipeId)
		if err != nil {
			return err
		}

		row := models.Recipe{
			BusinessId:   businessId,
			Name:         newName,
			Type:         source.Type,
			Version:      1,
			IsCurrent:    utils.NewTrue(),
			YieldLossPct: source.YieldLossPct,
			SellingPrice: source.SellingPrice,
			VatPct:       source.VatPct,
			DiscountPct:  source.DiscountPct,
			Notes:        source.Notes,
			IsDeleted:    utils.NewFalse(),
		}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		if err := copyIngredients(tx, businessId, source.Ingredients, row.ID); err != nil {
			return err
		}
		if err := models.CreateHistory(tx, "*CREATE*", row.ID, "recipes", nil, &row, "Recipe "+source.Name+" duplicated as "+newName+"."); err != nil {
			return err
		}
		if err := models.PublishToAudit(ctx, tx, businessId, row.ID, models.AuditReferenceTypeRecipe, &row, nil, models.AuditActionCreate); err != nil {
			return err
		}

		duplicate, err = RecalculateRecipeCost(ctx, tx, businessId, row.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return duplicate, nil
}

// UpdateRecipeSettings changes a recipe's cost-relevant settings and
// recalculates it in the same transaction.
func UpdateRecipeSettings(ctx context.Context, recipeId int, input *models.NewRecipe) (*models.Recipe, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := utils.BusinessLock(ctx, businessId, "costing", "workflow", "UpdateRecipeSettings"); err != nil {
		return nil, err
	}

	var recipe *models.Recipe
	db := config.GetDB()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := AcquireCostingLock(tx, businessId); err != nil {
			return err
		}
		defer ReleaseCostingLock(tx, businessId)

		current, err := models.FetchRecipeForUpdate(ctx, tx, businessId, recipeId)
		if err != nil {
			return err
		}
		input.Type = current.Type
		if err := input.Validate(ctx, businessId, recipeId); err != nil {
			return err
		}
		old := *current

		if err := tx.Model(current).Updates(map[string]interface{}{
			"Name":         input.Name,
			"YieldLossPct": input.YieldLossPct.Round(2),
			"SellingPrice": input.SellingPrice.Round(4),
			"VatPct":       input.VatPct.Round(2),
			"DiscountPct":  input.DiscountPct.Round(2),
			"Notes":        input.Notes,
		}).Error; err != nil {
			return err
		}
		if err := models.CreateHistory(tx, "*UPDATE*", current.ID, "recipes", &old, current, "Recipe "+current.Name+" updated."); err != nil {
			return err
		}
		if err := models.PublishToAudit(ctx, tx, businessId, current.ID, models.AuditReferenceTypeRecipe, current, &old, models.AuditActionUpdate); err != nil {
			return err
		}

		recipe, err = RecalculateRecipeCost(ctx, tx, businessId, recipeId)
		return err
	})
	if err != nil {
		return nil, err
	}
	return recipe, nil
}

// RecalculateRecipe is the standalone recalculation entry point; edits and
// cascades call RecalculateRecipeCost inside their own transactions.
func RecalculateRecipe(ctx context.Context, recipeId int) (*models.Recipe, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := utils.BusinessLock(ctx, businessId, "costing", "workflow", "RecalculateRecipe"); err != nil {
		return nil, err
	}

	var recipe *models.Recipe
	db := config.GetDB()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := AcquireCostingLock(tx, businessId); err != nil {
			return err
		}
		defer ReleaseCostingLock(tx, businessId)

		var err error
		recipe, err = RecalculateRecipeCost(ctx, tx, businessId, recipeId)
		return err
	})
	if err != nil {
		return nil, err
	}
	return recipe, nil
}

// CreateSnapshot captures a recipe's persisted costs on demand.
func CreateSnapshot(ctx context.Context, recipeId int, notes string) (*models.RecipeSnapshot, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	var snapshot *models.RecipeSnapshot
	db := config.GetDB()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		snapshot, err = models.CreateRecipeSnapshot(ctx, tx, businessId, recipeId, notes)
		return err
	})
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

func copyIngredients(tx *gorm.DB, businessId string, lines []*models.RecipeIngredient, targetRecipeId int) error {
	for _, line := range lines {
		row := models.RecipeIngredient{
			BusinessId:     businessId,
			RecipeId:       targetRecipeId,
			IngredientType: line.IngredientType,
			ItemId:         line.ItemId,
			BaseRecipeId:   line.BaseRecipeId,
			Amount:         line.Amount,
			UnitCost:       line.UnitCost,
			ExtendedCost:   line.ExtendedCost,
			SortOrder:      line.SortOrder,
		}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
	}
	return nil
}
