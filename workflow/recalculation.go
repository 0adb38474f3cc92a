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

var (
	hundred = decimal.NewFromInt(100)
)

var ErrMissingPrice = errors.New("ingredient has no resolvable price")

// recipeTotals is the pure output of a recalculation pass over a recipe's
// lines. All fields carry their persisted scale already.
type recipeTotals struct {
	RawWeight   decimal.Decimal
	NetWeight   decimal.Decimal
	TotalCost   decimal.Decimal
	CostPerGram decimal.Decimal
	CogsPct     decimal.Decimal
}

// computeLineCost rounds the extended cost at its persist scale. Inputs are
// never pre-rounded; half-away-from-zero applies only here.
func computeLineCost(amount, unitCost decimal.Decimal) decimal.Decimal {
	return amount.Mul(unitCost).Round(4)
}

// computeRecipeTotals aggregates already-rounded line costs into recipe
// totals. net_weight = raw_weight × (100 − yield_loss_pct)/100 rounded to 4;
// cost_per_gram = total_cost / net_weight rounded to 6; cogs_pct =
// total_cost / selling_price × 100 rounded to 2 on final recipes with a
// positive selling price.
func computeRecipeTotals(recipe *models.Recipe, lines []*models.RecipeIngredient) recipeTotals {
	totals := recipeTotals{
		RawWeight:   decimal.Zero,
		NetWeight:   decimal.Zero,
		TotalCost:   decimal.Zero,
		CostPerGram: decimal.Zero,
		CogsPct:     decimal.Zero,
	}
	for _, line := range lines {
		totals.RawWeight = totals.RawWeight.Add(line.Amount)
		totals.TotalCost = totals.TotalCost.Add(line.ExtendedCost)
	}
	totals.RawWeight = totals.RawWeight.Round(4)
	totals.TotalCost = totals.TotalCost.Round(4)
	totals.NetWeight = totals.RawWeight.Mul(hundred.Sub(recipe.YieldLossPct)).Div(hundred).Round(4)
	if totals.NetWeight.IsPositive() {
		totals.CostPerGram = totals.TotalCost.DivRound(totals.NetWeight, 6)
	}
	if recipe.Type == models.RecipeTypeFinal && recipe.SellingPrice.IsPositive() {
		totals.CogsPct = totals.TotalCost.Mul(hundred).DivRound(recipe.SellingPrice, 2)
	}
	return totals
}

// resolveUnitCosts fills each line's UnitCost from the resolved price maps.
// A line whose reference has no price (or points at a deleted base recipe)
// costs zero; strict mode turns that into ErrMissingPrice instead.
func resolveUnitCosts(lines []*models.RecipeIngredient, itemPrices map[int]decimal.Decimal, baseCosts map[int]decimal.Decimal, strict bool) ([]int, error) {
	var unpriced []int
	for _, line := range lines {
		unitCost := decimal.Zero
		found := false
		switch {
		case line.ItemId != nil:
			unitCost, found = priceOf(itemPrices, *line.ItemId)
		case line.BaseRecipeId != nil:
			unitCost, found = priceOf(baseCosts, *line.BaseRecipeId)
		}
		if !found {
			if strict {
				return nil, fmt.Errorf("%w: ingredient %d", ErrMissingPrice, line.ID)
			}
			unpriced = append(unpriced, line.ID)
		}
		line.UnitCost = unitCost
		line.ExtendedCost = computeLineCost(line.Amount, unitCost)
	}
	return unpriced, nil
}

func priceOf(prices map[int]decimal.Decimal, id int) (decimal.Decimal, bool) {
	price, ok := prices[id]
	if !ok || price.IsZero() {
		return decimal.Zero, ok
	}
	return price, true
}

// RecalculateRecipeCost recomputes one recipe's line costs and totals from
// current prices inside the caller's transaction. Overwrites ingredient and
// recipe rows; idempotent while prices and amounts stand still.
func RecalculateRecipeCost(ctx context.Context, tx *gorm.DB, businessId string, recipeId int) (*models.Recipe, error) {

	recipe, err := models.FetchRecipeForUpdate(ctx, tx, businessId, recipeId)
	if err != nil {
		return nil, err
	}
	lines := recipe.Ingredients

	itemPrices, baseCosts, err := resolveReferenceCosts(ctx, tx, businessId, lines)
	if err != nil {
		return nil, err
	}

	unpriced, err := resolveUnitCosts(lines, itemPrices, baseCosts, config.StrictMissingPrices())
	if err != nil {
		return nil, err
	}
	if len(unpriced) > 0 {
		config.LogWarn(config.GetLogger(), "workflow", "RecalculateRecipeCost",
			"ingredients costed at zero for missing prices", map[string]any{
				"business_id":    businessId,
				"recipe_id":      recipeId,
				"ingredient_ids": unpriced,
			})
	}

	for _, line := range lines {
		err := tx.Model(line).Updates(map[string]interface{}{
			"UnitCost":     line.UnitCost,
			"ExtendedCost": line.ExtendedCost,
		}).Error
		if err != nil {
			return nil, err
		}
	}

	totals := computeRecipeTotals(recipe, lines)
	err = tx.Model(recipe).Updates(map[string]interface{}{
		"RawWeight":   totals.RawWeight,
		"NetWeight":   totals.NetWeight,
		"TotalCost":   totals.TotalCost,
		"CostPerGram": totals.CostPerGram,
		"CogsPct":     totals.CogsPct,
	}).Error
	if err != nil {
		return nil, err
	}
	if err := utils.RemoveRedisItem[models.Recipe](recipe.ID); err != nil {
		return nil, err
	}

	recipe.RawWeight = totals.RawWeight
	recipe.NetWeight = totals.NetWeight
	recipe.TotalCost = totals.TotalCost
	recipe.CostPerGram = totals.CostPerGram
	recipe.CogsPct = totals.CogsPct
	return recipe, nil
}

// resolveReferenceCosts looks up current item prices and base recipe
// cost_per_gram for a recipe's lines in two queries.
func resolveReferenceCosts(ctx context.Context, tx *gorm.DB, businessId string, lines []*models.RecipeIngredient) (map[int]decimal.Decimal, map[int]decimal.Decimal, error) {
	var itemIds, baseIds []int
	for _, line := range lines {
		if line.ItemId != nil {
			itemIds = append(itemIds, *line.ItemId)
		}
		if line.BaseRecipeId != nil {
			baseIds = append(baseIds, *line.BaseRecipeId)
		}
	}

	itemPrices, err := models.CurrentPricesFor(ctx, tx, businessId, itemIds)
	if err != nil {
		return nil, nil, err
	}

	baseCosts := make(map[int]decimal.Decimal, len(baseIds))
	if len(baseIds) > 0 {
		var bases []models.Recipe
		err := tx.WithContext(ctx).Select("id", "cost_per_gram").
			Where("business_id = ? AND id IN ? AND is_deleted = 0", businessId, utils.UniqueSlice(baseIds)).
			Find(&bases).Error
		if err != nil {
			return nil, nil, err
		}
		for _, base := range bases {
			baseCosts[base.ID] = base.CostPerGram
		}
	}
	return itemPrices, baseCosts, nil
}
