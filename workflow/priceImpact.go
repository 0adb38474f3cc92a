package workflow

import (
	"context"
	"errors"

	"bitbucket.org/mmdatafocus/recipes_backend/config"
	"bitbucket.org/mmdatafocus/recipes_backend/models"
	"bitbucket.org/mmdatafocus/recipes_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// RecipeImpact is one recipe's projected cost movement under a hypothetical
// price. Old values are the persisted ones; nothing here is written back.
type RecipeImpact struct {
	RecipeId     int               `json:"recipe_id"`
	RecipeName   string            `json:"recipe_name"`
	RecipeType   models.RecipeType `json:"recipe_type"`
	CostDelta    decimal.Decimal   `json:"cost_delta"`
	OldTotalCost decimal.Decimal   `json:"old_total_cost"`
	NewTotalCost decimal.Decimal   `json:"new_total_cost"`
	OldCogsPct   decimal.Decimal   `json:"old_cogs_pct"`
	NewCogsPct   decimal.Decimal   `json:"new_cogs_pct"`
}

type ImpactReport struct {
	ItemId     int             `json:"item_id"`
	OldPrice   decimal.Decimal `json:"old_price"`
	NewPrice   decimal.Decimal `json:"new_price"`
	PriceDelta decimal.Decimal `json:"price_delta"`
	Recipes    []*RecipeImpact `json:"recipes"`
}

// SimulatePriceImpact projects what repricing an item would do to every
// recipe whose cost derives from it, walking base recipe consumers the same
// way the cascade does, but entirely in memory. No persisted cost moves.
func SimulatePriceImpact(ctx context.Context, itemId int, newPrice decimal.Decimal) (*ImpactReport, error) {
	ctx, span := tracer.Start(ctx, "SimulatePriceImpact")
	defer span.End()

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if newPrice.IsNegative() {
		return nil, errors.New("price must not be negative")
	}
	if err := utils.ValidateResourceId[models.InventoryItem](ctx, businessId, itemId); err != nil {
		return nil, err
	}

	db := config.GetDB()
	newPrice = newPrice.Round(6)

	current, err := models.CurrentPrice(ctx, db, businessId, itemId)
	if err != nil {
		return nil, err
	}
	oldPrice := decimal.Zero
	if current != nil {
		oldPrice = current.PricePerUnit
	}

	report := &ImpactReport{
		ItemId:     itemId,
		OldPrice:   oldPrice,
		NewPrice:   newPrice,
		PriceDelta: newPrice.Sub(oldPrice),
	}

	direct, err := models.RecipesUsingItem(ctx, db, businessId, itemId)
	if err != nil {
		return nil, err
	}
	order, err := propagationOrder(direct,
		func(ids []int) ([]int, error) {
			return models.ConsumersOf(ctx, db, businessId, ids)
		},
		func(id int) ([]int, error) {
			return models.BaseRecipeIdsOf(ctx, db, businessId, id)
		})
	if err != nil {
		return nil, err
	}

	// projected cost_per_gram per base recipe under the hypothetical price;
	// bases come first in the order, so consumers always find theirs
	projectedCostPerGram := make(map[int]decimal.Decimal)

	for _, recipeId := range order {
		impact, err := simulateRecipe(ctx, db, businessId, recipeId, itemId, report.PriceDelta, projectedCostPerGram)
		if err != nil {
			return nil, err
		}
		if impact != nil {
			report.Recipes = append(report.Recipes, impact)
		}
	}
	return report, nil
}

func simulateRecipe(ctx context.Context, db *gorm.DB, businessId string, recipeId int, itemId int, priceDelta decimal.Decimal, projectedCostPerGram map[int]decimal.Decimal) (*RecipeImpact, error) {
	recipe, err := models.FetchRecipeForUpdate(ctx, db, businessId, recipeId)
	if err != nil {
		return nil, err
	}
	return projectRecipeImpact(recipe, itemId, priceDelta, projectedCostPerGram), nil
}

// projectRecipeImpact reprices one loaded recipe in memory. Returns nil when
// nothing on the recipe moves. Records the projected cost_per_gram of base
// recipes into projectedCostPerGram for the levels that follow.
func projectRecipeImpact(recipe *models.Recipe, itemId int, priceDelta decimal.Decimal, projectedCostPerGram map[int]decimal.Decimal) *RecipeImpact {
	delta := decimal.Zero
	for _, line := range recipe.Ingredients {
		switch {
		case line.ItemId != nil && *line.ItemId == itemId:
			delta = delta.Add(computeLineCost(line.Amount, line.UnitCost.Add(priceDelta)).Sub(line.ExtendedCost))
		case line.BaseRecipeId != nil:
			projected, ok := projectedCostPerGram[*line.BaseRecipeId]
			if !ok {
				continue
			}
			delta = delta.Add(computeLineCost(line.Amount, projected).Sub(line.ExtendedCost))
		}
	}
	if delta.IsZero() {
		return nil
	}

	impact := &RecipeImpact{
		RecipeId:     recipe.ID,
		RecipeName:   recipe.Name,
		RecipeType:   recipe.Type,
		CostDelta:    delta,
		OldTotalCost: recipe.TotalCost,
		NewTotalCost: recipe.TotalCost.Add(delta).Round(4),
		OldCogsPct:   recipe.CogsPct,
	}
	if recipe.Type == models.RecipeTypeFinal && recipe.SellingPrice.IsPositive() {
		impact.NewCogsPct = impact.NewTotalCost.Mul(hundred).DivRound(recipe.SellingPrice, 2)
	}

	if recipe.Type == models.RecipeTypeBase && recipe.NetWeight.IsPositive() {
		projectedCostPerGram[recipe.ID] = impact.NewTotalCost.DivRound(recipe.NetWeight, 6)
	}
	return impact
}
