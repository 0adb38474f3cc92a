package models

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// RecipeIngredient is one cost line on a recipe version. Exactly one of
// ItemId and BaseRecipeId is set, matching IngredientType. UnitCost and
// ExtendedCost are recomputed by recalculation; they are stored, never
// user-supplied.
type RecipeIngredient struct {
	ID             int             `gorm:"primary_key" json:"id"`
	BusinessId     string          `gorm:"index;not null" json:"business_id"`
	RecipeId       int             `gorm:"index;not null" json:"recipe_id"`
	IngredientType IngredientType  `gorm:"type:enum('R','B');default:'R'" json:"ingredient_type"`
	ItemId         *int            `gorm:"index" json:"item_id"`
	Item           *InventoryItem  `gorm:"foreignKey:ItemId" json:"item,omitempty"`
	BaseRecipeId   *int            `gorm:"index" json:"base_recipe_id"`
	Amount         decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`
	UnitCost       decimal.Decimal `gorm:"type:decimal(20,6);not null;default:0" json:"unit_cost"`
	ExtendedCost   decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"extended_cost"`
	SortOrder      int             `gorm:"not null;default:0" json:"sort_order"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewRecipeIngredient struct {
	IngredientType IngredientType  `json:"ingredient_type" binding:"required"`
	ItemId         *int            `json:"item_id"`
	BaseRecipeId   *int            `json:"base_recipe_id"`
	Amount         decimal.Decimal `json:"amount" binding:"required"`
	SortOrder      int             `json:"sort_order"`
}

func (input *NewRecipeIngredient) Validate() error {
	if !input.IngredientType.IsValid() {
		return ErrInvalidIngredientType
	}
	if !input.Amount.IsPositive() {
		return errors.New("amount must be positive")
	}
	switch input.IngredientType {
	case IngredientTypeRaw:
		if input.ItemId == nil || input.BaseRecipeId != nil {
			return errors.New("raw material ingredient requires item_id and no base_recipe_id")
		}
	case IngredientTypeBase:
		if input.BaseRecipeId == nil || input.ItemId != nil {
			return errors.New("base recipe ingredient requires base_recipe_id and no item_id")
		}
	}
	return nil
}

// ListIngredients returns a recipe's lines in sort order.
func ListIngredients(ctx context.Context, tx *gorm.DB, businessId string, recipeId int) ([]*RecipeIngredient, error) {
	var lines []*RecipeIngredient
	err := tx.WithContext(ctx).
		Where("business_id = ? AND recipe_id = ?", businessId, recipeId).
		Order("sort_order ASC, id ASC").
		Find(&lines).Error
	if err != nil {
		return nil, err
	}
	return lines, nil
}

// ConsumersOf returns the ids of current, non-deleted recipes that use any of
// the given recipes as a base ingredient. One hop only; the cascade walks it
// to a fixpoint.
func ConsumersOf(ctx context.Context, tx *gorm.DB, businessId string, baseRecipeIds []int) ([]int, error) {
	if len(baseRecipeIds) == 0 {
		return nil, nil
	}
	var ids []int
	err := tx.WithContext(ctx).Model(&RecipeIngredient{}).
		Distinct("recipe_ingredients.recipe_id").
		Joins("JOIN recipes ON recipes.id = recipe_ingredients.recipe_id").
		Where("recipe_ingredients.business_id = ?", businessId).
		Where("recipe_ingredients.base_recipe_id IN ?", baseRecipeIds).
		Where("recipes.is_current = 1 AND recipes.is_deleted = 0").
		Order("recipe_ingredients.recipe_id ASC").
		Pluck("recipe_ingredients.recipe_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// RecipesUsingItem returns the ids of current, non-deleted recipes with a raw
// material line on the given item.
func RecipesUsingItem(ctx context.Context, tx *gorm.DB, businessId string, itemId int) ([]int, error) {
	var ids []int
	err := tx.WithContext(ctx).Model(&RecipeIngredient{}).
		Distinct("recipe_ingredients.recipe_id").
		Joins("JOIN recipes ON recipes.id = recipe_ingredients.recipe_id").
		Where("recipe_ingredients.business_id = ?", businessId).
		Where("recipe_ingredients.item_id = ?", itemId).
		Where("recipes.is_current = 1 AND recipes.is_deleted = 0").
		Order("recipe_ingredients.recipe_id ASC").
		Pluck("recipe_ingredients.recipe_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// BaseRecipeIdsOf returns the distinct base recipe ids referenced by the
// given recipe's lines.
func BaseRecipeIdsOf(ctx context.Context, tx *gorm.DB, businessId string, recipeId int) ([]int, error) {
	var ids []int
	err := tx.WithContext(ctx).Model(&RecipeIngredient{}).
		Where("business_id = ? AND recipe_id = ? AND base_recipe_id IS NOT NULL", businessId, recipeId).
		Distinct("base_recipe_id").
		Pluck("base_recipe_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}
