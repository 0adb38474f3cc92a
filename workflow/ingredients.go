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

var ErrIngredientCycle = errors.New("ingredient would create a recipe cycle")

// detectCycle reports whether adding baseRecipeId as an ingredient of
// recipeId closes a loop in the dependency graph. Walks base-recipe edges
// from the candidate downward; the edge is rejected if the walk reaches the
// owning recipe.
func detectCycle(recipeId int, baseRecipeId int, edgesOf func(id int) ([]int, error)) (bool, error) {
	if baseRecipeId == recipeId {
		return true, nil
	}
	visited := map[int]bool{baseRecipeId: true}
	stack := []int{baseRecipeId}
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		edges, err := edgesOf(current)
		if err != nil {
			return false, err
		}
		for _, next := range edges {
			if next == recipeId {
				return true, nil
			}
			if !visited[next] {
				visited[next] = true
				stack = append(stack, next)
			}
		}
	}
	return false, nil
}

// AddIngredient appends a line to a recipe and recalculates it in the same
// transaction. A base reference must point at a current, non-deleted base
// recipe and must not close a dependency cycle.
func AddIngredient(ctx context.Context, recipeId int, input *models.NewRecipeIngredient) (*models.Recipe, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if err := input.Validate(); err != nil {
		return nil, err
	}

	if err := utils.BusinessLock(ctx, businessId, "costing", "workflow", "AddIngredient"); err != nil {
		return nil, err
	}

	var recipe *models.Recipe
	db := config.GetDB()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := AcquireCostingLock(tx, businessId); err != nil {
			return err
		}
		defer ReleaseCostingLock(tx, businessId)

		if _, err := models.FetchRecipeForUpdate(ctx, tx, businessId, recipeId); err != nil {
			return err
		}
		if err := validateIngredientRef(ctx, tx, businessId, recipeId, input); err != nil {
			return err
		}

		line := models.RecipeIngredient{
			BusinessId:     businessId,
			RecipeId:       recipeId,
			IngredientType: input.IngredientType,
			ItemId:         input.ItemId,
			BaseRecipeId:   input.BaseRecipeId,
			Amount:         input.Amount.Round(4),
			SortOrder:      input.SortOrder,
		}
		if err := tx.Create(&line).Error; err != nil {
			return err
		}
		if err := recordIngredientMutation(ctx, tx, businessId, &line, nil, models.AuditActionCreate, "Ingredient added."); err != nil {
			return err
		}

		var err error
		recipe, err = RecalculateRecipeCost(ctx, tx, businessId, recipeId)
		return err
	})
	if err != nil {
		return nil, err
	}
	return recipe, nil
}

// UpdateIngredientAmount changes a line's amount and recalculates its recipe.
func UpdateIngredientAmount(ctx context.Context, ingredientId int, amount decimal.Decimal) (*models.Recipe, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if !amount.IsPositive() {
		return nil, errors.New("amount must be positive")
	}

	if err := utils.BusinessLock(ctx, businessId, "costing", "workflow", "UpdateIngredientAmount"); err != nil {
		return nil, err
	}

	var recipe *models.Recipe
	db := config.GetDB()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := AcquireCostingLock(tx, businessId); err != nil {
			return err
		}
		defer ReleaseCostingLock(tx, businessId)

		line, err := fetchIngredient(ctx, tx, businessId, ingredientId)
		if err != nil {
			return err
		}
		old := *line

		if err := tx.Model(line).Updates(map[string]interface{}{
			"Amount": amount.Round(4),
		}).Error; err != nil {
			return err
		}
		if err := recordIngredientMutation(ctx, tx, businessId, line, &old, models.AuditActionUpdate, "Ingredient amount updated."); err != nil {
			return err
		}

		recipe, err = RecalculateRecipeCost(ctx, tx, businessId, line.RecipeId)
		return err
	})
	if err != nil {
		return nil, err
	}
	return recipe, nil
}

// RemoveIngredient deletes a line and recalculates its recipe.
func RemoveIngredient(ctx context.Context, ingredientId int) (*models.Recipe, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := utils.BusinessLock(ctx, businessId, "costing", "workflow", "RemoveIngredient"); err != nil {
		return nil, err
	}

	var recipe *models.Recipe
	db := config.GetDB()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := AcquireCostingLock(tx, businessId); err != nil {
			return err
		}
		defer ReleaseCostingLock(tx, businessId)

		line, err := fetchIngredient(ctx, tx, businessId, ingredientId)
		if err != nil {
			return err
		}

		if err := tx.Delete(line).Error; err != nil {
			return err
		}
		if err := recordIngredientMutation(ctx, tx, businessId, nil, line, models.AuditActionDelete, "Ingredient removed."); err != nil {
			return err
		}

		recipe, err = RecalculateRecipeCost(ctx, tx, businessId, line.RecipeId)
		return err
	})
	if err != nil {
		return nil, err
	}
	return recipe, nil
}

func fetchIngredient(ctx context.Context, tx *gorm.DB, businessId string, ingredientId int) (*models.RecipeIngredient, error) {
	var line models.RecipeIngredient
	err := tx.WithContext(ctx).
		First(&line, "business_id = ? AND id = ?", businessId, ingredientId).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrorRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &line, nil
}

func validateIngredientRef(ctx context.Context, tx *gorm.DB, businessId string, recipeId int, input *models.NewRecipeIngredient) error {
	if input.ItemId != nil {
		var count int64
		err := tx.WithContext(ctx).Model(&models.InventoryItem{}).
			Where("business_id = ? AND id = ? AND is_deleted = 0", businessId, *input.ItemId).
			Count(&count).Error
		if err != nil {
			return err
		}
		if count == 0 {
			return utils.ErrorRecordNotFound
		}
		return nil
	}

	var base models.Recipe
	err := tx.WithContext(ctx).Select("id", "type").
		First(&base, "business_id = ? AND id = ? AND is_current = 1 AND is_deleted = 0", businessId, *input.BaseRecipeId).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return utils.ErrorRecordNotFound
	}
	if err != nil {
		return err
	}
	if base.Type != models.RecipeTypeBase {
		return errors.New("referenced recipe must be a base recipe")
	}

	cyclic, err := detectCycle(recipeId, *input.BaseRecipeId, func(id int) ([]int, error) {
		return models.BaseRecipeIdsOf(ctx, tx, businessId, id)
	})
	if err != nil {
		return err
	}
	if cyclic {
		return ErrIngredientCycle
	}
	return nil
}

func recordIngredientMutation(ctx context.Context, tx *gorm.DB, businessId string, line *models.RecipeIngredient, old *models.RecipeIngredient, action models.AuditAction, description string) error {
	refId := 0
	if line != nil {
		refId = line.ID
	} else if old != nil {
		refId = old.ID
	}
	actionName := map[models.AuditAction]string{
		models.AuditActionCreate: "*CREATE*",
		models.AuditActionUpdate: "*UPDATE*",
		models.AuditActionDelete: "*DELETE*",
	}[action]
	if err := models.CreateHistory(tx, actionName, refId, "recipe_ingredients", old, line, description); err != nil {
		return err
	}
	return models.PublishToAudit(ctx, tx, businessId, refId, models.AuditReferenceTypeIngredient, line, old, action)
}
