package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/recipes_backend/config"
	"bitbucket.org/mmdatafocus/recipes_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Recipe is one version in a lineage. At most one version per lineage is
// current; frozen versions keep their computed costs untouched forever.
// LineageRootId is 0 on the first version of a lineage and points at that
// first version's id on every later one.
type Recipe struct {
	ID            int                 `gorm:"primary_key" json:"id"`
	BusinessId    string              `gorm:"index;not null" json:"business_id"`
	Name          string              `gorm:"index;size:100;not null" json:"name" binding:"required"`
	Type          RecipeType          `gorm:"type:enum('B','F');default:'F'" json:"type"`
	Version       int                 `gorm:"not null;default:1" json:"version"`
	LineageRootId int                 `gorm:"index;not null;default:0" json:"lineage_root_id"`
	IsCurrent     *bool               `gorm:"not null;default:true;index" json:"is_current"`
	YieldLossPct  decimal.Decimal     `gorm:"type:decimal(5,2);not null;default:0" json:"yield_loss_pct"`
	RawWeight     decimal.Decimal     `gorm:"type:decimal(20,4);not null;default:0" json:"raw_weight"`
	NetWeight     decimal.Decimal     `gorm:"type:decimal(20,4);not null;default:0" json:"net_weight"`
	TotalCost     decimal.Decimal     `gorm:"type:decimal(20,4);not null;default:0" json:"total_cost"`
	CostPerGram   decimal.Decimal     `gorm:"type:decimal(20,6);not null;default:0" json:"cost_per_gram"`
	SellingPrice  decimal.Decimal     `gorm:"type:decimal(20,4);not null;default:0" json:"selling_price"`
	VatPct        decimal.Decimal     `gorm:"type:decimal(5,2);not null;default:0" json:"vat_pct"`
	DiscountPct   decimal.Decimal     `gorm:"type:decimal(5,2);not null;default:0" json:"discount_pct"`
	CogsPct       decimal.Decimal     `gorm:"type:decimal(5,2);not null;default:0" json:"cogs_pct"`
	Notes         string              `gorm:"size:255" json:"notes"`
	IsDeleted     *bool               `gorm:"not null;default:false;index" json:"is_deleted"`
	DeletedBy     int                 `json:"deleted_by"`
	DeletedAt     *time.Time          `json:"deleted_at"`
	Ingredients   []*RecipeIngredient `gorm:"foreignKey:RecipeId" json:"ingredients,omitempty"`
	CreatedAt     time.Time           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time           `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewRecipe struct {
	Name         string          `json:"name" binding:"required"`
	Type         RecipeType      `json:"type" binding:"required"`
	YieldLossPct decimal.Decimal `json:"yield_loss_pct"`
	SellingPrice decimal.Decimal `json:"selling_price"`
	VatPct       decimal.Decimal `json:"vat_pct"`
	DiscountPct  decimal.Decimal `json:"discount_pct"`
	Notes        string          `json:"notes"`
}

var hundred = decimal.NewFromInt(100)

// validate input for both create & settings update. (id = 0 for create)
func (input *NewRecipe) Validate(ctx context.Context, businessId string, id int) error {
	if !input.Type.IsValid() {
		return ErrInvalidRecipeType
	}
	if input.YieldLossPct.IsNegative() || input.YieldLossPct.GreaterThanOrEqual(hundred) {
		return errors.New("yield loss percent must be at least 0 and below 100")
	}
	if input.SellingPrice.IsNegative() {
		return errors.New("selling price must not be negative")
	}
	if input.VatPct.IsNegative() || input.VatPct.GreaterThan(hundred) {
		return errors.New("vat percent must be between 0 and 100")
	}
	if input.DiscountPct.IsNegative() || input.DiscountPct.GreaterThan(hundred) {
		return errors.New("discount percent must be between 0 and 100")
	}
	return validateRecipeName(ctx, businessId, input.Name, id)
}

// name must be unique among current, non-deleted recipes; frozen versions of
// the same lineage keep the name without conflicting
func validateRecipeName(ctx context.Context, businessId string, name string, excludeId int) error {
	db := config.GetDB()
	var count int64
	query := db.WithContext(ctx).Model(&Recipe{}).
		Where("business_id = ? AND name = ? AND is_current = 1 AND is_deleted = 0", businessId, name)
	if excludeId > 0 {
		var self Recipe
		if err := db.WithContext(ctx).Select("id", "lineage_root_id").
			First(&self, "business_id = ? AND id = ?", businessId, excludeId).Error; err != nil {
			return err
		}
		rootId := self.LineageRootId
		if rootId == 0 {
			rootId = self.ID
		}
		query = query.Where("id != ? AND lineage_root_id != ?", rootId, rootId)
	}
	if err := query.Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return errors.New("duplicate name exists")
	}
	return nil
}

// CreateRecipe starts a new lineage at version 1 with no ingredients. Costs
// stay zero until ingredients are added.
func CreateRecipe(ctx context.Context, input *NewRecipe) (*Recipe, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if err := input.Validate(ctx, businessId, 0); err != nil {
		return nil, err
	}

	recipe := Recipe{
		BusinessId:   businessId,
		Name:         input.Name,
		Type:         input.Type,
		Version:      1,
		IsCurrent:    utils.NewTrue(),
		YieldLossPct: input.YieldLossPct.Round(2),
		SellingPrice: input.SellingPrice.Round(4),
		VatPct:       input.VatPct.Round(2),
		DiscountPct:  input.DiscountPct.Round(2),
		Notes:        input.Notes,
		IsDeleted:    utils.NewFalse(),
	}

	db := config.GetDB()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&recipe).Error; err != nil {
			return err
		}
		if err := CreateHistory(tx, "*CREATE*", recipe.ID, "recipes", nil, &recipe, "Recipe "+recipe.Name+" created."); err != nil {
			return err
		}
		return PublishToAudit(ctx, tx, businessId, recipe.ID, AuditReferenceTypeRecipe, &recipe, nil, AuditActionCreate)
	})
	if err != nil {
		return nil, err
	}
	return &recipe, nil
}

func GetRecipe(ctx context.Context, id int) (*Recipe, error) {
	recipe, err := GetResource[Recipe](ctx, id)
	if err != nil {
		return nil, err
	}
	if utils.DereferencePtr((*recipe).IsDeleted) {
		return nil, utils.ErrorRecordNotFound
	}
	return recipe, nil
}

// GetRecipeWithIngredients bypasses the cache; ingredient rows change under
// recalculation and must be read fresh.
func GetRecipeWithIngredients(ctx context.Context, id int) (*Recipe, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	recipe, err := FetchRecipeForUpdate(ctx, config.GetDB(), businessId, id)
	if err != nil {
		return nil, err
	}
	return recipe, nil
}

// FetchRecipeForUpdate loads a live recipe and its ingredients inside the
// caller's transaction, ingredients in sort order.
func FetchRecipeForUpdate(ctx context.Context, tx *gorm.DB, businessId string, id int) (*Recipe, error) {
	var recipe Recipe
	err := tx.WithContext(ctx).
		Preload("Ingredients", func(db *gorm.DB) *gorm.DB {
			return db.Order("sort_order ASC, id ASC")
		}).
		First(&recipe, "business_id = ? AND id = ? AND is_deleted = 0", businessId, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrorRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &recipe, nil
}

// ListRecipes returns current, non-deleted recipes, optionally filtered by
// type or name substring.
func ListRecipes(ctx context.Context, recipeType *RecipeType, name *string) ([]*Recipe, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	db := config.GetDB()
	dbCtx := db.WithContext(ctx).
		Where("business_id = ? AND is_current = 1 AND is_deleted = 0", businessId)
	if recipeType != nil {
		dbCtx = dbCtx.Where("type = ?", *recipeType)
	}
	if name != nil && *name != "" {
		dbCtx = dbCtx.Where("name LIKE ?", "%"+*name+"%")
	}
	var recipes []*Recipe
	if err := dbCtx.Order("name ASC").Find(&recipes).Error; err != nil {
		return nil, err
	}
	return recipes, nil
}

// ListRecipeVersions returns every version in a recipe's lineage, newest
// version first. Accepts any version's id.
func ListRecipeVersions(ctx context.Context, id int) ([]*Recipe, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	db := config.GetDB()
	var recipe Recipe
	err := db.WithContext(ctx).Select("id", "lineage_root_id").
		First(&recipe, "business_id = ? AND id = ?", businessId, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrorRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	rootId := recipe.LineageRootId
	if rootId == 0 {
		rootId = recipe.ID
	}

	var versions []*Recipe
	err = db.WithContext(ctx).
		Where("business_id = ?", businessId).
		Where("id = ? OR lineage_root_id = ?", rootId, rootId).
		Order("version DESC").
		Find(&versions).Error
	if err != nil {
		return nil, err
	}
	return versions, nil
}

// SoftDeleteRecipe marks a recipe deleted. A base recipe still used as an
// ingredient of another current recipe cannot be deleted; its cost_per_gram
// feeds consumer costs.
func SoftDeleteRecipe(ctx context.Context, id int) (*Recipe, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	userId, _ := utils.GetUserIdFromContext(ctx)

	recipe, err := FetchRecipeForUpdate(ctx, config.GetDB(), businessId, id)
	if err != nil {
		return nil, err
	}

	if err := checkRecipeNotReferenced(ctx, businessId, id); err != nil {
		return nil, err
	}
	old := *recipe

	now := time.Now().UTC()
	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&recipe).Updates(map[string]interface{}{
			"IsDeleted": true,
			"DeletedBy": userId,
			"DeletedAt": &now,
		}).Error; err != nil {
			return err
		}
		if err := CreateHistory(tx, "*DELETE*", recipe.ID, "recipes", &old, recipe, "Recipe "+recipe.Name+" deleted."); err != nil {
			return err
		}
		return PublishToAudit(ctx, tx, businessId, recipe.ID, AuditReferenceTypeRecipe, nil, &old, AuditActionDelete)
	})
	if err != nil {
		return nil, err
	}
	if err := utils.RemoveRedisItem[Recipe](id); err != nil {
		return nil, err
	}
	return recipe, nil
}

// checkRecipeNotReferenced blocks deletion while another current, non-deleted
// recipe uses this recipe as a base ingredient.
func checkRecipeNotReferenced(ctx context.Context, businessId string, recipeId int) error {
	db := config.GetDB()
	var count int64
	err := db.WithContext(ctx).Model(&RecipeIngredient{}).
		Joins("JOIN recipes ON recipes.id = recipe_ingredients.recipe_id").
		Where("recipe_ingredients.business_id = ?", businessId).
		Where("recipe_ingredients.base_recipe_id = ?", recipeId).
		Where("recipes.is_current = 1 AND recipes.is_deleted = 0").
		Count(&count).Error
	if err != nil {
		return err
	}
	if count > 0 {
		return utils.ErrorReferentialConflict
	}
	return nil
}
