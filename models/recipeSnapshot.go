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

// RecipeSnapshot is an immutable capture of a recipe's persisted cost fields
// at a point in time. Snapshots are only ever inserted; no update or delete
// path exists.
type RecipeSnapshot struct {
	ID          int                   `gorm:"primary_key" json:"id"`
	BusinessId  string                `gorm:"index;not null" json:"business_id"`
	RecipeId    int                   `gorm:"index;not null" json:"recipe_id"`
	RecipeName  string                `gorm:"size:100;not null" json:"recipe_name"`
	Version     int                   `gorm:"not null" json:"version"`
	RawWeight   decimal.Decimal       `gorm:"type:decimal(20,4);not null" json:"raw_weight"`
	NetWeight   decimal.Decimal       `gorm:"type:decimal(20,4);not null" json:"net_weight"`
	TotalCost   decimal.Decimal       `gorm:"type:decimal(20,4);not null" json:"total_cost"`
	CostPerGram decimal.Decimal       `gorm:"type:decimal(20,6);not null" json:"cost_per_gram"`
	CogsPct     decimal.Decimal       `gorm:"type:decimal(5,2);not null" json:"cogs_pct"`
	Notes       string                `gorm:"size:255" json:"notes"`
	Items       []*RecipeSnapshotItem `gorm:"foreignKey:SnapshotId" json:"items,omitempty"`
	CapturedAt  time.Time             `gorm:"autoCreateTime;index" json:"captured_at"`
}

// RecipeSnapshotItem is a value copy of one ingredient line. Names are
// denormalized so the snapshot stays readable after the referenced item or
// base recipe changes or disappears.
type RecipeSnapshotItem struct {
	ID             int             `gorm:"primary_key" json:"id"`
	BusinessId     string          `gorm:"index;not null" json:"business_id"`
	SnapshotId     int             `gorm:"index;not null" json:"snapshot_id"`
	IngredientType IngredientType  `gorm:"type:enum('R','B');not null" json:"ingredient_type"`
	ItemId         *int            `json:"item_id"`
	BaseRecipeId   *int            `json:"base_recipe_id"`
	IngredientName string          `gorm:"size:100;not null" json:"ingredient_name"`
	Amount         decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`
	UnitCost       decimal.Decimal `gorm:"type:decimal(20,6);not null" json:"unit_cost"`
	ExtendedCost   decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"extended_cost"`
	SortOrder      int             `gorm:"not null;default:0" json:"sort_order"`
}

func (s RecipeSnapshot) GetId() int {
	return s.ID
}

func (s RecipeSnapshot) GetCursor() string {
	return s.CapturedAt.String()
}

type RecipeSnapshotsEdge Edge[RecipeSnapshot]

type RecipeSnapshotsConnection struct {
	PageInfo *PageInfo              `json:"pageInfo"`
	Edges    []*RecipeSnapshotsEdge `json:"edges"`
}

// CreateRecipeSnapshot captures the recipe's currently persisted cost fields
// inside the caller's transaction. It reads what is stored; it never triggers
// recalculation.
func CreateRecipeSnapshot(ctx context.Context, tx *gorm.DB, businessId string, recipeId int, notes string) (*RecipeSnapshot, error) {
	recipe, err := FetchRecipeForUpdate(ctx, tx, businessId, recipeId)
	if err != nil {
		return nil, err
	}

	snapshot := RecipeSnapshot{
		BusinessId:  businessId,
		RecipeId:    recipe.ID,
		RecipeName:  recipe.Name,
		Version:     recipe.Version,
		RawWeight:   recipe.RawWeight,
		NetWeight:   recipe.NetWeight,
		TotalCost:   recipe.TotalCost,
		CostPerGram: recipe.CostPerGram,
		CogsPct:     recipe.CogsPct,
		Notes:       notes,
	}
	for _, line := range recipe.Ingredients {
		snapshot.Items = append(snapshot.Items, &RecipeSnapshotItem{
			BusinessId:     businessId,
			IngredientType: line.IngredientType,
			ItemId:         line.ItemId,
			BaseRecipeId:   line.BaseRecipeId,
			IngredientName: ingredientDisplayName(ctx, tx, businessId, line),
			Amount:         line.Amount,
			UnitCost:       line.UnitCost,
			ExtendedCost:   line.ExtendedCost,
			SortOrder:      line.SortOrder,
		})
	}

	if err := tx.Create(&snapshot).Error; err != nil {
		return nil, err
	}
	if err := CreateHistory(tx, "*CREATE*", snapshot.ID, "recipe_snapshots", nil, &snapshot, "Snapshot of recipe "+recipe.Name+" captured."); err != nil {
		return nil, err
	}
	if err := PublishToAudit(ctx, tx, businessId, snapshot.ID, AuditReferenceTypeSnapshot, &snapshot, nil, AuditActionCreate); err != nil {
		return nil, err
	}
	return &snapshot, nil
}

func ingredientDisplayName(ctx context.Context, tx *gorm.DB, businessId string, line *RecipeIngredient) string {
	if line.ItemId != nil {
		var item InventoryItem
		if err := tx.WithContext(ctx).Select("name").
			First(&item, "business_id = ? AND id = ?", businessId, *line.ItemId).Error; err == nil {
			return item.Name
		}
	}
	if line.BaseRecipeId != nil {
		var base Recipe
		if err := tx.WithContext(ctx).Select("name").
			First(&base, "business_id = ? AND id = ?", businessId, *line.BaseRecipeId).Error; err == nil {
			return base.Name
		}
	}
	return ""
}

func GetRecipeSnapshot(ctx context.Context, id int) (*RecipeSnapshot, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	db := config.GetDB()
	var snapshot RecipeSnapshot
	err := db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("sort_order ASC, id ASC")
		}).
		First(&snapshot, "business_id = ? AND id = ?", businessId, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrorRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &snapshot, nil
}

// ListRecipeSnapshots returns a recipe's snapshots newest-first, cursor
// paginated on (captured_at, id).
func ListRecipeSnapshots(ctx context.Context, recipeId int, limit *int, after *string) (*RecipeSnapshotsConnection, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	pageSize := config.SearchLimit
	if limit != nil && *limit > 0 {
		pageSize = *limit
	}

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).
		Preload("Items").
		Where("business_id = ? AND recipe_id = ?", businessId, recipeId)

	edges, pageInfo, err := FetchPageCompositeCursor[RecipeSnapshot](dbCtx, pageSize, after, "captured_at", "<")
	if err != nil {
		return nil, err
	}
	var connection RecipeSnapshotsConnection
	connection.PageInfo = pageInfo
	for _, edge := range edges {
		snapshotEdge := RecipeSnapshotsEdge(edge)
		connection.Edges = append(connection.Edges, &snapshotEdge)
	}
	return &connection, nil
}
