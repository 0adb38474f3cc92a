package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/recipes_backend/config"
	"bitbucket.org/mmdatafocus/recipes_backend/utils"
	"gorm.io/gorm"
)

// InventoryItem is a priced raw material. The item row never carries "the"
// price; pricing lives in its append-only PriceHistoryEntry ledger.
type InventoryItem struct {
	ID         int        `gorm:"primary_key" json:"id"`
	BusinessId string     `gorm:"index;not null" json:"business_id"`
	Name       string     `gorm:"index;size:100;not null" json:"name" binding:"required"`
	UnitType   UnitType   `gorm:"type:enum('W','P');default:'W'" json:"unit_type"`
	Category   string     `gorm:"size:100" json:"category"`
	IsDeleted  *bool      `gorm:"not null;default:false;index" json:"is_deleted"`
	DeletedBy  int        `json:"deleted_by"`
	DeletedAt  *time.Time `json:"deleted_at"`
	CreatedAt  time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewInventoryItem struct {
	Name     string   `json:"name" binding:"required"`
	UnitType UnitType `json:"unit_type" binding:"required"`
	Category string   `json:"category"`
}

func (input *NewInventoryItem) validate(ctx context.Context, businessId string, id int) error {
	if !input.UnitType.IsValid() {
		return ErrInvalidUnitType
	}
	if err := utils.ValidateUnique[InventoryItem](ctx, businessId, "name", input.Name, id); err != nil {
		return err
	}
	return nil
}

func CreateInventoryItem(ctx context.Context, input *NewInventoryItem) (*InventoryItem, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if err := input.validate(ctx, businessId, 0); err != nil {
		return nil, err
	}

	item := InventoryItem{
		BusinessId: businessId,
		Name:       input.Name,
		UnitType:   input.UnitType,
		Category:   input.Category,
		IsDeleted:  utils.NewFalse(),
	}

	db := config.GetDB()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&item).Error; err != nil {
			return err
		}
		if err := CreateHistory(tx, "*CREATE*", item.ID, "inventory_items", nil, &item, "Inventory item "+item.Name+" created."); err != nil {
			return err
		}
		return PublishToAudit(ctx, tx, businessId, item.ID, AuditReferenceTypeInventoryItem, &item, nil, AuditActionCreate)
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func UpdateInventoryItem(ctx context.Context, id int, input *NewInventoryItem) (*InventoryItem, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if err := input.validate(ctx, businessId, id); err != nil {
		return nil, err
	}

	item, err := fetchActiveItem(ctx, businessId, id)
	if err != nil {
		return nil, err
	}
	old := *item

	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&item).Updates(map[string]interface{}{
			"Name":     input.Name,
			"UnitType": input.UnitType,
			"Category": input.Category,
		}).Error; err != nil {
			return err
		}
		if err := CreateHistory(tx, "*UPDATE*", item.ID, "inventory_items", &old, item, "Inventory item "+item.Name+" updated."); err != nil {
			return err
		}
		return PublishToAudit(ctx, tx, businessId, item.ID, AuditReferenceTypeInventoryItem, item, &old, AuditActionUpdate)
	})
	if err != nil {
		return nil, err
	}
	if err := utils.RemoveRedisItem[InventoryItem](id); err != nil {
		return nil, err
	}
	return item, nil
}

// SoftDeleteInventoryItem marks the item deleted. The same referential check
// as hard deletion applies: an item still used by an ingredient on a current
// recipe would silently orphan costs, so both paths are blocked alike.
func SoftDeleteInventoryItem(ctx context.Context, id int) (*InventoryItem, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	userId, _ := utils.GetUserIdFromContext(ctx)

	item, err := fetchActiveItem(ctx, businessId, id)
	if err != nil {
		return nil, err
	}

	if err := checkItemNotReferenced(ctx, businessId, id); err != nil {
		return nil, err
	}
	old := *item

	now := time.Now().UTC()
	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&item).Updates(map[string]interface{}{
			"IsDeleted": true,
			"DeletedBy": userId,
			"DeletedAt": &now,
		}).Error; err != nil {
			return err
		}
		if err := CreateHistory(tx, "*DELETE*", item.ID, "inventory_items", &old, item, "Inventory item "+item.Name+" deleted."); err != nil {
			return err
		}
		return PublishToAudit(ctx, tx, businessId, item.ID, AuditReferenceTypeInventoryItem, nil, &old, AuditActionDelete)
	})
	if err != nil {
		return nil, err
	}
	if err := utils.RemoveRedisItem[InventoryItem](id); err != nil {
		return nil, err
	}
	return item, nil
}

// HardDeleteInventoryItem removes the item row and its price ledger. Blocked
// while any ingredient still references the item.
func HardDeleteInventoryItem(ctx context.Context, id int) (*InventoryItem, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	item, err := utils.FetchModel[InventoryItem](ctx, businessId, id)
	if err != nil {
		return nil, err
	}

	if err := checkItemNotReferenced(ctx, businessId, id); err != nil {
		return nil, err
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("item_id = ?", id).Delete(&PriceHistoryEntry{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(&item).Error; err != nil {
			return err
		}
		if err := CreateHistory(tx, "*PURGE*", item.ID, "inventory_items", item, nil, "Inventory item "+item.Name+" purged."); err != nil {
			return err
		}
		return PublishToAudit(ctx, tx, businessId, item.ID, AuditReferenceTypeInventoryItem, nil, item, AuditActionDelete)
	})
	if err != nil {
		return nil, err
	}
	if err := utils.RemoveRedisItem[InventoryItem](id); err != nil {
		return nil, err
	}
	return item, nil
}

func GetInventoryItem(ctx context.Context, id int) (*InventoryItem, error) {
	item, err := GetResource[InventoryItem](ctx, id)
	if err != nil {
		return nil, err
	}
	if utils.DereferencePtr((*item).IsDeleted) {
		return nil, utils.ErrorRecordNotFound
	}
	return item, nil
}

// ListInventoryItems excludes soft-deleted rows.
func ListInventoryItems(ctx context.Context) ([]*InventoryItem, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	db := config.GetDB()
	var items []*InventoryItem
	err := db.WithContext(ctx).
		Where("business_id = ? AND is_deleted = 0", businessId).
		Order("name ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func fetchActiveItem(ctx context.Context, businessId string, id int) (*InventoryItem, error) {
	item, err := utils.FetchModel[InventoryItem](ctx, businessId, id)
	if err != nil {
		return nil, err
	}
	if utils.DereferencePtr(item.IsDeleted) {
		return nil, utils.ErrorRecordNotFound
	}
	return item, nil
}

// checkItemNotReferenced blocks deletion while an ingredient on a current,
// non-deleted recipe still points at the item.
func checkItemNotReferenced(ctx context.Context, businessId string, itemId int) error {
	db := config.GetDB()
	var count int64
	err := db.WithContext(ctx).Model(&RecipeIngredient{}).
		Joins("JOIN recipes ON recipes.id = recipe_ingredients.recipe_id").
		Where("recipe_ingredients.business_id = ?", businessId).
		Where("recipe_ingredients.item_id = ?", itemId).
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
