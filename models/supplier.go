package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/recipes_backend/config"
	"bitbucket.org/mmdatafocus/recipes_backend/utils"
	"gorm.io/gorm"
)

type Supplier struct {
	ID         int       `gorm:"primary_key" json:"id"`
	BusinessId string    `gorm:"uniqueIndex:uniq_supplier_name,priority:1;not null" json:"business_id"`
	Name       string    `gorm:"uniqueIndex:uniq_supplier_name,priority:2;size:100;not null" json:"name" binding:"required"`
	Phone      string    `gorm:"size:20" json:"phone"`
	Email      string    `gorm:"size:255" json:"email"`
	Address    string    `gorm:"type:text" json:"address"`
	IsActive   *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewSupplier struct {
	Name    string `json:"name" binding:"required"`
	Phone   string `json:"phone"`
	Email   string `json:"email"`
	Address string `json:"address"`
	// country code for phone validation, default MM
	Country string `json:"country"`
}

func (input *NewSupplier) validate(ctx context.Context, businessId string, id int) error {
	if err := utils.ValidateUnique[Supplier](ctx, businessId, "name", input.Name, id); err != nil {
		return err
	}
	if input.Phone != "" {
		country := input.Country
		if country == "" {
			country = "MM"
		}
		if err := utils.ValidatePhoneNumber(input.Phone, country); err != nil {
			return err
		}
	}
	return nil
}

func CreateSupplier(ctx context.Context, input *NewSupplier) (*Supplier, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if err := input.validate(ctx, businessId, 0); err != nil {
		return nil, err
	}

	supplier := Supplier{
		BusinessId: businessId,
		Name:       input.Name,
		Phone:      input.Phone,
		Email:      input.Email,
		Address:    input.Address,
		IsActive:   utils.NewTrue(),
	}

	db := config.GetDB()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&supplier).Error; err != nil {
			// Racing create past the pre-insert check lands on uniq_supplier_name.
			if isDuplicateKeyErr(err) {
				return errors.New("duplicate name")
			}
			return err
		}
		if err := CreateHistory(tx, "*CREATE*", supplier.ID, "suppliers", nil, &supplier, "Supplier "+supplier.Name+" created."); err != nil {
			return err
		}
		return PublishToAudit(ctx, tx, businessId, supplier.ID, AuditReferenceTypeSupplier, &supplier, nil, AuditActionCreate)
	})
	if err != nil {
		return nil, err
	}
	return &supplier, nil
}

func UpdateSupplier(ctx context.Context, id int, input *NewSupplier) (*Supplier, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if err := input.validate(ctx, businessId, id); err != nil {
		return nil, err
	}

	supplier, err := utils.FetchModel[Supplier](ctx, businessId, id)
	if err != nil {
		return nil, err
	}
	old := *supplier

	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&supplier).Updates(map[string]interface{}{
			"Name":    input.Name,
			"Phone":   input.Phone,
			"Email":   input.Email,
			"Address": input.Address,
		}).Error; err != nil {
			return err
		}
		if err := CreateHistory(tx, "*UPDATE*", supplier.ID, "suppliers", &old, supplier, "Supplier "+supplier.Name+" updated."); err != nil {
			return err
		}
		return PublishToAudit(ctx, tx, businessId, supplier.ID, AuditReferenceTypeSupplier, supplier, &old, AuditActionUpdate)
	})
	if err != nil {
		return nil, err
	}
	if err := utils.RemoveRedisItem[Supplier](id); err != nil {
		return nil, err
	}
	return supplier, nil
}

func DeleteSupplier(ctx context.Context, id int) (*Supplier, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	supplier, err := utils.FetchModel[Supplier](ctx, businessId, id)
	if err != nil {
		return nil, err
	}

	// price history rows are append-only and keep pointing at their supplier
	count, err := utils.ResourceCountWhere[PriceHistoryEntry](ctx, businessId, "supplier_id = ?", id)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, utils.ErrorReferentialConflict
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&supplier).Error; err != nil {
			return err
		}
		if err := CreateHistory(tx, "*DELETE*", supplier.ID, "suppliers", supplier, nil, "Supplier "+supplier.Name+" deleted."); err != nil {
			return err
		}
		return PublishToAudit(ctx, tx, businessId, supplier.ID, AuditReferenceTypeSupplier, nil, supplier, AuditActionDelete)
	})
	if err != nil {
		return nil, err
	}
	if err := utils.RemoveRedisItem[Supplier](id); err != nil {
		return nil, err
	}
	return supplier, nil
}

func GetSupplier(ctx context.Context, id int) (*Supplier, error) {
	return GetResource[Supplier](ctx, id)
}

func ListSuppliers(ctx context.Context) ([]*Supplier, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchAllModels[Supplier](ctx, businessId)
}
