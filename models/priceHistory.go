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

// PriceHistoryEntry is one observation in an item's append-only price ledger.
// Entries are never updated or removed; a correction is a new entry with the
// same effective date, which wins resolution by recency of insertion.
type PriceHistoryEntry struct {
	ID            int             `gorm:"primary_key" json:"id"`
	BusinessId    string          `gorm:"index;not null" json:"business_id"`
	ItemId        int             `gorm:"index:idx_price_resolution,priority:1;not null" json:"item_id"`
	Item          *InventoryItem  `gorm:"foreignKey:ItemId" json:"item,omitempty"`
	PurchasePrice decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"purchase_price"`
	PricePerUnit  decimal.Decimal `gorm:"type:decimal(20,6);not null" json:"price_per_unit"`
	EffectiveDate time.Time       `gorm:"type:date;index:idx_price_resolution,priority:2;not null" json:"effective_date"`
	SupplierId    *int            `gorm:"index" json:"supplier_id"`
	Supplier      *Supplier       `gorm:"foreignKey:SupplierId" json:"supplier,omitempty"`
	Notes         string          `gorm:"size:255" json:"notes"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

type NewPriceHistoryEntry struct {
	ItemId        int             `json:"item_id" binding:"required"`
	PurchasePrice decimal.Decimal `json:"purchase_price" binding:"required"`
	PricePerUnit  decimal.Decimal `json:"price_per_unit" binding:"required"`
	EffectiveDate time.Time       `json:"effective_date" binding:"required"`
	SupplierId    *int            `json:"supplier_id"`
	Notes         string          `json:"notes"`
}

func (input *NewPriceHistoryEntry) validate(ctx context.Context, businessId string) error {
	if input.PurchasePrice.IsNegative() || input.PricePerUnit.IsNegative() {
		return errors.New("price must not be negative")
	}
	if err := utils.ValidateResourceId[InventoryItem](ctx, businessId, input.ItemId); err != nil {
		return err
	}
	if input.SupplierId != nil {
		if err := utils.ValidateResourceId[Supplier](ctx, businessId, *input.SupplierId); err != nil {
			return err
		}
	}
	return nil
}

// InsertPriceEntry appends a ledger row inside the caller's transaction. The
// surrounding workflow owns the cascade that follows a price change, so the
// row and the recalculated recipes commit or roll back together.
func InsertPriceEntry(ctx context.Context, tx *gorm.DB, businessId string, input *NewPriceHistoryEntry) (*PriceHistoryEntry, error) {
	if err := input.validate(ctx, businessId); err != nil {
		return nil, err
	}

	entry := PriceHistoryEntry{
		BusinessId:    businessId,
		ItemId:        input.ItemId,
		PurchasePrice: input.PurchasePrice.Round(4),
		PricePerUnit:  input.PricePerUnit.Round(6),
		EffectiveDate: input.EffectiveDate,
		SupplierId:    input.SupplierId,
		Notes:         input.Notes,
	}
	if err := tx.Create(&entry).Error; err != nil {
		return nil, err
	}
	if err := CreateHistory(tx, "*CREATE*", entry.ID, "price_history_entries", nil, &entry, "Price recorded."); err != nil {
		return nil, err
	}
	if err := PublishToAudit(ctx, tx, businessId, entry.ID, AuditReferenceTypePriceHistory, &entry, nil, AuditActionCreate); err != nil {
		return nil, err
	}
	return &entry, nil
}

// CurrentPrice resolves an item's effective unit price: the entry with the
// latest effective date, ties broken by insertion recency. A nil result means
// the item has no price yet; callers decide what that costs.
func CurrentPrice(ctx context.Context, tx *gorm.DB, businessId string, itemId int) (*PriceHistoryEntry, error) {
	var entry PriceHistoryEntry
	err := tx.WithContext(ctx).
		Where("business_id = ? AND item_id = ?", businessId, itemId).
		Order("effective_date DESC, created_at DESC, id DESC").
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// CurrentPricesFor resolves effective unit prices for a set of items in one
// query, keyed by item id. Items without a ledger entry are absent.
func CurrentPricesFor(ctx context.Context, tx *gorm.DB, businessId string, itemIds []int) (map[int]decimal.Decimal, error) {
	prices := make(map[int]decimal.Decimal, len(itemIds))
	if len(itemIds) == 0 {
		return prices, nil
	}
	var entries []PriceHistoryEntry
	err := tx.WithContext(ctx).
		Where("business_id = ? AND item_id IN ?", businessId, utils.UniqueSlice(itemIds)).
		Order("effective_date DESC, created_at DESC, id DESC").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if _, seen := prices[e.ItemId]; !seen {
			prices[e.ItemId] = e.PricePerUnit
		}
	}
	return prices, nil
}

type PriceHistoryEdge Edge[PriceHistoryEntry]

type PriceHistoryConnection struct {
	PageInfo *PageInfo           `json:"pageInfo"`
	Edges    []*PriceHistoryEdge `json:"edges"`
}

func (e PriceHistoryEntry) GetId() int {
	return e.ID
}

func (e PriceHistoryEntry) GetCursor() string {
	return e.EffectiveDate.String()
}

// ListPriceHistory returns an item's ledger newest-first, cursor-paginated on
// (effective_date, id).
func ListPriceHistory(ctx context.Context, itemId int, limit *int, after *string) (*PriceHistoryConnection, error) {
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
		Where("business_id = ? AND item_id = ?", businessId, itemId)

	edges, pageInfo, err := FetchPageCompositeCursor[PriceHistoryEntry](dbCtx, pageSize, after, "effective_date", "<")
	if err != nil {
		return nil, err
	}
	var connection PriceHistoryConnection
	connection.PageInfo = pageInfo
	for _, edge := range edges {
		priceEdge := PriceHistoryEdge(edge)
		connection.Edges = append(connection.Edges, &priceEdge)
	}
	return &connection, nil
}
