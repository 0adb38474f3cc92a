package models

import "errors"

type UnitType string

const (
	UnitTypeWeight UnitType = "W"
	UnitTypePiece  UnitType = "P"
)

func (t UnitType) IsValid() bool {
	return t == UnitTypeWeight || t == UnitTypePiece
}

type RecipeType string

const (
	RecipeTypeBase  RecipeType = "B"
	RecipeTypeFinal RecipeType = "F"
)

func (t RecipeType) IsValid() bool {
	return t == RecipeTypeBase || t == RecipeTypeFinal
}

type IngredientType string

const (
	IngredientTypeRaw  IngredientType = "R"
	IngredientTypeBase IngredientType = "B"
)

func (t IngredientType) IsValid() bool {
	return t == IngredientTypeRaw || t == IngredientTypeBase
}

// AuditReferenceType tags outbox/audit rows with the mutated resource kind.
type AuditReferenceType string

const (
	AuditReferenceTypeInventoryItem AuditReferenceType = "II"
	AuditReferenceTypePriceHistory  AuditReferenceType = "PH"
	AuditReferenceTypeSupplier      AuditReferenceType = "SU"
	AuditReferenceTypeRecipe        AuditReferenceType = "RC"
	AuditReferenceTypeIngredient    AuditReferenceType = "RI"
	AuditReferenceTypeSnapshot      AuditReferenceType = "SS"
)

type AuditAction string

const (
	AuditActionCreate AuditAction = "C"
	AuditActionUpdate AuditAction = "U"
	AuditActionDelete AuditAction = "D"
)

const (
	OutboxPublishStatusPending    = "PENDING"
	OutboxPublishStatusProcessing = "PROCESSING"
	OutboxPublishStatusSent       = "SENT"
	OutboxPublishStatusFailed     = "FAILED"
	OutboxPublishStatusDead       = "DEAD"
)

var (
	ErrInvalidUnitType       = errors.New("invalid unit type")
	ErrInvalidRecipeType     = errors.New("invalid recipe type")
	ErrInvalidIngredientType = errors.New("invalid ingredient type")
)
