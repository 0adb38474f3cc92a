package models

import (
	"context"
	"errors"
	"fmt"

	"bitbucket.org/mmdatafocus/recipes_backend/config"
	"bitbucket.org/mmdatafocus/recipes_backend/utils"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

// ExportRecipeCosts builds an xlsx workbook of every current recipe and its
// ingredient cost breakdown, uploads it to cloud storage and returns the
// object URL.
func ExportRecipeCosts(ctx context.Context) (string, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return "", errors.New("business id is required")
	}

	db := config.GetDB()
	var recipes []*Recipe
	err := db.WithContext(ctx).
		Preload("Ingredients", func(db *gorm.DB) *gorm.DB {
			return db.Order("sort_order ASC, id ASC")
		}).
		Where("business_id = ? AND is_current = 1 AND is_deleted = 0", businessId).
		Order("name ASC").
		Find(&recipes).Error
	if err != nil {
		return "", err
	}

	f := excelize.NewFile()
	sheet := "Recipes"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return "", err
	}

	// Add headers
	f.SetCellValue(sheet, "A1", "Name")
	f.SetCellValue(sheet, "B1", "Type")
	f.SetCellValue(sheet, "C1", "Version")
	f.SetCellValue(sheet, "D1", "RawWeight")
	f.SetCellValue(sheet, "E1", "NetWeight")
	f.SetCellValue(sheet, "F1", "TotalCost")
	f.SetCellValue(sheet, "G1", "CostPerGram")
	f.SetCellValue(sheet, "H1", "SellingPrice")
	f.SetCellValue(sheet, "I1", "CogsPct")

	// Add data
	for i, r := range recipes {
		f.SetCellValue(sheet, "A"+fmt.Sprint(i+2), r.Name)
		f.SetCellValue(sheet, "B"+fmt.Sprint(i+2), string(r.Type))
		f.SetCellValue(sheet, "C"+fmt.Sprint(i+2), r.Version)
		f.SetCellValue(sheet, "D"+fmt.Sprint(i+2), r.RawWeight.String())
		f.SetCellValue(sheet, "E"+fmt.Sprint(i+2), r.NetWeight.String())
		f.SetCellValue(sheet, "F"+fmt.Sprint(i+2), r.TotalCost.String())
		f.SetCellValue(sheet, "G"+fmt.Sprint(i+2), r.CostPerGram.String())
		f.SetCellValue(sheet, "H"+fmt.Sprint(i+2), r.SellingPrice.String())
		f.SetCellValue(sheet, "I"+fmt.Sprint(i+2), r.CogsPct.String())
	}

	detailSheet := "Ingredients"
	if _, err := f.NewSheet(detailSheet); err != nil {
		return "", err
	}
	f.SetCellValue(detailSheet, "A1", "Recipe")
	f.SetCellValue(detailSheet, "B1", "Ingredient")
	f.SetCellValue(detailSheet, "C1", "Type")
	f.SetCellValue(detailSheet, "D1", "Amount")
	f.SetCellValue(detailSheet, "E1", "UnitCost")
	f.SetCellValue(detailSheet, "F1", "ExtendedCost")

	row := 2
	for _, r := range recipes {
		for _, line := range r.Ingredients {
			f.SetCellValue(detailSheet, "A"+fmt.Sprint(row), r.Name)
			f.SetCellValue(detailSheet, "B"+fmt.Sprint(row), ingredientDisplayName(ctx, db, businessId, line))
			f.SetCellValue(detailSheet, "C"+fmt.Sprint(row), string(line.IngredientType))
			f.SetCellValue(detailSheet, "D"+fmt.Sprint(row), line.Amount.String())
			f.SetCellValue(detailSheet, "E"+fmt.Sprint(row), line.UnitCost.String())
			f.SetCellValue(detailSheet, "F"+fmt.Sprint(row), line.ExtendedCost.String())
			row++
		}
	}

	buffer, err := f.WriteToBuffer()
	if err != nil {
		return "", err
	}

	objectName := "costReports/" + utils.GenerateUniqueFilename() + ".xlsx"
	if err := utils.UploadFileToGCS(ctx, objectName, buffer); err != nil {
		return "", fmt.Errorf("failed to upload file to storage provider: %v", err)
	}
	return utils.PublicObjectURL(objectName), nil
}
