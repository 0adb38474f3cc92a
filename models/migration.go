package models

import (
	"log"

	"bitbucket.org/mmdatafocus/recipes_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Business{}, &Supplier{},
		&InventoryItem{}, &PriceHistoryEntry{},
		&Recipe{}, &RecipeIngredient{},
		&RecipeSnapshot{}, &RecipeSnapshotItem{},
		&History{},
		&AuditMessageRecord{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
