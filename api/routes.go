package api

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes wires every costing endpoint under /api/v1.
func RegisterRoutes(router *gin.Engine) {
	v1 := router.Group("/api/v1")

	items := v1.Group("/items")
	items.POST("", createItemHandler())
	items.GET("", listItemsHandler())
	items.GET("/:id", getItemHandler())
	items.PUT("/:id", updateItemHandler())
	items.DELETE("/:id", deleteItemHandler())
	items.GET("/:id/prices", listPricesHandler())
	items.POST("/:id/cascade", cascadeHandler())
	items.POST("/:id/simulate", simulateHandler())

	prices := v1.Group("/prices")
	prices.POST("", recordPriceHandler())

	suppliers := v1.Group("/suppliers")
	suppliers.POST("", createSupplierHandler())
	suppliers.GET("", listSuppliersHandler())
	suppliers.PUT("/:id", updateSupplierHandler())
	suppliers.DELETE("/:id", deleteSupplierHandler())

	recipes := v1.Group("/recipes")
	recipes.POST("", createRecipeHandler())
	recipes.GET("", listRecipesHandler())
	recipes.GET("/:id", getRecipeHandler())
	recipes.PUT("/:id", updateRecipeHandler())
	recipes.DELETE("/:id", deleteRecipeHandler())
	recipes.GET("/:id/versions", listRecipeVersionsHandler())
	recipes.POST("/:id/versions", createVersionHandler())
	recipes.POST("/:id/ingredients", addIngredientHandler())
	recipes.POST("/:id/recalculate", recalculateHandler())
	recipes.POST("/:id/scale", scaleHandler())
	recipes.POST("/:id/duplicate", duplicateHandler())
	recipes.POST("/:id/snapshots", createSnapshotHandler())
	recipes.GET("/:id/snapshots", listSnapshotsHandler())

	ingredients := v1.Group("/ingredients")
	ingredients.PUT("/:id", updateIngredientHandler())
	ingredients.DELETE("/:id", removeIngredientHandler())

	snapshots := v1.Group("/snapshots")
	snapshots.GET("/:id", getSnapshotHandler())

	reports := v1.Group("/reports")
	reports.GET("/recipe-costs", exportCostReportHandler())

	histories := v1.Group("/histories")
	histories.GET("/:id", listHistoriesHandler())
}
