package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/recipes_backend/models"
	"bitbucket.org/mmdatafocus/recipes_backend/utils"
	"bitbucket.org/mmdatafocus/recipes_backend/workflow"
	"github.com/gin-gonic/gin"
)

// requestContext trusts the upstream gateway: it has already authenticated
// the caller and narrows every request to one tenant via headers.
func requestContext(c *gin.Context) (context.Context, error) {
	businessId := strings.TrimSpace(c.GetHeader("X-Business-Id"))
	if businessId == "" {
		return nil, errors.New("unauthorized")
	}
	userId, err := strconv.Atoi(strings.TrimSpace(c.GetHeader("X-User-Id")))
	if err != nil || userId <= 0 {
		return nil, errors.New("unauthorized")
	}
	userName := strings.TrimSpace(c.GetHeader("X-User-Name"))
	if userName == "" {
		return nil, errors.New("unauthorized")
	}

	ctx := c.Request.Context()
	ctx = utils.SetBusinessIdInContext(ctx, businessId)
	ctx = utils.SetUserIdInContext(ctx, userId)
	ctx = utils.SetUserNameInContext(ctx, userName)
	return ctx, nil
}

func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, utils.ErrorRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, utils.ErrorReferentialConflict), errors.Is(err, workflow.ErrIngredientCycle):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, workflow.ErrMissingPrice),
		errors.Is(err, models.ErrInvalidUnitType),
		errors.Is(err, models.ErrInvalidRecipeType),
		errors.Is(err, models.ErrInvalidIngredientType):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func pathId(c *gin.Context, name string) (int, bool) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

// withContext wraps a handler body with the tenant-context dance every
// endpoint repeats.
func withContext(handle func(c *gin.Context, ctx context.Context)) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, err := requestContext(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		handle(c, ctx)
	}
}

// ---- inventory items ----

func createItemHandler() gin.HandlerFunc {
	return withContext(func(c *gin.Context, ctx context.Context) {
		var input models.NewInventoryItem
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": utils.ProcessValidationErrors(err)})
			return
		}
		item, err := models.CreateInventoryItem(ctx, &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, item)
	})
}

func updateItemHandler() gin.HandlerFunc {
	return withContext(func(c *gin.Context, ctx context.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		var input models.NewInventoryItem
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": utils.ProcessValidationErrors(err)})
			return
		}
		item, err := models.UpdateInventoryItem(ctx, id, &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, item)
	})
}

func getItemHandler() gin.HandlerFunc {
	return withContext(func(c *gin.Context, ctx context.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		item, err := models.GetInventoryItem(ctx, id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, item)
	})
}

func listItemsHandler() gin.HandlerFunc {
	return withContext(func(c *gin.Context, ctx context.Context) {
		items, err := models.ListInventoryItems(ctx)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, items)
	})
}

func deleteItemHandler() gin.HandlerFunc {
	return withContext(func(c *gin.Context, ctx context.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		var (
			item *models.InventoryItem
			err  error
		)
		if c.Query("purge") == "true" {
			item, err = models.HardDeleteInventoryItem(ctx, id)
		} else {
			item, err = models.SoftDeleteInventoryItem(ctx, id)
		}
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, item)
	})
}

// ---- prices ----

type recordPriceRequest struct {
	ItemId        int    `json:"item_id" binding:"required"`
	PurchasePrice string `json:"purchase_price" binding:"required"`
	PricePerUnit  string `json:"price_per_unit" binding:"required"`
	EffectiveDate string `json:"effective_date" binding:"required"`
	SupplierId    *int   `json:"supplier_id"`
	Notes         string `json:"notes"`
}

func recordPriceHandler() gin.HandlerFunc {
	return withContext(func(c *gin.Context, ctx context.Context) {
		var req recordPriceRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": utils.ProcessValidationErrors(err)})
			return
		}
		input, err := req.toInput()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		result, err := workflow.RecordPrice(ctx, input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, result)
	})
}

func listPricesHandler() gin.HandlerFunc {
	return withContext(func(c *gin.Context, ctx context.Context) {
		itemId, ok := pathId(c, "id")
		if !ok {
			return
		}
		limit := queryInt(c, "limit")
		after := queryString(c, "after")
		connection, err := models.ListPriceHistory(ctx, itemId, limit, after)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, connection)
	})
}

// ---- suppliers ----

func createSupplierHandler() gin.HandlerFunc {
	return withContext(func(c *gin.Context, ctx context.Context) {
		var input models.NewSupplier
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": utils.ProcessValidationErrors(err)})
			return
		}
		supplier, err := models.CreateSupplier(ctx, &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, supplier)
	})
}

func updateSupplierHandler() gin.HandlerFunc {
	return withContext(func(c *gin.Context, ctx context.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		var input models.NewSupplier
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": utils.ProcessValidationErrors(err)})
			return
		}
		supplier, err := models.UpdateSupplier(ctx, id, &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, supplier)
	})
}

func deleteSupplierHandler() gin.HandlerFunc {
	return withContext(func(c *gin.Context, ctx context.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		supplier, err := models.DeleteSupplier(ctx, id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, supplier)
	})
}

func listSuppliersHandler() gin.HandlerFunc {
	return withContext(func(c *gin.Context, ctx context.Context) {
		suppliers, err := models.ListSuppliers(ctx)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, suppliers)
	})
}

// ---- recipes ----

func createRecipeHandler() gin.HandlerFunc {
	return withContext(func(c *gin.Context, ctx context.Context) {
		var input models.NewRecipe
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": utils.ProcessValidationErrors(err)})
			return
		}
		recipe, err := models.CreateRecipe(ctx, &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, recipe)
	})
}

func getRecipeHandler() gin.HandlerFunc {
	return withContext(func(c *gin.Context, ctx context.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		recipe, err := models.GetRecipeWithIngredients(ctx, id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, recipe)
	})
}

func listRecipesHandler() gin.HandlerFunc {
	return withContext(func(c *gin.Context, ctx context.Context) {
		var recipeType *models.RecipeType
		if v := c.Query("type"); v != "" {
			t := models.RecipeType(v)
			if !t.IsValid() {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid type"})
				return
			}
			recipeType = &t
		}
		name := queryString(c, "name")
		recipes, err := models.ListRecipes(ctx, recipeType, name)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, recipes)
	})
}

func listRecipeVersionsHandler() gin.HandlerFunc {
	return withContext(func(c *gin.Context, ctx context.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		versions, err := models.ListRecipeVersions(ctx, id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, versions)
	})
}

func updateRecipeHandler() gin.HandlerFunc {
	return withContext(func(c *gin.Context, ctx context.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		var input models.NewRecipe
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": utils.ProcessValidationErrors(err)})
			return
		}
		recipe, err := workflow.UpdateRecipeSettings(ctx, id, &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, recipe)
	})
}

func deleteRecipeHandler() gin.HandlerFunc {
	return withContext(func(c *gin.Context, ctx context.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		recipe, err := models.SoftDeleteRecipe(ctx, id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, recipe)
	})
}

// ---- ingredients ----

type addIngredientRequest struct {
	IngredientType string `json:"ingredient_type" binding:"required"`
	ItemId         *int   `json:"item_id"`
	BaseRecipeId   *int   `json:"base_recipe_id"`
	Amount         string `json:"amount" binding:"required"`
	SortOrder      int    `json:"sort_order"`
}

func (r *addIngredientRequest) toInput() (*models.NewRecipeIngredient, error) {
	amount, err := utils.ParseDecimalScale(r.Amount, 4, 20)
	if err != nil {
		return nil, err
	}
	return &models.NewRecipeIngredient{
		IngredientType: models.IngredientType(r.IngredientType),
		ItemId:         r.ItemId,
		BaseRecipeId:   r.BaseRecipeId,
		Amount:         amount,
		SortOrder:      r.SortOrder,
	}, nil
}

func addIngredientHandler() gin.HandlerFunc {
	return withContext(func(c *gin.Context, ctx context.Context) {
		recipeId, ok := pathId(c, "id")
		if !ok {
			return
		}
		var req addIngredientRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": utils.ProcessValidationErrors(err)})
			return
		}
		input, err := req.toInput()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		recipe, err := workflow.AddIngredient(ctx, recipeId, input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, recipe)
	})
}

type updateIngredientRequest struct {
	Amount string `json:"amount" binding:"required"`
}

func updateIngredientHandler() gin.HandlerFunc {
	return withContext(func(c *gin.Context, ctx context.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		var req updateIngredientRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": utils.ProcessValidationErrors(err)})
			return
		}
		amount, err := utils.ParseDecimalScale(req.Amount, 4, 20)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		recipe, err := workflow.UpdateIngredientAmount(ctx, id, amount)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, recipe)
	})
}

func removeIngredientHandler() gin.HandlerFunc {
	return withContext(func(c *gin.Context, ctx context.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		recipe, err := workflow.RemoveIngredient(ctx, id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, recipe)
	})
}

// ---- costing ----

func recalculateHandler() gin.HandlerFunc {
	return withContext(func(c *gin.Context, ctx context.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		recipe, err := workflow.RecalculateRecipe(ctx, id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, recipe)
	})
}

func cascadeHandler() gin.HandlerFunc {
	return withContext(func(c *gin.Context, ctx context.Context) {
		itemId, ok := pathId(c, "id")
		if !ok {
			return
		}
		result, err := workflow.CascadePriceChange(ctx, itemId)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	})
}

type simulateRequest struct {
	NewPricePerUnit string `json:"new_price_per_unit" binding:"required"`
}

func simulateHandler() gin.HandlerFunc {
	return withContext(func(c *gin.Context, ctx context.Context) {
		itemId, ok := pathId(c, "id")
		if !ok {
			return
		}
		var req simulateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": utils.ProcessValidationErrors(err)})
			return
		}
		newPrice, err := utils.ParseDecimalScale(req.NewPricePerUnit, 6, 20)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		report, err := workflow.SimulatePriceImpact(ctx, itemId, newPrice)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, report)
	})
}

// ---- versioning ----

func createVersionHandler() gin.HandlerFunc {
	return withContext(func(c *gin.Context, ctx context.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		recipe, err := workflow.CreateRecipeVersion(ctx, id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, recipe)
	})
}

type scaleRequest struct {
	Factor string `json:"factor" binding:"required"`
}

func scaleHandler() gin.HandlerFunc {
	return withContext(func(c *gin.Context, ctx context.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		var req scaleRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": utils.ProcessValidationErrors(err)})
			return
		}
		factor, err := utils.ParseDecimalScale(req.Factor, 4, 8)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		recipe, err := workflow.ScaleRecipe(ctx, id, factor)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, recipe)
	})
}

type duplicateRequest struct {
	Name string `json:"name" binding:"required"`
}

func duplicateHandler() gin.HandlerFunc {
	return withContext(func(c *gin.Context, ctx context.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		var req duplicateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": utils.ProcessValidationErrors(err)})
			return
		}
		recipe, err := workflow.DuplicateRecipe(ctx, id, strings.TrimSpace(req.Name))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, recipe)
	})
}

// ---- snapshots ----

type snapshotRequest struct {
	Notes string `json:"notes"`
}

func createSnapshotHandler() gin.HandlerFunc {
	return withContext(func(c *gin.Context, ctx context.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		var req snapshotRequest
		// body is optional, notes default to empty
		_ = c.ShouldBindJSON(&req)
		snapshot, err := workflow.CreateSnapshot(ctx, id, req.Notes)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, snapshot)
	})
}

func listSnapshotsHandler() gin.HandlerFunc {
	return withContext(func(c *gin.Context, ctx context.Context) {
		recipeId, ok := pathId(c, "id")
		if !ok {
			return
		}
		limit := queryInt(c, "limit")
		after := queryString(c, "after")
		connection, err := models.ListRecipeSnapshots(ctx, recipeId, limit, after)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, connection)
	})
}

func getSnapshotHandler() gin.HandlerFunc {
	return withContext(func(c *gin.Context, ctx context.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		snapshot, err := models.GetRecipeSnapshot(ctx, id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, snapshot)
	})
}

// ---- reports / audit ----

func exportCostReportHandler() gin.HandlerFunc {
	return withContext(func(c *gin.Context, ctx context.Context) {
		url, err := models.ExportRecipeCosts(ctx)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"url": url})
	})
}

func listHistoriesHandler() gin.HandlerFunc {
	return withContext(func(c *gin.Context, ctx context.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		referenceType := c.Query("reference_type")
		if referenceType == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "reference_type is required"})
			return
		}
		histories, err := models.ListHistories(ctx, referenceType, id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, histories)
	})
}

// ---- helpers ----

func (req *recordPriceRequest) toInput() (*models.NewPriceHistoryEntry, error) {
	purchasePrice, err := utils.ParseDecimalScale(req.PurchasePrice, 4, 20)
	if err != nil {
		return nil, err
	}
	pricePerUnit, err := utils.ParseDecimalScale(req.PricePerUnit, 6, 20)
	if err != nil {
		return nil, err
	}
	effectiveDate, err := parseDate(req.EffectiveDate)
	if err != nil {
		return nil, err
	}
	return &models.NewPriceHistoryEntry{
		ItemId:        req.ItemId,
		PurchasePrice: purchasePrice,
		PricePerUnit:  pricePerUnit,
		EffectiveDate: effectiveDate,
		SupplierId:    req.SupplierId,
		Notes:         req.Notes,
	}, nil
}

func queryInt(c *gin.Context, name string) *int {
	v := c.Query(name)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil
	}
	return &n
}

func queryString(c *gin.Context, name string) *string {
	v := c.Query(name)
	if v == "" {
		return nil
	}
	return &v
}

func parseDate(value string) (time.Time, error) {
	parsed, err := time.Parse("2006-01-02", strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, errors.New("invalid date, expected YYYY-MM-DD")
	}
	return parsed, nil
}
