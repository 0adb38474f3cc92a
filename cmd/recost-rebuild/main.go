package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"bitbucket.org/mmdatafocus/recipes_backend/config"
	"bitbucket.org/mmdatafocus/recipes_backend/utils"
	"bitbucket.org/mmdatafocus/recipes_backend/workflow"
	"github.com/joho/godotenv"
	"gorm.io/gorm"
)

// Recalculates every current recipe of a business from the current price
// ledger, base recipes before the recipes that consume them. Intended for
// after manual data fixes or bulk price imports.
func main() {
	businessID := flag.String("business-id", "", "Required: business id (uuid)")
	recipeID := flag.Int("recipe-id", 0, "Optional: recalculate a single recipe (and nothing else)")
	continueOnError := flag.Bool("continue-on-error", false, "Skip failing recipes and continue rebuilding others")
	flag.Parse()

	if strings.TrimSpace(*businessID) == "" {
		fmt.Fprintln(os.Stderr, "--business-id is required")
		os.Exit(1)
	}

	_ = godotenv.Load()
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}

	ctx := utils.SetBusinessIdInContext(context.Background(), *businessID)
	ctx = utils.SetUserIdInContext(ctx, 0)
	ctx = utils.SetUserNameInContext(ctx, "System")

	var ordered []int
	if *recipeID > 0 {
		ordered = []int{*recipeID}
	} else {
		var err error
		ordered, err = dependencyOrder(ctx, db, *businessID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "resolve recalculation order: %v\n", err)
			os.Exit(1)
		}
	}

	failed := 0
	for _, id := range ordered {
		fmt.Printf("Recalculating business=%s recipe=%d\n", *businessID, id)
		if err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := workflow.AcquireCostingLock(tx, *businessID); err != nil {
				return err
			}
			defer workflow.ReleaseCostingLock(tx, *businessID)
			_, err := workflow.RecalculateRecipeCost(ctx, tx, *businessID, id)
			return err
		}); err != nil {
			if *continueOnError {
				failed++
				fmt.Fprintf(os.Stderr, "recalculation failed (skipping) recipe=%d: %v\n", id, err)
				continue
			}
			fmt.Fprintf(os.Stderr, "recalculation failed recipe=%d: %v\n", id, err)
			os.Exit(1)
		}
	}

	if failed > 0 {
		fmt.Printf("Done with %d failures\n", failed)
		os.Exit(1)
	}
	fmt.Println("Done")
}

// dependencyOrder returns every current, non-deleted recipe id of the
// business with each base recipe ahead of the recipes that consume it.
func dependencyOrder(ctx context.Context, db *gorm.DB, businessID string) ([]int, error) {
	var ids []int
	if err := db.WithContext(ctx).
		Table("recipes").
		Where("business_id = ? AND is_current = 1 AND is_deleted = 0", businessID).
		Order("id ASC").
		Pluck("id", &ids).Error; err != nil {
		return nil, err
	}

	type edge struct {
		RecipeId     int
		BaseRecipeId int
	}
	var edges []edge
	if err := db.WithContext(ctx).
		Table("recipe_ingredients AS ri").
		Select("ri.recipe_id, ri.base_recipe_id").
		Joins("JOIN recipes r ON r.id = ri.recipe_id").
		Where("r.business_id = ? AND r.is_current = 1 AND r.is_deleted = 0 AND ri.base_recipe_id IS NOT NULL", businessID).
		Scan(&edges).Error; err != nil {
		return nil, err
	}

	pending := make(map[int][]int, len(ids))
	for _, id := range ids {
		pending[id] = nil
	}
	for _, e := range edges {
		if _, ok := pending[e.BaseRecipeId]; ok {
			pending[e.RecipeId] = append(pending[e.RecipeId], e.BaseRecipeId)
		}
	}

	ordered := make([]int, 0, len(ids))
	done := make(map[int]bool, len(ids))
	for len(done) < len(pending) {
		progressed := false
		for _, id := range ids {
			if done[id] {
				continue
			}
			ready := true
			for _, dep := range pending[id] {
				if !done[dep] {
					ready = false
					break
				}
			}
			if ready {
				ordered = append(ordered, id)
				done[id] = true
				progressed = true
			}
		}
		if !progressed {
			// Remaining recipes form a cycle; append them so they still get
			// recalculated once each.
			for _, id := range ids {
				if !done[id] {
					ordered = append(ordered, id)
					done[id] = true
				}
			}
		}
	}
	return ordered, nil
}
