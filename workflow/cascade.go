package workflow

import (
	"context"
	"errors"
	"sort"

	"bitbucket.org/mmdatafocus/recipes_backend/config"
	"bitbucket.org/mmdatafocus/recipes_backend/models"
	"bitbucket.org/mmdatafocus/recipes_backend/utils"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

var tracer trace.Tracer = otel.Tracer("recipes-workflow")

type CascadeResult struct {
	UpdatedCount int              `json:"updated_count"`
	Recipes      []*models.Recipe `json:"recipes"`
}

// propagationOrder collects every recipe reachable from the starting set
// through the consumer graph, then orders the whole set so a base recipe
// comes before every recipe that consumes it. A recipe that uses the changed
// item both directly and through a base is therefore recomputed after that
// base and picks up its fresh cost_per_gram. Ties break on ascending id.
// Recipes stuck on a cycle never become ready; they are appended in id order
// so the walk still terminates on bad legacy data. Kept free of storage so
// the ordering properties are testable on plain maps.
func propagationOrder(start []int,
	nextConsumers func(ids []int) ([]int, error),
	basesOf func(id int) ([]int, error),
) ([]int, error) {

	affected := make(map[int]bool, len(start))
	frontier := make([]int, 0, len(start))
	for _, id := range start {
		if !affected[id] {
			affected[id] = true
			frontier = append(frontier, id)
		}
	}

	for len(frontier) > 0 {
		consumers, err := nextConsumers(frontier)
		if err != nil {
			return nil, err
		}
		next := make([]int, 0, len(consumers))
		for _, id := range consumers {
			if !affected[id] {
				affected[id] = true
				next = append(next, id)
			}
		}
		frontier = next
	}

	// dependency edges restricted to the affected set
	deps := make(map[int][]int, len(affected))
	remaining := make([]int, 0, len(affected))
	for id := range affected {
		bases, err := basesOf(id)
		if err != nil {
			return nil, err
		}
		for _, base := range bases {
			if base != id && affected[base] {
				deps[id] = append(deps[id], base)
			}
		}
		remaining = append(remaining, id)
	}
	sort.Ints(remaining)

	order := make([]int, 0, len(remaining))
	done := make(map[int]bool, len(remaining))
	for len(remaining) > 0 {
		ready := make([]int, 0, len(remaining))
		rest := make([]int, 0, len(remaining))
		for _, id := range remaining {
			pending := false
			for _, base := range deps[id] {
				if !done[base] {
					pending = true
					break
				}
			}
			if pending {
				rest = append(rest, id)
			} else {
				ready = append(ready, id)
			}
		}
		if len(ready) == 0 {
			order = append(order, rest...)
			break
		}
		for _, id := range ready {
			done[id] = true
		}
		order = append(order, ready...)
		remaining = rest
	}
	return order, nil
}

// CascadePriceChange recomputes every current recipe whose cost derives from
// the given item, bases strictly before the recipes that consume them, so
// each recalculation reads already-updated base costs. Recipes are processed
// sequentially and the whole walk commits or rolls back as one transaction.
func CascadePriceChange(ctx context.Context, itemId int) (*CascadeResult, error) {
	ctx, span := tracer.Start(ctx, "CascadePriceChange")
	defer span.End()

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if err := utils.ValidateResourceId[models.InventoryItem](ctx, businessId, itemId); err != nil {
		return nil, err
	}

	if err := utils.BusinessLock(ctx, businessId, "costing", "workflow", "CascadePriceChange"); err != nil {
		return nil, err
	}

	var result *CascadeResult
	db := config.GetDB()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := AcquireCostingLock(tx, businessId); err != nil {
			return err
		}
		defer ReleaseCostingLock(tx, businessId)

		var err error
		result, err = cascadeInTx(ctx, tx, businessId, itemId)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func cascadeInTx(ctx context.Context, tx *gorm.DB, businessId string, itemId int) (*CascadeResult, error) {
	direct, err := models.RecipesUsingItem(ctx, tx, businessId, itemId)
	if err != nil {
		return nil, err
	}

	order, err := propagationOrder(direct,
		func(ids []int) ([]int, error) {
			return models.ConsumersOf(ctx, tx, businessId, ids)
		},
		func(id int) ([]int, error) {
			return models.BaseRecipeIdsOf(ctx, tx, businessId, id)
		})
	if err != nil {
		return nil, err
	}

	result := &CascadeResult{}
	for _, recipeId := range order {
		recipe, err := RecalculateRecipeCost(ctx, tx, businessId, recipeId)
		if err != nil {
			return nil, err
		}
		result.Recipes = append(result.Recipes, recipe)
		result.UpdatedCount++
	}
	return result, nil
}
