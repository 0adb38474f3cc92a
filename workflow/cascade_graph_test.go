package workflow

import (
	"reflect"
	"sort"
	"testing"

	"bitbucket.org/mmdatafocus/recipes_backend/models"
	"github.com/shopspring/decimal"
)

// consumerMap adapts an in-memory base→consumers adjacency map to the hop
// function the cascade uses.
func consumerMap(graph map[int][]int) func(ids []int) ([]int, error) {
	return func(ids []int) ([]int, error) {
		var out []int
		for _, id := range ids {
			out = append(out, graph[id]...)
		}
		sort.Ints(out)
		return out, nil
	}
}

// reverseEdges derives the consumer→bases lookup from the same adjacency map.
func reverseEdges(graph map[int][]int) func(id int) ([]int, error) {
	return func(id int) ([]int, error) {
		var bases []int
		for base, consumers := range graph {
			for _, consumer := range consumers {
				if consumer == id {
					bases = append(bases, base)
				}
			}
		}
		sort.Ints(bases)
		return bases, nil
	}
}

func TestPropagationOrder_BasesComeBeforeConsumers(t *testing.T) {
	// Recipe 5 uses the changed item directly and through base 10, which also
	// uses it. Both are direct consumers, but 5 must wait for 10 regardless of
	// id order.
	graph := map[int][]int{
		10: {5},
	}

	order, err := propagationOrder([]int{5, 10}, consumerMap(graph), reverseEdges(graph))
	if err != nil {
		t.Fatalf("propagationOrder error: %v", err)
	}
	expected := []int{10, 5}
	if !reflect.DeepEqual(order, expected) {
		t.Fatalf("expected order %v, got %v", expected, order)
	}
}

func TestPropagationOrder_CoversEveryConsumer(t *testing.T) {
	// 1 feeds 2 and 3; 2 feeds 4; 3 feeds 4 and 5.
	graph := map[int][]int{
		1: {2, 3},
		2: {4},
		3: {4, 5},
	}

	order, err := propagationOrder([]int{1}, consumerMap(graph), reverseEdges(graph))
	if err != nil {
		t.Fatalf("propagationOrder error: %v", err)
	}
	expected := []int{1, 2, 3, 4, 5}
	if !reflect.DeepEqual(order, expected) {
		t.Fatalf("expected order %v, got %v", expected, order)
	}
}

func TestPropagationOrder_SharedBaseRecomputedOnce(t *testing.T) {
	// Diamond with a long tail: 4 is reachable through both 2 and 3 but must
	// be recomputed exactly once, after both.
	graph := map[int][]int{
		1: {2, 3},
		2: {4},
		3: {4},
		4: {5},
	}

	order, err := propagationOrder([]int{1}, consumerMap(graph), reverseEdges(graph))
	if err != nil {
		t.Fatalf("propagationOrder error: %v", err)
	}
	expected := []int{1, 2, 3, 4, 5}
	if !reflect.DeepEqual(order, expected) {
		t.Fatalf("expected order %v, got %v", expected, order)
	}
}

func TestPropagationOrder_TerminatesOnCyclicGraph(t *testing.T) {
	// Legacy data can contain cycles; no member ever becomes ready, so the
	// remainder is flushed in id order and the walk terminates.
	graph := map[int][]int{
		1: {2},
		2: {3},
		3: {1},
	}

	order, err := propagationOrder([]int{1}, consumerMap(graph), reverseEdges(graph))
	if err != nil {
		t.Fatalf("propagationOrder error: %v", err)
	}
	expected := []int{1, 2, 3}
	if !reflect.DeepEqual(order, expected) {
		t.Fatalf("expected order %v, got %v", expected, order)
	}
}

func TestPropagationOrder_EmptyStart(t *testing.T) {
	order, err := propagationOrder(nil, consumerMap(nil), reverseEdges(nil))
	if err != nil {
		t.Fatalf("propagationOrder error: %v", err)
	}
	if len(order) != 0 {
		t.Fatalf("expected empty order, got %v", order)
	}
}

func TestPropagationOrder_DeduplicatesStartSet(t *testing.T) {
	order, err := propagationOrder([]int{7, 7, 8}, consumerMap(nil), reverseEdges(nil))
	if err != nil {
		t.Fatalf("propagationOrder error: %v", err)
	}
	expected := []int{7, 8}
	if !reflect.DeepEqual(order, expected) {
		t.Fatalf("expected order %v, got %v", expected, order)
	}
}

func TestPropagationOrder_ConsumerPicksUpFreshBaseCost(t *testing.T) {
	// Replays the cascade's recalculation loop at the pure layer. Final 5
	// holds 500 g of item 42 and 500 g of base 10; base 10 holds 1000 g of
	// item 42. At the old price 0.05 the final's persisted total is 50.0000.
	// Repricing to 0.06 must land on 60.0000: processed before the base, the
	// final would read the stale 0.05 cost_per_gram and stop at 55.0000.
	itemId := 42
	base := &models.Recipe{ID: 10, Type: models.RecipeTypeBase}
	baseLines := []*models.RecipeIngredient{
		{ID: 1, ItemId: intPtr(itemId), Amount: dec(t, "1000")},
	}
	final := &models.Recipe{ID: 5, Type: models.RecipeTypeFinal, SellingPrice: dec(t, "150")}
	finalLines := []*models.RecipeIngredient{
		{ID: 2, ItemId: intPtr(itemId), Amount: dec(t, "500")},
		{ID: 3, BaseRecipeId: intPtr(base.ID), Amount: dec(t, "500")},
	}
	lines := map[int][]*models.RecipeIngredient{base.ID: baseLines, final.ID: finalLines}
	recipes := map[int]*models.Recipe{base.ID: base, final.ID: final}

	graph := map[int][]int{base.ID: {final.ID}}
	order, err := propagationOrder([]int{final.ID, base.ID}, consumerMap(graph), reverseEdges(graph))
	if err != nil {
		t.Fatalf("propagationOrder error: %v", err)
	}

	itemPrices := map[int]decimal.Decimal{itemId: dec(t, "0.06")}
	baseCosts := map[int]decimal.Decimal{base.ID: dec(t, "0.05")} // persisted pre-cascade
	totalsById := map[int]recipeTotals{}
	for _, id := range order {
		if _, err := resolveUnitCosts(lines[id], itemPrices, baseCosts, false); err != nil {
			t.Fatalf("resolveUnitCosts(%d) error: %v", id, err)
		}
		totals := computeRecipeTotals(recipes[id], lines[id])
		totalsById[id] = totals
		if recipes[id].Type == models.RecipeTypeBase {
			baseCosts[id] = totals.CostPerGram
		}
	}

	if got := totalsById[base.ID].TotalCost; !got.Equal(dec(t, "60.0000")) {
		t.Fatalf("base total after reprice expected 60.0000, got %s", got)
	}
	if got := totalsById[final.ID].TotalCost; !got.Equal(dec(t, "60.0000")) {
		t.Fatalf("final total after reprice expected 60.0000, got %s", got)
	}
}

// edgeMap adapts recipe→base-recipe edges to the hop function cycle
// detection uses.
func edgeMap(graph map[int][]int) func(id int) ([]int, error) {
	return func(id int) ([]int, error) {
		return graph[id], nil
	}
}

func TestDetectCycle_SelfReference(t *testing.T) {
	cyclic, err := detectCycle(1, 1, edgeMap(nil))
	if err != nil {
		t.Fatalf("detectCycle error: %v", err)
	}
	if !cyclic {
		t.Fatal("self reference must be reported as a cycle")
	}
}

func TestDetectCycle_IndirectCycle(t *testing.T) {
	// Adding base 3 to recipe 1 while 3 already consumes 2 which consumes 1.
	graph := map[int][]int{
		3: {2},
		2: {1},
	}
	cyclic, err := detectCycle(1, 3, edgeMap(graph))
	if err != nil {
		t.Fatalf("detectCycle error: %v", err)
	}
	if !cyclic {
		t.Fatal("indirect cycle must be detected")
	}
}

func TestDetectCycle_AcyclicChain(t *testing.T) {
	graph := map[int][]int{
		3: {2},
		2: {4},
	}
	cyclic, err := detectCycle(1, 3, edgeMap(graph))
	if err != nil {
		t.Fatalf("detectCycle error: %v", err)
	}
	if cyclic {
		t.Fatal("acyclic chain misreported as cycle")
	}
}

func TestDetectCycle_DiamondIsNotACycle(t *testing.T) {
	// Two routes to the same base recipe are fine; only a route back to the
	// consuming recipe is not.
	graph := map[int][]int{
		3: {4, 5},
		4: {6},
		5: {6},
	}
	cyclic, err := detectCycle(1, 3, edgeMap(graph))
	if err != nil {
		t.Fatalf("detectCycle error: %v", err)
	}
	if cyclic {
		t.Fatal("diamond dependency misreported as cycle")
	}
}
