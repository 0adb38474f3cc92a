package workflow

import (
	"testing"

	"bitbucket.org/mmdatafocus/recipes_backend/models"
	"github.com/shopspring/decimal"
)

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad decimal literal %q: %v", s, err)
	}
	return d
}

func TestComputeLineCost_RoundsHalfAwayFromZero(t *testing.T) {
	cases := []struct {
		amount   string
		unitCost string
		expected string
	}{
		{"500", "0.005", "2.5000"},
		{"0.3", "0.000015", "0.0000"},
		{"0.5", "0.000015", "0.0000"},
		{"1", "0.00005", "0.0001"},
		{"333", "0.0000155", "0.0052"},
		{"1000", "0.012345", "12.3450"},
		{"0", "5", "0.0000"},
	}
	for _, tc := range cases {
		got := computeLineCost(dec(t, tc.amount), dec(t, tc.unitCost))
		if got.StringFixed(4) != tc.expected {
			t.Fatalf("computeLineCost(%s, %s) expected %s, got %s", tc.amount, tc.unitCost, tc.expected, got.StringFixed(4))
		}
	}
}

// Classic bread: 500g flour at 0.05/g plus 300g water at 0.1667/g with 3%
// yield loss and a selling price of 150.
func TestComputeRecipeTotals_BreadExample(t *testing.T) {
	recipe := &models.Recipe{
		Type:         models.RecipeTypeFinal,
		YieldLossPct: dec(t, "3"),
		SellingPrice: dec(t, "150"),
	}
	lines := []*models.RecipeIngredient{
		{Amount: dec(t, "500"), UnitCost: dec(t, "0.05")},
		{Amount: dec(t, "300"), UnitCost: dec(t, "0.1667")},
	}
	for _, line := range lines {
		line.ExtendedCost = computeLineCost(line.Amount, line.UnitCost)
	}

	totals := computeRecipeTotals(recipe, lines)

	if totals.RawWeight.StringFixed(4) != "800.0000" {
		t.Fatalf("raw weight expected 800.0000, got %s", totals.RawWeight.StringFixed(4))
	}
	if totals.NetWeight.StringFixed(4) != "776.0000" {
		t.Fatalf("net weight expected 776.0000, got %s", totals.NetWeight.StringFixed(4))
	}
	// 25.0000 + 50.0100 rounded per line before summing.
	if totals.TotalCost.StringFixed(4) != "75.0100" {
		t.Fatalf("total cost expected 75.0100, got %s", totals.TotalCost.StringFixed(4))
	}
	if totals.CostPerGram.StringFixed(6) != "0.096662" {
		t.Fatalf("cost per gram expected 0.096662, got %s", totals.CostPerGram.StringFixed(6))
	}
	if totals.CogsPct.StringFixed(2) != "50.01" {
		t.Fatalf("cogs pct expected 50.01, got %s", totals.CogsPct.StringFixed(2))
	}
}

func TestComputeRecipeTotals_ZeroNetWeightLeavesCostPerGramZero(t *testing.T) {
	recipe := &models.Recipe{
		Type:         models.RecipeTypeBase,
		YieldLossPct: decimal.Zero,
	}
	totals := computeRecipeTotals(recipe, nil)
	if !totals.CostPerGram.IsZero() {
		t.Fatalf("cost per gram expected 0 for empty recipe, got %s", totals.CostPerGram.String())
	}
	if !totals.TotalCost.IsZero() || !totals.RawWeight.IsZero() || !totals.NetWeight.IsZero() {
		t.Fatalf("empty recipe totals expected all zero, got %+v", totals)
	}
}

func TestComputeRecipeTotals_CogsOnlyOnFinalWithSellingPrice(t *testing.T) {
	lines := []*models.RecipeIngredient{
		{Amount: dec(t, "100"), UnitCost: dec(t, "0.5"), ExtendedCost: dec(t, "50")},
	}

	base := &models.Recipe{Type: models.RecipeTypeBase, SellingPrice: dec(t, "200")}
	if got := computeRecipeTotals(base, lines).CogsPct; !got.IsZero() {
		t.Fatalf("base recipe cogs expected 0, got %s", got.String())
	}

	unsold := &models.Recipe{Type: models.RecipeTypeFinal, SellingPrice: decimal.Zero}
	if got := computeRecipeTotals(unsold, lines).CogsPct; !got.IsZero() {
		t.Fatalf("final recipe without selling price cogs expected 0, got %s", got.String())
	}

	sold := &models.Recipe{Type: models.RecipeTypeFinal, SellingPrice: dec(t, "200")}
	if got := computeRecipeTotals(sold, lines).CogsPct; got.StringFixed(2) != "25.00" {
		t.Fatalf("final recipe cogs expected 25.00, got %s", got.StringFixed(2))
	}
}

func TestComputeRecipeTotals_Idempotent(t *testing.T) {
	recipe := &models.Recipe{
		Type:         models.RecipeTypeFinal,
		YieldLossPct: dec(t, "12.5"),
		SellingPrice: dec(t, "99.99"),
	}
	lines := []*models.RecipeIngredient{
		{Amount: dec(t, "123.4567"), UnitCost: dec(t, "0.033333")},
		{Amount: dec(t, "7.89"), UnitCost: dec(t, "1.2")},
	}
	for _, line := range lines {
		line.ExtendedCost = computeLineCost(line.Amount, line.UnitCost)
	}

	first := computeRecipeTotals(recipe, lines)
	// Re-running over unchanged inputs must not drift.
	for _, line := range lines {
		line.ExtendedCost = computeLineCost(line.Amount, line.UnitCost)
	}
	second := computeRecipeTotals(recipe, lines)

	if !first.TotalCost.Equal(second.TotalCost) ||
		!first.NetWeight.Equal(second.NetWeight) ||
		!first.CostPerGram.Equal(second.CostPerGram) ||
		!first.CogsPct.Equal(second.CogsPct) {
		t.Fatalf("recalculation drifted: first %+v second %+v", first, second)
	}
}

func intPtr(v int) *int { return &v }

func TestResolveUnitCosts_MissingPriceCostsZero(t *testing.T) {
	lines := []*models.RecipeIngredient{
		{ID: 1, ItemId: intPtr(10), Amount: dec(t, "100")},
		{ID: 2, ItemId: intPtr(11), Amount: dec(t, "50")},
		{ID: 3, BaseRecipeId: intPtr(20), Amount: dec(t, "25")},
	}
	itemPrices := map[int]decimal.Decimal{10: dec(t, "0.05")}
	baseCosts := map[int]decimal.Decimal{20: dec(t, "0.1")}

	unpriced, err := resolveUnitCosts(lines, itemPrices, baseCosts, false)
	if err != nil {
		t.Fatalf("resolveUnitCosts error: %v", err)
	}
	if len(unpriced) != 1 || unpriced[0] != 2 {
		t.Fatalf("expected line 2 unpriced, got %v", unpriced)
	}
	if lines[0].ExtendedCost.StringFixed(4) != "5.0000" {
		t.Fatalf("line 1 extended cost expected 5.0000, got %s", lines[0].ExtendedCost.StringFixed(4))
	}
	if !lines[1].UnitCost.IsZero() || !lines[1].ExtendedCost.IsZero() {
		t.Fatalf("unpriced line must cost zero, got unit=%s extended=%s", lines[1].UnitCost, lines[1].ExtendedCost)
	}
	if lines[2].ExtendedCost.StringFixed(4) != "2.5000" {
		t.Fatalf("line 3 extended cost expected 2.5000, got %s", lines[2].ExtendedCost.StringFixed(4))
	}
}

func TestResolveUnitCosts_StrictModeFailsOnMissingPrice(t *testing.T) {
	lines := []*models.RecipeIngredient{
		{ID: 7, ItemId: intPtr(10), Amount: dec(t, "100")},
	}
	_, err := resolveUnitCosts(lines, map[int]decimal.Decimal{}, nil, true)
	if err == nil {
		t.Fatal("expected ErrMissingPrice in strict mode")
	}
}
