package workflow

import (
	"testing"

	"bitbucket.org/mmdatafocus/recipes_backend/models"
	"github.com/shopspring/decimal"
)

func TestProjectRecipeImpact_DirectConsumer(t *testing.T) {
	recipe := &models.Recipe{
		ID:           1,
		Name:         "Bread",
		Type:         models.RecipeTypeFinal,
		SellingPrice: dec(t, "150"),
		TotalCost:    dec(t, "75.0000"),
		CogsPct:      dec(t, "50.00"),
		Ingredients: []*models.RecipeIngredient{
			{ItemId: intPtr(10), Amount: dec(t, "500"), UnitCost: dec(t, "0.05"), ExtendedCost: dec(t, "25.0000")},
			{ItemId: intPtr(11), Amount: dec(t, "300"), UnitCost: dec(t, "0.166667"), ExtendedCost: dec(t, "50.0000")},
		},
	}

	// Flour goes from 0.05/g to 0.06/g.
	projected := map[int]decimal.Decimal{}
	impact := projectRecipeImpact(recipe, 10, dec(t, "0.01"), projected)
	if impact == nil {
		t.Fatal("expected an impact for a direct consumer")
	}
	if impact.CostDelta.StringFixed(4) != "5.0000" {
		t.Fatalf("cost delta expected 5.0000, got %s", impact.CostDelta.StringFixed(4))
	}
	if impact.NewTotalCost.StringFixed(4) != "80.0000" {
		t.Fatalf("new total cost expected 80.0000, got %s", impact.NewTotalCost.StringFixed(4))
	}
	if impact.OldTotalCost.StringFixed(4) != "75.0000" {
		t.Fatalf("old total cost expected unchanged 75.0000, got %s", impact.OldTotalCost.StringFixed(4))
	}
	if impact.NewCogsPct.StringFixed(2) != "53.33" {
		t.Fatalf("new cogs expected 53.33, got %s", impact.NewCogsPct.StringFixed(2))
	}
	if len(projected) != 0 {
		t.Fatalf("final recipes must not publish projections, got %v", projected)
	}
}

func TestProjectRecipeImpact_BaseRecipePublishesProjection(t *testing.T) {
	base := &models.Recipe{
		ID:        2,
		Name:      "Dough",
		Type:      models.RecipeTypeBase,
		NetWeight: dec(t, "776.0000"),
		TotalCost: dec(t, "75.0000"),
		Ingredients: []*models.RecipeIngredient{
			{ItemId: intPtr(10), Amount: dec(t, "500"), UnitCost: dec(t, "0.05"), ExtendedCost: dec(t, "25.0000")},
			{ItemId: intPtr(11), Amount: dec(t, "300"), UnitCost: dec(t, "0.166667"), ExtendedCost: dec(t, "50.0000")},
		},
	}

	projected := map[int]decimal.Decimal{}
	impact := projectRecipeImpact(base, 10, dec(t, "0.01"), projected)
	if impact == nil {
		t.Fatal("expected an impact for the base recipe")
	}
	// 80.0000 / 776 rounded to 6.
	want := dec(t, "80").DivRound(dec(t, "776"), 6)
	got, ok := projected[2]
	if !ok {
		t.Fatal("base recipe projection missing")
	}
	if !got.Equal(want) {
		t.Fatalf("projection expected %s, got %s", want.String(), got.String())
	}
}

func TestProjectRecipeImpact_IndirectConsumerUsesProjection(t *testing.T) {
	cake := &models.Recipe{
		ID:           3,
		Name:         "Cake",
		Type:         models.RecipeTypeFinal,
		SellingPrice: dec(t, "300"),
		TotalCost:    dec(t, "120.0000"),
		Ingredients: []*models.RecipeIngredient{
			{BaseRecipeId: intPtr(2), Amount: dec(t, "200"), UnitCost: dec(t, "0.096649"), ExtendedCost: dec(t, "19.3298")},
			{ItemId: intPtr(12), Amount: dec(t, "100"), UnitCost: dec(t, "1.0067"), ExtendedCost: dec(t, "100.6700")},
		},
	}

	projected := map[int]decimal.Decimal{2: dec(t, "0.103093")}
	impact := projectRecipeImpact(cake, 10, dec(t, "0.01"), projected)
	if impact == nil {
		t.Fatal("expected an impact through the base recipe projection")
	}
	// 200 × 0.103093 = 20.6186; delta vs 19.3298 persisted.
	if impact.CostDelta.StringFixed(4) != "1.2888" {
		t.Fatalf("cost delta expected 1.2888, got %s", impact.CostDelta.StringFixed(4))
	}
	if impact.NewTotalCost.StringFixed(4) != "121.2888" {
		t.Fatalf("new total cost expected 121.2888, got %s", impact.NewTotalCost.StringFixed(4))
	}
}

func TestProjectRecipeImpact_DirectAndBaseConsumerCombined(t *testing.T) {
	// A final holding the repriced item both directly and through a base.
	// The base is projected first, as the propagation order guarantees, so
	// the final combines both deltas instead of only the direct one.
	base := &models.Recipe{
		ID:        10,
		Name:      "Dough",
		Type:      models.RecipeTypeBase,
		NetWeight: dec(t, "1000.0000"),
		TotalCost: dec(t, "50.0000"),
		Ingredients: []*models.RecipeIngredient{
			{ItemId: intPtr(42), Amount: dec(t, "1000"), UnitCost: dec(t, "0.05"), ExtendedCost: dec(t, "50.0000")},
		},
	}
	final := &models.Recipe{
		ID:           5,
		Name:         "Bread",
		Type:         models.RecipeTypeFinal,
		SellingPrice: dec(t, "150"),
		TotalCost:    dec(t, "50.0000"),
		Ingredients: []*models.RecipeIngredient{
			{ItemId: intPtr(42), Amount: dec(t, "500"), UnitCost: dec(t, "0.05"), ExtendedCost: dec(t, "25.0000")},
			{BaseRecipeId: intPtr(10), Amount: dec(t, "500"), UnitCost: dec(t, "0.05"), ExtendedCost: dec(t, "25.0000")},
		},
	}

	projected := map[int]decimal.Decimal{}
	if impact := projectRecipeImpact(base, 42, dec(t, "0.01"), projected); impact == nil {
		t.Fatal("expected an impact for the base recipe")
	}
	impact := projectRecipeImpact(final, 42, dec(t, "0.01"), projected)
	if impact == nil {
		t.Fatal("expected an impact for the final recipe")
	}
	// direct 500 × 0.01 = 5.0000 plus base 500 × (0.06 − 0.05) = 5.0000
	if impact.CostDelta.StringFixed(4) != "10.0000" {
		t.Fatalf("cost delta expected 10.0000, got %s", impact.CostDelta.StringFixed(4))
	}
	if impact.NewTotalCost.StringFixed(4) != "60.0000" {
		t.Fatalf("new total cost expected 60.0000, got %s", impact.NewTotalCost.StringFixed(4))
	}
	if impact.NewCogsPct.StringFixed(2) != "40.00" {
		t.Fatalf("new cogs expected 40.00, got %s", impact.NewCogsPct.StringFixed(2))
	}
}

func TestProjectRecipeImpact_UntouchedRecipeReturnsNil(t *testing.T) {
	recipe := &models.Recipe{
		ID:   4,
		Type: models.RecipeTypeFinal,
		Ingredients: []*models.RecipeIngredient{
			{ItemId: intPtr(99), Amount: dec(t, "10"), UnitCost: dec(t, "2"), ExtendedCost: dec(t, "20.0000")},
			// Base line without a projection means that base did not move.
			{BaseRecipeId: intPtr(50), Amount: dec(t, "5"), UnitCost: dec(t, "1"), ExtendedCost: dec(t, "5.0000")},
		},
	}

	impact := projectRecipeImpact(recipe, 10, dec(t, "0.01"), map[int]decimal.Decimal{})
	if impact != nil {
		t.Fatalf("expected nil impact for untouched recipe, got %+v", impact)
	}
}

func TestProjectRecipeImpact_PriceDropLowersCost(t *testing.T) {
	recipe := &models.Recipe{
		ID:           5,
		Type:         models.RecipeTypeFinal,
		SellingPrice: dec(t, "100"),
		TotalCost:    dec(t, "40.0000"),
		CogsPct:      dec(t, "40.00"),
		Ingredients: []*models.RecipeIngredient{
			{ItemId: intPtr(10), Amount: dec(t, "400"), UnitCost: dec(t, "0.1"), ExtendedCost: dec(t, "40.0000")},
		},
	}

	impact := projectRecipeImpact(recipe, 10, dec(t, "-0.025"), map[int]decimal.Decimal{})
	if impact == nil {
		t.Fatal("expected an impact for a price drop")
	}
	if impact.CostDelta.StringFixed(4) != "-10.0000" {
		t.Fatalf("cost delta expected -10.0000, got %s", impact.CostDelta.StringFixed(4))
	}
	if impact.NewTotalCost.StringFixed(4) != "30.0000" {
		t.Fatalf("new total cost expected 30.0000, got %s", impact.NewTotalCost.StringFixed(4))
	}
	if impact.NewCogsPct.StringFixed(2) != "30.00" {
		t.Fatalf("new cogs expected 30.00, got %s", impact.NewCogsPct.StringFixed(2))
	}
}
