package models_test

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/recipes_backend/config"
	"bitbucket.org/mmdatafocus/recipes_backend/models"
	"bitbucket.org/mmdatafocus/recipes_backend/utils"
	"bitbucket.org/mmdatafocus/recipes_backend/workflow"
	"github.com/shopspring/decimal"
)

// End-to-end costing regression: price ledger feeds recipe costs, base recipe
// costs feed consuming recipes, a new price cascades through both in one
// commit, and versioning freezes the old row.
func TestRecipeCosting_PriceCascadeAndVersioning(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := context.Background()

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "recipes_test")
	t.Setenv("STRICT_MISSING_PRICES", "")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	ctx = utils.SetUserIdInContext(ctx, 1)
	ctx = utils.SetUserNameInContext(ctx, "Test")

	biz, err := models.CreateBusiness(ctx, &models.NewBusiness{
		Name:  "Test Kitchen",
		Email: "owner@test.local",
	})
	if err != nil {
		t.Fatalf("CreateBusiness: %v", err)
	}
	businessID := biz.ID.String()
	ctx = utils.SetBusinessIdInContext(ctx, businessID)

	flour, err := models.CreateInventoryItem(ctx, &models.NewInventoryItem{Name: "Flour", UnitType: models.UnitTypeWeight})
	if err != nil {
		t.Fatalf("CreateInventoryItem(flour): %v", err)
	}
	water, err := models.CreateInventoryItem(ctx, &models.NewInventoryItem{Name: "Water", UnitType: models.UnitTypeWeight})
	if err != nil {
		t.Fatalf("CreateInventoryItem(water): %v", err)
	}

	effective := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	recordPrice := func(itemId int, perUnit string) {
		t.Helper()
		_, err := workflow.RecordPrice(ctx, &models.NewPriceHistoryEntry{
			ItemId:        itemId,
			PurchasePrice: mustDec(t, perUnit).Mul(decimal.NewFromInt(1000)),
			PricePerUnit:  mustDec(t, perUnit),
			EffectiveDate: effective,
		})
		if err != nil {
			t.Fatalf("RecordPrice(item=%d): %v", itemId, err)
		}
		effective = effective.AddDate(0, 0, 1)
	}
	recordPrice(flour.ID, "0.05")
	recordPrice(water.ID, "0.02")

	dough, err := models.CreateRecipe(ctx, &models.NewRecipe{
		Name:         "Dough",
		Type:         models.RecipeTypeBase,
		YieldLossPct: mustDec(t, "3"),
	})
	if err != nil {
		t.Fatalf("CreateRecipe(dough): %v", err)
	}
	addIngredient := func(recipeId int, input *models.NewRecipeIngredient) *models.Recipe {
		t.Helper()
		recipe, err := workflow.AddIngredient(ctx, recipeId, input)
		if err != nil {
			t.Fatalf("AddIngredient(recipe=%d): %v", recipeId, err)
		}
		return recipe
	}
	addIngredient(dough.ID, &models.NewRecipeIngredient{
		IngredientType: models.IngredientTypeRaw,
		ItemId:         &flour.ID,
		Amount:         mustDec(t, "500"),
	})
	dough = addIngredient(dough.ID, &models.NewRecipeIngredient{
		IngredientType: models.IngredientTypeRaw,
		ItemId:         &water.ID,
		Amount:         mustDec(t, "300"),
		SortOrder:      1,
	})

	// 500×0.05 + 300×0.02 = 31; net = 800×0.97 = 776.
	assertDec(t, "dough.total_cost", dough.TotalCost, "31.0000")
	assertDec(t, "dough.raw_weight", dough.RawWeight, "800.0000")
	assertDec(t, "dough.net_weight", dough.NetWeight, "776.0000")
	assertDec(t, "dough.cost_per_gram", dough.CostPerGram, "0.039948")

	bread, err := models.CreateRecipe(ctx, &models.NewRecipe{
		Name:         "Bread",
		Type:         models.RecipeTypeFinal,
		SellingPrice: mustDec(t, "150"),
	})
	if err != nil {
		t.Fatalf("CreateRecipe(bread): %v", err)
	}
	addIngredient(bread.ID, &models.NewRecipeIngredient{
		IngredientType: models.IngredientTypeBase,
		BaseRecipeId:   &dough.ID,
		Amount:         mustDec(t, "200"),
	})
	bread = addIngredient(bread.ID, &models.NewRecipeIngredient{
		IngredientType: models.IngredientTypeRaw,
		ItemId:         &flour.ID,
		Amount:         mustDec(t, "100"),
		SortOrder:      1,
	})

	// 200×0.039948 + 100×0.05 = 7.9896 + 5 = 12.9896.
	assertDec(t, "bread.total_cost", bread.TotalCost, "12.9896")
	assertDec(t, "bread.cogs_pct", bread.CogsPct, "8.66")

	// Simulation must report the movement without persisting anything.
	simulated, err := workflow.SimulatePriceImpact(ctx, flour.ID, mustDec(t, "0.06"))
	if err != nil {
		t.Fatalf("SimulatePriceImpact: %v", err)
	}
	if len(simulated.Recipes) != 2 {
		t.Fatalf("expected 2 simulated recipes, got %d", len(simulated.Recipes))
	}
	unchanged, err := models.GetRecipeWithIngredients(ctx, bread.ID)
	if err != nil {
		t.Fatalf("GetRecipeWithIngredients after simulation: %v", err)
	}
	assertDec(t, "bread.total_cost after simulation", unchanged.TotalCost, "12.9896")

	// Repricing flour cascades through dough into bread in one commit.
	result, err := workflow.RecordPrice(ctx, &models.NewPriceHistoryEntry{
		ItemId:        flour.ID,
		PurchasePrice: mustDec(t, "60"),
		PricePerUnit:  mustDec(t, "0.06"),
		EffectiveDate: effective,
	})
	if err != nil {
		t.Fatalf("RecordPrice(flour reprice): %v", err)
	}
	if result.Cascade.UpdatedCount != 2 {
		t.Fatalf("expected cascade to update 2 recipes, got %d", result.Cascade.UpdatedCount)
	}

	dough, err = models.GetRecipeWithIngredients(ctx, dough.ID)
	if err != nil {
		t.Fatalf("GetRecipeWithIngredients(dough): %v", err)
	}
	// 500×0.06 + 300×0.02 = 36; 36/776 = 0.046392.
	assertDec(t, "dough.total_cost after cascade", dough.TotalCost, "36.0000")
	assertDec(t, "dough.cost_per_gram after cascade", dough.CostPerGram, "0.046392")

	bread, err = models.GetRecipeWithIngredients(ctx, bread.ID)
	if err != nil {
		t.Fatalf("GetRecipeWithIngredients(bread): %v", err)
	}
	// 200×0.046392 + 100×0.06 = 9.2784 + 6 = 15.2784.
	assertDec(t, "bread.total_cost after cascade", bread.TotalCost, "15.2784")
	assertDec(t, "bread.cogs_pct after cascade", bread.CogsPct, "10.19")

	// Versioning: the new version becomes current, the old row freezes.
	v2, err := workflow.CreateRecipeVersion(ctx, bread.ID)
	if err != nil {
		t.Fatalf("CreateRecipeVersion: %v", err)
	}
	if v2.Version != 2 {
		t.Fatalf("expected version 2, got %d", v2.Version)
	}
	if v2.IsCurrent == nil || !*v2.IsCurrent {
		t.Fatal("new version must be current")
	}
	assertDec(t, "bread v2 total_cost", v2.TotalCost, "15.2784")

	frozen, err := models.GetRecipeWithIngredients(ctx, bread.ID)
	if err != nil {
		t.Fatalf("GetRecipeWithIngredients(frozen v1): %v", err)
	}
	if frozen.IsCurrent != nil && *frozen.IsCurrent {
		t.Fatal("old version must no longer be current")
	}
	assertDec(t, "bread v1 total_cost stays frozen", frozen.TotalCost, "15.2784")

	// Items on a current recipe refuse deletion.
	if _, err := models.SoftDeleteInventoryItem(ctx, flour.ID); err == nil {
		t.Fatal("expected referential conflict deleting an item in use")
	}

	versions, err := models.ListRecipeVersions(ctx, v2.ID)
	if err != nil {
		t.Fatalf("ListRecipeVersions: %v", err)
	}
	if len(versions) != 2 {
		t.Fatalf("expected 2 versions in lineage, got %d", len(versions))
	}
}

func mustDec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad decimal literal %q: %v", s, err)
	}
	return d
}

func assertDec(t *testing.T, label string, got decimal.Decimal, expected string) {
	t.Helper()
	want := mustDec(t, expected)
	if got.Cmp(want) != 0 {
		t.Fatalf("%s expected %s, got %s", label, expected, got.String())
	}
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("recipes-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "redis-cli", "ping")
		if err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("recipes-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=recipes_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	// Example: "127.0.0.1:49154\n"
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
