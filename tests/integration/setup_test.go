package integration

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/ersoyb/go-storefront/internal/database"
	"github.com/ersoyb/go-storefront/internal/models"
	"github.com/ersoyb/go-storefront/internal/store"
)

func setupTestDB(t *testing.T) (*sql.DB, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "testuser",
			"POSTGRES_PASSWORD": "testpass",
			"POSTGRES_DB":       "storefront_test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	postgres, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start postgres container: %v", err)
	}

	host, err := postgres.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := postgres.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	dsn := fmt.Sprintf("postgres://testuser:testpass@%s:%s/storefront_test?sslmode=disable", host, port.Port())

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("Failed to connect to database: %v", err)
	}

	if err := db.Ping(); err != nil {
		t.Fatalf("Failed to ping database: %v", err)
	}

	if err := runMigrations(db); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	cleanup := func() {
		if err := db.Close(); err != nil {
			t.Logf("Failed to close database: %v", err)
		}
		if err := postgres.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate container: %v", err)
		}
	}

	return db, cleanup
}

func runMigrations(db *sql.DB) error {
	migrationDir := "../../migrations"
	files, err := os.ReadDir(migrationDir)
	if err != nil {
		return fmt.Errorf("read migration directory: %w", err)
	}

	var migrationFiles []string
	for _, file := range files {
		if !file.IsDir() && strings.HasSuffix(file.Name(), ".up.sql") {
			migrationFiles = append(migrationFiles, file.Name())
		}
	}

	sort.Strings(migrationFiles)

	for _, filename := range migrationFiles {
		content, err := os.ReadFile(filepath.Join(migrationDir, filename))
		if err != nil {
			return fmt.Errorf("read migration file %s: %w", filename, err)
		}

		if _, err := db.Exec(string(content)); err != nil {
			return fmt.Errorf("execute migration %s: %w", filename, err)
		}
	}

	return nil
}

// catalog is the shared fixture: one product with Color and Size option
// types, two values each, and two in-stock variants.
type catalog struct {
	product  *models.Product
	color    *models.OptionType
	size     *models.OptionType
	red      *models.OptionValue
	blue     *models.OptionValue
	small    *models.OptionValue
	medium   *models.OptionValue
	redSmall *models.Variant
	blueMed  *models.Variant
}

func setupCatalog(t *testing.T, db *sql.DB) *catalog {
	t.Helper()
	ctx := context.Background()

	c := &catalog{}
	var err error

	c.product, err = store.CreateProduct(ctx, db, "T-Shirt", "Plain cotton tee")
	if err != nil {
		t.Fatalf("Create product: %v", err)
	}

	c.color, err = store.CreateOptionType(ctx, db, "color", "Color")
	if err != nil {
		t.Fatalf("Create color option type: %v", err)
	}
	c.size, err = store.CreateOptionType(ctx, db, "size", "Size")
	if err != nil {
		t.Fatalf("Create size option type: %v", err)
	}

	c.red = mustCreateValue(t, db, c.color.ID, "Red", 1)
	c.blue = mustCreateValue(t, db, c.color.ID, "Blue", 2)
	c.small = mustCreateValue(t, db, c.size.ID, "S", 1)
	c.medium = mustCreateValue(t, db, c.size.ID, "M", 2)

	result, err := store.SyncOptionTypes(ctx, db, database.NewLocker(false), c.product.ID,
		[]int64{c.color.ID, c.size.ID})
	if err != nil {
		t.Fatalf("Assign option types: %v", err)
	}
	if result.Action != store.SyncActionAdded {
		t.Fatalf("Expected added action for initial assignment, got %s", result.Action)
	}

	c.redSmall = mustCreateVariant(t, db, store.CreateVariantRequest{
		ProductID:      c.product.ID,
		SKU:            "TEE-RED-S",
		Price:          decimal.RequireFromString("100.00"),
		VATRate:        decimal.RequireFromString("19"),
		StockQuantity:  10,
		OptionValueIDs: []int64{c.red.ID, c.small.ID},
	})
	c.blueMed = mustCreateVariant(t, db, store.CreateVariantRequest{
		ProductID:      c.product.ID,
		SKU:            "TEE-BLUE-M",
		Price:          decimal.RequireFromString("50.00"),
		VATRate:        decimal.RequireFromString("19"),
		StockQuantity:  5,
		OptionValueIDs: []int64{c.blue.ID, c.medium.ID},
	})

	return c
}

func mustCreateValue(t *testing.T, db *sql.DB, optionTypeID int64, value string, position int) *models.OptionValue {
	t.Helper()
	ov, err := store.CreateOptionValue(context.Background(), db, optionTypeID, value, position)
	if err != nil {
		t.Fatalf("Create option value %s: %v", value, err)
	}
	return ov
}

func mustCreateVariant(t *testing.T, db *sql.DB, req store.CreateVariantRequest) *models.Variant {
	t.Helper()
	variant, err := store.CreateVariant(context.Background(), db, req)
	if err != nil {
		t.Fatalf("Create variant %s: %v", req.SKU, err)
	}
	return variant
}

func mustCreateOrder(t *testing.T, db *sql.DB, lines ...store.OrderLineRequest) *models.Order {
	t.Helper()
	order, err := store.CreateOrder(context.Background(), db, store.CreateOrderRequest{
		CustomerName:  "Test Customer",
		CustomerEmail: "test@example.com",
		Lines:         lines,
	})
	if err != nil {
		t.Fatalf("Create order: %v", err)
	}
	return order
}

func variantLine(variantID int64, quantity int) store.OrderLineRequest {
	return store.OrderLineRequest{VariantID: &variantID, Quantity: quantity}
}

func chargeLine(description string, price string, quantity int) store.OrderLineRequest {
	p := decimal.RequireFromString(price)
	return store.OrderLineRequest{Description: description, Quantity: quantity, UnitPrice: &p}
}

func getStock(t *testing.T, db *sql.DB, variantID int64) int {
	t.Helper()
	variant, err := store.GetVariant(context.Background(), db, variantID)
	if err != nil {
		t.Fatalf("Get variant %d: %v", variantID, err)
	}
	return variant.StockQuantity
}
