package integration

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/ersoyb/go-storefront/internal/database"
	"github.com/ersoyb/go-storefront/internal/store"
)

func TestSyncOptionTypesRemoveDeactivatesVariants(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	c := setupCatalog(t, db)

	// Both fixture variants select a Color value, so dropping Color must
	// pull both off sale.
	result, err := store.SyncOptionTypes(ctx, db, database.NewLocker(false), c.product.ID,
		[]int64{c.size.ID})
	if err != nil {
		t.Fatalf("Sync option types: %v", err)
	}

	if result.Action != store.SyncActionRemoved {
		t.Errorf("Expected action removed, got %s", result.Action)
	}
	if result.DeactivatedCount != 2 {
		t.Errorf("Expected 2 deactivated variants, got %d", result.DeactivatedCount)
	}
	if len(result.RemovedIDs) != 1 || result.RemovedIDs[0] != c.color.ID {
		t.Errorf("Expected removed ids [%d], got %v", c.color.ID, result.RemovedIDs)
	}

	for _, variantID := range []int64{c.redSmall.ID, c.blueMed.ID} {
		variant, err := store.GetVariant(ctx, db, variantID)
		if err != nil {
			t.Fatalf("Get variant %d: %v", variantID, err)
		}
		if variant.Active {
			t.Errorf("Variant %d should be inactive after losing its Color dimension", variantID)
		}
	}

	remaining, err := store.GetProductOptionTypeIDs(ctx, db, c.product.ID)
	if err != nil {
		t.Fatalf("Get product option types: %v", err)
	}
	if len(remaining) != 1 || remaining[0] != c.size.ID {
		t.Errorf("Expected remaining option types [%d], got %v", c.size.ID, remaining)
	}
}

func TestSyncOptionTypesClassification(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	c := setupCatalog(t, db)

	material, err := store.CreateOptionType(ctx, db, "material", "Material")
	if err != nil {
		t.Fatalf("Create option type: %v", err)
	}

	// Identical set: no mutation at all.
	result, err := store.SyncOptionTypes(ctx, db, database.NewLocker(false), c.product.ID,
		[]int64{c.size.ID, c.color.ID})
	if err != nil {
		t.Fatalf("Sync unchanged: %v", err)
	}
	if result.Action != store.SyncActionUnchanged {
		t.Errorf("Expected unchanged, got %s", result.Action)
	}
	if result.DeactivatedCount != 0 || len(result.AddedIDs) != 0 || len(result.RemovedIDs) != 0 {
		t.Errorf("Unchanged sync must report zero mutation, got %+v", result)
	}

	// Duplicate ids in the request collapse before the diff.
	result, err = store.SyncOptionTypes(ctx, db, database.NewLocker(false), c.product.ID,
		[]int64{c.color.ID, c.size.ID, c.color.ID})
	if err != nil {
		t.Fatalf("Sync with duplicates: %v", err)
	}
	if result.Action != store.SyncActionUnchanged {
		t.Errorf("Expected unchanged with duplicated ids, got %s", result.Action)
	}

	// Swap color for material: both sides non-empty.
	result, err = store.SyncOptionTypes(ctx, db, database.NewLocker(false), c.product.ID,
		[]int64{c.size.ID, material.ID})
	if err != nil {
		t.Fatalf("Sync replaced: %v", err)
	}
	if result.Action != store.SyncActionReplaced {
		t.Errorf("Expected replaced, got %s", result.Action)
	}
	if len(result.AddedIDs) != 1 || result.AddedIDs[0] != material.ID {
		t.Errorf("Expected added [%d], got %v", material.ID, result.AddedIDs)
	}
}

func TestSyncOptionTypesPositionsContinue(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	c := setupCatalog(t, db)

	material, err := store.CreateOptionType(ctx, db, "material", "Material")
	if err != nil {
		t.Fatalf("Create option type: %v", err)
	}

	if _, err := store.SyncOptionTypes(ctx, db, database.NewLocker(false), c.product.ID,
		[]int64{c.color.ID, c.size.ID, material.ID}); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	var position int
	err = db.QueryRow(
		`SELECT position FROM product_option_types WHERE product_id = $1 AND option_type_id = $2`,
		c.product.ID, material.ID).Scan(&position)
	if err != nil {
		t.Fatalf("Read position: %v", err)
	}
	if position != 3 {
		t.Errorf("Expected new association at position 3, got %d", position)
	}
}

func TestSyncOptionTypesRecomputesFingerprints(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	c := setupCatalog(t, db)

	// A variant selecting only a Size value survives the removal of Color
	// and must carry a fingerprint derived from the remaining dimension.
	sizeOnly := mustCreateVariant(t, db, store.CreateVariantRequest{
		ProductID:      c.product.ID,
		SKU:            "TEE-ANY-M",
		Price:          decimal.RequireFromString("40.00"),
		VATRate:        decimal.RequireFromString("19"),
		StockQuantity:  3,
		OptionValueIDs: []int64{c.medium.ID},
	})

	// Scribble over the stored fingerprint so the full re-derivation is
	// observable, not just a no-op rewrite of the same digest.
	if _, err := db.Exec(`UPDATE variants SET options_fingerprint = 'stale' WHERE id = $1`, sizeOnly.ID); err != nil {
		t.Fatalf("Corrupt fingerprint: %v", err)
	}

	result, err := store.SyncOptionTypes(ctx, db, database.NewLocker(false), c.product.ID,
		[]int64{c.size.ID})
	if err != nil {
		t.Fatalf("Sync option types: %v", err)
	}
	if result.DeactivatedCount != 2 {
		t.Errorf("Expected 2 deactivated (the Color-bearing pair), got %d", result.DeactivatedCount)
	}

	after, err := store.GetVariant(ctx, db, sizeOnly.ID)
	if err != nil {
		t.Fatalf("Get variant: %v", err)
	}
	if !after.Active {
		t.Error("Size-only variant should stay active")
	}

	want := store.OptionsFingerprint(c.product.ID, []int64{c.medium.ID})
	if after.OptionsFingerprint != want {
		t.Errorf("Expected recomputed fingerprint %s, got %s", want, after.OptionsFingerprint)
	}
}

func TestSyncOptionTypesUnknownProduct(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	_, err := store.SyncOptionTypes(context.Background(), db, database.NewLocker(false), 99999, []int64{1})
	if err == nil {
		t.Fatal("Expected error for unknown product")
	}
}
