package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/ersoyb/go-storefront/internal/database"
	"github.com/ersoyb/go-storefront/internal/models"
)

type FinalizeResult struct {
	Order *models.Order `json:"order"`
}

// FinalizeOrder converts a pending order into a paid one: inside a single
// transaction it locks the order row, then every order line in ascending id
// order, then every referenced variant in ascending id order. Each product
// line is guarded (variant exists, is active, has enough stock), gets the
// immutable variant snapshot written onto it, and decrements stock through a
// direct column write. The order status flips to paid last.
//
// Any guard failure rolls the whole transaction back: no partial stock
// decrement or snapshot is ever observable. Guard failures come back as
// sentinel errors satisfying database.IsDomainFailure; anything else is
// infrastructure and should be treated as fatal.
func FinalizeOrder(ctx context.Context, db *sql.DB, lk *database.Locker, orderID int64) (*FinalizeResult, error) {
	err := database.WithRetry(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		lk.Reset()

		status, err := lockOrder(ctx, tx, lk, orderID)
		if err != nil {
			return err
		}
		// Snapshots are write-once; finalizing anything but a pending order
		// would rewrite them and decrement stock a second time.
		if status != models.OrderStatusPending {
			return fmt.Errorf("order %d is %s: %w", orderID, status, database.ErrOrderNotPending)
		}

		lines, err := lockOrderLines(ctx, tx, lk, orderID)
		if err != nil {
			return err
		}

		variants, err := lockVariants(ctx, tx, lk, distinctVariantIDs(lines))
		if err != nil {
			return err
		}

		for _, line := range lines {
			// Lines without a variant are non-stock charges; they are
			// never guarded and never snapshotted.
			if line.VariantID == nil {
				continue
			}

			variant, ok := variants[*line.VariantID]
			if !ok {
				return fmt.Errorf("line %d references variant %d: %w",
					line.ID, *line.VariantID, database.ErrVariantNotFound)
			}
			if !variant.Active {
				return fmt.Errorf("line %d, variant %s: %w",
					line.ID, variant.SKU, database.ErrVariantInactive)
			}
			if variant.StockQuantity < line.Quantity {
				return fmt.Errorf("line %d wants %d of %s, %d available: %w",
					line.ID, line.Quantity, variant.SKU, variant.StockQuantity,
					database.ErrInsufficientStock)
			}

			optionsText, err := variantOptionsText(ctx, tx, variant.ID)
			if err != nil {
				return err
			}

			gross := GrossLineTotal(line.UnitPrice, line.Quantity)
			tax := VATIncludedTax(gross, variant.VATRate)

			if err := writeLineSnapshot(ctx, tx, line.ID, variant.SKU, optionsText, variant.VATRate, gross, tax); err != nil {
				return err
			}
			if err := rawDecrementStock(ctx, tx, variant.ID, line.Quantity); err != nil {
				return err
			}

			// Track in memory so a later line against the same variant is
			// guarded against the already-decremented count.
			variant.StockQuantity -= line.Quantity
		}

		return rawSetOrderStatus(ctx, tx, orderID, models.OrderStatusPaid)
	})
	if err != nil {
		if database.IsDomainFailure(err) {
			log.Warn().Err(err).Int64("order_id", orderID).Msg("order finalization rejected")
		}
		return nil, err
	}

	order, err := GetOrder(ctx, db, orderID)
	if err != nil {
		return nil, err
	}

	log.Info().Int64("order_id", orderID).Int("lines", len(order.Lines)).Msg("order finalized")

	return &FinalizeResult{Order: order}, nil
}

// distinctVariantIDs collects the variant references of the given lines,
// deduplicated and ascending, ready for batch locking.
func distinctVariantIDs(lines []models.OrderLine) []int64 {
	seen := make(map[int64]bool)
	var ids []int64
	for _, line := range lines {
		if line.VariantID == nil || seen[*line.VariantID] {
			continue
		}
		seen[*line.VariantID] = true
		ids = append(ids, *line.VariantID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
