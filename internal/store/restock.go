package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/ersoyb/go-storefront/internal/database"
	"github.com/ersoyb/go-storefront/internal/models"
)

type RestockResult struct {
	Order          *models.Order `json:"order"`
	RestockedLines int           `json:"restocked_lines"`
}

// RestockOrder returns the stock an order consumed at finalization. Only
// cancelled and refunded orders qualify; the guard runs on a plain read
// before any transaction is opened, so calling this on any other status is a
// safe no-op failure with zero mutation. That makes the operation cheap to
// invoke speculatively or more than once.
//
// Lines whose variant has been deleted since placement are skipped without
// failing the call; the counterpart guard in FinalizeOrder treats the same
// situation as an error. The asymmetry is deliberate: a vanished variant
// must block a sale but must never block returning stock that does exist.
func RestockOrder(ctx context.Context, db *sql.DB, lk *database.Locker, orderID int64) (*RestockResult, error) {
	status, err := GetOrderStatus(ctx, db, orderID)
	if err != nil {
		return nil, err
	}
	if status != models.OrderStatusCancelled && status != models.OrderStatusRefunded {
		return nil, fmt.Errorf("order %d has status %q: %w",
			orderID, status, database.ErrOrderNotRestockable)
	}

	restocked := 0

	err = database.WithRetry(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		lk.Reset()
		restocked = 0

		if _, err := lockOrder(ctx, tx, lk, orderID); err != nil {
			return err
		}

		lines, err := lockOrderLines(ctx, tx, lk, orderID)
		if err != nil {
			return err
		}

		// One batch lock over the distinct variant set, ascending, instead
		// of a round trip per line.
		variants, err := lockVariants(ctx, tx, lk, distinctVariantIDs(lines))
		if err != nil {
			return err
		}

		for _, line := range lines {
			if line.VariantID == nil {
				continue
			}
			if _, ok := variants[*line.VariantID]; !ok {
				continue
			}

			incremented, err := rawIncrementStock(ctx, tx, *line.VariantID, line.Quantity)
			if err != nil {
				return err
			}
			if incremented {
				restocked++
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	order, err := GetOrder(ctx, db, orderID)
	if err != nil {
		return nil, err
	}

	log.Info().Int64("order_id", orderID).Int("restocked_lines", restocked).Msg("order restocked")

	return &RestockResult{Order: order, RestockedLines: restocked}, nil
}
