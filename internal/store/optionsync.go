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

type SyncAction string

const (
	SyncActionAdded     SyncAction = "added"
	SyncActionRemoved   SyncAction = "removed"
	SyncActionReplaced  SyncAction = "replaced"
	SyncActionUnchanged SyncAction = "unchanged"
)

type SyncResult struct {
	Product          *models.Product `json:"product"`
	Action           SyncAction      `json:"action"`
	AddedIDs         []int64         `json:"added_ids"`
	RemovedIDs       []int64         `json:"removed_ids"`
	DeactivatedCount int             `json:"deactivated_count"`
}

// SyncOptionTypes reconciles a product's assigned option types with the
// desired set. Removing a type deactivates every active variant that selects
// one of its values — a variant must not stay sellable once it can no longer
// express a required option dimension — and triggers a full fingerprint
// re-derivation for the variants that stay active, since the valid
// fingerprint inputs changed.
//
// Unlike FinalizeOrder this service catches no domain conditions: a
// constraint violation (e.g. two variants collapsing onto one fingerprint)
// aborts the transaction and comes back as a fatal error, because swallowing
// it would mask data corruption.
func SyncOptionTypes(ctx context.Context, db *sql.DB, lk *database.Locker, productID int64, desiredOptionTypeIDs []int64) (*SyncResult, error) {
	desired := dedupIDs(desiredOptionTypeIDs)

	var (
		added, removed []int64
		deactivated    int
	)

	err := database.WithRetry(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		lk.Reset()
		deactivated = 0

		if err := lockProduct(ctx, tx, lk, productID); err != nil {
			return err
		}

		current, err := productOptionTypeIDsTx(ctx, tx, productID)
		if err != nil {
			return err
		}

		added = diffIDs(desired, current)
		removed = diffIDs(current, desired)

		if len(added) == 0 && len(removed) == 0 {
			return nil
		}

		// Variants that stay active get their fingerprint rewritten below,
		// so the whole active set is locked up front in one ascending
		// batch; the deactivation targets are a subset of it.
		var activeIDs, deactivateIDs []int64
		if len(removed) > 0 {
			valueIDs, err := optionValueIDsForTypes(ctx, tx, removed)
			if err != nil {
				return err
			}

			if len(valueIDs) > 0 {
				deactivateIDs, err = activeVariantIDsUsingValues(ctx, tx, productID, valueIDs)
				if err != nil {
					return err
				}
			}

			activeIDs, err = activeVariantIDs(ctx, tx, productID)
			if err != nil {
				return err
			}

			if _, err := lockVariants(ctx, tx, lk, activeIDs); err != nil {
				return err
			}

			if len(deactivateIDs) > 0 {
				if err := rawDeactivateVariants(ctx, tx, deactivateIDs); err != nil {
					return err
				}
				deactivated = len(deactivateIDs)
			}
		}

		if len(removed) > 0 {
			if err := deleteProductOptionTypes(ctx, tx, productID, removed); err != nil {
				return err
			}
		}
		if len(added) > 0 {
			maxPos, err := maxOptionTypePosition(ctx, tx, productID)
			if err != nil {
				return err
			}
			if err := insertProductOptionTypes(ctx, tx, productID, added, maxPos); err != nil {
				return err
			}
		}

		if len(removed) > 0 {
			deactivatedSet := make(map[int64]bool, len(deactivateIDs))
			for _, id := range deactivateIDs {
				deactivatedSet[id] = true
			}

			for _, variantID := range activeIDs {
				if deactivatedSet[variantID] {
					continue
				}

				valueIDs, err := assignedOptionValueIDs(ctx, tx, variantID)
				if err != nil {
					return err
				}
				if err := rawSetFingerprint(ctx, tx, variantID, OptionsFingerprint(productID, valueIDs)); err != nil {
					return err
				}
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	product, err := GetProduct(ctx, db, productID)
	if err != nil {
		return nil, err
	}

	action := classifySync(added, removed)
	log.Info().
		Int64("product_id", productID).
		Str("action", string(action)).
		Ints64("added", added).
		Ints64("removed", removed).
		Int("deactivated", deactivated).
		Msg("product option types synchronized")

	return &SyncResult{
		Product:          product,
		Action:           action,
		AddedIDs:         added,
		RemovedIDs:       removed,
		DeactivatedCount: deactivated,
	}, nil
}

// classifySync names the net effect of a synchronization.
func classifySync(added, removed []int64) SyncAction {
	switch {
	case len(added) > 0 && len(removed) > 0:
		return SyncActionReplaced
	case len(added) > 0:
		return SyncActionAdded
	case len(removed) > 0:
		return SyncActionRemoved
	}
	return SyncActionUnchanged
}

// activeVariantIDs lists a product's active variants ascending by id.
func activeVariantIDs(ctx context.Context, tx *sql.Tx, productID int64) ([]int64, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT id FROM variants WHERE product_id = $1 AND active ORDER BY id`,
		productID)
	if err != nil {
		return nil, fmt.Errorf("active variants: %w", err)
	}
	defer rows.Close()

	return scanIDs(rows)
}

// assignedOptionValueIDs returns the variant's selected option values
// restricted to option types currently assigned to its product. Values of a
// removed type stay linked to the variant but no longer count as fingerprint
// input.
func assignedOptionValueIDs(ctx context.Context, tx *sql.Tx, variantID int64) ([]int64, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT vov.option_value_id
		 FROM variant_option_values vov
		 JOIN option_values ov ON ov.id = vov.option_value_id
		 JOIN variants v ON v.id = vov.variant_id
		 JOIN product_option_types pot
		   ON pot.product_id = v.product_id AND pot.option_type_id = ov.option_type_id
		 WHERE vov.variant_id = $1
		 ORDER BY vov.option_value_id`,
		variantID)
	if err != nil {
		return nil, fmt.Errorf("assigned option values: %w", err)
	}
	defer rows.Close()

	return scanIDs(rows)
}

func dedupIDs(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	var out []int64
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// diffIDs returns the elements of a that are not in b, ascending.
func diffIDs(a, b []int64) []int64 {
	inB := make(map[int64]bool, len(b))
	for _, id := range b {
		inB[id] = true
	}

	var out []int64
	for _, id := range a {
		if !inB[id] {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
