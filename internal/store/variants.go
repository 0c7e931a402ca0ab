package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/ersoyb/go-storefront/internal/database"
	"github.com/ersoyb/go-storefront/internal/models"
)

type CreateVariantRequest struct {
	ProductID      int64
	SKU            string
	Price          decimal.Decimal
	VATRate        decimal.Decimal
	StockQuantity  int
	OptionValueIDs []int64
}

func CreateVariant(ctx context.Context, db *sql.DB, req CreateVariantRequest) (*models.Variant, error) {
	variant := &models.Variant{}
	fingerprint := OptionsFingerprint(req.ProductID, req.OptionValueIDs)

	err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		query := `
			INSERT INTO variants (product_id, sku, price, vat_rate, stock_quantity, active, options_fingerprint, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, TRUE, $6, NOW(), NOW())
			RETURNING id, product_id, sku, price, vat_rate, stock_quantity, active, options_fingerprint, created_at, updated_at`

		err := tx.QueryRowContext(ctx, query,
			req.ProductID, req.SKU, req.Price, req.VATRate, req.StockQuantity, fingerprint).Scan(
			&variant.ID,
			&variant.ProductID,
			&variant.SKU,
			&variant.Price,
			&variant.VATRate,
			&variant.StockQuantity,
			&variant.Active,
			&variant.OptionsFingerprint,
			&variant.CreatedAt,
			&variant.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("create variant: %w", err)
		}

		for _, valueID := range req.OptionValueIDs {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO variant_option_values (variant_id, option_value_id) VALUES ($1, $2)`,
				variant.ID, valueID)
			if err != nil {
				return fmt.Errorf("link option value %d: %w", valueID, err)
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	variant.OptionValueIDs = req.OptionValueIDs
	return variant, nil
}

func GetVariant(ctx context.Context, db *sql.DB, id int64) (*models.Variant, error) {
	variant := &models.Variant{}

	query := `
		SELECT id, product_id, sku, price, vat_rate, stock_quantity, active, options_fingerprint, created_at, updated_at
		FROM variants
		WHERE id = $1`

	err := db.QueryRowContext(ctx, query, id).Scan(
		&variant.ID,
		&variant.ProductID,
		&variant.SKU,
		&variant.Price,
		&variant.VATRate,
		&variant.StockQuantity,
		&variant.Active,
		&variant.OptionsFingerprint,
		&variant.CreatedAt,
		&variant.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrVariantNotFound
		}
		return nil, fmt.Errorf("get variant: %w", err)
	}

	rows, err := db.QueryContext(ctx,
		`SELECT option_value_id FROM variant_option_values WHERE variant_id = $1 ORDER BY option_value_id`,
		id)
	if err != nil {
		return nil, fmt.Errorf("get variant option values: %w", err)
	}
	defer rows.Close()

	variant.OptionValueIDs, err = scanIDs(rows)
	if err != nil {
		return nil, err
	}

	return variant, nil
}

func DeleteVariant(ctx context.Context, db *sql.DB, id int64) error {
	result, err := db.ExecContext(ctx, `DELETE FROM variants WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete variant: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return database.ErrVariantNotFound
	}

	return nil
}

// lockedVariant is what the services see after taking a variant row lock:
// identity for the snapshot plus the two fields any of them may mutate.
type lockedVariant struct {
	ID            int64
	SKU           string
	VATRate       decimal.Decimal
	Price         decimal.Decimal
	StockQuantity int
	Active        bool
}

// lockVariants batch-locks the given variant rows. ids must be ascending and
// deduplicated; the rows come back in that same order, which keeps the
// global Order -> Line -> Variant discipline. Missing ids are simply absent
// from the result map; the caller decides whether that is fatal.
func lockVariants(ctx context.Context, tx *sql.Tx, lk *database.Locker, ids []int64) (map[int64]*lockedVariant, error) {
	if len(ids) == 0 {
		return map[int64]*lockedVariant{}, nil
	}

	if err := lk.Acquire(ctx, tx, database.LockVariant, ids...); err != nil {
		return nil, err
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT id, sku, vat_rate, price, stock_quantity, active
		 FROM variants
		 WHERE id = ANY($1)
		 ORDER BY id
		 FOR UPDATE`,
		pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("lock variants: %w", err)
	}
	defer rows.Close()

	locked := make(map[int64]*lockedVariant)
	for rows.Next() {
		v := &lockedVariant{}
		err := rows.Scan(&v.ID, &v.SKU, &v.VATRate, &v.Price, &v.StockQuantity, &v.Active)
		if err != nil {
			return nil, fmt.Errorf("scan locked variant: %w", err)
		}
		locked[v.ID] = v
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return locked, nil
}

// rawDecrementStock writes the stock column directly, with the non-negative
// guard repeated in SQL as a backstop to the in-memory check.
func rawDecrementStock(ctx context.Context, tx *sql.Tx, variantID int64, quantity int) error {
	result, err := tx.ExecContext(ctx,
		`UPDATE variants
		 SET stock_quantity = stock_quantity - $1,
		     updated_at = NOW()
		 WHERE id = $2
		   AND stock_quantity >= $1`,
		quantity, variantID)
	if err != nil {
		return fmt.Errorf("decrement stock: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return database.ErrInsufficientStock
	}

	return nil
}

func rawIncrementStock(ctx context.Context, tx *sql.Tx, variantID int64, quantity int) (bool, error) {
	result, err := tx.ExecContext(ctx,
		`UPDATE variants
		 SET stock_quantity = stock_quantity + $1,
		     updated_at = NOW()
		 WHERE id = $2`,
		quantity, variantID)
	if err != nil {
		return false, fmt.Errorf("increment stock: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

func rawDeactivateVariants(ctx context.Context, tx *sql.Tx, ids []int64) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE variants SET active = FALSE, updated_at = NOW() WHERE id = ANY($1)`,
		pq.Array(ids))
	if err != nil {
		return fmt.Errorf("deactivate variants: %w", err)
	}
	return nil
}

func rawSetFingerprint(ctx context.Context, tx *sql.Tx, variantID int64, fingerprint string) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE variants SET options_fingerprint = $1, updated_at = NOW() WHERE id = $2`,
		fingerprint, variantID)
	if err != nil {
		return fmt.Errorf("set fingerprint for variant %d: %w", variantID, err)
	}
	return nil
}

// variantOptionsText renders the human-readable option description that gets
// frozen onto the order line, e.g. "Color: Red, Size: M", following the
// product's option type positions.
func variantOptionsText(ctx context.Context, tx *sql.Tx, variantID int64) (string, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT ot.presentation, ov.value
		 FROM variant_option_values vov
		 JOIN option_values ov ON ov.id = vov.option_value_id
		 JOIN option_types ot ON ot.id = ov.option_type_id
		 JOIN variants v ON v.id = vov.variant_id
		 LEFT JOIN product_option_types pot
		   ON pot.product_id = v.product_id AND pot.option_type_id = ot.id
		 WHERE vov.variant_id = $1
		 ORDER BY COALESCE(pot.position, 2147483647), ot.id`,
		variantID)
	if err != nil {
		return "", fmt.Errorf("variant options text: %w", err)
	}
	defer rows.Close()

	var parts []string
	for rows.Next() {
		var presentation, value string
		if err := rows.Scan(&presentation, &value); err != nil {
			return "", fmt.Errorf("scan option text: %w", err)
		}
		parts = append(parts, presentation+": "+value)
	}

	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("rows error: %w", err)
	}

	return strings.Join(parts, ", "), nil
}

// variantOptionValueIDs loads the selected value ids of a variant inside the
// current transaction, for fingerprint re-derivation.
func variantOptionValueIDs(ctx context.Context, tx *sql.Tx, variantID int64) ([]int64, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT option_value_id FROM variant_option_values WHERE variant_id = $1 ORDER BY option_value_id`,
		variantID)
	if err != nil {
		return nil, fmt.Errorf("variant option values: %w", err)
	}
	defer rows.Close()

	return scanIDs(rows)
}
