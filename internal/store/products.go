package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/ersoyb/go-storefront/internal/database"
	"github.com/ersoyb/go-storefront/internal/models"
)

func CreateProduct(ctx context.Context, db *sql.DB, name, description string) (*models.Product, error) {
	product := &models.Product{}

	query := `
		INSERT INTO products (name, description, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		RETURNING id, name, description, created_at, updated_at`

	err := db.QueryRowContext(ctx, query, name, description).Scan(
		&product.ID,
		&product.Name,
		&product.Description,
		&product.CreatedAt,
		&product.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}

	return product, nil
}

func GetProduct(ctx context.Context, db *sql.DB, id int64) (*models.Product, error) {
	product := &models.Product{}

	query := `
		SELECT id, name, description, created_at, updated_at
		FROM products
		WHERE id = $1`

	err := db.QueryRowContext(ctx, query, id).Scan(
		&product.ID,
		&product.Name,
		&product.Description,
		&product.CreatedAt,
		&product.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrProductNotFound
		}
		return nil, fmt.Errorf("get product: %w", err)
	}

	return product, nil
}

func ListProducts(ctx context.Context, db *sql.DB, page, pageSize int) (*OffsetPage, error) {
	var total int64
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM products`).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("count products: %w", err)
	}

	offset := (page - 1) * pageSize
	query := `
		SELECT id, name, description, created_at, updated_at
		FROM products
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`

	rows, err := db.QueryContext(ctx, query, pageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var products []models.Product
	for rows.Next() {
		var product models.Product
		err := rows.Scan(
			&product.ID,
			&product.Name,
			&product.Description,
			&product.CreatedAt,
			&product.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, product)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	totalPages := int(total) / pageSize
	if int(total)%pageSize > 0 {
		totalPages++
	}

	return &OffsetPage{
		Items:      products,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	}, nil
}

func CreateOptionType(ctx context.Context, db *sql.DB, name, presentation string) (*models.OptionType, error) {
	ot := &models.OptionType{}

	query := `
		INSERT INTO option_types (name, presentation, created_at)
		VALUES ($1, $2, NOW())
		RETURNING id, name, presentation, created_at`

	err := db.QueryRowContext(ctx, query, name, presentation).Scan(
		&ot.ID,
		&ot.Name,
		&ot.Presentation,
		&ot.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create option type: %w", err)
	}

	return ot, nil
}

func CreateOptionValue(ctx context.Context, db *sql.DB, optionTypeID int64, value string, position int) (*models.OptionValue, error) {
	ov := &models.OptionValue{}

	query := `
		INSERT INTO option_values (option_type_id, value, position)
		VALUES ($1, $2, $3)
		RETURNING id, option_type_id, value, position`

	err := db.QueryRowContext(ctx, query, optionTypeID, value, position).Scan(
		&ov.ID,
		&ov.OptionTypeID,
		&ov.Value,
		&ov.Position,
	)
	if err != nil {
		return nil, fmt.Errorf("create option value: %w", err)
	}

	return ov, nil
}

// GetProductOptionTypeIDs returns the option types currently assigned to a
// product, in position order.
func GetProductOptionTypeIDs(ctx context.Context, db *sql.DB, productID int64) ([]int64, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT option_type_id FROM product_option_types WHERE product_id = $1 ORDER BY position`,
		productID)
	if err != nil {
		return nil, fmt.Errorf("get product option types: %w", err)
	}
	defer rows.Close()

	return scanIDs(rows)
}

// lockProduct takes the exclusive lock on the product row. Product-level
// lock strictly precedes any variant lock it cascades into.
func lockProduct(ctx context.Context, tx *sql.Tx, lk *database.Locker, productID int64) error {
	if err := lk.Acquire(ctx, tx, database.LockProduct, productID); err != nil {
		return err
	}

	var id int64
	err := tx.QueryRowContext(ctx,
		`SELECT id FROM products WHERE id = $1 FOR UPDATE`,
		productID).Scan(&id)
	if err != nil {
		if err == sql.ErrNoRows {
			return database.ErrProductNotFound
		}
		return fmt.Errorf("lock product %d: %w", productID, err)
	}

	return nil
}

func productOptionTypeIDsTx(ctx context.Context, tx *sql.Tx, productID int64) ([]int64, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT option_type_id FROM product_option_types WHERE product_id = $1 ORDER BY position`,
		productID)
	if err != nil {
		return nil, fmt.Errorf("product option types: %w", err)
	}
	defer rows.Close()

	return scanIDs(rows)
}

func optionValueIDsForTypes(ctx context.Context, tx *sql.Tx, optionTypeIDs []int64) ([]int64, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT id FROM option_values WHERE option_type_id = ANY($1) ORDER BY id`,
		pq.Array(optionTypeIDs))
	if err != nil {
		return nil, fmt.Errorf("option values for types: %w", err)
	}
	defer rows.Close()

	return scanIDs(rows)
}

// activeVariantIDsUsingValues finds the active variants of a product that
// select any of the given option values, ascending by id so they can be
// locked in the mandated order.
func activeVariantIDsUsingValues(ctx context.Context, tx *sql.Tx, productID int64, optionValueIDs []int64) ([]int64, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT DISTINCT v.id
		 FROM variants v
		 JOIN variant_option_values vov ON vov.variant_id = v.id
		 WHERE v.product_id = $1
		   AND v.active
		   AND vov.option_value_id = ANY($2)
		 ORDER BY v.id`,
		productID, pq.Array(optionValueIDs))
	if err != nil {
		return nil, fmt.Errorf("active variants using values: %w", err)
	}
	defer rows.Close()

	return scanIDs(rows)
}

func maxOptionTypePosition(ctx context.Context, tx *sql.Tx, productID int64) (int, error) {
	var max int
	err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(position), 0) FROM product_option_types WHERE product_id = $1`,
		productID).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("max option type position: %w", err)
	}
	return max, nil
}

func deleteProductOptionTypes(ctx context.Context, tx *sql.Tx, productID int64, optionTypeIDs []int64) error {
	_, err := tx.ExecContext(ctx,
		`DELETE FROM product_option_types WHERE product_id = $1 AND option_type_id = ANY($2)`,
		productID, pq.Array(optionTypeIDs))
	if err != nil {
		return fmt.Errorf("delete product option types: %w", err)
	}
	return nil
}

func insertProductOptionTypes(ctx context.Context, tx *sql.Tx, productID int64, optionTypeIDs []int64, startPosition int) error {
	position := startPosition
	for _, id := range optionTypeIDs {
		position++
		_, err := tx.ExecContext(ctx,
			`INSERT INTO product_option_types (product_id, option_type_id, position)
			 VALUES ($1, $2, $3)`,
			productID, id, position)
		if err != nil {
			return fmt.Errorf("insert product option type %d: %w", id, err)
		}
	}
	return nil
}

func scanIDs(rows *sql.Rows) ([]int64, error) {
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return ids, nil
}
