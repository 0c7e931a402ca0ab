package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/ersoyb/go-storefront/internal/database"
	"github.com/ersoyb/go-storefront/internal/models"
)

type CreateOrderRequest struct {
	CustomerName        string
	CustomerEmail       string
	ShippingAddressText string
	Lines               []OrderLineRequest
}

// OrderLineRequest with a nil VariantID is a non-product charge (shipping,
// discount) and must carry its own description and unit price. Product lines
// default to the variant's current price when UnitPrice is nil.
type OrderLineRequest struct {
	VariantID   *int64
	Description string
	Quantity    int
	UnitPrice   *decimal.Decimal
}

// CreateOrder places a pending order. No stock is touched and no snapshot is
// written here; both happen at finalization.
func CreateOrder(ctx context.Context, db *sql.DB, req CreateOrderRequest) (*models.Order, error) {
	var orderID int64

	err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx,
			`INSERT INTO orders (customer_name, customer_email, shipping_address_text, status, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, NOW(), NOW())
			 RETURNING id`,
			req.CustomerName, req.CustomerEmail, req.ShippingAddressText, models.OrderStatusPending).Scan(&orderID)
		if err != nil {
			return fmt.Errorf("create order: %w", err)
		}

		for _, line := range req.Lines {
			unitPrice := line.UnitPrice
			description := line.Description

			if line.VariantID != nil {
				var price decimal.Decimal
				var sku string
				err := tx.QueryRowContext(ctx,
					`SELECT price, sku FROM variants WHERE id = $1`,
					*line.VariantID).Scan(&price, &sku)
				if err != nil {
					if err == sql.ErrNoRows {
						return database.ErrVariantNotFound
					}
					return fmt.Errorf("read variant %d: %w", *line.VariantID, err)
				}
				if unitPrice == nil {
					unitPrice = &price
				}
				if description == "" {
					description = sku
				}
			}

			if unitPrice == nil {
				return fmt.Errorf("line without variant requires a unit price")
			}

			_, err := tx.ExecContext(ctx,
				`INSERT INTO order_lines (order_id, variant_id, description, quantity, unit_price, created_at)
				 VALUES ($1, $2, $3, $4, $5, NOW())`,
				orderID, line.VariantID, description, line.Quantity, unitPrice)
			if err != nil {
				return fmt.Errorf("create order line: %w", err)
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return GetOrder(ctx, db, orderID)
}

func GetOrder(ctx context.Context, db *sql.DB, id int64) (*models.Order, error) {
	order := &models.Order{}

	query := `
		SELECT id, customer_name, customer_email, shipping_address_text, status, created_at, updated_at
		FROM orders
		WHERE id = $1`

	err := db.QueryRowContext(ctx, query, id).Scan(
		&order.ID,
		&order.CustomerName,
		&order.CustomerEmail,
		&order.ShippingAddressText,
		&order.Status,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	linesQuery := `
		SELECT id, order_id, variant_id, description, quantity, unit_price,
		       sku_snapshot, options_text_snapshot, vat_rate_snapshot, line_total_gross, tax_amount,
		       created_at
		FROM order_lines
		WHERE order_id = $1
		ORDER BY id`

	rows, err := db.QueryContext(ctx, linesQuery, id)
	if err != nil {
		return nil, fmt.Errorf("get order lines: %w", err)
	}
	defer rows.Close()

	var lines []models.OrderLine
	for rows.Next() {
		var line models.OrderLine
		err := rows.Scan(
			&line.ID,
			&line.OrderID,
			&line.VariantID,
			&line.Description,
			&line.Quantity,
			&line.UnitPrice,
			&line.SKUSnapshot,
			&line.OptionsTextSnapshot,
			&line.VATRateSnapshot,
			&line.LineTotalGross,
			&line.TaxAmount,
			&line.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan order line: %w", err)
		}
		lines = append(lines, line)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	order.Lines = lines

	return order, nil
}

// ListOrders pages through orders newest-first with a keyset cursor.
func ListOrders(ctx context.Context, db *sql.DB, cursor string, limit int) (*CursorPage, error) {
	cursorData, err := DecodeCursor(cursor)
	if err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}

	query := `
		SELECT id, customer_name, customer_email, shipping_address_text, status, created_at, updated_at
		FROM orders
		WHERE (created_at, id) < ($1, $2)
		ORDER BY created_at DESC, id DESC
		LIMIT $3`

	rows, err := db.QueryContext(ctx, query, cursorData.CreatedAt, cursorData.ID, limit+1)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		var order models.Order
		err := rows.Scan(
			&order.ID,
			&order.CustomerName,
			&order.CustomerEmail,
			&order.ShippingAddressText,
			&order.Status,
			&order.CreatedAt,
			&order.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	hasMore := len(orders) > limit
	if hasMore {
		orders = orders[:limit]
	}

	var nextCursor string
	if hasMore && len(orders) > 0 {
		last := orders[len(orders)-1]
		nextCursor = EncodeCursor(ListCursor{
			CreatedAt: last.CreatedAt,
			ID:        last.ID,
		})
	}

	return &CursorPage{
		Items:      orders,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}

// GetOrderStatus reads the status without any lock. The restock idempotency
// guard runs on this value before a transaction is even opened.
func GetOrderStatus(ctx context.Context, db *sql.DB, id int64) (string, error) {
	var status string
	err := db.QueryRowContext(ctx, `SELECT status FROM orders WHERE id = $1`, id).Scan(&status)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", database.ErrOrderNotFound
		}
		return "", fmt.Errorf("get order status: %w", err)
	}
	return status, nil
}

// UpdateOrderStatus is the caller-facing status transition used around
// restock workflows (e.g. marking an order cancelled before restocking it).
func UpdateOrderStatus(ctx context.Context, db *sql.DB, id int64, status string) error {
	result, err := db.ExecContext(ctx,
		`UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2`,
		status, id)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return database.ErrOrderNotFound
	}

	return nil
}

// lockOrder takes the order row lock, first in the global order.
func lockOrder(ctx context.Context, tx *sql.Tx, lk *database.Locker, orderID int64) (string, error) {
	if err := lk.Acquire(ctx, tx, database.LockOrderRow, orderID); err != nil {
		return "", err
	}

	var status string
	err := tx.QueryRowContext(ctx,
		`SELECT status FROM orders WHERE id = $1 FOR UPDATE`,
		orderID).Scan(&status)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", database.ErrOrderNotFound
		}
		return "", fmt.Errorf("lock order %d: %w", orderID, err)
	}

	return status, nil
}

// lockOrderLines locks every line of the order in ascending id order.
func lockOrderLines(ctx context.Context, tx *sql.Tx, lk *database.Locker, orderID int64) ([]models.OrderLine, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT id, order_id, variant_id, quantity, unit_price
		 FROM order_lines
		 WHERE order_id = $1
		 ORDER BY id
		 FOR UPDATE`,
		orderID)
	if err != nil {
		return nil, fmt.Errorf("lock order lines: %w", err)
	}
	defer rows.Close()

	var lines []models.OrderLine
	for rows.Next() {
		var line models.OrderLine
		err := rows.Scan(&line.ID, &line.OrderID, &line.VariantID, &line.Quantity, &line.UnitPrice)
		if err != nil {
			return nil, fmt.Errorf("scan locked line: %w", err)
		}
		lines = append(lines, line)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	lineIDs := make([]int64, len(lines))
	for i, line := range lines {
		lineIDs[i] = line.ID
	}
	if err := lk.Acquire(ctx, tx, database.LockOrderLine, lineIDs...); err != nil {
		return nil, err
	}

	return lines, nil
}

// rawSetOrderStatus writes the status column directly, skipping the
// caller-facing transition path.
func rawSetOrderStatus(ctx context.Context, tx *sql.Tx, orderID int64, status string) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2`,
		status, orderID)
	if err != nil {
		return fmt.Errorf("set order status: %w", err)
	}
	return nil
}

// writeLineSnapshot freezes the variant identity onto the line. Write-once:
// finalization is the only caller and it never runs twice on a paid order's
// lines because the whole operation is transactional.
func writeLineSnapshot(ctx context.Context, tx *sql.Tx, lineID int64, sku, optionsText string, vatRate, gross, tax decimal.Decimal) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE order_lines
		 SET sku_snapshot = $1,
		     options_text_snapshot = $2,
		     vat_rate_snapshot = $3,
		     line_total_gross = $4,
		     tax_amount = $5
		 WHERE id = $6`,
		sku, optionsText, vatRate, gross, tax, lineID)
	if err != nil {
		return fmt.Errorf("write line snapshot: %w", err)
	}
	return nil
}
