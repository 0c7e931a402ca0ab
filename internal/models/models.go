package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type OptionType struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Presentation string    `json:"presentation"`
	CreatedAt    time.Time `json:"created_at"`
}

type OptionValue struct {
	ID           int64  `json:"id"`
	OptionTypeID int64  `json:"option_type_id"`
	Value        string `json:"value"`
	Position     int    `json:"position"`
}

// ProductOptionType is the ordered link between a product and one of its
// option dimensions. Position controls display and evaluation order.
type ProductOptionType struct {
	ID           int64 `json:"id"`
	ProductID    int64 `json:"product_id"`
	OptionTypeID int64 `json:"option_type_id"`
	Position     int   `json:"position"`
}

type Variant struct {
	ID                 int64           `json:"id"`
	ProductID          int64           `json:"product_id"`
	SKU                string          `json:"sku"`
	Price              decimal.Decimal `json:"price"`
	VATRate            decimal.Decimal `json:"vat_rate"`
	StockQuantity      int             `json:"stock_quantity"`
	Active             bool            `json:"active"`
	OptionsFingerprint string          `json:"options_fingerprint"`
	OptionValueIDs     []int64         `json:"option_value_ids,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

type Order struct {
	ID                  int64       `json:"id"`
	CustomerName        string      `json:"customer_name"`
	CustomerEmail       string      `json:"customer_email"`
	ShippingAddressText string      `json:"shipping_address_text,omitempty"`
	Status              string      `json:"status"`
	CreatedAt           time.Time   `json:"created_at"`
	UpdatedAt           time.Time   `json:"updated_at"`
	Lines               []OrderLine `json:"lines,omitempty"`
}

// OrderLine is mutable until finalization. A nil VariantID marks a
// non-product charge (shipping, discount) that never touches stock. The
// snapshot columns are nil until the order is finalized and are never
// recomputed afterwards.
type OrderLine struct {
	ID                  int64            `json:"id"`
	OrderID             int64            `json:"order_id"`
	VariantID           *int64           `json:"variant_id,omitempty"`
	Description         string           `json:"description,omitempty"`
	Quantity            int              `json:"quantity"`
	UnitPrice           decimal.Decimal  `json:"unit_price"`
	SKUSnapshot         *string          `json:"sku_snapshot,omitempty"`
	OptionsTextSnapshot *string          `json:"options_text_snapshot,omitempty"`
	VATRateSnapshot     *decimal.Decimal `json:"vat_rate_snapshot,omitempty"`
	LineTotalGross      *decimal.Decimal `json:"line_total_gross,omitempty"`
	TaxAmount           *decimal.Decimal `json:"tax_amount,omitempty"`
	CreatedAt           time.Time        `json:"created_at"`
}

const (
	OrderStatusPending   = "pending"
	OrderStatusPaid      = "paid"
	OrderStatusShipped   = "shipped"
	OrderStatusCancelled = "cancelled"
	OrderStatusRefunded  = "refunded"
)
