// Package models provides data model definitions for the POS core.
package models

// OrderItem represents one line within an order. Items are owned by their
// parent order and are removed with it (cascade delete).
type OrderItem struct {
	ID           UUID    `db:"id" json:"id"`
	OrderID      UUID    `db:"order_id" json:"order_id"`
	MenuItemID   UUID    `db:"menu_item_id" json:"menu_item_id,omitempty"`
	Name         string  `db:"name" json:"name"`
	Quantity     int     `db:"quantity" json:"quantity"`
	UnitPrice    float64 `db:"unit_price" json:"unit_price"`
	TotalPrice   float64 `db:"total_price" json:"total_price"`
	Instructions string  `db:"instructions" json:"instructions,omitempty"`
	CreatedAt    int64   `db:"created_at" json:"created_at"`
}

// TableName returns the table name for OrderItem.
func (OrderItem) TableName() string {
	return "order_items"
}
