// Package models provides data model definitions for the POS core.
package models

import "math"

// OrderType classifies how an order is fulfilled.
type OrderType string

const (
	OrderTypeDineIn     OrderType = "DINE_IN"
	OrderTypeCollection OrderType = "COLLECTION"
	OrderTypeDelivery   OrderType = "DELIVERY"
	OrderTypeWaiting    OrderType = "WAITING"
)

// PaymentStatus tracks payment progress for an order.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "PENDING"
	PaymentPaid    PaymentStatus = "PAID"
	PaymentFailed  PaymentStatus = "FAILED"
)

// OrderStatus tracks kitchen/service progress for an order.
type OrderStatus string

const (
	OrderStatusNew       OrderStatus = "NEW"
	OrderStatusPreparing OrderStatus = "PREPARING"
	OrderStatusReady     OrderStatus = "READY"
	OrderStatusCompleted OrderStatus = "COMPLETED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// TotalsTolerance is the rounding tolerance allowed between total and
// subtotal + tax - discount.
const TotalsTolerance = 0.005

// Order represents one customer transaction. Orders are never physically
// deleted in normal operation; lifecycle ends at COMPLETED or CANCELLED.
type Order struct {
	ID            UUID          `db:"id" json:"id"`
	OrderNumber   string        `db:"order_number" json:"order_number"`
	OrderType     OrderType     `db:"order_type" json:"order_type"`
	TableNumber   string        `db:"table_number" json:"table_number,omitempty"`
	CustomerName  string        `db:"customer_name" json:"customer_name,omitempty"`
	CustomerPhone string        `db:"customer_phone" json:"customer_phone,omitempty"`
	Subtotal      float64       `db:"subtotal" json:"subtotal"`
	Tax           float64       `db:"tax" json:"tax"`
	Discount      float64       `db:"discount" json:"discount"`
	Total         float64       `db:"total" json:"total"`
	PaymentStatus PaymentStatus `db:"payment_status" json:"payment_status"`
	OrderStatus   OrderStatus   `db:"order_status" json:"order_status"`
	Synced        bool          `db:"synced" json:"synced"`
	SyncError     string        `db:"sync_error" json:"sync_error,omitempty"`
	CreatedAt     int64         `db:"created_at" json:"created_at"`
	UpdatedAt     int64         `db:"updated_at" json:"updated_at"`
}

// TableName returns the table name for Order.
func (Order) TableName() string {
	return "orders"
}

// ValidType reports whether the order type is one of the known values.
func (o *Order) ValidType() bool {
	switch o.OrderType {
	case OrderTypeDineIn, OrderTypeCollection, OrderTypeDelivery, OrderTypeWaiting:
		return true
	}
	return false
}

// TotalsConsistent reports whether the monetary fields are non-negative and
// total matches subtotal + tax - discount within the rounding tolerance.
func (o *Order) TotalsConsistent() bool {
	if o.Subtotal < 0 || o.Tax < 0 || o.Discount < 0 || o.Total < 0 {
		return false
	}
	return math.Abs(o.Total-(o.Subtotal+o.Tax-o.Discount)) <= TotalsTolerance
}
