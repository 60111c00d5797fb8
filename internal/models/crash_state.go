// Package models provides data model definitions for the POS core.
package models

import "time"

// CrashStateVersion is the current snapshot format version. Snapshots with a
// different version are treated as unreadable.
const CrashStateVersion = 1

// CartItemSnapshot is a line-item capture inside a crash snapshot.
type CartItemSnapshot struct {
	MenuItemID   UUID    `json:"menu_item_id,omitempty"`
	Name         string  `json:"name"`
	Quantity     int     `json:"quantity"`
	UnitPrice    float64 `json:"unit_price"`
	Instructions string  `json:"instructions,omitempty"`
}

// CrashState is the periodically saved snapshot of the active POS session.
// It lives outside the relational tables and is read exactly once at startup.
type CrashState struct {
	TableNumber string             `json:"tableNumber,omitempty"`
	OrderID     UUID               `json:"orderId,omitempty"`
	CartItems   []CartItemSnapshot `json:"cartItems"`
	OrderType   OrderType          `json:"orderType"`
	Timestamp   int64              `json:"timestamp"`
	Version     int                `json:"version"`
}

// Time returns the snapshot timestamp as time.Time.
func (s *CrashState) Time() time.Time {
	return time.Unix(s.Timestamp, 0)
}
