// Package models provides data model definitions for the POS core.
package models

// Category represents a menu category cached from the remote menu system.
type Category struct {
	ID           UUID   `db:"id" json:"id"`
	Name         string `db:"name" json:"name"`
	DisplayOrder int    `db:"display_order" json:"display_order"`
	Active       bool   `db:"active" json:"active"`
	CreatedAt    int64  `db:"created_at" json:"created_at"`
	UpdatedAt    int64  `db:"updated_at" json:"updated_at"`
}

// TableName returns the table name for Category.
func (Category) TableName() string {
	return "categories"
}
