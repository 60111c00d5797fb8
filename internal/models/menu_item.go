// Package models provides data model definitions for the POS core.
package models

// MenuItem represents a sellable item cached from the remote menu system.
// CategoryID must reference an existing Category.
type MenuItem struct {
	ID          UUID    `db:"id" json:"id"`
	CategoryID  UUID    `db:"category_id" json:"category_id"`
	Name        string  `db:"name" json:"name"`
	Description string  `db:"description" json:"description,omitempty"`
	Price       float64 `db:"price" json:"price"`
	Allergens   string  `db:"allergens" json:"allergens,omitempty"` // Comma-separated
	Available   bool    `db:"available" json:"available"`
	CreatedAt   int64   `db:"created_at" json:"created_at"`
	UpdatedAt   int64   `db:"updated_at" json:"updated_at"`
}

// TableName returns the table name for MenuItem.
func (MenuItem) TableName() string {
	return "menu_items"
}
