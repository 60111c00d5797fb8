// Package models provides data model definitions for the POS core.
package models

// Well-known config keys seeded at first run and updated in place.
const (
	ConfigAppVersion  = "app_version"
	ConfigPrinterName = "printer_name"
	ConfigTaxRate     = "tax_rate"
	ConfigCurrency    = "currency"
	ConfigOfflineMode = "offline_mode"
	ConfigLastSync    = "last_sync"
)

// ConfigEntry represents one key/value application setting.
type ConfigEntry struct {
	Key       string `db:"key" json:"key"`
	Value     string `db:"value" json:"value"`
	UpdatedAt int64  `db:"updated_at" json:"updated_at"`
}

// TableName returns the table name for ConfigEntry.
func (ConfigEntry) TableName() string {
	return "config"
}
