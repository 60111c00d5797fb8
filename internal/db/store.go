// Package db provides CRUD store operations for the POS core data models.
package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	apperrors "github.com/emberpos/core/internal/errors"
	"github.com/emberpos/core/internal/models"
	"github.com/emberpos/core/internal/uuid"
)

// Tables whose local writes must be mirrored into sync_queue in the same
// transaction.
var syncableTables = map[string]bool{
	"orders":      true,
	"order_items": true,
	"categories":  true,
	"menu_items":  true,
}

// IsSyncable reports whether local writes to a table are queued for sync.
func IsSyncable(table string) bool {
	return syncableTables[table]
}

// Store provides transactional CRUD over the local durable tables. It is the
// single shared mutable resource between the UI layer and the background
// processors; every write to a syncable table appends a sync_queue entry in
// the same transaction.
type Store struct {
	db *sql.DB

	// Prepared statement cache for the hot polling queries.
	// Statements are prepared on first use and cached for reuse.
	stmtCache sync.Map // map[string]*sql.Stmt
}

// NewStore creates a new Store instance.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// PrepareStmt gets or creates a prepared statement from cache.
func (s *Store) PrepareStmt(query string) (*sql.Stmt, error) {
	if stmt, ok := s.stmtCache.Load(query); ok {
		return stmt.(*sql.Stmt), nil
	}

	stmt, err := s.db.Prepare(query)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to prepare statement", err)
	}

	actual, loaded := s.stmtCache.LoadOrStore(query, stmt)
	if loaded {
		// Another goroutine already prepared this, close our duplicate
		stmt.Close()
		return actual.(*sql.Stmt), nil
	}

	return stmt, nil
}

// Close closes all cached prepared statements.
func (s *Store) Close() error {
	var firstErr error
	s.stmtCache.Range(func(key, value interface{}) bool {
		stmt := value.(*sql.Stmt)
		if err := stmt.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		return true
	})
	return firstErr
}

// storageErr wraps a storage-engine failure as a fatal StorageError.
func storageErr(op string, err error) error {
	return apperrors.Wrap(apperrors.ErrStorage, op, err)
}

// enqueueSync appends a sync_queue entry inside the caller's transaction.
// This is the atomicity core: the business write and its queue entry commit
// or roll back together.
func enqueueSync(tx *sql.Tx, op models.OperationType, table string, recordID models.UUID, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInternal, "failed to marshal sync payload", err)
	}

	query := `
	INSERT INTO sync_queue (id, operation_type, table_name, record_id, data, status,
		attempts, last_attempt, next_attempt_at, error_message, created_at)
	VALUES (?, ?, ?, ?, ?, ?, 0, 0, 0, '', ?)
	`
	_, err = tx.Exec(query, uuid.New(), op, table, recordID, string(data),
		models.SyncStatusPending, time.Now().UnixMilli())
	if err != nil {
		return storageErr("failed to enqueue sync entry", err)
	}
	return nil
}

// =====================================================
// Config Operations
// =====================================================

// SeedConfig inserts default config values, leaving existing keys untouched.
// Called once at first run.
func (s *Store) SeedConfig(defaults map[string]string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return storageErr("failed to begin transaction", err)
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	for key, value := range defaults {
		query := `INSERT INTO config (key, value, updated_at) VALUES (?, ?, ?)
				  ON CONFLICT(key) DO NOTHING`
		if _, err := tx.Exec(query, key, value, now); err != nil {
			return storageErr("failed to seed config", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return storageErr("failed to commit config seed", err)
	}
	return nil
}

// GetConfig returns the value for a config key.
func (s *Store) GetConfig(key string) (string, error) {
	stmt, err := s.PrepareStmt("SELECT value FROM config WHERE key = ?")
	if err != nil {
		return "", err
	}

	var value string
	err = stmt.QueryRow(key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", apperrors.New(apperrors.ErrNotFound, fmt.Sprintf("config key %q not found", key))
	}
	if err != nil {
		return "", storageErr("failed to read config", err)
	}
	return value, nil
}

// SetConfig upserts a config value. Config is not a syncable table.
func (s *Store) SetConfig(key, value string) error {
	query := `INSERT INTO config (key, value, updated_at) VALUES (?, ?, ?)
			  ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`
	if _, err := s.db.Exec(query, key, value, time.Now().Unix()); err != nil {
		return storageErr("failed to write config", err)
	}
	return nil
}

// AllConfig returns every config key/value pair.
func (s *Store) AllConfig() (map[string]string, error) {
	rows, err := s.db.Query("SELECT key, value FROM config")
	if err != nil {
		return nil, storageErr("failed to list config", err)
	}
	defer rows.Close()

	settings := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, storageErr("failed to scan config row", err)
		}
		settings[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("failed to iterate config rows", err)
	}
	return settings, nil
}

// =====================================================
// Menu Cache Operations
// =====================================================

// UpsertCategory writes a category as a LOCAL mutation: the write and its
// sync_queue entry commit atomically.
func (s *Store) UpsertCategory(c *models.Category) error {
	if c.ID == "" {
		c.ID = models.UUID(uuid.New())
	} else if err := uuid.Validate(string(c.ID)); err != nil {
		return apperrors.Wrap(apperrors.ErrValidation, "category id is not a UUID", err)
	}
	now := time.Now().Unix()
	if c.CreatedAt == 0 {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	tx, err := s.db.Begin()
	if err != nil {
		return storageErr("failed to begin transaction", err)
	}
	defer tx.Rollback()

	query := `
	INSERT INTO categories (id, name, display_order, active, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		name = excluded.name, display_order = excluded.display_order,
		active = excluded.active, updated_at = excluded.updated_at
	`
	if _, err := tx.Exec(query, c.ID, c.Name, c.DisplayOrder, c.Active, c.CreatedAt, c.UpdatedAt); err != nil {
		return storageErr("failed to upsert category", err)
	}

	if err := enqueueSync(tx, models.OperationUpdate, c.TableName(), c.ID, c); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return storageErr("failed to commit category upsert", err)
	}
	return nil
}

// UpsertMenuItem writes a menu item as a LOCAL mutation with its queue entry.
// The category must already exist (enforced by the schema FK).
func (s *Store) UpsertMenuItem(m *models.MenuItem) error {
	if m.ID == "" {
		m.ID = models.UUID(uuid.New())
	} else if err := uuid.Validate(string(m.ID)); err != nil {
		return apperrors.Wrap(apperrors.ErrValidation, "menu item id is not a UUID", err)
	}
	if err := uuid.Validate(string(m.CategoryID)); err != nil {
		return apperrors.Wrap(apperrors.ErrValidation, "menu item category id is not a UUID", err)
	}
	now := time.Now().Unix()
	if m.CreatedAt == 0 {
		m.CreatedAt = now
	}
	m.UpdatedAt = now

	tx, err := s.db.Begin()
	if err != nil {
		return storageErr("failed to begin transaction", err)
	}
	defer tx.Rollback()

	query := `
	INSERT INTO menu_items (id, category_id, name, description, price, allergens, available, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		category_id = excluded.category_id, name = excluded.name,
		description = excluded.description, price = excluded.price,
		allergens = excluded.allergens, available = excluded.available,
		updated_at = excluded.updated_at
	`
	if _, err := tx.Exec(query, m.ID, m.CategoryID, m.Name, m.Description, m.Price,
		m.Allergens, m.Available, m.CreatedAt, m.UpdatedAt); err != nil {
		return storageErr("failed to upsert menu item", err)
	}

	if err := enqueueSync(tx, models.OperationUpdate, m.TableName(), m.ID, m); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return storageErr("failed to commit menu item upsert", err)
	}
	return nil
}

// ApplyMenuSnapshot replaces the cached menu with a remote snapshot. Cache
// refreshes originate from the remote system, so no sync entries are queued.
func (s *Store) ApplyMenuSnapshot(categories []*models.Category, items []*models.MenuItem) error {
	// Snapshot IDs come off the wire; reject malformed ones before any row
	// is touched.
	for _, c := range categories {
		if err := uuid.Validate(string(c.ID)); err != nil {
			return apperrors.Wrap(apperrors.ErrValidation, "snapshot category id is not a UUID", err)
		}
	}
	for _, m := range items {
		if err := uuid.Validate(string(m.ID)); err != nil {
			return apperrors.Wrap(apperrors.ErrValidation, "snapshot menu item id is not a UUID", err)
		}
		if err := uuid.Validate(string(m.CategoryID)); err != nil {
			return apperrors.Wrap(apperrors.ErrValidation, "snapshot menu item category id is not a UUID", err)
		}
	}

	tx, err := s.db.Begin()
	if err != nil {
		return storageErr("failed to begin transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM menu_items"); err != nil {
		return storageErr("failed to clear menu items", err)
	}
	if _, err := tx.Exec("DELETE FROM categories"); err != nil {
		return storageErr("failed to clear categories", err)
	}

	now := time.Now().Unix()
	for _, c := range categories {
		if c.CreatedAt == 0 {
			c.CreatedAt = now
		}
		c.UpdatedAt = now
		query := `INSERT INTO categories (id, name, display_order, active, created_at, updated_at)
				  VALUES (?, ?, ?, ?, ?, ?)`
		if _, err := tx.Exec(query, c.ID, c.Name, c.DisplayOrder, c.Active, c.CreatedAt, c.UpdatedAt); err != nil {
			return storageErr("failed to insert category", err)
		}
	}
	for _, m := range items {
		if m.CreatedAt == 0 {
			m.CreatedAt = now
		}
		m.UpdatedAt = now
		query := `INSERT INTO menu_items (id, category_id, name, description, price, allergens, available, created_at, updated_at)
				  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
		if _, err := tx.Exec(query, m.ID, m.CategoryID, m.Name, m.Description, m.Price,
			m.Allergens, m.Available, m.CreatedAt, m.UpdatedAt); err != nil {
			return storageErr("failed to insert menu item", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return storageErr("failed to commit menu snapshot", err)
	}
	return nil
}

// GetMenuItem retrieves a menu item by ID.
func (s *Store) GetMenuItem(id models.UUID) (*models.MenuItem, error) {
	stmt, err := s.PrepareStmt(`
	SELECT id, category_id, name, description, price, allergens, available, created_at, updated_at
	FROM menu_items WHERE id = ?`)
	if err != nil {
		return nil, err
	}

	var m models.MenuItem
	err = stmt.QueryRow(id).Scan(&m.ID, &m.CategoryID, &m.Name, &m.Description,
		&m.Price, &m.Allergens, &m.Available, &m.CreatedAt, &m.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, apperrors.New(apperrors.ErrNotFound, "menu item not found")
	}
	if err != nil {
		return nil, storageErr("failed to read menu item", err)
	}
	return &m, nil
}

// ListCategories returns cached categories in display order.
func (s *Store) ListCategories() ([]*models.Category, error) {
	rows, err := s.db.Query(`
	SELECT id, name, display_order, active, created_at, updated_at
	FROM categories ORDER BY display_order, name`)
	if err != nil {
		return nil, storageErr("failed to list categories", err)
	}
	defer rows.Close()

	var categories []*models.Category
	for rows.Next() {
		var c models.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.DisplayOrder, &c.Active, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, storageErr("failed to scan category row", err)
		}
		categories = append(categories, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("failed to iterate category rows", err)
	}
	return categories, nil
}

// ListMenuItems returns cached menu items for a category, or all items when
// categoryID is empty.
func (s *Store) ListMenuItems(categoryID models.UUID) ([]*models.MenuItem, error) {
	baseQuery := `
	SELECT id, category_id, name, description, price, allergens, available, created_at, updated_at
	FROM menu_items`

	var rows *sql.Rows
	var err error
	if categoryID != "" {
		rows, err = s.db.Query(baseQuery+" WHERE category_id = ? ORDER BY name", categoryID)
	} else {
		rows, err = s.db.Query(baseQuery + " ORDER BY name")
	}
	if err != nil {
		return nil, storageErr("failed to list menu items", err)
	}
	defer rows.Close()

	var items []*models.MenuItem
	for rows.Next() {
		var m models.MenuItem
		if err := rows.Scan(&m.ID, &m.CategoryID, &m.Name, &m.Description, &m.Price,
			&m.Allergens, &m.Available, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, storageErr("failed to scan menu item row", err)
		}
		items = append(items, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("failed to iterate menu item rows", err)
	}
	return items, nil
}
