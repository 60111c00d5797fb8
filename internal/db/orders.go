package db

import (
	"database/sql"
	"fmt"
	"time"

	apperrors "github.com/emberpos/core/internal/errors"
	"github.com/emberpos/core/internal/models"
	"github.com/emberpos/core/internal/uuid"
)

// =====================================================
// Order Operations
// =====================================================

// CreateOrder inserts an order with its line items and the matching
// sync_queue entries in one transaction. A crash can never leave the order
// written without its queue entries, or vice versa.
func (s *Store) CreateOrder(order *models.Order, items []*models.OrderItem) error {
	if !order.ValidType() {
		return apperrors.New(apperrors.ErrValidation, fmt.Sprintf("unknown order type %q", order.OrderType))
	}
	if len(items) == 0 {
		return apperrors.New(apperrors.ErrValidation, "order has no items")
	}
	for _, item := range items {
		if item.Quantity <= 0 {
			return apperrors.New(apperrors.ErrValidation, "item quantity must be positive")
		}
	}
	if !order.TotalsConsistent() {
		return apperrors.New(apperrors.ErrValidation, "order totals are inconsistent")
	}

	now := time.Now().Unix()
	order.ID = models.UUID(uuid.New())
	order.CreatedAt = now
	order.UpdatedAt = now
	if order.PaymentStatus == "" {
		order.PaymentStatus = models.PaymentPending
	}
	if order.OrderStatus == "" {
		order.OrderStatus = models.OrderStatusNew
	}

	tx, err := s.db.Begin()
	if err != nil {
		return storageErr("failed to begin transaction", err)
	}
	defer tx.Rollback()

	if order.OrderNumber == "" {
		number, err := nextOrderNumber(tx, time.Now())
		if err != nil {
			return err
		}
		order.OrderNumber = number
	}

	query := `
	INSERT INTO orders (id, order_number, order_type, table_number, customer_name, customer_phone,
		subtotal, tax, discount, total, payment_status, order_status, synced, sync_error,
		created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, '', ?, ?)
	`
	if _, err := tx.Exec(query, order.ID, order.OrderNumber, order.OrderType, order.TableNumber,
		order.CustomerName, order.CustomerPhone, order.Subtotal, order.Tax, order.Discount,
		order.Total, order.PaymentStatus, order.OrderStatus, order.CreatedAt, order.UpdatedAt); err != nil {
		return storageErr("failed to insert order", err)
	}

	if err := enqueueSync(tx, models.OperationCreate, order.TableName(), order.ID, order); err != nil {
		return err
	}

	for _, item := range items {
		item.ID = models.UUID(uuid.New())
		item.OrderID = order.ID
		item.CreatedAt = now

		itemQuery := `
		INSERT INTO order_items (id, order_id, menu_item_id, name, quantity, unit_price, total_price, instructions, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`
		if _, err := tx.Exec(itemQuery, item.ID, item.OrderID, item.MenuItemID, item.Name,
			item.Quantity, item.UnitPrice, item.TotalPrice, item.Instructions, item.CreatedAt); err != nil {
			return storageErr("failed to insert order item", err)
		}

		if err := enqueueSync(tx, models.OperationCreate, item.TableName(), item.ID, item); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return storageErr("failed to commit order", err)
	}
	return nil
}

// nextOrderNumber generates a daily order number like ORD-20260828-0042.
// The sequence continues from the highest suffix issued today, not the row
// count, so a deleted order never causes a number to be handed out twice.
// Runs inside the caller's transaction so concurrent creates cannot collide.
func nextOrderNumber(tx *sql.Tx, now time.Time) (string, error) {
	prefix := "ORD-" + now.Format("20060102") + "-"
	var max int
	err := tx.QueryRow(
		"SELECT COALESCE(MAX(CAST(substr(order_number, ?) AS INTEGER)), 0) FROM orders WHERE order_number LIKE ?",
		len(prefix)+1, prefix+"%",
	).Scan(&max)
	if err != nil {
		return "", storageErr("failed to read daily order sequence", err)
	}
	return fmt.Sprintf("%s%04d", prefix, max+1), nil
}

// GetOrder retrieves an order by ID.
func (s *Store) GetOrder(id models.UUID) (*models.Order, error) {
	stmt, err := s.PrepareStmt(`
	SELECT id, order_number, order_type, table_number, customer_name, customer_phone,
		   subtotal, tax, discount, total, payment_status, order_status, synced, sync_error,
		   created_at, updated_at
	FROM orders WHERE id = ?`)
	if err != nil {
		return nil, err
	}

	var o models.Order
	err = stmt.QueryRow(id).Scan(&o.ID, &o.OrderNumber, &o.OrderType, &o.TableNumber,
		&o.CustomerName, &o.CustomerPhone, &o.Subtotal, &o.Tax, &o.Discount, &o.Total,
		&o.PaymentStatus, &o.OrderStatus, &o.Synced, &o.SyncError, &o.CreatedAt, &o.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, apperrors.New(apperrors.ErrNotFound, "order not found")
	}
	if err != nil {
		return nil, storageErr("failed to read order", err)
	}
	return &o, nil
}

// GetOrderItems returns the line items of an order in creation order.
func (s *Store) GetOrderItems(orderID models.UUID) ([]*models.OrderItem, error) {
	stmt, err := s.PrepareStmt(`
	SELECT id, order_id, menu_item_id, name, quantity, unit_price, total_price, instructions, created_at
	FROM order_items WHERE order_id = ? ORDER BY rowid`)
	if err != nil {
		return nil, err
	}

	rows, err := stmt.Query(orderID)
	if err != nil {
		return nil, storageErr("failed to list order items", err)
	}
	defer rows.Close()

	var items []*models.OrderItem
	for rows.Next() {
		var item models.OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.MenuItemID, &item.Name,
			&item.Quantity, &item.UnitPrice, &item.TotalPrice, &item.Instructions, &item.CreatedAt); err != nil {
			return nil, storageErr("failed to scan order item row", err)
		}
		items = append(items, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("failed to iterate order item rows", err)
	}
	return items, nil
}

// ListOrders returns orders filtered by status and/or type, newest first.
// Empty filters match everything.
func (s *Store) ListOrders(status models.OrderStatus, orderType models.OrderType, limit, offset int) ([]*models.Order, error) {
	query := `
	SELECT id, order_number, order_type, table_number, customer_name, customer_phone,
		   subtotal, tax, discount, total, payment_status, order_status, synced, sync_error,
		   created_at, updated_at
	FROM orders WHERE 1=1`
	var args []interface{}
	if status != "" {
		query += " AND order_status = ?"
		args = append(args, status)
	}
	if orderType != "" {
		query += " AND order_type = ?"
		args = append(args, orderType)
	}
	query += " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, storageErr("failed to list orders", err)
	}
	defer rows.Close()

	var orders []*models.Order
	for rows.Next() {
		var o models.Order
		if err := rows.Scan(&o.ID, &o.OrderNumber, &o.OrderType, &o.TableNumber,
			&o.CustomerName, &o.CustomerPhone, &o.Subtotal, &o.Tax, &o.Discount, &o.Total,
			&o.PaymentStatus, &o.OrderStatus, &o.Synced, &o.SyncError, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, storageErr("failed to scan order row", err)
		}
		orders = append(orders, &o)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("failed to iterate order rows", err)
	}
	return orders, nil
}

// UpdateOrderStatus moves an order through its lifecycle and queues the
// mutation for sync in the same transaction.
func (s *Store) UpdateOrderStatus(id models.UUID, status models.OrderStatus) error {
	return s.updateOrder(id, func(tx *sql.Tx, o *models.Order) error {
		o.OrderStatus = status
		_, err := tx.Exec("UPDATE orders SET order_status = ?, updated_at = ? WHERE id = ?",
			status, o.UpdatedAt, id)
		return err
	})
}

// UpdateOrderPayment records payment progress and queues the mutation.
func (s *Store) UpdateOrderPayment(id models.UUID, payment models.PaymentStatus) error {
	return s.updateOrder(id, func(tx *sql.Tx, o *models.Order) error {
		o.PaymentStatus = payment
		_, err := tx.Exec("UPDATE orders SET payment_status = ?, updated_at = ? WHERE id = ?",
			payment, o.UpdatedAt, id)
		return err
	})
}

// updateOrder runs a mutation against an existing order and appends the
// sync_queue UPDATE entry atomically. The payload is the post-update order.
func (s *Store) updateOrder(id models.UUID, mutate func(*sql.Tx, *models.Order) error) error {
	order, err := s.GetOrder(id)
	if err != nil {
		return err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return storageErr("failed to begin transaction", err)
	}
	defer tx.Rollback()

	order.UpdatedAt = time.Now().Unix()
	if err := mutate(tx, order); err != nil {
		return storageErr("failed to update order", err)
	}

	if err := enqueueSync(tx, models.OperationUpdate, order.TableName(), order.ID, order); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return storageErr("failed to commit order update", err)
	}
	return nil
}

// DeleteOrder removes an order, cascading its items, and queues a DELETE
// mutation. The schema enforces ON DELETE CASCADE; the explicit item delete
// keeps the invariant even against a database opened without foreign keys.
func (s *Store) DeleteOrder(id models.UUID) error {
	tx, err := s.db.Begin()
	if err != nil {
		return storageErr("failed to begin transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM order_items WHERE order_id = ?", id); err != nil {
		return storageErr("failed to delete order items", err)
	}

	res, err := tx.Exec("DELETE FROM orders WHERE id = ?", id)
	if err != nil {
		return storageErr("failed to delete order", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return storageErr("failed to check delete result", err)
	}
	if affected == 0 {
		return apperrors.New(apperrors.ErrNotFound, "order not found")
	}

	payload := map[string]interface{}{"id": id}
	if err := enqueueSync(tx, models.OperationDelete, models.Order{}.TableName(), id, payload); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return storageErr("failed to commit order delete", err)
	}
	return nil
}

// MarkOrderSynced records a confirmed remote acknowledgment. This is sync
// bookkeeping, not a local mutation, so nothing is queued.
func (s *Store) MarkOrderSynced(id models.UUID) error {
	_, err := s.db.Exec("UPDATE orders SET synced = 1, sync_error = '' WHERE id = ?", id)
	if err != nil {
		return storageErr("failed to mark order synced", err)
	}
	return nil
}

// SetOrderSyncError records a terminal sync failure on the order row for
// operator review.
func (s *Store) SetOrderSyncError(id models.UUID, message string) error {
	_, err := s.db.Exec("UPDATE orders SET synced = 0, sync_error = ? WHERE id = ?", message, id)
	if err != nil {
		return storageErr("failed to set order sync error", err)
	}
	return nil
}

// CountUnsyncedOrders returns how many orders still await remote
// acknowledgment, for the operator-facing banner.
func (s *Store) CountUnsyncedOrders() (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM orders WHERE synced = 0").Scan(&count)
	if err != nil {
		return 0, storageErr("failed to count unsynced orders", err)
	}
	return count, nil
}
