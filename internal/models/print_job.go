// Package models provides data model definitions for the POS core.
package models

// PrintType identifies which physical ticket a print job renders.
type PrintType string

const (
	PrintTypeReceipt PrintType = "RECEIPT"
	PrintTypeKitchen PrintType = "KITCHEN"
	PrintTypeBar     PrintType = "BAR"
)

// PrintStatus is the processing state of a print job.
type PrintStatus string

const (
	PrintStatusPending  PrintStatus = "PENDING"
	PrintStatusPrinting PrintStatus = "PRINTING"
	PrintStatusPrinted  PrintStatus = "PRINTED"
	PrintStatusFailed   PrintStatus = "FAILED"
)

// PrintJob represents a physical print request tied to an order. Content is
// pre-rendered by the caller; this core treats it as opaque bytes.
type PrintJob struct {
	ID            UUID        `db:"id" json:"id"`
	OrderID       UUID        `db:"order_id" json:"order_id"`
	PrintType     PrintType   `db:"print_type" json:"print_type"`
	PrinterName   string      `db:"printer_name" json:"printer_name"`
	Content       string      `db:"content" json:"content"`
	Status        PrintStatus `db:"status" json:"status"`
	Attempts      int         `db:"attempts" json:"attempts"`
	NextAttemptAt int64       `db:"next_attempt_at" json:"next_attempt_at,omitempty"`
	ErrorMessage  string      `db:"error_message" json:"error_message,omitempty"`
	PrintedAt     int64       `db:"printed_at" json:"printed_at,omitempty"`
	CreatedAt     int64       `db:"created_at" json:"created_at"`
}

// TableName returns the table name for PrintJob.
func (PrintJob) TableName() string {
	return "print_jobs"
}

// Terminal reports whether the job has reached a final state.
func (j *PrintJob) Terminal() bool {
	return j.Status == PrintStatusPrinted || j.Status == PrintStatusFailed
}
