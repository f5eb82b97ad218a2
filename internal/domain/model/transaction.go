package model

import (
	"database/sql/driver"
	"time"
)

// TransactionStatus represents the lifecycle state of a payment transaction
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusReceived  TransactionStatus = "received"
	TransactionStatusConfirmed TransactionStatus = "confirmed"
	TransactionStatusExpired   TransactionStatus = "expired"
	TransactionStatusFailed    TransactionStatus = "failed"
)

// Scan implements sql.Scanner interface
func (s *TransactionStatus) Scan(src interface{}) error {
	switch v := src.(type) {
	case string:
		*s = TransactionStatus(v)
	case []byte:
		*s = TransactionStatus(v)
	default:
		*s = TransactionStatusPending
	}
	return nil
}

// Value implements driver.Valuer interface
func (s TransactionStatus) Value() (driver.Value, error) {
	return string(s), nil
}

// IsTerminal reports whether no further status transitions are permitted
func (s TransactionStatus) IsTerminal() bool {
	switch s {
	case TransactionStatusConfirmed, TransactionStatusExpired, TransactionStatusFailed:
		return true
	}
	return false
}

// PaymentTransaction represents a payment transaction record
type PaymentTransaction struct {
	ID          string            `gorm:"primaryKey;size:64" json:"id"`
	BookingID   string            `gorm:"not null;size:64;index" json:"booking_id"`
	UserID      string            `gorm:"not null;size:64;index" json:"user_id"`
	AmountCents int64             `gorm:"not null" json:"amount_cents"`
	Currency    string            `gorm:"size:3;default:'BRL'" json:"currency"`
	Status      TransactionStatus `gorm:"type:transaction_status;default:'pending';index" json:"status"`
	QRCode      string            `gorm:"column:qr_code" json:"qr_code,omitempty"`
	BRCode      string            `gorm:"column:br_code" json:"br_code,omitempty"`
	ConfirmedAt *time.Time        `json:"confirmed_at,omitempty"`
	ExpiresAt   *time.Time        `gorm:"index" json:"expires_at,omitempty"`
	CreatedAt   time.Time         `gorm:"default:now()" json:"created_at"`
	UpdatedAt   time.Time         `gorm:"default:now()" json:"updated_at"`
}

// TableName specifies the table name for GORM
func (PaymentTransaction) TableName() string {
	return "payment_transactions"
}
