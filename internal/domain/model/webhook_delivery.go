package model

import (
	"time"
)

// WebhookDelivery records a single sighting of an inbound webhook.
// At most one delivery per dedup key ever applies a status change;
// replays are recorded but acknowledged as no-ops.
type WebhookDelivery struct {
	ID                  int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	DedupKey            string    `gorm:"unique;not null;size:255;index" json:"dedup_key"`
	TransactionID       string    `gorm:"not null;size:64;index" json:"transaction_id"`
	EventType           string    `gorm:"not null;size:50" json:"event_type"`
	SignatureValid      bool      `gorm:"not null;default:false" json:"signature_valid"`
	AppliedStatusChange bool      `gorm:"not null;default:false" json:"applied_status_change"`
	Payload             JSONB     `gorm:"type:jsonb" json:"payload,omitempty"`
	ReceivedAt          time.Time `gorm:"not null;default:now();index" json:"received_at"`
}

// TableName specifies the table name for GORM
func (WebhookDelivery) TableName() string {
	return "webhook_deliveries"
}
