package models

import (
	"time"
)

// SettlementState tracks how far an approval sequence got. The store has no
// cross-document transactions, so the settlement row is the durable record
// that lets a retry resume instead of double-paying.
type SettlementState string

const (
	// SettlementInitiated: recorded intent, gateway not yet called.
	SettlementInitiated SettlementState = "initiated"
	// SettlementInFlight: one approver holds the claim and the gateway call
	// is underway. No other approve or reject may proceed.
	SettlementInFlight SettlementState = "in-flight"
	// SettlementSettled: gateway debited the funds; statuses not yet flipped.
	SettlementSettled SettlementState = "settled"
	// SettlementFinalized: completion approved and job completed.
	SettlementFinalized SettlementState = "finalized"
)

// Settlement is keyed by the completion it pays out, which doubles as the
// idempotency key toward the payment gateway.
type Settlement struct {
	CompletionID     string          `json:"completion_id" gorm:"primaryKey;type:varchar(80)"`
	JobID            uint            `json:"job_id" gorm:"not null;index"`
	AdminID          uint            `json:"admin_id" gorm:"not null"`
	Amount           float64         `json:"amount" gorm:"type:decimal(12,2);not null"`
	State            SettlementState `json:"state" gorm:"type:varchar(20);not null"`
	PaymentReference string          `json:"payment_reference" gorm:"type:varchar(120)"`
	Attempts         int             `json:"attempts" gorm:"default:0"`
	LastError        string          `json:"last_error" gorm:"type:text"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}
