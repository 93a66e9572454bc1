package models

import "time"

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentConfirmed PaymentStatus = "confirmed"
)

// PaymentRequest records a user's intent to pay for a membership plan. No
// money moves here; an admin confirms the request out of band.
type PaymentRequest struct {
	ID          string        `json:"id"`
	UserID      string        `json:"user_id"`
	Plan        string        `json:"plan"`
	Months      int           `json:"months"`
	Amount      int64         `json:"amount"`
	Status      PaymentStatus `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
	ConfirmedAt *time.Time    `json:"confirmed_at,omitempty"`
}
