package models

import "time"

// PaymentStatus is the state reported by the receiver.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentRequested PaymentStatus = "requested"
	PaymentPaid      PaymentStatus = "paid"
	PaymentEstimated PaymentStatus = "estimated"
)

// PaymentRecord is written into a manifest's payinfo field by the receiver.
// Estimated marks a record computed locally while the receiver's figure is
// still outstanding.
type PaymentRecord struct {
	Amount    float64       `json:"amount" firestore:"amount"`
	Currency  string        `json:"currency" firestore:"currency"`
	PayeeID   string        `json:"payeeId" firestore:"payee_id"`
	PayeeName string        `json:"payeeName,omitempty" firestore:"payee_name,omitempty"`
	Status    PaymentStatus `json:"status" firestore:"status"`
	Estimated bool          `json:"estimated" firestore:"estimated"`
	Note      string        `json:"note,omitempty" firestore:"note,omitempty"`
	UpdatedAt time.Time     `json:"updatedAt,omitempty" firestore:"updated_at,omitempty"`
}
