package entity

import "time"

const (
	PaymentStatusPending   = "pending"
	PaymentStatusSucceeded = "succeeded"
	PaymentStatusFailed    = "failed"
	PaymentStatusCanceled  = "canceled"
)

// Payment status is written only by the payment webhook; clients observe it.
type Payment struct {
	ID               string     `json:"id" firestore:"id"`
	PaymentIntentRef string     `json:"payment_intent_ref" firestore:"paymentIntentId"`
	ListingID        string     `json:"listing_id" firestore:"serviceId"`
	BuyerID          string     `json:"buyer_id" firestore:"buyerId"`
	SellerID         string     `json:"seller_id" firestore:"sellerId"`
	Amount           float64    `json:"amount" firestore:"amount"`
	Currency         string     `json:"currency" firestore:"currency"`
	Status           string     `json:"status" firestore:"status"`
	Description      string     `json:"description,omitempty" firestore:"description,omitempty"`
	FailureReason    string     `json:"failure_reason,omitempty" firestore:"failureReason,omitempty"`
	CreatedAt        time.Time  `json:"created_at" firestore:"createdAt"`
	CompletedAt      *time.Time `json:"completed_at,omitempty" firestore:"completedAt,omitempty"`
	FailedAt         *time.Time `json:"failed_at,omitempty" firestore:"failedAt,omitempty"`
	CanceledAt       *time.Time `json:"canceled_at,omitempty" firestore:"canceledAt,omitempty"`
}

func (p *Payment) GetID() string   { return p.ID }
func (p *Payment) SetID(id string) { p.ID = id }

func (p *Payment) InvolvesUser(userID string) bool {
	return userID != "" && (p.BuyerID == userID || p.SellerID == userID)
}

// PaymentIntent is returned by the external payment-intent function.
type PaymentIntent struct {
	ClientSecret    string `json:"clientSecret"`
	PaymentIntentID string `json:"paymentIntentId"`
	PaymentRecordID string `json:"paymentRecordId"`
}
