package entity

import (
	"time"
)

const (
	TransactionStatusCompleted    = "completed"
	TransactionTypeServicePayment = "service_payment"
)

// Transaction is appended by the webhook when a Payment succeeds. Clients never write it.
type Transaction struct {
	ID              string    `json:"id" firestore:"id"`
	PaymentID       string    `json:"payment_id" firestore:"paymentId"`
	ListingID       string    `json:"listing_id" firestore:"serviceId"`
	BuyerID         string    `json:"buyer_id" firestore:"buyerId"`
	SellerID        string    `json:"seller_id" firestore:"sellerId"`
	Amount          float64   `json:"amount" firestore:"amount"`
	Currency        string    `json:"currency" firestore:"currency"`
	Type            string    `json:"type" firestore:"type"`
	Status          string    `json:"status" firestore:"status"`
	PaymentMethod   string    `json:"payment_method,omitempty" firestore:"paymentMethod,omitempty"`
	TransactionDate time.Time `json:"transaction_date" firestore:"transactionDate"`
}

func (t *Transaction) GetID() string   { return t.ID }
func (t *Transaction) SetID(id string) { t.ID = id }

func (t *Transaction) InvolvesUser(userID string) bool {
	return userID != "" && (t.BuyerID == userID || t.SellerID == userID)
}
