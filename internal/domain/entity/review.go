package entity

import (
	"time"
)

// Review is one reviewer's rating of a listing. At most one per (listing, reviewer).
type Review struct {
	ID                 string     `json:"id" firestore:"id"`
	ListingID          string     `json:"listing_id" firestore:"serviceId"`
	ListingProviderID  string     `json:"listing_provider_id" firestore:"serviceProviderId"`
	ReviewerID         string     `json:"reviewer_id" firestore:"reviewerId"`
	ReviewerEmail      string     `json:"reviewer_email" firestore:"reviewerEmail"`
	Rating             int        `json:"rating" firestore:"rating"` // 1-5
	Comment            string     `json:"comment" firestore:"comment"`
	TransactionID      string     `json:"transaction_id,omitempty" firestore:"transactionId,omitempty"`
	IsVerifiedPurchase bool       `json:"is_verified_purchase" firestore:"isVerifiedPurchase"`
	CreatedAt          time.Time  `json:"created_at" firestore:"createdAt"`
	UpdatedAt          *time.Time `json:"updated_at,omitempty" firestore:"updatedAt,omitempty"`
}

func (r *Review) GetID() string   { return r.ID }
func (r *Review) SetID(id string) { r.ID = id }

// ReviewStats aggregates the cached reviews of one listing.
type ReviewStats struct {
	TotalReviews       int         `json:"total_reviews"`
	AverageRating      float64     `json:"average_rating"`
	RatingDistribution map[int]int `json:"rating_distribution"`
}
