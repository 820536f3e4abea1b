package usecase

import (
	"context"
	"strings"
	"time"

	"gopkg.in/tomb.v2"

	"servicehub/internal/domain/entity"
	"servicehub/internal/domain/repository"
	"servicehub/internal/infrastructure/metrics"
	"servicehub/pkg/errors"
	"servicehub/pkg/logger"
	"servicehub/pkg/utils"
)

const listingReviewLimit = 50

type CreateReviewInput struct {
	ListingID         string `json:"listing_id" validate:"required"`
	ListingProviderID string `json:"listing_provider_id" validate:"required"`
	Rating            int    `json:"rating" validate:"min=1,max=5"`
	Comment           string `json:"comment"`
	TransactionID     string `json:"transaction_id"`
}

type UpdateReviewInput struct {
	Rating  *int    `json:"rating" validate:"omitempty,min=1,max=5"`
	Comment *string `json:"comment"`
}

// ReviewUseCase keeps three views of the reviews collection: per listing,
// written by the signed-in user and received by them. A nil collection means
// reviews are not configured.
type ReviewUseCase struct {
	*lifecycle

	auth      *AuthUseCase
	reviews   repository.Collection[*entity.Review]
	byListing *PartitionedCache[*entity.Review]
	written   *Cache[*entity.Review]
	received  *Cache[*entity.Review]
	metrics   *metrics.Metrics
	now       func() time.Time
}

func NewReviewUseCase(auth *AuthUseCase, reviews repository.Collection[*entity.Review], m *metrics.Metrics) *ReviewUseCase {
	uc := &ReviewUseCase{
		auth:    auth,
		reviews: reviews,
		metrics: m,
		now:     time.Now,
		byListing: NewPartitionedCache[*entity.Review]("listing_reviews", InsertNewestFirst, func(r *entity.Review) string {
			return r.ListingID
		}, m),
		written: NewCache[*entity.Review]("my_reviews", InsertNewestFirst, func(r *entity.Review, me entity.Identity) bool {
			return r.ReviewerID == me.ID
		}, m),
		received: NewCache[*entity.Review]("received_reviews", InsertNewestFirst, func(r *entity.Review, me entity.Identity) bool {
			return r.ListingProviderID == me.ID
		}, m),
	}
	uc.lifecycle = newLifecycle("reviews", auth, uc)
	return uc
}

func (uc *ReviewUseCase) Enabled() bool {
	return uc.reviews != nil
}

func (uc *ReviewUseCase) notConfigured() error {
	return errors.Internal("Reviews are not configured", nil)
}

func (uc *ReviewUseCase) OnChange(fn func(Change)) {
	uc.byListing.OnChange(fn)
	uc.written.OnChange(fn)
	uc.received.OnChange(fn)
}

func (uc *ReviewUseCase) ListingReviews(listingID string) []*entity.Review {
	return uc.byListing.Partition(listingID)
}

func (uc *ReviewUseCase) UserReviews() []*entity.Review {
	return uc.written.Items()
}

func (uc *ReviewUseCase) ReceivedReviews() []*entity.Review {
	return uc.received.Items()
}

// HasFetched tells "no reviews" apart from "not loaded yet".
func (uc *ReviewUseCase) HasFetched(listingID string) bool {
	return uc.byListing.Fetched(listingID)
}

func (uc *ReviewUseCase) ReviewStats(listingID string) entity.ReviewStats {
	return ComputeReviewStats(uc.byListing.Partition(listingID))
}

func (uc *ReviewUseCase) AverageRating(listingID string) float64 {
	return uc.ReviewStats(listingID).AverageRating
}

// CanReview answers from the cache only: signed in, not the provider, and no
// cached review of the listing by the signed-in user.
func (uc *ReviewUseCase) CanReview(listingID, providerID string) bool {
	me := uc.auth.CurrentUser()
	if me == nil || me.ID == providerID {
		return false
	}
	return uc.cachedReviewBy(listingID, me.ID) == nil
}

func (uc *ReviewUseCase) cachedReviewBy(listingID, reviewerID string) *entity.Review {
	for _, r := range uc.byListing.Partition(listingID) {
		if r.ReviewerID == reviewerID {
			return r
		}
	}
	for _, r := range uc.written.Items() {
		if r.ListingID == listingID && r.ReviewerID == reviewerID {
			return r
		}
	}
	return nil
}

func (uc *ReviewUseCase) FetchListingReviews(ctx context.Context, listingID string) ([]*entity.Review, error) {
	if !uc.Enabled() {
		return nil, uc.notConfigured()
	}
	if uc.auth.CurrentUser() == nil {
		return nil, errors.Unauthenticated("Sign in to read reviews")
	}

	ticket := uc.byListing.beginFetch(listingID)
	query := repository.NewQuery(repository.Equal("serviceId", listingID)).
		OrderBy("createdAt", repository.Desc).
		WithLimit(listingReviewLimit)
	reviews, err := withAuthRecovery(ctx, uc.auth, "fetch listing reviews", func(ctx context.Context) ([]*entity.Review, error) {
		return uc.reviews.List(ctx, query)
	})
	uc.metrics.Fetch(uc.byListing.Name(), err)
	if err != nil {
		uc.byListing.abortFetch(ticket)
		logger.Error("Failed to fetch reviews of listing %s: %v", listingID, err)
		return nil, err
	}

	uc.byListing.commitFetch(ticket, reviews)
	return uc.byListing.Partition(listingID), nil
}

func (uc *ReviewUseCase) FetchUserReviews(ctx context.Context) ([]*entity.Review, error) {
	return uc.fetchView(ctx, uc.written, "reviewerId")
}

func (uc *ReviewUseCase) FetchReceivedReviews(ctx context.Context) ([]*entity.Review, error) {
	return uc.fetchView(ctx, uc.received, "serviceProviderId")
}

func (uc *ReviewUseCase) fetchView(ctx context.Context, view *Cache[*entity.Review], field string) ([]*entity.Review, error) {
	if !uc.Enabled() {
		return nil, uc.notConfigured()
	}
	me := uc.auth.CurrentUser()
	if me == nil {
		return nil, errors.Unauthenticated("Sign in to read reviews")
	}

	ticket := view.beginFetch()
	query := repository.NewQuery(repository.Equal(field, me.ID)).OrderBy("createdAt", repository.Desc)
	reviews, err := withAuthRecovery(ctx, uc.auth, "fetch "+view.Name(), func(ctx context.Context) ([]*entity.Review, error) {
		return uc.reviews.List(ctx, query)
	})
	uc.metrics.Fetch(view.Name(), err)
	if err != nil {
		view.abortFetch(ticket)
		logger.Error("Failed to fetch %s for %s: %v", view.Name(), me.ID, err)
		return nil, err
	}

	view.commitFetch(ticket, reviews)
	return view.Items(), nil
}

// CreateReview adds the signed-in user's review of a listing. At most one review
// per listing and reviewer is accepted; the remote check is best effort.
func (uc *ReviewUseCase) CreateReview(ctx context.Context, input CreateReviewInput) (*entity.Review, error) {
	if !uc.Enabled() {
		return nil, uc.notConfigured()
	}
	me, epoch := uc.auth.IdentityAndEpoch()
	if me == nil {
		return nil, errors.Unauthenticated("Sign in to leave a review")
	}
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	if input.ListingProviderID == me.ID {
		return nil, errors.Validation("You cannot review your own service")
	}
	if uc.cachedReviewBy(input.ListingID, me.ID) != nil {
		return nil, errors.Validation("You have already reviewed this service")
	}

	query := repository.NewQuery(
		repository.Equal("serviceId", input.ListingID),
		repository.Equal("reviewerId", me.ID),
	).WithLimit(1)
	existing, err := withAuthRecovery(ctx, uc.auth, "check existing review", func(ctx context.Context) ([]*entity.Review, error) {
		return uc.reviews.List(ctx, query)
	})
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return nil, errors.Validation("You have already reviewed this service")
	}

	transactionID := strings.TrimSpace(input.TransactionID)
	review := &entity.Review{
		ListingID:          input.ListingID,
		ListingProviderID:  input.ListingProviderID,
		ReviewerID:         me.ID,
		ReviewerEmail:      me.Email,
		Rating:             input.Rating,
		Comment:            strings.TrimSpace(input.Comment),
		TransactionID:      transactionID,
		IsVerifiedPurchase: transactionID != "",
		CreatedAt:          uc.now().UTC(),
	}
	created, err := withAuthRecovery(ctx, uc.auth, "create review", func(ctx context.Context) (*entity.Review, error) {
		return uc.reviews.Create(ctx, review, repository.OwnerOnly(me.ID)...)
	})
	if err != nil {
		logger.Error("Failed to create review of %s by %s: %v", input.ListingID, me.ID, err)
		return nil, err
	}

	uc.byListing.Insert(created, epoch)
	uc.written.Insert(created, epoch)
	logger.Info("Review %s created for listing %s", created.ID, created.ListingID)
	return created, nil
}

func (uc *ReviewUseCase) ownedReview(ctx context.Context, id string, me string) (*entity.Review, error) {
	review, ok := uc.written.Find(id)
	if !ok {
		review, ok = uc.byListing.Find(id)
	}
	if !ok {
		var err error
		review, err = withAuthRecovery(ctx, uc.auth, "get review", func(ctx context.Context) (*entity.Review, error) {
			return uc.reviews.Get(ctx, id)
		})
		if err != nil {
			return nil, err
		}
	}
	if review.ReviewerID != me {
		return nil, errors.Unauthenticated("Only the author can change this review")
	}
	return review, nil
}

// UpdateReview edits rating and comment of an owned review and stamps updatedAt.
func (uc *ReviewUseCase) UpdateReview(ctx context.Context, id string, input UpdateReviewInput) (*entity.Review, error) {
	if !uc.Enabled() {
		return nil, uc.notConfigured()
	}
	me, epoch := uc.auth.IdentityAndEpoch()
	if me == nil {
		return nil, errors.Unauthenticated("Sign in to edit a review")
	}
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	if _, err := uc.ownedReview(ctx, id, me.ID); err != nil {
		return nil, err
	}

	patch := map[string]interface{}{"updatedAt": uc.now().UTC()}
	if input.Rating != nil {
		patch["rating"] = *input.Rating
	}
	if input.Comment != nil {
		patch["comment"] = strings.TrimSpace(*input.Comment)
	}

	updated, err := withAuthRecovery(ctx, uc.auth, "update review", func(ctx context.Context) (*entity.Review, error) {
		return uc.reviews.Update(ctx, id, patch)
	})
	if err != nil {
		logger.Error("Failed to update review %s: %v", id, err)
		return nil, err
	}

	uc.byListing.Replace(updated, epoch)
	uc.written.Replace(updated, epoch)
	uc.received.Replace(updated, epoch)
	return updated, nil
}

func (uc *ReviewUseCase) DeleteReview(ctx context.Context, id string) error {
	if !uc.Enabled() {
		return uc.notConfigured()
	}
	me, epoch := uc.auth.IdentityAndEpoch()
	if me == nil {
		return errors.Unauthenticated("Sign in to delete a review")
	}
	if _, err := uc.ownedReview(ctx, id, me.ID); err != nil {
		return err
	}

	err := recoverExec(ctx, uc.auth, "delete review", func(ctx context.Context) error {
		return uc.reviews.Delete(ctx, id)
	})
	if err != nil {
		logger.Error("Failed to delete review %s: %v", id, err)
		return err
	}

	uc.byListing.Remove(id, epoch)
	uc.written.Remove(id, epoch)
	uc.received.Remove(id, epoch)
	return nil
}

func (uc *ReviewUseCase) reset(epoch uint64, me *entity.Identity) {
	uc.byListing.Reset(epoch, me)
	uc.written.Reset(epoch, me)
	uc.received.Reset(epoch, me)
}

func (uc *ReviewUseCase) subscribe(ctx context.Context, t *tomb.Tomb, me entity.Identity, epoch uint64) error {
	if !uc.Enabled() {
		return nil
	}
	return openFeed(ctx, t, uc.reviews, repository.NewQuery(), func(ev repository.ChangeEvent[*entity.Review]) {
		uc.byListing.Apply(ev, epoch)
		uc.written.Apply(ev, epoch)
		uc.received.Apply(ev, epoch)
	})
}

func (uc *ReviewUseCase) probe(ctx context.Context) error {
	if !uc.Enabled() {
		return nil
	}
	return probeCollection(ctx, uc.auth, uc.reviews)
}

func (uc *ReviewUseCase) fetch(ctx context.Context) error {
	if !uc.Enabled() {
		return nil
	}
	if _, err := uc.FetchUserReviews(ctx); err != nil {
		return err
	}
	_, err := uc.FetchReceivedReviews(ctx)
	return err
}
