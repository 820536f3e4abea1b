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

const (
	publicListingLimit  = 100
	defaultDeliveryTime = "Not specified"
)

type CreateListingInput struct {
	Title           string  `json:"title" validate:"required"`
	Description     string  `json:"description" validate:"required"`
	Category        string  `json:"category" validate:"omitempty,oneof=web-development mobile-development ui-ux-design graphic-design content-writing digital-marketing data-analysis video-editing photography translation virtual-assistant other"`
	HourlyRate      float64 `json:"hourly_rate" validate:"gte=0"`
	DeliveryTime    string  `json:"delivery_time"`
	Skills          string  `json:"skills"`
	ExperienceLevel string  `json:"experience_level" validate:"omitempty,oneof=beginner intermediate expert"`
}

// ListingUseCase caches the listings owned by the signed-in user and serves
// the public browse view.
type ListingUseCase struct {
	*lifecycle

	auth     *AuthUseCase
	listings repository.Collection[*entity.Listing]
	cache    *Cache[*entity.Listing]
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewListingUseCase(auth *AuthUseCase, listings repository.Collection[*entity.Listing], m *metrics.Metrics) *ListingUseCase {
	uc := &ListingUseCase{
		auth:     auth,
		listings: listings,
		metrics:  m,
		now:      time.Now,
		cache: NewCache[*entity.Listing]("listings", InsertNewestFirst, func(l *entity.Listing, me entity.Identity) bool {
			return l.OwnerUserID == me.ID
		}, m),
	}
	uc.lifecycle = newLifecycle("listings", auth, uc)
	return uc
}

// Listings returns the signed-in user's listings, newest first.
func (uc *ListingUseCase) Listings() []*entity.Listing {
	return uc.cache.Items()
}

func (uc *ListingUseCase) OnChange(fn func(Change)) {
	uc.cache.OnChange(fn)
}

func (uc *ListingUseCase) FetchListings(ctx context.Context) ([]*entity.Listing, error) {
	me := uc.auth.CurrentUser()
	if me == nil {
		return nil, errors.Unauthenticated("Sign in to see your listings")
	}

	ticket := uc.cache.beginFetch()
	query := repository.NewQuery(repository.Equal("userId", me.ID)).OrderBy("createdAt", repository.Desc)
	listings, err := withAuthRecovery(ctx, uc.auth, "fetch listings", func(ctx context.Context) ([]*entity.Listing, error) {
		return uc.listings.List(ctx, query)
	})
	uc.metrics.Fetch(uc.cache.Name(), err)
	if err != nil {
		uc.cache.abortFetch(ticket)
		logger.Error("Failed to fetch listings for %s: %v", me.ID, err)
		return nil, err
	}

	uc.cache.commitFetch(ticket, listings)
	return uc.cache.Items(), nil
}

// RefreshListings re-runs the owner fetch.
func (uc *ListingUseCase) RefreshListings(ctx context.Context) error {
	return uc.refresh(ctx)
}

// FetchAllListings returns the public listings of every user, newest first.
// The result is not cached. Signed-out callers get an empty list.
func (uc *ListingUseCase) FetchAllListings(ctx context.Context) ([]*entity.Listing, error) {
	if uc.auth.CurrentUser() == nil {
		return []*entity.Listing{}, nil
	}

	query := repository.NewQuery().OrderBy("createdAt", repository.Desc).WithLimit(publicListingLimit)
	listings, err := withAuthRecovery(ctx, uc.auth, "fetch all listings", func(ctx context.Context) ([]*entity.Listing, error) {
		return uc.listings.List(ctx, query)
	})
	if err != nil {
		logger.Error("Failed to fetch public listings: %v", err)
		return nil, err
	}
	return listings, nil
}

func (uc *ListingUseCase) GetListing(ctx context.Context, id string) (*entity.Listing, error) {
	if uc.auth.CurrentUser() == nil {
		return nil, errors.Unauthenticated("Sign in to view listings")
	}
	return withAuthRecovery(ctx, uc.auth, "get listing", func(ctx context.Context) (*entity.Listing, error) {
		return uc.listings.Get(ctx, id)
	})
}

func (uc *ListingUseCase) CreateListing(ctx context.Context, input CreateListingInput) (*entity.Listing, error) {
	me, epoch := uc.auth.IdentityAndEpoch()
	if me == nil {
		return nil, errors.Unauthenticated("Sign in to create a listing")
	}
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}

	listing := &entity.Listing{
		OwnerUserID:     me.ID,
		Title:           strings.TrimSpace(input.Title),
		Description:     strings.TrimSpace(input.Description),
		Category:        input.Category,
		HourlyRate:      input.HourlyRate,
		DeliveryTime:    strings.TrimSpace(input.DeliveryTime),
		Skills:          strings.TrimSpace(input.Skills),
		ExperienceLevel: input.ExperienceLevel,
		CreatedAt:       uc.now().UTC(),
	}
	if listing.Category == "" {
		listing.Category = entity.CategoryOther
	}
	if listing.DeliveryTime == "" {
		listing.DeliveryTime = defaultDeliveryTime
	}
	if listing.ExperienceLevel == "" {
		listing.ExperienceLevel = entity.ExperienceBeginner
	}

	created, err := withAuthRecovery(ctx, uc.auth, "create listing", func(ctx context.Context) (*entity.Listing, error) {
		return uc.listings.Create(ctx, listing, repository.OwnerOnly(me.ID)...)
	})
	if err != nil {
		logger.Error("Failed to create listing for %s: %v", me.ID, err)
		return nil, err
	}

	uc.cache.Insert(created, epoch)
	logger.Info("Listing %s created by %s", created.ID, me.ID)
	return created, nil
}

// DeleteListing removes an owned listing remotely, then from the cache.
func (uc *ListingUseCase) DeleteListing(ctx context.Context, id string) error {
	me, epoch := uc.auth.IdentityAndEpoch()
	if me == nil {
		return errors.Unauthenticated("Sign in to delete a listing")
	}

	listing, cached := uc.cache.Find(id)
	if !cached {
		var err error
		listing, err = uc.GetListing(ctx, id)
		if err != nil {
			return err
		}
	}
	if listing.OwnerUserID != me.ID {
		return errors.Unauthenticated("Only the owner can delete this listing")
	}

	err := recoverExec(ctx, uc.auth, "delete listing", func(ctx context.Context) error {
		return uc.listings.Delete(ctx, id)
	})
	if err != nil {
		logger.Error("Failed to delete listing %s: %v", id, err)
		return err
	}

	uc.cache.Remove(id, epoch)
	return nil
}

func (uc *ListingUseCase) reset(epoch uint64, me *entity.Identity) {
	uc.cache.Reset(epoch, me)
}

func (uc *ListingUseCase) subscribe(ctx context.Context, t *tomb.Tomb, me entity.Identity, epoch uint64) error {
	query := repository.NewQuery(repository.Equal("userId", me.ID))
	return openFeed(ctx, t, uc.listings, query, func(ev repository.ChangeEvent[*entity.Listing]) {
		uc.cache.Apply(ev, epoch)
	})
}

func (uc *ListingUseCase) probe(ctx context.Context) error {
	return probeCollection(ctx, uc.auth, uc.listings)
}

func (uc *ListingUseCase) fetch(ctx context.Context) error {
	_, err := uc.FetchListings(ctx)
	return err
}
