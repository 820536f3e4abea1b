package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"servicehub/internal/domain/entity"
	"servicehub/internal/domain/repository"
	"servicehub/pkg/errors"
)

var ctx = context.Background()

func createListing(t *testing.T, c *client, rate float64) *entity.Listing {
	t.Helper()
	l, err := c.listings.CreateListing(ctx, CreateListingInput{
		Title:       "Landing page",
		Description: "Responsive landing page",
		HourlyRate:  rate,
	})
	require.NoError(t, err)
	return l
}

func TestCreateListingAppliesDefaults(t *testing.T) {
	b := newBackend()
	x := b.newClient(t, "x@example.com")

	l := createListing(t, x, 35)

	assert.NotEmpty(t, l.ID)
	assert.Equal(t, x.me().ID, l.OwnerUserID)
	assert.Equal(t, entity.CategoryOther, l.Category)
	assert.Equal(t, "Not specified", l.DeliveryTime)
	assert.Equal(t, entity.ExperienceBeginner, l.ExperienceLevel)
	assert.False(t, l.CreatedAt.IsZero())

	require.Len(t, x.listings.Listings(), 1)
	time.Sleep(50 * time.Millisecond) // let the echo arrive
	assert.Len(t, x.listings.Listings(), 1)
}

func TestCreateListingValidation(t *testing.T) {
	b := newBackend()
	x := b.newClient(t, "x@example.com")

	_, err := x.listings.CreateListing(ctx, CreateListingInput{Title: "t", Description: "d", HourlyRate: -1})
	assert.True(t, errors.Is(err, errors.CodeValidation))

	_, err = x.listings.CreateListing(ctx, CreateListingInput{Title: "t", Description: "d", ExperienceLevel: "guru"})
	assert.True(t, errors.Is(err, errors.CodeValidation))
	assert.Zero(t, b.store.Len(listingsCol))
}

func TestDeleteListingRequiresOwnership(t *testing.T) {
	b := newBackend()
	x := b.newClient(t, "x@example.com")
	y := b.newClient(t, "y@example.com")
	l := createListing(t, x, 50)

	err := y.listings.DeleteListing(ctx, l.ID)
	assert.True(t, errors.Is(err, errors.CodeUnauthenticated))

	require.NoError(t, x.listings.DeleteListing(ctx, l.ID))
	assert.Empty(t, x.listings.Listings())
	assert.Zero(t, b.store.Len(listingsCol))
}

func TestDeleteListingFailureLeavesCache(t *testing.T) {
	b := newBackend()
	x := b.newClient(t, "x@example.com")
	l := createListing(t, x, 50)

	b.store.FailNext(listingsCol, "delete", errors.Network("offline", nil))
	err := x.listings.DeleteListing(ctx, l.ID)

	assert.True(t, errors.Is(err, errors.CodeNetwork))
	assert.Len(t, x.listings.Listings(), 1)
}

func TestFetchAllListingsIsPublic(t *testing.T) {
	b := newBackend()
	x := b.newClient(t, "x@example.com")
	y := b.newClient(t, "y@example.com")
	createListing(t, x, 20)
	createListing(t, y, 80)

	all, err := y.listings.FetchAllListings(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Len(t, y.listings.Listings(), 1)
}

func TestLogoutClearsEveryCache(t *testing.T) {
	b := newBackend()
	x := b.newClient(t, "x@example.com")
	y := b.newClient(t, "y@example.com")

	l := createListing(t, x, 30)
	conv, err := y.messaging.FindOrCreateConversation(ctx, x.me().ID, l.ID, l.Title)
	require.NoError(t, err)
	_, err = y.messaging.SendMessage(ctx, conv.ID, "hello")
	require.NoError(t, err)
	_, err = y.reviews.CreateReview(ctx, CreateReviewInput{ListingID: l.ID, ListingProviderID: x.me().ID, Rating: 5})
	require.NoError(t, err)
	_, err = b.adminPayments().Create(ctx, &entity.Payment{BuyerID: y.me().ID, SellerID: x.me().ID, Status: entity.PaymentStatusPending})
	require.NoError(t, err)
	eventually(t, func() bool { return len(y.payments.Payments()) == 1 }, "payment pushed")

	y.auth.Logout(ctx)

	assert.Empty(t, y.messaging.Conversations())
	assert.Empty(t, y.messaging.Messages(conv.ID))
	assert.Empty(t, y.reviews.UserReviews())
	assert.Empty(t, y.reviews.ListingReviews(l.ID))
	assert.Empty(t, y.payments.Payments())
	assert.Empty(t, y.listings.Listings())
	for _, lc := range y.lifecycles() {
		assert.Equal(t, StateReady, lc.State())
	}

	// Nothing leaks in after logout either.
	_, err = b.adminPayments().Create(ctx, &entity.Payment{BuyerID: "someone", SellerID: x.me().ID})
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, y.payments.Payments())
}

func TestSecondReviewForSamePairIsRejected(t *testing.T) {
	b := newBackend()
	x := b.newClient(t, "x@example.com")
	y := b.newClient(t, "y@example.com")
	l := createListing(t, x, 30)

	input := CreateReviewInput{ListingID: l.ID, ListingProviderID: x.me().ID, Rating: 4, Comment: "Good", TransactionID: "tx1"}
	first, err := y.reviews.CreateReview(ctx, input)
	require.NoError(t, err)
	assert.True(t, first.IsVerifiedPurchase)

	_, err = y.reviews.CreateReview(ctx, input)
	require.True(t, errors.Is(err, errors.CodeValidation))
	assert.Equal(t, "You have already reviewed this service", errors.MessageOf(err))

	assert.Len(t, y.reviews.ListingReviews(l.ID), 1)
	assert.Len(t, y.reviews.UserReviews(), 1)
	assert.Equal(t, 1, b.store.Len(reviewsCol))
}

func TestDuplicateReviewCaughtRemotelyWhenCacheIsEmpty(t *testing.T) {
	b := newBackend()
	x := b.newClient(t, "x@example.com")
	y := b.newClient(t, "y@example.com")
	l := createListing(t, x, 30)
	input := CreateReviewInput{ListingID: l.ID, ListingProviderID: x.me().ID, Rating: 4}
	_, err := y.reviews.CreateReview(ctx, input)
	require.NoError(t, err)

	// A second device of the same user starts with empty caches.
	other := NewReviewUseCase(y.auth, y.reviews.reviews, nil)
	assert.True(t, other.CanReview(l.ID, x.me().ID))

	_, err = other.CreateReview(ctx, input)
	assert.True(t, errors.Is(err, errors.CodeValidation))
}

func TestReviewRulesAndStats(t *testing.T) {
	b := newBackend()
	x := b.newClient(t, "x@example.com")
	l := createListing(t, x, 30)

	assert.False(t, x.reviews.CanReview(l.ID, x.me().ID))
	_, err := x.reviews.CreateReview(ctx, CreateReviewInput{ListingID: l.ID, ListingProviderID: x.me().ID, Rating: 5})
	assert.True(t, errors.Is(err, errors.CodeValidation))

	for i, rating := range []int{5, 5, 4, 3} {
		reviewer := b.newClient(t, string(rune('a'+i))+"@example.com")
		assert.True(t, reviewer.reviews.CanReview(l.ID, x.me().ID))
		_, err := reviewer.reviews.CreateReview(ctx, CreateReviewInput{ListingID: l.ID, ListingProviderID: x.me().ID, Rating: rating})
		require.NoError(t, err)
		assert.False(t, reviewer.reviews.CanReview(l.ID, x.me().ID))
	}

	assert.False(t, x.reviews.HasFetched(l.ID))
	_, err = x.reviews.FetchListingReviews(ctx, l.ID)
	require.NoError(t, err)
	assert.True(t, x.reviews.HasFetched(l.ID))

	stats := x.reviews.ReviewStats(l.ID)
	assert.Equal(t, 4, stats.TotalReviews)
	assert.Equal(t, 4.3, stats.AverageRating)
	assert.Equal(t, map[int]int{5: 2, 4: 1, 3: 1, 2: 0, 1: 0}, stats.RatingDistribution)
	eventually(t, func() bool { return len(x.reviews.ReceivedReviews()) == 4 }, "received reviews pushed")
}

func TestUpdateAndDeleteReview(t *testing.T) {
	b := newBackend()
	x := b.newClient(t, "x@example.com")
	y := b.newClient(t, "y@example.com")
	l := createListing(t, x, 30)
	r, err := y.reviews.CreateReview(ctx, CreateReviewInput{ListingID: l.ID, ListingProviderID: x.me().ID, Rating: 2})
	require.NoError(t, err)

	rating, comment := 4, "  Better after revision "
	updated, err := y.reviews.UpdateReview(ctx, r.ID, UpdateReviewInput{Rating: &rating, Comment: &comment})
	require.NoError(t, err)
	assert.Equal(t, 4, updated.Rating)
	assert.Equal(t, "Better after revision", updated.Comment)
	require.NotNil(t, updated.UpdatedAt)
	assert.Equal(t, 4, y.reviews.ListingReviews(l.ID)[0].Rating)

	_, err = x.reviews.UpdateReview(ctx, r.ID, UpdateReviewInput{Rating: &rating})
	assert.True(t, errors.Is(err, errors.CodeUnauthenticated))

	bad := 9
	_, err = y.reviews.UpdateReview(ctx, r.ID, UpdateReviewInput{Rating: &bad})
	assert.True(t, errors.Is(err, errors.CodeValidation))

	require.NoError(t, y.reviews.DeleteReview(ctx, r.ID))
	assert.Empty(t, y.reviews.UserReviews())
	assert.Empty(t, y.reviews.ListingReviews(l.ID))
}

func TestReviewsNotConfigured(t *testing.T) {
	b := newBackend()
	x := b.newClient(t, "x@example.com")
	disabled := NewReviewUseCase(x.auth, nil, nil)
	disabled.Start()
	defer disabled.Close()
	<-disabled.Ready()

	_, err := disabled.CreateReview(ctx, CreateReviewInput{ListingID: "l", ListingProviderID: "p", Rating: 5})
	assert.True(t, errors.Is(err, errors.CodeInternal))
	_, err = disabled.FetchListingReviews(ctx, "l")
	assert.True(t, errors.Is(err, errors.CodeInternal))
	assert.Empty(t, disabled.UserReviews())
}

func TestConversationIsSymmetric(t *testing.T) {
	b := newBackend()
	x := b.newClient(t, "x@example.com")
	y := b.newClient(t, "y@example.com")

	first, err := x.messaging.FindOrCreateConversation(ctx, y.me().ID, "", "")
	require.NoError(t, err)
	second, err := y.messaging.FindOrCreateConversation(ctx, x.me().ID, "", "")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, b.store.Len(conversationsCol))
	assert.Equal(t, "x@example.com", first.ParticipantAEmail)
	assert.Equal(t, entity.UnknownParticipantEmail, first.ParticipantBEmail)
	assert.Zero(t, first.UnreadCountForA)
	assert.Zero(t, first.UnreadCountForB)

	other := y.messaging.OtherParticipant(second)
	assert.Equal(t, x.me().ID, other.ID)
}

func TestConversationValidation(t *testing.T) {
	b := newBackend()
	x := b.newClient(t, "x@example.com")

	_, err := x.messaging.FindOrCreateConversation(ctx, x.me().ID, "", "")
	assert.True(t, errors.Is(err, errors.CodeValidation))
	_, err = x.messaging.FindOrCreateConversation(ctx, " ", "", "")
	assert.True(t, errors.Is(err, errors.CodeValidation))
	assert.Zero(t, b.store.Len(conversationsCol))

	_, err = x.messaging.SendMessage(ctx, "whatever", "   ")
	assert.True(t, errors.Is(err, errors.CodeValidation))
}

func TestUnreadCountAndMarkRead(t *testing.T) {
	b := newBackend()
	x := b.newClient(t, "x@example.com")
	y := b.newClient(t, "y@example.com")

	conv, err := y.messaging.FindOrCreateConversation(ctx, x.me().ID, "", "")
	require.NoError(t, err)
	for _, text := range []string{"one", "two", "three"} {
		_, err := y.messaging.SendMessage(ctx, conv.ID, text)
		require.NoError(t, err)
	}
	for _, text := range []string{"four", "five"} {
		_, err := x.messaging.SendMessage(ctx, conv.ID, text)
		require.NoError(t, err)
	}

	_, err = x.messaging.FetchMessages(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, x.messaging.Messages(conv.ID), 5)
	assert.Equal(t, 3, x.messaging.UnreadCount(conv))

	require.NoError(t, x.messaging.MarkRead(ctx, conv.ID))
	assert.Equal(t, 0, x.messaging.UnreadCount(conv))

	require.NoError(t, x.messaging.MarkRead(ctx, conv.ID))
	assert.Equal(t, 0, x.messaging.UnreadCount(conv))
}

func TestSendMessageUpdatesSummaryAndSurvivesItsFailure(t *testing.T) {
	b := newBackend()
	x := b.newClient(t, "x@example.com")
	y := b.newClient(t, "y@example.com")
	conv, err := y.messaging.FindOrCreateConversation(ctx, x.me().ID, "", "")
	require.NoError(t, err)

	long := make([]rune, 150)
	for i := range long {
		long[i] = 'a'
	}
	_, err = y.messaging.SendMessage(ctx, conv.ID, string(long))
	require.NoError(t, err)
	cached, ok := y.messaging.convCache.Find(conv.ID)
	require.True(t, ok)
	assert.Len(t, []rune(cached.LastMessageText), 100)

	b.store.FailNext(conversationsCol, "update", errors.Network("offline", nil))
	msg, err := y.messaging.SendMessage(ctx, conv.ID, "still sent")
	require.NoError(t, err)
	assert.Equal(t, "still sent", msg.Content)
	assert.Len(t, y.messaging.Messages(conv.ID), 2)
}

func TestListingToFirstMessage(t *testing.T) {
	b := newBackend()
	x := b.newClient(t, "x@example.com")
	y := b.newClient(t, "y@example.com")

	l := createListing(t, x, 35)
	conv, err := y.messaging.FindOrCreateConversation(ctx, x.me().ID, l.ID, l.Title)
	require.NoError(t, err)
	_, err = y.messaging.SendMessage(ctx, conv.ID, "Hi, interested")
	require.NoError(t, err)

	eventually(t, func() bool {
		for _, c := range x.messaging.Conversations() {
			if c.ID == conv.ID {
				return x.messaging.UnreadCount(c) == 1
			}
		}
		return false
	}, "X sees one unread message")
	assert.Equal(t, l.Title, x.messaging.Conversations()[0].RelatedListingTitle)
}

func TestPaymentSuccessRaisesEarnings(t *testing.T) {
	b := newBackend()
	x := b.newClient(t, "x@example.com")
	y := b.newClient(t, "y@example.com")
	l := createListing(t, x, 35)

	payment, err := b.adminPayments().Create(ctx, &entity.Payment{
		PaymentIntentRef: "pi_1", ListingID: l.ID, BuyerID: y.me().ID, SellerID: x.me().ID,
		Amount: 35, Currency: "sgd", Status: entity.PaymentStatusPending, CreatedAt: time.Now(),
	}, repository.ReadUser(y.me().ID), repository.ReadUser(x.me().ID))
	require.NoError(t, err)
	eventually(t, func() bool { return len(x.payments.PendingPayments()) == 1 }, "pending payment pushed")
	before := x.payments.Earnings()

	_, err = b.adminPayments().Update(ctx, payment.ID, map[string]interface{}{
		"status": entity.PaymentStatusSucceeded, "completedAt": time.Now(),
	})
	require.NoError(t, err)
	_, err = b.adminTransactions().Create(ctx, &entity.Transaction{
		PaymentID: payment.ID, ListingID: l.ID, BuyerID: y.me().ID, SellerID: x.me().ID,
		Amount: 35, Currency: "sgd", Type: entity.TransactionTypeServicePayment,
		Status: entity.TransactionStatusCompleted, TransactionDate: time.Now(),
	}, repository.ReadUser(y.me().ID), repository.ReadUser(x.me().ID))
	require.NoError(t, err)

	eventually(t, func() bool {
		p, ok := x.payments.paymentCache.Find(payment.ID)
		return ok && p.Status == entity.PaymentStatusSucceeded && len(x.payments.Transactions()) == 1
	}, "payment and transaction pushed")
	assert.True(t, x.payments.Earnings().Sub(before).Equal(decimal.NewFromInt(35)))
	assert.Empty(t, x.payments.PendingPayments())

	eventually(t, func() bool { return len(y.payments.Transactions()) == 1 }, "buyer sees transaction")
	assert.True(t, y.payments.Spending().Equal(decimal.NewFromInt(35)))
	assert.True(t, y.payments.Earnings().IsZero())
}

func TestCreatePaymentIntent(t *testing.T) {
	b := newBackend()
	x := b.newClient(t, "x@example.com")
	y := b.newClient(t, "y@example.com")
	l := createListing(t, x, 35)

	_, err := x.payments.CreatePaymentIntent(ctx, CreatePaymentIntentInput{ListingID: l.ID, Amount: 35})
	assert.True(t, errors.Is(err, errors.CodeValidation))
	assert.Empty(t, x.intents.bearers)

	_, err = y.payments.CreatePaymentIntent(ctx, CreatePaymentIntentInput{ListingID: l.ID, Amount: 0})
	assert.True(t, errors.Is(err, errors.CodeValidation))

	intent, err := y.payments.CreatePaymentIntent(ctx, CreatePaymentIntentInput{ListingID: l.ID, Amount: 35})
	require.NoError(t, err)
	assert.Equal(t, "cs_test", intent.ClientSecret)
	assert.Equal(t, []string{y.auth.Credentials().IDToken}, y.intents.bearers)
	assert.Equal(t, "sgd", y.intents.req.Currency)
	assert.Equal(t, l.ID, y.intents.req.ServiceID)
}

func TestPaymentIntentRetriesWithRefreshedToken(t *testing.T) {
	b := newBackend()
	x := b.newClient(t, "x@example.com")
	y := b.newClient(t, "y@example.com")
	l := createListing(t, x, 35)

	y.intents.err = errors.AuthorizationExpired("token expired", nil)
	b.auth.ExpireTokens(y.me().ID)

	_, err := y.payments.CreatePaymentIntent(ctx, CreatePaymentIntentInput{ListingID: l.ID, Amount: 35})
	require.NoError(t, err)
	require.Len(t, y.intents.bearers, 2)
	assert.Equal(t, y.auth.Credentials().IDToken, y.intents.bearers[1])
}

func TestExpiredTokenIsRefreshedOnce(t *testing.T) {
	b := newBackend()
	x := b.newClient(t, "x@example.com")
	createListing(t, x, 35)

	b.auth.ExpireTokens(x.me().ID)
	listings, err := x.listings.FetchListings(ctx)

	require.NoError(t, err)
	assert.Len(t, listings, 1)
	assert.NotNil(t, x.auth.CurrentUser())
}

func TestRevokedSessionSurfacesSessionExpired(t *testing.T) {
	b := newBackend()
	x := b.newClient(t, "x@example.com")
	createListing(t, x, 35)

	b.auth.RevokeSessions(x.me().ID)
	_, err := x.listings.FetchListings(ctx)

	assert.True(t, errors.Is(err, errors.CodeSessionExpired))
	assert.Nil(t, x.auth.CurrentUser())
	assert.Empty(t, x.listings.Listings())
}

func TestSecondRejectionAfterRefreshIsSessionExpired(t *testing.T) {
	b := newBackend()
	x := b.newClient(t, "x@example.com")
	createListing(t, x, 35)

	b.store.FailNext(listingsCol, "list", errors.AuthorizationExpired("rejected", nil))
	listings, err := x.listings.FetchListings(ctx)
	require.NoError(t, err)
	require.Len(t, listings, 1)

	b.auth.ExpireTokens(x.me().ID)
	calls := 0
	_, err = withAuthRecovery(ctx, x.auth, "test", func(context.Context) (int, error) {
		calls++
		return 0, errors.AuthorizationExpired("rejected", nil)
	})
	assert.True(t, errors.Is(err, errors.CodeSessionExpired))
	assert.Equal(t, 2, calls)
}

func TestNonAuthErrorsAreNotRetried(t *testing.T) {
	b := newBackend()
	x := b.newClient(t, "x@example.com")

	calls := 0
	_, err := withAuthRecovery(ctx, x.auth, "test", func(context.Context) (int, error) {
		calls++
		return 0, errors.Network("offline", nil)
	})
	assert.True(t, errors.Is(err, errors.CodeNetwork))
	assert.Equal(t, 1, calls)
}

func TestFailedFetchLeavesCacheUntouched(t *testing.T) {
	b := newBackend()
	x := b.newClient(t, "x@example.com")
	createListing(t, x, 35)

	b.store.FailNext(listingsCol, "list", errors.Network("offline", nil))
	_, err := x.listings.FetchListings(ctx)

	assert.True(t, errors.Is(err, errors.CodeNetwork))
	assert.Len(t, x.listings.Listings(), 1)
}

func TestUnauthenticatedOperations(t *testing.T) {
	b := newBackend()
	x := b.newClient(t, "x@example.com")
	x.auth.Logout(ctx)

	_, err := x.listings.CreateListing(ctx, CreateListingInput{Title: "t", Description: "d"})
	assert.True(t, errors.Is(err, errors.CodeUnauthenticated))
	_, err = x.messaging.SendMessage(ctx, "c", "hi")
	assert.True(t, errors.Is(err, errors.CodeUnauthenticated))
	_, err = x.reviews.CreateReview(ctx, CreateReviewInput{ListingID: "l", ListingProviderID: "p", Rating: 5})
	assert.True(t, errors.Is(err, errors.CodeUnauthenticated))
	_, err = x.payments.CreatePaymentIntent(ctx, CreatePaymentIntentInput{ListingID: "l", Amount: 1})
	assert.True(t, errors.Is(err, errors.CodeUnauthenticated))
	assert.False(t, x.reviews.CanReview("l", "p"))

	all, err := x.listings.FetchAllListings(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestSignInAgainReloadsCaches(t *testing.T) {
	b := newBackend()
	x := b.newClient(t, "x@example.com")
	createListing(t, x, 35)

	x.auth.Logout(ctx)
	assert.Empty(t, x.listings.Listings())

	_, err := x.auth.Login(ctx, "x@example.com", "secret123")
	require.NoError(t, err)
	x.waitReady(t)

	assert.Len(t, x.listings.Listings(), 1)
	assert.Equal(t, StateReady, x.listings.State())
}
