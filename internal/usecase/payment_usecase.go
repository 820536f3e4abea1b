package usecase

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/tomb.v2"

	"servicehub/internal/domain/entity"
	"servicehub/internal/domain/repository"
	"servicehub/internal/domain/service"
	"servicehub/internal/infrastructure/metrics"
	"servicehub/pkg/errors"
	"servicehub/pkg/logger"
	"servicehub/pkg/utils"
)

type CreatePaymentIntentInput struct {
	ListingID   string  `json:"listing_id" validate:"required"`
	Amount      float64 `json:"amount" validate:"gt=0"`
	Description string  `json:"description"`
}

// PaymentUseCase mirrors the payments and transactions the signed-in user is
// part of. Their status is only ever written by the payment webhook.
type PaymentUseCase struct {
	*lifecycle

	auth         *AuthUseCase
	payments     repository.Collection[*entity.Payment]
	transactions repository.Collection[*entity.Transaction]
	listings     repository.Collection[*entity.Listing]
	intents      service.PaymentIntentService
	currency     string
	paymentCache *Cache[*entity.Payment]
	txCache      *Cache[*entity.Transaction]
	metrics      *metrics.Metrics
}

func NewPaymentUseCase(
	auth *AuthUseCase,
	payments repository.Collection[*entity.Payment],
	transactions repository.Collection[*entity.Transaction],
	listings repository.Collection[*entity.Listing],
	intents service.PaymentIntentService,
	currency string,
	m *metrics.Metrics,
) *PaymentUseCase {
	uc := &PaymentUseCase{
		auth:         auth,
		payments:     payments,
		transactions: transactions,
		listings:     listings,
		intents:      intents,
		currency:     strings.ToLower(currency),
		metrics:      m,
		paymentCache: NewCache[*entity.Payment]("payments", InsertNewestFirst, func(p *entity.Payment, me entity.Identity) bool {
			return p.InvolvesUser(me.ID)
		}, m),
		txCache: NewCache[*entity.Transaction]("transactions", InsertNewestFirst, func(t *entity.Transaction, me entity.Identity) bool {
			return t.InvolvesUser(me.ID)
		}, m),
	}
	uc.lifecycle = newLifecycle("payments", auth, uc)
	return uc
}

func (uc *PaymentUseCase) Payments() []*entity.Payment {
	return uc.paymentCache.Items()
}

func (uc *PaymentUseCase) Transactions() []*entity.Transaction {
	return uc.txCache.Items()
}

func (uc *PaymentUseCase) OnChange(fn func(Change)) {
	uc.paymentCache.OnChange(fn)
	uc.txCache.OnChange(fn)
}

func buyerOrSeller(userID string) repository.Filter {
	return repository.Or(
		repository.Equal("buyerId", userID),
		repository.Equal("sellerId", userID),
	)
}

func (uc *PaymentUseCase) FetchPayments(ctx context.Context) ([]*entity.Payment, error) {
	me := uc.auth.CurrentUser()
	if me == nil {
		return nil, errors.Unauthenticated("Sign in to see your payments")
	}

	ticket := uc.paymentCache.beginFetch()
	query := repository.NewQuery(buyerOrSeller(me.ID)).OrderBy("createdAt", repository.Desc)
	payments, err := withAuthRecovery(ctx, uc.auth, "fetch payments", func(ctx context.Context) ([]*entity.Payment, error) {
		return uc.payments.List(ctx, query)
	})
	uc.metrics.Fetch(uc.paymentCache.Name(), err)
	if err != nil {
		uc.paymentCache.abortFetch(ticket)
		logger.Error("Failed to fetch payments for %s: %v", me.ID, err)
		return nil, err
	}

	uc.paymentCache.commitFetch(ticket, payments)
	return uc.paymentCache.Items(), nil
}

func (uc *PaymentUseCase) FetchTransactions(ctx context.Context) ([]*entity.Transaction, error) {
	me := uc.auth.CurrentUser()
	if me == nil {
		return nil, errors.Unauthenticated("Sign in to see your transactions")
	}

	ticket := uc.txCache.beginFetch()
	query := repository.NewQuery(buyerOrSeller(me.ID)).OrderBy("transactionDate", repository.Desc)
	transactions, err := withAuthRecovery(ctx, uc.auth, "fetch transactions", func(ctx context.Context) ([]*entity.Transaction, error) {
		return uc.transactions.List(ctx, query)
	})
	uc.metrics.Fetch(uc.txCache.Name(), err)
	if err != nil {
		uc.txCache.abortFetch(ticket)
		logger.Error("Failed to fetch transactions for %s: %v", me.ID, err)
		return nil, err
	}

	uc.txCache.commitFetch(ticket, transactions)
	return uc.txCache.Items(), nil
}

func (uc *PaymentUseCase) RefreshPayments(ctx context.Context) error {
	return uc.refresh(ctx)
}

func (uc *PaymentUseCase) GetPayment(ctx context.Context, id string) (*entity.Payment, error) {
	if uc.auth.CurrentUser() == nil {
		return nil, errors.Unauthenticated("Sign in to see your payments")
	}
	if p, ok := uc.paymentCache.Find(id); ok {
		return p, nil
	}
	return withAuthRecovery(ctx, uc.auth, "get payment", func(ctx context.Context) (*entity.Payment, error) {
		return uc.payments.Get(ctx, id)
	})
}

// CreatePaymentIntent asks the payment function for a client secret. The
// resulting payment shows up through the push feed once the function wrote it.
func (uc *PaymentUseCase) CreatePaymentIntent(ctx context.Context, input CreatePaymentIntentInput) (*entity.PaymentIntent, error) {
	me := uc.auth.CurrentUser()
	if me == nil {
		return nil, errors.Unauthenticated("Sign in to pay for a service")
	}
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}

	listing, err := withAuthRecovery(ctx, uc.auth, "get listing", func(ctx context.Context) (*entity.Listing, error) {
		return uc.listings.Get(ctx, input.ListingID)
	})
	if err != nil {
		return nil, err
	}
	if listing.OwnerUserID == me.ID {
		return nil, errors.Validation("You cannot pay for your own service")
	}

	req := service.PaymentIntentRequest{
		ServiceID:   input.ListingID,
		Amount:      input.Amount,
		Currency:    uc.currency,
		Description: input.Description,
	}
	if req.Description == "" {
		req.Description = "Payment for " + listing.Title
	}

	intent, err := withAuthRecovery(ctx, uc.auth, "create payment intent", func(ctx context.Context) (*entity.PaymentIntent, error) {
		session := uc.auth.Credentials()
		if session == nil {
			return nil, errors.Unauthenticated("Sign in to pay for a service")
		}
		return uc.intents.CreatePaymentIntent(ctx, session.IDToken, req)
	})
	if err != nil {
		logger.Error("Payment intent for listing %s failed: %v", input.ListingID, err)
		return nil, err
	}

	logger.Info("Payment intent %s created for listing %s by %s", intent.PaymentIntentID, input.ListingID, me.ID)
	return intent, nil
}

// Earnings sums completed transactions where the signed-in user is the seller.
func (uc *PaymentUseCase) Earnings() decimal.Decimal {
	return uc.sumCompleted(func(t *entity.Transaction, me string) bool { return t.SellerID == me })
}

// Spending sums completed transactions where the signed-in user is the buyer.
func (uc *PaymentUseCase) Spending() decimal.Decimal {
	return uc.sumCompleted(func(t *entity.Transaction, me string) bool { return t.BuyerID == me })
}

func (uc *PaymentUseCase) sumCompleted(side func(*entity.Transaction, string) bool) decimal.Decimal {
	total := decimal.Zero
	me := uc.auth.CurrentUser()
	if me == nil {
		return total
	}
	for _, t := range uc.txCache.Items() {
		if t.Status == entity.TransactionStatusCompleted && side(t, me.ID) {
			total = total.Add(decimal.NewFromFloat(t.Amount))
		}
	}
	return total
}

func (uc *PaymentUseCase) PendingPayments() []*entity.Payment {
	var pending []*entity.Payment
	for _, p := range uc.paymentCache.Items() {
		if p.Status == entity.PaymentStatusPending {
			pending = append(pending, p)
		}
	}
	return pending
}

func (uc *PaymentUseCase) reset(epoch uint64, me *entity.Identity) {
	uc.paymentCache.Reset(epoch, me)
	uc.txCache.Reset(epoch, me)
}

func (uc *PaymentUseCase) subscribe(ctx context.Context, t *tomb.Tomb, me entity.Identity, epoch uint64) error {
	query := repository.NewQuery(buyerOrSeller(me.ID))
	err := openFeed(ctx, t, uc.payments, query, func(ev repository.ChangeEvent[*entity.Payment]) {
		uc.paymentCache.Apply(ev, epoch)
	})
	if err != nil {
		return err
	}
	return openFeed(ctx, t, uc.transactions, query, func(ev repository.ChangeEvent[*entity.Transaction]) {
		uc.txCache.Apply(ev, epoch)
	})
}

func (uc *PaymentUseCase) probe(ctx context.Context) error {
	if err := probeCollection(ctx, uc.auth, uc.payments); err != nil {
		return err
	}
	return probeCollection(ctx, uc.auth, uc.transactions)
}

func (uc *PaymentUseCase) fetch(ctx context.Context) error {
	if _, err := uc.FetchPayments(ctx); err != nil {
		return err
	}
	_, err := uc.FetchTransactions(ctx)
	return err
}
