package service

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"servicehub/internal/domain/entity"
	"servicehub/pkg/errors"
	"servicehub/pkg/logger"
)

// PaymentIntentRequest is the body the payment function expects.
type PaymentIntentRequest struct {
	ServiceID   string  `json:"serviceId"`
	Amount      float64 `json:"amount"`
	Currency    string  `json:"currency"`
	Description string  `json:"description,omitempty"`
}

type paymentIntentError struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// PaymentIntentService asks the external payment function for a payment intent.
// The function also writes the pending Payment document the caches later observe.
type PaymentIntentService interface {
	CreatePaymentIntent(ctx context.Context, bearer string, req PaymentIntentRequest) (*entity.PaymentIntent, error)
}

type HTTPPaymentIntentService struct {
	functionURL string
	client      *http.Client
}

func NewHTTPPaymentIntentService(functionURL string, timeout time.Duration) *HTTPPaymentIntentService {
	return &HTTPPaymentIntentService{
		functionURL: functionURL,
		client:      &http.Client{Timeout: timeout},
	}
}

func (s *HTTPPaymentIntentService) CreatePaymentIntent(ctx context.Context, bearer string, req PaymentIntentRequest) (*entity.PaymentIntent, error) {
	if s.functionURL == "" {
		return nil, errors.Internal("Payment function URL is not configured", nil)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Internal("Failed to encode payment request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.functionURL, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Internal("Failed to create payment request", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+bearer)

	resp, err := s.client.Do(httpReq)
	if err != nil {
		var netErr net.Error
		if stderrors.As(err, &netErr) || stderrors.Is(err, context.DeadlineExceeded) {
			return nil, errors.Network("Payment service unreachable", err)
		}
		return nil, errors.Unknown(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Network("Failed to read payment response", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		var apiErr paymentIntentError
		json.Unmarshal(raw, &apiErr)
		message := apiErr.Error
		if message == "" {
			message = "Failed to create payment intent"
		}
		logger.Warn("Payment function returned %d for service %s: %s", resp.StatusCode, req.ServiceID, message)

		cause := fmt.Errorf("payment function: %s", message)
		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return nil, errors.AuthorizationExpired(message, cause)
		case resp.StatusCode == http.StatusNotFound:
			return nil, errors.NotFound("Service", cause)
		case resp.StatusCode >= http.StatusInternalServerError:
			return nil, errors.New(errors.CodeUnknown, message, http.StatusBadGateway, cause)
		default:
			return nil, errors.BadRequest(message, cause)
		}
	}

	var intent entity.PaymentIntent
	if err := json.Unmarshal(raw, &intent); err != nil {
		return nil, errors.Unknown(err)
	}
	if intent.ClientSecret == "" {
		return nil, errors.Unknown(stderrors.New("payment function returned no client secret"))
	}

	logger.Info("Payment intent %s created for service %s", intent.PaymentIntentID, req.ServiceID)
	return &intent, nil
}
