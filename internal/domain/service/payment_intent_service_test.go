package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"servicehub/pkg/errors"
)

func TestCreatePaymentIntentSendsBearerAndBody(t *testing.T) {
	// Setup
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer token-1", r.Header.Get("Authorization"))

		var body PaymentIntentRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "svc-1", body.ServiceID)
		assert.Equal(t, 35.0, body.Amount)
		assert.Equal(t, "sgd", body.Currency)

		json.NewEncoder(w).Encode(map[string]string{
			"clientSecret":    "pi_1_secret",
			"paymentIntentId": "pi_1",
			"paymentRecordId": "pay-1",
		})
	}))
	defer srv.Close()
	svc := NewHTTPPaymentIntentService(srv.URL, time.Second)

	// Execute
	intent, err := svc.CreatePaymentIntent(context.Background(), "token-1", PaymentIntentRequest{
		ServiceID: "svc-1",
		Amount:    35,
		Currency:  "sgd",
	})

	// Assertions
	require.NoError(t, err)
	assert.Equal(t, "pi_1_secret", intent.ClientSecret)
	assert.Equal(t, "pi_1", intent.PaymentIntentID)
	assert.Equal(t, "pay-1", intent.PaymentRecordID)
}

func TestCreatePaymentIntentMapsErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		code   string
	}{
		{"bad request", http.StatusBadRequest, errors.CodeValidation},
		{"unauthorized", http.StatusUnauthorized, errors.CodeAuthorizationExpired},
		{"not found", http.StatusNotFound, errors.CodeNotFound},
		{"server error", http.StatusInternalServerError, errors.CodeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				json.NewEncoder(w).Encode(map[string]string{"error": "Service ID and amount are required"})
			}))
			defer srv.Close()

			_, err := NewHTTPPaymentIntentService(srv.URL, time.Second).
				CreatePaymentIntent(context.Background(), "t", PaymentIntentRequest{})

			assert.Equal(t, tt.code, errors.CodeOf(err))
		})
	}
}

func TestCreatePaymentIntentUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewHTTPPaymentIntentService(url, time.Second).
		CreatePaymentIntent(context.Background(), "t", PaymentIntentRequest{ServiceID: "s", Amount: 1})

	assert.True(t, errors.Is(err, errors.CodeNetwork))
}
