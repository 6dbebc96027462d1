package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/emmanuel-nwafor/foremade/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCard(url string) *CardStrategy {
	return NewCardStrategy(CardConfig{
		BaseURL:     url,
		Timeout:     50 * time.Millisecond,
		MaxAttempts: 3,
		BackoffBase: time.Millisecond,
	}, nil)
}

func TestCardInitiate_SendsMinorUnits(t *testing.T) {
	var got createIntentRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/create-payment-intent", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(map[string]string{"clientSecret": "pi_1_secret"})
	}))
	defer srv.Close()

	intent, err := newCard(srv.URL).Initiate(context.Background(), Request{
		CheckoutID: "co-1",
		UserID:     "u-1",
		Amount:     decimal.RequireFromString("26.23"),
		Currency:   "GBP",
	})
	require.NoError(t, err)
	assert.Equal(t, "pi_1_secret", intent.ClientSecret)
	assert.Equal(t, domain.GatewayCard, intent.Gateway)
	assert.Equal(t, int64(2623), got.Amount)
	assert.Equal(t, "GBP", got.Currency)
	assert.Equal(t, "co-1", got.Metadata["checkout_id"])
}

func TestCardConfirm_RetriesTimeoutsThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			select {
			case <-time.After(time.Second):
			case <-r.Context().Done():
			}
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "succeeded", "id": "pi_123"})
	}))
	defer srv.Close()

	res, err := newCard(srv.URL).Confirm(context.Background(),
		Intent{ClientSecret: "pi_1_secret"}, Confirmation{PaymentMethodID: "pm_card"})
	require.NoError(t, err)
	assert.Equal(t, &domain.PaymentResult{Gateway: domain.GatewayCard, ID: "pi_123"}, res)
	assert.Equal(t, int32(3), calls.Load())
}

func TestCardConfirm_KeepsRetryingPastCallerDeadline(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			select {
			case <-time.After(time.Second):
			case <-r.Context().Done():
			}
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "succeeded", "id": "pi_123"})
	}))
	defer srv.Close()

	// shorter than two attempt timeouts
	ctx, cancel := context.WithTimeout(context.Background(), 70*time.Millisecond)
	defer cancel()

	res, err := newCard(srv.URL).Confirm(ctx,
		Intent{ClientSecret: "pi_1_secret"}, Confirmation{PaymentMethodID: "pm_card"})
	require.NoError(t, err)
	assert.Equal(t, "pi_123", res.ID)
	assert.Equal(t, int32(3), calls.Load())
}

func TestCardConfirm_GivesUpAfterThreeTimeouts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	_, err := newCard(srv.URL).Confirm(context.Background(),
		Intent{ClientSecret: "s"}, Confirmation{PaymentMethodID: "pm"})
	require.Error(t, err)
	assert.True(t, IsTransient(err))
	assert.Equal(t, int32(3), calls.Load())
}

func TestCardConfirm_DeclineIsTerminal(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusPaymentRequired)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "Your card was declined.", "code": "card_declined"})
	}))
	defer srv.Close()

	_, err := newCard(srv.URL).Confirm(context.Background(),
		Intent{ClientSecret: "s"}, Confirmation{PaymentMethodID: "pm"})

	var pe *PaymentError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "card_declined", pe.Code)
	assert.Equal(t, "Your card was declined.", pe.Message)
	assert.Equal(t, http.StatusPaymentRequired, pe.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestCardConfirm_NonSucceededStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "requires_action", "id": "pi_9"})
	}))
	defer srv.Close()

	_, err := newCard(srv.URL).Confirm(context.Background(),
		Intent{ClientSecret: "s"}, Confirmation{PaymentMethodID: "pm"})
	var pe *PaymentError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "requires_action", pe.Code)
}

func TestCardConfirm_RequiresPaymentMethod(t *testing.T) {
	_, err := newCard("http://unused").Confirm(context.Background(), Intent{ClientSecret: "s"}, Confirmation{})
	var pe *PaymentError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "missing_payment_method", pe.Code)
}

func TestMobileMoney_InitiateAndConfirm(t *testing.T) {
	var calls atomic.Int32
	var got initiateMobileRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/initiate-paystack-payment", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(map[string]string{"reference": "ref_abc"})
	}))
	defer srv.Close()

	s := NewMobileMoneyStrategy(MobileMoneyConfig{BaseURL: srv.URL, Gateway: "paystack"}, nil)
	intent, err := s.Initiate(context.Background(), Request{
		CheckoutID: "co-1",
		Email:      "ada@example.com",
		Amount:     decimal.RequireFromString("2290"),
		Currency:   "NGN",
	})
	require.NoError(t, err)
	assert.Equal(t, "ref_abc", intent.Reference)
	assert.Equal(t, int64(229000), got.Amount)
	assert.Equal(t, "ada@example.com", got.Email)

	res, err := s.Confirm(context.Background(), *intent, Confirmation{Reference: "ref_abc"})
	require.NoError(t, err)
	assert.Equal(t, &domain.PaymentResult{Gateway: domain.GatewayMobileMoney, ID: "ref_abc"}, res)

	_, err = s.Confirm(context.Background(), *intent, Confirmation{Reference: "ref_other"})
	var pe *PaymentError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "reference_mismatch", pe.Code)
	assert.Equal(t, int32(1), calls.Load())
}

func TestMobileMoney_DoesNotRetryTimeouts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	s := NewMobileMoneyStrategy(MobileMoneyConfig{BaseURL: srv.URL, Timeout: 20 * time.Millisecond}, nil)
	_, err := s.Initiate(context.Background(), Request{Amount: decimal.NewFromInt(1), Currency: "NGN"})
	assert.True(t, IsTransient(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestSelector(t *testing.T) {
	card := newCard("http://card")
	mobile := NewMobileMoneyStrategy(MobileMoneyConfig{BaseURL: "http://mm"}, nil)
	sel := NewSelector(card, mobile)

	s, err := sel.ForCountry(domain.CountryNigeria)
	require.NoError(t, err)
	assert.Equal(t, domain.GatewayMobileMoney, s.Gateway())
	assert.Equal(t, "NGN", s.Currency())

	s, err = sel.ForCountry(domain.CountryUnitedKingdom)
	require.NoError(t, err)
	assert.Equal(t, domain.GatewayCard, s.Gateway())
	assert.Equal(t, "GBP", s.Currency())

	_, err = sel.ForCountry("France")
	assert.ErrorIs(t, err, ErrUnsupportedCountry)

	s, err = sel.ForGateway(domain.GatewayCard)
	require.NoError(t, err)
	assert.Same(t, card, s)

	_, err = sel.ForGateway("cash")
	assert.ErrorIs(t, err, ErrUnknownGateway)
}
