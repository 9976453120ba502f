package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"confgive/internal/infrastructure/config"
	"confgive/internal/shared/logger"
)

func testCardholder() *Cardholder {
	return &Cardholder{
		PhoneCode:   "+886",
		PhoneNumber: "912345678",
		Name:        "王小明",
		Email:       "donor@example.com",
		NationalID:  "A123456789",
		Note:        "奉獻",
		PaymentType: "credit_card",
	}
}

func newTestClient(apiURL string) *Client {
	return NewClient(config.GatewayConfig{
		APIURL:     apiURL,
		PartnerKey: "partner_key_test",
		MerchantID: "merchant_test",
		Currency:   "TWD",
	}, logger.NewLogger())
}

func TestChargeAuthorized(t *testing.T) {
	var gotBody map[string]any
	var gotAPIKey string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAPIKey = r.Header.Get("x-api-key")
		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(raw, &gotBody))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":0,"msg":"Success","rec_trade_id":"T123"}`))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)

	result, err := client.Charge(context.Background(), "prime_token", 1000, testCardholder(), "+886912345678")

	require.NoError(t, err)
	assert.True(t, result.Authorized())
	assert.Equal(t, "T123", result.RecTradeID)
	assert.JSONEq(t, `{"status":0,"msg":"Success","rec_trade_id":"T123"}`, string(result.Raw))

	assert.Equal(t, "partner_key_test", gotAPIKey)
	assert.Equal(t, "prime_token", gotBody["prime"])
	assert.Equal(t, "partner_key_test", gotBody["partner_key"])
	assert.Equal(t, "merchant_test", gotBody["merchant_id"])
	assert.Equal(t, float64(1000), gotBody["amount"])
	assert.Equal(t, "TWD", gotBody["currency"])
	assert.Equal(t, "+886912345678,A123456789,奉獻", gotBody["details"])
	assert.Equal(t, false, gotBody["remember"])
}

func TestChargeDeclinedIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":10003,"msg":"Card declined"}`))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)

	result, err := client.Charge(context.Background(), "prime_token", 1000, testCardholder(), "+886912345678")

	require.NoError(t, err)
	assert.False(t, result.Authorized())
	assert.Equal(t, 10003, result.Status)
	assert.Empty(t, result.RecTradeID)
}

func TestChargeNon2xxIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)

	result, err := client.Charge(context.Background(), "prime_token", 1000, testCardholder(), "+886912345678")

	assert.Nil(t, result)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestChargeNetworkFailureIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	client := newTestClient(srv.URL)

	result, err := client.Charge(context.Background(), "prime_token", 1000, testCardholder(), "+886912345678")

	assert.Nil(t, result)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestChargeMalformedResponseIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)

	result, err := client.Charge(context.Background(), "prime_token", 1000, testCardholder(), "+886912345678")

	assert.Nil(t, result)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestBuildDetailsFallsBackToTaxID(t *testing.T) {
	withNationalID := &Cardholder{NationalID: "A123456789", TaxID: "12345678", Note: "note"}
	assert.Equal(t, "+886912345678,A123456789,note", buildDetails("+886912345678", withNationalID))

	companyOnly := &Cardholder{TaxID: "12345678", Note: "note"}
	assert.Equal(t, "+886912345678,12345678,note", buildDetails("+886912345678", companyOnly))

	neither := &Cardholder{Note: ""}
	assert.Equal(t, "+886912345678,,", buildDetails("+886912345678", neither))
}
