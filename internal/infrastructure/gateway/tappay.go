// Package gateway implements the TapPay charge-authorization client.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"confgive/internal/infrastructure/config"
	"confgive/internal/shared/logger"
)

// ErrUnavailable indicates the gateway could not be reached or returned a
// non-2xx response. A business decline (Result.Status != 0) is not an error.
var ErrUnavailable = errors.New("payment gateway unavailable")

// StatusAuthorized is the gateway status code for an authorized charge.
const StatusAuthorized = 0

// Cardholder carries the caller-supplied cardholder attributes. The struct is
// forwarded to the gateway as-is, so json tags follow the gateway's naming.
type Cardholder struct {
	PhoneCode   string `json:"phoneCode,omitempty"`
	PhoneNumber string `json:"phone_number"`
	Name        string `json:"name"`
	Email       string `json:"email,omitempty"`
	NationalID  string `json:"nationalid,omitempty"`
	TaxID       string `json:"taxid,omitempty"`
	Note        string `json:"note,omitempty"`
	Receipt     bool   `json:"receipt,omitempty"`
	PaymentType string `json:"paymentType,omitempty"`
	Upload      any    `json:"upload,omitempty"`
	ReceiptName string `json:"receiptName,omitempty"`
	Company     string `json:"company,omitempty"`
	Campus      string `json:"campus,omitempty"`
}

// Result is the gateway's response to a charge attempt. Raw preserves the
// full response body so the request handler can echo it back verbatim.
type Result struct {
	Status     int
	RecTradeID string
	Raw        json.RawMessage
}

// Authorized reports whether the charge was approved.
func (r *Result) Authorized() bool {
	return r.Status == StatusAuthorized
}

type Client struct {
	cfg        config.GatewayConfig
	httpClient *http.Client
	log        logger.Interface
}

func NewClient(cfg config.GatewayConfig, log logger.Interface) *Client {
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: log.Named("gateway"),
	}
}

type chargeRequest struct {
	Prime      string      `json:"prime"`
	PartnerKey string      `json:"partner_key"`
	MerchantID string      `json:"merchant_id"`
	Amount     int64       `json:"amount"`
	Cardholder *Cardholder `json:"cardholder"`
	Currency   string      `json:"currency"`
	Details    string      `json:"details"`
	Remember   bool        `json:"remember"`
}

type chargeResponse struct {
	Status     int    `json:"status"`
	RecTradeID string `json:"rec_trade_id"`
}

// Charge performs a single authorization attempt against the gateway. There
// is no retry at this layer; the caller decides whether to retry the whole
// charge flow.
func (c *Client) Charge(ctx context.Context, prime string, amount int64, cardholder *Cardholder, phoneNumber string) (*Result, error) {
	payload := chargeRequest{
		Prime:      prime,
		PartnerKey: c.cfg.PartnerKey,
		MerchantID: c.cfg.MerchantID,
		Amount:     amount,
		Cardholder: cardholder,
		Currency:   c.cfg.Currency,
		Details:    buildDetails(phoneNumber, cardholder),
		Remember:   false,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal charge request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build charge request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.cfg.PartnerKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Errorw("charge request failed", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.log.Errorw("charge request rejected",
			"http_status", resp.StatusCode,
			"body_size", len(respBody))
		return nil, fmt.Errorf("%w: http status %d", ErrUnavailable, resp.StatusCode)
	}

	var parsed chargeResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("%w: malformed response: %v", ErrUnavailable, err)
	}

	return &Result{
		Status:     parsed.Status,
		RecTradeID: parsed.RecTradeID,
		Raw:        respBody,
	}, nil
}

// buildDetails derives the gateway details string: "phoneNumber,id,note"
// where id is the national id when present, otherwise the tax id.
func buildDetails(phoneNumber string, cardholder *Cardholder) string {
	id := cardholder.NationalID
	if id == "" {
		id = cardholder.TaxID
	}
	return fmt.Sprintf("%s,%s,%s", phoneNumber, id, cardholder.Note)
}
