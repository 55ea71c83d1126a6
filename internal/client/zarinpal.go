package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"groupbuy-backend/internal/config"
)

// PaymentGateway abstracts the payment provider: request a redirect for an
// amount, then verify the payment the gateway reports back.
type PaymentGateway interface {
	RequestPayment(ctx context.Context, req *PaymentRequest) (*PaymentRequestResult, error)
	VerifyPayment(ctx context.Context, authority string, amount int64) (string, error)
}

type PaymentRequest struct {
	Amount      int64
	Description string
	CallbackURL string
}

type PaymentRequestResult struct {
	Authority string
	PayURL    string
}

type zarinpalClientImpl struct {
	httpClient  *http.Client
	baseApiURL  string
	startPayURL string
	merchantID  string
}

func NewZarinpalClient(cfg *config.Zarinpal) PaymentGateway {
	return &zarinpalClientImpl{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseApiURL:  cfg.BaseApiURL,
		startPayURL: cfg.StartPayURL,
		merchantID:  cfg.MerchantID,
	}
}

type zarinpalRequestPayload struct {
	MerchantID  string `json:"merchant_id"`
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
	CallbackURL string `json:"callback_url"`
}

type zarinpalData struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	Authority string `json:"authority"`
	RefID     int64  `json:"ref_id"`
}

type zarinpalResponse struct {
	Data   zarinpalData    `json:"data"`
	Errors json.RawMessage `json:"errors"`
}

func (c *zarinpalClientImpl) RequestPayment(ctx context.Context, req *PaymentRequest) (*PaymentRequestResult, error) {
	payload := zarinpalRequestPayload{
		MerchantID:  c.merchantID,
		Amount:      req.Amount,
		Description: req.Description,
		CallbackURL: req.CallbackURL,
	}

	var res zarinpalResponse
	if err := c.post(ctx, "/request.json", payload, &res); err != nil {
		return nil, err
	}
	if res.Data.Code != 100 {
		return nil, fmt.Errorf("zarinpal request rejected: code=%d message=%s", res.Data.Code, res.Data.Message)
	}

	return &PaymentRequestResult{
		Authority: res.Data.Authority,
		PayURL:    fmt.Sprintf("%s/%s", c.startPayURL, res.Data.Authority),
	}, nil
}

func (c *zarinpalClientImpl) VerifyPayment(ctx context.Context, authority string, amount int64) (string, error) {
	payload := map[string]interface{}{
		"merchant_id": c.merchantID,
		"amount":      amount,
		"authority":   authority,
	}

	var res zarinpalResponse
	if err := c.post(ctx, "/verify.json", payload, &res); err != nil {
		return "", err
	}

	// 100 is a fresh verification, 101 an already-verified replay. Both
	// count as paid.
	if res.Data.Code != 100 && res.Data.Code != 101 {
		return "", fmt.Errorf("zarinpal verify rejected: code=%d message=%s", res.Data.Code, res.Data.Message)
	}

	return fmt.Sprintf("%d", res.Data.RefID), nil
}

func (c *zarinpalClientImpl) post(ctx context.Context, path string, payload interface{}, out *zarinpalResponse) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal req payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseApiURL+path, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("http new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http client do: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("zarinpal error %d: %s", resp.StatusCode, string(b))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode zarinpal response: %w", err)
	}
	return nil
}
