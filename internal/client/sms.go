package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"groupbuy-backend/internal/config"
	"groupbuy-backend/internal/dto"
)

// Notifier tells a group leader how their group ended up.
type Notifier interface {
	SendGroupOutcome(ctx context.Context, phone string, outcome dto.GroupOutcome, amount int64) error
}

type smsNotifierImpl struct {
	httpClient *http.Client
	baseApiURL string
	apiKey     string
	lineNumber string
}

// NewNotifier returns an SMS notifier, or a log-only one when no SMS API
// key is configured (local development).
func NewNotifier(cfg *config.SMS) Notifier {
	if cfg.APIKey == "" {
		return &logNotifierImpl{}
	}
	return &smsNotifierImpl{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseApiURL: cfg.BaseApiURL,
		apiKey:     cfg.APIKey,
		lineNumber: cfg.LineNumber,
	}
}

func (c *smsNotifierImpl) SendGroupOutcome(ctx context.Context, phone string, outcome dto.GroupOutcome, amount int64) error {
	if phone == "" {
		return nil
	}

	payload := map[string]interface{}{
		"lineNumber":  c.lineNumber,
		"mobile":      phone,
		"messageText": outcomeMessage(outcome, amount),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal sms payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseApiURL+"/v1/send", bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("http new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-KEY", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http client do: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("sms provider error %d: %s", resp.StatusCode, string(b))
	}
	return nil
}

func outcomeMessage(outcome dto.GroupOutcome, amount int64) string {
	switch outcome {
	case dto.GroupOutcomeNeedsPayment:
		return fmt.Sprintf("Your group closed short of its target. Settle %d to release the orders.", amount)
	case dto.GroupOutcomeRefundDue:
		return fmt.Sprintf("Your group closed above its target. A refund of %d is on its way.", amount)
	case dto.GroupOutcomeFailedWithPayment:
		return "Your group did not take off. Your payment will be refunded."
	default:
		return "Your group closed with nothing left to settle. Orders are on their way."
	}
}

type logNotifierImpl struct{}

func (c *logNotifierImpl) SendGroupOutcome(ctx context.Context, phone string, outcome dto.GroupOutcome, amount int64) error {
	slog.Info("group outcome notification (sms disabled)",
		"phone", phone, "outcome", string(outcome), "amount", amount)
	return nil
}
