package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/richardliu001/wallet-ledger/internal/model"
	"github.com/shopspring/decimal"
)

const SignatureHeader = "X-Wallet-Signature"

type webhookPayload struct {
	ReferenceID string                  `json:"reference_id"`
	Type        model.TransactionType   `json:"type"`
	Status      model.TransactionStatus `json:"status"`
	Amount      decimal.Decimal         `json:"amount"`
	Currency    string                  `json:"currency"`
	CompletedAt *time.Time              `json:"completed_at,omitempty"`
}

// WebhookHook posts settled transactions as JSON to a receipt/email
// collaborator. When Secret is set the body is signed with HMAC-SHA256.
type WebhookHook struct {
	URL    string
	Secret string
	Client *http.Client
}

func NewWebhookHook(url, secret string, timeout time.Duration) *WebhookHook {
	return &WebhookHook{URL: url, Secret: secret, Client: &http.Client{Timeout: timeout}}
}

func (h *WebhookHook) OnSettled(ctx context.Context, t *model.Transaction) error {
	body, err := json.Marshal(webhookPayload{
		ReferenceID: t.ReferenceID,
		Type:        t.Type,
		Status:      t.Status,
		Amount:      t.Amount,
		Currency:    t.Currency,
		CompletedAt: t.CompletedAt,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "wallet-ledger-webhook/1.0")
	if h.Secret != "" {
		req.Header.Set(SignatureHeader, Sign(h.Secret, body))
	}

	resp, err := h.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return fmt.Errorf("webhook %s returned %d", h.URL, resp.StatusCode)
}

// Sign returns the hex HMAC-SHA256 of body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
