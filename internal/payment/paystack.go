package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Ensure Paystack implements Gateway
var _ Gateway = (*Paystack)(nil)

// Paystack is a thin client for the Paystack REST API. Amounts are in kobo,
// matching the rest of the system.
type Paystack struct {
	baseURL   string
	secretKey string
	client    *http.Client
}

// NewPaystack creates a Paystack client. The timeout bounds every gateway
// call, including verification during reconciliation.
func NewPaystack(baseURL, secretKey string, timeout time.Duration) *Paystack {
	return &Paystack{
		baseURL:   baseURL,
		secretKey: secretKey,
		client:    &http.Client{Timeout: timeout},
	}
}

type paystackEnvelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type paystackTransaction struct {
	Status   string                 `json:"status"`
	Amount   int64                  `json:"amount"`
	Currency string                 `json:"currency"`
	Channel  string                 `json:"channel"`
	Metadata map[string]interface{} `json:"metadata"`
}

// Verify fetches the authoritative transaction state from Paystack.
func (p *Paystack) Verify(ctx context.Context, reference string) (*Transaction, error) {
	endpoint := p.baseURL + "/transaction/verify/" + url.PathEscape(reference)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build verify request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.secretKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("verify request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("verify returned status %d", resp.StatusCode)
	}

	var envelope paystackEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("failed to decode verify response: %w", err)
	}
	if !envelope.Status {
		return nil, fmt.Errorf("verify rejected: %s", envelope.Message)
	}

	var tx paystackTransaction
	if err := json.Unmarshal(envelope.Data, &tx); err != nil {
		return nil, fmt.Errorf("failed to decode transaction: %w", err)
	}

	return &Transaction{
		Reference: reference,
		Status:    normalizeStatus(tx.Status),
		Amount:    tx.Amount,
		Currency:  tx.Currency,
		Channel:   tx.Channel,
		Metadata:  stringifyMetadata(tx.Metadata),
	}, nil
}

// InitiateTransfer starts a payout transfer. Paystack deduplicates by
// reference, so retries are safe.
func (p *Paystack) InitiateTransfer(ctx context.Context, recipient string, amount int64, reference string) (string, error) {
	body, err := json.Marshal(map[string]interface{}{
		"source":    "balance",
		"amount":    amount,
		"recipient": recipient,
		"reference": reference,
		"reason":    "ajo cycle payout",
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode transfer request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/transfer", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build transfer request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.secretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("transfer request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("transfer returned status %d", resp.StatusCode)
	}

	var envelope paystackEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return "", fmt.Errorf("failed to decode transfer response: %w", err)
	}
	if !envelope.Status {
		return "", fmt.Errorf("transfer rejected: %s", envelope.Message)
	}

	var data struct {
		TransferCode string `json:"transfer_code"`
	}
	if err := json.Unmarshal(envelope.Data, &data); err != nil {
		return "", fmt.Errorf("failed to decode transfer data: %w", err)
	}

	return data.TransferCode, nil
}

// VerifyWebhookSignature checks the HMAC-SHA512 signature Paystack sends
// with every webhook delivery.
func (p *Paystack) VerifyWebhookSignature(body []byte, signature string) bool {
	mac := hmac.New(sha512.New, []byte(p.secretKey))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

func normalizeStatus(s string) string {
	switch s {
	case "success":
		return TxStatusSuccess
	case "failed", "abandoned", "reversed":
		return TxStatusFailed
	default:
		return TxStatusPending
	}
}

func stringifyMetadata(m map[string]interface{}) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		switch val := v.(type) {
		case string:
			out[k] = val
		case float64:
			// JSON numbers arrive as float64; metadata carries only IDs
			// and slot numbers, so integer formatting is safe.
			out[k] = fmt.Sprintf("%.0f", val)
		default:
			out[k] = fmt.Sprint(val)
		}
	}
	return out
}
