package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestPaystackVerify(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/transaction/verify/ref-123" {
			t.Errorf("path = %q, want /transaction/verify/ref-123", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer sk_test_secret" {
			t.Errorf("Authorization = %q", auth)
		}
		w.Write([]byte(`{
			"status": true,
			"message": "Verification successful",
			"data": {
				"status": "success",
				"amount": 100000,
				"currency": "NGN",
				"channel": "card",
				"metadata": {"payment_type": "group_join", "group_id": 4, "user_id": 9}
			}
		}`))
	}))
	defer server.Close()

	client := NewPaystack(server.URL, "sk_test_secret", 5*time.Second)

	tx, err := client.Verify(context.Background(), "ref-123")
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if tx.Status != TxStatusSuccess || tx.Amount != 100000 || tx.Currency != "NGN" {
		t.Fatalf("Verify() = %+v", tx)
	}
	// JSON numbers in metadata must come back as clean integer strings.
	if tx.Metadata["group_id"] != "4" || tx.Metadata["user_id"] != "9" {
		t.Fatalf("metadata = %v, want stringified IDs", tx.Metadata)
	}
}

func TestPaystackVerifyNormalizesStatus(t *testing.T) {
	tests := []struct {
		gateway string
		want    string
	}{
		{"success", TxStatusSuccess},
		{"failed", TxStatusFailed},
		{"abandoned", TxStatusFailed},
		{"reversed", TxStatusFailed},
		{"pending", TxStatusPending},
		{"ongoing", TxStatusPending},
	}

	for _, tt := range tests {
		t.Run(tt.gateway, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"status": true, "message": "ok", "data": {"status": "` + tt.gateway + `", "amount": 1}}`))
			}))
			defer server.Close()

			client := NewPaystack(server.URL, "sk", time.Second)
			tx, err := client.Verify(context.Background(), "ref")
			if err != nil {
				t.Fatalf("Verify() error = %v", err)
			}
			if tx.Status != tt.want {
				t.Errorf("status %q normalized to %q, want %q", tt.gateway, tx.Status, tt.want)
			}
		})
	}
}

func TestPaystackVerifyRejectedEnvelope(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status": false, "message": "Transaction reference not found"}`))
	}))
	defer server.Close()

	client := NewPaystack(server.URL, "sk", time.Second)
	if _, err := client.Verify(context.Background(), "ref-missing"); err == nil {
		t.Fatal("Verify() error = nil, want rejection")
	}
}

func TestPaystackVerifyServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewPaystack(server.URL, "sk", time.Second)
	if _, err := client.Verify(context.Background(), "ref"); err == nil {
		t.Fatal("Verify() error = nil, want status error")
	}
}

func TestPaystackInitiateTransfer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/transfer" || r.Method != http.MethodPost {
			t.Errorf("request = %s %s, want POST /transfer", r.Method, r.URL.Path)
		}
		w.Write([]byte(`{"status": true, "message": "Transfer queued", "data": {"transfer_code": "TRF_abc123"}}`))
	}))
	defer server.Close()

	client := NewPaystack(server.URL, "sk", time.Second)

	code, err := client.InitiateTransfer(context.Background(), "10", 95000, "payout-ref")
	if err != nil {
		t.Fatalf("InitiateTransfer() error = %v", err)
	}
	if code != "TRF_abc123" {
		t.Fatalf("transfer code = %q, want TRF_abc123", code)
	}
}

func TestVerifyWebhookSignature(t *testing.T) {
	client := NewPaystack("http://unused", "sk_test_secret", time.Second)
	body := []byte(`{"event":"charge.success","data":{"reference":"ref-1"}}`)

	mac := hmac.New(sha512.New, []byte("sk_test_secret"))
	mac.Write(body)
	valid := hex.EncodeToString(mac.Sum(nil))

	if !client.VerifyWebhookSignature(body, valid) {
		t.Fatal("valid signature rejected")
	}
	if client.VerifyWebhookSignature(body, "deadbeef") {
		t.Fatal("invalid signature accepted")
	}
	if client.VerifyWebhookSignature([]byte(`tampered`), valid) {
		t.Fatal("signature accepted for a tampered body")
	}
}
