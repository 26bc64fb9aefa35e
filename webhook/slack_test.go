package webhook

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func slackRequest(body []byte, secret string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/slack", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if secret != "" {
		ts := fmt.Sprintf("%d", time.Now().Unix())
		mac := hmac.New(sha256.New, []byte(secret))
		fmt.Fprintf(mac, "v0:%s:%s", ts, body)
		req.Header.Set("X-Slack-Request-Timestamp", ts)
		req.Header.Set("X-Slack-Signature", "v0="+hex.EncodeToString(mac.Sum(nil)))
	}
	return req
}

// TestSlackHandlerChallenge tests that the verification challenge is echoed.
func TestSlackHandlerChallenge(t *testing.T) {
	handler := NewSlackHandler(newTestOrchestrator(&stubChat{}), "", 1<<20)
	body := []byte(`{"type": "url_verification", "challenge": "abc123"}`)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, slackRequest(body, ""))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != "abc123" {
		t.Fatalf("expected challenge echo, got %q", rec.Body.String())
	}
}

// TestSlackHandlerSignedCallback tests a signed link_shared callback.
func TestSlackHandlerSignedCallback(t *testing.T) {
	handler := NewSlackHandler(newTestOrchestrator(&stubChat{}), "signing-secret", 1<<20)
	body := []byte(`{
		"type": "event_callback",
		"event": {
			"type": "link_shared",
			"user": "U999",
			"channel": "C1",
			"message_ts": "123.456",
			"links": [{"url": "https://github.com/acme/herald/pull/42", "domain": "github.com"}]
		}
	}`)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, slackRequest(body, "signing-secret"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

// TestSlackHandlerBadSignature tests rejection of an unsigned request when
// a signing secret is configured.
func TestSlackHandlerBadSignature(t *testing.T) {
	handler := NewSlackHandler(newTestOrchestrator(&stubChat{}), "signing-secret", 1<<20)
	body := []byte(`{"type": "url_verification", "challenge": "abc123"}`)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, slackRequest(body, ""))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

// TestSlackHandlerOtherEvents tests that non-link events are acknowledged.
func TestSlackHandlerOtherEvents(t *testing.T) {
	handler := NewSlackHandler(newTestOrchestrator(&stubChat{}), "", 1<<20)
	body := []byte(`{"type": "event_callback", "event": {"type": "message"}}`)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, slackRequest(body, ""))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
