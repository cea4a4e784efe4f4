package handler

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/nickgarreis/agentic-outreach-system/internal/tracker"
)

const (
	signatureHeader = "X-Twilio-Email-Event-Webhook-Signature"
	timestampHeader = "X-Twilio-Email-Event-Webhook-Timestamp"
)

// WebhookHandler ingests provider delivery callbacks. It always acknowledges
// with 200 (even when events are dropped) so the provider does not retry.
type WebhookHandler struct {
	Tracker    *tracker.Tracker
	WebhookKey string
}

func (h *WebhookHandler) HandleProviderEvents(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		log.WithError(err).Error("failed to read webhook body")
		w.WriteHeader(http.StatusOK)
		return
	}

	if h.WebhookKey != "" {
		signature := r.Header.Get(signatureHeader)
		timestamp := r.Header.Get(timestampHeader)
		if !verifySignature(body, signature, timestamp, h.WebhookKey) {
			http.Error(w, "invalid webhook signature", http.StatusUnauthorized)
			return
		}
	}

	var events []tracker.Event
	if err := json.Unmarshal(body, &events); err != nil {
		log.WithError(err).Error("malformed webhook payload")
		w.WriteHeader(http.StatusOK)
		return
	}

	processed, dropped := h.Tracker.ProcessEvents(events)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int{
		"processed": processed,
		"dropped":   dropped,
	})
}

// verifySignature checks the HMAC the provider computes over timestamp+body.
func verifySignature(body []byte, signature, timestamp, key string) bool {
	decoded, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(timestamp))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), decoded)
}
