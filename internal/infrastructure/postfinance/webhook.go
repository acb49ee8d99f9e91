package postfinance

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// WebhookPayload is the listener notification the gateway posts on
// transaction state changes.
type WebhookPayload struct {
	EventID                     int64  `json:"eventId"`
	EntityID                    int64  `json:"entityId"`
	SpaceID                     int64  `json:"spaceId"`
	State                       string `json:"state"`
	ListenerEntityTechnicalName string `json:"listenerEntityTechnicalName"`
	Timestamp                   string `json:"timestamp"`
}

// ParseWebhookPayload decodes and minimally validates a webhook body.
func ParseWebhookPayload(body []byte) (*WebhookPayload, error) {
	var payload WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode webhook payload: %w", err)
	}
	if payload.EntityID == 0 || payload.SpaceID == 0 {
		return nil, fmt.Errorf("webhook payload missing entity or space id")
	}
	return &payload, nil
}

// WebhookVerifier checks the X-Signature header the gateway sends with each
// notification: hex-encoded HMAC-SHA256 over the raw body.
type WebhookVerifier struct {
	secret []byte
}

func NewWebhookVerifier(base64Secret string) (*WebhookVerifier, error) {
	secret, err := base64.StdEncoding.DecodeString(base64Secret)
	if err != nil {
		return nil, fmt.Errorf("decode webhook secret: %w", err)
	}
	return &WebhookVerifier{secret: secret}, nil
}

func (v *WebhookVerifier) Verify(body []byte, signature string) bool {
	if signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, v.secret)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
