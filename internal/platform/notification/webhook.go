package notification

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
)

const (
	EventVisitFlagged = "visit.flagged"

	SignatureHeader = "X-Webhook-Signature"
	EventIDHeader   = "X-Webhook-ID"
	TimestampHeader = "X-Webhook-Timestamp"
)

// WebhookEvent is the JSON body posted to the endpoint.
type WebhookEvent struct {
	ID        string       `json:"id"`
	Type      string       `json:"type"`
	Timestamp time.Time    `json:"timestamp"`
	Visit     FlaggedVisit `json:"visit"`
}

// SignPayload returns the hex HMAC-SHA256 of payload under secret.
func SignPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature accepts either the bare hex digest or the "sha256=" form.
func VerifySignature(payload []byte, secret, signature string) bool {
	if len(signature) > 7 && signature[:7] == "sha256=" {
		signature = signature[7:]
	}
	return hmac.Equal([]byte(SignPayload(payload, secret)), []byte(signature))
}

// WebhookNotifier posts signed flagged-visit events to one endpoint.
// 5xx responses and transport errors are retried; 4xx are not.
type WebhookNotifier struct {
	http    *resty.Client
	url     string
	secret  string
	retries int
	wait    time.Duration
	now     func() time.Time
}

func NewWebhookNotifier(url, secret string, timeout time.Duration, retries int) *WebhookNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if retries < 0 {
		retries = 0
	}
	return &WebhookNotifier{
		http:    resty.New().SetTimeout(timeout),
		url:     url,
		secret:  secret,
		retries: retries,
		wait:    500 * time.Millisecond,
		now:     time.Now,
	}
}

func (w *WebhookNotifier) Notify(ctx context.Context, v FlaggedVisit) error {
	event := WebhookEvent{
		ID:        uuid.New().String(),
		Type:      EventVisitFlagged,
		Timestamp: w.now().UTC(),
		Visit:     v,
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode webhook event: %w", err)
	}

	wait := w.wait
	for attempt := 0; ; attempt++ {
		retryable, err := w.deliver(ctx, event, payload)
		if err == nil {
			return nil
		}
		if !retryable || attempt >= w.retries {
			return err
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("deliver webhook: %w", ctx.Err())
		case <-time.After(wait):
		}
		wait *= 2
	}
}

func (w *WebhookNotifier) deliver(ctx context.Context, event WebhookEvent, payload []byte) (bool, error) {
	req := w.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader(EventIDHeader, event.ID).
		SetHeader(TimestampHeader, event.Timestamp.Format(time.RFC3339)).
		SetBody(payload)
	if w.secret != "" {
		req.SetHeader(SignatureHeader, "sha256="+SignPayload(payload, w.secret))
	}

	resp, err := req.Post(w.url)
	if err != nil {
		return true, fmt.Errorf("deliver webhook: %w", err)
	}
	if resp.IsError() {
		return resp.StatusCode() >= 500, fmt.Errorf("deliver webhook: non-2xx response: %d", resp.StatusCode())
	}
	return false, nil
}
