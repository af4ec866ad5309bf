package events

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	HeaderSignature = "X-ADT-Signature"
	HeaderTimestamp = "X-ADT-Timestamp"
	HeaderEvent     = "X-ADT-Event"
	HeaderEventID   = "X-ADT-Event-ID"
)

// SignPayload computes an HMAC-SHA256 signature of the payload using the given secret,
// returning the hex-encoded result.
func SignPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature returns true when the hex-encoded signature matches the HMAC-SHA256
// of payload under the given secret.
func VerifySignature(payload []byte, secret, signature string) bool {
	expected := SignPayload(payload, secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// WebhookOption configures a WebhookPublisher.
type WebhookOption func(*resty.Client)

// WithRetry sets the retry count and the initial wait between attempts.
func WithRetry(count int, wait time.Duration) WebhookOption {
	return func(c *resty.Client) {
		c.SetRetryCount(count).SetRetryWaitTime(wait).SetRetryMaxWaitTime(wait * 10)
	}
}

// WithTimeout bounds each delivery attempt.
func WithTimeout(d time.Duration) WebhookOption {
	return func(c *resty.Client) { c.SetTimeout(d) }
}

// WebhookPublisher POSTs each event as JSON to a single endpoint. The body
// is signed with HMAC-SHA256 and the hex digest sent as "sha256=<hex>".
// Transport errors and 5xx responses are retried.
type WebhookPublisher struct {
	client *resty.Client
	url    string
	secret string
}

func NewWebhookPublisher(url, secret string, opts ...WebhookOption) *WebhookPublisher {
	client := resty.New().
		SetTimeout(10*time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500*time.Millisecond).
		SetRetryMaxWaitTime(5*time.Second).
		SetHeader("Content-Type", "application/json").
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= 500
		})
	for _, opt := range opts {
		opt(client)
	}
	return &WebhookPublisher{client: client, url: url, secret: secret}
}

func (p *WebhookPublisher) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	resp, err := p.client.R().
		SetContext(ctx).
		SetHeader(HeaderSignature, "sha256="+SignPayload(payload, p.secret)).
		SetHeader(HeaderTimestamp, strconv.FormatInt(ev.OccurredAt.Unix(), 10)).
		SetHeader(HeaderEvent, string(ev.Type)).
		SetHeader(HeaderEventID, ev.ID.String()).
		SetBody(payload).
		Post(p.url)
	if err != nil {
		return fmt.Errorf("deliver webhook: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("deliver webhook: non-2xx response: %d", resp.StatusCode())
	}
	return nil
}
