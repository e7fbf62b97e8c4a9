package push

import (
	"context"
	"encoding/json"
	"time"
)

// Outcome classifies one delivery attempt.
type Outcome int

const (
	// Delivered: the push service accepted the message.
	Delivered Outcome = iota
	// FailedRetryable: transient fault (network, rate limit, 5xx). A later
	// broadcast is the retry mechanism; nothing retries within a batch.
	FailedRetryable
	// FailedPermanent: the push service reports the credential is gone
	// (HTTP 404/410). The subscription should be pruned.
	FailedPermanent
)

func (o Outcome) String() string {
	switch o {
	case Delivered:
		return "delivered"
	case FailedRetryable:
		return "failed_retryable"
	case FailedPermanent:
		return "failed_permanent"
	default:
		return "unknown"
	}
}

// Credential is everything the push protocol needs to reach one device:
// the service endpoint plus the browser's encryption keys.
type Credential struct {
	Endpoint string `json:"endpoint"`
	P256DH   string `json:"p256dh"`
	Auth     string `json:"auth"`
}

// Payload is the notification document shown by the service worker.
// One payload is built per batch and shared by every recipient.
type Payload struct {
	Title string      `json:"title"`
	Body  string      `json:"body"`
	Icon  string      `json:"icon,omitempty"`
	Badge string      `json:"badge,omitempty"`
	Data  PayloadData `json:"data"`
}

type PayloadData struct {
	URL string `json:"url"`
	// Timestamp is the dispatch generation time (unix millis), shared
	// across the batch.
	Timestamp int64 `json:"timestamp"`
}

func NewPayload(title, body, url, icon, badge string, at time.Time) Payload {
	return Payload{
		Title: title,
		Body:  body,
		Icon:  icon,
		Badge: badge,
		Data:  PayloadData{URL: url, Timestamp: at.UnixMilli()},
	}
}

// Encode marshals the payload once; the dispatcher reuses the bytes for
// the whole batch.
func (p Payload) Encode() ([]byte, error) {
	return json.Marshal(p)
}

// Transport delivers an encoded payload to one credential and classifies
// the result. Implementations never return an error: every fault maps to
// an Outcome so the dispatcher can aggregate without unwinding the batch.
type Transport interface {
	Send(ctx context.Context, cred Credential, payload []byte) Outcome
}
