package push

import (
	"context"
	"io"
	"net/http"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"

	logx "pushherd/pkg/logx"
)

// Config carries the VAPID identity and transport knobs for the Web Push
// protocol adapter.
type Config struct {
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	Subscriber      string // mailto: or https: contact URI
	TTL             int    // seconds the push service may queue the message
	Timeout         time.Duration
}

// WebPush sends payloads over the Web Push protocol (RFC 8030) with
// VAPID auth, via SherClockHolmes/webpush-go.
type WebPush struct {
	cfg  Config
	log  logx.Logger
	http *http.Client
}

func NewWebPush(cfg Config, log logx.Logger) *WebPush {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 60 * 60 * 12
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &WebPush{
		cfg:  cfg,
		log:  log,
		http: &http.Client{Timeout: timeout},
	}
}

func (w *WebPush) Send(ctx context.Context, cred Credential, payload []byte) Outcome {
	sub := &webpush.Subscription{
		Endpoint: cred.Endpoint,
		Keys: webpush.Keys{
			P256dh: cred.P256DH,
			Auth:   cred.Auth,
		},
	}
	resp, err := webpush.SendNotificationWithContext(ctx, payload, sub, &webpush.Options{
		HTTPClient:      w.http,
		Subscriber:      w.cfg.Subscriber,
		VAPIDPublicKey:  w.cfg.VAPIDPublicKey,
		VAPIDPrivateKey: w.cfg.VAPIDPrivateKey,
		TTL:             w.cfg.TTL,
	})
	if err != nil {
		w.log.Debug("webpush send error", logx.String("endpoint", cred.Endpoint), logx.Err(err))
		return FailedRetryable
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()
	return ClassifyStatus(resp.StatusCode)
}

// ClassifyStatus maps a push-service HTTP status to an Outcome.
//
// 404/410 mean the subscription no longer exists at the push service
// (device unsubscribed or uninstalled); everything else non-2xx is
// treated as transient.
func ClassifyStatus(status int) Outcome {
	switch {
	case status >= 200 && status < 300:
		return Delivered
	case status == http.StatusNotFound, status == http.StatusGone:
		return FailedPermanent
	default:
		return FailedRetryable
	}
}

// GenerateVAPIDKeys returns a fresh (private, public) key pair for
// first-time setup.
func GenerateVAPIDKeys() (privateKey, publicKey string, err error) {
	return webpush.GenerateVAPIDKeys()
}
