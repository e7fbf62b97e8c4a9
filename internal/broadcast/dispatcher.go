package broadcast

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"pushherd/internal/push"
	"pushherd/internal/store"
	logx "pushherd/pkg/logx"
)

// Dispatcher orchestrates one broadcast: repository read, audience
// filter, fan-out, aggregation, pruning.
type Dispatcher struct {
	cfg       Config
	store     store.Store
	transport push.Transport
	log       logx.Logger
	limiter   *rate.Limiter
}

func New(cfg Config, st store.Store, tr push.Transport, log logx.Logger) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 10
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Dispatcher{
		cfg:       cfg,
		store:     st,
		transport: tr,
		log:       log,
		limiter:   rate.NewLimiter(rate.Limit(rps), rps),
	}
}

// Dispatch delivers msg to every subscription matching its filter.
//
// A repository read failure returns ErrRepository (wrapped) with zero
// transport calls made. Per-recipient faults are aggregated, never
// returned. On cancellation the partial Result accumulated so far is
// returned together with the context error.
func (d *Dispatcher) Dispatch(ctx context.Context, msg Message) (Result, error) {
	start := time.Now()

	subs, err := d.store.ListAllWithTier(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrRepository, err)
	}
	if len(subs) == 0 {
		d.log.Info("broadcast skipped: no subscriptions stored", logx.String("title", msg.Title))
		return Result{}, nil
	}

	audience := SelectAudience(subs, msg.Filter)
	if len(audience) == 0 {
		d.log.Info("broadcast skipped: audience filter matched nothing",
			logx.String("title", msg.Title),
			logx.String("filter", string(msg.Filter)),
			logx.Int("stored", len(subs)),
		)
		return Result{}, nil
	}

	payload, err := push.NewPayload(msg.Title, msg.Body, msg.URL, d.cfg.Icon, d.cfg.Badge, start).Encode()
	if err != nil {
		return Result{}, fmt.Errorf("encode payload: %w", err)
	}

	d.log.Info("broadcast started",
		logx.String("title", msg.Title),
		logx.String("filter", string(msg.Filter)),
		logx.Int("audience", len(audience)),
		logx.Int("stored", len(subs)),
	)

	res := d.fanOut(ctx, audience, payload)

	fields := []logx.Field{
		logx.String("title", msg.Title),
		logx.Int("total", res.Total),
		logx.Int("sent", res.Sent),
		logx.Int("failed", res.Failed),
		logx.Int("pruned", len(res.Pruned)),
		logx.Duration("dur", time.Since(start)),
	}
	switch {
	case ctx.Err() != nil:
		d.log.Warn("broadcast interrupted", append(fields, logx.Err(ctx.Err()))...)
	case res.Failed > 0:
		d.log.Warn("broadcast finished with failures", fields...)
	default:
		d.log.Info("broadcast finished", fields...)
	}

	return res, ctx.Err()
}
