package broadcast

import (
	"context"
	"sync"
	"time"

	"pushherd/internal/push"
	"pushherd/internal/store"
	logx "pushherd/pkg/logx"
)

// tally is the single accumulation point for one dispatch. Each call
// owns its own tally; workers merge outcomes under the mutex.
type tally struct {
	mu     sync.Mutex
	sent   int
	failed int
	pruned []string
}

func (t *tally) markSent() {
	t.mu.Lock()
	t.sent++
	t.mu.Unlock()
}

func (t *tally) markFailed() {
	t.mu.Lock()
	t.failed++
	t.mu.Unlock()
}

func (t *tally) markPruned(id string) {
	t.mu.Lock()
	t.pruned = append(t.pruned, id)
	t.mu.Unlock()
}

// fanOut feeds the audience to a bounded worker pool in store order and
// waits for every attempted delivery to settle. Cancellation stops the
// feed; recipients already handed to workers still record an outcome.
func (d *Dispatcher) fanOut(ctx context.Context, audience []store.SubscriptionWithTier, payload []byte) Result {
	acc := &tally{}
	jobs := make(chan store.SubscriptionWithTier)

	var wg sync.WaitGroup
	wg.Add(d.cfg.Workers)
	for i := 0; i < d.cfg.Workers; i++ {
		go func() {
			defer wg.Done()
			for sub := range jobs {
				d.deliver(ctx, sub, payload, acc)
			}
		}()
	}

feed:
	for _, sub := range audience {
		select {
		case jobs <- sub:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	return Result{
		Total:  len(audience),
		Sent:   acc.sent,
		Failed: acc.failed,
		Pruned: acc.pruned,
	}
}

func (d *Dispatcher) deliver(ctx context.Context, sub store.SubscriptionWithTier, payload []byte, acc *tally) {
	if err := d.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			// Cancelled before the attempt; the batch is interrupted and
			// reports its partial counts with the context error.
			return
		}
		// The limiter reservation would land past the deadline. The
		// recipient is skipped this batch but still must be counted, or
		// Sent+Failed drifts below Total on a nil-error dispatch.
		acc.markFailed()
		d.log.Debug("rate window exceeds deadline, delivery skipped",
			logx.String("sub", sub.ID), logx.String("user", sub.UserID))
		return
	}

	switch d.transport.Send(ctx, sub.Credential, payload) {
	case push.Delivered:
		acc.markSent()
	case push.FailedPermanent:
		acc.markFailed()
		d.prune(ctx, sub, acc)
	default:
		acc.markFailed()
		d.log.Debug("delivery failed, will retry on a later broadcast",
			logx.String("sub", sub.ID), logx.String("user", sub.UserID))
	}
}

// prune removes a permanently-dead subscription. Best-effort: a failed
// delete is logged and left for a later cycle, never escalated.
func (d *Dispatcher) prune(ctx context.Context, sub store.SubscriptionWithTier, acc *tally) {
	// Detached from the dispatch deadline so a cancelled batch can still
	// finish deletes already decided.
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()

	if err := d.store.DeleteByID(dctx, sub.ID); err != nil {
		d.log.Warn("prune failed; subscription stays for a later cycle",
			logx.String("sub", sub.ID), logx.String("user", sub.UserID), logx.Err(err))
		return
	}
	acc.markPruned(sub.ID)
	d.log.Info("pruned dead subscription",
		logx.String("sub", sub.ID), logx.String("user", sub.UserID))
}
