package push

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dukerupert/errand/internal/model"
)

// SubscriptionStore is the part of the push store the dispatcher needs.
type SubscriptionStore interface {
	ListByUser(ctx context.Context, userID string) ([]model.PushSubscription, error)
	DeleteByEndpoint(ctx context.Context, endpoint string) error
}

type job struct {
	userIDs []string
	payload Payload
}

// Dispatcher delivers pushes in the background so lifecycle operations never
// wait on push services.
type Dispatcher struct {
	mu      sync.RWMutex
	sender  Sender
	subs    SubscriptionStore
	logger  *slog.Logger
	stats   *Stats
	jobs    chan job
	timeout time.Duration
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewDispatcher creates a dispatcher with a bounded queue.
func NewDispatcher(sender Sender, subs SubscriptionStore, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		sender:  sender,
		subs:    subs,
		logger:  logger.With("component", "push"),
		stats:   &Stats{},
		jobs:    make(chan job, 256),
		timeout: 30 * time.Second,
	}
}

// Stats returns the dispatcher's counters.
func (d *Dispatcher) Stats() *Stats {
	return d.stats
}

// Enqueue schedules a push to every subscription of userIDs. It never
// blocks; when the queue is full the job is dropped and counted.
func (d *Dispatcher) Enqueue(userIDs []string, payload Payload) bool {
	if len(userIDs) == 0 {
		return true
	}
	select {
	case d.jobs <- job{userIDs: userIDs, payload: payload}:
		return true
	default:
		d.stats.dropped.Add(1)
		d.logger.Warn("push queue full, dropping", "recipients", len(userIDs))
		return false
	}
}

// Start begins the delivery loop.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	ctx, d.cancel = context.WithCancel(ctx)
	d.done = make(chan struct{})
	d.mu.Unlock()

	go func() {
		defer close(d.done)
		for {
			select {
			case <-ctx.Done():
				return
			case j := <-d.jobs:
				d.deliver(ctx, j)
			}
		}
	}()
}

// Stop gracefully stops the dispatcher. Queued jobs are discarded.
func (d *Dispatcher) Stop() {
	d.mu.RLock()
	cancel := d.cancel
	done := d.done
	d.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (d *Dispatcher) deliver(ctx context.Context, j job) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	var subs []model.PushSubscription
	for _, uid := range j.userIDs {
		list, err := d.subs.ListByUser(ctx, uid)
		if err != nil {
			d.logger.Error("list subscriptions", "user_id", uid, "error", err)
			continue
		}
		subs = append(subs, list...)
	}

	for _, batch := range Chunk(subs, MaxBatch) {
		res := SendBatch(ctx, d.sender, batch, j.payload)
		d.stats.sent.Add(int64(res.Sent))
		d.stats.failed.Add(int64(res.Failed))
		d.stats.expired.Add(int64(len(res.Expired)))
		if res.Failed > 0 {
			d.logger.Warn("push batch had failures", "failed", res.Failed, "sent", res.Sent)
		}
		for _, endpoint := range res.Expired {
			if err := d.subs.DeleteByEndpoint(ctx, endpoint); err != nil {
				d.logger.Error("prune expired subscription", "error", err)
			}
		}
	}
}
