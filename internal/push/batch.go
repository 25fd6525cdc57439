package push

import (
	"context"
	"errors"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/dukerupert/errand/internal/model"
)

// MaxBatch caps how many subscriptions are sent to in one batch.
const MaxBatch = 100

// sendConcurrency bounds in-flight requests within a batch.
const sendConcurrency = 8

// Chunk splits items into consecutive slices of at most size elements.
func Chunk[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = MaxBatch
	}
	var chunks [][]T
	for len(items) > size {
		chunks = append(chunks, items[:size:size])
		items = items[size:]
	}
	if len(items) > 0 {
		chunks = append(chunks, items)
	}
	return chunks
}

// Stats counts push outcomes since process start.
type Stats struct {
	sent    atomic.Int64
	failed  atomic.Int64
	expired atomic.Int64
	dropped atomic.Int64
}

// Snapshot is a point-in-time copy of Stats.
type Snapshot struct {
	Sent    int64 `json:"sent"`
	Failed  int64 `json:"failed"`
	Expired int64 `json:"expired"`
	Dropped int64 `json:"dropped"`
}

func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		Sent:    s.sent.Load(),
		Failed:  s.failed.Load(),
		Expired: s.expired.Load(),
		Dropped: s.dropped.Load(),
	}
}

// BatchResult reports the outcome of SendBatch.
type BatchResult struct {
	Sent    int
	Failed  int
	Expired []string
}

// SendBatch sends payload to every subscription in subs concurrently.
// Individual failures never abort the batch; expired endpoints are returned
// so the caller can prune them.
func SendBatch(ctx context.Context, sender Sender, subs []model.PushSubscription, payload Payload) BatchResult {
	outcomes := make([]error, len(subs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(sendConcurrency)
	for i := range subs {
		g.Go(func() error {
			outcomes[i] = sender.Send(ctx, &subs[i], payload)
			return nil
		})
	}
	_ = g.Wait()

	var res BatchResult
	for i, err := range outcomes {
		switch {
		case err == nil:
			res.Sent++
		case errors.Is(err, ErrExpired):
			res.Expired = append(res.Expired, subs[i].Endpoint)
		default:
			res.Failed++
		}
	}
	return res
}
