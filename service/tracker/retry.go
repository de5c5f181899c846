package tracker

import (
	"context"
	"errors"
	"log"

	"github.com/sentinelops/gatekeeper/model/decision"
	"github.com/sentinelops/gatekeeper/service/messaging"
)

// RetryWorker redelivers failed publications from the queue. Delivery is
// at-least-once: the publisher's idempotency on decision ID absorbs
// duplicates. Nack hands the message back to the queue's retry/dead-letter
// policy.
type RetryWorker struct {
	publisher   Publisher
	queue       messaging.Queue[Publication]
	onPublished func(record *decision.Record, ref *Reference)
}

// RetryOption customises the retry worker.
type RetryOption func(*RetryWorker)

// WithOnPublished registers a callback invoked once a queued publication
// lands, with the record as queued and the obtained tracker reference.
func WithOnPublished(fn func(record *decision.Record, ref *Reference)) RetryOption {
	return func(w *RetryWorker) { w.onPublished = fn }
}

// NewRetryWorker creates a worker draining the publication queue.
func NewRetryWorker(publisher Publisher, queue messaging.Queue[Publication], options ...RetryOption) *RetryWorker {
	ret := &RetryWorker{publisher: publisher, queue: queue}
	for _, option := range options {
		option(ret)
	}
	return ret
}

// Start consumes the queue until ctx is cancelled.
func (w *RetryWorker) Start(ctx context.Context) {
	go func() {
		for {
			message, err := w.queue.Consume(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return
				}
				log.Printf("tracker retry: consume failed: %v", err)
				continue
			}
			publication := message.T()
			ref, err := w.publisher.Publish(ctx, publication.Record, publication.Body)
			if err != nil {
				if errors.Is(err, decision.ErrPublishUnavailable) {
					_ = message.Nack(err)
					continue
				}
				log.Printf("tracker retry: dropping publication for %s: %v", publication.Record.ID, err)
				_ = message.Ack()
				continue
			}
			if w.onPublished != nil {
				w.onPublished(publication.Record, ref)
			}
			_ = message.Ack()
		}
	}()
}
