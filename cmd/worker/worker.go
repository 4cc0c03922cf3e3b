package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"runtime"
	"sync"
	"time"

	appkafka "github.com/alferius/hw05-final/internal/broker"
	"github.com/alferius/hw05-final/internal/logger"
	"github.com/alferius/hw05-final/internal/models"
	"github.com/alferius/hw05-final/internal/store"
)

var logg = logger.New()

// Worker consumes post and follow events from Kafka and keeps the
// materialized per-follower timelines in Cassandra up to date.
type Worker struct {
	store         store.StoreInterface
	reader        appkafka.KafkaReader
	workerCount   int
	jobQueueSize  int
	backfillLimit int
}

// New creates a new concurrent Worker using pre-initialized dependencies.
func New(store store.StoreInterface, reader appkafka.KafkaReader, workerCount, jobQueueSize, backfillLimit int) *Worker {
	if workerCount <= 0 {
		workerCount = runtime.NumCPU()
	}
	if jobQueueSize <= 0 {
		jobQueueSize = workerCount * 10
	}
	if backfillLimit <= 0 {
		backfillLimit = 100
	}
	return &Worker{
		store:         store,
		reader:        reader,
		workerCount:   workerCount,
		jobQueueSize:  jobQueueSize,
		backfillLimit: backfillLimit,
	}
}

// Run starts message reading and concurrent processing.
func (w *Worker) Run(ctx context.Context) {
	logg.Info("worker", "Starting "+fmt.Sprint(w.workerCount)+" workers with queue size "+fmt.Sprint(w.jobQueueSize))

	jobs := make(chan []byte, w.jobQueueSize)
	var wg sync.WaitGroup

	for i := 0; i < w.workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.processLoop(ctx, jobs)
		}()
	}

	w.readLoop(ctx, jobs)

	close(jobs)
	wg.Wait()
	logg.Info("worker", "All workers stopped gracefully")
}

// readLoop reads Kafka messages and pushes them into a job queue.
func (w *Worker) readLoop(ctx context.Context, jobs chan<- []byte) {
	var retry int
	for {
		select {
		case <-ctx.Done():
			return
		default:
			msg, err := w.reader.ReadMessage(ctx)
			if err != nil {
				backoff := time.Duration(math.Min(1000, math.Pow(2, float64(retry)))) * time.Millisecond
				logg.Error("worker", "Kafka read error, backing off", err)
				if !waitWithContext(ctx, backoff) {
					return
				}
				retry++
				continue
			}
			retry = 0

			if len(msg.Value) == 0 {
				if !waitWithContext(ctx, 50*time.Millisecond) {
					return
				}
				continue
			}

			select {
			case jobs <- msg.Value:
			case <-ctx.Done():
				return
			case <-time.After(100 * time.Millisecond):
				logg.Info("worker", "Queue full, waiting to enqueue Kafka message")
			}
		}
	}
}

// processLoop decodes event envelopes and applies them to the timelines.
func (w *Worker) processLoop(ctx context.Context, jobs <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-jobs:
			if !ok {
				return
			}

			var event appkafka.Event
			if err := json.Unmarshal(data, &event); err != nil {
				logg.Error("worker", "Invalid JSON in Kafka message", err)
				continue
			}

			if err := w.handleEvent(ctx, event); err != nil {
				logg.Error("worker", "Failed to apply event "+string(event.Type), err)
			}
		}
	}
}

func (w *Worker) handleEvent(ctx context.Context, event appkafka.Event) error {
	switch event.Type {
	case appkafka.EventPostCreated:
		if event.Post == nil {
			return fmt.Errorf("post_created event without post")
		}
		return w.fanout(ctx, event, func(followerID string) error {
			return w.store.AddToTimeline(followerID, *event.Post)
		})

	case appkafka.EventPostDeleted:
		if event.Post == nil {
			return fmt.Errorf("post_deleted event without post")
		}
		return w.fanout(ctx, event, func(followerID string) error {
			return w.store.RemoveFromTimeline(followerID, event.Post.ID, event.Post.Created)
		})

	case appkafka.EventFollowCreated:
		if event.Follow == nil {
			return fmt.Errorf("follow_created event without edge")
		}
		return w.backfill(*event.Follow)

	case appkafka.EventFollowDeleted:
		if event.Follow == nil {
			return fmt.Errorf("follow_deleted event without edge")
		}
		return w.store.RemoveAuthorFromTimeline(event.Follow.FollowerID, event.Follow.AuthorID)

	default:
		logg.Info("worker", "Skipping unknown event type "+string(event.Type))
		return nil
	}
}

// fanout applies one timeline operation to every follower of the post's
// author, bounded by a semaphore.
func (w *Worker) fanout(ctx context.Context, event appkafka.Event, op func(followerID string) error) error {
	followers, err := w.store.GetFollowers(event.Post.AuthorID)
	if err != nil {
		return err
	}

	const fanoutLimit = 20
	var fanoutWG sync.WaitGroup
	semaphore := make(chan struct{}, fanoutLimit)

	for _, uid := range followers {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			fanoutWG.Add(1)
			semaphore <- struct{}{}

			go func(u string) {
				defer fanoutWG.Done()
				defer func() { <-semaphore }()
				if err := op(u); err != nil {
					logg.Error("worker", "Failed to update follower timeline", err)
				}
			}(uid)
		}
	}

	fanoutWG.Wait()
	logg.Info("worker", "Event delivered to followers (post ID anonymized)")
	return nil
}

// backfill seeds a new follower's timeline with the author's recent
// posts so the followed feed includes posts made before the edge.
func (w *Worker) backfill(edge models.Follow) error {
	posts, err := w.store.PostsByAuthor(edge.AuthorID, w.backfillLimit)
	if err != nil {
		return err
	}

	for _, p := range posts {
		if err := w.store.AddToTimeline(edge.FollowerID, p); err != nil {
			return err
		}
	}

	logg.Info("worker", "Timeline backfilled for new follower (IDs anonymized)")
	return nil
}

// waitWithContext waits for duration or context cancellation.
func waitWithContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// Close shuts down Kafka reader and Cassandra session.
func (w *Worker) Close() error {
	logg.Info("worker", "Closing Kafka reader")
	if err := w.reader.Close(); err != nil {
		logg.Error("worker", "Error closing Kafka reader", err)
		return err
	}

	logg.Info("worker", "Closing Cassandra session")
	w.store.Close()
	return nil
}
