package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/filiup/quizsession/internal/config"
	"github.com/filiup/quizsession/internal/model"
	"github.com/filiup/quizsession/internal/repository"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ProgressStore persists attempt progress (PostgreSQL in production).
type ProgressStore interface {
	SaveProgress(ctx context.Context, id uuid.UUID, answers map[string]string, index int) error
}

// ProgressWorker consumes the progress queue and writes each snapshot to
// PostgreSQL. Snapshots are whole-state, so the latest one for an attempt wins.
type ProgressWorker struct {
	store      ProgressStore
	rdb        *redis.Client
	retryDelay time.Duration
	log        zerolog.Logger
}

// NewProgressWorker creates a new ProgressWorker.
func NewProgressWorker(store ProgressStore, rdb *redis.Client, log zerolog.Logger) *ProgressWorker {
	return &ProgressWorker{
		store:      store,
		rdb:        rdb,
		retryDelay: 5 * time.Second,
		log:        log.With().Str("component", "progress_worker").Logger(),
	}
}

// Start begins the worker loop. Call in a goroutine.
func (w *ProgressWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopping...")
			drainCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			w.drain(drainCtx)
			cancel()
			w.log.Info().Msg("Worker stopped")
			return
		default:
			w.processNext(ctx)
		}
	}
}

func (w *ProgressWorker) processNext(ctx context.Context) {
	// BLPop blocks until an item is available or the 1s poll times out.
	result, err := w.rdb.BLPop(ctx, PollTimeout, config.WorkerKey.PersistProgressQueue).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("BLPop error")
			sleepCtx(ctx, time.Second)
		}
		return
	}
	if len(result) < 2 {
		return
	}

	if err := w.handle(ctx, result[1]); err != nil {
		w.log.Error().Err(err).Msg("Persist error, retrying")
		// Back to the head so a newer snapshot cannot be overtaken.
		w.rdb.LPush(context.Background(), config.WorkerKey.PersistProgressQueue, result[1])
		sleepCtx(ctx, w.retryDelay)
	}
}

// handle persists one queued snapshot. Only storage failures are returned;
// malformed jobs and closed attempts are dropped.
func (w *ProgressWorker) handle(ctx context.Context, raw string) error {
	var job model.ProgressJob
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		w.log.Error().Err(err).Str("data", raw).Msg("Discarding malformed job")
		return nil
	}
	id, err := uuid.Parse(job.AttemptID)
	if err != nil {
		w.log.Error().Str("attempt_id", job.AttemptID).Msg("Discarding job with invalid attempt ID")
		return nil
	}

	err = w.store.SaveProgress(ctx, id, job.Answers, job.Index)
	if errors.Is(err, repository.ErrAttemptClosed) {
		w.log.Debug().Str("attempt_id", job.AttemptID).Msg("Attempt already closed, dropping progress")
		return nil
	}
	return err
}

// drain processes everything left in the queue before shutdown.
func (w *ProgressWorker) drain(ctx context.Context) {
	drained := 0
	for ctx.Err() == nil {
		raw, err := w.rdb.LPop(ctx, config.WorkerKey.PersistProgressQueue).Result()
		if err != nil {
			break
		}
		if err := w.handle(ctx, raw); err != nil {
			w.log.Error().Err(err).Msg("Drain persist error")
			w.rdb.LPush(context.Background(), config.WorkerKey.PersistProgressQueue, raw)
			break
		}
		drained++
	}

	if drained > 0 {
		w.log.Info().Int("count", drained).Msg("Drained remaining items")
	}
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
