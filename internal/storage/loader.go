package storage

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// FlushFn handles one batch. seq numbers batches from 0 in arrival order. It
// returns the number of rows it reports as loaded.
type FlushFn[T any] func(ctx context.Context, seq int, batch []T) (int64, error)

// LoadBatches drains items from in, groups them into batches of batchSize and
// calls flush for each non-empty batch. It returns the total reported by
// flush and the first error encountered.
//
// The batch slice passed to flush is reused afterwards; flush must not retain
// it. Cancellation returns (total, ctx.Err()). A progress line is logged on
// each successful flush when log is non-nil.
func LoadBatches[T any](
	ctx context.Context,
	in <-chan T,
	batchSize int,
	flush FlushFn[T],
	log *zap.Logger,
) (int64, error) {
	if batchSize <= 0 {
		return 0, fmt.Errorf("batchSize must be > 0")
	}
	if flush == nil {
		return 0, fmt.Errorf("flush must not be nil")
	}
	if log == nil {
		log = zap.NewNop()
	}

	var (
		total     int64
		seq       int
		batch     = make([]T, 0, batchSize)
		start     = time.Now()
		lastFlush = start
	)

	do := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := flush(ctx, seq, batch)
		total += n
		seq++
		batch = batch[:0]
		if err != nil {
			return err
		}

		now := time.Now()
		since := now.Sub(lastFlush)
		rps := float64(0)
		if since > 0 {
			rps = float64(n) / since.Seconds()
		}
		log.Debug("batch flushed",
			zap.Int("batch", seq),
			zap.Int64("loaded", n),
			zap.Int64("total_loaded", total),
			zap.Float64("rps", rps),
			zap.Duration("elapsed", now.Sub(start).Truncate(time.Millisecond)),
		)
		lastFlush = now
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return total, ctx.Err()

		case item, ok := <-in:
			if !ok {
				// in also closes early on cancellation; the partial batch
				// is discarded.
				if err := ctx.Err(); err != nil {
					return total, err
				}
				if err := do(); err != nil {
					return total, err
				}
				return total, nil
			}
			batch = append(batch, item)
			if len(batch) >= batchSize {
				if err := do(); err != nil {
					return total, err
				}
			}
		}
	}
}
