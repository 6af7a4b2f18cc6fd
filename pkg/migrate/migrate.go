// Package migrate drives the batching/transfer loop: scan the source
// container, group records into bounded batches, push each record through
// the retry policy onto the destination, report progress, and verify the
// outcome afterwards.
package migrate

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
	"golang.org/x/sync/errgroup"

	"github.com/mbenali/docmigrate/pkg/progress"
	"github.com/mbenali/docmigrate/pkg/retry"
	"github.com/mbenali/docmigrate/pkg/store"
)

// DefaultBatchSize matches the store's driver-side scan batch.
const DefaultBatchSize = 100

// ErrInvalidArgument marks configuration faults caught before any I/O.
var ErrInvalidArgument = errors.New("invalid argument")

// Options configures a Migrator.
type Options struct {
	// BatchSize is the number of records per batch; must be positive.
	BatchSize int
	// Workers bounds in-batch upsert concurrency. Values below 2 mean
	// sequential dispatch, which keeps progress deterministic.
	Workers  int
	Policy   retry.Policy
	Reporter progress.Reporter
	Log      zerolog.Logger
}

// Migrator copies every record of one container into another. A Migrator
// is reusable, but each Run re-scans the source from the beginning; runs do
// not resume.
type Migrator struct {
	batchSize int
	workers   int
	policy    retry.Policy
	reporter  progress.Reporter
	log       zerolog.Logger
}

func New(opts Options) (*Migrator, error) {
	if opts.BatchSize <= 0 {
		return nil, errors.Errorf("%w: batch size must be positive, got %d", ErrInvalidArgument, opts.BatchSize)
	}
	if opts.Reporter == nil {
		opts.Reporter = progress.Nop{}
	}
	return &Migrator{
		batchSize: opts.BatchSize,
		workers:   opts.Workers,
		policy:    opts.Policy,
		reporter:  opts.Reporter,
		log:       opts.Log,
	}, nil
}

// Run copies every record in source into dest. A record that exhausts its
// retries is recorded as failed and the run continues; only configuration
// faults and source scan errors abort it. Cancelling ctx lets the in-flight
// batch finish, then returns the partial Result together with ctx's error.
func (m *Migrator) Run(ctx context.Context, source, dest store.Container) (*Result, error) {
	if source.Key() == dest.Key() {
		return nil, errors.Errorf("%w: source and destination are the same container (%s)", ErrInvalidArgument, source.Name())
	}

	total, err := source.Count(ctx)
	if err != nil {
		return nil, errors.Errorf("counting source container %s: %w", source.Name(), err)
	}

	m.log.Info().
		Str("source", source.Name()).
		Str("destination", dest.Name()).
		Int64("total", total).
		Int("batch_size", m.batchSize).
		Msg("starting migration")

	cur, err := source.Scan(ctx)
	if err != nil {
		return nil, errors.Errorf("scanning source container %s: %w", source.Name(), err)
	}
	defer func() {
		_ = cur.Close(context.WithoutCancel(ctx))
	}()

	res := &Result{}
	batch := make([]store.Record, 0, m.batchSize)

	// flush dispatches the accumulated batch and emits its progress event.
	// It reports ctx's error so the loop stops dispatching new batches
	// after cancellation.
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		m.dispatch(ctx, dest, batch, res)
		batch = batch[:0]
		m.reporter.Emit(progress.BatchCompleted{
			Processed:  res.Attempted,
			Total:      total,
			Percentage: percentage(res.Attempted, total),
		})
		return ctx.Err()
	}

	for cur.Next(ctx) {
		batch = append(batch, cur.Record())
		if len(batch) >= m.batchSize {
			if err := flush(); err != nil {
				return res, err
			}
		}
	}
	if err := cur.Err(); err != nil {
		return res, errors.Errorf("reading source container %s: %w", source.Name(), err)
	}
	if err := flush(); err != nil {
		return res, err
	}

	m.log.Info().
		Int64("attempted", res.Attempted).
		Int64("succeeded", res.Succeeded).
		Int64("failed", res.Failed).
		Msg("migration finished")
	return res, nil
}

// dispatch writes one batch to the destination. All writes complete,
// successfully or exhausted, before it returns.
func (m *Migrator) dispatch(ctx context.Context, dest store.Container, batch []store.Record, res *Result) {
	if m.workers < 2 {
		for _, rec := range batch {
			m.upsertOne(ctx, dest, rec, res, nil)
		}
		return
	}

	var mu sync.Mutex
	g := &errgroup.Group{}
	g.SetLimit(m.workers)
	for _, rec := range batch {
		g.Go(func() error {
			m.upsertOne(ctx, dest, rec, res, &mu)
			return nil
		})
	}
	// Workers never return errors; record failures are accounted, not fatal.
	_ = g.Wait()
}

func (m *Migrator) upsertOne(ctx context.Context, dest store.Container, rec store.Record, res *Result, mu *sync.Mutex) {
	err := m.policy.Do(ctx, func() error {
		return dest.Upsert(ctx, rec)
	})

	if mu != nil {
		mu.Lock()
		defer mu.Unlock()
	}
	res.Attempted++
	if err == nil {
		res.Succeeded++
		return
	}
	res.Failed++
	res.Failures = append(res.Failures, RecordFailure{ID: rec.ID(), Reason: err.Error()})
	m.log.Error().Str("id", rec.ID()).Err(err).Msg("record failed")
	m.reporter.Emit(progress.ErrorOccurred{Message: fmt.Sprintf("record %s: %v", rec.ID(), err)})
}

func percentage(processed, total int64) float64 {
	if total <= 0 {
		return 100
	}
	return float64(processed) / float64(total) * 100
}
