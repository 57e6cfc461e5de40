package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"ais_parser/internal/ais"
	"ais_parser/internal/logging"
	"ais_parser/internal/metrics"
)

// writer owns one partition: a bounded queue and the goroutine that drains
// it into batched inserts on the current file's transaction.
type writer struct {
	partition ais.Partition
	grace     time.Duration
	maxBatch  int
	breaker   *gobreaker.CircuitBreaker[struct{}]

	queue   chan ais.Message
	pending sync.WaitGroup
	done    chan struct{}

	mu  sync.Mutex
	tx  FileTx
	err error // first failed batch of the current file
}

func newWriter(p ais.Partition, opts Options) *writer {
	name := "ais_" + string(p)
	settings := gobreaker.Settings{
		Name:    name,
		Timeout: opts.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= opts.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.CircuitState.WithLabelValues(name).Set(float64(to))
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("batch writer circuit breaker changed state")
		},
	}
	metrics.CircuitState.WithLabelValues(name).Set(0)

	return &writer{
		partition: p,
		grace:     opts.DrainGrace,
		maxBatch:  opts.BatchSize,
		breaker:   gobreaker.NewCircuitBreaker[struct{}](settings),
		queue:     make(chan ais.Message, opts.QueueSize),
		done:      make(chan struct{}),
	}
}

// enqueue blocks while the queue is full.
func (w *writer) enqueue(ctx context.Context, msg ais.Message) error {
	w.pending.Add(1)
	select {
	case w.queue <- msg:
		return nil
	case <-ctx.Done():
		w.pending.Done()
		return ctx.Err()
	}
}

// begin directs the writer at a file's transaction. No messages may be
// pending.
func (w *writer) begin(tx FileTx) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.tx, w.err = tx, nil
}

// end waits until every enqueued message has reached the transaction and
// returns the first batch error of the file.
func (w *writer) end() error {
	w.pending.Wait()
	w.mu.Lock()
	defer w.mu.Unlock()
	err := w.err
	w.tx, w.err = nil, nil
	return err
}

// close stops the consumer after the queue drains.
func (w *writer) close() {
	close(w.queue)
	<-w.done
}

func (w *writer) run(ctx context.Context) {
	defer close(w.done)
	for msg := range w.queue {
		batch := w.drain([]ais.Message{msg})
		w.flush(ctx, batch)
		w.pending.Add(-len(batch))
	}
}

// drain collects messages that arrive within the grace window of each other.
func (w *writer) drain(batch []ais.Message) []ais.Message {
	timer := time.NewTimer(w.grace)
	defer timer.Stop()
	for len(batch) < w.maxBatch {
		select {
		case msg, ok := <-w.queue:
			if !ok {
				return batch
			}
			batch = append(batch, msg)
			timer.Reset(w.grace)
		case <-timer.C:
			return batch
		}
	}
	return batch
}

// flush inserts one batch. After the first failure the rest of the file's
// batches are discarded, since its transaction will be rolled back.
func (w *writer) flush(ctx context.Context, batch []ais.Message) {
	w.mu.Lock()
	tx, failed := w.tx, w.err != nil
	w.mu.Unlock()

	if failed || tx == nil {
		metrics.RecordBatchFailure(string(w.partition), "file_aborted", len(batch))
		return
	}

	start := time.Now()
	_, err := w.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, tx.InsertMessages(ctx, w.partition, batch)
	})

	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.RecordBatchFailure(string(w.partition), "circuit_open", len(batch))
		logging.Error().
			Str("partition", string(w.partition)).
			Int("count", len(batch)).
			Msg("circuit open, aborting file")
	case err != nil:
		metrics.RecordBatch(string(w.partition), len(batch), time.Since(start), err)
		logging.Error().Err(err).
			Str("partition", string(w.partition)).
			Int("count", len(batch)).
			Msg("error executing batch insert, aborting file")
	default:
		metrics.RecordBatch(string(w.partition), len(batch), time.Since(start), nil)
		logging.Debug().
			Str("partition", string(w.partition)).
			Int("count", len(batch)).
			Dur("duration", time.Since(start)).
			Msg("batch inserted")
		return
	}

	w.mu.Lock()
	if w.err == nil {
		w.err = fmt.Errorf("write %s batch: %w", w.partition, err)
	}
	w.mu.Unlock()
}
