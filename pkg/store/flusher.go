package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"kvcore/pkg/listener"
	"kvcore/pkg/memtable"
	"kvcore/pkg/table"
)

// Flusher turns frozen memtables into tables on a background goroutine, one at
// a time and in the order they were scheduled. Running one flush at a time is
// what keeps filter construction serialised.
type Flusher struct {
	in        chan *memtable.Memtable
	registry  *table.Registry
	onFlushed func(*memtable.Memtable)
	listener  *listener.Listener[*memtable.Memtable]
	pending   sync.WaitGroup
}

var _ listener.Job = (*Flusher)(nil)

func NewFlusher(
	buffSize int,
	registry *table.Registry,
	onFlushed func(*memtable.Memtable),
	logger *slog.Logger,
) *Flusher {
	f := &Flusher{
		in:        make(chan *memtable.Memtable, buffSize),
		registry:  registry,
		onFlushed: onFlushed,
	}
	f.listener = listener.New("flusher", f.in, f.flush, logger)

	return f
}

func (f *Flusher) Start(ctx context.Context) {
	f.listener.Start(ctx)
}

// Schedule queues mt for flushing. It blocks while the queue is full.
func (f *Flusher) Schedule(mt *memtable.Memtable) {
	f.pending.Add(1)
	f.in <- mt
}

// Wait blocks until every scheduled memtable has been handled.
func (f *Flusher) Wait() {
	f.pending.Wait()
}

// Stop drains the queue and stops the background goroutine.
func (f *Flusher) Stop() {
	f.Wait()
	f.listener.Stop()
}

func (f *Flusher) flush(mt *memtable.Memtable) error {
	defer f.pending.Done()

	_, err := f.registry.Flush(mt)
	switch {
	case errors.Is(err, table.ErrEmptyMemtable):
	case err != nil:
		return fmt.Errorf("failed to flush memtable: %w", err)
	}

	f.onFlushed(mt)
	return nil
}
