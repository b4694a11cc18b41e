package listener

import (
	"context"
	"log/slog"
	"sync"
)

type Job interface {
	Start(ctx context.Context)
	Stop()
}

// Listener runs handler for every value received on in, one at a time, on its
// own goroutine. Handler errors are logged and do not stop the listener.
type Listener[T any] struct {
	name    string
	handler func(input T) error
	logger  *slog.Logger

	in     <-chan T
	wg     sync.WaitGroup
	cancel func()
}

func New[T any](
	name string,
	in <-chan T,
	handler func(T) error,
	logger *slog.Logger,
) *Listener[T] {
	if logger == nil {
		logger = slog.Default()
	}

	return &Listener[T]{
		name:    name,
		in:      in,
		handler: handler,
		logger:  logger,
		cancel:  func() {},
	}
}

func (l *Listener[T]) Start(ctx context.Context) {
	ctx, l.cancel = context.WithCancel(ctx)
	l.wg.Add(1)

	go func() {
		defer l.wg.Done()
		for {
			select {
			case inp, ok := <-l.in:
				if !ok {
					return
				}
				if err := l.handler(inp); err != nil {
					l.logger.Error("listener: failed to handle input", "listener", l.name, "error", err)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop cancels the listener and waits for the in-flight handler to return.
func (l *Listener[T]) Stop() {
	l.cancel()
	l.wg.Wait()
}
