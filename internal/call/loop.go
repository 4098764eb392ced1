package call

import (
	"context"
	"sync"
)

// loop runs posted closures one at a time on the goroutine that calls run.
// The queue is unbounded so posting never blocks, including from inside a
// closure that is running on the loop.
type loop struct {
	mu      sync.Mutex
	pending []func()
	closed  bool
	wake    chan struct{}
}

func newLoop() *loop {
	return &loop{wake: make(chan struct{}, 1)}
}

func (l *loop) post(fn func()) bool {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	l.pending = append(l.pending, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

func (l *loop) next() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.pending) == 0 {
		return nil, false
	}
	fn := l.pending[0]
	l.pending[0] = nil
	l.pending = l.pending[1:]
	return fn, true
}

// run executes closures until done is closed or ctx is cancelled.
func (l *loop) run(ctx context.Context, done <-chan struct{}) error {
	for {
		for {
			fn, ok := l.next()
			if !ok {
				break
			}
			fn()
			select {
			case <-done:
				l.shutdown()
				return nil
			default:
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-done:
			l.shutdown()
			return nil
		case <-l.wake:
		}
	}
}

func (l *loop) shutdown() {
	l.mu.Lock()
	l.closed = true
	l.pending = nil
	l.mu.Unlock()
}
