package history

import (
	"context"
	"sync"
	"time"

	"swiftlingo/src/logutil"
	"swiftlingo/src/translate"
)

// DefaultQueueSize bounds the records waiting to be written.
const DefaultQueueSize = 32

// Async writes records from one background goroutine. Record never blocks;
// when the queue is full the record is dropped and logged.
type Async struct {
	store Store
	queue chan Entry
	done  chan struct{}

	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

func NewAsync(store Store, queueSize int) *Async {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	a := &Async{store: store, queue: make(chan Entry, queueSize), done: make(chan struct{})}
	go a.loop()
	return a
}

func (a *Async) loop() {
	defer close(a.done)
	for e := range a.queue {
		a.write(e)
	}
}

func (a *Async) write(e Entry) {
	defer func() {
		if r := recover(); r != nil {
			logutil.L().Error("PANIC in history writer", logutil.Any("panic", r))
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.store.Save(ctx, e); err != nil {
		logutil.L().Warn("history: save failed", logutil.String("id", e.ID.String()), logutil.Error(err))
	}
}

// Record queues the outcome of a completed run.
func (a *Async) Record(span translate.TextSpan, target string, result *translate.Result, failure *translate.Failure) {
	a.Enqueue(NewEntry(span, target, result, failure))
}

// Enqueue queues e. It reports false when the entry was dropped.
func (a *Async) Enqueue(e Entry) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return false
	}
	select {
	case a.queue <- e:
		return true
	default:
		logutil.L().Warn("history: queue full, record dropped", logutil.String("id", e.ID.String()))
		return false
	}
}

// Recent reads through to the store.
func (a *Async) Recent(ctx context.Context, limit int) ([]Entry, error) {
	return a.store.Recent(ctx, limit)
}

// Close flushes queued records and closes the store.
func (a *Async) Close() error {
	var err error
	a.closeOnce.Do(func() {
		a.mu.Lock()
		a.closed = true
		close(a.queue)
		a.mu.Unlock()
		<-a.done
		err = a.store.Close()
	})
	return err
}
