package connector

import (
	"context"
	"sync"
)

// serialQueue ejecuta las tareas de una misma clave en orden de llegada, una a la vez,
// y las de claves distintas en paralelo.
type serialQueue struct {
	mu      sync.Mutex
	pending map[string][]func()
	wg      sync.WaitGroup
}

func newSerialQueue() *serialQueue {
	return &serialQueue{pending: make(map[string][]func())}
}

func (q *serialQueue) Submit(key string, task func()) {
	q.mu.Lock()
	q.wg.Add(1)
	if queued, running := q.pending[key]; running {
		q.pending[key] = append(queued, task)
		q.mu.Unlock()
		return
	}
	q.pending[key] = nil
	q.mu.Unlock()
	go q.run(key, task)
}

func (q *serialQueue) run(key string, task func()) {
	for {
		task()
		q.wg.Done()

		q.mu.Lock()
		queued := q.pending[key]
		if len(queued) == 0 {
			delete(q.pending, key)
			q.mu.Unlock()
			return
		}
		task = queued[0]
		q.pending[key] = queued[1:]
		q.mu.Unlock()
	}
}

// Wait bloquea hasta que no quede ninguna tarea o venza ctx.
func (q *serialQueue) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *serialQueue) size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
