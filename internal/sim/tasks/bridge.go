package tasks

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrClosed is returned by Enqueue after Close.
var ErrClosed = errors.New("tasks: bridge closed")

// Task mutates simulation state. It runs exactly once, on the simulation
// goroutine. Anything it looks up by id may already be gone.
type Task func()

type delayedTask struct {
	due uint64
	fn  Task
}

// Bridge hands work from network goroutines to the single simulation
// goroutine. Producers call Enqueue; only the simulation goroutine calls
// Drain, After and Run.
type Bridge struct {
	ch   chan Task
	done chan struct{}
	once sync.Once

	tick    uint64
	delayed []delayedTask
}

// NewBridge creates a bridge holding at most capacity pending tasks.
func NewBridge(capacity int) *Bridge {
	if capacity <= 0 {
		capacity = 1024
	}
	return &Bridge{
		ch:   make(chan Task, capacity),
		done: make(chan struct{}),
	}
}

// Enqueue blocks while the queue is full, applying back-pressure to the caller.
func (b *Bridge) Enqueue(fn Task) error {
	if fn == nil {
		return nil
	}
	select {
	case <-b.done:
		return ErrClosed
	default:
	}
	select {
	case b.ch <- fn:
		return nil
	case <-b.done:
		return ErrClosed
	}
}

// TryEnqueue never blocks; it reports false when the task was not accepted.
func (b *Bridge) TryEnqueue(fn Task) bool {
	if fn == nil {
		return true
	}
	select {
	case <-b.done:
		return false
	default:
	}
	select {
	case b.ch <- fn:
		return true
	default:
		return false
	}
}

// Close rejects further tasks and releases blocked producers. Tasks already
// queued can still be drained.
func (b *Bridge) Close() {
	b.once.Do(func() { close(b.done) })
}

// Depth is the number of queued, not yet drained tasks.
func (b *Bridge) Depth() int { return len(b.ch) }

// Tick is the number of completed Step calls.
func (b *Bridge) Tick() uint64 { return b.tick }

// Drain runs, in FIFO order, the tasks that were queued when it started.
// Tasks enqueued while draining run on the next drain.
func (b *Bridge) Drain() int {
	n := len(b.ch)
	for i := 0; i < n; i++ {
		fn := <-b.ch
		fn()
	}
	return n
}

// After schedules fn to run ticks steps from now. Simulation goroutine only.
func (b *Bridge) After(ticks int, fn Task) {
	if fn == nil {
		return
	}
	if ticks < 1 {
		ticks = 1
	}
	b.delayed = append(b.delayed, delayedTask{due: b.tick + uint64(ticks), fn: fn})
}

// Step advances one simulation tick: drain queued work, then fire due
// delayed tasks in the order they were scheduled.
func (b *Bridge) Step() int {
	ran := b.Drain()
	b.tick++
	if len(b.delayed) == 0 {
		return ran
	}
	var due []Task
	keep := b.delayed[:0]
	for _, d := range b.delayed {
		if d.due <= b.tick {
			due = append(due, d.fn)
			continue
		}
		keep = append(keep, d)
	}
	for i := len(keep); i < len(b.delayed); i++ {
		b.delayed[i] = delayedTask{}
	}
	b.delayed = keep
	for _, fn := range due {
		fn()
	}
	return ran + len(due)
}

// Run is the simulation loop. Each interval it steps the bridge and then
// calls step with the tick's wall time.
func (b *Bridge) Run(ctx context.Context, interval time.Duration, step func(now time.Time)) error {
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			b.Step()
			if step != nil {
				step(now)
			}
		}
	}
}
