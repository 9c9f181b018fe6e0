package telemetry

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ent0n29/socketrobot/internal/reliability"
)

const (
	appendTimeout  = 2 * time.Second
	appendAttempts = 3
)

// Recorder queues records for a Store without ever blocking the caller. When
// the queue is full the record is dropped and counted.
type Recorder struct {
	store   Store
	queue   chan Record
	dropped atomic.Int64
	once    sync.Once
	done    chan struct{}
}

func NewRecorder(store Store, buffer int) *Recorder {
	if buffer <= 0 {
		buffer = 256
	}
	return &Recorder{
		store: store,
		queue: make(chan Record, buffer),
		done:  make(chan struct{}),
	}
}

// Record enqueues a record. Safe on a nil receiver.
func (r *Recorder) Record(kind Kind, sessionID, detail string) {
	if r == nil {
		return
	}
	rec := Record{Kind: kind, SessionID: sessionID, Detail: detail, CreatedAt: time.Now().UTC()}
	select {
	case r.queue <- rec:
	default:
		r.dropped.Add(1)
	}
}

// Dropped reports how many records were discarded because the queue was full.
func (r *Recorder) Dropped() int64 {
	if r == nil {
		return 0
	}
	return r.dropped.Load()
}

// Run drains the queue into the store until ctx is done, then flushes what
// is already queued.
func (r *Recorder) Run(ctx context.Context) {
	r.once.Do(func() {
		defer close(r.done)
		for {
			select {
			case <-ctx.Done():
				r.flush()
				return
			case rec := <-r.queue:
				r.append(rec)
			}
		}
	})
}

// Wait blocks until Run has returned.
func (r *Recorder) Wait() { <-r.done }

func (r *Recorder) flush() {
	for {
		select {
		case rec := <-r.queue:
			r.append(rec)
		default:
			return
		}
	}
}

func (r *Recorder) append(rec Record) {
	ctx, cancel := context.WithTimeout(context.Background(), appendTimeout)
	defer cancel()
	err := reliability.Retry(ctx, appendAttempts, 50*time.Millisecond, 500*time.Millisecond, func(ctx context.Context) error {
		return r.store.Append(ctx, rec)
	})
	if err != nil {
		log.Printf("telemetry: append %s failed: %v", rec.Kind, err)
	}
}
