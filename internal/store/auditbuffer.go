package store

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
)

// auditBufferCapacity bounds how many staged entries can sit in memory
// waiting for the flusher. A full buffer makes Append drop the entry
// rather than block the caller.
const auditBufferCapacity = 4096

// auditFlushInterval is how often the background flusher drains staged
// entries into the logs table.
const auditFlushInterval = 500 * time.Millisecond

// AuditBuffer is an in-memory staging area for audit log entries:
// Append hands the entry to a buffered channel and returns immediately,
// and a background goroutine drains the channel into the logs table on
// a timer. This keeps the audit logger's "never blocks protocol"
// guarantee even if the SQL store is briefly slow, without a second
// on-disk store just for staging.
type AuditBuffer struct {
	entries chan LogEntry
	seq     atomic.Uint64
	dropped atomic.Uint64

	store  *Store
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// OpenAuditBuffer starts the background flusher that drains staged
// entries into store.
func OpenAuditBuffer(store *Store) *AuditBuffer {
	b := &AuditBuffer{
		entries: make(chan LogEntry, auditBufferCapacity),
		store:   store,
		stopCh:  make(chan struct{}),
	}
	b.wg.Add(1)
	go b.flushLoop()
	return b
}

// Append stages a log entry. It never blocks on SQL: the entry lands on
// a buffered channel and returns. If the buffer is full the entry is
// dropped and counted, rather than stalling the caller.
func (b *AuditBuffer) Append(entry LogEntry) error {
	b.seq.Add(1)
	select {
	case b.entries <- entry:
		return nil
	default:
		b.dropped.Add(1)
		return errors.New("auditbuffer: buffer full, entry dropped")
	}
}

// Dropped returns the number of entries discarded because the staging
// buffer was full.
func (b *AuditBuffer) Dropped() uint64 {
	return b.dropped.Load()
}

func (b *AuditBuffer) flushLoop() {
	defer b.wg.Done()
	ticker := time.NewTicker(auditFlushInterval)
	defer ticker.Stop()

	var pending []LogEntry
	flush := func() {
		if len(pending) == 0 {
			return
		}
		ctx := context.Background()
		for _, entry := range pending {
			// A failed insert drops the entry rather than re-staging it:
			// re-staging behind entries accepted after it would reorder
			// the log.
			_ = b.store.InsertLog(ctx, entry)
		}
		pending = pending[:0]
	}

	for {
		select {
		case entry := <-b.entries:
			pending = append(pending, entry)
		case <-ticker.C:
			flush()
		case <-b.stopCh:
			b.drainChannel(&pending)
			flush()
			return
		}
	}
}

// drainChannel empties whatever is queued without blocking, so Close's
// final flush picks up entries staged just before shutdown.
func (b *AuditBuffer) drainChannel(pending *[]LogEntry) {
	for {
		select {
		case entry := <-b.entries:
			*pending = append(*pending, entry)
		default:
			return
		}
	}
}

// Close stops the flusher, draining any remaining staged entries, and
// waits for it to exit.
func (b *AuditBuffer) Close() error {
	close(b.stopCh)
	b.wg.Wait()
	return nil
}
