package allocator

import (
    "context"
    "time"

    "github.com/hamzaKhattat/callerid-pool/internal/poolstore"
    "github.com/hamzaKhattat/callerid-pool/pkg/logger"
)

// HistoryWriter drains a buffered channel of allocation outcomes into the
// Pool Store's append-only history table on a background goroutine, off
// the request path entirely. A full buffer drops the incoming record
// rather than blocking Allocate — history is a best-effort
// dashboard feed, never a correctness dependency.
type HistoryWriter struct {
    sink HistorySink
    ch   chan poolstore.AllocationHistory
    done chan struct{}
}

// NewHistoryWriter starts the background writer. Call Stop to drain and
// shut it down.
func NewHistoryWriter(sink HistorySink, bufferSize int) *HistoryWriter {
    w := &HistoryWriter{
        sink: sink,
        ch:   make(chan poolstore.AllocationHistory, bufferSize),
        done: make(chan struct{}),
    }
    go w.run()
    return w
}

func (w *HistoryWriter) run() {
    for h := range w.ch {
        ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
        if err := w.sink.RecordAllocation(ctx, h); err != nil {
            logger.WithContext(ctx).WithError(err).Warn("allocation history write failed")
        }
        cancel()
    }
    close(w.done)
}

// Record enqueues an outcome without blocking the caller; if the buffer is
// full the record is dropped (logged at debug elsewhere by the caller if
// it cares).
func (w *HistoryWriter) Record(h poolstore.AllocationHistory) {
    select {
    case w.ch <- h:
    default:
    }
}

// Stop closes the channel and waits for the writer to drain.
func (w *HistoryWriter) Stop() {
    close(w.ch)
    <-w.done
}
