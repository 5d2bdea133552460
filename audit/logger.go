// Asynchronous audit logger.
//
// Events are hash-chained at enqueue time and flushed to the sink in
// batches, either when the batch fills or on a timer. The edit path
// never blocks on the sink: when the queue is full, events divert to an
// overflow buffer that the flusher drains first.

package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/richinex/redline/model"
)

const (
	defaultQueueSize     = 256
	defaultBatchSize     = 32
	defaultFlushInterval = 200 * time.Millisecond
)

// LoggerOptions tune the batching behavior. Zero values pick defaults.
type LoggerOptions struct {
	QueueSize     int
	BatchSize     int
	FlushInterval time.Duration
}

func (o LoggerOptions) withDefaults() LoggerOptions {
	if o.QueueSize <= 0 {
		o.QueueSize = defaultQueueSize
	}
	if o.BatchSize <= 0 {
		o.BatchSize = defaultBatchSize
	}
	if o.FlushInterval <= 0 {
		o.FlushInterval = defaultFlushInterval
	}
	return o
}

// Logger chains and batches audit events into a sink.
type Logger struct {
	sink Sink
	log  *zap.Logger
	opts LoggerOptions

	mu       sync.Mutex
	lastHash string
	overflow []model.AuditEvent

	ch       chan model.AuditEvent
	flushReq chan chan struct{}
	done     chan struct{}
	wg       sync.WaitGroup

	closeOnce sync.Once
	closeErr  error
}

// NewLogger creates a logger writing to sink. The chain continues from
// the sink's last stored hash, so restarts keep the stream verifiable.
func NewLogger(sink Sink, log *zap.Logger, opts LoggerOptions) (*Logger, error) {
	if log == nil {
		log = zap.NewNop()
	}
	opts = opts.withDefaults()

	last, err := sink.LastHash(context.Background())
	if err != nil {
		return nil, err
	}

	l := &Logger{
		sink:     sink,
		log:      log,
		opts:     opts,
		lastHash: last,
		ch:       make(chan model.AuditEvent, opts.QueueSize),
		flushReq: make(chan chan struct{}),
		done:     make(chan struct{}),
	}
	l.wg.Add(1)
	go l.run()
	return l, nil
}

// Record chains, stamps and enqueues an event. Never blocks; events
// divert to the overflow buffer when the queue is full. The returned
// event carries the assigned id and hashes.
func (l *Logger) Record(e model.AuditEvent) model.AuditEvent {
	if e.EventID == "" {
		e.EventID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	l.mu.Lock()
	e.PrevHash = l.lastHash
	e.Hash = e.ComputeHash()
	l.lastHash = e.Hash

	select {
	case l.ch <- e:
		l.mu.Unlock()
	default:
		// Queue full: keep the event rather than the latency.
		l.overflow = append(l.overflow, e)
		l.mu.Unlock()
		l.log.Warn("audit queue full, event diverted to overflow",
			zap.String("event_id", e.EventID),
			zap.String("event_type", string(e.Type)))
	}
	return e
}

// run is the flusher goroutine.
func (l *Logger) run() {
	defer l.wg.Done()

	ticker := time.NewTicker(l.opts.FlushInterval)
	defer ticker.Stop()

	var batch []model.AuditEvent
	flush := func() {
		batch = append(l.takeOverflow(), batch...)
		if len(batch) == 0 {
			return
		}
		if err := l.sink.WriteBatch(context.Background(), batch); err != nil {
			// Failed batches return to the overflow buffer so no event
			// is lost while the sink is down.
			l.log.Error("audit batch write failed, events kept in overflow",
				zap.Int("events", len(batch)),
				zap.Error(err))
			l.mu.Lock()
			l.overflow = append(batch, l.overflow...)
			l.mu.Unlock()
		}
		batch = nil
	}

	for {
		select {
		case e := <-l.ch:
			batch = append(batch, e)
			if len(batch) >= l.opts.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case reply := <-l.flushReq:
			for {
				select {
				case e := <-l.ch:
					batch = append(batch, e)
					continue
				default:
				}
				break
			}
			flush()
			close(reply)
		case <-l.done:
			// Drain whatever is queued, then flush once more.
			for {
				select {
				case e := <-l.ch:
					batch = append(batch, e)
				default:
					flush()
					return
				}
			}
		}
	}
}

func (l *Logger) takeOverflow() []model.AuditEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := l.overflow
	l.overflow = nil
	return out
}

// Flush forces pending events into the sink and waits for the write.
func (l *Logger) Flush(ctx context.Context) error {
	reply := make(chan struct{})
	select {
	case l.flushReq <- reply:
	case <-l.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-reply:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close drains the queue, flushes, and closes the sink.
func (l *Logger) Close() error {
	l.closeOnce.Do(func() {
		close(l.done)
		l.wg.Wait()
		// Anything still in overflow gets one final direct write.
		if rest := l.takeOverflow(); len(rest) > 0 {
			if err := l.sink.WriteBatch(context.Background(), rest); err != nil {
				l.log.Error("final audit flush failed", zap.Error(err))
				l.closeErr = err
			}
		}
		if err := l.sink.Close(); err != nil && l.closeErr == nil {
			l.closeErr = err
		}
	})
	return l.closeErr
}
