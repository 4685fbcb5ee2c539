package gameserver

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// JournalKind names a journaled session event.
type JournalKind string

const (
	JournalJoin  JournalKind = "join"
	JournalLeave JournalKind = "leave"
	JournalChat  JournalKind = "chat"
)

var (
	// ErrJournalFull is returned when the async journal queue is saturated.
	ErrJournalFull = errors.New("journal queue full")
	// ErrJournalClosed is returned after the async journal has been stopped.
	ErrJournalClosed = errors.New("journal closed")
)

// JournalEvent is one audit record. It is written for operators and never
// read back into the registry.
type JournalEvent struct {
	Kind          JournalKind
	ParticipantID string
	X             float64
	Y             float64
	Message       string
	Recipients    []string
	At            time.Time
}

// Journal records session events.
//
// Postcondition: Returns nil when the event was accepted.
type Journal interface {
	Record(ctx context.Context, ev JournalEvent) error
}

// AsyncJournal queues events for a background worker that writes them to
// sink, so Record never blocks on I/O. It implements server.Service.
type AsyncJournal struct {
	sink         Journal
	events       chan JournalEvent
	writeTimeout time.Duration
	logger       *zap.Logger

	running  atomic.Bool
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewAsyncJournal wraps sink with a queue of size events.
//
// Precondition: sink and logger must be non-nil; size must be > 0.
func NewAsyncJournal(sink Journal, size int, logger *zap.Logger) *AsyncJournal {
	if size <= 0 {
		panic("gameserver.NewAsyncJournal: size must be > 0")
	}
	return &AsyncJournal{
		sink:         sink,
		events:       make(chan JournalEvent, size),
		writeTimeout: 5 * time.Second,
		logger:       logger,
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// Record enqueues ev without blocking.
//
// Postcondition: Returns ErrJournalFull when the queue is saturated and
// ErrJournalClosed after Stop.
func (j *AsyncJournal) Record(_ context.Context, ev JournalEvent) error {
	select {
	case <-j.stop:
		return ErrJournalClosed
	default:
	}
	select {
	case j.events <- ev:
		return nil
	default:
		return ErrJournalFull
	}
}

// Start runs the worker until Stop is called, then flushes what is queued.
func (j *AsyncJournal) Start() error {
	j.running.Store(true)
	defer close(j.done)
	for {
		select {
		case ev := <-j.events:
			j.write(ev)
		case <-j.stop:
			for {
				select {
				case ev := <-j.events:
					j.write(ev)
				default:
					return nil
				}
			}
		}
	}
}

// Stop signals the worker and waits for the flush to finish.
// Stop before Start returns immediately.
func (j *AsyncJournal) Stop() {
	j.stopOnce.Do(func() { close(j.stop) })
	if !j.running.Load() {
		return
	}
	select {
	case <-j.done:
	case <-time.After(j.writeTimeout):
		j.logger.Warn("journal worker did not finish flushing")
	}
}

func (j *AsyncJournal) write(ev JournalEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), j.writeTimeout)
	defer cancel()
	if err := j.sink.Record(ctx, ev); err != nil {
		j.logger.Warn("writing journal event",
			zap.String("kind", string(ev.Kind)),
			zap.String("id", ev.ParticipantID),
			zap.Error(err),
		)
	}
}
