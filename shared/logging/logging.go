// Package logging wraps zerolog with the framework's logger semantics: a
// level threshold, optional asynchronous delivery through a bounded
// buffer with a configurable overflow strategy, and a force-flush mode
// that bypasses the buffer entirely.
package logging

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// OverflowStrategy decides what happens when the async buffer is full.
type OverflowStrategy int

const (
	// DropOldest evicts the oldest buffered record to make room.
	DropOldest OverflowStrategy = iota
	// DropNewest discards the incoming record.
	DropNewest
	// Block stalls the producer until the consumer catches up.
	Block
)

// ParseStrategy maps a config string to its strategy, defaulting to
// DropOldest.
func ParseStrategy(s string) OverflowStrategy {
	switch strings.ToLower(s) {
	case "drop-newest":
		return DropNewest
	case "block":
		return Block
	default:
		return DropOldest
	}
}

// ParseLevel maps a config string to a zerolog level, defaulting to info.
func ParseLevel(s string) zerolog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return zerolog.DebugLevel
	case "warning", "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "critical":
		return zerolog.FatalLevel
	case "none":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// Options configure a Logger.
type Options struct {
	Level string

	// ForceFlush writes every record synchronously, overriding Async.
	ForceFlush bool

	// Async buffers records and writes them from a background consumer.
	Async      bool
	BufferSize int

	OverflowStrategy OverflowStrategy

	// Writer receives the rendered records; os.Stderr when nil.
	Writer io.Writer
}

// Logger is the framework logger. The zero value is unusable; build one
// with New.
type Logger struct {
	zerolog.Logger

	async *asyncWriter
}

// New builds a logger from opts.
func New(opts Options) *Logger {
	sink := opts.Writer
	if sink == nil {
		sink = os.Stderr
	}

	l := &Logger{}
	if opts.Async && !opts.ForceFlush {
		size := opts.BufferSize
		if size <= 0 {
			size = 16384
		}
		l.async = newAsyncWriter(sink, size, opts.OverflowStrategy)
		sink = l.async
	}

	l.Logger = zerolog.New(sink).Level(ParseLevel(opts.Level)).With().Timestamp().Logger()
	return l
}

// Close drains the async buffer and stops the consumer. Safe on
// synchronous loggers and safe to call twice.
func (l *Logger) Close() {
	if l.async != nil {
		l.async.Close()
	}
}

// asyncWriter ships records to the sink from one consumer goroutine.
type asyncWriter struct {
	sink     io.Writer
	records  chan []byte
	strategy OverflowStrategy

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

func newAsyncWriter(sink io.Writer, size int, strategy OverflowStrategy) *asyncWriter {
	w := &asyncWriter{
		sink:     sink,
		records:  make(chan []byte, size),
		strategy: strategy,
		done:     make(chan struct{}),
	}
	go w.consume()
	return w
}

func (w *asyncWriter) Write(p []byte) (int, error) {
	record := make([]byte, len(p))
	copy(record, p)

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return len(p), nil
	}

	switch w.strategy {
	case Block:
		// hold the lock so Close cannot race the send
		w.records <- record
	case DropNewest:
		select {
		case w.records <- record:
		default:
		}
	default: // DropOldest
		for {
			select {
			case w.records <- record:
			default:
				select {
				case <-w.records:
				default:
				}
				continue
			}
			break
		}
	}
	w.mu.Unlock()
	return len(p), nil
}

func (w *asyncWriter) consume() {
	defer close(w.done)
	for record := range w.records {
		w.sink.Write(record)
	}
}

// Close stops accepting records, drains the buffer and waits for the
// consumer to finish.
func (w *asyncWriter) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	close(w.records)
	w.mu.Unlock()
	<-w.done
}
