package scheduler

import (
	"sync"

	"github.com/Everless321/dYm-web/app/bus"
)

// DefaultLogSize bounds the in-memory scheduler log.
const DefaultLogSize = 500

// Log is a fixed-size circular buffer of scheduler log entries. Goroutine-safe
// for concurrent appends, snapshots and clears.
type Log struct {
	mu    sync.Mutex
	buf   []bus.SchedulerLog
	size  int
	head  int // next write position
	count int // number of valid entries (0..size)
}

func NewLog(size int) *Log {
	if size <= 0 {
		size = DefaultLogSize
	}
	return &Log{
		buf:  make([]bus.SchedulerLog, size),
		size: size,
	}
}

// Append adds an entry, overwriting the oldest when full.
func (l *Log) Append(entry bus.SchedulerLog) {
	l.mu.Lock()
	l.buf[l.head] = entry
	l.head = (l.head + 1) % l.size
	if l.count < l.size {
		l.count++
	}
	l.mu.Unlock()
}

// Entries returns a copy of all entries in chronological order (oldest first).
func (l *Log) Entries() []bus.SchedulerLog {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.count == 0 {
		return nil
	}

	result := make([]bus.SchedulerLog, l.count)
	if l.count < l.size {
		copy(result, l.buf[:l.count])
	} else {
		n := copy(result, l.buf[l.head:])
		copy(result[n:], l.buf[:l.head])
	}
	return result
}

// Clear wipes the buffer.
func (l *Log) Clear() {
	l.mu.Lock()
	l.head = 0
	l.count = 0
	l.mu.Unlock()
}

// Len returns the number of buffered entries.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}
