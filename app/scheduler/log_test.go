package scheduler

import (
	"fmt"
	"sync"
	"testing"

	"github.com/Everless321/dYm-web/app/bus"
)

func TestLogAppendAndEntries(t *testing.T) {
	l := NewLog(10)

	if entries := l.Entries(); entries != nil {
		t.Errorf("Expected empty log, got %d entries", len(entries))
	}

	l.Append(bus.SchedulerLog{Message: "first"})
	l.Append(bus.SchedulerLog{Message: "second"})

	entries := l.Entries()
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}
	if entries[0].Message != "first" || entries[1].Message != "second" {
		t.Errorf("Expected chronological order, got %q then %q", entries[0].Message, entries[1].Message)
	}
}

func TestLogEvictsOldestWhenFull(t *testing.T) {
	l := NewLog(3)

	for i := 1; i <= 5; i++ {
		l.Append(bus.SchedulerLog{Message: fmt.Sprintf("entry-%d", i)})
	}

	entries := l.Entries()
	if len(entries) != 3 {
		t.Fatalf("Expected the buffer to stay at 3 entries, got %d", len(entries))
	}
	expected := []string{"entry-3", "entry-4", "entry-5"}
	for i, want := range expected {
		if entries[i].Message != want {
			t.Errorf("Entry %d: expected %q, got %q", i, want, entries[i].Message)
		}
	}
}

func TestLogClear(t *testing.T) {
	l := NewLog(5)
	l.Append(bus.SchedulerLog{Message: "entry"})

	l.Clear()

	if l.Len() != 0 {
		t.Errorf("Expected empty log after clear, got %d entries", l.Len())
	}

	// The buffer stays usable after a clear
	l.Append(bus.SchedulerLog{Message: "after-clear"})
	entries := l.Entries()
	if len(entries) != 1 || entries[0].Message != "after-clear" {
		t.Errorf("Expected single fresh entry, got %v", entries)
	}
}

func TestLogConcurrentAppends(t *testing.T) {
	l := NewLog(64)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				l.Append(bus.SchedulerLog{Message: fmt.Sprintf("w%d-%d", worker, j)})
				l.Entries()
			}
		}(i)
	}
	wg.Wait()

	if l.Len() != 64 {
		t.Errorf("Expected full buffer of 64 entries, got %d", l.Len())
	}
}
