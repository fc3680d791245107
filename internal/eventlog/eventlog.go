// Package eventlog is a bounded, rate-limited JSONL event log for simulation
// runs. Emission never blocks the tick: records are dropped and counted when
// the limiter or the ring buffer is saturated.
package eventlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const (
	BufferSize          = 1024                   // Ring buffer size
	MaxEventsPerSec     = 10000                  // Global rate limit
	MaxEventsPerOwner   = 500                    // Per-owner rate limit per second
	BatchFlushSize      = 64                     // Events per batch write
	BatchFlushInterval  = 100 * time.Millisecond // How often to flush
	OwnerLimiterCleanup = 5 * time.Minute        // Cleanup interval for owner limiters
)

// EventLog buffers events from a single producer (the tick goroutine) and
// writes them asynchronously.
type EventLog struct {
	// Ring buffer (SPSC)
	buffer    [BufferSize]Event
	writeHead uint64 // atomic - next sequence to publish
	readHead  uint64 // atomic - next sequence to read

	// Rate limiting so a single spell card cannot flood the log
	globalLimiter *rate.Limiter
	ownerLimiters sync.Map // map[string]*ownerLimiterEntry

	runID string

	// Async writer
	writerWg sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
	running  atomic.Bool

	// File output
	filePath string
	file     *os.File
	out      *bufio.Writer
	fileMu   sync.Mutex

	droppedCount uint64 // atomic
	totalCount   uint64 // atomic
	writeErrors  uint64 // atomic
}

type ownerLimiterEntry struct {
	limiter  *rate.Limiter
	lastUsed atomic.Int64 // unix nano
}

// New creates an event log tagged with a fresh run id
func New() *EventLog {
	return &EventLog{
		globalLimiter: rate.NewLimiter(MaxEventsPerSec, MaxEventsPerSec/10),
		stopChan:      make(chan struct{}),
		runID:         uuid.NewString(),
	}
}

// RunID identifies every record written by this log
func (el *EventLog) RunID() string {
	return el.runID
}

// Start opens filePath for append and begins the writer goroutines.
// An empty path keeps the log in memory only (events are still counted).
func (el *EventLog) Start(filePath string) error {
	if el.running.Load() {
		return nil
	}

	el.filePath = filePath
	if filePath != "" {
		file, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("open event log: %w", err)
		}
		el.file = file
		el.out = bufio.NewWriter(file)
	}

	el.running.Store(true)
	el.writerWg.Add(2)
	go el.writerLoop()
	go el.cleanupLoop()

	log.Printf("📝 Event log started (run %s, file %q)", el.runID, filePath)
	return nil
}

// Stop flushes pending events and closes the file
func (el *EventLog) Stop() {
	if !el.running.Load() {
		return
	}
	el.stopOnce.Do(func() {
		el.running.Store(false)
		close(el.stopChan)
		el.writerWg.Wait()

		el.fileMu.Lock()
		if el.out != nil {
			if err := el.out.Flush(); err != nil {
				atomic.AddUint64(&el.writeErrors, 1)
			}
		}
		if el.file != nil {
			el.file.Close()
		}
		el.fileMu.Unlock()
		log.Printf("📝 Event log stopped (%d written, %d dropped)", el.TotalCount(), el.DroppedCount())
	})
}

// Emit adds an event. Returns false if rate limited, buffer full or stopped.
func (el *EventLog) Emit(event Event) bool {
	if !el.running.Load() {
		return false
	}

	// Owner limit first: owner rejections must not consume global tokens
	if event.Owner != "" && !el.ownerLimiter(event.Owner).Allow() {
		atomic.AddUint64(&el.droppedCount, 1)
		return false
	}
	if !el.globalLimiter.Allow() {
		atomic.AddUint64(&el.droppedCount, 1)
		return false
	}

	head := atomic.LoadUint64(&el.writeHead)
	tail := atomic.LoadUint64(&el.readHead)
	if head-tail >= BufferSize {
		// Backpressure: the writer is behind, drop the newest
		atomic.AddUint64(&el.droppedCount, 1)
		return false
	}

	event.Sequence = head + 1
	event.RunID = el.runID
	el.buffer[head%BufferSize] = event
	atomic.StoreUint64(&el.writeHead, head+1) // publish after the slot is written

	atomic.AddUint64(&el.totalCount, 1)
	return true
}

// EmitSimple builds and emits an event in one call
func (el *EventLog) EmitSimple(eventType Type, tick uint64, owner string, payload any) bool {
	if !el.running.Load() {
		return false // skip payload encoding
	}
	return el.Emit(NewEvent(eventType, tick, owner, payload))
}

func (el *EventLog) ownerLimiter(owner string) *rate.Limiter {
	now := time.Now().UnixNano()
	if v, ok := el.ownerLimiters.Load(owner); ok {
		e := v.(*ownerLimiterEntry)
		e.lastUsed.Store(now)
		return e.limiter
	}

	entry := &ownerLimiterEntry{limiter: rate.NewLimiter(MaxEventsPerOwner, MaxEventsPerOwner/10)}
	entry.lastUsed.Store(now)
	actual, _ := el.ownerLimiters.LoadOrStore(owner, entry)
	return actual.(*ownerLimiterEntry).limiter
}

func (el *EventLog) writerLoop() {
	defer el.writerWg.Done()

	ticker := time.NewTicker(BatchFlushInterval)
	defer ticker.Stop()

	batch := make([]Event, 0, BatchFlushSize)
	for {
		select {
		case <-el.stopChan:
			// Final flush of everything still buffered
			for {
				batch = el.collectBatch(batch[:0])
				if len(batch) == 0 {
					return
				}
				el.flushBatch(batch)
			}

		case <-ticker.C:
			for {
				batch = el.collectBatch(batch[:0])
				if len(batch) == 0 {
					break
				}
				el.flushBatch(batch)
			}
		}
	}
}

func (el *EventLog) cleanupLoop() {
	defer el.writerWg.Done()

	ticker := time.NewTicker(OwnerLimiterCleanup)
	defer ticker.Stop()

	for {
		select {
		case <-el.stopChan:
			return
		case <-ticker.C:
			el.cleanupOwnerLimiters(time.Now().Add(-OwnerLimiterCleanup))
		}
	}
}

func (el *EventLog) cleanupOwnerLimiters(cutoff time.Time) {
	el.ownerLimiters.Range(func(key, value any) bool {
		if value.(*ownerLimiterEntry).lastUsed.Load() < cutoff.UnixNano() {
			el.ownerLimiters.Delete(key)
		}
		return true
	})
}

// collectBatch reads published events from the ring buffer
func (el *EventLog) collectBatch(batch []Event) []Event {
	head := atomic.LoadUint64(&el.writeHead)
	tail := atomic.LoadUint64(&el.readHead)

	for i := tail; i < head && len(batch) < BatchFlushSize; i++ {
		batch = append(batch, el.buffer[i%BufferSize])
	}
	if len(batch) > 0 {
		atomic.StoreUint64(&el.readHead, tail+uint64(len(batch)))
	}
	return batch
}

// flushBatch appends newline-delimited JSON
func (el *EventLog) flushBatch(batch []Event) {
	el.fileMu.Lock()
	defer el.fileMu.Unlock()

	if el.out == nil {
		return
	}

	enc := json.NewEncoder(el.out)
	for i := range batch {
		if err := enc.Encode(&batch[i]); err != nil {
			atomic.AddUint64(&el.writeErrors, 1)
		}
	}
	if err := el.out.Flush(); err != nil {
		atomic.AddUint64(&el.writeErrors, 1)
	}
}

// Stats is a point-in-time view of the log counters
type Stats struct {
	RunID       string `json:"runId"`
	Total       uint64 `json:"total"`
	Dropped     uint64 `json:"dropped"`
	Pending     uint64 `json:"pending"`
	WriteErrors uint64 `json:"writeErrors"`
	Running     bool   `json:"running"`
}

// Stats returns counters for monitoring
func (el *EventLog) Stats() Stats {
	head := atomic.LoadUint64(&el.writeHead)
	tail := atomic.LoadUint64(&el.readHead)
	return Stats{
		RunID:       el.runID,
		Total:       atomic.LoadUint64(&el.totalCount),
		Dropped:     atomic.LoadUint64(&el.droppedCount),
		Pending:     head - tail,
		WriteErrors: atomic.LoadUint64(&el.writeErrors),
		Running:     el.running.Load(),
	}
}

// DroppedCount returns the number of dropped events
func (el *EventLog) DroppedCount() uint64 {
	return atomic.LoadUint64(&el.droppedCount)
}

// TotalCount returns the number of accepted events
func (el *EventLog) TotalCount() uint64 {
	return atomic.LoadUint64(&el.totalCount)
}
