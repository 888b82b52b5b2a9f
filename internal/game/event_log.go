package game

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"vessel-racer/internal/metrics"
)

const (
	EventBufferSize      = 1024                   // Circular buffer size
	MaxEventsPerClient   = 20                     // Per-client rate limit per second
	BatchFlushSize       = 64                     // Events per batch write
	BatchFlushInterval   = 100 * time.Millisecond // How often to flush
	ClientLimiterCleanup = 5 * time.Minute        // Cleanup interval for client limiters
)

// EventLog provides bounded, rate-limited protocol event logging. Events
// are buffered in a ring and appended to a JSONL file by a writer goroutine.
type EventLog struct {
	mu        sync.Mutex
	buffer    [EventBufferSize]Event
	writeHead uint64 // next sequence to assign
	readHead  uint64 // next sequence the writer will flush

	// Rate limiting so one noisy client cannot flood the log
	globalLimiter  *rate.Limiter
	clientLimiters sync.Map // map[uint64]*clientLimiterEntry

	writerWg sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
	running  atomic.Bool

	file   *os.File
	fileMu sync.Mutex

	droppedCount atomic.Uint64
	totalCount   atomic.Uint64
}

type clientLimiterEntry struct {
	limiter  *rate.Limiter
	lastUsed atomic.Int64
}

// NewEventLog creates a log allowing maxPerSecond events overall.
func NewEventLog(maxPerSecond int) *EventLog {
	if maxPerSecond <= 0 {
		maxPerSecond = 100
	}
	burst := maxPerSecond / 10
	if burst < 1 {
		burst = 1
	}
	return &EventLog{
		globalLimiter: rate.NewLimiter(rate.Limit(maxPerSecond), burst),
		stopChan:      make(chan struct{}),
	}
}

// Start begins the async writer. An empty path keeps events in memory only.
func (el *EventLog) Start(filePath string) error {
	if el.running.Load() {
		return nil
	}

	if filePath != "" {
		if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
			return fmt.Errorf("event log %s: %w", filePath, err)
		}
		file, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("event log %s: %w", filePath, err)
		}
		el.file = file
	}

	el.running.Store(true)
	el.writerWg.Add(2)
	go el.writerLoop()
	go el.cleanupLoop()
	return nil
}

// Stop flushes what is buffered and closes the file.
func (el *EventLog) Stop() {
	if !el.running.Load() {
		return
	}
	el.stopOnce.Do(func() {
		el.running.Store(false)
		close(el.stopChan)
		el.writerWg.Wait()

		el.fileMu.Lock()
		if el.file != nil {
			if err := el.file.Close(); err != nil {
				log.Warn().Err(err).Msg("⚠️ closing event log")
			}
		}
		el.fileMu.Unlock()
	})
}

// Emit adds an event. It returns false when the event was rate limited or
// the log is not running.
func (el *EventLog) Emit(event Event) bool {
	if !el.running.Load() {
		return false
	}

	if !el.globalLimiter.Allow() {
		el.drop()
		return false
	}
	if event.Client != 0 && !el.clientLimiter(event.Client).Allow() {
		el.drop()
		return false
	}

	el.mu.Lock()
	el.writeHead++
	if el.writeHead-el.readHead > EventBufferSize {
		// writer fell behind; the oldest event is overwritten
		el.readHead++
		el.droppedCount.Add(1)
	}
	event.Sequence = el.writeHead
	el.buffer[el.writeHead%EventBufferSize] = event
	el.mu.Unlock()

	el.totalCount.Add(1)
	metrics.RecordEvent(false)
	return true
}

// EmitSimple builds and emits an event.
func (el *EventLog) EmitSimple(eventType EventType, tickNum uint64, client uint64, payload any) bool {
	return el.Emit(NewEvent(eventType, tickNum, client, payload))
}

func (el *EventLog) drop() {
	el.droppedCount.Add(1)
	metrics.RecordEvent(true)
}

func (el *EventLog) clientLimiter(client uint64) *rate.Limiter {
	now := time.Now().UnixNano()
	if entry, ok := el.clientLimiters.Load(client); ok {
		e := entry.(*clientLimiterEntry)
		e.lastUsed.Store(now)
		return e.limiter
	}
	entry := &clientLimiterEntry{limiter: rate.NewLimiter(MaxEventsPerClient, MaxEventsPerClient)}
	entry.lastUsed.Store(now)
	actual, _ := el.clientLimiters.LoadOrStore(client, entry)
	return actual.(*clientLimiterEntry).limiter
}

func (el *EventLog) writerLoop() {
	defer el.writerWg.Done()

	ticker := time.NewTicker(BatchFlushInterval)
	defer ticker.Stop()

	batch := make([]Event, 0, BatchFlushSize)
	for {
		select {
		case <-el.stopChan:
			for {
				batch = el.collectBatch(batch[:0])
				if len(batch) == 0 {
					return
				}
				el.flushBatch(batch)
			}
		case <-ticker.C:
			batch = el.collectBatch(batch[:0])
			if len(batch) > 0 {
				el.flushBatch(batch)
			}
		}
	}
}

func (el *EventLog) cleanupLoop() {
	defer el.writerWg.Done()

	ticker := time.NewTicker(ClientLimiterCleanup)
	defer ticker.Stop()

	for {
		select {
		case <-el.stopChan:
			return
		case <-ticker.C:
			el.cleanupClientLimiters(time.Now().Add(-ClientLimiterCleanup))
		}
	}
}

func (el *EventLog) cleanupClientLimiters(cutoff time.Time) {
	el.clientLimiters.Range(func(key, value any) bool {
		if value.(*clientLimiterEntry).lastUsed.Load() < cutoff.UnixNano() {
			el.clientLimiters.Delete(key)
		}
		return true
	})
}

func (el *EventLog) collectBatch(batch []Event) []Event {
	el.mu.Lock()
	defer el.mu.Unlock()
	for el.readHead < el.writeHead && len(batch) < BatchFlushSize {
		el.readHead++
		batch = append(batch, el.buffer[el.readHead%EventBufferSize])
	}
	return batch
}

// flushBatch appends events as newline-delimited JSON.
func (el *EventLog) flushBatch(batch []Event) {
	el.fileMu.Lock()
	defer el.fileMu.Unlock()

	if el.file == nil {
		return
	}
	for _, event := range batch {
		data, err := json.Marshal(event)
		if err != nil {
			continue
		}
		data = append(data, '\n')
		if _, err := el.file.Write(data); err != nil {
			log.Warn().Err(err).Msg("⚠️ event log write failed")
			return
		}
	}
}

// EventLogStats is a point-in-time view of the log counters.
type EventLogStats struct {
	Total   uint64 `json:"total"`
	Dropped uint64 `json:"dropped"`
	Pending uint64 `json:"pending"`
	Running bool   `json:"running"`
}

// Stats returns the log counters.
func (el *EventLog) Stats() EventLogStats {
	el.mu.Lock()
	pending := el.writeHead - el.readHead
	el.mu.Unlock()
	return EventLogStats{
		Total:   el.totalCount.Load(),
		Dropped: el.droppedCount.Load(),
		Pending: pending,
		Running: el.running.Load(),
	}
}
