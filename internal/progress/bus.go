package progress

import (
	"fmt"
	"log"
	"sync"
	"time"
)

// Level classifies a progress event.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Event is one timestamped log line tied to a job.
type Event struct {
	JobID     string    `json:"job_id"`
	Level     Level     `json:"level"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

type subscriber struct {
	ch   chan Event
	done chan struct{}
}

// Bus fans progress events out to per-job subscribers. Consumers may attach
// after a job has started and receive only events from that point on. An
// attached subscriber never loses an event: publishing blocks until the
// subscriber takes it or unsubscribes.
type Bus struct {
	// pubMu serializes Publish and Close so a channel is never closed while
	// a send to it is in flight. Always acquired before mu.
	pubMu  sync.Mutex
	mu     sync.Mutex
	subs   map[string][]*subscriber
	closed map[string]bool
}

func NewBus() *Bus {
	return &Bus{
		subs:   make(map[string][]*subscriber),
		closed: make(map[string]bool),
	}
}

// Subscribe attaches to a job's event stream. The returned cancel func must be
// called when the consumer stops reading, or publishers would block forever.
// Subscribing to a job already closed returns an immediately closed channel.
func (b *Bus) Subscribe(jobID string) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed[jobID] {
		ch := make(chan Event)
		close(ch)
		return ch, func() {}
	}

	sub := &subscriber{
		ch:   make(chan Event, 16),
		done: make(chan struct{}),
	}
	b.subs[jobID] = append(b.subs[jobID], sub)

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(sub.done)
			b.mu.Lock()
			defer b.mu.Unlock()
			list := b.subs[jobID]
			for i, s := range list {
				if s == sub {
					b.subs[jobID] = append(list[:i], list[i+1:]...)
					break
				}
			}
		})
	}
	return sub.ch, cancel
}

// Publish delivers an event to every subscriber attached to the job. The
// subscriber list is snapshotted first so a blocked send never holds the lock.
func (b *Bus) Publish(jobID string, level Level, format string, args ...any) {
	ev := Event{
		JobID:     jobID,
		Level:     level,
		Message:   fmt.Sprintf(format, args...),
		Timestamp: time.Now().UTC(),
	}

	b.pubMu.Lock()
	defer b.pubMu.Unlock()

	b.mu.Lock()
	if b.closed[jobID] {
		b.mu.Unlock()
		return
	}
	snapshot := make([]*subscriber, len(b.subs[jobID]))
	copy(snapshot, b.subs[jobID])
	b.mu.Unlock()

	for _, sub := range snapshot {
		select {
		case sub.ch <- ev:
		case <-sub.done:
		}
	}
}

// Close ends a job's stream. Remaining subscriber channels are closed so SSE
// handlers unblock, and later publishes for the job are ignored.
func (b *Bus) Close(jobID string) {
	b.pubMu.Lock()
	defer b.pubMu.Unlock()
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed[jobID] {
		return
	}
	b.closed[jobID] = true
	for _, sub := range b.subs[jobID] {
		close(sub.ch)
	}
	delete(b.subs, jobID)
}

// Logger publishes events for one job and mirrors them to the process log.
type Logger struct {
	bus   *Bus
	jobID string
}

func NewLogger(bus *Bus, jobID string) *Logger {
	return &Logger{bus: bus, jobID: jobID}
}

func (l *Logger) emit(level Level, format string, args ...any) {
	l.bus.Publish(l.jobID, level, format, args...)
	log.Printf("job %s [%s] %s", l.jobID, level, fmt.Sprintf(format, args...))
}

func (l *Logger) Info(format string, args ...any)    { l.emit(LevelInfo, format, args...) }
func (l *Logger) Success(format string, args ...any) { l.emit(LevelSuccess, format, args...) }
func (l *Logger) Warning(format string, args ...any) { l.emit(LevelWarning, format, args...) }
func (l *Logger) Error(format string, args ...any)   { l.emit(LevelError, format, args...) }
