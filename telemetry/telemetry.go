// Package telemetry collects in-process counters and timing events for the
// plan cache, result cache and executor. Events can be drained in batches to
// a caller supplied sink; nothing leaves the process otherwise.
package telemetry

import (
	"os"
	"sort"
	"sync"
	"time"
)

// Event names recorded by the engine.
const (
	PlanHit         = "plan.hit"
	PlanMiss        = "plan.miss"
	ResultHit       = "result.hit"
	ResultMiss      = "result.miss"
	ResultRefresh   = "result.refresh"
	ResultEvict     = "result.clear"
	ExecutorQuery   = "executor.query"
	ExecutorExec    = "executor.exec"
	ExecutorFailure = "executor.error"
)

// Event is one recorded occurrence.
type Event struct {
	Name      string
	Duration  time.Duration
	Error     string
	Timestamp time.Time
}

// Timing aggregates the durations recorded under one name.
type Timing struct {
	Count int64
	Total time.Duration
	Max   time.Duration
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Counters map[string]int64
	Timings  map[string]Timing
}

// Names returns the counter names in sorted order.
func (s Snapshot) Names() []string {
	names := make([]string, 0, len(s.Counters))
	for name := range s.Counters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Sink receives batches of events.
type Sink func(events []Event)

// Collector records events. A nil *Collector is valid and records nothing.
type Collector struct {
	mu       sync.Mutex
	enabled  bool
	counters map[string]int64
	timings  map[string]Timing
	events   []Event

	sink          Sink
	batchSize     int
	flushInterval time.Duration
	stopChan      chan struct{}
	stopOnce      sync.Once
	wg            sync.WaitGroup
}

// Option configures a Collector.
type Option func(*Collector)

// WithSink delivers events to sink in batches of batchSize and at least
// every interval. Without a sink events are only counted.
func WithSink(sink Sink, batchSize int, interval time.Duration) Option {
	return func(c *Collector) {
		c.sink = sink
		if batchSize > 0 {
			c.batchSize = batchSize
		}
		if interval > 0 {
			c.flushInterval = interval
		}
	}
}

// New creates a collector. Setting EXPRSQL_TELEMETRY_DISABLED to 1 or true
// turns it into a no-op.
func New(opts ...Option) *Collector {
	c := &Collector{
		enabled:       !isTelemetryDisabled(),
		counters:      make(map[string]int64),
		timings:       make(map[string]Timing),
		batchSize:     100,
		flushInterval: 30 * time.Second,
		stopChan:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.enabled && c.sink != nil {
		c.startBackgroundFlush()
	}
	return c
}

// Inc increments the counter name.
func (c *Collector) Inc(name string) {
	c.record(Event{Name: name}, false)
}

// Observe records a duration and optional error under name.
func (c *Collector) Observe(name string, d time.Duration, err error) {
	ev := Event{Name: name, Duration: d}
	if err != nil {
		ev.Error = err.Error()
	}
	c.record(ev, true)
}

func (c *Collector) record(ev Event, timed bool) {
	if c == nil || !c.enabled {
		return
	}
	ev.Timestamp = time.Now()

	c.mu.Lock()
	c.counters[ev.Name]++
	if ev.Error != "" {
		c.counters[ExecutorFailure]++
	}
	if timed {
		t := c.timings[ev.Name]
		t.Count++
		t.Total += ev.Duration
		if ev.Duration > t.Max {
			t.Max = ev.Duration
		}
		c.timings[ev.Name] = t
	}
	var batch []Event
	if c.sink != nil {
		c.events = append(c.events, ev)
		if len(c.events) >= c.batchSize {
			batch = c.drain()
		}
	}
	c.mu.Unlock()

	if batch != nil {
		c.sink(batch)
	}
}

// drain takes the buffered events; c.mu must be held.
func (c *Collector) drain() []Event {
	if len(c.events) == 0 {
		return nil
	}
	events := make([]Event, len(c.events))
	copy(events, c.events)
	c.events = c.events[:0]
	return events
}

// Flush delivers buffered events to the sink.
func (c *Collector) Flush() {
	if c == nil || c.sink == nil {
		return
	}
	c.mu.Lock()
	batch := c.drain()
	c.mu.Unlock()
	if batch != nil {
		c.sink(batch)
	}
}

// Snapshot copies the counters and timings.
func (c *Collector) Snapshot() Snapshot {
	s := Snapshot{Counters: map[string]int64{}, Timings: map[string]Timing{}}
	if c == nil {
		return s
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, v := range c.counters {
		s.Counters[k] = v
	}
	for k, v := range c.timings {
		s.Timings[k] = v
	}
	return s
}

// Reset zeroes the counters and drops buffered events.
func (c *Collector) Reset() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters = make(map[string]int64)
	c.timings = make(map[string]Timing)
	c.events = c.events[:0]
}

func (c *Collector) startBackgroundFlush() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.flushInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				c.Flush()
			case <-c.stopChan:
				return
			}
		}
	}()
}

// Shutdown stops the background flush and delivers remaining events.
func (c *Collector) Shutdown() {
	if c == nil {
		return
	}
	c.stopOnce.Do(func() { close(c.stopChan) })
	c.wg.Wait()
	c.Flush()
}

func isTelemetryDisabled() bool {
	v := os.Getenv("EXPRSQL_TELEMETRY_DISABLED")
	return v == "1" || v == "true"
}
