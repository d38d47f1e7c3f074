package telemetry_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/satishbabariya/exprsql/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_Counters(t *testing.T) {
	t.Setenv("EXPRSQL_TELEMETRY_DISABLED", "")
	c := telemetry.New()
	c.Inc(telemetry.PlanHit)
	c.Inc(telemetry.PlanHit)
	c.Inc(telemetry.PlanMiss)
	c.Observe(telemetry.ExecutorQuery, 10*time.Millisecond, nil)
	c.Observe(telemetry.ExecutorQuery, 30*time.Millisecond, errors.New("boom"))

	s := c.Snapshot()
	assert.Equal(t, int64(2), s.Counters[telemetry.PlanHit])
	assert.Equal(t, int64(1), s.Counters[telemetry.PlanMiss])
	assert.Equal(t, int64(1), s.Counters[telemetry.ExecutorFailure])
	assert.Equal(t, telemetry.Timing{Count: 2, Total: 40 * time.Millisecond, Max: 30 * time.Millisecond}, s.Timings[telemetry.ExecutorQuery])
	assert.Equal(t, []string{telemetry.ExecutorFailure, telemetry.ExecutorQuery, telemetry.PlanHit, telemetry.PlanMiss}, s.Names())

	c.Reset()
	assert.Empty(t, c.Snapshot().Counters)
}

func TestCollector_Nil(t *testing.T) {
	var c *telemetry.Collector
	c.Inc(telemetry.PlanHit)
	c.Observe(telemetry.ExecutorExec, time.Second, nil)
	c.Flush()
	c.Shutdown()
	assert.Empty(t, c.Snapshot().Counters)
}

func TestCollector_Sink(t *testing.T) {
	var (
		mu      sync.Mutex
		batches [][]telemetry.Event
	)
	sink := func(events []telemetry.Event) {
		mu.Lock()
		batches = append(batches, events)
		mu.Unlock()
	}
	t.Setenv("EXPRSQL_TELEMETRY_DISABLED", "")
	c := telemetry.New(telemetry.WithSink(sink, 2, time.Hour))
	c.Inc(telemetry.ResultHit)
	c.Inc(telemetry.ResultMiss)
	c.Inc(telemetry.ResultRefresh)
	c.Shutdown()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, batches, 2)
	assert.Len(t, batches[0], 2)
	require.Len(t, batches[1], 1)
	assert.Equal(t, telemetry.ResultRefresh, batches[1][0].Name)
}
