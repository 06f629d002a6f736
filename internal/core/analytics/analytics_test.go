package analytics

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRecorderFiltersByType(t *testing.T) {
	r := NewMemoryRecorder()
	ctx := context.Background()

	r.Record(ctx, Event{RequestID: "r1", Type: EventAttempt, Outcome: OutcomeTransientFailure})
	r.Record(ctx, Event{RequestID: "r1", Type: EventAttempt, Outcome: OutcomeSuccess})
	r.Record(ctx, Event{RequestID: "r1", Type: EventFinal, Outcome: OutcomeSuccess, TotalAttempts: 2})

	assert.Len(t, r.Events(), 3)
	attempts := r.ByType(EventAttempt)
	require.Len(t, attempts, 2)
	assert.Equal(t, OutcomeTransientFailure, attempts[0].Outcome)

	finals := r.ByType(EventFinal)
	require.Len(t, finals, 1)
	assert.Equal(t, 2, finals[0].TotalAttempts)
}

func TestMemoryRecorderEventsReturnsCopy(t *testing.T) {
	r := NewMemoryRecorder()
	r.Record(context.Background(), Event{RequestID: "r1", Type: EventAttempt})

	got := r.Events()
	got[0].RequestID = "mutated"
	assert.Equal(t, "r1", r.Events()[0].RequestID)
}

func TestMemoryRecorderConcurrentWrites(t *testing.T) {
	r := NewMemoryRecorder()
	now := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Record(context.Background(), Event{Type: EventAttempt, StartedAt: now})
		}()
	}
	wg.Wait()
	assert.Len(t, r.Events(), 20)
}
