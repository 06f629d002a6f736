package extract

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recipeengine/internal/core/analytics"
	"recipeengine/internal/core/fault"
	"recipeengine/internal/core/fetch"
	"recipeengine/internal/core/provider"
	"recipeengine/internal/core/ratelimit"
	"recipeengine/internal/core/recipe"
	"recipeengine/internal/core/reduce"
	"recipeengine/internal/core/retry"
	"recipeengine/internal/core/strategy"
)

const recipePage = `<html><head>
<script type="application/ld+json">{"@type":"Recipe","name":"Tomato Soup","recipeIngredient":["4 tomatoes"]}</script>
</head><body><h1>Tomato Soup</h1></body></html>`

func validRecipe() *recipe.Recipe {
	return &recipe.Recipe{
		Title:       "Tomato Soup",
		Ingredients: []string{"4 tomatoes", "1 onion"},
		Steps:       []string{"Chop", "Simmer"},
	}
}

// fakeAdapter scripts provider behavior per call number (1-based).
type fakeAdapter struct {
	name    string
	vision  bool
	extract func(call int, content provider.Content) (*recipe.Recipe, *provider.Usage, error)

	mu    sync.Mutex
	calls int
}

func (a *fakeAdapter) Name() string         { return a.name }
func (a *fakeAdapter) Model() string        { return a.name + "-model" }
func (a *fakeAdapter) SupportsVision() bool { return a.vision }

func (a *fakeAdapter) Extract(_ context.Context, content provider.Content) (*recipe.Recipe, *provider.Usage, error) {
	a.mu.Lock()
	a.calls++
	n := a.calls
	a.mu.Unlock()
	return a.extract(n, content)
}

func (a *fakeAdapter) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

func succeeding(name string) *fakeAdapter {
	return &fakeAdapter{name: name, vision: true,
		extract: func(int, provider.Content) (*recipe.Recipe, *provider.Usage, error) {
			return validRecipe(), &provider.Usage{PromptTokens: 100, ResponseTokens: 50}, nil
		}}
}

func failing(name string, err error) *fakeAdapter {
	return &fakeAdapter{name: name, vision: true,
		extract: func(int, provider.Content) (*recipe.Recipe, *provider.Usage, error) {
			return nil, nil, err
		}}
}

type brokenLimiter struct{}

func (brokenLimiter) CheckAndReserve(context.Context, string) (ratelimit.Result, error) {
	return ratelimit.Result{}, errors.New("redis down")
}
func (brokenLimiter) Status(context.Context, string) (ratelimit.Result, error) {
	return ratelimit.Result{}, errors.New("redis down")
}

type testHarness struct {
	svc      *Service
	recorder *analytics.MemoryRecorder
}

func newHarness(t *testing.T, fast, capable provider.Adapter, opts ...func(*Config)) *testHarness {
	t.Helper()
	reg := provider.NewRegistry(fast, capable)
	sel, err := strategy.NewSelector(reg, fast.Name(), capable.Name())
	require.NoError(t, err)

	cfg := Config{
		TextRetry:  retry.Config{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond},
		ImageRetry: retry.Config{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond},
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	rec := analytics.NewMemoryRecorder()
	svc := NewService(sel, fetch.New(2*time.Second), reduce.New(), ratelimit.NewMemoryLimiter(100), rec, cfg)
	return &testHarness{svc: svc, recorder: rec}
}

// collect drains the stream to closure and verifies the universal stream
// contract: monotonic percent and at most one terminal event, last.
func collect(t *testing.T, s *Stream) []Event {
	t.Helper()
	var events []Event
	timeout := time.After(10 * time.Second)
	for {
		select {
		case ev, ok := <-s.Events():
			if !ok {
				verifyContract(t, events)
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatal("stream did not close")
		}
	}
}

func verifyContract(t *testing.T, events []Event) {
	t.Helper()
	last := 0
	for i, ev := range events {
		if ev.Type == EventProgress {
			assert.GreaterOrEqual(t, ev.Percent, last, "percent regressed at event %d", i)
			last = ev.Percent
		}
		if ev.Terminal() {
			assert.Equal(t, len(events)-1, i, "terminal event must be last")
		}
	}
}

func terminal(t *testing.T, events []Event) Event {
	t.Helper()
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	require.True(t, last.Terminal(), "stream ended without a terminal event")
	return last
}

func TestRawHTMLSuccessFirstPlan(t *testing.T) {
	h := newHarness(t, succeeding("fast"), succeeding("capable"))

	stream := h.svc.StartExtraction(context.Background(), Request{
		Kind: strategy.InputRawHTML, HTML: recipePage, Identity: "u1",
	})
	events := collect(t, stream)

	fin := terminal(t, events)
	require.Equal(t, EventSuccess, fin.Type)
	assert.Equal(t, 100, fin.Percent)
	assert.Equal(t, strategy.StrategyHTMLFallback, fin.StrategyUsed)
	assert.Equal(t, "Tomato Soup", fin.Recipe.Title)
	require.Len(t, fin.Attempts, 1)
	assert.Equal(t, "capable", fin.Attempts[0].Provider)
	assert.Equal(t, analytics.OutcomeSuccess, fin.Attempts[0].Outcome)
	assert.Equal(t, int64(100), fin.Attempts[0].PromptTokens)

	assert.Len(t, h.recorder.ByType(analytics.EventAttempt), 1)
	finals := h.recorder.ByType(analytics.EventFinal)
	require.Len(t, finals, 1)
	assert.Equal(t, analytics.OutcomeSuccess, finals[0].Outcome)
	assert.Equal(t, 1, finals[0].TotalAttempts)
}

func TestFallbackToSecondPlanOnFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(recipePage))
	}))
	defer srv.Close()

	fast := failing("fast", fault.New(fault.CodeProviderFatal, "refused"))
	capable := succeeding("capable")
	h := newHarness(t, fast, capable)

	stream := h.svc.StartExtraction(context.Background(), Request{
		Kind: strategy.InputURL, URL: srv.URL, Identity: "u1",
	})
	events := collect(t, stream)

	fin := terminal(t, events)
	require.Equal(t, EventSuccess, fin.Type)
	assert.Equal(t, strategy.StrategyHTMLFallback, fin.StrategyUsed)
	require.Len(t, fin.Attempts, 2)
	assert.Equal(t, strategy.StrategyURLDirect, fin.Attempts[0].Strategy)
	assert.Equal(t, analytics.OutcomeFatalFailure, fin.Attempts[0].Outcome)
	assert.Equal(t, string(fault.CodeProviderFatal), fin.Attempts[0].ErrorCode)
	assert.Equal(t, analytics.OutcomeSuccess, fin.Attempts[1].Outcome)

	// A fatal failure never triggers a same-plan retry.
	assert.Equal(t, 1, fast.callCount())
}

func TestTransientRetriesBoundedPerPlan(t *testing.T) {
	fast := failing("fast", fault.New(fault.CodeProviderTransient, "overloaded"))
	h := newHarness(t, fast, succeeding("capable"))

	stream := h.svc.StartExtraction(context.Background(), Request{
		Kind: strategy.InputURL, URL: "http://unused.invalid",
		ForceStrategy: strategy.StrategyURLDirect, Identity: "u1",
	})
	events := collect(t, stream)

	fin := terminal(t, events)
	require.Equal(t, EventError, fin.Type)
	assert.Equal(t, string(fault.CodeAllStrategiesExhausted), fin.ErrorCode)
	assert.Contains(t, fin.Error, "overloaded")
	require.Len(t, fin.Attempts, 3)
	assert.Equal(t, 3, fast.callCount())
	for _, a := range fin.Attempts {
		assert.Equal(t, analytics.OutcomeTransientFailure, a.Outcome)
	}

	var sawRetryNotice bool
	for _, ev := range events {
		if ev.Type == EventProgress && strings.Contains(ev.Message, "retrying in") {
			sawRetryNotice = true
		}
	}
	assert.True(t, sawRetryNotice, "expected a retry wait notice in the progress stream")
}

func TestExhaustedPrimaryThenFallbackSucceeds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(recipePage))
	}))
	defer srv.Close()

	// Primary plan burns all three retries, fallback lands on the first try:
	// four attempts total.
	fast := failing("fast", fault.New(fault.CodeProviderTransient, "overloaded"))
	capable := succeeding("capable")
	h := newHarness(t, fast, capable)

	stream := h.svc.StartExtraction(context.Background(), Request{
		Kind: strategy.InputURL, URL: srv.URL, Identity: "u1",
	})
	events := collect(t, stream)

	fin := terminal(t, events)
	require.Equal(t, EventSuccess, fin.Type)
	require.Len(t, fin.Attempts, 4)
	assert.Equal(t, 3, fast.callCount())
	assert.Equal(t, 1, capable.callCount())
	assert.Len(t, h.recorder.ByType(analytics.EventAttempt), 4)
}

func TestRateLimitDeniedBeforeAnyAttempt(t *testing.T) {
	fast := succeeding("fast")
	h := newHarness(t, fast, succeeding("capable"))

	reg := provider.NewRegistry(fast, succeeding("capable"))
	sel, err := strategy.NewSelector(reg, "fast", "capable")
	require.NoError(t, err)
	h.svc = NewService(sel, fetch.New(time.Second), reduce.New(),
		ratelimit.NewMemoryLimiter(1), h.recorder, Config{
			TextRetry: retry.Config{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond},
		})

	first := collect(t, h.svc.StartExtraction(context.Background(), Request{
		Kind: strategy.InputRawHTML, HTML: recipePage, Identity: "u1",
	}))
	require.Equal(t, EventSuccess, terminal(t, first).Type)

	attemptsBefore := len(h.recorder.ByType(analytics.EventAttempt))
	second := collect(t, h.svc.StartExtraction(context.Background(), Request{
		Kind: strategy.InputRawHTML, HTML: recipePage, Identity: "u1",
	}))

	fin := terminal(t, second)
	require.Equal(t, EventError, fin.Type)
	assert.Equal(t, string(fault.CodeRateLimited), fin.ErrorCode)
	assert.Empty(t, fin.Attempts)
	assert.Len(t, h.recorder.ByType(analytics.EventAttempt), attemptsBefore)
	assert.Len(t, h.recorder.ByType(analytics.EventRateLimitDenied), 1)
}

func TestBrokenLimiterAdmitsRequest(t *testing.T) {
	h := newHarness(t, succeeding("fast"), succeeding("capable"))
	reg := provider.NewRegistry(succeeding("fast"), succeeding("capable"))
	sel, err := strategy.NewSelector(reg, "fast", "capable")
	require.NoError(t, err)
	h.svc = NewService(sel, fetch.New(time.Second), reduce.New(), brokenLimiter{}, h.recorder, Config{
		TextRetry: retry.Config{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond},
	})

	events := collect(t, h.svc.StartExtraction(context.Background(), Request{
		Kind: strategy.InputRawHTML, HTML: recipePage, Identity: "u1",
	}))
	assert.Equal(t, EventSuccess, terminal(t, events).Type)
}

func TestIncompleteCandidateAdvancesToNextPlan(t *testing.T) {
	capable := failing("capable", fault.New(fault.CodeIncompleteCandidate, "candidate missing steps"))
	fast := succeeding("fast")
	h := newHarness(t, fast, capable)

	events := collect(t, h.svc.StartExtraction(context.Background(), Request{
		Kind: strategy.InputRawHTML, HTML: recipePage, Identity: "u1",
	}))

	fin := terminal(t, events)
	require.Equal(t, EventSuccess, fin.Type)
	require.Len(t, fin.Attempts, 2)
	assert.Equal(t, string(fault.CodeIncompleteCandidate), fin.Attempts[0].ErrorCode)
	// Incomplete output is not retried against the same provider.
	assert.Equal(t, 1, capable.callCount())
}

func TestSparseContentRecordsPrepFailure(t *testing.T) {
	h := newHarness(t, succeeding("fast"), succeeding("capable"))

	events := collect(t, h.svc.StartExtraction(context.Background(), Request{
		Kind: strategy.InputRawHTML, HTML: "<html><body>hi</body></html>", Identity: "u1",
	}))

	fin := terminal(t, events)
	require.Equal(t, EventError, fin.Type)
	assert.Equal(t, string(fault.CodeAllStrategiesExhausted), fin.ErrorCode)
	require.Len(t, fin.Attempts, 2)
	for _, a := range fin.Attempts {
		assert.Equal(t, string(fault.CodeContentTooSparse), a.ErrorCode)
	}
}

func TestFetchFailureIsNotRefetched(t *testing.T) {
	var fetches int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	fast := failing("fast", fault.New(fault.CodeProviderFatal, "refused"))
	h := newHarness(t, fast, succeeding("capable"))

	events := collect(t, h.svc.StartExtraction(context.Background(), Request{
		Kind: strategy.InputURL, URL: srv.URL, Identity: "u1",
	}))

	fin := terminal(t, events)
	require.Equal(t, EventError, fin.Type)
	require.Len(t, fin.Attempts, 2)
	assert.Equal(t, string(fault.CodeFetchFailed), fin.Attempts[1].ErrorCode)
	assert.Equal(t, int32(1), fetches, "a failed fetch advances the plan instead of refetching")
}

func TestConsumerCancelEmitsNothingFurther(t *testing.T) {
	fast := failing("fast", fault.New(fault.CodeProviderTransient, "overloaded"))
	h := newHarness(t, fast, succeeding("capable"), func(c *Config) {
		c.TextRetry = retry.Config{MaxAttempts: 3, BaseDelay: time.Hour, MaxDelay: time.Hour}
	})

	ctx, cancel := context.WithCancel(context.Background())
	stream := h.svc.StartExtraction(ctx, Request{
		Kind: strategy.InputURL, URL: "http://unused.invalid",
		ForceStrategy: strategy.StrategyURLDirect, Identity: "u1",
	})

	// Read until the run loop is parked in its first backoff wait, then
	// disconnect.
	timeout := time.After(10 * time.Second)
	var events []Event
reading:
	for {
		select {
		case ev, ok := <-stream.Events():
			if !ok {
				break reading
			}
			events = append(events, ev)
			if strings.Contains(ev.Message, "retrying in") {
				cancel()
			}
		case <-timeout:
			t.Fatal("stream did not close after cancellation")
		}
	}
	cancel()

	for _, ev := range events {
		assert.False(t, ev.Terminal(), "cancelled consumer must not receive a terminal event")
	}
}

func TestDeadlineStillDeliversTerminalError(t *testing.T) {
	stall := &fakeAdapter{name: "fast", vision: true,
		extract: func(int, provider.Content) (*recipe.Recipe, *provider.Usage, error) {
			time.Sleep(200 * time.Millisecond)
			return nil, nil, fault.New(fault.CodeProviderTransient, "slow")
		}}
	h := newHarness(t, stall, succeeding("capable"), func(c *Config) {
		c.OverallTimeout = 50 * time.Millisecond
	})

	events := collect(t, h.svc.StartExtraction(context.Background(), Request{
		Kind: strategy.InputURL, URL: "http://unused.invalid",
		ForceStrategy: strategy.StrategyURLDirect, Identity: "u1",
	}))

	fin := terminal(t, events)
	require.Equal(t, EventError, fin.Type)
	assert.Contains(t, fin.Error, "timed out")
}

func TestUnsatisfiableForceStrategyFailsWithoutAttempts(t *testing.T) {
	fast := succeeding("fast")
	h := newHarness(t, fast, succeeding("capable"))

	events := collect(t, h.svc.StartExtraction(context.Background(), Request{
		Kind: strategy.InputRawHTML, HTML: recipePage,
		ForceStrategy: strategy.StrategyImage, Identity: "u1",
	}))

	fin := terminal(t, events)
	require.Equal(t, EventError, fin.Type)
	assert.Equal(t, 0, fast.callCount())
	assert.Empty(t, h.recorder.ByType(analytics.EventAttempt))
}

func TestRequestIDAssignedWhenEmpty(t *testing.T) {
	h := newHarness(t, succeeding("fast"), succeeding("capable"))
	events := collect(t, h.svc.StartExtraction(context.Background(), Request{
		Kind: strategy.InputRawHTML, HTML: recipePage, Identity: "u1",
	}))
	terminal(t, events)

	finals := h.recorder.ByType(analytics.EventFinal)
	require.Len(t, finals, 1)
	assert.NotEmpty(t, finals[0].RequestID)
}
