// Package extract contains the orchestration engine: it drives strategy
// plans in order, retries transient provider failures, streams progress to
// the caller and records analytics for every attempt.
package extract

import (
	"context"
	"errors"
	"fmt"
	"time"

	"recipeengine/internal/core/analytics"
	"recipeengine/internal/core/fault"
	"recipeengine/internal/core/fetch"
	"recipeengine/internal/core/provider"
	"recipeengine/internal/core/ratelimit"
	"recipeengine/internal/core/recipe"
	"recipeengine/internal/core/reduce"
	"recipeengine/internal/core/retry"
	"recipeengine/internal/core/strategy"
	"recipeengine/internal/logger"

	"github.com/google/uuid"
)

type Config struct {
	TextRetry      retry.Config
	ImageRetry     retry.Config
	OverallTimeout time.Duration
}

type Service struct {
	selector *strategy.Selector
	fetcher  *fetch.Service
	reducer  *reduce.Service
	limiter  ratelimit.Limiter
	recorder analytics.Recorder
	cfg      Config
	log      *logger.Logger
}

func NewService(sel *strategy.Selector, f *fetch.Service, r *reduce.Service, lim ratelimit.Limiter, rec analytics.Recorder, cfg Config) *Service {
	if cfg.OverallTimeout <= 0 {
		cfg.OverallTimeout = 90 * time.Second
	}
	return &Service{
		selector: sel,
		fetcher:  f,
		reducer:  r,
		limiter:  lim,
		recorder: rec,
		cfg:      cfg,
		log:      logger.New("Extract"),
	}
}

// StartExtraction is the sole entry point. The returned stream yields zero
// or more progress events followed by exactly one terminal event, then
// closes. Cancelling ctx stops all in-flight work for the request.
func (s *Service) StartExtraction(ctx context.Context, req Request) *Stream {
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	stream := NewStream()
	go s.run(ctx, req, stream)
	return stream
}

// run is the request state machine: RATE_CHECK, then RUNNING_PLAN(i) until
// SUCCESS or EXHAUSTED.
func (s *Service) run(parent context.Context, req Request, stream *Stream) {
	ctx, cancel := context.WithTimeout(parent, s.cfg.OverallTimeout)
	defer cancel()
	defer stream.close()

	if denied := s.rateCheck(ctx, req, stream); denied {
		return
	}

	plans, err := s.selector.Plans(strategy.Input{
		Kind:               req.Kind,
		ImageCount:         len(req.Images),
		ForceStrategy:      req.ForceStrategy,
		PreferredProviders: req.PreferredProviders,
	})
	if err != nil {
		s.log.LogWarnf("request %s: plan selection failed: %v", req.ID, err)
		stream.publish(ctx, Event{
			Type:      EventError,
			Error:     err.Error(),
			ErrorCode: string(fault.CodeOf(err)),
		})
		s.recordFinal(req, analytics.OutcomeFatalFailure, string(fault.CodeOf(err)), 0)
		return
	}

	s.runPlans(ctx, req, plans, stream)
}

func (s *Service) rateCheck(ctx context.Context, req Request, stream *Stream) bool {
	res, err := s.limiter.CheckAndReserve(ctx, req.Identity)
	if err != nil {
		// A broken limiter must not take extraction down with it.
		s.log.LogErrorf("request %s: rate limiter unavailable, admitting: %v", req.ID, err)
		return false
	}
	if res.Allowed {
		return false
	}

	now := time.Now()
	s.recorder.Record(ctx, analytics.Event{
		RequestID:   req.ID,
		Identity:    req.Identity,
		Type:        analytics.EventRateLimitDenied,
		StartedAt:   now,
		CompletedAt: now,
	})
	stream.publish(ctx, Event{
		Type:      EventError,
		Error:     fmt.Sprintf("rate limit exceeded, resets at %s", res.ResetAt.Format(time.RFC3339)),
		ErrorCode: string(fault.CodeRateLimited),
	})
	return true
}

func (s *Service) runPlans(ctx context.Context, req Request, plans []strategy.Plan, stream *Stream) {
	var attempts []Attempt
	lastPercent := 0
	var lastErr error

	// Each plan owns an equal slice of 0-100 so percent stays monotonic no
	// matter how many plans end up attempted.
	pct := func(planIdx, frac int) int {
		return (planIdx*100 + frac) / len(plans)
	}

	for i, plan := range plans {
		if !s.progress(ctx, stream, &lastPercent, pct(i, 5),
			"Trying %s via %s", plan.Strategy, plan.Provider.Name()) {
			return
		}

		content, prep, err := s.prepareContent(ctx, req, plan, stream, &lastPercent, i, pct)
		if err != nil {
			if stopped := s.checkCancelled(ctx, req, stream, attempts); stopped {
				return
			}
			attempt := prepFailureAttempt(plan, err, prep)
			attempts = append(attempts, attempt)
			s.recordAttempt(req, attempt)
			lastErr = err
			continue
		}

		winner, planAttempts, err := s.runPlan(ctx, req, plan, content, prep, stream, &lastPercent, i, pct)
		attempts = append(attempts, planAttempts...)
		if stopped := s.checkCancelled(ctx, req, stream, attempts); stopped {
			return
		}
		if err != nil {
			lastErr = err
			continue
		}

		if !s.progress(ctx, stream, &lastPercent, pct(i, 95), "Validating recipe") {
			return
		}
		stream.publish(ctx, Event{
			Type:         EventSuccess,
			Percent:      100,
			Recipe:       winner,
			StrategyUsed: plan.Strategy,
			Attempts:     attempts,
		})
		s.recordFinal(req, analytics.OutcomeSuccess, "", len(attempts))
		s.log.LogInfof("request %s: extracted %q via %s in %d attempts",
			req.ID, winner.Title, plan.Strategy, len(attempts))
		return
	}

	msg := "all extraction strategies exhausted"
	if lastErr != nil {
		msg = fmt.Sprintf("all extraction strategies exhausted, last failure: %v", lastErr)
	}
	stream.publish(ctx, Event{
		Type:      EventError,
		Percent:   lastPercent,
		Error:     msg,
		ErrorCode: string(fault.CodeAllStrategiesExhausted),
		Attempts:  attempts,
	})
	s.recordFinal(req, analytics.OutcomeFatalFailure, string(fault.CodeAllStrategiesExhausted), len(attempts))
}

// prepSizes carries the content size breakdown for analytics.
type prepSizes struct {
	rawBytes     int
	cleanedChars int
	sentChars    int
}

// prepareContent builds the provider payload for one plan, fetching and
// reducing as the plan demands.
func (s *Service) prepareContent(ctx context.Context, req Request, plan strategy.Plan, stream *Stream, lastPercent *int, planIdx int, pct func(int, int) int) (provider.Content, prepSizes, error) {
	var sizes prepSizes

	switch plan.ContentKind {
	case provider.KindURL:
		sizes.sentChars = len(req.URL)
		return provider.Content{Kind: provider.KindURL, URL: req.URL}, sizes, nil

	case provider.KindImage:
		for _, img := range req.Images {
			sizes.rawBytes += len(img)
		}
		sizes.sentChars = sizes.rawBytes
		return provider.Content{Kind: provider.KindImage, Images: req.Images, MimeType: req.ImageMime}, sizes, nil

	case provider.KindText:
		rawHTML := req.HTML
		if plan.NeedsFetch {
			if !s.progress(ctx, stream, lastPercent, pct(planIdx, 30), "Fetching page content") {
				return provider.Content{}, sizes, ctx.Err()
			}
			result, err := s.fetcher.Fetch(ctx, req.URL)
			if err != nil {
				return provider.Content{}, sizes, err
			}
			rawHTML = string(result.Body)
		}
		sizes.rawBytes = len(rawHTML)

		if !s.progress(ctx, stream, lastPercent, pct(planIdx, 45), "Cleaning page content") {
			return provider.Content{}, sizes, ctx.Err()
		}
		text, err := s.reducer.Reduce(rawHTML, plan.ReduceMode)
		if err != nil {
			return provider.Content{}, sizes, err
		}
		sizes.cleanedChars = len(text)
		sizes.sentChars = len(text)
		return provider.Content{Kind: provider.KindText, Text: text}, sizes, nil

	default:
		return provider.Content{}, sizes, fault.New(fault.CodeProviderFatal, "unsupported content kind %q", plan.ContentKind)
	}
}

// runPlan drives the provider under the retry policy and returns the
// attempts it recorded.
func (s *Service) runPlan(ctx context.Context, req Request, plan strategy.Plan, content provider.Content, sizes prepSizes, stream *Stream, lastPercent *int, planIdx int, pct func(int, int) int) (*recipe.Recipe, []Attempt, error) {
	cfg := s.cfg.TextRetry
	if plan.ContentKind == provider.KindImage {
		cfg = s.cfg.ImageRetry
	}

	var attempts []Attempt
	var winner *recipe.Recipe

	notify := func(attempt int, delay time.Duration, err error) {
		s.progress(ctx, stream, lastPercent, *lastPercent,
			"%s is busy, retrying in %s", plan.Provider.Name(), delay.Round(time.Millisecond))
	}

	err := retry.Do(ctx, cfg, notify, func(ctx context.Context, attemptNo int) error {
		// Attempts interpolate the 45-90 band of this plan's slice.
		frac := 45 + 45*(attemptNo-1)/cfg.MaxAttempts
		if !s.progress(ctx, stream, lastPercent, pct(planIdx, frac),
			"Extracting with %s (attempt %d/%d)", plan.Provider.Name(), attemptNo, cfg.MaxAttempts) {
			return ctx.Err()
		}

		started := time.Now()
		cand, usage, err := plan.Provider.Extract(ctx, content)
		completed := time.Now()

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		attempt := Attempt{
			Strategy:     plan.Strategy,
			Provider:     plan.Provider.Name(),
			StartedAt:    started,
			CompletedAt:  completed,
			Outcome:      outcomeOf(err),
			RawBytes:     sizes.rawBytes,
			CleanedChars: sizes.cleanedChars,
			SentChars:    sizes.sentChars,
		}
		if err != nil {
			attempt.ErrorCode = string(fault.CodeOf(err))
		}
		if usage != nil {
			attempt.PromptTokens = usage.PromptTokens
			attempt.ResponseTokens = usage.ResponseTokens
			attempt.EstimatedCostUSD = usage.EstimateCost(plan.Provider.Model())
		}
		attempts = append(attempts, attempt)
		s.recordAttempt(req, attempt)

		if err != nil {
			return err
		}
		winner = cand
		return nil
	})

	if err != nil {
		return nil, attempts, err
	}
	return winner, attempts, nil
}

// checkCancelled handles the two ways the context dies: consumer disconnect
// emits nothing further, deadline expiry still owes the caller a terminal
// event.
func (s *Service) checkCancelled(ctx context.Context, req Request, stream *Stream, attempts []Attempt) bool {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		stream.publish(context.Background(), Event{
			Type:      EventError,
			Error:     "extraction timed out",
			ErrorCode: string(fault.CodeAllStrategiesExhausted),
			Attempts:  attempts,
		})
		s.recordFinal(req, analytics.OutcomeFatalFailure, string(fault.CodeAllStrategiesExhausted), len(attempts))
		return true
	case ctx.Err() != nil:
		s.log.LogDebugf("request %s: cancelled by consumer after %d attempts", req.ID, len(attempts))
		return true
	}
	return false
}

// progress publishes a monotonic progress event. Returns false when the
// consumer is gone.
func (s *Service) progress(ctx context.Context, stream *Stream, last *int, percent int, format string, args ...interface{}) bool {
	if percent < *last {
		percent = *last
	}
	*last = percent
	return stream.publish(ctx, Event{
		Type:    EventProgress,
		Percent: percent,
		Message: fmt.Sprintf(format, args...),
	})
}

func prepFailureAttempt(plan strategy.Plan, err error, sizes prepSizes) Attempt {
	now := time.Now()
	return Attempt{
		Strategy:     plan.Strategy,
		Provider:     plan.Provider.Name(),
		StartedAt:    now,
		CompletedAt:  now,
		Outcome:      outcomeOf(err),
		ErrorCode:    string(fault.CodeOf(err)),
		RawBytes:     sizes.rawBytes,
		CleanedChars: sizes.cleanedChars,
	}
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return analytics.OutcomeSuccess
	case fault.Transient(err):
		return analytics.OutcomeTransientFailure
	default:
		return analytics.OutcomeFatalFailure
	}
}

// recordAttempt and recordFinal are fire-and-forget; the recorder swallows
// its own failures.
func (s *Service) recordAttempt(req Request, attempt Attempt) {
	s.recorder.Record(context.Background(), analytics.Event{
		RequestID:        req.ID,
		Identity:         req.Identity,
		Type:             analytics.EventAttempt,
		Strategy:         attempt.Strategy,
		Provider:         attempt.Provider,
		Outcome:          attempt.Outcome,
		ErrorCode:        attempt.ErrorCode,
		StartedAt:        attempt.StartedAt,
		CompletedAt:      attempt.CompletedAt,
		DurationMS:       attempt.CompletedAt.Sub(attempt.StartedAt).Milliseconds(),
		PromptTokens:     attempt.PromptTokens,
		ResponseTokens:   attempt.ResponseTokens,
		EstimatedCostUSD: attempt.EstimatedCostUSD,
		RawBytes:         attempt.RawBytes,
		CleanedChars:     attempt.CleanedChars,
		SentChars:        attempt.SentChars,
	})
}

func (s *Service) recordFinal(req Request, outcome, errorCode string, totalAttempts int) {
	now := time.Now()
	s.recorder.Record(context.Background(), analytics.Event{
		RequestID:     req.ID,
		Identity:      req.Identity,
		Type:          analytics.EventFinal,
		Outcome:       outcome,
		ErrorCode:     errorCode,
		StartedAt:     now,
		CompletedAt:   now,
		TotalAttempts: totalAttempts,
	})
}
