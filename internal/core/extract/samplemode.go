package extract

import (
	"context"
	"time"

	"recipeengine/internal/core/recipe"
	"recipeengine/internal/core/strategy"
)

// SampleMode serves a canned extraction with simulated progress so frontend
// work does not burn provider quota.
var SampleMode = false

var sampleRecipe = recipe.Recipe{
	Title:       "Weeknight Tomato Soup",
	Description: "A quick stovetop tomato soup finished with basil and cream.",
	Ingredients: []string{
		"2 tbsp olive oil",
		"1 yellow onion, diced",
		"3 cloves garlic, minced",
		"800 g canned whole tomatoes",
		"500 ml vegetable stock",
		"60 ml heavy cream",
		"Handful of fresh basil",
		"Salt and black pepper",
	},
	Steps: []string{
		"Heat the olive oil and soften the onion for 5 minutes.",
		"Add the garlic and cook for 1 minute.",
		"Add the tomatoes and stock, simmer for 15 minutes.",
		"Blend until smooth, stir in the cream and basil.",
		"Season to taste and serve hot.",
	},
	Cuisine:     "Italian",
	Category:    "Dinner",
	PrepTime:    "10 minutes",
	CleanupTime: "5 minutes",
}

// RunSample streams a scripted progress sequence ending in a success event.
func RunSample(ctx context.Context, req Request) *Stream {
	stream := NewStream()
	go func() {
		defer stream.close()

		script := []struct {
			percent int
			message string
			delay   time.Duration
		}{
			{5, "Trying url-direct via gemini", 200 * time.Millisecond},
			{30, "Fetching page content", 400 * time.Millisecond},
			{45, "Cleaning page content", 300 * time.Millisecond},
			{70, "Extracting with gemini (attempt 1/3)", 900 * time.Millisecond},
			{95, "Validating recipe", 200 * time.Millisecond},
		}

		started := time.Now()
		for _, step := range script {
			select {
			case <-time.After(step.delay):
			case <-ctx.Done():
				return
			}
			if !stream.publish(ctx, Event{Type: EventProgress, Percent: step.percent, Message: step.message}) {
				return
			}
		}

		r := sampleRecipe
		now := time.Now()
		stream.publish(ctx, Event{
			Type:         EventSuccess,
			Percent:      100,
			Recipe:       &r,
			StrategyUsed: strategy.StrategyURLDirect,
			Attempts: []Attempt{{
				Strategy:    strategy.StrategyURLDirect,
				Provider:    "gemini",
				StartedAt:   started,
				CompletedAt: now,
				Outcome:     "SUCCESS",
			}},
		})
	}()
	return stream
}
