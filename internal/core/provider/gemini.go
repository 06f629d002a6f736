package provider

import (
	"context"
	"errors"
	"strings"

	"recipeengine/internal/core/fault"
	"recipeengine/internal/core/recipe"
	"recipeengine/internal/core/reduce"
	"recipeengine/internal/logger"
	"recipeengine/internal/platform/llm"
	"recipeengine/prompts"

	gemini "github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino/components/model"
	einoschema "github.com/cloudwego/eino/schema"
	"github.com/eino-contrib/jsonschema"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// GeminiAdapter extracts recipes through the Gemini integration. The
// url-direct path runs the eino chat model with an enforced response schema;
// text and image paths use the raw client for accurate token accounting.
type GeminiAdapter struct {
	llm     *llm.Service
	prompts *prompts.RecipePrompts
	log     *logger.Logger
}

func NewGeminiAdapter(svc *llm.Service, rp *prompts.RecipePrompts) *GeminiAdapter {
	return &GeminiAdapter{llm: svc, prompts: rp, log: logger.New("GeminiProvider")}
}

func (a *GeminiAdapter) Name() string         { return "gemini" }
func (a *GeminiAdapter) Model() string        { return a.llm.Model() }
func (a *GeminiAdapter) SupportsVision() bool { return true }

func (a *GeminiAdapter) Extract(ctx context.Context, content Content) (*recipe.Recipe, *Usage, error) {
	switch content.Kind {
	case KindURL:
		return a.extractFromURL(ctx, content.URL)
	case KindText:
		return a.extractFromText(ctx, content.Text)
	case KindImage:
		return a.extractFromImages(ctx, content.Images, content.MimeType)
	default:
		return nil, nil, fault.New(fault.CodeProviderFatal, "unsupported content kind %q", content.Kind)
	}
}

func (a *GeminiAdapter) extractFromURL(ctx context.Context, url string) (*recipe.Recipe, *Usage, error) {
	messages, err := a.prompts.URLDirect.Format(ctx, map[string]any{"url": url})
	if err != nil {
		return nil, nil, fault.Wrap(fault.CodeProviderFatal, err, "failed to format url template")
	}

	response, tokenUsage, err := a.llm.Generate(ctx, messages,
		model.WithTemperature(0.1),
		model.WithMaxTokens(2000),
		gemini.WithResponseJSONSchema(recipeResponseSchema()),
	)
	if err != nil {
		return nil, nil, classifyGeminiError(err)
	}
	return finishGemini(response, tokenUsage)
}

func (a *GeminiAdapter) extractFromText(ctx context.Context, text string) (*recipe.Recipe, *Usage, error) {
	tmpl := a.prompts.CleanedText
	if strings.HasPrefix(text, reduce.StructuredPrefix) {
		tmpl = a.prompts.StructuredData
		text = strings.TrimPrefix(text, reduce.StructuredPrefix)
	}

	messages, err := tmpl.Format(ctx, map[string]any{"content": text})
	if err != nil {
		return nil, nil, fault.Wrap(fault.CodeProviderFatal, err, "failed to format text template")
	}

	response, tokenUsage, err := a.llm.GenerateWithTokenUsage(ctx, messages)
	if err != nil {
		return nil, nil, classifyGeminiError(err)
	}
	return finishGemini(response, tokenUsage)
}

func (a *GeminiAdapter) extractFromImages(ctx context.Context, images [][]byte, mimeType string) (*recipe.Recipe, *Usage, error) {
	if len(images) == 0 {
		return nil, nil, fault.New(fault.CodeProviderFatal, "no images supplied")
	}
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	response, tokenUsage, err := a.llm.GenerateVision(ctx, prompts.ImageExtractionPrompt, images, mimeType)
	if err != nil {
		return nil, nil, classifyGeminiError(err)
	}
	return finishGemini(response, tokenUsage)
}

func finishGemini(response *einoschema.Message, tokenUsage *llm.TokenUsage) (*recipe.Recipe, *Usage, error) {
	var usage *Usage
	if tokenUsage != nil {
		usage = &Usage{
			PromptTokens:   int64(tokenUsage.InputTokens),
			ResponseTokens: int64(tokenUsage.OutputTokens),
		}
	}
	cand, err := decodeCandidate(response.Content)
	if err != nil {
		return nil, usage, err
	}
	return cand, usage, nil
}

// classifyGeminiError maps API failures onto the shared taxonomy. The genai
// client does not expose a stable typed error for every failure mode, so
// classification falls back to status text.
func classifyGeminiError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "429") || strings.Contains(msg, "resource_exhausted") || strings.Contains(msg, "rate limit"):
		return fault.Wrap(fault.CodeProviderTransient, err, "gemini rate limited")
	case strings.Contains(msg, "500") || strings.Contains(msg, "502") ||
		strings.Contains(msg, "503") || strings.Contains(msg, "unavailable") ||
		strings.Contains(msg, "internal") || strings.Contains(msg, "overloaded"):
		return fault.Wrap(fault.CodeProviderTransient, err, "gemini server error")
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline"):
		return fault.Wrap(fault.CodeProviderTransient, err, "gemini call timed out")
	default:
		return fault.Wrap(fault.CodeProviderFatal, err, "gemini rejected request")
	}
}

// recipeResponseSchema forces the model to return valid candidate JSON on
// the url-direct path.
func recipeResponseSchema() *jsonschema.Schema {
	stringField := func(desc string) *jsonschema.Schema {
		return &jsonschema.Schema{Type: string(einoschema.String), Description: desc}
	}
	stringArray := func(desc string) *jsonschema.Schema {
		return &jsonschema.Schema{
			Type:        string(einoschema.Array),
			Description: desc,
			Items:       &jsonschema.Schema{Type: string(einoschema.String)},
		}
	}

	return &jsonschema.Schema{
		Type:     string(einoschema.Object),
		Required: []string{"title", "ingredients", "steps"},
		Properties: orderedmap.New[string, *jsonschema.Schema](
			orderedmap.WithInitialData[string, *jsonschema.Schema](
				orderedmap.Pair[string, *jsonschema.Schema]{
					Key:   "title",
					Value: stringField("The recipe name"),
				},
				orderedmap.Pair[string, *jsonschema.Schema]{
					Key:   "description",
					Value: stringField("One-sentence summary of the recipe"),
				},
				orderedmap.Pair[string, *jsonschema.Schema]{
					Key:   "ingredients",
					Value: stringArray("One entry per ingredient, including quantity"),
				},
				orderedmap.Pair[string, *jsonschema.Schema]{
					Key:   "steps",
					Value: stringArray("Cooking instructions in order"),
				},
				orderedmap.Pair[string, *jsonschema.Schema]{
					Key:   "cuisine",
					Value: stringField("Cuisine, e.g. Italian; empty if unknown"),
				},
				orderedmap.Pair[string, *jsonschema.Schema]{
					Key:   "category",
					Value: stringField("Meal category, e.g. Dinner; empty if unknown"),
				},
				orderedmap.Pair[string, *jsonschema.Schema]{
					Key:   "prep_time",
					Value: stringField("Preparation time, e.g. 30 minutes"),
				},
				orderedmap.Pair[string, *jsonschema.Schema]{
					Key:   "cleanup_time",
					Value: stringField("Cleanup time, e.g. 10 minutes"),
				},
				orderedmap.Pair[string, *jsonschema.Schema]{
					Key:   "image_url",
					Value: stringField("URL of the main recipe photo"),
				},
			),
		),
	}
}

var _ Adapter = (*GeminiAdapter)(nil)
