package provider

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"recipeengine/internal/core/fault"
	"recipeengine/internal/core/recipe"
	"recipeengine/internal/core/reduce"
	"recipeengine/internal/logger"
	"recipeengine/prompts"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	einoschema "github.com/cloudwego/eino/schema"
)

const anthropicMaxTokens = 2000

// AnthropicAdapter extracts recipes through the official anthropic-sdk-go
// client. It reuses the shared chat templates and converts them to SDK
// message params.
type AnthropicAdapter struct {
	client  sdk.Client
	model   string
	prompts *prompts.RecipePrompts
	log     *logger.Logger
}

func NewAnthropicAdapter(apiKey, model string, rp *prompts.RecipePrompts) *AnthropicAdapter {
	return &AnthropicAdapter{
		client:  sdk.NewClient(option.WithAPIKey(apiKey)),
		model:   model,
		prompts: rp,
		log:     logger.New("AnthropicProvider"),
	}
}

func (a *AnthropicAdapter) Name() string         { return "anthropic" }
func (a *AnthropicAdapter) Model() string        { return a.model }
func (a *AnthropicAdapter) SupportsVision() bool { return true }

func (a *AnthropicAdapter) Extract(ctx context.Context, content Content) (*recipe.Recipe, *Usage, error) {
	switch content.Kind {
	case KindURL:
		// The API has no URL retrieval capability; the selector only routes
		// url-direct plans to providers that do.
		return nil, nil, fault.New(fault.CodeProviderFatal, "anthropic cannot retrieve URLs directly")
	case KindText:
		return a.extractFromText(ctx, content.Text)
	case KindImage:
		return a.extractFromImages(ctx, content.Images, content.MimeType)
	default:
		return nil, nil, fault.New(fault.CodeProviderFatal, "unsupported content kind %q", content.Kind)
	}
}

func (a *AnthropicAdapter) extractFromText(ctx context.Context, text string) (*recipe.Recipe, *Usage, error) {
	tmpl := a.prompts.CleanedText
	if strings.HasPrefix(text, reduce.StructuredPrefix) {
		tmpl = a.prompts.StructuredData
		text = strings.TrimPrefix(text, reduce.StructuredPrefix)
	}

	messages, err := tmpl.Format(ctx, map[string]any{"content": text})
	if err != nil {
		return nil, nil, fault.Wrap(fault.CodeProviderFatal, err, "failed to format text template")
	}

	params := sdk.MessageNewParams{
		Model:       sdk.Model(a.model),
		MaxTokens:   anthropicMaxTokens,
		Temperature: sdk.Float(0.1),
	}
	params.System, params.Messages = splitTemplateMessages(messages)

	return a.call(ctx, params)
}

func (a *AnthropicAdapter) extractFromImages(ctx context.Context, images [][]byte, mimeType string) (*recipe.Recipe, *Usage, error) {
	if len(images) == 0 {
		return nil, nil, fault.New(fault.CodeProviderFatal, "no images supplied")
	}
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	blocks := make([]sdk.ContentBlockParamUnion, 0, len(images)+1)
	for _, img := range images {
		encoded := base64.StdEncoding.EncodeToString(img)
		blocks = append(blocks, sdk.NewImageBlockBase64(mimeType, encoded))
	}
	blocks = append(blocks, sdk.NewTextBlock(prompts.ImageExtractionPrompt))

	params := sdk.MessageNewParams{
		Model:     sdk.Model(a.model),
		MaxTokens: anthropicMaxTokens,
		Messages:  []sdk.MessageParam{sdk.NewUserMessage(blocks...)},
	}

	return a.call(ctx, params)
}

func (a *AnthropicAdapter) call(ctx context.Context, params sdk.MessageNewParams) (*recipe.Recipe, *Usage, error) {
	msg, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return nil, nil, classifyAnthropicError(err)
	}

	usage := &Usage{
		PromptTokens:   msg.Usage.InputTokens,
		ResponseTokens: msg.Usage.OutputTokens,
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	cand, err := decodeCandidate(text.String())
	if err != nil {
		return nil, usage, err
	}
	return cand, usage, nil
}

// splitTemplateMessages converts formatted eino messages into the SDK's
// system block + conversation shape.
func splitTemplateMessages(messages []*einoschema.Message) ([]sdk.TextBlockParam, []sdk.MessageParam) {
	var system []sdk.TextBlockParam
	var conversation []sdk.MessageParam
	for _, m := range messages {
		switch m.Role {
		case einoschema.System:
			system = append(system, sdk.TextBlockParam{Text: m.Content})
		case einoschema.Assistant:
			conversation = append(conversation, sdk.NewAssistantMessage(sdk.NewTextBlock(m.Content)))
		default:
			conversation = append(conversation, sdk.NewUserMessage(sdk.NewTextBlock(m.Content)))
		}
	}
	return system, conversation
}

func classifyAnthropicError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apierr *sdk.Error
	if errors.As(err, &apierr) {
		switch {
		case apierr.StatusCode == 429:
			fe := fault.Wrap(fault.CodeProviderTransient, err, "anthropic rate limited")
			fe.RetryAfter = retryAfterFrom(apierr)
			return fe
		case apierr.StatusCode == 408 || apierr.StatusCode == 529 || apierr.StatusCode >= 500:
			return fault.Wrap(fault.CodeProviderTransient, err, "anthropic server error %d", apierr.StatusCode)
		default:
			return fault.Wrap(fault.CodeProviderFatal, err, "anthropic rejected request with %d", apierr.StatusCode)
		}
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "timeout") || strings.Contains(msg, "connection") {
		return fault.Wrap(fault.CodeProviderTransient, err, "anthropic call failed")
	}
	return fault.Wrap(fault.CodeProviderFatal, err, "anthropic call failed")
}

func retryAfterFrom(apierr *sdk.Error) time.Duration {
	if apierr.Response == nil {
		return 0
	}
	header := apierr.Response.Header.Get("Retry-After")
	if header == "" {
		return 0
	}
	if secs, err := time.ParseDuration(header + "s"); err == nil {
		return secs
	}
	return 0
}

var _ Adapter = (*AnthropicAdapter)(nil)
