// Package llm wraps the Gemini integration behind one service: an eino chat
// model for schema-enforced generation plus the raw genai client for calls
// that need accurate UsageMetadata token counts or image parts.
package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	gemini "github.com/cloudwego/eino-ext/components/model/gemini"
	"google.golang.org/genai"
)

type Config struct {
	APIKey string `json:"api_key"`
	Model  string `json:"model"`
}

type Service struct {
	config       Config
	chatModel    model.BaseChatModel
	geminiClient *genai.Client
}

// TokenUsage carries prompt/response token counts from a single call.
type TokenUsage struct {
	InputTokens  int32 `json:"input_tokens"`
	OutputTokens int32 `json:"output_tokens"`
	TotalTokens  int32 `json:"total_tokens"`
}

func NewService(config Config) (*Service, error) {
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey: config.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	chatModel, err := gemini.NewChatModel(context.Background(), &gemini.Config{
		Client: client,
		Model:  config.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini chat model: %w", err)
	}

	return &Service{config: config, chatModel: chatModel, geminiClient: client}, nil
}

// NewServiceWithModel injects a pre-built chat model, used by tests.
func NewServiceWithModel(config Config, chatModel model.BaseChatModel) *Service {
	return &Service{config: config, chatModel: chatModel}
}

func (s *Service) Model() string { return s.config.Model }

// Generate runs the eino chat model. Options such as
// gemini.WithResponseJSONSchema are honored on this path; token usage is
// estimated because eino does not surface UsageMetadata.
func (s *Service) Generate(ctx context.Context, messages []*schema.Message, options ...model.Option) (*schema.Message, *TokenUsage, error) {
	if s.chatModel == nil {
		return nil, nil, fmt.Errorf("chat model not initialized")
	}

	response, err := s.chatModel.Generate(ctx, messages, options...)
	if err != nil {
		return nil, nil, err
	}

	usage := &TokenUsage{
		InputTokens:  estimateTokens(messagesToText(messages)),
		OutputTokens: estimateTokens(response.Content),
	}
	usage.TotalTokens = usage.InputTokens + usage.OutputTokens
	return response, usage, nil
}

// GenerateWithTokenUsage calls the Gemini API directly so token usage comes
// from UsageMetadata instead of estimation.
func (s *Service) GenerateWithTokenUsage(ctx context.Context, messages []*schema.Message) (*schema.Message, *TokenUsage, error) {
	if s.geminiClient == nil {
		return nil, nil, fmt.Errorf("gemini client not initialized")
	}

	var contents []*genai.Content
	for _, msg := range messages {
		contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleUser))
	}

	response, err := s.geminiClient.Models.GenerateContent(ctx, s.config.Model, contents, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("gemini api generation failed: %w", err)
	}

	content := firstCandidateText(response)
	usage := usageFromMetadata(response)
	if usage.TotalTokens == 0 {
		usage.InputTokens = estimateTokens(messagesToText(messages))
		usage.OutputTokens = estimateTokens(content)
		usage.TotalTokens = usage.InputTokens + usage.OutputTokens
	}

	return &schema.Message{Content: content}, usage, nil
}

// GenerateVision sends a text instruction plus one or more image parts.
func (s *Service) GenerateVision(ctx context.Context, instruction string, images [][]byte, mimeType string) (*schema.Message, *TokenUsage, error) {
	if s.geminiClient == nil {
		return nil, nil, fmt.Errorf("gemini client not initialized")
	}

	parts := []*genai.Part{genai.NewPartFromText(instruction)}
	for _, img := range images {
		parts = append(parts, genai.NewPartFromBytes(img, mimeType))
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	response, err := s.geminiClient.Models.GenerateContent(ctx, s.config.Model, contents, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("gemini vision generation failed: %w", err)
	}

	content := firstCandidateText(response)
	usage := usageFromMetadata(response)
	if usage.TotalTokens == 0 {
		usage.OutputTokens = estimateTokens(content)
		usage.TotalTokens = usage.OutputTokens
	}

	return &schema.Message{Content: content}, usage, nil
}

// CountPromptTokens counts input tokens via Gemini's CountTokens API.
func (s *Service) CountPromptTokens(ctx context.Context, messages []*schema.Message) (int32, error) {
	if s.geminiClient == nil {
		return 0, fmt.Errorf("gemini client not initialized")
	}

	var contents []*genai.Content
	for _, msg := range messages {
		contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleUser))
	}

	countResp, err := s.geminiClient.Models.CountTokens(ctx, s.config.Model, contents, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to count tokens with Gemini API: %w", err)
	}
	return countResp.TotalTokens, nil
}

func usageFromMetadata(response *genai.GenerateContentResponse) *TokenUsage {
	usage := &TokenUsage{}
	if response.UsageMetadata != nil {
		usage.InputTokens = response.UsageMetadata.PromptTokenCount
		usage.OutputTokens = response.UsageMetadata.CandidatesTokenCount
		usage.TotalTokens = response.UsageMetadata.TotalTokenCount
	}
	return usage
}

func firstCandidateText(response *genai.GenerateContentResponse) string {
	if len(response.Candidates) > 0 && response.Candidates[0].Content != nil && len(response.Candidates[0].Content.Parts) > 0 {
		return response.Candidates[0].Content.Parts[0].Text
	}
	return ""
}

// estimateTokens uses the documented ~4 characters per token ratio.
func estimateTokens(text string) int32 {
	return int32(len(text) / 4)
}

func messagesToText(messages []*schema.Message) string {
	var text strings.Builder
	for _, msg := range messages {
		text.WriteString(msg.Content)
		text.WriteString("\n")
	}
	return text.String()
}
