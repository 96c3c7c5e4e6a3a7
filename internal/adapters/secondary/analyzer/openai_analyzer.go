// Package analyzer asks a chat model to assess a finished dialogue for
// purchase intent.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/vibin/lead-assistant/internal/core/domain"
	"github.com/vibin/lead-assistant/internal/core/ports"
	"github.com/vibin/lead-assistant/internal/logger"
)

const systemPrompt = `Ты - аналитик диалогов,
который определяет потребности клиентов и их интерес к покупке курсов и других продуктов.
Ты работаешь с диалогом между пользователем и ботом.
Твоя задача - дать краткий анализ диалога, выявить интересы пользователя`

const promptTemplate = `Проанализируй следующий диалог между чат-ботом и пользователем.

Определи:

1. Проявляет ли пользователь интерес к покупке курса (или другого продукта)? Если да, укажи, к какому именно.

2. Какие конкретные вопросы задал пользователь (перечисли все вопросы которые задал пользователь)?

3. На какой стадии воронки продаж (внимание, интерес, сравнение, решение, покупка) находится пользователь?

4. Что может помочь ускорить его принятие решения о покупке (аргументы, предложения, кейсы, звонок, консультация)?

Затем составь краткое резюме для менеджера (до 5 предложений):
Опиши, что нужно учесть при дальнейшем контакте и стоит ли подключать живого менеджера.

Если пользователь не проявляет интереса к покупке курса, просто напиши: «%s».

ДИАЛОГ:
%s`

// Config holds the analyzer model settings
type Config struct {
	APIKey           string
	BaseURL          string
	Model            string
	MaxTokens        int64
	NoInterestMarker string
}

// OpenAIAnalyzer implements ports.LeadAnalyzerPort with the OpenAI chat API
type OpenAIAnalyzer struct {
	client openai.Client
	config Config
	logger logger.Logger
}

var _ ports.LeadAnalyzerPort = (*OpenAIAnalyzer)(nil)

// NewOpenAIAnalyzer creates an analyzer. BaseURL may point at any
// OpenAI-compatible endpoint.
func NewOpenAIAnalyzer(cfg Config, log logger.Logger) (*OpenAIAnalyzer, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("analyzer api key is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(strings.TrimSpace(cfg.APIKey)),
		option.WithMaxRetries(1),
	}
	if base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"); base != "" {
		opts = append(opts, option.WithBaseURL(base+"/"))
	}

	return &OpenAIAnalyzer{
		client: openai.NewClient(opts...),
		config: cfg,
		logger: log.WithField("component", "lead_analyzer"),
	}, nil
}

// BuildPrompt renders the analysis request for a dialogue
func BuildPrompt(turns []domain.Turn, marker string) string {
	return fmt.Sprintf(promptTemplate, marker, domain.FormatDialogue(turns))
}

// Analyze returns the model's free-text assessment of the dialogue
func (a *OpenAIAnalyzer) Analyze(ctx context.Context, turns []domain.Turn) (string, error) {
	if len(turns) == 0 {
		return "", errors.New("no turns to analyze")
	}

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(a.config.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(BuildPrompt(turns, a.config.NoInterestMarker)),
		},
	}
	if a.config.MaxTokens > 0 {
		params.MaxTokens = openai.Int(a.config.MaxTokens)
	}

	a.logger.Debug("Requesting dialogue analysis", "model", a.config.Model, "turns", len(turns))
	resp, err := a.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("analysis request: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("analysis response has no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
