package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/textsplitter"

	"github.com/vibin/lead-assistant/config"
	"github.com/vibin/lead-assistant/internal/core/ports"
	"github.com/vibin/lead-assistant/internal/logger"
)

// AnswerAdapter implements ports.AnswerPort with retrieval over the
// knowledge base and a langchaingo chat model
type AnswerAdapter struct {
	model        llms.Model
	knowledge    *KnowledgeBase
	history      *History
	systemPrompt string
	config       *config.LLMConfig
	logger       logger.Logger
}

var _ ports.AnswerPort = (*AnswerAdapter)(nil)

// NewAnswerAdapter connects to the configured provider and indexes the
// knowledge base
func NewAnswerAdapter(ctx context.Context, cfg *config.LLMConfig, kcfg config.KnowledgeConfig, log logger.Logger) (*AnswerAdapter, error) {
	log = log.WithField("component", "answer_provider")
	log.Info("Initializing answer provider", "provider", cfg.Provider, "model", cfg.Model)

	model, embedClient, err := newProvider(cfg)
	if err != nil {
		log.Error("Failed to initialize LLM client", "error", err)
		return nil, err
	}

	embedder, err := embeddings.NewEmbedder(embedClient)
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}

	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(kcfg.ChunkSize),
		textsplitter.WithChunkOverlap(kcfg.ChunkOverlap),
	)

	kb, err := LoadKnowledge(ctx, kcfg.Path, splitter, embedder)
	if err != nil {
		return nil, err
	}
	log.Info("Knowledge base indexed", "path", kcfg.Path, "chunks", kb.Len())

	prompt, err := LoadSystemPrompt(cfg.SystemPromptFile)
	if err != nil {
		return nil, err
	}

	return NewAnswerAdapterWith(model, kb, prompt, cfg, log), nil
}

// NewAnswerAdapterWith assembles an adapter from ready parts
func NewAnswerAdapterWith(model llms.Model, kb *KnowledgeBase, systemPrompt string, cfg *config.LLMConfig, log logger.Logger) *AnswerAdapter {
	return &AnswerAdapter{
		model:        model,
		knowledge:    kb,
		history:      NewHistory(cfg.HistorySize),
		systemPrompt: systemPrompt,
		config:       cfg,
		logger:       log,
	}
}

const defaultOllamaEndpoint = "http://localhost:11434"

type embedderClient interface {
	CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error)
}

func newProvider(cfg *config.LLMConfig) (llms.Model, embedderClient, error) {
	switch cfg.Provider {
	case "openai":
		opts := []openai.Option{
			openai.WithModel(cfg.Model),
			openai.WithEmbeddingModel(cfg.EmbeddingModel),
		}
		if cfg.APIKey != "" {
			opts = append(opts, openai.WithToken(cfg.APIKey))
		}
		if cfg.Endpoint != "" {
			opts = append(opts, openai.WithBaseURL(cfg.Endpoint))
		}
		client, err := openai.New(opts...)
		if err != nil {
			return nil, nil, err
		}
		return client, client, nil
	case "ollama":
		endpoint := cfg.Endpoint
		if endpoint == "" {
			endpoint = defaultOllamaEndpoint
		}
		client, err := ollama.New(
			ollama.WithServerURL(endpoint),
			ollama.WithModel(cfg.Model),
		)
		if err != nil {
			return nil, nil, err
		}
		embedModel := cfg.EmbeddingModel
		if embedModel == "" {
			return client, client, nil
		}
		embedClient, err := ollama.New(
			ollama.WithServerURL(endpoint),
			ollama.WithModel(embedModel),
		)
		if err != nil {
			return nil, nil, err
		}
		return client, embedClient, nil
	default:
		return nil, nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

// Answer generates a reply grounded on the knowledge base and the user's
// recent exchanges
func (a *AnswerAdapter) Answer(ctx context.Context, query, userID string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Duration(a.config.Timeout))
	defer cancel()

	chunks, err := a.knowledge.Search(ctx, query, a.config.TopK)
	if err != nil {
		return "", err
	}

	user := buildUserPrompt(chunks, a.history.Last(userID, a.config.PromptHistory), query)
	a.logger.Debug("Generating answer", "user_id", userID, "chunks", len(chunks))

	resp, err := a.model.GenerateContent(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, a.systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, user),
	}, llms.WithTemperature(0))
	if err != nil {
		a.logger.Error("Answer generation failed", "error", err)
		return "", fmt.Errorf("generate answer: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("model returned no choices")
	}

	answer := strings.TrimSpace(resp.Choices[0].Content)
	a.history.Append(userID, Exchange{User: query, Assistant: answer})
	return answer, nil
}
