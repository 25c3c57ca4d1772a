// Package llm adapta los chat models de eino al puerto ports.ModelService.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/deepseek"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/alejandrodnm/polyswarm/internal/domain"
)

const (
	ProviderOpenAI   = "openai"
	ProviderDeepseek = "deepseek"
	ProviderOllama   = "ollama"

	defaultOllamaURL = "http://localhost:11434/v1"
	defaultTimeout   = 60 * time.Second
)

// ErrEmptyResponse se devuelve cuando el modelo no produce texto.
var ErrEmptyResponse = errors.New("llm: empty response")

// Config describe el proveedor de modelos.
type Config struct {
	Provider  string
	BaseURL   string
	APIKey    string
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

// Service implementa ports.ModelService sobre un eino BaseChatModel.
type Service struct {
	chat         model.BaseChatModel
	defaultModel string
}

// NewService envuelve un chat model ya construido.
func NewService(chat model.BaseChatModel, defaultModel string) *Service {
	return &Service{chat: chat, defaultModel: defaultModel}
}

// New construye el chat model del proveedor configurado.
func New(ctx context.Context, cfg Config) (*Service, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	switch strings.ToLower(cfg.Provider) {
	case "", ProviderOpenAI:
		return NewOpenAI(ctx, cfg)
	case ProviderDeepseek:
		return NewDeepseek(ctx, cfg)
	case ProviderOllama:
		return NewOllama(ctx, cfg)
	default:
		return nil, fmt.Errorf("llm.New: unknown provider %q", cfg.Provider)
	}
}

// NewOpenAI crea un Service sobre la API de OpenAI o cualquier endpoint compatible.
func NewOpenAI(ctx context.Context, cfg Config) (*Service, error) {
	occ := &openai.ChatModelConfig{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
		Timeout: cfg.Timeout,
	}
	if cfg.MaxTokens > 0 {
		maxTokens := cfg.MaxTokens
		occ.MaxTokens = &maxTokens
	}
	chat, err := openai.NewChatModel(ctx, occ)
	if err != nil {
		return nil, fmt.Errorf("llm.NewOpenAI: %w", err)
	}
	return NewService(chat, cfg.Model), nil
}

// NewDeepseek crea un Service sobre la API de DeepSeek.
func NewDeepseek(ctx context.Context, cfg Config) (*Service, error) {
	chat, err := deepseek.NewChatModel(ctx, &deepseek.ChatModelConfig{
		APIKey:    cfg.APIKey,
		BaseURL:   cfg.BaseURL,
		Model:     cfg.Model,
		MaxTokens: cfg.MaxTokens,
		Timeout:   cfg.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("llm.NewDeepseek: %w", err)
	}
	return NewService(chat, cfg.Model), nil
}

// NewOllama usa el endpoint OpenAI-compatible de Ollama. La API key es opcional.
func NewOllama(ctx context.Context, cfg Config) (*Service, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultOllamaURL
	}
	if cfg.APIKey == "" {
		cfg.APIKey = "ollama"
	}
	return NewOpenAI(ctx, cfg)
}

// Generate manda system + prompt y devuelve el texto de la respuesta.
// req.Model vacío usa el modelo por defecto del servicio.
func (s *Service) Generate(ctx context.Context, req domain.ModelRequest) (string, error) {
	msgs := make([]*schema.Message, 0, 2)
	if req.System != "" {
		msgs = append(msgs, schema.SystemMessage(req.System))
	}
	msgs = append(msgs, schema.UserMessage(req.Prompt))

	var opts []model.Option
	if name := req.Model; name != "" && name != s.defaultModel {
		opts = append(opts, model.WithModel(name))
	}
	if req.MaxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(req.MaxTokens))
	}

	out, err := s.chat.Generate(ctx, msgs, opts...)
	if err != nil {
		return "", fmt.Errorf("llm.Generate %s: %w", s.modelName(req), err)
	}
	if out == nil || strings.TrimSpace(out.Content) == "" {
		return "", fmt.Errorf("llm.Generate %s: %w", s.modelName(req), ErrEmptyResponse)
	}
	return out.Content, nil
}

func (s *Service) modelName(req domain.ModelRequest) string {
	if req.Model != "" {
		return req.Model
	}
	return s.defaultModel
}
