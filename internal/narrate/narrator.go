package narrate

import (
	"context"
	"fmt"
	"strings"
)

// Провайдеры.
const (
	ProviderNone      = "none"
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
)

// Значения по умолчанию.
const (
	DefaultAnthropicModel = "claude-sonnet-4-5"
	DefaultOpenAIModel    = "gpt-4o"
	DefaultMaxTokens      = 1024
)

// Prompt — запрос к модели.
type Prompt struct {
	System string
	User   string
}

// Narrator превращает структурированные выводы в прозу.
type Narrator interface {
	Narrate(ctx context.Context, p Prompt) (string, error)
}

// Func — адаптер обычной функции к Narrator.
type Func func(ctx context.Context, p Prompt) (string, error)

// Narrate вызывает f.
func (f Func) Narrate(ctx context.Context, p Prompt) (string, error) {
	return f(ctx, p)
}

// Config — настройки бэкенда.
type Config struct {
	Provider  string
	Model     string
	APIKey    string
	MaxTokens int
}

// New создаёт Narrator по конфигурации.
//
// Для провайдера "none" (или пустого) возвращает nil без ошибки:
// специалисты в этом случае используют детерминированный текст.
func New(cfg Config) (Narrator, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" || provider == ProviderNone {
		return nil, nil
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingAPIKey, provider)
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}

	switch provider {
	case ProviderAnthropic:
		if cfg.Model == "" {
			cfg.Model = DefaultAnthropicModel
		}
		return NewAnthropic(cfg.APIKey, cfg.Model, cfg.MaxTokens), nil
	case ProviderOpenAI:
		if cfg.Model == "" {
			cfg.Model = DefaultOpenAIModel
		}
		return NewOpenAI(cfg.APIKey, cfg.Model, cfg.MaxTokens), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
}

// Or вызывает n, а при отсутствии бэкенда возвращает fallback.
//
// Ошибка бэкенда возвращается как есть: вызывающий решает, фатальна ли она.
func Or(ctx context.Context, n Narrator, p Prompt, fallback string) (string, error) {
	if n == nil {
		return fallback, nil
	}
	text, err := n.Narrate(ctx, p)
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
