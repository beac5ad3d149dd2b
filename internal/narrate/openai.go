package narrate

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
)

// OpenAI — Narrator поверх Responses API.
type OpenAI struct {
	client    openai.Client
	model     string
	maxTokens int64
}

// NewOpenAI создаёт клиента OpenAI.
func NewOpenAI(apiKey, model string, maxTokens int) *OpenAI {
	return &OpenAI{
		client:    openai.NewClient(option.WithAPIKey(apiKey)),
		model:     model,
		maxTokens: int64(maxTokens),
	}
}

// Narrate отправляет системную и пользовательскую части одним входом.
func (o *OpenAI) Narrate(ctx context.Context, p Prompt) (string, error) {
	input := p.User
	if p.System != "" {
		input = fmt.Sprintf("System: %s\n\n%s", p.System, p.User)
	}

	params := responses.ResponseNewParams{
		Model:           o.model,
		MaxOutputTokens: openai.Int(o.maxTokens),
		Input:           responses.ResponseNewParamsInputUnion{OfString: openai.String(input)},
	}

	resp, err := o.client.Responses.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai responses: %w", err)
	}
	if resp == nil {
		return "", ErrEmptyResponse
	}
	return resp.OutputText(), nil
}
