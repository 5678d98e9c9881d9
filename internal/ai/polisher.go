package ai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/inkstream/inkstream/internal/config"
)

const systemPrompt = "You are a professional text-polishing assistant, skilled at " +
	"improving the wording and structure of a text."

// Polisher streams polished rewrites of note text from an OpenAI-compatible
// chat-completion endpoint. It implements relay.Producer.
type Polisher struct {
	client      *openai.Client
	model       string
	maxTokens   int64
	temperature float64
}

// New builds a Polisher from the AI configuration. A custom base URL points
// it at any OpenAI-compatible service (DashScope, a local gateway, ...).
func New(cfg config.AIConfig) *Polisher {
	opts := []option.RequestOption{}
	if key := cfg.APIKey(); key != "" {
		opts = append(opts, option.WithAPIKey(key))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &Polisher{
		client:      openai.NewClient(opts...),
		model:       cfg.Model,
		maxTokens:   int64(cfg.MaxTokens),
		temperature: cfg.Temperature,
	}
}

// Produce streams the polished version of text, calling emit once per delta
// chunk as the upstream produces it. The upstream HTTP stream is a blocking
// iterator; the relay runs Produce on an isolated goroutine.
func (p *Polisher) Produce(ctx context.Context, text string, emit func(chunk string)) error {
	params := openai.ChatCompletionNewParams{
		Model: openai.F(p.model),
		Messages: openai.F([]openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(prompt(text)),
		}),
		N:           openai.Int(1),
		MaxTokens:   openai.Int(p.maxTokens),
		Temperature: openai.Float(p.temperature),
	}

	strm := p.client.Chat.Completions.NewStreaming(ctx, params)
	defer strm.Close()
	if err := strm.Err(); err != nil {
		return fmt.Errorf("ai: start stream: %w", err)
	}

	for strm.Next() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		chunk := strm.Current()
		if len(chunk.Choices) == 0 {
			// Keep-alive or usage-only chunk; nothing to forward.
			continue
		}
		choice := chunk.Choices[0]
		if choice.Delta.Content != "" {
			emit(choice.Delta.Content)
		}
		// The finish marker can ride on the same chunk as the final delta, so
		// it is checked after forwarding.
		if choice.FinishReason != "" {
			break
		}
	}
	if err := strm.Err(); err != nil {
		return fmt.Errorf("ai: stream: %w", err)
	}
	return nil
}

// prompt wraps the user's text in the polishing instruction.
func prompt(text string) string {
	return fmt.Sprintf("Please polish and expand the following text so it is clearer, "+
		"better organized and more complete. Keep the original meaning, but feel free "+
		"to elaborate and refine the wording:\n\n%s\n\nOutput only the polished text, "+
		"with no extra commentary or markers.", text)
}
