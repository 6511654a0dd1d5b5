package llm

import (
	"context"
	"strings"
)

// CapabilityAdapter is the generic chat-completions transport for the
// external aggregator marketplace boundary (spec §6): the concrete
// request-shaping for any one commercial aggregator is out of scope,
// but the streaming HTTP transport underneath it is the same shape
// httpClient already speaks, so this is a thin, single-turn wrapper
// over Client rather than a second HTTP implementation.
type CapabilityAdapter struct {
	client Client
	config ClientConfig
}

// NewCapabilityAdapter builds a Client from cfg via NewClient and wraps
// it as a single-turn request/response adapter.
func NewCapabilityAdapter(cfg ClientConfig) *CapabilityAdapter {
	return &CapabilityAdapter{client: NewClient(cfg), config: cfg}
}

// AdapterResult is the normalized, non-streaming response: the same
// shape clidriver.Result reports so either transport can feed the
// same caller.
type AdapterResult struct {
	Text         string
	Model        string
	InputTokens  int64
	OutputTokens int64
}

// Complete sends a single-turn completion request and accumulates the
// stream into a normalized AdapterResult. A non-empty model overrides
// the adapter's configured default for this call only, so the same
// adapter instance can serve whatever model modelrouter.Decision picked
// without mutating shared client state across concurrent calls.
func (a *CapabilityAdapter) Complete(ctx context.Context, model, systemPrompt, userPrompt string) (AdapterResult, error) {
	cfg := a.config
	if model != "" {
		cfg.Model = model
	}

	req := BuildCompletionRequest(cfg, systemPrompt, []ChatMessage{
		{Role: "user", Content: userPrompt},
	}, nil, LoopState{})

	stream, err := a.client.Complete(ctx, req)
	if err != nil {
		return AdapterResult{}, err
	}

	resp, err := stream.Accumulate()
	if err != nil {
		return AdapterResult{}, err
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	return AdapterResult{
		Text:         text.String(),
		Model:        resp.Model,
		InputTokens:  int64(resp.Usage.InputTokens),
		OutputTokens: int64(resp.Usage.OutputTokens),
	}, nil
}
