package llm

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/KevinLaRosa/yorimichi-workers/internal/resilience"
	"github.com/KevinLaRosa/yorimichi-workers/pkg/anthropic"
)

const jsonInstruction = "\n\nRespond with a single JSON object and nothing else."

// AnthropicCompleter serves Requests with Claude models.
type AnthropicCompleter struct {
	client anthropic.Client
}

func NewAnthropic(client anthropic.Client) *AnthropicCompleter {
	return &AnthropicCompleter{client: client}
}

// Complete sends req as one user turn. JSON requests get an extra
// instruction and an assistant prefill of "{".
func (a *AnthropicCompleter) Complete(ctx context.Context, req Request) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	temp := req.Temperature
	p := anthropic.Prompt{
		Model:       req.Model,
		System:      req.System,
		User:        req.User,
		MaxTokens:   int64(req.MaxTokens),
		Temperature: &temp,
	}
	if req.JSON {
		p.System += jsonInstruction
		p.Prefill = "{"
	}

	reply, err := a.client.Complete(ctx, p)
	if err != nil {
		if status := anthropic.APIStatus(err); resilience.IsAuthHTTPStatus(status) || resilience.IsTransientHTTPStatus(status) {
			return nil, resilience.ClassifyStatus("anthropic", err, status)
		}
		return nil, eris.Wrap(err, "llm: anthropic complete")
	}
	return &Response{
		Text:         reply.Text,
		Model:        reply.Model,
		InputTokens:  int(reply.InputTokens),
		OutputTokens: int(reply.OutputTokens),
	}, nil
}
