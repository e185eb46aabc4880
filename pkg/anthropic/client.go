// Package anthropic wraps the Messages API for single-turn prompts.
package anthropic

import (
	"context"
	"errors"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
)

// Client sends one prompt and returns the model's reply.
type Client interface {
	Complete(ctx context.Context, p Prompt) (*Reply, error)
}

// Prompt is a single user turn with an optional system instruction.
type Prompt struct {
	Model       string
	System      string
	User        string
	MaxTokens   int64
	Temperature *float64

	// Prefill starts the assistant turn, e.g. "{" to force a JSON object.
	// The reply text includes it.
	Prefill string
}

// Reply is the flattened model answer.
type Reply struct {
	ID           string
	Model        string
	Text         string
	StopReason   string
	InputTokens  int64
	OutputTokens int64
}

// Truncated reports whether the model stopped at the token limit.
func (r *Reply) Truncated() bool { return r.StopReason == "max_tokens" }

// Option tweaks the underlying SDK client.
type Option = option.RequestOption

// WithBaseURL points the client at another host, typically a test server.
func WithBaseURL(u string) Option { return option.WithBaseURL(u) }

// WithMaxRetries sets how often the SDK itself retries 429 and 5xx.
func WithMaxRetries(n int) Option { return option.WithMaxRetries(n) }

type messages struct {
	sdk sdk.Client
}

// NewClient returns a Client authenticated with apiKey.
func NewClient(apiKey string, opts ...Option) Client {
	return &messages{sdk: sdk.NewClient(append([]Option{option.WithAPIKey(apiKey)}, opts...)...)}
}

func (m *messages) Complete(ctx context.Context, p Prompt) (*Reply, error) {
	params := sdk.MessageNewParams{
		Model:     sdk.Model(p.Model),
		MaxTokens: p.MaxTokens,
		Messages:  []sdk.MessageParam{sdk.NewUserMessage(sdk.NewTextBlock(p.User))},
	}
	if p.Prefill != "" {
		params.Messages = append(params.Messages, sdk.NewAssistantMessage(sdk.NewTextBlock(p.Prefill)))
	}
	if p.System != "" {
		params.System = []sdk.TextBlockParam{{Text: p.System}}
	}
	if p.Temperature != nil {
		params.Temperature = sdk.Float(*p.Temperature)
	}

	msg, err := m.sdk.Messages.New(ctx, params)
	if err != nil {
		return nil, eris.Wrapf(err, "anthropic: %s", p.Model)
	}

	var text strings.Builder
	text.WriteString(p.Prefill)
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return &Reply{
		ID:           msg.ID,
		Model:        string(msg.Model),
		Text:         text.String(),
		StopReason:   string(msg.StopReason),
		InputTokens:  msg.Usage.InputTokens,
		OutputTokens: msg.Usage.OutputTokens,
	}, nil
}

// APIStatus returns the HTTP status of a failed API call, or 0 when err did
// not come from the API.
func APIStatus(err error) int {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
