package llm

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/KevinLaRosa/yorimichi-workers/internal/resilience"
)

// chatModel is the slice of llms.Model the completer uses.
type chatModel interface {
	GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error)
}

// OpenAICompleter adapts an OpenAI-compatible chat endpoint to Completer.
type OpenAICompleter struct {
	model chatModel
}

// NewOpenAI creates a Completer for an OpenAI-compatible endpoint.
func NewOpenAI(baseURL, token, defaultModel string) (*OpenAICompleter, error) {
	client, err := openai.New(
		openai.WithBaseURL(baseURL),
		openai.WithToken(token),
		openai.WithModel(defaultModel),
	)
	if err != nil {
		return nil, eris.Wrap(err, "llm: create openai client")
	}
	return &OpenAICompleter{model: client}, nil
}

func (o *OpenAICompleter) Complete(ctx context.Context, req Request) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	content := []llms.MessageContent{
		{Role: llms.ChatMessageTypeSystem, Parts: []llms.ContentPart{llms.TextPart(req.System)}},
		{Role: llms.ChatMessageTypeHuman, Parts: []llms.ContentPart{llms.TextPart(req.User)}},
	}
	opts := []llms.CallOption{
		llms.WithTemperature(req.Temperature),
		llms.WithMaxTokens(req.MaxTokens),
	}
	if req.Model != "" {
		opts = append(opts, llms.WithModel(req.Model))
	}
	if req.JSON {
		opts = append(opts, llms.WithJSONMode())
	}

	resp, err := o.model.GenerateContent(ctx, content, opts...)
	if err != nil {
		err = eris.Wrap(err, "llm: openai complete")
		return nil, resilience.ClassifyStatus("openai", err, resilience.StatusFromText(err))
	}
	if len(resp.Choices) == 0 {
		return nil, eris.New("llm: openai returned no choices")
	}

	choice := resp.Choices[0]
	return &Response{
		Text:         choice.Content,
		Model:        req.Model,
		InputTokens:  intInfo(choice.GenerationInfo, "PromptTokens"),
		OutputTokens: intInfo(choice.GenerationInfo, "CompletionTokens"),
	}, nil
}

func intInfo(info map[string]any, key string) int {
	switch v := info[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}
