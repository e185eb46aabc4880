// Package embed produces vector embeddings for generated descriptions.
package embed

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"

	"github.com/KevinLaRosa/yorimichi-workers/internal/cost"
	"github.com/KevinLaRosa/yorimichi-workers/internal/resilience"
)

const (
	// DefaultModel is the embedding model used when none is configured.
	DefaultModel = "text-embedding-ada-002"

	// MaxInputChars bounds the text sent for embedding.
	MaxInputChars = 8000
)

// Vector is an embedding together with the model that produced it.
type Vector struct {
	Values []float32
	Model  string
}

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) (Vector, error)
	Model() string
}

// Options configures an OpenAI embedder.
type Options struct {
	BaseURL string
	Token   string
	Model   string
	// Dimension, when non-zero, is checked against every returned vector.
	Dimension int
	Costs     *cost.Tracker
}

// OpenAIEmbedder embeds through an OpenAI-compatible endpoint.
type OpenAIEmbedder struct {
	model     embeddings.Embedder
	modelName string
	dimension int
	costs     *cost.Tracker
}

// NewOpenAI creates an embedder for an OpenAI-compatible endpoint.
func NewOpenAI(opts Options) (*OpenAIEmbedder, error) {
	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	clientOpts := []openai.Option{
		openai.WithToken(opts.Token),
		openai.WithEmbeddingModel(opts.Model),
	}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, openai.WithBaseURL(opts.BaseURL))
	}
	client, err := openai.New(clientOpts...)
	if err != nil {
		return nil, eris.Wrap(err, "embed: create openai client")
	}
	e, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, eris.Wrap(err, "embed: create embedder")
	}
	return newEmbedder(e, opts), nil
}

func newEmbedder(e embeddings.Embedder, opts Options) *OpenAIEmbedder {
	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	return &OpenAIEmbedder{
		model:     e,
		modelName: opts.Model,
		dimension: opts.Dimension,
		costs:     opts.Costs,
	}
}

// Model returns the embedding model id.
func (o *OpenAIEmbedder) Model() string { return o.modelName }

// Embed embeds text truncated to MaxInputChars.
func (o *OpenAIEmbedder) Embed(ctx context.Context, text string) (Vector, error) {
	text = Truncate(text, MaxInputChars)
	if text == "" {
		return Vector{}, eris.New("embed: empty input")
	}

	start := time.Now()
	vectors, err := o.model.EmbedDocuments(ctx, []string{text})
	if err != nil {
		err = eris.Wrap(err, "embed: embed documents")
		return Vector{}, resilience.ClassifyStatus("openai", err, resilience.StatusFromText(err))
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return Vector{}, eris.New("embed: no embedding returned")
	}
	if o.dimension > 0 && len(vectors[0]) != o.dimension {
		return Vector{}, eris.Errorf("embed: dimension mismatch: got %d, want %d", len(vectors[0]), o.dimension)
	}
	if o.costs != nil {
		o.costs.AddEmbedding()
	}

	zap.L().Debug("embed: complete",
		zap.String("model", o.modelName),
		zap.Int("text_len", len(text)),
		zap.Duration("duration", time.Since(start)),
	)
	return Vector{Values: vectors[0], Model: o.modelName}, nil
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
