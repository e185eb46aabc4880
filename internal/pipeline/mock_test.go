package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/stretchr/testify/mock"

	"github.com/KevinLaRosa/yorimichi-workers/internal/acquire"
	"github.com/KevinLaRosa/yorimichi-workers/internal/embed"
	"github.com/KevinLaRosa/yorimichi-workers/internal/llm"
	"github.com/KevinLaRosa/yorimichi-workers/internal/model"
	"github.com/KevinLaRosa/yorimichi-workers/internal/store"
)

type mockCompleter struct {
	mock.Mock
}

func (m *mockCompleter) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	args := m.Called(ctx, req)
	if v := args.Get(0); v != nil {
		return v.(*llm.Response), args.Error(1)
	}
	return nil, args.Error(1)
}

// callsMentioning counts completions whose user prompt contains s.
func (m *mockCompleter) callsMentioning(s string) int {
	n := 0
	for _, c := range m.Calls {
		if req, ok := c.Arguments.Get(1).(llm.Request); ok && strings.Contains(req.User, s) {
			n++
		}
	}
	return n
}

// stageCall matches one stage's request for the page titled title.
func stageCall(maxTokens int, title string) any {
	return mock.MatchedBy(func(r llm.Request) bool {
		return r.MaxTokens == maxTokens && strings.Contains(r.User, title)
	})
}

func textResponse(s string) *llm.Response {
	return &llm.Response{Text: s, Model: "test-model", InputTokens: 100, OutputTokens: 50}
}

type mockAcquirer struct {
	mock.Mock
}

func (m *mockAcquirer) Fetch(ctx context.Context, req acquire.Request) (*acquire.Response, error) {
	args := m.Called(ctx, req)
	if v := args.Get(0); v != nil {
		return v.(*acquire.Response), args.Error(1)
	}
	return nil, args.Error(1)
}

// pageAcquirer serves fixed bodies by id and runs hook before each fetch.
type pageAcquirer struct {
	bodies map[string]string
	hook   func(id string)
}

func (a *pageAcquirer) Fetch(_ context.Context, req acquire.Request) (*acquire.Response, error) {
	if a.hook != nil {
		a.hook(req.ID)
	}
	body, ok := a.bodies[req.ID]
	if !ok {
		return nil, &acquire.FetchError{ID: req.ID, Status: 404, Err: fmt.Errorf("not found")}
	}
	return &acquire.Response{ID: req.ID, Body: body, Status: 200}, nil
}

// vectorEmbedder returns a fixed vector for each known text.
type vectorEmbedder struct {
	vectors map[string][]float32
	err     error
}

func (e *vectorEmbedder) Model() string { return "test-embedding" }

func (e *vectorEmbedder) Embed(_ context.Context, text string) (embed.Vector, error) {
	if e.err != nil {
		return embed.Vector{}, e.err
	}
	v, ok := e.vectors[text]
	if !ok {
		return embed.Vector{}, fmt.Errorf("no vector for %q", text)
	}
	return embed.Vector{Values: v, Model: e.Model()}, nil
}

type mockSearcher struct {
	mock.Mock
}

func (m *mockSearcher) FindSimilar(ctx context.Context, emb []float32, threshold float64, limit int) ([]store.SimilarMatch, error) {
	args := m.Called(ctx, emb, threshold, limit)
	if v := args.Get(0); v != nil {
		return v.([]store.SimilarMatch), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockWriter struct {
	mock.Mock
}

func (m *mockWriter) InsertEntity(ctx context.Context, e *model.Entity, tagIDs []int64) (string, error) {
	args := m.Called(ctx, e, tagIDs)
	return args.String(0), args.Error(1)
}

// placePage renders a minimal source page with body as its main content.
func placePage(title, body string) string {
	return `<html><head><title>` + title + ` | Tokyo Cheapo</title>
<meta name="description" content="About ` + title + `"></head>
<body><nav>Home Guides</nav><h1>` + title + `</h1>
<div class="entry-content"><p>` + body + `</p></div>
<footer>Copyright</footer></body></html>`
}
