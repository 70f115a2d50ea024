package openai

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/poiesic/advisor/ai"
	"github.com/poiesic/advisor/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/fake"
)

// stubModel scripts llms.Model responses. Each call consumes one step.
type stubModel struct {
	mu       sync.Mutex
	steps    []stubStep
	calls    int
	lastOpts llms.CallOptions
	lastMsgs []llms.MessageContent
}

type stubStep struct {
	text   string
	chunks []string
	err    error
}

func (s *stubModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	s.mu.Lock()
	opts := llms.CallOptions{}
	for _, opt := range options {
		opt(&opts)
	}
	s.lastOpts = opts
	s.lastMsgs = messages
	step := stubStep{}
	if s.calls < len(s.steps) {
		step = s.steps[s.calls]
	}
	s.calls++
	s.mu.Unlock()

	for _, chunk := range step.chunks {
		if opts.StreamingFunc == nil {
			break
		}
		if err := opts.StreamingFunc(ctx, []byte(chunk)); err != nil {
			return nil, err
		}
	}
	if step.err != nil {
		return nil, step.err
	}
	text := step.text
	if text == "" {
		text = strings.Join(step.chunks, "")
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: text}}}, nil
}

func (s *stubModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, s, prompt, options...)
}

func (s *stubModel) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func quotaErr() error {
	return llms.NewError(llms.ErrCodeQuotaExceeded, "openai", "quota exceeded")
}

func TestGenerator_Generate(t *testing.T) {
	primary := &stubModel{steps: []stubStep{{text: `{"reply":"hi"}`}}}
	g := newGeneratorWithModels(primary, "big", nil, "", 0.3)

	text, err := g.Generate(context.Background(), ai.Request{Query: "gaming laptop"})
	require.NoError(t, err)
	assert.Equal(t, `{"reply":"hi"}`, text)
	assert.True(t, primary.lastOpts.JSONMode)
	assert.Equal(t, 0.3, primary.lastOpts.Temperature)
	assert.Equal(t, "big", g.Model())
}

func TestGenerator_DowngradesOnQuota(t *testing.T) {
	primary := &stubModel{steps: []stubStep{{err: quotaErr()}}}
	fallback := &stubModel{steps: []stubStep{{text: "ok"}, {text: "again"}}}
	g := newGeneratorWithModels(primary, "big", fallback, "small", 0.3)

	text, err := g.Generate(context.Background(), ai.Request{Query: "q"})
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.Equal(t, "small", g.Model())

	// Later calls stay on the fallback model.
	text, err = g.Generate(context.Background(), ai.Request{Query: "q"})
	require.NoError(t, err)
	assert.Equal(t, "again", text)
	assert.Equal(t, 1, primary.callCount())
	assert.Equal(t, 2, fallback.callCount())
}

func TestGenerator_DowngradesOnEmptyResponse(t *testing.T) {
	primary := &stubModel{steps: []stubStep{{text: "   "}}}
	fallback := &stubModel{steps: []stubStep{{text: "ok"}}}
	g := newGeneratorWithModels(primary, "big", fallback, "small", 0.3)

	text, err := g.Generate(context.Background(), ai.Request{Query: "q"})
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
}

func TestGenerator_QuotaWithoutFallback(t *testing.T) {
	primary := &stubModel{steps: []stubStep{{err: quotaErr()}}}
	g := newGeneratorWithModels(primary, "big", nil, "", 0.3)

	_, err := g.Generate(context.Background(), ai.Request{Query: "q"})
	assert.ErrorIs(t, err, core.ErrBackendQuota)
}

func TestGenerator_PermanentErrorNotDowngraded(t *testing.T) {
	primary := &stubModel{steps: []stubStep{{err: llms.NewError(llms.ErrCodeAuthentication, "openai", "bad key")}}}
	fallback := &stubModel{}
	g := newGeneratorWithModels(primary, "big", fallback, "small", 0.3)

	_, err := g.Generate(context.Background(), ai.Request{Query: "q"})
	assert.ErrorIs(t, err, core.ErrBackendPermanent)
	assert.Equal(t, 0, fallback.callCount())
	assert.Equal(t, "big", g.Model())
}

func TestGenerator_Stream(t *testing.T) {
	primary := &stubModel{steps: []stubStep{{chunks: []string{"Try ", "the ", "Aero."}}}}
	g := newGeneratorWithModels(primary, "big", nil, "", 0.3)

	fragments := make(chan string, 8)
	err := g.Stream(context.Background(), ai.Request{Query: "q"}, fragments)
	require.NoError(t, err)
	close(fragments)

	var got []string
	for f := range fragments {
		got = append(got, f)
	}
	assert.Equal(t, []string{"Try ", "the ", "Aero."}, got)
	assert.False(t, primary.lastOpts.JSONMode)
}

func TestGenerator_StreamQuotaBeforeFirstChunk(t *testing.T) {
	primary := &stubModel{steps: []stubStep{{err: quotaErr()}}}
	fallback := &stubModel{steps: []stubStep{{chunks: []string{"ok"}}}}
	g := newGeneratorWithModels(primary, "big", fallback, "small", 0.3)

	fragments := make(chan string, 8)
	require.NoError(t, g.Stream(context.Background(), ai.Request{Query: "q"}, fragments))
	assert.Equal(t, "ok", <-fragments)
}

func TestGenerator_StreamQuotaAfterChunkNotRetried(t *testing.T) {
	primary := &stubModel{steps: []stubStep{{chunks: []string{"partial"}, err: quotaErr()}}}
	fallback := &stubModel{}
	g := newGeneratorWithModels(primary, "big", fallback, "small", 0.3)

	fragments := make(chan string, 8)
	err := g.Stream(context.Background(), ai.Request{Query: "q"}, fragments)
	assert.ErrorIs(t, err, core.ErrBackendQuota)
	assert.Equal(t, 0, fallback.callCount())
}

func TestGenerator_StreamCanceled(t *testing.T) {
	primary := &stubModel{steps: []stubStep{{chunks: []string{"a", "b"}}}}
	g := newGeneratorWithModels(primary, "big", nil, "", 0.3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Unbuffered and never read: the send must observe cancellation.
	fragments := make(chan string)
	err := g.Stream(ctx, ai.Request{Query: "q"}, fragments)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestGenerator_WithFakeLLM(t *testing.T) {
	g := newGeneratorWithModels(fake.NewFakeLLM([]string{`{"reply":"fake"}`}), "fake", nil, "", 0)

	text, err := g.Generate(context.Background(), ai.Request{Query: "q"})
	require.NoError(t, err)
	assert.Equal(t, `{"reply":"fake"}`, text)
}

func TestFormatContext(t *testing.T) {
	items := []core.RetrievedItem{
		{
			Item:            core.Item{ID: "A1", Name: "Aero 14", CPU: "i7", GPU: "RTX 4060", RAM: "16GB", Storage: "1TB", Price: 1499.5},
			MatchedKeywords: []string{"rtx", "gaming", "i7", "16gb", "oled", "extra"},
			Knowledge: &core.Knowledge{
				Summary:   strings.Repeat("s", 200),
				Strengths: []string{"fast", "light", "bright", "quiet"},
				UseCases:  []string{"gaming"},
			},
			Explanation: "Great value",
		},
	}

	block := FormatContext(items)
	assert.Contains(t, block, "- SKU A1: Aero 14; CPU: i7; GPU: RTX 4060; RAM: 16GB; Storage: 1TB; Price: $1499.5")
	assert.Contains(t, block, "; Matched terms: rtx, gaming, i7, 16gb, oled")
	assert.NotContains(t, block, "extra")
	assert.Contains(t, block, "\n  Summary: "+strings.Repeat("s", 150)+"...")
	assert.Contains(t, block, "\n  Strengths: fast; light; bright")
	assert.NotContains(t, block, "Weaknesses")
	assert.Contains(t, block, "\n  Best for: gaming")
	assert.Contains(t, block, "\n  Additional context: Great value")
}

func TestBuildMessages(t *testing.T) {
	req := ai.Request{
		History: []core.Message{
			{Role: core.RoleUser, Content: "hello"},
			{Role: core.RoleAssistant, Content: "hi there"},
		},
		Query:   "laptop for coding",
		Context: []core.RetrievedItem{{Item: core.Item{ID: "A1", Name: "Aero"}}},
	}

	msgs := buildMessages(req, true)
	require.Len(t, msgs, 4)
	assert.Equal(t, llms.ChatMessageTypeSystem, msgs[0].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, msgs[1].Role)
	assert.Equal(t, llms.ChatMessageTypeAI, msgs[2].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, msgs[3].Role)

	final := msgs[3].Parts[0].(llms.TextContent).Text
	assert.True(t, strings.HasPrefix(final, "laptop for coding\n\nContextual product candidates:\n- SKU A1"))
	assert.True(t, strings.HasSuffix(final, structuredTrailer))

	plain := buildMessages(ai.Request{Query: "hi"}, false)
	require.Len(t, plain, 2)
	assert.Equal(t, "hi", plain[1].Parts[0].(llms.TextContent).Text)
}
