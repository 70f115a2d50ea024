package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/poiesic/advisor/ai"
	"github.com/poiesic/advisor/ai/mock"
	"github.com/poiesic/advisor/core"
	"github.com/poiesic/advisor/interpret"
	"github.com/poiesic/advisor/search"
	"github.com/poiesic/advisor/storage"
	"github.com/poiesic/advisor/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubSearcher returns fixed items filtered by the constraint gate and
// records what it was asked.
type stubSearcher struct {
	mu          sync.Mutex
	items       []core.RetrievedItem
	err         error
	constraints search.Constraints
	topK        int
}

func (s *stubSearcher) Search(_ context.Context, _ string, c search.Constraints, topK int) (*search.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.constraints = c
	s.topK = topK
	if s.err != nil {
		return nil, s.err
	}
	var out []core.RetrievedItem
	for _, item := range s.items {
		if c.Allows(item.Item) {
			out = append(out, item)
		}
	}
	return &search.Result{Items: out, Latency: time.Millisecond, AppliedFilters: c.Applied()}, nil
}

type knowledgeMap map[string]*core.Knowledge

func (k knowledgeMap) Knowledge(id string) *core.Knowledge { return k[id] }

func retrieved() []core.RetrievedItem {
	return []core.RetrievedItem{
		{Item: core.Item{ID: "A", Name: "Alpha Office Pro", Price: 999}, Score: 0.9},
		{Item: core.Item{ID: "B", Name: "Bravo Gaming Laptop", Price: 1499}, Score: 0.8},
		{Item: core.Item{ID: "C", Name: "Zeta", Price: 1999}, Score: 0.7},
	}
}

func newOrchestrator(t *testing.T, searcher Searcher, gen ai.Generator, opts ...Option) *Orchestrator {
	t.Helper()
	o, err := New(searcher, interpret.New(), gen, opts...)
	require.NoError(t, err)
	return o
}

func newHistory(t *testing.T) storage.HistoryRepository {
	t.Helper()
	backend, err := badger.OpenBackend("", true)
	require.NoError(t, err)
	repo, err := badger.NewHistoryRepository(backend)
	require.NoError(t, err)
	t.Cleanup(func() {
		repo.Close()
		backend.Close()
	})
	return repo
}

func TestNew_Validation(t *testing.T) {
	gen := mock.NewMockGenerator("")
	interp := interpret.New()
	searcher := &stubSearcher{}

	t.Run("nil searcher", func(t *testing.T) {
		_, err := New(nil, interp, gen)
		assert.ErrorIs(t, err, ErrSearcherRequired)
	})
	t.Run("nil interpreter", func(t *testing.T) {
		_, err := New(searcher, nil, gen)
		assert.ErrorIs(t, err, ErrInterpreterRequired)
	})
	t.Run("nil generator", func(t *testing.T) {
		_, err := New(searcher, interp, nil)
		assert.ErrorIs(t, err, ErrGeneratorRequired)
	})
	t.Run("bad options", func(t *testing.T) {
		_, err := New(searcher, interp, gen, WithTopK(0))
		assert.ErrorIs(t, err, core.ErrInput)
		_, err = New(searcher, interp, gen, WithStreamBuffer(0))
		assert.ErrorIs(t, err, core.ErrInput)
		_, err = New(searcher, interp, gen, WithMaxHistoryMessages(-1))
		assert.ErrorIs(t, err, core.ErrInput)
	})
}

func TestConstraints_BudgetFromQuery(t *testing.T) {
	c, err := Constraints("gaming laptop under $1500", nil)
	require.NoError(t, err)
	require.True(t, c.HasCeiling())
	assert.Equal(t, 1500.0, *c.PriceMax)
	assert.Equal(t, 0.0, *c.PriceMin)

	c, err = Constraints("gaming laptop under $1500", map[string]any{"price_max": 2000})
	require.NoError(t, err)
	assert.Equal(t, 2000.0, *c.PriceMax, "explicit ceiling wins")

	c, err = Constraints("a light laptop", map[string]any{"vendor": "Acme"})
	require.NoError(t, err)
	assert.False(t, c.HasCeiling())

	_, err = Constraints("under $500", map[string]any{"price_min": 800})
	assert.ErrorIs(t, err, core.ErrInput)
}

func TestConstraints_PresentCeilingKeySkipsBudget(t *testing.T) {
	for _, value := range []any{"  ", nil} {
		c, err := Constraints("gaming laptop under $1500", map[string]any{"price_max": value})
		require.NoError(t, err)
		assert.False(t, c.HasCeiling(), "price_max=%v", value)
	}
}

func TestSearch_ExcludesOverBudget(t *testing.T) {
	searcher := &stubSearcher{items: retrieved()}
	o := newOrchestrator(t, searcher, mock.NewMockGenerator(""), WithTopK(3))

	result, err := o.Search(context.Background(), "gaming laptop under $1500", nil, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, searcher.topK)
	for _, item := range result.Items {
		assert.Contains(t, []string{"A", "B"}, item.ID)
	}
	assert.Contains(t, result.AppliedFilters, search.FilterPriceRange)
}

func TestSearch_MalformedPreferences(t *testing.T) {
	o := newOrchestrator(t, &stubSearcher{items: retrieved()}, mock.NewMockGenerator(""))
	_, err := o.Search(context.Background(), "laptop", map[string]any{"price_max": "lots"}, 5)
	assert.ErrorIs(t, err, core.ErrInput)
}

func TestRespond_MergesRecommendations(t *testing.T) {
	gen := mock.NewMockGenerator(`{"reply":"Take the Bravo.","reasoning":"gpu","product_recommendations":[
		{"sku":"B","rationale":"Fast GPU"},{"sku":"C","rationale":"over budget"},{"sku":"GHOST"}]}`)
	kb := knowledgeMap{"B": {ItemID: "B", Summary: "A capable gaming machine"}}
	o := newOrchestrator(t, &stubSearcher{items: retrieved()}, gen, WithKnowledge(kb))

	resp, err := o.Respond(context.Background(), Turn{Message: "gaming laptop under $1500"})
	require.NoError(t, err)
	assert.Equal(t, "Take the Bravo.", resp.Reply)
	require.NotNil(t, resp.Reasoning)

	require.Len(t, resp.Products, 1, "C was never retrieved and GHOST is unknown")
	assert.Equal(t, "B", resp.Products[0].ID)
	assert.Equal(t, "Fast GPU", resp.Products[0].Explanation)
	require.NotNil(t, resp.Products[0].Knowledge)
	assert.Equal(t, "A capable gaming machine", resp.Products[0].Knowledge.Summary)

	req := gen.LastRequest()
	require.NotNil(t, req)
	assert.Equal(t, "gaming laptop under $1500", req.Query)
	assert.Len(t, req.Context, 2)
	assert.Equal(t, "mock", resp.Metadata.Model)
	assert.Contains(t, resp.Metadata.AppliedFilters, search.FilterPriceRange)
	assert.Equal(t, time.Millisecond, resp.Metadata.RetrievalLatency)
}

func TestRespond_ClarifyingQuestionShowsNoProducts(t *testing.T) {
	o := newOrchestrator(t, &stubSearcher{items: retrieved()}, mock.NewMockGenerator("What's your budget?"))
	resp, err := o.Respond(context.Background(), Turn{Message: "I need a laptop"})
	require.NoError(t, err)
	assert.Equal(t, "What's your budget?", resp.Reply)
	assert.Empty(t, resp.Products)
	assert.NotNil(t, resp.Products)
}

func TestRespond_EmptyMessage(t *testing.T) {
	gen := mock.NewMockGenerator("")
	o := newOrchestrator(t, &stubSearcher{items: retrieved()}, gen)
	_, err := o.Respond(context.Background(), Turn{Message: "  "})
	assert.ErrorIs(t, err, core.ErrInput)
	assert.Equal(t, 0, gen.CallCount())
}

func TestRespond_FailuresDegrade(t *testing.T) {
	t.Run("retrieval", func(t *testing.T) {
		o := newOrchestrator(t, &stubSearcher{err: core.ErrBackendExhausted}, mock.NewMockGenerator(""))
		resp, err := o.Respond(context.Background(), Turn{Message: "laptop"})
		require.NoError(t, err)
		assert.Equal(t, ApologyReply, resp.Reply)
		assert.Empty(t, resp.Products)
	})

	t.Run("generation", func(t *testing.T) {
		gen := mock.NewMockGenerator("")
		gen.GenerateFunc = func(context.Context, ai.Request) (string, error) {
			return "", core.ErrBackendPermanent
		}
		o := newOrchestrator(t, &stubSearcher{items: retrieved()}, gen)
		resp, err := o.Respond(context.Background(), Turn{Message: "laptop"})
		require.NoError(t, err)
		assert.Equal(t, ApologyReply, resp.Reply)
		assert.Empty(t, resp.Products)
	})

	t.Run("canceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		gen := mock.NewMockGenerator("")
		gen.GenerateFunc = func(ctx context.Context, _ ai.Request) (string, error) {
			cancel()
			return "", ctx.Err()
		}
		o := newOrchestrator(t, &stubSearcher{items: retrieved()}, gen)
		_, err := o.Respond(ctx, Turn{Message: "laptop"})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestRespond_History(t *testing.T) {
	history := newHistory(t)
	gen := mock.NewMockGenerator(`{"reply":"Noted.","product_recommendations":[]}`)
	o := newOrchestrator(t, &stubSearcher{items: retrieved()}, gen,
		WithHistory(history), WithMaxHistoryMessages(1))
	ctx := context.Background()

	_, err := o.Respond(ctx, Turn{SessionID: "s1", Message: "first"})
	require.NoError(t, err)
	assert.Empty(t, gen.LastRequest().History)

	_, err = o.Respond(ctx, Turn{SessionID: "s1", Message: "second"})
	require.NoError(t, err)
	// One exchange allowed: only the previous assistant reply fits beside the current message.
	prior := gen.LastRequest().History
	require.Len(t, prior, 1)
	assert.Equal(t, core.RoleAssistant, prior[0].Role)
	assert.Equal(t, "Noted.", prior[0].Content)

	msgs, err := history.RecentMessages(ctx, "s1", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	assert.Equal(t, "first", msgs[0].Content)
	assert.Equal(t, core.RoleUser, msgs[2].Role)
	assert.Equal(t, "second", msgs[2].Content)

	_, err = o.Respond(ctx, Turn{SessionID: "s2", Message: "other"})
	require.NoError(t, err)
	assert.Empty(t, gen.LastRequest().History)
}

func TestMerge(t *testing.T) {
	items := retrieved()

	t.Run("no recommendations", func(t *testing.T) {
		merged := Merge(items, core.InterpretedResult{Reply: "hi"}, nil)
		assert.Empty(t, merged)
		assert.NotNil(t, merged)
	})

	t.Run("recommendation order and explanation", func(t *testing.T) {
		result := core.InterpretedResult{Recommendations: []core.Recommendation{
			{ItemID: "C", Rationale: "light"},
			{ItemID: "MISSING"},
			{ItemID: "A", Rationale: "cheap"},
		}}
		merged := Merge(items, result, nil)
		require.Len(t, merged, 2)
		assert.Equal(t, "C", merged[0].ID)
		assert.Equal(t, "light", merged[0].Explanation)
		assert.Equal(t, "A", merged[1].ID)
		assert.Empty(t, items[0].Explanation, "input items are not modified")
	})
}

func TestExtractBudget(t *testing.T) {
	tests := []struct {
		text string
		want float64
		ok   bool
	}{
		{"gaming laptop under $1500", 1500, true},
		{"max 2,000 please", 2000, true},
		{"below 1400 usd", 1400, true},
		{"Maximum $1,299.99", 1299.99, true},
		{"up to 900 dollars", 900, true},
		{"$1200 or less", 1200, true},
		{"1800 max", 1800, true},
		{"a laptop with 16gb ram", 0, false},
		{"under $0", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, ok := ExtractBudget(tt.text)
			assert.Equal(t, tt.ok, ok)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestRespond_RetrievalFailureSkipsGeneration(t *testing.T) {
	gen := mock.NewMockGenerator("")
	o := newOrchestrator(t, &stubSearcher{err: errors.New("boom")}, gen)
	resp, err := o.Respond(context.Background(), Turn{Message: "laptop"})
	require.NoError(t, err)
	assert.Equal(t, ApologyReply, resp.Reply)
	assert.Equal(t, 0, gen.CallCount())
	assert.Equal(t, time.Duration(0), resp.Metadata.GenerationLatency)
}
