// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/poiesic/advisor/ai"
	"github.com/poiesic/advisor/core"
	"github.com/poiesic/advisor/search"
	"github.com/poiesic/advisor/storage"
)

// ApologyReply is the reply sent when a turn fails after input validation.
const ApologyReply = "I ran into an issue finalising that recommendation. Please try again."

const (
	defaultMaxHistoryMessages = 6
	defaultStreamBuffer       = 16
)

// Searcher ranks catalogue items. *search.Ranker satisfies it.
type Searcher interface {
	Search(ctx context.Context, query string, constraints search.Constraints, topK int) (*search.Result, error)
}

// Interpreter decodes model text. *interpret.Interpreter satisfies it.
type Interpreter interface {
	Interpret(raw string, candidates []core.RetrievedItem) core.InterpretedResult
}

// Turn is one user message and its preferences.
type Turn struct {
	SessionID   string
	Message     string
	Preferences map[string]any
}

// Metadata describes how a turn was served.
type Metadata struct {
	RetrievalLatency  time.Duration  `json:"retrieval_latency"`
	GenerationLatency time.Duration  `json:"generation_latency"`
	TopK              int            `json:"top_k"`
	AppliedFilters    map[string]any `json:"applied_filters"`
	Model             string         `json:"model,omitempty"`
}

// Response is the final result of a turn.
type Response struct {
	Reply     string               `json:"reply"`
	Reasoning *string              `json:"reasoning,omitempty"`
	Products  []core.RetrievedItem `json:"products"`
	Metadata  Metadata             `json:"metadata"`
}

// Orchestrator coordinates retrieval, generation and interpretation.
// It is safe for concurrent use.
type Orchestrator struct {
	searcher     Searcher
	interpreter  Interpreter
	generator    ai.Generator
	history      storage.HistoryRepository
	knowledge    KnowledgeSource
	topK         int
	maxHistory   int
	streamBuffer int
	logger       *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator) error

// WithHistory stores and replays conversation messages per session.
// Without it every turn is independent.
func WithHistory(repo storage.HistoryRepository) Option {
	return func(o *Orchestrator) error {
		o.history = repo
		return nil
	}
}

// WithKnowledge attaches enrichment records to context and result items.
func WithKnowledge(source KnowledgeSource) Option {
	return func(o *Orchestrator) error {
		o.knowledge = source
		return nil
	}
}

// WithTopK sets the default number of retrieved items.
// Default is search.DefaultTopK.
func WithTopK(k int) Option {
	return func(o *Orchestrator) error {
		if k <= 0 {
			return fmt.Errorf("%w: topK must be positive, got %d", core.ErrInput, k)
		}
		o.topK = k
		return nil
	}
}

// WithMaxHistoryMessages sets how many exchanges are replayed to the model.
// Up to twice this many messages are sent, including the current one.
// Default is 6.
func WithMaxHistoryMessages(n int) Option {
	return func(o *Orchestrator) error {
		if n < 0 {
			return fmt.Errorf("%w: max history messages cannot be negative", core.ErrInput)
		}
		o.maxHistory = n
		return nil
	}
}

// WithStreamBuffer sets the capacity of the fragment and event channels.
// Default is 16.
func WithStreamBuffer(size int) Option {
	return func(o *Orchestrator) error {
		if size < 1 {
			return fmt.Errorf("%w: stream buffer must be positive, got %d", core.ErrInput, size)
		}
		o.streamBuffer = size
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) error {
		if logger == nil {
			logger = slog.Default()
		}
		o.logger = logger
		return nil
	}
}

// New creates an Orchestrator.
func New(searcher Searcher, interpreter Interpreter, generator ai.Generator, opts ...Option) (*Orchestrator, error) {
	if searcher == nil {
		return nil, ErrSearcherRequired
	}
	if interpreter == nil {
		return nil, ErrInterpreterRequired
	}
	if generator == nil {
		return nil, ErrGeneratorRequired
	}

	o := &Orchestrator{
		searcher:     searcher,
		interpreter:  interpreter,
		generator:    generator,
		topK:         search.DefaultTopK,
		maxHistory:   defaultMaxHistoryMessages,
		streamBuffer: defaultStreamBuffer,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	o.logger = o.logger.With("component", "orchestrator")
	return o, nil
}

// Constraints converts preferences into search constraints, adding a price
// ceiling found in query when the preferences have no price_max key at all.
// A blank price_max still suppresses extraction.
func Constraints(query string, prefs map[string]any) (search.Constraints, error) {
	constraints, err := search.ParsePreferences(prefs)
	if err != nil {
		return search.Constraints{}, err
	}
	_, explicit := prefs[search.PrefPriceMax]
	if !explicit && !constraints.HasCeiling() {
		if ceiling, ok := ExtractBudget(query); ok {
			if constraints.PriceMin != nil && *constraints.PriceMin > ceiling {
				return search.Constraints{}, fmt.Errorf("%w: price_min %.2f exceeds budget %.2f in query",
					core.ErrInput, *constraints.PriceMin, ceiling)
			}
			constraints = constraints.WithCeiling(ceiling)
		}
	}
	return constraints, nil
}

// Search retrieves items for query under prefs. topK <= 0 uses the
// configured default.
func (o *Orchestrator) Search(ctx context.Context, query string, prefs map[string]any, topK int) (*search.Result, error) {
	constraints, err := Constraints(query, prefs)
	if err != nil {
		return nil, err
	}
	if topK <= 0 {
		topK = o.topK
	}
	return o.searcher.Search(ctx, query, constraints, topK)
}

// Interpret decodes raw model text against candidates.
func (o *Orchestrator) Interpret(raw string, candidates []core.RetrievedItem) core.InterpretedResult {
	return o.interpreter.Interpret(raw, candidates)
}

// turnState carries one turn between its phases.
type turnState struct {
	turn      Turn
	request   ai.Request
	retrieved []core.RetrievedItem
	metadata  Metadata
}

// validate rejects bad input before any work is done.
func validate(turn Turn) (search.Constraints, error) {
	if strings.TrimSpace(turn.Message) == "" {
		return search.Constraints{}, fmt.Errorf("%w: message cannot be empty", core.ErrInput)
	}
	return Constraints(turn.Message, turn.Preferences)
}

// prepare records the user message, loads history and retrieves context.
func (o *Orchestrator) prepare(ctx context.Context, turn Turn, constraints search.Constraints) (*turnState, error) {
	history, err := o.loadHistory(ctx, turn.SessionID)
	if err != nil {
		return nil, err
	}
	if err := o.appendMessage(ctx, turn.SessionID, core.RoleUser, turn.Message); err != nil {
		return nil, err
	}

	result, err := o.searcher.Search(ctx, turn.Message, constraints, o.topK)
	if err != nil {
		return nil, fmt.Errorf("retrieval: %w", err)
	}
	retrieved := enrich(result.Items, o.knowledge)

	return &turnState{
		turn: turn,
		request: ai.Request{
			History: history,
			Query:   turn.Message,
			Context: retrieved,
		},
		retrieved: retrieved,
		metadata: Metadata{
			RetrievalLatency: result.Latency,
			TopK:             o.topK,
			AppliedFilters:   result.AppliedFilters,
			Model:            o.generator.Model(),
		},
	}, nil
}

// finish interprets text, merges it with the retrieved items and records
// the assistant reply.
func (o *Orchestrator) finish(ctx context.Context, st *turnState, text string) *Response {
	interpreted := o.interpreter.Interpret(text, st.retrieved)
	products := Merge(st.retrieved, interpreted, o.logger)

	if err := o.appendMessage(ctx, st.turn.SessionID, core.RoleAssistant, interpreted.Reply); err != nil {
		o.logger.Warn("failed to record assistant reply", "session", st.turn.SessionID, "err", err)
	}

	return &Response{
		Reply:     interpreted.Reply,
		Reasoning: interpreted.Reasoning,
		Products:  products,
		Metadata:  st.metadata,
	}
}

// Respond runs one turn as a single request.
func (o *Orchestrator) Respond(ctx context.Context, turn Turn) (*Response, error) {
	constraints, err := validate(turn)
	if err != nil {
		return nil, err
	}

	st, err := o.prepare(ctx, turn, constraints)
	if err != nil {
		return o.degrade(ctx, turn, Metadata{TopK: o.topK}, err)
	}

	start := time.Now()
	text, err := o.generator.Generate(ctx, st.request)
	st.metadata.GenerationLatency = time.Since(start)
	st.metadata.Model = o.generator.Model()
	if err != nil {
		return o.degrade(ctx, turn, st.metadata, fmt.Errorf("generation: %w", err))
	}

	resp := o.finish(ctx, st, text)
	o.logger.Info("turn complete",
		"session", turn.SessionID,
		"products", len(resp.Products),
		"retrieval", st.metadata.RetrievalLatency,
		"generation", st.metadata.GenerationLatency)
	return resp, nil
}

// degrade turns a failure into the apologetic reply. Cancellation is
// returned as is; nobody is waiting for a reply.
func (o *Orchestrator) degrade(ctx context.Context, turn Turn, metadata Metadata, err error) (*Response, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	o.logger.Error("turn failed", "session", turn.SessionID, "err", err)
	return &Response{
		Reply:    ApologyReply,
		Products: []core.RetrievedItem{},
		Metadata: metadata,
	}, nil
}

// loadHistory returns earlier messages, leaving room for the current one.
func (o *Orchestrator) loadHistory(ctx context.Context, sessionID string) ([]core.Message, error) {
	if o.history == nil || sessionID == "" || o.maxHistory == 0 {
		return nil, nil
	}
	msgs, err := o.history.RecentMessages(ctx, sessionID, o.maxHistory*2-1)
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}
	history := make([]core.Message, len(msgs))
	for i, m := range msgs {
		history[i] = *m
	}
	return history, nil
}

func (o *Orchestrator) appendMessage(ctx context.Context, sessionID string, role core.Role, content string) error {
	if o.history == nil || sessionID == "" {
		return nil
	}
	_, err := o.history.AppendMessages(ctx, &core.Message{
		SessionID: sessionID,
		Role:      role,
		Content:   content,
	})
	if err != nil {
		return fmt.Errorf("recording %s message: %w", role, err)
	}
	return nil
}
