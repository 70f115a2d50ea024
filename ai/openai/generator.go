package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/poiesic/advisor/ai"
	"github.com/poiesic/advisor/core"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// Generator implements ai.Generator using OpenAI-compatible chat APIs.
//
// A Generator switches from its primary to its fallback model at most once in
// its lifetime: the first quota failure (or empty response) moves every later
// call to the fallback model.
type Generator struct {
	primary      llms.Model
	fallback     llms.Model
	primaryName  string
	fallbackName string
	temperature  float64
	downgraded   atomic.Bool
	logger       *slog.Logger
}

var _ ai.Generator = (*Generator)(nil)

// newGenerator is an internal constructor that returns the concrete type.
func newGenerator(config *ai.Config) (*Generator, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	primary, err := openai.New(
		openai.WithBaseURL(config.GenerationHost),
		openai.WithToken(config.APIKey),
		openai.WithModel(config.GenerationModel),
	)
	if err != nil {
		return nil, err
	}

	var fallback llms.Model
	if config.FallbackGenerationModel != "" && config.FallbackGenerationModel != config.GenerationModel {
		client, err := openai.New(
			openai.WithBaseURL(config.GenerationHost),
			openai.WithToken(config.APIKey),
			openai.WithModel(config.FallbackGenerationModel),
		)
		if err != nil {
			return nil, err
		}
		fallback = client
	}

	return newGeneratorWithModels(primary, config.GenerationModel, fallback, config.FallbackGenerationModel, config.Temperature), nil
}

// newGeneratorWithModels builds a Generator around existing model clients.
// fallback may be nil.
func newGeneratorWithModels(primary llms.Model, primaryName string, fallback llms.Model, fallbackName string, temperature float64) *Generator {
	if fallback == nil {
		fallbackName = ""
	}
	return &Generator{
		primary:      primary,
		fallback:     fallback,
		primaryName:  primaryName,
		fallbackName: fallbackName,
		temperature:  temperature,
		logger:       slog.Default().With("component", "openai-generator"),
	}
}

// NewGenerator creates a new generator using the provided configuration.
//
// Returns ai.Generator interface to enforce abstraction.
func NewGenerator(config *ai.Config) (ai.Generator, error) {
	return newGenerator(config)
}

// Model returns the model currently in use.
func (g *Generator) Model() string {
	_, name := g.active()
	return name
}

func (g *Generator) active() (llms.Model, string) {
	if g.downgraded.Load() {
		return g.fallback, g.fallbackName
	}
	return g.primary, g.primaryName
}

// switchFrom moves the generator to its fallback model when the failing
// model is the primary. Reports whether the caller should retry.
func (g *Generator) switchFrom(failed string, reason string) bool {
	if g.fallback == nil || failed == g.fallbackName {
		return false
	}
	if g.downgraded.CompareAndSwap(false, true) {
		g.logger.Warn("switching to fallback model", "from", g.primaryName, "to", g.fallbackName, "reason", reason)
	}
	return true
}

// Generate requests a complete structured response.
func (g *Generator) Generate(ctx context.Context, req ai.Request) (string, error) {
	content := buildMessages(req, true)

	model, name := g.active()
	text, err := g.generate(ctx, model, content)
	if err != nil {
		if ai.IsQuota(err) && g.switchFrom(name, "quota exhausted") {
			model, name = g.active()
			text, err = g.generate(ctx, model, content)
		}
		if err != nil {
			g.logger.Error("generation failed", "model", name, "err", err)
			return "", err
		}
	}

	if strings.TrimSpace(text) == "" && g.switchFrom(name, "empty response") {
		model, name = g.active()
		text, err = g.generate(ctx, model, content)
		if err != nil {
			g.logger.Error("generation failed", "model", name, "err", err)
			return "", err
		}
	}

	g.logger.Debug("generated response", "model", name, "length", len(text))
	return text, nil
}

func (g *Generator) generate(ctx context.Context, model llms.Model, content []llms.MessageContent) (string, error) {
	response, err := model.GenerateContent(ctx, content, llms.WithTemperature(g.temperature), llms.WithJSONMode())
	if err != nil {
		return "", ai.Classify(err)
	}
	if len(response.Choices) < 1 {
		return "", nil
	}
	return response.Choices[0].Content, nil
}

// Stream sends conversational response fragments to fragments. A quota failure
// before any fragment was delivered triggers the one-time model downgrade.
func (g *Generator) Stream(ctx context.Context, req ai.Request, fragments chan<- string) error {
	content := buildMessages(req, false)

	model, name := g.active()
	sent, err := g.stream(ctx, model, content, fragments)
	if err != nil && !sent && ai.IsQuota(err) && g.switchFrom(name, "quota exhausted") {
		model, name = g.active()
		_, err = g.stream(ctx, model, content, fragments)
	}
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			g.logger.Error("streaming failed", "model", name, "err", err)
		}
		return err
	}
	return nil
}

func (g *Generator) stream(ctx context.Context, model llms.Model, content []llms.MessageContent, fragments chan<- string) (bool, error) {
	var sent bool
	emit := func(ctx context.Context, chunk []byte) error {
		if len(chunk) == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fragments <- string(chunk):
			sent = true
			return nil
		}
	}

	_, err := model.GenerateContent(ctx, content, llms.WithTemperature(g.temperature), llms.WithStreamingFunc(emit))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return sent, ctxErr
		}
		return sent, ai.Classify(err)
	}
	if !sent {
		return false, fmt.Errorf("%w: empty stream", core.ErrBackendTransient)
	}
	return true, nil
}
