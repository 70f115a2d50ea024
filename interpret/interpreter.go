package interpret

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/poiesic/advisor/core"
)

// Stage names, in pipeline order.
const (
	StageStrict         = "strict"
	StageSalvage        = "salvage"
	StageHeuristic      = "heuristic"
	StageConversational = "conversational"
	StageRaw            = "raw"
	StageFallback       = "fallback"
	StageEmpty          = "empty"
)

// Reasoning attached by the conversational stage.
const (
	ReasoningClarification = "Asking for clarification"
	ReasoningExtracted     = "Products extracted from conversational response"
	ReasoningFallback      = "Fallback recommendations"

	mentionRationale = "Recommended in conversation"
)

// input is what every stage sees.
type input struct {
	raw        string
	trimmed    string
	candidates []core.RetrievedItem

	// structured is true when the trimmed text is a complete object,
	// optionally inside a code fence.
	structured bool

	// embedded is true when an object may be buried in surrounding prose.
	embedded bool
}

// verdict is a stage's answer. settled stops the fallback post-stage from
// adding recommendations the reply deliberately withheld.
type verdict struct {
	result  core.InterpretedResult
	settled bool
}

// stage is one named step. ok=false means no verdict; the next stage runs.
type stage struct {
	name string
	run  func(in *input) (v verdict, ok bool)
}

// Interpreter turns raw model text into an InterpretedResult. It never
// fails: the worst case is a reply with no recommendations.
// An Interpreter is immutable and safe for concurrent use.
type Interpreter struct {
	policy Policy
	stages []stage
	logger *slog.Logger
}

// Option configures an Interpreter.
type Option func(*Interpreter)

// WithPolicy replaces DefaultPolicy. Zero fields keep their defaults.
func WithPolicy(policy Policy) Option {
	return func(i *Interpreter) {
		i.policy = policy.withDefaults()
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(i *Interpreter) {
		if logger != nil {
			i.logger = logger
		}
	}
}

// New creates an Interpreter.
func New(opts ...Option) *Interpreter {
	i := &Interpreter{
		policy: DefaultPolicy(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(i)
	}
	i.logger = i.logger.With("component", "interpreter")
	i.stages = []stage{
		{name: StageStrict, run: i.strict},
		{name: StageSalvage, run: i.salvage},
		{name: StageHeuristic, run: i.heuristic},
		{name: StageConversational, run: i.conversational},
		{name: StageRaw, run: i.raw},
	}
	return i
}

// Policy returns the active policy.
func (i *Interpreter) Policy() Policy {
	return i.policy
}

// Stages returns the stage names in the order they are tried.
func (i *Interpreter) Stages() []string {
	names := make([]string, 0, len(i.stages)+1)
	for _, s := range i.stages {
		names = append(names, s.name)
	}
	return append(names, StageFallback)
}

// Interpret decodes raw against the items that were offered to the model.
func (i *Interpreter) Interpret(raw string, candidates []core.RetrievedItem) core.InterpretedResult {
	result, _ := i.InterpretWithStage(raw, candidates)
	return result
}

// InterpretWithStage is Interpret that also names the stage that produced
// the result, or StageFallback when the fallback supplied recommendations.
func (i *Interpreter) InterpretWithStage(raw string, candidates []core.RetrievedItem) (core.InterpretedResult, string) {
	in := newInput(raw, candidates)
	if in.trimmed == "" {
		return core.InterpretedResult{Recommendations: []core.Recommendation{}}, StageEmpty
	}

	var (
		v    verdict
		name string
	)
	for _, s := range i.stages {
		if got, ok := s.run(in); ok {
			v, name = got, s.name
			break
		}
	}
	v.result.Recommendations = i.constrain(v.result.Recommendations, candidates)

	if i.shouldFallback(v, candidates) {
		v.result.Recommendations = i.fallback(candidates)
		name = StageFallback
		i.logger.Warn("reply carried no recommendations, using top context items",
			"count", len(v.result.Recommendations))
	}

	i.logger.Debug("interpreted model response",
		"stage", name,
		"recommendations", len(v.result.Recommendations),
		"reply_len", len(v.result.Reply))
	return v.result, name
}

func newInput(raw string, candidates []core.RetrievedItem) *input {
	trimmed := strings.TrimSpace(raw)
	body := stripFences(trimmed)
	in := &input{
		raw:        raw,
		trimmed:    trimmed,
		structured: strings.HasPrefix(body, "{") && strings.HasSuffix(body, "}"),
		candidates: candidates,
	}
	if !in.structured {
		start := strings.Index(trimmed, "{")
		in.embedded = start >= 0 && strings.LastIndex(trimmed, "}") > start
	}
	return in
}

func (i *Interpreter) strict(in *input) (verdict, bool) {
	if !in.structured {
		return verdict{}, false
	}
	p, err := decodePayload(stripFences(in.trimmed))
	if err != nil {
		i.logger.Debug("strict decode failed", "err", err)
		return verdict{}, false
	}
	return i.fromPayload(p, in.candidates), true
}

func (i *Interpreter) salvage(in *input) (verdict, bool) {
	if !in.structured && !in.embedded {
		return verdict{}, false
	}
	start := strings.Index(in.trimmed, "{")
	end := strings.LastIndex(in.trimmed, "}")
	if start < 0 || end <= start {
		return verdict{}, false
	}
	snippet := in.trimmed[start : end+1]

	p, err := decodePayload(snippet)
	if err != nil {
		p, err = decodePayload(repair(snippet))
	}
	if err != nil {
		i.logger.Debug("salvage decode failed", "err", err)
		return verdict{}, false
	}
	return i.fromPayload(p, in.candidates), true
}

var (
	replyPattern     = regexp.MustCompile(`(?s)"reply"\s*:\s*"(?P<reply>.*?)"`)
	reasoningPattern = regexp.MustCompile(`(?s)"reasoning"\s*:\s*"(?P<reasoning>.*?)"`)
	triplePattern    = regexp.MustCompile(`(?s)"sku"\s*:\s*"(?P<sku>[^"]+)"[^}]*?"name"\s*:\s*"(?P<name>[^"]+)"[^}]*?"rationale"\s*:\s*"(?P<rationale>.*?)"`)
	unescaper        = strings.NewReplacer(`\n`, "\n", `\"`, `"`)
)

func unescape(s string) string {
	return strings.TrimSpace(unescaper.Replace(s))
}

func (i *Interpreter) heuristic(in *input) (verdict, bool) {
	if !in.structured && !in.embedded {
		return verdict{}, false
	}
	replyMatch := replyPattern.FindStringSubmatch(in.raw)
	triples := triplePattern.FindAllStringSubmatch(in.raw, -1)
	if replyMatch == nil && len(triples) == 0 {
		return verdict{}, false
	}

	var result core.InterpretedResult
	if replyMatch != nil {
		result.Reply = unescape(replyMatch[1])
	}
	if m := reasoningPattern.FindStringSubmatch(in.raw); m != nil {
		r := unescape(m[1])
		result.Reasoning = &r
	}
	for _, m := range triples {
		id := strings.TrimSpace(m[1])
		if id == "" {
			continue
		}
		result.Recommendations = append(result.Recommendations, core.Recommendation{
			ItemID:    id,
			Name:      resolveName(strings.TrimSpace(m[2]), id, in.candidates),
			Rationale: unescape(m[3]),
		})
	}
	return verdict{result: result}, true
}

// conversational classifies prose, including prose whose braces held no
// decodable payload.
func (i *Interpreter) conversational(in *input) (verdict, bool) {
	if in.structured {
		return verdict{}, false
	}
	reply := in.trimmed

	if IsQuestion(reply) {
		reasoning := ReasoningClarification
		return verdict{
			result:  core.InterpretedResult{Reply: reply, Reasoning: &reasoning},
			settled: true,
		}, true
	}
	if !i.policy.Recommends(reply) {
		return verdict{result: core.InterpretedResult{Reply: reply}, settled: true}, true
	}

	mentioned := i.mentions(reply, in.candidates)
	if len(mentioned) == 0 {
		// Recommending without naming anything: leave it to the fallback.
		reasoning := ReasoningFallback
		return verdict{result: core.InterpretedResult{Reply: reply, Reasoning: &reasoning}}, true
	}
	reasoning := ReasoningExtracted
	return verdict{
		result:  core.InterpretedResult{Reply: reply, Reasoning: &reasoning, Recommendations: mentioned},
		settled: true,
	}, true
}

// raw is the last resort for structured-looking text nothing could decode.
func (i *Interpreter) raw(in *input) (verdict, bool) {
	return verdict{result: core.InterpretedResult{Reply: in.trimmed}}, true
}

// mentions finds context items named in text, in context order, up to
// MaxMentions. A name matches in full, by its first two significant tokens,
// or by its only significant token.
func (i *Interpreter) mentions(text string, candidates []core.RetrievedItem) []core.Recommendation {
	lower := strings.ToLower(text)
	var found []core.Recommendation
	for _, item := range candidates {
		if len(found) >= i.policy.MaxMentions {
			break
		}
		name := strings.ToLower(item.Name)
		if name == "" {
			continue
		}
		parts := i.significant(name)

		matched := strings.Contains(lower, name)
		if !matched && len(parts) >= 2 {
			matched = strings.Contains(lower, parts[0]) && strings.Contains(lower, parts[1])
		}
		if !matched && len(parts) == 1 {
			matched = strings.Contains(lower, parts[0])
		}
		if matched {
			found = append(found, core.Recommendation{
				ItemID:    item.ID,
				Name:      item.Name,
				Rationale: mentionRationale,
			})
		}
	}
	return found
}

func (i *Interpreter) significant(name string) []string {
	var parts []string
	for _, part := range strings.Fields(name) {
		if len(part) <= 3 || containsWord(i.policy.NameStopWords, part) {
			continue
		}
		parts = append(parts, part)
	}
	return parts
}

func containsWord(words []string, w string) bool {
	for _, word := range words {
		if strings.EqualFold(word, w) {
			return true
		}
	}
	return false
}

func (i *Interpreter) fromPayload(p *payload, candidates []core.RetrievedItem) verdict {
	recs := make([]core.Recommendation, 0, len(p.recommendations))
	for _, rec := range p.recommendations {
		rec.Name = resolveName(rec.Name, rec.ItemID, candidates)
		recs = append(recs, rec)
	}
	return verdict{result: core.InterpretedResult{
		Reply:           p.reply,
		Reasoning:       p.reasoning,
		Recommendations: recs,
	}}
}

// resolveName prefers the model's name, then the context item's, then the id.
func resolveName(name, id string, candidates []core.RetrievedItem) string {
	if name != "" {
		return name
	}
	for _, item := range candidates {
		if item.ID == id && item.Name != "" {
			return item.Name
		}
	}
	return id
}

// constrain drops recommendations for items outside context and repeats,
// so the result never exceeds the context size.
func (i *Interpreter) constrain(recs []core.Recommendation, candidates []core.RetrievedItem) []core.Recommendation {
	known := make(map[string]struct{}, len(candidates))
	for _, item := range candidates {
		known[item.ID] = struct{}{}
	}
	seen := make(map[string]struct{}, len(recs))
	out := make([]core.Recommendation, 0, len(recs))
	for _, rec := range recs {
		if _, ok := known[rec.ItemID]; !ok {
			i.logger.Warn("dropping recommendation outside retrieved context", "id", rec.ItemID)
			continue
		}
		if _, dup := seen[rec.ItemID]; dup {
			continue
		}
		seen[rec.ItemID] = struct{}{}
		out = append(out, rec)
	}
	return out
}

func (i *Interpreter) shouldFallback(v verdict, candidates []core.RetrievedItem) bool {
	reply := v.result.Reply
	return !v.settled &&
		len(v.result.Recommendations) == 0 &&
		len(candidates) > 0 &&
		reply != "" &&
		!IsQuestion(reply) &&
		!i.policy.Denies(reply)
}

func (i *Interpreter) fallback(candidates []core.RetrievedItem) []core.Recommendation {
	n := min(i.policy.FallbackCount, len(candidates))
	recs := make([]core.Recommendation, 0, n)
	for _, item := range candidates[:n] {
		rationale := item.Explanation
		if rationale == "" {
			rationale = i.policy.FallbackRationale
		}
		recs = append(recs, core.Recommendation{
			ItemID:    item.ID,
			Name:      item.Name,
			Rationale: rationale,
		})
	}
	return recs
}
