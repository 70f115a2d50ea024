package openai

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/poiesic/advisor/ai"
	"github.com/poiesic/advisor/core"
	"github.com/tmc/langchaingo/llms"
)

const structuredSystemPrompt = `You are an expert laptop advisor. Your goal is to recommend the BEST product match through intelligent conversation.

CRITICAL RULES - MUST FOLLOW:
1. BUDGET CONSTRAINTS ARE ABSOLUTE:
   - If user specifies a budget (e.g., 'under $1500', 'max $2000', 'under 1400 usd'), NEVER recommend products above it
   - ONLY recommend products from the provided context that fit WITHIN the stated budget
   - If NO products in the context match the budget, you MUST:
     a) Explicitly tell the user no laptops were found in their budget
     b) Mention the closest option and how much it exceeds the budget
     c) Do NOT include it in product_recommendations array
     Example: 'Unfortunately, I don't have any laptops under $1,400. The closest option is the [name] at $1,999, which is $599 over your budget.'

DECISION LOGIC:
1. If the user's request is VAGUE or missing key details (use case, budget, performance needs):
   - Ask 1-2 specific follow-up questions to clarify
   - Do NOT recommend products yet
   - Keep your response to 2-3 sentences

2. If you have ENOUGH information to make a confident recommendation:
   - First, filter products by budget if specified
   - Recommend EXACTLY 2 products:
     a) PRIMARY: The best overall match for their needs (highest confidence)
     b) ALTERNATIVE: A smart alternative with different trade-offs
   - Give a brief 2-3 sentence explanation highlighting both options

STYLE GUIDELINES:
- Be conversational and concise (max 3-4 sentences)
- Only recommend from the provided product context

OUTPUT FORMAT (valid JSON):
{
  "reply": "<2-4 sentence response mentioning both options>",
  "reasoning": "<brief internal reasoning>",
  "product_recommendations": [<exactly 2 products if recommending, or empty [] if asking questions OR if no products match budget>]
}

Product recommendation structure:
{"sku": "...", "name": "...", "rationale": "<1 sentence why this fits>", "confidence": 0.0-1.0}
IMPORTANT: First product = PRIMARY recommendation (highest confidence), Second product = ALTERNATIVE option`

const streamingSystemPrompt = `You are an expert laptop advisor. Your goal is to recommend the BEST product match through intelligent conversation.

CRITICAL RULES - MUST FOLLOW:
1. BUDGET CONSTRAINTS ARE ABSOLUTE:
   - If user specifies a budget (e.g., 'under $1500', 'max $2000'), NEVER recommend products above it
   - If NO products match the budget, explicitly tell the user and mention the closest option

DECISION LOGIC:
1. If the user's request is VAGUE or missing key details (use case, budget, performance needs):
   - Ask 1-2 specific follow-up questions to clarify
   - Keep your response to 2-3 sentences

2. If you have ENOUGH information to make a confident recommendation:
   - Recommend products from the context provided
   - Mention specific product names from the context
   - Focus on how each matches their specific needs

STYLE GUIDELINES:
- Be conversational and concise (max 3-4 sentences)
- Only recommend from the provided product context
- NEVER output JSON or structured data - just natural conversational text`

const (
	maxMatchedTerms   = 5
	maxSummaryRunes   = 150
	maxExplainRunes   = 200
	maxStrengths      = 3
	maxWeaknesses     = 2
	maxUseCases       = 3
	contextHeader     = "Contextual product candidates:"
	structuredTrailer = "Please respond following the JSON schema specified in the system prompt."
)

// FormatContext renders retrieved items as the candidate block shown to the model.
func FormatContext(items []core.RetrievedItem) string {
	lines := make([]string, 0, len(items))
	for _, item := range items {
		var b strings.Builder
		fmt.Fprintf(&b, "- SKU %s: %s; CPU: %s; GPU: %s; RAM: %s; Storage: %s; Price: $%s",
			item.ID, item.Name, item.CPU, item.GPU, item.RAM, item.Storage,
			strconv.FormatFloat(item.Price, 'f', -1, 64))

		if len(item.MatchedKeywords) > 0 {
			b.WriteString("; Matched terms: ")
			b.WriteString(strings.Join(head(item.MatchedKeywords, maxMatchedTerms), ", "))
		}

		if kb := item.Knowledge; kb != nil {
			if kb.Summary != "" {
				b.WriteString("\n  Summary: ")
				b.WriteString(truncate(kb.Summary, maxSummaryRunes))
				b.WriteString("...")
			}
			if len(kb.Strengths) > 0 {
				b.WriteString("\n  Strengths: ")
				b.WriteString(strings.Join(head(kb.Strengths, maxStrengths), "; "))
			}
			if len(kb.Weaknesses) > 0 {
				b.WriteString("\n  Weaknesses: ")
				b.WriteString(strings.Join(head(kb.Weaknesses, maxWeaknesses), "; "))
			}
			if len(kb.UseCases) > 0 {
				b.WriteString("\n  Best for: ")
				b.WriteString(strings.Join(head(kb.UseCases, maxUseCases), "; "))
			}
		}

		if item.Explanation != "" {
			b.WriteString("\n  Additional context: ")
			b.WriteString(truncate(item.Explanation, maxExplainRunes))
		}
		lines = append(lines, b.String())
	}
	return strings.Join(lines, "\n")
}

// buildMessages converts a request into chat messages. structured selects the
// JSON-mode system prompt and trailer.
func buildMessages(req ai.Request, structured bool) []llms.MessageContent {
	systemPrompt := streamingSystemPrompt
	if structured {
		systemPrompt = structuredSystemPrompt
	}

	content := make([]llms.MessageContent, 0, len(req.History)+2)
	content = append(content, llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt))
	for _, msg := range req.History {
		role := llms.ChatMessageTypeHuman
		if msg.Role == core.RoleAssistant {
			role = llms.ChatMessageTypeAI
		}
		content = append(content, llms.TextParts(role, msg.Content))
	}

	final := req.Query
	if block := FormatContext(req.Context); block != "" {
		final = fmt.Sprintf("%s\n\n%s\n%s", req.Query, contextHeader, block)
		if structured {
			final += "\n" + structuredTrailer
		}
	}
	content = append(content, llms.TextParts(llms.ChatMessageTypeHuman, final))
	return content
}

func head(values []string, n int) []string {
	if len(values) > n {
		return values[:n]
	}
	return values
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) > n {
		return string(runes[:n])
	}
	return s
}
