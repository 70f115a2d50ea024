package offline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/poiesic/advisor/ai"
	"github.com/poiesic/advisor/core"
)

const (
	offlineModel     = "offline"
	offlineReasoning = "Generated via offline fallback heuristics."
	offlineRationale = "High semantic similarity to the query."
	maxOfflineItems  = 3
)

// Generator implements ai.Generator with a fixed recommendation template.
type Generator struct{}

var _ ai.Generator = (*Generator)(nil)

// NewGenerator creates an offline generator.
func NewGenerator() *Generator {
	return &Generator{}
}

type offlineRecommendation struct {
	SKU       string `json:"sku"`
	Name      string `json:"name"`
	Rationale string `json:"rationale"`
}

type offlinePayload struct {
	Reply                  string                  `json:"reply"`
	Reasoning              string                  `json:"reasoning"`
	ProductRecommendations []offlineRecommendation `json:"product_recommendations"`
}

// Generate returns a structured response recommending the top context items.
func (g *Generator) Generate(ctx context.Context, req ai.Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	payload := offlinePayload{
		Reply:                  Reply(req.Context),
		Reasoning:              offlineReasoning,
		ProductRecommendations: []offlineRecommendation{},
	}
	for _, item := range topItems(req.Context) {
		rationale := item.Explanation
		if rationale == "" {
			rationale = offlineRationale
		}
		payload.ProductRecommendations = append(payload.ProductRecommendations, offlineRecommendation{
			SKU:       item.ID,
			Name:      item.Name,
			Rationale: rationale,
		})
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Stream sends the conversational reply as a single fragment.
func (g *Generator) Stream(ctx context.Context, req ai.Request, fragments chan<- string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case fragments <- Reply(req.Context):
		return nil
	}
}

// Model returns the offline model identity.
func (g *Generator) Model() string {
	return offlineModel
}

// Reply renders the offline reply text for the given context.
func Reply(items []core.RetrievedItem) string {
	lines := []string{"(Offline mode)"}
	if len(items) == 0 {
		lines = append(lines, "I could not find relevant products yet. Could you share more about your needs?")
		return strings.Join(lines, "\n")
	}

	best := items[0]
	lines = append(lines, fmt.Sprintf(
		"I recommend **%s** because it closely matches your requirements (%s, %s, %s).",
		best.Name, best.CPU, best.GPU, best.RAM))
	if len(items) > 1 {
		lines = append(lines, "You may also want to consider these alternatives:")
		for _, item := range topItems(items)[1:] {
			lines = append(lines, fmt.Sprintf("- %s (%s, %s)", item.Name, item.CPU, item.GPU))
		}
	}
	return strings.Join(lines, "\n")
}

func topItems(items []core.RetrievedItem) []core.RetrievedItem {
	if len(items) > maxOfflineItems {
		return items[:maxOfflineItems]
	}
	return items
}
