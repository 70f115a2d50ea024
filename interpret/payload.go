package interpret

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/poiesic/advisor/core"
)

// payload is the decoded form of a structured model response. Field names
// and value types vary between models, so each field is read leniently.
type payload struct {
	reply           string
	reasoning       *string
	recommendations []core.Recommendation
}

// decodePayload decodes a JSON object into a payload. Errors wrap core.ErrDecode.
func decodePayload(text string) (*payload, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(escapeControlChars(text)), &fields); err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrDecode, err)
	}
	if fields == nil {
		return nil, fmt.Errorf("%w: not an object", core.ErrDecode)
	}

	p := &payload{reply: strings.TrimSpace(stringField(fields["reply"]))}
	if r := firstString(fields, "reasoning", "analysis"); r != "" {
		p.reasoning = &r
	}

	for _, raw := range firstList(fields, "product_recommendations", "recommendations") {
		var item map[string]json.RawMessage
		if err := json.Unmarshal(raw, &item); err != nil || item == nil {
			continue
		}
		id := strings.TrimSpace(firstString(item, "sku", "id"))
		if id == "" {
			continue
		}
		p.recommendations = append(p.recommendations, core.Recommendation{
			ItemID:     id,
			Name:       strings.TrimSpace(stringField(item["name"])),
			Rationale:  strings.TrimSpace(firstString(item, "rationale", "reason")),
			Confidence: confidenceField(item["confidence"]),
		})
	}
	return p, nil
}

// stringField reads a string, number or bool as text. Anything else is empty.
func stringField(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return s
	case '{', '[', 'n':
		return ""
	default:
		return string(raw)
	}
}

// firstString returns the first non-empty string among keys.
func firstString(fields map[string]json.RawMessage, keys ...string) string {
	for _, key := range keys {
		if s := stringField(fields[key]); s != "" {
			return s
		}
	}
	return ""
}

// firstList returns the first non-empty array among keys.
func firstList(fields map[string]json.RawMessage, keys ...string) []json.RawMessage {
	for _, key := range keys {
		var list []json.RawMessage
		if err := json.Unmarshal(fields[key], &list); err == nil && len(list) > 0 {
			return list
		}
	}
	return nil
}

// confidenceField accepts a number or numeric string in [0, 1].
func confidenceField(raw json.RawMessage) *float64 {
	s := strings.TrimSpace(stringField(raw))
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 || v > 1 {
		return nil
	}
	return &v
}
