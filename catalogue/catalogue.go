// Package catalogue loads the product catalogue and its knowledge enrichment.
package catalogue

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/poiesic/advisor/core"
)

// Catalogue holds the loaded items in file order and the knowledge records keyed by item id.
type Catalogue struct {
	Items     []core.Item
	knowledge map[string]*core.Knowledge
	positions map[string]int
}

// New validates items and builds a Catalogue. knowledge may be nil.
func New(items []core.Item, knowledge map[string]*core.Knowledge) (*Catalogue, error) {
	if err := core.ValidateCatalogue(items); err != nil {
		return nil, err
	}
	positions := make(map[string]int, len(items))
	for i, item := range items {
		positions[item.ID] = i
	}
	if knowledge == nil {
		knowledge = map[string]*core.Knowledge{}
	}
	return &Catalogue{
		Items:     items,
		knowledge: knowledge,
		positions: positions,
	}, nil
}

// Open loads the catalogue at itemsPath and the knowledge file at knowledgePath.
// An empty knowledgePath skips enrichment.
func Open(itemsPath, knowledgePath string) (*Catalogue, error) {
	items, err := Load(itemsPath)
	if err != nil {
		return nil, err
	}
	var knowledge map[string]*core.Knowledge
	if knowledgePath != "" {
		if knowledge, err = LoadKnowledge(knowledgePath); err != nil {
			return nil, err
		}
	}
	return New(items, knowledge)
}

// Load reads a JSON array of items, preserving file order.
func Load(path string) ([]core.Item, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalogue: %w", err)
	}

	var items []core.Item
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("%w: decoding catalogue %s: %w", core.ErrInvalidItem, path, err)
	}
	if err := core.ValidateCatalogue(items); err != nil {
		return nil, err
	}
	return items, nil
}

// LoadKnowledge reads a JSON object of knowledge records keyed by item id.
// A missing file yields an empty map.
func LoadKnowledge(path string) (map[string]*core.Knowledge, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]*core.Knowledge{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading knowledge: %w", err)
	}

	var records map[string]*core.Knowledge
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decoding knowledge %s: %w", path, err)
	}
	for id, kb := range records {
		if kb == nil {
			delete(records, id)
			continue
		}
		if kb.ItemID == "" {
			kb.ItemID = id
		}
	}
	return records, nil
}

// Len returns the number of items.
func (c *Catalogue) Len() int {
	return len(c.Items)
}

// Item returns the item with the given id.
func (c *Catalogue) Item(id string) (core.Item, bool) {
	pos, ok := c.positions[id]
	if !ok {
		return core.Item{}, false
	}
	return c.Items[pos], true
}

// Knowledge returns the knowledge record for id, or nil.
func (c *Catalogue) Knowledge(id string) *core.Knowledge {
	return c.knowledge[id]
}

// KnowledgeCount returns the number of knowledge records.
func (c *Catalogue) KnowledgeCount() int {
	return len(c.knowledge)
}

// Text renders item with its knowledge record folded in.
func (c *Catalogue) Text(item core.Item) string {
	return Text(item, c.knowledge[item.ID])
}

// Text renders the text embedded for an item. kb may be nil.
func Text(item core.Item, kb *core.Knowledge) string {
	var b strings.Builder
	fmt.Fprintf(&b, "SKU: %s\nVendor: %s\nFamily: %s\nName: %s\nDescription: %s\nCPU: %s\nGPU: %s\nRAM: %s\nStorage: %s\nPrice: %s",
		item.ID, item.Vendor, item.Family, item.Name, item.Description,
		item.CPU, item.GPU, item.RAM, item.Storage,
		strconv.FormatFloat(item.Price, 'f', -1, 64))

	if kb != nil {
		b.WriteString("\n\nProduct Summary: ")
		b.WriteString(kb.Summary)
		if len(kb.Strengths) > 0 {
			b.WriteString("\nStrengths: ")
			b.WriteString(strings.Join(head(kb.Strengths, 3), ", "))
		}
		if len(kb.UseCases) > 0 {
			b.WriteString("\nBest for: ")
			b.WriteString(strings.Join(head(kb.UseCases, 3), ", "))
		}
	}
	return b.String()
}

func head(values []string, n int) []string {
	if len(values) > n {
		return values[:n]
	}
	return values
}
