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

package core

import (
	"encoding/json"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// Digest returns a BLAKE2b digest of text with the requested size in bytes (1-64).
func Digest(text string, size int) []byte {
	h, err := blake2b.New(size, nil)
	if err != nil {
		h, _ = blake2b.New(64, nil)
	}
	h.Write([]byte(text))
	return h.Sum(nil)
}

// Item is a single catalogue entry. Items are loaded once and never mutated.
type Item struct {
	ID          string  `json:"sku" yaml:"sku"`
	Vendor      string  `json:"vendor" yaml:"vendor"`
	Family      string  `json:"family" yaml:"family"`
	Name        string  `json:"name" yaml:"name"`
	Description string  `json:"description" yaml:"description"`
	CPU         string  `json:"cpu" yaml:"cpu"`
	GPU         string  `json:"gpu" yaml:"gpu"`
	RAM         string  `json:"ram" yaml:"ram"`
	Storage     string  `json:"storage" yaml:"storage"`
	Price       float64 `json:"price" yaml:"price"`
	ImageURL    string  `json:"image_url,omitempty" yaml:"image_url,omitempty"`
}

// UnmarshalJSON accepts "sku" or "id" for the identifier and either a number or a
// formatted price string such as "$1,299.00".
func (i *Item) UnmarshalJSON(data []byte) error {
	var raw struct {
		SKU         string          `json:"sku"`
		ID          string          `json:"id"`
		Vendor      string          `json:"vendor"`
		Family      string          `json:"family"`
		Name        string          `json:"name"`
		Description string          `json:"description"`
		CPU         string          `json:"cpu"`
		GPU         string          `json:"gpu"`
		RAM         string          `json:"ram"`
		Storage     string          `json:"storage"`
		Price       json.RawMessage `json:"price"`
		ImageURL    string          `json:"image_url"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	price, err := ParsePriceJSON(raw.Price)
	if err != nil {
		return err
	}

	*i = Item{
		ID:          raw.SKU,
		Vendor:      raw.Vendor,
		Family:      raw.Family,
		Name:        raw.Name,
		Description: raw.Description,
		CPU:         raw.CPU,
		GPU:         raw.GPU,
		RAM:         raw.RAM,
		Storage:     raw.Storage,
		Price:       price,
		ImageURL:    raw.ImageURL,
	}
	if i.ID == "" {
		i.ID = raw.ID
	}
	return nil
}

// Knowledge is the enrichment record attached to an item.
type Knowledge struct {
	ItemID      string   `json:"sku"`
	Summary     string   `json:"summary"`
	Strengths   []string `json:"strengths"`
	Weaknesses  []string `json:"weaknesses"`
	UseCases    []string `json:"use_cases"`
	LastUpdated string   `json:"last_updated,omitempty"`
}

// RetrievedItem is a catalogue item scored for one query.
type RetrievedItem struct {
	Item
	Score           float32    `json:"similarity"`
	MatchedKeywords []string   `json:"matched_keywords,omitempty"`
	Explanation     string     `json:"explanation,omitempty"`
	Knowledge       *Knowledge `json:"knowledge,omitempty"`
}

// Recommendation is one item the model recommended.
type Recommendation struct {
	ItemID     string   `json:"sku"`
	Name       string   `json:"name"`
	Rationale  string   `json:"rationale"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// InterpretedResult is the structured form of one model turn.
type InterpretedResult struct {
	Reply           string           `json:"reply"`
	Reasoning       *string          `json:"reasoning,omitempty"`
	Recommendations []Recommendation `json:"recommendations"`
}

// Role identifies the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry in a conversation.
type Message struct {
	ID        string
	SessionID string
	Role      Role
	Content   string
	Timestamp time.Time
}
