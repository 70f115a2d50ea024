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
	"fmt"
	"strings"
)

func ValidateItem(item *Item) error {
	if item == nil {
		return fmt.Errorf("%w: item is nil", ErrInvalidItem)
	}

	if strings.TrimSpace(item.ID) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidItem, ErrEmptyItemID)
	}

	if item.Price < 0 {
		return fmt.Errorf("%w: %s: %w", ErrInvalidItem, item.ID, ErrNegativePrice)
	}

	return nil
}

// ValidateCatalogue validates every item and rejects duplicate identifiers.
func ValidateCatalogue(items []Item) error {
	seen := make(map[string]struct{}, len(items))
	for i := range items {
		if err := ValidateItem(&items[i]); err != nil {
			return err
		}
		if _, ok := seen[items[i].ID]; ok {
			return fmt.Errorf("%w: %w: %s", ErrInvalidItem, ErrDuplicateItemID, items[i].ID)
		}
		seen[items[i].ID] = struct{}{}
	}
	return nil
}

func ValidateRole(role Role) error {
	if role != RoleUser && role != RoleAssistant {
		return fmt.Errorf("%w: unknown role %q", ErrInput, role)
	}
	return nil
}

// ItemIDs returns the identifiers of items in order.
func ItemIDs(items []Item) []string {
	ids := make([]string, len(items))
	for i, item := range items {
		ids[i] = item.ID
	}
	return ids
}
