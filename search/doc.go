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

// Package search provides hybrid semantic and keyword retrieval over the catalogue.
//
// The Ranker scans every indexed item, drops items that fail the constraint
// gate (price range, vendor, gpu, family) and scores the rest as the cosine
// similarity between the query and item vectors plus a small keyword bonus:
//
//	score = dot(query, item) + min(0.05 * matchedTokens, 0.2)
//
// The keyword bonus is capped so lexical overlap only breaks near-ties in
// semantic similarity. Results are sorted by descending score with ties kept
// in catalogue order.
//
// # Usage
//
//	ranker, err := search.NewRanker(store, items, search.WithTopK(5))
//	constraints, err := search.ParsePreferences(map[string]any{"price_max": "$1,500"})
//	result, err := ranker.Search(ctx, "gaming laptop", constraints, 0)
package search
