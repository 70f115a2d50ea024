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

import "errors"

var (
	// ErrInput indicates a caller error (empty query, malformed preference values).
	// Input errors are rejected immediately and never retried.
	ErrInput = errors.New("invalid input")

	// ErrIndexIntegrity indicates a stale or inconsistent embedding index.
	ErrIndexIntegrity = errors.New("embedding index integrity violation")

	// ErrIndexNotReady indicates a search was attempted before the index was loaded.
	ErrIndexNotReady = errors.New("embedding index not initialised")

	// ErrBackendTransient indicates a retryable backend failure (rate limit, timeout).
	ErrBackendTransient = errors.New("transient backend failure")

	// ErrBackendQuota indicates the backend quota is exhausted for the current model.
	ErrBackendQuota = errors.New("backend quota exhausted")

	// ErrBackendPermanent indicates a backend failure that retrying cannot fix.
	ErrBackendPermanent = errors.New("permanent backend failure")

	// ErrBackendExhausted indicates retries were exhausted without success.
	ErrBackendExhausted = errors.New("backend retries exhausted")

	// ErrDecode indicates model output could not be decoded.
	ErrDecode = errors.New("malformed model output")

	// ErrMergeMismatch indicates the model referenced an item that was not retrieved.
	ErrMergeMismatch = errors.New("recommended item not in retrieved context")

	// ErrInvalidItem indicates a catalogue item failed validation.
	ErrInvalidItem = errors.New("invalid catalogue item")

	// ErrEmptyItemID indicates the item identifier is empty.
	ErrEmptyItemID = errors.New("item id cannot be empty")

	// ErrDuplicateItemID indicates two catalogue items share an identifier.
	ErrDuplicateItemID = errors.New("duplicate item id")

	// ErrNegativePrice indicates a negative price.
	ErrNegativePrice = errors.New("price cannot be negative")

	// ErrInvalidPrice indicates a price value that could not be parsed.
	ErrInvalidPrice = errors.New("invalid price")
)
