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

// Package ai provides abstractions for the model backends used by the advisor.
//
// This package defines the capability interfaces the retrieval and
// orchestration layers depend on, so business logic never touches a concrete
// client:
//
//   - Embedder: Generates vector embeddings from text and names its vector space
//   - Generator: Produces a model response for a conversation turn, whole or streamed
//   - Provider: Aggregates both for convenient initialization
//
// # Implementation Packages
//
//   - ai/openai: Live implementation using OpenAI-compatible APIs via langchaingo
//   - ai/offline: Deterministic implementation with no network access
//   - ai/mock: Test doubles for unit testing without external dependencies
//
// The backend is selected explicitly through Config.Provider, never by
// inspecting runtime types.
//
// # Constructor Return Type Pattern
//
// Public constructors (openai.NewProvider, offline.NewProvider) return
// INTERFACE types to enforce abstraction. Test utility constructors
// (mock.NewMockEmbedder, mock.NewMockGenerator) return CONCRETE types to enable
// test assertions and behavior injection.
//
// # Errors
//
// Backend failures are typed. Classify maps raw client errors onto
// core.ErrBackendTransient, core.ErrBackendQuota and core.ErrBackendPermanent,
// which drive retry and model downgrade decisions.
package ai
