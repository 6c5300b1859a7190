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

// Package ai provides abstractions for the model services used by lookbook.
//
// The search executor, the backfill pipeline and the color normalizer depend
// on these interfaces rather than on concrete clients:
//
//   - TextEmbedder: batched text embeddings (clip_text and semantic_text spaces)
//   - ImageEmbedder: batched image embeddings (both image spaces)
//   - FilterExtractor: free text to structured core.Filters
//   - Provider: aggregates the above, constructed once at process start
//
// Every embedder returns L2-normalized vectors so that a dot product is a
// cosine similarity.
//
// # Implementation Packages
//
//   - ai/openai: text embedders and the filter extractor over OpenAI-compatible APIs (langchaingo)
//   - ai/clip: image embeddings from a multimodal embedding server over HTTP
//   - ai/mock: deterministic test doubles
//
// # Throttling
//
// Batch jobs wrap a provider with RateLimited so that embedding calls stay
// under a requests-per-second budget:
//
//	provider = ai.RateLimited(provider, cfg.RequestsPerSecond)
//
// # Thread Safety
//
// All interfaces require implementations to be safe for concurrent use.
package ai
