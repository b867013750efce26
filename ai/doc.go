// Copyright 2025 Scriptorium Labs
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


// Package ai provides abstractions for the embedding services used by
// archivist.
//
// The Embedder interface decouples the pipeline from any concrete provider,
// so backfill and retrieval can run against fakes in tests. Two
// implementation sub-packages exist:
//
//   - ai/openai: production implementation using OpenAI-compatible APIs
//   - ai/mock: test doubles for unit testing without external dependencies
//
// The package also owns the provider error taxonomy. ClassifyError decides
// whether a failure is worth retrying; it is exposed as an ErrorClassifier
// function value so the default availability-over-fast-failure policy can
// be overridden per pipeline.
package ai
