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


// Package search provides similarity-based retrieval over embedded chunks.
//
// The Searcher type embeds a preprocessed query, performs a cosine
// similarity lookup against the chunk store with optional document scoping
// and metadata filtering, and can apply a lexical reranking pass that
// nudges results containing query terms verbatim.
package search
