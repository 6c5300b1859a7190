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

// Package search ranks catalog items against a text or image query.
//
// A text query is embedded by the CLIP text tower and the sentence encoder.
// Each embedding is scored against its space, and rows present in both
// spaces are fused with a weighted sum (0.3 CLIP, 0.7 semantic by default).
// An image query is embedded once and scored against both image slots, and
// each row keeps its best slot.
//
// Structured filters narrow the candidate rows before scoring. Filters are
// either given by the caller or extracted from the query text; a failed
// extraction searches unfiltered. Colors are resolved through the
// normalized color table, so a filter on "red" matches every raw catalog
// color mapped to red.
package search
