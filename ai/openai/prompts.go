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

package openai

import (
	"fmt"
	"strings"

	"github.com/poiesic/lookbook/core"
)

const filterResponseSchema = `{
  "type": "object",
  "properties": {
    "brand": {"type": ["string", "null"]},
    "category": {"type": ["string", "null"]},
    "color": {"type": ["string", "null"]},
    "min_price": {"type": ["number", "null"], "minimum": 0},
    "max_price": {"type": ["number", "null"], "minimum": 0},
    "clean_query": {"type": "string"},
    "style_query": {"type": "string"}
  },
  "required": ["brand", "category", "color", "min_price", "max_price", "clean_query", "style_query"],
  "additionalProperties": false
}`

const filterPromptTemplate = `You are a filter extraction and normalization specialist for fashion search.
Extract structured filters from the user's message and match them to the values available in the catalog.

Output ONLY valid JSON which complies with the schema given below. Do not include any preamble, explanation,
greeting, or acknowledgment. Start your response directly with the opening brace { and end with the closing
brace }. Your output must exactly follow this schema:

%s

Available categories: %s
Available colors: %s
Available brands: %s

Rules (all matching is case-insensitive):
- category: match to an available category. Handle plurals: "shoe" -> "shoes". If nothing matches, use null.
- brand: match to an available brand. Prefer the main brand over a sub-brand. If nothing matches, use null.
- color: match to an available color. Handle degree modifiers: "reddish" -> "red". Prefer the dominant color:
  "reddish orange" -> "orange". If nothing matches, use null.
- min_price and max_price: plain numbers, currency words ignored.
  "under 50" -> max_price 50. "over 100" -> min_price 100. "between 50 and 100" or "50 to 100" -> both.
- clean_query: the original query with price requirements removed. If there are none, the original query.
  "Velvet pants by Ralph Lauren over 100" -> "Velvet pants by Ralph Lauren"
- style_query: the query with price, category, brand and color tokens removed, keeping pattern, material,
  texture and silhouette words.
  "Leather striped jacket" -> "leather striped"
  "Pink short-sleeved blouse by DKNY over 100" -> "short-sleeved"
  "Emerald floral mini dress" -> "floral mini"
  "Dress with polka dots" -> "polka dots"
- Always return clean_query and style_query.
- The JSON must parse without errors; no trailing commas, no extra keys, and no extraneous text outside the object.

Example:
Input: "nike running shoes in red under 80"
Output:
{"brand":"Nike","category":"shoes","color":"red","min_price":null,"max_price":80,"clean_query":"nike running shoes in red","style_query":"running"}`

// buildFilterPrompt creates the system prompt with the catalog vocabulary embedded.
func buildFilterPrompt(vocab *core.Vocabulary) string {
	if vocab == nil {
		vocab = &core.Vocabulary{}
	}
	return fmt.Sprintf(filterPromptTemplate,
		filterResponseSchema,
		listOrAny(vocab.Categories),
		listOrAny(vocab.Colors),
		listOrAny(vocab.Brands))
}

func listOrAny(values []string) string {
	if len(values) == 0 {
		return "(any)"
	}
	return strings.Join(values, ", ")
}
