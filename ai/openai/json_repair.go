package openai

import "regexp"

var (
	// `, brand":` -> `, "brand":`
	unquotedKey = regexp.MustCompile(`([{,]\s*)([A-Za-z_][A-Za-z_ ]*?)\s*":`)
	// `"x": None` -> `"x": null`
	pythonNone = regexp.MustCompile(`(:\s*)None\b`)
	// `{"a": 1,}` -> `{"a": 1}`
	trailingComma = regexp.MustCompile(`,(\s*[}\]])`)
)

// repairJSON fixes the formatting slips small models make most often: a
// missing opening quote on a key, Python None literals, and trailing commas.
// Well-formed input is returned unchanged.
func repairJSON(s string) string {
	s = unquotedKey.ReplaceAllString(s, `$1"$2":`)
	s = pythonNone.ReplaceAllString(s, `${1}null`)
	return trailingComma.ReplaceAllString(s, `$1`)
}
