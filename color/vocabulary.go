package color

import "fmt"

// Vocabulary is the canonical color list. Color filters only ever match
// these names. Order matters: classification ties resolve to the earlier entry.
var Vocabulary = []string{
	// Neutrals
	"white",
	"ivory",
	"light gray",
	"gray",
	"dark gray",
	"black",
	"silver",
	"gold",
	"beige",
	"tan",
	"brown",
	"dark brown",
	// Reds and pinks
	"light pink",
	"pink",
	"hot pink",
	"red",
	"dark red",
	"burgundy",
	// Oranges
	"peach",
	"coral",
	"orange",
	"rust",
	// Yellows
	"light yellow",
	"yellow",
	"mustard",
	// Greens
	"mint",
	"light green",
	"green",
	"olive",
	"dark green",
	// Blues
	"light blue",
	"blue",
	"royal blue",
	"navy",
	// Purples
	"lavender",
	"purple",
	"dark purple",
	"multicolor",
}

// Template frames a color name as a short caption before embedding.
const Template = "A piece of clothing in %s color."

// Phrase renders color through Template.
func Phrase(color string) string {
	return fmt.Sprintf(Template, color)
}
