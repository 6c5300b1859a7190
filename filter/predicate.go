package filter

import (
	"fmt"
	"slices"
	"strings"

	"github.com/poiesic/lookbook/core"
)

// Field names an item attribute a leaf constrains.
type Field string

const (
	FieldBrand    Field = "brand"
	FieldCategory Field = "category"
	FieldColor    Field = "color"
	FieldPrice    Field = "price"
)

// Op is the comparison a leaf applies.
type Op int

const (
	// OpEq compares a normalized string attribute for equality.
	OpEq Op = iota + 1
	// OpIn matches when the normalized attribute is one of a set.
	OpIn
	// OpGte is an inclusive lower bound.
	OpGte
	// OpLte is an inclusive upper bound.
	OpLte
)

func (o Op) String() string {
	switch o {
	case OpEq:
		return "="
	case OpIn:
		return "in"
	case OpGte:
		return ">="
	case OpLte:
		return "<="
	}
	return fmt.Sprintf("op(%d)", int(o))
}

// Leaf is a single comparison with its bound value. Values are never
// rendered into query text; backends read them from the typed fields.
type Leaf struct {
	Field  Field
	Op     Op
	Text   string   // OpEq value, or the resolved target color for OpIn
	Values []string // OpIn value set, normalized
	Number float64  // OpGte / OpLte bound
}

func (l Leaf) String() string {
	if l.Op == OpIn {
		return fmt.Sprintf("%s in [%d values]", l.Field, len(l.Values))
	}
	return fmt.Sprintf("%s %s ?", l.Field, l.Op)
}

// Predicate is an AND of leaves. The nil predicate and a predicate with
// no leaves match every item.
type Predicate struct {
	Leaves    []Leaf
	unmatched []string
}

// Build compiles filters into a predicate. Color is resolved through
// mapping: a source color becomes its target, a known target is kept, and
// anything else leaves a clause that matches nothing. Brand and category
// values absent from a non-empty vocab are reported as unmatched but still
// applied. A nil vocab skips the vocabulary check.
func Build(filters *core.Filters, mapping core.ColorMapping, vocab *core.Vocabulary) (*Predicate, error) {
	if err := core.ValidateFilters(filters); err != nil {
		return nil, err
	}
	p := &Predicate{}
	if filters.IsEmpty() {
		return p, nil
	}

	if filters.Brand != nil {
		v := core.NormalizeValue(*filters.Brand)
		p.Leaves = append(p.Leaves, Leaf{Field: FieldBrand, Op: OpEq, Text: v})
		if vocab != nil && len(vocab.Brands) > 0 && !containsNormalized(vocab.Brands, v) {
			p.unmatched = append(p.unmatched, string(FieldBrand))
		}
	}

	if filters.Category != nil {
		v := core.NormalizeValue(*filters.Category)
		p.Leaves = append(p.Leaves, Leaf{Field: FieldCategory, Op: OpEq, Text: v})
		if vocab != nil && len(vocab.Categories) > 0 && !containsNormalized(vocab.Categories, v) {
			p.unmatched = append(p.unmatched, string(FieldCategory))
		}
	}

	if filters.Color != nil {
		target, ok := ResolveColor(mapping, *filters.Color)
		leaf := Leaf{Field: FieldColor, Op: OpIn, Text: target}
		if ok {
			leaf.Values = SourcesFor(mapping, target)
		}
		if len(leaf.Values) == 0 {
			p.unmatched = append(p.unmatched, string(FieldColor))
		}
		p.Leaves = append(p.Leaves, leaf)
	}

	if filters.MinPrice != nil {
		p.Leaves = append(p.Leaves, Leaf{Field: FieldPrice, Op: OpGte, Number: *filters.MinPrice})
	}
	if filters.MaxPrice != nil {
		p.Leaves = append(p.Leaves, Leaf{Field: FieldPrice, Op: OpLte, Number: *filters.MaxPrice})
	}
	return p, nil
}

// Empty reports whether the predicate imposes no constraint.
func (p *Predicate) Empty() bool {
	return p == nil || len(p.Leaves) == 0
}

// Unmatched returns the filter names whose values had no vocabulary match.
func (p *Predicate) Unmatched() []string {
	if p == nil {
		return nil
	}
	return slices.Clone(p.unmatched)
}

// Matches evaluates the predicate against an item.
func (p *Predicate) Matches(item *core.Item) bool {
	if p.Empty() {
		return true
	}
	if item == nil {
		return false
	}
	for _, leaf := range p.Leaves {
		if !leaf.matches(item) {
			return false
		}
	}
	return true
}

func (l Leaf) matches(item *core.Item) bool {
	switch l.Field {
	case FieldBrand:
		return core.NormalizeValue(item.Brand) == l.Text
	case FieldCategory:
		return core.NormalizeValue(item.Category) == l.Text
	case FieldColor:
		_, found := slices.BinarySearch(l.Values, core.NormalizeValue(item.Color))
		return found
	case FieldPrice:
		if l.Op == OpGte {
			return item.Price >= l.Number
		}
		return item.Price <= l.Number
	}
	return false
}

func (p *Predicate) String() string {
	if p.Empty() {
		return "true"
	}
	parts := make([]string, len(p.Leaves))
	for i, l := range p.Leaves {
		parts[i] = l.String()
	}
	return strings.Join(parts, " AND ")
}

// ResolveColor maps a requested color onto the vocabulary side of mapping.
// It returns false when the color is neither a mapped source nor a target.
func ResolveColor(mapping core.ColorMapping, color string) (string, bool) {
	want := core.NormalizeValue(color)
	if want == "" {
		return "", false
	}
	for source, target := range mapping {
		if core.NormalizeValue(source) == want {
			return core.NormalizeValue(target), true
		}
	}
	for _, target := range mapping {
		if core.NormalizeValue(target) == want {
			return want, true
		}
	}
	return want, false
}

// SourcesFor returns the normalized, sorted, de-duplicated source colors
// mapped to target.
func SourcesFor(mapping core.ColorMapping, target string) []string {
	target = core.NormalizeValue(target)
	var sources []string
	for source, t := range mapping {
		if core.NormalizeValue(t) == target {
			sources = append(sources, core.NormalizeValue(source))
		}
	}
	slices.Sort(sources)
	return slices.Compact(sources)
}

func containsNormalized(values []string, want string) bool {
	for _, v := range values {
		if core.NormalizeValue(v) == want {
			return true
		}
	}
	return false
}
