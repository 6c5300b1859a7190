package core

import (
	"encoding/binary"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// PointID derives a stable 64-bit identifier from a SKU using BLAKE2b hashing.
// Indexes that only accept numeric keys use it in place of the SKU.
func PointID(sku string) uint64 {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(sku))
	sum := h.Sum(nil)
	return binary.LittleEndian.Uint64(sum)
}

// Item is a catalog attribute record. It is written by ingestion and read-only
// to search and backfill.
type Item struct {
	SKU       string
	Title     string
	Brand     string
	Category  string
	Color     string  // Free text as scraped
	Price     float64 // Non-negative
	URL       string
	Image1    string // Packshot reference
	Image2    string // Worn/model reference
	Text1     string
	Text2     string
	Text3     string
	Texts     string // Concatenated descriptive text used for text embeddings
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DisplayImage returns the preferred image reference for display.
func (i *Item) DisplayImage() string {
	if i.Image2 != "" {
		return i.Image2
	}
	return i.Image1
}

// DisplayText returns the first non-empty descriptive text.
func (i *Item) DisplayText() string {
	for _, t := range []string{i.Text1, i.Text2, i.Text3} {
		if t != "" {
			return t
		}
	}
	return ""
}

// FeatureVector holds the four optional embedding slots of an item.
// A nil slot means "not yet embedded".
type FeatureVector struct {
	ClipImagePrimary   []float32
	ClipImageSecondary []float32
	ClipText           []float32
	SemanticText       []float32
}

// Get returns the vector stored for a space, or nil.
func (f *FeatureVector) Get(space Space) []float32 {
	switch space {
	case SpaceClipImagePrimary:
		return f.ClipImagePrimary
	case SpaceClipImageSecondary:
		return f.ClipImageSecondary
	case SpaceClipText:
		return f.ClipText
	case SpaceSemanticText:
		return f.SemanticText
	}
	return nil
}

// Set stores v in the slot for space.
func (f *FeatureVector) Set(space Space, v []float32) {
	switch space {
	case SpaceClipImagePrimary:
		f.ClipImagePrimary = v
	case SpaceClipImageSecondary:
		f.ClipImageSecondary = v
	case SpaceClipText:
		f.ClipText = v
	case SpaceSemanticText:
		f.SemanticText = v
	}
}

// Has reports whether the slot for space is populated.
func (f *FeatureVector) Has(space Space) bool {
	return len(f.Get(space)) > 0
}

// Spaces returns the populated spaces in canonical order.
func (f *FeatureVector) Spaces() []Space {
	var spaces []Space
	for _, s := range AllSpaces {
		if f.Has(s) {
			spaces = append(spaces, s)
		}
	}
	return spaces
}

// Missing returns the empty spaces in canonical order.
func (f *FeatureVector) Missing() []Space {
	var spaces []Space
	for _, s := range AllSpaces {
		if !f.Has(s) {
			spaces = append(spaces, s)
		}
	}
	return spaces
}

// Complete reports whether every slot is populated.
func (f *FeatureVector) Complete() bool {
	return len(f.Missing()) == 0
}

// Empty reports whether no slot is populated.
func (f *FeatureVector) Empty() bool {
	return len(f.Spaces()) == 0
}

// Merge copies every populated slot of partial into f, leaving the others untouched.
func (f *FeatureVector) Merge(partial FeatureVector) {
	for _, s := range partial.Spaces() {
		f.Set(s, partial.Get(s))
	}
}

// FeatureRow is the stored embedding record for one SKU.
type FeatureRow struct {
	SKU       string
	Vectors   FeatureVector
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Filters is the structured query input produced by the filter extractor.
// Nil fields impose no constraint.
type Filters struct {
	Brand      *string
	Category   *string
	Color      *string
	MinPrice   *float64
	MaxPrice   *float64
	CleanQuery string // Query text with price requirements removed
	StyleQuery string // Query text reduced to style tokens
}

// IsEmpty reports whether no constraint is set.
func (f *Filters) IsEmpty() bool {
	return f == nil || (f.Brand == nil && f.Category == nil && f.Color == nil &&
		f.MinPrice == nil && f.MaxPrice == nil)
}

// ResultItem is a single ranked search hit.
type ResultItem struct {
	SKU      string
	Title    string
	Brand    string
	Category string
	Color    string
	Price    float64
	URL      string
	Image    string
	Text     string
	Scores   map[Space]float32 // Per-space similarity, diagnostic only
	Score    float32           // Fused ranking score
}

// NewResultItem copies the display attributes of item into a ResultItem.
func NewResultItem(item *Item) *ResultItem {
	return &ResultItem{
		SKU:      item.SKU,
		Title:    item.Title,
		Brand:    item.Brand,
		Category: item.Category,
		Color:    item.Color,
		Price:    item.Price,
		URL:      item.URL,
		Image:    item.DisplayImage(),
		Text:     item.DisplayText(),
		Scores:   make(map[Space]float32, 2),
	}
}

// SpaceMatch is one row returned by a single-space similarity scan.
type SpaceMatch struct {
	Item  *Item
	Score float32
}

// MissingItem is a catalog item with at least one empty embedding slot,
// carrying the attributes needed to compute the missing vectors.
type MissingItem struct {
	SKU     string
	Texts   string
	Image1  string
	Image2  string
	Missing []Space
}

// Needs reports whether space is among the missing slots.
func (m *MissingItem) Needs(space Space) bool {
	for _, s := range m.Missing {
		if s == space {
			return true
		}
	}
	return false
}

// ColorMapping maps raw catalog colors to vocabulary colors.
type ColorMapping map[string]string

// Targets returns the distinct target colors.
func (m ColorMapping) Targets() []string {
	seen := make(map[string]struct{}, len(m))
	var targets []string
	for _, t := range m {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		targets = append(targets, t)
	}
	return targets
}

// Vocabulary lists the distinct attribute values the filter extractor may choose from.
type Vocabulary struct {
	Brands     []string
	Categories []string
	Colors     []string
}

// Checkpoint records resumable progress of a batch job.
type Checkpoint struct {
	Job       string
	Cursor    string // Last SKU durably processed
	Processed int
	UpdatedAt time.Time
}
