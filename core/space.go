package core

import (
	"fmt"
	"strings"
)

// Space identifies an embedding space: one model applied to one modality.
type Space int

const (
	// SpaceClipImagePrimary holds the CLIP embedding of the packshot image.
	SpaceClipImagePrimary Space = iota + 1
	// SpaceClipImageSecondary holds the CLIP embedding of the worn/model image.
	SpaceClipImageSecondary
	// SpaceClipText holds the CLIP text-tower embedding of the item texts.
	SpaceClipText
	// SpaceSemanticText holds the sentence-encoder embedding of the item texts.
	SpaceSemanticText
)

// AllSpaces lists every space in canonical order.
var AllSpaces = []Space{
	SpaceClipImagePrimary,
	SpaceClipImageSecondary,
	SpaceClipText,
	SpaceSemanticText,
}

// TextSpaces are computed from the item texts.
var TextSpaces = []Space{SpaceClipText, SpaceSemanticText}

// ImageSpaces are computed from the item images.
var ImageSpaces = []Space{SpaceClipImagePrimary, SpaceClipImageSecondary}

// SpaceDims maps each space to its fixed vector dimension.
type SpaceDims map[Space]int

// DefaultSpaceDims returns the dimension contract of the default encoders.
func DefaultSpaceDims() SpaceDims {
	return SpaceDims{
		SpaceClipImagePrimary:   512,
		SpaceClipImageSecondary: 512,
		SpaceClipText:           512,
		SpaceSemanticText:       384,
	}
}

// Dims returns the default dimension of the space, or 0 if unknown.
func (s Space) Dims() int {
	return DefaultSpaceDims()[s]
}

// String returns the storage name of the space.
func (s Space) String() string {
	switch s {
	case SpaceClipImagePrimary:
		return "clip_image_primary"
	case SpaceClipImageSecondary:
		return "clip_image_secondary"
	case SpaceClipText:
		return "clip_text"
	case SpaceSemanticText:
		return "semantic_text"
	}
	return fmt.Sprintf("space(%d)", int(s))
}

// Valid reports whether s is a known space.
func (s Space) Valid() bool {
	return s >= SpaceClipImagePrimary && s <= SpaceSemanticText
}

// IsImage reports whether the space is computed from images.
func (s Space) IsImage() bool {
	return s == SpaceClipImagePrimary || s == SpaceClipImageSecondary
}

// ParseSpace converts a storage name back into a Space.
func ParseSpace(name string) (Space, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, s := range AllSpaces {
		if s.String() == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownSpace, name)
}
