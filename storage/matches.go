package storage

import (
	"cmp"
	"slices"
	"strings"

	"github.com/poiesic/lookbook/core"
)

// SortMatches orders matches by score descending, then SKU ascending, so
// equal scores always come back in the same order.
func SortMatches(matches []*core.SpaceMatch) {
	slices.SortFunc(matches, func(a, b *core.SpaceMatch) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return strings.Compare(a.Item.SKU, b.Item.SKU)
	})
}
