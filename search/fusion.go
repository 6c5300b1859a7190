package search

import (
	"cmp"
	"slices"

	"github.com/poiesic/lookbook/core"
)

// Weights blends the two text spaces into one score.
type Weights struct {
	Clip     float32
	Semantic float32
}

// DefaultWeights favors the sentence encoder over the CLIP text tower.
var DefaultWeights = Weights{Clip: 0.3, Semantic: 0.7}

func (w Weights) valid() bool {
	return w.Clip >= 0 && w.Semantic >= 0 && w.Clip+w.Semantic > 0
}

// FuseText scores rows present in both text spaces as
// w.Clip*clip + w.Semantic*semantic. Rows missing either space are dropped.
func FuseText(clip, semantic []*core.SpaceMatch, w Weights) []*core.ResultItem {
	semScores := make(map[string]float32, len(semantic))
	for _, m := range semantic {
		semScores[m.Item.SKU] = m.Score
	}

	results := make([]*core.ResultItem, 0, min(len(clip), len(semantic)))
	for _, m := range clip {
		sem, ok := semScores[m.Item.SKU]
		if !ok {
			continue
		}
		r := core.NewResultItem(m.Item)
		r.Scores[core.SpaceClipText] = m.Score
		r.Scores[core.SpaceSemanticText] = sem
		r.Score = w.Clip*m.Score + w.Semantic*sem
		results = append(results, r)
	}
	sortResults(results)
	return results
}

// FuseImage scores rows present in either image space by their best image.
// A row with one image slot scores with that slot alone.
func FuseImage(primary, secondary []*core.SpaceMatch) []*core.ResultItem {
	bySKU := make(map[string]*core.ResultItem, len(primary)+len(secondary))
	results := make([]*core.ResultItem, 0, len(primary)+len(secondary))

	add := func(space core.Space, matches []*core.SpaceMatch) {
		for _, m := range matches {
			r, ok := bySKU[m.Item.SKU]
			if !ok {
				r = core.NewResultItem(m.Item)
				r.Score = m.Score
				bySKU[m.Item.SKU] = r
				results = append(results, r)
			} else if m.Score > r.Score {
				r.Score = m.Score
			}
			r.Scores[space] = m.Score
		}
	}
	add(core.SpaceClipImagePrimary, primary)
	add(core.SpaceClipImageSecondary, secondary)

	sortResults(results)
	return results
}

// sortResults orders by score descending, then SKU ascending.
func sortResults(results []*core.ResultItem) {
	slices.SortFunc(results, func(a, b *core.ResultItem) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.SKU, b.SKU)
	})
}

func truncate(results []*core.ResultItem, k int) []*core.ResultItem {
	if k > 0 && len(results) > k {
		return results[:k]
	}
	return results
}
