package qdrant

import (
	pb "github.com/qdrant/go-client/qdrant"

	"github.com/poiesic/lookbook/core"
	"github.com/poiesic/lookbook/filter"
)

// Payload keys. The *_key fields hold normalized copies used for filtering.
const (
	payloadSKU         = "sku"
	payloadTitle       = "title"
	payloadBrand       = "brand"
	payloadCategory    = "category"
	payloadColor       = "color"
	payloadPrice       = "price"
	payloadURL         = "url"
	payloadImage1      = "image1"
	payloadImage2      = "image2"
	payloadText1       = "text1"
	payloadBrandKey    = "brand_key"
	payloadCategoryKey = "category_key"
	payloadColorKey    = "color_key"
)

// compileFilter translates a predicate into qdrant conditions restricted to
// points that carry a vector for space. It returns false when the predicate
// can match nothing, in which case no request should be sent.
func compileFilter(space core.Space, predicate *filter.Predicate) (*pb.Filter, bool) {
	must := []*pb.Condition{pb.NewHasVector(space.String())}
	if predicate.Empty() {
		return &pb.Filter{Must: must}, true
	}

	for _, leaf := range predicate.Leaves {
		switch leaf.Field {
		case filter.FieldBrand:
			must = append(must, pb.NewMatchKeyword(payloadBrandKey, leaf.Text))
		case filter.FieldCategory:
			must = append(must, pb.NewMatchKeyword(payloadCategoryKey, leaf.Text))
		case filter.FieldColor:
			if len(leaf.Values) == 0 {
				return nil, false
			}
			must = append(must, pb.NewMatchKeywords(payloadColorKey, leaf.Values...))
		case filter.FieldPrice:
			bound := leaf.Number
			r := &pb.Range{}
			if leaf.Op == filter.OpGte {
				r.Gte = &bound
			} else {
				r.Lte = &bound
			}
			must = append(must, pb.NewRange(payloadPrice, r))
		}
	}
	return &pb.Filter{Must: must}, true
}

// itemPayload renders the display and filter fields of item.
func itemPayload(item *core.Item) map[string]any {
	return map[string]any{
		payloadSKU:         item.SKU,
		payloadTitle:       item.Title,
		payloadBrand:       item.Brand,
		payloadCategory:    item.Category,
		payloadColor:       item.Color,
		payloadPrice:       item.Price,
		payloadURL:         item.URL,
		payloadImage1:      item.Image1,
		payloadImage2:      item.Image2,
		payloadText1:       item.DisplayText(),
		payloadBrandKey:    core.NormalizeValue(item.Brand),
		payloadCategoryKey: core.NormalizeValue(item.Category),
		payloadColorKey:    core.NormalizeValue(item.Color),
	}
}

// itemFromPayload rebuilds the display fields of an item from a search hit.
func itemFromPayload(payload map[string]*pb.Value) *core.Item {
	str := func(key string) string { return payload[key].GetStringValue() }
	return &core.Item{
		SKU:      str(payloadSKU),
		Title:    str(payloadTitle),
		Brand:    str(payloadBrand),
		Category: str(payloadCategory),
		Color:    str(payloadColor),
		Price:    payload[payloadPrice].GetDoubleValue(),
		URL:      str(payloadURL),
		Image1:   str(payloadImage1),
		Image2:   str(payloadImage2),
		Text1:    str(payloadText1),
	}
}
