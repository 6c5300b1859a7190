package lookbook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/poiesic/lookbook/core"
)

const defaultImportBatch = 500

// itemRecord is one line of a JSON-lines catalog export.
type itemRecord struct {
	SKU      string   `json:"sku"`
	Title    string   `json:"title"`
	Brand    string   `json:"brand"`
	Category string   `json:"category"`
	Color    string   `json:"color"`
	Price    *float64 `json:"price"`
	URL      string   `json:"url"`
	Image1   string   `json:"image1"`
	Image2   string   `json:"image2"`
	Text1    string   `json:"text1"`
	Text2    string   `json:"text2"`
	Text3    string   `json:"text3"`
	Texts    string   `json:"texts"`
}

func (r itemRecord) item() *core.Item {
	item := &core.Item{
		SKU:      strings.TrimSpace(r.SKU),
		Title:    strings.TrimSpace(r.Title),
		Brand:    strings.TrimSpace(r.Brand),
		Category: strings.TrimSpace(r.Category),
		Color:    strings.TrimSpace(r.Color),
		URL:      r.URL,
		Image1:   r.Image1,
		Image2:   r.Image2,
		Text1:    r.Text1,
		Text2:    r.Text2,
		Text3:    r.Text3,
		Texts:    strings.TrimSpace(r.Texts),
	}
	if r.Price != nil {
		item.Price = *r.Price
	}
	if item.Texts == "" {
		var parts []string
		for _, t := range []string{r.Text1, r.Text2, r.Text3} {
			if t = strings.TrimSpace(t); t != "" {
				parts = append(parts, t)
			}
		}
		item.Texts = strings.Join(parts, " ")
	}
	return item
}

// ImportStats summarizes an import.
type ImportStats struct {
	Read     int
	Upserted int
	Rejected int
}

// ImportItems reads JSON-lines item records from r and upserts them in
// batches of batchSize. Records that fail validation are skipped and
// counted; a malformed line aborts the import after flushing what was read.
func (c *Catalog) ImportItems(ctx context.Context, r io.Reader, batchSize int) (*ImportStats, error) {
	if batchSize <= 0 {
		batchSize = defaultImportBatch
	}
	stats := &ImportStats{}
	batch := make([]*core.Item, 0, batchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		upserted, err := c.repos.Catalog.UpsertItems(ctx, batch...)
		if err != nil {
			return fmt.Errorf("upsert items: %w", err)
		}
		stats.Upserted += len(upserted)
		batch = batch[:0]
		return nil
	}

	dec := json.NewDecoder(r)
	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		var rec itemRecord
		err := dec.Decode(&rec)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ferr := flush(); ferr != nil {
				return stats, ferr
			}
			return stats, fmt.Errorf("%w: record %d: %w", core.ErrInvalidInput, stats.Read+1, err)
		}
		stats.Read++

		item := rec.item()
		if err := core.ValidateItem(item); err != nil {
			c.logger.Warn("skipping invalid item", "record", stats.Read, "sku", item.SKU, "err", err)
			stats.Rejected++
			continue
		}
		batch = append(batch, item)
		if len(batch) >= batchSize {
			if err := flush(); err != nil {
				return stats, err
			}
		}
	}
	if err := flush(); err != nil {
		return stats, err
	}
	c.logger.Info("import complete", "read", stats.Read, "upserted", stats.Upserted, "rejected", stats.Rejected)
	return stats, nil
}

// Stats summarizes the catalog state.
type Stats struct {
	Items        int
	Pending      int
	MappedColors int
	TargetColors int
}

// Stats counts items, items awaiting embeddings, and color mapping entries.
func (c *Catalog) Stats(ctx context.Context) (*Stats, error) {
	items, err := c.repos.Catalog.CountItems(ctx)
	if err != nil {
		return nil, err
	}
	pending, err := c.repos.Features.CountMissingEmbeddings(ctx)
	if err != nil {
		return nil, err
	}
	mapping, err := c.repos.Colors.LoadColorMapping(ctx)
	if err != nil {
		return nil, err
	}
	return &Stats{
		Items:        items,
		Pending:      pending,
		MappedColors: len(mapping),
		TargetColors: len(mapping.Targets()),
	}, nil
}
