package backfill

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/poiesic/lookbook/ai"
	"github.com/poiesic/lookbook/core"
)

// ImageResolver locates the asset for one image slot of an item.
// Resolve returns ok == false when the asset is absent; the slot is then
// skipped and stays pending.
type ImageResolver interface {
	Resolve(ctx context.Context, item *core.MissingItem, space core.Space) (img ai.Image, ok bool, err error)
}

// DirResolver finds images laid out as <Root>/<sku>/image1.jpeg (packshot)
// and <Root>/<sku>/image2.jpeg (worn).
type DirResolver struct {
	Root string
}

var _ ImageResolver = DirResolver{}

// Path returns where the image for space is expected.
func (d DirResolver) Path(sku string, space core.Space) string {
	name := "image1.jpeg"
	if space == core.SpaceClipImageSecondary {
		name = "image2.jpeg"
	}
	return filepath.Join(d.Root, sku, name)
}

func (d DirResolver) Resolve(_ context.Context, item *core.MissingItem, space core.Space) (ai.Image, bool, error) {
	if !space.IsImage() {
		return ai.Image{}, false, nil
	}
	path := d.Path(item.SKU, space)
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return ai.Image{}, false, nil
	}
	if err != nil {
		return ai.Image{}, false, err
	}
	if info.IsDir() || info.Size() == 0 {
		return ai.Image{}, false, nil
	}
	return ai.ImageFromPath(path), true, nil
}
