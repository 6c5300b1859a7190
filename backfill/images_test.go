package backfill

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/lookbook/core"
)

func TestDirResolver(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "S1"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "S1", "image1.jpeg"), []byte{0xff, 0xd8}, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "S1", "image2.jpeg"), nil, 0o644))

	d := DirResolver{Root: root}
	item := &core.MissingItem{SKU: "S1"}

	tests := []struct {
		name   string
		item   *core.MissingItem
		space  core.Space
		wantOK bool
	}{
		{"packshot present", item, core.SpaceClipImagePrimary, true},
		{"empty file is absent", item, core.SpaceClipImageSecondary, false},
		{"missing directory", &core.MissingItem{SKU: "S2"}, core.SpaceClipImagePrimary, false},
		{"text space", item, core.SpaceClipText, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, ok, err := d.Resolve(context.Background(), tt.item, tt.space)
			require.NoError(t, err)
			assert.Equal(t, tt.wantOK, ok)
			if ok {
				assert.Equal(t, filepath.Join(root, "S1", "image1.jpeg"), img.Path)
			}
		})
	}
}

func TestDirResolver_Path(t *testing.T) {
	d := DirResolver{Root: "/data/images"}
	assert.Equal(t, "/data/images/S1/image1.jpeg", d.Path("S1", core.SpaceClipImagePrimary))
	assert.Equal(t, "/data/images/S1/image2.jpeg", d.Path("S1", core.SpaceClipImageSecondary))
}
