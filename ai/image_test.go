package ai

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/lookbook/core"
)

func encodePNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestValidateImage(t *testing.T) {
	format, err := ValidateImage(encodePNG(t))
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	assert.Equal(t, "image/png", MimeType(format))

	_, err = ValidateImage(nil)
	assert.True(t, errors.Is(err, core.ErrInvalidInput))

	_, err = ValidateImage([]byte("definitely not an image"))
	assert.True(t, errors.Is(err, core.ErrInvalidInput))
}

func TestImageBytes(t *testing.T) {
	data := encodePNG(t)

	got, err := Image{Data: data}.Bytes()
	require.NoError(t, err)
	assert.Equal(t, data, got)

	path := filepath.Join(t.TempDir(), "image1.png")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	got, err = ImageFromPath(path).Bytes()
	require.NoError(t, err)
	assert.Equal(t, data, got)

	_, err = Image{}.Bytes()
	assert.True(t, errors.Is(err, core.ErrInvalidInput))

	_, err = ImageFromPath(filepath.Join(t.TempDir(), "missing.jpeg")).Bytes()
	assert.Error(t, err)
}
