package ai

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/poiesic/lookbook/core"
)

// Image is an image input to an ImageEmbedder. Data takes precedence; Path
// is read lazily when Data is empty.
type Image struct {
	Path string
	Data []byte
}

// ImageFromPath returns an Image read from path on demand.
func ImageFromPath(path string) Image {
	return Image{Path: path}
}

// Bytes returns the encoded image, reading Path if needed.
func (img Image) Bytes() ([]byte, error) {
	if len(img.Data) > 0 {
		return img.Data, nil
	}
	if img.Path == "" {
		return nil, fmt.Errorf("%w: image has neither data nor path", core.ErrInvalidInput)
	}
	data, err := os.ReadFile(img.Path)
	if err != nil {
		return nil, fmt.Errorf("read image %s: %w", img.Path, err)
	}
	return data, nil
}

// ValidateImage checks that data carries a decodable JPEG, PNG or GIF header
// and returns the detected format.
func ValidateImage(data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty image", core.ErrInvalidInput)
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%w: malformed image: %w", core.ErrInvalidInput, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return "", fmt.Errorf("%w: image has no pixels", core.ErrInvalidInput)
	}
	return format, nil
}

// MimeType maps a format returned by ValidateImage to its media type.
func MimeType(format string) string {
	switch format {
	case "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	}
	return "application/octet-stream"
}
