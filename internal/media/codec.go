package media

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"

	// decoders for image.Decode
	_ "image/gif"
	_ "image/png"

	"github.com/gen2brain/avif"
	"github.com/gen2brain/webp"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

// ImageCodec encodes a decoded image. A pipeline without a codec uploads
// original bytes unchanged.
type ImageCodec interface {
	Encode(ctx context.Context, img image.Image, f Format, quality int) ([]byte, error)
}

// StdCodec encodes AVIF and WebP with the pure-Go gen2brain encoders and
// JPEG with the standard library.
type StdCodec struct {
	// AVIFSpeed trades size for time, 0 (slowest) to 10 (fastest).
	AVIFSpeed int
}

func (c StdCodec) Encode(ctx context.Context, img image.Image, f Format, quality int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	var err error
	switch f {
	case FormatAVIF:
		err = avif.Encode(&buf, img, avif.Options{Quality: quality, Speed: c.AVIFSpeed})
	case FormatWebP:
		err = webp.Encode(&buf, img, webp.Options{Quality: quality})
	case FormatJPEG:
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality})
	default:
		return nil, fmt.Errorf("unsupported output format %q", f)
	}
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
