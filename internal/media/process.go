package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"golang.org/x/image/draw"

	"github.com/JonMunkholm/listing-import/internal/logging"
)

// ProcessConfig controls resizing and codec selection.
type ProcessConfig struct {
	MaxWidth int
	Quality  int

	// Inputs below SmallBytes go straight to WebP, inputs above LargeBytes
	// to JPEG. Everything between tries AVIF within AVIFTimeout first.
	SmallBytes  int64
	LargeBytes  int64
	AVIFTimeout time.Duration

	// MaxPixels rejects images whose declared width*height exceeds it
	// before any pixel memory is allocated. Zero disables the check.
	MaxPixels int64
}

var errTooManyPixels = errors.New("image dimensions exceed the pixel limit")

type processed struct {
	data       []byte
	format     Format
	width      int
	height     int
	compressed bool
}

// ChooseFormat picks the output codec for an input of n bytes.
func (c ProcessConfig) ChooseFormat(n int64) Format {
	switch {
	case n < c.SmallBytes:
		return FormatWebP
	case n > c.LargeBytes:
		return FormatJPEG
	default:
		return FormatAVIF
	}
}

// processImage resizes and re-encodes src. Undecodable input is an error
// and the image is dropped; encoder failures fall back to the original
// bytes.
func processImage(ctx context.Context, codec ImageCodec, cfg ProcessConfig, sourceURL string, src []byte, srcFormat Format) (processed, error) {
	if srcFormat == FormatUnknown {
		return processed{}, &ProcessError{URL: sourceURL, Err: errors.New("unrecognized image format")}
	}

	original := processed{data: src, format: srcFormat}
	header, _, err := image.DecodeConfig(bytes.NewReader(src))
	if codec == nil {
		if err == nil {
			original.width, original.height = header.Width, header.Height
		}
		return original, nil
	}
	if err != nil {
		return processed{}, &ProcessError{URL: sourceURL, Err: err}
	}
	if px := int64(header.Width) * int64(header.Height); cfg.MaxPixels > 0 && px > cfg.MaxPixels {
		return processed{}, &ProcessError{URL: sourceURL, Err: fmt.Errorf("%w: %dx%d", errTooManyPixels, header.Width, header.Height)}
	}

	img, _, err := image.Decode(bytes.NewReader(src))
	if err != nil {
		return processed{}, &ProcessError{URL: sourceURL, Err: err}
	}
	b := img.Bounds()
	original.width, original.height = b.Dx(), b.Dy()

	img = resize(img, cfg.MaxWidth)
	b = img.Bounds()

	target := cfg.ChooseFormat(int64(len(src)))
	out, err := encodeWithin(ctx, codec, img, target, cfg)
	if err != nil && target == FormatAVIF {
		logging.FromContext(ctx).Warn("avif encode failed, falling back to webp",
			"url", sourceURL, "error", err)
		target = FormatWebP
		out, err = codec.Encode(ctx, img, target, cfg.Quality)
	}
	if err != nil {
		cerr := &CompressionError{URL: sourceURL, Format: target, Err: err}
		logging.FromContext(ctx).Warn("keeping original image bytes", "url", sourceURL, "error", cerr)
		return original, nil
	}

	return processed{
		data:       out,
		format:     target,
		width:      b.Dx(),
		height:     b.Dy(),
		compressed: true,
	}, nil
}

// encodeWithin bounds AVIF encoding by cfg.AVIFTimeout. The encoder cannot
// be interrupted, so on timeout its goroutine finishes in the background
// and the result is discarded.
func encodeWithin(ctx context.Context, codec ImageCodec, img image.Image, f Format, cfg ProcessConfig) ([]byte, error) {
	if f != FormatAVIF || cfg.AVIFTimeout <= 0 {
		return codec.Encode(ctx, img, f, cfg.Quality)
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.AVIFTimeout)
	defer cancel()

	type result struct {
		data []byte
		err  error
	}
	done := make(chan result, 1)
	go func() {
		data, err := codec.Encode(ctx, img, f, cfg.Quality)
		done <- result{data, err}
	}()

	select {
	case r := <-done:
		return r.data, r.err
	case <-ctx.Done():
		return nil, fmt.Errorf("avif encode: %w", ctx.Err())
	}
}

// resize scales img down to maxWidth preserving aspect ratio. Narrower
// images are returned unchanged.
func resize(img image.Image, maxWidth int) image.Image {
	b := img.Bounds()
	if maxWidth <= 0 || b.Dx() <= maxWidth {
		return img
	}
	h := b.Dy() * maxWidth / b.Dx()
	if h < 1 {
		h = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, maxWidth, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}
