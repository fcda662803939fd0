package media

import (
	"encoding/binary"

	"github.com/gabriel-vasile/mimetype"
)

// Format is an image container format.
type Format string

const (
	FormatUnknown Format = ""
	FormatJPEG    Format = "jpeg"
	FormatPNG     Format = "png"
	FormatGIF     Format = "gif"
	FormatWebP    Format = "webp"
	FormatAVIF    Format = "avif"
	FormatBMP     Format = "bmp"
	FormatTIFF    Format = "tiff"
	FormatHEIC    Format = "heic"
)

// Ext is the file extension used in object keys, with the leading dot.
func (f Format) Ext() string {
	switch f {
	case FormatJPEG:
		return ".jpg"
	case FormatPNG:
		return ".png"
	case FormatGIF:
		return ".gif"
	case FormatWebP:
		return ".webp"
	case FormatAVIF:
		return ".avif"
	case FormatBMP:
		return ".bmp"
	case FormatTIFF:
		return ".tiff"
	case FormatHEIC:
		return ".heic"
	default:
		return ".bin"
	}
}

// MIMEType is the Content-Type for objects of this format.
func (f Format) MIMEType() string {
	switch f {
	case FormatUnknown:
		return "application/octet-stream"
	case FormatJPEG:
		return "image/jpeg"
	default:
		return "image/" + string(f)
	}
}

// Sniff detects the image format from its leading bytes. The Content-Type
// a server sends is not trusted.
func Sniff(data []byte) Format {
	m := mimetype.Detect(data)
	switch {
	case m.Is("image/jpeg"):
		return FormatJPEG
	case m.Is("image/png"), m.Is("image/vnd.mozilla.apng"):
		return FormatPNG
	case m.Is("image/gif"):
		return FormatGIF
	case m.Is("image/webp"):
		return FormatWebP
	case m.Is("image/avif"):
		return FormatAVIF
	case m.Is("image/heif"), m.Is("image/heif-sequence"):
		// Generic HEIF brands also front AVIF files; the compatible
		// brands tell them apart.
		if hasBrand(data, "avif", "avis") {
			return FormatAVIF
		}
		return FormatHEIC
	case m.Is("image/heic"), m.Is("image/heic-sequence"):
		return FormatHEIC
	case m.Is("image/tiff"):
		return FormatTIFF
	case m.Is("image/bmp"):
		return FormatBMP
	}
	return FormatUnknown
}

// hasBrand reports whether the ISO-BMFF ftyp box lists any of brands as a
// compatible brand.
func hasBrand(data []byte, brands ...string) bool {
	if len(data) < 16 {
		return false
	}
	size := int(binary.BigEndian.Uint32(data[:4]))
	if size > len(data) {
		size = len(data)
	}
	for off := 16; off+4 <= size; off += 4 {
		for _, b := range brands {
			if string(data[off:off+4]) == b {
				return true
			}
		}
	}
	return false
}
