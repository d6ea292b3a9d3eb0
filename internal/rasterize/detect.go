package rasterize

import "bytes"

// Format identifies the sniffed content type of an input document.
type Format string

const (
	FormatPDF     Format = "application/pdf"
	FormatPNG     Format = "image/png"
	FormatJPEG    Format = "image/jpeg"
	FormatGIF     Format = "image/gif"
	FormatTIFF    Format = "image/tiff"
	FormatBMP     Format = "image/bmp"
	FormatWebP    Format = "image/webp"
	FormatUnknown Format = ""
)

// IsImage reports whether the format is a raster image we can decode.
func (f Format) IsImage() bool {
	switch f {
	case FormatPNG, FormatJPEG, FormatGIF, FormatTIFF, FormatBMP:
		return true
	}
	return false
}

// DetectFormat sniffs the document format from magic bytes. Content
// detection matters more than file extensions: scanned documents arrive from
// upload paths that routinely mislabel them as application/octet-stream.
func DetectFormat(data []byte) Format {
	if len(data) < 4 {
		return FormatUnknown
	}

	// PDF: %PDF-
	if bytes.HasPrefix(data, []byte("%PDF")) {
		return FormatPDF
	}

	// PNG: 0x89 'P' 'N' 'G' 0x0D 0x0A 0x1A 0x0A
	if len(data) >= 8 && bytes.HasPrefix(data, []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}) {
		return FormatPNG
	}

	// JPEG: 0xFF 0xD8 0xFF
	if bytes.HasPrefix(data, []byte{0xFF, 0xD8, 0xFF}) {
		return FormatJPEG
	}

	// GIF: 'G' 'I' 'F' '8' ('7' or '9') 'a'
	if bytes.HasPrefix(data, []byte("GIF87a")) || bytes.HasPrefix(data, []byte("GIF89a")) {
		return FormatGIF
	}

	// TIFF: little-endian 'II' 0x2A 0x00 or big-endian 'MM' 0x00 0x2A
	if bytes.HasPrefix(data, []byte{0x49, 0x49, 0x2A, 0x00}) || bytes.HasPrefix(data, []byte{0x4D, 0x4D, 0x00, 0x2A}) {
		return FormatTIFF
	}

	// BMP: 'B' 'M'
	if bytes.HasPrefix(data, []byte("BM")) {
		return FormatBMP
	}

	// WebP: 'R' 'I' 'F' 'F' .... 'W' 'E' 'B' 'P'
	if len(data) > 12 && bytes.HasPrefix(data, []byte("RIFF")) && string(data[8:12]) == "WEBP" {
		return FormatWebP
	}

	return FormatUnknown
}
