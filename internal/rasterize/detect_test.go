package rasterize

import "testing"

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want Format
	}{
		{"pdf", []byte("%PDF-1.7\n"), FormatPDF},
		{"png", []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0x00}, FormatPNG},
		{"jpeg", []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00}, FormatJPEG},
		{"gif87", []byte("GIF87a...."), FormatGIF},
		{"gif89", []byte("GIF89a...."), FormatGIF},
		{"tiff little endian", []byte{0x49, 0x49, 0x2A, 0x00, 0x08}, FormatTIFF},
		{"tiff big endian", []byte{0x4D, 0x4D, 0x00, 0x2A, 0x08}, FormatTIFF},
		{"bmp", []byte("BM\x00\x00\x00\x00"), FormatBMP},
		{"webp", append([]byte("RIFF\x00\x00\x00\x00WEBP"), 0x00), FormatWebP},
		{"plain text", []byte("hello world, this is not a scan"), FormatUnknown},
		{"too short", []byte{0x89, 0x50}, FormatUnknown},
		{"empty", nil, FormatUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectFormat(tt.data); got != tt.want {
				t.Errorf("DetectFormat = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormatIsImage(t *testing.T) {
	for _, f := range []Format{FormatPNG, FormatJPEG, FormatGIF, FormatTIFF, FormatBMP} {
		if !f.IsImage() {
			t.Errorf("%s should be a decodable image", f)
		}
	}
	for _, f := range []Format{FormatPDF, FormatWebP, FormatUnknown} {
		if f.IsImage() {
			t.Errorf("%s should not be a decodable image", f)
		}
	}
}
