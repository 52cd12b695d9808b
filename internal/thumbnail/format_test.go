package thumbnail

import "testing"

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name   string
		header []byte
		want   Format
		ok     bool
	}{
		{"jpeg", []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F'}, FormatJPEG, true},
		{"png", []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}, FormatPNG, true},
		{"gif87a", []byte("GIF87a"), FormatGIF, true},
		{"gif89a", []byte("GIF89a"), FormatGIF, true},
		{"webp", []byte("RIFF\x00\x00\x00\x00WEBPVP8 "), FormatWebP, true},
		{"bmp", []byte("BM\x36\x00\x00\x00"), FormatBMP, true},
		{"tiff little endian", []byte{0x49, 0x49, 0x2A, 0x00}, FormatTIFF, true},
		{"tiff big endian", []byte{0x4D, 0x4D, 0x00, 0x2A}, FormatTIFF, true},
		{"text", []byte("hello world, not an image"), FormatUnknown, false},
		{"empty", nil, FormatUnknown, false},
		{"truncated jpeg", []byte{0xFF, 0xD8}, FormatUnknown, false},
		{"riff but not webp", []byte("RIFF\x00\x00\x00\x00WAVEfmt "), FormatUnknown, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := DetectFormat(tt.header)
			if got != tt.want || ok != tt.ok {
				t.Errorf("DetectFormat() = (%v, %v), want (%v, %v)", got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestFormatString(t *testing.T) {
	if got := FormatJPEG.String(); got != "jpeg" {
		t.Errorf("FormatJPEG.String() = %q, want %q", got, "jpeg")
	}
	if got := FormatUnknown.String(); got != "unknown" {
		t.Errorf("FormatUnknown.String() = %q, want %q", got, "unknown")
	}
	if got := Format(99).String(); got != "unknown" {
		t.Errorf("Format(99).String() = %q, want %q", got, "unknown")
	}
}
