package thumbnail

// Format is one of the image formats the pipeline can decode. The set is
// closed: adding a format means adding a constant and a signature below.
type Format int

const (
	FormatUnknown Format = iota
	FormatJPEG
	FormatPNG
	FormatGIF
	FormatWebP
	FormatBMP
	FormatTIFF
)

// String returns the canonical lower-case format name.
func (f Format) String() string {
	switch f {
	case FormatJPEG:
		return "jpeg"
	case FormatPNG:
		return "png"
	case FormatGIF:
		return "gif"
	case FormatWebP:
		return "webp"
	case FormatBMP:
		return "bmp"
	case FormatTIFF:
		return "tiff"
	default:
		return "unknown"
	}
}

// sniffLen is how many leading bytes DetectFormat needs.
const sniffLen = 16

// DetectFormat identifies the image format from the file's leading bytes.
// File extensions are caller-supplied and untrusted, so dispatch is done on
// content signatures only.
func DetectFormat(header []byte) (Format, bool) {
	switch {
	case len(header) >= 3 && header[0] == 0xFF && header[1] == 0xD8 && header[2] == 0xFF:
		return FormatJPEG, true

	case len(header) >= 8 && header[0] == 0x89 && header[1] == 0x50 && header[2] == 0x4E && header[3] == 0x47 &&
		header[4] == 0x0D && header[5] == 0x0A && header[6] == 0x1A && header[7] == 0x0A:
		return FormatPNG, true

	case len(header) >= 6 && header[0] == 'G' && header[1] == 'I' && header[2] == 'F' && header[3] == '8' &&
		(header[4] == '7' || header[4] == '9') && header[5] == 'a':
		return FormatGIF, true

	case len(header) >= 12 && header[0] == 'R' && header[1] == 'I' && header[2] == 'F' && header[3] == 'F' &&
		header[8] == 'W' && header[9] == 'E' && header[10] == 'B' && header[11] == 'P':
		return FormatWebP, true

	case len(header) >= 2 && header[0] == 'B' && header[1] == 'M':
		return FormatBMP, true

	case len(header) >= 4 && ((header[0] == 0x49 && header[1] == 0x49 && header[2] == 0x2A && header[3] == 0x00) ||
		(header[0] == 0x4D && header[1] == 0x4D && header[2] == 0x00 && header[3] == 0x2A)):
		return FormatTIFF, true
	}

	return FormatUnknown, false
}
