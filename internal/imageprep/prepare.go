package imageprep

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"math"
	"net/http"
	"strings"

	"github.com/gen2brain/webp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // WebP decoder
)

var (
	// ErrDecode indicates the photo could not be loaded into a drawable surface.
	ErrDecode = errors.New("imageprep: decode failed")
	// ErrEncode indicates the resized surface could not be re-encoded.
	ErrEncode = errors.New("imageprep: encode failed")
)

const (
	DefaultMaxWidth  = 1024
	DefaultMaxHeight = 1024
	DefaultQuality   = 90
)

// Preparer downsamples user photos to bounded dimensions.
type Preparer struct {
	MaxWidth  int
	MaxHeight int
	Quality   int
}

// Prepared is a re-encoded photo ready for transmission.
type Prepared struct {
	Data   []byte
	MIME   string
	Width  int
	Height int
}

// New returns a Preparer, falling back to the default bound and quality for
// non-positive values.
func New(maxWidth, maxHeight, quality int) Preparer {
	if maxWidth <= 0 {
		maxWidth = DefaultMaxWidth
	}
	if maxHeight <= 0 {
		maxHeight = DefaultMaxHeight
	}
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}
	return Preparer{MaxWidth: maxWidth, MaxHeight: maxHeight, Quality: quality}
}

// Bounds computes the target size for a width x height image. Only the
// larger dimension is compared to its bound; the other follows the aspect
// ratio. Images already inside the bound keep their size.
func Bounds(width, height, maxWidth, maxHeight int) (int, int) {
	if width > height {
		if width > maxWidth {
			height = int(math.Round(float64(height) * float64(maxWidth) / float64(width)))
			width = maxWidth
		}
	} else {
		if height > maxHeight {
			width = int(math.Round(float64(width) * float64(maxHeight) / float64(height)))
			height = maxHeight
		}
	}
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}
	return width, height
}

// Prepare decodes data, scales it to the preparer bounds and re-encodes it
// with the same MIME type.
func (p Preparer) Prepare(data []byte, mimeType string) (Prepared, error) {
	if len(data) == 0 {
		return Prepared{}, fmt.Errorf("%w: empty image", ErrDecode)
	}

	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Prepared{}, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	mime := NormalizeMIME(mimeType, data)
	if mime == "" {
		mime = "image/" + format
	}

	bounds := src.Bounds()
	width, height := Bounds(bounds.Dx(), bounds.Dy(), p.MaxWidth, p.MaxHeight)

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)

	encoded, err := encode(dst, mime, p.quality())
	if err != nil {
		return Prepared{}, err
	}

	return Prepared{
		Data:   encoded,
		MIME:   mime,
		Width:  width,
		Height: height,
	}, nil
}

// Encode returns the base64 form of the prepared photo.
func (p Prepared) Encode() EncodedImage {
	return NewEncodedImage(p.Data, p.MIME)
}

func (p Preparer) quality() int {
	if p.Quality <= 0 || p.Quality > 100 {
		return DefaultQuality
	}
	return p.Quality
}

func encode(img image.Image, mime string, quality int) ([]byte, error) {
	var buf bytes.Buffer
	var err error

	switch mime {
	case "image/jpeg":
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality})
	case "image/png":
		err = png.Encode(&buf, img)
	case "image/gif":
		err = gif.Encode(&buf, img, nil)
	case "image/webp":
		err = webp.Encode(&buf, img, webp.Options{Quality: quality})
	default:
		return nil, fmt.Errorf("%w: unsupported output type %q", ErrEncode, mime)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncode, err)
	}
	return buf.Bytes(), nil
}

// NormalizeMIME cleans a declared content type, sniffing data when the
// declaration is missing or not an image. Returns "" when nothing fits.
func NormalizeMIME(declared string, data []byte) string {
	mime := strings.ToLower(strings.TrimSpace(declared))
	if idx := strings.Index(mime, ";"); idx >= 0 {
		mime = strings.TrimSpace(mime[:idx])
	}
	if mime == "image/jpg" || mime == "image/pjpeg" {
		mime = "image/jpeg"
	}
	if strings.HasPrefix(mime, "image/") {
		return mime
	}
	if len(data) == 0 {
		return ""
	}
	sniffed := http.DetectContentType(data)
	if strings.HasPrefix(sniffed, "image/") {
		return sniffed
	}
	return ""
}
