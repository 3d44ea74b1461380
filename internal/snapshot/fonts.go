package snapshot

import (
	"bytes"
	"fmt"
	"image"
	"os"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/font/sfnt"
	"golang.org/x/image/math/fixed"
)

// Fonts holds the typefaces of the card in lookup order. A rune missing from
// the first font is drawn with the next one that has it.
type Fonts struct {
	regular []*sfnt.Font
	bold    []*sfnt.Font
}

var goFonts = sync.OnceValues(func() (*Fonts, error) {
	regular, err := opentype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("snapshot: parse go regular: %w", err)
	}
	bold, err := opentype.Parse(gobold.TTF)
	if err != nil {
		return nil, fmt.Errorf("snapshot: parse go bold: %w", err)
	}
	return &Fonts{regular: []*sfnt.Font{regular}, bold: []*sfnt.Font{bold}}, nil
})

// LoadFonts reads a TrueType/OpenType font or collection from path and puts
// it in front of the bundled Go fonts. Hangul needs such a font; the Go fonts
// only cover Latin, Greek and Cyrillic. An empty path returns the Go fonts.
func LoadFonts(path string) (*Fonts, error) {
	base, err := goFonts()
	if err != nil {
		return nil, err
	}
	if path == "" {
		return base, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("snapshot: read font: %w", err)
	}
	custom, err := parseFont(data)
	if err != nil {
		return nil, fmt.Errorf("snapshot: parse %s: %w", path, err)
	}
	return &Fonts{
		regular: append([]*sfnt.Font{custom}, base.regular...),
		bold:    append([]*sfnt.Font{custom}, base.bold...),
	}, nil
}

func parseFont(data []byte) (*sfnt.Font, error) {
	if bytes.HasPrefix(data, []byte("ttcf")) {
		coll, err := opentype.ParseCollection(data)
		if err != nil {
			return nil, err
		}
		return coll.Font(0)
	}
	return opentype.Parse(data)
}

// face builds a font.Face of size points over fonts.
func face(fonts []*sfnt.Font, size float64) (font.Face, error) {
	chain := &chainFace{fonts: fonts}
	for _, f := range fonts {
		ff, err := opentype.NewFace(f, &opentype.FaceOptions{
			Size:    size,
			DPI:     72,
			Hinting: font.HintingFull,
		})
		if err != nil {
			chain.Close()
			return nil, fmt.Errorf("snapshot: font face: %w", err)
		}
		chain.faces = append(chain.faces, ff)
	}
	return chain, nil
}

// chainFace draws each rune with the first font that has a glyph for it.
// Runes no font covers are skipped.
type chainFace struct {
	fonts []*sfnt.Font
	faces []font.Face
	buf   sfnt.Buffer
}

func (c *chainFace) pick(r rune) font.Face {
	for i, f := range c.fonts {
		if idx, err := f.GlyphIndex(&c.buf, r); err == nil && idx != 0 {
			return c.faces[i]
		}
	}
	return nil
}

func (c *chainFace) Close() error {
	for _, f := range c.faces {
		_ = f.Close()
	}
	return nil
}

func (c *chainFace) Glyph(dot fixed.Point26_6, r rune) (image.Rectangle, image.Image, image.Point, fixed.Int26_6, bool) {
	f := c.pick(r)
	if f == nil {
		return image.Rectangle{}, nil, image.Point{}, 0, false
	}
	return f.Glyph(dot, r)
}

func (c *chainFace) GlyphBounds(r rune) (fixed.Rectangle26_6, fixed.Int26_6, bool) {
	f := c.pick(r)
	if f == nil {
		return fixed.Rectangle26_6{}, 0, false
	}
	return f.GlyphBounds(r)
}

func (c *chainFace) GlyphAdvance(r rune) (fixed.Int26_6, bool) {
	f := c.pick(r)
	if f == nil {
		return 0, false
	}
	return f.GlyphAdvance(r)
}

func (c *chainFace) Kern(r0, r1 rune) fixed.Int26_6 {
	f := c.pick(r0)
	if f == nil || f != c.pick(r1) {
		return 0
	}
	return f.Kern(r0, r1)
}

func (c *chainFace) Metrics() font.Metrics {
	return c.faces[0].Metrics()
}
