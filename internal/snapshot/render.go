package snapshot

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"strconv"
	"strings"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/sfnt"
	"golang.org/x/image/math/fixed"
	_ "golang.org/x/image/webp"

	"ootdStylist/internal/imageprep"
	"ootdStylist/internal/storage"
)

// Filename is the download name of an exported result card.
const Filename = "ai-fashion-stylist-result.png"

// DefaultPixelRatio matches the device pixel ratio of the exported card.
const DefaultPixelRatio = 2

// ErrIncomplete is returned for sessions that are not showing a result.
var ErrIncomplete = errors.New("snapshot: session has no result to render")

// Layout in logical pixels.
const (
	cardWidth     = 400
	padding       = 20
	headerHeight  = 52
	photoHeight   = 480
	barHeight     = 12
	sectionGap    = 24
	indent        = 12
	swatchSize    = 40
	swatchCell    = 60
	generatedGap  = 10
	ratingMaximum = 100
	lineSpacing   = 1.35
)

// Font sizes in points at pixel ratio 1.
const (
	headingSize = 18
	ratingSize  = 40
	titleSize   = 17
	labelSize   = 15
	bodySize    = 13
	smallSize   = 10
)

var (
	background  = color.RGBA{0xFD, 0xF7, 0xF9, 0xFF}
	accent      = color.RGBA{0xEC, 0x48, 0x99, 0xFF}
	ink         = color.RGBA{0x37, 0x41, 0x51, 0xFF}
	muted       = color.RGBA{0x6B, 0x72, 0x80, 0xFF}
	track       = color.RGBA{0xE5, 0xE7, 0xEB, 0xFF}
	placeholder = color.RGBA{0xD1, 0xD5, 0xDB, 0xFF}
)

// Labels are the section headings drawn on the card.
type Labels struct {
	Heading     string
	Feedback    string
	Suggestions string
	Alternative string
	Generated   string
}

var defaultLabels = Labels{
	Heading:     "AI Style Analysis",
	Feedback:    "Overall feedback",
	Suggestions: "Style suggestions",
	Alternative: "How about this look?",
	Generated:   "AI outfit ideas",
}

// Options tunes Render.
type Options struct {
	// PixelRatio below 1 uses DefaultPixelRatio.
	PixelRatio int
	// Fonts nil uses the bundled Go fonts.
	Fonts *Fonts
	// Empty labels fall back to English.
	Labels Labels
}

// Render rasterises the result card of session to PNG: header, user photo,
// rating, feedback, suggestions, the alternative outfit with its palette and
// the generated images. The card grows with its text.
func Render(session storage.Session, opts Options) ([]byte, error) {
	if session.Screen != storage.ScreenResult || session.Analysis == nil || session.UserImage == "" || len(session.GeneratedImages) == 0 {
		return nil, ErrIncomplete
	}
	if opts.PixelRatio < 1 {
		opts.PixelRatio = DefaultPixelRatio
	}
	fonts := opts.Fonts
	if fonts == nil {
		var err error
		if fonts, err = LoadFonts(""); err != nil {
			return nil, err
		}
	}

	c := &card{ratio: opts.PixelRatio, labels: withDefaults(opts.Labels)}
	if err := c.openFaces(fonts); err != nil {
		return nil, err
	}
	defer c.closeFaces()

	c.layout(session)
	height := c.y

	c.dst = image.NewRGBA(image.Rect(0, 0, c.px(cardWidth), height))
	c.y = 0
	c.layout(session)

	var buf bytes.Buffer
	if err := png.Encode(&buf, c.dst); err != nil {
		return nil, fmt.Errorf("snapshot: encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func withDefaults(l Labels) Labels {
	pick := func(v, fallback string) string {
		if strings.TrimSpace(v) == "" {
			return fallback
		}
		return v
	}
	return Labels{
		Heading:     pick(l.Heading, defaultLabels.Heading),
		Feedback:    pick(l.Feedback, defaultLabels.Feedback),
		Suggestions: pick(l.Suggestions, defaultLabels.Suggestions),
		Alternative: pick(l.Alternative, defaultLabels.Alternative),
		Generated:   pick(l.Generated, defaultLabels.Generated),
	}
}

// card lays the result out in device pixels. With a nil dst it only advances
// y, which measures the height.
type card struct {
	dst    *image.RGBA
	ratio  int
	labels Labels
	y      int

	heading, rating, title, label, body, bold, small font.Face
}

func (c *card) openFaces(fonts *Fonts) error {
	specs := []struct {
		dst  *font.Face
		set  []*sfnt.Font
		size float64
	}{
		{&c.heading, fonts.bold, headingSize},
		{&c.rating, fonts.bold, ratingSize},
		{&c.title, fonts.bold, titleSize},
		{&c.label, fonts.bold, labelSize},
		{&c.body, fonts.regular, bodySize},
		{&c.bold, fonts.bold, bodySize},
		{&c.small, fonts.regular, smallSize},
	}
	for _, s := range specs {
		f, err := face(s.set, s.size*float64(c.ratio))
		if err != nil {
			c.closeFaces()
			return err
		}
		*s.dst = f
	}
	return nil
}

func (c *card) closeFaces() {
	for _, f := range []font.Face{c.heading, c.rating, c.title, c.label, c.body, c.bold, c.small} {
		if f != nil {
			_ = f.Close()
		}
	}
}

func (c *card) px(v int) int {
	return v * c.ratio
}

func (c *card) layout(s storage.Session) {
	a := s.Analysis
	pad, inner := c.px(padding), c.px(cardWidth-2*padding)

	if c.dst != nil {
		c.fill(c.dst.Bounds(), background)
	}
	c.fill(image.Rect(0, 0, c.px(cardWidth), c.px(headerHeight)), accent)
	c.y = (c.px(headerHeight) - lineHeight(c.heading, 1)) / 2
	c.line(c.heading, c.labels.Heading, pad, color.White)
	c.y = c.px(headerHeight) + pad

	c.photo(s.UserImage, image.Rect(pad, c.y, pad+inner, c.y+c.px(photoHeight)))
	c.y += c.px(photoHeight) + pad

	rating := clampRating(a.Rating)
	c.line(c.rating, fmt.Sprintf("%d/%d", rating, ratingMaximum), pad, accent)
	c.paragraph(c.title, a.RatingTitle, pad, inner, ink)
	c.y += c.px(8)
	c.fill(image.Rect(pad, c.y, pad+inner, c.y+c.px(barHeight)), track)
	c.fill(image.Rect(pad, c.y, pad+inner*rating/ratingMaximum, c.y+c.px(barHeight)), accent)
	c.y += c.px(barHeight)

	c.section(c.labels.Feedback)
	c.paragraph(c.body, a.OverallFeedback, pad, inner, ink)

	if len(a.ImprovementSuggestions) > 0 {
		c.section(c.labels.Suggestions)
		for i, sg := range a.ImprovementSuggestions {
			if i > 0 {
				c.y += c.px(6)
			}
			c.paragraph(c.bold, sg.Item, pad, inner, ink)
			c.paragraph(c.body, sg.Suggestion, pad+c.px(indent), inner-c.px(indent), muted)
		}
	}

	c.section(c.labels.Alternative)
	c.paragraph(c.body, a.AlternativeOutfit.Description, pad, inner, ink)
	c.palette(a.AlternativeOutfit.ColorPalette, pad, inner)

	c.section(c.labels.Generated)
	c.tiles(s.GeneratedImages, pad, inner)
	c.y += pad
}

func (c *card) section(title string) {
	c.y += c.px(sectionGap)
	c.line(c.label, title, c.px(padding), accent)
	c.y += c.px(4)
}

func (c *card) palette(colors []storage.PaletteColor, x, width int) {
	if len(colors) == 0 {
		return
	}
	c.y += c.px(10)
	cell := c.px(swatchCell)
	perRow := width / cell
	if perRow < 1 {
		perRow = 1
	}
	rowHeight := c.px(swatchSize+4) + 2*lineHeight(c.small, lineSpacing) + c.px(8)
	rows := (len(colors) + perRow - 1) / perRow
	top := c.y
	for i, swatch := range colors {
		cx := x + (i%perRow)*cell
		c.y = top + (i/perRow)*rowHeight
		fill, ok := parseHex(swatch.Hex)
		if !ok {
			fill = placeholder
		}
		c.fill(image.Rect(cx, c.y, cx+c.px(swatchSize), c.y+c.px(swatchSize)), fill)
		c.y += c.px(swatchSize + 4)
		c.line(c.small, truncate(c.small, swatch.Name, cell-c.px(4)), cx, ink)
		c.line(c.small, strings.ToUpper(swatch.Hex), cx, muted)
	}
	c.y = top + rows*rowHeight
}

func (c *card) tiles(images []string, x, width int) {
	c.y += c.px(6)
	n := len(images)
	gap := c.px(generatedGap)
	tileWidth := (width - gap*(n-1)) / n
	tileHeight := tileWidth * 4 / 3
	for i, uri := range images {
		left := x + i*(tileWidth+gap)
		c.photo(uri, image.Rect(left, c.y, left+tileWidth, c.y+tileHeight))
	}
	c.y += tileHeight
}

// paragraph draws text wrapped to width and advances y past it.
func (c *card) paragraph(face font.Face, text string, x, width int, col color.Color) {
	for _, l := range wrap(face, text, width) {
		c.line(face, l, x, col)
	}
}

// line draws one line with its top at y and advances y.
func (c *card) line(face font.Face, text string, x int, col color.Color) {
	if c.dst != nil && text != "" {
		d := &font.Drawer{
			Dst:  c.dst,
			Src:  image.NewUniform(col),
			Face: face,
			Dot:  fixed.P(x, c.y+face.Metrics().Ascent.Ceil()),
		}
		d.DrawString(text)
	}
	c.y += lineHeight(face, lineSpacing)
}

func (c *card) fill(r image.Rectangle, col color.Color) {
	if c.dst == nil {
		return
	}
	draw.Draw(c.dst, r, image.NewUniform(col), image.Point{}, draw.Src)
}

// photo draws the data URI image centred inside box, preserving its aspect
// ratio. Undecodable images leave a placeholder.
func (c *card) photo(uri string, box image.Rectangle) {
	if c.dst == nil {
		return
	}
	c.fill(box, placeholder)
	src, err := decodeDataURI(uri)
	if err != nil {
		return
	}
	sb := src.Bounds()
	if sb.Empty() {
		return
	}
	w, h := box.Dx(), box.Dy()
	tw, th := w, sb.Dy()*w/sb.Dx()
	if th > h {
		th = h
		tw = sb.Dx() * h / sb.Dy()
	}
	origin := image.Pt(box.Min.X+(w-tw)/2, box.Min.Y+(h-th)/2)
	draw.CatmullRom.Scale(c.dst, image.Rectangle{Min: origin, Max: origin.Add(image.Pt(tw, th))}, src, sb, draw.Over, nil)
}

func lineHeight(face font.Face, spacing float64) int {
	m := face.Metrics()
	return int(float64((m.Ascent + m.Descent).Ceil()) * spacing)
}

// wrap breaks text into lines no wider than width. Words are split at spaces;
// a word wider than a line (Hangul runs without spaces, URLs) is split
// between runes.
func wrap(face font.Face, text string, width int) []string {
	var lines []string
	for _, para := range strings.Split(text, "\n") {
		line := ""
		for _, word := range strings.Fields(para) {
			candidate := word
			if line != "" {
				candidate = line + " " + word
			}
			if font.MeasureString(face, candidate).Ceil() <= width {
				line = candidate
				continue
			}
			if line != "" {
				lines = append(lines, line)
			}
			for font.MeasureString(face, word).Ceil() > width {
				head, rest := fitPrefix(face, word, width)
				if rest == "" {
					break
				}
				lines = append(lines, head)
				word = rest
			}
			line = word
		}
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// fitPrefix returns the longest prefix of s that fits width, keeping at least
// one rune, and the remainder.
func fitPrefix(face font.Face, s string, width int) (string, string) {
	limit := fixed.I(width)
	var advance fixed.Int26_6
	prev := rune(-1)
	for i, r := range s {
		a, _ := face.GlyphAdvance(r)
		if prev >= 0 {
			a += face.Kern(prev, r)
		}
		if i > 0 && advance+a > limit {
			return s[:i], s[i:]
		}
		advance += a
		prev = r
	}
	return s, ""
}

func truncate(face font.Face, s string, width int) string {
	if font.MeasureString(face, s).Ceil() <= width {
		return s
	}
	const ellipsis = "..."
	head, _ := fitPrefix(face, s, width-font.MeasureString(face, ellipsis).Ceil())
	return head + ellipsis
}

func decodeDataURI(uri string) (image.Image, error) {
	encoded, err := imageprep.ParseDataURI(uri)
	if err != nil {
		return nil, err
	}
	data, err := encoded.Bytes()
	if err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	return img, err
}

func clampRating(rating int) int {
	switch {
	case rating < 0:
		return 0
	case rating > ratingMaximum:
		return ratingMaximum
	default:
		return rating
	}
}

// parseHex accepts #RGB and #RRGGBB.
func parseHex(raw string) (color.RGBA, bool) {
	hex := strings.TrimPrefix(strings.TrimSpace(raw), "#")
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) != 6 {
		return color.RGBA{}, false
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.RGBA{}, false
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xFF}, true
}
