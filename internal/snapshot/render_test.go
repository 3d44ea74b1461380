package snapshot

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/image/font"

	"ootdStylist/internal/imageprep"
	"ootdStylist/internal/storage"
)

func jpegDataURI(t *testing.T, w, h int, c color.Color) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	return imageprep.NewEncodedImage(buf.Bytes(), "image/jpeg").DataURI()
}

func resultSession(t *testing.T) storage.Session {
	return storage.Session{
		ID:        "s1",
		Screen:    storage.ScreenResult,
		UserImage: jpegDataURI(t, 60, 80, color.RGBA{0x20, 0x40, 0x80, 0xFF}),
		Analysis: &storage.Analysis{
			Rating:      87,
			RatingTitle: "🔥 87/100",
			AlternativeOutfit: storage.AlternativeOutfit{
				ColorPalette: []storage.PaletteColor{
					{Name: "크림", Hex: "#FFFDD0"},
					{Name: "연청", Hex: "#A7C7E7"},
				},
			},
		},
		GeneratedImages: []string{
			jpegDataURI(t, 30, 40, color.White),
			jpegDataURI(t, 30, 40, color.Black),
		},
	}
}

func TestRenderProducesScaledPNG(t *testing.T) {
	data, err := Render(resultSession(t), Options{PixelRatio: 2})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode png: %v", err)
	}
	if got := img.Bounds().Dx(); got != cardWidth*2 {
		t.Errorf("width = %d, want %d", got, cardWidth*2)
	}
	if r, g, b, _ := img.At(2, 2).RGBA(); r>>8 != uint32(accent.R) || g>>8 != uint32(accent.G) || b>>8 != uint32(accent.B) {
		t.Errorf("header pixel = %v, want accent", img.At(2, 2))
	}

	single, err := Render(resultSession(t), Options{PixelRatio: 1})
	if err != nil {
		t.Fatalf("Render(ratio 1) error = %v", err)
	}
	small, _ := png.Decode(bytes.NewReader(single))
	// Hinted glyph metrics round per size, so the scaled height may drift by
	// a few pixels per text line.
	ratio := float64(img.Bounds().Dy()) / float64(small.Bounds().Dy())
	if ratio < 1.9 || ratio > 2.1 {
		t.Errorf("heights %d and %d do not scale with pixel ratio", small.Bounds().Dy(), img.Bounds().Dy())
	}
}

func renderHeight(t *testing.T, session storage.Session) int {
	t.Helper()
	data, err := Render(session, Options{PixelRatio: 1})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode png: %v", err)
	}
	return img.Bounds().Dy()
}

func TestRenderGrowsWithText(t *testing.T) {
	short := resultSession(t)
	short.Analysis.OverallFeedback = "Clean look."

	long := resultSession(t)
	long.Analysis.OverallFeedback = strings.Repeat("The navy blazer sharpens the silhouette and the loafers keep it relaxed. ", 12)

	if hs, hl := renderHeight(t, short), renderHeight(t, long); hl <= hs {
		t.Errorf("long feedback height = %d, want more than %d", hl, hs)
	}

	withTips := resultSession(t)
	withTips.Analysis.OverallFeedback = "Clean look."
	withTips.Analysis.ImprovementSuggestions = []storage.Suggestion{
		{Item: "Shoes", Suggestion: "Swap the sneakers for white leather ones."},
		{Item: "Bag", Suggestion: "A small crossbody bag balances the volume."},
	}
	if hs, ht := renderHeight(t, short), renderHeight(t, withTips); ht <= hs {
		t.Errorf("height with suggestions = %d, want more than %d", ht, hs)
	}
}

func TestRenderDrawsFeedbackText(t *testing.T) {
	blank := resultSession(t)
	blank.Analysis.OverallFeedback = "."
	written := resultSession(t)
	written.Analysis.OverallFeedback = "WWWWWWWWWW"

	a, err := Render(blank, Options{PixelRatio: 1})
	if err != nil {
		t.Fatal(err)
	}
	b, err := Render(written, Options{PixelRatio: 1})
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(a, b) {
		t.Error("cards with different feedback rendered identically")
	}
}

func testFace(t *testing.T) font.Face {
	t.Helper()
	fonts, err := LoadFonts("")
	if err != nil {
		t.Fatalf("LoadFonts() error = %v", err)
	}
	f, err := face(fonts.regular, bodySize)
	if err != nil {
		t.Fatalf("face() error = %v", err)
	}
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func TestWrap(t *testing.T) {
	f := testFace(t)
	const width = 120

	tests := []struct {
		name      string
		text      string
		wantLines int
	}{
		{"empty", "", 0},
		{"short", "Clean look.", 1},
		{"words", strings.Repeat("relaxed tailoring ", 10), 0},
		{"unbroken run", strings.Repeat("W", 60), 0},
		{"newline", "first\nsecond", 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lines := wrap(f, tt.text, width)
			if tt.wantLines > 0 && len(lines) != tt.wantLines {
				t.Errorf("lines = %q, want %d", lines, tt.wantLines)
			}
			if tt.wantLines == 0 && tt.text != "" && len(lines) < 2 {
				t.Errorf("lines = %q, want the text split", lines)
			}
			for _, l := range lines {
				if w := font.MeasureString(f, l).Ceil(); w > width {
					t.Errorf("line %q is %dpx wide, limit %d", l, w, width)
				}
			}
			if got, want := strings.Join(strings.Fields(strings.Join(lines, "")), ""), strings.Join(strings.Fields(tt.text), ""); got != want {
				t.Errorf("wrapped text lost characters: %q", got)
			}
		})
	}
}

func TestFaceSkipsUncoveredRunes(t *testing.T) {
	f := testFace(t)
	if adv := font.MeasureString(f, "🔥"); adv != 0 {
		t.Errorf("advance of uncovered rune = %v, want 0", adv)
	}
	if adv := font.MeasureString(f, "A"); adv <= 0 {
		t.Errorf("advance of A = %v, want positive", adv)
	}
	if got := truncate(f, strings.Repeat("Cream ", 20), 80); !strings.HasSuffix(got, "...") || font.MeasureString(f, got).Ceil() > 80 {
		t.Errorf("truncate() = %q", got)
	}
}

func TestLoadFonts(t *testing.T) {
	if _, err := LoadFonts(filepath.Join(t.TempDir(), "missing.ttf")); err == nil {
		t.Error("LoadFonts(missing) error = nil, want error")
	}
	bad := filepath.Join(t.TempDir(), "bad.ttf")
	if err := os.WriteFile(bad, []byte("not a font"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFonts(bad); err == nil {
		t.Error("LoadFonts(bad) error = nil, want error")
	}
	fonts, err := LoadFonts("")
	if err != nil {
		t.Fatalf("LoadFonts(\"\") error = %v", err)
	}
	if len(fonts.regular) != 1 || len(fonts.bold) != 1 {
		t.Errorf("bundled fonts = %d regular, %d bold", len(fonts.regular), len(fonts.bold))
	}
}

func TestRenderToleratesBrokenImages(t *testing.T) {
	session := resultSession(t)
	session.GeneratedImages = []string{"data:image/jpeg;base64,AAAA", "not-an-image"}
	if _, err := Render(session, Options{}); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
}

func TestRenderRejectsIncompleteSession(t *testing.T) {
	tests := map[string]func(*storage.Session){
		"home screen":    func(s *storage.Session) { s.Screen = storage.ScreenHome },
		"no analysis":    func(s *storage.Session) { s.Analysis = nil },
		"no user image":  func(s *storage.Session) { s.UserImage = "" },
		"no generations": func(s *storage.Session) { s.GeneratedImages = nil },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			session := resultSession(t)
			mutate(&session)
			if _, err := Render(session, Options{PixelRatio: 2}); !errors.Is(err, ErrIncomplete) {
				t.Errorf("error = %v, want ErrIncomplete", err)
			}
		})
	}
}

func TestParseHex(t *testing.T) {
	tests := []struct {
		in   string
		want color.RGBA
		ok   bool
	}{
		{"#FFFDD0", color.RGBA{0xFF, 0xFD, 0xD0, 0xFF}, true},
		{"a7c7e7", color.RGBA{0xA7, 0xC7, 0xE7, 0xFF}, true},
		{"#fff", color.RGBA{0xFF, 0xFF, 0xFF, 0xFF}, true},
		{"#12345", color.RGBA{}, false},
		{"#GGGGGG", color.RGBA{}, false},
	}
	for _, tt := range tests {
		got, ok := parseHex(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("parseHex(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}
