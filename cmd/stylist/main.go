package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"ootdStylist/internal/config"
	"ootdStylist/internal/imageprep"
	"ootdStylist/internal/llm"
	"ootdStylist/internal/locales"
	"ootdStylist/internal/snapshot"
	"ootdStylist/internal/storage"
	"ootdStylist/internal/stylist"
	"ootdStylist/internal/vision"
	"ootdStylist/pkg/logger"
)

// styleError is a failure of the styling chain itself, shown to the user in
// the configured locale.
type styleError struct {
	message string
	err     error
}

func (e *styleError) Error() string { return e.err.Error() }
func (e *styleError) Unwrap() error { return e.err }

func main() {
	if err := run(); err != nil {
		var styled *styleError
		if errors.As(err, &styled) {
			logger.Errorf("styling failed: %v", styled.err)
			fmt.Fprintln(os.Stderr, styled.message)
		} else {
			fmt.Fprintf(os.Stderr, "stylist: %v\n", err)
		}
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath = flag.String("config", "config.json", "Path to an optional config file")
		photoPath  = flag.String("photo", "", "Outfit photo to analyse (jpeg, png, gif or webp)")
		outDir     = flag.String("out", "stylist-result", "Folder that receives result.json, the generated images and the snapshot")
		locale     = flag.String("locale", "", fmt.Sprintf("Message locale: %s (defaults to the configured one)", strings.Join(locales.Available(), ", ")))
		model      = flag.String("model", "", "Analysis model override for this run")
	)
	flag.Parse()

	if strings.TrimSpace(*photoPath) == "" {
		return errors.New("-photo is required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if *locale == "" {
		*locale = cfg.Locale
	}
	messages := locales.Get(*locale)

	raw, err := os.ReadFile(*photoPath)
	if err != nil {
		return fmt.Errorf("read photo: %w", err)
	}
	fonts, err := snapshot.LoadFonts(cfg.Snapshot.FontFile)
	if err != nil {
		return fmt.Errorf("load snapshot font: %w", err)
	}

	ctx := context.Background()
	if cfg.AI.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.AI.Timeout)
		defer cancel()
	}

	backends := vision.NewBackends(ctx, cfg.AI)
	defer backends.Close()

	preparer := imageprep.New(cfg.Image.MaxWidth, cfg.Image.MaxHeight, cfg.Image.Quality)
	prepared, err := preparer.Prepare(raw, imageprep.NormalizeMIME("", raw))
	if err != nil {
		return failure(messages, err)
	}
	encoded := prepared.Encode()

	logger.Infof("analysing %s (%dx%d)", *photoPath, prepared.Width, prepared.Height)
	analysis, images, err := stylist.Style(llm.WithModel(ctx, *model), backends.Analyzer, backends.Generator, encoded)
	if err != nil {
		return failure(messages, err)
	}

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		return fmt.Errorf("create output folder: %w", err)
	}
	if err := writeJSON(filepath.Join(*outDir, "result.json"), analysis); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	for i, uri := range images {
		if err := writeImage(*outDir, i+1, uri); err != nil {
			return err
		}
	}

	png, err := snapshot.Render(storage.Session{
		Screen:          storage.ScreenResult,
		UserImage:       encoded.DataURI(),
		Analysis:        &analysis,
		GeneratedImages: images,
	}, snapshot.Options{
		PixelRatio: snapshot.DefaultPixelRatio,
		Fonts:      fonts,
		Labels: snapshot.Labels{
			Heading:     messages.Result.Heading,
			Feedback:    messages.Result.Feedback,
			Suggestions: messages.Result.Suggestions,
			Alternative: messages.Result.Alternative,
			Generated:   messages.Result.Generated,
		},
	})
	if err != nil {
		return fmt.Errorf("render snapshot: %w", err)
	}
	if err := os.WriteFile(filepath.Join(*outDir, snapshot.Filename), png, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}

	fmt.Printf("%d/100 %s\n%s\n", analysis.Rating, analysis.RatingTitle, analysis.OverallFeedback)
	fmt.Printf("wrote %s\n", *outDir)
	return nil
}

func failure(messages *locales.Messages, err error) error {
	return &styleError{message: messages.ErrorMessage(string(stylist.Classify(err))), err: err}
}

func writeImage(dir string, n int, uri string) error {
	img, err := imageprep.ParseDataURI(uri)
	if err != nil {
		return fmt.Errorf("decode generated image %d: %w", n, err)
	}
	data, err := img.Bytes()
	if err != nil {
		return fmt.Errorf("decode generated image %d: %w", n, err)
	}
	name := fmt.Sprintf("image-%d%s", n, extension(img.MIME))
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

func writeJSON(path string, payload any) error {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func extension(mime string) string {
	switch mime {
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	default:
		return ".jpg"
	}
}
