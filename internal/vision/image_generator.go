package vision

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"
	"google.golang.org/genai"

	"ootdStylist/internal/imageprep"
)

const (
	defaultImageModel = "imagen-4.0-generate-001"
	generatedMIME     = "image/jpeg"
	generatedAspect   = "3:4"
	imagesPerPrompt   = 1
)

// ImageGenerator renders one outfit photo per prompt.
type ImageGenerator interface {
	Generate(ctx context.Context, prompt string) (GeneratedImage, error)
}

// GeneratedImage is a rendered picture in raw bytes.
type GeneratedImage struct {
	Data []byte
	MIME string
}

// DataURI renders the image as a base64 data URI.
func (g GeneratedImage) DataURI() string {
	mime := g.MIME
	if strings.TrimSpace(mime) == "" {
		mime = generatedMIME
	}
	return imageprep.DataURI(mime, base64.StdEncoding.EncodeToString(g.Data))
}

// GenAIImagen renders images through the genai SDK's Imagen endpoint.
type GenAIImagen struct {
	conn  *Connector
	model string
}

// NewGenAIImagen constructs an Imagen generator.
func NewGenAIImagen(conn *Connector, model string) *GenAIImagen {
	model = strings.TrimPrefix(strings.TrimSpace(model), "models/")
	if model == "" {
		model = defaultImageModel
	}
	return &GenAIImagen{conn: conn, model: model}
}

// Generate requests a single 3:4 JPEG for prompt.
func (g *GenAIImagen) Generate(ctx context.Context, prompt string) (GeneratedImage, error) {
	if strings.TrimSpace(prompt) == "" {
		return GeneratedImage{}, fmt.Errorf("vision: empty image prompt")
	}
	client, err := g.conn.Client(ctx)
	if err != nil {
		return GeneratedImage{}, err
	}

	resp, err := client.Models.GenerateImages(ctx, g.model, prompt, &genai.GenerateImagesConfig{
		NumberOfImages: imagesPerPrompt,
		OutputMIMEType: generatedMIME,
		AspectRatio:    generatedAspect,
	})
	if err != nil {
		return GeneratedImage{}, fmt.Errorf("vision: generate images: %w", err)
	}
	if resp == nil || len(resp.GeneratedImages) == 0 {
		return GeneratedImage{}, fmt.Errorf("vision: imagen returned no images")
	}
	img := resp.GeneratedImages[0].Image
	if img == nil || len(img.ImageBytes) == 0 {
		return GeneratedImage{}, fmt.Errorf("vision: imagen returned an empty image")
	}
	mime := img.MIMEType
	if strings.TrimSpace(mime) == "" {
		mime = generatedMIME
	}
	return GeneratedImage{Data: img.ImageBytes, MIME: mime}, nil
}

// GenerateAll renders every prompt concurrently and returns the data URIs in
// prompt order. The first failure cancels the remaining calls and nothing is
// returned.
func GenerateAll(ctx context.Context, gen ImageGenerator, prompts []string) ([]string, error) {
	if gen == nil {
		return nil, fmt.Errorf("%w: %w", ErrGeneration, ErrMissingCredentials)
	}
	if len(prompts) == 0 {
		return nil, fmt.Errorf("%w: no prompts", ErrGeneration)
	}

	images := make([]string, len(prompts))
	group, groupCtx := errgroup.WithContext(ctx)
	for i, prompt := range prompts {
		group.Go(func() error {
			img, err := gen.Generate(groupCtx, prompt)
			if err != nil {
				return fmt.Errorf("prompt %d: %w", i+1, err)
			}
			images[i] = img.DataURI()
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGeneration, err)
	}
	return images, nil
}
