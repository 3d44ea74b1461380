package vision

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"google.golang.org/genai"

	"ootdStylist/internal/imageprep"
	"ootdStylist/internal/llm"
	"ootdStylist/internal/prompts"
	"ootdStylist/internal/storage"
)

// Analyzer critiques an outfit photo.
type Analyzer interface {
	Analyze(ctx context.Context, img imageprep.EncodedImage) (storage.Analysis, error)
}

// GenAIAnalyzer implements Analyzer with the genai SDK and a response schema.
type GenAIAnalyzer struct {
	conn  *Connector
	model string
}

// NewGenAIAnalyzer constructs a schema-constrained analyzer.
func NewGenAIAnalyzer(conn *Connector, model string) *GenAIAnalyzer {
	model = strings.TrimPrefix(strings.TrimSpace(model), "models/")
	if model == "" {
		model = "gemini-2.5-flash"
	}
	return &GenAIAnalyzer{conn: conn, model: model}
}

// Analyze sends the photo with the stylist instruction and parses the JSON reply.
func (a *GenAIAnalyzer) Analyze(ctx context.Context, img imageprep.EncodedImage) (storage.Analysis, error) {
	data, err := checkImage(img)
	if err != nil {
		return storage.Analysis{}, err
	}

	client, err := a.conn.Client(ctx)
	if err != nil {
		return storage.Analysis{}, fmt.Errorf("%w: %w", ErrAnalysis, err)
	}

	model := a.model
	if override := llm.ModelFromContext(ctx); override != "" {
		model = override
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{genai.NewPartFromBytes(data, img.MIME)}, genai.RoleUser),
	}
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(prompts.SystemInstruction(), genai.RoleUser),
		ResponseMIMEType:  "application/json",
		ResponseSchema:    prompts.AnalysisSchema(),
	}

	resp, err := client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return storage.Analysis{}, fmt.Errorf("%w: generate content: %w", ErrAnalysis, err)
	}
	return ParseAnalysis(resp.Text())
}

// RESTAnalyzer implements Analyzer on top of the REST Gemini client.
type RESTAnalyzer struct {
	client llm.Client
}

// NewRESTAnalyzer wraps an llm.Client.
func NewRESTAnalyzer(client llm.Client) *RESTAnalyzer {
	return &RESTAnalyzer{client: client}
}

// Analyze posts the photo inline together with the instruction and schema.
func (a *RESTAnalyzer) Analyze(ctx context.Context, img imageprep.EncodedImage) (storage.Analysis, error) {
	if a == nil || a.client == nil {
		return storage.Analysis{}, fmt.Errorf("%w: %w", ErrAnalysis, ErrMissingCredentials)
	}
	if _, err := checkImage(img); err != nil {
		return storage.Analysis{}, err
	}

	text, err := a.client.GenerateJSON(ctx, llm.Request{
		SystemInstruction: prompts.SystemInstruction(),
		Parts: []llm.Part{{
			InlineData: &llm.InlineData{MIMEType: img.MIME, Data: img.Base64},
		}},
		ResponseSchema: prompts.AnalysisSchema(),
	})
	if err != nil {
		return storage.Analysis{}, fmt.Errorf("%w: %w", ErrAnalysis, err)
	}
	return ParseAnalysis(text)
}

func checkImage(img imageprep.EncodedImage) ([]byte, error) {
	if strings.TrimSpace(img.Base64) == "" {
		return nil, fmt.Errorf("%w: empty image", ErrAnalysis)
	}
	if strings.TrimSpace(img.MIME) == "" {
		return nil, fmt.Errorf("%w: missing image MIME type", ErrAnalysis)
	}
	data, err := img.Bytes()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAnalysis, err)
	}
	return data, nil
}

type wireAnalysis struct {
	Rating                 *float64              `json:"rating"`
	RatingTitle            *string               `json:"ratingTitle"`
	OverallFeedback        *string               `json:"overallFeedback"`
	ImprovementSuggestions *[]storage.Suggestion `json:"improvementSuggestions"`
	AlternativeOutfit      *struct {
		Description  *string                 `json:"description"`
		ColorPalette *[]storage.PaletteColor `json:"colorPalette"`
	} `json:"alternativeOutfit"`
	ImageGenerationPrompts *[]string `json:"imageGenerationPrompts"`
}

// ParseAnalysis decodes and validates a model reply. A reply wrapped in prose
// or code fences is accepted when the outermost object parses.
func ParseAnalysis(text string) (storage.Analysis, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return storage.Analysis{}, fmt.Errorf("%w: empty response", ErrAnalysis)
	}

	var wire wireAnalysis
	if err := json.Unmarshal([]byte(text), &wire); err != nil {
		start := strings.Index(text, "{")
		end := strings.LastIndex(text, "}")
		if start < 0 || end <= start {
			return storage.Analysis{}, fmt.Errorf("%w: parse response: %w", ErrAnalysis, err)
		}
		wire = wireAnalysis{}
		if err := json.Unmarshal([]byte(text[start:end+1]), &wire); err != nil {
			return storage.Analysis{}, fmt.Errorf("%w: parse response: %w", ErrAnalysis, err)
		}
	}

	analysis, err := wire.validate()
	if err != nil {
		return storage.Analysis{}, fmt.Errorf("%w: %w", ErrAnalysis, err)
	}
	return analysis, nil
}

func (w wireAnalysis) validate() (storage.Analysis, error) {
	var missing []string
	required := func(name string, value *string) string {
		if value == nil || strings.TrimSpace(*value) == "" {
			missing = append(missing, name)
			return ""
		}
		return strings.TrimSpace(*value)
	}

	out := storage.Analysis{
		RatingTitle:     required("ratingTitle", w.RatingTitle),
		OverallFeedback: required("overallFeedback", w.OverallFeedback),
	}

	if w.Rating == nil {
		missing = append(missing, "rating")
	} else {
		out.Rating = int(math.Round(*w.Rating))
	}

	if w.ImprovementSuggestions == nil {
		missing = append(missing, "improvementSuggestions")
	} else {
		for i, s := range *w.ImprovementSuggestions {
			item := required(fmt.Sprintf("improvementSuggestions[%d].item", i), &s.Item)
			suggestion := required(fmt.Sprintf("improvementSuggestions[%d].suggestion", i), &s.Suggestion)
			out.ImprovementSuggestions = append(out.ImprovementSuggestions, storage.Suggestion{Item: item, Suggestion: suggestion})
		}
		if out.ImprovementSuggestions == nil {
			out.ImprovementSuggestions = []storage.Suggestion{}
		}
	}

	if w.AlternativeOutfit == nil {
		missing = append(missing, "alternativeOutfit")
	} else {
		out.AlternativeOutfit.Description = required("alternativeOutfit.description", w.AlternativeOutfit.Description)
		if w.AlternativeOutfit.ColorPalette == nil {
			missing = append(missing, "alternativeOutfit.colorPalette")
		} else {
			out.AlternativeOutfit.ColorPalette = []storage.PaletteColor{}
			for i, c := range *w.AlternativeOutfit.ColorPalette {
				name := required(fmt.Sprintf("colorPalette[%d].name", i), &c.Name)
				hex := required(fmt.Sprintf("colorPalette[%d].hex", i), &c.Hex)
				out.AlternativeOutfit.ColorPalette = append(out.AlternativeOutfit.ColorPalette, storage.PaletteColor{Name: name, Hex: hex})
			}
		}
	}

	if w.ImageGenerationPrompts == nil {
		missing = append(missing, "imageGenerationPrompts")
	} else {
		for i, p := range *w.ImageGenerationPrompts {
			out.ImageGenerationPrompts = append(out.ImageGenerationPrompts, required(fmt.Sprintf("imageGenerationPrompts[%d]", i), &p))
		}
	}

	if len(missing) > 0 {
		return storage.Analysis{}, fmt.Errorf("missing or empty fields: %s", strings.Join(missing, ", "))
	}
	if out.Rating < 0 || out.Rating > 100 {
		return storage.Analysis{}, fmt.Errorf("rating %d outside 0..100", out.Rating)
	}
	if len(out.ImageGenerationPrompts) != prompts.PromptCount {
		return storage.Analysis{}, fmt.Errorf("expected %d image prompts, got %d", prompts.PromptCount, len(out.ImageGenerationPrompts))
	}
	return out, nil
}
