package vision

import (
	"context"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"ootdStylist/internal/config"
	"ootdStylist/internal/llm"
	"ootdStylist/pkg/logger"
)

const cloudScope = "https://www.googleapis.com/auth/cloud-platform"

// Backends bundles the analyzer and image generator selected by config.
type Backends struct {
	Analyzer  Analyzer
	Generator ImageGenerator

	imagen *VertexImagen
}

// NewBackends builds the analyzer ("sdk" or "rest") and the image generator
// ("sdk" or "predict") named in ai. Clients connect lazily, so missing
// credentials only fail the first call.
func NewBackends(ctx context.Context, ai config.AIConfig) *Backends {
	conn := NewConnector(ConnectorConfig{
		APIKey:   ai.APIKey,
		Backend:  ai.Backend,
		Project:  ai.Project,
		Location: ai.Location,
		BaseURL:  ai.BaseURL,
	})

	b := &Backends{}
	switch ai.Analyzer {
	case "rest":
		ts, err := tokenSource(ctx, ai)
		if err != nil {
			logger.Warnf("google credentials unavailable, REST analyzer needs an API key: %v", err)
		}
		b.Analyzer = NewRESTAnalyzer(llm.NewGeminiClient(ai.APIKey, ai.AnalysisModel, ai.Timeout, ts))
		logger.Infof("analyzer ready: Gemini REST (%s)", ai.AnalysisModel)
	default:
		b.Analyzer = NewGenAIAnalyzer(conn, ai.AnalysisModel)
		logger.Infof("analyzer ready: genai SDK (%s)", ai.AnalysisModel)
	}

	switch ai.ImageBackend {
	case "predict":
		b.imagen = NewVertexImagen(VertexImagenConfig{
			ProjectID:      ai.Project,
			Location:       ai.Location,
			Model:          ai.ImageModel,
			APIKey:         ai.APIKey,
			ServiceAccount: ai.ServiceAccountFile,
		})
		b.Generator = b.imagen
		logger.Infof("image generator ready: Vertex predict (%s)", ai.ImageModel)
	default:
		b.Generator = NewGenAIImagen(conn, ai.ImageModel)
		logger.Infof("image generator ready: genai SDK (%s)", ai.ImageModel)
	}
	return b
}

// Close releases the prediction client, if one was opened.
func (b *Backends) Close() error {
	if b == nil || b.imagen == nil {
		return nil
	}
	return b.imagen.Close()
}

// tokenSource returns nil when an API key is configured, otherwise credentials
// from the service account file or the environment defaults.
func tokenSource(ctx context.Context, ai config.AIConfig) (oauth2.TokenSource, error) {
	if ai.APIKey != "" {
		return nil, nil
	}
	if ai.ServiceAccountFile != "" {
		raw, err := os.ReadFile(ai.ServiceAccountFile)
		if err != nil {
			return nil, err
		}
		creds, err := google.CredentialsFromJSON(ctx, raw, cloudScope)
		if err != nil {
			return nil, err
		}
		return creds.TokenSource, nil
	}
	return google.DefaultTokenSource(ctx, cloudScope)
}
