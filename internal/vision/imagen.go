package vision

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"

	aiplatform "cloud.google.com/go/aiplatform/apiv1"
	"cloud.google.com/go/aiplatform/apiv1/aiplatformpb"
	"google.golang.org/api/option"
	"google.golang.org/protobuf/types/known/structpb"
)

// VertexImagen implements ImageGenerator via the Vertex AI prediction API.
type VertexImagen struct {
	projectID      string
	location       string
	model          string
	apiKey         string
	serviceAccount string

	mu     sync.Mutex
	client *aiplatform.PredictionClient
}

// VertexImagenConfig describes how to connect to Imagen.
type VertexImagenConfig struct {
	ProjectID      string
	Location       string
	Model          string
	APIKey         string
	ServiceAccount string
}

// NewVertexImagen wires a VertexImagen client.
func NewVertexImagen(cfg VertexImagenConfig) *VertexImagen {
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultImageModel
	}
	location := strings.TrimSpace(cfg.Location)
	if location == "" {
		location = "us-central1"
	}
	return &VertexImagen{
		projectID:      strings.TrimSpace(cfg.ProjectID),
		location:       location,
		model:          model,
		apiKey:         strings.TrimSpace(cfg.APIKey),
		serviceAccount: strings.TrimSpace(cfg.ServiceAccount),
	}
}

// Generate runs one Imagen predict call for prompt.
func (v *VertexImagen) Generate(ctx context.Context, prompt string) (GeneratedImage, error) {
	if v == nil || v.projectID == "" {
		return GeneratedImage{}, fmt.Errorf("imagen: missing project: %w", ErrMissingCredentials)
	}
	if strings.TrimSpace(prompt) == "" {
		return GeneratedImage{}, fmt.Errorf("imagen: prompt is required")
	}

	instance, params, err := predictRequest(prompt)
	if err != nil {
		return GeneratedImage{}, err
	}

	client, err := v.predictionClient(ctx)
	if err != nil {
		return GeneratedImage{}, err
	}

	resp, err := client.Predict(ctx, &aiplatformpb.PredictRequest{
		Endpoint:   v.endpoint(),
		Instances:  []*structpb.Value{instance},
		Parameters: params,
	})
	if err != nil {
		return GeneratedImage{}, fmt.Errorf("imagen: predict: %w", err)
	}
	if len(resp.Predictions) == 0 {
		return GeneratedImage{}, fmt.Errorf("imagen: empty prediction response")
	}

	return parsePrediction(resp.Predictions[0])
}

// predictRequest builds the instance and parameters of one Imagen call.
func predictRequest(prompt string) (*structpb.Value, *structpb.Value, error) {
	instance, err := structpb.NewValue(map[string]any{
		"prompt": prompt,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("imagen: encode instance: %w", err)
	}
	params, err := structpb.NewValue(map[string]any{
		"sampleCount": imagesPerPrompt,
		"aspectRatio": generatedAspect,
		"outputOptions": map[string]any{
			"mimeType": generatedMIME,
		},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("imagen: encode parameters: %w", err)
	}
	return instance, params, nil
}

func parsePrediction(prediction *structpb.Value) (GeneratedImage, error) {
	fields := prediction.GetStructValue().GetFields()
	field := fields["bytesBase64Encoded"]
	if field == nil || field.GetStringValue() == "" {
		return GeneratedImage{}, fmt.Errorf("imagen: prediction missing bytes")
	}
	data, err := base64.StdEncoding.DecodeString(field.GetStringValue())
	if err != nil {
		return GeneratedImage{}, fmt.Errorf("imagen: decode result: %w", err)
	}
	mime := generatedMIME
	if m := fields["mimeType"].GetStringValue(); m != "" {
		mime = m
	}
	return GeneratedImage{Data: data, MIME: mime}, nil
}

// Close releases the underlying gRPC connection.
func (v *VertexImagen) Close() error {
	if v == nil {
		return nil
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.client == nil {
		return nil
	}
	err := v.client.Close()
	v.client = nil
	return err
}

func (v *VertexImagen) endpoint() string {
	return fmt.Sprintf("projects/%s/locations/%s/publishers/google/models/%s", v.projectID, v.location, v.model)
}

func (v *VertexImagen) predictionClient(ctx context.Context) (*aiplatform.PredictionClient, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.client != nil {
		return v.client, nil
	}

	options := []option.ClientOption{option.WithEndpoint(fmt.Sprintf("%s-aiplatform.googleapis.com:443", v.location))}
	if v.serviceAccount != "" {
		options = append(options, option.WithCredentialsFile(v.serviceAccount))
	} else if v.apiKey != "" {
		options = append(options, option.WithAPIKey(v.apiKey))
	}

	client, err := aiplatform.NewPredictionClient(ctx, options...)
	if err != nil {
		return nil, fmt.Errorf("imagen: prediction client: %w", err)
	}
	v.client = client
	return client, nil
}
