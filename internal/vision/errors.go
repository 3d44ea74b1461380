package vision

import "errors"

var (
	// ErrAnalysis wraps every failure of the analysis call: transport errors,
	// invalid JSON and missing or empty fields.
	ErrAnalysis = errors.New("vision: analysis failed")
	// ErrGeneration wraps the first failure of an image generation batch.
	ErrGeneration = errors.New("vision: image generation failed")
	// ErrMissingCredentials is returned when no API key or project is configured.
	ErrMissingCredentials = errors.New("vision: missing API credentials")
)
