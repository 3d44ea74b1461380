package stylist

import (
	"errors"

	"ootdStylist/internal/imageprep"
	"ootdStylist/internal/vision"
)

// ErrUnknown wraps failures outside the known taxonomy.
var ErrUnknown = errors.New("stylist: unknown error")

// Kind names a failure class shown to the user.
type Kind string

const (
	KindDecode     Kind = "decode"
	KindEncode     Kind = "encode"
	KindAnalysis   Kind = "analysis"
	KindGeneration Kind = "generation"
	KindUnknown    Kind = "unknown"
)

// Classify maps an error from the upload chain to its Kind.
func Classify(err error) Kind {
	switch {
	case errors.Is(err, imageprep.ErrDecode):
		return KindDecode
	case errors.Is(err, imageprep.ErrEncode):
		return KindEncode
	case errors.Is(err, vision.ErrAnalysis):
		return KindAnalysis
	case errors.Is(err, vision.ErrGeneration):
		return KindGeneration
	default:
		return KindUnknown
	}
}
