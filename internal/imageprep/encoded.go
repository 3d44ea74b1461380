package imageprep

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// EncodedImage is the base64 payload plus MIME tag sent to the analysis model.
type EncodedImage struct {
	Base64 string
	MIME   string
}

// NewEncodedImage base64-encodes data.
func NewEncodedImage(data []byte, mime string) EncodedImage {
	return EncodedImage{
		Base64: base64.StdEncoding.EncodeToString(data),
		MIME:   mime,
	}
}

// Bytes decodes the payload.
func (e EncodedImage) Bytes() ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(e.Base64)
	if err != nil {
		return nil, fmt.Errorf("imageprep: decode base64: %w", err)
	}
	return data, nil
}

// DataURI renders the image as data:<mime>;base64,<payload>.
func (e EncodedImage) DataURI() string {
	return DataURI(e.MIME, e.Base64)
}

// DataURI joins a MIME type and base64 payload.
func DataURI(mime, payload string) string {
	return "data:" + mime + ";base64," + payload
}

// ParseDataURI splits a base64 data URI. Raw base64 without the data: prefix
// is accepted and returned with an empty MIME type.
func ParseDataURI(raw string) (EncodedImage, error) {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "data:") {
		if raw == "" {
			return EncodedImage{}, fmt.Errorf("imageprep: empty data URI")
		}
		return EncodedImage{Base64: raw}, nil
	}
	header, payload, ok := strings.Cut(raw, ",")
	if !ok {
		return EncodedImage{}, fmt.Errorf("imageprep: invalid data URI")
	}
	meta := strings.TrimPrefix(header, "data:")
	if !strings.HasSuffix(meta, ";base64") {
		return EncodedImage{}, fmt.Errorf("imageprep: data URI is not base64")
	}
	return EncodedImage{
		Base64: payload,
		MIME:   strings.TrimSuffix(meta, ";base64"),
	}, nil
}
