package vision

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"google.golang.org/protobuf/types/known/structpb"

	"ootdStylist/internal/imageprep"
)

// recordedCall is one request seen by a fake Gemini API server.
type recordedCall struct {
	Path   string
	APIKey string
	Body   map[string]any
}

func fakeGeminiAPI(t *testing.T, reply any) (*httptest.Server, func() []recordedCall) {
	t.Helper()
	var (
		mu    sync.Mutex
		calls []recordedCall
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request body: %v", err)
		}
		mu.Lock()
		calls = append(calls, recordedCall{Path: r.URL.Path, APIKey: r.Header.Get("x-goog-api-key"), Body: body})
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(reply)
	}))
	t.Cleanup(srv.Close)
	return srv, func() []recordedCall {
		mu.Lock()
		defer mu.Unlock()
		return append([]recordedCall(nil), calls...)
	}
}

func lookup(m map[string]any, path ...string) any {
	var cur any = m
	for _, key := range path {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = obj[key]
	}
	return cur
}

func TestGenAIAnalyzerRequest(t *testing.T) {
	srv, calls := fakeGeminiAPI(t, map[string]any{
		"candidates": []any{map[string]any{
			"content": map[string]any{
				"role":  "model",
				"parts": []any{map[string]any{"text": validReply}},
			},
		}},
	})
	conn := NewConnector(ConnectorConfig{APIKey: "test-key", Backend: "gemini", BaseURL: srv.URL})
	analyzer := NewGenAIAnalyzer(conn, "models/gemini-test")

	got, err := analyzer.Analyze(context.Background(), imageprep.NewEncodedImage([]byte("jpeg-bytes"), "image/jpeg"))
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if got.Rating != 87 || len(got.ImageGenerationPrompts) != 2 {
		t.Errorf("analysis = %+v", got)
	}

	recorded := calls()
	if len(recorded) != 1 {
		t.Fatalf("calls = %d, want 1", len(recorded))
	}
	call := recorded[0]
	if call.Path != "/v1beta/models/gemini-test:generateContent" {
		t.Errorf("path = %q", call.Path)
	}
	if call.APIKey != "test-key" {
		t.Errorf("api key header = %q", call.APIKey)
	}
	if lookup(call.Body, "systemInstruction") == nil {
		t.Error("systemInstruction missing")
	}
	if mime := lookup(call.Body, "generationConfig", "responseMimeType"); mime != "application/json" {
		t.Errorf("responseMimeType = %v", mime)
	}
	if lookup(call.Body, "generationConfig", "responseSchema") == nil {
		t.Error("responseSchema missing")
	}

	contents, _ := call.Body["contents"].([]any)
	if len(contents) != 1 {
		t.Fatalf("contents = %v", call.Body["contents"])
	}
	parts, _ := lookup(contents[0].(map[string]any), "parts").([]any)
	if len(parts) != 1 {
		t.Fatalf("parts = %v", parts)
	}
	inline, _ := lookup(parts[0].(map[string]any), "inlineData").(map[string]any)
	want := map[string]any{
		"mimeType": "image/jpeg",
		"data":     base64.StdEncoding.EncodeToString([]byte("jpeg-bytes")),
	}
	if diff := cmp.Diff(want, inline); diff != "" {
		t.Errorf("inlineData mismatch (-want +got):\n%s", diff)
	}
}

func TestGenAIImagenRequest(t *testing.T) {
	pixels := []byte{0xff, 0xd8, 0xff, 0xe0}
	srv, calls := fakeGeminiAPI(t, map[string]any{
		"predictions": []any{map[string]any{
			"bytesBase64Encoded": base64.StdEncoding.EncodeToString(pixels),
			"mimeType":           "image/jpeg",
		}},
	})
	conn := NewConnector(ConnectorConfig{APIKey: "test-key", Backend: "gemini", BaseURL: srv.URL})
	gen := NewGenAIImagen(conn, "imagen-test")

	got, err := gen.Generate(context.Background(), "Full-body photo in Paris")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if diff := cmp.Diff(GeneratedImage{Data: pixels, MIME: "image/jpeg"}, got); diff != "" {
		t.Errorf("image mismatch (-want +got):\n%s", diff)
	}

	recorded := calls()
	if len(recorded) != 1 {
		t.Fatalf("calls = %d, want 1", len(recorded))
	}
	call := recorded[0]
	if !strings.HasSuffix(call.Path, "/models/imagen-test:predict") {
		t.Errorf("path = %q", call.Path)
	}
	instances, _ := call.Body["instances"].([]any)
	if len(instances) != 1 || lookup(instances[0].(map[string]any), "prompt") != "Full-body photo in Paris" {
		t.Errorf("instances = %v", call.Body["instances"])
	}
	tests := []struct {
		path []string
		want any
	}{
		{[]string{"parameters", "sampleCount"}, float64(1)},
		{[]string{"parameters", "aspectRatio"}, "3:4"},
		{[]string{"parameters", "outputOptions", "mimeType"}, "image/jpeg"},
	}
	for _, tt := range tests {
		if got := lookup(call.Body, tt.path...); got != tt.want {
			t.Errorf("%s = %v, want %v", strings.Join(tt.path, "."), got, tt.want)
		}
	}
}

func TestGenAIImagenEmptyReply(t *testing.T) {
	srv, _ := fakeGeminiAPI(t, map[string]any{"predictions": []any{}})
	conn := NewConnector(ConnectorConfig{APIKey: "test-key", Backend: "gemini", BaseURL: srv.URL})
	if _, err := NewGenAIImagen(conn, "").Generate(context.Background(), "prompt"); err == nil {
		t.Fatal("Generate() error = nil, want error for a reply without images")
	}
}

func TestVertexPredictRequest(t *testing.T) {
	instance, params, err := predictRequest("Full-body photo in Seoul")
	if err != nil {
		t.Fatalf("predictRequest() error = %v", err)
	}
	wantInstance := map[string]any{"prompt": "Full-body photo in Seoul"}
	if diff := cmp.Diff(wantInstance, instance.GetStructValue().AsMap()); diff != "" {
		t.Errorf("instance mismatch (-want +got):\n%s", diff)
	}
	wantParams := map[string]any{
		"sampleCount":   float64(1),
		"aspectRatio":   "3:4",
		"outputOptions": map[string]any{"mimeType": "image/jpeg"},
	}
	if diff := cmp.Diff(wantParams, params.GetStructValue().AsMap()); diff != "" {
		t.Errorf("parameters mismatch (-want +got):\n%s", diff)
	}
}

func TestParsePrediction(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString([]byte("png-bytes"))
	tests := []struct {
		name    string
		fields  map[string]any
		want    GeneratedImage
		wantErr bool
	}{
		{
			name:   "bytes and mime",
			fields: map[string]any{"bytesBase64Encoded": encoded, "mimeType": "image/png"},
			want:   GeneratedImage{Data: []byte("png-bytes"), MIME: "image/png"},
		},
		{
			name:   "default mime",
			fields: map[string]any{"bytesBase64Encoded": encoded},
			want:   GeneratedImage{Data: []byte("png-bytes"), MIME: "image/jpeg"},
		},
		{name: "missing bytes", fields: map[string]any{"mimeType": "image/png"}, wantErr: true},
		{name: "bad base64", fields: map[string]any{"bytesBase64Encoded": "%%%"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			value, err := structpb.NewValue(tt.fields)
			if err != nil {
				t.Fatal(err)
			}
			got, err := parsePrediction(value)
			if tt.wantErr {
				if err == nil {
					t.Fatal("parsePrediction() error = nil, want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("parsePrediction() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("image mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
