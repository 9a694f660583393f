package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"storyboard/internal/domain"
)

func TestGenerateTextMapsAssistantRole(t *testing.T) {
	transport := &captureTransport{responses: map[string]responseStub{}}
	adapter := New(Options{
		APIKey:     "test-key",
		BaseURL:    "https://gemini.test/v1beta",
		Model:      "gemini-2.5-flash",
		HTTPClient: &http.Client{Transport: transport},
	})
	transport.setJSONResponse("/v1beta/models/gemini-2.5-flash:generateContent", map[string]any{
		"candidates": []any{
			map[string]any{
				"content": map[string]any{
					"parts": []any{map[string]any{"text": "Scene two follows."}},
				},
			},
		},
	})

	resp, err := adapter.GenerateText(context.Background(), domain.TextRequest{
		System: "You split scripts into scenes.",
		Messages: []domain.Message{
			{Role: "user", Content: "Here is the script."},
			{Role: "assistant", Content: "Scene one done."},
			{Role: "user", Content: "Continue."},
		},
	})
	if err != nil {
		t.Fatalf("generate text: %v", err)
	}
	if resp.Text != "Scene two follows." {
		t.Fatalf("text = %q", resp.Text)
	}

	var payload map[string]any
	if err := json.Unmarshal(transport.lastBody, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	contents := payload["contents"].([]any)
	if len(contents) != 3 {
		t.Fatalf("contents = %d, want 3", len(contents))
	}
	if role := contents[1].(map[string]any)["role"]; role != "model" {
		t.Fatalf("assistant role = %v, want model", role)
	}
	if _, ok := payload["systemInstruction"]; !ok {
		t.Fatalf("system instruction missing from payload")
	}
}

func TestGenerateImageDecodesInlineData(t *testing.T) {
	transport := &captureTransport{responses: map[string]responseStub{}}
	adapter := New(Options{
		APIKey:     "test-key",
		BaseURL:    "https://gemini.test/v1beta",
		Model:      "gemini-2.5-flash-image",
		HTTPClient: &http.Client{Transport: transport},
	})
	raw := []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a}
	transport.setJSONResponse("/v1beta/models/gemini-2.5-flash-image:generateContent", map[string]any{
		"candidates": []any{
			map[string]any{
				"content": map[string]any{
					"parts": []any{
						map[string]any{"text": "Here is your image."},
						map[string]any{"inlineData": map[string]any{
							"mimeType": "image/png",
							"data":     base64.StdEncoding.EncodeToString(raw),
						}},
					},
				},
			},
		},
	})

	resp, err := adapter.GenerateImage(context.Background(), domain.ImageRequest{
		Prompt:      "a harbor at dawn",
		AspectRatio: "16:9",
		Style:       "watercolor",
	})
	if err != nil {
		t.Fatalf("generate image: %v", err)
	}
	if len(resp.Images) != 1 {
		t.Fatalf("images = %d, want 1", len(resp.Images))
	}
	if !bytes.Equal(resp.Images[0].Data, raw) {
		t.Fatalf("inline image bytes mismatch")
	}
	if resp.Images[0].Format != "image/png" {
		t.Fatalf("format = %q, want image/png", resp.Images[0].Format)
	}

	var payload map[string]any
	if err := json.Unmarshal(transport.lastBody, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	prompt := payload["contents"].([]any)[0].(map[string]any)["parts"].([]any)[0].(map[string]any)["text"].(string)
	if !strings.Contains(prompt, "watercolor") || !strings.Contains(prompt, "16:9") {
		t.Fatalf("prompt should carry style and aspect hints: %q", prompt)
	}
}

func TestBlockedPromptReturnsPolicyError(t *testing.T) {
	transport := &captureTransport{responses: map[string]responseStub{}}
	adapter := New(Options{
		APIKey:     "test-key",
		BaseURL:    "https://gemini.test/v1beta",
		Model:      "gemini-2.5-flash",
		HTTPClient: &http.Client{Transport: transport},
	})
	transport.setJSONResponse("/v1beta/models/gemini-2.5-flash:generateContent", map[string]any{
		"promptFeedback": map[string]any{"blockReason": "SAFETY"},
	})

	_, err := adapter.GenerateText(context.Background(), domain.TextRequest{Prompt: "blocked"})
	if err == nil {
		t.Fatalf("expected policy error")
	}
	if code := domain.CodeOf(err); code != domain.ErrCodeContentPolicy {
		t.Fatalf("code = %q, want %q", code, domain.ErrCodeContentPolicy)
	}
	if reason := domain.ReasonOf(err); reason == "" {
		t.Fatalf("policy error must carry a reason")
	}
	if domain.Retryable(err) {
		t.Fatalf("policy rejection should not be retryable")
	}
}

func TestAnalyzeImageRequiresSource(t *testing.T) {
	adapter := New(Options{APIKey: "test-key"})
	_, err := adapter.AnalyzeImage(context.Background(), domain.ImageAnalysisRequest{Prompt: "what is this"})
	if err == nil {
		t.Fatalf("expected configuration error")
	}
	if code := domain.CodeOf(err); code != domain.ErrCodeConfiguration {
		t.Fatalf("code = %q, want %q", code, domain.ErrCodeConfiguration)
	}
}

type captureTransport struct {
	responses map[string]responseStub
	lastBody  []byte
}

type responseStub struct {
	status int
	header http.Header
	body   []byte
}

func (c *captureTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Method == http.MethodPost {
		body, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		req.Body.Close()
		c.lastBody = body
		if stub, ok := c.responses[req.URL.Path]; ok {
			return stub.toResponse(), nil
		}
	}
	if req.Method == http.MethodGet {
		if stub, ok := c.responses[req.URL.String()]; ok {
			return stub.toResponse(), nil
		}
	}
	return &http.Response{
		StatusCode: http.StatusNotFound,
		Body:       io.NopCloser(strings.NewReader("not found")),
	}, nil
}

func (c *captureTransport) setJSONResponse(path string, payload any) {
	body, _ := json.Marshal(payload)
	c.responses[path] = responseStub{
		status: http.StatusOK,
		header: http.Header{"Content-Type": []string{"application/json"}},
		body:   body,
	}
}

func (s responseStub) toResponse() *http.Response {
	header := http.Header{}
	for k, values := range s.header {
		cloned := make([]string, len(values))
		copy(cloned, values)
		header[k] = cloned
	}
	return &http.Response{
		StatusCode: s.status,
		Header:     header,
		Body:       io.NopCloser(bytes.NewReader(s.body)),
	}
}
