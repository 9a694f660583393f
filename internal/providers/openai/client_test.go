package openai

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

func TestGenerateTextBuildsMessages(t *testing.T) {
	transport := &captureTransport{responses: map[string]responseStub{}}
	adapter := New(Options{
		APIKey:     "sk-test",
		BaseURL:    "https://openai.test/v1",
		Model:      "gpt-4o-mini",
		HTTPClient: &http.Client{Transport: transport},
	})
	transport.setJSONResponse("/v1/chat/completions", map[string]any{
		"choices": []any{
			map[string]any{"message": map[string]any{"content": "Scene one: a harbor at dawn."}},
		},
	})

	resp, err := adapter.GenerateText(context.Background(), domain.TextRequest{
		System: "You write storyboards.",
		Prompt: "Split this script into scenes.",
	})
	if err != nil {
		t.Fatalf("generate text: %v", err)
	}
	if resp.Text != "Scene one: a harbor at dawn." {
		t.Fatalf("text = %q", resp.Text)
	}

	var payload map[string]any
	if err := json.Unmarshal(transport.lastBody, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	messages := payload["messages"].([]any)
	if len(messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(messages))
	}
	if role := messages[0].(map[string]any)["role"]; role != "system" {
		t.Fatalf("first role = %v, want system", role)
	}
	if role := messages[1].(map[string]any)["role"]; role != "user" {
		t.Fatalf("second role = %v, want user", role)
	}
	if auth := transport.lastAuth; auth != "Bearer sk-test" {
		t.Fatalf("authorization = %q", auth)
	}
}

func TestGenerateImageDecodesBase64(t *testing.T) {
	transport := &captureTransport{responses: map[string]responseStub{}}
	adapter := New(Options{
		APIKey:     "sk-test",
		BaseURL:    "https://openai.test/v1",
		ImageModel: "dall-e-3",
		HTTPClient: &http.Client{Transport: transport},
	})
	raw := []byte{0x89, 'P', 'N', 'G'}
	transport.setJSONResponse("/v1/images/generations", map[string]any{
		"data": []any{
			map[string]any{"b64_json": base64.StdEncoding.EncodeToString(raw)},
		},
	})

	resp, err := adapter.GenerateImage(context.Background(), domain.ImageRequest{
		Prompt:      "a lighthouse",
		AspectRatio: "16:9",
	})
	if err != nil {
		t.Fatalf("generate image: %v", err)
	}
	if len(resp.Images) != 1 || !bytes.Equal(resp.Images[0].Data, raw) {
		t.Fatalf("decoded image bytes mismatch")
	}

	var payload map[string]any
	if err := json.Unmarshal(transport.lastBody, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload["size"] != "1792x1024" {
		t.Fatalf("size = %v, want 1792x1024", payload["size"])
	}
	if payload["response_format"] != "b64_json" {
		t.Fatalf("response_format = %v", payload["response_format"])
	}
}

func TestAnalyzeImageSendsVisionParts(t *testing.T) {
	transport := &captureTransport{responses: map[string]responseStub{}}
	adapter := New(Options{
		APIKey:     "sk-test",
		BaseURL:    "https://openai.test/v1",
		HTTPClient: &http.Client{Transport: transport},
	})
	transport.setJSONResponse("/v1/chat/completions", map[string]any{
		"choices": []any{
			map[string]any{"message": map[string]any{"content": "A red cube on a table."}},
		},
	})

	resp, err := adapter.AnalyzeImage(context.Background(), domain.ImageAnalysisRequest{
		Prompt:    "What is shown?",
		ImageData: []byte{0x01, 0x02},
		ImageMIME: "image/jpeg",
	})
	if err != nil {
		t.Fatalf("analyze image: %v", err)
	}
	if resp.Text != "A red cube on a table." {
		t.Fatalf("text = %q", resp.Text)
	}

	var payload map[string]any
	if err := json.Unmarshal(transport.lastBody, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	content := payload["messages"].([]any)[0].(map[string]any)["content"].([]any)
	if len(content) != 2 {
		t.Fatalf("content parts = %d, want 2", len(content))
	}
	imagePart := content[1].(map[string]any)
	url := imagePart["image_url"].(map[string]any)["url"].(string)
	if !strings.HasPrefix(url, "data:image/jpeg;base64,") {
		t.Fatalf("image url = %q, want data uri", url)
	}
}

func TestQuotaErrorClassification(t *testing.T) {
	transport := &captureTransport{responses: map[string]responseStub{}}
	adapter := New(Options{
		APIKey:     "sk-test",
		BaseURL:    "https://openai.test/v1",
		HTTPClient: &http.Client{Transport: transport},
	})
	transport.setErrorResponse("/v1/chat/completions", http.StatusTooManyRequests, map[string]any{
		"error": map[string]any{
			"message": "You exceeded your current quota",
			"type":    "insufficient_quota",
		},
	})

	_, err := adapter.GenerateText(context.Background(), domain.TextRequest{Prompt: "anything"})
	if err == nil {
		t.Fatalf("expected quota error")
	}
	if code := domain.CodeOf(err); code != domain.ErrCodeQuotaExceeded {
		t.Fatalf("code = %q, want %q", code, domain.ErrCodeQuotaExceeded)
	}
	if domain.Retryable(err) {
		t.Fatalf("quota exhaustion should not be retryable")
	}
}

type captureTransport struct {
	responses map[string]responseStub
	lastBody  []byte
	lastAuth  string
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
		c.lastAuth = req.Header.Get("Authorization")
		if stub, ok := c.responses[req.URL.Path]; ok {
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

func (c *captureTransport) setErrorResponse(path string, status int, payload any) {
	body, _ := json.Marshal(payload)
	c.responses[path] = responseStub{
		status: status,
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
