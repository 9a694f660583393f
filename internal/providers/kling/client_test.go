package kling

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"storyboard/internal/domain"
)

func TestGenerateVideoSubmitsTask(t *testing.T) {
	transport := &captureTransport{responses: map[string]responseStub{}}
	adapter := New(Options{
		Credential: "access-key-0123|secret-key-0123",
		BaseURL:    "https://kling.test",
		Model:      "kling-v1-5",
		HTTPClient: &http.Client{Transport: transport},
	})
	transport.setJSONResponse("/v1/videos/text2video", map[string]any{
		"code":       0,
		"message":    "SUCCEED",
		"request_id": "req-1",
		"data": map[string]any{
			"task_id":     "task-abc",
			"task_status": "submitted",
		},
	})

	resp, err := adapter.GenerateVideo(context.Background(), domain.VideoRequest{
		Prompt:      "a paper boat drifting down a rainy street",
		AspectRatio: "16:9",
		Duration:    5,
	})
	if err != nil {
		t.Fatalf("generate video: %v", err)
	}
	if resp.TaskID != "task-abc" {
		t.Fatalf("task id = %q, want task-abc", resp.TaskID)
	}
	if resp.State != domain.TaskSubmitted {
		t.Fatalf("state = %q, want %q", resp.State, domain.TaskSubmitted)
	}

	var payload map[string]any
	if err := json.Unmarshal(transport.lastBody, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload["model_name"] != "kling-v1-5" {
		t.Fatalf("model_name = %v", payload["model_name"])
	}
	if payload["duration"] != "5" {
		t.Fatalf("duration = %v, want \"5\"", payload["duration"])
	}

	// AK|SK credentials must produce a signed bearer token, not the raw pair.
	token := strings.TrimPrefix(transport.lastAuth, "Bearer ")
	if token == transport.lastAuth || strings.Count(token, ".") != 2 {
		t.Fatalf("authorization = %q, want signed bearer token", transport.lastAuth)
	}
}

func TestGenerateVideoWithImageUsesImageEndpoint(t *testing.T) {
	transport := &captureTransport{responses: map[string]responseStub{}}
	adapter := New(Options{
		Credential: "plain-api-key",
		BaseURL:    "https://kling.test",
		HTTPClient: &http.Client{Transport: transport},
	})
	transport.setJSONResponse("/v1/videos/image2video", map[string]any{
		"code": 0,
		"data": map[string]any{"task_id": "task-img", "task_status": "submitted"},
	})

	resp, err := adapter.GenerateVideo(context.Background(), domain.VideoRequest{
		Prompt:   "animate this frame",
		ImageURL: "https://cdn.test/frame.png",
	})
	if err != nil {
		t.Fatalf("generate video: %v", err)
	}
	if resp.TaskID != "task-img" {
		t.Fatalf("task id = %q", resp.TaskID)
	}
	if transport.lastAuth != "Bearer plain-api-key" {
		t.Fatalf("authorization = %q, want raw key passthrough", transport.lastAuth)
	}

	var payload map[string]any
	if err := json.Unmarshal(transport.lastBody, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload["image"] != "https://cdn.test/frame.png" {
		t.Fatalf("image = %v", payload["image"])
	}
}

func TestQueryVideoTaskMapsStatuses(t *testing.T) {
	cases := []struct {
		name      string
		data      map[string]any
		wantState domain.TaskState
		wantURL   string
	}{
		{
			name:      "submitted",
			data:      map[string]any{"task_id": "t1", "task_status": "submitted"},
			wantState: domain.TaskSubmitted,
		},
		{
			name:      "processing",
			data:      map[string]any{"task_id": "t1", "task_status": "processing"},
			wantState: domain.TaskInProgress,
		},
		{
			name: "succeed",
			data: map[string]any{
				"task_id":     "t1",
				"task_status": "succeed",
				"task_result": map[string]any{
					"videos": []any{map[string]any{"id": "v1", "url": "https://cdn.test/final.mp4"}},
				},
			},
			wantState: domain.TaskSucceeded,
			wantURL:   "https://cdn.test/final.mp4",
		},
		{
			name: "failed",
			data: map[string]any{
				"task_id":         "t1",
				"task_status":     "failed",
				"task_status_msg": "content moderation rejected the prompt",
			},
			wantState: domain.TaskFailed,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			transport := &captureTransport{responses: map[string]responseStub{}}
			adapter := New(Options{
				Credential: "plain-api-key",
				BaseURL:    "https://kling.test",
				HTTPClient: &http.Client{Transport: transport},
			})
			transport.setJSONResponse("https://kling.test/v1/videos/text2video/t1", map[string]any{
				"code": 0,
				"data": tc.data,
			})

			status, err := adapter.QueryVideoTask(context.Background(), "t1")
			if err != nil {
				t.Fatalf("query task: %v", err)
			}
			if status.State != tc.wantState {
				t.Fatalf("state = %q, want %q", status.State, tc.wantState)
			}
			if status.ResultURL != tc.wantURL {
				t.Fatalf("result url = %q, want %q", status.ResultURL, tc.wantURL)
			}
			if tc.wantState == domain.TaskFailed && status.Reason == "" {
				t.Fatalf("failed status must carry a reason")
			}
		})
	}
}

func TestSucceedWithoutResultURLFails(t *testing.T) {
	transport := &captureTransport{responses: map[string]responseStub{}}
	adapter := New(Options{
		Credential: "plain-api-key",
		BaseURL:    "https://kling.test",
		HTTPClient: &http.Client{Transport: transport},
	})
	transport.setJSONResponse("https://kling.test/v1/videos/text2video/t2", map[string]any{
		"code": 0,
		"data": map[string]any{"task_id": "t2", "task_status": "succeed"},
	})

	status, err := adapter.QueryVideoTask(context.Background(), "t2")
	if err != nil {
		t.Fatalf("query task: %v", err)
	}
	if status.State != domain.TaskFailed {
		t.Fatalf("state = %q, want %q", status.State, domain.TaskFailed)
	}
	if status.Reason == "" {
		t.Fatalf("expected a failure reason")
	}
}

func TestBusinessCodeClassification(t *testing.T) {
	cases := []struct {
		code int
		want domain.ErrorCode
	}{
		{1002, domain.ErrCodeRateLimit},
		{1004, domain.ErrCodeAPIKey},
		{1008, domain.ErrCodeQuotaExceeded},
		{1026, domain.ErrCodeContentPolicy},
		{9999, domain.ErrCodeProvider},
	}
	for _, tc := range cases {
		err := classifyCode(tc.code, "upstream message")
		if got := domain.CodeOf(err); got != tc.want {
			t.Fatalf("classifyCode(%d) = %q, want %q", tc.code, got, tc.want)
		}
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
	c.lastAuth = req.Header.Get("Authorization")
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
