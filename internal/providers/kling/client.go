// Package kling adapts the Kling video generation API. Submission returns a
// task id immediately; results are fetched by polling the task endpoint until
// it reaches a terminal status.
package kling

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"storyboard/internal/domain"
	"storyboard/internal/infra"
	"storyboard/internal/providers"
)

const providerName = "kling"

// Options configures the Kling adapter. Credential may be either a plain
// API key or an "accessKey|secretKey" pair; the pair form switches the
// adapter to signed JWT authentication.
type Options struct {
	Credential string
	BaseURL    string
	Model      string
	Mode       string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// Adapter performs HTTP calls against the Kling open API.
type Adapter struct {
	providers.Unsupported

	accessKey  string
	secretKey  string
	apiKey     string
	baseURL    string
	model      string
	mode       string
	httpClient *http.Client
	logger     *infra.Logger
}

type textToVideoRequest struct {
	ModelName      string `json:"model_name,omitempty"`
	Prompt         string `json:"prompt"`
	NegativePrompt string `json:"negative_prompt,omitempty"`
	Mode           string `json:"mode,omitempty"`
	AspectRatio    string `json:"aspect_ratio,omitempty"`
	Duration       string `json:"duration,omitempty"`
	ExternalTaskID string `json:"external_task_id,omitempty"`
}

type imageToVideoRequest struct {
	ModelName      string `json:"model_name,omitempty"`
	Image          string `json:"image"`
	Prompt         string `json:"prompt,omitempty"`
	Mode           string `json:"mode,omitempty"`
	Duration       string `json:"duration,omitempty"`
	ExternalTaskID string `json:"external_task_id,omitempty"`
}

type taskVideo struct {
	ID       string `json:"id"`
	URL      string `json:"url"`
	Duration string `json:"duration"`
}

type taskData struct {
	TaskID        string `json:"task_id"`
	TaskStatus    string `json:"task_status"`
	TaskStatusMsg string `json:"task_status_msg,omitempty"`
	TaskResult    struct {
		Videos []taskVideo `json:"videos"`
	} `json:"task_result"`
}

type apiEnvelope struct {
	Code      int      `json:"code"`
	Message   string   `json:"message"`
	RequestID string   `json:"request_id"`
	Data      taskData `json:"data"`
}

// New constructs an adapter with sane defaults.
func New(opts Options) *Adapter {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.klingai.com"
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = "kling-v1-5"
	}
	mode := strings.TrimSpace(opts.Mode)
	if mode == "" {
		mode = "std"
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		logger = &discard
	}

	a := &Adapter{
		Unsupported: providers.Unsupported{Provider: providerName},
		baseURL:     baseURL,
		model:       model,
		mode:        mode,
		httpClient:  httpClient,
		logger:      logger,
	}
	cred := strings.TrimSpace(opts.Credential)
	if ak, sk, ok := strings.Cut(cred, "|"); ok {
		a.accessKey = strings.TrimSpace(ak)
		a.secretKey = strings.TrimSpace(sk)
	} else {
		a.apiKey = cred
	}
	return a
}

func (a *Adapter) Name() string { return providerName }

func (a *Adapter) Available(ctx context.Context) bool {
	return a.apiKey != "" || (a.accessKey != "" && a.secretKey != "")
}

// GenerateVideo submits a generation task and returns its id without waiting
// for completion.
func (a *Adapter) GenerateVideo(ctx context.Context, req domain.VideoRequest) (*domain.VideoResponse, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" && req.ImageURL == "" {
		return nil, domain.NewError(domain.ErrCodeConfiguration, providerName, "prompt or image is required", nil)
	}

	duration := req.Duration
	if duration <= 0 {
		duration = 5
	}
	var path string
	var payload any
	if req.ImageURL != "" {
		path = "/v1/videos/image2video"
		payload = imageToVideoRequest{
			ModelName:      a.model,
			Image:          req.ImageURL,
			Prompt:         prompt,
			Mode:           a.mode,
			Duration:       fmt.Sprintf("%d", duration),
			ExternalTaskID: req.RequestID,
		}
	} else {
		path = "/v1/videos/text2video"
		payload = textToVideoRequest{
			ModelName:      a.model,
			Prompt:         prompt,
			Mode:           a.mode,
			AspectRatio:    req.AspectRatio,
			Duration:       fmt.Sprintf("%d", duration),
			ExternalTaskID: req.RequestID,
		}
	}

	var out apiEnvelope
	if err := a.invoke(ctx, http.MethodPost, path, payload, &out); err != nil {
		return nil, err
	}
	if out.Data.TaskID == "" {
		return nil, domain.NewError(domain.ErrCodeProvider, providerName, "submit returned no task id", nil)
	}
	return &domain.VideoResponse{
		TaskID:   out.Data.TaskID,
		State:    domain.TaskSubmitted,
		Provider: providerName,
		Model:    a.model,
	}, nil
}

// QueryVideoTask fetches the current status of a submitted task and maps the
// provider vocabulary onto the canonical task states.
func (a *Adapter) QueryVideoTask(ctx context.Context, taskID string) (*domain.TaskStatus, error) {
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return nil, domain.NewError(domain.ErrCodeConfiguration, providerName, "task id is required", nil)
	}
	var out apiEnvelope
	if err := a.invoke(ctx, http.MethodGet, "/v1/videos/text2video/"+taskID, nil, &out); err != nil {
		return nil, err
	}

	status := &domain.TaskStatus{Reason: out.Data.TaskStatusMsg}
	switch out.Data.TaskStatus {
	case "submitted":
		status.State = domain.TaskSubmitted
	case "processing":
		status.State = domain.TaskInProgress
	case "succeed":
		status.State = domain.TaskSucceeded
		if len(out.Data.TaskResult.Videos) > 0 {
			status.ResultURL = out.Data.TaskResult.Videos[0].URL
		}
		if status.ResultURL == "" {
			status.State = domain.TaskFailed
			status.Reason = "task succeeded without a result url"
		}
	case "failed":
		status.State = domain.TaskFailed
		if status.Reason == "" {
			status.Reason = "generation failed"
		}
	default:
		return nil, domain.NewError(domain.ErrCodeProvider, providerName,
			fmt.Sprintf("unknown task status %q", out.Data.TaskStatus), nil)
	}
	return status, nil
}

func (a *Adapter) invoke(ctx context.Context, method, path string, payload, out any) error {
	token, err := a.authToken()
	if err != nil {
		return err
	}

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("kling: encode request: %w", err)
		}
		body = strings.NewReader(string(raw))
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("kling: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return domain.NewError(domain.ErrCodeTimeout, providerName, "http request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("kling: read response: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return domain.NewError(domain.ErrCodeProvider, providerName, "task not found", domain.ErrTaskNotFound)
	}
	if resp.StatusCode >= 300 {
		return domain.ClassifyStatus(providerName, resp.StatusCode, string(raw))
	}

	var envelope apiEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("kling: decode response: %w", err)
	}
	if envelope.Code != 0 {
		return classifyCode(envelope.Code, envelope.Message)
	}
	if dst, ok := out.(*apiEnvelope); ok {
		*dst = envelope
	}
	return nil
}

// authToken returns the bearer credential: either the raw API key, or a
// short-lived HS256 token signed with the secret key when an access/secret
// pair was configured.
func (a *Adapter) authToken() (string, error) {
	if a.apiKey != "" {
		return a.apiKey, nil
	}
	if a.accessKey == "" || a.secretKey == "" {
		return "", domain.NewError(domain.ErrCodeAPIKey, providerName, "credential is required", nil)
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"iss": a.accessKey,
		"exp": now.Add(30 * time.Minute).Unix(),
		"nbf": now.Add(-5 * time.Second).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(a.secretKey))
	if err != nil {
		return "", domain.NewError(domain.ErrCodeAPIKey, providerName, "sign auth token", err)
	}
	return signed, nil
}

// classifyCode maps Kling business codes onto the error taxonomy.
func classifyCode(code int, message string) error {
	switch code {
	case 1002:
		return domain.NewError(domain.ErrCodeRateLimit, providerName, message, nil)
	case 1004:
		return domain.NewError(domain.ErrCodeAPIKey, providerName, message, nil)
	case 1008:
		return domain.NewError(domain.ErrCodeQuotaExceeded, providerName, message, nil)
	case 1026:
		return domain.NewError(domain.ErrCodeContentPolicy, providerName, message, nil)
	default:
		return domain.NewError(domain.ErrCodeProvider, providerName,
			fmt.Sprintf("code %d: %s", code, message), nil)
	}
}

var _ providers.Adapter = (*Adapter)(nil)
