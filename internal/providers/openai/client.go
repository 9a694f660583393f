// Package openai adapts the OpenAI-compatible chat and image APIs to the
// canonical contract: text generation, text-to-image, and image analysis.
package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"storyboard/internal/domain"
	"storyboard/internal/infra"
	"storyboard/internal/providers"
)

const providerName = "openai"

// Options configures the OpenAI adapter.
type Options struct {
	APIKey       string
	BaseURL      string
	Model        string
	ImageModel   string
	Organization string
	HTTPClient   *http.Client
	Logger       *infra.Logger
}

// Adapter performs HTTP calls against an OpenAI-compatible endpoint.
type Adapter struct {
	providers.Unsupported

	apiKey       string
	baseURL      string
	model        string
	imageModel   string
	organization string
	httpClient   *http.Client
	logger       *infra.Logger
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type chatContentPart struct {
	Type     string         `json:"type"`
	Text     string         `json:"text,omitempty"`
	ImageURL *chatImagePart `json:"image_url,omitempty"`
}

type chatImagePart struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type imageGenRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	N              int    `json:"n,omitempty"`
	Size           string `json:"size,omitempty"`
	ResponseFormat string `json:"response_format,omitempty"`
}

type imageGenResponse struct {
	Data []struct {
		URL     string `json:"url,omitempty"`
		B64JSON string `json:"b64_json,omitempty"`
	} `json:"data"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error"`
}

// New constructs an adapter with sane defaults.
func New(opts Options) *Adapter {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = "gpt-4o-mini"
	}
	imageModel := strings.TrimSpace(opts.ImageModel)
	if imageModel == "" {
		imageModel = "dall-e-3"
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Adapter{
		Unsupported:  providers.Unsupported{Provider: providerName},
		apiKey:       strings.TrimSpace(opts.APIKey),
		baseURL:      baseURL,
		model:        model,
		imageModel:   imageModel,
		organization: strings.TrimSpace(opts.Organization),
		httpClient:   httpClient,
		logger:       logger,
	}
}

func (a *Adapter) Name() string { return providerName }

func (a *Adapter) Available(ctx context.Context) bool { return a.apiKey != "" }

// GenerateText calls the chat completions endpoint.
func (a *Adapter) GenerateText(ctx context.Context, req domain.TextRequest) (*domain.TextResponse, error) {
	messages := make([]chatMessage, 0, len(req.Messages)+2)
	if req.System != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.System})
	}
	if len(req.Messages) > 0 {
		for _, msg := range req.Messages {
			messages = append(messages, chatMessage{Role: msg.Role, Content: msg.Content})
		}
	} else {
		messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})
	}

	payload := chatRequest{
		Model:       a.model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	var out chatResponse
	if err := a.post(ctx, "/chat/completions", payload, &out); err != nil {
		return nil, err
	}
	if len(out.Choices) == 0 {
		return nil, domain.NewError(domain.ErrCodeProvider, providerName, "no choices returned", nil)
	}
	text := strings.TrimSpace(out.Choices[0].Message.Content)
	if text == "" {
		return nil, domain.NewError(domain.ErrCodeProvider, providerName, "empty response", nil)
	}
	return &domain.TextResponse{Text: text, Provider: providerName, Model: a.model}, nil
}

// AnalyzeImage sends the image as a vision content part with the prompt.
func (a *Adapter) AnalyzeImage(ctx context.Context, req domain.ImageAnalysisRequest) (*domain.AnalysisResponse, error) {
	imageRef := req.ImageURL
	if imageRef == "" && len(req.ImageData) > 0 {
		mime := req.ImageMIME
		if mime == "" {
			mime = "image/png"
		}
		imageRef = fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(req.ImageData))
	}
	if imageRef == "" {
		return nil, domain.NewError(domain.ErrCodeConfiguration, providerName, "image data or url is required", nil)
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		prompt = "Describe this image in detail."
	}
	payload := chatRequest{
		Model: a.model,
		Messages: []chatMessage{{
			Role: "user",
			Content: []chatContentPart{
				{Type: "text", Text: prompt},
				{Type: "image_url", ImageURL: &chatImagePart{URL: imageRef}},
			},
		}},
	}
	var out chatResponse
	if err := a.post(ctx, "/chat/completions", payload, &out); err != nil {
		return nil, err
	}
	if len(out.Choices) == 0 {
		return nil, domain.NewError(domain.ErrCodeProvider, providerName, "no choices returned", nil)
	}
	return &domain.AnalysisResponse{
		Text:     strings.TrimSpace(out.Choices[0].Message.Content),
		Provider: providerName,
		Model:    a.model,
	}, nil
}

// GenerateImage calls the image generations endpoint.
func (a *Adapter) GenerateImage(ctx context.Context, req domain.ImageRequest) (*domain.ImageResponse, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, domain.NewError(domain.ErrCodeConfiguration, providerName, "prompt is required", nil)
	}
	count := req.Count
	if count <= 0 {
		count = 1
	}
	payload := imageGenRequest{
		Model:          a.imageModel,
		Prompt:         prompt,
		N:              count,
		Size:           sizeForAspect(req.AspectRatio),
		ResponseFormat: "b64_json",
	}
	var out imageGenResponse
	if err := a.post(ctx, "/images/generations", payload, &out); err != nil {
		return nil, err
	}
	var assets []domain.ImageAsset
	for _, item := range out.Data {
		asset := domain.ImageAsset{URL: item.URL, Format: "image/png"}
		if item.B64JSON != "" {
			data, err := base64.StdEncoding.DecodeString(item.B64JSON)
			if err != nil {
				a.logger.Warn().Err(err).Msg("openai: skipping undecodable image payload")
				continue
			}
			asset.Data = data
		}
		if asset.URL == "" && len(asset.Data) == 0 {
			continue
		}
		assets = append(assets, asset)
	}
	if len(assets) == 0 {
		return nil, domain.NewError(domain.ErrCodeProvider, providerName, "empty image result", nil)
	}
	return &domain.ImageResponse{Images: assets, Provider: providerName, Model: a.imageModel}, nil
}

func (a *Adapter) post(ctx context.Context, path string, payload any, out any) error {
	if a.apiKey == "" {
		return domain.NewError(domain.ErrCodeAPIKey, providerName, "api key is required", nil)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("openai: encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("openai: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.apiKey)
	if a.organization != "" {
		httpReq.Header.Set("OpenAI-Organization", a.organization)
	}

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return domain.NewError(domain.ErrCodeTimeout, providerName, "http request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("openai: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		var detail apiError
		if err := json.Unmarshal(raw, &detail); err == nil && detail.Error.Message != "" {
			if detail.Error.Type == "insufficient_quota" {
				return domain.NewError(domain.ErrCodeQuotaExceeded, providerName, detail.Error.Message, nil)
			}
			return domain.ClassifyStatus(providerName, resp.StatusCode, detail.Error.Message)
		}
		return domain.ClassifyStatus(providerName, resp.StatusCode, string(raw))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("openai: decode response: %w", err)
	}
	return nil
}

func sizeForAspect(aspect string) string {
	switch strings.TrimSpace(aspect) {
	case "16:9":
		return "1792x1024"
	case "9:16":
		return "1024x1792"
	default:
		return "1024x1024"
	}
}

var _ providers.Adapter = (*Adapter)(nil)
