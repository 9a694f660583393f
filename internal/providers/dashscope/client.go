// Package dashscope adapts the Alibaba DashScope multimodal generation API
// (Qwen image models) to the canonical contract: text-to-image and image
// editing.
package dashscope

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"storyboard/internal/domain"
	"storyboard/internal/infra"
	"storyboard/internal/providers"
)

const providerName = "dashscope"

// Options configures the DashScope adapter.
type Options struct {
	APIKey       string
	BaseURL      string
	Model        string
	DefaultSize  string
	PromptExtend bool
	Watermark    bool
	HTTPClient   *http.Client
	Logger       *infra.Logger
}

// Adapter performs HTTP calls to the DashScope image generation API.
type Adapter struct {
	providers.Unsupported

	apiKey       string
	baseURL      string
	model        string
	defaultSize  string
	promptExtend bool
	watermark    bool
	httpClient   *http.Client
	logger       *infra.Logger
}

type generationRequest struct {
	Model      string           `json:"model"`
	Input      generationInput  `json:"input"`
	Parameters generationParams `json:"parameters"`
}

type generationInput struct {
	Messages []generationMessage `json:"messages"`
}

type generationMessage struct {
	Role    string              `json:"role"`
	Content []generationContent `json:"content"`
}

type generationContent struct {
	Text  string           `json:"text,omitempty"`
	Image *generationImage `json:"image,omitempty"`
}

type generationImage struct {
	ImageURL   string `json:"image_url,omitempty"`
	ImageBytes string `json:"image_bytes,omitempty"`
	MimeType   string `json:"mime_type,omitempty"`
}

type generationParams struct {
	NegativePrompt string `json:"negative_prompt,omitempty"`
	Size           string `json:"size,omitempty"`
	N              int    `json:"n,omitempty"`
	PromptExtend   *bool  `json:"prompt_extend,omitempty"`
	Watermark      *bool  `json:"watermark,omitempty"`
}

type generationResponse struct {
	Output struct {
		Choices []struct {
			Message struct {
				Content []struct {
					Image string `json:"image"`
				} `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	} `json:"output"`
	Usage struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	} `json:"usage"`
	RequestID string `json:"request_id"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

// New constructs an adapter with sane defaults and injected dependencies.
func New(opts Options) *Adapter {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 45 * time.Second}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://dashscope-intl.aliyuncs.com/api/v1"
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = "qwen-image-plus"
	}
	defaultSize := strings.TrimSpace(opts.DefaultSize)
	if defaultSize == "" {
		defaultSize = "1328*1328"
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
		defaultSize:  defaultSize,
		promptExtend: opts.PromptExtend,
		watermark:    opts.Watermark,
		httpClient:   httpClient,
		logger:       logger,
	}
}

func (a *Adapter) Name() string { return providerName }

func (a *Adapter) Available(ctx context.Context) bool { return a.apiKey != "" }

// GenerateImage invokes the DashScope API once per call and returns the
// downloaded image assets.
func (a *Adapter) GenerateImage(ctx context.Context, req domain.ImageRequest) (*domain.ImageResponse, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, domain.NewError(domain.ErrCodeConfiguration, providerName, "prompt is required", nil)
	}
	count := req.Count
	if count <= 0 {
		count = 1
	}
	payload := generationRequest{
		Model: a.model,
		Input: generationInput{
			Messages: []generationMessage{{
				Role:    "user",
				Content: []generationContent{{Text: prompt}},
			}},
		},
		Parameters: generationParams{
			Size: sizeForAspect(req.AspectRatio, a.defaultSize),
			N:    count,
		},
	}
	if neg := strings.TrimSpace(req.NegativePrompt); neg != "" {
		payload.Parameters.NegativePrompt = neg
	}
	if a.promptExtend {
		extend := true
		payload.Parameters.PromptExtend = &extend
	}
	watermark := a.watermark
	payload.Parameters.Watermark = &watermark

	return a.generate(ctx, payload, req.RequestID)
}

// EditImage sends the source image alongside the edit instruction.
func (a *Adapter) EditImage(ctx context.Context, req domain.ImageEditRequest) (*domain.ImageResponse, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, domain.NewError(domain.ErrCodeConfiguration, providerName, "prompt is required", nil)
	}
	content := []generationContent{{Text: prompt}}
	switch {
	case len(req.SourceData) > 0:
		content = append(content, generationContent{Image: &generationImage{
			ImageBytes: base64.StdEncoding.EncodeToString(req.SourceData),
			MimeType:   mimeOrDefault(req.SourceMIME),
		}})
	case req.SourceURL != "":
		content = append(content, generationContent{Image: &generationImage{
			ImageURL: req.SourceURL,
			MimeType: mimeOrDefault(req.SourceMIME),
		}})
	default:
		return nil, domain.NewError(domain.ErrCodeConfiguration, providerName, "source image is required", nil)
	}

	payload := generationRequest{
		Model: a.model,
		Input: generationInput{
			Messages: []generationMessage{{Role: "user", Content: content}},
		},
		Parameters: generationParams{
			Size: sizeForAspect(req.AspectRatio, a.defaultSize),
		},
	}
	return a.generate(ctx, payload, req.RequestID)
}

func (a *Adapter) generate(ctx context.Context, payload generationRequest, requestID string) (*domain.ImageResponse, error) {
	if a.apiKey == "" {
		return nil, domain.NewError(domain.ErrCodeAPIKey, providerName, "api key is required", nil)
	}
	endpoint := a.baseURL + "/services/aigc/multimodal-generation/generation"
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("dashscope: encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("dashscope: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, domain.NewError(domain.ErrCodeTimeout, providerName, "http request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("dashscope: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, domain.ClassifyStatus(providerName, resp.StatusCode, string(raw))
	}

	var decoded generationResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("dashscope: decode response: %w", err)
	}
	if decoded.Code != "" {
		if strings.Contains(strings.ToLower(decoded.Code), "throttl") {
			return nil, domain.NewError(domain.ErrCodeRateLimit, providerName, decoded.Message, nil)
		}
		return nil, domain.NewError(domain.ErrCodeProvider, providerName,
			fmt.Sprintf("%s (%s)", decoded.Message, decoded.Code), nil)
	}

	var assets []domain.ImageAsset
	for _, imageURL := range imageURLs(decoded) {
		data, format, err := a.download(ctx, imageURL)
		if err != nil {
			a.logger.Warn().Err(err).Str("url", imageURL).Msg("dashscope: asset download failed")
			continue
		}
		assets = append(assets, domain.ImageAsset{
			URL:    imageURL,
			Data:   data,
			Format: format,
			Width:  decoded.Usage.Width,
			Height: decoded.Usage.Height,
		})
	}
	if len(assets) == 0 {
		return nil, domain.NewError(domain.ErrCodeProvider, providerName, "empty image result", nil)
	}

	a.logger.Debug().
		Str("model", a.model).
		Str("request_id", decoded.RequestID).
		Int("count", len(assets)).
		Msg("dashscope: generated image assets")

	return &domain.ImageResponse{Images: assets, Provider: providerName, Model: a.model}, nil
}

func (a *Adapter) download(ctx context.Context, imageURL string) ([]byte, string, error) {
	parsed, err := url.Parse(strings.TrimSpace(imageURL))
	if err != nil || parsed.Scheme == "" {
		return nil, "", fmt.Errorf("dashscope: invalid image url: %s", imageURL)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return nil, "", fmt.Errorf("dashscope: build download request: %w", err)
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("dashscope: download image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("dashscope: download status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("dashscope: read image: %w", err)
	}
	format := resp.Header.Get("Content-Type")
	if format == "" {
		format = "image/png"
	}
	return data, format, nil
}

func imageURLs(resp generationResponse) []string {
	var urls []string
	for _, choice := range resp.Output.Choices {
		for _, content := range choice.Message.Content {
			if u := strings.TrimSpace(content.Image); u != "" {
				urls = append(urls, u)
			}
		}
	}
	return urls
}

func sizeForAspect(aspect, fallback string) string {
	switch strings.TrimSpace(aspect) {
	case "16:9":
		return "1664*928"
	case "9:16":
		return "928*1664"
	case "4:3":
		return "1472*1140"
	case "3:4":
		return "1140*1472"
	case "1:1":
		return "1328*1328"
	default:
		return fallback
	}
}

func mimeOrDefault(mime string) string {
	if strings.TrimSpace(mime) == "" {
		return "image/png"
	}
	return mime
}

var _ providers.Adapter = (*Adapter)(nil)
