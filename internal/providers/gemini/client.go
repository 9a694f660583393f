// Package gemini adapts the Google Generative Language API to the canonical
// generation contract: text generation, text-to-image, image editing, and
// image/video analysis.
package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
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

const providerName = "gemini"

// Options controls how the Gemini adapter is configured.
type Options struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// Adapter calls the Gemini generateContent endpoint and normalizes the
// responses into canonical envelopes.
type Adapter struct {
	providers.Unsupported

	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *infra.Logger
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts,omitempty"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
	FileData   *geminiFileData   `json:"fileData,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"`
}

type geminiFileData struct {
	MimeType string `json:"mimeType,omitempty"`
	FileURI  string `json:"fileUri,omitempty"`
}

type geminiGenerationConfig struct {
	CandidateCount  int      `json:"candidateCount,omitempty"`
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
	Temperature     *float64 `json:"temperature,omitempty"`
}

type geminiRequest struct {
	Contents          []geminiContent         `json:"contents"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason,omitempty"`
}

type geminiResponse struct {
	Candidates     []geminiCandidate `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason,omitempty"`
	} `json:"promptFeedback,omitempty"`
}

type geminiErrorResponse struct {
	Error struct {
		Code    int    `json:"code,omitempty"`
		Status  string `json:"status,omitempty"`
		Message string `json:"message,omitempty"`
	} `json:"error"`
}

// New constructs a Gemini adapter with sane defaults. Callers may provide a
// nil HTTP client; a reusable one with a timeout will be created.
func New(opts Options) *Adapter {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	model := opts.Model
	if model == "" {
		model = "gemini-2.5-flash"
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
		Unsupported: providers.Unsupported{Provider: providerName},
		apiKey:      strings.TrimSpace(opts.APIKey),
		baseURL:     baseURL,
		model:       model,
		httpClient:  client,
		logger:      logger,
	}
}

func (a *Adapter) Name() string { return providerName }

// Model returns the configured model identifier.
func (a *Adapter) Model() string { return a.model }

func (a *Adapter) Available(ctx context.Context) bool { return a.apiKey != "" }

// GenerateText runs a plain text completion.
func (a *Adapter) GenerateText(ctx context.Context, req domain.TextRequest) (*domain.TextResponse, error) {
	payload := geminiRequest{Contents: textContents(req)}
	if req.System != "" {
		payload.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: req.System}}}
	}
	if req.MaxTokens > 0 || req.Temperature > 0 {
		cfg := &geminiGenerationConfig{MaxOutputTokens: req.MaxTokens}
		if req.Temperature > 0 {
			t := req.Temperature
			cfg.Temperature = &t
		}
		payload.GenerationConfig = cfg
	}

	text, err := a.invokeForText(ctx, payload)
	if err != nil {
		return nil, err
	}
	return &domain.TextResponse{Text: text, Provider: providerName, Model: a.model}, nil
}

// AnalyzeImage sends the image inline (or by URI) with the analysis prompt.
func (a *Adapter) AnalyzeImage(ctx context.Context, req domain.ImageAnalysisRequest) (*domain.AnalysisResponse, error) {
	parts := []geminiPart{{Text: analysisPrompt(req.Prompt)}}
	switch {
	case len(req.ImageData) > 0:
		parts = append(parts, geminiPart{InlineData: &geminiInlineData{
			MimeType: firstNonEmpty(req.ImageMIME, "image/png"),
			Data:     base64.StdEncoding.EncodeToString(req.ImageData),
		}})
	case req.ImageURL != "":
		parts = append(parts, geminiPart{FileData: &geminiFileData{
			MimeType: firstNonEmpty(req.ImageMIME, "image/png"),
			FileURI:  req.ImageURL,
		}})
	default:
		return nil, domain.NewError(domain.ErrCodeConfiguration, providerName, "image data or url is required", nil)
	}

	text, err := a.invokeForText(ctx, geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: parts}},
	})
	if err != nil {
		return nil, err
	}
	return &domain.AnalysisResponse{Text: text, Provider: providerName, Model: a.model}, nil
}

// AnalyzeVideo references the video by URI with the analysis prompt.
func (a *Adapter) AnalyzeVideo(ctx context.Context, req domain.VideoAnalysisRequest) (*domain.AnalysisResponse, error) {
	if strings.TrimSpace(req.VideoURL) == "" {
		return nil, domain.NewError(domain.ErrCodeConfiguration, providerName, "video url is required", nil)
	}
	text, err := a.invokeForText(ctx, geminiRequest{
		Contents: []geminiContent{{
			Role: "user",
			Parts: []geminiPart{
				{Text: analysisPrompt(req.Prompt)},
				{FileData: &geminiFileData{MimeType: "video/mp4", FileURI: req.VideoURL}},
			},
		}},
	})
	if err != nil {
		return nil, err
	}
	return &domain.AnalysisResponse{Text: text, Provider: providerName, Model: a.model}, nil
}

// GenerateImage asks an image-capable Gemini model to return inline images.
func (a *Adapter) GenerateImage(ctx context.Context, req domain.ImageRequest) (*domain.ImageResponse, error) {
	count := req.Count
	if count <= 0 {
		count = 1
	}
	if count > 4 {
		count = 4
	}
	payload := geminiRequest{
		Contents: []geminiContent{{
			Role:  "user",
			Parts: []geminiPart{{Text: buildImagePrompt(req)}},
		}},
		GenerationConfig: &geminiGenerationConfig{CandidateCount: count},
	}

	var response geminiResponse
	if err := a.invoke(ctx, payload, &response); err != nil {
		return nil, err
	}
	if reason := blockReason(response); reason != "" {
		return nil, domain.NewError(domain.ErrCodeContentPolicy, providerName, reason, nil)
	}

	var assets []domain.ImageAsset
	for _, candidate := range response.Candidates {
		for _, part := range candidate.Content.Parts {
			asset, err := a.decodeInlineAsset(ctx, part)
			if err != nil || len(asset.Data) == 0 {
				continue
			}
			width, height := decodeImageDimensions(asset.Data)
			assets = append(assets, domain.ImageAsset{
				URL:    asset.URL,
				Data:   asset.Data,
				Format: firstNonEmpty(asset.Format, "image/png"),
				Width:  width,
				Height: height,
			})
			if len(assets) >= count {
				break
			}
		}
		if len(assets) >= count {
			break
		}
	}
	if len(assets) == 0 {
		return nil, domain.NewError(domain.ErrCodeProvider, providerName, "no image content returned", nil)
	}

	a.logger.Debug().
		Str("request_id", req.RequestID).
		Str("model", a.model).
		Int("count", len(assets)).
		Msg("gemini: generated image assets")

	return &domain.ImageResponse{Images: assets, Provider: providerName, Model: a.model}, nil
}

// EditImage sends the source image inline together with the edit instruction.
func (a *Adapter) EditImage(ctx context.Context, req domain.ImageEditRequest) (*domain.ImageResponse, error) {
	parts := []geminiPart{{Text: strings.TrimSpace(req.Prompt)}}
	switch {
	case len(req.SourceData) > 0:
		parts = append(parts, geminiPart{InlineData: &geminiInlineData{
			MimeType: firstNonEmpty(req.SourceMIME, "image/png"),
			Data:     base64.StdEncoding.EncodeToString(req.SourceData),
		}})
	case req.SourceURL != "":
		parts = append(parts, geminiPart{FileData: &geminiFileData{
			MimeType: firstNonEmpty(req.SourceMIME, "image/png"),
			FileURI:  req.SourceURL,
		}})
	default:
		return nil, domain.NewError(domain.ErrCodeConfiguration, providerName, "source image is required", nil)
	}

	var response geminiResponse
	if err := a.invoke(ctx, geminiRequest{Contents: []geminiContent{{Role: "user", Parts: parts}}}, &response); err != nil {
		return nil, err
	}
	if reason := blockReason(response); reason != "" {
		return nil, domain.NewError(domain.ErrCodeContentPolicy, providerName, reason, nil)
	}
	for _, candidate := range response.Candidates {
		for _, part := range candidate.Content.Parts {
			asset, err := a.decodeInlineAsset(ctx, part)
			if err != nil || len(asset.Data) == 0 {
				continue
			}
			width, height := decodeImageDimensions(asset.Data)
			return &domain.ImageResponse{
				Images: []domain.ImageAsset{{
					URL:    asset.URL,
					Data:   asset.Data,
					Format: firstNonEmpty(asset.Format, "image/png"),
					Width:  width,
					Height: height,
				}},
				Provider: providerName,
				Model:    a.model,
			}, nil
		}
	}
	return nil, domain.NewError(domain.ErrCodeProvider, providerName, "no edited image returned", nil)
}

func (a *Adapter) invokeForText(ctx context.Context, payload geminiRequest) (string, error) {
	var response geminiResponse
	if err := a.invoke(ctx, payload, &response); err != nil {
		return "", err
	}
	if reason := blockReason(response); reason != "" {
		return "", domain.NewError(domain.ErrCodeContentPolicy, providerName, reason, nil)
	}
	var b strings.Builder
	for _, candidate := range response.Candidates {
		for _, part := range candidate.Content.Parts {
			b.WriteString(part.Text)
		}
		break
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", domain.NewError(domain.ErrCodeProvider, providerName, "empty response", nil)
	}
	return text, nil
}

func (a *Adapter) invoke(ctx context.Context, payload any, out any) error {
	endpoint := fmt.Sprintf("%s/models/%s:generateContent", a.baseURL, url.PathEscape(a.model))
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("gemini: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("gemini: create request: %w", err)
	}
	q := req.URL.Query()
	if a.apiKey != "" {
		q.Set("key", a.apiKey)
	}
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return domain.NewError(domain.ErrCodeTimeout, providerName, "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		raw, _ := io.ReadAll(resp.Body)
		var apiErr geminiErrorResponse
		if err := json.Unmarshal(raw, &apiErr); err == nil && apiErr.Error.Message != "" {
			return domain.ClassifyStatus(providerName, resp.StatusCode, apiErr.Error.Message)
		}
		return domain.ClassifyStatus(providerName, resp.StatusCode, string(raw))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("gemini: decode response: %w", err)
	}
	return nil
}

type inlineAsset struct {
	Data   []byte
	Format string
	URL    string
}

func (a *Adapter) decodeInlineAsset(ctx context.Context, part geminiPart) (inlineAsset, error) {
	if part.InlineData != nil && part.InlineData.Data != "" {
		data, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
		if err != nil {
			return inlineAsset{}, fmt.Errorf("gemini: decode inline data: %w", err)
		}
		return inlineAsset{Data: data, Format: part.InlineData.MimeType}, nil
	}
	if part.FileData != nil && part.FileData.FileURI != "" {
		data, mime, err := a.downloadFile(ctx, part.FileData.FileURI)
		if err != nil {
			return inlineAsset{}, err
		}
		return inlineAsset{Data: data, Format: firstNonEmpty(part.FileData.MimeType, mime), URL: part.FileData.FileURI}, nil
	}
	return inlineAsset{}, nil
}

func (a *Adapter) downloadFile(ctx context.Context, uri string) ([]byte, string, error) {
	target := uri
	if !strings.HasPrefix(uri, "http://") && !strings.HasPrefix(uri, "https://") {
		target = a.baseURL + "/" + strings.TrimLeft(uri, "/")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, "", fmt.Errorf("gemini: create download request: %w", err)
	}
	if a.apiKey != "" {
		q := req.URL.Query()
		q.Set("key", a.apiKey)
		req.URL.RawQuery = q.Encode()
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("gemini: download file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(resp.Body)
		return nil, "", fmt.Errorf("gemini: download status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	blob, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("gemini: read file: %w", err)
	}
	return blob, resp.Header.Get("Content-Type"), nil
}

func textContents(req domain.TextRequest) []geminiContent {
	if len(req.Messages) > 0 {
		contents := make([]geminiContent, 0, len(req.Messages))
		for _, msg := range req.Messages {
			role := msg.Role
			if role == "assistant" {
				role = "model"
			}
			contents = append(contents, geminiContent{Role: role, Parts: []geminiPart{{Text: msg.Content}}})
		}
		return contents
	}
	return []geminiContent{{Role: "user", Parts: []geminiPart{{Text: req.Prompt}}}}
}

func buildImagePrompt(req domain.ImageRequest) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(req.Prompt))
	if style := strings.TrimSpace(req.Style); style != "" {
		b.WriteString("\nStyle: ")
		b.WriteString(style)
	}
	if aspect := strings.TrimSpace(req.AspectRatio); aspect != "" {
		b.WriteString("\nAspect ratio: ")
		b.WriteString(aspect)
	}
	if neg := strings.TrimSpace(req.NegativePrompt); neg != "" {
		b.WriteString("\nAvoid: ")
		b.WriteString(neg)
	}
	return b.String()
}

func analysisPrompt(prompt string) string {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "Describe this media in detail."
	}
	return prompt
}

func blockReason(resp geminiResponse) string {
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return "content blocked: " + resp.PromptFeedback.BlockReason
	}
	for _, candidate := range resp.Candidates {
		if candidate.FinishReason == "SAFETY" || candidate.FinishReason == "PROHIBITED_CONTENT" {
			return "content blocked: " + candidate.FinishReason
		}
	}
	return ""
}

func decodeImageDimensions(data []byte) (int, int) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0
	}
	return cfg.Width, cfg.Height
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

var _ providers.Adapter = (*Adapter)(nil)
