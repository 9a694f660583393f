package domain

// Message is a single turn of a text-generation conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ImageRequest asks a provider to create images from a text prompt.
type ImageRequest struct {
	Prompt          string   `json:"prompt"`
	NegativePrompt  string   `json:"negative_prompt,omitempty"`
	ReferenceImages []string `json:"reference_images,omitempty"`
	AspectRatio     string   `json:"aspect_ratio,omitempty"`
	Style           string   `json:"style,omitempty"`
	Count           int      `json:"count,omitempty"`
	RequestID       string   `json:"request_id,omitempty"`
}

// ImageEditRequest asks a provider to rework an existing image.
type ImageEditRequest struct {
	Prompt      string `json:"prompt"`
	SourceURL   string `json:"source_url,omitempty"`
	SourceData  []byte `json:"source_data,omitempty"`
	SourceMIME  string `json:"source_mime,omitempty"`
	AspectRatio string `json:"aspect_ratio,omitempty"`
	RequestID   string `json:"request_id,omitempty"`
}

// TextRequest asks a provider for text generation.
type TextRequest struct {
	System      string    `json:"system,omitempty"`
	Prompt      string    `json:"prompt,omitempty"`
	Messages    []Message `json:"messages,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
	RequestID   string    `json:"request_id,omitempty"`
}

// ImageAnalysisRequest asks a provider to describe or inspect an image.
type ImageAnalysisRequest struct {
	ImageURL  string `json:"image_url,omitempty"`
	ImageData []byte `json:"image_data,omitempty"`
	ImageMIME string `json:"image_mime,omitempty"`
	Prompt    string `json:"prompt"`
	RequestID string `json:"request_id,omitempty"`
}

// VideoRequest asks a provider to start a video generation job.
type VideoRequest struct {
	Prompt      string `json:"prompt"`
	ImageURL    string `json:"image_url,omitempty"`
	AspectRatio string `json:"aspect_ratio,omitempty"`
	Duration    int    `json:"duration,omitempty"`
	Style       string `json:"style,omitempty"`
	RequestID   string `json:"request_id,omitempty"`
}

// VideoAnalysisRequest asks a provider to describe video content.
type VideoAnalysisRequest struct {
	VideoURL  string `json:"video_url"`
	Prompt    string `json:"prompt"`
	RequestID string `json:"request_id,omitempty"`
}

// ImageAsset is one normalized generated image.
type ImageAsset struct {
	URL    string `json:"url,omitempty"`
	Data   []byte `json:"-"`
	Format string `json:"format,omitempty"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

// ImageResponse is the canonical envelope for image generation and editing.
type ImageResponse struct {
	Images   []ImageAsset `json:"images"`
	Provider string       `json:"provider"`
	Model    string       `json:"model,omitempty"`
}

// TextResponse is the canonical envelope for text generation.
type TextResponse struct {
	Text     string `json:"text"`
	Provider string `json:"provider"`
	Model    string `json:"model,omitempty"`
}

// AnalysisResponse is the canonical envelope for image and video analysis.
type AnalysisResponse struct {
	Text     string `json:"text"`
	Provider string `json:"provider"`
	Model    string `json:"model,omitempty"`
}

// VideoResponse is the canonical envelope for video generation. Providers
// that work asynchronously return a TaskID and a mapped initial state;
// providers that answer inline return the URL directly with TaskSucceeded.
type VideoResponse struct {
	TaskID   string    `json:"task_id,omitempty"`
	URL      string    `json:"url,omitempty"`
	State    TaskState `json:"state"`
	Provider string    `json:"provider"`
	Model    string    `json:"model,omitempty"`
}
