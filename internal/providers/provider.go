// Package providers defines the adapter contract every vendor client
// implements. Adapters own all vendor-specific request shaping, header
// construction, and response unmarshalling; vendor types never leak past the
// adapter boundary.
package providers

import (
	"context"

	"storyboard/internal/domain"
)

// Adapter is the capability-set contract. Every adapter implements the full
// method set; functions a vendor lacks come from the Unsupported base and
// fail with the unsupported-function error class.
type Adapter interface {
	// Name returns the provider kind identifier used in the capability table.
	Name() string

	// Available reports whether the adapter holds usable credentials.
	Available(ctx context.Context) bool

	GenerateImage(ctx context.Context, req domain.ImageRequest) (*domain.ImageResponse, error)
	EditImage(ctx context.Context, req domain.ImageEditRequest) (*domain.ImageResponse, error)
	GenerateText(ctx context.Context, req domain.TextRequest) (*domain.TextResponse, error)
	AnalyzeImage(ctx context.Context, req domain.ImageAnalysisRequest) (*domain.AnalysisResponse, error)
	GenerateVideo(ctx context.Context, req domain.VideoRequest) (*domain.VideoResponse, error)
	AnalyzeVideo(ctx context.Context, req domain.VideoAnalysisRequest) (*domain.AnalysisResponse, error)

	// QueryVideoTask resolves the status of a previously submitted video job.
	QueryVideoTask(ctx context.Context, taskID string) (*domain.TaskStatus, error)
}

// Unsupported provides failing defaults for every adapter method so vendor
// clients only implement what their API actually offers.
type Unsupported struct {
	Provider string
}

func (u Unsupported) unsupported(fn domain.Function) error {
	return domain.NewError(domain.ErrCodeUnsupportedFunction, u.Provider,
		"function "+string(fn)+" is not supported", nil)
}

func (u Unsupported) GenerateImage(ctx context.Context, req domain.ImageRequest) (*domain.ImageResponse, error) {
	return nil, u.unsupported(domain.FunctionTextToImage)
}

func (u Unsupported) EditImage(ctx context.Context, req domain.ImageEditRequest) (*domain.ImageResponse, error) {
	return nil, u.unsupported(domain.FunctionImageEdit)
}

func (u Unsupported) GenerateText(ctx context.Context, req domain.TextRequest) (*domain.TextResponse, error) {
	return nil, u.unsupported(domain.FunctionTextGeneration)
}

func (u Unsupported) AnalyzeImage(ctx context.Context, req domain.ImageAnalysisRequest) (*domain.AnalysisResponse, error) {
	return nil, u.unsupported(domain.FunctionImageAnalysis)
}

func (u Unsupported) GenerateVideo(ctx context.Context, req domain.VideoRequest) (*domain.VideoResponse, error) {
	return nil, u.unsupported(domain.FunctionVideoGeneration)
}

func (u Unsupported) AnalyzeVideo(ctx context.Context, req domain.VideoAnalysisRequest) (*domain.AnalysisResponse, error) {
	return nil, u.unsupported(domain.FunctionVideoAnalysis)
}

func (u Unsupported) QueryVideoTask(ctx context.Context, taskID string) (*domain.TaskStatus, error) {
	return nil, domain.NewError(domain.ErrCodeUnsupportedFunction, u.Provider,
		"video task queries are not supported", nil)
}
