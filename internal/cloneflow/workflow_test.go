package cloneflow

import (
	"context"
	"testing"
	"time"

	"storyboard/internal/domain"
)

type stubCapture struct {
	artifact *Artifact
	err      error
	block    bool
}

func (s *stubCapture) Capture(ctx context.Context, targetID string) (*Artifact, error) {
	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return s.artifact, s.err
}

type stubAnalyzer struct {
	analysis    string
	analyzeErr  error
	prompt      string
	generateErr error
	analyzed    int
	generated   int
}

func (s *stubAnalyzer) AnalyzeImage(ctx context.Context, req domain.ImageAnalysisRequest) (*domain.AnalysisResponse, error) {
	s.analyzed++
	if s.analyzeErr != nil {
		return nil, s.analyzeErr
	}
	return &domain.AnalysisResponse{Text: s.analysis, Provider: "demo"}, nil
}

func (s *stubAnalyzer) GenerateText(ctx context.Context, req domain.TextRequest) (*domain.TextResponse, error) {
	s.generated++
	if s.generateErr != nil {
		return nil, s.generateErr
	}
	return &domain.TextResponse{Text: s.prompt, Provider: "demo"}, nil
}

func TestCloneFlowCompletesWithPrompt(t *testing.T) {
	workflow := New(Options{
		Capture:  &stubCapture{artifact: &Artifact{Data: []byte{0x01}, MIME: "image/png"}},
		Analyzer: &stubAnalyzer{analysis: "a red cube on white", prompt: "a red cube on a white background, studio lighting"},
	})

	if err := workflow.InitiateClone(context.Background(), "scene-1"); err != nil {
		t.Fatalf("initiate: %v", err)
	}
	state := workflow.State()
	if state.Status != StatusComplete {
		t.Fatalf("status = %q, want %q", state.Status, StatusComplete)
	}
	if state.Prompt == "" {
		t.Fatalf("complete state must hold a generated prompt")
	}
	if state.Analysis == "" {
		t.Fatalf("analysis text should be retained for review")
	}
}

func TestCaptureTimeoutIsRetryable(t *testing.T) {
	workflow := New(Options{
		Capture:        &stubCapture{block: true},
		Analyzer:       &stubAnalyzer{},
		CaptureTimeout: 5 * time.Millisecond,
	})

	if err := workflow.InitiateClone(context.Background(), "scene-2"); err == nil {
		t.Fatalf("expected capture timeout")
	}
	state := workflow.State()
	if state.Status != StatusError {
		t.Fatalf("status = %q, want %q", state.Status, StatusError)
	}
	if state.Err == nil || !state.Err.Retryable {
		t.Fatalf("capture timeout must be retryable, got %+v", state.Err)
	}
	if state.Err.Step != StepCapture {
		t.Fatalf("failed step = %q, want %q", state.Err.Step, StepCapture)
	}
}

func TestRetryReentersFailedStepOnly(t *testing.T) {
	analyzer := &stubAnalyzer{
		analyzeErr: domain.NewError(domain.ErrCodeTimeout, "demo", "upstream timeout", nil),
		prompt:     "a red cube on a white background, studio lighting",
	}
	workflow := New(Options{
		Capture:    &stubCapture{artifact: &Artifact{Data: []byte{0x01}}},
		Analyzer:   analyzer,
		MaxRetries: 2,
	})

	if err := workflow.InitiateClone(context.Background(), "scene-3"); err == nil {
		t.Fatalf("expected analyze failure")
	}
	if workflow.State().Err.Step != StepAnalyze {
		t.Fatalf("failed step = %q, want analyze", workflow.State().Err.Step)
	}

	analyzer.analyzeErr = nil
	analyzer.analysis = "a red cube on white"
	if err := workflow.RetryWorkflow(context.Background()); err != nil {
		t.Fatalf("retry: %v", err)
	}
	state := workflow.State()
	if state.Status != StatusComplete {
		t.Fatalf("status = %q, want complete after retry", state.Status)
	}
	if state.Retries != 1 {
		t.Fatalf("retries = %d, want 1", state.Retries)
	}
	if analyzer.analyzed != 2 {
		t.Fatalf("analyze calls = %d, want 2 (initial + retry)", analyzer.analyzed)
	}
}

func TestRetryOnlyValidFromError(t *testing.T) {
	workflow := New(Options{
		Capture:  &stubCapture{artifact: &Artifact{Data: []byte{0x01}}},
		Analyzer: &stubAnalyzer{analysis: "x", prompt: "a red cube on a white background"},
	})
	if err := workflow.RetryWorkflow(context.Background()); err == nil {
		t.Fatalf("retry from idle must fail")
	}
}

func TestRetryBudgetExhausted(t *testing.T) {
	analyzer := &stubAnalyzer{
		analyzeErr: domain.NewError(domain.ErrCodeTimeout, "demo", "upstream timeout", nil),
	}
	workflow := New(Options{
		Capture:    &stubCapture{artifact: &Artifact{Data: []byte{0x01}}},
		Analyzer:   analyzer,
		MaxRetries: 1,
	})

	_ = workflow.InitiateClone(context.Background(), "scene-4")
	_ = workflow.RetryWorkflow(context.Background())
	if err := workflow.RetryWorkflow(context.Background()); err == nil {
		t.Fatalf("expected retry budget exhaustion")
	}
}

func TestCancelReturnsToIdleAndReleasesArtifact(t *testing.T) {
	workflow := New(Options{
		Capture:  &stubCapture{artifact: &Artifact{Data: []byte{0x01}}},
		Analyzer: &stubAnalyzer{analysis: "x", prompt: "a red cube on a white background"},
	})
	if err := workflow.InitiateClone(context.Background(), "scene-5"); err != nil {
		t.Fatalf("initiate: %v", err)
	}
	workflow.Cancel()
	state := workflow.State()
	if state.Status != StatusIdle {
		t.Fatalf("status = %q, want idle after cancel", state.Status)
	}
	if state.Artifact != nil {
		t.Fatalf("artifact must be released on cancel")
	}
}

func TestPromptGenerationStaysInAnalyzing(t *testing.T) {
	if legalTransition(StatusAnalyzing, StatusGenerating) {
		t.Fatalf("analyzing must move straight to complete, error, or idle")
	}
	if !legalTransition(StatusAnalyzing, StatusComplete) {
		t.Fatalf("analyzing must be able to complete directly")
	}
	if !legalTransition(StatusError, StatusGenerating) {
		t.Fatalf("a failed prompt step must be retryable via generating")
	}
	if !legalTransition(StatusComplete, StatusGenerating) {
		t.Fatalf("a completed flow must allow regenerating the prompt")
	}
}

func TestGenerateStepRetryRunsUnderGenerating(t *testing.T) {
	analyzer := &stubAnalyzer{
		analysis:    "a red cube on white",
		generateErr: domain.NewError(domain.ErrCodeTimeout, "demo", "upstream timeout", nil),
	}
	workflow := New(Options{
		Capture:    &stubCapture{artifact: &Artifact{Data: []byte{0x01}}},
		Analyzer:   analyzer,
		MaxRetries: 1,
	})

	if err := workflow.InitiateClone(context.Background(), "scene-7"); err == nil {
		t.Fatalf("expected prompt generation failure")
	}
	if workflow.State().Err.Step != StepGenerate {
		t.Fatalf("failed step = %q, want generate", workflow.State().Err.Step)
	}

	analyzer.generateErr = nil
	analyzer.prompt = "a red cube on a white background, studio lighting"
	if err := workflow.RetryWorkflow(context.Background()); err != nil {
		t.Fatalf("retry: %v", err)
	}
	state := workflow.State()
	if state.Status != StatusComplete {
		t.Fatalf("status = %q, want complete after prompt retry", state.Status)
	}
	if analyzer.analyzed != 1 {
		t.Fatalf("analyze calls = %d, a prompt retry must not re-analyze", analyzer.analyzed)
	}
	if analyzer.generated != 2 {
		t.Fatalf("generate calls = %d, want 2 (initial + retry)", analyzer.generated)
	}
}

func TestShortPromptFailsValidation(t *testing.T) {
	workflow := New(Options{
		Capture:  &stubCapture{artifact: &Artifact{Data: []byte{0x01}}},
		Analyzer: &stubAnalyzer{analysis: "x", prompt: "cube"},
	})
	if err := workflow.InitiateClone(context.Background(), "scene-6"); err == nil {
		t.Fatalf("expected validation failure")
	}
	state := workflow.State()
	if state.Status != StatusError || state.Err.Step != StepGenerate {
		t.Fatalf("state = %+v, want generate-step error", state)
	}
}
