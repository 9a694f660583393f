// Package cloneflow implements the capture → analyze → generate flow used to
// clone an existing scene image into a reusable generation prompt. The flow
// is strictly linear; every failure lands in the error state with a
// retryable flag, and retries re-enter the step that failed.
package cloneflow

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"storyboard/internal/domain"
	"storyboard/internal/infra"
)

// Status enumerates the workflow states.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusCapturing  Status = "capturing"
	StatusAnalyzing  Status = "analyzing"
	StatusGenerating Status = "generating"
	StatusComplete   Status = "complete"
	StatusError      Status = "error"
)

// Step names the unit of work a retry re-enters.
type Step string

const (
	StepCapture  Step = "capture"
	StepAnalyze  Step = "analyze"
	StepGenerate Step = "generate"
)

// transitions is the closed set of legal state changes. Analysis and prompt
// generation share the analyzing status on the happy path; generating is only
// entered when re-running the prompt step after a failure or a completed run.
var transitions = map[Status][]Status{
	StatusIdle:       {StatusCapturing},
	StatusCapturing:  {StatusAnalyzing, StatusError, StatusIdle},
	StatusAnalyzing:  {StatusComplete, StatusError, StatusIdle},
	StatusGenerating: {StatusComplete, StatusError, StatusIdle},
	StatusComplete:   {StatusIdle, StatusGenerating},
	StatusError:      {StatusCapturing, StatusAnalyzing, StatusGenerating, StatusIdle},
}

// Artifact is the externally captured image the flow analyzes.
type Artifact struct {
	Data []byte `json:"-"`
	MIME string `json:"mime,omitempty"`
	URL  string `json:"url,omitempty"`
}

// CaptureSource supplies the artifact for a target. Implementations block
// until an artifact is available; the workflow bounds the wait.
type CaptureSource interface {
	Capture(ctx context.Context, targetID string) (*Artifact, error)
}

// Analyzer is the slice of the generation façade the flow needs.
type Analyzer interface {
	AnalyzeImage(ctx context.Context, req domain.ImageAnalysisRequest) (*domain.AnalysisResponse, error)
	GenerateText(ctx context.Context, req domain.TextRequest) (*domain.TextResponse, error)
}

// FlowError describes why an attempt failed and whether retrying can help.
type FlowError struct {
	Step      Step   `json:"step"`
	Reason    string `json:"reason"`
	Retryable bool   `json:"retryable"`
}

// State is a snapshot of one clone attempt.
type State struct {
	Status   Status     `json:"status"`
	Step     Step       `json:"step,omitempty"`
	TargetID string     `json:"target_id,omitempty"`
	Artifact *Artifact  `json:"artifact,omitempty"`
	Analysis string     `json:"analysis,omitempty"`
	Prompt   string     `json:"prompt,omitempty"`
	Err      *FlowError `json:"error,omitempty"`
	Retries  int        `json:"retries"`
}

// Options configures the workflow.
type Options struct {
	Capture        CaptureSource
	Analyzer       Analyzer
	CaptureTimeout time.Duration
	MaxRetries     int
	Logger         *infra.Logger
}

// Workflow owns exactly one clone attempt at a time.
type Workflow struct {
	capture        CaptureSource
	analyzer       Analyzer
	captureTimeout time.Duration
	maxRetries     int
	logger         *infra.Logger

	mu    sync.Mutex
	state State
}

// New constructs an idle workflow.
func New(opts Options) *Workflow {
	timeout := opts.CaptureTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 2
	}
	logger := opts.Logger
	if logger == nil {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Workflow{
		capture:        opts.Capture,
		analyzer:       opts.Analyzer,
		captureTimeout: timeout,
		maxRetries:     maxRetries,
		logger:         logger,
		state:          State{Status: StatusIdle},
	}
}

// State returns a snapshot of the current attempt.
func (w *Workflow) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// InitiateClone starts a new attempt for the target and drives it to
// complete or error. Only valid from idle.
func (w *Workflow) InitiateClone(ctx context.Context, targetID string) error {
	w.mu.Lock()
	if w.state.Status != StatusIdle {
		w.mu.Unlock()
		return domain.NewError(domain.ErrCodeConfiguration, "",
			"clone already in progress, cancel or reset first", nil)
	}
	w.state = State{Status: StatusCapturing, Step: StepCapture, TargetID: targetID}
	w.mu.Unlock()

	return w.run(ctx, StepCapture)
}

// RetryWorkflow re-enters the step that failed. Only valid from error, and
// only while the retry budget lasts.
func (w *Workflow) RetryWorkflow(ctx context.Context) error {
	w.mu.Lock()
	if w.state.Status != StatusError || w.state.Err == nil {
		w.mu.Unlock()
		return domain.NewError(domain.ErrCodeConfiguration, "", "retry is only valid from the error state", nil)
	}
	if w.state.Retries >= w.maxRetries {
		w.mu.Unlock()
		return domain.NewError(domain.ErrCodeConfiguration, "", "retry budget exhausted", nil)
	}
	step := w.state.Err.Step
	w.state.Retries++
	w.state.Err = nil
	w.transitionLocked(statusForStep(step), step)
	w.mu.Unlock()

	return w.run(ctx, step)
}

// Cancel abandons the attempt and releases the held artifact.
func (w *Workflow) Cancel() { w.Reset() }

// Reset returns unconditionally to idle.
func (w *Workflow) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.state = State{Status: StatusIdle}
}

// run executes the linear flow starting at the given step.
func (w *Workflow) run(ctx context.Context, from Step) error {
	if from == StepCapture {
		artifact, err := w.awaitCapture(ctx)
		if err != nil {
			return w.failStep(StepCapture, err, true)
		}
		w.mu.Lock()
		w.state.Artifact = artifact
		w.transitionLocked(StatusAnalyzing, StepAnalyze)
		w.mu.Unlock()
		from = StepAnalyze
	}

	if from == StepAnalyze {
		analysis, err := w.analyze(ctx)
		if err != nil {
			return w.failStep(StepAnalyze, err, domain.Retryable(err))
		}
		w.mu.Lock()
		w.state.Analysis = analysis
		// Prompt generation is still part of the analyzing phase; only the
		// step marker advances so a failure here retries the right unit.
		w.state.Step = StepGenerate
		w.mu.Unlock()
	}

	prompt, err := w.generatePrompt(ctx)
	if err != nil {
		return w.failStep(StepGenerate, err, domain.Retryable(err))
	}
	if err := validatePrompt(prompt); err != nil {
		return w.failStep(StepGenerate, err, true)
	}

	w.mu.Lock()
	w.state.Prompt = prompt
	w.transitionLocked(StatusComplete, StepGenerate)
	w.mu.Unlock()
	w.logger.Info().Str("target", w.State().TargetID).Msg("cloneflow: prompt ready for review")
	return nil
}

// awaitCapture waits for the externally captured artifact, bounded by the
// capture timeout. A missing artifact is a retryable failure, never a hang.
func (w *Workflow) awaitCapture(ctx context.Context) (*Artifact, error) {
	if w.capture == nil {
		return nil, domain.NewError(domain.ErrCodeConfiguration, "", "no capture source configured", nil)
	}
	ctx, cancel := context.WithTimeout(ctx, w.captureTimeout)
	defer cancel()

	artifact, err := w.capture.Capture(ctx, w.State().TargetID)
	if err != nil {
		if ctx.Err() != nil {
			return nil, domain.NewError(domain.ErrCodeTimeout, "", "capture timed out", ctx.Err())
		}
		return nil, err
	}
	if artifact == nil || (len(artifact.Data) == 0 && artifact.URL == "") {
		return nil, domain.NewError(domain.ErrCodeTimeout, "", "no artifact captured", nil)
	}
	return artifact, nil
}

func (w *Workflow) analyze(ctx context.Context) (string, error) {
	artifact := w.State().Artifact
	resp, err := w.analyzer.AnalyzeImage(ctx, domain.ImageAnalysisRequest{
		Prompt:    "Describe the subject, composition, lighting, and style of this image so it can be recreated.",
		ImageData: artifact.Data,
		ImageMIME: artifact.MIME,
		ImageURL:  artifact.URL,
	})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

func (w *Workflow) generatePrompt(ctx context.Context) (string, error) {
	resp, err := w.analyzer.GenerateText(ctx, domain.TextRequest{
		System: "You turn image descriptions into concise image generation prompts.",
		Prompt: "Write a single generation prompt recreating this image:\n" + w.State().Analysis,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Text), nil
}

func (w *Workflow) failStep(step Step, err error, retryable bool) error {
	reason := domain.ReasonOf(err)
	if reason == "" {
		reason = err.Error()
	}
	w.mu.Lock()
	w.state.Status = StatusError
	w.state.Err = &FlowError{Step: step, Reason: reason, Retryable: retryable}
	w.mu.Unlock()
	w.logger.Warn().Str("step", string(step)).Str("reason", reason).Msg("cloneflow: step failed")
	return err
}

// transitionLocked moves to next if the transition table allows it. Illegal
// transitions indicate a programming error and are forced through with a log
// line rather than a panic.
func (w *Workflow) transitionLocked(next Status, step Step) {
	if !legalTransition(w.state.Status, next) {
		w.logger.Error().
			Str("from", string(w.state.Status)).
			Str("to", string(next)).
			Msg("cloneflow: illegal transition")
	}
	w.state.Status = next
	w.state.Step = step
}

func legalTransition(from, to Status) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

func statusForStep(step Step) Status {
	switch step {
	case StepCapture:
		return StatusCapturing
	case StepAnalyze:
		return StatusAnalyzing
	default:
		return StatusGenerating
	}
}

func validatePrompt(prompt string) error {
	if len(strings.TrimSpace(prompt)) < 10 {
		return domain.NewError(domain.ErrCodeProvider, "", "generated prompt is too short to use", nil)
	}
	return nil
}
