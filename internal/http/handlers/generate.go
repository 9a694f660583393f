package handlers

import (
	"net/http"

	"github.com/google/uuid"

	"storyboard/internal/domain"
)

// GenerateImage runs a synchronous text-to-image request.
func (a *App) GenerateImage(w http.ResponseWriter, r *http.Request) {
	var req domain.ImageRequest
	if !a.decode(w, r, &req) {
		return
	}
	if req.Prompt == "" {
		a.badRequest(w, r, "prompt is required")
		return
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	resp, err := a.Gen.GenerateImage(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, resp)
}

// EditImage runs a synchronous image edit against a reference image.
func (a *App) EditImage(w http.ResponseWriter, r *http.Request) {
	var req domain.ImageEditRequest
	if !a.decode(w, r, &req) {
		return
	}
	if req.Prompt == "" {
		a.badRequest(w, r, "prompt is required")
		return
	}
	if req.SourceURL == "" && len(req.SourceData) == 0 {
		a.badRequest(w, r, "a source image is required")
		return
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	resp, err := a.Gen.EditImage(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, resp)
}

// GenerateText runs a synchronous text generation request.
func (a *App) GenerateText(w http.ResponseWriter, r *http.Request) {
	var req domain.TextRequest
	if !a.decode(w, r, &req) {
		return
	}
	if req.Prompt == "" && len(req.Messages) == 0 {
		a.badRequest(w, r, "prompt or messages are required")
		return
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	resp, err := a.Gen.GenerateText(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, resp)
}

// AnalyzeImage runs a synchronous image analysis request.
func (a *App) AnalyzeImage(w http.ResponseWriter, r *http.Request) {
	var req domain.ImageAnalysisRequest
	if !a.decode(w, r, &req) {
		return
	}
	if req.ImageURL == "" && len(req.ImageData) == 0 {
		a.badRequest(w, r, "an image is required")
		return
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	resp, err := a.Gen.AnalyzeImage(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, resp)
}

// AnalyzeVideo runs a synchronous video analysis request.
func (a *App) AnalyzeVideo(w http.ResponseWriter, r *http.Request) {
	var req domain.VideoAnalysisRequest
	if !a.decode(w, r, &req) {
		return
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	resp, err := a.Gen.AnalyzeVideo(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, resp)
}

// GenerateVideo submits an async video generation job. The provider task is
// tracked by the poller; progress is read from the task endpoints.
func (a *App) GenerateVideo(w http.ResponseWriter, r *http.Request) {
	var req domain.VideoRequest
	if !a.decode(w, r, &req) {
		return
	}
	if req.Prompt == "" && req.ImageURL == "" {
		a.badRequest(w, r, "prompt or image_url is required")
		return
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	resp, err := a.Gen.GenerateVideo(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if resp.URL != "" || resp.TaskID == "" {
		// Some providers answer synchronously; no task to track.
		a.json(w, http.StatusOK, resp)
		return
	}
	a.Poller.Track(a.BaseContext, resp.TaskID, resp.Provider, taskCallbacks(a.Logger))
	a.json(w, http.StatusAccepted, resp)
}
