package handlers

import (
	"net/http"

	"storyboard/internal/domain"
)

type cloneRequest struct {
	TargetID string `json:"target_id"`
}

// StartClone kicks off the capture/analyze/generate workflow for a target.
func (a *App) StartClone(w http.ResponseWriter, r *http.Request) {
	if a.Clone == nil {
		a.fail(w, r, domain.NewError(domain.ErrCodeConfiguration, "", "clone workflow is not enabled", nil))
		return
	}
	var req cloneRequest
	if !a.decode(w, r, &req) {
		return
	}
	if req.TargetID == "" {
		a.badRequest(w, r, "target_id is required")
		return
	}
	if err := a.Clone.InitiateClone(a.BaseContext, req.TargetID); err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusAccepted, a.Clone.State())
}

// RetryClone re-enters the workflow at the failed step.
func (a *App) RetryClone(w http.ResponseWriter, r *http.Request) {
	if a.Clone == nil {
		a.fail(w, r, domain.NewError(domain.ErrCodeConfiguration, "", "clone workflow is not enabled", nil))
		return
	}
	if err := a.Clone.RetryWorkflow(a.BaseContext); err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusAccepted, a.Clone.State())
}

// CancelClone aborts the workflow and releases its artifacts.
func (a *App) CancelClone(w http.ResponseWriter, r *http.Request) {
	if a.Clone == nil {
		a.fail(w, r, domain.NewError(domain.ErrCodeConfiguration, "", "clone workflow is not enabled", nil))
		return
	}
	a.Clone.Cancel()
	a.json(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// GetClone reports the workflow state.
func (a *App) GetClone(w http.ResponseWriter, r *http.Request) {
	if a.Clone == nil {
		a.fail(w, r, domain.NewError(domain.ErrCodeConfiguration, "", "clone workflow is not enabled", nil))
		return
	}
	a.json(w, http.StatusOK, a.Clone.State())
}
