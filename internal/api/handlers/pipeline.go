package handlers

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/reviewstudio/studio/internal/sessions"
	"github.com/reviewstudio/studio/pkg/models"
)

type pipelineRequest struct {
	Input     string                          `json:"input"`
	Overrides map[string]models.AgentOverride `json:"overrides"`
}

// RunPipeline handles POST /api/v1/sessions/{sessionID}/pipeline.
//
// The body is the PipelineResult whether or not the pipeline halted; a
// halted run answers with the status of the failing step's error kind.
func (h *Handlers) RunPipeline(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionFrom(w, r)
	if !ok {
		return
	}
	var req pipelineRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.Pipeline.RunFullPipeline(r.Context(), sess, req.Input, req.Overrides)
	if err != nil {
		if result == nil {
			respondErr(w, err)
			return
		}
		log.Warn().Err(err).Str("session", sess.ID).Msg("Pipeline request halted")
		respondJSON(w, statusFor(err), result)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

type stepRequest struct {
	AgentID  string                `json:"agent_id"`
	Input    *string               `json:"input"`
	Source   string                `json:"source"`
	Override *models.AgentOverride `json:"override"`
}

type stepResponse struct {
	Run  *models.PipelineRun `json:"run"`
	Mana int                 `json:"mana"`
}

// RunStep handles POST /api/v1/sessions/{sessionID}/steps: one agent, any
// time, reading an explicit input or the chosen source. The override applies
// to this call only; without a max_tokens override the interactive default
// is used.
func (h *Handlers) RunStep(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionFrom(w, r)
	if !ok {
		return
	}
	var req stepRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.AgentID == "" {
		respondError(w, http.StatusBadRequest, "agent_id is required")
		return
	}
	src, ok := sessions.ParseInputSource(req.Source)
	if !ok {
		respondError(w, http.StatusBadRequest, "source must be one of last_output, ocr_text, raw_text")
		return
	}

	override := models.AgentOverride{}
	if req.Override != nil {
		override = *req.Override
	}
	if override.MaxTokens == nil {
		maxTokens := h.StepMaxTokens
		override.MaxTokens = &maxTokens
	}

	run, err := h.Pipeline.RunSingleStep(r.Context(), sess, models.StepRequest{
		AgentID:  req.AgentID,
		Input:    req.Input,
		Source:   src,
		Override: &override,
	})
	mana := manaOf(sess)
	if err != nil {
		body := newErrorBody(err)
		body.Mana = &mana
		respondJSON(w, statusFor(err), body)
		return
	}
	respondJSON(w, http.StatusCreated, stepResponse{Run: run, Mana: mana})
}

type magicResponse struct {
	Magic    string `json:"magic"`
	Rendered string `json:"rendered"`
	Mana     int    `json:"mana"`
}

// RunMagic handles POST /api/v1/sessions/{sessionID}/magics.
func (h *Handlers) RunMagic(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionFrom(w, r)
	if !ok {
		return
	}
	var req models.MagicRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Magic == "" {
		respondError(w, http.StatusBadRequest, "magic is required")
		return
	}

	out, err := h.Pipeline.RunMagic(r.Context(), sess, req)
	mana := manaOf(sess)
	if err != nil {
		body := newErrorBody(err)
		var se *models.StepError
		if errors.As(err, &se) {
			body.Mana = &mana
		}
		respondJSON(w, statusFor(err), body)
		return
	}
	respondJSON(w, http.StatusOK, magicResponse{Magic: req.Magic, Rendered: out, Mana: mana})
}

func manaOf(sess *sessions.Session) int {
	sess.Lock()
	defer sess.Unlock()
	return sess.Gauge.Level()
}
