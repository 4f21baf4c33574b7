// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/ManuGH/inductd/internal/log"
	"github.com/ManuGH/inductd/internal/model"
)

const maxBodyBytes = 1 << 20

// handleCurrentPlan serves GET /api/v1/plans/current?depot=. An empty
// depot falls back to the controller's own.
func (s *Server) handleCurrentPlan(w http.ResponseWriter, r *http.Request) {
	plan, err := s.svc.GetCurrentPlan(r.Context(), r.URL.Query().Get("depot"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

type triggerRequest struct {
	Reason string `json:"reason"`
}

type triggerResponse struct {
	PlanID string `json:"planId"`
}

// handleTriggerCycle serves POST /api/v1/cycles. The cycle runs to
// commit before the response; the body carries the plan it produced.
func (s *Server) handleTriggerCycle(w http.ResponseWriter, r *http.Request) {
	var req triggerRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	id, err := s.svc.TriggerRealtimeCycle(r.Context(), req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, triggerResponse{PlanID: id})
}

type decisionRequest struct {
	PlanID     string `json:"planId"`
	TrainsetID string `json:"trainsetId"`
	Label      string `json:"label"`
}

type decisionResponse struct {
	Plan     *model.InductionPlan `json:"plan"`
	Decision *model.Decision      `json:"decision"`
}

// handleSubmitDecision serves POST /api/v1/decisions. The authorizing
// operator comes from the X-Authorized-By header; without it the
// service rejects the override.
func (s *Server) handleSubmitDecision(w http.ResponseWriter, r *http.Request) {
	var req decisionRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	if req.PlanID == "" || req.TrainsetID == "" {
		writeBadRequest(w, "planId and trainsetId are required")
		return
	}
	plan, dec, err := s.svc.SubmitManualDecision(
		r.Context(),
		req.PlanID,
		req.TrainsetID,
		model.DecisionLabel(req.Label),
		r.Header.Get("X-Authorized-By"),
	)
	if err != nil {
		writeError(w, err)
		return
	}
	logger := log.WithContext(r.Context(), s.logger)
	logger.Info().
		Str(log.FieldPlanID, plan.ID).
		Str(log.FieldTrainsetID, req.TrainsetID).
		Str(log.FieldLabel, req.Label).
		Msg("api.decision_applied")
	writeJSON(w, http.StatusOK, decisionResponse{Plan: plan, Decision: dec})
}

// decodeBody parses a JSON body, tolerating an absent one. Unknown
// fields are rejected so typos fail loudly instead of silently.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	return nil
}
