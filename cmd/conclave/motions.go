// Copyright 2025 Certen Protocol
//
// motions.go exposes the motion lifecycle (§4.6, §4.7) over HTTP: propose,
// debate, open voting, cast a vote, and finalize. There is no spec'd wire
// format for this surface — only the Observer Read API (§4.12) is spec'd —
// so the shapes here are a minimal, reasoned JSON surface that exists to
// exercise deliberation.Engine and the validator bus end to end rather than
// leave them constructed but unreachable.

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/archon72/conclave/pkg/deliberation"
	"github.com/archon72/conclave/pkg/validation"
)

type motionHandlers struct {
	engine     *deliberation.Engine
	aggregator *validation.Aggregator
	dispatcher *validation.BusDispatcher
	reconGate  *validation.ReconciliationGate
	tally      *validation.EventTally
	breaker    *validation.CircuitBreaker
	clock      func() time.Time
	timeout    time.Duration
}

func (h *motionHandlers) register(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/motions", h.handleMotions)
	mux.HandleFunc("/api/v1/motions/", h.handleMotionSubresource)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (h *motionHandlers) handleMotions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}

	var body struct {
		MotionID   string                  `json:"motion_id"`
		Title      string                  `json:"title"`
		Text       string                  `json:"text"`
		Type       deliberation.MotionType `json:"type"`
		ProposerID string                  `json:"proposer_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if body.MotionID == "" {
		body.MotionID = uuid.NewString()
	}
	if body.ProposerID == "" {
		writeError(w, http.StatusBadRequest, errors.New("proposer_id is required"))
		return
	}

	motion, err := h.engine.Propose(r.Context(), body.MotionID, body.Title, body.Text, body.Type, body.ProposerID)
	if err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusCreated, motion)
}

// handleMotionSubresource dispatches /api/v1/motions/{id}[/action] by path
// suffix, matching the teacher's flat-mux-plus-manual-split routing style
// (no router dependency anywhere in the corpus for this shape of path).
func (h *motionHandlers) handleMotionSubresource(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/motions/")
	parts := strings.SplitN(strings.Trim(rest, "/"), "/", 2)
	if len(parts) == 0 || parts[0] == "" {
		writeError(w, http.StatusNotFound, errors.New("motion id required"))
		return
	}
	motionID := parts[0]
	action := ""
	if len(parts) == 2 {
		action = parts[1]
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		h.handleGetMotion(w, r, motionID)
	case action == "statements" && r.Method == http.MethodPost:
		h.handleRecordStatement(w, r, motionID)
	case action == "open-voting" && r.Method == http.MethodPost:
		h.handleOpenVoting(w, r, motionID)
	case action == "votes" && r.Method == http.MethodPost:
		h.handleCaptureVote(w, r, motionID)
	case action == "finalize" && r.Method == http.MethodPost:
		h.handleFinalize(w, r, motionID)
	default:
		writeError(w, http.StatusNotFound, fmt.Errorf("no such motion action %q for %s", action, r.Method))
	}
}

func (h *motionHandlers) handleGetMotion(w http.ResponseWriter, r *http.Request, motionID string) {
	motion, ok := h.engine.Get(motionID)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("motion %s not found", motionID))
		return
	}
	writeJSON(w, http.StatusOK, motion)
}

func (h *motionHandlers) handleRecordStatement(w http.ResponseWriter, r *http.Request, motionID string) {
	var body struct {
		Round    int    `json:"round"`
		ArchonID string `json:"archon_id"`
		Text     string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.engine.RecordStatement(r.Context(), motionID, body.Round, body.ArchonID, body.Text); err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}

func (h *motionHandlers) handleOpenVoting(w http.ResponseWriter, r *http.Request, motionID string) {
	if err := h.engine.OpenVoting(motionID); err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "voting"})
}

func (h *motionHandlers) handleCaptureVote(w http.ResponseWriter, r *http.Request, motionID string) {
	var body struct {
		VoteID   string `json:"vote_id"`
		ArchonID string `json:"archon_id"`
		RawText  string `json:"raw_text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if body.VoteID == "" {
		body.VoteID = uuid.NewString()
	}

	vote, err := h.engine.CaptureVote(r.Context(), body.VoteID, motionID, body.ArchonID, body.RawText)
	if err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}

	pv := validation.PendingValidation{
		VoteID: vote.VoteID, MotionID: motionID, RawText: vote.RawText, OptimisticChoice: vote.OptimisticChoice,
	}
	if err := h.dispatcher.Dispatch(r.Context(), pv); err != nil {
		writeError(w, http.StatusBadGateway, fmt.Errorf("dispatch validation: %w", err))
		return
	}
	writeJSON(w, http.StatusAccepted, vote)
}

// handleFinalize awaits reconciliation for every vote cast so far under
// motionID, recomputes the tally from the event log (so any VoteOverride
// is reflected), and ratifies or fails the motion by simple majority
// (§4.6): ayes strictly outnumber nays, abstains are non-decisive.
func (h *motionHandlers) handleFinalize(w http.ResponseWriter, r *http.Request, motionID string) {
	voteIDs := h.engine.VoteIDs(motionID)
	if err := h.reconGate.AwaitAll(r.Context(), motionID, voteIDs, h.timeout); err != nil {
		writeError(w, http.StatusGatewayTimeout, err)
		return
	}

	t, err := h.tally.Tally(r.Context(), motionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	actorID := "reconciliation-gate"
	if t.Ayes > t.Nays {
		if err := h.engine.Ratify(r.Context(), motionID, actorID, t); err != nil {
			writeError(w, http.StatusConflict, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ratified", "tally": t})
		return
	}

	if err := h.engine.Fail(r.Context(), motionID, actorID, t); err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "failed", "tally": t})
}
