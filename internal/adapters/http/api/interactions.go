package api

import (
	"encoding/json"
	"errors"
	"net/http"

	service "github.com/okian/rally/internal/app"
	"github.com/okian/rally/internal/domain/dedupe"
	"github.com/okian/rally/internal/domain/model"
	"github.com/okian/rally/internal/domain/recorder"
)

const maxBodyBytes = 1 << 20

// InteractionDependencies defines what interaction recording needs.
type InteractionDependencies interface {
	dedupe.Deduper
	service.InteractionRecorder
}

// InteractionsHandler handles interaction requests.
type InteractionsHandler struct {
	deps InteractionDependencies
}

// NewInteractionsHandler creates a new interactions handler.
func NewInteractionsHandler(deps InteractionDependencies) *InteractionsHandler {
	return &InteractionsHandler{deps: deps}
}

type interactionResponse struct {
	Status      string             `json:"status"`
	Duplicate   bool               `json:"duplicate"`
	Interaction *model.Interaction `json:"interaction,omitempty"`
}

// HandlePostInteraction handles POST /interactions. A caller supplied id makes
// the request idempotent.
func (h *InteractionsHandler) HandlePostInteraction(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_interaction"
	var req model.Interaction
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	if req.ID != "" && h.deps.SeenAndRecord(r.Context(), req.ID) {
		writeJSON(w, http.StatusOK, interactionResponse{Status: "duplicate", Duplicate: true})
		return
	}

	in, err := h.deps.RecordInteraction(r.Context(), req)
	if err != nil {
		// let a retry through once the cause is fixed
		if req.ID != "" {
			h.deps.Unrecord(r.Context(), req.ID)
		}
		switch {
		case errors.Is(err, recorder.ErrInvalidInteraction):
			writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		case errors.Is(err, service.ErrNotStarted):
			writeError(w, http.StatusServiceUnavailable, "unavailable", WrapKind(op, ErrUnavailable, err))
		default:
			writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
		}
		return
	}
	writeJSON(w, http.StatusCreated, interactionResponse{Status: "recorded", Interaction: &in})
}
