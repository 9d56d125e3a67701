package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	service "github.com/okian/rally/internal/app"
	"github.com/okian/rally/internal/domain/evaluate"
)

// EvaluationsHandler handles evaluation requests.
type EvaluationsHandler struct {
	deps service.EngagementEvaluator
}

// NewEvaluationsHandler creates a new evaluations handler.
func NewEvaluationsHandler(deps service.EngagementEvaluator) *EvaluationsHandler {
	return &EvaluationsHandler{deps: deps}
}

// HandlePostEvaluation handles POST /evaluations?kinds=quality,spam. The
// request body is echoed back with the results under "evaluation"; fields the
// evaluators do not know about are kept.
func (h *EvaluationsHandler) HandlePostEvaluation(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_evaluation"
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	var (
		sub     evaluate.Submission
		payload map[string]any
	)
	if err := json.Unmarshal(body, &sub); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	out, err := h.deps.Evaluate(parseKinds(r.URL.Query().Get("kinds")), sub)
	if err != nil {
		if errors.Is(err, service.ErrUnknownEvaluator) {
			writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
		return
	}
	for _, k := range evaluate.Kinds {
		if res, ok := out.Evaluations[k]; ok {
			payload = evaluate.MergePayload(payload, res)
		}
	}
	writeJSON(w, http.StatusOK, payload)
}

func parseKinds(raw string) []evaluate.Kind {
	var kinds []evaluate.Kind
	for _, part := range strings.Split(raw, ",") {
		if k := strings.ToLower(strings.TrimSpace(part)); k != "" {
			kinds = append(kinds, evaluate.Kind(k))
		}
	}
	return kinds
}
