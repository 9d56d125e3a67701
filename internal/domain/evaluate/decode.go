package evaluate

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"

	"github.com/araddon/dateparse"
)

// Payloads come from outside callers. Timestamps may be any string dateparse
// understands (RFC 3339, "2006-01-02 15:04:05", epoch digits) or a JSON
// number of epoch milliseconds. Anything else decodes as the zero time, which
// the evaluators skip. A previously attached "evaluation" value that is not a
// kind-to-result object is ignored rather than rejected.

// UnmarshalJSON implements json.Unmarshaler.
func (e *EngagementEvent) UnmarshalJSON(data []byte) error {
	type plain EngagementEvent
	aux := struct {
		*plain
		Timestamp json.RawMessage `json:"timestamp"`
	}{plain: (*plain)(e)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	e.Timestamp = lenientTime(aux.Timestamp)
	return nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (h *HistoryEvent) UnmarshalJSON(data []byte) error {
	type plain HistoryEvent
	aux := struct {
		*plain
		Timestamp json.RawMessage `json:"timestamp"`
	}{plain: (*plain)(h)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	h.Timestamp = lenientTime(aux.Timestamp)
	return nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Submission) UnmarshalJSON(data []byte) error {
	type plain Submission
	aux := struct {
		*plain
		At          json.RawMessage `json:"at"`
		Evaluations json.RawMessage `json:"evaluation"`
	}{plain: (*plain)(s)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	s.At = lenientTime(aux.At)
	s.Evaluations = nil
	if len(aux.Evaluations) > 0 {
		var evals map[Kind]Result
		if err := json.Unmarshal(aux.Evaluations, &evals); err == nil {
			s.Evaluations = evals
		}
	}
	return nil
}

func lenientTime(raw json.RawMessage) time.Time {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return time.Time{}
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return time.Time{}
		}
		t, err := dateparse.ParseIn(s, time.UTC)
		if err != nil {
			return time.Time{}
		}
		return t
	}
	ms, err := strconv.ParseFloat(string(raw), 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(int64(ms)).UTC()
}
