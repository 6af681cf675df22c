package httphandler

import (
	"encoding/json"
	"net/http"
	"slices"
	"time"

	"github.com/ericfisherdev/repowatch/internal/application"
	"github.com/ericfisherdev/repowatch/internal/domain/model"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is the JSON representation of the watch loop's state.
type HealthResponse struct {
	Status   string            `json:"status"`
	Started  string            `json:"started,omitempty"`
	Cycles   int               `json:"cycles"`
	Concerns []ConcernResponse `json:"concerns"`
}

// ConcernResponse is the outcome of the last batch of one concern.
type ConcernResponse struct {
	Concern   string `json:"concern"`
	RunID     string `json:"run_id"`
	Finished  string `json:"finished"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
	TimedOut  int    `json:"timed_out"`
	Error     string `json:"error,omitempty"`
}

// RefreshRequest is the optional JSON body of the refresh endpoint. An empty
// repository refreshes everything.
type RefreshRequest struct {
	Repository string `json:"repository"`
}

// toHealthResponse converts a WatchStatus to its JSON representation.
// Concerns are sorted by name so the output is stable.
func toHealthResponse(s application.WatchStatus) HealthResponse {
	resp := HealthResponse{
		Status:   healthStatus(s),
		Cycles:   s.Cycles,
		Concerns: make([]ConcernResponse, 0, len(s.Concerns)),
	}
	if !s.Started.IsZero() {
		resp.Started = s.Started.UTC().Format(time.RFC3339)
	}

	concerns := make([]model.Concern, 0, len(s.Concerns))
	for c := range s.Concerns {
		concerns = append(concerns, c)
	}
	slices.Sort(concerns)

	for _, c := range concerns {
		st := s.Concerns[c]
		cr := ConcernResponse{
			Concern:   string(c),
			RunID:     st.RunID,
			Finished:  st.Finished.UTC().Format(time.RFC3339),
			Succeeded: st.Succeeded,
			Failed:    st.Failed,
			TimedOut:  st.TimedOut,
		}
		if st.Err != nil {
			cr.Error = st.Err.Error()
		}
		resp.Concerns = append(resp.Concerns, cr)
	}
	return resp
}

func healthStatus(s application.WatchStatus) string {
	switch {
	case !s.Healthy():
		return "degraded"
	case s.Cycles == 0:
		return "starting"
	default:
		return "ok"
	}
}
