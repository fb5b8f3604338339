package server

import (
	"net/http"
	"time"

	"github.com/alfredjeanlab/livetimeline/internal/presence"
)

// AgentsResponse is the body of GET /v1/agents.
type AgentsResponse struct {
	Agents []presence.Entry `json:"agents"`
}

// handleAgents handles GET /v1/agents. The optional active query parameter
// (a duration such as "15m") hides agents quiet for longer than that.
func (s *TimelineServer) handleAgents(w http.ResponseWriter, r *http.Request) {
	var within time.Duration
	if v := r.URL.Query().Get("active"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			writeError(w, http.StatusBadRequest, "invalid active duration: "+v)
			return
		}
		within = d
	}
	writeJSON(w, http.StatusOK, AgentsResponse{Agents: s.Presence.Roster(within)})
}
