package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/alfredjeanlab/livetimeline/internal/config"
	"github.com/alfredjeanlab/livetimeline/internal/model"
	"github.com/alfredjeanlab/livetimeline/internal/poller"
)

// NewHTTPHandler returns an http.Handler with all routes registered.
// When authToken is non-empty, requests (except GET /v1/health) must include
// a valid Authorization: Bearer <token> header.
func (s *TimelineServer) NewHTTPHandler(authToken string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/health", s.handleHealth)
	mux.HandleFunc("GET /v1/events", s.handleListEvents)
	mux.HandleFunc("GET /v1/events/stream", s.handleEventStream)
	mux.HandleFunc("GET /v1/events/{task_id}", s.handleGetEvent)
	mux.HandleFunc("GET /v1/agents", s.handleAgents)
	mux.HandleFunc("GET /v1/status", s.handleStatus)
	mux.HandleFunc("POST /v1/poller/start", s.handleStartPoller)
	mux.HandleFunc("POST /v1/poller/stop", s.handleStopPoller)
	return RecoveryMiddleware(s.logger, LoggingMiddleware(s.logger, AuthMiddleware(authToken, mux)))
}

// ListEventsResponse is the body of GET /v1/events. Total counts every
// match before the limit is applied.
type ListEventsResponse struct {
	Events []*model.Event `json:"events"`
	Total  int            `json:"total"`
}

// StatusResponse is the body of GET /v1/status and the poller control routes.
type StatusResponse struct {
	State     string `json:"state"`
	IsPolling bool   `json:"is_polling"`
	LastError string `json:"last_error,omitempty"`
	Events    int    `json:"events"`
}

// handleHealth handles GET /v1/health.
func (s *TimelineServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleListEvents handles GET /v1/events.
func (s *TimelineServer) handleListEvents(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	limit := filter.Limit
	filter.Limit = 0
	matched := s.timeline.Query(filter, s.now())

	resp := ListEventsResponse{Events: matched, Total: len(matched)}
	if limit > 0 && len(resp.Events) > limit {
		resp.Events = resp.Events[:limit]
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleGetEvent handles GET /v1/events/{task_id}.
func (s *TimelineServer) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("task_id")
	e, ok := s.timeline.Get(taskID)
	if !ok {
		writeError(w, http.StatusNotFound, "no event for task "+taskID)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// handleStatus handles GET /v1/status.
func (s *TimelineServer) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.status())
}

// handleStartPoller handles POST /v1/poller/start. Settings are re-read on
// every call.
func (s *TimelineServer) handleStartPoller(w http.ResponseWriter, _ *http.Request) {
	settings, err := s.settings()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "load settings: "+err.Error())
		return
	}
	if err := s.poller.Start(settings); err != nil {
		var cfgErr *config.ConfigError
		var initErr *poller.InitError
		switch {
		case errors.As(err, &cfgErr):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.As(err, &initErr):
			writeError(w, http.StatusBadGateway, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, s.status())
}

// handleStopPoller handles POST /v1/poller/stop.
func (s *TimelineServer) handleStopPoller(w http.ResponseWriter, _ *http.Request) {
	s.poller.Stop()
	writeJSON(w, http.StatusOK, s.status())
}

func (s *TimelineServer) status() StatusResponse {
	st := s.poller.Status()
	return StatusResponse{
		State:     s.poller.State().String(),
		IsPolling: st.IsPolling,
		LastError: st.LastError,
		Events:    s.timeline.Len(),
	}
}

// parseFilter builds an EventFilter from the query string.
func parseFilter(r *http.Request) (model.EventFilter, error) {
	q := r.URL.Query()
	var f model.EventFilter

	if v := q.Get("status"); v != "" {
		for _, tok := range strings.Split(v, ",") {
			tok = strings.TrimSpace(tok)
			if tok == "" {
				continue
			}
			st, err := model.ParseStatus(tok)
			if err != nil {
				return f, err
			}
			f.Status = append(f.Status, st)
		}
	}
	f.Search = q.Get("search")
	f.AgentID = q.Get("agent_id")
	f.Category = q.Get("category")

	if v := q.Get("upcoming"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return f, errors.New("upcoming must be true or false")
		}
		f.Upcoming = &b
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, errors.New("limit must be a non-negative integer")
		}
		f.Limit = n
	}
	return f, nil
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
