// File: internal/api/handlers.go
package api

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pilot/api/schemas"
	"github.com/xkilldash9x/pilot/internal/router"
	"github.com/xkilldash9x/pilot/internal/service"
)

// TurnRequest is the body of a turn. A text/plain body is taken as the text.
type TurnRequest struct {
	Text string `json:"text"`
}

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status   string                                        `json:"status"`
	Backends map[schemas.BackendSource]router.BackendState `json:"backends"`
}

// StateResponse is the body of GET /v1/state/{source}.
type StateResponse struct {
	Source     schemas.BackendSource `json:"source"`
	URL        string                `json:"url"`
	Screenshot string                `json:"screenshot"`
}

// PostTurn handles POST /v1/turns and answers with the full turn result.
func (s *Server) PostTurn(w http.ResponseWriter, r *http.Request) {
	result, ok := s.runTurn(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(result); err != nil {
		s.logger.Error("Failed to encode turn result.", zap.Error(err))
	}
}

// PostTurnMarkup handles POST /v1/turns/markup and answers with the
// perform_action_result block only. A turn without a directive has no markup.
func (s *Server) PostTurnMarkup(w http.ResponseWriter, r *http.Request) {
	result, ok := s.runTurn(w, r)
	if !ok {
		return
	}
	if result.Markup == "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	_, _ = io.WriteString(w, result.Markup)
}

// Health handles GET /healthz. A failed backend degrades the service but the
// process stays live, so the status code is always 200.
func (s *Server) Health(w http.ResponseWriter, _ *http.Request) {
	resp := HealthResponse{Status: "ok", Backends: map[schemas.BackendSource]router.BackendState{}}
	if s.deps.Health != nil {
		resp.Backends = s.deps.Health.States()
	}
	for _, state := range resp.Backends {
		if state == router.StateFailed {
			resp.Status = "degraded"
		}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// GetState handles GET /v1/state/{source} with a fresh screenshot and URL of
// an open backend.
func (s *Server) GetState(w http.ResponseWriter, r *http.Request) {
	source := schemas.BackendSource(mux.Vars(r)["source"])
	state, err := s.deps.State.Capture(r.Context(), source)
	if err != nil {
		var rerr *router.Error
		if errors.As(err, &rerr) {
			writeTurnError(w, err)
			return
		}
		s.logger.Warn("State capture failed.", zap.String("source", string(source)), zap.Error(err))
		writeProblem(w, http.StatusBadGateway, "Capture Failed", err.Error(), "")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(StateResponse{Source: source, URL: state.URL, Screenshot: state.Screenshot})
}

func (s *Server) runTurn(w http.ResponseWriter, r *http.Request) (*service.TurnResult, bool) {
	text, err := readTurnText(w, r)
	if err != nil {
		writeBadRequest(w, "Invalid request body: "+err.Error())
		return nil, false
	}
	if strings.TrimSpace(text) == "" {
		writeBadRequest(w, "Turn text is empty")
		return nil, false
	}

	result, err := s.deps.Turns.HandleText(r.Context(), text)
	if err != nil {
		s.logger.Warn("Turn aborted.", zap.Error(err))
		writeTurnError(w, err)
		return nil, false
	}
	return result, true
}

func readTurnText(w http.ResponseWriter, r *http.Request) (string, error) {
	body := http.MaxBytesReader(w, r.Body, maxTurnBytes)
	defer body.Close()

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "text/plain" {
		raw, err := io.ReadAll(body)
		if err != nil {
			return "", err
		}
		return string(raw), nil
	}

	var req TurnRequest
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		return "", err
	}
	return req.Text, nil
}
