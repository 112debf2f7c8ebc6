package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/tcmartin/promptflow/pkg/flow"
)

// ExecuteRequest is the body of an execution request
type ExecuteRequest struct {
	UserMessage string `json:"user_message"`
}

// readDefinition decodes a JSON or YAML flow definition from the request body
func readDefinition(r *http.Request) (flow.Definition, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return flow.Definition{}, fmt.Errorf("%w: failed to read request body: %v", flow.ErrInvalidFormat, err)
	}
	return flow.ParseDefinition(body)
}

// handleListFlows handles listing flows
func (s *Server) handleListFlows(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.flowRegistry.List(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, summaries)
}

// handleCreateFlow handles flow creation. The identifier comes from the
// definition's id field or, failing that, the flow_id query parameter.
func (s *Server) handleCreateFlow(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	def, err := readDefinition(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	flowID := def.ID
	if flowID == "" {
		flowID = r.URL.Query().Get("flow_id")
	}

	if err := s.flowRegistry.Create(r.Context(), def.ToFlow(flowID)); err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"message": "Flow created successfully",
		"flow_id": flowID,
	})
}

// handleGetFlow handles retrieving a flow
func (s *Server) handleGetFlow(w http.ResponseWriter, r *http.Request) {
	f, err := s.flowRegistry.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, f)
}

// handleUpdateFlow replaces a flow definition
func (s *Server) handleUpdateFlow(w http.ResponseWriter, r *http.Request) {
	flowID := mux.Vars(r)["id"]
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	def, err := readDefinition(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if def.ID != "" && def.ID != flowID {
		s.respondError(w, r, fmt.Errorf("%w: body id %q does not match path id %q", flow.ErrInvalidFormat, def.ID, flowID))
		return
	}

	if err := s.flowRegistry.Update(r.Context(), def.ToFlow(flowID)); err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Flow updated successfully",
	})
}

// handleDeleteFlow handles deleting a flow
func (s *Server) handleDeleteFlow(w http.ResponseWriter, r *http.Request) {
	if err := s.flowRegistry.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Flow deleted successfully",
	})
}

// handleExecuteFlow runs a flow and returns its result
func (s *Server) handleExecuteFlow(w http.ResponseWriter, r *http.Request) {
	flowID := mux.Vars(r)["id"]
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req ExecuteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, r, fmt.Errorf("%w: invalid request body: %v", flow.ErrInvalidFormat, err))
		return
	}

	result, err := s.flowRuntime.ExecuteFlow(r.Context(), flowID, req.UserMessage)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}
