package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/tcmartin/promptflow/pkg/flow"
	"github.com/tcmartin/promptflow/pkg/logging"
	"github.com/tcmartin/promptflow/pkg/runtime"
	"github.com/tcmartin/promptflow/pkg/storage"
)

// Error kinds reported in the "kind" field of error responses
const (
	kindInvalidFormat       = "InvalidFormat"
	kindInvalidStepOrdering = "InvalidStepOrdering"
	kindInvalidIdentifier   = "InvalidIdentifier"
	kindDuplicateIdentifier = "DuplicateIdentifier"
	kindEmptyInput          = "EmptyInput"
	kindEmptyFlow           = "EmptyFlow"
	kindInactiveFlow        = "InactiveFlow"
	kindNotFound            = "NotFound"
	kindStepExecutionFailed = "StepExecutionFailed"
	kindCancelled           = "Cancelled"
	kindInternal            = "Internal"
)

// ErrorResponse is the body of every non-2xx response
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

var errorKinds = []struct {
	target error
	status int
	kind   string
}{
	{flow.ErrInvalidFormat, http.StatusBadRequest, kindInvalidFormat},
	{flow.ErrInvalidStepOrdering, http.StatusBadRequest, kindInvalidStepOrdering},
	{flow.ErrInvalidIdentifier, http.StatusBadRequest, kindInvalidIdentifier},
	{flow.ErrEmptyFlow, http.StatusBadRequest, kindEmptyFlow},
	{flow.ErrEmptyInput, http.StatusBadRequest, kindEmptyInput},
	{storage.ErrFlowNotFound, http.StatusNotFound, kindNotFound},
	{flow.ErrDuplicateIdentifier, http.StatusConflict, kindDuplicateIdentifier},
	{flow.ErrInactiveFlow, http.StatusConflict, kindInactiveFlow},
	{runtime.ErrCancelled, http.StatusGatewayTimeout, kindCancelled},
	{runtime.ErrStepExecutionFailed, http.StatusBadGateway, kindStepExecutionFailed},
}

// classify maps an error to its HTTP status and kind
func classify(err error) (int, string) {
	for _, k := range errorKinds {
		if errors.Is(err, k.target) {
			return k.status, k.kind
		}
	}
	return http.StatusInternalServerError, kindInternal
}

// writeJSON encodes v before writing the header so an unencodable value
// becomes a 500 instead of an empty body
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		buf.Reset()
		status = http.StatusInternalServerError
		_ = json.NewEncoder(&buf).Encode(ErrorResponse{Error: "failed to encode response", Kind: kindInternal})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

func writeError(w http.ResponseWriter, status int, kind string, message string) {
	writeJSON(w, status, ErrorResponse{Error: message, Kind: kind})
}

// respondError writes err with its mapped status. Internal errors are logged
// and reported without detail.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, kind := classify(err)
	if status == http.StatusInternalServerError {
		s.logger.WithContext(r.Context()).Error("Request failed",
			logging.F("path", r.URL.Path), logging.Err(err))
		writeError(w, status, kind, "internal server error")
		return
	}
	writeError(w, status, kind, err.Error())
}
