package server

import (
	"encoding/json"
	"net/http"

	perrors "github.com/sicodev/photobooth/pkg/errors"
)

const internalMessage = "Internal server error."

type errorResponse struct {
	Message  string `json:"message"`
	Code     string `json:"code,omitempty"`
	Redirect string `json:"redirect,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Message: msg})
}

// writeError answers with the status and message carried by err. Errors
// without a code are reported as a generic 500.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := perrors.GetCode(err)
	status := perrors.HTTPStatus(code)

	resp := errorResponse{Message: internalMessage, Code: string(code)}
	if code != "" {
		resp.Message = perrors.UserMessage(err)
	}
	if code == perrors.ErrCodeNoPhotos {
		resp.Redirect = "/"
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, resp)
}
