package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	perrors "github.com/sicodev/photobooth/pkg/errors"
	"github.com/sicodev/photobooth/pkg/storage"
)

type renderRequest struct {
	// Any so that a non-string value is reported as an invalid payload
	// rather than a decode error.
	ImageData any `json:"imageData"`
}

type renderResponse struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// bodyLimit bounds a JSON body that carries a base64 payload of up to
// max decoded bytes.
func bodyLimit(max int) int64 {
	return int64(max)/3*4 + 64<<10
}

func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	if s.storage == nil {
		s.writeError(w, r, perrors.New(perrors.ErrCodeConfig, storage.MsgNotConfigured))
		return
	}
	if err := s.storage.Ready(); err != nil {
		s.writeError(w, r, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, bodyLimit(s.storage.MaxBytes()))
	var req renderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.writeError(w, r, perrors.New(perrors.ErrCodePayloadSize, storage.MsgSize))
			return
		}
		s.writeError(w, r, perrors.Wrap(perrors.ErrCodeInvalidPayload, err, storage.MsgInvalidPayload))
		return
	}
	imageData, ok := req.ImageData.(string)
	if !ok {
		s.writeError(w, r, perrors.New(perrors.ErrCodeInvalidPayload, storage.MsgInvalidPayload))
		return
	}

	rec, err := s.storage.Persist(r.Context(), imageData)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, renderResponse{ID: rec.ID, URL: rec.URL})
}

func (s *Server) handleRenderFile(w http.ResponseWriter, r *http.Request) {
	id, err := perrors.ValidateRenderName(chi.URLParam(r, "name"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if s.storage == nil {
		s.writeError(w, r, perrors.New(perrors.ErrCodeNotFound, "Render not found."))
		return
	}

	rc, err := s.storage.Open(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		s.writeError(w, r, perrors.New(perrors.ErrCodeNotFound, "Render not found."))
		return
	}
	if err != nil {
		s.writeError(w, r, perrors.Wrap(perrors.ErrCodeStorage, err, "Could not read the render."))
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	if _, err := io.Copy(w, rc); err != nil {
		s.logger.Debug("serve render", "id", id, "error", err)
	}
}
