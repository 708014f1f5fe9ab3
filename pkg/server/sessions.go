package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sicodev/photobooth/pkg/capture"
	perrors "github.com/sicodev/photobooth/pkg/errors"
	"github.com/sicodev/photobooth/pkg/observability"
	"github.com/sicodev/photobooth/pkg/pipeline"
	"github.com/sicodev/photobooth/pkg/session"
	"github.com/sicodev/photobooth/pkg/share"
	"github.com/sicodev/photobooth/pkg/storage"
)

const (
	msgSessionNotFound = "Session not found. Please start over."
	msgSessionComplete = "All photos have been taken."
	msgCaptureBusy     = "A photo is already being taken."
	msgShareBusy       = "The QR code is already being prepared."
	msgNoPhotos        = "Take at least one photo first."
)

type sessionResponse struct {
	ID        string        `json:"id"`
	State     session.State `json:"state"`
	Count     int           `json:"count"`
	Max       int           `json:"max"`
	Timer     int           `json:"timer"`
	ShareURL  string        `json:"share_url,omitempty"`
	ExpiresAt time.Time     `json:"expires_at"`
}

func newSessionResponse(sess *session.Session) sessionResponse {
	return sessionResponse{
		ID:        sess.ID,
		State:     sess.State,
		Count:     sess.Count(),
		Max:       session.MaxPhotos,
		Timer:     sess.Timer,
		ShareURL:  sess.ShareURL,
		ExpiresAt: sess.ExpiresAt,
	}
}

type timerRequest struct {
	Seconds int `json:"seconds"`
}

type shareResponse struct {
	URL string `json:"url"`
	QR  string `json:"qr"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	timer := s.timer
	if r.ContentLength > 0 {
		var req timerRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 4<<10)).Decode(&req); err != nil {
			s.writeError(w, r, perrors.Wrap(perrors.ErrCodeInvalidInput, err, "Invalid request body."))
			return
		}
		if req.Seconds != 0 {
			timer = req.Seconds
		}
	}
	if err := perrors.ValidateTimer(timer); err != nil {
		s.writeError(w, r, err)
		return
	}

	sess, err := session.New(timer, s.ttl)
	if err != nil {
		s.writeError(w, r, perrors.Wrap(perrors.ErrCodeInternal, err, "create session"))
		return
	}
	if err := s.sessions.Set(r.Context(), sess); err != nil {
		s.writeError(w, r, perrors.Wrap(perrors.ErrCodeStorage, err, "save session"))
		return
	}
	s.logger.Info("session started", "session", sess.ID, "timer", sess.Timer)
	writeJSON(w, http.StatusCreated, newSessionResponse(sess))
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.loadSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(sess))
}

func (s *Server) handleSetTimer(w http.ResponseWriter, r *http.Request) {
	var req timerRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 4<<10)).Decode(&req); err != nil {
		s.writeError(w, r, perrors.Wrap(perrors.ErrCodeInvalidInput, err, "Invalid request body."))
		return
	}
	if err := perrors.ValidateTimer(req.Seconds); err != nil {
		s.writeError(w, r, err)
		return
	}

	sess, err := s.updateSession(r.Context(), chi.URLParam(r, "id"), func(sess *session.Session) error {
		sess.Timer = req.Seconds
		return nil
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(sess))
}

// handleAddPhoto processes an uploaded camera frame into the next still.
func (s *Server) handleAddPhoto(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess, err := s.loadSession(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if sess.State == session.StateComplete {
		s.writeError(w, r, perrors.New(perrors.ErrCodeSessionComplete, msgSessionComplete))
		return
	}
	if !s.captures.TryAcquire(id) {
		s.writeError(w, r, perrors.New(perrors.ErrCodeBusy, msgCaptureBusy))
		return
	}
	defer s.captures.Release(id)

	start := time.Now()
	hooks := observability.Capture()

	r.Body = http.MaxBytesReader(w, r.Body, s.maxFrame)
	frame, err := io.ReadAll(r.Body)
	if err != nil || len(frame) == 0 {
		err = perrors.New(perrors.ErrCodePayloadSize, storage.MsgSize)
		hooks.OnCapture(r.Context(), id, sess.Count(), time.Since(start), err)
		s.writeError(w, r, err)
		return
	}

	still, err := capture.ProcessFrame(bytes.NewReader(frame))
	if err != nil {
		err = perrors.Wrap(perrors.ErrCodeInvalidPayload, err, storage.MsgInvalidPayload)
		hooks.OnCapture(r.Context(), id, sess.Count(), time.Since(start), err)
		s.writeError(w, r, err)
		return
	}

	sess, err = s.updateSession(r.Context(), id, func(sess *session.Session) error {
		if err := sess.Append(still); err != nil {
			return perrors.Wrap(perrors.ErrCodeSessionComplete, err, msgSessionComplete)
		}
		return nil
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	hooks.OnCapture(r.Context(), id, sess.Count(), time.Since(start), nil)
	if sess.State == session.StateComplete {
		hooks.OnComplete(r.Context(), id, sess.Count())
		s.logger.Info("session complete", "session", id, "photos", sess.Count())
	}
	writeJSON(w, http.StatusOK, newSessionResponse(sess))
}

// handleRetakePrevious drops the most recent still. While a capture is
// running the request changes nothing.
func (s *Server) handleRetakePrevious(w http.ResponseWriter, r *http.Request) {
	s.retake(w, r, func(sess *session.Session) { sess.RemoveLast() })
}

// handleRetakeAll drops every still.
func (s *Server) handleRetakeAll(w http.ResponseWriter, r *http.Request) {
	s.retake(w, r, func(sess *session.Session) { sess.Clear() })
}

func (s *Server) retake(w http.ResponseWriter, r *http.Request, apply func(*session.Session)) {
	id := chi.URLParam(r, "id")
	if !s.captures.TryAcquire(id) {
		sess, err := s.loadSession(r.Context(), id)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newSessionResponse(sess))
		return
	}
	defer s.captures.Release(id)

	sess, err := s.updateSession(r.Context(), id, func(sess *session.Session) error {
		apply(sess)
		return nil
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	observability.Capture().OnRetake(r.Context(), id, sess.Count())
	writeJSON(w, http.StatusOK, newSessionResponse(sess))
}

// handleFinish completes a session early with the stills it holds.
func (s *Server) handleFinish(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.captures.TryAcquire(id) {
		s.writeError(w, r, perrors.New(perrors.ErrCodeBusy, msgCaptureBusy))
		return
	}
	defer s.captures.Release(id)

	sess, err := s.updateSession(r.Context(), id, func(sess *session.Session) error {
		if sess.Count() == 0 {
			return perrors.New(perrors.ErrCodeNoPhotos, msgNoPhotos)
		}
		sess.Finish()
		return nil
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	observability.Capture().OnComplete(r.Context(), id, sess.Count())
	writeJSON(w, http.StatusOK, newSessionResponse(sess))
}

func (s *Server) handleHandoff(w http.ResponseWriter, r *http.Request) {
	sess, err := s.loadSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	photos := sess.Photos
	if photos == nil {
		photos = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{session.HandoffKey: photos})
}

func (s *Server) handleComposite(w http.ResponseWriter, r *http.Request) {
	_, res, err := s.render(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	etag := fmt.Sprintf("%q", res.Hash)
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "private, no-cache")
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	writePNG(w, res.PNG)
}

// handleDownload redirects to the shared copy when the current strip has
// been uploaded, and otherwise serves the strip as an attachment.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	sess, res, err := s.render(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if sess.ShareURL != "" && sess.ShareHash == res.Hash {
		http.Redirect(w, r, sess.ShareURL, http.StatusFound)
		return
	}
	w.Header().Set("Content-Disposition", `attachment; filename="photobooth.png"`)
	writePNG(w, res.PNG)
}

// handleShare uploads the current strip once and returns its URL with a
// QR code. A strip that is already uploaded is not uploaded again.
func (s *Server) handleShare(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess, res, err := s.render(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	url := sess.ShareURL
	if url == "" || sess.ShareHash != res.Hash {
		url, err = s.upload(r, id, res)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
	}

	qr, err := s.qr.DataURL(r.Context(), url, share.DefaultQRSize)
	if err != nil {
		s.writeError(w, r, perrors.Wrap(perrors.ErrCodeUploadFailed, err, share.FailedMessage))
		return
	}
	writeJSON(w, http.StatusOK, shareResponse{URL: url, QR: qr})
}

func (s *Server) upload(r *http.Request, id string, res *pipeline.Result) (string, error) {
	if s.uploader == nil {
		return "", perrors.New(perrors.ErrCodeConfig, storage.MsgNotConfigured)
	}
	if !s.shares.TryAcquire(id) {
		return "", perrors.New(perrors.ErrCodeBusy, msgShareBusy)
	}
	defer s.shares.Release(id)

	// Another request may have shared this render while we waited.
	sess, err := s.loadSession(r.Context(), id)
	if err != nil {
		return "", err
	}
	if sess.ShareURL != "" && sess.ShareHash == res.Hash {
		return sess.ShareURL, nil
	}

	url, err := s.uploader.Upload(r.Context(), res.PNG)
	if err == nil && url == "" {
		err = errors.New("empty share url")
	}
	if err != nil {
		s.logger.Error("share upload failed", "session", id, "error", err)
		return "", perrors.Wrap(perrors.ErrCodeUploadFailed, err, share.FailedMessage)
	}
	url = share.Absolute(s.origin(r), url)

	_, err = s.updateSession(r.Context(), id, func(sess *session.Session) error {
		sess.ShareURL = url
		sess.ShareHash = res.Hash
		return nil
	})
	if err != nil {
		return "", err
	}
	s.logger.Info("shared composite", "session", id, "url", url)
	return url, nil
}

// render composites the session's stills.
func (s *Server) render(ctx context.Context, id string) (*session.Session, *pipeline.Result, error) {
	sess, err := s.loadSession(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	handoff, err := sess.Handoff()
	if err != nil {
		return nil, nil, perrors.Wrap(perrors.ErrCodeInternal, err, "encode handoff")
	}
	res, err := s.runner.Execute(ctx, pipeline.Options{
		Handoff:  handoff,
		Template: s.template,
		Logger:   s.logger,
	})
	if err != nil {
		return nil, nil, err
	}
	return sess, res, nil
}

// origin returns the base for absolute share URLs.
func (s *Server) origin(r *http.Request) string {
	if s.baseURL != "" {
		return s.baseURL
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if p := r.Header.Get("X-Forwarded-Proto"); p == "http" || p == "https" {
		scheme = p
	}
	return scheme + "://" + r.Host
}

// loadSession returns the live session for id. Unknown, malformed and
// expired ids all report SESSION_NOT_FOUND.
func (s *Server) loadSession(ctx context.Context, id string) (*session.Session, error) {
	if perrors.ValidateID(id) != nil {
		return nil, perrors.New(perrors.ErrCodeSessionNotFound, msgSessionNotFound)
	}
	sess, err := s.sessions.Get(ctx, id)
	if err != nil {
		return nil, perrors.Wrap(perrors.ErrCodeStorage, err, "load session")
	}
	if sess == nil || sess.IsExpired() {
		return nil, perrors.New(perrors.ErrCodeSessionNotFound, msgSessionNotFound)
	}
	return sess, nil
}

// updateSession applies fn to a fresh copy of the session and saves it.
// Writes are serialized per process so concurrent requests on one session
// do not lose updates.
func (s *Server) updateSession(ctx context.Context, id string, fn func(*session.Session) error) (*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.loadSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(sess); err != nil {
		return nil, err
	}
	sess.Touch(s.ttl)
	if err := s.sessions.Set(ctx, sess); err != nil {
		return nil, perrors.Wrap(perrors.ErrCodeStorage, err, "save session")
	}
	return sess, nil
}

func writePNG(w http.ResponseWriter, data []byte) {
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", fmt.Sprint(len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
