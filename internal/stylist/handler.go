package stylist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"ootdStylist/internal/imageprep"
	"ootdStylist/internal/llm"
	"ootdStylist/internal/media"
	"ootdStylist/internal/snapshot"
	"ootdStylist/internal/storage"
	"ootdStylist/pkg/logger"
)

// DefaultMaxImageBytes caps uploaded photos when the handler has no limit set.
const DefaultMaxImageBytes = 20 << 20

// formOverhead is the multipart framing allowed on top of the photo.
const formOverhead = 1 << 20

// Handler exposes the session endpoints.
type Handler struct {
	Stylist       *Orchestrator
	MaxImageBytes int64
}

// Create handles POST /api/sessions.
func (h Handler) Create(w http.ResponseWriter, r *http.Request) {
	s, err := h.Stylist.Create(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.Stylist.ViewOf(s))
}

// Get handles GET /api/sessions/{id}.
func (h Handler) Get(w http.ResponseWriter, r *http.Request) {
	view, err := h.Stylist.View(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// Upload handles POST /api/sessions/{id}/upload with a multipart image_file.
func (h Handler) Upload(w http.ResponseWriter, r *http.Request) {
	limit := h.MaxImageBytes
	if limit <= 0 {
		limit = DefaultMaxImageBytes
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit+formOverhead)
	if err := r.ParseMultipartForm(limit + formOverhead); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, fmt.Sprintf("request exceeds %d bytes", tooLarge.Limit), http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, fmt.Sprintf("could not parse form: %v", err), http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("image_file")
	if err != nil {
		http.Error(w, "image_file is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		http.Error(w, "could not read file", http.StatusBadRequest)
		return
	}
	if len(data) == 0 {
		http.Error(w, "empty file", http.StatusBadRequest)
		return
	}
	if int64(len(data)) > limit {
		http.Error(w, fmt.Sprintf("file exceeds %d bytes", limit), http.StatusRequestEntityTooLarge)
		return
	}

	id := chi.URLParam(r, "id")
	mimeType := imageprep.NormalizeMIME(header.Header.Get("Content-Type"), data)
	ctx := runContext(r)
	if wait(r) {
		s, err := h.Stylist.Upload(ctx, id, data, mimeType)
		h.respond(w, s, err, http.StatusOK)
		return
	}
	s, err := h.Stylist.UploadAsync(ctx, id, data, mimeType)
	h.respond(w, s, err, http.StatusAccepted)
}

// Rerun handles POST /api/sessions/{id}/rerun.
func (h Handler) Rerun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx := runContext(r)
	if wait(r) {
		s, err := h.Stylist.Rerun(ctx, id)
		h.respond(w, s, err, http.StatusOK)
		return
	}
	s, err := h.Stylist.RerunAsync(ctx, id)
	h.respond(w, s, err, http.StatusAccepted)
}

// Reset handles POST /api/sessions/{id}/reset.
func (h Handler) Reset(w http.ResponseWriter, r *http.Request) {
	s, err := h.Stylist.Reset(r.Context(), chi.URLParam(r, "id"))
	h.respond(w, s, err, http.StatusOK)
}

// Delete handles DELETE /api/sessions/{id}.
func (h Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.Stylist.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Snapshot handles GET /api/sessions/{id}/snapshot.
func (h Handler) Snapshot(w http.ResponseWriter, r *http.Request) {
	data, err := h.Stylist.Snapshot(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", snapshot.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	_, _ = w.Write(data)
}

// Share handles POST /api/sessions/{id}/share.
func (h Handler) Share(w http.ResponseWriter, r *http.Request) {
	payload, err := h.Stylist.Share(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

// StreamEvents handles GET /api/sessions/{id}/events as server-sent events.
// Each transition sends the full view; loading views are re-sent on every
// message rotation.
func (h Handler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	view, err := h.Stylist.View(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	ch := h.Stylist.events.Subscribe(id)
	defer h.Stylist.events.Unsubscribe(ch)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	send := func(v View) bool {
		payload, err := json.Marshal(v)
		if err != nil {
			logger.Errorf("encode session view: %v", err)
			return false
		}
		if _, err := fmt.Fprintf(w, "event: session\ndata: %s\n\n", payload); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}
	if !send(view) {
		return
	}

	ticker := time.NewTicker(h.Stylist.messages.Loading.Interval())
	defer ticker.Stop()
	screen := view.Screen

	for {
		select {
		case <-r.Context().Done():
			return
		case _, open := <-ch:
			if !open {
				return
			}
			next, err := h.Stylist.View(r.Context(), id)
			if err != nil {
				return
			}
			screen = next.Screen
			if !send(next) {
				return
			}
		case <-ticker.C:
			if screen != storage.ScreenLoading {
				continue
			}
			next, err := h.Stylist.View(r.Context(), id)
			if err != nil {
				return
			}
			screen = next.Screen
			if !send(next) {
				return
			}
		}
	}
}

func (h Handler) respond(w http.ResponseWriter, s storage.Session, err error, status int) {
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, status, h.Stylist.ViewOf(s))
}

func (h Handler) writeError(w http.ResponseWriter, err error) {
	msgs := h.Stylist.Messages()
	switch {
	case errors.Is(err, storage.ErrNotFound):
		http.Error(w, msgs.Result.NotFound, http.StatusNotFound)
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, snapshot.ErrIncomplete):
		http.Error(w, msgs.Result.InvalidTransition, http.StatusConflict)
	case errors.Is(err, media.ErrUploaderDisabled):
		http.Error(w, msgs.Share.Unsupported, http.StatusNotImplemented)
	case errors.Is(err, ErrShare):
		logger.Errorf("share failed: %v", err)
		http.Error(w, msgs.Share.Failed, http.StatusBadGateway)
	default:
		logger.Errorf("session request failed: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// runContext carries the optional model query parameter to the analyzer.
func runContext(r *http.Request) context.Context {
	return llm.WithModel(r.Context(), r.URL.Query().Get("model"))
}

func wait(r *http.Request) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(r.URL.Query().Get("wait")))
	return err == nil && v
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Errorf("encode response: %v", err)
	}
}
