package editor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/hazyhaar/ezpage/action"
	"github.com/hazyhaar/ezpage/kit"
)

// RegisterHTTP mounts the page endpoints on r.
//
//	GET  /pages                       stored pages
//	GET  /pages/{pageID}              serialized document
//	DELETE /pages/{pageID}            remove the page and its journal
//	POST /pages/{pageID}/actions      stream ezAction envelopes (text body)
//	GET  /pages/{pageID}/preview      sanitized HTML preview
//	GET  /pages/{pageID}/outline      markdown outline
//	GET  /pages/{pageID}/history      journaled actions
//	GET  /pages/{pageID}/stats        page statistics
//	GET  /components                  component table
func (e *Editor) RegisterHTTP(r chi.Router) {
	r.Get("/components", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, e.reg.Descriptors())
	})

	r.Get("/pages", func(w http.ResponseWriter, r *http.Request) {
		pages, err := e.Pages(r.Context(), queryInt(r, "limit", 100))
		if err != nil {
			writeError(w, 500, err)
			return
		}
		if pages == nil {
			pages = []*PageInfo{}
		}
		writeJSON(w, 200, pages)
	})

	r.Route("/pages/{pageID}", func(r chi.Router) {
		r.Get("/", e.handleDocument)
		r.Delete("/", func(w http.ResponseWriter, r *http.Request) {
			if err := e.Delete(r.Context(), chi.URLParam(r, "pageID")); err != nil {
				writeError(w, statusOf(err), err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})
		r.Post("/actions", e.handleActions)
		r.Get("/preview", e.handlePreview)
		r.Get("/outline", func(w http.ResponseWriter, r *http.Request) {
			out, err := e.outline(r.Context(), chi.URLParam(r, "pageID"))
			if err != nil {
				writeError(w, statusOf(err), err)
				return
			}
			w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
			w.Write([]byte(out))
		})
		r.Get("/history", func(w http.ResponseWriter, r *http.Request) {
			rows, err := e.History(r.Context(), chi.URLParam(r, "pageID"), queryInt(r, "limit", 50))
			if err != nil {
				writeError(w, 500, err)
				return
			}
			if rows == nil {
				rows = []*ActionRecord{}
			}
			writeJSON(w, 200, rows)
		})
		r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
			st, err := e.Stats(r.Context(), chi.URLParam(r, "pageID"))
			if err != nil {
				writeError(w, statusOf(err), err)
				return
			}
			writeJSON(w, 200, st)
		})
	})
}

func (e *Editor) handleDocument(w http.ResponseWriter, r *http.Request) {
	s, err := e.Open(r.Context(), chi.URLParam(r, "pageID"))
	if err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	data, err := s.Snapshot()
	if err != nil {
		writeError(w, 500, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

// handleActions applies envelopes as the body arrives. A failing action
// answers 422 with the report; actions before it stay applied.
func (e *Editor) handleActions(w http.ResponseWriter, r *http.Request) {
	pageID := chi.URLParam(r, "pageID")
	ctx := kit.WithPageID(r.Context(), pageID)
	s, err := e.Open(ctx, pageID)
	if err != nil {
		writeError(w, statusOf(err), err)
		return
	}

	report, err := s.ApplyStream(ctx, r.Body)
	switch {
	case err == nil:
		writeJSON(w, 200, report)
	case errors.Is(err, action.ErrBufferFull), errors.As(err, new(*http.MaxBytesError)):
		writeJSON(w, http.StatusRequestEntityTooLarge, report)
	case errors.Is(err, ErrStreamAborted), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		e.logger.Warn("editor: action stream aborted", append(kit.LogAttrs(ctx), "applied", report.Applied, "error", err)...)
		writeJSON(w, http.StatusRequestTimeout, report)
	case errors.Is(err, errReadStream):
		writeJSON(w, http.StatusBadRequest, report)
	default:
		writeJSON(w, http.StatusUnprocessableEntity, report)
	}
}

func (e *Editor) handlePreview(w http.ResponseWriter, r *http.Request) {
	pageID := chi.URLParam(r, "pageID")
	doc, err := e.Document(r.Context(), pageID)
	if err != nil {
		writeError(w, statusOf(err), err)
		return
	}

	var out string
	if r.URL.Query().Get("fragment") != "" {
		out, err = e.renderer.Fragment(doc)
	} else {
		out, err = e.renderer.Page(doc, pageID)
	}
	if err != nil {
		writeError(w, 500, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(out))
}

// statusOf maps Open and Delete errors to HTTP codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrInvalidPageID):
		return http.StatusBadRequest
	case errors.Is(err, ErrPageNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUnsupported):
		return http.StatusNotImplemented
	case errors.Is(err, ErrLoadFailed):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func queryInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
