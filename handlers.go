package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/kwv/floorplan/editor"
	"github.com/kwv/floorplan/render"
	"github.com/kwv/floorplan/spatial"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Flusher saves pending edits on demand. *editor.Coordinator implements it.
type Flusher interface {
	Flush(ctx context.Context) error
}

const maxRequestBody = 1 << 20

// newHTTPServer creates the editor API used by the UI.
func newHTTPServer(session *editor.Session, saver Flusher, hub *Hub) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		status := struct {
			Status    string    `json:"status"`
			Timestamp time.Time `json:"timestamp"`
			PlanID    string    `json:"planId"`
			Dirty     bool      `json:"dirty"`
		}{
			Status:    "ok",
			Timestamp: time.Now(),
			PlanID:    session.PlanID(),
			Dirty:     session.IsDirty(),
		}
		writeJSON(w, http.StatusOK, status)
	})

	mux.HandleFunc("GET /session", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, session.State())
	})

	mux.HandleFunc("POST /session/spaces", func(w http.ResponseWriter, r *http.Request) {
		var space spatial.FloorPlanSpace
		if !decodeBody(w, r, &space) {
			return
		}
		id, res, err := session.AddSpace(space)
		if err != nil {
			writeError(w, err)
			return
		}
		if !res.IsValid {
			writeJSON(w, http.StatusUnprocessableEntity, res)
			return
		}
		writeJSON(w, http.StatusCreated, struct {
			ID         string                   `json:"id"`
			Validation spatial.ValidationResult `json:"validation"`
		}{id, res})
	})

	mux.HandleFunc("PATCH /session/spaces/{id}", func(w http.ResponseWriter, r *http.Request) {
		var upd editor.SpaceUpdate
		if !decodeBody(w, r, &upd) {
			return
		}
		writeResult(w)(session.UpdateSpace(r.PathValue("id"), upd))
	})

	mux.HandleFunc("DELETE /session/spaces/{id}", func(w http.ResponseWriter, r *http.Request) {
		writeResult(w)(session.RemoveSpace(r.PathValue("id")))
	})

	mux.HandleFunc("POST /session/spaces/{id}/vertices/{index}", func(w http.ResponseWriter, r *http.Request) {
		index, ok := pathIndex(w, r)
		if !ok {
			return
		}
		var to spatial.Coordinate
		if !decodeBody(w, r, &to) {
			return
		}
		if r.URL.Query().Get("insert") == "true" {
			writeResult(w)(session.InsertVertex(r.PathValue("id"), index, to))
			return
		}
		writeResult(w)(session.MoveVertex(r.PathValue("id"), index, to))
	})

	mux.HandleFunc("DELETE /session/spaces/{id}/vertices/{index}", func(w http.ResponseWriter, r *http.Request) {
		index, ok := pathIndex(w, r)
		if !ok {
			return
		}
		writeResult(w)(session.DeleteVertex(r.PathValue("id"), index))
	})

	mux.HandleFunc("POST /session/spaces/{id}/scale", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Factor              float64 `json:"factor"`
			PreserveAspectRatio *bool   `json:"preserveAspectRatio"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		preserve := req.PreserveAspectRatio == nil || *req.PreserveAspectRatio
		writeResult(w)(session.ScaleSpace(r.PathValue("id"), req.Factor, preserve))
	})

	mux.HandleFunc("POST /session/spaces/{id}/translate", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			DX float64 `json:"dx"`
			DY float64 `json:"dy"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		writeResult(w)(session.TranslateSpace(r.PathValue("id"), req.DX, req.DY))
	})

	mux.HandleFunc("PATCH /session/metadata", func(w http.ResponseWriter, r *http.Request) {
		var upd editor.MetadataUpdate
		if !decodeBody(w, r, &upd) {
			return
		}
		writeResult(w)(session.UpdateMetadata(upd))
	})

	mux.HandleFunc("PUT /session/status", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Status spatial.Status `json:"status"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		writeResult(w)(session.SetStatus(req.Status))
	})

	mux.HandleFunc("POST /session/undo", func(w http.ResponseWriter, r *http.Request) {
		writeState(w, session, session.Undo())
	})

	mux.HandleFunc("POST /session/redo", func(w http.ResponseWriter, r *http.Request) {
		writeState(w, session, session.Redo())
	})

	mux.HandleFunc("POST /session/select", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			SpaceID string `json:"spaceId"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		writeState(w, session, session.SelectSpace(req.SpaceID))
	})

	mux.HandleFunc("POST /session/save", func(w http.ResponseWriter, r *http.Request) {
		if saver == nil {
			http.Error(w, "saving is disabled", http.StatusServiceUnavailable)
			return
		}
		writeState(w, session, saver.Flush(r.Context()))
	})

	mux.HandleFunc("GET /session/geojson", func(w http.ResponseWriter, r *http.Request) {
		data, err := spatial.ToFeatureCollection(session.Present()).MarshalJSON()
		if err != nil {
			writeError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/geo+json")
		_, _ = w.Write(data)
	})

	mux.HandleFunc("GET /session/paths", func(w http.ResponseWriter, r *http.Request) {
		plan := session.Present()
		paths := make(map[string]string, len(plan.Spaces))
		for _, sp := range plan.Spaces {
			paths[sp.ID] = spatial.SpacePath(sp.Coordinates)
		}
		writeJSON(w, http.StatusOK, paths)
	})

	mux.HandleFunc("GET /floorplan.svg", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/svg+xml")
		w.Header().Set("Cache-Control", "no-cache")
		if err := render.SVG(w, session.Present(), previewOptions(session)); err != nil {
			log.Printf("[HTTP] Error rendering floorplan SVG: %v", err)
		}
	})

	mux.HandleFunc("GET /floorplan.png", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-cache")
		if err := render.PNG(w, session.Present(), previewOptions(session)); err != nil {
			log.Printf("[HTTP] Error rendering floorplan PNG: %v", err)
		}
	})

	if hub != nil {
		mux.HandleFunc("GET /session/ws", hub.ServeWS(session))
	}
	mux.Handle("GET /metrics", promhttp.Handler())

	return logRequests(mux)
}

func previewOptions(session *editor.Session) render.Options {
	opts := render.DefaultOptions()
	if sel := session.State().SelectedSpaceID; sel != nil {
		opts.Selected = *sel
	}
	return opts
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" && r.URL.Path != "/metrics" {
			log.Printf("[HTTP] %s %s from %s", r.Method, r.URL.Path, r.RemoteAddr)
		}
		next.ServeHTTP(w, r)
	})
}

func pathIndex(w http.ResponseWriter, r *http.Request) (int, bool) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid vertex index %q", r.PathValue("index")), http.StatusBadRequest)
		return 0, false
	}
	return index, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := dec.Decode(v); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[HTTP] Error encoding response: %v", err)
	}
}

// writeResult answers a session mutation: 200 with the validation result
// when committed, 422 when the validation gate rejected it.
func writeResult(w http.ResponseWriter) func(spatial.ValidationResult, error) {
	return func(res spatial.ValidationResult, err error) {
		if err != nil {
			writeError(w, err)
			return
		}
		if !res.IsValid {
			writeJSON(w, http.StatusUnprocessableEntity, res)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func writeState(w http.ResponseWriter, session *editor.Session, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session.State())
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, errorStatus(err), struct {
		Error string `json:"error"`
	}{err.Error()})
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, editor.ErrSpaceNotFound):
		return http.StatusNotFound
	case errors.Is(err, editor.ErrNothingToUndo),
		errors.Is(err, editor.ErrNothingToRedo),
		errors.Is(err, editor.ErrDuplicateSpace),
		editor.IsConflict(err):
		return http.StatusConflict
	case errors.Is(err, editor.ErrVertexIndex),
		errors.Is(err, editor.ErrUnknownStatus),
		errors.Is(err, spatial.ErrMalformedInput),
		errors.Is(err, spatial.ErrInsufficientPoints),
		errors.Is(err, spatial.ErrInvalidScale):
		return http.StatusBadRequest
	case editor.IsTransient(err), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	case editor.IsRolledBack(err):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
