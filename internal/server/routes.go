package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/lazypower/mfu/internal/mfu"
)

type fileRequest struct {
	Path string `json:"path"`
}

type moveRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

func isAsync(r *http.Request) bool {
	return r.URL.Query().Get("async") == "true"
}

func validKey(path string) bool {
	return path != "" && filepath.IsAbs(path)
}

func (s *Server) handleGetFiles(w http.ResponseWriter, r *http.Request) {
	files, err := s.tracker.GetFiles(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"files":       files,
		"max_results": s.tracker.MaxResults(),
	})
}

func (s *Server) handleAccessed(w http.ResponseWriter, r *http.Request) {
	var req fileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if !validKey(req.Path) {
		writeError(w, http.StatusBadRequest, "absolute path required")
		return
	}

	if isAsync(r) {
		s.tracker.NotifyAccessedAsync(mfu.Path(req.Path))
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
		return
	}
	if err := s.tracker.NotifyAccessed(r.Context(), mfu.Path(req.Path)); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleMoved(w http.ResponseWriter, r *http.Request) {
	var req moveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if !validKey(req.From) || !validKey(req.To) {
		writeError(w, http.StatusBadRequest, "absolute from and to required")
		return
	}

	if isAsync(r) {
		s.tracker.NotifyMovedAsync(mfu.Path(req.From), mfu.Path(req.To))
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
		return
	}
	if err := s.tracker.NotifyMoved(r.Context(), mfu.Path(req.From), mfu.Path(req.To)); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleDeleted(w http.ResponseWriter, r *http.Request) {
	var req fileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if !validKey(req.Path) {
		writeError(w, http.StatusBadRequest, "absolute path required")
		return
	}

	if isAsync(r) {
		s.tracker.NotifyDeletedAsync(mfu.Path(req.Path))
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
		return
	}
	if err := s.tracker.NotifyDeleted(r.Context(), mfu.Path(req.Path)); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleMaintenance(w http.ResponseWriter, r *http.Request) {
	decayed, pruned, err := s.tracker.Maintain(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"decayed": decayed, "pruned": pruned})
}

// handleStream pushes every ranked list the tracker delivers as a
// server-sent event until the client goes away.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	// Written only from the loop; a slow client sees the newest list.
	updates := make(chan []mfu.File, 1)
	obs := mfu.ObserverFunc(func(files []mfu.File) {
		select {
		case updates <- files:
			return
		default:
		}
		select {
		case <-updates:
		default:
		}
		updates <- files
	})

	var reg *mfu.Registration
	var regErr error
	err := s.loop.Do(r.Context(), func(ctx context.Context) {
		reg, regErr = s.tracker.RegisterObserver(ctx, obs)
	})
	if err == nil {
		err = regErr
	}
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	defer s.loop.Post(func(ctx context.Context) {
		if err := s.tracker.UnregisterObserver(ctx, reg); err != nil {
			s.log.Warnf("stream: unregister %s: %v", reg.ID, err)
		}
	})

	reqID := middleware.GetReqID(r.Context())
	s.log.Debugf("stream: %s subscribed as %s", reqID, reg.ID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			s.log.Debugf("stream: %s closed", reqID)
			return
		case files := <-updates:
			data, err := json.Marshal(files)
			if err != nil {
				s.log.Warnf("stream: encode: %v", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "event: files\ndata: %s\n\n", data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
