package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"skidoodle/watchparty/internal/watch"
)

const maxBodyBytes = 1 << 20

var errItemNotFound = errors.New("queue item not found")

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON data")
		return false
	}
	return true
}

func (s *Server) storeFailed(w http.ResponseWriter, op string, err error) {
	storeErrors.WithLabelValues(op).Inc()
	log.WithError(err).WithField("operation", op).Error("store operation failed")
	writeError(w, http.StatusInternalServerError, "Failed to "+op)
}

func (s *Server) handleGetQueue(w http.ResponseWriter, r *http.Request) {
	queue, err := s.store.ReadQueue(r.Context())
	if err != nil {
		s.storeFailed(w, "read queue", err)
		return
	}
	writeJSON(w, http.StatusOK, queue)
}

func (s *Server) handlePutQueue(w http.ResponseWriter, r *http.Request) {
	var queue []watch.QueueItem
	if !decodeBody(w, r, &queue) {
		return
	}
	s.saveQueue(w, r, queue)
}

// handleSaveQueue accepts the {"queue": [...]} form older clients send.
func (s *Server) handleSaveQueue(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Queue *[]watch.QueueItem `json:"queue"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if body.Queue == nil {
		writeError(w, http.StatusBadRequest, "Invalid queue data")
		return
	}
	s.saveQueue(w, r, *body.Queue)
}

func (s *Server) saveQueue(w http.ResponseWriter, r *http.Request, queue []watch.QueueItem) {
	if queue == nil {
		queue = []watch.QueueItem{}
	}
	if err := s.store.WriteQueue(r.Context(), queue); err != nil {
		s.storeFailed(w, "write queue", err)
		return
	}
	s.watcher.Trigger()
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "queueLength": len(queue)})
}

func (s *Server) handleAddToQueue(w http.ResponseWriter, r *http.Request) {
	var it watch.QueueItem
	if !decodeBody(w, r, &it) {
		return
	}
	if !watch.ValidVideoID(it.VideoID) {
		writeError(w, http.StatusBadRequest, "Invalid video ID")
		return
	}
	if it.Thumbnail == "" {
		it.Thumbnail = watch.ThumbnailURL(it.VideoID)
	}
	if it.URL == "" {
		it.URL = watch.WatchURL(it.VideoID)
	}

	length := 0
	_, err := watch.Mutate(r.Context(), s.store, func(docs *watch.Documents) error {
		docs.Queue = append(docs.Queue, it)
		length = len(docs.Queue)
		return nil
	})
	if err != nil {
		s.storeFailed(w, "add to queue", err)
		return
	}
	s.watcher.Trigger()
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "queueLength": length})
}

func (s *Server) handleUpdateQueueItem(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || index < 0 {
		writeError(w, http.StatusBadRequest, "Invalid index")
		return
	}
	var body struct {
		Status *watch.PlaybackStatus `json:"status"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if body.Status == nil {
		writeError(w, http.StatusBadRequest, "Missing status")
		return
	}

	_, err = watch.Mutate(r.Context(), s.store, func(docs *watch.Documents) error {
		if index >= len(docs.Queue) {
			return errItemNotFound
		}
		docs.Queue[index].Status = body.Status
		return nil
	})
	if errors.Is(err, errItemNotFound) {
		writeError(w, http.StatusNotFound, "Queue item not found")
		return
	}
	if err != nil {
		s.storeFailed(w, "update queue item", err)
		return
	}
	s.watcher.Trigger()
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func (s *Server) handleQueueUpdates(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int64{"lastModified": s.watcher.LastModified().Unix()})
}

func (s *Server) handleGetNowPlaying(w http.ResponseWriter, r *http.Request) {
	np, err := s.store.ReadNowPlaying(r.Context())
	if err != nil {
		s.storeFailed(w, "read now playing", err)
		return
	}
	writeJSON(w, http.StatusOK, np)
}

func (s *Server) handlePutNowPlaying(w http.ResponseWriter, r *http.Request) {
	var np watch.NowPlaying
	if !decodeBody(w, r, &np) {
		return
	}
	if err := s.store.WriteNowPlaying(r.Context(), np); err != nil {
		s.storeFailed(w, "write now playing", err)
		return
	}
	s.watcher.Trigger()
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// AdvanceRequest asks the server to advance from an observed record. Without
// a body the server advances from whatever is current.
type AdvanceRequest struct {
	Observed watch.NowPlaying `json:"observed"`
	User     string           `json:"user"`
}

func (s *Server) handleAdvance(w http.ResponseWriter, r *http.Request) {
	var (
		ok  bool
		err error
	)
	if r.ContentLength == 0 {
		ok, err = s.advancer.Advance(r.Context())
	} else {
		var req AdvanceRequest
		if !decodeBody(w, r, &req) {
			return
		}
		ok, err = watch.NewAdvancer(s.store, req.User, nil).AdvanceFrom(r.Context(), req.Observed)
	}
	if err != nil {
		advances.WithLabelValues("error").Inc()
		s.storeFailed(w, "advance queue", err)
		return
	}
	if ok {
		advances.WithLabelValues("promoted").Inc()
		s.watcher.Trigger()
	} else {
		advances.WithLabelValues("noop").Inc()
	}
	writeJSON(w, http.StatusOK, map[string]bool{"advanced": ok})
}

// EnqueueResponse is the result of an atomic add.
type EnqueueResponse struct {
	QueueLength int               `json:"queueLength"`
	NowPlaying  *watch.NowPlaying `json:"nowPlaying,omitempty"`
}

// handleEnqueue adds a video under the backend's atomic update, rejecting
// duplicates and starting it at once when nothing is waiting ahead of it.
func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var it watch.QueueItem
	if !decodeBody(w, r, &it) {
		return
	}
	if !watch.ValidVideoID(it.VideoID) {
		writeError(w, http.StatusBadRequest, "Invalid video ID")
		return
	}

	var resp EnqueueResponse
	_, err := watch.Mutate(r.Context(), s.store, func(docs *watch.Documents) error {
		np, err := watch.AddItem(docs, it, it.AddedBy, time.Now().UTC())
		resp = EnqueueResponse{QueueLength: len(docs.Queue), NowPlaying: np}
		return err
	})
	switch {
	case errors.Is(err, watch.ErrAlreadyPlaying), errors.Is(err, watch.ErrAlreadyQueued):
		writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		s.storeFailed(w, "add to queue", err)
		return
	}
	s.watcher.Trigger()
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetLog(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.activity.Entries())
}

func (s *Server) handlePostLog(w http.ResponseWriter, r *http.Request) {
	var e watch.ActivityEntry
	if !decodeBody(w, r, &e) {
		return
	}
	if e.Action == "" || e.User == "" || e.Timestamp.IsZero() {
		writeError(w, http.StatusBadRequest, "Missing required fields")
		return
	}
	s.activity.Append(e)
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// healthHandler responds to container health checks.
func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		log.WithError(err).Warn("failed to write health check response")
	}
}
