package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dotside-studios/nfc-juke/buildinfo"
	"github.com/dotside-studios/nfc-juke/bus"
	"github.com/dotside-studios/nfc-juke/logging"
	"github.com/dotside-studios/nfc-juke/protocol"
	"github.com/dotside-studios/nfc-juke/tags"
)

// injectError carries the API error code for a rejected injection.
type injectError struct {
	code   string
	status int
	err    error
}

func (e *injectError) Error() string { return e.err.Error() }
func (e *injectError) Unwrap() error { return e.err }

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger := logging.WithComponent("server")
		logger.Debug().Err(err).Msg("failed to write response")
	}
}

func (s *Server) health() protocol.HealthResponse {
	return protocol.HealthResponse{
		Status:    "ok",
		Version:   buildinfo.Version,
		Player:    s.config.Player,
		Tags:      s.config.Registry.Len(),
		Clients:   s.hub.Count(),
		Timestamp: time.Now().UTC(),
	}
}

func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.health())
}

// inject turns an input request into a bus message and queues it for the
// router. It returns the topic and tag that were queued.
func (s *Server) inject(req protocol.TagInputRequest) (string, string, error) {
	var topic, tag string
	switch {
	case req.Button:
		topic = bus.Join(s.config.Topic, bus.ButtonTopic)
		tag = "1"
	case req.Tag != "":
		topic = bus.Join(s.config.Topic, bus.TagTopic)
		tag = req.Tag
	case req.UID != "":
		uid, err := protocol.NormalizeUID(req.UID)
		if err != nil {
			return "", "", &injectError{code: protocol.ErrCodeInvalidUID, status: http.StatusBadRequest, err: err}
		}
		topic = bus.Join(s.config.Topic, bus.TagTopic)
		tag = uid
	default:
		return "", "", &injectError{
			code:   protocol.ErrCodeInvalidRequest,
			status: http.StatusBadRequest,
			err:    errors.New("one of tag, uid or button is required"),
		}
	}

	if s.config.Inject == nil {
		return "", "", &injectError{
			code:   protocol.ErrCodeInternalError,
			status: http.StatusServiceUnavailable,
			err:    errors.New("tag injection is not available"),
		}
	}
	if err := s.config.Inject(bus.Message{Topic: topic, Payload: []byte(tag)}); err != nil {
		if errors.Is(err, bus.ErrQueueFull) {
			return "", "", &injectError{code: protocol.ErrCodeQueueFull, status: http.StatusServiceUnavailable, err: err}
		}
		return "", "", &injectError{code: protocol.ErrCodeInternalError, status: http.StatusInternalServerError, err: err}
	}

	source := req.Source
	if source == "" {
		source = injectSource
	}
	s.logger.Info().Str("topic", topic).Str("tag", tag).Str("source", source).Msg("tag injected")
	return topic, tag, nil
}

func (s *Server) handleTagInput(w http.ResponseWriter, r *http.Request) {
	var req protocol.TagInputRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, protocol.TagInputResponse{
			Error:     "invalid request body: " + err.Error(),
			ErrorCode: protocol.ErrCodeInvalidRequest,
		})
		return
	}

	topic, tag, err := s.inject(req)
	if err != nil {
		var ie *injectError
		if !errors.As(err, &ie) {
			ie = &injectError{code: protocol.ErrCodeInternalError, status: http.StatusInternalServerError, err: err}
		}
		writeJSON(w, ie.status, protocol.TagInputResponse{Error: ie.Error(), ErrorCode: ie.code})
		return
	}

	writeJSON(w, http.StatusAccepted, protocol.TagInputResponse{
		Success: true,
		Message: "tag queued",
		Tag:     tag,
		Topic:   topic,
	})
}

func toTagEntry(e tags.Entry) protocol.TagEntry {
	return protocol.TagEntry{
		ID:         e.ID,
		Kind:       e.Kind,
		Parameters: e.Parameters,
		Comment:    e.Comment,
		Action:     tags.Resolve(e).String(),
	}
}

func (s *Server) handleListTags(w http.ResponseWriter, r *http.Request) {
	entries := s.config.Registry.Entries()
	resp := protocol.TagListResponse{
		Count: len(entries),
		Tags:  make([]protocol.TagEntry, 0, len(entries)),
	}
	for _, e := range entries {
		resp.Tags = append(resp.Tags, toTagEntry(e))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePutTag(w http.ResponseWriter, r *http.Request) {
	var body protocol.TagEntry
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, protocol.TagInputResponse{
			Error:     "invalid request body: " + err.Error(),
			ErrorCode: protocol.ErrCodeInvalidRequest,
		})
		return
	}

	entry := tags.Entry{
		ID:         chi.URLParam(r, "id"),
		Kind:       body.Kind,
		Parameters: body.Parameters,
		Comment:    body.Comment,
	}
	if err := entry.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, protocol.TagInputResponse{
			Error:     err.Error(),
			ErrorCode: protocol.ErrCodeInvalidEntry,
		})
		return
	}

	s.tableMu.Lock()
	defer s.tableMu.Unlock()

	next := make([]tags.Entry, 0, s.config.Registry.Len()+1)
	for _, e := range s.config.Registry.Entries() {
		if e.ID != entry.ID {
			next = append(next, e)
		}
	}
	next = append(next, entry)
	sort.Slice(next, func(i, j int) bool { return next[i].ID < next[j].ID })

	// The file is written first so a failed write leaves the live table untouched.
	if err := s.persistLocked(next); err != nil {
		writeJSON(w, http.StatusInternalServerError, protocol.TagInputResponse{
			Error:     err.Error(),
			ErrorCode: protocol.ErrCodeInternalError,
		})
		return
	}
	if err := s.config.Registry.Put(entry); err != nil {
		writeJSON(w, http.StatusBadRequest, protocol.TagInputResponse{
			Error:     err.Error(),
			ErrorCode: protocol.ErrCodeInvalidEntry,
		})
		return
	}

	s.logger.Info().Stringer("entry", entry).Msg("tag stored")
	writeJSON(w, http.StatusOK, toTagEntry(entry))
}

func (s *Server) handleDeleteTag(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	s.tableMu.Lock()
	defer s.tableMu.Unlock()

	if _, _, ok := s.config.Registry.Lookup(id); !ok {
		writeJSON(w, http.StatusNotFound, protocol.TagInputResponse{
			Error:     "tag not found",
			ErrorCode: protocol.ErrCodeNotFound,
			Tag:       id,
		})
		return
	}

	current := s.config.Registry.Entries()
	next := make([]tags.Entry, 0, len(current))
	for _, e := range current {
		if e.ID != id {
			next = append(next, e)
		}
	}
	if len(next) == 0 {
		writeJSON(w, http.StatusConflict, protocol.TagInputResponse{
			Error:     "cannot delete the last tag, the table must keep at least one entry",
			ErrorCode: protocol.ErrCodeLastEntry,
			Tag:       id,
		})
		return
	}

	if err := s.persistLocked(next); err != nil {
		writeJSON(w, http.StatusInternalServerError, protocol.TagInputResponse{
			Error:     err.Error(),
			ErrorCode: protocol.ErrCodeInternalError,
		})
		return
	}
	s.config.Registry.Delete(id)

	s.logger.Info().Str("tag", id).Msg("tag deleted")
	w.WriteHeader(http.StatusNoContent)
}

// persistLocked writes entries to the tag file. Callers hold tableMu.
func (s *Server) persistLocked(entries []tags.Entry) error {
	if s.config.TagFile == "" {
		return nil
	}
	return tags.WriteFile(s.config.TagFile, entries)
}
