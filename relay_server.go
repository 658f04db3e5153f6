package blobvault

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// RelayServer exposes any Relay backend over HTTP so a share's cloud
// intermediary can be self-hosted. The protocol is the one HTTPRelay
// speaks.
//
// Routes:
//
//	POST   /shares                      register share (JSON ShareMeta)
//	GET    /shares/{id}                 share metadata
//	DELETE /shares/{id}                 revoke
//	PUT    /shares/{id}/chunks/{idx}    upload chunk (octet-stream)
//	GET    /shares/{id}/chunks/{idx}    download chunk
//	POST   /shares/{id}/complete        finish upload
//	GET    /shares/{id}/availability    availability state
//	POST   /shares/{id}/consume         one-time consumption
type RelayServer struct {
	backend Relay
	log     zerolog.Logger
	mux     *chi.Mux
}

// NewRelayServer creates an HTTP handler over the given relay backend
func NewRelayServer(backend Relay, log zerolog.Logger) *RelayServer {
	s := &RelayServer{backend: backend, log: log}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Route("/shares", func(r chi.Router) {
		r.Post("/", s.handleCreate)
		r.Route("/{shareID}", func(r chi.Router) {
			r.Get("/", s.handleMetadata)
			r.Delete("/", s.handleRevoke)
			r.Put("/chunks/{index}", s.handleUpload)
			r.Get("/chunks/{index}", s.handleDownload)
			r.Post("/complete", s.handleComplete)
			r.Get("/availability", s.handleAvailability)
			r.Post("/consume", s.handleConsume)
		})
	})

	s.mux = r
	return s
}

// ServeHTTP implements http.Handler
func (s *RelayServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// statusFor maps relay errors onto HTTP status codes. HTTPRelay performs
// the inverse mapping.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrShareNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrShareConsumed):
		return http.StatusConflict
	case errors.Is(err, ErrShareExpired):
		return http.StatusGone
	case errors.Is(err, ErrShareIncomplete):
		return http.StatusTooEarly
	case IsConfigError(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *RelayServer) fail(w http.ResponseWriter, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		s.log.Error().Err(err).Msg("relay request failed")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

func (s *RelayServer) handleCreate(w http.ResponseWriter, r *http.Request) {
	var meta ShareMeta
	if err := json.NewDecoder(r.Body).Decode(&meta); err != nil {
		s.fail(w, NewConfigError("body", "malformed share metadata"))
		return
	}
	if err := s.backend.CreateShare(r.Context(), meta); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *RelayServer) handleMetadata(w http.ResponseWriter, r *http.Request) {
	meta, err := s.backend.Metadata(r.Context(), chi.URLParam(r, "shareID"))
	if err != nil {
		s.fail(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(meta)
}

func (s *RelayServer) handleRevoke(w http.ResponseWriter, r *http.Request) {
	if err := s.backend.Revoke(r.Context(), chi.URLParam(r, "shareID")); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parseChunkIndex(r *http.Request) (uint32, error) {
	idx, err := strconv.ParseUint(chi.URLParam(r, "index"), 10, 32)
	if err != nil {
		return 0, NewConfigError("index", "malformed chunk index")
	}
	return uint32(idx), nil
}

func (s *RelayServer) handleUpload(w http.ResponseWriter, r *http.Request) {
	idx, err := parseChunkIndex(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		s.fail(w, NewTransientError("read", err))
		return
	}
	if err := s.backend.UploadChunk(r.Context(), chi.URLParam(r, "shareID"), idx, data); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *RelayServer) handleDownload(w http.ResponseWriter, r *http.Request) {
	idx, err := parseChunkIndex(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	data, err := s.backend.DownloadChunk(r.Context(), chi.URLParam(r, "shareID"), idx)
	if err != nil {
		s.fail(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Write(data)
}

func (s *RelayServer) handleComplete(w http.ResponseWriter, r *http.Request) {
	if err := s.backend.FinishUpload(r.Context(), chi.URLParam(r, "shareID")); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *RelayServer) handleAvailability(w http.ResponseWriter, r *http.Request) {
	avail, err := s.backend.CheckAvailability(r.Context(), chi.URLParam(r, "shareID"))
	if err != nil {
		s.fail(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"availability": avail.String()})
}

func (s *RelayServer) handleConsume(w http.ResponseWriter, r *http.Request) {
	if err := s.backend.MarkConsumed(r.Context(), chi.URLParam(r, "shareID")); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
