// Package httpapi serves the relay's plain-HTTP surface: the websocket
// upgrade at the root path, the relay information document, health probes
// and the media endpoints.
package httpapi

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"nrelay/internal/config"
	"nrelay/internal/relay"
)

var checksumPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

// InfoDocument is the relay information document served to clients that ask
// for application/nostr+json.
type InfoDocument struct {
	Name          string      `json:"name"`
	Description   string      `json:"description"`
	Pubkey        string      `json:"pubkey,omitempty"`
	Contact       string      `json:"contact,omitempty"`
	SupportedNIPs []int       `json:"supported_nips"`
	Software      string      `json:"software"`
	Version       string      `json:"version"`
	Limitation    *Limitation `json:"limitation,omitempty"`
}

// Limitation advertises the relay's protocol limits.
type Limitation struct {
	MaxFilters     int  `json:"max_filters"`
	MaxLimit       int  `json:"max_limit"`
	MaxSubIDLength int  `json:"max_subid_length"`
	MaxContentSize int  `json:"max_message_length"`
	AuthRequired   bool `json:"auth_required"`
}

// Server holds the HTTP handlers and their dependencies.
type Server struct {
	ws     http.Handler
	store  relay.EventStore
	blobs  relay.BlobStore
	info   InfoDocument
	maxUp  int64
	logger relay.Logger
}

// NewServer builds the HTTP surface. ws handles websocket upgrades at the
// root path.
func NewServer(ws http.Handler, store relay.EventStore, blobs relay.BlobStore, cfg *config.Config, version string, logger relay.Logger) *Server {
	return &Server{
		ws:    ws,
		store: store,
		blobs: blobs,
		info: InfoDocument{
			Name:          cfg.Info.Name,
			Description:   cfg.Info.Description,
			Pubkey:        cfg.Info.Pubkey,
			Contact:       cfg.Info.Contact,
			SupportedNIPs: []int{1, 9, 11, 40, 42, 45},
			Software:      "nrelay",
			Version:       version,
			Limitation: &Limitation{
				MaxFilters: cfg.Relay.MaxFilters,
				MaxLimit:   cfg.Relay.MaxLimit,
				// Matches the session's subscription id cap.
				MaxSubIDLength: 64,
				MaxContentSize: cfg.Relay.MaxContentSize,
				AuthRequired:   cfg.Relay.AuthRequired,
			},
		},
		maxUp:  16 << 20,
		logger: logger,
	}
}

// Handler returns the routed http.Handler for the relay.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("GET /nip11", s.handleInfo)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("POST /upload", s.handleUpload)
	mux.HandleFunc("POST /media", s.handleUpload)
	mux.HandleFunc("GET /media/{checksum}", s.handleDownload)
	return mux
}

// handleRoot dispatches the root path three ways: websocket upgrades go to
// the relay, nostr+json requests get the information document and anything
// else gets a short banner.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		s.ws.ServeHTTP(w, r)
		return
	}
	if strings.Contains(r.Header.Get("Accept"), "application/nostr+json") {
		s.handleInfo(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "%s - nostr relay\nconnect with a websocket client\n", s.info.Name)
}

func (s *Server) handleInfo(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/nostr+json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	if err := json.NewEncoder(w).Encode(s.info); err != nil {
		s.logger.Error("writing info document", "error", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "ok")
}

// handleReady reports ready only when the event store answers a ping.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.logger.Warn("readiness check failed", "error", err)
		http.Error(w, "store unavailable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "ok")
}

type uploadResult struct {
	Checksum string `json:"sha256"`
	Size     int64  `json:"size"`
	URL      string `json:"url"`
}

// handleUpload stores the request body as a blob addressed by its sha256.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if s.blobs == nil {
		http.Error(w, "media storage disabled", http.StatusNotImplemented)
		return
	}

	body := http.MaxBytesReader(w, r.Body, s.maxUp)
	data, err := io.ReadAll(body)
	if err != nil {
		http.Error(w, "upload too large or unreadable", http.StatusRequestEntityTooLarge)
		return
	}
	if len(data) == 0 {
		http.Error(w, "empty upload", http.StatusBadRequest)
		return
	}

	sum := sha256.Sum256(data)
	checksum := hex.EncodeToString(sum[:])

	if err := s.blobs.Put(r.Context(), checksum, bytes.NewReader(data), int64(len(data))); err != nil {
		s.logger.Error("storing blob", "checksum", checksum, "error", err)
		http.Error(w, "could not store media", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(uploadResult{
		Checksum: checksum,
		Size:     int64(len(data)),
		URL:      "/media/" + checksum,
	})
}

// handleDownload streams a blob by checksum.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	if s.blobs == nil {
		http.Error(w, "media storage disabled", http.StatusNotImplemented)
		return
	}

	checksum := r.PathValue("checksum")
	if !checksumPattern.MatchString(checksum) {
		http.Error(w, "invalid checksum", http.StatusBadRequest)
		return
	}

	exists, err := s.blobs.Exists(r.Context(), checksum)
	if err != nil {
		s.logger.Error("checking blob", "checksum", checksum, "error", err)
		http.Error(w, "could not read media", http.StatusInternalServerError)
		return
	}
	if !exists {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	if err := s.blobs.Get(r.Context(), checksum, w); err != nil {
		s.logger.Error("streaming blob", "checksum", checksum, "error", err)
	}
}
