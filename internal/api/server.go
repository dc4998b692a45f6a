// Package api serves the codec and the torrent catalog over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"time"

	"torrent-bencode/internal/bencode"
	"torrent-bencode/internal/catalog"
	"torrent-bencode/internal/convert"
	"torrent-bencode/internal/tracker"
)

const (
	DefaultMaxBodyBytes = 10 << 20

	shutdownTimeout = 5 * time.Second
)

type Server struct {
	Manager *catalog.Manager

	// Tracker is used by the announce route. Nil disables it.
	Tracker *tracker.Client
	PeerID  [20]byte

	// CatalogPath, when set, is rewritten after every catalog change.
	CatalogPath string

	MaxBodyBytes int64
	DecoderOpts  []bencode.DecoderOption
	Logger       *slog.Logger
}

func NewServer(m *catalog.Manager, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{
		Manager:      m,
		MaxBodyBytes: DefaultMaxBodyBytes,
		Logger:       logger,
	}
}

// Handler returns the routed handler with CORS and request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /decode", s.handleDecode)
	mux.HandleFunc("POST /encode", s.handleEncode)
	mux.HandleFunc("GET /torrents", s.handleStats)
	mux.HandleFunc("POST /torrents", s.handleAdd)
	mux.HandleFunc("GET /torrents/{hash}", s.handleGet)
	mux.HandleFunc("DELETE /torrents/{hash}", s.handleRemove)
	mux.HandleFunc("POST /torrents/{hash}/announce", s.handleAnnounce)
	return s.logRequests(cors(mux))
}

// Serve handles connections on ln until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	server := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	s.Logger.Info("http server listening", "address", ln.Addr().String())

	serveDone := make(chan error, 1)
	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveDone <- err
		}
		close(serveDone)
	}()

	select {
	case <-ctx.Done():
		s.Logger.Info("http server shutting down")
	case err := <-serveDone:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	<-serveDone
	s.Logger.Info("http server stopped")
	return nil
}

func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.Logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	limit := s.MaxBodyBytes
	if limit <= 0 {
		limit = DefaultMaxBodyBytes
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, http.StatusRequestEntityTooLarge, fmt.Errorf("body exceeds %d bytes", tooLarge.Limit))
		} else {
			s.writeError(w, http.StatusBadRequest, err)
		}
		return nil, false
	}
	return body, true
}

type errorResponse struct {
	Error  string `json:"error"`
	Offset *int   `json:"offset,omitempty"`
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	resp := errorResponse{Error: err.Error()}
	var syntaxErr *bencode.SyntaxError
	if errors.As(err, &syntaxErr) {
		resp.Offset = &syntaxErr.Offset
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// handleDecode turns a bencoded body into JSON, YAML or CBOR, chosen by the
// format query parameter.
func (s *Server) handleDecode(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}
	v, err := bencode.Unmarshal(body, s.DecoderOpts...)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	var out []byte
	var contentType string
	switch format := r.URL.Query().Get("format"); format {
	case "", "json":
		out, err = convert.ToJSON(v)
		contentType = "application/json"
	case "yaml":
		out, err = convert.ToYAML(v)
		contentType = "application/yaml"
	case "cbor":
		out, err = convert.ToCBOR(v)
		contentType = "application/cbor"
	default:
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("unknown format %q", format))
		return
	}
	if err != nil {
		s.writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Write(out)
}

func (s *Server) handleEncode(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}
	v, err := convert.FromJSON(body)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	w.Header().Set("Content-Type", "application/x-bittorrent")
	w.Write(bencode.Encode(v))
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Manager.GetStats())
}

// handleAdd accepts either a raw torrent file or a JSON object carrying it
// base64-encoded in torrentData.
func (s *Server) handleAdd(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}

	torrentData := body
	if mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); mediaType == "application/json" {
		var req struct {
			TorrentData []byte `json:"torrentData"`
		}
		if err := json.Unmarshal(body, &req); err != nil {
			s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
			return
		}
		torrentData = req.TorrentData
	}
	if len(torrentData) == 0 {
		s.writeError(w, http.StatusBadRequest, errors.New("empty torrent"))
		return
	}

	stats, err := s.Manager.AddTorrent(torrentData)
	switch {
	case errors.Is(err, catalog.ErrExists):
		s.writeError(w, http.StatusConflict, err)
		return
	case err != nil:
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	s.persist()
	writeJSON(w, http.StatusCreated, stats)
}

// handleGet returns the torrent as a JSON projection of its dictionary.
func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	meta, ok := s.Manager.Get(r.PathValue("hash"))
	if !ok {
		s.writeError(w, http.StatusNotFound, catalog.ErrNotFound)
		return
	}
	out, err := convert.ToJSON(meta.Dict())
	if err != nil {
		s.writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(out)
}

func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	if err := s.Manager.Remove(r.PathValue("hash")); err != nil {
		s.writeError(w, http.StatusNotFound, err)
		return
	}
	s.persist()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAnnounce(w http.ResponseWriter, r *http.Request) {
	if s.Tracker == nil {
		s.writeError(w, http.StatusServiceUnavailable, errors.New("tracker client not configured"))
		return
	}
	stats, err := s.Manager.Announce(r.Context(), r.PathValue("hash"), s.Tracker, s.PeerID)
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		s.writeError(w, http.StatusNotFound, err)
		return
	case err != nil:
		s.writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) persist() {
	if s.CatalogPath == "" {
		return
	}
	if err := s.Manager.Save(s.CatalogPath); err != nil {
		s.Logger.Error("catalog save failed", "path", s.CatalogPath, "error", err)
	}
}
