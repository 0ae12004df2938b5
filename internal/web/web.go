package web

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"net/http"
	"strings"
	"time"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"rgblcd/internal/bringup"
	"rgblcd/internal/config"
	"rgblcd/internal/convert"
	appLog "rgblcd/internal/log"
	"rgblcd/internal/pattern"
)

// ErrNotReady is returned by a Source when the panel is not up.
var ErrNotReady = errors.New("web: panel not ready")

// Status is the JSON shape of /api/status.
type Status struct {
	Ready   bool              `json:"ready"`
	Sim     bool              `json:"sim"`
	Report  *bringup.Report   `json:"report,omitempty"`
	Pins    map[string]string `json:"pins"`
	Pattern string            `json:"pattern,omitempty"`
	Draws   int               `json:"draws"`
}

// Source is the running panel as seen by the HTTP API.
type Source interface {
	Status() Status
	// Preview returns the current frame, nil when the panel is not up.
	Preview() image.Image
	// DrawPattern draws a named test pattern.
	DrawPattern(name string) error
	// DrawImage draws img center-cropped to the panel.
	DrawImage(img image.Image) error
}

// maxImageBytes bounds a POST /api/image body.
const maxImageBytes = 8 << 20

// maxImagePixels bounds the decoded size of an upload. Compressed formats
// can describe far more pixels than their byte size suggests.
const maxImagePixels = 4096 * 4096

// Server provides the status API and preview.
type Server struct {
	cfg *config.Config
	src Source
	mux *http.ServeMux
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, src Source) *Server {
	s := &Server{
		cfg: cfg,
		src: src,
		mux: http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// An empty username or password disables auth.
	if s.cfg.BasicAuth.Username == "" || s.cfg.BasicAuth.Password == "" {
		return false
	}
	return true
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="rgblcd", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Serve listens on cfg.Listen until ctx is cancelled, then shuts down
// gracefully.
func Serve(ctx context.Context, cfg *config.Config, src Source) error {
	s := NewServer(cfg, src)
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/status", s.handleStatus)
	s.mux.HandleFunc("/api/pattern", s.handlePattern)
	s.mux.HandleFunc("/api/image", s.handleImage)
	s.mux.HandleFunc("/preview.png", s.handlePreview)
	s.mux.HandleFunc("/", s.handleIndex)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

const indexHTML = `<!doctype html>
<html><head><meta charset="utf-8"><title>rgblcd</title></head>
<body>
<p><a href="/api/status">status</a></p>
<img src="/preview.png" width="480" height="480" alt="panel preview">
</body></html>
`

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(indexHTML))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, s.src.Status())
}

// handlePreview renders the frame buffer as PNG.
func (s *Server) handlePreview(w http.ResponseWriter, _ *http.Request) {
	img := s.src.Preview()
	if img == nil {
		writeError(w, http.StatusServiceUnavailable, "panel not ready")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	if err := png.Encode(w, img); err != nil {
		appLog.Error("failed to encode preview", err)
	}
}

// handleImage draws an uploaded image: the raw PNG, BMP or WebP file as the
// body. It is scaled to cover the panel and center-cropped.
func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxImageBytes))
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, "image body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid image body")
		return
	}
	ic, _, err := image.DecodeConfig(bytes.NewReader(body))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid image body")
		return
	}
	if int64(ic.Width)*int64(ic.Height) > maxImagePixels {
		writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("image %dx%d has too many pixels", ic.Width, ic.Height))
		return
	}
	img, format, err := image.Decode(bytes.NewReader(body))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid image body")
		return
	}
	if err := s.src.DrawImage(img); err != nil {
		switch {
		case errors.Is(err, ErrNotReady):
			writeError(w, http.StatusServiceUnavailable, "panel not ready")
		case errors.Is(err, convert.ErrSize):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			appLog.Error("api image: draw failed", err)
			writeError(w, http.StatusInternalServerError, "draw failed")
		}
		return
	}
	b := img.Bounds()
	appLog.Info("api image drawn", "format", format, "width", b.Dx(), "height", b.Dy())
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type patternRequest struct {
	Name string `json:"name"`
}

type patternsResponse struct {
	Names   []string `json:"names"`
	Current string   `json:"current,omitempty"`
}

// handlePattern lists patterns (GET) or draws one (POST).
//
// POST /api/pattern?name=red, or a JSON body {"name": "red"}.
func (s *Server) handlePattern(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, patternsResponse{
			Names:   pattern.Names(),
			Current: s.src.Status().Pattern,
		})
		return
	case http.MethodPost:
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	name := r.URL.Query().Get("name")
	if name == "" && strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var req patternRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<10)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		name = req.Name
	}
	if _, err := pattern.Lookup(name); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.src.DrawPattern(name); err != nil {
		if errors.Is(err, ErrNotReady) {
			writeError(w, http.StatusServiceUnavailable, "panel not ready")
			return
		}
		appLog.Error("api pattern: draw failed", err, "name", name)
		writeError(w, http.StatusInternalServerError, "draw failed")
		return
	}
	appLog.Info("api pattern drawn", "name", name)
	writeJSON(w, http.StatusOK, patternsResponse{Names: pattern.Names(), Current: name})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
