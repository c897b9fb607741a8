package web

import (
	"context"
	"crypto/subtle"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"speakclock/internal/announce"
	"speakclock/internal/battery"
	"speakclock/internal/calendar"
	"speakclock/internal/config"
	"speakclock/internal/dst"
	appLog "speakclock/internal/log"
	"speakclock/internal/model"
)

// Settings is the persisted language the portal reads and edits.
type Settings interface {
	Language() model.Language
	SetLanguage(lang model.Language) error
}

// Server provides the setup portal: clock status and setting, language,
// battery and test announcements.
type Server struct {
	cfg      *config.Config
	svc      *announce.Service
	settings Settings
	battery  battery.Reader
	mux      *http.ServeMux

	// In-memory cache for battery status. This avoids hitting I2C (or
	// even the mock) on every single HTTP call.
	batteryMu    sync.RWMutex
	batteryCache *batteryCache
	now          func() time.Time
}

// embeddedStatic contains the portal page.
//
//go:embed all:static
var embeddedStatic embed.FS

// NewServer constructs a new Server. bat may be nil.
func NewServer(cfg *config.Config, svc *announce.Service, settings Settings, bat battery.Reader) *Server {
	s := &Server{
		cfg:      cfg,
		svc:      svc,
		settings: settings,
		battery:  bat,
		mux:      http.NewServeMux(),
		now:      time.Now,
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
	// Empty username or password disables auth.
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
			w.Header().Set("WWW-Authenticate", `Basic realm="SpeakingClock", charset="UTF-8"`)
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
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
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
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("GET /api/time", s.handleTimeGet)
	s.mux.HandleFunc("POST /api/time", s.handleTimeSet)
	s.mux.HandleFunc("GET /api/language", s.handleLanguageGet)
	s.mux.HandleFunc("POST /api/language", s.handleLanguageSet)
	s.mux.HandleFunc("GET /api/battery", s.handleBattery)
	s.mux.HandleFunc("POST /api/speak", s.handleSpeak)
	s.mux.HandleFunc("GET /api/playlist", s.handlePlaylist)

	// All non-/api/* paths fall back to the embedded page.
	s.mux.Handle("/", s.staticFileServer())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// timeResponse is the JSON response shape for GET /api/time.
type timeResponse struct {
	OK       bool   `json:"ok"`
	EpochUTC int64  `json:"epoch_utc"`
	RTC      string `json:"rtc"`
	Local    string `json:"local"`
	TZ       string `json:"tz"`
	// DST is the EU summer-time window of the local year, in UTC.
	DST dstWindow `json:"dst"`
	// InDST reports whether the current UTC instant lies in that window.
	InDST bool `json:"in_dst"`
}

type dstWindow struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

func (s *Server) handleTimeGet(w http.ResponseWriter, r *http.Request) {
	local, raw, err := s.svc.Now(r.Context())
	if err != nil {
		appLog.Error("api time: rtc read failed", err)
		writeError(w, http.StatusInternalServerError, "rtc_not_available")
		return
	}

	rule := s.svc.Localizer().Rule()
	epoch := calendar.EpochSecondsUTC(raw)
	if !rule.SourceIsUTC {
		// A local RTC keeps standard time; summer time is added on read.
		epoch -= int64(rule.ManualOffsetMinutes) * 60
	}
	win := dst.Transitions(local.Year)

	writeJSON(w, http.StatusOK, timeResponse{
		OK:       true,
		EpochUTC: epoch,
		RTC:      stamp(raw),
		Local:    stamp(local),
		TZ:       s.svc.Localizer().Describe(),
		DST:      dstWindow{Start: stamp(win.Start) + "Z", End: stamp(win.End) + "Z"},
		InDST:    win.Contains(calendar.FromEpochSeconds(epoch)),
	})
}

// handleTimeSet sets the RTC from a browser clock.
//
// POST /api/time with form or JSON field epoch_ms (milliseconds since the
// Unix epoch). The RTC receives UTC, or local standard time when it keeps
// local time.
func (s *Server) handleTimeSet(w http.ResponseWriter, r *http.Request) {
	raw := formOrJSON(w, r, "epoch_ms")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "missing_params")
		return
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || ms < 0 {
		writeError(w, http.StatusBadRequest, "invalid_epoch")
		return
	}

	dt := calendar.FromEpochSeconds(ms / 1000)
	rule := s.svc.Localizer().Rule()
	if !rule.SourceIsUTC {
		dt = calendar.AddMinutes(dt, rule.ManualOffsetMinutes)
	}

	if err := s.svc.Clock().Set(r.Context(), dt); err != nil {
		appLog.Error("api time: rtc set failed", err)
		writeError(w, http.StatusInternalServerError, "rtc_not_available")
		return
	}
	appLog.Info("RTC set", "value", stamp(dt))
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

type okResponse struct {
	OK bool `json:"ok"`
}

type languageResponse struct {
	OK   bool           `json:"ok"`
	Lang model.Language `json:"lang"`
}

func (s *Server) handleLanguageGet(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, languageResponse{OK: true, Lang: s.settings.Language()})
}

func (s *Server) handleLanguageSet(w http.ResponseWriter, r *http.Request) {
	raw := formOrJSON(w, r, "lang")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "missing_lang")
		return
	}
	lang, err := model.ParseLanguage(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_lang")
		return
	}
	if err := s.settings.SetLanguage(lang); err != nil {
		appLog.Error("api language: persist failed", err)
		writeError(w, http.StatusInternalServerError, "save_failed")
		return
	}
	writeJSON(w, http.StatusOK, languageResponse{OK: true, Lang: lang})
}

// handleBattery exposes current battery status for the Web UI.
//
// This endpoint uses a small in-memory cache to avoid hitting I2C (or even
// the mock reader) on every single HTTP request. Battery status does not
// need sub-second precision, so a short TTL is sufficient.
func (s *Server) handleBattery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	const batteryCacheTTL = 30 * time.Second
	now := s.now()

	// Fast path: return cached value if it's still fresh.
	s.batteryMu.RLock()
	bc := s.batteryCache
	s.batteryMu.RUnlock()
	if bc != nil && now.Sub(bc.updatedAt) < batteryCacheTTL {
		writeJSON(w, http.StatusOK, bc.status)
		return
	}

	if s.battery == nil {
		writeError(w, http.StatusServiceUnavailable, "battery reader unavailable")
		return
	}

	status, err := s.battery.Read(ctx)
	if err != nil {
		appLog.Error("battery read failed", err)
		writeError(w, http.StatusInternalServerError, "failed to read battery")
		return
	}

	s.batteryMu.Lock()
	s.batteryCache = &batteryCache{
		status:    status,
		updatedAt: now,
	}
	s.batteryMu.Unlock()

	writeJSON(w, http.StatusOK, status)
}

// batteryCache holds the last known battery status and its timestamp.
type batteryCache struct {
	status    battery.Status
	updatedAt time.Time
}

type playlistResponse struct {
	OK         bool           `json:"ok"`
	Kind       string         `json:"kind"`
	Lang       model.Language `json:"lang"`
	Local      string         `json:"local"`
	Clips      []string       `json:"clips"`
	PauseAfter int            `json:"pause_after"`
}

// handleSpeak plays the current time or date.
//
// POST /api/speak?kind=time|date
func (s *Server) handleSpeak(w http.ResponseWriter, r *http.Request) {
	kind, err := announce.ParseKind(r.URL.Query().Get("kind"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_kind")
		return
	}
	p, err := s.svc.Speak(r.Context(), kind)
	if err != nil && p.Empty() {
		writeError(w, http.StatusInternalServerError, "rtc_not_available")
		return
	}
	if err != nil {
		appLog.Error("api speak: playback incomplete", err, "kind", kind.String())
	}
	writeJSON(w, http.StatusOK, playlistResponse{
		OK:         err == nil,
		Kind:       kind.String(),
		Lang:       p.Language,
		Clips:      nonNil(p.Clips),
		PauseAfter: p.PauseAfter,
	})
}

// handlePlaylist compiles without playing.
//
// GET /api/playlist?kind=time|date&lang=de|en
//   - lang defaults to the persisted language
func (s *Server) handlePlaylist(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	kind, err := announce.ParseKind(q.Get("kind"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_kind")
		return
	}
	lang := s.settings.Language()
	if v := q.Get("lang"); v != "" {
		if lang, err = model.ParseLanguage(v); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_lang")
			return
		}
	}

	local, _, err := s.svc.Now(r.Context())
	if err != nil {
		appLog.Error("api playlist: rtc read failed", err)
		writeError(w, http.StatusInternalServerError, "rtc_not_available")
		return
	}
	p := s.svc.Compile(local, lang, kind)
	writeJSON(w, http.StatusOK, playlistResponse{
		OK:         true,
		Kind:       kind.String(),
		Lang:       lang,
		Local:      stamp(local),
		Clips:      nonNil(p.Clips),
		PauseAfter: p.PauseAfter,
	})
}

// staticFileServer returns an http.Handler that serves the embedded
// portal page from internal/web/static.
func (s *Server) staticFileServer() http.Handler {
	sub, err := fs.Sub(embeddedStatic, "static")
	if err != nil {
		appLog.Error("failed to initialize embedded static filesystem", err)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "static UI not available", http.StatusServiceUnavailable)
		})
	}

	fileServer := http.FileServer(http.FS(sub))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path

		// Unknown /api/* requests get a 404, never HTML.
		if path == "/api" || strings.HasPrefix(path, "/api/") {
			http.NotFound(w, r)
			return
		}
		fileServer.ServeHTTP(w, r)
	})
}

// formOrJSON reads key from a form body/query, or from a JSON object body.
func formOrJSON(w http.ResponseWriter, r *http.Request, key string) string {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var body map[string]any
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&body); err != nil {
			return ""
		}
		switch v := body[key].(type) {
		case string:
			return strings.TrimSpace(v)
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		default:
			return ""
		}
	}
	return strings.TrimSpace(r.FormValue(key))
}

// stamp formats dt as "2006-01-02T15:04:05".
func stamp(dt calendar.DateTime) string {
	return fmt.Sprintf("%04d-%02d-%02dT%02d:%02d:%02d", dt.Year, dt.Month, dt.Day, dt.Hour, dt.Minute, dt.Second)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
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
		OK    bool   `json:"ok"`
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
