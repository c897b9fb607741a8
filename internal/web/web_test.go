package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"speakclock/internal/announce"
	"speakclock/internal/battery"
	"speakclock/internal/calendar"
	"speakclock/internal/config"
	"speakclock/internal/localize"
	"speakclock/internal/model"
	"speakclock/internal/speech"
)

type fakeClock struct {
	mu sync.Mutex
	dt calendar.DateTime
}

func (f *fakeClock) Read(context.Context) (calendar.DateTime, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dt, nil
}

func (f *fakeClock) Set(_ context.Context, dt calendar.DateTime) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dt = dt
	return nil
}

type memSettings struct {
	lang model.Language
}

func (m *memSettings) Language() model.Language { return m.lang }

func (m *memSettings) SetLanguage(l model.Language) error {
	m.lang = l
	return nil
}

func (m *memSettings) LastAnnounce() (int64, bool) { return 0, false }

func (m *memSettings) SaveLastAnnounce(int64) error { return nil }

type nopPlaylistPlayer struct {
	played []model.Playlist
}

func (n *nopPlaylistPlayer) Play(_ context.Context, p model.Playlist) error {
	n.played = append(n.played, p)
	return nil
}

type countingBattery struct {
	reads int
}

func (c *countingBattery) Read(context.Context) (battery.Status, error) {
	c.reads++
	return battery.Status{Volts: 3.9, ADCVolts: 2.32, Percent: 67, Calibrated: true}, nil
}

func (c *countingBattery) ReadADC(context.Context) (float64, error) { return 2.32, nil }

type fixture struct {
	srv      *Server
	clock    *fakeClock
	settings *memSettings
	out      *nopPlaylistPlayer
	bat      *countingBattery
}

func newFixture(t *testing.T, rule localize.Rule) *fixture {
	t.Helper()
	l, err := localize.New(rule)
	require.NoError(t, err)

	f := &fixture{
		clock:    &fakeClock{dt: calendar.New(2026, 1, 29, 12, 58, 0)},
		settings: &memSettings{lang: model.German},
		out:      &nopPlaylistPlayer{},
		bat:      &countingBattery{},
	}
	svc := announce.NewService(f.clock, l, speech.NewCompiler(speech.DefaultCatalog()), f.out, f.settings, announce.Options{})
	f.srv = NewServer(config.DefaultConfig(), svc, f.settings, f.bat)
	return f
}

func utcRule() localize.Rule {
	return localize.Rule{SourceIsUTC: true, ManualOffsetMinutes: 60, DSTEnabled: true}
}

func do(t *testing.T, h http.Handler, req *http.Request) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var body map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func form(method, target string, vals url.Values) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(vals.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestHealth(t *testing.T) {
	f := newFixture(t, utcRule())
	rec, _ := do(t, f.srv.Handler(), httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "OK", rec.Body.String())
}

func TestTimeGet(t *testing.T) {
	f := newFixture(t, utcRule())
	rec, body := do(t, f.srv.Handler(), httptest.NewRequest(http.MethodGet, "/api/time", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, true, body["ok"])
	require.Equal(t, "2026-01-29T12:58:00", body["rtc"])
	require.Equal(t, "2026-01-29T13:58:00", body["local"])
	require.EqualValues(t, calendar.EpochSecondsUTC(f.clock.dt), body["epoch_utc"])
	require.Equal(t, false, body["in_dst"])
	dstWin := body["dst"].(map[string]any)
	require.Equal(t, "2026-03-29T01:00:00Z", dstWin["start"])
	require.Equal(t, "2026-10-25T01:00:00Z", dstWin["end"])
}

func TestTimeGetLocalRTC(t *testing.T) {
	f := newFixture(t, localize.Rule{SourceIsUTC: false, ManualOffsetMinutes: 60, DSTEnabled: true})
	f.clock.dt = calendar.New(2026, 7, 1, 14, 0, 0) // CET standard time
	_, body := do(t, f.srv.Handler(), httptest.NewRequest(http.MethodGet, "/api/time", nil))
	require.EqualValues(t, calendar.EpochSecondsUTC(calendar.New(2026, 7, 1, 13, 0, 0)), body["epoch_utc"])
	require.Equal(t, "2026-07-01T15:00:00", body["local"])
	require.Equal(t, true, body["in_dst"])
}

func TestTimeSet(t *testing.T) {
	f := newFixture(t, utcRule())
	want := calendar.New(2026, 10, 16, 9, 30, 15)
	ms := calendar.EpochSecondsUTC(want)*1000 + 999

	rec, body := do(t, f.srv.Handler(), form(http.MethodPost, "/api/time", url.Values{"epoch_ms": {itoa(ms)}}))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, true, body["ok"])
	require.Equal(t, want, f.clock.dt)

	req := httptest.NewRequest(http.MethodPost, "/api/time", strings.NewReader(`{"epoch_ms": 0}`))
	req.Header.Set("Content-Type", "application/json")
	rec, _ = do(t, f.srv.Handler(), req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, calendar.New(1970, 1, 1, 0, 0, 0), f.clock.dt)

	rec, body = do(t, f.srv.Handler(), form(http.MethodPost, "/api/time", url.Values{}))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "missing_params", body["error"])

	rec, _ = do(t, f.srv.Handler(), form(http.MethodPost, "/api/time", url.Values{"epoch_ms": {"soon"}}))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTimeSetLocalRTC(t *testing.T) {
	f := newFixture(t, localize.Rule{SourceIsUTC: false, ManualOffsetMinutes: 60, DSTEnabled: true})
	ms := calendar.EpochSecondsUTC(calendar.New(2026, 7, 1, 12, 0, 0)) * 1000
	rec, _ := do(t, f.srv.Handler(), form(http.MethodPost, "/api/time", url.Values{"epoch_ms": {itoa(ms)}}))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, calendar.New(2026, 7, 1, 13, 0, 0), f.clock.dt)
}

func TestLanguage(t *testing.T) {
	f := newFixture(t, utcRule())
	h := f.srv.Handler()

	_, body := do(t, h, httptest.NewRequest(http.MethodGet, "/api/language", nil))
	require.Equal(t, "DE", body["lang"])

	rec, body := do(t, h, form(http.MethodPost, "/api/language", url.Values{"lang": {"en"}}))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "EN", body["lang"])
	require.Equal(t, model.English, f.settings.lang)

	rec, body = do(t, h, form(http.MethodPost, "/api/language", url.Values{"lang": {"fr"}}))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "invalid_lang", body["error"])

	rec, body = do(t, h, form(http.MethodPost, "/api/language", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "missing_lang", body["error"])
}

func TestBatteryCache(t *testing.T) {
	f := newFixture(t, utcRule())
	now := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	f.srv.now = func() time.Time { return now }
	h := f.srv.Handler()

	_, body := do(t, h, httptest.NewRequest(http.MethodGet, "/api/battery", nil))
	require.Equal(t, 3.9, body["volts"])
	require.EqualValues(t, 67, body["percent"])

	now = now.Add(10 * time.Second)
	do(t, h, httptest.NewRequest(http.MethodGet, "/api/battery", nil))
	require.Equal(t, 1, f.bat.reads)

	now = now.Add(30 * time.Second)
	do(t, h, httptest.NewRequest(http.MethodGet, "/api/battery", nil))
	require.Equal(t, 2, f.bat.reads)
}

func TestSpeak(t *testing.T) {
	f := newFixture(t, utcRule())
	rec, body := do(t, f.srv.Handler(), httptest.NewRequest(http.MethodPost, "/api/speak?kind=time", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []any{"/mp3/13_Uhr.mp3", "/mp3/58.mp3"}, body["clips"])
	require.Len(t, f.out.played, 1)

	rec, _ = do(t, f.srv.Handler(), httptest.NewRequest(http.MethodPost, "/api/speak?kind=year", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, f.srv.Handler(), httptest.NewRequest(http.MethodGet, "/api/speak", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPlaylist(t *testing.T) {
	f := newFixture(t, utcRule())
	rec, body := do(t, f.srv.Handler(), httptest.NewRequest(http.MethodGet, "/api/playlist?kind=date&lang=en", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "EN", body["lang"])
	require.Equal(t, "date", body["kind"])
	require.Equal(t, []any{"/mp3_en/04d.mp3", "/mp3_en/01mo.mp3", "/mp3_en/29_.mp3", "/mp3_en/20.mp3", "/mp3_en/26.mp3"}, body["clips"])
	require.EqualValues(t, 0, body["pause_after"])
	require.Empty(t, f.out.played)

	rec, _ = do(t, f.srv.Handler(), httptest.NewRequest(http.MethodGet, "/api/playlist?lang=xx", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStaticAndUnknownAPI(t *testing.T) {
	f := newFixture(t, utcRule())
	rec, _ := do(t, f.srv.Handler(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "Speaking Clock")

	rec, _ = do(t, f.srv.Handler(), httptest.NewRequest(http.MethodGet, "/api/nope", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBasicAuth(t *testing.T) {
	f := newFixture(t, utcRule())
	f.srv.cfg.BasicAuth = &config.BasicAuthConfig{Username: "admin", Password: "secret"}
	h := f.srv.Handler()

	rec, _ := do(t, h, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = do(t, h, httptest.NewRequest(http.MethodGet, "/api/language", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, rec.Header().Get("WWW-Authenticate"), "Basic")

	req := httptest.NewRequest(http.MethodGet, "/api/language", nil)
	req.SetBasicAuth("admin", "secret")
	rec, _ = do(t, h, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
