package api

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"hash/crc32"
	"image"
	"image/color"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperr "github.com/youruser/avatarframe/internal/errors"
	"github.com/youruser/avatarframe/internal/eventlog"
	imagepkg "github.com/youruser/avatarframe/internal/image"
	"github.com/youruser/avatarframe/internal/logging"
	"github.com/youruser/avatarframe/internal/render"
	"github.com/youruser/avatarframe/internal/stats"
	"github.com/youruser/avatarframe/internal/templates"
)

type testEnv struct {
	engine   *gin.Engine
	eventLog string
	chart    string
}

func newTestEnv(t *testing.T, invite string) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	dir := t.TempDir()

	require.NoError(t, imaging.Save(imaging.New(40, 40, color.NRGBA{B: 255, A: 255}), filepath.Join(dir, "round.png")))
	require.NoError(t, imaging.Save(imaging.New(4, 4, color.NRGBA{R: 255, G: 255, B: 255, A: 255}), filepath.Join(dir, "round_mask.png")))
	require.NoError(t, imaging.Save(imaging.New(64, 32, color.NRGBA{G: 255, A: 255}), filepath.Join(dir, "wide.png")))
	require.NoError(t, imaging.Save(imaging.New(8, 4, color.NRGBA{R: 255, G: 255, B: 255, A: 255}), filepath.Join(dir, "wide_mask.png")))
	catalogPath := filepath.Join(dir, "templates.json")
	require.NoError(t, os.WriteFile(catalogPath, []byte(`[
	  {"source_photo_size": [10, 10], "source_photo_position": [2, 2], "templat_addr": "round.png", "mask_addr": "round_mask.png"},
	  {"source_photo_size": [30, 20], "source_photo_position": [4, 4], "templat_addr": "wide.png", "mask_addr": "wide_mask.png"}
	]`), 0o644))
	catalog, err := templates.Load(catalogPath, dir)
	require.NoError(t, err)

	logger := logging.Discard()
	env := &testEnv{
		eventLog: filepath.Join(dir, "events.log"),
		chart:    filepath.Join(dir, "out", "chart.png"),
	}
	renderer := render.New(catalog, imagepkg.NewHTTPFetcher(5*time.Second), render.WithWorkers(2))
	events := eventlog.NewWriter(env.eventLog, logger)
	reporter := stats.NewReporter(env.eventLog, stats.NewChartWriter(env.chart))
	env.engine = NewEngine(NewHandlers(renderer, events, reporter, invite, logger))
	return env
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)
	return w
}

func pngOf(t *testing.T, w, h int, c color.NRGBA) []byte {
	t.Helper()
	b, err := imagepkg.EncodePNG(imaging.New(w, h, c))
	require.NoError(t, err)
	return b
}

type composeResponse struct {
	Images []composedImage `json:"images"`
	Code   string          `json:"code"`
}

func decodeImage(t *testing.T, s string) image.Image {
	t.Helper()
	b, err := base64.StdEncoding.DecodeString(s)
	require.NoError(t, err)
	img, err := imagepkg.DecodeBytes(b)
	require.NoError(t, err)
	return img
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, "")
	w := env.do(httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","templates":2}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))
}

func TestComposeFromURLs(t *testing.T) {
	small := pngOf(t, 12, 12, color.NRGBA{R: 255, A: 255})
	large := pngOf(t, 50, 50, color.NRGBA{R: 255, A: 255})
	src := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/small.png" {
			_, _ = w.Write(small)
			return
		}
		_, _ = w.Write(large)
	}))
	defer src.Close()

	env := newTestEnv(t, "")
	body := `{"subject":"1001","candidates":[
	  {"width":12,"height":12,"url":"` + src.URL + `/small.png"},
	  {"width":50,"height":50,"url":"` + src.URL + `/large.png"}]}`
	w := env.do(httptest.NewRequest(http.MethodPost, "/api/compose", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp composeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Images, 2)
	assert.Equal(t, "round", resp.Images[0].Template)
	assert.Equal(t, "wide", resp.Images[1].Template)

	first := decodeImage(t, resp.Images[0].PNG)
	assert.Equal(t, image.Rect(0, 0, 40, 40), first.Bounds())
	r, _, b, _ := first.At(2, 2).RGBA()
	assert.Equal(t, uint32(0xffff), r)
	assert.Equal(t, uint32(0), b)

	second := decodeImage(t, resp.Images[1].PNG)
	assert.Equal(t, image.Rect(0, 0, 64, 32), second.Bounds())

	logged, err := os.ReadFile(env.eventLog)
	require.NoError(t, err)
	assert.Contains(t, string(logged), "\t1001\tuse_url_photo\n")
	assert.Contains(t, string(logged), "\t1001\tsend_photo round\n")
	assert.Contains(t, string(logged), "\t1001\tsend_photo wide\n")
}

func TestComposeErrors(t *testing.T) {
	env := newTestEnv(t, "")
	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"malformed json", `{"candidates":`, http.StatusBadRequest, "INVALID_INPUT"},
		{"no candidates", `{"subject":"5","candidates":[]}`, http.StatusBadRequest, "NO_CANDIDATE"},
		{"bad scheme", `{"candidates":[{"width":9,"height":9,"url":"ftp://x/y.png"}]}`, http.StatusBadRequest, "INVALID_INPUT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(httptest.NewRequest(http.MethodPost, "/api/compose", strings.NewReader(tt.body)))
			assert.Equal(t, tt.status, w.Code)
			var resp composeResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.code, resp.Code)
			assert.Empty(t, resp.Images)
		})
	}
}

func uploadRequest(t *testing.T, data []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("subject", "77"))
	part, err := mw.CreateFormFile("photo", "me.png")
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/compose/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestComposeUpload(t *testing.T) {
	env := newTestEnv(t, "")
	w := env.do(uploadRequest(t, pngOf(t, 16, 16, color.NRGBA{R: 255, A: 255})))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp composeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Images, 2)
	assert.Equal(t, "match", resp.Images[0].Outcome)
	assert.Equal(t, "fallback", resp.Images[1].Outcome)
}

func TestComposeUploadCorrupt(t *testing.T) {
	env := newTestEnv(t, "")
	w := env.do(uploadRequest(t, []byte("definitely not a png")))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), `"DECODE"`)
}

// hugePNG patches the IHDR of a real 1x1 PNG to declare w x h pixels.
func hugePNG(t *testing.T, w, h uint32) []byte {
	t.Helper()
	b := pngOf(t, 1, 1, color.NRGBA{A: 255})
	// signature(8) length(4) "IHDR"(4) width(4) height(4) ... crc after 13 data bytes
	binary.BigEndian.PutUint32(b[16:20], w)
	binary.BigEndian.PutUint32(b[20:24], h)
	binary.BigEndian.PutUint32(b[29:33], crc32.ChecksumIEEE(b[12:29]))
	return b
}

func TestComposeUploadOversizedDimensions(t *testing.T) {
	env := newTestEnv(t, "")
	w := env.do(uploadRequest(t, hugePNG(t, 65000, 65000)))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), `"DECODE"`)
}

func TestComposeOversizedDownload(t *testing.T) {
	huge := hugePNG(t, 65000, 65000)
	src := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(huge)
	}))
	defer src.Close()

	env := newTestEnv(t, "")
	body := `{"candidates":[{"width":64,"height":64,"url":"` + src.URL + `/big.png"}]}`
	w := env.do(httptest.NewRequest(http.MethodPost, "/api/compose", strings.NewReader(body)))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), `"DECODE"`)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		code apperr.Code
		want int
	}{
		{apperr.ErrCodeNoCandidate, http.StatusBadRequest},
		{apperr.ErrCodeInvalidInput, http.StatusBadRequest},
		{apperr.ErrCodeDecode, http.StatusUnprocessableEntity},
		{apperr.ErrCodeResize, http.StatusUnprocessableEntity},
		{apperr.ErrCodeFetch, http.StatusBadGateway},
		{apperr.ErrCodeTimeout, http.StatusGatewayTimeout},
		{apperr.ErrCodeIO, http.StatusInternalServerError},
		{apperr.ErrCodeInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.code))
		})
	}
}

func TestStats(t *testing.T) {
	env := newTestEnv(t, "")
	require.NoError(t, os.WriteFile(env.eventLog, []byte(
		"2024-01-02 10:00:00.000000\tu1\tstart\n"+
			"2024-01-01 11:00:00.000000\tu2\tstart\n"+
			"broken\n"), 0o644))

	w := env.do(httptest.NewRequest(http.MethodGet, "/api/stats?order=calendar", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var agg stats.Aggregate
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &agg))
	// the request itself is recorded before the scan, under subject "-"
	assert.Equal(t, 3, agg.Total)
	require.Len(t, agg.Days, 3)
	assert.Equal(t, "2024-01-01", agg.Days[0].Date)
	assert.Equal(t, 1, agg.Skipped)

	w = env.do(httptest.NewRequest(http.MethodGet, "/api/stats?format=text", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Body.String(), "Server Date\tChats\n2024-01-02\t1"))
}

func TestStatsChart(t *testing.T) {
	env := newTestEnv(t, "")
	w := env.do(httptest.NewRequest(http.MethodGet, "/api/stats/chart", nil))
	require.Equal(t, http.StatusOK, w.Code)
	img, err := imagepkg.DecodeBytes(w.Body.Bytes())
	require.NoError(t, err)
	assert.Equal(t, 800, img.Bounds().Dx())
	assert.FileExists(t, env.chart)
}

func TestInvite(t *testing.T) {
	w := newTestEnv(t, "").do(httptest.NewRequest(http.MethodGet, "/api/invite", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = newTestEnv(t, "https://t.me/frame_bot").do(httptest.NewRequest(http.MethodGet, "/api/invite?size=128", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	img, err := imagepkg.DecodeBytes(w.Body.Bytes())
	require.NoError(t, err)
	assert.Equal(t, 128, img.Bounds().Dx())
}
