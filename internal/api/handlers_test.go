package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Corphon/NovelGenPage/internal/config"
	"github.com/Corphon/NovelGenPage/internal/services"
	"github.com/Corphon/NovelGenPage/internal/utils"
)

const storyContent = "# 古い書斎\n古い書斎からの脱出を目指す。\n\n## 入口\n扉は閉ざされている。\n\n### 選択肢\n\n- [鍵を探す](scene:2)\n- [窓を開ける](scene:3)\n"

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

type envelope struct {
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data"`
	Error     *APIError       `json:"error"`
	Message   string          `json:"message"`
	RequestID string          `json:"request_id"`
	URL       string          `json:"url"`
}

func newTestRouter(t *testing.T) (*gin.Engine, *Handler) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	root := t.TempDir()
	metrics := utils.NewConversionMetricsWith(utils.NewMetricsCollector())

	scenarios, err := services.NewScenarioService(filepath.Join(root, "data", "scenarios"))
	require.NoError(t, err)
	uploads, err := services.NewUploadService(filepath.Join(root, "static", "uploads"), "/static/uploads", 1024, metrics)
	require.NoError(t, err)

	h := NewHandler(scenarios, services.NewConversionService(nil, metrics), uploads)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	t.Cleanup(h.Editors.Manager().Shutdown)

	cfg := &config.AppConfig{
		StaticDir: filepath.Join(root, "static"),
		UploadDir: filepath.Join(root, "static", "uploads"),
	}
	return NewRouter(ctx, h, cfg), h
}

func doJSON(t *testing.T, r http.Handler, method, path string, body interface{}, headers ...string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	}
	return w, env
}

func decode(t *testing.T, raw json.RawMessage, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(raw, v), string(raw))
}

func TestConvertEndpoints(t *testing.T) {
	r, _ := newTestRouter(t)

	w, env := doJSON(t, r, http.MethodPost, "/api/convert/blocks", gin.H{"source": "### 選択肢\n- [次へ](scene:42)"})
	require.Equal(t, http.StatusOK, w.Code)
	var blocks struct {
		Blocks []struct {
			Kind   string `json:"kind"`
			Target *struct {
				ID string `json:"id"`
			} `json:"target"`
		} `json:"blocks"`
	}
	decode(t, env.Data, &blocks)
	require.Len(t, blocks.Blocks, 2)
	assert.Equal(t, "choice_item", blocks.Blocks[1].Kind)
	require.NotNil(t, blocks.Blocks[1].Target)
	assert.Equal(t, "42", blocks.Blocks[1].Target.ID)

	w, env = doJSON(t, r, http.MethodPost, "/api/convert/delta", gin.H{"source": "# 題\n"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), `"header":1`)

	ops := []gin.H{{"insert": "題"}, {"insert": "\n", "attributes": gin.H{"header": 1}}, {"insert": "本文\n"}}
	w, env = doJSON(t, r, http.MethodPost, "/api/convert/source", gin.H{"ops": ops})
	require.Equal(t, http.StatusOK, w.Code)
	var source struct {
		Source string `json:"source"`
	}
	decode(t, env.Data, &source)
	assert.Equal(t, "# 題\n本文\n", source.Source)

	w, env = doJSON(t, r, http.MethodPost, "/api/convert/html", gin.H{"source": "[次へ](scene:42)"})
	require.Equal(t, http.StatusOK, w.Code)
	var html struct {
		HTML   string `json:"html"`
		Engine string `json:"engine"`
	}
	decode(t, env.Data, &html)
	assert.Contains(t, html.HTML, `data-scene-id="42"`)
	assert.NotContains(t, html.HTML, `href="scene:42"`)
	assert.Equal(t, "fallback", html.Engine)

	w, env = doJSON(t, r, http.MethodPost, "/api/convert/roundtrip", gin.H{"source": "* 一"})
	require.Equal(t, http.StatusOK, w.Code)
	var report services.ConversionReport
	decode(t, env.Data, &report)
	assert.Equal(t, "- 一\n", report.Source)
	assert.True(t, report.FixedPoint)
}

func TestConvertSourceRejectsNonInserts(t *testing.T) {
	r, _ := newTestRouter(t)

	w, env := doJSON(t, r, http.MethodPost, "/api/convert/source", gin.H{"ops": []gin.H{{"retain": 3}}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, ErrorDocumentInvalid, env.Error.Code)

	w, env = doJSON(t, r, http.MethodPost, "/api/convert/source", gin.H{"ops": []gin.H{{"attributes": gin.H{}}}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, env.Success)
}

func TestScenarioLifecycle(t *testing.T) {
	r, _ := newTestRouter(t)

	w, env := doJSON(t, r, http.MethodPost, "/api/v1/scenarios", gin.H{"content": storyContent})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var saved struct {
		ID          string `json:"id"`
		Title       string `json:"title"`
		Description string `json:"description"`
		Digest      string `json:"digest"`
		ChoiceCount int    `json:"choice_count"`
	}
	decode(t, env.Data, &saved)
	require.NotEmpty(t, saved.ID)
	assert.Equal(t, "古い書斎", saved.Title)
	assert.Equal(t, "# 古い書斎\n古い書斎からの脱出を目指す。\n", saved.Description)
	assert.Equal(t, 2, saved.ChoiceCount)
	assert.Equal(t, `"`+saved.Digest+`"`, w.Header().Get("ETag"))

	w, env = doJSON(t, r, http.MethodGet, "/api/v1/scenarios/"+saved.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got struct {
		Scenario struct {
			Content string `json:"content"`
		} `json:"scenario"`
		HTML string `json:"html"`
	}
	decode(t, env.Data, &got)
	assert.Equal(t, storyContent, got.Scenario.Content)
	assert.Contains(t, got.HTML, `class="scene-link" data-scene-id="2">鍵を探す</a>`)

	stale := strings.Repeat("0", 64)
	w, env = doJSON(t, r, http.MethodPost, "/api/v1/scenarios",
		gin.H{"id": saved.ID, "content": "# 別\n"}, "If-Match", `"`+stale+`"`)
	assert.Equal(t, http.StatusConflict, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, ErrorScenarioConflict, env.Error.Code)

	w, _ = doJSON(t, r, http.MethodPost, "/api/v1/scenarios",
		gin.H{"id": saved.ID, "content": "# 別\n", "base_digest": saved.Digest})
	assert.Equal(t, http.StatusOK, w.Code)

	w, env = doJSON(t, r, http.MethodGet, "/api/v1/scenarios", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Scenarios []struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"scenarios"`
		Total int `json:"total"`
	}
	decode(t, env.Data, &list)
	require.Equal(t, 1, list.Total)
	assert.Equal(t, "別", list.Scenarios[0].Title)

	w, _ = doJSON(t, r, http.MethodDelete, "/api/v1/scenarios/"+saved.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, env = doJSON(t, r, http.MethodGet, "/api/v1/scenarios/"+saved.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, ErrorScenarioNotFound, env.Error.Code)
}

func TestScenarioValidationErrors(t *testing.T) {
	r, _ := newTestRouter(t)

	w, env := doJSON(t, r, http.MethodPost, "/api/v1/scenarios", gin.H{"content": ""})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, ErrorScenarioInvalid, env.Error.Code)

	w, _ = doJSON(t, r, http.MethodGet, "/api/v1/scenarios/bad.id", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = doJSON(t, r, http.MethodDelete, "/api/v1/scenarios/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func multipartRequest(t *testing.T, field, filename string, data []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUploadImage(t *testing.T) {
	r, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, multipartRequest(t, "image", "map.png", pngHeader))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.True(t, env.Success)
	assert.True(t, strings.HasPrefix(env.URL, "/static/uploads/"))
	assert.True(t, strings.HasSuffix(env.URL, ".png"))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, env.URL, nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, pngHeader, w.Body.Bytes())
}

func TestUploadImageRejects(t *testing.T) {
	r, _ := newTestRouter(t)

	cases := []struct {
		name     string
		field    string
		filename string
		data     []byte
		status   int
		code     string
	}{
		{"missing field", "file", "a.png", pngHeader, http.StatusBadRequest, ErrorFileInvalid},
		{"script", "image", "a.js", []byte("alert(1)"), http.StatusUnsupportedMediaType, ErrorFileInvalid},
		{"fake png", "image", "a.png", []byte("not an image"), http.StatusUnsupportedMediaType, ErrorFileInvalid},
		{"too large", "image", "a.png", append(append([]byte{}, pngHeader...), make([]byte, 2048)...), http.StatusRequestEntityTooLarge, ErrorFileTooLarge},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r.ServeHTTP(w, multipartRequest(t, tc.field, tc.filename, tc.data))
			assert.Equal(t, tc.status, w.Code, w.Body.String())

			var env envelope
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
			assert.False(t, env.Success)
			require.NotNil(t, env.Error)
			assert.Equal(t, tc.code, env.Error.Code)
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	r, _ := newTestRouter(t)

	doJSON(t, r, http.MethodPost, "/api/convert/html", gin.H{"source": "本文"})
	w, env := doJSON(t, r, http.MethodGet, "/api/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Engine  string `json:"engine"`
		Metrics struct {
			Counters map[string]int64 `json:"counters"`
		} `json:"metrics"`
		WebSocket map[string]int64 `json:"websocket"`
	}
	decode(t, env.Data, &body)
	assert.Equal(t, "fallback", body.Engine)
	assert.EqualValues(t, 1, body.Metrics.Counters["conversions_html"])
	assert.EqualValues(t, 1, body.Metrics.Counters["render_fallbacks_total"])
	assert.EqualValues(t, 1, body.Metrics.Counters["api_requests_total"])
	assert.Zero(t, body.WebSocket["active_connections"])
}

func TestSettingsEndpoints(t *testing.T) {
	root := t.TempDir()
	t.Setenv("DATA_DIR", filepath.Join(root, "data"))
	t.Setenv("STATIC_DIR", filepath.Join(root, "static"))
	t.Setenv("UPLOAD_DIR", "")
	t.Setenv("LOG_DIR", filepath.Join(root, "logs"))
	t.Setenv("MARKDOWN_ENGINE", "goldmark")
	require.NoError(t, config.InitConfig(filepath.Join(root, "data")))

	r, h := newTestRouter(t)

	w, env := doJSON(t, r, http.MethodGet, "/api/settings", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), `"markdown_engine":"goldmark"`)

	w, env = doJSON(t, r, http.MethodPut, "/api/settings", gin.H{"markdown_engine": "goldmark", "hard_wraps": false})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, string(env.Data), `"engine":"goldmark"`)
	assert.Equal(t, "goldmark", h.ConversionService.Renderer().EngineName())
	assert.False(t, config.GetCurrentConfig().HardWraps)

	w, _ = doJSON(t, r, http.MethodPut, "/api/settings", gin.H{"markdown_engine": "none"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "fallback", h.ConversionService.Renderer().EngineName())

	w, env = doJSON(t, r, http.MethodPut, "/api/settings", gin.H{"markdown_engine": "pandoc"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, ErrorSettingsInvalid, env.Error.Code)
}

func TestRequestIDMiddleware(t *testing.T) {
	r, _ := newTestRouter(t)

	w, env := doJSON(t, r, http.MethodGet, "/api/v1/scenarios", nil)
	id := w.Header().Get(requestIDHeader)
	assert.NotEmpty(t, id)
	assert.Equal(t, id, env.RequestID)

	w, env = doJSON(t, r, http.MethodGet, "/api/v1/scenarios", nil, requestIDHeader, "trace-1")
	assert.Equal(t, "trace-1", w.Header().Get(requestIDHeader))
	assert.Equal(t, "trace-1", env.RequestID)
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter()
	now := time.Unix(1000, 0)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("a", 2, time.Minute))
	assert.True(t, rl.Allow("a", 2, time.Minute))
	assert.False(t, rl.Allow("a", 2, time.Minute))
	assert.True(t, rl.Allow("b", 2, time.Minute))

	limit, remaining, reset := rl.GetRateLimitHeaders("a", 2, time.Minute)
	assert.Equal(t, 2, limit)
	assert.Equal(t, 0, remaining)
	assert.Equal(t, now.Add(time.Minute).Unix(), reset)

	now = now.Add(2 * time.Minute)
	assert.Equal(t, 2, rl.cleanup())
	assert.True(t, rl.Allow("a", 2, time.Minute))
}

func TestRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RateLimitByIP(NewRateLimiter(), 1, time.Minute))
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), ErrorRateLimitExceeded)
}

func TestSanitizeErrorMessage(t *testing.T) {
	assert.Equal(t, "open <path> failed", sanitizeErrorMessage("open /var/lib/data/x.json failed"))
	assert.Equal(t, "An internal error occurred", sanitizeErrorMessage("bad api_key"))
	assert.Equal(t, "剧本不存在", sanitizeErrorMessage("剧本不存在"))
}
