package services

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/Corphon/NovelGenPage/internal/config"
	"github.com/Corphon/NovelGenPage/internal/errors"
	"github.com/Corphon/NovelGenPage/internal/scenario"
	"github.com/Corphon/NovelGenPage/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

func TestEngineFor(t *testing.T) {
	assert.Nil(t, EngineFor(nil))
	assert.Nil(t, EngineFor(&config.AppConfig{MarkdownEngine: config.EngineNone}))
	assert.NotNil(t, EngineFor(&config.AppConfig{MarkdownEngine: config.EngineGoldmark}))
}

func TestConversionRecordsMetrics(t *testing.T) {
	metrics := utils.NewConversionMetricsWith(utils.NewMetricsCollector())
	s := NewConversionService(nil, metrics)

	blocks := s.Blocks(storyContent)
	require.NotEmpty(t, blocks)
	assert.Equal(t, scenario.BlockHeading, blocks[0].Kind)

	doc := s.Delta(storyContent)
	assert.Equal(t, storyContent, s.Source(doc))

	html := s.HTML("- [鍵を探す](scene:2)")
	assert.Contains(t, html, `data-scene-id="2"`)

	c := metrics.Collector()
	assert.EqualValues(t, 4, c.GetCounterValue("conversions_total"))
	assert.EqualValues(t, 1, c.GetCounterValue("conversions_html"))
	assert.EqualValues(t, 1, c.GetCounterValue("render_fallbacks_total"))
}

func TestConversionWithGoldmark(t *testing.T) {
	metrics := utils.NewConversionMetricsWith(utils.NewMetricsCollector())
	s := NewConversionService(EngineFor(&config.AppConfig{MarkdownEngine: config.EngineGoldmark, HardWraps: true}), metrics)

	assert.Equal(t, "goldmark", s.Renderer().EngineName())
	assert.Contains(t, s.HTML("[次へ](scene:42)"), `class="scene-link" data-scene-id="42">次へ</a>`)
	assert.Zero(t, metrics.Collector().GetCounterValue("render_fallbacks_total"))
}

func TestSetEngineSwapsRenderer(t *testing.T) {
	s := NewConversionService(nil, utils.NewConversionMetricsWith(utils.NewMetricsCollector()))
	assert.Equal(t, "fallback", s.Renderer().EngineName())
	assert.Nil(t, s.Engine())

	s.SetEngine(EngineFor(&config.AppConfig{MarkdownEngine: config.EngineGoldmark}))
	assert.Equal(t, "goldmark", s.Renderer().EngineName())
	assert.NotNil(t, s.Engine())
}

func TestRoundTripReport(t *testing.T) {
	s := NewConversionService(nil, utils.NewConversionMetricsWith(utils.NewMetricsCollector()))

	report := s.RoundTrip("* 一\n2. 二\n\n\n本文 **太字")
	assert.True(t, report.FixedPoint)
	assert.Equal(t, "- 一\n\n1. 二\n\n本文 **太字\n", report.Source)
	assert.Equal(t, utils.ContentDigest(report.Source), report.Digest)
}

func TestUploadImage(t *testing.T) {
	metrics := utils.NewConversionMetricsWith(utils.NewMetricsCollector())
	s, err := NewUploadService(t.TempDir(), "/static/uploads/", 1024, metrics)
	require.NoError(t, err)

	img, err := s.SaveImage(context.Background(), "地図.PNG", bytes.NewReader(pngHeader))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(img.URL, "/static/uploads/"))
	assert.True(t, strings.HasSuffix(img.Name, ".png"))
	assert.Equal(t, "image/png", img.ContentType)
	assert.EqualValues(t, len(pngHeader), img.Size)
	assert.EqualValues(t, 1, metrics.Collector().GetCounterValue("uploads_total"))
}

func TestUploadRejects(t *testing.T) {
	s, err := NewUploadService(t.TempDir(), "/static/uploads", 16, nil)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = s.SaveImage(ctx, "script.js", strings.NewReader("alert(1)"))
	assert.Equal(t, errors.ErrorTypeUnsupported, errors.TypeOf(err))

	_, err = s.SaveImage(ctx, "fake.png", strings.NewReader("not an image"))
	assert.Equal(t, errors.ErrorTypeUnsupported, errors.TypeOf(err))

	_, err = s.SaveImage(ctx, "big.png", bytes.NewReader(pngHeader))
	assert.Equal(t, errors.ErrorTypeTooLarge, errors.TypeOf(err))

	_, err = s.SaveImage(ctx, "empty.gif", strings.NewReader(""))
	assert.True(t, errors.IsValidationError(err))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = s.SaveImage(cancelled, "ok.gif", strings.NewReader("GIF89a"))
	assert.ErrorIs(t, err, context.Canceled)
}
