// internal/api/router.go
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Corphon/NovelGenPage/internal/config"
	"github.com/Corphon/NovelGenPage/internal/di"
	"github.com/Corphon/NovelGenPage/internal/services"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// SetupRouter 从依赖注入容器取服务并配置HTTP路由
func SetupRouter(ctx context.Context) (*gin.Engine, *Handler, error) {
	container := di.GetContainer()

	scenarioService, err := di.Resolve[*services.ScenarioService](container, "scenario")
	if err != nil {
		return nil, nil, fmt.Errorf("剧本服务未正确初始化: %w", err)
	}
	conversionService, err := di.Resolve[*services.ConversionService](container, "conversion")
	if err != nil {
		return nil, nil, fmt.Errorf("转换服务未正确初始化: %w", err)
	}
	uploadService, err := di.Resolve[*services.UploadService](container, "upload")
	if err != nil {
		return nil, nil, fmt.Errorf("上传服务未正确初始化: %w", err)
	}

	handler := NewHandler(scenarioService, conversionService, uploadService)
	return NewRouter(ctx, handler, config.GetCurrentConfig()), handler, nil
}

// NewRouter 配置路由与中间件
func NewRouter(ctx context.Context, handler *Handler, cfg *config.AppConfig) *gin.Engine {
	limiter := NewRateLimiter()
	limiter.StartCleanup(ctx, 10*time.Minute)

	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.DebugMode {
		r.Use(gin.Logger())
	}
	r.Use(RequestIDMiddleware())
	r.Use(MetricsMiddleware(handler.ConversionService.Metrics()))
	r.Use(cors.New(cors.Config{
		AllowAllOrigins:  true,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "If-Match", requestIDHeader},
		ExposeHeaders:    []string{"ETag", requestIDHeader, "X-RateLimit-Remaining"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	// 静态文件服务，上传的图片位于其下
	if cfg.StaticDir != "" {
		r.Static("/static", cfg.StaticDir)
	}
	if cfg.UploadDir != "" && cfg.UploadURLPrefix() == "/uploads" {
		r.Static("/uploads", cfg.UploadDir)
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "engine": handler.ConversionService.Renderer().EngineName()})
	})

	// WebSocket 实时编辑
	r.GET("/ws/editor/:id", handler.EditorWebSocket)

	// ===============================
	// API路由组
	// ===============================
	api := r.Group("/api")
	api.Use(DefaultRateLimit(limiter))
	{
		convert := api.Group("/convert")
		{
			convert.POST("/blocks", handler.ConvertBlocks)
			convert.POST("/delta", handler.ConvertDelta)
			convert.POST("/source", handler.ConvertSource)
			convert.POST("/html", handler.ConvertHTML)
			convert.POST("/roundtrip", handler.ConvertRoundTrip)
		}

		scenarios := api.Group("/v1/scenarios")
		{
			scenarios.GET("", handler.ListScenarios)
			scenarios.POST("", handler.SaveScenario)
			scenarios.GET("/:id", handler.GetScenario)
			scenarios.DELETE("/:id", handler.DeleteScenario)
		}

		settings := api.Group("/settings")
		{
			settings.GET("", handler.GetSettings)
			settings.PUT("", handler.UpdateSettings)
		}

		api.POST("/upload", UploadRateLimit(limiter), handler.UploadImage)
		api.GET("/metrics", handler.GetMetrics)
	}

	return r
}
