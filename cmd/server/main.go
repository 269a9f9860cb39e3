// cmd/server/main.go
package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/Corphon/NovelGenPage/internal/app"
	"github.com/Corphon/NovelGenPage/internal/config"
	"github.com/Corphon/NovelGenPage/internal/di"
	"github.com/Corphon/NovelGenPage/internal/services"
	"github.com/Corphon/NovelGenPage/internal/utils"
	"github.com/gin-gonic/gin"
)

func main() {
	log.Println("🚀 启动 NovelGenPage 服务器...")

	// 1. 首先加载基础配置
	baseConfig, err := config.Load()
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	log.Printf("✅ 基础配置加载完成，端口: %s", baseConfig.Port)

	if !baseConfig.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}

	// 2. 创建必要的目录
	createDirectories(baseConfig)
	log.Println("✅ 目录结构创建完成")

	// 3. 初始化配置、日志、服务与路由
	if err := app.Initialize(baseConfig.DataDir); err != nil {
		log.Fatalf("❌ 初始化应用失败: %v", err)
	}
	log.Printf("✅ 应用初始化完成，服务: %v", di.GetContainer().GetNames())

	// 4. 健康检查
	if err := performHealthCheck(); err != nil {
		log.Printf("⚠️ 服务健康检查警告: %v", err)
	}

	// 5. 启动服务器
	cfg := app.GetApp().GetConfig()
	log.Printf("🌐 服务器启动在端口 %s，Markdown引擎: %s", cfg.Port, cfg.MarkdownEngine)
	log.Printf("🔗 编辑通道: ws://localhost:%s/ws/editor/<id>", cfg.Port)

	if err := app.Run(); err != nil {
		log.Fatalf("❌ %v", err)
	}
	log.Println("✅ 服务器优雅关闭完成")
}

// performHealthCheck 检查关键服务并做一次转换自检
func performHealthCheck() error {
	container := di.GetContainer()
	for _, name := range []string{"scenario", "conversion", "upload", "metrics"} {
		if !container.Has(name) {
			return fmt.Errorf("关键服务未注册: %s", name)
		}
	}

	conversion, err := di.Resolve[*services.ConversionService](container, "conversion")
	if err != nil {
		return err
	}
	report := conversion.RoundTrip("# 自检\n\n### 選択肢\n\n- [次へ](scene:1)\n")
	if !report.FixedPoint {
		return fmt.Errorf("转换自检未达到不动点: %q", report.Source)
	}

	utils.GetLogger().Info("服务健康检查通过", map[string]interface{}{
		"engine": conversion.Renderer().EngineName(),
		"digest": utils.ShortDigest(report.Digest),
	})
	log.Println("✅ 服务健康检查通过")
	return nil
}

// createDirectories 创建应用所需的目录结构
func createDirectories(cfg *config.Config) {
	dirs := []string{
		cfg.DataDir,
		filepath.Join(cfg.DataDir, "scenarios"),
		cfg.StaticDir,
		cfg.UploadDir,
		cfg.LogDir,
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Fatalf("创建目录失败 %s: %v", dir, err)
		}
	}
}
