// internal/app/app.go
package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/Corphon/NovelGenPage/internal/api"
	"github.com/Corphon/NovelGenPage/internal/config"
	"github.com/Corphon/NovelGenPage/internal/di"
	"github.com/Corphon/NovelGenPage/internal/services"
	"github.com/Corphon/NovelGenPage/internal/utils"
)

// httpServer 便于测试替换
type httpServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// App 应用实例
type App struct {
	config   *config.AppConfig
	router   http.Handler
	handler  *api.Handler
	server   httpServer
	stopChan chan os.Signal
	ctx      context.Context
	cancel   context.CancelFunc
}

var (
	instance   *App
	instanceMu sync.Mutex
)

// GetApp 获取应用单例
func GetApp() *App {
	instanceMu.Lock()
	defer instanceMu.Unlock()

	if instance == nil {
		ctx, cancel := context.WithCancel(context.Background())
		instance = &App{
			stopChan: make(chan os.Signal, 1),
			ctx:      ctx,
			cancel:   cancel,
		}
	}
	return instance
}

// Initialize 初始化配置、日志、服务与路由
func Initialize(dataDir string) error {
	if err := config.InitConfig(dataDir); err != nil {
		return fmt.Errorf("初始化配置失败: %w", err)
	}

	app := GetApp()
	app.config = config.GetCurrentConfig()

	if err := initLogger(app.config.LogDir); err != nil {
		return fmt.Errorf("初始化日志系统失败: %w", err)
	}
	if err := InitServices(); err != nil {
		return fmt.Errorf("初始化服务失败: %w", err)
	}

	router, handler, err := api.SetupRouter(app.context())
	if err != nil {
		return fmt.Errorf("设置路由失败: %w", err)
	}
	app.router = router
	app.handler = handler
	return nil
}

// initLogger 日志写入 logDir 下按日期命名的文件
func initLogger(logDir string) error {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return fmt.Errorf("创建日志目录失败: %w", err)
	}
	logFile := filepath.Join(logDir, fmt.Sprintf("app_%s.log", time.Now().Format("2006-01-02")))
	return utils.InitLogger(logFile)
}

// InitServices 按依赖顺序创建服务并注册到容器
func InitServices() error {
	cfg := config.GetCurrentConfig()
	container := di.GetContainer()

	metrics := utils.NewConversionMetrics()
	container.Register("metrics", metrics)

	conversionService := services.NewConversionService(services.EngineFor(cfg), metrics)
	container.Register("conversion", conversionService)

	scenarioService, err := services.NewScenarioService(filepath.Join(cfg.DataDir, "scenarios"))
	if err != nil {
		return fmt.Errorf("创建剧本服务失败: %w", err)
	}
	container.Register("scenario", scenarioService)

	uploadService, err := services.NewUploadService(cfg.UploadDir, cfg.UploadURLPrefix(), cfg.MaxUploadMB<<20, metrics)
	if err != nil {
		return fmt.Errorf("创建上传服务失败: %w", err)
	}
	container.Register("upload", uploadService)

	utils.GetLogger().Info("服务初始化完成", map[string]interface{}{
		"engine":   conversionService.Renderer().EngineName(),
		"services": len(container.GetNames()),
	})
	return nil
}

// Run 启动HTTP服务并在收到停止信号后优雅关闭
func Run() error {
	app := GetApp()
	if app.server == nil {
		if app.router == nil || app.config == nil {
			return fmt.Errorf("应用尚未初始化")
		}
		app.server = &http.Server{
			Addr:              ":" + app.config.Port,
			Handler:           app.router,
			ReadHeaderTimeout: 10 * time.Second,
		}
	}

	ctx := app.context()
	if sc, ok := di.GetContainer().Get("scenario").(*services.ScenarioService); ok {
		sc.StartMaintenance(ctx)
	}
	if m, ok := di.GetContainer().Get("metrics").(*utils.ConversionMetrics); ok {
		m.StartReporting(ctx, 5*time.Minute)
	}

	signal.Notify(app.stopChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(app.stopChan)

	errCh := make(chan error, 1)
	go func() {
		if err := app.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-app.stopChan:
	case err := <-errCh:
		app.cleanup()
		return fmt.Errorf("启动服务器失败: %w", err)
	}

	utils.GetLogger().Info("正在关闭服务器", nil)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	err := app.server.Shutdown(shutdownCtx)
	app.cleanup()
	if err != nil {
		return fmt.Errorf("服务器强制关闭: %w", err)
	}
	return nil
}

func (a *App) context() context.Context {
	if a.ctx == nil {
		a.ctx, a.cancel = context.WithCancel(context.Background())
	}
	return a.ctx
}

// cleanup 停止后台任务并断开编辑器连接
func (a *App) cleanup() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.handler != nil {
		a.handler.Editors.Manager().Shutdown()
	}
	if m, ok := di.GetContainer().Get("metrics").(*utils.ConversionMetrics); ok {
		utils.GetLogger().Info("最终指标", m.Collector().GetMetrics())
	}
}

// GetConfig 获取应用配置
func (a *App) GetConfig() *config.AppConfig {
	return a.config
}

// Handler 获取HTTP处理器
func (a *App) Handler() http.Handler {
	return a.router
}

// GetDIContainer 获取依赖注入容器
func GetDIContainer() *di.Container {
	return di.GetContainer()
}

// IsDebugMode 是否为调试模式
func IsDebugMode() bool {
	instanceMu.Lock()
	defer instanceMu.Unlock()
	return instance != nil && instance.config != nil && instance.config.DebugMode
}
