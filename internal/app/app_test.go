package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/Corphon/NovelGenPage/internal/config"
	"github.com/Corphon/NovelGenPage/internal/di"
	"github.com/gin-gonic/gin"
)

// 测试前重置全局应用实例，并把目录指向临时目录
func setupTest(t *testing.T) string {
	t.Helper()
	gin.SetMode(gin.TestMode)

	tempDir := t.TempDir()
	t.Setenv("DATA_DIR", filepath.Join(tempDir, "data"))
	t.Setenv("STATIC_DIR", filepath.Join(tempDir, "static"))
	t.Setenv("UPLOAD_DIR", "")
	t.Setenv("LOG_DIR", filepath.Join(tempDir, "logs"))
	t.Setenv("DEBUG_MODE", "false")

	resetApp()
	t.Cleanup(resetApp)
	return tempDir
}

func resetApp() {
	instanceMu.Lock()
	if instance != nil && instance.cancel != nil {
		instance.cancel()
	}
	instance = nil
	instanceMu.Unlock()
	di.GetContainer().Clear()
}

// 模拟服务器
type mockServer struct {
	shutdownCalled atomic.Bool
	stop           chan struct{}
}

func (m *mockServer) ListenAndServe() error {
	<-m.stop
	return http.ErrServerClosed
}

func (m *mockServer) Shutdown(ctx context.Context) error {
	m.shutdownCalled.Store(true)
	close(m.stop)
	return nil
}

// TestGetApp 测试获取应用实例
func TestGetApp(t *testing.T) {
	setupTest(t)

	app1 := GetApp()
	if app1 == nil {
		t.Fatal("GetApp应该返回一个非nil的应用实例")
	}
	if app2 := GetApp(); app1 != app2 {
		t.Fatal("GetApp应该返回相同的实例")
	}
	if app1.stopChan == nil {
		t.Fatal("应用实例的stopChan应该被初始化")
	}
}

// TestInitialize 测试完整初始化
func TestInitialize(t *testing.T) {
	tempDir := setupTest(t)
	dataDir := filepath.Join(tempDir, "data")

	if err := Initialize(dataDir); err != nil {
		t.Fatalf("初始化应用失败: %v", err)
	}

	app := GetApp()
	if app.GetConfig() == nil {
		t.Fatal("应用配置应该已被设置")
	}
	if app.Handler() == nil {
		t.Fatal("应用路由应该已被设置")
	}

	if _, err := os.Stat(filepath.Join(dataDir, "config.json")); err != nil {
		t.Errorf("配置文件应该已被创建: %v", err)
	}
	files, _ := os.ReadDir(filepath.Join(tempDir, "logs"))
	if len(files) == 0 {
		t.Error("应该已创建日志文件")
	}

	for _, name := range []string{"metrics", "conversion", "scenario", "upload"} {
		if !GetDIContainer().Has(name) {
			t.Errorf("服务 %s 应该已被注册", name)
		}
	}

	w := httptest.NewRecorder()
	app.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("健康检查期望 200，实际 %d", w.Code)
	}
}

// TestInitServicesUsesConfiguredDirs 测试服务使用配置中的目录
func TestInitServicesUsesConfiguredDirs(t *testing.T) {
	tempDir := setupTest(t)
	if err := config.InitConfig(filepath.Join(tempDir, "data")); err != nil {
		t.Fatalf("初始化配置失败: %v", err)
	}
	if err := InitServices(); err != nil {
		t.Fatalf("初始化服务失败: %v", err)
	}
	if _, err := os.Stat(filepath.Join(tempDir, "data", "scenarios")); err != nil {
		t.Errorf("剧本目录应该已被创建: %v", err)
	}
	if _, err := os.Stat(filepath.Join(tempDir, "static", "uploads")); err != nil {
		t.Errorf("上传目录应该已被创建: %v", err)
	}
}

// TestInitLogger 测试日志初始化
func TestInitLogger(t *testing.T) {
	tempDir := setupTest(t)
	logDir := filepath.Join(tempDir, "custom_logs")

	if err := initLogger(logDir); err != nil {
		t.Fatalf("初始化日志系统失败: %v", err)
	}
	files, _ := os.ReadDir(logDir)
	if len(files) == 0 {
		t.Error("应该已创建日志文件")
	}
}

// TestRun 测试应用运行和关闭
func TestRun(t *testing.T) {
	setupTest(t)

	app := GetApp()
	app.config = &config.AppConfig{Port: "8081"}
	srv := &mockServer{stop: make(chan struct{})}
	app.server = srv

	go func() {
		time.Sleep(50 * time.Millisecond)
		app.stopChan <- syscall.SIGTERM
	}()

	if err := Run(); err != nil {
		t.Fatalf("运行应用失败: %v", err)
	}
	if !srv.shutdownCalled.Load() {
		t.Error("应该调用了server.Shutdown")
	}
	if app.ctx.Err() == nil {
		t.Error("关闭后后台任务的上下文应该已取消")
	}
}

// TestRunWithoutInitialize 未初始化时拒绝启动
func TestRunWithoutInitialize(t *testing.T) {
	setupTest(t)
	if err := Run(); err == nil {
		t.Fatal("未初始化时Run应该返回错误")
	}
}

// TestIsDebugMode 测试调试模式检查
func TestIsDebugMode(t *testing.T) {
	setupTest(t)

	if IsDebugMode() {
		t.Error("无应用实例时IsDebugMode应该返回false")
	}

	app := GetApp()
	if IsDebugMode() {
		t.Error("应用无配置时IsDebugMode应该返回false")
	}

	app.config = &config.AppConfig{DebugMode: true}
	if !IsDebugMode() {
		t.Error("调试模式开启时IsDebugMode应该返回true")
	}
	app.config.DebugMode = false
	if IsDebugMode() {
		t.Error("调试模式关闭时IsDebugMode应该返回false")
	}
}
