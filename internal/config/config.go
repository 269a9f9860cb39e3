// internal/config/config.go
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/joho/godotenv"
)

// 支持的 Markdown 引擎
const (
	EngineGoldmark = "goldmark"
	EngineNone     = "none"
)

// 当前配置的单例实例
var (
	currentConfig *AppConfig
	configMutex   sync.RWMutex
	configFile    string
)

// AppConfig 包含应用程序的所有配置，保存在 data/config.json
type AppConfig struct {
	// 基础配置
	Port      string `json:"port"`
	DataDir   string `json:"data_dir"`
	StaticDir string `json:"static_dir"`
	UploadDir string `json:"upload_dir"`
	LogDir    string `json:"log_dir"`
	DebugMode bool   `json:"debug_mode"`

	// 渲染相关配置
	MarkdownEngine string `json:"markdown_engine"`
	HardWraps      bool   `json:"hard_wraps"`
	MaxUploadMB    int64  `json:"max_upload_mb"`
}

// Config 存储从环境变量读取的配置
type Config struct {
	Port           string
	DataDir        string
	StaticDir      string
	UploadDir      string
	LogDir         string
	DebugMode      bool
	MarkdownEngine string
	HardWraps      bool
	MaxUploadMB    int64
}

// Load 从环境变量加载配置
func Load() (*Config, error) {
	// .env 文件可选
	_ = godotenv.Load()

	staticDir := getEnvPath("STATIC_DIR", "static")
	config := &Config{
		Port:           getEnv("PORT", "8080"),
		DataDir:        getEnvPath("DATA_DIR", "data"),
		StaticDir:      staticDir,
		UploadDir:      getEnvPath("UPLOAD_DIR", filepath.Join(staticDir, "uploads")),
		LogDir:         getEnvPath("LOG_DIR", "logs"),
		DebugMode:      getEnvBool("DEBUG_MODE", true),
		MarkdownEngine: strings.ToLower(getEnv("MARKDOWN_ENGINE", EngineGoldmark)),
		HardWraps:      getEnvBool("HARD_WRAPS", true),
		MaxUploadMB:    getEnvInt("MAX_UPLOAD_MB", 10),
	}

	if err := validateEngine(config.MarkdownEngine); err != nil {
		return nil, err
	}
	if config.MaxUploadMB <= 0 {
		return nil, fmt.Errorf("MAX_UPLOAD_MB 必须大于 0: %d", config.MaxUploadMB)
	}
	return config, nil
}

func validateEngine(name string) error {
	switch name {
	case EngineGoldmark, EngineNone:
		return nil
	default:
		return fmt.Errorf("不支持的 Markdown 引擎: %q", name)
	}
}

// getEnv 获取环境变量，如果不存在则返回默认值
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvPath 获取路径类环境变量并确保目录存在
func getEnvPath(key, defaultValue string) string {
	path := getEnv(key, defaultValue)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.MkdirAll(path, 0755); err != nil {
			fmt.Printf("警告: 创建目录失败 %s: %v\n", path, err)
		}
	}
	return path
}

// getEnvBool 获取布尔类型环境变量
func getEnvBool(key string, defaultValue bool) bool {
	value := strings.ToLower(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes"
}

func getEnvInt(key string, defaultValue int64) int64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		fmt.Printf("警告: %s 不是有效整数 %q，使用默认值 %d\n", key, value, defaultValue)
		return defaultValue
	}
	return n
}

func fromBase(base *Config) *AppConfig {
	return &AppConfig{
		Port:           base.Port,
		DataDir:        base.DataDir,
		StaticDir:      base.StaticDir,
		UploadDir:      base.UploadDir,
		LogDir:         base.LogDir,
		DebugMode:      base.DebugMode,
		MarkdownEngine: base.MarkdownEngine,
		HardWraps:      base.HardWraps,
		MaxUploadMB:    base.MaxUploadMB,
	}
}

// InitConfig 初始化配置管理器
// 目录类配置始终取环境变量，渲染设置优先取已保存的文件
func InitConfig(dataDir string) error {
	base, err := Load()
	if err != nil {
		return err
	}

	configMutex.Lock()
	defer configMutex.Unlock()

	configFile = filepath.Join(dataDir, "config.json")
	currentConfig = fromBase(base)

	if data, err := os.ReadFile(configFile); err == nil {
		var saved AppConfig
		if json.Unmarshal(data, &saved) == nil && validateEngine(saved.MarkdownEngine) == nil {
			currentConfig.MarkdownEngine = saved.MarkdownEngine
			currentConfig.HardWraps = saved.HardWraps
			if saved.MaxUploadMB > 0 {
				currentConfig.MaxUploadMB = saved.MaxUploadMB
			}
		}
	}

	return saveLocked()
}

// GetCurrentConfig 返回当前配置的副本
func GetCurrentConfig() *AppConfig {
	configMutex.RLock()
	defer configMutex.RUnlock()

	if currentConfig == nil {
		base, err := Load()
		if err != nil {
			return &AppConfig{Port: "8080", DataDir: "data", StaticDir: "static",
				UploadDir: filepath.Join("static", "uploads"), LogDir: "logs",
				MarkdownEngine: EngineGoldmark, HardWraps: true, MaxUploadMB: 10}
		}
		return fromBase(base)
	}

	configCopy := *currentConfig
	return &configCopy
}

// UpdateRenderConfig 更新渲染设置并保存
func UpdateRenderConfig(engine string, hardWraps bool) error {
	engine = strings.ToLower(engine)
	if err := validateEngine(engine); err != nil {
		return err
	}

	configMutex.Lock()
	defer configMutex.Unlock()

	if currentConfig == nil {
		return fmt.Errorf("配置系统未初始化")
	}
	currentConfig.MarkdownEngine = engine
	currentConfig.HardWraps = hardWraps
	return saveLocked()
}

// SaveConfig 保存当前配置到文件
func SaveConfig() error {
	configMutex.Lock()
	defer configMutex.Unlock()
	return saveLocked()
}

func saveLocked() error {
	if currentConfig == nil {
		return fmt.Errorf("没有配置可保存")
	}

	if err := os.MkdirAll(filepath.Dir(configFile), 0755); err != nil {
		return fmt.Errorf("创建配置目录失败: %w", err)
	}

	data, err := json.MarshalIndent(currentConfig, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化配置失败: %w", err)
	}
	return os.WriteFile(configFile, data, 0644)
}

// UploadURLPrefix 上传图片的访问前缀，上传目录在静态目录内时经 /static 访问
func (c *AppConfig) UploadURLPrefix() string {
	rel, err := filepath.Rel(c.StaticDir, c.UploadDir)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "/uploads"
	}
	return "/static/" + filepath.ToSlash(rel)
}
