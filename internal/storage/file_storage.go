// internal/storage/file_storage.go
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Corphon/NovelGenPage/internal/utils"
)

// ErrNotExist 文件或目录不存在
var ErrNotExist = errors.New("storage: not found")

// FileStorage 提供基于目录的文件存储服务
type FileStorage struct {
	BaseDir string

	// 文件级别锁 path -> *sync.RWMutex
	fileLocks sync.Map
	cache     *contentCache
}

// NewFileStorage 创建文件存储服务
func NewFileStorage(baseDir string) (*FileStorage, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("创建存储目录失败: %w", err)
	}
	return &FileStorage{
		BaseDir: baseDir,
		cache:   newContentCache(100, 5*time.Minute),
	}, nil
}

// resolve 将相对路径限制在 BaseDir 内
func (fs *FileStorage) resolve(parts ...string) (string, error) {
	full := filepath.Join(append([]string{fs.BaseDir}, parts...)...)
	rel, err := filepath.Rel(fs.BaseDir, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("非法路径: %s", filepath.Join(parts...))
	}
	return full, nil
}

func (fs *FileStorage) getFileLock(fullPath string) *sync.RWMutex {
	value, _ := fs.fileLocks.LoadOrStore(fullPath, &sync.RWMutex{})
	return value.(*sync.RWMutex)
}

// SaveFile 原子写入文件（临时文件 + 重命名）
func (fs *FileStorage) SaveFile(dirPath, filename string, content []byte) error {
	fullPath, err := fs.resolve(dirPath, filename)
	if err != nil {
		return err
	}

	lock := fs.getFileLock(fullPath)
	lock.Lock()
	defer lock.Unlock()

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return fmt.Errorf("创建目录失败: %w", err)
	}

	tempPath := fullPath + ".tmp"
	if err := os.WriteFile(tempPath, content, 0644); err != nil {
		return fmt.Errorf("保存临时文件失败: %w", err)
	}
	if err := os.Rename(tempPath, fullPath); err != nil {
		if removeErr := os.Remove(tempPath); removeErr != nil {
			utils.GetLogger().Warn("清理临时文件失败", map[string]interface{}{
				"path": tempPath, "error": removeErr.Error(),
			})
		}
		return fmt.Errorf("保存文件失败: %w", err)
	}

	fs.cache.invalidate(fullPath)
	return nil
}

// SaveStream 将 reader 的内容写入文件，最多 limit 字节，返回写入字节数
func (fs *FileStorage) SaveStream(dirPath, filename string, r io.Reader, limit int64) (int64, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return 0, fmt.Errorf("读取上传内容失败: %w", err)
	}
	if int64(len(data)) > limit {
		return 0, fmt.Errorf("内容超过 %d 字节", limit)
	}
	if err := fs.SaveFile(dirPath, filename, data); err != nil {
		return 0, err
	}
	return int64(len(data)), nil
}

// SaveJSONFile 保存JSON文件
func (fs *FileStorage) SaveJSONFile(dirPath, filename string, data interface{}) error {
	content, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化JSON失败: %w", err)
	}
	return fs.SaveFile(dirPath, filename, content)
}

// LoadFile 读取文件，命中缓存时不访问磁盘内容
func (fs *FileStorage) LoadFile(dirPath, filename string) ([]byte, error) {
	fullPath, err := fs.resolve(dirPath, filename)
	if err != nil {
		return nil, err
	}

	lock := fs.getFileLock(fullPath)
	lock.RLock()
	defer lock.RUnlock()

	info, err := os.Stat(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotExist, filepath.Join(dirPath, filename))
		}
		return nil, fmt.Errorf("读取文件失败: %w", err)
	}
	if data, ok := fs.cache.get(fullPath, info.ModTime()); ok {
		return data, nil
	}

	content, err := os.ReadFile(fullPath)
	if err != nil {
		return nil, fmt.Errorf("读取文件失败: %w", err)
	}
	fs.cache.put(fullPath, content, info.ModTime())
	return content, nil
}

// LoadJSONFile 读取并解析JSON文件
func (fs *FileStorage) LoadJSONFile(dirPath, filename string, v interface{}) error {
	content, err := fs.LoadFile(dirPath, filename)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(content, v); err != nil {
		return fmt.Errorf("解析JSON失败: %w", err)
	}
	return nil
}

// FileExists 检查文件是否存在
func (fs *FileStorage) FileExists(dirPath, filename string) bool {
	fullPath, err := fs.resolve(dirPath, filename)
	if err != nil {
		return false
	}
	info, err := os.Stat(fullPath)
	return err == nil && !info.IsDir()
}

// DeleteDir 删除目录及其内容
func (fs *FileStorage) DeleteDir(dirPath string) error {
	fullPath, err := fs.resolve(dirPath)
	if err != nil {
		return err
	}
	if fullPath == filepath.Clean(fs.BaseDir) {
		return fmt.Errorf("不能删除存储根目录")
	}

	lock := fs.getFileLock(fullPath)
	lock.Lock()
	defer lock.Unlock()

	if _, err := os.Stat(fullPath); os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", ErrNotExist, dirPath)
	}
	if err := os.RemoveAll(fullPath); err != nil {
		return fmt.Errorf("删除目录失败: %w", err)
	}

	fs.cache.invalidatePrefix(fullPath + string(filepath.Separator))
	return nil
}

// ListDirs 列出目录下的所有子目录
func (fs *FileStorage) ListDirs(dirPath string) ([]string, error) {
	fullPath, err := fs.resolve(dirPath)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("读取目录失败: %w", err)
	}

	var dirs []string
	for _, entry := range entries {
		if entry.IsDir() {
			dirs = append(dirs, entry.Name())
		}
	}
	return dirs, nil
}

// StartCacheCleanup 定期清理过期缓存，ctx 结束时停止
func (fs *FileStorage) StartCacheCleanup(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if removed := fs.cache.sweep(); removed > 0 {
					utils.GetLogger().Debug("缓存清理", map[string]interface{}{"removed": removed})
				}
			}
		}
	}()
}
