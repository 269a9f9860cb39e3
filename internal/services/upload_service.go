// internal/services/upload_service.go
package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/Corphon/NovelGenPage/internal/errors"
	"github.com/Corphon/NovelGenPage/internal/models"
	"github.com/Corphon/NovelGenPage/internal/storage"
	"github.com/Corphon/NovelGenPage/internal/utils"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// 允许上传的图片类型：扩展名 → MIME
var allowedImageTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
}

// UploadService 保存编辑器上传的图片
type UploadService struct {
	storage   *storage.FileStorage
	urlPrefix string
	maxBytes  int64
	metrics   *utils.ConversionMetrics
}

// NewUploadService 创建上传服务，图片保存在 dir，访问路径为 urlPrefix/<name>
func NewUploadService(dir, urlPrefix string, maxBytes int64, metrics *utils.ConversionMetrics) (*UploadService, error) {
	fs, err := storage.NewFileStorage(dir)
	if err != nil {
		return nil, fmt.Errorf("创建上传目录失败: %w", err)
	}
	if metrics == nil {
		metrics = utils.NewConversionMetrics()
	}
	return &UploadService{
		storage:   fs,
		urlPrefix: strings.TrimRight(urlPrefix, "/"),
		maxBytes:  maxBytes,
		metrics:   metrics,
	}, nil
}

// MaxBytes 单个文件大小上限
func (s *UploadService) MaxBytes() int64 {
	return s.maxBytes
}

// SaveImage 校验并保存图片，返回可嵌入文档的 URL
func (s *UploadService) SaveImage(ctx context.Context, filename string, r io.Reader) (*models.UploadedImage, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	want, ok := allowedImageTypes[ext]
	if !ok {
		return nil, errors.NewUnsupportedError("不支持的图片格式: "+ext, nil)
	}

	data, err := io.ReadAll(io.LimitReader(r, s.maxBytes+1))
	if err != nil {
		return nil, errors.NewProcessingError("读取上传内容失败", err)
	}
	if int64(len(data)) > s.maxBytes {
		return nil, errors.NewTooLargeError(fmt.Sprintf("图片超过 %d 字节", s.maxBytes), nil)
	}
	if len(data) == 0 {
		return nil, errors.NewValidationError("图片内容为空", nil)
	}
	detected := mimetype.Detect(data)
	if !detected.Is(want) {
		return nil, errors.NewUnsupportedError(
			fmt.Sprintf("文件内容 %s 与扩展名 %s 不符", detected.String(), ext), nil)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	name := uuid.NewString() + ext
	size, err := s.storage.SaveStream("", name, bytes.NewReader(data), s.maxBytes)
	if err != nil {
		return nil, errors.NewProcessingError("保存图片失败", err)
	}
	s.metrics.RecordUpload(size)

	return &models.UploadedImage{
		Name:        name,
		URL:         path.Join(s.urlPrefix, name),
		Size:        size,
		ContentType: detected.String(),
		UploadedAt:  time.Now(),
	}, nil
}
