// internal/models/scenario.go
package models

import (
	"time"
)

// Scenario 一份保存的分支剧本，Content 为 Markdown 源文本
type Scenario struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Content     string    `json:"content"`
	Digest      string    `json:"digest"`
	SceneCount  int       `json:"scene_count"`
	ChoiceCount int       `json:"choice_count"`
	CreatedAt   time.Time `json:"created_at"`
	LastUpdated time.Time `json:"last_updated"`
}

// ArchiveEntry 用于剧本列表，不含正文
type ArchiveEntry struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Digest      string    `json:"digest"`
	CreatedAt   time.Time `json:"created_at"`
	LastUpdated time.Time `json:"last_updated"`
}

// Entry 生成列表条目
func (s *Scenario) Entry() ArchiveEntry {
	return ArchiveEntry{
		ID:          s.ID,
		Title:       s.Title,
		Description: s.Description,
		Digest:      s.Digest,
		CreatedAt:   s.CreatedAt,
		LastUpdated: s.LastUpdated,
	}
}

// UploadedImage 上传后的图片信息
type UploadedImage struct {
	Name        string    `json:"name"`
	URL         string    `json:"url"`
	Size        int64     `json:"size"`
	ContentType string    `json:"content_type"`
	UploadedAt  time.Time `json:"uploaded_at"`
}
