// internal/services/scenario_service.go
package services

import (
	"context"
	stderrors "errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Corphon/NovelGenPage/internal/errors"
	"github.com/Corphon/NovelGenPage/internal/models"
	"github.com/Corphon/NovelGenPage/internal/scenario"
	"github.com/Corphon/NovelGenPage/internal/storage"
	"github.com/Corphon/NovelGenPage/internal/utils"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

const (
	// DefaultScenarioTitle 未找到一级标题时的剧本标题
	DefaultScenarioTitle = "無題のシナリオ"

	scenarioFile    = "scenario.json"
	archiveListFile = "archive_list.json"
	descriptionRows = 3
)

// ScenarioService 处理剧本的保存、读取与列表
type ScenarioService struct {
	BasePath string

	storage  *storage.FileStorage
	locks    *LockManager
	validate *validator.Validate
	logger   *utils.Logger

	// 保护 archive_list.json 的读改写
	archiveMu sync.Mutex
	now       func() time.Time
}

// NewScenarioService 创建剧本服务，basePath 通常为 data/scenarios
func NewScenarioService(basePath string) (*ScenarioService, error) {
	if basePath == "" {
		basePath = "data/scenarios"
	}
	fs, err := storage.NewFileStorage(basePath)
	if err != nil {
		return nil, fmt.Errorf("创建剧本存储失败: %w", err)
	}
	return &ScenarioService{
		BasePath: basePath,
		storage:  fs,
		locks:    NewLockManager(),
		validate: newValidator(),
		logger:   utils.GetLogger().With(map[string]interface{}{"service": "scenario"}),
		now:      time.Now,
	}, nil
}

// StartMaintenance 启动缓存与锁的后台清理
func (s *ScenarioService) StartMaintenance(ctx context.Context) {
	s.storage.StartCacheCleanup(ctx, 2*time.Minute)
	s.locks.StartCleanup(ctx, 5*time.Minute)
}

// Save 新建或更新剧本，并更新列表
func (s *ScenarioService) Save(req SaveScenarioRequest) (*models.Scenario, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, errors.NewValidationError("剧本参数无效", err)
	}

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}

	var saved *models.Scenario
	err := s.locks.WithLock(id, func() error {
		now := s.now()
		created := now

		existing, err := s.load(id)
		switch {
		case err == nil:
			created = existing.CreatedAt
			if req.BaseDigest != "" && req.BaseDigest != existing.Digest {
				return errors.NewConflictError("剧本已被其他编辑者修改", nil)
			}
		case errors.IsNotFoundError(err):
			if req.BaseDigest != "" {
				return errors.NewConflictError("剧本不存在，无法按版本更新", nil)
			}
		default:
			return err
		}

		sc := Summarize(req.Content)
		sc.ID = id
		sc.CreatedAt = created
		sc.LastUpdated = now
		if title := strings.TrimSpace(req.Title); title != "" {
			sc.Title = title
		}

		if err := s.storage.SaveJSONFile(id, scenarioFile, sc); err != nil {
			return errors.NewProcessingError("保存剧本失败", err)
		}
		saved = sc
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.upsertArchive(saved.Entry()); err != nil {
		return nil, errors.WrapError(err, "更新剧本列表失败", errors.ErrorTypeError)
	}
	s.logger.Info("剧本已保存", map[string]interface{}{
		"id": saved.ID, "digest": utils.ShortDigest(saved.Digest), "scenes": saved.SceneCount,
	})
	return saved, nil
}

// Get 读取剧本
func (s *ScenarioService) Get(id string) (*models.Scenario, error) {
	if !ValidScenarioID(id) {
		return nil, errors.NewValidationError("剧本ID无效", nil)
	}
	var sc *models.Scenario
	err := s.locks.WithReadLock(id, func() error {
		var err error
		sc, err = s.load(id)
		return err
	})
	return sc, err
}

func (s *ScenarioService) load(id string) (*models.Scenario, error) {
	var sc models.Scenario
	if err := s.storage.LoadJSONFile(id, scenarioFile, &sc); err != nil {
		if stderrors.Is(err, storage.ErrNotExist) {
			return nil, errors.NewNotFoundError("剧本不存在: "+id, err)
		}
		return nil, errors.NewProcessingError("读取剧本失败", err)
	}
	return &sc, nil
}

// List 返回剧本列表，最近更新的在前
func (s *ScenarioService) List() ([]models.ArchiveEntry, error) {
	s.archiveMu.Lock()
	defer s.archiveMu.Unlock()

	entries, err := s.loadArchive()
	if err != nil {
		return nil, err
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].LastUpdated.After(entries[j].LastUpdated)
	})
	return entries, nil
}

// Delete 删除剧本及其列表条目
func (s *ScenarioService) Delete(id string) error {
	if !ValidScenarioID(id) {
		return errors.NewValidationError("剧本ID无效", nil)
	}
	err := s.locks.WithLock(id, func() error {
		if err := s.storage.DeleteDir(id); err != nil {
			if stderrors.Is(err, storage.ErrNotExist) {
				return errors.NewNotFoundError("剧本不存在: "+id, err)
			}
			return errors.NewProcessingError("删除剧本失败", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.archiveMu.Lock()
	defer s.archiveMu.Unlock()
	entries, err := s.loadArchive()
	if err != nil {
		return err
	}
	kept := entries[:0]
	for _, e := range entries {
		if e.ID != id {
			kept = append(kept, e)
		}
	}
	if err := s.storage.SaveJSONFile("", archiveListFile, kept); err != nil {
		return errors.NewProcessingError("更新剧本列表失败", err)
	}
	s.logger.Info("剧本已删除", map[string]interface{}{"id": id})
	return nil
}

func (s *ScenarioService) upsertArchive(entry models.ArchiveEntry) error {
	s.archiveMu.Lock()
	defer s.archiveMu.Unlock()

	entries, err := s.loadArchive()
	if err != nil {
		return err
	}
	found := false
	for i := range entries {
		if entries[i].ID == entry.ID {
			entry.CreatedAt = entries[i].CreatedAt
			entries[i] = entry
			found = true
			break
		}
	}
	if !found {
		entries = append(entries, entry)
	}
	return s.storage.SaveJSONFile("", archiveListFile, entries)
}

func (s *ScenarioService) loadArchive() ([]models.ArchiveEntry, error) {
	entries := []models.ArchiveEntry{}
	if err := s.storage.LoadJSONFile("", archiveListFile, &entries); err != nil {
		if stderrors.Is(err, storage.ErrNotExist) {
			return []models.ArchiveEntry{}, nil
		}
		return nil, errors.NewProcessingError("读取剧本列表失败", err)
	}
	return entries, nil
}

// Summarize 从源文本提取标题、描述、摘要与统计
func Summarize(content string) *models.Scenario {
	sc := &models.Scenario{
		Title:       DefaultScenarioTitle,
		Description: describe(content),
		Content:     content,
		Digest:      utils.ContentDigest(content),
	}

	titled := false
	for _, b := range scenario.ParseBlocks(content) {
		switch {
		case b.Kind == scenario.BlockHeading && b.Level == 1 && !titled:
			if title := strings.TrimSpace(scenario.PlainText(b.Runs)); title != "" {
				sc.Title = title
				titled = true
			}
		case b.Kind == scenario.BlockHeading && b.Level == 2:
			sc.SceneCount++
		case b.Kind == scenario.BlockChoice:
			sc.ChoiceCount++
		}
	}
	return sc
}

// describe 取前三行作为描述
func describe(content string) string {
	lines := strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n")
	if len(lines) > descriptionRows {
		lines = lines[:descriptionRows]
	}
	return strings.Join(lines, "\n")
}
