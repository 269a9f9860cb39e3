// internal/api/handlers.go
package api

import (
	"net/http"
	"time"

	"github.com/Corphon/NovelGenPage/internal/config"
	"github.com/Corphon/NovelGenPage/internal/scenario"
	"github.com/Corphon/NovelGenPage/internal/services"
	"github.com/gin-gonic/gin"
)

// Handler 处理API请求
type Handler struct {
	ScenarioService   *services.ScenarioService
	ConversionService *services.ConversionService
	UploadService     *services.UploadService
	Editors           *EditorHub
	Response          *ResponseHelper
}

// NewHandler 创建API处理器
func NewHandler(
	scenarioService *services.ScenarioService,
	conversionService *services.ConversionService,
	uploadService *services.UploadService,
) *Handler {
	h := &Handler{
		ScenarioService:   scenarioService,
		ConversionService: conversionService,
		UploadService:     uploadService,
		Response:          NewResponseHelper(),
	}
	h.Editors = NewEditorHub(scenarioService, conversionService, uploadService, NewWebSocketManager())
	return h
}

// ===============================
// 转换相关
// ===============================

type sourceRequest struct {
	Source string `json:"source" binding:"max=2097152"`
}

type opsRequest struct {
	Ops []scenario.Op `json:"ops" binding:"required"`
}

// ConvertBlocks 源文本 → 区块
func (h *Handler) ConvertBlocks(c *gin.Context) {
	var req sourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "请求参数无效", err.Error())
		return
	}
	blocks := h.ConversionService.Blocks(req.Source)
	if blocks == nil {
		blocks = []scenario.Block{}
	}
	h.Response.Success(c, gin.H{"blocks": blocks})
}

// ConvertDelta 源文本 → 文档模型
func (h *Handler) ConvertDelta(c *gin.Context) {
	var req sourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "请求参数无效", err.Error())
		return
	}
	h.Response.Success(c, h.ConversionService.Delta(req.Source))
}

// ConvertSource 文档模型 → 源文本，只接受插入操作
func (h *Handler) ConvertSource(c *gin.Context) {
	var req opsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "请求参数无效", err.Error())
		return
	}
	for _, op := range req.Ops {
		if !op.IsInsert() {
			h.Response.Error(c, http.StatusBadRequest, ErrorDocumentInvalid, "文档只能包含插入操作")
			return
		}
	}
	h.Response.Success(c, gin.H{"source": h.ConversionService.Source(scenario.Document{Ops: req.Ops})})
}

// ConvertHTML 源文本 → HTML
func (h *Handler) ConvertHTML(c *gin.Context) {
	var req sourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "请求参数无效", err.Error())
		return
	}
	h.Response.Success(c, gin.H{
		"html":   h.ConversionService.HTML(req.Source),
		"engine": h.ConversionService.Renderer().EngineName(),
	})
}

// ConvertRoundTrip 检查源文本往返后是否稳定
func (h *Handler) ConvertRoundTrip(c *gin.Context) {
	var req sourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "请求参数无效", err.Error())
		return
	}
	h.Response.Success(c, h.ConversionService.RoundTrip(req.Source))
}

// ===============================
// 剧本相关
// ===============================

// ListScenarios 获取剧本列表
func (h *Handler) ListScenarios(c *gin.Context) {
	entries, err := h.ScenarioService.List()
	if err != nil {
		h.Response.HandleError(c, err, ErrorScenarioInvalid)
		return
	}
	h.Response.Success(c, gin.H{"scenarios": entries, "total": len(entries)})
}

// SaveScenario 新建或更新剧本
func (h *Handler) SaveScenario(c *gin.Context) {
	var req services.SaveScenarioRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "请求参数无效", err.Error())
		return
	}
	if req.BaseDigest == "" {
		req.BaseDigest = trimETag(c.GetHeader("If-Match"))
	}

	sc, err := h.ScenarioService.Save(req)
	if err != nil {
		h.Response.HandleError(c, err, scenarioErrorCode(err))
		return
	}
	c.Header("ETag", `"`+sc.Digest+`"`)
	h.Response.Success(c, sc, "剧本已保存")
}

// GetScenario 获取剧本及渲染后的HTML
func (h *Handler) GetScenario(c *gin.Context) {
	sc, err := h.ScenarioService.Get(c.Param("id"))
	if err != nil {
		h.Response.HandleError(c, err, scenarioErrorCode(err))
		return
	}
	c.Header("ETag", `"`+sc.Digest+`"`)
	h.Response.Success(c, gin.H{
		"scenario": sc,
		"html":     h.ConversionService.HTML(sc.Content),
	})
}

// DeleteScenario 删除剧本，并通知正在编辑的客户端
func (h *Handler) DeleteScenario(c *gin.Context) {
	id := c.Param("id")
	if err := h.ScenarioService.Delete(id); err != nil {
		h.Response.HandleError(c, err, scenarioErrorCode(err))
		return
	}
	h.Editors.Close(id)
	h.Response.Success(c, gin.H{"id": id}, "剧本已删除")
}

// ===============================
// 上传与系统
// ===============================

// UploadImage 保存编辑器上传的图片，返回 {success, url}
func (h *Handler) UploadImage(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.UploadService.MaxBytes()+1<<20)

	fh, err := c.FormFile("image")
	if err != nil {
		h.Response.Error(c, http.StatusBadRequest, ErrorFileInvalid, "缺少图片文件", err.Error())
		return
	}
	f, err := fh.Open()
	if err != nil {
		h.Response.Error(c, http.StatusBadRequest, ErrorFileUploadFailed, "读取上传文件失败")
		return
	}
	defer f.Close()

	img, err := h.UploadService.SaveImage(c.Request.Context(), fh.Filename, f)
	if err != nil {
		h.Response.HandleError(c, err, ErrorFileUploadFailed)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"url":        img.URL,
		"data":       img,
		"timestamp":  time.Now(),
		"request_id": c.GetString(requestIDKey),
	})
}

// GetMetrics 返回转换与请求指标
func (h *Handler) GetMetrics(c *gin.Context) {
	h.Response.Success(c, gin.H{
		"engine":    h.ConversionService.Renderer().EngineName(),
		"metrics":   h.ConversionService.Metrics().Collector().GetMetrics(),
		"websocket": h.Editors.Manager().GetStatus(),
	})
}

type settingsRequest struct {
	MarkdownEngine string `json:"markdown_engine" binding:"required,oneof=goldmark none GOLDMARK NONE"`
	HardWraps      *bool  `json:"hard_wraps"`
}

// GetSettings 返回渲染设置
func (h *Handler) GetSettings(c *gin.Context) {
	cfg := config.GetCurrentConfig()
	h.Response.Success(c, gin.H{
		"markdown_engine": cfg.MarkdownEngine,
		"hard_wraps":      cfg.HardWraps,
		"max_upload_mb":   cfg.MaxUploadMB,
	})
}

// UpdateSettings 更新渲染设置，新引擎对之后的转换和新开的编辑会话生效
func (h *Handler) UpdateSettings(c *gin.Context) {
	var req settingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.Error(c, http.StatusBadRequest, ErrorSettingsInvalid, "设置参数无效", err.Error())
		return
	}

	hardWraps := config.GetCurrentConfig().HardWraps
	if req.HardWraps != nil {
		hardWraps = *req.HardWraps
	}
	if err := config.UpdateRenderConfig(req.MarkdownEngine, hardWraps); err != nil {
		h.Response.Error(c, http.StatusInternalServerError, ErrorSettingsInvalid, "保存设置失败", err.Error())
		return
	}

	cfg := config.GetCurrentConfig()
	h.ConversionService.SetEngine(services.EngineFor(cfg))
	h.Response.Success(c, gin.H{
		"markdown_engine": cfg.MarkdownEngine,
		"hard_wraps":      cfg.HardWraps,
		"engine":          h.ConversionService.Renderer().EngineName(),
	}, "设置已更新")
}

func trimETag(tag string) string {
	if len(tag) >= 2 && tag[0] == '"' && tag[len(tag)-1] == '"' {
		return tag[1 : len(tag)-1]
	}
	return tag
}
