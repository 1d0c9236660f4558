package handler

import (
	"strings"

	"github.com/bitfantasy/siteqa/internal/qa/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type LotHandler struct {
	svc    *service.LotService
	logger *zap.Logger
}

// List GET /projects/:id/lots
func (h *LotHandler) List(c *gin.Context) {
	lots, err := h.svc.List(c.Request.Context(), c.Param("id"))
	if err != nil {
		Fail(c, h.logger, err)
		return
	}
	Success(c, gin.H{"items": lots, "total": len(lots)})
}

// Create POST /projects/:id/lots
func (h *LotHandler) Create(c *gin.Context) {
	var req service.CreateLotReq
	if err := c.ShouldBindJSON(&req); err != nil {
		BindError(c, err)
		return
	}
	lot, err := h.svc.Create(c.Request.Context(), c.Param("id"), req, GetActor(c))
	if err != nil {
		Fail(c, h.logger, err)
		return
	}
	Created(c, lot)
}

func (h *LotHandler) Get(c *gin.Context) {
	lot, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		Fail(c, h.logger, err)
		return
	}
	Success(c, lot)
}

// AssignITP POST /lots/:id/itps
func (h *LotHandler) AssignITP(c *gin.Context) {
	var req service.AssignITPReq
	if err := c.ShouldBindJSON(&req); err != nil {
		BindError(c, err)
		return
	}
	inst, err := h.svc.AssignITP(c.Request.Context(), c.Param("id"), req, GetActor(c))
	if err != nil {
		Fail(c, h.logger, err)
		return
	}
	Created(c, inst)
}

func (h *LotHandler) CompleteItem(c *gin.Context) {
	item, err := h.svc.CompleteItem(c.Request.Context(), c.Param("id"), c.Param("itemId"), GetActor(c))
	if err != nil {
		Fail(c, h.logger, err)
		return
	}
	Success(c, item)
}

func (h *LotHandler) AddTest(c *gin.Context) {
	var req service.AddTestReq
	if err := c.ShouldBindJSON(&req); err != nil {
		BindError(c, err)
		return
	}
	tr, err := h.svc.AddTest(c.Request.Context(), c.Param("id"), req, GetActor(c))
	if err != nil {
		Fail(c, h.logger, err)
		return
	}
	Created(c, tr)
}

// AddPhoto multipart "file" upload, or a JSON reference
func (h *LotHandler) AddPhoto(c *gin.Context) {
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		fileHeader, err := c.FormFile("file")
		if err != nil {
			BadRequest(c, "file is required")
			return
		}
		src, err := fileHeader.Open()
		if err != nil {
			InternalError(c, "failed to read upload: "+err.Error())
			return
		}
		defer src.Close()

		contentType := fileHeader.Header.Get("Content-Type")
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		photo, err := h.svc.AddPhoto(c.Request.Context(), c.Param("id"), c.PostForm("caption"), service.EvidenceUpload{
			Type:        "photo",
			FileName:    fileHeader.Filename,
			ContentType: contentType,
			Size:        fileHeader.Size,
			Reader:      src,
		}, GetActor(c))
		if err != nil {
			Fail(c, h.logger, err)
			return
		}
		Created(c, photo)
		return
	}

	var req service.PhotoRefReq
	if err := c.ShouldBindJSON(&req); err != nil {
		BindError(c, err)
		return
	}
	photo, err := h.svc.AddPhotoRef(c.Request.Context(), c.Param("id"), req, GetActor(c))
	if err != nil {
		Fail(c, h.logger, err)
		return
	}
	Created(c, photo)
}
