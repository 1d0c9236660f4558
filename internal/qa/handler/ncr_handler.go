package handler

import (
	"strings"

	"github.com/bitfantasy/siteqa/internal/qa/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type NCRHandler struct {
	svc    *service.NCRService
	logger *zap.Logger
}

func (h *NCRHandler) Create(c *gin.Context) {
	var req service.CreateNCRReq
	if err := c.ShouldBindJSON(&req); err != nil {
		BindError(c, err)
		return
	}
	ncr, err := h.svc.Create(c.Request.Context(), req, GetActor(c))
	if err != nil {
		Fail(c, h.logger, err)
		return
	}
	Created(c, ncr)
}

// List GET /ncrs?project_id=&status=&severity=&responsible_id=&lot_id=
func (h *NCRHandler) List(c *gin.Context) {
	page, pageSize := GetPagination(c)
	filters := map[string]string{}
	for _, key := range []string{"project_id", "status", "severity", "responsible_id", "lot_id"} {
		if v := c.Query(key); v != "" {
			filters[key] = v
		}
	}
	items, total, err := h.svc.List(c.Request.Context(), page, pageSize, filters, GetActor(c))
	if err != nil {
		Fail(c, h.logger, err)
		return
	}
	Success(c, ListResponse{Items: items, Pagination: NewPagination(page, pageSize, total)})
}

func (h *NCRHandler) Get(c *gin.Context) {
	ncr, err := h.svc.Get(c.Request.Context(), c.Param("id"), GetActor(c))
	if err != nil {
		Fail(c, h.logger, err)
		return
	}
	Success(c, ncr)
}

func (h *NCRHandler) Respond(c *gin.Context) {
	var req service.RespondNCRReq
	if err := c.ShouldBindJSON(&req); err != nil {
		BindError(c, err)
		return
	}
	ncr, err := h.svc.Respond(c.Request.Context(), c.Param("id"), req, GetActor(c))
	if err != nil {
		Fail(c, h.logger, err)
		return
	}
	Success(c, ncr)
}

func (h *NCRHandler) QMReview(c *gin.Context) {
	var req service.QMReviewReq
	if err := c.ShouldBindJSON(&req); err != nil {
		BindError(c, err)
		return
	}
	ncr, err := h.svc.QMReview(c.Request.Context(), c.Param("id"), req, GetActor(c))
	if err != nil {
		Fail(c, h.logger, err)
		return
	}
	Success(c, ncr)
}

func (h *NCRHandler) QMApprove(c *gin.Context) {
	var req service.QMApproveReq
	if err := bindOptional(c, &req); err != nil {
		BindError(c, err)
		return
	}
	ncr, err := h.svc.QMApprove(c.Request.Context(), c.Param("id"), req, GetActor(c))
	if err != nil {
		Fail(c, h.logger, err)
		return
	}
	Success(c, ncr)
}

func (h *NCRHandler) NotifyClient(c *gin.Context) {
	var req service.NotifyClientReq
	if err := bindOptional(c, &req); err != nil {
		BindError(c, err)
		return
	}
	ncr, err := h.svc.NotifyClient(c.Request.Context(), c.Param("id"), req, GetActor(c))
	if err != nil {
		Fail(c, h.logger, err)
		return
	}
	Success(c, ncr)
}

func (h *NCRHandler) SubmitForVerification(c *gin.Context) {
	var req service.SubmitForVerificationReq
	if err := bindOptional(c, &req); err != nil {
		BindError(c, err)
		return
	}
	ncr, err := h.svc.SubmitForVerification(c.Request.Context(), c.Param("id"), req, GetActor(c))
	if err != nil {
		Fail(c, h.logger, err)
		return
	}
	Success(c, ncr)
}

func (h *NCRHandler) RejectRectification(c *gin.Context) {
	var req service.RejectRectificationReq
	if err := bindOptional(c, &req); err != nil {
		BindError(c, err)
		return
	}
	ncr, err := h.svc.RejectRectification(c.Request.Context(), c.Param("id"), req, GetActor(c))
	if err != nil {
		Fail(c, h.logger, err)
		return
	}
	Success(c, ncr)
}

func (h *NCRHandler) Close(c *gin.Context) {
	var req service.CloseNCRReq
	if err := bindOptional(c, &req); err != nil {
		BindError(c, err)
		return
	}
	ncr, err := h.svc.Close(c.Request.Context(), c.Param("id"), req, GetActor(c))
	if err != nil {
		Fail(c, h.logger, err)
		return
	}
	Success(c, ncr)
}

// AddEvidence multipart "file" upload, or a JSON reference to an existing object
func (h *NCRHandler) AddEvidence(c *gin.Context) {
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
		ev, err := h.svc.AddEvidence(c.Request.Context(), c.Param("id"), service.EvidenceUpload{
			Type:        c.PostForm("type"),
			FileName:    fileHeader.Filename,
			ContentType: contentType,
			Size:        fileHeader.Size,
			Reader:      src,
		}, GetActor(c))
		if err != nil {
			Fail(c, h.logger, err)
			return
		}
		Created(c, ev)
		return
	}

	var req service.EvidenceRefReq
	if err := c.ShouldBindJSON(&req); err != nil {
		BindError(c, err)
		return
	}
	ev, err := h.svc.AddEvidenceRef(c.Request.Context(), c.Param("id"), req, GetActor(c))
	if err != nil {
		Fail(c, h.logger, err)
		return
	}
	Created(c, ev)
}

// CheckRole GET /ncrs/check-role/:projectId
func (h *NCRHandler) CheckRole(c *gin.Context) {
	rc, err := h.svc.CheckRole(c.Request.Context(), c.Param("projectId"), GetActor(c))
	if err != nil {
		Fail(c, h.logger, err)
		return
	}
	Success(c, rc)
}

func (h *NCRHandler) History(c *gin.Context) {
	page, pageSize := GetPagination(c)
	logs, total, err := h.svc.History(c.Request.Context(), c.Param("id"), page, pageSize)
	if err != nil {
		Fail(c, h.logger, err)
		return
	}
	Success(c, ListResponse{Items: logs, Pagination: NewPagination(page, pageSize, total)})
}
