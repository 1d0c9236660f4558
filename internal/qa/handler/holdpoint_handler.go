package handler

import (
	"github.com/bitfantasy/siteqa/internal/qa/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type HoldPointHandler struct {
	svc    *service.HoldPointService
	logger *zap.Logger
}

// RequestRelease POST /holdpoints/request-release
func (h *HoldPointHandler) RequestRelease(c *gin.Context) {
	var req service.RequestReleaseReq
	if err := c.ShouldBindJSON(&req); err != nil {
		BindError(c, err)
		return
	}
	hp, err := h.svc.RequestRelease(c.Request.Context(), req, GetActor(c))
	if err != nil {
		Fail(c, h.logger, err)
		return
	}
	Success(c, hp)
}

func (h *HoldPointHandler) Release(c *gin.Context) {
	var req service.ReleaseHoldPointReq
	if err := c.ShouldBindJSON(&req); err != nil {
		BindError(c, err)
		return
	}
	hp, err := h.svc.Release(c.Request.Context(), c.Param("id"), req, GetActor(c))
	if err != nil {
		Fail(c, h.logger, err)
		return
	}
	Success(c, hp)
}

func (h *HoldPointHandler) Chase(c *gin.Context) {
	hp, err := h.svc.Chase(c.Request.Context(), c.Param("id"), GetActor(c))
	if err != nil {
		Fail(c, h.logger, err)
		return
	}
	Success(c, hp)
}

func (h *HoldPointHandler) PreviewEvidencePackage(c *gin.Context) {
	var req service.EvidencePackageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		BindError(c, err)
		return
	}
	pkg, err := h.svc.PreviewEvidencePackage(c.Request.Context(), req)
	if err != nil {
		Fail(c, h.logger, err)
		return
	}
	Success(c, pkg)
}

// ListByProject GET /holdpoints/project/:projectId?status=&lot_id=&overdue=true
func (h *HoldPointHandler) ListByProject(c *gin.Context) {
	filters := map[string]string{}
	for _, key := range []string{"status", "lot_id", "overdue"} {
		if v := c.Query(key); v != "" {
			filters[key] = v
		}
	}
	items, err := h.svc.ListByProject(c.Request.Context(), c.Param("projectId"), filters)
	if err != nil {
		Fail(c, h.logger, err)
		return
	}
	Success(c, gin.H{"items": items, "total": len(items)})
}

func (h *HoldPointHandler) GetByLotItem(c *gin.Context) {
	hp, err := h.svc.GetByLotItem(c.Request.Context(), c.Param("lotId"), c.Param("itemId"))
	if err != nil {
		Fail(c, h.logger, err)
		return
	}
	Success(c, hp)
}

func (h *HoldPointHandler) History(c *gin.Context) {
	page, pageSize := GetPagination(c)
	logs, total, err := h.svc.History(c.Request.Context(), c.Param("id"), page, pageSize)
	if err != nil {
		Fail(c, h.logger, err)
		return
	}
	Success(c, ListResponse{Items: logs, Pagination: NewPagination(page, pageSize, total)})
}
