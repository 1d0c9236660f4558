package handler

import (
	"github.com/bitfantasy/siteqa/internal/qa/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type ClaimHandler struct {
	svc    *service.ClaimService
	logger *zap.Logger
}

// List GET /projects/:id/claims?status=
func (h *ClaimHandler) List(c *gin.Context) {
	claims, err := h.svc.List(c.Request.Context(), c.Param("id"), c.Query("status"))
	if err != nil {
		Fail(c, h.logger, err)
		return
	}
	Success(c, gin.H{"items": claims, "total": len(claims)})
}

func (h *ClaimHandler) Create(c *gin.Context) {
	var req service.CreateClaimReq
	if err := c.ShouldBindJSON(&req); err != nil {
		BindError(c, err)
		return
	}
	claim, err := h.svc.Create(c.Request.Context(), c.Param("id"), req, GetActor(c))
	if err != nil {
		Fail(c, h.logger, err)
		return
	}
	Created(c, claim)
}

// Update PUT /projects/:id/claims/:claimId
func (h *ClaimHandler) Update(c *gin.Context) {
	var req service.UpdateClaimReq
	if err := c.ShouldBindJSON(&req); err != nil {
		BindError(c, err)
		return
	}
	claim, err := h.svc.Update(c.Request.Context(), c.Param("id"), c.Param("claimId"), req, GetActor(c))
	if err != nil {
		Fail(c, h.logger, err)
		return
	}
	Success(c, claim)
}

func (h *ClaimHandler) Get(c *gin.Context) {
	claim, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		Fail(c, h.logger, err)
		return
	}
	Success(c, claim)
}

func (h *ClaimHandler) CompletenessCheck(c *gin.Context) {
	result, err := h.svc.CompletenessCheck(c.Request.Context(), c.Param("id"))
	if err != nil {
		Fail(c, h.logger, err)
		return
	}
	Success(c, result)
}

// EvidencePackage xlsx download
func (h *ClaimHandler) EvidencePackage(c *gin.Context) {
	f, filename, err := h.svc.EvidencePackage(c.Request.Context(), c.Param("id"))
	if err != nil {
		Fail(c, h.logger, err)
		return
	}
	defer f.Close()

	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", "attachment; filename=\""+filename+"\"")
	c.Header("Content-Transfer-Encoding", "binary")

	if err := f.Write(c.Writer); err != nil {
		h.logger.Error("write evidence package", zap.String("claim_id", c.Param("id")), zap.Error(err))
	}
}
