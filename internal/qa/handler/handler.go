package handler

import (
	"encoding/json"
	"errors"
	"io"
	"strconv"

	"github.com/bitfantasy/siteqa/internal/qa/engine"
	"github.com/bitfantasy/siteqa/internal/qa/repository"
	"github.com/bitfantasy/siteqa/internal/qa/service"
	"github.com/bitfantasy/siteqa/internal/qa/sse"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// Handlers QA handler set
type Handlers struct {
	NCR       *NCRHandler
	HoldPoint *HoldPointHandler
	Claim     *ClaimHandler
	Lot       *LotHandler
	SSE       *SSEHandler
}

func NewHandlers(svc *service.Services, hub *sse.Hub, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		NCR:       &NCRHandler{svc: svc.NCR, logger: logger},
		HoldPoint: &HoldPointHandler{svc: svc.HoldPoint, logger: logger},
		Claim:     &ClaimHandler{svc: svc.Claim, logger: logger},
		Lot:       &LotHandler{svc: svc.Lot, logger: logger},
		SSE:       NewSSEHandler(hub),
	}
}

// Register mounts the QA routes on an authenticated group
func (h *Handlers) Register(api *gin.RouterGroup) {
	ncrs := api.Group("/ncrs")
	{
		ncrs.POST("", h.NCR.Create)
		ncrs.GET("", h.NCR.List)
		ncrs.GET("/check-role/:projectId", h.NCR.CheckRole)
		ncrs.GET("/:id", h.NCR.Get)
		ncrs.GET("/:id/history", h.NCR.History)
		ncrs.POST("/:id/respond", h.NCR.Respond)
		ncrs.POST("/:id/qm-review", h.NCR.QMReview)
		ncrs.POST("/:id/qm-approve", h.NCR.QMApprove)
		ncrs.POST("/:id/notify-client", h.NCR.NotifyClient)
		ncrs.POST("/:id/submit-for-verification", h.NCR.SubmitForVerification)
		ncrs.POST("/:id/reject-rectification", h.NCR.RejectRectification)
		ncrs.POST("/:id/close", h.NCR.Close)
		ncrs.POST("/:id/evidence", h.NCR.AddEvidence)
	}

	holdpoints := api.Group("/holdpoints")
	{
		holdpoints.POST("/request-release", h.HoldPoint.RequestRelease)
		holdpoints.POST("/preview-evidence-package", h.HoldPoint.PreviewEvidencePackage)
		holdpoints.GET("/project/:projectId", h.HoldPoint.ListByProject)
		holdpoints.GET("/lot/:lotId/item/:itemId", h.HoldPoint.GetByLotItem)
		holdpoints.GET("/:id/history", h.HoldPoint.History)
		holdpoints.POST("/:id/release", h.HoldPoint.Release)
		holdpoints.POST("/:id/chase", h.HoldPoint.Chase)
	}

	projects := api.Group("/projects")
	{
		projects.GET("/:id/claims", h.Claim.List)
		projects.POST("/:id/claims", h.Claim.Create)
		projects.PUT("/:id/claims/:claimId", h.Claim.Update)
		projects.GET("/:id/lots", h.Lot.List)
		projects.POST("/:id/lots", h.Lot.Create)
	}

	lots := api.Group("/lots")
	{
		lots.GET("/:id", h.Lot.Get)
		lots.POST("/:id/itps", h.Lot.AssignITP)
		lots.POST("/:id/items/:itemId/complete", h.Lot.CompleteItem)
		lots.POST("/:id/tests", h.Lot.AddTest)
		lots.POST("/:id/photos", h.Lot.AddPhoto)
	}

	claims := api.Group("/claims")
	{
		claims.GET("/:id", h.Claim.Get)
		claims.GET("/:id/completeness-check", h.Claim.CompletenessCheck)
		claims.GET("/:id/evidence-package", h.Claim.EvidencePackage)
	}

	api.GET("/sse/events", h.SSE.Stream)
}

// Response envelope
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ListResponse paged list
type ListResponse struct {
	Items      interface{} `json:"items"`
	Pagination *Pagination `json:"pagination"`
}

// Pagination paging info
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

func NewPagination(page, pageSize int, total int64) *Pagination {
	pages := 0
	if pageSize > 0 {
		pages = int((total + int64(pageSize) - 1) / int64(pageSize))
	}
	return &Pagination{Page: page, PageSize: pageSize, Total: int(total), TotalPages: pages}
}

// RejectionBody data of a refused workflow call
type RejectionBody struct {
	Kind    engine.Kind            `json:"kind"`
	Code    string                 `json:"code"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(200, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

func Created(c *gin.Context, data interface{}) {
	c.JSON(201, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

// Error status is code / 100
func Error(c *gin.Context, code int, message string) {
	ErrorWithData(c, code, message, nil)
}

func ErrorWithData(c *gin.Context, code int, message string, data interface{}) {
	statusCode := code / 100
	if statusCode < 100 || statusCode > 599 {
		statusCode = 500
	}
	c.JSON(statusCode, Response{
		Code:    code,
		Message: message,
		Data:    data,
	})
}

func BadRequest(c *gin.Context, message string) {
	Error(c, 40000, message)
}

func NotFound(c *gin.Context, message string) {
	Error(c, 40400, message)
}

func Conflict(c *gin.Context, message string) {
	Error(c, 40900, message)
}

func InternalError(c *gin.Context, message string) {
	Error(c, 50000, message)
}

// Rejected renders an engine rejection: 422 guard, 409 notice warning, 403 authorization
func Rejected(c *gin.Context, r engine.Rejection) {
	body := RejectionBody{Kind: r.Kind(), Code: r.RejectionCode(), Details: r.Details()}
	switch r.(type) {
	case *engine.GuardViolation:
		ErrorWithData(c, 42200, r.Error(), body)
	case *engine.NoticeWarning:
		ErrorWithData(c, 40901, r.Error(), body)
	case *engine.AuthorizationFailure:
		ErrorWithData(c, 40300, r.Error(), body)
	default:
		ErrorWithData(c, 42200, r.Error(), body)
	}
}

// Fail maps service errors onto the envelope
func Fail(c *gin.Context, logger *zap.Logger, err error) {
	if r, ok := engine.AsRejection(err); ok {
		Rejected(c, r)
		return
	}
	switch {
	case errors.Is(err, repository.ErrNotFound):
		NotFound(c, "resource not found")
	case errors.Is(err, repository.ErrConflict):
		Conflict(c, "the record was changed by someone else, reload and try again")
	case errors.Is(err, service.ErrBusy):
		Conflict(c, err.Error())
	case errors.Is(err, engine.ErrMalformedInput):
		BadRequest(c, err.Error())
	default:
		logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.String("request_id", c.GetString("request_id")),
			zap.Error(err))
		_ = c.Error(err)
		InternalError(c, "internal error")
	}
}

// BindError 40000 with a field -> rule map for validation failures
func BindError(c *gin.Context, err error) {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		fields := make(map[string]string, len(ve))
		for _, fe := range ve {
			fields[fe.Field()] = fe.Tag()
		}
		ErrorWithData(c, 40000, "validation failed", gin.H{"fields": fields})
		return
	}
	var se *json.SyntaxError
	var te *json.UnmarshalTypeError
	switch {
	case errors.As(err, &se), errors.As(err, &te):
		BadRequest(c, "invalid JSON body: "+err.Error())
	case errors.Is(err, io.EOF):
		BadRequest(c, "request body is required")
	default:
		BadRequest(c, err.Error())
	}
}

// bindOptional binds a JSON body that may be empty
func bindOptional(c *gin.Context, req interface{}) error {
	if c.Request.ContentLength == 0 {
		return nil
	}
	return c.ShouldBindJSON(req)
}

func GetUserID(c *gin.Context) string {
	return c.GetString("user_id")
}

// GetActor caller identity from the JWT claims
func GetActor(c *gin.Context) engine.Actor {
	actor := engine.Actor{
		UserID: c.GetString("user_id"),
		Name:   c.GetString("user_name"),
	}
	if roles, ok := c.Get("roles"); ok {
		if rs, ok := roles.([]string); ok {
			actor.Roles = rs
		}
	}
	return actor
}

func GetPagination(c *gin.Context) (page, pageSize int) {
	page = 1
	pageSize = 20

	if p := c.Query("page"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			page = v
		}
	}

	if ps := c.Query("page_size"); ps != "" {
		if v, err := strconv.Atoi(ps); err == nil && v > 0 && v <= 100 {
			pageSize = v
		}
	}

	return page, pageSize
}
